package game

// Category selects the damage formula applied by an attack.
type Category string

const (
	CategoryNormal  Category = "NORMAL"
	CategorySpecial Category = "SPECIAL"
	CategoryStatus  Category = "STATUS"
)

// Attack is an immutable move resolved from the registry.
type Attack struct {
	ID        string   `json:"id" yaml:"id"`
	Name      string   `json:"name" yaml:"name"`
	BasePower int      `json:"basePower" yaml:"power"`
	Category  Category `json:"category" yaml:"category"`
}

// Stats captures the minimal attacker/defender numbers needed for resolution
type Stats struct {
	Attack  int
	Defense int
}
