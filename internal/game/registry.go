package game

import (
	_ "embed"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type catalogFile struct {
	Fallback Attack   `yaml:"fallback"`
	Attacks  []Attack `yaml:"attacks"`
	Rosters  struct {
		Player []string `yaml:"player"`
		Enemy  []string `yaml:"enemy"`
	} `yaml:"rosters"`
}

// Registry resolves attack names to catalog entries.
type Registry struct {
	byKey    map[string]Attack
	fallback Attack
	player   []string
	enemy    []string
}

// LoadRegistry parses and validates a YAML attack catalog.
func LoadRegistry(data []byte) (*Registry, error) {
	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := validateAttack(cf.Fallback); err != nil {
		return nil, fmt.Errorf("fallback: %w", err)
	}
	r := &Registry{
		byKey:    make(map[string]Attack, len(cf.Attacks)),
		fallback: cf.Fallback,
	}
	for _, a := range cf.Attacks {
		if err := validateAttack(a); err != nil {
			return nil, fmt.Errorf("attack %q: %w", a.ID, err)
		}
		key := normalize(a.ID)
		if _, dup := r.byKey[key]; dup {
			return nil, fmt.Errorf("attack %q: duplicate id", a.ID)
		}
		r.byKey[key] = a
	}
	var err error
	if r.player, err = r.roster("player", cf.Rosters.Player); err != nil {
		return nil, err
	}
	if r.enemy, err = r.roster("enemy", cf.Rosters.Enemy); err != nil {
		return nil, err
	}
	return r, nil
}

// DefaultRegistry returns the embedded catalog. It panics if the catalog is invalid.
func DefaultRegistry() *Registry {
	r, err := LoadRegistry(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded attack catalog: %v", err))
	}
	return r
}

func validateAttack(a Attack) error {
	switch {
	case strings.TrimSpace(a.ID) == "":
		return fmt.Errorf("missing id")
	case strings.TrimSpace(a.Name) == "":
		return fmt.Errorf("missing name")
	case a.BasePower < 0:
		return fmt.Errorf("negative power %d", a.BasePower)
	case !KnownCategory(a.Category):
		return fmt.Errorf("unknown category %q", a.Category)
	}
	return nil
}

func (r *Registry) roster(side string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("roster %s: empty", side)
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		a, ok := r.byKey[normalize(id)]
		if !ok {
			return nil, fmt.Errorf("roster %s: unknown attack %q", side, id)
		}
		out = append(out, a.ID)
	}
	return out, nil
}

// normalize folds case and drops separators so "Ice Beam", "iceBeam" and
// "ICE_BEAM" share a key.
func normalize(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ', '\t':
			return -1
		}
		return r
	}, name)
	return cases.Fold().String(name)
}

// Resolve looks an attack up by id or display name. Unknown names resolve
// to the fallback attack with known set to false.
func (r *Registry) Resolve(name string) (a Attack, known bool) {
	if a, ok := r.byKey[normalize(name)]; ok {
		return a, true
	}
	return r.fallback, false
}

// PlayerAttacks lists the attack ids a player may choose from.
func (r *Registry) PlayerAttacks() []string { return append([]string(nil), r.player...) }

// EnemyAttacks lists the attack ids the enemy picks from.
func (r *Registry) EnemyAttacks() []string { return append([]string(nil), r.enemy...) }
