// Package battle sequences combat resolution against stored battles.
package battle

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pefman/battle-sim/internal/engine"
	"github.com/pefman/battle-sim/internal/game"
	"github.com/pefman/battle-sim/internal/models"
	"github.com/pefman/battle-sim/internal/storage"
)

const tracerName = "github.com/pefman/battle-sim/internal/battle"

// DefaultEnemyAttack is used when an enemy action names no attack.
const DefaultEnemyAttack = "TACKLE"

// Default combatants for StartBattle.
var (
	DefaultPlayer = Fighter{Name: "Hero", HP: 150, Attack: 25, Defense: 15, Speed: 20}
	DefaultEnemy  = Fighter{Name: "Dragon", HP: 120, Attack: 30, Defense: 10, Speed: 15}
)

// Fighter describes a combatant to create.
type Fighter struct {
	Name    string
	HP      int
	Attack  int
	Defense int
	Speed   int
}

func (f Fighter) character() *models.Character {
	return models.NewCharacter(f.Name, f.HP, f.Attack, f.Defense, f.Speed)
}

// Observer is notified after battle state changes, outside the battle lock.
type Observer interface {
	BattleStarted(id string, snap models.BattleSnapshot)
	HitApplied(hit models.Hit, snap models.BattleSnapshot)
	BattleDeleted(id string)
}

// Outcome reports the result of an attack action. Battle is always the
// state after the call, whether or not the action was applied.
type Outcome struct {
	Applied  bool
	Actor    models.Side
	Target   models.Side
	Attack   game.Attack
	Damage   int
	Finished bool
	// Fallback is set when the requested name matched no attack.
	Fallback bool
	Battle   models.BattleSnapshot
}

// Service orchestrates battles held in a Store.
type Service struct {
	store     storage.Store
	attacks   *game.Registry
	picker    *engine.Picker
	observers []Observer
	newID     func() string
	tracer    trace.Tracer
}

type Option func(*Service)

// WithObservers registers observers notified on every state change.
func WithObservers(obs ...Observer) Option {
	return func(s *Service) { s.observers = append(s.observers, obs...) }
}

// WithIDGenerator overrides battle id generation.
func WithIDGenerator(f func() string) Option {
	return func(s *Service) { s.newID = f }
}

func NewService(store storage.Store, attacks *game.Registry, picker *engine.Picker, opts ...Option) *Service {
	s := &Service{
		store:   store,
		attacks: attacks,
		picker:  picker,
		newID:   uuid.NewString,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ActiveBattles reports how many battles the store holds.
func (s *Service) ActiveBattles() int { return s.store.Len() }

// Attacks exposes the registry the service resolves against.
func (s *Service) Attacks() *game.Registry { return s.attacks }

// StartBattle creates a battle between the default fighters. Empty names
// keep the default names.
func (s *Service) StartBattle(ctx context.Context, playerName, enemyName string) (string, models.BattleSnapshot) {
	player, enemy := DefaultPlayer, DefaultEnemy
	if playerName != "" {
		player.Name = playerName
	}
	if enemyName != "" {
		enemy.Name = enemyName
	}
	return s.start(ctx, "battle.StartBattle", player, enemy)
}

// StartBattleFromExternal creates a battle from caller-supplied name, hp and
// attack. Defense and speed are fixed at 10. Values are not validated.
func (s *Service) StartBattleFromExternal(ctx context.Context, f1, f2 Fighter) (string, models.BattleSnapshot) {
	f1.Defense, f1.Speed = 10, 10
	f2.Defense, f2.Speed = 10, 10
	return s.start(ctx, "battle.StartBattleFromExternal", f1, f2)
}

func (s *Service) start(ctx context.Context, op string, player, enemy Fighter) (string, models.BattleSnapshot) {
	_, span := s.tracer.Start(ctx, op)
	defer span.End()

	b := models.NewBattle(player.character(), enemy.character())
	id := s.newID()
	snap := b.Snapshot()
	s.store.Put(id, b)
	span.SetAttributes(attribute.String("battle.id", id))

	log.Printf("battle %s: started %s vs %s (first turn: %s)", id, player.Name, enemy.Name, snap.CurrentTurn)
	for _, o := range s.observers {
		o.BattleStarted(id, snap)
	}
	return id, snap
}

// GetBattle returns a snapshot of the battle.
func (s *Service) GetBattle(ctx context.Context, id string) (models.BattleSnapshot, error) {
	_, span := s.tracer.Start(ctx, "battle.GetBattle", trace.WithAttributes(attribute.String("battle.id", id)))
	defer span.End()

	b, ok := s.store.Get(id)
	if !ok {
		return models.BattleSnapshot{}, notFound(id)
	}
	b.Lock()
	defer b.Unlock()
	return b.Snapshot(), nil
}

// DeleteBattle removes the battle from the store.
func (s *Service) DeleteBattle(ctx context.Context, id string) error {
	_, span := s.tracer.Start(ctx, "battle.DeleteBattle", trace.WithAttributes(attribute.String("battle.id", id)))
	defer span.End()

	if !s.store.Delete(id) {
		return notFound(id)
	}
	log.Printf("battle %s: deleted", id)
	for _, o := range s.observers {
		o.BattleDeleted(id)
	}
	return nil
}

// ExecutePlayerAttack applies attackName from the player to the enemy.
func (s *Service) ExecutePlayerAttack(ctx context.Context, id, attackName string) (Outcome, error) {
	return s.act(ctx, "battle.ExecutePlayerAttack", id, func(b *models.Battle) (models.Side, string, error) {
		if b.CurrentTurn != models.SidePlayer {
			return "", "", ErrWrongTurn
		}
		return models.SidePlayer, attackName, nil
	})
}

// ExecuteEnemyAttack applies attackName (TACKLE when empty) from the enemy to the player.
func (s *Service) ExecuteEnemyAttack(ctx context.Context, id, attackName string) (Outcome, error) {
	if attackName == "" {
		attackName = DefaultEnemyAttack
	}
	return s.act(ctx, "battle.ExecuteEnemyAttack", id, func(b *models.Battle) (models.Side, string, error) {
		if b.CurrentTurn != models.SideEnemy {
			return "", "", ErrWrongTurn
		}
		return models.SideEnemy, attackName, nil
	})
}

// Attack applies attackName for whichever side holds the turn. The turn is
// read under the battle lock. Names, including "", that match no attack
// resolve to the fallback.
func (s *Service) Attack(ctx context.Context, id, attackName string) (Outcome, error) {
	return s.act(ctx, "battle.Attack", id, func(b *models.Battle) (models.Side, string, error) {
		return b.CurrentTurn, attackName, nil
	})
}

// EnemyTurn plays a uniformly random attack from the enemy roster if it is
// the enemy's turn.
func (s *Service) EnemyTurn(ctx context.Context, id string) (Outcome, error) {
	return s.act(ctx, "battle.EnemyTurn", id, func(b *models.Battle) (models.Side, string, error) {
		if b.CurrentTurn != models.SideEnemy {
			return "", "", ErrWrongTurn
		}
		return models.SideEnemy, s.picker.Pick(s.attacks.EnemyAttacks()), nil
	})
}

type chooseFunc func(b *models.Battle) (actor models.Side, attackName string, err error)

func (s *Service) act(ctx context.Context, op, id string, choose chooseFunc) (Outcome, error) {
	_, span := s.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("battle.id", id)))
	defer span.End()

	b, ok := s.store.Get(id)
	if !ok {
		span.SetAttributes(attribute.String("battle.rejected", string(CodeBattleNotFound)))
		return Outcome{}, notFound(id)
	}

	out, hit, err := s.resolve(b, choose)
	if err != nil {
		span.SetAttributes(attribute.String("battle.rejected", string(CodeOf(err))))
		log.Printf("battle %s: action ignored: %v", id, err)
		return out, err
	}
	hit.BattleID = id
	if out.Fallback {
		log.Printf("battle %s: unknown attack, using %s", id, out.Attack.Name)
	}
	span.SetAttributes(
		attribute.Bool("battle.attack.fallback", out.Fallback),
		attribute.String("battle.attack", out.Attack.ID),
		attribute.Int("battle.damage", out.Damage),
		attribute.Bool("battle.finished", out.Finished),
	)
	log.Printf("battle %s: %s uses %s for %d damage (%s hp %d)", id, hit.AttackerName, hit.Attack, hit.Damage, hit.DefenderName, defenderHealth(out))
	if out.Finished {
		log.Printf("battle %s: finished, %s wins", id, hit.AttackerName)
	}
	for _, o := range s.observers {
		o.HitApplied(hit, out.Battle)
	}
	return out, nil
}

// resolve runs the full read-modify-write under the battle lock.
func (s *Service) resolve(b *models.Battle, choose chooseFunc) (Outcome, models.Hit, error) {
	b.Lock()
	defer b.Unlock()

	if b.Finished {
		return Outcome{Battle: b.Snapshot()}, models.Hit{}, ErrBattleFinished
	}
	actor, name, err := choose(b)
	if err != nil {
		return Outcome{Battle: b.Snapshot()}, models.Hit{}, err
	}

	attack, known := s.attacks.Resolve(name)
	attacker, defender := b.Combatants(actor)
	// status damage tracks the raw attack stat, which callers may set negative
	damage := max(0, game.ComputeDamage(statsOf(attacker), statsOf(defender), attack))
	hit := applyDamage(b, actor, attack, damage)

	return Outcome{
		Applied:  true,
		Actor:    actor,
		Target:   actor.Other(),
		Attack:   attack,
		Damage:   damage,
		Finished: b.Finished,
		Fallback: !known,
		Battle:   b.Snapshot(),
	}, hit, nil
}

// applyDamage mutates the battle for one hit. The turn flips even on the
// finishing blow; Finished gates every later action.
func applyDamage(b *models.Battle, actor models.Side, attack game.Attack, damage int) models.Hit {
	attacker, defender := b.Combatants(actor)
	target := actor.Other()

	defender.TakeDamage(damage)
	b.SetLastDamage(damage, target)
	b.Append(fmt.Sprintf("%s uses %s and deals %d damage to %s", attacker.Name, attack.Name, damage, defender.Name))
	b.SwitchTurn()
	if !defender.Alive() {
		b.Finish(attacker.Name)
	}
	return models.Hit{
		Actor:        actor,
		Target:       target,
		AttackerName: attacker.Name,
		DefenderName: defender.Name,
		Attack:       attack.Name,
		Damage:       damage,
		Finished:     b.Finished,
	}
}

func statsOf(c *models.Character) game.Stats {
	return game.Stats{Attack: c.Attack, Defense: c.Defense}
}

func defenderHealth(o Outcome) int {
	if o.Target == models.SidePlayer {
		return o.Battle.Player.CurrentHealth
	}
	return o.Battle.Enemy.CurrentHealth
}
