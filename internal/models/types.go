package models

import (
	"fmt"
	"sync"
)

// ========================= Domain Models =========================
// Minimal shapes for a two-sided battle. API views are mapped from these.

// Side identifies one of the two fixed participants of a battle.
type Side string

const (
	SidePlayer Side = "player"
	SideEnemy  Side = "enemy"
)

// Other returns the opposing side.
func (s Side) Other() Side {
	if s == SidePlayer {
		return SideEnemy
	}
	return SidePlayer
}

// Character is a combat participant with fixed stats and mutable health.
type Character struct {
	Name          string `json:"name"`
	MaxHealth     int    `json:"maxHealth"`
	CurrentHealth int    `json:"currentHealth"`
	Attack        int    `json:"attack"`
	Defense       int    `json:"defense"`
	Speed         int    `json:"speed"`
}

// NewCharacter creates a character at full health.
func NewCharacter(name string, maxHealth, attack, defense, speed int) *Character {
	return &Character{
		Name:          name,
		MaxHealth:     maxHealth,
		CurrentHealth: max(0, maxHealth),
		Attack:        attack,
		Defense:       defense,
		Speed:         speed,
	}
}

// TakeDamage reduces current health, clamping to [0, MaxHealth]. Negative
// damage is treated as zero.
func (c *Character) TakeDamage(damage int) {
	c.CurrentHealth = max(0, min(c.MaxHealth, c.CurrentHealth-max(0, damage)))
}

func (c *Character) Alive() bool { return c.CurrentHealth > 0 }

// HealthPercentage is in [0,100]; 0 when MaxHealth is not positive.
func (c *Character) HealthPercentage() float64 {
	if c.MaxHealth <= 0 {
		return 0
	}
	pct := float64(c.CurrentHealth) / float64(c.MaxHealth) * 100
	return min(100, max(0, pct))
}

// Hit describes a single applied attack. Observers receive one per action.
type Hit struct {
	BattleID     string `json:"battleId"`
	Actor        Side   `json:"actor"`
	Target       Side   `json:"target"`
	AttackerName string `json:"attacker"`
	DefenderName string `json:"defender"`
	Attack       string `json:"attack"`
	Damage       int    `json:"damage"`
	Finished     bool   `json:"finished"`
}

// Battle holds two characters, the turn indicator and an append-only log.
// Callers mutating a battle must hold its lock.
type Battle struct {
	mu sync.Mutex

	Player           *Character
	Enemy            *Character
	CurrentTurn      Side
	Finished         bool
	Log              []string
	LastDamage       int
	LastDamageTarget Side
}

// NewBattle decides the opening turn by speed; ties go to the player.
func NewBattle(player, enemy *Character) *Battle {
	b := &Battle{
		Player:      player,
		Enemy:       enemy,
		CurrentTurn: SideEnemy,
	}
	if player.Speed >= enemy.Speed {
		b.CurrentTurn = SidePlayer
	}
	b.Append(fmt.Sprintf("The battle begins! %s vs %s", player.Name, enemy.Name))
	return b
}

func (b *Battle) Lock()   { b.mu.Lock() }
func (b *Battle) Unlock() { b.mu.Unlock() }

// Combatants returns (attacker, defender) for the given acting side.
func (b *Battle) Combatants(actor Side) (*Character, *Character) {
	if actor == SidePlayer {
		return b.Player, b.Enemy
	}
	return b.Enemy, b.Player
}

func (b *Battle) Append(line string) { b.Log = append(b.Log, line) }

func (b *Battle) SwitchTurn() { b.CurrentTurn = b.CurrentTurn.Other() }

func (b *Battle) SetLastDamage(damage int, target Side) {
	b.LastDamage = damage
	b.LastDamageTarget = target
}

// Finish marks the battle over. It never resets.
func (b *Battle) Finish(winner string) {
	b.Finished = true
	b.Append(fmt.Sprintf("%s wins the battle!", winner))
}

// BattleSnapshot is a detached copy of a battle, safe to read without the lock.
type BattleSnapshot struct {
	Player           Character
	Enemy            Character
	CurrentTurn      Side
	Finished         bool
	Log              []string
	LastDamage       int
	LastDamageTarget Side
}

// Snapshot copies the battle state. Callers should hold the lock.
func (b *Battle) Snapshot() BattleSnapshot {
	log := make([]string, len(b.Log))
	copy(log, b.Log)
	return BattleSnapshot{
		Player:           *b.Player,
		Enemy:            *b.Enemy,
		CurrentTurn:      b.CurrentTurn,
		Finished:         b.Finished,
		Log:              log,
		LastDamage:       b.LastDamage,
		LastDamageTarget: b.LastDamageTarget,
	}
}
