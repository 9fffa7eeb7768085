// Package storage holds battles for the lifetime of the process.
package storage

import (
	"sync"

	"github.com/pefman/battle-sim/internal/models"
)

// Store is a keyed container of live battles, safe for concurrent use.
// Stored battles are shared by reference; callers lock the battle itself
// before mutating it.
type Store interface {
	Put(id string, b *models.Battle)
	Get(id string) (*models.Battle, bool)
	Delete(id string) bool
	Len() int
}

// Memory is an in-memory Store. Battles are never evicted.
type Memory struct {
	mu      sync.RWMutex
	battles map[string]*models.Battle
}

func NewMemory() *Memory { return &Memory{battles: map[string]*models.Battle{}} }

func (m *Memory) Put(id string, b *models.Battle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.battles[id] = b
}

func (m *Memory) Get(id string) (*models.Battle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.battles[id]
	return b, ok
}

// Delete removes a battle and reports whether it existed.
func (m *Memory) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.battles[id]
	delete(m.battles, id)
	return ok
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.battles)
}
