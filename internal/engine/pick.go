package engine

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"
)

// Picker makes uniform random choices. It is safe for concurrent use.
type Picker struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewPicker returns a picker with a fixed seed, for reproducible runs.
func NewPicker(seed int64) *Picker {
	return &Picker{rng: rand.New(rand.NewSource(seed))}
}

// NewRandomPicker seeds a picker from crypto/rand.
func NewRandomPicker() (*Picker, error) {
	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return NewPicker(seed), nil
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// Pick returns one option uniformly at random, or "" for an empty list.
func (p *Picker) Pick(options []string) string {
	if len(options) == 0 {
		return ""
	}
	p.mu.Lock()
	i := p.rng.Intn(len(options))
	p.mu.Unlock()
	return options[i]
}
