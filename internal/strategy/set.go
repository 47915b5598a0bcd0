package strategy

import (
	"strings"
	"sync"

	"github.com/hengadev/fieldcrypt/internal/fcerr"
)

// DefaultCompressionThreshold is the payload size from which SECRETBOX tries
// zstd compression.
const DefaultCompressionThreshold = defaultCompressionThreshold

// Set is an ordered collection of strategies. Lookup returns the first
// strategy supporting a name, so strategies registered later shadow the
// built-ins.
type Set struct {
	mu               sync.RWMutex
	strategies       []Strategy
	defaultAlgorithm string
}

// NewSet returns a set holding strategies in order. An empty defaultAlgorithm
// falls back to AES.
func NewSet(defaultAlgorithm string, strategies ...Strategy) *Set {
	if defaultAlgorithm == "" {
		defaultAlgorithm = AlgorithmAES
	}
	s := &Set{defaultAlgorithm: strings.ToUpper(defaultAlgorithm)}
	for _, st := range strategies {
		if st != nil {
			s.strategies = append(s.strategies, st)
		}
	}
	return s
}

// Default returns the built-in strategies: AES, DES, AESGCM and SECRETBOX.
// aesKeySize optionally sets the AES key size (see NewAESKeySize); it must
// match the database's block_encryption_mode when DB mode is used.
func Default(defaultAlgorithm string, aesKeySize ...int) *Set {
	aesStrategy := NewAES()
	if len(aesKeySize) > 0 {
		aesStrategy = NewAESKeySize(aesKeySize[0])
	}
	return NewSet(defaultAlgorithm,
		aesStrategy,
		NewDES(),
		NewAESGCM(),
		NewSecretBox(DefaultCompressionThreshold),
	)
}

// DefaultAlgorithm returns the name the empty algorithm resolves to.
func (s *Set) DefaultAlgorithm() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultAlgorithm
}

// Find returns the first strategy supporting name. The empty name resolves to
// the default algorithm.
func (s *Set) Find(name string) (Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if strings.TrimSpace(name) == "" {
		name = s.defaultAlgorithm
	}
	for _, st := range s.strategies {
		if st.Supports(name) {
			return st, nil
		}
	}
	return nil, fcerr.NewUnknownAlgorithmError(name)
}

// Register puts st in front of every existing strategy.
func (s *Set) Register(st Strategy) {
	if st == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategies = append([]Strategy{st}, s.strategies...)
}

// Algorithms lists the canonical names in lookup order, duplicates removed.
func (s *Set) Algorithms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(s.strategies))
	names := make([]string, 0, len(s.strategies))
	for _, st := range s.strategies {
		name := st.Algorithm()
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// Deterministic reports whether the algorithm yields the same ciphertext for
// the same input and key. Only deterministic algorithms can be matched by
// database-side equality predicates.
func Deterministic(algorithm string) bool {
	return strings.EqualFold(algorithm, AlgorithmAES) || strings.EqualFold(algorithm, AlgorithmDES)
}
