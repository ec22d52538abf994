package routing

import (
	"fmt"
	"math/rand"
	"sync"

	"llm_router/internal/models"
)

// Selector chooses one mapping from a non-empty candidate list. Every
// candidate must remain selectable.
type Selector interface {
	Select(modelID int64, mappings []*models.ModelProviderMapping) *models.ModelProviderMapping
}

// RandomSelector picks uniformly at random
type RandomSelector struct {
	intn func(n int) int
}

// NewRandomSelector uses intn as its randomness source; nil means
// math/rand.Intn. Tests inject a deterministic function.
func NewRandomSelector(intn func(n int) int) *RandomSelector {
	if intn == nil {
		intn = rand.Intn
	}
	return &RandomSelector{intn: intn}
}

func (s *RandomSelector) Select(_ int64, mappings []*models.ModelProviderMapping) *models.ModelProviderMapping {
	return mappings[s.intn(len(mappings))]
}

// RoundRobinSelector cycles through a model's mappings in order
type RoundRobinSelector struct {
	mu   sync.Mutex
	next map[int64]int
}

func NewRoundRobinSelector() *RoundRobinSelector {
	return &RoundRobinSelector{next: make(map[int64]int)}
}

func (s *RoundRobinSelector) Select(modelID int64, mappings []*models.ModelProviderMapping) *models.ModelProviderMapping {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.next[modelID] % len(mappings)
	s.next[modelID] = i + 1
	return mappings[i]
}

// NewSelector builds the selector named by policy
func NewSelector(policy string) (Selector, error) {
	switch policy {
	case "", "random":
		return NewRandomSelector(nil), nil
	case "round_robin":
		return NewRoundRobinSelector(), nil
	}
	return nil, fmt.Errorf("unsupported selection policy %q", policy)
}
