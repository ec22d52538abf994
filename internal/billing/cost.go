package billing

import (
	"fmt"
	"math"

	"llm_router/internal/models"
)

// Calculator converts token counts into a credit debit. Implementations are
// pure: the same inputs always give the same cost and nothing is mutated.
type Calculator interface {
	Cost(inputTokens, outputTokens int64, mapping *models.ModelProviderMapping) int64
}

// FlatRate charges (input + output) × Multiplier and ignores the mapping's
// declared rates.
type FlatRate struct {
	Multiplier int64
}

func (f FlatRate) Cost(inputTokens, outputTokens int64, _ *models.ModelProviderMapping) int64 {
	return saturatingMul(saturatingAdd(clampTokens(inputTokens), clampTokens(outputTokens)), f.Multiplier)
}

// MappingRates charges the mapping's per-token rates, rounded up to a whole
// credit.
type MappingRates struct{}

func (MappingRates) Cost(inputTokens, outputTokens int64, mapping *models.ModelProviderMapping) int64 {
	raw := float64(clampTokens(inputTokens))*mapping.InputTokenCost + float64(clampTokens(outputTokens))*mapping.OutputTokenCost
	switch {
	case math.IsNaN(raw) || raw <= 0:
		return 0
	case raw >= math.MaxInt64:
		return math.MaxInt64
	}
	return int64(math.Ceil(raw))
}

func clampTokens(n int64) int64 {
	return max(n, 0)
}

// Costs saturate at math.MaxInt64 instead of wrapping. A saturated cost can
// never be covered by a balance, so the debit is refused.
func saturatingAdd(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

func saturatingMul(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > math.MaxInt64/b {
		return math.MaxInt64
	}
	return a * b
}

// NewCalculator builds the calculator named by policy ("flat" or
// "mapping_rates").
func NewCalculator(policy string, flatMultiplier int64) (Calculator, error) {
	switch policy {
	case "", "flat":
		if flatMultiplier <= 0 {
			return nil, fmt.Errorf("flat multiplier must be positive, got %d", flatMultiplier)
		}
		return FlatRate{Multiplier: flatMultiplier}, nil
	case "mapping_rates":
		return MappingRates{}, nil
	}
	return nil, fmt.Errorf("unsupported cost policy %q", policy)
}
