package analysis

import (
	"math/rand/v2"
	"sync"
	"time"

	"termslens/internal/domain"
)

// Scorer turns a category baseline into an overall risk score. The engine
// clamps whatever it returns to [0,100].
type Scorer interface {
	Score(baseline int) int
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(baseline int) int

func (f ScorerFunc) Score(baseline int) int { return f(baseline) }

// RandomScorer stands in for a model: baseline plus a uniform offset in
// [-Spread, Spread].
type RandomScorer struct {
	Spread int

	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomScorer(seed uint64) *RandomScorer {
	return &RandomScorer{Spread: 10, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewTimeSeededScorer is what the server uses.
func NewTimeSeededScorer() *RandomScorer {
	return NewRandomScorer(uint64(time.Now().UnixNano()))
}

func (s *RandomScorer) Score(baseline int) int {
	if s.Spread <= 0 {
		return baseline
	}
	s.mu.Lock()
	off := s.rng.IntN(2*s.Spread+1) - s.Spread
	s.mu.Unlock()
	return baseline + off
}

// FixedScorer adds a constant offset. Tests and SCORING_MODE=fixed use it.
type FixedScorer struct{ Offset int }

func (s FixedScorer) Score(baseline int) int { return baseline + s.Offset }

// Baseline is the starting risk for a category before the scorer runs.
func Baseline(c domain.Category) int {
	switch c {
	case domain.CategoryHealthcare:
		return 75
	case domain.CategoryFintech:
		return 80
	case domain.CategorySocial:
		return 65
	default:
		return 50
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// UrgentThreshold marks a category score as urgent.
const UrgentThreshold = 80

var labels = []string{domain.LabelPrivacy, domain.LabelFinancial, domain.LabelLegal, domain.LabelServiceChanges}

// offsets shift each label away from the overall score, per category.
var offsets = map[domain.Category][4]int{
	domain.CategorySaaS:       {5, 0, 5, 10},
	domain.CategoryEcommerce:  {0, 10, 0, -5},
	domain.CategoryHealthcare: {15, -10, 5, -15},
	domain.CategoryFintech:    {5, 15, 5, 0},
	domain.CategorySocial:     {20, -20, 5, 5},
	domain.CategoryDefault:    {10, -5, 15, -10},
}

// CategoryScores builds the fixed-shape breakdown for an overall score.
func CategoryScores(c domain.Category, overall int) []domain.RiskCategoryScore {
	off, ok := offsets[c]
	if !ok {
		off = offsets[domain.CategoryDefault]
	}
	out := make([]domain.RiskCategoryScore, len(labels))
	for i, l := range labels {
		s := clamp(overall+off[i], 0, 100)
		out[i] = domain.RiskCategoryScore{Label: l, Score: s, Urgent: s >= UrgentThreshold}
	}
	return out
}
