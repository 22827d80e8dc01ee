package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termslens/internal/domain"
	"termslens/internal/services/scanner"
)

var (
	testSite = domain.SiteIdentity{Domain: "example.com", DisplayName: "EXAMPLE"}
	fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

func newTestEngine(opts ...Option) *Engine {
	base := []Option{WithScorer(FixedScorer{}), WithClock(func() time.Time { return fixedNow })}
	return New(append(base, opts...)...)
}

func withTerms() domain.ScanResult {
	return scanner.Scan(domain.Page{Links: []domain.Link{{Text: "Privacy Policy", Href: "/privacy"}}})
}

func TestAnalyzeNoTerms(t *testing.T) {
	scan := scanner.Scan(domain.Page{Title: "t", URL: "u"})
	a, err := newTestEngine().Analyze(context.Background(), testSite, scan, domain.CategoryDefault)
	require.NoError(t, err)
	assert.False(t, a.HasTerms)
	assert.Equal(t, domain.StatusAnalyzed, a.Status)
	assert.Nil(t, a.OverallRiskScore)
	require.NotNil(t, a.AnalyzedAt)
	assert.Empty(t, a.CategoryScores)
	assert.Empty(t, a.FlaggedClauses)
	assert.Empty(t, a.RedFlags)
	assert.Equal(t, "No Terms Found", a.RiskLevel())
	require.NoError(t, a.Validate())
}

func TestAnalyzeWithTerms(t *testing.T) {
	a, err := newTestEngine().Analyze(context.Background(), testSite, withTerms(), domain.CategoryHealthcare)
	require.NoError(t, err)
	assert.True(t, a.HasTerms)
	assert.Equal(t, "/privacy", a.TermsURL)
	score, ok := a.Score()
	require.True(t, ok)
	assert.Equal(t, 75, score)
	assert.Equal(t, fixedNow, *a.AnalyzedAt)
	assert.Equal(t, DefaultConfidence, a.Confidence)
	assert.Equal(t, domain.CategoryHealthcare, a.Category)

	require.Len(t, a.CategoryScores, 4)
	assert.Equal(t, domain.RiskCategoryScore{Label: domain.LabelPrivacy, Score: 90, Urgent: true}, a.CategoryScores[0])
	assert.Equal(t, domain.RiskCategoryScore{Label: domain.LabelFinancial, Score: 65, Urgent: false}, a.CategoryScores[1])

	assert.Contains(t, a.RedFlags, "Health data shared beyond treatment purposes")
	assert.NotContains(t, a.RedFlags, "Perpetual license to user content")
	require.NoError(t, a.Validate())
}

func TestAnalyzeSignalOnlyUsesSourceURL(t *testing.T) {
	scan := domain.ScanResult{CandidateLinks: []domain.Link{}, PageHasTermsSignal: true, SourceURL: "https://example.com/tos"}
	a, err := newTestEngine().Analyze(context.Background(), testSite, scan, domain.CategoryDefault)
	require.NoError(t, err)
	assert.True(t, a.HasTerms)
	assert.Equal(t, "https://example.com/tos", a.TermsURL)
}

func TestScoreBounds(t *testing.T) {
	for _, cat := range domain.Categories {
		for _, off := range []int{-500, -10, 0, 10, 500} {
			a, err := newTestEngine(WithScorer(FixedScorer{Offset: off})).Analyze(context.Background(), testSite, withTerms(), cat)
			require.NoError(t, err)
			score, ok := a.Score()
			require.True(t, ok)
			assert.GreaterOrEqual(t, score, 0)
			assert.LessOrEqual(t, score, 100)
			for _, cs := range a.CategoryScores {
				assert.GreaterOrEqual(t, cs.Score, 0)
				assert.LessOrEqual(t, cs.Score, 100)
			}
		}
	}
}

func TestRandomScorerStaysInWindow(t *testing.T) {
	s := NewRandomScorer(42)
	e := newTestEngine(WithScorer(s))
	for i := 0; i < 200; i++ {
		a, err := e.Analyze(context.Background(), testSite, withTerms(), domain.CategoryFintech)
		require.NoError(t, err)
		score, _ := a.Score()
		assert.GreaterOrEqual(t, score, 70)
		assert.LessOrEqual(t, score, 90)
	}
}

func TestRandomScorerIsSeeded(t *testing.T) {
	a, b := NewRandomScorer(7), NewRandomScorer(7)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Score(50), b.Score(50))
	}
}

func TestHighSeverityFirst(t *testing.T) {
	a, err := newTestEngine().Analyze(context.Background(), testSite, withTerms(), domain.CategorySaaS)
	require.NoError(t, err)
	require.NotEmpty(t, a.FlaggedClauses)
	seenLower := false
	for _, c := range a.FlaggedClauses {
		if c.Severity != domain.SeverityHigh {
			seenLower = true
		} else {
			assert.False(t, seenLower, "high severity clause after a lower one")
		}
	}
	assert.Equal(t, "Broad data collection permissions", a.RedFlags[0])
}

func TestCatalogMinScore(t *testing.T) {
	clauses, flags := DefaultCatalog.Select(domain.CategoryDefault, 40)
	for _, c := range clauses {
		assert.NotEqual(t, "Data retained for 7+ years after deletion", c.Issue)
	}
	assert.NotContains(t, flags, "Vague liability limitations")

	clauses, flags = DefaultCatalog.Select(domain.CategoryDefault, 80)
	issues := make([]string, 0, len(clauses))
	for _, c := range clauses {
		issues = append(issues, c.Issue)
	}
	assert.Contains(t, issues, "Data retained for 7+ years after deletion")
	assert.Contains(t, flags, "Vague liability limitations")
}

func TestAnalyzeRecoversScorerPanic(t *testing.T) {
	boom := ScorerFunc(func(int) int { panic("model exploded") })
	_, err := newTestEngine(WithScorer(boom)).Analyze(context.Background(), testSite, withTerms(), domain.CategoryDefault)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAnalysisFailed))
	assert.Contains(t, err.Error(), "model exploded")
}

func TestAnalyzeHonoursDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := newTestEngine(WithLatency(time.Second)).Analyze(ctx, testSite, withTerms(), domain.CategoryDefault)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAnalysisFailed))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "timed out")
}

func TestConfidenceIsClamped(t *testing.T) {
	a, err := newTestEngine(WithConfidence(3)).Analyze(context.Background(), testSite, withTerms(), domain.CategoryDefault)
	require.NoError(t, err)
	assert.Equal(t, 1.0, a.Confidence)
}
