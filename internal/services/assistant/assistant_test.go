package assistant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"termslens/internal/domain"
)

func analyzed(name string, cat domain.Category) domain.Assessment {
	now := time.Now()
	score := 72
	a := domain.NotAnalyzed(domain.SiteIdentity{Domain: name + ".com", DisplayName: name})
	a.Status = domain.StatusAnalyzed
	a.Category = cat
	a.HasTerms = true
	a.OverallRiskScore = &score
	a.AnalyzedAt = &now
	a.FlaggedClauses = []domain.FlaggedClause{
		{Type: domain.ClausePrivacy, Severity: domain.SeverityHigh, Issue: "Shares data", Impact: "Ads"},
		{Type: domain.ClauseLegal, Severity: domain.SeverityHigh, Issue: "Arbitration", Impact: "No class action"},
		{Type: domain.ClauseData, Severity: domain.SeverityMedium, Issue: "Retention", Impact: "Exposure"},
		{Type: domain.ClauseLegal, Severity: domain.SeverityMedium, Issue: "Terms change without notice", Impact: "Moving target"},
	}
	a.RedFlags = []string{"a", "b"}
	a.CategoryScores = []domain.RiskCategoryScore{{Label: domain.LabelPrivacy, Score: 82, Urgent: true}}
	return a
}

func TestClassify(t *testing.T) {
	cases := map[string]Intent{
		"How do I DELETE my account?":       IntentDeleteAccount,
		"how do I get a refund":             IntentRefund,
		"Can I cancel anytime?":             IntentRefund,
		"what data do they collect":         IntentPrivacy,
		"privacy?":                          IntentPrivacy,
		"is there an arbitration clause":    IntentFallback,
		"delete my data":                    IntentPrivacy,
		"cancel my account and delete it":   IntentDeleteAccount,
		"":                                  IntentFallback,
	}
	for q, want := range cases {
		assert.Equal(t, want, Classify(q), q)
	}
}

func TestRefundAnswerIsSiteIndependent(t *testing.T) {
	a := Answer(analyzed("SHOPPY", domain.CategoryEcommerce), "how do I get a refund")
	b := Answer(analyzed("BANKY", domain.CategoryFintech), "how do I get a refund")
	assert.Equal(t, a, b)
	assert.Contains(t, a, "Refund Policy Analysis")
}

func TestDeleteAnswerReferencesSite(t *testing.T) {
	got := Answer(analyzed("SOCIALNET", domain.CategorySocial), "delete account please")
	assert.Contains(t, got, "SOCIALNET")
	assert.Contains(t, got, "Social Media")
}

func TestPrivacyAnswerListsClauses(t *testing.T) {
	got := Answer(analyzed("EXAMPLE", domain.CategoryDefault), "what about privacy")
	assert.Contains(t, got, "High Risk Areas")
	assert.Contains(t, got, "Shares data")
	assert.Contains(t, got, "Medium Risk")
	assert.Contains(t, got, "Retention")
	assert.NotContains(t, got, "Arbitration")
	assert.Contains(t, got, "82/100")
}

func TestFallback(t *testing.T) {
	got := Answer(analyzed("EXAMPLE", domain.CategoryDefault), "tell me a joke")
	assert.Equal(t, fallbackAnswer, got)
}

func TestAnswerIsDeterministic(t *testing.T) {
	a := analyzed("EXAMPLE", domain.CategorySaaS)
	for _, q := range []string{"privacy", "refund", "delete account", "hello"} {
		assert.Equal(t, Answer(a, q), Answer(a, q))
	}
}

func TestNotAnalyzed(t *testing.T) {
	site := domain.SiteIdentity{Domain: "x.com", DisplayName: "X"}
	assert.Contains(t, Answer(domain.NotAnalyzed(site), "refund"), "not been analyzed")
	assert.Contains(t, Answer(domain.NotAnalyzed(site).Scanning(), "refund"), "being analyzed")
	assert.Contains(t, Answer(domain.Failed(site, "timed out"), "refund"), "timed out")
}

func TestSummarize(t *testing.T) {
	got := Summarize(analyzed("EXAMPLE", domain.CategoryDefault))
	assert.Contains(t, got, "Risk Score: 72/100")
	assert.Contains(t, got, "2 potential red flags")
	assert.Contains(t, got, "2 privacy-related clauses")
	assert.Contains(t, got, "1 arbitration clauses")
	assert.Contains(t, got, "Risk level: High")

	now := time.Now()
	noTerms := domain.NotAnalyzed(domain.SiteIdentity{Domain: "x.com", DisplayName: "X"})
	noTerms.Status = domain.StatusAnalyzed
	noTerms.AnalyzedAt = &now
	assert.Contains(t, Summarize(noTerms), "found no Terms")
}

func TestRiskBand(t *testing.T) {
	assert.Equal(t, "High", RiskBand(71))
	assert.Equal(t, "Medium", RiskBand(70))
	assert.Equal(t, "Medium", RiskBand(41))
	assert.Equal(t, "Low", RiskBand(40))
}
