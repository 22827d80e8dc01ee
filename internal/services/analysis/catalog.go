package analysis

import (
	"slices"
	"sort"

	"termslens/internal/domain"
)

// ClauseEntry is a catalog clause surfaced when the score reaches MinScore and
// the site's category is listed (an empty list means every category).
type ClauseEntry struct {
	Clause     domain.FlaggedClause
	MinScore   int
	Categories []domain.Category
}

type RedFlagEntry struct {
	Text       string
	Severity   domain.Severity
	MinScore   int
	Categories []domain.Category
}

type Catalog struct {
	Clauses  []ClauseEntry
	RedFlags []RedFlagEntry
}

func applies(cats []domain.Category, c domain.Category, minScore, score int) bool {
	if score < minScore {
		return false
	}
	return len(cats) == 0 || slices.Contains(cats, c)
}

// Select returns the clauses and red flags for a category and score, high
// severity first and catalog order within a severity.
func (c Catalog) Select(cat domain.Category, score int) ([]domain.FlaggedClause, []string) {
	clauses := []domain.FlaggedClause{}
	for _, e := range c.Clauses {
		if applies(e.Categories, cat, e.MinScore, score) {
			clauses = append(clauses, e.Clause)
		}
	}
	sort.SliceStable(clauses, func(i, j int) bool {
		return clauses[i].Severity.Rank() < clauses[j].Severity.Rank()
	})

	var flags []RedFlagEntry
	for _, e := range c.RedFlags {
		if applies(e.Categories, cat, e.MinScore, score) {
			flags = append(flags, e)
		}
	}
	sort.SliceStable(flags, func(i, j int) bool {
		return flags[i].Severity.Rank() < flags[j].Severity.Rank()
	})
	texts := make([]string, 0, len(flags))
	for _, f := range flags {
		texts = append(texts, f.Text)
	}
	return clauses, texts
}

var (
	subscriptions = []domain.Category{domain.CategorySaaS, domain.CategoryEcommerce, domain.CategoryFintech}
	healthcare    = []domain.Category{domain.CategoryHealthcare}
	fintech       = []domain.Category{domain.CategoryFintech}
	social        = []domain.Category{domain.CategorySocial}
)

// DefaultCatalog is the built-in clause set.
var DefaultCatalog = Catalog{
	Clauses: []ClauseEntry{
		{Clause: domain.FlaggedClause{Type: domain.ClauseFinancial, Severity: domain.SeverityMedium,
			Issue: "Auto-renewal with 30-day cancellation requirement", Impact: "Risk of unwanted charges"}},
		{Clause: domain.FlaggedClause{Type: domain.ClausePrivacy, Severity: domain.SeverityHigh,
			Issue: "Your data will be shared with third-party advertisers", Impact: "Loss of privacy, targeted advertising"}},
		{Clause: domain.FlaggedClause{Type: domain.ClauseLegal, Severity: domain.SeverityHigh,
			Issue: "Mandatory arbitration in Delaware only", Impact: "Cannot join class-action lawsuits"}},
		{Clause: domain.FlaggedClause{Type: domain.ClauseLegal, Severity: domain.SeverityMedium,
			Issue: "Terms may be changed unilaterally without notice", Impact: "Rules can change after you sign up"}},
		{Clause: domain.FlaggedClause{Type: domain.ClausePrivacy, Severity: domain.SeverityLow,
			Issue: "Cookies used for analytics and cross-site tracking", Impact: "Browsing activity is profiled"}},
		{Clause: domain.FlaggedClause{Type: domain.ClauseData, Severity: domain.SeverityHigh,
			Issue: "Data retained for 7+ years after deletion", Impact: "Permanent privacy exposure"}, MinScore: 60},
		{Clause: domain.FlaggedClause{Type: domain.ClauseFinancial, Severity: domain.SeverityMedium,
			Issue: "No refunds for premium features after 7 days of use", Impact: "Money lost on unused services"}, Categories: subscriptions},
		{Clause: domain.FlaggedClause{Type: domain.ClauseData, Severity: domain.SeverityHigh,
			Issue: "Health information may be shared with affiliated partners", Impact: "Sensitive medical data leaves your provider"}, Categories: healthcare},
		{Clause: domain.FlaggedClause{Type: domain.ClauseFinancial, Severity: domain.SeverityHigh,
			Issue: "Accounts may be frozen pending review without notice", Impact: "Funds can become inaccessible"}, Categories: fintech},
		{Clause: domain.FlaggedClause{Type: domain.ClauseLegal, Severity: domain.SeverityMedium,
			Issue: "Perpetual, royalty-free license to everything you post", Impact: "Your content can be reused commercially"}, Categories: social},
		{Clause: domain.FlaggedClause{Type: domain.ClauseLegal, Severity: domain.SeverityHigh,
			Issue: "Liability capped at fees paid in the last 12 months", Impact: "Little recourse if the service harms you"}, MinScore: 75},
	},
	RedFlags: []RedFlagEntry{
		{Text: "Unilateral terms modification rights", Severity: domain.SeverityMedium},
		{Text: "Broad data collection permissions", Severity: domain.SeverityHigh},
		{Text: "Mandatory arbitration with class action waiver", Severity: domain.SeverityHigh},
		{Text: "Vague liability limitations", Severity: domain.SeverityMedium, MinScore: 55},
		{Text: "Automatic renewal without reminder", Severity: domain.SeverityMedium, Categories: subscriptions},
		{Text: "Health data shared beyond treatment purposes", Severity: domain.SeverityHigh, Categories: healthcare},
		{Text: "Funds may be held at the provider's discretion", Severity: domain.SeverityHigh, Categories: fintech},
		{Text: "Perpetual license to user content", Severity: domain.SeverityMedium, Categories: social},
	},
}
