package domain

import (
	"fmt"
	"time"
)

// Core domain models shared by the scanner, classifier, analysis engine and
// record store. API responses serialize these directly.

// SiteIdentity names the site under analysis. Domain is the lowercased hostname.
type SiteIdentity struct {
	Domain      string `json:"domain"`
	DisplayName string `json:"displayName"`
}

// Link is an anchor found on a page. Href is the raw attribute value; URL is
// the resolved absolute address when the page collaborator knows it.
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
	URL  string `json:"url,omitempty"`
}

// Target returns the address a reader would follow.
func (l Link) Target() string {
	if l.URL != "" {
		return l.URL
	}
	return l.Href
}

// Page is what the page collaborator hands to the scanner.
type Page struct {
	Links []Link `json:"links"`
	Text  string `json:"text"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

type ScanResult struct {
	CandidateLinks     []Link `json:"candidateLinks"`
	PageHasTermsSignal bool   `json:"pageHasTermsSignal"`
	PageTitle          string `json:"pageTitle"`
	SourceURL          string `json:"sourceUrl"`
}

// HasTerms reports whether the scan found anything resembling a legal document.
func (s ScanResult) HasTerms() bool {
	return len(s.CandidateLinks) > 0 || s.PageHasTermsSignal
}

type Category string

const (
	CategorySaaS       Category = "saas"
	CategoryEcommerce  Category = "ecommerce"
	CategoryHealthcare Category = "healthcare"
	CategoryFintech    Category = "fintech"
	CategorySocial     Category = "social"
	CategoryDefault    Category = "default"
)

// Categories lists every category in classifier order.
var Categories = []Category{
	CategorySaaS, CategoryEcommerce, CategoryHealthcare, CategoryFintech, CategorySocial, CategoryDefault,
}

// ParseCategory maps a hint string to a Category. Empty or unknown hints map
// to "" which classifies as no hint.
func ParseCategory(s string) Category {
	for _, c := range Categories {
		if string(c) == s {
			return c
		}
	}
	return ""
}

type Status string

const (
	StatusNotAnalyzed Status = "not_analyzed"
	StatusScanning    Status = "scanning"
	StatusAnalyzed    Status = "analyzed"
	StatusError       Status = "error"
)

// Category score labels.
const (
	LabelPrivacy        = "Privacy & Data"
	LabelFinancial      = "Financial Terms"
	LabelLegal          = "Legal Disputes"
	LabelServiceChanges = "Service Changes"
)

type RiskCategoryScore struct {
	Label  string `json:"label"`
	Score  int    `json:"score"`
	Urgent bool   `json:"urgent"`
}

type ClauseType string

const (
	ClausePrivacy   ClauseType = "Privacy"
	ClauseLegal     ClauseType = "Legal"
	ClauseFinancial ClauseType = "Financial"
	ClauseData      ClauseType = "Data"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities, high first.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	default:
		return 2
	}
}

type FlaggedClause struct {
	Type     ClauseType `json:"type"`
	Severity Severity   `json:"severity"`
	Issue    string     `json:"issue"`
	Impact   string     `json:"impact"`
}

// Assessment is the complete risk-analysis output for one site. The record
// store owns it; everything else works on copies.
type Assessment struct {
	Site             SiteIdentity        `json:"site"`
	Category         Category            `json:"category,omitempty"`
	OverallRiskScore *int                `json:"overallRiskScore,omitempty"`
	CategoryScores   []RiskCategoryScore `json:"categoryScores"`
	FlaggedClauses   []FlaggedClause     `json:"flaggedClauses"`
	RedFlags         []string            `json:"redFlags"`
	HasTerms         bool                `json:"hasTerms"`
	TermsURL         string              `json:"termsUrl,omitempty"`
	Status           Status              `json:"status"`
	AnalyzedAt       *time.Time          `json:"analyzedAt,omitempty"`
	Confidence       float64             `json:"confidence"`
	Reason           string              `json:"reason,omitempty"`
}

// NotAnalyzed returns the default record for a site nobody has scanned yet.
func NotAnalyzed(site SiteIdentity) Assessment {
	return Assessment{
		Site:           site,
		CategoryScores: []RiskCategoryScore{},
		FlaggedClauses: []FlaggedClause{},
		RedFlags:       []string{},
		Status:         StatusNotAnalyzed,
	}
}

// Scanning returns a copy of a marked as in flight. The previous result stays
// visible so readers keep rendering it while the scan runs.
func (a Assessment) Scanning() Assessment {
	a.Status = StatusScanning
	a.Reason = ""
	return a
}

// Failed returns the error record for a site whose analysis did not complete.
func Failed(site SiteIdentity, reason string) Assessment {
	a := NotAnalyzed(site)
	a.Status = StatusError
	a.Reason = reason
	return a
}

// Score returns the overall score and whether it is defined.
func (a Assessment) Score() (int, bool) {
	if a.OverallRiskScore == nil {
		return 0, false
	}
	return *a.OverallRiskScore, true
}

// RiskLevel is the short label shown next to the site name.
func (a Assessment) RiskLevel() string {
	switch a.Status {
	case StatusNotAnalyzed:
		return "Not Analyzed"
	case StatusScanning:
		return "Analyzing"
	case StatusError:
		return "Analysis Failed"
	}
	score, ok := a.Score()
	switch {
	case !ok || !a.HasTerms:
		return "No Terms Found"
	case score > 80:
		return "High Risk"
	case score > 50:
		return "Medium Risk"
	case score > 0:
		return "Low Risk"
	default:
		return "No Terms Found"
	}
}

// Validate checks the record invariants enforced on every write.
func (a Assessment) Validate() error {
	if a.Site.Domain == "" {
		return NewError(KindInvalidDomain, "assessment has no domain")
	}
	score, hasScore := a.Score()
	switch a.Status {
	case StatusAnalyzed:
		if a.AnalyzedAt == nil {
			return fmt.Errorf("analyzed record for %s has no analysis time", a.Site.Domain)
		}
		if a.HasTerms != hasScore {
			return fmt.Errorf("analyzed record for %s: score defined=%t but hasTerms=%t", a.Site.Domain, hasScore, a.HasTerms)
		}
	case StatusError:
		if a.Reason == "" {
			return fmt.Errorf("error record for %s has no reason", a.Site.Domain)
		}
		if hasScore {
			return fmt.Errorf("error record for %s carries a score", a.Site.Domain)
		}
	case StatusNotAnalyzed:
		if hasScore {
			return fmt.Errorf("unanalyzed record for %s carries a score", a.Site.Domain)
		}
	case StatusScanning:
		// a rescan keeps the last published result visible
	default:
		return fmt.Errorf("unknown status %q", a.Status)
	}
	if hasScore && (score < 0 || score > 100) {
		return fmt.Errorf("score %d out of range", score)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range", a.Confidence)
	}
	return nil
}

// View is an assessment as rendering surfaces receive it.
type View struct {
	Assessment
	RiskLevel string `json:"riskLevel"`
	// Alert is set for analyzed records scoring at or above the alert threshold.
	Alert bool `json:"alert"`
}

func (a Assessment) View(alertThreshold int) View {
	v := View{Assessment: a, RiskLevel: a.RiskLevel()}
	if score, ok := a.Score(); ok && a.Status == StatusAnalyzed {
		v.Alert = score >= alertThreshold
	}
	return v
}
