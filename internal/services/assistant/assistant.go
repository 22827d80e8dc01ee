// Package assistant answers follow-up questions about a completed assessment.
// It is a fixed rule table, so identical inputs always produce identical answers.
package assistant

import (
	"fmt"
	"strings"

	"termslens/internal/domain"
	"termslens/internal/services/classifier"
)

type Intent string

const (
	IntentDeleteAccount Intent = "delete_account"
	IntentRefund        Intent = "refund"
	IntentPrivacy       Intent = "privacy"
	IntentFallback      Intent = "fallback"
)

// Rule selects an answer when Match accepts the lowercased question.
type Rule struct {
	Intent Intent
	Match  func(q string) bool
	Answer func(a domain.Assessment) string
}

func containsAll(words ...string) func(string) bool {
	return func(q string) bool {
		for _, w := range words {
			if !strings.Contains(q, w) {
				return false
			}
		}
		return true
	}
}

func containsAny(words ...string) func(string) bool {
	return func(q string) bool {
		for _, w := range words {
			if strings.Contains(q, w) {
				return true
			}
		}
		return false
	}
}

// DefaultRules is evaluated in order; the first match wins.
var DefaultRules = []Rule{
	{Intent: IntentDeleteAccount, Match: containsAll("delete", "account"), Answer: deleteAccountAnswer},
	{Intent: IntentRefund, Match: containsAny("refund", "cancel"), Answer: refundAnswer},
	{Intent: IntentPrivacy, Match: containsAny("privacy", "data"), Answer: privacyAnswer},
}

// Classify returns the intent a question maps to.
func Classify(question string) Intent {
	q := strings.ToLower(question)
	for _, r := range DefaultRules {
		if r.Match(q) {
			return r.Intent
		}
	}
	return IntentFallback
}

// Answer responds to a question about a.
func Answer(a domain.Assessment, question string) string {
	if a.Status != domain.StatusAnalyzed {
		return notReadyAnswer(a)
	}
	q := strings.ToLower(question)
	for _, r := range DefaultRules {
		if r.Match(q) {
			return r.Answer(a)
		}
	}
	return fallbackAnswer
}

func label(a domain.Assessment) string {
	return classifier.TemplateFor(a.Category).Label
}

func deleteAccountAnswer(a domain.Assessment) string {
	return fmt.Sprintf(`**Account Deletion Scenario Analysis:**

Based on %s's terms (%s):

- **Right to Delete:** You can request account deletion
- **Data Retention:** Some data may be retained for legal compliance (up to 7 years)
- **Content Ownership:** Posted content may remain on the platform
- **Processing Time:** 30-90 days for complete deletion

**Risk Assessment:** Medium - Some data persistence concerns`, a.Site.DisplayName, label(a))
}

const refundText = `**Refund Policy Analysis:**

- **Cancellation Window:** 14 days from purchase
- **Refund Eligibility:** Partial refunds for unused services
- **Auto-renewal:** Cancellation must be done 24 hours before renewal
- **Restrictions:** No refunds for premium features after 7 days of use

**Risk Level:** High - Limited refund options`

func refundAnswer(domain.Assessment) string { return refundText }

func privacyAnswer(a domain.Assessment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Privacy Analysis:**\n\nKey concerns with %s's data practices (%s):\n", a.Site.DisplayName, label(a))
	high, medium := 0, 0
	for _, c := range a.FlaggedClauses {
		if c.Type != domain.ClausePrivacy && c.Type != domain.ClauseData {
			continue
		}
		switch c.Severity {
		case domain.SeverityHigh:
			if high == 0 {
				b.WriteString("\n**High Risk Areas:**\n")
			}
			high++
		case domain.SeverityMedium:
			if medium == 0 {
				b.WriteString("\n**Medium Risk:**\n")
			}
			medium++
		default:
			continue
		}
		fmt.Fprintf(&b, "- %s (%s)\n", c.Issue, c.Impact)
	}
	if high+medium == 0 {
		b.WriteString("\nNo significant privacy clauses were flagged.\n")
	}
	for _, cs := range a.CategoryScores {
		if cs.Label == domain.LabelPrivacy {
			fmt.Fprintf(&b, "\n**%s score:** %d/100", cs.Label, cs.Score)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

const fallbackAnswer = `I can help you understand specific aspects of the terms. Try asking about:

- Account deletion procedures
- Refund and cancellation policies
- Data privacy practices
- Arbitration clauses
- Liability limitations`

func notReadyAnswer(a domain.Assessment) string {
	switch a.Status {
	case domain.StatusScanning:
		return fmt.Sprintf("%s is being analyzed right now. Ask again once the scan completes.", a.Site.DisplayName)
	case domain.StatusError:
		return fmt.Sprintf("The last analysis of %s failed (%s). Run a new scan to ask about its terms.", a.Site.DisplayName, a.Reason)
	default:
		return fmt.Sprintf("%s has not been analyzed yet. Run a scan first.", a.Site.DisplayName)
	}
}

// RiskBand is the coarse label used in summaries.
func RiskBand(score int) string {
	switch {
	case score > 70:
		return "High"
	case score > 40:
		return "Medium"
	default:
		return "Low"
	}
}

// Summarize is the opening message shown once an analysis completes.
func Summarize(a domain.Assessment) string {
	if a.Status != domain.StatusAnalyzed {
		return notReadyAnswer(a)
	}
	score, ok := a.Score()
	if !ok {
		return fmt.Sprintf("I analyzed %s but found no Terms & Conditions or privacy policy to review.", a.Site.DisplayName)
	}
	privacy, arbitration := 0, 0
	for _, c := range a.FlaggedClauses {
		switch c.Type {
		case domain.ClausePrivacy, domain.ClauseData:
			privacy++
		case domain.ClauseLegal:
			if strings.Contains(strings.ToLower(c.Issue), "arbitration") {
				arbitration++
			}
		}
	}
	return fmt.Sprintf(`I've completed a comprehensive analysis of %s's Terms & Conditions. Here's what I found:

**Risk Score: %d/100**

**Key Findings:**
- %d potential red flags identified
- %d privacy-related clauses
- %d arbitration clauses
- Risk level: %s

Ask me specific questions about the terms.`, a.Site.DisplayName, score, len(a.RedFlags), privacy, arbitration, RiskBand(score))
}
