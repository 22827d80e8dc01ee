// Package taxonomy holds the lexicon used to spot legal documents on a page.
package taxonomy

import "strings"

// keywords are lowercase phrases; more specific phrases come first so that
// first-match order favours them.
var keywords = []string{
	"terms of service",
	"terms and conditions",
	"terms of use",
	"user agreement",
	"privacy policy",
	"legal",
	"terms",
	"conditions",
	"agreement",
	"policy",
}

// Keywords returns a copy of the lexicon.
func Keywords() []string {
	out := make([]string, len(keywords))
	copy(out, keywords)
	return out
}

// Compact strips whitespace from a keyword so it can be matched against URLs
// ("privacy policy" -> "privacypolicy").
func Compact(keyword string) string {
	return strings.Join(strings.Fields(keyword), "")
}

// Matcher matches text against a fixed keyword set.
type Matcher struct {
	words   []string
	compact []string
}

func NewMatcher(words []string) *Matcher {
	m := &Matcher{}
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		m.words = append(m.words, w)
		m.compact = append(m.compact, Compact(w))
	}
	return m
}

// Default is a Matcher over the built-in lexicon.
func Default() *Matcher { return NewMatcher(keywords) }

// InText reports whether any keyword is a substring of the lowercased text.
func (m *Matcher) InText(text string) bool {
	if text == "" {
		return false
	}
	text = strings.ToLower(text)
	for _, w := range m.words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// InURL reports whether any whitespace-stripped keyword is a substring of the
// lowercased href.
func (m *Matcher) InURL(href string) bool {
	if href == "" {
		return false
	}
	href = strings.ToLower(href)
	for _, w := range m.compact {
		if strings.Contains(href, w) {
			return true
		}
	}
	return false
}
