package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termslens/internal/domain"
	"termslens/internal/taxonomy"
)

func TestScanEmptyPage(t *testing.T) {
	res := Scan(domain.Page{Title: "t", URL: "u"})
	require.NotNil(t, res.CandidateLinks)
	assert.Empty(t, res.CandidateLinks)
	assert.False(t, res.PageHasTermsSignal)
	assert.Equal(t, "t", res.PageTitle)
	assert.Equal(t, "u", res.SourceURL)
	assert.False(t, res.HasTerms())
}

func TestScanMatchesTextAndHref(t *testing.T) {
	page := domain.Page{
		Links: []domain.Link{
			{Text: "  Privacy Policy ", Href: "/privacy", URL: "https://ex.com/privacy"},
			{Text: "Home", Href: "/"},
			{Text: "Read more", Href: "/TermsOfService"},
			{Text: "Blog", Href: "/blog/policy-updates"},
			{Text: "Careers", Href: "/jobs"},
		},
		Text:  "Welcome",
		Title: "Example",
		URL:   "https://ex.com/",
	}
	res := Scan(page)
	require.Len(t, res.CandidateLinks, 3)
	assert.Equal(t, domain.Link{Text: "Privacy Policy", Href: "https://ex.com/privacy"}, res.CandidateLinks[0])
	assert.Equal(t, "/TermsOfService", res.CandidateLinks[1].Href)
	assert.Equal(t, "/blog/policy-updates", res.CandidateLinks[2].Href)
	assert.False(t, res.PageHasTermsSignal)
	assert.True(t, res.HasTerms())
}

func TestScanHrefMatchUsesCompactedKeyword(t *testing.T) {
	// "user agreement" only matches an href once its space is removed
	res := New(taxonomy.NewMatcher([]string{"user agreement"})).Scan(domain.Page{
		Links: []domain.Link{
			{Text: "x", Href: "/useragreement"},
			{Text: "x", Href: "/user agreement"},
			{Text: "x", Href: "/user-agreement"},
		},
	})
	require.Len(t, res.CandidateLinks, 1)
	assert.Equal(t, "/useragreement", res.CandidateLinks[0].Href)
}

func TestScanPageSignal(t *testing.T) {
	res := Scan(domain.Page{Text: "By continuing you accept our TERMS AND CONDITIONS."})
	assert.True(t, res.PageHasTermsSignal)
	assert.Empty(t, res.CandidateLinks)
	assert.True(t, res.HasTerms())
}

func TestScanKeepsDuplicates(t *testing.T) {
	link := domain.Link{Text: "Terms", Href: "/terms"}
	res := Scan(domain.Page{Links: []domain.Link{link, link}})
	assert.Len(t, res.CandidateLinks, 2)
}

func TestScanIsIdempotent(t *testing.T) {
	page := domain.Page{
		Links: []domain.Link{{Text: "Legal", Href: "/legal"}, {Text: "About", Href: "/about"}},
		Text:  "See the user agreement",
	}
	assert.Equal(t, Scan(page), Scan(page))
}
