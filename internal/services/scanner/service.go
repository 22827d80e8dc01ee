package scanner

import (
	"strings"

	"termslens/internal/domain"
	"termslens/internal/taxonomy"
)

// Service finds candidate legal-document links on a page. It holds no state
// besides its keyword matcher and is safe for concurrent use.
type Service struct {
	matcher *taxonomy.Matcher
}

func New(m *taxonomy.Matcher) *Service {
	if m == nil {
		m = taxonomy.Default()
	}
	return &Service{matcher: m}
}

// Scan runs the default matcher over page.
func Scan(page domain.Page) domain.ScanResult {
	return New(nil).Scan(page)
}

// Scan is pure: identical pages give identical results. Links keep page order
// and are not de-duplicated.
func (s *Service) Scan(page domain.Page) domain.ScanResult {
	res := domain.ScanResult{
		CandidateLinks:     []domain.Link{},
		PageHasTermsSignal: s.matcher.InText(page.Text),
		PageTitle:          page.Title,
		SourceURL:          page.URL,
	}
	for _, l := range page.Links {
		if !s.matcher.InText(l.Text) && !s.matcher.InURL(l.Href) {
			continue
		}
		res.CandidateLinks = append(res.CandidateLinks, domain.Link{
			Text: strings.TrimSpace(l.Text),
			Href: l.Target(),
		})
	}
	return res
}
