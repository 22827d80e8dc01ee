package ports

import (
	"context"

	"termslens/internal/domain"
)

// PageSource loads a page's links, text and title.
type PageSource interface {
	Fetch(ctx context.Context, url string) (domain.Page, error)
}

// Scanner extracts candidate legal links from a page.
type Scanner interface {
	Scan(page domain.Page) domain.ScanResult
}

// Classifier assigns a site its category.
type Classifier interface {
	Classify(site domain.SiteIdentity, hint domain.Category) domain.Category
}

// Analyzer turns a scan into an assessment.
type Analyzer interface {
	Analyze(ctx context.Context, site domain.SiteIdentity, scan domain.ScanResult, cat domain.Category) (domain.Assessment, error)
}
