package ports

import (
	"time"

	"termslens/internal/domain"
)

// ScanJob is one queued analysis. Exactly one of Page or Scan may be set; when
// neither is, the agent fetches URL itself.
type ScanJob struct {
	ID          string
	Site        domain.SiteIdentity
	URL         string
	Page        *domain.Page
	Scan        *domain.ScanResult
	Hint        domain.Category
	Previous    domain.Assessment
	SubmittedAt time.Time
}
