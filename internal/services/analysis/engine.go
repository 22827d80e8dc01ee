package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"termslens/internal/domain"
)

// DefaultConfidence is reported on every assessment. It is advisory only.
const DefaultConfidence = 0.94

// Engine produces assessments from scan results. It stands in for a real
// analysis backend; Latency simulates the round trip.
type Engine struct {
	scorer     Scorer
	catalog    Catalog
	confidence float64
	latency    time.Duration
	now        func() time.Time
	log        logrus.FieldLogger
}

type Option func(*Engine)

func WithScorer(s Scorer) Option            { return func(e *Engine) { e.scorer = s } }
func WithCatalog(c Catalog) Option          { return func(e *Engine) { e.catalog = c } }
func WithLatency(d time.Duration) Option    { return func(e *Engine) { e.latency = d } }
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = l }
}

func WithConfidence(c float64) Option {
	return func(e *Engine) { e.confidence = clampFloat(c) }
}

func New(opts ...Option) *Engine {
	e := &Engine{
		scorer:     NewTimeSeededScorer(),
		catalog:    DefaultCatalog,
		confidence: DefaultConfidence,
		now:        time.Now,
		log:        logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Analyze builds the complete assessment before returning it; callers never
// see a half-filled record. Failures, including a panicking scorer and an
// expired context, come back as AnalysisFailed.
func (e *Engine) Analyze(ctx context.Context, site domain.SiteIdentity, scan domain.ScanResult, cat domain.Category) (out domain.Assessment, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = domain.Assessment{}
			err = domain.NewError(domain.KindAnalysisFailed, fmt.Sprintf("analysis of %s panicked: %v", site.Domain, r))
		}
	}()

	if err := e.wait(ctx); err != nil {
		return domain.Assessment{}, err
	}

	a := domain.NotAnalyzed(site)
	a.Category = cat
	a.Confidence = e.confidence
	now := e.now().UTC()
	a.AnalyzedAt = &now
	a.Status = domain.StatusAnalyzed

	if !scan.HasTerms() {
		e.log.WithField("domain", site.Domain).Debug("no terms found")
		return a, nil
	}

	a.HasTerms = true
	a.TermsURL = scan.SourceURL
	if len(scan.CandidateLinks) > 0 {
		a.TermsURL = scan.CandidateLinks[0].Href
	}
	score := clamp(e.scorer.Score(Baseline(cat)), 0, 100)
	a.OverallRiskScore = &score
	a.CategoryScores = CategoryScores(cat, score)
	a.FlaggedClauses, a.RedFlags = e.catalog.Select(cat, score)

	if err := ctx.Err(); err != nil {
		return domain.Assessment{}, contextFailure(site, err)
	}
	if err := a.Validate(); err != nil {
		return domain.Assessment{}, domain.Wrap(domain.KindAnalysisFailed, "analysis produced an invalid record", err)
	}
	e.log.WithFields(logrus.Fields{
		"domain":   site.Domain,
		"category": cat,
		"score":    score,
		"clauses":  len(a.FlaggedClauses),
	}).Debug("analysis complete")
	return a, nil
}

func (e *Engine) wait(ctx context.Context) error {
	if e.latency <= 0 {
		if err := ctx.Err(); err != nil {
			return contextFailure(domain.SiteIdentity{}, err)
		}
		return nil
	}
	t := time.NewTimer(e.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return contextFailure(domain.SiteIdentity{}, ctx.Err())
	case <-t.C:
		return nil
	}
}

func contextFailure(site domain.SiteIdentity, err error) error {
	reason := "analysis cancelled"
	if errors.Is(err, context.DeadlineExceeded) {
		reason = "analysis timed out"
	}
	if site.Domain != "" {
		reason += " for " + site.Domain
	}
	return domain.Wrap(domain.KindAnalysisFailed, reason, err)
}

func clampFloat(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
