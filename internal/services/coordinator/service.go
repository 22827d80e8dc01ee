// Package coordinator is the long-lived context that owns the site records.
// It starts scans, runs classification and analysis, and answers questions
// against the cached result.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"termslens/internal/domain"
	"termslens/internal/messaging"
	"termslens/internal/ports"
	"termslens/internal/services/assistant"
	"termslens/internal/services/classifier"
	"termslens/internal/services/records"
	"termslens/internal/services/sites"
	"termslens/internal/workers/scanrunner"
)

// Queue accepts jobs for the background workers.
type Queue interface {
	Submit(ctx context.Context, job ports.ScanJob) error
}

// Recorder receives scan lifecycle events; *metrics.Metrics implements it.
type Recorder interface {
	ScanStarted()
	ScanRejected()
	ScanFinished(outcome string, elapsed time.Duration, score *int)
}

// Scan outcomes reported to the Recorder.
const (
	OutcomeAnalyzed    = "analyzed"
	OutcomeFailed      = "error"
	OutcomeUnavailable = "unavailable"
)

type Config struct {
	ScanTimeout     time.Duration
	AnalysisTimeout time.Duration
	AlertThreshold  int
}

type Service struct {
	cfg        Config
	records    *records.Store
	bus        *messaging.Bus
	classifier ports.Classifier
	analyzer   ports.Analyzer
	queue      Queue
	recorder   Recorder
	log        logrus.FieldLogger
	now        func() time.Time
}

func New(cfg Config, store *records.Store, bus *messaging.Bus, cls ports.Classifier, analyzer ports.Analyzer, queue Queue, recorder Recorder, log logrus.FieldLogger) *Service {
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = 15 * time.Second
	}
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = 10 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		cfg:        cfg,
		records:    store,
		bus:        bus,
		classifier: cls,
		analyzer:   analyzer,
		queue:      queue,
		recorder:   recorder,
		log:        log,
		now:        time.Now,
	}
}

// ScanInput describes a scan request. At most one of Page and Scan is set;
// with neither the agent loads URL itself.
type ScanInput struct {
	URL  string
	Hint domain.Category
	Page *domain.Page
	Scan *domain.ScanResult
	// Wait processes the scan before returning, bounded by ctx.
	Wait bool
}

// Outcome reports what a scan request did. Started is false when a scan for
// the site was already in flight; Record is then that scan's record.
type Outcome struct {
	Started bool
	// Done is set when Record is the finished result of this request.
	Done   bool
	Record domain.Assessment
}

// Current returns the site's record. A cache failure is returned together
// with the best record available.
func (s *Service) Current(ctx context.Context, rawURL string) (domain.Assessment, error) {
	site, err := sites.Identify(rawURL)
	if err != nil {
		return domain.Assessment{}, err
	}
	a, err := s.records.Get(ctx, site)
	if err != nil {
		s.log.WithError(err).WithField("domain", site.Domain).Warn("serving record without cache")
	}
	return a, err
}

// View wraps a record with its risk level and alert flag.
func (s *Service) View(a domain.Assessment) domain.View {
	return a.View(s.cfg.AlertThreshold)
}

// Rescan claims the site and starts a scan. Concurrent requests for the
// same site are rejected with the in-flight record, never queued.
func (s *Service) Rescan(ctx context.Context, in ScanInput) (Outcome, error) {
	site, err := sites.Identify(in.URL)
	if err != nil {
		return Outcome{}, err
	}
	claim, err := s.records.BeginScan(ctx, site)
	if err != nil {
		return Outcome{}, err
	}
	if !claim.Started {
		s.recorder.ScanRejected()
		s.log.WithField("domain", site.Domain).Debug("scan already in flight")
		return Outcome{Record: claim.Current}, nil
	}
	s.recorder.ScanStarted()

	job := ports.ScanJob{
		ID:          uuid.NewString(),
		Site:        site,
		URL:         in.URL,
		Page:        in.Page,
		Scan:        in.Scan,
		Hint:        in.Hint,
		Previous:    claim.Previous,
		SubmittedAt: s.now(),
	}

	if !in.Wait {
		if err := s.queue.Submit(ctx, job); err != nil {
			if rerr := s.records.Restore(context.WithoutCancel(ctx), claim.Previous); rerr != nil {
				s.log.WithError(rerr).WithField("domain", site.Domain).Warn("restore after rejected submit")
			}
			return Outcome{}, domain.Wrap(domain.KindScanUnavailable, "scan queue unavailable", err)
		}
		return Outcome{Started: true, Record: claim.Current}, nil
	}

	// The job owns the claim from here; a caller giving up must not
	// strand the site in Scanning.
	done := make(chan error, 1)
	go func() {
		done <- scanrunner.ProcessInline(context.WithoutCancel(ctx), s.log, s, job)
	}()
	select {
	case perr := <-done:
		a, gerr := s.records.Get(ctx, site)
		if perr != nil && errors.Is(perr, domain.ErrScanUnavailable) {
			return Outcome{Started: true, Done: true, Record: a}, perr
		}
		return Outcome{Started: true, Done: true, Record: a}, gerr
	case <-ctx.Done():
		return Outcome{Started: true, Record: claim.Current}, nil
	}
}

// Analyze publishes the analysis of a scan the agent already performed.
func (s *Service) Analyze(ctx context.Context, rawURL string, hint domain.Category, scan domain.ScanResult, wait bool) (Outcome, error) {
	return s.Rescan(ctx, ScanInput{URL: rawURL, Hint: hint, Scan: &scan, Wait: wait})
}

// Ask answers question against the site's current record.
func (s *Service) Ask(ctx context.Context, rawURL, question string) (messaging.AskResponse, error) {
	a, err := s.Current(ctx, rawURL)
	if err != nil && !errors.Is(err, domain.ErrCacheUnavailable) {
		return messaging.AskResponse{}, err
	}
	return messaging.AskResponse{
		Answer: assistant.Answer(a, question),
		Intent: string(assistant.Classify(question)),
	}, nil
}

// Invalidate resets the site to NotAnalyzed.
func (s *Service) Invalidate(ctx context.Context, rawURL string) (domain.Assessment, error) {
	site, err := sites.Identify(rawURL)
	if err != nil {
		return domain.Assessment{}, err
	}
	return s.records.Invalidate(ctx, site)
}

// Categories lists the presentation template of every category.
func (s *Service) Categories() []classifier.Template {
	return classifier.Templates()
}

// List returns every record the coordinator has seen or the store holds.
func (s *Service) List(ctx context.Context) ([]domain.Assessment, error) {
	all, err := s.records.List(ctx)
	if err != nil {
		s.log.WithError(err).Warn("listing records from memory only")
	}
	return all, err
}

// Process runs a claimed scan to completion: agent scan, classification,
// analysis, publish. A scan failure puts the previous record back; an
// analysis failure publishes an error record.
func (s *Service) Process(ctx context.Context, job ports.ScanJob) (err error) {
	start := s.now()
	log := s.log.WithFields(logrus.Fields{"domain": job.Site.Domain, "job": job.ID})
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err = domain.NewError(domain.KindAnalysisFailed, fmt.Sprintf("analysis panicked: %v", r))
		log.WithError(err).Error("scan job panicked")
		if !s.records.InFlight(job.Site.Domain) {
			return
		}
		if perr := s.records.Put(context.WithoutCancel(ctx), domain.Failed(job.Site, err.Error())); perr != nil && !errors.Is(perr, domain.ErrCacheUnavailable) {
			log.WithError(perr).Warn("error record not published")
		}
		s.recorder.ScanFinished(OutcomeFailed, s.now().Sub(start), nil)
	}()

	scan, err := s.scan(ctx, job)
	if err != nil {
		if rerr := s.records.Restore(ctx, job.Previous); rerr != nil {
			log.WithError(rerr).Warn("restore after scan failure")
		}
		s.recorder.ScanFinished(OutcomeUnavailable, s.now().Sub(start), nil)
		return err
	}

	cat := s.classifier.Classify(job.Site, job.Hint)
	actx, cancel := context.WithTimeout(ctx, s.cfg.AnalysisTimeout)
	a, err := s.analyzer.Analyze(actx, job.Site, scan, cat)
	cancel()
	if err != nil {
		failed := domain.Failed(job.Site, err.Error())
		failed.Category = cat
		if perr := s.records.Put(ctx, failed); perr != nil {
			log.WithError(perr).Warn("error record not persisted")
		}
		s.recorder.ScanFinished(OutcomeFailed, s.now().Sub(start), nil)
		return err
	}

	if err := s.records.Put(ctx, a); err != nil {
		if !errors.Is(err, domain.ErrCacheUnavailable) {
			_ = s.records.Put(ctx, domain.Failed(job.Site, "analysis produced an invalid record"))
			s.recorder.ScanFinished(OutcomeFailed, s.now().Sub(start), nil)
			return err
		}
		// the in-memory record is published even when the backend is down
		log.WithError(err).Warn("record not persisted")
	}
	s.recorder.ScanFinished(OutcomeAnalyzed, s.now().Sub(start), a.OverallRiskScore)
	log.WithFields(logrus.Fields{"category": cat, "hasTerms": a.HasTerms, "elapsed": s.now().Sub(start)}).Info("site analyzed")
	return nil
}

func (s *Service) scan(ctx context.Context, job ports.ScanJob) (domain.ScanResult, error) {
	if job.Scan != nil {
		return *job.Scan, nil
	}
	sctx, cancel := context.WithTimeout(ctx, s.cfg.ScanTimeout)
	defer cancel()
	var res domain.ScanResult
	err := s.bus.Call(sctx, messaging.TargetAgent, messaging.ActionScan, messaging.ScanRequest{URL: job.URL, Page: job.Page}, &res)
	if err != nil {
		reason := "scan of " + job.Site.Domain + " failed"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "scan of " + job.Site.Domain + " timed out"
		}
		return domain.ScanResult{}, domain.Wrap(domain.KindScanUnavailable, reason, err)
	}
	if res.SourceURL == "" {
		res.SourceURL = job.URL
	}
	return res, nil
}

type nopRecorder struct{}

func (nopRecorder) ScanStarted()                             {}
func (nopRecorder) ScanRejected()                            {}
func (nopRecorder) ScanFinished(string, time.Duration, *int) {}
