package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"termslens/internal/domain"
	"termslens/internal/ports"
	"termslens/internal/services/sites"
)

// ErrScanInFlight is returned when an operation needs a site that is being scanned.
var ErrScanInFlight = errString("scan already in progress")

type errString string

func (e errString) Error() string { return string(e) }

// Store holds the latest assessment per domain. Reads are served from memory;
// the backend is consulted on first access and written on every change.
type Store struct {
	backend ports.RecordStore
	log     logrus.FieldLogger

	mu       sync.Mutex
	records  map[string]domain.Assessment
	inflight map[string]bool
	locks    map[string]*sync.Mutex
}

func New(backend ports.RecordStore, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{
		backend:  backend,
		log:      log,
		records:  map[string]domain.Assessment{},
		inflight: map[string]bool{},
		locks:    map[string]*sync.Mutex{},
	}
}

// Claim is the outcome of BeginScan.
type Claim struct {
	// Current is the record as it is now: the new Scanning record when
	// Started, otherwise the scan already in flight.
	Current domain.Assessment
	// Previous is the record before the claim, for Restore.
	Previous domain.Assessment
	Started  bool
}

func (s *Store) keyLock(d string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[d]
	if !ok {
		l = &sync.Mutex{}
		s.locks[d] = l
	}
	return l
}

// Get returns the record for site, seeding NotAnalyzed on first access. A
// backend failure is returned alongside the NotAnalyzed fallback.
func (s *Store) Get(ctx context.Context, site domain.SiteIdentity) (domain.Assessment, error) {
	if site.Domain == "" {
		return domain.Assessment{}, domain.NewError(domain.KindInvalidDomain, "empty domain")
	}
	s.mu.Lock()
	a, ok := s.records[site.Domain]
	s.mu.Unlock()
	if ok {
		return a, nil
	}

	loaded, err := s.load(ctx, site)
	if err != nil {
		return domain.NotAnalyzed(site), err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.records[site.Domain]; ok {
		return a, nil
	}
	s.records[site.Domain] = loaded
	return loaded, nil
}

func (s *Store) load(ctx context.Context, site domain.SiteIdentity) (domain.Assessment, error) {
	raw, found, err := s.backend.Get(ctx, site.Domain)
	if err != nil {
		return domain.Assessment{}, domain.Wrap(domain.KindCacheUnavailable, "record store read failed for "+site.Domain, err)
	}
	if !found {
		return domain.NotAnalyzed(site), nil
	}
	var a domain.Assessment
	if err := json.Unmarshal(raw, &a); err != nil {
		s.log.WithError(err).WithField("domain", site.Domain).Warn("discarding undecodable record")
		return domain.NotAnalyzed(site), nil
	}
	if a.Status == domain.StatusScanning {
		// nothing in this process owns that scan
		s.log.WithField("domain", site.Domain).Warn("found interrupted scan")
		return domain.Failed(site, "scan interrupted before completion"), nil
	}
	return a, nil
}

// Put replaces the record for a.Site.Domain. Memory is always updated; a
// backend failure is returned as CacheUnavailable.
func (s *Store) Put(ctx context.Context, a domain.Assessment) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("rejecting record: %w", err)
	}
	if a.Status == domain.StatusScanning {
		return errors.New("rejecting record: scanning records are only written by BeginScan")
	}
	return s.write(ctx, a)
}

// Restore puts back the record saved in a Claim, releasing the in-flight mark.
func (s *Store) Restore(ctx context.Context, previous domain.Assessment) error {
	if previous.Status == domain.StatusScanning {
		previous = domain.NotAnalyzed(previous.Site)
	}
	return s.write(ctx, previous)
}

func (s *Store) write(ctx context.Context, a domain.Assessment) error {
	l := s.keyLock(a.Site.Domain)
	l.Lock()
	defer l.Unlock()
	return s.writeLocked(ctx, a)
}

// writeLocked publishes a and releases the in-flight mark. The caller holds
// the key lock.
func (s *Store) writeLocked(ctx context.Context, a domain.Assessment) error {
	s.mu.Lock()
	s.records[a.Site.Domain] = a
	delete(s.inflight, a.Site.Domain)
	s.mu.Unlock()

	return s.persist(ctx, a)
}

func (s *Store) persist(ctx context.Context, a domain.Assessment) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := s.backend.Set(ctx, a.Site.Domain, raw); err != nil {
		return domain.Wrap(domain.KindCacheUnavailable, "record store write failed for "+a.Site.Domain, err)
	}
	return nil
}

// BeginScan marks site as Scanning unless a scan is already in flight, in
// which case the in-flight record is returned with Started false.
func (s *Store) BeginScan(ctx context.Context, site domain.SiteIdentity) (Claim, error) {
	cur, err := s.Get(ctx, site)
	if err != nil && !errors.Is(err, domain.ErrCacheUnavailable) {
		return Claim{}, err
	}
	if err != nil {
		s.log.WithError(err).WithField("domain", site.Domain).Warn("scanning without persisted record")
	}

	l := s.keyLock(site.Domain)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	if a, ok := s.records[site.Domain]; ok {
		cur = a
	}
	if s.inflight[site.Domain] {
		s.mu.Unlock()
		return Claim{Current: cur, Previous: cur}, nil
	}
	next := cur.Scanning()
	s.inflight[site.Domain] = true
	s.records[site.Domain] = next
	s.mu.Unlock()

	if err := s.persist(ctx, next); err != nil {
		s.log.WithError(err).WithField("domain", site.Domain).Warn("scan state not persisted")
	}
	return Claim{Current: next, Previous: cur, Started: true}, nil
}

// Invalidate resets site to NotAnalyzed. It refuses while a scan is in flight.
func (s *Store) Invalidate(ctx context.Context, site domain.SiteIdentity) (domain.Assessment, error) {
	l := s.keyLock(site.Domain)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	busy := s.inflight[site.Domain]
	cur := s.records[site.Domain]
	s.mu.Unlock()
	if busy {
		return cur, ErrScanInFlight
	}
	a := domain.NotAnalyzed(site)
	return a, s.writeLocked(ctx, a)
}

// InFlight reports whether a scan for d is running.
func (s *Store) InFlight(d string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight[d]
}

// List returns every known record ordered by domain. When the backend can
// enumerate its keys, records persisted by earlier runs are loaded too; a
// listing failure is returned with the records already in memory.
func (s *Store) List(ctx context.Context) ([]domain.Assessment, error) {
	var listErr error
	if lister, ok := s.backend.(ports.RecordLister); ok {
		keys, err := lister.Keys(ctx)
		if err != nil {
			listErr = domain.Wrap(domain.KindCacheUnavailable, "record store listing failed", err)
		}
		for _, k := range keys {
			if _, err := s.Get(ctx, domain.SiteIdentity{Domain: k, DisplayName: sites.DisplayName(k)}); err != nil {
				listErr = err
				break
			}
		}
	}

	s.mu.Lock()
	out := make([]domain.Assessment, 0, len(s.records))
	for _, a := range s.records {
		out = append(out, a)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Site.Domain < out[j].Site.Domain })
	return out, listErr
}

// CountByStatus reports how many records are in each status. Backends that
// count natively answer directly; otherwise the listed records are counted.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int, error) {
	counts := map[string]int{
		string(domain.StatusNotAnalyzed): 0,
		string(domain.StatusScanning):    0,
		string(domain.StatusAnalyzed):    0,
		string(domain.StatusError):       0,
	}
	if counter, ok := s.backend.(ports.StatusCounter); ok {
		stored, err := counter.CountByStatus(ctx)
		if err != nil {
			return nil, domain.Wrap(domain.KindCacheUnavailable, "record store count failed", err)
		}
		for status, n := range stored {
			counts[status] = n
		}
		return counts, nil
	}
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range all {
		counts[string(a.Status)]++
	}
	return counts, nil
}
