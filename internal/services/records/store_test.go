package records

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termslens/internal/adapters/memory"
	"termslens/internal/domain"
)

var site = domain.SiteIdentity{Domain: "example.com", DisplayName: "EXAMPLE"}

// flakyStore fails every call while broken is set.
type flakyStore struct {
	*memory.Store
	mu     sync.Mutex
	broken bool
}

func (f *flakyStore) setBroken(b bool) {
	f.mu.Lock()
	f.broken = b
	f.mu.Unlock()
}

func (f *flakyStore) isBroken() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.broken
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.isBroken() {
		return nil, false, errors.New("disk on fire")
	}
	return f.Store.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	if f.isBroken() {
		return errors.New("disk on fire")
	}
	return f.Store.Set(ctx, key, value)
}

func analyzed(score int) domain.Assessment {
	now := time.Now().UTC()
	a := domain.NotAnalyzed(site)
	a.Status = domain.StatusAnalyzed
	a.HasTerms = true
	a.OverallRiskScore = &score
	a.AnalyzedAt = &now
	return a
}

func TestGetSeedsNotAnalyzed(t *testing.T) {
	backend := memory.New()
	s := New(backend, nil)
	a, err := s.Get(context.Background(), site)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNotAnalyzed, a.Status)
	assert.Equal(t, site, a.Site)
	assert.Equal(t, 0, backend.Len(), "seeding must not write")

	again, err := s.Get(context.Background(), site)
	require.NoError(t, err)
	assert.Equal(t, a, again)
}

func TestPutThenGet(t *testing.T) {
	backend := memory.New()
	s := New(backend, nil)
	require.NoError(t, s.Put(context.Background(), analyzed(70)))

	got, err := s.Get(context.Background(), site)
	require.NoError(t, err)
	score, ok := got.Score()
	require.True(t, ok)
	assert.Equal(t, 70, score)

	// a fresh store reads the persisted copy
	fresh := New(backend, nil)
	got, err = fresh.Get(context.Background(), site)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAnalyzed, got.Status)
	require.NotNil(t, got.AnalyzedAt)
}

func TestPutRejectsInvalid(t *testing.T) {
	s := New(memory.New(), nil)
	bad := analyzed(70)
	bad.AnalyzedAt = nil
	assert.Error(t, s.Put(context.Background(), bad))
	assert.Error(t, s.Put(context.Background(), domain.NotAnalyzed(site).Scanning()))
}

func TestCacheInvariant(t *testing.T) {
	s := New(memory.New(), nil)
	require.NoError(t, s.Put(context.Background(), analyzed(55)))
	a, err := s.Get(context.Background(), site)
	require.NoError(t, err)
	if a.Status == domain.StatusAnalyzed && a.HasTerms {
		assert.NotNil(t, a.AnalyzedAt)
		assert.NotNil(t, a.OverallRiskScore)
	}
}

func TestBeginScanSingleFlight(t *testing.T) {
	s := New(memory.New(), nil)
	ctx := context.Background()

	first, err := s.BeginScan(ctx, site)
	require.NoError(t, err)
	assert.True(t, first.Started)
	assert.Equal(t, domain.StatusScanning, first.Current.Status)
	assert.Equal(t, domain.StatusNotAnalyzed, first.Previous.Status)
	assert.True(t, s.InFlight(site.Domain))

	second, err := s.BeginScan(ctx, site)
	require.NoError(t, err)
	assert.False(t, second.Started)
	assert.Equal(t, domain.StatusScanning, second.Current.Status)

	require.NoError(t, s.Put(ctx, analyzed(60)))
	assert.False(t, s.InFlight(site.Domain))

	third, err := s.BeginScan(ctx, site)
	require.NoError(t, err)
	assert.True(t, third.Started)
	assert.Equal(t, domain.StatusAnalyzed, third.Previous.Status)
}

func TestBeginScanConcurrent(t *testing.T) {
	s := New(memory.New(), nil)
	var wg sync.WaitGroup
	var mu sync.Mutex
	started := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := s.BeginScan(context.Background(), site)
			require.NoError(t, err)
			if c.Started {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, started)
}

func TestRestoreReleasesClaim(t *testing.T) {
	s := New(memory.New(), nil)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, analyzed(42)))
	c, err := s.BeginScan(ctx, site)
	require.NoError(t, err)
	require.NoError(t, s.Restore(ctx, c.Previous))

	a, err := s.Get(ctx, site)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAnalyzed, a.Status)
	assert.False(t, s.InFlight(site.Domain))
}

func TestInvalidate(t *testing.T) {
	s := New(memory.New(), nil)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, analyzed(42)))

	a, err := s.Invalidate(ctx, site)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNotAnalyzed, a.Status)

	_, err = s.BeginScan(ctx, site)
	require.NoError(t, err)
	_, err = s.Invalidate(ctx, site)
	assert.ErrorIs(t, err, ErrScanInFlight)
}

func TestInvalidateRacingBeginScanKeepsClaim(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		s := New(memory.New(), nil)
		require.NoError(t, s.Put(ctx, analyzed(42)))

		// queue both behind the key lock so they contend for it
		l := s.keyLock(site.Domain)
		l.Lock()
		var wg sync.WaitGroup
		var claim Claim
		var invErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			var err error
			claim, err = s.BeginScan(ctx, site)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, invErr = s.Invalidate(ctx, site)
		}()
		time.Sleep(time.Millisecond)
		l.Unlock()
		wg.Wait()

		require.True(t, claim.Started)
		if invErr != nil {
			assert.ErrorIs(t, invErr, ErrScanInFlight)
		}
		assert.True(t, s.InFlight(site.Domain))
		cur, err := s.Get(ctx, site)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusScanning, cur.Status)

		second, err := s.BeginScan(ctx, site)
		require.NoError(t, err)
		assert.False(t, second.Started)
	}
}

func TestBackendFailureFallsBack(t *testing.T) {
	backend := &flakyStore{Store: memory.New(), broken: true}
	s := New(backend, nil)
	ctx := context.Background()

	a, err := s.Get(ctx, site)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCacheUnavailable))
	assert.Equal(t, domain.StatusNotAnalyzed, a.Status)

	err = s.Put(ctx, analyzed(30))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCacheUnavailable))

	// memory still has the latest value
	got, err := s.Get(ctx, site)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAnalyzed, got.Status)

	backend.setBroken(false)
	require.NoError(t, s.Put(ctx, analyzed(31)))
}

func TestInterruptedScanBecomesError(t *testing.T) {
	backend := memory.New()
	raw, err := json.Marshal(domain.NotAnalyzed(site).Scanning())
	require.NoError(t, err)
	require.NoError(t, backend.Set(context.Background(), site.Domain, raw))

	a, err := New(backend, nil).Get(context.Background(), site)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, a.Status)
	assert.Contains(t, a.Reason, "interrupted")
}

func TestUndecodableRecordIsReseeded(t *testing.T) {
	backend := memory.New()
	require.NoError(t, backend.Set(context.Background(), site.Domain, []byte("{not json")))
	a, err := New(backend, nil).Get(context.Background(), site)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNotAnalyzed, a.Status)
}

func TestList(t *testing.T) {
	s := New(memory.New(), nil)
	ctx := context.Background()
	_, _ = s.Get(ctx, domain.SiteIdentity{Domain: "b.com"})
	_, _ = s.Get(ctx, domain.SiteIdentity{Domain: "a.com"})
	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a.com", list[0].Site.Domain)
}

func TestListIncludesPersistedRecords(t *testing.T) {
	backend := memory.New()
	ctx := context.Background()
	require.NoError(t, New(backend, nil).Put(ctx, analyzed(64)))

	restarted := New(backend, nil)
	_, _ = restarted.Get(ctx, domain.SiteIdentity{Domain: "fresh.org", DisplayName: "FRESH"})
	list, err := restarted.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, site, list[0].Site)
	assert.Equal(t, domain.StatusAnalyzed, list[0].Status)
	assert.Equal(t, "fresh.org", list[1].Site.Domain)
}

func TestListReportsBackendFailure(t *testing.T) {
	backend := &flakyStore{Store: memory.New()}
	ctx := context.Background()
	s := New(backend, nil)
	require.NoError(t, s.Put(ctx, analyzed(64)))

	backend.setBroken(true)
	list, err := New(backend, nil).List(ctx)
	assert.Empty(t, list)
	assert.True(t, errors.Is(err, domain.ErrCacheUnavailable))
}

type countingStore struct {
	*memory.Store
}

func (countingStore) CountByStatus(context.Context) (map[string]int, error) {
	return map[string]int{"analyzed": 7}, nil
}

func TestCountByStatus(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New(), nil)
	require.NoError(t, s.Put(ctx, analyzed(64)))
	_, _ = s.Get(ctx, domain.SiteIdentity{Domain: "other.com"})
	_, err := s.BeginScan(ctx, domain.SiteIdentity{Domain: "busy.com"})
	require.NoError(t, err)

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"not_analyzed": 1, "scanning": 1, "analyzed": 1, "error": 0}, counts)

	native, err := New(countingStore{memory.New()}, nil).CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, native["analyzed"])
	assert.Equal(t, 0, native["error"])
}

func TestGetRejectsEmptyDomain(t *testing.T) {
	_, err := New(memory.New(), nil).Get(context.Background(), domain.SiteIdentity{})
	assert.True(t, errors.Is(err, domain.ErrInvalidDomain))
}
