package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termslens/internal/logging"
	"termslens/internal/messaging"
)

func TestObserveMessage(t *testing.T) {
	m := New(false)
	m.ObserveMessage(messaging.TargetAgent, messaging.ActionScan, time.Millisecond, nil)
	m.ObserveMessage(messaging.TargetAgent, messaging.ActionScan, time.Millisecond, errors.New("x"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Messages.WithLabelValues("agent", "scan", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Messages.WithLabelValues("agent", "scan", "error")))
}

func TestScanFinished(t *testing.T) {
	m := New(false)
	score := 72
	m.ScanFinished("analyzed", time.Second, &score)
	m.ScanFinished("error", time.Second, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScanOutcomes.WithLabelValues("analyzed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScanOutcomes.WithLabelValues("error")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New(true)
	m.ScansStarted.Inc()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "termslens_scans_started_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}

type fakeCounter struct {
	counts map[string]int
	err    error
}

func (f fakeCounter) CountByStatus(context.Context) (map[string]int, error) { return f.counts, f.err }

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestWatchRecords(t *testing.T) {
	m := New(false)
	m.WatchRecords(fakeCounter{counts: map[string]int{"analyzed": 3, "error": 0}}, logging.Discard())
	body := scrape(t, m)
	assert.Contains(t, body, `termslens_records{status="analyzed"} 3`)
	assert.Contains(t, body, `termslens_records{status="error"} 0`)

	broken := New(false)
	broken.WatchRecords(fakeCounter{err: errors.New("db down")}, logging.Discard())
	assert.NotContains(t, scrape(t, broken), "termslens_records{")
}
