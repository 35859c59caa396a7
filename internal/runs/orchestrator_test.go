package runs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/atspilot/atspilot/internal/backend"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testInterval = 5 * time.Millisecond

// settle is long enough for several poll ticks to fire at testInterval.
const settle = 12 * testInterval

// fakeBackend scripts the creation response and a sequence of poll
// responses; the last poll response repeats once the script is exhausted.
type fakeBackend struct {
	t *testing.T

	createBody string
	pollBodies []string

	creates int32
	polls   int32

	mu      sync.Mutex
	holders []chan struct{}
	hold    bool
}

func (f *fakeBackend) server() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if r.Method == http.MethodPost {
			atomic.AddInt32(&f.creates, 1)
			w.Write([]byte(f.createBody))
			return
		}

		f.mu.Lock()
		if f.hold {
			release := make(chan struct{})
			f.holders = append(f.holders, release)
			f.mu.Unlock()
			<-release
		} else {
			f.mu.Unlock()
		}

		n := int(atomic.AddInt32(&f.polls, 1))
		body := f.pollBodies[len(f.pollBodies)-1]
		if n <= len(f.pollBodies) {
			body = f.pollBodies[n-1]
		}
		w.Write([]byte(body))
	}))
}

// holdPolls makes subsequent poll requests block until releasePolls.
func (f *fakeBackend) holdPolls() {
	f.mu.Lock()
	f.hold = true
	f.mu.Unlock()
}

func (f *fakeBackend) releasePolls() {
	f.mu.Lock()
	f.hold = false
	holders := f.holders
	f.holders = nil
	f.mu.Unlock()

	for _, release := range holders {
		close(release)
	}
}

// recorder captures collaborator events for assertions.
type recorder struct {
	mu          sync.Mutex
	navigations []string
	results     []*backend.Run
	failures    []string
	busy        []bool

	terminal chan struct{}
}

func newRecorder() *recorder {
	return &recorder{terminal: make(chan struct{}, 16)}
}

func (r *recorder) events() Events {
	return Events{
		NavigateToResults: func(runID string, _ *backend.Run) {
			r.mu.Lock()
			r.navigations = append(r.navigations, runID)
			r.mu.Unlock()
			r.terminal <- struct{}{}
		},
		ResultReady: func(run *backend.Run) {
			r.mu.Lock()
			r.results = append(r.results, run)
			r.mu.Unlock()
			r.terminal <- struct{}{}
		},
		Failed: func(message string) {
			r.mu.Lock()
			r.failures = append(r.failures, message)
			r.mu.Unlock()
			r.terminal <- struct{}{}
		},
		BusyChanged: func(busy bool) {
			r.mu.Lock()
			r.busy = append(r.busy, busy)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) waitTerminal(t *testing.T) {
	t.Helper()

	select {
	case <-r.terminal:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a terminal event")
	}
}

func (r *recorder) snapshot() (navigations, failures []string, results int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.navigations...), append([]string(nil), r.failures...), len(r.results)
}

func payload() *backend.RunPayload {
	return &backend.RunPayload{FileName: "resume.pdf", File: strings.NewReader("%PDF-1.4")}
}

func TestHappyPathScan(t *testing.T) {
	fake := &fakeBackend{
		t:          t,
		createBody: `{"runId":"r1"}`,
		pollBodies: []string{`{"status":"running"}`, `{"status":"done","result":{"jobs":[]}}`},
	}
	srv := fake.server()
	defer srv.Close()

	rec := newRecorder()
	o := New(backend.New(srv.URL, zap.NewNop()), rec.events(), zap.NewNop(), WithPollInterval(testInterval))
	defer o.Close()

	o.StartRun(context.Background(), backend.ModeScanJobs, payload())
	rec.waitTerminal(t)

	navigations, failures, results := rec.snapshot()
	require.Equal(t, []string{"r1"}, navigations)
	require.Empty(t, failures)
	require.Zero(t, results)

	// The timer must be disarmed: no further status requests after the
	// terminal tick.
	polled := atomic.LoadInt32(&fake.polls)
	time.Sleep(settle)
	require.Equal(t, polled, atomic.LoadInt32(&fake.polls))

	_, _, active := o.Active()
	require.False(t, active)
}

func TestJDMatchDeliversResult(t *testing.T) {
	fake := &fakeBackend{
		t:          t,
		createBody: `{"run":{"id":"m7"}}`,
		pollBodies: []string{`{"run":{"status":"completed","result":{"score":82}}}`},
	}
	srv := fake.server()
	defer srv.Close()

	rec := newRecorder()
	o := New(backend.New(srv.URL, zap.NewNop()), rec.events(), zap.NewNop(), WithPollInterval(testInterval))
	defer o.Close()

	o.StartRun(context.Background(), backend.ModeJDMatch, payload())
	rec.waitTerminal(t)

	navigations, failures, results := rec.snapshot()
	require.Empty(t, navigations)
	require.Empty(t, failures)
	require.Equal(t, 1, results)

	rec.mu.Lock()
	run := rec.results[0]
	rec.mu.Unlock()
	require.Equal(t, backend.StatusCompleted, run.Status)

	result, ok := run.Raw["result"].(map[string]any)
	require.True(t, ok)
	require.NotNil(t, result["score"], "the raw result payload must pass through unmodified")
}

func TestMissingRunID(t *testing.T) {
	fake := &fakeBackend{t: t, createBody: `{}`, pollBodies: []string{`{}`}}
	srv := fake.server()
	defer srv.Close()

	rec := newRecorder()
	o := New(backend.New(srv.URL, zap.NewNop()), rec.events(), zap.NewNop(), WithPollInterval(testInterval))
	defer o.Close()

	o.StartRun(context.Background(), backend.ModeScanJobs, payload())
	rec.waitTerminal(t)

	_, failures, _ := rec.snapshot()
	require.Len(t, failures, 1)
	require.Contains(t, failures[0], "run id")

	time.Sleep(settle)
	require.Zero(t, atomic.LoadInt32(&fake.polls), "polling must never start without a run id")
}

func TestExplicitFailure(t *testing.T) {
	fake := &fakeBackend{
		t:          t,
		createBody: `{"id":"r9"}`,
		pollBodies: []string{`{"status":"failed","error":"quota exceeded"}`},
	}
	srv := fake.server()
	defer srv.Close()

	rec := newRecorder()
	o := New(backend.New(srv.URL, zap.NewNop()), rec.events(), zap.NewNop(), WithPollInterval(testInterval))
	defer o.Close()

	o.StartRun(context.Background(), backend.ModeScanJobs, payload())
	rec.waitTerminal(t)

	navigations, failures, _ := rec.snapshot()
	require.Empty(t, navigations)
	require.Equal(t, []string{"quota exceeded"}, failures)

	polled := atomic.LoadInt32(&fake.polls)
	time.Sleep(settle)
	require.Equal(t, polled, atomic.LoadInt32(&fake.polls))
}

func TestUnsetBackendAddress(t *testing.T) {
	rec := newRecorder()
	o := New(backend.New("", zap.NewNop()), rec.events(), zap.NewNop(), WithPollInterval(testInterval))
	defer o.Close()

	o.StartRun(context.Background(), backend.ModeScanJobs, payload())
	rec.waitTerminal(t)

	_, failures, _ := rec.snapshot()
	require.Len(t, failures, 1)
	require.Contains(t, failures[0], "not configured")
}

func TestUnrecognizedStatusRetried(t *testing.T) {
	fake := &fakeBackend{
		t:          t,
		createBody: `{"runId":"r3"}`,
		pollBodies: []string{`{"status":"weird"}`, `{"status":"done"}`},
	}
	srv := fake.server()
	defer srv.Close()

	rec := newRecorder()
	o := New(backend.New(srv.URL, zap.NewNop()), rec.events(), zap.NewNop(), WithPollInterval(testInterval))
	defer o.Close()

	o.StartRun(context.Background(), backend.ModeScanJobs, payload())
	rec.waitTerminal(t)

	navigations, failures, _ := rec.snapshot()
	require.Equal(t, []string{"r3"}, navigations)
	require.Empty(t, failures)
	require.GreaterOrEqual(t, atomic.LoadInt32(&fake.polls), int32(2), "the unrecognized status must leave the timer armed")
}

func TestAtMostOneActiveRun(t *testing.T) {
	// Creation hands out sequential run ids; polls are counted per run so
	// the superseded run's poller can be proven dead.
	var creates, oldPolls, newPolls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if r.Method == http.MethodPost {
			if atomic.AddInt32(&creates, 1) == 1 {
				w.Write([]byte(`{"runId":"old"}`))
			} else {
				w.Write([]byte(`{"runId":"new"}`))
			}
			return
		}

		if strings.HasSuffix(r.URL.Path, "/old") {
			atomic.AddInt32(&oldPolls, 1)
		} else {
			atomic.AddInt32(&newPolls, 1)
		}
		w.Write([]byte(`{"status":"running"}`))
	}))
	defer srv.Close()

	rec := newRecorder()
	o := New(backend.New(srv.URL, zap.NewNop()), rec.events(), zap.NewNop(), WithPollInterval(testInterval))
	defer o.Close()

	o.StartRun(context.Background(), backend.ModeScanJobs, payload())
	time.Sleep(settle)
	require.Positive(t, atomic.LoadInt32(&oldPolls))

	o.StartRun(context.Background(), backend.ModeScanJobs, payload())

	runID, _, active := o.Active()
	require.True(t, active)
	require.Equal(t, "new", runID)

	// Let any request already in flight at cancellation time drain before
	// snapshotting the counter.
	time.Sleep(2 * testInterval)

	stale := atomic.LoadInt32(&oldPolls)
	time.Sleep(settle)
	require.Equal(t, stale, atomic.LoadInt32(&oldPolls), "the superseded run's poller must be torn down")
	require.Positive(t, atomic.LoadInt32(&newPolls))
}

func TestIdempotentCancel(t *testing.T) {
	rec := newRecorder()
	o := New(backend.New("http://localhost:0", zap.NewNop()), rec.events(), zap.NewNop(), WithPollInterval(testInterval))

	o.Cancel()
	o.Cancel()

	navigations, failures, results := rec.snapshot()
	require.Empty(t, navigations)
	require.Empty(t, failures)
	require.Zero(t, results)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Empty(t, rec.busy)
}

func TestStaleResponseImmunity(t *testing.T) {
	fake := &fakeBackend{
		t:          t,
		createBody: `{"runId":"r8"}`,
		pollBodies: []string{`{"status":"done","result":{}}`},
	}
	srv := fake.server()
	defer srv.Close()

	rec := newRecorder()
	o := New(backend.New(srv.URL, zap.NewNop()), rec.events(), zap.NewNop(), WithPollInterval(testInterval))
	defer o.Close()

	fake.holdPolls()
	o.StartRun(context.Background(), backend.ModeScanJobs, payload())

	// Wait for a status request to be in flight, then cancel underneath it.
	require.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return len(fake.holders) > 0
	}, 2*time.Second, time.Millisecond)

	o.Cancel()
	fake.releasePolls()

	time.Sleep(settle)

	navigations, failures, results := rec.snapshot()
	require.Empty(t, navigations, "a late response must not be applied after cancel")
	require.Empty(t, failures)
	require.Zero(t, results)
}

func TestBusyWindow(t *testing.T) {
	fake := &fakeBackend{
		t:          t,
		createBody: `{"runId":"r1"}`,
		pollBodies: []string{`{"status":"done"}`},
	}
	srv := fake.server()
	defer srv.Close()

	rec := newRecorder()
	o := New(backend.New(srv.URL, zap.NewNop()), rec.events(), zap.NewNop(), WithPollInterval(testInterval))
	defer o.Close()

	o.StartRun(context.Background(), backend.ModeScanJobs, payload())
	rec.waitTerminal(t)

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.busy) == 2
	}, 2*time.Second, time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Equal(t, []bool{true, false}, rec.busy)
}

func TestMaxRunDuration(t *testing.T) {
	fake := &fakeBackend{
		t:          t,
		createBody: `{"runId":"r1"}`,
		pollBodies: []string{`{"status":"running"}`},
	}
	srv := fake.server()
	defer srv.Close()

	rec := newRecorder()
	o := New(
		backend.New(srv.URL, zap.NewNop()),
		rec.events(),
		zap.NewNop(),
		WithPollInterval(testInterval),
		WithMaxRunDuration(4*testInterval),
	)
	defer o.Close()

	o.StartRun(context.Background(), backend.ModeScanJobs, payload())
	rec.waitTerminal(t)

	_, failures, _ := rec.snapshot()
	require.Len(t, failures, 1)
	require.Contains(t, failures[0], "duration")

	polled := atomic.LoadInt32(&fake.polls)
	time.Sleep(settle)
	require.Equal(t, polled, atomic.LoadInt32(&fake.polls))
}

func TestTeardownViaContext(t *testing.T) {
	fake := &fakeBackend{
		t:          t,
		createBody: `{"runId":"r1"}`,
		pollBodies: []string{`{"status":"running"}`},
	}
	srv := fake.server()
	defer srv.Close()

	rec := newRecorder()
	o := New(backend.New(srv.URL, zap.NewNop()), rec.events(), zap.NewNop(), WithPollInterval(testInterval))
	defer o.Close()

	ctx, cancel := context.WithCancel(context.Background())
	o.StartRun(ctx, backend.ModeScanJobs, payload())
	time.Sleep(settle)

	cancel()
	time.Sleep(settle)

	polled := atomic.LoadInt32(&fake.polls)
	time.Sleep(settle)
	require.Equal(t, polled, atomic.LoadInt32(&fake.polls), "no tick may fire after the owning context is gone")

	navigations, _, _ := rec.snapshot()
	require.Empty(t, navigations)
}
