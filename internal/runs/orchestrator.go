// Package runs drives a single asynchronous backend run from submission to
// terminal state: submit, poll, normalize, dispatch exactly one outcome.
// At most one run is in flight per orchestrator; starting a new run tears
// the previous one down first.
package runs

import (
	"context"
	"sync"
	"time"

	"github.com/atspilot/atspilot/internal/backend"

	"go.uber.org/zap"
)

const (
	// DefaultPollInterval is the fixed delay between status checks.
	DefaultPollInterval = 2 * time.Second

	defaultFailureMessage = "run failed, check backend logs"
)

// Events is the collaborator contract. Exactly one of NavigateToResults,
// ResultReady or Failed fires per run. Nil callbacks are skipped.
type Events struct {
	// NavigateToResults fires once on terminal success of a scan_jobs run.
	NavigateToResults func(runID string, run *backend.Run)
	// ResultReady fires once on terminal success of a jd_match run.
	ResultReady func(run *backend.Run)
	// Failed fires once on any terminal-failure or network-error path.
	Failed func(message string)
	// BusyChanged fires on transitions into and out of the
	// submitted-but-not-terminal window.
	BusyChanged func(busy bool)
}

type activeRun struct {
	runID string
	mode  backend.Mode
}

// Orchestrator owns the lifecycle of at most one in-flight run. All state
// mutation is guarded by mu; asynchronous continuations re-check the
// generation token before applying anything, so late responses from a
// cancelled or superseded run are discarded.
type Orchestrator struct {
	client *backend.Client
	logger *zap.Logger
	events Events

	interval       time.Duration
	maxRunDuration time.Duration

	mu         sync.Mutex
	gen        uint64
	busy       bool
	active     *activeRun
	cancelPoll context.CancelFunc
}

type Option func(*Orchestrator)

// WithPollInterval overrides the fixed poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithMaxRunDuration force-fails a run locally when no terminal status
// arrived within d. Zero leaves runs unbounded.
func WithMaxRunDuration(d time.Duration) Option {
	return func(o *Orchestrator) { o.maxRunDuration = d }
}

func New(client *backend.Client, events Events, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:   client,
		logger:   logger,
		events:   events,
		interval: DefaultPollInterval,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// StartRun cancels any active run, submits a new one and begins polling.
// All outcomes, including submission failures, are delivered through the
// Events contract; StartRun itself returns once the run is submitted.
func (o *Orchestrator) StartRun(ctx context.Context, mode backend.Mode, payload *backend.RunPayload) {
	o.Cancel()

	if !mode.Valid() {
		o.fireFailed("unknown run mode: " + string(mode))
		return
	}

	o.mu.Lock()
	o.gen++
	gen := o.gen
	o.busy = true
	o.mu.Unlock()

	o.fireBusy(true)

	runID, err := o.client.CreateRun(ctx, mode, payload)
	if err != nil {
		if o.finishSubmission(gen) {
			o.fireFailed(err.Error())
		}
		return
	}

	o.mu.Lock()
	if o.gen != gen {
		// Cancelled while the submission was in flight.
		o.mu.Unlock()
		return
	}

	pollCtx, cancel := context.WithCancel(ctx)
	o.active = &activeRun{runID: runID, mode: mode}
	o.cancelPoll = cancel
	o.mu.Unlock()

	o.logger.Info("run started", zap.String("run_id", runID), zap.String("mode", string(mode)))

	go o.poll(pollCtx, gen, runID, mode)
}

// Cancel stops polling and clears the active run. It is idempotent; calling
// it with no active run is a no-op. A status request already in flight is
// not aborted, but its response will no longer be applied.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	if o.active == nil && !o.busy {
		o.mu.Unlock()
		return
	}

	o.gen++
	if o.cancelPoll != nil {
		o.cancelPoll()
		o.cancelPoll = nil
	}
	o.active = nil
	wasBusy := o.busy
	o.busy = false
	o.mu.Unlock()

	if wasBusy {
		o.fireBusy(false)
	}
}

// Close tears the orchestrator down. Meant for defer at the owning scope so
// no poll tick can fire after the owner is gone.
func (o *Orchestrator) Close() {
	o.Cancel()
}

// Active returns the identifier and mode of the in-flight run, if any.
func (o *Orchestrator) Active() (string, backend.Mode, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active == nil {
		return "", "", false
	}

	return o.active.runID, o.active.mode, true
}

// poll is the recurring status check loop. Ticks are serialized: a slow
// response delays the next tick instead of overlapping it, so statuses are
// never applied out of order.
func (o *Orchestrator) poll(ctx context.Context, gen uint64, runID string, mode backend.Mode) {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if o.maxRunDuration > 0 {
		timer := time.NewTimer(o.maxRunDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			o.finish(gen)
			return
		case <-deadline:
			if o.finish(gen) {
				o.fireFailed("run did not finish within the allowed duration")
			}
			return
		case <-ticker.C:
		}

		if !o.current(gen) {
			return
		}

		run, err := o.client.GetRun(ctx, runID)

		// A cancellation may have happened while the request was in
		// flight; nothing below may touch shared state in that case.
		if !o.current(gen) {
			return
		}

		if err != nil {
			if ctx.Err() != nil {
				o.finish(gen)
				return
			}

			if o.finish(gen) {
				o.logger.Warn("poll failed", zap.String("run_id", runID), zap.Error(err))
				o.fireFailed(err.Error())
			}
			return
		}

		o.logger.Debug("poll tick",
			zap.String("run_id", runID),
			zap.String("status", string(run.Status)),
		)

		if !run.Status.Terminal() {
			continue
		}

		if !o.finish(gen) {
			return
		}

		if !run.Status.Succeeded() {
			o.fireFailed(run.ErrorMessage(defaultFailureMessage))
			return
		}

		if mode == backend.ModeScanJobs {
			o.fireNavigate(runID, run)
			return
		}

		o.fireResult(run)
		return
	}
}

// current reports whether gen still identifies the live run.
func (o *Orchestrator) current(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.gen == gen
}

// finish clears run state for gen. It returns false when another submission
// or a cancel already superseded this run, in which case the caller must not
// dispatch any outcome.
func (o *Orchestrator) finish(gen uint64) bool {
	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return false
	}

	if o.cancelPoll != nil {
		o.cancelPoll()
		o.cancelPoll = nil
	}
	o.active = nil
	wasBusy := o.busy
	o.busy = false
	o.mu.Unlock()

	if wasBusy {
		o.fireBusy(false)
	}

	return true
}

// finishSubmission clears the busy window of a submission that never reached
// the polling stage.
func (o *Orchestrator) finishSubmission(gen uint64) bool {
	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return false
	}

	wasBusy := o.busy
	o.busy = false
	o.mu.Unlock()

	if wasBusy {
		o.fireBusy(false)
	}

	return true
}

func (o *Orchestrator) fireBusy(busy bool) {
	if o.events.BusyChanged != nil {
		o.events.BusyChanged(busy)
	}
}

func (o *Orchestrator) fireFailed(message string) {
	if o.events.Failed != nil {
		o.events.Failed(message)
	}
}

func (o *Orchestrator) fireNavigate(runID string, run *backend.Run) {
	if o.events.NavigateToResults != nil {
		o.events.NavigateToResults(runID, run)
	}
}

func (o *Orchestrator) fireResult(run *backend.Run) {
	if o.events.ResultReady != nil {
		o.events.ResultReady(run)
	}
}
