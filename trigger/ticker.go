package trigger

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fernwall/mainspring/errors"
	"github.com/fernwall/mainspring/internal/util"
	"github.com/fernwall/mainspring/logger"
)

// Ticker is the firing loop: it polls the trigger store at a fixed
// interval, dispatches due triggers to their handlers and advances each
// fired trigger to its next occurrence.
//
// A handler failure is recorded and logged but never blocks other
// triggers, and the trigger still advances; a broken handler must not
// stall the whole schedule.
type Ticker struct {
	store      *Store
	executions *ExecutionStore
	handlers   *HandlerRegistry
	interval   time.Duration
	grace      time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log      *zap.SugaredLogger
	schedLog *zap.SugaredLogger

	mu              sync.Mutex
	lastTickAt      time.Time
	ticksSinceStart int64
	lastPendingKey  string
}

// TickerConfig contains configuration for the firing loop.
type TickerConfig struct {
	// Interval is how often the store is polled for due triggers.
	Interval time.Duration

	// MisfireGrace is how far past its fire time a trigger may be found
	// at startup before misfire recovery applies.
	MisfireGrace time.Duration
}

// DefaultTickerConfig returns sensible defaults.
func DefaultTickerConfig() TickerConfig {
	return TickerConfig{
		Interval:     1 * time.Second,
		MisfireGrace: 1 * time.Minute,
	}
}

// NewTicker creates a ticker over the given store and handler registry.
func NewTicker(ctx context.Context, store *Store, handlers *HandlerRegistry, cfg TickerConfig, log *zap.SugaredLogger) *Ticker {
	tickerCtx, cancel := context.WithCancel(ctx)
	return &Ticker{
		store:      store,
		executions: NewExecutionStore(store.db),
		handlers:   handlers,
		interval:   cfg.Interval,
		grace:      cfg.MisfireGrace,
		ctx:        tickerCtx,
		cancel:     cancel,
		log:        log,
		schedLog:   logger.AddSchedSymbol(log),
	}
}

// Start recovers misfires accumulated while the process was down, then
// begins the polling loop.
func (t *Ticker) Start() {
	recovered, err := t.store.RecoverMisfires(time.Now(), t.grace)
	if err != nil {
		t.schedLog.Errorw("Misfire recovery failed", "error", err)
	} else if recovered > 0 {
		t.schedLog.Infow("Recovered misfired triggers", "count", recovered)
	}

	t.wg.Add(1)
	go t.run()
	t.schedLog.Infow("Trigger ticker started", "interval", t.interval)
}

// Stop gracefully stops the ticker, waiting for an in-flight tick.
func (t *Ticker) Stop() {
	t.cancel()
	t.wg.Wait()
	t.schedLog.Infow("Trigger ticker stopped")
}

func (t *Ticker) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case tickTime := <-ticker.C:
			t.mu.Lock()
			t.lastTickAt = tickTime
			t.ticksSinceStart++
			t.mu.Unlock()

			t.logNextPending(tickTime)

			if err := t.dispatchDue(tickTime); err != nil {
				t.schedLog.Warnw("Tick error", "error", err, "tick", t.ticksSinceStart)
			}
		}
	}
}

// logNextPending logs the soonest upcoming fire, only when it changed
// since the previous tick.
func (t *Ticker) logNextPending(now time.Time) {
	next, err := t.store.NextPending()
	if err != nil {
		t.schedLog.Warnw("Failed to query next pending trigger", "error", err)
		return
	}

	key := ""
	if next != nil {
		key = next.Key
	}

	t.mu.Lock()
	changed := key != t.lastPendingKey
	t.lastPendingKey = key
	t.mu.Unlock()

	if !changed {
		return
	}

	if next == nil || next.NextFireAt == nil {
		t.schedLog.Infow("No pending triggers")
		return
	}

	until := next.NextFireAt.Sub(now)
	if until < 0 {
		until = 0
	}
	t.schedLog.Infow("Next trigger fire",
		logger.FieldTriggerKey, next.Key,
		"handler", next.Handler,
		"in", until.Round(time.Second).String())
}

// dispatchDue fires every due trigger. One failing trigger never blocks
// the rest of the batch.
func (t *Ticker) dispatchDue(now time.Time) error {
	due, err := t.store.Due(now)
	if err != nil {
		return errors.Wrap(err, "list due triggers")
	}

	for _, trig := range due {
		select {
		case <-t.ctx.Done():
			return t.ctx.Err()
		default:
		}

		if err := t.fire(trig, now); err != nil {
			t.schedLog.Errorw("Trigger fire failed",
				logger.FieldTriggerKey, trig.Key,
				"handler", trig.Handler,
				"error", err)
		}
	}
	return nil
}

// fire runs one trigger: execution record, handler dispatch, advance.
func (t *Ticker) fire(trig *Trigger, now time.Time) error {
	firedAt := *trig.NextFireAt
	startTime := time.Now()

	execution := &Execution{
		ID:         NewExecutionID(),
		TriggerKey: trig.Key,
		Status:     ExecutionStatusRunning,
		StartedAt:  startTime,
	}
	if err := t.executions.Create(execution); err != nil {
		// History is diagnostics, not correctness; keep firing.
		t.schedLog.Errorw("Failed to create execution record",
			logger.FieldTriggerKey, trig.Key,
			"error", err)
	}

	var handlerErr error
	handler := t.handlers.Resolve(trig.Handler)
	if handler == nil {
		handlerErr = errors.Newf("no handler registered for %q", trig.Handler)
	} else {
		handlerErr = handler(t.ctx, trig.Payload, firedAt)
	}

	completedAt := time.Now()
	execution.CompletedAt = util.Ptr(completedAt)
	execution.DurationMs = util.Ptr(int(completedAt.Sub(startTime).Milliseconds()))

	if handlerErr != nil {
		execution.Status = ExecutionStatusFailed
		execution.ErrorMessage = util.Ptr(handlerErr.Error())
		t.schedLog.Errorw("Trigger handler failed",
			logger.FieldTriggerKey, trig.Key,
			"handler", trig.Handler,
			"execution_id", execution.ID,
			"duration_ms", *execution.DurationMs,
			"error", handlerErr)
	} else {
		execution.Status = ExecutionStatusCompleted
		t.schedLog.Infow("Trigger fired",
			logger.FieldTriggerKey, trig.Key,
			"handler", trig.Handler,
			"execution_id", execution.ID,
			"duration_ms", *execution.DurationMs)
	}

	if err := t.executions.Update(execution); err != nil {
		t.schedLog.Errorw("Failed to update execution record",
			"execution_id", execution.ID,
			"error", err)
	}

	// Advance even after a handler failure so a broken handler cannot
	// wedge the trigger into firing every tick.
	if err := t.store.Advance(trig, firedAt); err != nil {
		return errors.Wrap(err, "advance after fire")
	}
	return nil
}

// Stats returns ticker loop statistics.
func (t *Ticker) Stats() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return map[string]interface{}{
		"last_tick_at":      t.lastTickAt,
		"ticks_since_start": t.ticksSinceStart,
		"interval":          t.interval.String(),
	}
}
