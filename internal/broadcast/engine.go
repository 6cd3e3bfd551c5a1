// Package broadcast implements the operator announcement engine: one paced,
// sequential pass over the active-user snapshot with a persisted run record.
package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"vakhtabot/internal/config"
	"vakhtabot/internal/storage"
	"vakhtabot/internal/transport"
	logx "vakhtabot/pkg/logx"
)

// Progress is invoked with a running snapshot of the dispatch: processed is
// how many recipients have been attempted so far. Implementations typically
// edit an operator status message; their failures are the caller's problem.
type Progress func(sent, failed, processed, total int)

// Summary is the terminal state of one run.
type Summary struct {
	RunID  int64
	Total  int
	Sent   int
	Failed int
}

type Engine struct {
	adapter transport.Adapter
	store   storage.Store
	log     logx.Logger

	// mu guards the config-derived fields; Apply() may swap them while a
	// run is in flight, taking effect on the next send.
	mu            sync.Mutex
	limiter       *rate.Limiter
	progressEvery int
}

func New(adapter transport.Adapter, store storage.Store, log logx.Logger, cfg *config.Config) *Engine {
	e := &Engine{adapter: adapter, store: store, log: log}
	e.Apply(cfg)
	return e
}

// Apply swaps in the reloaded pacing settings.
func (e *Engine) Apply(cfg *config.Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.limiter = rate.NewLimiter(rate.Every(cfg.SendDelay()), 1)
	e.progressEvery = cfg.ProgressEvery()
}

// Run delivers text to every recipient in order, one send at a time, pacing
// each send through the rate limiter. A failed delivery never aborts the
// run; a permanently unreachable recipient additionally gets the blocked
// flag so later snapshots exclude them. Counts are flushed to the run
// record at every progress step, so a crash leaves behind an in-progress
// run with counts close to reality.
//
// The returned error is non-nil only when the run record could not be
// created or finalized, or the context was cancelled mid-run; the run
// record is left in-progress in those cases. Deliveries already made are
// never undone by a bookkeeping failure.
func (e *Engine) Run(ctx context.Context, adminID int64, text string, recipients []storage.User, report Progress) (Summary, error) {
	total := len(recipients)

	runID, err := e.store.CreateBroadcast(ctx, adminID, text, total)
	if err != nil {
		return Summary{}, fmt.Errorf("create broadcast run: %w", err)
	}

	sum := Summary{RunID: runID, Total: total}
	start := time.Now()
	e.log.Info("broadcast started",
		logx.Int64("run_id", runID),
		logx.Int64("admin_id", adminID),
		logx.Int("total", total),
	)
	if report != nil {
		report(0, 0, 0, total)
	}

	for i, u := range recipients {
		e.mu.Lock()
		lim := e.limiter
		every := e.progressEvery
		e.mu.Unlock()

		if err := lim.Wait(ctx); err != nil {
			e.flushCounts(runID, sum)
			return sum, err
		}

		_, err := e.adapter.SendText(ctx, transport.ChatTarget{ChatID: u.ID}, text, nil)
		if err == nil {
			sum.Sent++
		} else {
			sum.Failed++
			if transport.IsRecipientBlocked(err) {
				if berr := e.store.SetBlocked(ctx, u.ID, true); berr != nil {
					e.log.Warn("blocked flag update failed", logx.Int64("user_id", u.ID), logx.Err(berr))
				}
				e.log.Info("recipient unreachable, marked blocked", logx.Int64("user_id", u.ID))
			} else {
				e.log.Warn("broadcast send failed", logx.Int64("user_id", u.ID), logx.Err(err))
			}
		}

		processed := i + 1
		if processed%every == 0 && processed < total {
			e.flushCounts(runID, sum)
			if report != nil {
				report(sum.Sent, sum.Failed, processed, total)
			}
		}
	}

	// Finalization is not best effort: a run record stuck in progress with
	// stale counts must not be reported to the operator as a success.
	if err := e.store.UpdateBroadcastCounts(ctx, runID, sum.Sent, sum.Failed); err != nil {
		return sum, fmt.Errorf("finalize broadcast counts: %w", err)
	}
	if err := e.store.CompleteBroadcast(ctx, runID); err != nil {
		return sum, fmt.Errorf("finalize broadcast run: %w", err)
	}
	if err := e.store.AppendLog(ctx, storage.LogEntry{
		Kind:    "broadcast",
		UserID:  adminID,
		Message: fmt.Sprintf("Рассылка завершена: отправлено %d, не доставлено %d из %d", sum.Sent, sum.Failed, sum.Total),
	}); err != nil {
		e.log.Warn("log append failed", logx.Err(err))
	}
	if report != nil {
		report(sum.Sent, sum.Failed, total, total)
	}

	e.log.Info("broadcast finished",
		logx.Int64("run_id", runID),
		logx.Int("sent", sum.Sent),
		logx.Int("failed", sum.Failed),
		logx.Duration("dur", time.Since(start)),
	)
	return sum, nil
}

// flushCounts persists the running counters. Best effort: the broadcast
// itself must not stop because the bookkeeping write failed.
func (e *Engine) flushCounts(runID int64, sum Summary) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.store.UpdateBroadcastCounts(ctx, runID, sum.Sent, sum.Failed); err != nil {
		e.log.Warn("broadcast counts update failed", logx.Int64("run_id", runID), logx.Err(err))
	}
}
