// Package engine fires schedules whose configured times match the
// current minute.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"relaybot/internal/clock"
	"relaybot/internal/dispatch"
	"relaybot/internal/metrics"
	"relaybot/internal/model"
	"relaybot/internal/randpick"
	"relaybot/internal/storage"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

// Engine evaluates active schedules once per minute tick. Ticks can
// arrive from multiple triggers (in-process cron, the HTTP endpoint,
// inbound updates); a watermark collapses duplicates for the same
// minute so a schedule fires at most once per configured time.
type Engine struct {
	store   storage.Store
	sender  *dispatch.Sender
	adapter kit.Adapter
	clk     clock.Clock
	log     logx.Logger

	mu       sync.Mutex
	lastTick string // "2006-01-02 15:04" of the last processed minute
}

func New(store storage.Store, sender *dispatch.Sender, adapter kit.Adapter, clk clock.Clock, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{store: store, sender: sender, adapter: adapter, clk: clk, log: log}
}

// Tick runs the engine at the current minute. origin labels the trigger
// for logging and metrics. Duplicate ticks within one minute are no-ops.
func (e *Engine) Tick(ctx context.Context, origin string) error {
	now := e.clk.Now()
	key := now.Format("2006-01-02 15:04")

	e.mu.Lock()
	if e.lastTick == key {
		e.mu.Unlock()
		return nil
	}
	e.lastTick = key
	e.mu.Unlock()

	metrics.TicksTotal.WithLabelValues(origin).Inc()
	if err := e.runAt(ctx, now); err != nil {
		// Release the minute so a later trigger can retry it.
		e.mu.Lock()
		if e.lastTick == key {
			e.lastTick = ""
		}
		e.mu.Unlock()
		return err
	}
	return nil
}

// Force runs the engine at the current minute regardless of the
// watermark. Used by the manual trigger command.
func (e *Engine) Force(ctx context.Context, origin string) error {
	metrics.TicksTotal.WithLabelValues(origin).Inc()
	return e.runAt(ctx, e.clk.Now())
}

// ForceAt runs the engine as if the clock read hhmm today, bypassing the
// watermark. hhmm must already be normalized ("HH:MM").
func (e *Engine) ForceAt(ctx context.Context, hhmm string, origin string) error {
	t, err := time.ParseInLocation("15:04", hhmm, e.clk.Location())
	if err != nil {
		return fmt.Errorf("bad time %q: %w", hhmm, err)
	}
	now := e.clk.Now()
	at := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, e.clk.Location())
	metrics.TicksTotal.WithLabelValues(origin).Inc()
	return e.runAt(ctx, at)
}

func (e *Engine) runAt(ctx context.Context, now time.Time) error {
	hhmm := clock.HHMM(now)

	schedules, err := e.store.ActiveSchedules(ctx)
	if err != nil {
		return fmt.Errorf("load active schedules: %w", err)
	}

	for _, sc := range schedules {
		if !sc.FiresAt(hhmm) {
			continue
		}
		// One schedule failing must not starve the rest of the minute.
		e.fire(ctx, sc, now)
	}
	return nil
}

func (e *Engine) fire(ctx context.Context, sc model.Schedule, now time.Time) {
	log := e.log.With(
		logx.String("schedule_id", sc.ID),
		logx.Int64("owner_id", sc.OwnerID),
		logx.String("at", clock.HHMM(now)),
	)

	pool, err := e.store.PostsByIDs(ctx, sc.PostPool)
	if err != nil {
		log.Error("engine: pool resolve failed", logx.Err(err))
		metrics.FiringsTotal.WithLabelValues("failed").Inc()
		e.notifyOwner(ctx, sc.OwnerID, fmt.Sprintf(
			"⚠️ Schedule could not run: loading its posts failed (%v).", err))
		return
	}
	if len(pool) == 0 {
		// Every pooled post was deleted since setup. Nothing to send,
		// nothing to record; the owner has to fix the schedule.
		log.Warn("engine: post pool is empty")
		metrics.FiringsTotal.WithLabelValues("skipped").Inc()
		e.notifyOwner(ctx, sc.OwnerID,
			"⚠️ A schedule fired but all of its posts have been deleted. "+
				"Add posts or delete the schedule with /my_schedules.")
		return
	}

	dests, err := e.store.Destinations(ctx)
	if err != nil {
		log.Error("engine: destinations load failed", logx.Err(err))
		metrics.FiringsTotal.WithLabelValues("failed").Inc()
		return
	}
	if len(dests) == 0 {
		log.Warn("engine: no destination channels configured")
		metrics.FiringsTotal.WithLabelValues("skipped").Inc()
		return
	}

	picked := randpick.Choose(pool, sc.PostsPerFiring)
	rep := e.sender.Broadcast(ctx, picked, dests, e.footer(ctx))

	switch {
	case rep.Attempted == 0:
		metrics.FiringsTotal.WithLabelValues("skipped").Inc()
		return
	case rep.AllFailed():
		metrics.FiringsTotal.WithLabelValues("failed").Inc()
	case len(rep.Failures) > 0:
		metrics.FiringsTotal.WithLabelValues("partial").Inc()
	default:
		metrics.FiringsTotal.WithLabelValues("ok").Inc()
	}

	// Any delivery at all counts as an execution.
	if rep.Delivered > 0 {
		if err := e.store.SetLastExecuted(ctx, sc.ID, now); err != nil {
			log.Error("engine: last-executed update failed", logx.Err(err))
		}
	}

	log.Info("engine: schedule fired",
		logx.Int("posts", len(picked)),
		logx.Int("delivered", rep.Delivered),
		logx.Int("failed", len(rep.Failures)))

	if len(rep.Failures) > 0 {
		e.notifyOwner(ctx, sc.OwnerID, failureSummary(rep))
	}
}

func (e *Engine) footer(ctx context.Context) string {
	footer, err := e.store.Footer(ctx)
	if err != nil {
		e.log.Warn("engine: footer load failed", logx.Err(err))
		return ""
	}
	return footer
}

func (e *Engine) notifyOwner(ctx context.Context, ownerID int64, text string) {
	if _, err := e.adapter.SendText(ctx, kit.ChatTarget{ChatID: ownerID}, text, nil); err != nil {
		e.log.Warn("engine: owner notification failed",
			logx.Int64("owner_id", ownerID), logx.Err(err))
	}
}

func failureSummary(rep dispatch.Report) string {
	seen := map[int64]bool{}
	var chats []int64
	for _, f := range rep.Failures {
		if !seen[f.ChatID] {
			seen[f.ChatID] = true
			chats = append(chats, f.ChatID)
		}
	}
	msg := fmt.Sprintf("⚠️ Scheduled delivery: %d of %d sends failed.",
		len(rep.Failures), rep.Attempted)
	if len(chats) > 0 {
		msg += " Affected channels:"
		for _, id := range chats {
			msg += fmt.Sprintf(" %d", id)
		}
	}
	return msg
}
