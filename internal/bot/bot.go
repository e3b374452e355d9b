// Package bot wires the transport, storage, engine and conversation
// flows into one long-running application.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"relaybot/internal/clock"
	"relaybot/internal/config"
	"relaybot/internal/dispatch"
	"relaybot/internal/engine"
	"relaybot/internal/flow"
	"relaybot/internal/httpapi"
	rtsup "relaybot/internal/runtime/supervisor"
	"relaybot/internal/storage"
	kit "relaybot/internal/transport"
	"relaybot/internal/transport/telegram"
	logx "relaybot/pkg/logx"
)

const (
	defaultDestinationDelay = 500 * time.Millisecond
	defaultPostDelay        = time.Second
	defaultStateTTL         = 24 * time.Hour
	defaultTimezone         = "Asia/Kolkata"
)

type App struct {
	cfgm   *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	adminID       int64
	tickOnUpdates bool
	stateTTL      time.Duration

	store   storage.Store
	adapter *telegram.Adapter
	machine *flow.Machine
	eng     *engine.Engine
	http    *httpapi.Server
	cr      *cron.Cron

	sup     *rtsup.Supervisor
	updates chan kit.Update
}

func New(cfgm *config.Manager, logSvc *logx.Service, log logx.Logger) *App {
	return &App{
		cfgm:    cfgm,
		logSvc:  logSvc,
		log:     log,
		updates: make(chan kit.Update, 256),
	}
}

// Start brings up every subsystem. It returns once the bot is polling;
// background work runs under the app supervisor until Stop.
func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()
	if cfg == nil {
		return fmt.Errorf("config not loaded")
	}
	a.adminID = cfg.Telegram.AdminUserID
	a.tickOnUpdates = cfg.Scheduler.TickOnUpdates

	tz := cfg.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", tz, err)
	}

	destDelay, err := config.ParseDurationOrDefault("scheduler.destination_delay", cfg.Scheduler.DestinationDelay, defaultDestinationDelay)
	if err != nil {
		return err
	}
	postDelay, err := config.ParseDurationOrDefault("scheduler.post_delay", cfg.Scheduler.PostDelay, defaultPostDelay)
	if err != nil {
		return err
	}
	a.stateTTL, err = config.ParseDurationOrDefault("scheduler.state_ttl", cfg.Scheduler.StateTTL, defaultStateTTL)
	if err != nil {
		return err
	}
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return err
	}
	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		return err
	}

	a.store, err = storage.Open(ctx, storage.Config{
		Driver:      cfg.Storage.Driver,
		URI:         cfg.Storage.URI,
		Database:    cfg.Storage.Database,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, a.log.With(logx.String("comp", "storage")))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	a.adapter, err = telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, a.log.With(logx.String("comp", "telegram")))
	if err != nil {
		return fmt.Errorf("telegram adapter: %w", err)
	}

	sender := dispatch.New(a.adapter, dispatch.Config{
		DestinationDelay: destDelay,
		PostDelay:        postDelay,
	}, a.log.With(logx.String("comp", "dispatch")))

	clk := clock.New(loc)
	a.eng = engine.New(a.store, sender, a.adapter, clk, a.log.With(logx.String("comp", "engine")))
	a.machine = flow.New(a.store, a.log.With(logx.String("comp", "flow")))

	a.sup = rtsup.New(ctx, a.log.With(logx.String("comp", "app")))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return fmt.Errorf("start adapter: %w", err)
	}
	a.sup.Go("updates.dispatch", a.dispatchLoop)
	a.sup.Go("config.reload", a.configLoop)
	a.sup.GoRestart("config.watch", func(c context.Context) {
		if err := a.cfgm.Watch(c); err != nil && c.Err() == nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}, time.Second)

	if cfg.Scheduler.Enabled {
		a.cr = cron.New(cron.WithLocation(loc))
		if _, err := a.cr.AddFunc("* * * * *", a.cronTick); err != nil {
			return fmt.Errorf("register tick: %w", err)
		}
		if _, err := a.cr.AddFunc("@hourly", a.cronEvict); err != nil {
			return fmt.Errorf("register eviction: %w", err)
		}
		a.cr.Start()
		a.log.Info("scheduler started", logx.String("timezone", tz))
	} else {
		a.log.Warn("scheduler disabled; only manual triggers will fire schedules")
	}

	if cfg.HTTP.Enabled {
		addr := cfg.HTTP.Addr
		if addr == "" {
			addr = "127.0.0.1:8090"
		}
		a.http = httpapi.New(httpapi.Config{
			Addr:       addr,
			CronSecret: cfg.HTTP.CronSecret,
		}, a.eng, a.log.With(logx.String("comp", "http")))
		a.http.Start()
	}

	if err := a.adapter.UpdateMenuCommands(ctx, commandMenu()); err != nil {
		a.log.Warn("command menu update failed", logx.Err(err))
	}

	a.log.Info("bot started", logx.Int64("admin_id", a.adminID))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.cr != nil {
		stopCtx := a.cr.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}
	if a.http != nil {
		if err := a.http.Stop(ctx); err != nil {
			a.log.Warn("http shutdown failed", logx.Err(err))
		}
	}
	if a.adapter != nil {
		_ = a.adapter.Stop(ctx)
	}
	if a.sup != nil {
		a.sup.Cancel()
		if err := a.sup.Wait(ctx); err != nil {
			a.log.Warn("supervisor wait timed out", logx.Err(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	a.log.Info("bot stopped")
	return nil
}

func (a *App) cronTick() {
	ctx, cancel := context.WithTimeout(a.sup.Context(), 5*time.Minute)
	defer cancel()
	if err := a.eng.Tick(ctx, "cron"); err != nil {
		a.log.Error("tick failed", logx.Err(err))
	}
}

func (a *App) cronEvict() {
	ctx, cancel := context.WithTimeout(a.sup.Context(), time.Minute)
	defer cancel()
	if _, err := a.machine.EvictStale(ctx, a.stateTTL); err != nil {
		a.log.Error("state eviction failed", logx.Err(err))
	}
}

// configLoop re-applies hot-reloadable settings when the config file
// changes. Only logging is live today; everything else needs a restart.
func (a *App) configLoop(c context.Context) {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)
	for {
		select {
		case <-c.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.log.Info("config reloaded", logx.String("log_level", cfg.Logging.Level))
		}
	}
}
