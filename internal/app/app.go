// Package app wires the bot together: config, logging, storage, transport
// and the domain services, plus the single dispatcher goroutine that keeps
// update handling serial.
package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"vakhtabot/internal/admin"
	"vakhtabot/internal/broadcast"
	"vakhtabot/internal/config"
	"vakhtabot/internal/membership"
	"vakhtabot/internal/storage"
	"vakhtabot/internal/submission"
	"vakhtabot/internal/transport"
	"vakhtabot/internal/transport/telegram"
	logx "vakhtabot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	store   storage.Store
	adapter transport.Adapter

	sub     *submission.Service
	engine  *broadcast.Engine
	panel   *admin.Panel
	digest  *admin.Digest
	tracker *membership.Tracker

	updates chan transport.Update

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.BusyTimeout(),
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.PollTimeout(),
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	sub := submission.New(adapter, store, log.With(logx.String("comp", "submission")), cfg)
	engine := broadcast.New(adapter, store, log.With(logx.String("comp", "broadcast")), cfg)
	panel := admin.New(adapter, store, log.With(logx.String("comp", "admin")), engine, cfg)
	panel.Sessions = sub.SessionCount
	digest := admin.NewDigest(adapter, store, log.With(logx.String("comp", "digest")), cfg)
	tracker := membership.New(adapter, store, log.With(logx.String("comp", "membership")), cfg)

	return &App{
		cfgm:    cfgm,
		logs:    logSvc,
		log:     log,
		store:   store,
		adapter: adapter,
		sub:     sub,
		engine:  engine,
		panel:   panel,
		digest:  digest,
		tracker: tracker,
		updates: make(chan transport.Update, 256),
	}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.logStartupState(runCtx)

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		cancel()
		return err
	}
	a.digest.Start()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	reload := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(reload)
		a.reloadLoop(runCtx, reload)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.dispatch(runCtx)
	}()

	a.notifySystemd(runCtx)
	a.log.Info("bot started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if a.cancel != nil {
		a.cancel()
	}
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop", logx.Err(err))
	}
	a.digest.Stop()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("shutdown timed out waiting for workers")
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("store close", logx.Err(err))
	}
	a.log.Info("bot stopped")
	return a.logs.Close()
}

// logStartupState records what the previous process left behind. Stale
// in-progress broadcast runs are reported but never resumed or closed:
// their counts stay as the crash left them.
func (a *App) logStartupState(ctx context.Context) {
	if counts, err := a.store.CountUsers(ctx); err == nil {
		a.log.Info("stored users",
			logx.Int("total", counts.Total),
			logx.Int("subscribed", counts.Subscribed),
			logx.Int("blocked", counts.Blocked),
		)
	}
	if stats, err := a.store.GetPostingStats(ctx); err == nil {
		a.log.Info("stored postings",
			logx.Int("total", stats.Total),
			logx.Int("published", stats.Published),
			logx.Int("rejected", stats.Rejected),
		)
	}
	stale, err := a.store.ListStaleBroadcasts(ctx)
	if err != nil {
		a.log.Warn("stale broadcast query failed", logx.Err(err))
		return
	}
	for _, r := range stale {
		a.log.Warn("broadcast run left in progress by a previous process",
			logx.Int64("run_id", r.ID),
			logx.Int("sent", r.Sent),
			logx.Int("failed", r.Failed),
			logx.Int("total", r.Total),
			logx.Time("started_at", r.StartedAt),
		)
	}
}

func (a *App) reloadLoop(ctx context.Context, reload chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-reload:
			if !ok {
				return
			}
			// Coalesce bursts: only the newest config matters.
			for {
				select {
				case newer, ok := <-reload:
					if !ok {
						return
					}
					if newer != nil {
						cfg = newer
					}
					continue
				default:
				}
				break
			}
			if cfg == nil {
				continue
			}
			a.logs.Apply(mapLogConfig(cfg))
			a.sub.Apply(cfg)
			a.engine.Apply(cfg)
			a.panel.Apply(cfg)
			a.digest.Apply(cfg)
			a.tracker.Apply(cfg)
			a.log.Info("config applied")
		}
	}
}

func (a *App) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-a.updates:
			if !ok {
				return
			}
			a.handleUpdate(ctx, up)
		}
	}
}

func (a *App) handleUpdate(ctx context.Context, up transport.Update) {
	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message == nil || up.Message.IsGroup {
			return
		}
		a.handleMessage(ctx, up.Message)
	case transport.UpdateMedia:
		if up.Message == nil || up.Message.IsGroup {
			return
		}
		a.sub.HandleMedia(ctx, up.Message)
	case transport.UpdateContact:
		if up.Contact == nil {
			return
		}
		a.sub.HandleContact(ctx, up.Contact)
	case transport.UpdateCallback:
		if up.Callback == nil {
			return
		}
		a.panel.HandleCallback(ctx, up.Callback)
	case transport.UpdateMembership:
		if up.Membership == nil {
			return
		}
		a.tracker.HandleTransition(ctx, up.Membership)
	}
}

func (a *App) handleMessage(ctx context.Context, m *transport.Message) {
	cmd, isCmd := parseCommand(m.Text)
	if !isCmd {
		if a.panel.HandleText(ctx, m) {
			return
		}
		a.sub.HandleText(ctx, m)
		return
	}

	switch cmd {
	case "start":
		a.sub.HandleStart(ctx, m)
	case "rules", "help":
		a.sub.HandleRules(ctx, m)
	case "post":
		a.sub.HandlePost(ctx, m)
	case "cancel":
		a.sub.HandleCancel(ctx, m)
	case "admin":
		a.panel.HandleAdmin(ctx, m)
	default:
		// Unknown commands mid-submission are swallowed so a stray "/"
		// does not derail the draft.
		if a.sub.InSession(m.FromID) {
			return
		}
		a.sub.HandleUnknownCommand(ctx, m)
	}
}

// parseCommand extracts "post" from "/post" or "/post@SomeBot arg".
func parseCommand(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	cmd := text[1:]
	if i := strings.IndexAny(cmd, " \t\n"); i >= 0 {
		cmd = cmd[:i]
	}
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), cmd != ""
}

// notifySystemd signals readiness and keeps the watchdog fed when running
// under systemd; both are no-ops elsewhere.
func (a *App) notifySystemd(ctx context.Context) {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify ready failed", logx.Err(err))
	}
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
}
