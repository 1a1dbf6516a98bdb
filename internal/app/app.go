// Package app wires configuration, transport, storage, the monitor and
// the notifier into one runnable bot.
package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"showbot/internal/config"
	"showbot/internal/eventbus"
	"showbot/internal/monitor"
	"showbot/internal/notifier"
	"showbot/internal/provider/bili"
	"showbot/internal/router"
	"showbot/internal/runtime/supervisor"
	"showbot/internal/schedule"
	"showbot/internal/storage"
	"showbot/internal/transport/telegram"
	kit "showbot/internal/transport"
	logx "showbot/pkg/logx"
)

type App struct {
	cfgm   *config.Manager
	logsvc *logx.Service
	log    logx.Logger

	adapter  *telegram.Adapter
	bus      eventbus.Bus
	store    storage.Store
	registry *monitor.Registry
	notif    *notifier.Service
	coord    *monitor.Coordinator
	router   *router.Router

	sup     *supervisor.Supervisor
	started time.Time

	eventsMu sync.Mutex
	events   []eventbus.Event // small ring consumed by /status
}

// New builds the app from the config file. Nothing runs yet; call Run.
func New(configPath string) (*App, error) {
	cfgm := config.NewManager(configPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := validateConfig(context.Background(), cfg); err != nil {
		return nil, err
	}

	boot := logx.NewConsole(cfg.Logging.Level)

	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: durOr(cfg.Telegram.PollTimeout, 10*time.Second),
	}, boot)
	if err != nil {
		return nil, err
	}

	logsvc, log := logx.New(logxConfig(cfg), adapter)
	if chatID := parseChatID(cfg.Telegram.GroupLog); chatID != 0 {
		logsvc.SetOpsChat(chatID, cfg.Logging.OpsChat.ThreadID)
	}
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(validateConfig)

	bus := eventbus.New()

	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: durOr(cfg.Storage.BusyTimeout, 0),
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	registry := monitor.NewRegistry(store, log.With(logx.String("comp", "registry")))

	notif := notifier.New(notifierConfig(cfg), adapter, log.With(logx.String("comp", "notifier")), bus)

	client := bili.NewClient(bili.Config{
		BaseURL:   cfg.Provider.BaseURL,
		UserAgent: cfg.Provider.UserAgent,
		Timeout:   durOr(cfg.Monitor.FetchTimeout, 10*time.Second),
	})

	coordCfg, err := coordinatorConfig(cfg)
	if err != nil {
		return nil, err
	}
	dispatcher := monitor.NewDispatcher(notif, log.With(logx.String("comp", "dispatch")))
	coord := monitor.NewCoordinator(coordCfg, registry, client, dispatcher,
		log.With(logx.String("comp", "monitor")), bus)

	a := &App{
		cfgm:     cfgm,
		logsvc:   logsvc,
		log:      log,
		adapter:  adapter,
		bus:      bus,
		store:    store,
		registry: registry,
		notif:    notif,
		coord:    coord,
	}
	a.router = router.New(log.With(logx.String("comp", "router")), adapter)
	a.router.SetRegistry(a.commands())
	return a, nil
}

// Run starts everything and blocks until ctx is canceled, then performs
// a bounded stepped shutdown.
func (a *App) Run(ctx context.Context) error {
	cfg := a.cfgm.Get()
	a.started = time.Now()

	if err := a.registry.Load(ctx, cfg.Monitor.SeedContexts); err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}

	sup := supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))))
	a.sup = sup

	a.notif.Start(sup.Context())

	updates := make(chan kit.Update, 128)
	if err := a.adapter.Start(sup.Context(), updates); err != nil {
		return fmt.Errorf("start telegram: %w", err)
	}
	sup.GoRestart("router.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, updates)
	})
	if cfg.Monitor.Enabled {
		sup.GoRestart("monitor.cycle", func(c context.Context) error {
			return a.coord.Run(c)
		})
	} else {
		a.log.Warn("monitor disabled by config; poll cycle not started")
	}
	sup.GoRestart("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	sup.Go0("config.apply", a.reloadLoop)
	sup.Go0("events.collect", a.collectEvents)

	sdNotify(daemon.SdNotifyReady, a.log)
	sup.Go0("sd.watchdog", func(c context.Context) { watchdogLoop(c, a.log) })

	a.log.Info("showbot started",
		logx.Bool("monitor", cfg.Monitor.Enabled),
		logx.String("storage", cfg.Storage.Driver))

	<-ctx.Done()
	return a.shutdown()
}

func (a *App) shutdown() error {
	a.log.Info("shutting down")
	sdNotify(daemon.SdNotifyStopping, a.log)

	// Stop intake first so no new work arrives, then drain outbound,
	// then release everything else. Each step is individually bounded.
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = a.adapter.Stop(stopCtx)

	nctx, ncancel := context.WithTimeout(stopCtx, 5*time.Second)
	a.notif.Stop(nctx)
	ncancel()

	a.sup.Cancel()
	if err := a.sup.Wait(stopCtx); err != nil {
		a.log.Warn("supervisor drain incomplete", logx.Err(err))
	}

	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.logsvc.Close()
	return nil
}

// reloadLoop applies hot config changes: logging, notifier knobs and
// the poll cadence. Telegram token changes need a restart.
func (a *App) reloadLoop(ctx context.Context) {
	ch := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok || cfg == nil {
				return
			}
			a.applyConfig(cfg)
		}
	}
}

func (a *App) applyConfig(cfg *config.Config) {
	a.logsvc.Apply(logxConfig(cfg))
	if chatID := parseChatID(cfg.Telegram.GroupLog); chatID != 0 {
		a.logsvc.SetOpsChat(chatID, cfg.Logging.OpsChat.ThreadID)
	}

	a.notif.Apply(notifierConfig(cfg))

	coordCfg, err := coordinatorConfig(cfg)
	if err != nil {
		a.log.Warn("reload: bad monitor config kept old values", logx.Err(err))
	} else {
		a.coord.Apply(coordCfg)
	}
	a.log.Info("config reloaded")
}

func (a *App) collectEvents(ctx context.Context) {
	ch, unsubscribe := a.bus.Subscribe(64)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			a.eventsMu.Lock()
			a.events = append(a.events, ev)
			if len(a.events) > 50 {
				a.events = a.events[len(a.events)-50:]
			}
			a.eventsMu.Unlock()
		}
	}
}

func (a *App) recentEvents() []eventbus.Event {
	a.eventsMu.Lock()
	defer a.eventsMu.Unlock()
	return append([]eventbus.Event(nil), a.events...)
}

// validateConfig is the reload gate: a config that fails here is
// rejected without touching the running services.
func validateConfig(ctx context.Context, cfg *config.Config) error {
	_ = ctx
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if _, err := coordinatorConfig(cfg); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("monitor.fetch_timeout", cfg.Monitor.FetchTimeout); err != nil {
		return err
	}
	if n := cfg.Notifier; n != nil {
		for path, raw := range map[string]string{
			"notifier.retry_base":      n.RetryBase,
			"notifier.retry_max_delay": n.RetryMaxDelay,
			"notifier.dedup_window":    n.DedupWindow,
		} {
			if _, err := config.ParseDurationField(path, raw); err != nil {
				return err
			}
		}
	}
	return nil
}

// durOr is for call sites that run after validation; errors fall back
// to the default.
func durOr(raw string, def time.Duration) time.Duration {
	d, err := config.ParseDurationOrDefault("", raw, def)
	if err != nil {
		return def
	}
	return d
}

func coordinatorConfig(cfg *config.Config) (monitor.CoordinatorConfig, error) {
	raw := strings.TrimSpace(cfg.Monitor.Schedule)
	if raw == "" {
		raw = "30s"
	}
	spec, err := schedule.Parse(raw)
	if err != nil {
		return monitor.CoordinatorConfig{}, fmt.Errorf("monitor.schedule: %w", err)
	}
	return monitor.CoordinatorConfig{
		Schedule:     spec,
		FetchTimeout: durOr(cfg.Monitor.FetchTimeout, 10*time.Second),
		Concurrency:  cfg.Monitor.Concurrency,
	}, nil
}

func notifierConfig(cfg *config.Config) notifier.Config {
	n := cfg.Notifier
	if n == nil {
		return notifier.Config{Enabled: true}
	}
	return notifier.Config{
		Enabled:         n.Enabled,
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		RetryBase:       durOr(n.RetryBase, 0),
		RetryMaxDelay:   durOr(n.RetryMaxDelay, 0),
		DedupWindow:     durOr(n.DedupWindow, 0),
		DedupMaxEntries: n.DedupMaxEntries,
	}
}

func logxConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		OpsChat: logx.OpsChatConfig{
			Enabled:    cfg.Logging.OpsChat.Enabled,
			ThreadID:   cfg.Logging.OpsChat.ThreadID,
			MinLevel:   cfg.Logging.OpsChat.MinLevel,
			RatePerSec: cfg.Logging.OpsChat.RatePerSec,
		},
	}
}

func parseChatID(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func sdNotify(state string, log logx.Logger) {
	if ok, err := daemon.SdNotify(false, state); err != nil {
		log.Debug("sd_notify failed", logx.Err(err))
	} else if ok {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}

// watchdogLoop pings systemd's watchdog at half the configured
// interval. No-op when the watchdog is not armed.
func watchdogLoop(ctx context.Context, log logx.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				log.Debug("watchdog ping failed", logx.Err(err))
			}
		}
	}
}
