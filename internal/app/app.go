// Package app wires the relay together and coordinates its shutdown.
package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"tgrelay/internal/config"
	"tgrelay/internal/delivery"
	"tgrelay/internal/dispatch"
	"tgrelay/internal/eventbus"
	"tgrelay/internal/listener"
	"tgrelay/internal/observability/debug"
	"tgrelay/internal/runtime/supervisor"
	"tgrelay/internal/storage"
	telegram "tgrelay/internal/transport/telegram"
	logx "tgrelay/pkg/logx"
)

const stopGrace = 5 * time.Second

type App struct {
	cfgm *config.Manager
	cfg  *config.Config

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter
	engine  *delivery.Engine

	ch       *dispatch.Channel
	disp     *dispatch.Dispatcher
	listener *listener.Listener

	debug *debug.Server
	sup   *supervisor.Supervisor

	startedAt time.Time
}

type options struct {
	offline bool
}

type Option func(*options)

// WithOfflineTelegram builds the bot without the startup getMe call.
func WithOfflineTelegram() Option {
	return func(o *options) { o.offline = true }
}

// NewApp loads the config at cfgPath and builds every component. Nothing
// runs until Run is called.
func NewApp(cfgPath string, transport listener.Transport, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// Telegram logging is enabled after the bot exists so Apply does not
	// start a sink without a sender.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	tcfg, err := mapTelegramConfig(cfg)
	if err != nil {
		return nil, err
	}
	tcfg.Offline = o.offline
	ad, err := telegram.New(tcfg, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}
	logSvc.AttachSender(ad)
	logSvc.Apply(logCfg)

	bus := eventbus.New()

	var store storage.Store
	if jc, enabled, err := mapJournalConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(jc, log.With(logx.String("comp", "journal")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("journal enabled", logx.String("driver", jc.Driver), logx.String("path", jc.Path))
	}

	engine := delivery.New(ad, log.With(logx.String("comp", "delivery")), delivery.WithBus(bus))

	ch := dispatch.NewChannel(dispatch.ChannelCapacity)
	disp := dispatch.New(ch, routingTable(cfg), engine, log.With(logx.String("comp", "dispatch")), dispatch.WithBus(bus))

	lst := listener.New(listener.Config{Endpoint: cfg.Telegram.ZMQEndpoint}, transport,
		func(frames [][]byte) bool {
			return ch.Publish(context.Background(), dispatch.QueueBatch(frames))
		},
		log.With(logx.String("comp", "listener")),
	)

	a := &App{
		cfgm:     cfgm,
		cfg:      cfg,
		log:      log.With(logx.String("comp", "app")),
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		engine:   engine,
		ch:       ch,
		disp:     disp,
		listener: lst,
	}
	if dc, enabled := mapDebugConfig(cfg); enabled {
		if err := debug.CheckBind(dc); err != nil {
			return nil, err
		}
		a.debug = debug.New(dc, func() any { return a.Status() }, log.With(logx.String("comp", "debug")))
	}
	return a, nil
}

// Run starts the relay and blocks until it has shut down. Cancelling ctx
// (the interrupt) posts one Shutdown event; deliveries already in progress
// are not cut short by it.
func (a *App) Run(ctx context.Context) error {
	a.sup = supervisor.New(context.Background(), supervisor.WithLogger(a.log))
	a.startedAt = time.Now()

	if err := a.adapter.Start(a.sup.Context()); err != nil {
		return err
	}
	if a.store != nil {
		rec := storage.NewRecorder(a.store, a.log.With(logx.String("comp", "journal")))
		a.sup.Go0("journal.recorder", func(c context.Context) { rec.Run(c, a.bus) })
	}
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c, a.onConfigChange)
	})
	a.startWatchdog()
	if a.debug != nil {
		a.sup.GoRestart("debug.http", a.debug.Run,
			supervisor.WithRestartBackoff(time.Second, 30*time.Second))
	}

	lstDone := make(chan struct{})
	go func() {
		defer close(lstDone)
		a.listener.Run()
	}()

	go a.watchInterrupt(ctx)

	a.log.Info("relay started",
		logx.String("endpoint", a.cfg.Telegram.ZMQEndpoint),
		logx.Int("lists", len(a.cfg.Telegram.SubscriberLists)),
		logx.Bool("commands", a.cfg.Telegram.CommandsEnabled()),
	)
	notifySystemd(a.log, notifyReady)

	runErr := a.disp.Run(context.Background())
	if errors.Is(runErr, dispatch.ErrChannelClosed) {
		runErr = nil
	}

	notifySystemd(a.log, notifyStopping)
	a.log.Info("shutting down")
	a.listener.Stop()
	a.ch.Close()
	<-lstDone
	a.log.Info("listener joined")

	a.shutdown()
	return runErr
}

// watchInterrupt turns ctx cancellation into a Shutdown event. It also
// returns when the dispatcher has gone away on its own.
func (a *App) watchInterrupt(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-a.sup.Context().Done():
		return
	}
	reason := "interrupt"
	if err := context.Cause(ctx); err != nil && !errors.Is(err, context.Canceled) {
		reason = err.Error()
	}
	a.log.Info("interrupt received; requesting shutdown", logx.String("reason", reason))
	if !a.ch.Publish(context.Background(), dispatch.Shutdown(reason)) {
		a.log.Debug("event channel already closed")
	}
}

func (a *App) shutdown() {
	sctx, cancel := context.WithTimeout(context.Background(), stopGrace)
	defer cancel()

	if err := a.adapter.Stop(sctx); err != nil {
		a.log.Warn("telegram stop failed", logx.Err(err))
	}
	if err := a.sup.Stop(sctx); err != nil {
		a.log.Warn("supervisor stop", logx.Err(err))
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("journal close failed", logx.Err(err))
		}
	}
	if n := a.bus.Dropped(); n > 0 {
		a.log.Debug("event bus drops", logx.Int64("dropped", int64(n)))
	}
	a.log.Info("relay stopped")
	_ = a.logs.Close()
}

// onConfigChange applies logging edits live. Routing, transport and journal
// settings are fixed for the process lifetime.
func (a *App) onConfigChange(old, cur *config.Config) {
	sections, attrs := config.SummarizeConfigChange(old, cur)
	if len(sections) == 0 {
		a.log.Debug("config rewritten without effective changes")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)

	restart := make([]string, 0, len(sections))
	for _, s := range sections {
		if s == "logging" {
			a.logs.Apply(mapLogConfig(cur))
			continue
		}
		restart = append(restart, s)
	}
	if len(restart) > 0 {
		a.log.Warn("config changed; restart to apply", append(fields, logx.String("pending", strings.Join(restart, ",")))...)
		return
	}
	a.log.Info("config reloaded", fields...)
}

// Status is the snapshot served on the debug endpoint.
type Status struct {
	Listener   string              `json:"listener"`
	QueueDepth int                 `json:"queue_depth"`
	BusDropped uint64              `json:"bus_dropped"`
	Uptime     string              `json:"uptime"`
	Goroutines supervisor.Counters `json:"goroutines"`
	Lists      map[string]int      `json:"lists"`
}

func (a *App) Status() Status {
	st := Status{
		Listener:   a.listener.State().String(),
		QueueDepth: a.ch.Len(),
		BusDropped: a.bus.Dropped(),
		Lists:      make(map[string]int, len(a.cfg.Telegram.SubscriberLists)),
	}
	if !a.startedAt.IsZero() {
		st.Uptime = time.Since(a.startedAt).Truncate(time.Second).String()
	}
	if a.sup != nil {
		st.Goroutines = a.sup.Counters()
	}
	for name, ids := range a.cfg.Telegram.SubscriberLists {
		st.Lists[name] = len(ids)
	}
	return st
}
