// Package listener owns the ZeroMQ connection that feeds the relay.
//
// Run blocks on a dedicated OS thread: it connects a fresh DEALER socket,
// polls it, hands every received message to the publish callback and
// reconnects after too many consecutive errors. Stop is the only way out.
package listener

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"tgrelay/internal/command"
	logx "tgrelay/pkg/logx"
)

const (
	Identity = "telegram"

	MaxConsecutiveErrors = 10
	PollTimeout          = 5 * time.Second
	SetupRetryDelay      = 5 * time.Second
	ReconnectDelay       = 5 * time.Second

	ReconnectInterval    = 1 * time.Second
	ReconnectIntervalMax = 30 * time.Second
)

// Transport creates sockets. Each call must return a socket backed by its
// own fresh context so a reconnect never reuses broken state.
type Transport interface {
	NewSocket() (Socket, error)
}

// Socket is the subset of a ZeroMQ DEALER socket the listener drives.
type Socket interface {
	SetIdentity(id string) error
	Connect(endpoint string) error
	SetLinger(d time.Duration) error
	SetReconnectInterval(base, ceiling time.Duration) error
	// Poll waits up to timeout for an inbound message; false means timeout.
	Poll(timeout time.Duration) (bool, error)
	RecvMultipart() ([][]byte, error)
	Close() error
}

// PublishFunc hands a received message to the dispatcher. It returns false
// once the consumer is gone.
type PublishFunc func(frames [][]byte) bool

type Config struct {
	Endpoint string
	Identity string

	PollTimeout          time.Duration
	SetupRetryDelay      time.Duration
	ReconnectDelay       time.Duration
	MaxConsecutiveErrors int
}

func (c Config) withDefaults() Config {
	if c.Identity == "" {
		c.Identity = Identity
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = PollTimeout
	}
	if c.SetupRetryDelay <= 0 {
		c.SetupRetryDelay = SetupRetryDelay
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = ReconnectDelay
	}
	if c.MaxConsecutiveErrors <= 0 {
		c.MaxConsecutiveErrors = MaxConsecutiveErrors
	}
	return c
}

type Listener struct {
	cfg       Config
	transport Transport
	publish   PublishFunc
	log       logx.Logger

	stop     atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	state    atomic.Int32

	sleep func(d time.Duration)

	// consecutive errors in the current polling session; only touched by Run.
	errs int
}

type Option func(*Listener)

// WithSleep replaces the setup-retry and reconnect waits.
func WithSleep(fn func(d time.Duration)) Option {
	return func(l *Listener) {
		if fn != nil {
			l.sleep = fn
		}
	}
}

func New(cfg Config, t Transport, publish PublishFunc, log logx.Logger, opts ...Option) *Listener {
	l := &Listener{
		cfg:       cfg.withDefaults(),
		transport: t,
		publish:   publish,
		log:       log,
		stopCh:    make(chan struct{}),
	}
	l.sleep = l.sleepUntilStop
	l.state.Store(int32(StateConnecting))
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Stop asks Run to return. It is safe to call more than once and from any goroutine.
func (l *Listener) Stop() {
	l.stop.Store(true)
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *Listener) stopping() bool { return l.stop.Load() }

func (l *Listener) State() State { return State(l.state.Load()) }

func (l *Listener) setState(to State) {
	from := State(l.state.Load())
	if from == to && to != StateConnecting {
		return
	}
	if !CanTransition(from, to) {
		l.log.Warn("unexpected listener transition", logx.String("from", from.String()), logx.String("to", to.String()))
	}
	l.state.Store(int32(to))
	l.log.Debug("listener state", logx.String("from", from.String()), logx.String("to", to.String()))
}

func (l *Listener) sleepUntilStop(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-l.stopCh:
	}
}

// Run drives the connection state machine until Stop is called or the
// publish callback reports the consumer is gone.
func (l *Listener) Run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer l.setState(StateStopped)

	l.log.Info("listener starting", logx.String("endpoint", l.cfg.Endpoint), logx.String("identity", l.cfg.Identity))
	defer l.log.Info("listener exited")

	for !l.stopping() {
		l.setState(StateConnecting)
		sock, err := l.connect()
		if err != nil {
			l.log.Error("queue setup failed; retrying", logx.Err(err), logx.Duration("delay", l.cfg.SetupRetryDelay))
			l.sleep(l.cfg.SetupRetryDelay)
			continue
		}

		l.setState(StatePolling)
		done := l.pollLoop(sock)
		if err := sock.Close(); err != nil {
			l.log.Debug("socket close failed", logx.Err(err))
		}
		if done || l.stopping() {
			return
		}

		l.setState(StateBackoff)
		l.log.Error("too many consecutive queue errors; reconnecting",
			logx.Int("errors", l.cfg.MaxConsecutiveErrors),
			logx.Duration("delay", l.cfg.ReconnectDelay),
		)
		l.sleep(l.cfg.ReconnectDelay)
	}
}

func (l *Listener) connect() (Socket, error) {
	sock, err := l.transport.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("create socket: %w", err)
	}
	if err := sock.SetIdentity(l.cfg.Identity); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("set identity: %w", err)
	}
	if err := sock.Connect(l.cfg.Endpoint); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("connect %s: %w", l.cfg.Endpoint, err)
	}
	l.log.Info("queue connected", logx.String("endpoint", l.cfg.Endpoint))

	// Option failures leave the socket usable.
	if err := sock.SetLinger(0); err != nil {
		l.log.Warn("set linger failed", logx.Err(err))
	}
	if err := sock.SetReconnectInterval(ReconnectInterval, ReconnectIntervalMax); err != nil {
		l.log.Warn("set reconnect interval failed", logx.Err(err))
	}
	return sock, nil
}

// pollLoop returns true when the listener must exit for good (stop requested
// or consumer gone) and false when the error ceiling was hit.
func (l *Listener) pollLoop(sock Socket) bool {
	l.errs = 0
	for l.errs < l.cfg.MaxConsecutiveErrors {
		if l.stopping() {
			return true
		}
		ready, err := sock.Poll(l.cfg.PollTimeout)
		if err != nil {
			l.errs++
			l.log.Error("queue poll failed", logx.Err(err), logx.Int("consecutive", l.errs))
			continue
		}
		if !ready {
			l.errs = 0
			l.log.Trace("poll timeout; connection idle")
			continue
		}

		frames, err := sock.RecvMultipart()
		if err != nil {
			l.errs++
			l.log.Error("queue receive failed", logx.Err(err), logx.Int("consecutive", l.errs))
			continue
		}
		l.logFrames(frames)
		if !l.publish(frames) {
			l.log.Info("event channel closed; listener stopping")
			return true
		}
		l.errs = 0
	}
	return false
}

func (l *Listener) logFrames(frames [][]byte) {
	l.log.Info("queue message received", logx.Int("frames", len(frames)))
	if !l.log.Enabled(logx.LevelDebug) {
		return
	}
	for i, f := range frames {
		if i >= command.MinFrames {
			break
		}
		l.log.Debug("frame", logx.Int("index", i), logx.String("data", command.DescribeFrame(f)))
	}
}
