package delivery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"tgrelay/internal/eventbus"
	"tgrelay/internal/routing"
	logx "tgrelay/pkg/logx"
)

// ErrAttemptTimeout marks an attempt that hit its per-attempt deadline.
var ErrAttemptTimeout = errors.New("send attempt timed out")

type Engine struct {
	sender Sender
	log    logx.Logger
	bus    eventbus.Bus

	maxRetries   int
	baseDelay    time.Duration
	textTimeout  time.Duration
	imageTimeout time.Duration

	sleep func(ctx context.Context, d time.Duration) error
	stat  func(path string) error
	now   func() time.Time
}

type Option func(*Engine)

func WithBus(bus eventbus.Bus) Option { return func(e *Engine) { e.bus = bus } }

// WithRetryPolicy overrides attempt count and base backoff delay.
func WithRetryPolicy(maxRetries int, base time.Duration) Option {
	return func(e *Engine) {
		if maxRetries > 0 {
			e.maxRetries = maxRetries
		}
		if base >= 0 {
			e.baseDelay = base
		}
	}
}

// WithTimeouts overrides per-attempt timeouts for text and image sends.
func WithTimeouts(text, image time.Duration) Option {
	return func(e *Engine) {
		if text > 0 {
			e.textTimeout = text
		}
		if image > 0 {
			e.imageTimeout = image
		}
	}
}

// WithSleep replaces the backoff wait.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		if fn != nil {
			e.sleep = fn
		}
	}
}

// WithStat replaces the image existence check.
func WithStat(fn func(path string) error) Option {
	return func(e *Engine) {
		if fn != nil {
			e.stat = fn
		}
	}
}

func New(sender Sender, log logx.Logger, opts ...Option) *Engine {
	e := &Engine{
		sender:       sender,
		log:          log,
		maxRetries:   MaxRetries,
		baseDelay:    BaseDelay,
		textTimeout:  TextTimeout,
		imageTimeout: ImageTimeout,
		sleep:        sleepCtx,
		stat:         statFile,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func statFile(path string) error {
	_, err := os.Stat(path)
	return err
}

// Backoff is the wait after the zero-indexed failed attempt.
func (e *Engine) Backoff(attempt int) time.Duration {
	return e.baseDelay << attempt
}

// Deliver sends one request. It returns once the request succeeded or its
// retry budget (including any text fallback) is spent.
func (e *Engine) Deliver(ctx context.Context, req routing.Request) {
	log := e.log.With(
		logx.Int64("chat_id", req.ChatID),
		logx.String("rule", string(req.Rule)),
		logx.String("batch", req.BatchID),
	)

	if !req.HasImage() {
		e.deliverText(ctx, log, req, req.Text)
		return
	}

	if err := e.stat(req.ImagePath); err != nil {
		log.Warn("image not found; sending text only", logx.String("path", req.ImagePath), logx.Err(err))
		e.publish(EventDegraded, req, KindImage, 0, err)
		e.deliverText(ctx, log, req, ImageMissingText(req.Text, req.ImagePath))
		return
	}

	attempts, err := e.attempt(ctx, log, KindImage, e.imageTimeout, func(c context.Context) error {
		return e.sender.SendImage(c, req.ChatID, req.ImagePath, req.Text)
	})
	if err == nil {
		log.Info("image delivered", logx.String("path", req.ImagePath), logx.String("preview", Preview(req.Text)), logx.Int("attempts", attempts))
		e.publish(EventSent, req, KindImage, attempts, nil)
		return
	}
	log.Warn("image delivery failed; falling back to text",
		logx.String("path", req.ImagePath), logx.Int("attempts", attempts), logx.Err(err))
	e.publish(EventDegraded, req, KindImage, attempts, err)
	e.deliverText(ctx, log, req, ImageFailedText(req.Text, req.ImagePath))
}

func (e *Engine) deliverText(ctx context.Context, log logx.Logger, req routing.Request, text string) {
	sent := req
	sent.Text = text
	sent.ImagePath = ""

	chunks := []string{text}
	if sp, ok := e.sender.(Splitter); ok {
		if parts := sp.Split(text); len(parts) > 0 {
			chunks = parts
		}
	}

	total := 0
	for i, chunk := range chunks {
		attempts, err := e.attempt(ctx, log, KindText, e.textTimeout, func(c context.Context) error {
			return e.sender.SendText(c, req.ChatID, chunk)
		})
		total += attempts
		if err != nil {
			log.Error("message delivery failed",
				logx.String("preview", Preview(text)),
				logx.Int("chunk", i+1),
				logx.Int("chunks", len(chunks)),
				logx.Int("attempts", total),
				logx.Err(err),
			)
			e.publish(EventFailed, sent, KindText, total, err)
			return
		}
	}
	log.Info("message delivered", logx.String("preview", Preview(text)), logx.Int("chunks", len(chunks)), logx.Int("attempts", total))
	e.publish(EventSent, sent, KindText, total, nil)
}

// attempt runs send up to maxRetries times, each bounded by timeout, sleeping
// Backoff(i) after every failed attempt except the last.
func (e *Engine) attempt(ctx context.Context, log logx.Logger, kind Kind, timeout time.Duration, send func(context.Context) error) (int, error) {
	var lastErr error
	for i := 0; i < e.maxRetries; i++ {
		lastErr = e.once(ctx, timeout, send)
		if lastErr == nil {
			return i + 1, nil
		}
		log.Warn("send attempt failed",
			logx.String("kind", string(kind)),
			logx.Int("attempt", i+1),
			logx.Int("max", e.maxRetries),
			logx.Err(lastErr),
		)
		if i == e.maxRetries-1 {
			break
		}
		if err := e.sleep(ctx, e.Backoff(i)); err != nil {
			return i + 1, fmt.Errorf("retry aborted: %w", err)
		}
	}
	return e.maxRetries, lastErr
}

// once runs a single attempt. The deadline holds even if send ignores ctx.
func (e *Engine) once(ctx context.Context, timeout time.Duration, send func(context.Context) error) error {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- send(actx) }()

	select {
	case err := <-done:
		if err != nil && errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w after %s", ErrAttemptTimeout, timeout)
		}
		return err
	case <-actx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w after %s", ErrAttemptTimeout, timeout)
	}
}

func (e *Engine) publish(typ string, req routing.Request, kind Kind, attempts int, err error) {
	if e.bus == nil {
		return
	}
	now := e.now()
	o := Outcome{
		BatchID:   req.BatchID,
		ChatID:    req.ChatID,
		Rule:      string(req.Rule),
		Kind:      kind,
		Status:    strings.TrimPrefix(typ, "delivery."),
		Attempts:  attempts,
		Preview:   Preview(req.Text),
		ImagePath: req.ImagePath,
		At:        now,
	}
	if err != nil {
		o.Error = err.Error()
	}
	e.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: o})
}
