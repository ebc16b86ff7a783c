// Package telegram is the relay's Telegram Bot API adapter (telebot.v4).
//
// It implements the outbound send capability used by the delivery engine
// and answers the inbound /id and /help commands.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	rtsup "tgrelay/internal/runtime/supervisor"
	logx "tgrelay/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	RatePerSec  int
	// Commands enables the inbound /id and /help handlers and the long poller.
	Commands bool

	// URL overrides the Bot API endpoint. Offline skips the getMe check.
	URL     string
	Offline bool
}

type Adapter struct {
	cfg     Config
	log     logx.Logger
	bot     *tele.Bot
	limiter *rate.Limiter

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 25
	}

	a := &Adapter{
		cfg:     cfg,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.URL,
		Poller:  &tele.LongPoller{Timeout: cfg.PollTimeout},
		Offline: cfg.Offline,
		OnError: func(err error, c tele.Context) {
			fields := []logx.Field{logx.Err(err)}
			if c != nil && c.Chat() != nil {
				fields = append(fields, logx.Int64("chat_id", c.Chat().ID))
			}
			a.log.Warn("telegram handler error", fields...)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	a.bot = b
	if cfg.Commands {
		a.registerHandlers()
	}
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle("/id", func(c tele.Context) error {
		reply := fmt.Sprint(c.Chat().ID)
		if err := c.Send(reply); err != nil {
			return err
		}
		a.logInvocation(c, "id", "Chat ID: "+reply)
		return nil
	})
	a.bot.Handle("/help", func(c tele.Context) error {
		help := HelpText()
		if err := c.Send(help); err != nil {
			return err
		}
		a.logInvocation(c, "help", "Help: "+help)
		return nil
	})
}

func (a *Adapter) logInvocation(c tele.Context, cmd, response string) {
	inv := invokerOf(c.Sender())
	a.log.Info(
		fmt.Sprintf("User %s (@%s) id=%s invoked %s, responded with: %s", inv.Name, inv.Username, inv.ID, cmd, response),
		logx.String("command", cmd),
		logx.Int64("chat_id", c.Chat().ID),
	)
}

// Start publishes the command menu and runs the long poller under a restart
// loop. It is a no-op when inbound commands are disabled.
func (a *Adapter) Start(ctx context.Context) error {
	if !a.cfg.Commands {
		return nil
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log))
	sup := a.sup
	a.runMu.Unlock()

	if err := a.bot.SetCommands(teleCommands()); err != nil {
		a.log.Warn("set bot commands failed", logx.Err(err))
	}

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("command polling started")
		a.bot.Start()
		a.log.Info("command polling stopped")
		return nil
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

// Stop ends the long poller, waiting at most a short grace period.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()
	if !wasRunning || sup == nil {
		return nil
	}

	sup.Cancel()
	go a.bot.Stop()

	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		a.log.Warn("telegram stop timed out", logx.Err(err))
	}
	return nil
}

// Split cuts text into TextLimit chunks. The delivery engine sends and retries
// each chunk separately so a failed retry never repeats an earlier chunk.
func (a *Adapter) Split(text string) []string {
	return splitText(text, TextLimit)
}

// SendText sends text to chatID. Callers that do not pre-split get TextLimit
// chunking here, and a failure on any chunk fails the whole send.
func (a *Adapter) SendText(ctx context.Context, chatID int64, text string) error {
	chat := &tele.Chat{ID: chatID}
	for _, chunk := range splitText(text, TextLimit) {
		err := a.call(ctx, func() error {
			_, err := a.bot.Send(chat, chunk, &tele.SendOptions{DisableWebPagePreview: true})
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// SendImage uploads the file at path as a photo with caption.
func (a *Adapter) SendImage(ctx context.Context, chatID int64, path, caption string) error {
	photo := &tele.Photo{File: tele.FromDisk(path), Caption: truncateRunes(caption, CaptionLimit)}
	return a.call(ctx, func() error {
		_, err := a.bot.Send(&tele.Chat{ID: chatID}, photo)
		return err
	})
}

// call rate-limits fn and returns early when ctx ends. telebot has no
// context support, so an abandoned call finishes in the background.
func (a *Adapter) call(ctx context.Context, fn func() error) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
