package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "tgrelay/pkg/logx"
)

const (
	DefaultZMQEndpoint = "tcp://127.0.0.1:6565"
	DefaultRatePerSec  = 25
	DefaultPollTimeout = 10 * time.Second

	EnvConfigPath = "TGRELAY_CONFIG"
	EnvBotToken   = "TELEGRAM_BOT_TOKEN"
)

var (
	ErrMissingToken = errors.New("telegram.bot_token is required")
	ErrMissingOwner = errors.New("telegram.owner_chat_id is required")
)

// DefaultPath returns ~/.corky/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("unable to determine home directory: %w", err)
	}
	return filepath.Join(home, ".corky", "config.toml"), nil
}

// ResolvePath picks the config path: explicit flag, then $TGRELAY_CONFIG, then DefaultPath.
func ResolvePath(flagValue string) (string, error) {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p, nil
	}
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	return DefaultPath()
}

type Manager struct {
	path string

	mu  sync.RWMutex
	cfg *Config

	log logx.Logger

	// lastHash tracks the last committed content so editor write bursts
	// without content changes are ignored.
	lastHash uint64
}

func NewManager(path string) *Manager {
	return &Manager{path: path, log: logx.Nop()}
}

func (m *Manager) Path() string { return m.path }

func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

// Parse reads, decodes, defaults and validates the config file without committing it.
func (m *Manager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", m.path, err)
	}
	cfg, err := Decode(m.path, b)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", m.path, err)
	}
	return cfg, nil
}

// Decode parses raw config bytes; path only selects the format.
func Decode(path string, data []byte) (*Config, error) {
	jb, _, err := coerceToJSONBytes(path, data)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, errors.New("invalid config: trailing data")
		}
		return nil, err
	}

	if tok := strings.TrimSpace(os.Getenv(EnvBotToken)); tok != "" {
		cfg.Telegram.BotToken = tok
	}
	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	cfg.Telegram.BotToken = strings.TrimSpace(cfg.Telegram.BotToken)
	if strings.TrimSpace(cfg.Telegram.ZMQEndpoint) == "" {
		cfg.Telegram.ZMQEndpoint = DefaultZMQEndpoint
	}
	if cfg.Telegram.SubscriberLists == nil {
		cfg.Telegram.SubscriberLists = map[string][]int64{}
	}
	if cfg.Delivery.RatePerSec <= 0 {
		cfg.Delivery.RatePerSec = DefaultRatePerSec
	}
	if strings.TrimSpace(cfg.Journal.Driver) == "" {
		cfg.Journal.Driver = "none"
	}
}

// Validate checks required fields and value shapes.
func Validate(cfg *Config) error {
	if cfg.Telegram.BotToken == "" {
		return ErrMissingToken
	}
	if cfg.Telegram.OwnerChatID == 0 {
		return ErrMissingOwner
	}
	for name := range cfg.Telegram.SubscriberLists {
		if strings.TrimSpace(name) == "" {
			return errors.New("telegram.subscriber_lists: list name must not be empty")
		}
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("journal.busy_timeout", cfg.Journal.BusyTimeout); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Journal.Driver)) {
	case "none", "file", "sqlite":
	default:
		return fmt.Errorf("journal.driver: unsupported driver %q", cfg.Journal.Driver)
	}
	if addr := strings.TrimSpace(cfg.Debug.Addr); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("debug.addr: %w", err)
		}
	}
	return nil
}

func (m *Manager) Commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hashConfig(cfg)
	m.mu.Unlock()
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

// Watch reports edits of the config file to onChange until ctx is done.
// Invalid edits are logged and skipped; the committed config only moves forward
// on a successful parse.
func (m *Manager) Watch(ctx context.Context, onChange func(old, cur *Config)) error {
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	const (
		restartBackoffBase = 250 * time.Millisecond
		restartBackoffMax  = 5 * time.Second
		debounceDelay      = 250 * time.Millisecond
	)
	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	nextWait := func() time.Duration {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		backoff = min(backoff*2, restartBackoffMax)
		return wait
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		cfg, err := m.Parse()
		if err != nil {
			m.log.Warn("config parse failed", logx.String("path", m.path), logx.Err(err))
			return
		}
		h := hashConfig(cfg)
		m.mu.RLock()
		unchanged := h != 0 && h == m.lastHash
		old := m.cfg
		m.mu.RUnlock()
		if unchanged {
			m.log.Debug("config unchanged", logx.String("path", m.path))
			return
		}
		m.Commit(cfg)
		if onChange != nil {
			onChange(old, cfg)
		}
	}
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounceDelay, reload)
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		w, err := fsnotify.NewWatcher()
		if err == nil {
			if err = w.Add(dir); err != nil {
				_ = w.Close()
			}
		}
		if err != nil {
			m.log.Warn("config watch init failed", logx.Err(err), logx.String("dir", dir))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(nextWait()):
				continue
			}
		}

		backoff = restartBackoffBase
		m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				if strings.EqualFold(filepath.Base(ev.Name), file) &&
					ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					debounce()
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if errors.Is(err, fsnotify.ErrEventOverflow) {
					m.log.Warn("config watch overflow; forcing reload", logx.String("dir", dir))
					debounce()
					continue
				}
				m.log.Warn("config watch error", logx.Err(err), logx.String("dir", dir))
			}
		}

		_ = w.Close()
		wait := nextWait()
		m.log.Warn("config watcher stopped; restarting", logx.String("dir", dir), logx.Duration("backoff", wait))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}
