package app

import (
	"fmt"
	"strings"
	"time"

	"tgrelay/internal/config"
	"tgrelay/internal/observability/debug"
	"tgrelay/internal/routing"
	"tgrelay/internal/storage"
	telegram "tgrelay/internal/transport/telegram"
	logx "tgrelay/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Telegram.OwnerChatID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, config.DefaultPollTimeout)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       cfg.Telegram.BotToken,
		PollTimeout: pollTimeout,
		RatePerSec:  cfg.Delivery.RatePerSec,
		Commands:    cfg.Telegram.CommandsEnabled(),
	}, nil
}

// mapJournalConfig returns enabled=false for the "none" driver.
func mapJournalConfig(cfg *config.Config) (storage.Config, bool, error) {
	jc := cfg.Journal
	driver := strings.ToLower(strings.TrimSpace(jc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(jc.Path)
	if path == "" {
		return storage.Config{}, false, fmt.Errorf("journal.path is required when journal.driver=%s", driver)
	}
	busy, err := config.ParseDurationOrDefault("journal.busy_timeout", jc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
}

// routingTable copies the lists so later config edits cannot reach the
// running router.
func routingTable(cfg *config.Config) routing.Table {
	lists := make(map[string][]int64, len(cfg.Telegram.SubscriberLists))
	for name, ids := range cfg.Telegram.SubscriberLists {
		lists[name] = append([]int64(nil), ids...)
	}
	return routing.Table{Owner: cfg.Telegram.OwnerChatID, Lists: lists}
}

func mapDebugConfig(cfg *config.Config) (debug.Config, bool) {
	addr := strings.TrimSpace(cfg.Debug.Addr)
	if addr == "" {
		return debug.Config{}, false
	}
	return debug.Config{Addr: addr, Token: cfg.Debug.Token, AllowInsecure: cfg.Debug.AllowInsecure}, true
}
