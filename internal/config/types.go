package config

// Config is the on-disk relay configuration.
//
// The default location is ~/.corky/config.toml, shared with other corky tools,
// so unknown sections are ignored rather than rejected.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Delivery DeliveryConfig `json:"delivery"`
	Logging  LoggingConfig  `json:"logging"`
	Journal  JournalConfig  `json:"journal"`
	Debug    DebugConfig    `json:"debug"`
}

type TelegramConfig struct {
	// BotToken may be overridden by TELEGRAM_BOT_TOKEN. Never logged.
	BotToken    string `json:"bot_token"`
	OwnerChatID int64  `json:"owner_chat_id"`

	// SubscriberLists maps a list name to its member chat ids, in delivery order.
	SubscriberLists map[string][]int64 `json:"subscriber_lists"`

	ZMQEndpoint string `json:"zmq_endpoint"`

	// PollTimeout is the Telegram long-poll timeout (Go duration string, default "10s").
	PollTimeout string `json:"poll_timeout"`

	// Commands toggles the inbound /id and /help handlers (default on).
	Commands *bool `json:"commands,omitempty"`
}

// DeliveryConfig tunes the outbound side. Retry counts and delays are fixed.
type DeliveryConfig struct {
	// RatePerSec caps outbound Telegram API calls (default 25).
	RatePerSec int `json:"rate_per_sec"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  *bool           `json:"console,omitempty"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards warnings to the owner chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// JournalConfig controls the optional delivery journal.
//
// Example:
//
//	[journal]
//	driver = "sqlite"
//	path = "/var/lib/tgrelay/journal.db"
type JournalConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// DebugConfig enables the operator HTTP endpoint (status, pprof) when Addr is set.
type DebugConfig struct {
	Addr          string `json:"addr"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

func (c TelegramConfig) CommandsEnabled() bool {
	return c.Commands == nil || *c.Commands
}

func (c LoggingConfig) ConsoleEnabled() bool {
	return c.Console == nil || *c.Console
}
