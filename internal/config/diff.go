package config

import (
	"reflect"
	"strings"

	logx "tgrelay/pkg/logx"
)

// SummarizeConfigChange returns the changed section names and safe structured
// attrs for logging. The bot token is only reported as changed or not.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.BotToken != nt.BotToken ||
		ot.OwnerChatID != nt.OwnerChatID ||
		strings.TrimSpace(ot.ZMQEndpoint) != strings.TrimSpace(nt.ZMQEndpoint) ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		ot.CommandsEnabled() != nt.CommandsEnabled() ||
		!reflect.DeepEqual(ot.SubscriberLists, nt.SubscriberLists) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", ot.BotToken != nt.BotToken),
			logx.Int64("telegram.owner_chat_id", nt.OwnerChatID),
			logx.String("telegram.zmq_endpoint", nt.ZMQEndpoint),
			logx.Any("telegram.lists", listSizes(nt.SubscriberLists)),
		)
	}

	if oldCfg.Delivery != newCfg.Delivery {
		changed = append(changed, "delivery")
		attrs = append(attrs, logx.Int("delivery.rate_per_sec", newCfg.Delivery.RatePerSec))
	}

	ol, nl := oldCfg.Logging, newCfg.Logging
	if ol.Level != nl.Level || ol.ConsoleEnabled() != nl.ConsoleEnabled() ||
		ol.File != nl.File || ol.Telegram != nl.Telegram {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", nl.Level),
			logx.Bool("logging.file_enabled", nl.File.Enabled),
			logx.Bool("logging.telegram_enabled", nl.Telegram.Enabled),
		)
	}

	if oldCfg.Journal != newCfg.Journal {
		changed = append(changed, "journal")
		attrs = append(attrs,
			logx.String("journal.driver", newCfg.Journal.Driver),
			logx.String("journal.path", newCfg.Journal.Path),
		)
	}

	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.String("debug.addr", newCfg.Debug.Addr),
			logx.Bool("debug.token_set", newCfg.Debug.Token != ""),
		)
	}

	return changed, attrs
}

func listSizes(lists map[string][]int64) map[string]int {
	out := make(map[string]int, len(lists))
	for name, ids := range lists {
		out[name] = len(ids)
	}
	return out
}
