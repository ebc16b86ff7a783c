// Package routing resolves a decoded command into per-chat delivery requests.
package routing

import (
	"fmt"

	"tgrelay/internal/command"
)

// Table is the immutable routing configuration.
type Table struct {
	Owner int64
	Lists map[string][]int64
}

// Rule names which routing rule produced a request.
type Rule string

const (
	RuleDirect      Rule = "direct"
	RuleList        Rule = "subscriber_list"
	RuleUnknownList Rule = "unknown_list"
	RuleOwner       Rule = "owner"
)

// Request is one unit of outbound delivery.
type Request struct {
	ChatID    int64
	Text      string
	ImagePath string // empty when no image
	Rule      Rule
	List      string // list name for RuleList and RuleUnknownList
	BatchID   string
}

func (r Request) HasImage() bool { return r.ImagePath != "" }

// UnknownListNotice is the owner diagnostic for a list missing from the table.
func UnknownListNotice(name string) string {
	return fmt.Sprintf("Warning: unknown subscriber list '%s'", name)
}

type rule struct {
	name    Rule
	matches func(cmd command.Command, t Table) bool
	expand  func(cmd command.Command, t Table) []Request
}

// rules are evaluated top to bottom; the first match wins. A command with both
// chat_id and subscriber_list set goes to chat_id only.
var rules = []rule{
	{
		name:    RuleDirect,
		matches: func(cmd command.Command, _ Table) bool { return cmd.ChatID != nil },
		expand: func(cmd command.Command, _ Table) []Request {
			return []Request{payload(cmd, *cmd.ChatID, RuleDirect, "")}
		},
	},
	{
		name: RuleList,
		matches: func(cmd command.Command, t Table) bool {
			if cmd.SubscriberList == nil {
				return false
			}
			_, ok := t.Lists[*cmd.SubscriberList]
			return ok
		},
		expand: func(cmd command.Command, t Table) []Request {
			name := *cmd.SubscriberList
			members := t.Lists[name]
			out := make([]Request, 0, len(members))
			for _, id := range members {
				out = append(out, payload(cmd, id, RuleList, name))
			}
			return out
		},
	},
	{
		name:    RuleUnknownList,
		matches: func(cmd command.Command, _ Table) bool { return cmd.SubscriberList != nil },
		expand: func(cmd command.Command, t Table) []Request {
			name := *cmd.SubscriberList
			return []Request{{
				ChatID: t.Owner,
				Text:   UnknownListNotice(name),
				Rule:   RuleUnknownList,
				List:   name,
			}}
		},
	},
	{
		name:    RuleOwner,
		matches: func(command.Command, Table) bool { return true },
		expand: func(cmd command.Command, t Table) []Request {
			return []Request{payload(cmd, t.Owner, RuleOwner, "")}
		},
	},
}

func payload(cmd command.Command, chatID int64, r Rule, list string) Request {
	req := Request{ChatID: chatID, Text: cmd.Text, Rule: r, List: list}
	if cmd.ImagePath != nil {
		req.ImagePath = *cmd.ImagePath
	}
	return req
}

// Resolve expands cmd into delivery requests in delivery order.
// A known but empty list yields no requests.
func Resolve(cmd command.Command, t Table) []Request {
	for _, r := range rules {
		if r.matches(cmd, t) {
			return r.expand(cmd, t)
		}
	}
	return nil
}

// Match reports the rule Resolve would apply.
func Match(cmd command.Command, t Table) Rule {
	for _, r := range rules {
		if r.matches(cmd, t) {
			return r.name
		}
	}
	return ""
}
