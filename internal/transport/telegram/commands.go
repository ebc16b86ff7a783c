package telegram

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// BotCommand is one entry of the bot's command menu.
type BotCommand struct {
	Command     string
	Description string
}

// Commands are the inbound commands the relay answers.
var Commands = []BotCommand{
	{Command: "id", Description: "Display this chat's ID."},
	{Command: "help", Description: "Show this help text."},
}

// HelpText lists the supported commands.
func HelpText() string {
	var b strings.Builder
	b.WriteString("These commands are supported:")
	for _, c := range Commands {
		b.WriteString("\n/")
		b.WriteString(c.Command)
		b.WriteString(" - ")
		b.WriteString(c.Description)
	}
	return b.String()
}

// Invoker describes who sent a command, for the audit log line.
type Invoker struct {
	Name     string
	Username string
	ID       string
}

func invokerOf(u *tele.User) Invoker {
	if u == nil {
		return Invoker{Name: "unknown", Username: "unknown", ID: "unknown"}
	}
	inv := Invoker{Name: u.FirstName, Username: u.Username, ID: strconv.FormatInt(u.ID, 10)}
	if inv.Username == "" {
		inv.Username = "unknown"
	}
	return inv
}

func teleCommands() []tele.Command {
	out := make([]tele.Command, 0, len(Commands))
	for _, c := range Commands {
		out = append(out, tele.Command{Text: c.Command, Description: c.Description})
	}
	return out
}
