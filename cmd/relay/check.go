package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"tgrelay/internal/config"
)

func newCheckCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config file and print the routing table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ResolvePath(*cfgPath)
			if err != nil {
				return err
			}
			cfg, err := config.NewManager(path).Parse()
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), path, cfg)
			return nil
		},
	}
}

// printSummary never prints the bot token.
func printSummary(w io.Writer, path string, cfg *config.Config) {
	fmt.Fprintf(w, "config:    %s\n", path)
	fmt.Fprintf(w, "endpoint:  %s\n", cfg.Telegram.ZMQEndpoint)
	fmt.Fprintf(w, "owner:     %d\n", cfg.Telegram.OwnerChatID)
	fmt.Fprintf(w, "commands:  %t\n", cfg.Telegram.CommandsEnabled())
	fmt.Fprintf(w, "journal:   %s\n", cfg.Journal.Driver)

	names := make([]string, 0, len(cfg.Telegram.SubscriberLists))
	for name := range cfg.Telegram.SubscriberLists {
		names = append(names, name)
	}
	slices.Sort(names)
	fmt.Fprintf(w, "lists:     %d\n", len(names))
	for _, name := range names {
		ids := cfg.Telegram.SubscriberLists[name]
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = fmt.Sprint(id)
		}
		fmt.Fprintf(w, "  %s (%d): %s\n", name, len(ids), strings.Join(parts, ", "))
	}
}
