package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tgrelay/internal/app"
	"tgrelay/internal/config"
	"tgrelay/internal/transport/zmq"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "relay",
		Short:         "Relay ZeroMQ queue messages to Telegram chats",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(cmd.Context(), cfgPath)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "",
		fmt.Sprintf("config file (default $%s or ~/.corky/config.toml)", config.EnvConfigPath))

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the relay (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runRelay(cmd.Context(), cfgPath)
			},
		},
		newSendCmd(),
		newCheckCmd(&cfgPath),
	)
	return root
}

func runRelay(parent context.Context, cfgPath string) error {
	path, err := config.ResolvePath(cfgPath)
	if err != nil {
		return err
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(path, zmq.NewTransport())
	if err != nil {
		return err
	}
	return a.Run(ctx)
}
