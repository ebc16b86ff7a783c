package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"tgrelay/internal/command"
	"tgrelay/internal/config"
	"tgrelay/internal/listener"
	"tgrelay/internal/transport/zmq"
)

type sendOptions struct {
	destination string
	chatID      int64
	list        string
	text        string
	status      string
	action      string
	endpoint    string
	image       string
	identity    string
	debug       bool

	hasChatID bool
}

func newSendCmd() *cobra.Command {
	var o sendOptions
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Publish a test message to a running relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.hasChatID = cmd.Flags().Changed("chat-id")
			return runSend(cmd.OutOrStdout(), o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.destination, "destination", listener.Identity, "destination identity (first frame)")
	f.Int64Var(&o.chatID, "chat-id", 0, "chat id to send the message to")
	f.StringVar(&o.list, "list", "", "subscriber list name to send the message to")
	f.StringVar(&o.text, "text", "Test message from relay send", "message text")
	f.StringVar(&o.status, "status", "ok", "status field of the envelope")
	f.StringVar(&o.action, "action", "send_message", "action field of the envelope")
	f.StringVar(&o.endpoint, "endpoint", config.DefaultZMQEndpoint, "ZeroMQ endpoint")
	f.StringVar(&o.image, "image", "", "path to an image to attach")
	f.StringVar(&o.identity, "identity", "test-client", "identity of the sending socket")
	f.BoolVar(&o.debug, "debug", false, "print the frames being sent")
	return cmd
}

func buildFrames(o sendOptions) ([][]byte, error) {
	var cmd command.Command
	cmd.Text = o.text
	if o.hasChatID {
		id := o.chatID
		cmd.ChatID = &id
	}
	if o.list != "" {
		list := o.list
		cmd.SubscriberList = &list
	}
	if o.image != "" {
		img := o.image
		cmd.ImagePath = &img
	}
	payload, err := command.Encode(o.status, o.action, cmd)
	if err != nil {
		return nil, err
	}
	return [][]byte{[]byte(o.destination), payload}, nil
}

func runSend(w io.Writer, o sendOptions) error {
	frames, err := buildFrames(o)
	if err != nil {
		return err
	}
	if !o.hasChatID && o.list == "" {
		fmt.Fprintln(w, "No destination specified. Message will be sent to the owner's chat ID.")
	}
	fmt.Fprintf(w, "Connecting to %s\n", o.endpoint)
	if o.debug {
		fmt.Fprintf(w, "Sender identity: %s\n", o.identity)
		fmt.Fprintf(w, "Frame count: %d\n", len(frames))
		for i, f := range frames {
			fmt.Fprintf(w, "  Frame %d: %s\n", i, command.DescribeFrame(f))
		}
	}
	if err := zmq.Send(o.endpoint, o.identity, frames, time.Second); err != nil {
		return err
	}
	fmt.Fprintln(w, "Message sent successfully")
	return nil
}
