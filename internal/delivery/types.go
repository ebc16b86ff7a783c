package delivery

import (
	"context"
	"fmt"
	"time"
)

const (
	MaxRetries   = 3
	BaseDelay    = 500 * time.Millisecond
	TextTimeout  = 30 * time.Second
	ImageTimeout = 60 * time.Second

	PreviewLen = 30
)

// Bus event types.
const (
	EventSent     = "delivery.sent"
	EventFailed   = "delivery.failed"
	EventDegraded = "delivery.degraded"
)

// Kind is the payload shape of one send.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Sender is the outbound capability. Implementations must honour ctx.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendImage(ctx context.Context, chatID int64, path, caption string) error
}

// Splitter is implemented by senders that cap message length. The engine
// sends each chunk with its own retry budget, so a retry never repeats a
// chunk that already went through.
type Splitter interface {
	Split(text string) []string
}

// Outcome is published on the event bus for every terminal result and
// every image-to-text degradation.
type Outcome struct {
	BatchID   string    `json:"batch_id,omitempty"`
	ChatID    int64     `json:"chat_id"`
	Rule      string    `json:"rule"`
	Kind      Kind      `json:"kind"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	Preview   string    `json:"preview"`
	ImagePath string    `json:"image_path,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// ImageMissingText is sent instead of an image whose file does not exist.
func ImageMissingText(text, path string) string {
	return fmt.Sprintf("%s (Image not found: %s)", text, path)
}

// ImageFailedText is sent after all image attempts failed.
func ImageFailedText(text, path string) string {
	return fmt.Sprintf("%s (Image attachment failed: %s)", text, path)
}
