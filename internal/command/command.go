// Package command decodes queue messages into relay commands.
//
// A queue message is a multipart ZeroMQ message. Frame 0 is the routing
// envelope; frame 1 is a UTF-8 JSON array [status, action, command]. Only the
// third element is interpreted.
package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	ErrTooFewFrames        = errors.New("too few frames")
	ErrInvalidEncoding     = errors.New("payload is not valid UTF-8")
	ErrMalformedJSON       = errors.New("payload is not valid JSON")
	ErrShortEnvelope       = errors.New("payload array needs 3+ elements")
	ErrInvalidCommandShape = errors.New("invalid command structure")
)

const (
	// MinFrames is envelope + payload.
	MinFrames = 2

	payloadFrame = 1
	commandIndex = 2
)

// Command is one outbound notification request.
type Command struct {
	ChatID         *int64  `json:"chat_id,omitempty"`
	SubscriberList *string `json:"subscriber_list,omitempty"`
	Text           string  `json:"text"`
	ImagePath      *string `json:"image_path,omitempty"`
}

// wireCommand detects a missing "text" key, which Command alone cannot.
type wireCommand struct {
	ChatID         *int64  `json:"chat_id"`
	SubscriberList *string `json:"subscriber_list"`
	Text           *string `json:"text"`
	ImagePath      *string `json:"image_path"`
}

// Decode extracts the Command carried in frames. Returned errors wrap one of
// the package sentinels.
func Decode(frames [][]byte) (Command, error) {
	if len(frames) < MinFrames {
		return Command{}, fmt.Errorf("%w: got %d, need %d", ErrTooFewFrames, len(frames), MinFrames)
	}
	payload := frames[payloadFrame]
	if !utf8.Valid(payload) {
		return Command{}, ErrInvalidEncoding
	}

	if !json.Valid(payload) {
		return Command{}, ErrMalformedJSON
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(payload, &elems); err != nil {
		return Command{}, fmt.Errorf("%w: top level is not an array", ErrShortEnvelope)
	}
	if len(elems) <= commandIndex {
		return Command{}, fmt.Errorf("%w: got %d", ErrShortEnvelope, len(elems))
	}

	var w wireCommand
	if err := json.Unmarshal(elems[commandIndex], &w); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommandShape, err)
	}
	if w.Text == nil {
		return Command{}, fmt.Errorf("%w: missing text", ErrInvalidCommandShape)
	}
	return Command{
		ChatID:         w.ChatID,
		SubscriberList: w.SubscriberList,
		Text:           *w.Text,
		ImagePath:      w.ImagePath,
	}, nil
}

// Encode builds the payload frame for cmd with the given envelope metadata.
func Encode(status, action string, cmd Command) ([]byte, error) {
	return json.Marshal([]any{status, action, cmd})
}

// HasImage reports whether an image path was supplied.
func (c Command) HasImage() bool { return c.ImagePath != nil && *c.ImagePath != "" }
