// Package zmq adapts github.com/pebbe/zmq4 to the listener's transport
// interface and provides the one-shot sender used by `relay send`.
package zmq

import (
	"errors"
	"fmt"
	"time"

	zmq4 "github.com/pebbe/zmq4"

	"tgrelay/internal/listener"
)

// Transport creates DEALER sockets, each on its own context.
type Transport struct{}

func NewTransport() Transport { return Transport{} }

func (Transport) NewSocket() (listener.Socket, error) {
	zctx, err := zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}
	sock, err := zctx.NewSocket(zmq4.DEALER)
	if err != nil {
		_ = zctx.Term()
		return nil, fmt.Errorf("new dealer socket: %w", err)
	}
	poller := zmq4.NewPoller()
	poller.Add(sock, zmq4.POLLIN)
	return &Socket{ctx: zctx, sock: sock, poller: poller}, nil
}

// Socket is a DEALER socket bound to a private context. Not safe for
// concurrent use; the listener drives it from a single locked thread.
type Socket struct {
	ctx    *zmq4.Context
	sock   *zmq4.Socket
	poller *zmq4.Poller
	closed bool
}

func (s *Socket) SetIdentity(id string) error { return s.sock.SetIdentity(id) }
func (s *Socket) Connect(endpoint string) error { return s.sock.Connect(endpoint) }
func (s *Socket) SetLinger(d time.Duration) error {
	return s.sock.SetLinger(d)
}

func (s *Socket) SetReconnectInterval(base, ceiling time.Duration) error {
	return errors.Join(s.sock.SetReconnectIvl(base), s.sock.SetReconnectIvlMax(ceiling))
}

func (s *Socket) Poll(timeout time.Duration) (bool, error) {
	polled, err := s.poller.Poll(timeout)
	if err != nil {
		return false, err
	}
	for _, p := range polled {
		if p.Socket == s.sock && p.Events&zmq4.POLLIN != 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *Socket) RecvMultipart() ([][]byte, error) {
	return s.sock.RecvMessageBytes(0)
}

// Close closes the socket and terminates its context.
func (s *Socket) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return errors.Join(s.sock.Close(), s.ctx.Term())
}

// Send connects a DEALER socket with the given identity, sends frames as one
// multipart message and waits up to flush for it to leave the process.
func Send(endpoint, identity string, frames [][]byte, flush time.Duration) error {
	if len(frames) == 0 {
		return errors.New("no frames to send")
	}
	zctx, err := zmq4.NewContext()
	if err != nil {
		return fmt.Errorf("new context: %w", err)
	}
	sock, err := zctx.NewSocket(zmq4.DEALER)
	if err != nil {
		_ = zctx.Term()
		return fmt.Errorf("new dealer socket: %w", err)
	}
	s := &Socket{ctx: zctx, sock: sock}
	defer s.Close()

	if err := sock.SetLinger(flush); err != nil {
		return fmt.Errorf("set linger: %w", err)
	}
	if identity != "" {
		if err := sock.SetIdentity(identity); err != nil {
			return fmt.Errorf("set identity: %w", err)
		}
	}
	if err := sock.Connect(endpoint); err != nil {
		return fmt.Errorf("connect %s: %w", endpoint, err)
	}

	parts := make([]any, len(frames))
	for i, f := range frames {
		parts[i] = f
	}
	if _, err := sock.SendMessage(parts...); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}
