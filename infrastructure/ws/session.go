package ws

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"support-hub/domain"
	hub "support-hub/errors"
)

// conn is the slice of *websocket.Conn the session depends on; tests swap in
// a recording fake.
type conn interface {
	WriteJSON(v any) error
	Close() error
}

// Session owns one live connection. Outbound frames go through a buffered
// channel drained by a single write pump, so concurrent pushers never write
// to the socket directly and a bounded Send can fail fast instead of
// blocking on a slow peer.
type Session struct {
	id       string
	identity string
	role     domain.Role

	log       *slog.Logger
	conn      conn
	out       chan domain.Frame
	closed    chan struct{}
	closeOnce sync.Once
}

func NewSession(log *slog.Logger, c conn, bufferSize int) *Session {
	return &Session{
		id:     uuid.NewString(),
		log:    log,
		conn:   c,
		out:    make(chan domain.Frame, bufferSize),
		closed: make(chan struct{}),
	}
}

// bind attaches the registered identity. Called once by the read pump before
// the session enters the registry; the registry's lock publishes it to
// pushers.
func (s *Session) bind(identity string, role domain.Role) {
	s.identity = identity
	s.role = role
}

func (s *Session) ID() string        { return s.id }
func (s *Session) Identity() string  { return s.identity }
func (s *Session) Role() domain.Role { return s.role }

// Send queues a frame for the write pump. It returns ErrConnectionLost when
// the session is closed or the buffer cannot absorb the frame before the
// context deadline; the caller treats either as a dead connection.
func (s *Session) Send(ctx context.Context, f domain.Frame) error {
	select {
	case <-s.closed:
		return hub.ErrConnectionLost
	default:
	}

	select {
	case s.out <- f:
		return nil
	case <-s.closed:
		return hub.ErrConnectionLost
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", hub.ErrConnectionLost, ctx.Err())
	}
}

// Close tears the connection down. Safe to call from any goroutine, any
// number of times; the read and write pumps both unblock.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		if err := s.conn.Close(); err != nil {
			s.log.Debug("Connection close", "error", err)
		}
	})
}

// writePump drains the outbound buffer onto the socket. It is the only
// goroutine writing to the connection. A write error closes the session,
// which in turn unblocks every pending Send.
func (s *Session) writePump() {
	for {
		select {
		case <-s.closed:
			return
		case f := <-s.out:
			if err := s.conn.WriteJSON(f); err != nil {
				s.log.Debug("Write failed, closing session",
					"identity", s.identity,
					"error", err)
				s.Close()
				return
			}
		}
	}
}
