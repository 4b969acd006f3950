package net

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/opencity/server/internal/auth"
)

// Session is one WebSocket connection. The read pump runs in its own
// goroutine and enqueues commands for the scheduler; the write pump drains a
// bounded send queue. World state is never touched from here.
type Session struct {
	ID        uint64
	conn      *websocket.Conn
	Spectator bool
	TargetID  string // spectator's followed resident

	// ResidentID is set by the scheduler on bind; read from the pumps only
	// after binding, so a plain string is fine.
	ResidentID string
	Claims     auth.Claims

	out      chan []byte
	commands chan<- Command

	readTimeout  time.Duration
	writeTimeout time.Duration

	closeOnce sync.Once
	closed    atomic.Bool
	closeCh   chan struct{}

	log *zap.Logger
}

func newSession(conn *websocket.Conn, id uint64, outSize int, commands chan<- Command,
	readTimeout, writeTimeout time.Duration, log *zap.Logger) *Session {
	return &Session{
		ID:           id,
		conn:         conn,
		out:          make(chan []byte, outSize),
		commands:     commands,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		closeCh:      make(chan struct{}),
		log:          log.With(zap.Uint64("session", id)),
	}
}

// Send marshals and queues a message. A full queue drops the message rather
// than stalling the tick; perception is resent next tick anyway.
func (s *Session) Send(v any) {
	if s.closed.Load() {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error("marshal outbound", zap.Error(err))
		return
	}
	select {
	case s.out <- data:
	default:
		s.log.Debug("send queue full, dropping message")
	}
}

// CloseWith sends a close frame with an application code, then closes.
func (s *Session) CloseWith(code int, reason string) {
	deadline := time.Now().Add(time.Second)
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	s.Close()
}

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.closeCh)
		s.conn.Close()
	})
}

func (s *Session) IsClosed() bool { return s.closed.Load() }

// readPump parses inbound envelopes and forwards them to the scheduler.
// Spectator input is discarded. Blocking on a full command channel is safe:
// only this session's reads stall.
func (s *Session) readPump() {
	defer func() {
		s.command(Command{Kind: CmdClose})
		s.Close()
	}()
	for {
		if s.readTimeout > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		}
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("read error", zap.Error(err))
			}
			return
		}
		if s.Spectator {
			continue
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.Send(ErrorMsg{Type: "error", Code: "bad_json", Message: "message is not valid JSON"})
			continue
		}
		s.command(Command{Kind: CmdAction, Msg: msg})
	}
}

func (s *Session) command(c Command) {
	c.Session = s
	select {
	case s.commands <- c:
	case <-s.closeCh:
	}
}

// writePump drains the send queue to the socket.
func (s *Session) writePump() {
	defer s.Close()
	for {
		select {
		case data := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if !s.closed.Load() {
					s.log.Debug("write error", zap.Error(err))
				}
				return
			}
		case <-s.closeCh:
			return
		}
	}
}
