// Package net is the connection gateway: WebSocket lifecycle, token checks,
// and the bounded command channel into the scheduler. Sessions never touch
// world state; binding, perception fan-out, and action dispatch all happen
// on the scheduler goroutine.
package net

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/opencity/server/internal/auth"
	"github.com/opencity/server/internal/config"
)

// Command kinds delivered to the scheduler.
const (
	CmdBind     = "bind"     // player token verified, attach to resident
	CmdSpectate = "spectate" // register spectator
	CmdAction   = "action"   // client action envelope
	CmdClose    = "close"    // connection went away
)

// Command is one unit of inbound work for the scheduler.
type Command struct {
	Session *Session
	Kind    string
	Claims  auth.Claims   // CmdBind
	Msg     ClientMessage // CmdAction
}

// Gateway upgrades connections and verifies tokens before handing sessions
// to the scheduler over the command channel.
type Gateway struct {
	keeper   *auth.Keeper
	log      *zap.Logger
	cfg      config.NetworkConfig
	commands chan Command

	nextID atomic.Uint64

	mu       sync.Mutex
	sessions map[uint64]*Session

	upgrader websocket.Upgrader
}

func NewGateway(keeper *auth.Keeper, cfg config.NetworkConfig, log *zap.Logger) *Gateway {
	return &Gateway{
		keeper:   keeper,
		log:      log,
		cfg:      cfg,
		commands: make(chan Command, cfg.InQueueSize),
		sessions: make(map[uint64]*Session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Commands is the scheduler's inbound queue.
func (g *Gateway) Commands() <-chan Command { return g.commands }

// HandleWS is the /ws endpoint. Players present a signed token (query param
// or a first `auth` message); spectators pass ?spectate=<residentID>.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Debug("upgrade failed", zap.Error(err))
		return
	}
	s := newSession(conn, g.nextID.Add(1), g.cfg.OutQueueSize, g.commands,
		g.cfg.ReadTimeout, g.cfg.WriteTimeout, g.log)
	g.track(s)
	go s.writePump()

	if target := r.URL.Query().Get("spectate"); target != "" {
		s.Spectator = true
		s.TargetID = target
		s.command(Command{Kind: CmdSpectate})
		go s.readPump() // keeps the socket alive, input discarded
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		// First message must be {type:"auth", params:{token}}.
		conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.Close()
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "auth" {
			s.Send(ErrorMsg{Type: "error", Code: "auth_required", Message: "first message must be auth"})
			s.CloseWith(CloseInvalidToken, "auth required")
			return
		}
		var p struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			s.CloseWith(CloseInvalidToken, "bad auth params")
			return
		}
		token = p.Token
	}

	claims, err := g.keeper.Verify(token)
	if err != nil {
		s.Send(ErrorMsg{Type: "error", Code: "invalid_token", Message: "token rejected"})
		s.CloseWith(CloseInvalidToken, "invalid token")
		return
	}
	s.Claims = claims
	s.command(Command{Kind: CmdBind, Claims: claims})
	go s.readPump()
}

func (g *Gateway) track(s *Session) {
	g.mu.Lock()
	g.sessions[s.ID] = s
	g.mu.Unlock()
	go func() {
		<-s.closeCh
		g.mu.Lock()
		delete(g.sessions, s.ID)
		g.mu.Unlock()
	}()
}

// SessionCount returns the number of live connections.
func (g *Gateway) SessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// CloseAll drains every connection during shutdown.
func (g *Gateway) CloseAll() {
	g.mu.Lock()
	sessions := make([]*Session, 0, len(g.sessions))
	for _, s := range g.sessions {
		sessions = append(sessions, s)
	}
	g.mu.Unlock()
	for _, s := range sessions {
		s.CloseWith(CloseServerExit, "server shutting down")
	}
}
