package ws

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"support-hub/domain"
	"support-hub/observability"
	"support-hub/services"
)

// Gateway upgrades HTTP requests to websocket sessions and drives the
// per-connection command loop. It blocks per connection until the client
// disconnects; unregistration is deferred so the registry never keeps a dead
// session.
type Gateway struct {
	log        *slog.Logger
	chat       services.IChatService
	monitor    *observability.Monitor
	validate   *validator.Validate
	upgrader   websocket.Upgrader
	bufferSize int
}

func NewGateway(log *slog.Logger, chat services.IChatService,
	monitor *observability.Monitor, bufferSize int) *Gateway {
	return &Gateway{
		log:        log,
		chat:       chat,
		monitor:    monitor,
		validate:   validator.New(),
		bufferSize: bufferSize,
		upgrader: websocket.Upgrader{
			// The proxy layer in front of the engine owns origin policy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handle is the gin endpoint for the realtime connection.
func (g *Gateway) Handle(c *gin.Context) {
	wsConn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.log.Warn("Upgrade failed", "remote", c.Request.RemoteAddr, "error", err)
		return
	}
	g.serve(wsConn)
}

// serve runs the read loop of one connection. The first command must be a
// register; every later command is dispatched against the bound session.
func (g *Gateway) serve(wsConn *websocket.Conn) {
	session := NewSession(g.log, wsConn, g.bufferSize)
	go session.writePump()

	g.monitor.ConnOpened()
	defer g.monitor.ConnClosed()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registered := false
	defer func() {
		if registered {
			g.chat.Disconnect(session)
		}
		session.Close()
	}()

	for {
		var cmd Command
		if err := wsConn.ReadJSON(&cmd); err != nil {
			g.log.Debug("Connection closed", "identity", session.Identity(), "error", err)
			return
		}

		if !registered {
			if cmd.Type != CommandRegister {
				g.reject(ctx, session, "first command must be register")
				continue
			}
			if err := ValidateRegister(g.validate, cmd); err != nil {
				g.reject(ctx, session, "invalid registration")
				continue
			}
			session.bind(cmd.Identity, cmd.Role)
			if cmd.Role == domain.RoleAgent {
				g.chat.RegisterAgent(cmd.Identity, session)
			} else {
				g.chat.RegisterUser(cmd.Identity, session)
			}
			registered = true
			continue
		}

		g.dispatch(ctx, session, cmd)
	}
}

func (g *Gateway) dispatch(ctx context.Context, session *Session, cmd Command) {
	switch cmd.Type {
	case CommandSendMessage:
		if err := g.chat.Send(ctx, session, cmd.Message, cmd.RecipientID); err != nil {
			g.log.Warn("Send failed",
				"identity", session.Identity(),
				"error", err)
			g.reject(ctx, session, "message not delivered")
		}
	case CommandJoinChat:
		entries, err := g.chat.Join(ctx, session, cmd.UserID)
		if err != nil {
			g.reject(ctx, session, err.Error())
			return
		}
		if err := session.Send(ctx, domain.HistoryFrame(entries)); err != nil {
			g.log.Debug("History push failed", "identity", session.Identity(), "error", err)
		}
	case CommandTypingStart:
		g.chat.Typing(ctx, session, cmd.RecipientID, true)
	case CommandTypingStop:
		g.chat.Typing(ctx, session, cmd.RecipientID, false)
	case CommandRegister:
		// Re-registering on the same connection is a no-op.
		g.log.Debug("Duplicate register ignored", "identity", session.Identity())
	default:
		g.reject(ctx, session, "unknown command")
	}
}

func (g *Gateway) reject(ctx context.Context, session *Session, reason string) {
	if err := session.Send(ctx, domain.Frame{Type: domain.FrameError, Error: reason}); err != nil {
		g.log.Debug("Reject push failed", "error", err)
	}
}
