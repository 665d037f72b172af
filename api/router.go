// Package api exposes the synchronous query surface consumed by other
// services and the UI: health, history reads and presence summaries. All
// mutation flows through the realtime connection, never through HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"support-hub/domain"
	"support-hub/observability"
	"support-hub/services"
)

type Server struct {
	log     *slog.Logger
	chat    services.IChatService
	monitor *observability.Monitor
}

func NewServer(log *slog.Logger, chat services.IChatService, monitor *observability.Monitor) *Server {
	return &Server{log: log, chat: chat, monitor: monitor}
}

// Router wires the query endpoints plus the realtime upgrade endpoint.
func (s *Server) Router(wsHandler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.health)
	r.GET("/chat/history/:userId", s.chatHistory)
	r.GET("/notifications/:userId", s.notifications)
	r.GET("/agents/online", s.agentsOnline)
	r.GET("/ws", wsHandler)
	return r
}

func (s *Server) health(c *gin.Context) {
	count, _ := s.chat.AgentsOnline()
	c.JSON(http.StatusOK, gin.H{
		"status":       "Delivery engine is running",
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"activeAgents": count,
		"stats":        s.monitor.Snapshot(),
	})
}

// chatHistory returns the chat turns of a conversation, oldest first.
// Unknown identities read as an empty history.
func (s *Server) chatHistory(c *gin.Context) {
	entries, err := s.chat.History(c.Param("userId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	messages := lo.FilterMap(entries, func(e domain.Entry, _ int) (*domain.ChatMessage, bool) {
		return e.Chat, e.Kind == domain.EntryChat && e.Chat != nil
	})
	c.JSON(http.StatusOK, messages)
}

// notifications returns the queued/delivered notifications of an identity,
// oldest first.
func (s *Server) notifications(c *gin.Context) {
	entries, err := s.chat.History(c.Param("userId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	notifications := lo.FilterMap(entries, func(e domain.Entry, _ int) (*domain.Notification, bool) {
		return e.Notification, e.Kind == domain.EntryNotification && e.Notification != nil
	})
	c.JSON(http.StatusOK, notifications)
}

func (s *Server) agentsOnline(c *gin.Context) {
	count, online := s.chat.AgentsOnline()
	c.JSON(http.StatusOK, gin.H{
		"online": online,
		"count":  count,
	})
}

func (s *Server) fail(c *gin.Context, err error) {
	s.log.Error("Query failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
