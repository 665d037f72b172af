//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"support-hub/contract"
	"support-hub/domain"
	hub "support-hub/errors"
	"support-hub/internal"
	"support-hub/moderation"
	"support-hub/observability"
	"support-hub/repositories"
)

type IChatService interface {
	RegisterUser(identity string, s contract.Session)
	RegisterAgent(identity string, s contract.Session)
	Send(ctx context.Context, from contract.Session, body, recipientID string) error
	Join(ctx context.Context, agent contract.Session, userID string) ([]domain.Entry, error)
	Typing(ctx context.Context, from contract.Session, recipientID string, active bool)
	Disconnect(s contract.Session)
	History(userID string) ([]domain.Entry, error)
	AgentsOnline() (count int, online bool)
}

// ChatService pairs users with the agent pool on top of the presence
// registry and the delivery router. A conversation is keyed by its user side;
// the agent side is the undifferentiated "agents" group until individual
// agents join the key.
type ChatService struct {
	log       *slog.Logger
	registry  contract.IRegistry
	router    contract.IRouter
	store     repositories.IDeliveryStore
	moderator moderation.Moderator
	monitor   *observability.Monitor
	policy    internal.ReplacedConnectionPolicy
}

func NewChatService(log *slog.Logger, registry contract.IRegistry,
	router contract.IRouter, store repositories.IDeliveryStore,
	moderator moderation.Moderator, monitor *observability.Monitor,
	policy internal.ReplacedConnectionPolicy) *ChatService {
	return &ChatService{
		log:       log,
		registry:  registry,
		router:    router,
		store:     store,
		moderator: moderator,
		monitor:   monitor,
		policy:    policy,
	}
}

func (s *ChatService) RegisterUser(identity string, session contract.Session) {
	s.register(identity, domain.RoleUser, session)
	s.log.Info("User registered", "identity", identity)
}

// RegisterAgent registers an agent; agents additionally belong to the shared
// "agents" group that receives every user-side message.
func (s *ChatService) RegisterAgent(identity string, session contract.Session) {
	s.register(identity, domain.RoleAgent, session)
	s.log.Info("Agent registered", "identity", identity)
}

func (s *ChatService) register(identity string, role domain.Role, session contract.Session) {
	displaced := s.registry.Register(identity, role, session)
	if displaced == nil {
		return
	}
	switch s.policy {
	case internal.PolicyOrphan:
		// Left open on purpose; the next failed push evicts it.
		s.log.Debug("Connection superseded, left orphaned", "identity", identity)
	default:
		s.log.Debug("Connection superseded, closing old one", "identity", identity)
		displaced.Close()
	}
}

// Send builds an immutable ChatMessage from the (masked) body and routes it.
// A user always addresses the agent pool; an agent addresses one specific
// user. Both directions share the user's conversation key, which is what lets
// any agent join mid-conversation and read the full exchange.
func (s *ChatService) Send(ctx context.Context, from contract.Session, body, recipientID string) error {
	masked, foundWords := s.moderator.Censor(body)
	if len(foundWords) > 0 {
		s.log.Warn("Masked forbidden words",
			"sender", from.Identity(),
			"count", len(foundWords))
	}

	msg := domain.ChatMessage{
		ID:         uuid.New(),
		SenderID:   from.Identity(),
		SenderRole: from.Role(),
		Body:       masked,
		Lang:       moderation.DetectLang(body),
		SentAt:     time.Now().UTC(),
	}

	var key domain.Key
	var target contract.Target
	switch from.Role() {
	case domain.RoleUser:
		key = domain.ConversationFor(from.Identity())
		target = contract.Target{Role: domain.RoleAgent}
	case domain.RoleAgent:
		if recipientID == "" {
			return fmt.Errorf("agent message without recipient: %w", hub.ErrNotRegistered)
		}
		key = domain.ConversationFor(recipientID)
		target = contract.Target{Identity: recipientID}
	default:
		return hub.ErrNotRegistered
	}

	if err := s.router.Deliver(ctx, target, key, domain.NewChatEntry(msg)); err != nil {
		return err
	}
	s.monitor.IncrMessagesSent()
	return nil
}

// Join subscribes an agent to a user's conversation feed and returns the full
// persisted history. Every agent joining the same conversation gets the
// identical history; live traffic follows from the subscription.
func (s *ChatService) Join(_ context.Context, agent contract.Session, userID string) ([]domain.Entry, error) {
	if agent.Role() != domain.RoleAgent {
		return nil, hub.ErrAgentsOnly
	}
	key := domain.ConversationFor(userID)
	s.registry.Subscribe(key, agent)
	s.log.Info("Agent joined conversation", "agent", agent.Identity(), "user", userID)
	return s.store.ReadAll(key)
}

// Typing forwards an ephemeral typing signal to the counterpart, live
// connections only. Nothing is persisted and failures are not surfaced.
func (s *ChatService) Typing(ctx context.Context, from contract.Session, recipientID string, active bool) {
	frame := domain.TypingFrame(active, from.Identity(), from.Role())

	switch from.Role() {
	case domain.RoleUser:
		key := domain.ConversationFor(from.Identity())
		s.router.PushEphemeral(ctx, contract.Target{Role: domain.RoleAgent}, key, frame)
	case domain.RoleAgent:
		if recipientID == "" {
			return
		}
		key := domain.ConversationFor(recipientID)
		s.router.PushEphemeral(ctx, contract.Target{Identity: recipientID}, key, frame)
	}
}

func (s *ChatService) Disconnect(session contract.Session) {
	s.registry.Unregister(session)
	s.log.Debug("Session unregistered", "identity", session.Identity())
}

// History returns the ordered entries of a user's conversation log. An
// identity that never produced anything reads as an empty history, not an
// error.
func (s *ChatService) History(userID string) ([]domain.Entry, error) {
	return s.store.ReadAll(domain.ConversationFor(userID))
}

func (s *ChatService) AgentsOnline() (int, bool) {
	n := s.registry.CountRole(domain.RoleAgent)
	return n, n > 0
}
