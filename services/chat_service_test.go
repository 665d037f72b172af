package services

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"support-hub/contract"
	"support-hub/domain"
	hub "support-hub/errors"
	"support-hub/internal"
	"support-hub/moderation"
	"support-hub/observability"
	"support-hub/runtime"
)

type stubSession struct {
	id       string
	identity string
	role     domain.Role
	mu       sync.Mutex
	closed   bool
}

func newStubSession(identity string, role domain.Role) *stubSession {
	return &stubSession{id: uuid.NewString(), identity: identity, role: role}
}

func (s *stubSession) ID() string                                  { return s.id }
func (s *stubSession) Identity() string                            { return s.identity }
func (s *stubSession) Role() domain.Role                           { return s.role }
func (s *stubSession) Send(context.Context, domain.Frame) error    { return nil }
func (s *stubSession) Close()                                      { s.mu.Lock(); s.closed = true; s.mu.Unlock() }
func (s *stubSession) Closed() bool                                { s.mu.Lock(); defer s.mu.Unlock(); return s.closed }

type delivery struct {
	target contract.Target
	key    domain.Key
	entry  domain.Entry
}

type push struct {
	target contract.Target
	key    domain.Key
	frame  domain.Frame
}

// spyRouter records routing calls instead of performing them.
type spyRouter struct {
	mu         sync.Mutex
	deliveries []delivery
	pushes     []push
	failWith   error
}

func (r *spyRouter) Deliver(_ context.Context, target contract.Target, key domain.Key, entry domain.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.deliveries = append(r.deliveries, delivery{target: target, key: key, entry: entry})
	return nil
}

func (r *spyRouter) PushEphemeral(_ context.Context, target contract.Target, key domain.Key, frame domain.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = append(r.pushes, push{target: target, key: key, frame: frame})
}

type stubStore struct {
	logs map[domain.Key][]domain.Entry
}

func newStubStore() *stubStore { return &stubStore{logs: make(map[domain.Key][]domain.Entry)} }

func (s *stubStore) Append(key domain.Key, entry domain.Entry) error {
	s.logs[key] = append(s.logs[key], entry)
	return nil
}
func (s *stubStore) ReadAll(key domain.Key) ([]domain.Entry, error) { return s.logs[key], nil }
func (s *stubStore) Expire(key domain.Key) error                    { delete(s.logs, key); return nil }
func (s *stubStore) ExpireStale() (int, error)                      { return 0, nil }

type fixture struct {
	service  *ChatService
	registry *runtime.Registry
	router   *spyRouter
	store    *stubStore
}

func newFixture(t *testing.T, policy internal.ReplacedConnectionPolicy) fixture {
	t.Helper()
	log := slog.Default()
	moderator, err := moderation.NewModerator([]string{"darn"}, '*')
	require.NoError(t, err)
	registry := runtime.NewRegistry()
	router := &spyRouter{}
	store := newStubStore()
	service := NewChatService(log, registry, router, store, moderator,
		observability.NewMonitor(log), policy)
	return fixture{service: service, registry: registry, router: router, store: store}
}

func TestChatService_User_Message_Goes_To_Agent_Pool(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, internal.PolicyClose)
	user := newStubSession("u1", domain.RoleUser)
	f.service.RegisterUser("u1", user)

	// When a user sends, the recipient hint is irrelevant
	req.NoError(f.service.Send(context.Background(), user, "hello there", ""))

	// Then the message was routed to the agents group under the user's key
	req.Len(f.router.deliveries, 1)
	d := f.router.deliveries[0]
	req.Equal(domain.RoleAgent, d.target.Role)
	req.Empty(d.target.Identity)
	req.Equal(domain.ConversationFor("u1"), d.key)
	req.Equal(domain.EntryChat, d.entry.Kind)
	req.Equal("hello there", d.entry.Chat.Body)
	req.Equal("u1", d.entry.Chat.SenderID)
}

func TestChatService_Agent_Message_Goes_To_One_User(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, internal.PolicyClose)
	agent := newStubSession("a1", domain.RoleAgent)
	f.service.RegisterAgent("a1", agent)

	req.NoError(f.service.Send(context.Background(), agent, "how can I help?", "u7"))

	// Both directions share the user's conversation key
	req.Len(f.router.deliveries, 1)
	d := f.router.deliveries[0]
	req.Equal("u7", d.target.Identity)
	req.Equal(domain.ConversationFor("u7"), d.key)
	req.Equal(domain.RoleAgent, d.entry.Chat.SenderRole)
}

func TestChatService_Agent_Message_Without_Recipient_Fails(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, internal.PolicyClose)
	agent := newStubSession("a1", domain.RoleAgent)
	f.service.RegisterAgent("a1", agent)

	err := f.service.Send(context.Background(), agent, "into the void", "")

	req.ErrorIs(err, hub.ErrNotRegistered)
	req.Empty(f.router.deliveries)
}

func TestChatService_Forbidden_Words_Are_Masked_Before_Routing(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, internal.PolicyClose)
	user := newStubSession("u1", domain.RoleUser)
	f.service.RegisterUser("u1", user)

	req.NoError(f.service.Send(context.Background(), user, "well darn it", ""))

	// The stored and pushed body is the masked one
	req.Equal("well **** it", f.router.deliveries[0].entry.Chat.Body)
}

func TestChatService_Join_Is_Agents_Only(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, internal.PolicyClose)
	user := newStubSession("u1", domain.RoleUser)
	f.service.RegisterUser("u1", user)

	_, err := f.service.Join(context.Background(), user, "u2")

	req.ErrorIs(err, hub.ErrAgentsOnly)
}

func TestChatService_Join_Subscribes_And_Returns_History(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, internal.PolicyClose)
	key := domain.ConversationFor("u1")

	// Given an existing conversation log
	req.NoError(f.store.Append(key, domain.NewChatEntry(domain.ChatMessage{
		ID: uuid.New(), SenderID: "u1", SenderRole: domain.RoleUser,
		Body: "first", SentAt: time.Now().UTC(),
	})))

	agent := newStubSession("a1", domain.RoleAgent)
	f.service.RegisterAgent("a1", agent)

	// When the agent joins
	history, err := f.service.Join(context.Background(), agent, "u1")

	// Then it gets the full history and becomes a watcher of the key
	req.NoError(err)
	req.Len(history, 1)
	req.Equal("first", history[0].Chat.Body)
	watchers := f.registry.Watchers(key)
	req.Len(watchers, 1)
	req.Equal(agent.ID(), watchers[0].ID())
}

func TestChatService_Replaced_Connection_Is_Closed_By_Default(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, internal.PolicyClose)
	oldSession := newStubSession("u1", domain.RoleUser)
	newSession := newStubSession("u1", domain.RoleUser)

	f.service.RegisterUser("u1", oldSession)
	f.service.RegisterUser("u1", newSession)

	req.True(oldSession.Closed())
	req.False(newSession.Closed())
}

func TestChatService_Orphan_Policy_Leaves_Old_Connection_Open(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, internal.PolicyOrphan)
	oldSession := newStubSession("u1", domain.RoleUser)
	newSession := newStubSession("u1", domain.RoleUser)

	f.service.RegisterUser("u1", oldSession)
	f.service.RegisterUser("u1", newSession)

	// The orphan stays open but no longer resolves from the registry
	req.False(oldSession.Closed())
	found, ok := f.registry.Lookup("u1")
	req.True(ok)
	req.Equal(newSession.ID(), found.ID())
}

func TestChatService_Typing_Is_Ephemeral(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, internal.PolicyClose)
	user := newStubSession("u1", domain.RoleUser)
	f.service.RegisterUser("u1", user)

	f.service.Typing(context.Background(), user, "", true)
	f.service.Typing(context.Background(), user, "", false)

	req.Empty(f.router.deliveries)
	req.Len(f.router.pushes, 2)
	req.Equal(domain.FrameTypingStart, f.router.pushes[0].frame.Type)
	req.Equal(domain.FrameTypingStop, f.router.pushes[1].frame.Type)
	req.Equal(domain.RoleAgent, f.router.pushes[0].target.Role)
}

func TestChatService_Agent_Typing_Without_Recipient_Is_Dropped(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, internal.PolicyClose)
	agent := newStubSession("a1", domain.RoleAgent)
	f.service.RegisterAgent("a1", agent)

	f.service.Typing(context.Background(), agent, "", true)

	req.Empty(f.router.pushes)
}

func TestChatService_AgentsOnline(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, internal.PolicyClose)

	count, online := f.service.AgentsOnline()
	req.Zero(count)
	req.False(online)

	f.service.RegisterAgent("a1", newStubSession("a1", domain.RoleAgent))
	f.service.RegisterAgent("a2", newStubSession("a2", domain.RoleAgent))

	count, online = f.service.AgentsOnline()
	req.Equal(2, count)
	req.True(online)
}

func TestChatService_Disconnect_Clears_Presence(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, internal.PolicyClose)
	agent := newStubSession("a1", domain.RoleAgent)
	f.service.RegisterAgent("a1", agent)

	f.service.Disconnect(agent)

	count, _ := f.service.AgentsOnline()
	req.Zero(count)
}
