package ws

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"support-hub/contract"
	"support-hub/domain"
	"support-hub/observability"
)

// scriptedChat records what the gateway asked for.
type scriptedChat struct {
	mu            sync.Mutex
	registered    []string
	sent          []string
	disconnects   int
	joinedHistory []domain.Entry
}

func (c *scriptedChat) RegisterUser(identity string, _ contract.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registered = append(c.registered, "user:"+identity)
}

func (c *scriptedChat) RegisterAgent(identity string, _ contract.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registered = append(c.registered, "agent:"+identity)
}

func (c *scriptedChat) Send(_ context.Context, _ contract.Session, body, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, body)
	return nil
}

func (c *scriptedChat) Join(context.Context, contract.Session, string) ([]domain.Entry, error) {
	return c.joinedHistory, nil
}

func (c *scriptedChat) Typing(context.Context, contract.Session, string, bool) {}

func (c *scriptedChat) Disconnect(contract.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
}

func (c *scriptedChat) History(string) ([]domain.Entry, error) { return nil, nil }
func (c *scriptedChat) AgentsOnline() (int, bool)              { return 0, false }

func (c *scriptedChat) Registered() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.registered))
	copy(out, c.registered)
	return out
}

func (c *scriptedChat) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *scriptedChat) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

func dialGateway(t *testing.T, chat *scriptedChat) *websocket.Conn {
	t.Helper()
	log := slog.Default()
	gateway := NewGateway(log, chat, observability.NewMonitor(log), 8)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.GET("/ws", gateway.Handle)
	server := httptest.NewServer(engine)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) domain.Frame {
	t.Helper()
	var f domain.Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestGateway_First_Command_Must_Be_Register(t *testing.T) {
	req := require.New(t)
	chat := &scriptedChat{}
	conn := dialGateway(t, chat)

	req.NoError(conn.WriteJSON(Command{Type: CommandSendMessage, Message: "too early"}))

	frame := readFrame(t, conn)
	req.Equal(domain.FrameError, frame.Type)
	req.Empty(chat.Sent())
}

func TestGateway_Invalid_Registration_Is_Rejected(t *testing.T) {
	req := require.New(t)
	chat := &scriptedChat{}
	conn := dialGateway(t, chat)

	req.NoError(conn.WriteJSON(Command{Type: CommandRegister, Identity: "", Role: domain.RoleUser}))

	frame := readFrame(t, conn)
	req.Equal(domain.FrameError, frame.Type)
	req.Empty(chat.Registered())
}

func TestGateway_Register_Then_Send(t *testing.T) {
	req := require.New(t)
	chat := &scriptedChat{}
	conn := dialGateway(t, chat)

	req.NoError(conn.WriteJSON(Command{Type: CommandRegister, Identity: "u1", Role: domain.RoleUser}))
	req.NoError(conn.WriteJSON(Command{Type: CommandSendMessage, Message: "hello"}))

	req.Eventually(func() bool {
		return len(chat.Sent()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	req.Equal([]string{"user:u1"}, chat.Registered())
	req.Equal([]string{"hello"}, chat.Sent())
}

func TestGateway_Join_Pushes_History(t *testing.T) {
	req := require.New(t)
	chat := &scriptedChat{joinedHistory: []domain.Entry{
		domain.NewChatEntry(domain.ChatMessage{SenderID: "u1", SenderRole: domain.RoleUser, Body: "hi"}),
	}}
	conn := dialGateway(t, chat)

	req.NoError(conn.WriteJSON(Command{Type: CommandRegister, Identity: "a1", Role: domain.RoleAgent}))
	req.NoError(conn.WriteJSON(Command{Type: CommandJoinChat, UserID: "u1"}))

	frame := readFrame(t, conn)
	req.Equal(domain.FrameChatHistory, frame.Type)
	req.Len(frame.History, 1)
	req.Equal("hi", frame.History[0].Chat.Body)
}

func TestGateway_Disconnect_Unregisters_Once(t *testing.T) {
	req := require.New(t)
	chat := &scriptedChat{}
	conn := dialGateway(t, chat)

	req.NoError(conn.WriteJSON(Command{Type: CommandRegister, Identity: "u1", Role: domain.RoleUser}))
	req.Eventually(func() bool {
		return len(chat.Registered()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	req.NoError(conn.Close())

	req.Eventually(func() bool {
		return chat.Disconnects() == 1
	}, 2*time.Second, 10*time.Millisecond)
}
