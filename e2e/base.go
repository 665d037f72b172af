package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	"support-hub/domain"
	"support-hub/infrastructure/ws"
)

type BaseSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration and skips the whole suite
// when no engine is listening on HUB_ADDR.
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)

	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + s.Config.HubAddr + "/health")
	if err != nil {
		s.T().Skipf("No engine reachable at %s: %v", s.Config.HubAddr, err)
	}
	_ = resp.Body.Close()
}

// Client is one realtime connection plus its registered identity.
type Client struct {
	suite *BaseSuite
	conn  *websocket.Conn
	name  string
}

// Connect dials the realtime endpoint and registers the identity, printing a
// colorized header for the connection step in logs.
func (s *BaseSuite) Connect(t *testing.T, name, identity string, role domain.Role) *Client {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)

	url := "ws://" + s.Config.HubAddr + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err, "Failed to connect to "+url)
	t.Cleanup(func() { _ = conn.Close() })

	c := &Client{suite: s, conn: conn, name: name}
	c.Send(t, ws.Command{Type: ws.CommandRegister, Identity: identity, Role: role})
	return c
}

func (c *Client) Send(t *testing.T, cmd ws.Command) {
	if c.suite.Config.DebugJSON {
		body, _ := json.MarshalIndent(cmd, "", "  ")
		t.Logf("%s >> %s", c.name, body)
	}
	c.suite.Require().NoError(c.conn.WriteJSON(cmd))
}

// Recv reads frames until one of the wanted type arrives, failing on timeout.
// Ephemeral frames of other types in between are logged and skipped.
func (c *Client) Recv(t *testing.T, want domain.FrameType) domain.Frame {
	deadline := time.Now().Add(10 * time.Second)
	c.suite.Require().NoError(c.conn.SetReadDeadline(deadline))

	for {
		var f domain.Frame
		err := c.conn.ReadJSON(&f)
		c.suite.Require().NoError(err, "%s: no %s frame before deadline", c.name, want)

		if c.suite.Config.DebugJSON {
			body, _ := json.MarshalIndent(f, "", "  ")
			t.Logf("%s << %s", c.name, body)
		}
		if f.Type == want {
			return f
		}
		t.Logf("%s: skipping %s frame while waiting for %s", c.name, f.Type, want)
	}
}

// GetJSON queries one of the HTTP endpoints and decodes the response.
func (s *BaseSuite) GetJSON(t *testing.T, path string, out any) {
	client := http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + s.Config.HubAddr + path)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Require().Equal(http.StatusOK, resp.StatusCode, "GET %s", path)
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
}
