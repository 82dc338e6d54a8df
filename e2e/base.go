package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"dm-relay/gateway"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

type BaseSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests.
// Without a SERVER_ADDR there is nothing to talk to, so the whole suite
// skips instead of failing.
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerAddr == "" {
		s.T().Skip("SERVER_ADDR not set, skipping e2e suite")
	}
}

// Header prints a colorized section marker in the test log.
func (s *BaseSuite) Header(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

// PostJSON sends a request to the HTTP API and decodes the response
// into out when a target is given.
func (s *BaseSuite) PostJSON(t *testing.T, path string, body any, out any) *http.Response {
	payload, err := json.Marshal(body)
	s.Require().NoError(err)

	url := fmt.Sprintf("http://%s%s", s.Config.ServerAddr, path)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	s.Require().NoError(err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	if s.Config.DebugJSON {
		t.Logf("POST %s -> %d", path, resp.StatusCode)
	}
	if out != nil {
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

// Dial opens a WebSocket connection to the relay.
func (s *BaseSuite) Dial(t *testing.T) *websocket.Conn {
	url := fmt.Sprintf("ws://%s/ws", s.Config.ServerAddr)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// Emit sends one event frame on the connection.
func (s *BaseSuite) Emit(ws *websocket.Conn, eventName string, data any) {
	raw, err := json.Marshal(data)
	s.Require().NoError(err)
	frame, err := json.Marshal(gateway.Envelope{Event: eventName, Data: raw})
	s.Require().NoError(err)
	s.Require().NoError(ws.WriteMessage(websocket.TextMessage, frame))
}

// WaitFor reads frames until the named event arrives or the deadline
// hits. Other events received in between are discarded.
func (s *BaseSuite) WaitFor(t *testing.T, ws *websocket.Conn, eventName string) gateway.Envelope {
	s.Require().NoError(ws.SetReadDeadline(time.Now().Add(5 * time.Second)))
	for {
		_, frame, err := ws.ReadMessage()
		s.Require().NoError(err, "waiting for %q", eventName)

		var env gateway.Envelope
		s.Require().NoError(json.Unmarshal(frame, &env))
		if s.Config.DebugJSON {
			t.Logf("<- %s %s", env.Event, env.Data)
		}
		if env.Event == eventName {
			return env
		}
	}
}
