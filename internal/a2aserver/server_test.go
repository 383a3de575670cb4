package a2aserver

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/orchestrator/internal/agent"
	"github.com/agentcore/orchestrator/internal/persistence"
	"github.com/agentcore/orchestrator/internal/provider"
	"github.com/agentcore/orchestrator/internal/tool"
	"github.com/agentcore/orchestrator/internal/turn"
	"github.com/agentcore/orchestrator/pkg/message"
)

type fakeAdapter struct{}

func (fakeAdapter) Name() string                { return "fake" }
func (fakeAdapter) Models() []provider.ModelInfo { return nil }
func (fakeAdapter) SupportsTools() bool          { return true }

func (fakeAdapter) Stream(ctx context.Context, req *provider.Request) (<-chan provider.StreamEvent, error) {
	ch := make(chan provider.StreamEvent, 2)
	ch <- provider.StreamEvent{Kind: provider.EventTextDelta, Text: "hello from " + req.Model}
	ch <- provider.StreamEvent{Kind: provider.EventStop, StopReason: provider.StopEndTurn}
	close(ch)
	return ch, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	mgr := agent.NewManager(nil)
	mgr.Register(&agent.Definition{Name: "triage", Provider: "fake", Model: "m1"})

	reg := tool.NewRegistry(nil, nil)
	store, err := persistence.NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	eng := turn.NewEngine(mgr, reg, store, map[string]provider.Adapter{"fake": fakeAdapter{}}, nil)
	return NewServer(mgr, eng, store, nil)
}

func TestServer_HandleInvoke_UnknownAgent(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/nonexistent", "application/json", strings.NewReader(`{"task":"hi"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_HandleInvoke_MissingTask(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/triage", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_HandleInvoke_StreamsEvents(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body := invokeRequest{
		Task: "investigate the outage",
		RelevantMessages: []message.Message{
			message.NewUserText("earlier context"),
		},
	}
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/triage", "application/json", strings.NewReader(string(payload)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []wireEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev wireEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "stop", last.Kind)
	assert.Equal(t, "end_turn", last.StopReason)

	var sawText bool
	for _, ev := range events {
		if ev.Kind == "text" && strings.Contains(ev.Text, "hello from m1") {
			sawText = true
		}
	}
	assert.True(t, sawText)
}
