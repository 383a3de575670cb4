// Package a2aserver exposes every local agent over HTTP at
// <base-url>/<agent-name>, accepting a JSON envelope of {task,
// relevant_messages} and streaming back the turn's canonical StreamEvents
// as server-sent events, grounded on the teacher's MCP HTTP/SSE transport
// (internal/mcp/transport_http.go) and routed with chi, following the
// teacher's cmd/nexus-edge HTTP server layout.
package a2aserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/agentcore/orchestrator/internal/agent"
	"github.com/agentcore/orchestrator/internal/persistence"
	"github.com/agentcore/orchestrator/internal/turn"
	"github.com/agentcore/orchestrator/pkg/message"
)

// Server implements the A2A endpoint contract (spec §6): one route per
// registered agent, each accepting a task and seed history and returning a
// live stream of the turn's events.
type Server struct {
	agents *agent.Manager
	engine *turn.Engine
	store  *persistence.Store
	logger *slog.Logger
}

// NewServer creates an a2aserver.Server. store may be nil to run without
// conversation persistence (matching turn.Engine's own contract).
func NewServer(agents *agent.Manager, engine *turn.Engine, store *persistence.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{agents: agents, engine: engine, store: store, logger: logger.With("component", "a2aserver")}
}

// invokeRequest is the wire envelope accepted at <base-url>/<agent-name>.
type invokeRequest struct {
	Task             string            `json:"task"`
	RelevantMessages []message.Message `json:"relevant_messages"`
}

// wireEvent mirrors provider.StreamEvent's vocabulary over the wire: the
// A2A contract promises "canonical StreamEvents", so the turn engine's
// higher-level Events are projected back down to that shape rather than
// exposing turn.Event's own kind names.
type wireEvent struct {
	Kind string `json:"kind"`

	Text string `json:"text,omitempty"`

	AgentName string `json:"agent_name,omitempty"`

	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	ToolResult string `json:"tool_result,omitempty"`
	ToolError  bool   `json:"tool_error,omitempty"`

	StopReason string `json:"stop_reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

func toWireEvent(ev turn.Event) wireEvent {
	w := wireEvent{
		Kind:       string(ev.Kind),
		Text:       ev.Text,
		AgentName:  ev.AgentName,
		ToolCallID: ev.ToolCallID,
		ToolName:   ev.ToolName,
		ToolResult: ev.ToolResult,
		ToolError:  ev.ToolError,
		StopReason: string(ev.StopReason),
	}
	if ev.Err != nil {
		w.Error = ev.Err.Error()
	}
	return w
}

// Router builds the chi mux: one POST route per agent the manager knows
// about at construction time, plus a health check.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/healthz", s.handleHealth)
	r.Post("/{agentName}", s.handleInvoke)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"agents": s.agents.Names(),
	})
}

// handleInvoke implements the A2A endpoint: it selects the named agent as
// current, seeds its history from relevant_messages, runs one turn with
// task as the user message, and streams the resulting events back as SSE.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	agentName := chi.URLParam(r, "agentName")

	target, ok := s.agents.Get(agentName)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown agent %q", agentName), http.StatusNotFound)
		return
	}

	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.Task == "" {
		http.Error(w, "task is required", http.StatusBadRequest)
		return
	}

	if _, err := s.agents.Select(agentName); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	target.ReplaceHistory(req.RelevantMessages)

	conv := persistence.NewConversation(uuid.NewString(), req.Task)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	events, err := s.engine.Run(r.Context(), conv, req.Task)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		data, err := json.Marshal(toWireEvent(ev))
		if err != nil {
			s.logger.Error("failed to marshal stream event", "error", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			s.logger.Warn("client disconnected mid-stream", "agent", agentName, "error", err)
			return
		}
		flusher.Flush()
	}
}
