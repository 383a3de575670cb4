// Package persistence implements the Persistence component (PS): an
// append-mostly, one-file-per-conversation store written atomically
// (write-temp, fsync, rename) after every assistant turn, grounded on the
// teacher's pairing.Store file-backed pattern
// (internal/pairing/store.go: per-key JSON file, write-to-tmp then
// os.Rename) generalized to per-conversation locking and turn-level
// snapshots.
package persistence

import (
	"fmt"
	"time"

	"github.com/agentcore/orchestrator/pkg/message"
)

// TurnMarker records where a completed turn left each participating
// agent's history, so jump(turn_index) can truncate back to that point.
type TurnMarker struct {
	// UserMessageIndexPerAgent maps agent name to the index, in that
	// agent's history, of the turn's triggering user message.
	UserMessageIndexPerAgent map[string]int `json:"user_message_index_per_agent"`

	// Preview is a short human-readable summary of the turn (e.g. the
	// first line of the user's message), shown in `list()`/jump UIs.
	Preview string `json:"preview"`

	// AgentName is the agent that owned the turn.
	AgentName string `json:"agent_name"`
}

// Conversation is the unit of persistence: every agent's canonical history
// within one multi-agent session, plus the turn log used for jump-back.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// ParticipatingAgents is the set of agent names with an entry in
	// Histories, in first-seen order.
	ParticipatingAgents []string `json:"participating_agents"`

	// Histories holds each participating agent's full canonical message
	// history, keyed by agent name.
	Histories map[string][]message.Message `json:"histories"`

	TurnLog []TurnMarker `json:"turn_log"`
}

// NewConversation creates an empty conversation with the given id and
// title, timestamped at creation.
func NewConversation(id, title string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        id,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Histories: make(map[string][]message.Message),
	}
}

// EnsureAgent registers name as a participant if it isn't already one.
func (c *Conversation) EnsureAgent(name string) {
	if _, ok := c.Histories[name]; ok {
		return
	}
	c.Histories[name] = nil
	c.ParticipatingAgents = append(c.ParticipatingAgents, name)
}

// RecordTurn appends history for name and records a TurnMarker pointing at
// userMessageIndex (the index, within name's history, of this turn's
// triggering user message). Called once per completed assistant turn.
func (c *Conversation) RecordTurn(agentName string, userMessageIndex int, preview string) {
	c.TurnLog = append(c.TurnLog, TurnMarker{
		UserMessageIndexPerAgent: map[string]int{agentName: userMessageIndex},
		Preview:                  preview,
		AgentName:                agentName,
	})
	c.UpdatedAt = time.Now()
}

// Jump truncates every participating agent's history to the per-agent
// indices recorded at turnIndex in the turn log, discarding later content
// (§ jump). Out-of-range turnIndex is an error; agents absent from the
// recorded marker are left untouched since they did not yet exist at that
// point in the conversation.
func (c *Conversation) Jump(turnIndex int) error {
	if turnIndex < 0 || turnIndex >= len(c.TurnLog) {
		return &ErrInvalidTurnIndex{TurnIndex: turnIndex, TurnLogLength: len(c.TurnLog)}
	}

	marker := c.TurnLog[turnIndex]
	for agentName, idx := range marker.UserMessageIndexPerAgent {
		history, ok := c.Histories[agentName]
		if !ok {
			continue
		}
		if idx < 0 {
			idx = 0
		}
		if idx > len(history) {
			idx = len(history)
		}
		c.Histories[agentName] = history[:idx]
	}

	c.TurnLog = c.TurnLog[:turnIndex+1]
	c.UpdatedAt = time.Now()
	return nil
}

// ErrInvalidTurnIndex is returned by Jump when turnIndex falls outside the
// recorded turn log.
type ErrInvalidTurnIndex struct {
	TurnIndex     int
	TurnLogLength int
}

func (e *ErrInvalidTurnIndex) Error() string {
	return fmt.Sprintf("persistence: turn index %d out of range (turn log has %d entries)", e.TurnIndex, e.TurnLogLength)
}
