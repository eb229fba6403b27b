package assistant

import (
	"context"
	"time"
)

// Domain tags routed by the orchestrator.
const (
	DomainMail     = "mail"
	DomainCalendar = "calendar"
	DomainFiles    = "files"
)

// Conversation turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn is one prior exchange in a conversation. Turns are
// immutable once written; ordering is by CreatedAt.
type ConversationTurn struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	Role           string            `json:"role"`
	Text           string            `json:"text"`
	Intent         *StructuredIntent `json:"intent,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// StructuredIntent is the classifier's interpretation of a query in context.
// It lives only for the duration of one request (plus optional persistence as
// turn metadata by the store).
type StructuredIntent struct {
	Domains            []string               `json:"domains"`
	Label              string                 `json:"label"`
	ContextFromHistory string                 `json:"context_from_history,omitempty"`
	Entities           map[string]interface{} `json:"entities"`
	NeedsNewSearch     bool                   `json:"needs_new_search"`
	Task               string                 `json:"task"`
	TaskParameters     map[string]interface{} `json:"task_parameters"`
}

// DomainResult is the outcome of dispatching one domain adapter.
type DomainResult struct {
	Domain  string `json:"domain"`
	Success bool   `json:"success"`
	Data    string `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Request is one user query bound to its conversation and owner scope.
type Request struct {
	Query          string
	ConversationID string
	Owner          string
}

// Reply is the orchestrator's return contract.
type Reply struct {
	Response     string            `json:"response"`
	ActionsTaken []string          `json:"actions_taken"`
	Intent       *StructuredIntent `json:"intent,omitempty"`
}

// HistoryStore reads prior turns, most recent first. The caller reverses
// them for rendering. Write ordering across concurrent requests on the same
// conversation is the store's concern, not the core's.
type HistoryStore interface {
	RecentTurns(ctx context.Context, conversationID string, limit int) ([]ConversationTurn, error)
}

// ChatProvider runs one chat completion. Used identically by the classifier
// and the synthesizer; only the prompts and temperature differ.
type ChatProvider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt, model string, temperature float64) (string, error)
}

// DomainAdapter is the query-processing entry point of one backend domain.
// Process never returns a Go error; failures are carried in the result.
type DomainAdapter interface {
	Process(ctx context.Context, owner, contextualQuery string) DomainResult
}

// DefaultIntent is the classifier's safe fallback when the model is
// unavailable or returns something unparseable.
func DefaultIntent() *StructuredIntent {
	return &StructuredIntent{
		Domains:        []string{DomainMail},
		Label:          "general_query",
		Entities:       map[string]interface{}{},
		NeedsNewSearch: true,
		Task:           "process_query",
		TaskParameters: map[string]interface{}{},
	}
}
