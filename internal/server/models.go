package server

import "github.com/mohammad-safakhou/workmate/internal/assistant"

// HTTPError is the unified JSON error body.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest creates a new account.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest authenticates an existing account.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries the issued JWT.
type TokenResponse struct {
	Token string `json:"token"`
}

// QueryRequest is one user message. ConversationID is optional; a new
// conversation is created when it is empty.
type QueryRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Query          string `json:"query"`
}

// QueryResponse is the assistant's reply plus the actions it performed.
type QueryResponse struct {
	ConversationID string                      `json:"conversation_id"`
	Response       string                      `json:"response"`
	ActionsTaken   []string                    `json:"actions_taken"`
	Intent         *assistant.StructuredIntent `json:"intent,omitempty"`
}

// ConversationResponse is one conversation summary.
type ConversationResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}
