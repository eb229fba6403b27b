package convstore

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/mohammad-safakhou/workmate/internal/assistant"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func TestAppendTurnPersistsIntentJSON(t *testing.T) {
	store, mock := newMockStore(t)

	intent := &assistant.StructuredIntent{
		Domains: []string{"calendar"},
		Label:   "create_event",
		Task:    "create_event",
	}
	mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(sqlmock.AnyArg(), "conv-1", assistant.RoleUser, "schedule a meeting", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := store.AppendTurn(context.Background(), assistant.ConversationTurn{
		ConversationID: "conv-1",
		Role:           assistant.RoleUser,
		Text:           "schedule a meeting",
		Intent:         intent,
	})
	if err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if id == "" {
		t.Fatalf("expected generated id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecentTurnsOrdersMostRecentFirst(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "conversation_id", "role", "text", "intent", "created_at"}).
		AddRow("t2", "conv-1", assistant.RoleAssistant, "Done.", []byte(nil), now).
		AddRow("t1", "conv-1", assistant.RoleUser, "cancel my flight", []byte(`{"domains":["mail"],"label":"general_query","task":"process_query","needs_new_search":true}`), now.Add(-time.Minute))

	mock.ExpectQuery(`SELECT id, conversation_id, role, text, intent, created_at`).
		WithArgs("conv-1", 10).
		WillReturnRows(rows)

	turns, err := store.RecentTurns(context.Background(), "conv-1", 10)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].ID != "t2" {
		t.Fatalf("expected most recent turn first, got %s", turns[0].ID)
	}
	if turns[1].Intent == nil || turns[1].Intent.Label != "general_query" {
		t.Fatalf("intent not decoded: %+v", turns[1].Intent)
	}
}

func TestGetUserByEmailNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, email, password_hash, created_at FROM users`).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "created_at"}))

	_, err := store.GetUserByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateConversationReturnsID(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO conversations`).
		WithArgs(sqlmock.AnyArg(), "user-1", "Trip planning").
		WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := store.CreateConversation(context.Background(), "user-1", "Trip planning")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if id == "" {
		t.Fatalf("expected generated id")
	}
}
