package vectorindex

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestUpsertEncodesVectorLiteral(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	idx := &PgIndex{DB: db}
	rec := Record{
		ID:       "rec-1",
		Owner:    "user@example.com",
		ItemType: "email",
		SourceID: "msg-42",
		Vector:   []float32{0.25, -0.5},
		Payload:  map[string]interface{}{"subject": "Flight AI 1803"},
	}

	query := regexp.QuoteMeta(`
INSERT INTO workspace_embeddings (id, owner, item_type, source_id, embedding, payload, created_at)
VALUES ($1,$2,$3,$4,$5::vector,$6,NOW())
ON CONFLICT (owner, item_type, source_id) DO UPDATE SET
  embedding = EXCLUDED.embedding,
  payload = EXCLUDED.payload,
  created_at = NOW();
`)
	mock.ExpectExec(query).
		WithArgs(rec.ID, rec.Owner, rec.ItemType, rec.SourceID, "[0.25,-0.5]", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := idx.Upsert(context.Background(), []Record{rec}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertRequiresVector(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	idx := &PgIndex{DB: db}
	err = idx.Upsert(context.Background(), []Record{{SourceID: "msg-1"}})
	if err == nil {
		t.Fatalf("expected error for missing vector")
	}
}

func TestSearchFiltersOwnerAndType(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	idx := &PgIndex{DB: db}
	rows := sqlmock.NewRows([]string{"id", "payload", "distance"}).
		AddRow("rec-1", []byte(`{"subject":"Standup"}`), 0.12).
		AddRow("rec-2", []byte(`{"subject":"Retro"}`), 0.4)

	query := regexp.QuoteMeta(`
SELECT id, payload, embedding <=> $1::vector AS distance
FROM workspace_embeddings
WHERE owner = $2 AND item_type = $3
ORDER BY embedding <=> $1::vector
LIMIT $4
`)
	mock.ExpectQuery(query).
		WithArgs("[0.1,0.2]", "user@example.com", "event", 5).
		WillReturnRows(rows)

	hits, err := idx.Search(context.Background(), []float32{0.1, 0.2}, 0, Filter{Owner: "user@example.com", ItemType: "event"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Score < hits[1].Score {
		t.Fatalf("expected first hit to score higher: %v vs %v", hits[0].Score, hits[1].Score)
	}
	if hits[0].Payload["subject"] != "Standup" {
		t.Fatalf("unexpected payload: %v", hits[0].Payload)
	}
}

func TestSearchRejectsEmptyVector(t *testing.T) {
	idx := &PgIndex{}
	if _, err := idx.Search(context.Background(), nil, 5, Filter{}); err == nil {
		t.Fatalf("expected error for empty vector")
	}
}
