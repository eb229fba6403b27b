package vectorindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/mohammad-safakhou/workmate/config"
)

// Record is one stored embedding with the display payload echoed alongside
// the vector so fallback hits can be rendered without a second fetch.
type Record struct {
	ID       string
	Owner    string
	ItemType string
	SourceID string
	Vector   []float32
	Payload  map[string]interface{}
}

// Hit is a ranked similarity search result.
type Hit struct {
	ID      string
	Score   float64
	Payload map[string]interface{}
}

// Filter restricts a search to exact owner/type matches.
type Filter struct {
	Owner    string
	ItemType string
}

// Index is the vector store contract consumed by the search cascades.
type Index interface {
	Upsert(ctx context.Context, records []Record) error
	Search(ctx context.Context, vector []float32, limit int, filter Filter) ([]Hit, error)
}

// PgIndex implements Index on a Postgres table with a pgvector column.
type PgIndex struct {
	DB *sql.DB
}

// New opens a Postgres connection from config and returns a PgIndex.
func New(ctx context.Context, cfg config.PostgresConfig) (*PgIndex, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN opens a Postgres connection with the given DSN.
func NewWithDSN(ctx context.Context, dsn string) (*PgIndex, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PgIndex{DB: db}, nil
}

// Upsert stores or replaces embedding records keyed by (owner, item_type, source_id).
func (x *PgIndex) Upsert(ctx context.Context, records []Record) error {
	for _, rec := range records {
		if rec.SourceID == "" {
			return fmt.Errorf("source_id required")
		}
		if len(rec.Vector) == 0 {
			return fmt.Errorf("embedding vector required for %s", rec.SourceID)
		}
		vecLiteral, err := encodeVectorLiteral(rec.Vector)
		if err != nil {
			return err
		}
		payloadBytes, err := json.Marshal(rec.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		id := rec.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err = x.DB.ExecContext(ctx, `
INSERT INTO workspace_embeddings (id, owner, item_type, source_id, embedding, payload, created_at)
VALUES ($1,$2,$3,$4,$5::vector,$6,NOW())
ON CONFLICT (owner, item_type, source_id) DO UPDATE SET
  embedding = EXCLUDED.embedding,
  payload = EXCLUDED.payload,
  created_at = NOW();
`, id, rec.Owner, rec.ItemType, rec.SourceID, vecLiteral, payloadBytes)
		if err != nil {
			return fmt.Errorf("upsert embedding %s: %w", rec.SourceID, err)
		}
	}
	return nil
}

// Search returns the closest records for the supplied vector, restricted to
// the filter's owner and item type. Score is cosine similarity (1 - distance).
func (x *PgIndex) Search(ctx context.Context, vector []float32, limit int, filter Filter) ([]Hit, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector must not be empty")
	}
	if limit <= 0 {
		limit = 5
	}
	vecLiteral, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, err
	}
	rows, err := x.DB.QueryContext(ctx, `
SELECT id, payload, embedding <=> $1::vector AS distance
FROM workspace_embeddings
WHERE owner = $2 AND item_type = $3
ORDER BY embedding <=> $1::vector
LIMIT $4
`, vecLiteral, filter.Owner, filter.ItemType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			hit          Hit
			payloadBytes []byte
			distance     float64
		)
		if err := rows.Scan(&hit.ID, &payloadBytes, &distance); err != nil {
			return nil, err
		}
		hit.Score = 1 - distance
		if len(payloadBytes) > 0 {
			_ = json.Unmarshal(payloadBytes, &hit.Payload)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}
