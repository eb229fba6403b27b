// Package cascade implements the two-tier search used by every domain
// adapter: an authoritative backend query first, with an embedding
// similarity fallback over previously indexed items when the backend
// fails.
package cascade

import (
	"context"
	"log"

	"github.com/mohammad-safakhou/workmate/internal/vectorindex"
)

// Embedder turns free text into a vector. Implementations return a zero
// vector on failure rather than an error.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
	Dimensions() int
}

// AuthoritativeSearch queries the backend of record for one domain and
// returns already-normalized items.
type AuthoritativeSearch func(ctx context.Context, owner, query string, limit int) ([]map[string]interface{}, error)

// EmbedText extracts the text worth embedding from one normalized item.
type EmbedText func(item map[string]interface{}) string

// SourceID extracts the backend identifier used to dedupe index records.
type SourceID func(item map[string]interface{}) string

// TierRecorder observes which tier served each search. Satisfied by the
// assistant telemetry.
type TierRecorder interface {
	RecordCascadeTier(semantic bool)
}

// Cascade runs the authoritative-then-semantic search for one item type.
// Both tiers return the same item shape; authoritative hits carry a zero
// score, semantic hits carry cosine similarity.
type Cascade struct {
	itemType      string
	authoritative AuthoritativeSearch
	embedText     EmbedText
	sourceID      SourceID
	embedder      Embedder
	index         vectorindex.Index
	reindex       bool
	tiers         TierRecorder
	logger        *log.Logger
}

// Options configures a Cascade.
type Options struct {
	ItemType      string
	Authoritative AuthoritativeSearch
	EmbedText     EmbedText
	SourceID      SourceID
	Embedder      Embedder
	Index         vectorindex.Index
	ReindexOnRead bool
	Tiers         TierRecorder
}

// New builds a Cascade for one domain's item type.
func New(opts Options) *Cascade {
	return &Cascade{
		itemType:      opts.ItemType,
		authoritative: opts.Authoritative,
		embedText:     opts.EmbedText,
		sourceID:      opts.SourceID,
		embedder:      opts.Embedder,
		index:         opts.Index,
		reindex:       opts.ReindexOnRead,
		tiers:         opts.Tiers,
		logger:        log.New(log.Writer(), "[CASCADE] ", log.LstdFlags),
	}
}

// Search runs the cascade once: authoritative tier, then the semantic
// fallback when the backend errored or returned nothing. It never
// returns an error; when both tiers fail the result is an empty slice.
func (c *Cascade) Search(ctx context.Context, owner, query string, limit int) []map[string]interface{} {
	if limit <= 0 {
		limit = 10
	}

	items, err := c.authoritative(ctx, owner, query, limit)
	if err == nil && len(items) > 0 {
		if c.tiers != nil {
			c.tiers.RecordCascadeTier(false)
		}
		if c.reindex {
			c.indexItems(ctx, owner, items)
		}
		for _, item := range items {
			item["score"] = 0.0
		}
		return items
	}
	if err != nil {
		c.logger.Printf("authoritative %s search failed for owner %s, falling back to semantic: %v", c.itemType, owner, err)
	} else {
		c.logger.Printf("authoritative %s search returned no items for owner %s, falling back to semantic", c.itemType, owner)
	}
	if c.tiers != nil {
		c.tiers.RecordCascadeTier(true)
	}

	return c.semantic(ctx, owner, query, limit)
}

// indexItems embeds and upserts authoritative results so the semantic
// tier has something to fall back on later. Failures are logged and
// swallowed; indexing must never break a successful search.
func (c *Cascade) indexItems(ctx context.Context, owner string, items []map[string]interface{}) {
	for _, item := range items {
		text := c.embedText(item)
		if text == "" {
			continue
		}
		sourceID := c.sourceID(item)
		if sourceID == "" {
			continue
		}
		vec := c.embedder.Embed(ctx, text)
		if isZeroVector(vec) {
			continue
		}
		err := c.index.Upsert(ctx, []vectorindex.Record{{
			Owner:    owner,
			ItemType: c.itemType,
			SourceID: sourceID,
			Vector:   vec,
			Payload:  item,
		}})
		if err != nil {
			c.logger.Printf("indexing %s %s failed: %v", c.itemType, sourceID, err)
		}
	}
}

func (c *Cascade) semantic(ctx context.Context, owner, query string, limit int) []map[string]interface{} {
	vec := c.embedder.Embed(ctx, query)
	if isZeroVector(vec) {
		c.logger.Printf("semantic %s search skipped for owner %s: embedding unavailable", c.itemType, owner)
		return []map[string]interface{}{}
	}
	hits, err := c.index.Search(ctx, vec, limit, vectorindex.Filter{Owner: owner, ItemType: c.itemType})
	if err != nil {
		c.logger.Printf("semantic %s search failed for owner %s: %v", c.itemType, owner, err)
		return []map[string]interface{}{}
	}
	items := make([]map[string]interface{}, 0, len(hits))
	for _, hit := range hits {
		item := make(map[string]interface{}, len(hit.Payload)+1)
		for k, v := range hit.Payload {
			item[k] = v
		}
		item["score"] = hit.Score
		items = append(items, item)
	}
	return items
}

func isZeroVector(vec []float32) bool {
	for _, f := range vec {
		if f != 0 {
			return false
		}
	}
	return true
}
