package assistant

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// NoHistory is returned when no conversation id is available.
const NoHistory = "No conversation history available."

// HistoryFormatter renders a bounded window of prior turns into a flat
// transcript for prompting. It is a pure read; nothing is persisted.
type HistoryFormatter struct {
	store  HistoryStore
	logger *log.Logger
}

// NewHistoryFormatter creates a formatter over the given store.
func NewHistoryFormatter(store HistoryStore) *HistoryFormatter {
	return &HistoryFormatter{
		store:  store,
		logger: log.New(log.Writer(), "[HISTORY] ", log.LstdFlags),
	}
}

// Format fetches up to limit most recent turns, restores chronological order
// and renders one "[timestamp] ROLE: text" line per turn.
func (f *HistoryFormatter) Format(ctx context.Context, conversationID string, limit int) (string, error) {
	if conversationID == "" {
		return NoHistory, nil
	}

	turns, err := f.store.RecentTurns(ctx, conversationID, limit)
	if err != nil {
		return "", fmt.Errorf("fetch recent turns: %w", err)
	}
	if len(turns) == 0 {
		return NoHistory, nil
	}

	// Store returns most-recent-first; render oldest first.
	lines := make([]string, 0, len(turns))
	for i := len(turns) - 1; i >= 0; i-- {
		turn := turns[i]
		lines = append(lines, fmt.Sprintf("[%s] %s: %s",
			turn.CreatedAt.Format("2006-01-02 15:04"),
			strings.ToUpper(turn.Role),
			turn.Text))
	}
	return strings.Join(lines, "\n"), nil
}
