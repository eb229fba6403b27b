package assistant

import (
	"context"
	"fmt"
	"log"
	"strings"
)

const synthesizerSystemPrompt = "You are a helpful assistant that synthesizes information from conversation history and multiple sources. Always use plain text, avoid special Unicode characters."

// Synthesizer combines history, intent and per-domain outcomes into one
// natural-language reply.
type Synthesizer struct {
	llm          ChatProvider
	history      *HistoryFormatter
	model        string
	historyLimit int
	logger       *log.Logger
}

// NewSynthesizer creates a synthesizer using the given chat model.
func NewSynthesizer(llm ChatProvider, history *HistoryFormatter, model string, historyLimit int) *Synthesizer {
	return &Synthesizer{
		llm:          llm,
		history:      history,
		model:        model,
		historyLimit: historyLimit,
		logger:       log.New(log.Writer(), "[SYNTHESIZER] ", log.LstdFlags),
	}
}

// Synthesize produces the final response text from the domain results.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request, intent *StructuredIntent, results []DomainResult) (string, error) {
	historyText, err := s.history.Format(ctx, req.ConversationID, s.historyLimit)
	if err != nil {
		s.logger.Printf("history formatting failed, synthesizing without it: %v", err)
		historyText = NoHistory
	}

	prompt := s.buildPrompt(req.Query, intent, results, historyText)

	response, err := s.llm.Complete(ctx, synthesizerSystemPrompt, prompt, s.model, 0.7)
	if err != nil {
		return "", fmt.Errorf("synthesis completion: %w", err)
	}
	return response, nil
}

// SummarizeResults renders the one-line-per-domain summary block.
func SummarizeResults(results []DomainResult) string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		status := "Success"
		detail := r.Data
		if !r.Success {
			status = "Failed"
			detail = r.Error
		}
		if detail == "" {
			detail = "No data"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s - %s", r.Domain, status, detail))
	}
	return strings.Join(lines, "\n")
}

func (s *Synthesizer) buildPrompt(query string, intent *StructuredIntent, results []DomainResult, historyText string) string {
	return fmt.Sprintf(`Synthesize a natural, helpful response based on conversation history and results.

CONVERSATION HISTORY (for context):
%s

CURRENT QUERY: %s

CONTEXT EXTRACTED FROM HISTORY:
%s

RELEVANT ENTITIES FROM HISTORY:
%v

RESULTS FROM DOMAIN HANDLERS:
%s

INSTRUCTIONS:
1. Use information from BOTH history and new results
2. If the user references something from history (like "that flight"), use the details from history
3. Provide a complete, helpful response
4. If drafting/sending an email, include the full content
5. Be conversational and don't ask unnecessary questions if you have the info
6. AVOID special characters like arrows, use "to" instead

Provide a clear, conversational response.`,
		historyText, query, intent.ContextFromHistory, intent.Entities, SummarizeResults(results))
}
