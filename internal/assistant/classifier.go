package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/mohammad-safakhou/workmate/internal/helpers"
)

const classifierSystemPrompt = "You are an intent classification system that understands conversation context. Always respond with valid JSON only."

// Classifier turns a query plus formatted history into a StructuredIntent.
// It never fails: any model or parse error collapses to DefaultIntent.
type Classifier struct {
	llm          ChatProvider
	history      *HistoryFormatter
	model        string
	historyLimit int
	logger       *log.Logger
}

// NewClassifier creates a classifier using the given chat model.
func NewClassifier(llm ChatProvider, history *HistoryFormatter, model string, historyLimit int) *Classifier {
	return &Classifier{
		llm:          llm,
		history:      history,
		model:        model,
		historyLimit: historyLimit,
		logger:       log.New(log.Writer(), "[CLASSIFIER] ", log.LstdFlags),
	}
}

// Classify produces a structured intent for the query in conversation context.
func (c *Classifier) Classify(ctx context.Context, query, conversationID string) *StructuredIntent {
	historyText, err := c.history.Format(ctx, conversationID, c.historyLimit)
	if err != nil {
		c.logger.Printf("history formatting failed, classifying without it: %v", err)
		historyText = NoHistory
	}

	prompt := c.buildPrompt(query, historyText)

	response, err := c.llm.Complete(ctx, classifierSystemPrompt, prompt, c.model, 0.1)
	if err != nil {
		c.logger.Printf("intent classification failed: %v", err)
		return DefaultIntent()
	}

	intent, err := parseIntent(response)
	if err != nil {
		c.logger.Printf("intent parse failed: %v", err)
		return DefaultIntent()
	}

	c.logger.Printf("classified intent: %s, domains: %v", intent.Label, intent.Domains)
	return intent
}

func (c *Classifier) buildPrompt(query, historyText string) string {
	return fmt.Sprintf(`Analyze this query IN CONTEXT of the conversation history.

CONVERSATION HISTORY:
%s

CURRENT QUERY: %s

Based on the conversation history and current query, respond with a JSON object containing:
- domains: array of needed domains ("mail", "calendar", "files")
- label: short description of what the user wants
- context_from_history: what information from history is relevant
- entities: key entities extracted from query AND history
- needs_new_search: boolean - does this need new API calls or can we use info from history?
- task: exact task to perform (e.g., "draft_email_to_cancel_flight")
- task_parameters: specific parameters extracted from history (flight details, recipient email, etc.)

Example for "draft a cancellation email":
{
  "domains": ["mail"],
  "label": "draft_cancellation_email",
  "context_from_history": "User previously found flight AI 1803 to Kerala on 2 Jan 2026 from calendar",
  "entities": {
    "flight_number": "AI 1803",
    "destination": "Kerala",
    "date": "2 Jan 2026",
    "time": "01:35 - 03:25",
    "recipient_email": "xyz@gmail.com",
    "recipient_name": "Mr XYZ"
  },
  "needs_new_search": false,
  "task": "draft_cancellation_email",
  "task_parameters": {
    "to": "xyz@gmail.com",
    "flight_info": "AI 1803 to Kerala on 2 Jan 2026, 01:35 - 03:25"
  }
}`, historyText, query)
}

// parseIntent extracts the first balanced JSON object from the model output
// and decodes it into a StructuredIntent. Missing required fields fail the
// parse so callers fall back to the default intent instead of carrying an
// under-specified one forward.
func parseIntent(response string) (*StructuredIntent, error) {
	jsonStr := helpers.ExtractJSONObject(response)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var intent StructuredIntent
	if err := json.Unmarshal([]byte(jsonStr), &intent); err != nil {
		return nil, fmt.Errorf("unmarshal intent: %w", err)
	}
	if intent.Label == "" {
		return nil, fmt.Errorf("intent label missing")
	}
	if intent.Task == "" {
		intent.Task = intent.Label
	}
	if intent.Entities == nil {
		intent.Entities = map[string]interface{}{}
	}
	if intent.TaskParameters == nil {
		intent.TaskParameters = map[string]interface{}{}
	}
	return &intent, nil
}
