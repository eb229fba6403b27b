// Package mail adapts Gmail into the assistant's domain contract:
// cascade-backed search plus tool-driven send, draft, label and delete
// operations.
package mail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/workmate/internal/assistant"
	"github.com/mohammad-safakhou/workmate/internal/backends/google"
	"github.com/mohammad-safakhou/workmate/internal/cascade"
	"github.com/mohammad-safakhou/workmate/internal/domains"
	"github.com/mohammad-safakhou/workmate/internal/helpers"
	"github.com/mohammad-safakhou/workmate/internal/vectorindex"
)

// GmailAPI is the slice of the Gmail client the adapter needs.
type GmailAPI interface {
	ListMessages(ctx context.Context, owner, query string, maxResults int) ([]google.Message, error)
	GetMessage(ctx context.Context, owner, id, format string) (google.Message, error)
	SendMessage(ctx context.Context, owner, to, subject, body string) (google.Message, error)
	CreateDraft(ctx context.Context, owner, to, subject, body string) (google.Draft, error)
	ModifyLabels(ctx context.Context, owner, id string, add, remove []string) (google.Message, error)
	TrashMessage(ctx context.Context, owner, id string) error
}

// Adapter handles mail-domain requests.
type Adapter struct {
	api        GmailAPI
	search     *cascade.Cascade
	runner     *domains.Runner
	maxResults int
	logger     *log.Logger
}

// New builds the mail adapter with its search cascade.
func New(api GmailAPI, embedder cascade.Embedder, index vectorindex.Index, tiers cascade.TierRecorder, runner *domains.Runner, reindexOnRead bool, maxResults int) *Adapter {
	if maxResults <= 0 {
		maxResults = 10
	}
	a := &Adapter{
		api:        api,
		runner:     runner,
		maxResults: maxResults,
		logger:     log.New(log.Writer(), "[MAIL] ", log.LstdFlags),
	}
	a.search = cascade.New(cascade.Options{
		ItemType: "email",
		Authoritative: func(ctx context.Context, owner, query string, limit int) ([]map[string]interface{}, error) {
			messages, err := api.ListMessages(ctx, owner, query, limit)
			if err != nil {
				return nil, err
			}
			items := make([]map[string]interface{}, 0, len(messages))
			for _, msg := range messages {
				items = append(items, normalizeMessage(msg))
			}
			return items, nil
		},
		EmbedText: func(item map[string]interface{}) string {
			subject, _ := item["subject"].(string)
			snippet, _ := item["snippet"].(string)
			return strings.TrimSpace(subject + "\n" + snippet)
		},
		SourceID: func(item map[string]interface{}) string {
			id, _ := item["id"].(string)
			return id
		},
		Embedder:      embedder,
		Index:         index,
		ReindexOnRead: reindexOnRead,
		Tiers:         tiers,
	})
	return a
}

// normalizeMessage flattens a Gmail message into the shared search item
// shape. Both cascade tiers emit exactly these keys (plus "score").
func normalizeMessage(msg google.Message) map[string]interface{} {
	return map[string]interface{}{
		"id":        msg.ID,
		"thread_id": msg.ThreadID,
		"from":      msg.Header("From"),
		"to":        msg.Header("To"),
		"subject":   msg.Header("Subject"),
		"date":      msg.Header("Date"),
		"snippet":   msg.Snippet,
		"labels":    strings.Join(msg.LabelIDs, ","),
	}
}

// SearchEmails runs the two-tier cascade. Never errors; empty on total failure.
func (a *Adapter) SearchEmails(ctx context.Context, owner, query string, limit int) []map[string]interface{} {
	if limit <= 0 || limit > a.maxResults {
		limit = a.maxResults
	}
	return a.search.Search(ctx, owner, query, limit)
}

// Process executes a contextual query against the mail domain.
func (a *Adapter) Process(ctx context.Context, owner, contextualQuery string) assistant.DomainResult {
	answer, err := a.runner.Run(ctx, owner, contextualQuery, a.tools())
	if err != nil {
		a.logger.Printf("processing failed for owner %s: %v", owner, err)
		return assistant.DomainResult{Domain: assistant.DomainMail, Success: false, Error: err.Error()}
	}
	return assistant.DomainResult{Domain: assistant.DomainMail, Success: true, Data: answer}
}

func (a *Adapter) tools() []domains.Tool {
	return []domains.Tool{
		{
			Name:        "search_emails",
			Description: "Search the user's mailbox",
			Parameters:  `{"query": "<search terms>", "limit": <optional int>}`,
			Run: func(ctx context.Context, owner string, params map[string]interface{}) (string, error) {
				query := domains.StringParam(params, "query")
				limit := domains.IntParam(params, "limit", a.maxResults)
				items := a.SearchEmails(ctx, owner, query, limit)
				if len(items) == 0 {
					return "No emails found.", nil
				}
				b, err := json.Marshal(items)
				if err != nil {
					return "", err
				}
				return string(b), nil
			},
		},
		{
			Name:        "read_email",
			Description: "Read the full body of one email",
			Parameters:  `{"id": "<message id>"}`,
			Run: func(ctx context.Context, owner string, params map[string]interface{}) (string, error) {
				id, err := domains.RequireString(params, "id")
				if err != nil {
					return "", err
				}
				msg, err := a.api.GetMessage(ctx, owner, id, "full")
				if err != nil {
					return "", err
				}
				body := extractBody(msg.Payload)
				if body == "" {
					body = msg.Snippet
				}
				return fmt.Sprintf("From: %s\nSubject: %s\nDate: %s\n\n%s",
					msg.Header("From"), msg.Header("Subject"), msg.Header("Date"), body), nil
			},
		},
		{
			Name:        "send_email",
			Description: "Send an email immediately",
			Parameters:  `{"to": "<recipient>", "subject": "<subject>", "body": "<plain text body>"}`,
			Run: func(ctx context.Context, owner string, params map[string]interface{}) (string, error) {
				to, err := domains.RequireString(params, "to")
				if err != nil {
					return "", err
				}
				subject := domains.StringParam(params, "subject")
				body := domains.StringParam(params, "body")
				msg, err := a.api.SendMessage(ctx, owner, to, subject, body)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Email sent to %s, message id %s", to, msg.ID), nil
			},
		},
		{
			Name:        "draft_email",
			Description: "Create a draft without sending it",
			Parameters:  `{"to": "<recipient>", "subject": "<subject>", "body": "<plain text body>"}`,
			Run: func(ctx context.Context, owner string, params map[string]interface{}) (string, error) {
				to := domains.StringParam(params, "to")
				subject := domains.StringParam(params, "subject")
				body := domains.StringParam(params, "body")
				draft, err := a.api.CreateDraft(ctx, owner, to, subject, body)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Draft created with id %s", draft.ID), nil
			},
		},
		{
			Name:        "mark_email",
			Description: "Add or remove labels on a message, for example mark read or starred",
			Parameters:  `{"id": "<message id>", "add_labels": ["STARRED"], "remove_labels": ["UNREAD"]}`,
			Run: func(ctx context.Context, owner string, params map[string]interface{}) (string, error) {
				id, err := domains.RequireString(params, "id")
				if err != nil {
					return "", err
				}
				add := stringSliceParam(params, "add_labels")
				remove := stringSliceParam(params, "remove_labels")
				if len(add) == 0 && len(remove) == 0 {
					return "", fmt.Errorf("add_labels or remove_labels required")
				}
				msg, err := a.api.ModifyLabels(ctx, owner, id, add, remove)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Message %s labels now: %s", msg.ID, strings.Join(msg.LabelIDs, ",")), nil
			},
		},
		{
			Name:        "delete_email",
			Description: "Move a message to the trash",
			Parameters:  `{"id": "<message id>"}`,
			Run: func(ctx context.Context, owner string, params map[string]interface{}) (string, error) {
				id, err := domains.RequireString(params, "id")
				if err != nil {
					return "", err
				}
				if err := a.api.TrashMessage(ctx, owner, id); err != nil {
					return "", err
				}
				return fmt.Sprintf("Message %s moved to trash", id), nil
			},
		},
	}
}

// extractBody walks the MIME tree preferring text/plain, then sanitized
// text/html.
func extractBody(part google.MessagePart) string {
	if plain := findPart(part, "text/plain"); plain != "" {
		return plain
	}
	if html := findPart(part, "text/html"); html != "" {
		return helpers.SanitizeHTMLStrict(html)
	}
	return ""
}

func findPart(part google.MessagePart, mimeType string) string {
	if strings.HasPrefix(part.MimeType, mimeType) && part.Body.Data != "" {
		decoded, err := base64.RawURLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			return ""
		}
		return string(decoded)
	}
	for _, child := range part.Parts {
		if text := findPart(child, mimeType); text != "" {
			return text
		}
	}
	return ""
}

func stringSliceParam(params map[string]interface{}, key string) []string {
	raw, ok := params[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
