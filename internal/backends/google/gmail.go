package google

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
)

// Gmail wraps the Gmail v1 REST API for a single authenticated user
// ("me" in API terms; the owner selects the token).
type Gmail struct {
	client  *Client
	baseURL string
	logger  *log.Logger
}

func NewGmail(client *Client, baseURL string) *Gmail {
	return &Gmail{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  log.New(log.Writer(), "[GMAIL] ", log.LstdFlags),
	}
}

// Header is one RFC 822 header on a message payload.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MessagePart is the payload tree of a Gmail message.
type MessagePart struct {
	MimeType string        `json:"mimeType"`
	Headers  []Header      `json:"headers"`
	Body     MessageBody   `json:"body"`
	Parts    []MessagePart `json:"parts,omitempty"`
}

type MessageBody struct {
	Data string `json:"data"`
	Size int    `json:"size"`
}

// Message is a Gmail message resource.
type Message struct {
	ID           string      `json:"id"`
	ThreadID     string      `json:"threadId"`
	LabelIDs     []string    `json:"labelIds"`
	Snippet      string      `json:"snippet"`
	InternalDate string      `json:"internalDate"`
	Payload      MessagePart `json:"payload"`
}

// Header returns the first header with the given name, case-insensitive.
func (m Message) Header(name string) string {
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Draft is a Gmail draft resource.
type Draft struct {
	ID      string  `json:"id"`
	Message Message `json:"message"`
}

type messageList struct {
	Messages []struct {
		ID       string `json:"id"`
		ThreadID string `json:"threadId"`
	} `json:"messages"`
}

// ListMessages searches messages with a Gmail query string and fetches
// metadata for each hit.
func (g *Gmail) ListMessages(ctx context.Context, owner, query string, maxResults int) ([]Message, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	params := url.Values{}
	if query != "" {
		params.Set("q", query)
	}
	params.Set("maxResults", strconv.Itoa(maxResults))

	var list messageList
	if err := g.client.doJSON(ctx, owner, "GET", g.baseURL+"/users/me/messages", params, nil, &list); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	// Hydration degrades per message: one bad fetch must not discard
	// the rest of the hits.
	messages := make([]Message, 0, len(list.Messages))
	for _, ref := range list.Messages {
		msg, err := g.GetMessage(ctx, owner, ref.ID, "metadata")
		if err != nil {
			g.logger.Printf("skipping message %s: %v", ref.ID, err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// GetMessage fetches one message. Format is "metadata", "full" or "minimal".
func (g *Gmail) GetMessage(ctx context.Context, owner, id, format string) (Message, error) {
	params := url.Values{}
	if format != "" {
		params.Set("format", format)
	}
	if format == "metadata" {
		for _, h := range []string{"From", "To", "Subject", "Date"} {
			params.Add("metadataHeaders", h)
		}
	}
	var msg Message
	err := g.client.doJSON(ctx, owner, "GET", g.baseURL+"/users/me/messages/"+url.PathEscape(id), params, nil, &msg)
	return msg, err
}

// SendMessage builds an RFC 822 message and sends it.
func (g *Gmail) SendMessage(ctx context.Context, owner, to, subject, body string) (Message, error) {
	raw := encodeRawMessage(to, subject, body)
	var msg Message
	err := g.client.doJSON(ctx, owner, "POST", g.baseURL+"/users/me/messages/send", nil,
		map[string]string{"raw": raw}, &msg)
	if err != nil {
		return Message{}, fmt.Errorf("send message: %w", err)
	}
	return msg, nil
}

// CreateDraft stores a draft without sending it.
func (g *Gmail) CreateDraft(ctx context.Context, owner, to, subject, body string) (Draft, error) {
	raw := encodeRawMessage(to, subject, body)
	var draft Draft
	err := g.client.doJSON(ctx, owner, "POST", g.baseURL+"/users/me/drafts", nil,
		map[string]interface{}{"message": map[string]string{"raw": raw}}, &draft)
	if err != nil {
		return Draft{}, fmt.Errorf("create draft: %w", err)
	}
	return draft, nil
}

// ModifyLabels adds and removes label IDs on a message.
func (g *Gmail) ModifyLabels(ctx context.Context, owner, id string, add, remove []string) (Message, error) {
	payload := map[string]interface{}{}
	if len(add) > 0 {
		payload["addLabelIds"] = add
	}
	if len(remove) > 0 {
		payload["removeLabelIds"] = remove
	}
	var msg Message
	err := g.client.doJSON(ctx, owner, "POST", g.baseURL+"/users/me/messages/"+url.PathEscape(id)+"/modify", nil, payload, &msg)
	if err != nil {
		return Message{}, fmt.Errorf("modify labels on %s: %w", id, err)
	}
	return msg, nil
}

// TrashMessage moves a message to the trash.
func (g *Gmail) TrashMessage(ctx context.Context, owner, id string) error {
	err := g.client.doJSON(ctx, owner, "POST", g.baseURL+"/users/me/messages/"+url.PathEscape(id)+"/trash", nil, nil, nil)
	if err != nil {
		return fmt.Errorf("trash message %s: %w", id, err)
	}
	return nil
}

// encodeRawMessage assembles a minimal RFC 822 message and encodes it the
// way the API expects, URL-safe base64 without padding.
func encodeRawMessage(to, subject, body string) string {
	var b strings.Builder
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return base64.RawURLEncoding.EncodeToString([]byte(b.String()))
}
