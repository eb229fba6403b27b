// Package calendar adapts the Calendar API into the assistant's domain
// contract. Free-text queries are cleaned before hitting the backend, and
// a failed filtered search is retried unfiltered before the semantic
// fallback kicks in.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/workmate/internal/assistant"
	"github.com/mohammad-safakhou/workmate/internal/backends/google"
	"github.com/mohammad-safakhou/workmate/internal/cascade"
	"github.com/mohammad-safakhou/workmate/internal/domains"
	"github.com/mohammad-safakhou/workmate/internal/vectorindex"
)

// CalendarAPI is the slice of the Calendar client the adapter needs.
type CalendarAPI interface {
	ListEvents(ctx context.Context, owner, query, timeMin string, maxResults int) ([]google.Event, error)
	GetEvent(ctx context.Context, owner, id string) (google.Event, error)
	InsertEvent(ctx context.Context, owner string, event google.Event) (google.Event, error)
	UpdateEvent(ctx context.Context, owner string, event google.Event) (google.Event, error)
	DeleteEvent(ctx context.Context, owner, id string) error
}

// Adapter handles calendar-domain requests.
type Adapter struct {
	api        CalendarAPI
	search     *cascade.Cascade
	runner     *domains.Runner
	maxResults int
	now        func() time.Time
	logger     *log.Logger
}

// New builds the calendar adapter with its search cascade.
func New(api CalendarAPI, embedder cascade.Embedder, index vectorindex.Index, tiers cascade.TierRecorder, runner *domains.Runner, reindexOnRead bool, maxResults int) *Adapter {
	if maxResults <= 0 {
		maxResults = 10
	}
	a := &Adapter{
		api:        api,
		runner:     runner,
		maxResults: maxResults,
		now:        time.Now,
		logger:     log.New(log.Writer(), "[CALENDAR] ", log.LstdFlags),
	}
	a.search = cascade.New(cascade.Options{
		ItemType:      "event",
		Authoritative: a.authoritativeSearch,
		EmbedText: func(item map[string]interface{}) string {
			summary, _ := item["summary"].(string)
			description, _ := item["description"].(string)
			return strings.TrimSpace(summary + "\n" + description)
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

// authoritativeSearch queries the backend with a cleaned q parameter and,
// when that fails, once more without any q before reporting failure.
func (a *Adapter) authoritativeSearch(ctx context.Context, owner, query string, limit int) ([]map[string]interface{}, error) {
	timeMin := a.now().UTC().Format(time.RFC3339)
	cleaned := CleanQuery(query)

	events, err := a.api.ListEvents(ctx, owner, cleaned, timeMin, limit)
	if err != nil && cleaned != "" {
		a.logger.Printf("filtered event search failed for owner %s, retrying unfiltered: %v", owner, err)
		events, err = a.api.ListEvents(ctx, owner, "", timeMin, limit)
	}
	if err != nil {
		return nil, err
	}

	items := make([]map[string]interface{}, 0, len(events))
	for _, ev := range events {
		items = append(items, normalizeEvent(ev))
	}
	return items, nil
}

// CleanQuery strips boolean operators and parentheses that the events API
// rejects, and keeps the first three keywords longer than two characters.
func CleanQuery(query string) string {
	replacer := strings.NewReplacer("(", " ", ")", " ")
	query = replacer.Replace(query)

	var keywords []string
	for _, word := range strings.Fields(query) {
		switch strings.ToUpper(word) {
		case "OR", "AND", "NOT":
			continue
		}
		if len(word) <= 2 {
			continue
		}
		keywords = append(keywords, word)
		if len(keywords) == 3 {
			break
		}
	}
	return strings.Join(keywords, " ")
}

// normalizeEvent flattens an event into the shared search item shape.
func normalizeEvent(ev google.Event) map[string]interface{} {
	attendees := make([]string, 0, len(ev.Attendees))
	for _, at := range ev.Attendees {
		attendees = append(attendees, at.Email)
	}
	return map[string]interface{}{
		"id":          ev.ID,
		"summary":     ev.Summary,
		"description": ev.Description,
		"location":    ev.Location,
		"start":       ev.Start.When(),
		"end":         ev.End.When(),
		"attendees":   strings.Join(attendees, ","),
		"link":        ev.HTMLLink,
	}
}

// SearchEvents runs the two-tier cascade. Never errors; empty on total failure.
func (a *Adapter) SearchEvents(ctx context.Context, owner, query string, limit int) []map[string]interface{} {
	if limit <= 0 || limit > a.maxResults {
		limit = a.maxResults
	}
	return a.search.Search(ctx, owner, query, limit)
}

// Process executes a contextual query against the calendar domain.
func (a *Adapter) Process(ctx context.Context, owner, contextualQuery string) assistant.DomainResult {
	answer, err := a.runner.Run(ctx, owner, contextualQuery, a.tools())
	if err != nil {
		a.logger.Printf("processing failed for owner %s: %v", owner, err)
		return assistant.DomainResult{Domain: assistant.DomainCalendar, Success: false, Error: err.Error()}
	}
	return assistant.DomainResult{Domain: assistant.DomainCalendar, Success: true, Data: answer}
}

// UpdateEvent fetches the current event, merges the changed fields and
// writes the whole thing back. The read-modify-write window is not
// protected against concurrent writers.
func (a *Adapter) UpdateEvent(ctx context.Context, owner, id string, changes google.Event) (google.Event, error) {
	current, err := a.api.GetEvent(ctx, owner, id)
	if err != nil {
		return google.Event{}, fmt.Errorf("fetch event for update: %w", err)
	}
	merged := mergeEvent(current, changes)
	return a.api.UpdateEvent(ctx, owner, merged)
}

func mergeEvent(current, changes google.Event) google.Event {
	merged := current
	if changes.Summary != "" {
		merged.Summary = changes.Summary
	}
	if changes.Description != "" {
		merged.Description = changes.Description
	}
	if changes.Location != "" {
		merged.Location = changes.Location
	}
	if changes.Start.When() != "" {
		merged.Start = changes.Start
	}
	if changes.End.When() != "" {
		merged.End = changes.End
	}
	if len(changes.Attendees) > 0 {
		merged.Attendees = changes.Attendees
	}
	return merged
}

func (a *Adapter) tools() []domains.Tool {
	return []domains.Tool{
		{
			Name:        "search_events",
			Description: "Search upcoming calendar events",
			Parameters:  `{"query": "<search terms>", "limit": <optional int>}`,
			Run: func(ctx context.Context, owner string, params map[string]interface{}) (string, error) {
				query := domains.StringParam(params, "query")
				limit := domains.IntParam(params, "limit", a.maxResults)
				items := a.SearchEvents(ctx, owner, query, limit)
				if len(items) == 0 {
					return "No events found.", nil
				}
				b, err := json.Marshal(items)
				if err != nil {
					return "", err
				}
				return string(b), nil
			},
		},
		{
			Name:        "get_event",
			Description: "Fetch one calendar event by id",
			Parameters:  `{"id": "<event id>"}`,
			Run: func(ctx context.Context, owner string, params map[string]interface{}) (string, error) {
				id, err := domains.RequireString(params, "id")
				if err != nil {
					return "", err
				}
				event, err := a.api.GetEvent(ctx, owner, id)
				if err != nil {
					return "", err
				}
				b, err := json.Marshal(normalizeEvent(event))
				if err != nil {
					return "", err
				}
				return string(b), nil
			},
		},
		{
			Name:        "create_event",
			Description: "Create a calendar event",
			Parameters:  `{"summary": "<title>", "start": "<RFC3339 datetime>", "end": "<RFC3339 datetime>", "description": "<optional>", "location": "<optional>", "attendees": ["a@example.com"]}`,
			Run: func(ctx context.Context, owner string, params map[string]interface{}) (string, error) {
				summary, err := domains.RequireString(params, "summary")
				if err != nil {
					return "", err
				}
				start, err := domains.RequireString(params, "start")
				if err != nil {
					return "", err
				}
				end := domains.StringParam(params, "end")
				if end == "" {
					end = defaultEnd(start)
				}
				event := google.Event{
					Summary:     summary,
					Description: domains.StringParam(params, "description"),
					Location:    domains.StringParam(params, "location"),
					Start:       google.EventTime{DateTime: start},
					End:         google.EventTime{DateTime: end},
					Attendees:   attendeesParam(params),
				}
				created, err := a.api.InsertEvent(ctx, owner, event)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Event %q created with id %s, starts %s", created.Summary, created.ID, created.Start.When()), nil
			},
		},
		{
			Name:        "update_event",
			Description: "Update fields on an existing event, unspecified fields keep their current values",
			Parameters:  `{"id": "<event id>", "summary": "<optional>", "start": "<optional RFC3339>", "end": "<optional RFC3339>", "description": "<optional>", "location": "<optional>"}`,
			Run: func(ctx context.Context, owner string, params map[string]interface{}) (string, error) {
				id, err := domains.RequireString(params, "id")
				if err != nil {
					return "", err
				}
				changes := google.Event{
					Summary:     domains.StringParam(params, "summary"),
					Description: domains.StringParam(params, "description"),
					Location:    domains.StringParam(params, "location"),
				}
				if start := domains.StringParam(params, "start"); start != "" {
					changes.Start = google.EventTime{DateTime: start}
				}
				if end := domains.StringParam(params, "end"); end != "" {
					changes.End = google.EventTime{DateTime: end}
				}
				updated, err := a.UpdateEvent(ctx, owner, id, changes)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Event %s updated, now %q starting %s", updated.ID, updated.Summary, updated.Start.When()), nil
			},
		},
		{
			Name:        "delete_event",
			Description: "Delete a calendar event",
			Parameters:  `{"id": "<event id>"}`,
			Run: func(ctx context.Context, owner string, params map[string]interface{}) (string, error) {
				id, err := domains.RequireString(params, "id")
				if err != nil {
					return "", err
				}
				if err := a.api.DeleteEvent(ctx, owner, id); err != nil {
					return "", err
				}
				return fmt.Sprintf("Event %s deleted", id), nil
			},
		},
	}
}

// defaultEnd gives hour-long events when the model omits an end time.
func defaultEnd(start string) string {
	t, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return start
	}
	return t.Add(time.Hour).Format(time.RFC3339)
}

func attendeesParam(params map[string]interface{}) []google.Attendee {
	raw, ok := params["attendees"].([]interface{})
	if !ok {
		return nil
	}
	attendees := make([]google.Attendee, 0, len(raw))
	for _, v := range raw {
		if email, ok := v.(string); ok && email != "" {
			attendees = append(attendees, google.Attendee{Email: email})
		}
	}
	return attendees
}
