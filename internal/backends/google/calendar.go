package google

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Calendar wraps the Calendar v3 REST API on the owner's primary calendar.
type Calendar struct {
	client  *Client
	baseURL string
}

func NewCalendar(client *Client, baseURL string) *Calendar {
	return &Calendar{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// EventTime is either a date (all-day) or a dateTime.
type EventTime struct {
	Date     string `json:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// When returns whichever of dateTime/date is set.
func (t EventTime) When() string {
	if t.DateTime != "" {
		return t.DateTime
	}
	return t.Date
}

// Attendee is one invited participant.
type Attendee struct {
	Email          string `json:"email"`
	ResponseStatus string `json:"responseStatus,omitempty"`
}

// Event is a Calendar event resource.
type Event struct {
	ID          string     `json:"id,omitempty"`
	Status      string     `json:"status,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Start       EventTime  `json:"start,omitempty"`
	End         EventTime  `json:"end,omitempty"`
	Attendees   []Attendee `json:"attendees,omitempty"`
	HTMLLink    string     `json:"htmlLink,omitempty"`
}

type eventList struct {
	Items []Event `json:"items"`
}

// ListEvents searches upcoming events on the primary calendar. A free-text
// query is matched by the API across summary, description and attendees.
func (c *Calendar) ListEvents(ctx context.Context, owner, query, timeMin string, maxResults int) ([]Event, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	params := url.Values{}
	if query != "" {
		params.Set("q", query)
	}
	if timeMin != "" {
		params.Set("timeMin", timeMin)
	}
	params.Set("maxResults", strconv.Itoa(maxResults))
	params.Set("singleEvents", "true")
	params.Set("orderBy", "startTime")

	var list eventList
	if err := c.client.doJSON(ctx, owner, "GET", c.baseURL+"/calendars/primary/events", params, nil, &list); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return list.Items, nil
}

// GetEvent fetches one event by ID.
func (c *Calendar) GetEvent(ctx context.Context, owner, id string) (Event, error) {
	var event Event
	err := c.client.doJSON(ctx, owner, "GET", c.baseURL+"/calendars/primary/events/"+url.PathEscape(id), nil, nil, &event)
	if err != nil {
		return Event{}, fmt.Errorf("get event %s: %w", id, err)
	}
	return event, nil
}

// InsertEvent creates a new event on the primary calendar.
func (c *Calendar) InsertEvent(ctx context.Context, owner string, event Event) (Event, error) {
	var created Event
	err := c.client.doJSON(ctx, owner, "POST", c.baseURL+"/calendars/primary/events", nil, event, &created)
	if err != nil {
		return Event{}, fmt.Errorf("insert event: %w", err)
	}
	return created, nil
}

// UpdateEvent replaces an event. Callers are expected to fetch, merge and
// write back; concurrent writers can lose updates.
func (c *Calendar) UpdateEvent(ctx context.Context, owner string, event Event) (Event, error) {
	if event.ID == "" {
		return Event{}, fmt.Errorf("event id required for update")
	}
	var updated Event
	err := c.client.doJSON(ctx, owner, "PUT", c.baseURL+"/calendars/primary/events/"+url.PathEscape(event.ID), nil, event, &updated)
	if err != nil {
		return Event{}, fmt.Errorf("update event %s: %w", event.ID, err)
	}
	return updated, nil
}

// DeleteEvent removes an event from the primary calendar.
func (c *Calendar) DeleteEvent(ctx context.Context, owner, id string) error {
	err := c.client.doJSON(ctx, owner, "DELETE", c.baseURL+"/calendars/primary/events/"+url.PathEscape(id), nil, nil, nil)
	if err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	return nil
}
