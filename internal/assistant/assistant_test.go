package assistant

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

type stubStore struct {
	turns []ConversationTurn
	err   error
}

func (s *stubStore) RecentTurns(ctx context.Context, conversationID string, limit int) ([]ConversationTurn, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.turns) {
		return s.turns[:limit], nil
	}
	return s.turns, nil
}

type stubLLM struct {
	response string
	err      error
	calls    int
	lastUser string
}

func (s *stubLLM) Complete(ctx context.Context, systemPrompt, userPrompt, model string, temperature float64) (string, error) {
	s.calls++
	s.lastUser = userPrompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

type stubAdapter struct {
	domain    string
	result    DomainResult
	lastQuery string
	calls     int
	panicWith string
}

func (s *stubAdapter) Process(ctx context.Context, owner, contextualQuery string) DomainResult {
	s.calls++
	s.lastQuery = contextualQuery
	if s.panicWith != "" {
		panic(s.panicWith)
	}
	return s.result
}

func TestHistoryFormatRendersChronologically(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	store := &stubStore{turns: []ConversationTurn{
		{Role: RoleAssistant, Text: "Your flight is on March 20.", CreatedAt: base.Add(time.Minute)},
		{Role: RoleUser, Text: "when is my flight?", CreatedAt: base},
	}}
	f := NewHistoryFormatter(store)

	out, err := f.Format(context.Background(), "conv-1", 10)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), out)
	}
	if lines[0] != "[2026-03-14 09:30] USER: when is my flight?" {
		t.Fatalf("unexpected first line: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "[2026-03-14 09:31] ASSISTANT:") {
		t.Fatalf("unexpected second line: %q", lines[1])
	}
}

func TestHistoryFormatEmptyConversation(t *testing.T) {
	f := NewHistoryFormatter(&stubStore{})
	out, err := f.Format(context.Background(), "conv-1", 10)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if out != NoHistory {
		t.Fatalf("expected %q, got %q", NoHistory, out)
	}

	out, err = f.Format(context.Background(), "", 10)
	if err != nil || out != NoHistory {
		t.Fatalf("expected %q for missing conversation id, got %q (%v)", NoHistory, out, err)
	}
}

func TestClassifyParsesModelOutput(t *testing.T) {
	llm := &stubLLM{response: `Here is the result:
{"domains": ["calendar"], "label": "create_event", "context_from_history": "", "entities": {"time": "3pm"}, "needs_new_search": false, "task": "create_event", "task_parameters": {}}`}
	c := NewClassifier(llm, NewHistoryFormatter(&stubStore{}), "gpt-4o-mini", 10)

	intent := c.Classify(context.Background(), "schedule a meeting with Alex tomorrow at 3pm", "conv-1")
	if len(intent.Domains) != 1 || intent.Domains[0] != DomainCalendar {
		t.Fatalf("unexpected domains: %v", intent.Domains)
	}
	if intent.Label != "create_event" {
		t.Fatalf("unexpected label: %s", intent.Label)
	}
	if intent.Entities["time"] != "3pm" {
		t.Fatalf("entities not parsed: %v", intent.Entities)
	}
}

func TestClassifyFallsBackToDefaultIntent(t *testing.T) {
	cases := map[string]*stubLLM{
		"model error":   {err: fmt.Errorf("upstream 500")},
		"not json":      {response: "I think this is about calendars."},
		"missing label": {response: `{"domains": ["mail"]}`},
	}
	for name, llm := range cases {
		t.Run(name, func(t *testing.T) {
			c := NewClassifier(llm, NewHistoryFormatter(&stubStore{}), "gpt-4o-mini", 10)
			intent := c.Classify(context.Background(), "whatever", "conv-1")

			want := DefaultIntent()
			if intent.Label != want.Label || intent.Task != want.Task {
				t.Fatalf("expected default intent, got %+v", intent)
			}
			if len(intent.Domains) != 1 || intent.Domains[0] != DomainMail {
				t.Fatalf("expected default domains, got %v", intent.Domains)
			}
			if !intent.NeedsNewSearch {
				t.Fatalf("default intent must request a new search")
			}
			if intent.Entities == nil || intent.TaskParameters == nil || len(intent.Entities) != 0 || len(intent.TaskParameters) != 0 {
				t.Fatalf("expected empty maps, got %+v", intent)
			}
		})
	}
}

func TestBuildContextualQueryDeterministic(t *testing.T) {
	intent := &StructuredIntent{
		Domains:            []string{DomainMail},
		Label:              "draft_email",
		Task:               "draft_email",
		ContextFromHistory: "User booked flight AB123 on March 20",
		Entities: map[string]interface{}{
			"flight":    "AB123",
			"date":      "March 20",
			"recipient": "support@airline.com",
		},
		TaskParameters: map[string]interface{}{"tone": "polite"},
	}

	first := BuildContextualQuery("draft a cancellation email", intent)
	for i := 0; i < 10; i++ {
		if got := BuildContextualQuery("draft a cancellation email", intent); got != first {
			t.Fatalf("output not deterministic on iteration %d", i)
		}
	}

	if !strings.Contains(first, "draft_email tool") {
		t.Fatalf("expected draft directive, got:\n%s", first)
	}
	if !strings.Contains(first, "- flight: AB123") || !strings.Contains(first, "- recipient: support@airline.com") {
		t.Fatalf("entities missing from contextual query:\n%s", first)
	}
	if !strings.Contains(first, "User booked flight AB123") {
		t.Fatalf("history context missing:\n%s", first)
	}
}

func TestActionDirectivePriorityOrder(t *testing.T) {
	cases := []struct {
		label string
		want  string
	}{
		// draft wins over send when both match
		{"draft_and_send", "draft_email tool"},
		{"send_email", "send_email tool"},
		{"schedule_meeting", "create_event tool"},
		{"update_event", "update tool"},
		// delete loses to create when create also matches
		{"create_then_delete", "create_event tool"},
		{"cancel_meeting", "delete tool"},
		{"share_document", "share_file tool"},
		{"general_query", ""},
	}
	for _, tc := range cases {
		intent := &StructuredIntent{Label: tc.label, Task: tc.label}
		out := BuildContextualQuery("q", intent)
		if tc.want == "" {
			if strings.Contains(out, "ACTION REQUIRED") {
				t.Fatalf("label %s: expected no directive, got:\n%s", tc.label, out)
			}
			continue
		}
		if !strings.Contains(out, tc.want) {
			t.Fatalf("label %s: expected directive containing %q, got:\n%s", tc.label, tc.want, out)
		}
	}
}

func TestExecuteReturnsOneResultPerDomainInOrder(t *testing.T) {
	mail := &stubAdapter{result: DomainResult{Domain: DomainMail, Success: true, Data: "sent"}}
	cal := &stubAdapter{result: DomainResult{Domain: DomainCalendar, Success: false, Error: "backend down"}}
	e := NewExecutor(map[string]DomainAdapter{DomainMail: mail, DomainCalendar: cal})

	intent := &StructuredIntent{Domains: []string{DomainCalendar, DomainMail}, Label: "x", Task: "x"}
	results := e.Execute(context.Background(), Request{Query: "q", Owner: "alice"}, intent)

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Domain != DomainCalendar || results[1].Domain != DomainMail {
		t.Fatalf("results out of order: %+v", results)
	}
	if results[0].Success || !results[1].Success {
		t.Fatalf("unexpected outcomes: %+v", results)
	}
	if mail.calls != 1 {
		t.Fatalf("calendar failure must not stop mail dispatch")
	}
}

func TestExecuteUnknownDomain(t *testing.T) {
	e := NewExecutor(map[string]DomainAdapter{})
	intent := &StructuredIntent{Domains: []string{"weather"}, Label: "x", Task: "x"}

	results := e.Execute(context.Background(), Request{Query: "q"}, intent)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Success || !strings.Contains(results[0].Error, "unknown domain: weather") {
		t.Fatalf("unexpected result: %+v", results[0])
	}
}

func TestExecuteConvertsPanicToFailure(t *testing.T) {
	boom := &stubAdapter{panicWith: "nil map write"}
	ok := &stubAdapter{result: DomainResult{Domain: DomainFiles, Success: true, Data: "done"}}
	e := NewExecutor(map[string]DomainAdapter{DomainMail: boom, DomainFiles: ok})

	intent := &StructuredIntent{Domains: []string{DomainMail, DomainFiles}, Label: "x", Task: "x"}
	results := e.Execute(context.Background(), Request{Query: "q"}, intent)

	if results[0].Success || !strings.Contains(results[0].Error, "nil map write") {
		t.Fatalf("panic not converted: %+v", results[0])
	}
	if !results[1].Success {
		t.Fatalf("panic in one adapter must not affect the next: %+v", results[1])
	}
}

func TestSummarizeResults(t *testing.T) {
	results := []DomainResult{
		{Domain: DomainMail, Success: true, Data: "Draft created with id d1"},
		{Domain: DomainCalendar, Success: false, Error: "backend down"},
		{Domain: DomainFiles, Success: true},
	}
	got := SummarizeResults(results)
	want := "- mail: Success - Draft created with id d1\n- calendar: Failed - backend down\n- files: Success - No data"
	if got != want {
		t.Fatalf("summary mismatch:\n got: %q\nwant: %q", got, want)
	}
}

func TestSynthesizeIncludesResultsAndHistory(t *testing.T) {
	store := &stubStore{turns: []ConversationTurn{
		{Role: RoleUser, Text: "I booked flight AB123", CreatedAt: time.Now()},
	}}
	llm := &stubLLM{response: "All done."}
	s := NewSynthesizer(llm, NewHistoryFormatter(store), "gpt-4o", 10)

	intent := &StructuredIntent{Label: "x", Task: "x", ContextFromHistory: "flight AB123"}
	results := []DomainResult{{Domain: DomainMail, Success: true, Data: "sent"}}

	out, err := s.Synthesize(context.Background(), Request{Query: "email them", ConversationID: "conv-1"}, intent, results)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if out != "All done." {
		t.Fatalf("unexpected response: %q", out)
	}
	if !strings.Contains(llm.lastUser, "- mail: Success - sent") {
		t.Fatalf("results summary missing from prompt:\n%s", llm.lastUser)
	}
	if !strings.Contains(llm.lastUser, "I booked flight AB123") {
		t.Fatalf("history missing from prompt:\n%s", llm.lastUser)
	}
}
