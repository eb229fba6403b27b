package assistant

import (
	"context"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/workmate/config"
	"github.com/mohammad-safakhou/workmate/internal/assistant/telemetry"
)

func newTestOrchestrator(classifierLLM, synthesizerLLM *stubLLM, adapters map[string]DomainAdapter) *Orchestrator {
	history := NewHistoryFormatter(&stubStore{})
	return NewOrchestrator(
		NewClassifier(classifierLLM, history, "gpt-4o-mini", 10),
		NewExecutor(adapters),
		NewSynthesizer(synthesizerLLM, history, "gpt-4o", 10),
		telemetry.NewTelemetry(config.TelemetryConfig{}),
	)
}

func TestRunShortCircuitsConversationalIntents(t *testing.T) {
	cases := []struct {
		label string
		want  string
	}{
		{"greeting", "Hello!"},
		{"casual_conversation", "I'm doing well"},
		{"thanks", "You're welcome"},
	}
	for _, tc := range cases {
		t.Run(tc.label, func(t *testing.T) {
			classifierLLM := &stubLLM{response: `{"domains": ["mail"], "label": "` + tc.label + `", "task": "` + tc.label + `"}`}
			synthLLM := &stubLLM{response: "should not be called"}
			adapter := &stubAdapter{result: DomainResult{Domain: DomainMail, Success: true}}

			o := newTestOrchestrator(classifierLLM, synthLLM, map[string]DomainAdapter{DomainMail: adapter})
			reply := o.Run(context.Background(), Request{Query: "hey", ConversationID: "conv-1"})

			if !strings.Contains(reply.Response, tc.want) {
				t.Fatalf("unexpected canned reply: %q", reply.Response)
			}
			if len(reply.ActionsTaken) != 0 {
				t.Fatalf("short-circuit must not report actions: %v", reply.ActionsTaken)
			}
			if adapter.calls != 0 {
				t.Fatalf("short-circuit must not dispatch adapters")
			}
			if synthLLM.calls != 0 {
				t.Fatalf("short-circuit must not call the synthesizer")
			}
		})
	}
}

func TestRunEmptyDomainsShortCircuits(t *testing.T) {
	classifierLLM := &stubLLM{response: `{"domains": [], "label": "chitchat", "task": "chitchat"}`}
	synthLLM := &stubLLM{response: "nope"}
	o := newTestOrchestrator(classifierLLM, synthLLM, map[string]DomainAdapter{})

	reply := o.Run(context.Background(), Request{Query: "tell me a joke"})
	if reply.Response == "" {
		t.Fatalf("expected a fallback reply")
	}
	if len(reply.ActionsTaken) != 0 || synthLLM.calls != 0 {
		t.Fatalf("no dispatch expected: %+v", reply)
	}
}

func TestRunSingleDomainSuccess(t *testing.T) {
	classifierLLM := &stubLLM{response: `{"domains": ["calendar"], "label": "create_event", "task": "create_event"}`}
	synthLLM := &stubLLM{response: "Your meeting with Alex is booked for 3pm tomorrow."}
	adapter := &stubAdapter{result: DomainResult{Domain: DomainCalendar, Success: true, Data: "event e1 created"}}

	o := newTestOrchestrator(classifierLLM, synthLLM, map[string]DomainAdapter{DomainCalendar: adapter})
	reply := o.Run(context.Background(), Request{Query: "schedule a meeting with Alex tomorrow at 3pm", Owner: "alice"})

	if reply.Response != "Your meeting with Alex is booked for 3pm tomorrow." {
		t.Fatalf("unexpected response: %q", reply.Response)
	}
	if len(reply.ActionsTaken) != 1 || reply.ActionsTaken[0] != "calendar: operation completed" {
		t.Fatalf("unexpected actions: %v", reply.ActionsTaken)
	}
	if adapter.calls != 1 {
		t.Fatalf("expected exactly one adapter dispatch, got %d", adapter.calls)
	}
	if !strings.Contains(adapter.lastQuery, "create_event tool") {
		t.Fatalf("contextual query missing action directive:\n%s", adapter.lastQuery)
	}
}

func TestRunPartialFailureStillSynthesizes(t *testing.T) {
	classifierLLM := &stubLLM{response: `{"domains": ["mail", "calendar"], "label": "general_query", "task": "process_query"}`}
	synthLLM := &stubLLM{response: "I found your emails, but the calendar lookup failed."}
	mail := &stubAdapter{result: DomainResult{Domain: DomainMail, Success: true, Data: "3 emails"}}
	cal := &stubAdapter{result: DomainResult{Domain: DomainCalendar, Success: false, Error: "backend down"}}

	o := newTestOrchestrator(classifierLLM, synthLLM, map[string]DomainAdapter{DomainMail: mail, DomainCalendar: cal})
	reply := o.Run(context.Background(), Request{Query: "what's on today"})

	if reply.Response == "" {
		t.Fatalf("expected a synthesized response despite partial failure")
	}
	if len(reply.ActionsTaken) != 1 || reply.ActionsTaken[0] != "mail: operation completed" {
		t.Fatalf("actions must name only the succeeding domain: %v", reply.ActionsTaken)
	}
}

func TestRunSynthesisFailureBecomesApology(t *testing.T) {
	classifierLLM := &stubLLM{response: `{"domains": ["mail"], "label": "general_query", "task": "process_query"}`}
	synthLLM := &stubLLM{err: errSentinel("model down")}
	mail := &stubAdapter{result: DomainResult{Domain: DomainMail, Success: true, Data: "ok"}}

	o := newTestOrchestrator(classifierLLM, synthLLM, map[string]DomainAdapter{DomainMail: mail})
	reply := o.Run(context.Background(), Request{Query: "check my inbox"})

	if !strings.Contains(reply.Response, "I apologize") || !strings.Contains(reply.Response, "model down") {
		t.Fatalf("expected apology carrying the error, got %q", reply.Response)
	}
	if len(reply.ActionsTaken) != 0 {
		t.Fatalf("apology reply must carry no actions: %v", reply.ActionsTaken)
	}
	if reply.Intent != nil {
		t.Fatalf("apology reply must carry no intent")
	}
}

type errSentinel string

func (e errSentinel) Error() string { return string(e) }
