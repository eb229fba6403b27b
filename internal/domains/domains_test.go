package domains

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

type scriptedLLM struct {
	responses []string
	calls     int
	prompts   []string
}

func (s *scriptedLLM) Complete(ctx context.Context, systemPrompt, userPrompt, model string, temperature float64) (string, error) {
	s.prompts = append(s.prompts, userPrompt)
	if s.calls >= len(s.responses) {
		return "", fmt.Errorf("no scripted response for call %d", s.calls)
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

func echoTool(name string, calls *[]map[string]interface{}, result string) Tool {
	return Tool{
		Name:        name,
		Description: "test tool",
		Parameters:  `{"x": "<value>"}`,
		Run: func(ctx context.Context, owner string, params map[string]interface{}) (string, error) {
			*calls = append(*calls, params)
			return result, nil
		},
	}
}

func TestRunnerExecutesToolThenFinishes(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"tool": "search_emails", "parameters": {"query": "flight"}}`,
		`{"tool": "finish", "answer": "Found the flight confirmation, message id m1."}`,
	}}
	var calls []map[string]interface{}
	r := NewRunner(llm, "gpt-4o", "mail", 5)

	answer, err := r.Run(context.Background(), "alice", "find my flight email", []Tool{echoTool("search_emails", &calls, `[{"id":"m1"}]`)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "Found the flight confirmation, message id m1." {
		t.Fatalf("unexpected answer: %q", answer)
	}
	if len(calls) != 1 || calls[0]["query"] != "flight" {
		t.Fatalf("tool not called with parsed parameters: %v", calls)
	}
	// the observation must be fed back into the next prompt
	if !strings.Contains(llm.prompts[1], `[{"id":"m1"}]`) {
		t.Fatalf("tool result missing from follow-up prompt:\n%s", llm.prompts[1])
	}
}

func TestRunnerToolErrorBecomesObservation(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"tool": "send_email", "parameters": {}}`,
		`{"tool": "finish", "answer": "Could not send, the recipient is missing."}`,
	}}
	failing := Tool{
		Name: "send_email", Description: "t", Parameters: "{}",
		Run: func(ctx context.Context, owner string, params map[string]interface{}) (string, error) {
			return "", fmt.Errorf("parameter \"to\" is required")
		},
	}
	r := NewRunner(llm, "gpt-4o", "mail", 5)

	answer, err := r.Run(context.Background(), "alice", "send it", []Tool{failing})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer == "" {
		t.Fatalf("expected an answer after observed error")
	}
	if !strings.Contains(llm.prompts[1], "ERROR: parameter") {
		t.Fatalf("tool error not surfaced to the model:\n%s", llm.prompts[1])
	}
}

func TestRunnerUnknownToolIsCorrected(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"tool": "teleport", "parameters": {}}`,
		`{"tool": "finish", "answer": "done"}`,
	}}
	r := NewRunner(llm, "gpt-4o", "files", 5)

	answer, err := r.Run(context.Background(), "alice", "q", []Tool{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "done" {
		t.Fatalf("unexpected answer: %q", answer)
	}
	if !strings.Contains(llm.prompts[1], `unknown tool "teleport"`) {
		t.Fatalf("missing correction in prompt:\n%s", llm.prompts[1])
	}
}

func TestRunnerGivesUpAfterRepeatedGarbage(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"not json", "still not json"}}
	r := NewRunner(llm, "gpt-4o", "mail", 5)

	_, err := r.Run(context.Background(), "alice", "q", []Tool{})
	if err == nil {
		t.Fatalf("expected error for unusable output")
	}
}

func TestRunnerBoundsRounds(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"tool": "noop", "parameters": {}}`,
		`{"tool": "noop", "parameters": {}}`,
	}}
	var calls []map[string]interface{}
	r := NewRunner(llm, "gpt-4o", "mail", 2)

	_, err := r.Run(context.Background(), "alice", "q", []Tool{echoTool("noop", &calls, "ok")})
	if err == nil || !strings.Contains(err.Error(), "no final answer") {
		t.Fatalf("expected round limit error, got %v", err)
	}
}

func TestParamHelpers(t *testing.T) {
	params := map[string]interface{}{"limit": float64(7), "query": "x"}
	if got := IntParam(params, "limit", 3); got != 7 {
		t.Fatalf("IntParam: got %d", got)
	}
	if got := IntParam(params, "missing", 3); got != 3 {
		t.Fatalf("IntParam fallback: got %d", got)
	}
	if _, err := RequireString(params, "absent"); err == nil {
		t.Fatalf("RequireString must fail for missing key")
	}
}
