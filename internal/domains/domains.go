// Package domains holds the LLM tool-selection loop shared by the mail,
// calendar and files adapters. Each adapter registers its tools and hands
// the contextual query to a Runner, which drives the model through
// select-tool / observe-result rounds until it produces a final answer.
package domains

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/workmate/internal/assistant"
	"github.com/mohammad-safakhou/workmate/internal/helpers"
)

// Tool is one callable operation an adapter exposes to the model.
type Tool struct {
	Name        string
	Description string
	Parameters  string
	Run         func(ctx context.Context, owner string, params map[string]interface{}) (string, error)
}

// Runner executes the select/observe loop for one domain.
type Runner struct {
	llm       assistant.ChatProvider
	model     string
	maxRounds int
	logger    *log.Logger
}

// NewRunner builds a Runner. maxRounds bounds how many tool calls the
// model may chain before the loop gives up.
func NewRunner(llm assistant.ChatProvider, model, domain string, maxRounds int) *Runner {
	if maxRounds <= 0 {
		maxRounds = 5
	}
	return &Runner{
		llm:       llm,
		model:     model,
		maxRounds: maxRounds,
		logger:    log.New(log.Writer(), "["+strings.ToUpper(domain)+"] ", log.LstdFlags),
	}
}

const runnerSystemPrompt = `You are a task execution agent. You complete the user's request by calling tools.
Respond with valid JSON only, no prose outside the JSON.`

type toolCall struct {
	Tool       string                 `json:"tool"`
	Parameters map[string]interface{} `json:"parameters"`
	Answer     string                 `json:"answer"`
}

// Run drives the tool loop for one contextual query and returns the final
// answer text. It errors when the model never reaches a final answer or
// produces unusable output twice in a row.
func (r *Runner) Run(ctx context.Context, owner, contextualQuery string, tools []Tool) (string, error) {
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Name] = t
	}

	transcript := []string{"USER REQUEST:\n" + contextualQuery}
	parseFailures := 0

	for round := 0; round < r.maxRounds; round++ {
		prompt := r.buildPrompt(tools, transcript)
		response, err := r.llm.Complete(ctx, runnerSystemPrompt, prompt, r.model, 0.1)
		if err != nil {
			return "", fmt.Errorf("tool selection round %d: %w", round+1, err)
		}

		call, err := parseToolCall(response)
		if err != nil {
			parseFailures++
			if parseFailures >= 2 {
				return "", fmt.Errorf("unusable model output: %w", err)
			}
			transcript = append(transcript, "SYSTEM: previous response was not valid JSON, respond with the documented JSON shape only")
			continue
		}
		parseFailures = 0

		if call.Tool == "finish" || call.Tool == "" {
			if call.Answer == "" {
				return "", fmt.Errorf("model finished without an answer")
			}
			return call.Answer, nil
		}

		tool, ok := byName[call.Tool]
		if !ok {
			transcript = append(transcript, fmt.Sprintf("SYSTEM: unknown tool %q, available tools: %s", call.Tool, toolNames(tools)))
			continue
		}

		r.logger.Printf("calling tool %s", tool.Name)
		observation, err := tool.Run(ctx, owner, call.Parameters)
		if err != nil {
			observation = "ERROR: " + err.Error()
		}
		params, _ := json.Marshal(call.Parameters)
		transcript = append(transcript, fmt.Sprintf("CALLED %s with %s\nRESULT:\n%s", tool.Name, params, observation))
	}

	return "", fmt.Errorf("no final answer after %d rounds", r.maxRounds)
}

func (r *Runner) buildPrompt(tools []Tool, transcript []string) string {
	var b strings.Builder
	b.WriteString("Available tools:\n")
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s: %s. Parameters: %s\n", t.Name, t.Description, t.Parameters)
	}
	b.WriteString(`- finish: return the final answer to the user. Parameters: none, set "answer" instead.

Respond with ONE JSON object:
{"tool": "<tool name>", "parameters": {...}}
or, when the request is fully handled:
{"tool": "finish", "answer": "<final answer with concrete identifiers and confirmations>"}

`)
	b.WriteString(strings.Join(transcript, "\n\n"))
	return b.String()
}

func parseToolCall(response string) (toolCall, error) {
	jsonStr := helpers.ExtractJSONObject(response)
	if jsonStr == "" {
		return toolCall{}, fmt.Errorf("no JSON object in response")
	}
	var call toolCall
	if err := json.Unmarshal([]byte(jsonStr), &call); err != nil {
		return toolCall{}, fmt.Errorf("unmarshal tool call: %w", err)
	}
	if call.Parameters == nil {
		call.Parameters = map[string]interface{}{}
	}
	return call, nil
}

func toolNames(tools []Tool) string {
	names := make([]string, 0, len(tools)+1)
	for _, t := range tools {
		names = append(names, t.Name)
	}
	names = append(names, "finish")
	return strings.Join(names, ", ")
}

// StringParam reads an optional string parameter from a tool call.
func StringParam(params map[string]interface{}, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

// RequireString reads a mandatory string parameter from a tool call.
func RequireString(params map[string]interface{}, key string) (string, error) {
	v := StringParam(params, key)
	if v == "" {
		return "", fmt.Errorf("parameter %q is required", key)
	}
	return v, nil
}

// IntParam reads an optional integer parameter, tolerating JSON numbers.
func IntParam(params map[string]interface{}, key string, fallback int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}
