package assistant

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mohammad-safakhou/workmate/internal/assistant/telemetry"
)

// conversationalReplies are returned without dispatching any domain work.
var conversationalReplies = map[string]string{
	"greeting":            "Hello! How can I help you with your mail, calendar, or files today?",
	"casual_conversation": "I'm doing well, thanks for asking! Is there anything I can help you with?",
	"thanks":              "You're welcome! Let me know if there's anything else I can do for you.",
}

const genericConversationalReply = "I'm here to help with your mail, calendar, and files. What would you like to do?"

func apologyReply(err string) string {
	return fmt.Sprintf("I apologize, but I encountered an error while processing your request: %s", err)
}

// Orchestrator coordinates classification, domain execution and response
// synthesis for a single user request.
type Orchestrator struct {
	classifier  *Classifier
	executor    *Executor
	synthesizer *Synthesizer
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
}

// NewOrchestrator wires the pipeline stages together.
func NewOrchestrator(classifier *Classifier, executor *Executor, synthesizer *Synthesizer, tel *telemetry.Telemetry) *Orchestrator {
	return &Orchestrator{
		classifier:  classifier,
		executor:    executor,
		synthesizer: synthesizer,
		telemetry:   tel,
		logger:      log.New(log.Writer(), "[ORCH] ", log.LstdFlags),
	}
}

// Run processes one user request end to end. It never returns an error:
// any failure that escapes the pipeline is converted into an apology reply.
func (o *Orchestrator) Run(ctx context.Context, req Request) (reply Reply) {
	tracer := otel.Tracer("workmate/orchestrator")
	ctx, span := tracer.Start(ctx, "orchestrator.run")
	defer span.End()

	start := time.Now()
	requestID := uuid.New().String()
	event := telemetry.RequestEvent{
		ID:        requestID,
		Query:     req.Query,
		StartTime: start,
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Printf("panic while processing request %s: %v", requestID, r)
			reply = Reply{Response: apologyReply(fmt.Sprintf("%v", r)), ActionsTaken: []string{}}
			event.Success = false
			event.Error = fmt.Sprintf("panic: %v", r)
		}
		event.EndTime = time.Now()
		event.ProcessingTime = event.EndTime.Sub(start)
		event.ActionsTaken = len(reply.ActionsTaken)
		o.telemetry.RecordRequestEvent(ctx, event)
	}()

	o.logger.Printf("processing request %s: %q", requestID, truncate(req.Query, 120))

	ctx, classifySpan := tracer.Start(ctx, "orchestrator.classify")
	intent := o.classifier.Classify(ctx, req.Query, req.ConversationID)
	classifySpan.SetAttributes(
		attribute.String("intent.label", intent.Label),
		attribute.StringSlice("intent.domains", intent.Domains),
	)
	classifySpan.End()

	event.DomainsUsed = intent.Domains

	if canned, ok := o.shortCircuit(intent); ok {
		o.logger.Printf("request %s short-circuited with label %q", requestID, intent.Label)
		event.Success = true
		event.ShortCircuit = true
		return Reply{Response: canned, ActionsTaken: []string{}, Intent: intent}
	}

	ctx, execSpan := tracer.Start(ctx, "orchestrator.execute")
	results := o.executor.Execute(ctx, req, intent)
	execSpan.SetAttributes(attribute.Int("results.count", len(results)))
	execSpan.End()

	for _, res := range results {
		o.telemetry.RecordDomainEvent(ctx, telemetry.DomainEvent{
			Domain:  res.Domain,
			Success: res.Success,
		})
	}

	ctx, synthSpan := tracer.Start(ctx, "orchestrator.synthesize")
	response, err := o.synthesizer.Synthesize(ctx, req, intent, results)
	synthSpan.End()
	if err != nil {
		o.logger.Printf("synthesis failed for request %s: %v", requestID, err)
		event.Success = false
		event.Error = err.Error()
		return Reply{Response: apologyReply(err.Error()), ActionsTaken: []string{}}
	}

	actions := make([]string, 0, len(results))
	for _, res := range results {
		if res.Success {
			actions = append(actions, fmt.Sprintf("%s: operation completed", res.Domain))
		}
	}

	event.Success = true
	o.logger.Printf("request %s completed in %v with %d actions", requestID, time.Since(start), len(actions))
	return Reply{Response: response, ActionsTaken: actions, Intent: intent}
}

// shortCircuit reports whether the intent warrants a canned conversational
// reply instead of domain dispatch.
func (o *Orchestrator) shortCircuit(intent *StructuredIntent) (string, bool) {
	if canned, ok := conversationalReplies[intent.Label]; ok {
		return canned, true
	}
	if len(intent.Domains) == 0 {
		return genericConversationalReply, true
	}
	return "", false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}
