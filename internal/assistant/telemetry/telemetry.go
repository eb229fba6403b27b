package telemetry

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mohammad-safakhou/workmate/config"
)

// Telemetry provides request monitoring and LLM cost tracking for the
// assistant pipeline.
type Telemetry struct {
	config      config.TelemetryConfig
	logger      *log.Logger
	metrics     *Metrics
	costTracker *CostTracker
}

// Metrics holds various performance metrics
type Metrics struct {
	mu sync.RWMutex

	// Request metrics
	TotalRequests         int64
	SuccessfulRequests    int64
	FailedRequests        int64
	ShortCircuited        int64
	AverageProcessingTime time.Duration

	// Domain metrics
	DomainDispatches   map[string]int64
	DomainSuccessRates map[string]float64

	// Cascade metrics
	AuthoritativeHits int64
	SemanticFallbacks int64

	// LLM metrics
	LLMRequests   map[string]int64
	LLMTokensUsed map[string]int64
}

// CostTracker tracks costs across models and operations
type CostTracker struct {
	mu sync.RWMutex

	OperationCosts map[string]float64
	ModelCosts     map[string]float64
	TotalCost      float64
	TotalTokens    int64
}

// RequestEvent represents a single orchestrated request
type RequestEvent struct {
	ID             string
	Query          string
	StartTime      time.Time
	EndTime        time.Time
	ProcessingTime time.Duration
	Success        bool
	ShortCircuit   bool
	Error          string
	DomainsUsed    []string
	ActionsTaken   int
}

// DomainEvent represents one adapter dispatch
type DomainEvent struct {
	Domain   string
	Duration time.Duration
	Success  bool
}

// LLMEvent represents one chat or embedding call
type LLMEvent struct {
	Model     string
	Operation string
	Tokens    int64
	Cost      float64
}

// NewTelemetry creates a new telemetry instance
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			DomainDispatches:   make(map[string]int64),
			DomainSuccessRates: make(map[string]float64),
			LLMRequests:        make(map[string]int64),
			LLMTokensUsed:      make(map[string]int64),
		},
		costTracker: &CostTracker{
			OperationCosts: make(map[string]float64),
			ModelCosts:     make(map[string]float64),
		},
	}

	if cfg.Enabled && cfg.PeriodicLogs {
		go t.startPeriodicReporting()
	}

	return t
}

// RecordRequestEvent records a complete orchestrated request
func (t *Telemetry) RecordRequestEvent(ctx context.Context, event RequestEvent) {
	if !t.config.Enabled {
		return
	}

	t.metrics.mu.Lock()
	defer t.metrics.mu.Unlock()

	t.metrics.TotalRequests++
	if event.Success {
		t.metrics.SuccessfulRequests++
	} else {
		t.metrics.FailedRequests++
	}
	if event.ShortCircuit {
		t.metrics.ShortCircuited++
	}

	if t.metrics.TotalRequests == 1 {
		t.metrics.AverageProcessingTime = event.ProcessingTime
	} else {
		total := t.metrics.AverageProcessingTime * time.Duration(t.metrics.TotalRequests-1)
		t.metrics.AverageProcessingTime = (total + event.ProcessingTime) / time.Duration(t.metrics.TotalRequests)
	}

	t.logger.Printf("Request Event: ID=%s, Success=%t, ShortCircuit=%t, Duration=%v, Domains=%v, Actions=%d",
		event.ID, event.Success, event.ShortCircuit, event.ProcessingTime, event.DomainsUsed, event.ActionsTaken)
}

// RecordDomainEvent records one adapter dispatch outcome
func (t *Telemetry) RecordDomainEvent(ctx context.Context, event DomainEvent) {
	if !t.config.Enabled {
		return
	}

	t.metrics.mu.Lock()
	defer t.metrics.mu.Unlock()

	t.metrics.DomainDispatches[event.Domain]++
	success := t.metrics.DomainSuccessRates[event.Domain] * float64(t.metrics.DomainDispatches[event.Domain]-1)
	if event.Success {
		success += 1.0
	}
	t.metrics.DomainSuccessRates[event.Domain] = success / float64(t.metrics.DomainDispatches[event.Domain])
}

// RecordCascadeTier records which cascade tier served a search
func (t *Telemetry) RecordCascadeTier(semantic bool) {
	if !t.config.Enabled {
		return
	}
	t.metrics.mu.Lock()
	defer t.metrics.mu.Unlock()
	if semantic {
		t.metrics.SemanticFallbacks++
	} else {
		t.metrics.AuthoritativeHits++
	}
}

// RecordLLMEvent records one model call with optional cost tracking
func (t *Telemetry) RecordLLMEvent(ctx context.Context, event LLMEvent) {
	if !t.config.Enabled {
		return
	}

	t.metrics.mu.Lock()
	t.metrics.LLMRequests[event.Model]++
	t.metrics.LLMTokensUsed[event.Model] += event.Tokens
	t.metrics.mu.Unlock()

	if !t.config.CostTracking {
		return
	}
	t.costTracker.mu.Lock()
	defer t.costTracker.mu.Unlock()
	t.costTracker.OperationCosts[event.Operation] += event.Cost
	t.costTracker.ModelCosts[event.Model] += event.Cost
	t.costTracker.TotalCost += event.Cost
	t.costTracker.TotalTokens += event.Tokens
}

// Snapshot returns a copy of the current metrics for reporting endpoints.
func (t *Telemetry) Snapshot() map[string]interface{} {
	t.metrics.mu.RLock()
	defer t.metrics.mu.RUnlock()
	t.costTracker.mu.RLock()
	defer t.costTracker.mu.RUnlock()

	domains := make(map[string]int64, len(t.metrics.DomainDispatches))
	for k, v := range t.metrics.DomainDispatches {
		domains[k] = v
	}

	return map[string]interface{}{
		"total_requests":          t.metrics.TotalRequests,
		"successful_requests":     t.metrics.SuccessfulRequests,
		"failed_requests":         t.metrics.FailedRequests,
		"short_circuited":         t.metrics.ShortCircuited,
		"average_processing_time": t.metrics.AverageProcessingTime.String(),
		"domain_dispatches":       domains,
		"authoritative_hits":      t.metrics.AuthoritativeHits,
		"semantic_fallbacks":      t.metrics.SemanticFallbacks,
		"total_cost":              t.costTracker.TotalCost,
		"total_tokens":            t.costTracker.TotalTokens,
	}
}

func (t *Telemetry) startPeriodicReporting() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		snap := t.Snapshot()
		t.logger.Printf("Metrics: requests=%v success=%v failed=%v fallbacks=%v cost=$%.4f",
			snap["total_requests"], snap["successful_requests"], snap["failed_requests"],
			snap["semantic_fallbacks"], snap["total_cost"])
	}
}
