package assistant

import (
	"context"
	"fmt"
	"log"
)

// Executor dispatches the contextual query to each domain named in the
// intent, sequentially and independently. One result per domain, in intent
// order; one domain's failure never aborts another.
type Executor struct {
	adapters map[string]DomainAdapter
	logger   *log.Logger
}

// NewExecutor creates an executor over the registered domain adapters.
func NewExecutor(adapters map[string]DomainAdapter) *Executor {
	return &Executor{
		adapters: adapters,
		logger:   log.New(log.Writer(), "[EXECUTOR] ", log.LstdFlags),
	}
}

// Execute runs the contextual query against every domain in the intent.
func (e *Executor) Execute(ctx context.Context, req Request, intent *StructuredIntent) []DomainResult {
	contextualQuery := BuildContextualQuery(req.Query, intent)

	e.logger.Printf("executing task %q across %d domains", intent.Task, len(intent.Domains))

	results := make([]DomainResult, 0, len(intent.Domains))
	for _, domain := range intent.Domains {
		adapter, ok := e.adapters[domain]
		if !ok {
			results = append(results, DomainResult{
				Domain:  domain,
				Success: false,
				Error:   fmt.Sprintf("unknown domain: %s", domain),
			})
			continue
		}
		results = append(results, e.dispatch(ctx, adapter, domain, req.Owner, contextualQuery))
	}
	return results
}

// dispatch isolates a single adapter call, converting panics into failures.
func (e *Executor) dispatch(ctx context.Context, adapter DomainAdapter, domain, owner, query string) (result DomainResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Printf("adapter %s panicked: %v", domain, r)
			result = DomainResult{Domain: domain, Success: false, Error: fmt.Sprintf("adapter panic: %v", r)}
		}
	}()
	return adapter.Process(ctx, owner, query)
}
