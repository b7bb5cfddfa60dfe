package contract

import "context"

// Completer performs one completion-service round trip. Implementations wrap
// service failures in ErrCompletionService so callers can apply their own
// retry policy.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// KnowledgeSearcher returns ranked text snippets for a query against one
// tenant's knowledge base.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]string, error)
}
