package contract

import "errors"

// Pre-turn errors are surfaced immediately as failed outcomes and are never
// retried. Errors raised while a turn is running (completion service, store
// IO inside the retry loop) go through the retry policy and end in fallback.
var (
	ErrConfigNotFound    = errors.New("tenant configuration not found")
	ErrTenantInactive    = errors.New("tenant is inactive")
	ErrStoreBinding      = errors.New("tenant store binding failed")
	ErrMissingCredential = errors.New("completion credential not configured")
	ErrCompletionService = errors.New("completion service failed")
	ErrStoreIO           = errors.New("tenant store operation failed")
	ErrContextNotFound   = errors.New("suspended context not found")
	ErrOwnershipMismatch = errors.New("suspended context ownership mismatch")
)
