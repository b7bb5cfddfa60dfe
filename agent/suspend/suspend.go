// Package suspend persists the paused state of a turn that is waiting for an
// external capability result. A suspension is an explicit serializable value
// (the transcript plus the pending call) keyed by an opaque token, so a
// resume can land on any process instance.
package suspend

import (
	"context"

	contractx "github.com/zapflow/zapflow/agent/contract"
)

// Record is everything needed to resume a suspended conversation.
type Record struct {
	TenantKey  string                  `json:"client_id"`
	LeadPhone  string                  `json:"lead_phone"`
	Messages   []contractx.ChatMessage `json:"messages"`
	ToolCallID string                  `json:"tool_call_id"`
	ToolName   string                  `json:"tool_name"`
}

// Owner reports whether a resume request may consume this record.
func (r *Record) Owner(tenantKey, leadPhone string) bool {
	return r != nil && r.TenantKey == tenantKey && r.LeadPhone == leadPhone
}

// Store is the process-shared token-to-record map. Get after Put for the
// same token must be linearizable; unrelated tokens are independent. A
// missing or expired token yields contract.ErrContextNotFound.
type Store interface {
	Put(ctx context.Context, token string, rec Record) error
	Get(ctx context.Context, token string) (*Record, error)
	Delete(ctx context.Context, token string) error
}
