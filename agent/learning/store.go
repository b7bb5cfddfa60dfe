package learning

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	contractx "github.com/zapflow/zapflow/agent/contract"
)

// Learning is one recorded behavioral correction: what the participant said,
// what the right interpretation turned out to be. Corrections always live in
// the admin store, regardless of tenant store isolation.
type Learning struct {
	bun.BaseModel `bun:"table:agent_learnings,alias:al"`

	ID              int64           `bun:"id,pk,autoincrement"`
	TenantKey       string          `bun:"client_id"`
	LeadPhone       string          `bun:"lead_phone,nullzero"`
	InteractionType string          `bun:"interaction_type"`
	OriginalInput   string          `bun:"original_input"`
	CorrectedOutput string          `bun:"corrected_output,nullzero"`
	Context         json.RawMessage `bun:"context,type:jsonb,nullzero"`
	Frequency       int             `bun:"frequency"`
	LastSeen        time.Time       `bun:"last_seen,nullzero,default:current_timestamp"`
}

// Store reads and records corrections for context building and for the
// save/consult native capabilities.
type Store interface {
	Recent(ctx context.Context, tenantKey, leadPhone string, limit int) ([]Learning, error)
	Save(ctx context.Context, rec Learning) error
}

type PGStore struct {
	db bun.IDB
}

var _ Store = (*PGStore)(nil)

func NewStore(db bun.IDB) *PGStore {
	return &PGStore{db: db}
}

// Recent returns the latest corrections for the tenant, preferring the
// lead-scoped ones but including tenant-wide patterns (null lead_phone).
func (s *PGStore) Recent(ctx context.Context, tenantKey, leadPhone string, limit int) ([]Learning, error) {
	if limit <= 0 {
		limit = 5
	}

	var recs []Learning
	err := s.db.NewSelect().
		Model(&recs).
		Where("client_id = ?", tenantKey).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				WhereOr("lead_phone = ?", leadPhone).
				WhereOr("lead_phone IS NULL")
		}).
		Order("last_seen DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: load learnings: %v", contractx.ErrStoreIO, err)
	}
	return recs, nil
}

func (s *PGStore) Save(ctx context.Context, rec Learning) error {
	if rec.Frequency <= 0 {
		rec.Frequency = 1
	}
	if rec.LastSeen.IsZero() {
		rec.LastSeen = time.Now().UTC()
	}
	if _, err := s.db.NewInsert().Model(&rec).Exec(ctx); err != nil {
		return fmt.Errorf("%w: save learning: %v", contractx.ErrStoreIO, err)
	}
	return nil
}
