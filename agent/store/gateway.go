package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/zapflow/zapflow/agent/contract"
	"github.com/zapflow/zapflow/agent/knowledge"
)

// Gateway is the tenant-scoped data surface the orchestrator drives. Every
// implementation is bound to exactly one tenant's physical store; keeping
// the binding per request is what guarantees tenant isolation.
type Gateway interface {
	GetOrCreateLead(ctx context.Context, phone, name string) (*Lead, error)
	SaveMessage(ctx context.Context, leadID int64, role, content string, tokens int) error
	History(ctx context.Context, leadID int64, limit int) ([]Message, error)
	LogUsage(ctx context.Context, rec UsageRecord) error
}

// Binding is a bound gateway plus the tenant's knowledge searcher, both
// pointed at the same physical store. The caller that obtained the binding
// must Close it when the request ends; a binding over the shared admin
// handle closes as a no-op.
type Binding interface {
	Gateway
	Searcher() contractx.KnowledgeSearcher
	Close() error
}

// Binder constructs a fresh Binding for a tenant config. A new value is
// built per request; nothing is shared or cached across turns.
type Binder interface {
	Bind(ctx context.Context, cfg *TenantConfig) (Binding, error)
}

// PGBinder binds tenants to Postgres stores: the tenant's isolated database
// when the config carries a DSN, the admin database otherwise.
type PGBinder struct {
	admin *bun.DB
}

var _ Binder = (*PGBinder)(nil)

func NewBinder(admin *bun.DB) *PGBinder {
	return &PGBinder{admin: admin}
}

func (b *PGBinder) Bind(ctx context.Context, cfg *TenantConfig) (Binding, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil tenant config", contractx.ErrStoreBinding)
	}

	if cfg.StoreDSN == "" {
		return &PGGateway{db: b.admin, tenantKey: cfg.TenantKey}, nil
	}

	opts := []pgdriver.Option{pgdriver.WithDSN(cfg.StoreDSN)}
	if cfg.StorePassword != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.StorePassword))
	}
	db := bun.NewDB(sql.OpenDB(pgdriver.NewConnector(opts...)), pgdialect.New())
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: tenant=%s: %v", contractx.ErrStoreBinding, cfg.TenantKey, err)
	}

	return &PGGateway{db: db, tenantKey: cfg.TenantKey, owned: db}, nil
}

// PGGateway routes all lead, message and usage operations to one tenant's
// bound Postgres store.
type PGGateway struct {
	db        bun.IDB
	tenantKey string

	// owned is set only when the binding opened its own connection pool
	// against an isolated store; the shared admin handle is never closed here.
	owned *bun.DB
}

var _ Binding = (*PGGateway)(nil)

func (g *PGGateway) GetOrCreateLead(ctx context.Context, phone, name string) (*Lead, error) {
	clean := NormalizePhone(phone)

	lead := new(Lead)
	err := g.db.NewSelect().
		Model(lead).
		Where("client_id = ?", g.tenantKey).
		Where("phone = ?", clean).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return lead, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: lookup lead: %v", contractx.ErrStoreIO, err)
	}

	lead = &Lead{
		TenantKey: g.tenantKey,
		Phone:     clean,
		Name:      name,
		Status:    "active",
	}
	if _, err := g.db.NewInsert().Model(lead).Returning("*").Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: create lead: %v", contractx.ErrStoreIO, err)
	}
	return lead, nil
}

func (g *PGGateway) SaveMessage(ctx context.Context, leadID int64, role, content string, tokens int) error {
	msg := &Message{
		TenantKey:  g.tenantKey,
		LeadID:     leadID,
		Role:       role,
		Content:    content,
		TokensUsed: tokens,
	}
	if _, err := g.db.NewInsert().Model(msg).Exec(ctx); err != nil {
		return fmt.Errorf("%w: save message: %v", contractx.ErrStoreIO, err)
	}
	return nil
}

// History fetches the most recent limit messages and returns them in
// chronological order.
func (g *PGGateway) History(ctx context.Context, leadID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}

	var msgs []Message
	err := g.db.NewSelect().
		Model(&msgs).
		Where("client_id = ?", g.tenantKey).
		Where("lead_id = ?", leadID).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: load history: %v", contractx.ErrStoreIO, err)
	}

	reverseChronological(msgs)
	return msgs, nil
}

// reverseChronological flips a latest-first result set into the chronological
// order the completion driver expects.
func reverseChronological(msgs []Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

func (g *PGGateway) LogUsage(ctx context.Context, rec UsageRecord) error {
	rec.TenantKey = g.tenantKey
	if _, err := g.db.NewInsert().Model(&rec).Exec(ctx); err != nil {
		return fmt.Errorf("%w: log usage: %v", contractx.ErrStoreIO, err)
	}
	return nil
}

func (g *PGGateway) Searcher() contractx.KnowledgeSearcher {
	return knowledge.NewSearcher(g.db, g.tenantKey)
}

// Close releases the isolated-store connection pool, if this binding opened
// one. Bindings over the admin handle have nothing to release.
func (g *PGGateway) Close() error {
	if g.owned == nil {
		return nil
	}
	return g.owned.Close()
}
