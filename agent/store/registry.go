package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	contractx "github.com/zapflow/zapflow/agent/contract"
)

// ConfigStore loads tenant configuration from the admin registry. Loaded
// fresh per request; the management surface may change it between turns.
type ConfigStore interface {
	Load(ctx context.Context, tenantKey string) (*TenantConfig, error)
}

// Registry is the admin-database-backed ConfigStore.
type Registry struct {
	db bun.IDB
}

var _ ConfigStore = (*Registry)(nil)

func NewRegistry(db bun.IDB) *Registry {
	return &Registry{db: db}
}

func (r *Registry) Load(ctx context.Context, tenantKey string) (*TenantConfig, error) {
	key := strings.TrimSpace(tenantKey)
	if key == "" {
		return nil, fmt.Errorf("%w: empty tenant key", contractx.ErrConfigNotFound)
	}

	cfg := new(TenantConfig)
	err := r.db.NewSelect().
		Model(cfg).
		Where("client_id = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: tenant=%s", contractx.ErrConfigNotFound, key)
		}
		return nil, fmt.Errorf("%w: load config for tenant=%s: %v", contractx.ErrStoreIO, key, err)
	}
	return cfg, nil
}
