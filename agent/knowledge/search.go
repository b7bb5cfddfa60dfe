package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	contractx "github.com/zapflow/zapflow/agent/contract"
)

const defaultTopK = 3

// Item is one knowledge-base row. Rows live in the tenant's bound store and
// are written by the management surface, never by this service.
type Item struct {
	bun.BaseModel `bun:"table:knowledge_base,alias:kb"`

	ID        int64  `bun:"id,pk,autoincrement"`
	TenantKey string `bun:"client_id"`
	Title     string `bun:"title"`
	Content   string `bun:"content"`
}

// Searcher runs a plain ILIKE search over title and content, scoped to one
// tenant. Embedding-based retrieval is the management surface's concern; the
// engine only needs ranked snippets.
type Searcher struct {
	db        bun.IDB
	tenantKey string
}

var _ contractx.KnowledgeSearcher = (*Searcher)(nil)

func NewSearcher(db bun.IDB, tenantKey string) *Searcher {
	return &Searcher{db: db, tenantKey: tenantKey}
}

func (s *Searcher) Search(ctx context.Context, query string, topK int) ([]string, error) {
	if topK <= 0 {
		topK = defaultTopK
	}
	pattern := "%" + strings.TrimSpace(query) + "%"

	var items []Item
	err := s.db.NewSelect().
		Model(&items).
		Where("client_id = ?", s.tenantKey).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				WhereOr("title ILIKE ?", pattern).
				WhereOr("content ILIKE ?", pattern)
		}).
		Limit(topK).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: knowledge search: %v", contractx.ErrStoreIO, err)
	}

	snippets := make([]string, 0, len(items))
	for _, item := range items {
		snippets = append(snippets, fmt.Sprintf("Título: %s\nConteúdo: %s", item.Title, item.Content))
	}
	return snippets, nil
}
