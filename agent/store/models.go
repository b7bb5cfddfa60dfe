package store

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// TenantConfig is one tenant's agent configuration, loaded fresh from the
// admin registry on every request. Only the management surface writes it.
type TenantConfig struct {
	bun.BaseModel `bun:"table:agent_configs,alias:ac"`

	ID           int64  `bun:"id,pk,autoincrement"`
	TenantKey    string `bun:"client_id"`
	SystemPrompt string `bun:"system_prompt"`
	Model        string `bun:"model"`

	// Temperature is nullable so a stored 0 (deterministic tenants) is
	// distinguishable from an unset column.
	Temperature  *float64 `bun:"temperature"`
	MaxTokens    int      `bun:"max_tokens"`
	OpenAIAPIKey string   `bun:"openai_api_key,nullzero"`
	EnabledTools ToolList `bun:"enabled_tools,type:jsonb"`
	RAGEnabled   bool     `bun:"rag_enabled"`
	RAGTopK      int      `bun:"rag_top_k"`
	Active       bool     `bun:"active"`

	// Optional isolated store. When StoreDSN is set the tenant's leads,
	// messages and usage rows live there instead of the admin store.
	StoreDSN      string `bun:"store_dsn,nullzero"`
	StorePassword string `bun:"store_password,nullzero"`

	ErrorWebhook string `bun:"error_webhook,nullzero"`

	UpdatedAt time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}

// StaticToolNames returns the names of enabled capabilities declared by name
// only (native or externally implemented without a schema).
func (c *TenantConfig) StaticToolNames() []string {
	var names []string
	for _, t := range c.EnabledTools {
		if !t.Dynamic {
			names = append(names, t.Name)
		}
	}
	return names
}

// DynamicTools returns the tenant-declared schema-only capability
// declarations, executed outside this process.
func (c *TenantConfig) DynamicTools() []ToolSetting {
	var dyn []ToolSetting
	for _, t := range c.EnabledTools {
		if t.Dynamic {
			dyn = append(dyn, t)
		}
	}
	return dyn
}

// ToolSetting is one entry of the enabled_tools column. The column is a JSON
// array mixing bare name strings (static enables) and full declarations
// (dynamic capabilities with a parameter schema).
type ToolSetting struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Dynamic     bool           `json:"-"`
}

func (t *ToolSetting) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*t = ToolSetting{Name: name}
		return nil
	}

	type alias ToolSetting
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("tool setting must be a name or a declaration: %w", err)
	}
	decoded.Dynamic = true
	*t = ToolSetting(decoded)
	return nil
}

func (t ToolSetting) MarshalJSON() ([]byte, error) {
	if !t.Dynamic {
		return json.Marshal(t.Name)
	}
	type alias ToolSetting
	return json.Marshal(alias(t))
}

type ToolList []ToolSetting

var (
	_ driver.Valuer = (ToolList)(nil)
	_ sql.Scanner   = (*ToolList)(nil)
)

func (l ToolList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

func (l *ToolList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported enabled_tools source type %T", src)
	}
}

// Lead is one conversation participant, unique per (tenant, normalized
// phone). Created on first contact, never deleted here.
type Lead struct {
	bun.BaseModel `bun:"table:leads,alias:l"`

	ID        int64           `bun:"id,pk,autoincrement"`
	TenantKey string          `bun:"client_id"`
	Phone     string          `bun:"phone"`
	Name      string          `bun:"name,nullzero"`
	Status    string          `bun:"status"`
	Metadata  json.RawMessage `bun:"metadata,type:jsonb,nullzero"`

	// LastFollowupMinutes is the last inactivity threshold that triggered a
	// follow-up; written by the external scheduler job, read-only here.
	LastFollowupMinutes int `bun:"last_followup_minutes,nullzero"`

	CreatedAt time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

// Message is one append-only conversation entry. Ordering is by CreatedAt.
type Message struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ID         int64     `bun:"id,pk,autoincrement"`
	TenantKey  string    `bun:"client_id"`
	LeadID     int64     `bun:"lead_id"`
	Role       string    `bun:"role"`
	Content    string    `bun:"content"`
	TokensUsed int       `bun:"tokens_used"`
	CreatedAt  time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

// UsageRecord is the append-only audit row for one completion round.
type UsageRecord struct {
	bun.BaseModel `bun:"table:token_usage,alias:tu"`

	ID        int64     `bun:"id,pk,autoincrement"`
	TenantKey string    `bun:"client_id"`
	LeadID    int64     `bun:"lead_id"`
	Model     string    `bun:"model"`
	TokensIn  int       `bun:"tokens_in"`
	TokensOut int       `bun:"tokens_out"`
	Cost      float64   `bun:"cost"`
	CreatedAt time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}
