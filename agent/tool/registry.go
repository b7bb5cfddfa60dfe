// Package tool holds the capability registry: the fixed native manifest the
// engine can dispatch in-process, plus tenant-declared dynamic capabilities
// that only the external system can execute.
package tool

import (
	"context"
	"fmt"

	contractx "github.com/zapflow/zapflow/agent/contract"
	"github.com/zapflow/zapflow/agent/learning"
	"github.com/zapflow/zapflow/agent/store"
)

// Deps are the tenant-bound collaborators native capabilities run against.
type Deps struct {
	Gateway   store.Gateway
	Knowledge contractx.KnowledgeSearcher
	Learnings learning.Store
	TenantKey string
	LeadPhone string
}

type dispatchFunc func(ctx context.Context, args map[string]any) (string, error)

// entry is a tagged manifest variant: native entries carry a dispatch func,
// dynamic entries are schema-only.
type entry struct {
	def      contractx.ToolDefinition
	dispatch dispatchFunc
}

// Registry is built once per request for one (tenant, lead) pair.
type Registry struct {
	deps    Deps
	entries []entry
	byName  map[string]int
}

// NewRegistry assembles the native manifest plus the tenant's dynamic
// declarations.
func NewRegistry(deps Deps, dynamic []store.ToolSetting) *Registry {
	r := &Registry{
		deps:   deps,
		byName: make(map[string]int),
	}

	for _, n := range nativeEntries(r) {
		r.add(n)
	}
	for _, d := range dynamic {
		if d.Name == "" {
			continue
		}
		r.add(entry{def: contractx.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		}})
	}
	return r
}

func (r *Registry) add(e entry) {
	if _, exists := r.byName[e.def.Name]; exists {
		return
	}
	r.byName[e.def.Name] = len(r.entries)
	r.entries = append(r.entries, e)
}

// Manifest returns the definitions offered to the completion service.
// Native capabilities are always offered; everything else must be in the
// tenant's enabled set (dynamic declarations enable themselves).
func (r *Registry) Manifest(enabledStatic []string) []contractx.ToolDefinition {
	allowed := make(map[string]bool, len(enabledStatic))
	for _, name := range enabledStatic {
		allowed[name] = true
	}

	defs := make([]contractx.ToolDefinition, 0, len(r.entries))
	for _, e := range r.entries {
		if e.dispatch != nil || allowed[e.def.Name] || r.isDynamic(e.def.Name) {
			defs = append(defs, e.def)
		}
	}
	return defs
}

func (r *Registry) isDynamic(name string) bool {
	idx, ok := r.byName[name]
	return ok && r.entries[idx].dispatch == nil
}

// IsNative reports whether the capability executes in this process.
func (r *Registry) IsNative(name string) bool {
	idx, ok := r.byName[name]
	return ok && r.entries[idx].dispatch != nil
}

// Dispatch runs a native capability and returns its text result. A dynamic
// or unknown name yields an explanatory text, not an error: those
// capabilities are executed by the external system, not here.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (string, error) {
	idx, ok := r.byName[name]
	if !ok || r.entries[idx].dispatch == nil {
		return fmt.Sprintf("Erro: Tool %s não encontrada ou é externa.", name), nil
	}
	return r.entries[idx].dispatch(ctx, args)
}
