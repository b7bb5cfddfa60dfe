// Package orchestrator is the top-level turn driver: it resolves tenant
// configuration, binds the tenant data gateway, builds conversational
// context, runs the completion driver under the retry policy and guarantees
// a user-visible response.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/zapflow/zapflow/agent/contract"
	enginex "github.com/zapflow/zapflow/agent/engine"
	"github.com/zapflow/zapflow/agent/learning"
	"github.com/zapflow/zapflow/agent/store"
	toolx "github.com/zapflow/zapflow/agent/tool"
	webhookx "github.com/zapflow/zapflow/pkg/webhook"
)

const (
	defaultModel       = "gpt-4o-mini"
	defaultTemperature = 0.7
	defaultMaxTokens   = 1000
	historyLimit       = 10
	learningLimit      = 3
)

// CompleterFactory builds a completion client for one tenant credential.
type CompleterFactory func(apiKey string) (contractx.Completer, error)

type Deps struct {
	Configs    store.ConfigStore
	Binder     store.Binder
	Learnings  learning.Store
	Completers CompleterFactory
	Alerts     webhookx.Sender
	Policy     RetryPolicy
	Now        func() time.Time
}

type Orchestrator struct {
	configs    store.ConfigStore
	binder     store.Binder
	learnings  learning.Store
	completers CompleterFactory
	alerts     webhookx.Sender
	policy     RetryPolicy
	now        func() time.Time
}

func New(deps Deps) (*Orchestrator, error) {
	if deps.Configs == nil {
		return nil, errors.New("config store is required")
	}
	if deps.Binder == nil {
		return nil, errors.New("store binder is required")
	}
	if deps.Learnings == nil {
		return nil, errors.New("learning store is required")
	}
	if deps.Completers == nil {
		return nil, errors.New("completer factory is required")
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}
	policy := deps.Policy
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}

	return &Orchestrator{
		configs:    deps.Configs,
		binder:     deps.Binder,
		learnings:  deps.Learnings,
		completers: deps.Completers,
		alerts:     deps.Alerts,
		policy:     policy,
		now:        now,
	}, nil
}

// Request is one inbound participant message.
type Request struct {
	TenantKey          string
	LeadPhone          string
	Message            string
	LeadName           string
	CredentialOverride string
}

// Execute runs one full turn. Pre-turn failures (unknown tenant, inactive
// tenant, binding, credential) return an error from the taxonomy without
// side effects; once the turn is running, failures are retried and finally
// answered by the fallback, so the returned outcome is always user-visible.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (contractx.Outcome, error) {
	cfg, binding, completer, err := o.prepare(ctx, req.TenantKey, req.CredentialOverride)
	if err != nil {
		return contractx.Outcome{}, err
	}
	defer o.closeBinding(cfg, binding)

	lead, err := binding.GetOrCreateLead(ctx, req.LeadPhone, req.LeadName)
	if err != nil {
		return contractx.Outcome{}, err
	}

	if err := binding.SaveMessage(ctx, lead.ID, contractx.RoleUser, req.Message, 0); err != nil {
		log.Warn().Err(err).Str("tenant", cfg.TenantKey).Msg("inbound message not persisted")
	}

	var out contractx.Outcome
	attemptErr := o.policy.Run(ctx, func(ctx context.Context) error {
		res, err := o.attempt(ctx, cfg, binding, completer, lead, req)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if attemptErr != nil {
		return o.fallback(ctx, cfg, store.NormalizePhone(req.LeadPhone), attemptErr), nil
	}

	if out.Type == contractx.OutcomeMessage {
		o.persistReply(ctx, cfg, binding, lead.ID, out)
	}
	return out, nil
}

// attempt rebuilds the context and runs one completion cycle. Everything in
// here is retryable.
func (o *Orchestrator) attempt(
	ctx context.Context,
	cfg *store.TenantConfig,
	binding store.Binding,
	completer contractx.Completer,
	lead *store.Lead,
	req Request,
) (contractx.Outcome, error) {
	history, err := binding.History(ctx, lead.ID, historyLimit)
	if err != nil {
		return contractx.Outcome{}, err
	}

	systemPrompt := cfg.SystemPrompt

	if cfg.RAGEnabled {
		snippets, err := binding.Searcher().Search(ctx, req.Message, cfg.RAGTopK)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("tenant", cfg.TenantKey).Msg("knowledge injection failed")
		case len(snippets) > 0:
			systemPrompt += "\n\nBASE DE CONHECIMENTO (Use estas informações para responder):\n" +
				strings.Join(snippets, "\n---\n")
		}
	}

	phone := store.NormalizePhone(req.LeadPhone)
	recs, err := o.learnings.Recent(ctx, cfg.TenantKey, phone, learningLimit)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("tenant", cfg.TenantKey).Msg("learning injection failed")
	case len(recs) > 0:
		lines := make([]string, 0, len(recs))
		for _, rec := range recs {
			lines = append(lines, fmt.Sprintf("- O usuário disse '%s' e o correto é '%s' (Tipo: %s)",
				rec.OriginalInput, rec.CorrectedOutput, rec.InteractionType))
		}
		systemPrompt += "\n\nAPRENDIZADOS PASSADOS (Evite cometer estes erros novamente):\n" +
			strings.Join(lines, "\n")
	}

	systemPrompt += "\n\n" + temporalContext(o.now())

	registry := toolx.NewRegistry(toolx.Deps{
		Gateway:   binding,
		Knowledge: binding.Searcher(),
		Learnings: o.learnings,
		TenantKey: cfg.TenantKey,
		LeadPhone: phone,
	}, cfg.DynamicTools())

	eng := enginex.New(registry, completer, o.now)
	return eng.Run(ctx, enginex.RunInput{
		SystemPrompt:   systemPrompt,
		UserMessage:    PreprocessMessage(req.Message),
		RecentMessages: toChatMessages(history),
		EnabledStatic:  cfg.StaticToolNames(),
		Model:          modelOrDefault(cfg.Model),
		Temperature:    temperatureOrDefault(cfg.Temperature),
		MaxTokens:      maxTokensOrDefault(cfg.MaxTokens),
	})
}

// ResumeRequest feeds an external capability result back into a suspended
// turn.
type ResumeRequest struct {
	TenantKey  string
	LeadPhone  string
	Messages   []contractx.ChatMessage
	ToolCallID string
	ToolName   string
	ToolResult map[string]any
}

// Resume reloads configuration (it may have changed while suspended),
// rebinds the gateway and runs exactly one final completion round.
func (o *Orchestrator) Resume(ctx context.Context, req ResumeRequest) (contractx.Outcome, error) {
	cfg, binding, completer, err := o.prepare(ctx, req.TenantKey, "")
	if err != nil {
		return contractx.Outcome{}, err
	}
	defer o.closeBinding(cfg, binding)

	eng := enginex.New(nil, completer, o.now)
	out, err := eng.Resume(ctx, enginex.ResumeInput{
		Messages:    req.Messages,
		ToolCallID:  req.ToolCallID,
		ToolName:    req.ToolName,
		ToolResult:  req.ToolResult,
		Model:       modelOrDefault(cfg.Model),
		Temperature: temperatureOrDefault(cfg.Temperature),
		MaxTokens:   maxTokensOrDefault(cfg.MaxTokens),
	})
	if err != nil {
		return contractx.Outcome{}, err
	}

	lead, err := binding.GetOrCreateLead(ctx, req.LeadPhone, "")
	if err != nil {
		log.Warn().Err(err).Str("tenant", cfg.TenantKey).Msg("resumed reply not persisted")
		return out, nil
	}
	o.persistReply(ctx, cfg, binding, lead.ID, out)
	return out, nil
}

// closeBinding releases the per-request store binding. An isolated tenant's
// binding owns a real connection pool; leaking it would exhaust the tenant
// database's connection limit.
func (o *Orchestrator) closeBinding(cfg *store.TenantConfig, binding store.Binding) {
	if err := binding.Close(); err != nil {
		log.Warn().Err(err).Str("tenant", cfg.TenantKey).Msg("store binding not closed")
	}
}

// prepare performs the pre-turn sequence: config load, active check, store
// binding, credential resolution. No side effects.
func (o *Orchestrator) prepare(ctx context.Context, tenantKey, credentialOverride string) (*store.TenantConfig, store.Binding, contractx.Completer, error) {
	cfg, err := o.configs.Load(ctx, tenantKey)
	if err != nil {
		return nil, nil, nil, err
	}
	if !cfg.Active {
		return nil, nil, nil, fmt.Errorf("%w: tenant=%s", contractx.ErrTenantInactive, cfg.TenantKey)
	}

	binding, err := o.binder.Bind(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	apiKey := credentialOverride
	if apiKey == "" {
		apiKey = cfg.OpenAIAPIKey
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, nil, nil, fmt.Errorf("%w: tenant=%s", contractx.ErrMissingCredential, cfg.TenantKey)
	}

	completer, err := o.completers(apiKey)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, binding, completer, nil
}

// persistReply writes the assistant message and the usage audit row.
// Best-effort: a storage failure here never reaches the participant.
func (o *Orchestrator) persistReply(ctx context.Context, cfg *store.TenantConfig, binding store.Binding, leadID int64, out contractx.Outcome) {
	if err := binding.SaveMessage(ctx, leadID, contractx.RoleAssistant, out.Response, out.TokensUsed); err != nil {
		log.Warn().Err(err).Str("tenant", cfg.TenantKey).Msg("assistant reply not persisted")
	}

	tokensIn, tokensOut := out.PromptTokens, out.CompletionTokens
	if tokensIn == 0 && tokensOut == 0 && out.TokensUsed > 0 {
		tokensOut = out.TokensUsed
	}

	model := modelOrDefault(cfg.Model)
	err := binding.LogUsage(ctx, store.UsageRecord{
		LeadID:    leadID,
		Model:     model,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		Cost:      UsageCost(model, tokensIn, tokensOut),
	})
	if err != nil {
		log.Warn().Err(err).Str("tenant", cfg.TenantKey).Msg("usage not logged")
	}
}

func toChatMessages(history []store.Message) []contractx.ChatMessage {
	msgs := make([]contractx.ChatMessage, 0, len(history))
	for _, m := range history {
		role := m.Role
		if role != contractx.RoleUser && role != contractx.RoleAssistant {
			role = contractx.RoleSystem
		}
		msgs = append(msgs, contractx.ChatMessage{Role: role, Content: m.Content})
	}
	return msgs
}

func modelOrDefault(model string) string {
	if strings.TrimSpace(model) == "" {
		return defaultModel
	}
	return model
}

// temperatureOrDefault falls back only when the column is unset; a stored 0
// is a deliberate deterministic setting and is honored.
func temperatureOrDefault(t *float64) float64 {
	if t == nil {
		return defaultTemperature
	}
	return *t
}

func maxTokensOrDefault(n int) int {
	if n <= 0 {
		return defaultMaxTokens
	}
	return n
}
