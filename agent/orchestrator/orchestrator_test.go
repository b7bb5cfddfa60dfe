package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	contractx "github.com/zapflow/zapflow/agent/contract"
	"github.com/zapflow/zapflow/agent/learning"
	"github.com/zapflow/zapflow/agent/store"
	webhookx "github.com/zapflow/zapflow/pkg/webhook"
)

type fakeConfigStore struct {
	configs map[string]*store.TenantConfig
}

func (f *fakeConfigStore) Load(_ context.Context, tenantKey string) (*store.TenantConfig, error) {
	cfg, ok := f.configs[tenantKey]
	if !ok {
		return nil, fmt.Errorf("%w: tenant=%s", contractx.ErrConfigNotFound, tenantKey)
	}
	return cfg, nil
}

type fakeBinding struct {
	lead      *store.Lead
	history   []store.Message
	saved     []store.Message
	usage     []store.UsageRecord
	snippets  []string
	searchErr error
	closed    int
}

func (f *fakeBinding) GetOrCreateLead(_ context.Context, phone, name string) (*store.Lead, error) {
	if f.lead == nil {
		f.lead = &store.Lead{ID: 1, Phone: store.NormalizePhone(phone), Name: name, Status: "active"}
	}
	return f.lead, nil
}

func (f *fakeBinding) SaveMessage(_ context.Context, leadID int64, role, content string, tokens int) error {
	f.saved = append(f.saved, store.Message{LeadID: leadID, Role: role, Content: content, TokensUsed: tokens})
	return nil
}

func (f *fakeBinding) History(context.Context, int64, int) ([]store.Message, error) {
	return f.history, nil
}

func (f *fakeBinding) LogUsage(_ context.Context, rec store.UsageRecord) error {
	f.usage = append(f.usage, rec)
	return nil
}

func (f *fakeBinding) Searcher() contractx.KnowledgeSearcher { return f }

func (f *fakeBinding) Search(context.Context, string, int) ([]string, error) {
	return f.snippets, f.searchErr
}

func (f *fakeBinding) Close() error {
	f.closed++
	return nil
}

type fakeBinder struct {
	binding *fakeBinding
	err     error
	calls   int
}

func (f *fakeBinder) Bind(context.Context, *store.TenantConfig) (store.Binding, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.binding, nil
}

type fakeLearningStore struct{}

func (fakeLearningStore) Recent(context.Context, string, string, int) ([]learning.Learning, error) {
	return nil, nil
}

func (fakeLearningStore) Save(context.Context, learning.Learning) error { return nil }

type scriptedCompleter struct {
	requests []contractx.CompletionRequest
	script   []func() (contractx.CompletionResult, error)
}

func (c *scriptedCompleter) Complete(_ context.Context, req contractx.CompletionRequest) (contractx.CompletionResult, error) {
	c.requests = append(c.requests, req)
	if len(c.script) == 0 {
		return contractx.CompletionResult{}, fmt.Errorf("%w: script exhausted", contractx.ErrCompletionService)
	}
	next := c.script[0]
	c.script = c.script[1:]
	return next()
}

func reply(text string, in, out int) func() (contractx.CompletionResult, error) {
	return func() (contractx.CompletionResult, error) {
		return contractx.CompletionResult{
			Content:          text,
			PromptTokens:     in,
			CompletionTokens: out,
			TotalTokens:      in + out,
		}, nil
	}
}

func failure() func() (contractx.CompletionResult, error) {
	return func() (contractx.CompletionResult, error) {
		return contractx.CompletionResult{}, fmt.Errorf("%w: upstream 500", contractx.ErrCompletionService)
	}
}

type fakeAlerts struct {
	urls   []string
	events []webhookx.Event
}

func (f *fakeAlerts) Send(_ context.Context, url string, event webhookx.Event) error {
	f.urls = append(f.urls, url)
	f.events = append(f.events, event)
	return nil
}

func f64(v float64) *float64 { return &v }

func activeConfig() *store.TenantConfig {
	return &store.TenantConfig{
		TenantKey:    "tenant-1",
		SystemPrompt: "Você é um atendente de hotel.",
		Model:        "gpt-4o-mini",
		Temperature:  f64(0.7),
		MaxTokens:    800,
		OpenAIAPIKey: "sk-test",
		Active:       true,
		ErrorWebhook: "https://example.test/alerts",
	}
}

type fixture struct {
	orch      *Orchestrator
	binding   *fakeBinding
	binder    *fakeBinder
	completer *scriptedCompleter
	alerts    *fakeAlerts
}

func newFixture(t *testing.T, cfg *store.TenantConfig, script ...func() (contractx.CompletionResult, error)) *fixture {
	t.Helper()

	binding := &fakeBinding{}
	binder := &fakeBinder{binding: binding}
	completer := &scriptedCompleter{script: script}
	alerts := &fakeAlerts{}

	configs := map[string]*store.TenantConfig{}
	if cfg != nil {
		configs[cfg.TenantKey] = cfg
	}

	orch, err := New(Deps{
		Configs:   &fakeConfigStore{configs: configs},
		Binder:    binder,
		Learnings: fakeLearningStore{},
		Completers: func(string) (contractx.Completer, error) {
			return completer, nil
		},
		Alerts: alerts,
		Policy: RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond, Sleep: func(time.Duration) {}},
		Now: func() time.Time {
			return time.Date(2025, time.January, 10, 12, 0, 0, 0, time.UTC)
		},
	})
	require.NoError(t, err)

	return &fixture{orch: orch, binding: binding, binder: binder, completer: completer, alerts: alerts}
}

func TestExecuteRepliesAndPersists(t *testing.T) {
	t.Parallel()

	f := newFixture(t, activeConfig(), reply("Olá! Temos quartos disponíveis.", 120, 30))

	out, err := f.orch.Execute(context.Background(), Request{
		TenantKey: "tenant-1",
		LeadPhone: "+55 (11) 99999-8888",
		Message:   "olá, vocês têm quartos?",
		LeadName:  "Ana",
	})
	require.NoError(t, err)

	require.Equal(t, contractx.OutcomeMessage, out.Type)
	require.Equal(t, "Olá! Temos quartos disponíveis.", out.Response)
	require.False(t, out.Fallback)
	require.Equal(t, 150, out.TokensUsed)

	require.Equal(t, "5511999998888", f.binding.lead.Phone)

	require.Len(t, f.binding.saved, 2)
	require.Equal(t, contractx.RoleUser, f.binding.saved[0].Role)
	require.Equal(t, "olá, vocês têm quartos?", f.binding.saved[0].Content)
	require.Equal(t, contractx.RoleAssistant, f.binding.saved[1].Role)
	require.Equal(t, 150, f.binding.saved[1].TokensUsed)

	require.Len(t, f.binding.usage, 1)
	usage := f.binding.usage[0]
	require.Equal(t, "gpt-4o-mini", usage.Model)
	require.Equal(t, 120, usage.TokensIn)
	require.Equal(t, 30, usage.TokensOut)
	require.InDelta(t, 120.0/1_000_000*0.15+30.0/1_000_000*0.60, usage.Cost, 1e-12)

	require.Empty(t, f.alerts.events)
}

func TestExecuteInjectsKnowledgeAndTemporalContext(t *testing.T) {
	t.Parallel()

	cfg := activeConfig()
	cfg.RAGEnabled = true
	cfg.RAGTopK = 3

	f := newFixture(t, cfg, reply("O check-in é às 14h.", 100, 20))
	f.binding.snippets = []string{"Título: Check-in\nConteúdo: A partir das 14h"}

	_, err := f.orch.Execute(context.Background(), Request{
		TenantKey: "tenant-1",
		LeadPhone: "5511999998888",
		Message:   "oi, me fala sobre a chegada",
	})
	require.NoError(t, err)

	require.NotEmpty(t, f.completer.requests)
	system := f.completer.requests[0].Messages[0]
	require.Equal(t, contractx.RoleSystem, system.Role)
	require.Contains(t, system.Content, "BASE DE CONHECIMENTO (Use estas informações para responder):")
	require.Contains(t, system.Content, "A partir das 14h")
	require.Contains(t, system.Content, "CONTEXTO TEMPORAL:")
	require.Contains(t, system.Content, "Data atual: 10/01/2025")
}

func TestExecuteUnknownTenant(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	_, err := f.orch.Execute(context.Background(), Request{
		TenantKey: "ghost",
		LeadPhone: "5511999998888",
		Message:   "oi",
	})
	require.ErrorIs(t, err, contractx.ErrConfigNotFound)
	require.Zero(t, f.binder.calls)
}

func TestExecuteInactiveTenantSkipsBinding(t *testing.T) {
	t.Parallel()

	cfg := activeConfig()
	cfg.Active = false
	f := newFixture(t, cfg)

	_, err := f.orch.Execute(context.Background(), Request{
		TenantKey: "tenant-1",
		LeadPhone: "5511999998888",
		Message:   "oi",
	})
	require.ErrorIs(t, err, contractx.ErrTenantInactive)
	require.Zero(t, f.binder.calls)
	require.Empty(t, f.binding.saved)
}

func TestExecuteMissingCredential(t *testing.T) {
	t.Parallel()

	cfg := activeConfig()
	cfg.OpenAIAPIKey = ""
	f := newFixture(t, cfg)

	_, err := f.orch.Execute(context.Background(), Request{
		TenantKey: "tenant-1",
		LeadPhone: "5511999998888",
		Message:   "oi",
	})
	require.ErrorIs(t, err, contractx.ErrMissingCredential)
}

func TestExecuteCredentialOverrideBypassesConfig(t *testing.T) {
	t.Parallel()

	cfg := activeConfig()
	cfg.OpenAIAPIKey = ""
	f := newFixture(t, cfg, reply("Oi!", 10, 5))

	out, err := f.orch.Execute(context.Background(), Request{
		TenantKey:          "tenant-1",
		LeadPhone:          "5511999998888",
		Message:            "oi",
		CredentialOverride: "sk-override",
	})
	require.NoError(t, err)
	require.Equal(t, "Oi!", out.Response)
}

func TestExecuteBindingFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, activeConfig())
	f.binder.err = fmt.Errorf("%w: tenant=tenant-1", contractx.ErrStoreBinding)

	_, err := f.orch.Execute(context.Background(), Request{
		TenantKey: "tenant-1",
		LeadPhone: "5511999998888",
		Message:   "oi",
	})
	require.ErrorIs(t, err, contractx.ErrStoreBinding)
	require.Empty(t, f.binding.saved)
}

func TestExecuteRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	f := newFixture(t, activeConfig(),
		failure(),
		reply("Consegui agora!", 50, 10),
	)

	out, err := f.orch.Execute(context.Background(), Request{
		TenantKey: "tenant-1",
		LeadPhone: "5511999998888",
		Message:   "oi",
	})
	require.NoError(t, err)
	require.Equal(t, "Consegui agora!", out.Response)
	require.False(t, out.Fallback)
	require.Len(t, f.completer.requests, 2)
	require.Empty(t, f.alerts.events)
}

func TestExecuteExhaustedRetriesFallsBack(t *testing.T) {
	t.Parallel()

	f := newFixture(t, activeConfig(), failure(), failure(), failure())

	out, err := f.orch.Execute(context.Background(), Request{
		TenantKey: "tenant-1",
		LeadPhone: "+55 11 99999-8888",
		Message:   "oi",
	})
	require.NoError(t, err)

	require.Equal(t, contractx.OutcomeMessage, out.Type)
	require.True(t, out.Fallback)
	require.Equal(t, apologyReply, out.Response)
	require.Zero(t, out.TokensUsed)

	require.Len(t, f.completer.requests, 3)

	require.Len(t, f.alerts.events, 1)
	event := f.alerts.events[0]
	require.Equal(t, "agent_failure", event.Event)
	require.Equal(t, "tenant-1", event.TenantKey)
	require.Equal(t, "5511999998888", event.LeadPhone)
	require.Contains(t, event.Error, "upstream 500")
	require.Equal(t, "2025-01-10T12:00:00Z", event.Timestamp)
	require.Equal(t, []string{"https://example.test/alerts"}, f.alerts.urls)

	// The apology is never logged as real usage.
	require.Empty(t, f.binding.usage)
}

func TestExecuteNoAlertWithoutWebhook(t *testing.T) {
	t.Parallel()

	cfg := activeConfig()
	cfg.ErrorWebhook = ""
	f := newFixture(t, cfg, failure(), failure(), failure())

	out, err := f.orch.Execute(context.Background(), Request{
		TenantKey: "tenant-1",
		LeadPhone: "5511999998888",
		Message:   "oi",
	})
	require.NoError(t, err)
	require.True(t, out.Fallback)
	require.Empty(t, f.alerts.events)
}

func TestExecuteDynamicCapabilityReturnsPendingCall(t *testing.T) {
	t.Parallel()

	cfg := activeConfig()
	cfg.EnabledTools = store.ToolList{
		{Name: "check_availability", Description: "Consulta disponibilidade", Dynamic: true},
	}

	f := newFixture(t, cfg, func() (contractx.CompletionResult, error) {
		return contractx.CompletionResult{
			ToolCalls: []contractx.ToolCall{{
				ID:        "call-1",
				Name:      "check_availability",
				Arguments: `{"checkin":"20/02"}`,
			}},
			PromptTokens: 70, CompletionTokens: 9, TotalTokens: 79,
		}, nil
	})

	out, err := f.orch.Execute(context.Background(), Request{
		TenantKey: "tenant-1",
		LeadPhone: "5511999998888",
		Message:   "tem vaga?",
	})
	require.NoError(t, err)

	require.Equal(t, contractx.OutcomeToolCall, out.Type)
	require.Equal(t, "check_availability", out.ToolName)
	require.NotEmpty(t, out.ContextID)
	require.Equal(t, "20/02/2025", out.ToolParams["checkin"])

	// Only the inbound message is persisted; the reply is still pending.
	require.Len(t, f.binding.saved, 1)
	require.Empty(t, f.binding.usage)
}

func TestResumeRepliesAndPersists(t *testing.T) {
	t.Parallel()

	f := newFixture(t, activeConfig(), reply("Temos 3 quartos livres!", 90, 18))

	prior := []contractx.ChatMessage{
		{Role: contractx.RoleSystem, Content: "Você é um atendente."},
		{Role: contractx.RoleUser, Content: "tem vaga?"},
		{Role: contractx.RoleAssistant, ToolCalls: []contractx.ToolCall{{
			ID: "call-1", Name: "check_availability", Arguments: `{"checkin":"20/02/2025"}`,
		}}},
	}

	out, err := f.orch.Resume(context.Background(), ResumeRequest{
		TenantKey:  "tenant-1",
		LeadPhone:  "5511999998888",
		Messages:   prior,
		ToolCallID: "call-1",
		ToolName:   "check_availability",
		ToolResult: map[string]any{"available": true, "rooms": 3},
	})
	require.NoError(t, err)

	require.Equal(t, contractx.OutcomeMessage, out.Type)
	require.Equal(t, "Temos 3 quartos livres!", out.Response)

	require.Len(t, f.completer.requests, 1)
	req := f.completer.requests[0]
	require.Empty(t, req.Tools)
	last := req.Messages[len(req.Messages)-1]
	require.Equal(t, contractx.RoleTool, last.Role)
	require.Equal(t, "call-1", last.ToolCallID)

	require.Len(t, f.binding.saved, 1)
	require.Equal(t, contractx.RoleAssistant, f.binding.saved[0].Role)
	require.Len(t, f.binding.usage, 1)
}

func TestResumeInactiveTenant(t *testing.T) {
	t.Parallel()

	cfg := activeConfig()
	cfg.Active = false
	f := newFixture(t, cfg)

	_, err := f.orch.Resume(context.Background(), ResumeRequest{
		TenantKey: "tenant-1",
		LeadPhone: "5511999998888",
		ToolName:  "check_availability",
	})
	require.ErrorIs(t, err, contractx.ErrTenantInactive)
}

func TestExecuteClosesBinding(t *testing.T) {
	t.Parallel()

	f := newFixture(t, activeConfig(), reply("Oi!", 10, 5))

	_, err := f.orch.Execute(context.Background(), Request{
		TenantKey: "tenant-1",
		LeadPhone: "5511999998888",
		Message:   "oi",
	})
	require.NoError(t, err)
	require.Equal(t, 1, f.binding.closed)
}

func TestExecuteClosesBindingAfterFallback(t *testing.T) {
	t.Parallel()

	f := newFixture(t, activeConfig(), failure(), failure(), failure())

	out, err := f.orch.Execute(context.Background(), Request{
		TenantKey: "tenant-1",
		LeadPhone: "5511999998888",
		Message:   "oi",
	})
	require.NoError(t, err)
	require.True(t, out.Fallback)
	require.Equal(t, 1, f.binding.closed)
}

func TestResumeClosesBinding(t *testing.T) {
	t.Parallel()

	f := newFixture(t, activeConfig(), reply("Pronto!", 20, 6))

	_, err := f.orch.Resume(context.Background(), ResumeRequest{
		TenantKey:  "tenant-1",
		LeadPhone:  "5511999998888",
		ToolCallID: "call-1",
		ToolName:   "check_availability",
		ToolResult: map[string]any{"ok": true},
	})
	require.NoError(t, err)
	require.Equal(t, 1, f.binding.closed)
}

func TestExecuteHonorsZeroTemperature(t *testing.T) {
	t.Parallel()

	cfg := activeConfig()
	cfg.Temperature = f64(0)
	f := newFixture(t, cfg, reply("Oi!", 10, 5))

	_, err := f.orch.Execute(context.Background(), Request{
		TenantKey: "tenant-1",
		LeadPhone: "5511999998888",
		Message:   "oi",
	})
	require.NoError(t, err)
	require.Len(t, f.completer.requests, 1)
	require.Zero(t, f.completer.requests[0].Temperature)
}

func TestExecuteDefaultsTemperatureWhenUnset(t *testing.T) {
	t.Parallel()

	cfg := activeConfig()
	cfg.Temperature = nil
	f := newFixture(t, cfg, reply("Oi!", 10, 5))

	_, err := f.orch.Execute(context.Background(), Request{
		TenantKey: "tenant-1",
		LeadPhone: "5511999998888",
		Message:   "oi",
	})
	require.NoError(t, err)
	require.Len(t, f.completer.requests, 1)
	require.Equal(t, 0.7, f.completer.requests[0].Temperature)
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Deps{})
	require.Error(t, err)

	_, err = New(Deps{
		Configs: &fakeConfigStore{},
		Binder:  &fakeBinder{},
	})
	require.Error(t, err)
}
