package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/zapflow/zapflow/agent/contract"
	"github.com/zapflow/zapflow/agent/store"
	webhookx "github.com/zapflow/zapflow/pkg/webhook"
)

// The participant never sees a raw error for exhausted retries, only this.
const apologyReply = "Desculpe, estou passando por uma instabilidade técnica momentânea. Já notifiquei minha equipe. Poderia repetir em alguns instantes?"

// fallback alerts the tenant's endpoint (best-effort) and produces the
// user-visible apology outcome.
func (o *Orchestrator) fallback(ctx context.Context, cfg *store.TenantConfig, leadPhone string, cause error) contractx.Outcome {
	log.Error().
		Str("tenant", cfg.TenantKey).
		Err(cause).
		Msg("all attempts exhausted, falling back")

	if cfg.ErrorWebhook != "" && o.alerts != nil {
		event := webhookx.Event{
			Event:     "agent_failure",
			TenantKey: cfg.TenantKey,
			LeadPhone: leadPhone,
			Error:     cause.Error(),
			Timestamp: o.now().UTC().Format(time.RFC3339),
		}
		if err := o.alerts.Send(ctx, cfg.ErrorWebhook, event); err != nil {
			log.Warn().Err(err).Str("tenant", cfg.TenantKey).Msg("failure alert delivery failed")
		}
	}

	return contractx.Outcome{
		Type:     contractx.OutcomeMessage,
		Response: apologyReply,
		Fallback: true,
	}
}
