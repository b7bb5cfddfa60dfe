package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	contractx "github.com/zapflow/zapflow/agent/contract"
	"github.com/zapflow/zapflow/agent/learning"
)

// Native capability names.
const (
	ToolConversationHistory = "get_conversation_history"
	ToolKnowledgeSearch     = "search_knowledge_base"
	ToolLeadProfile         = "analyze_lead_profile"
	ToolSaveLearning        = "save_learning"
	ToolConsultLearnings    = "consult_learnings"
)

func nativeEntries(r *Registry) []entry {
	return []entry{
		{
			def: contractx.ToolDefinition{
				Name:        ToolConversationHistory,
				Description: "Recupera o histórico recente de mensagens da conversa com o cliente para entender o contexto.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"limit": map[string]any{"type": "integer", "description": "Número de mensagens a buscar"},
					},
				},
			},
			dispatch: r.conversationHistory,
		},
		{
			def: contractx.ToolDefinition{
				Name:        ToolKnowledgeSearch,
				Description: "Busca informações na base de conhecimento da empresa sobre produtos, serviços, horários, etc.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{"type": "string", "description": "Termo de busca"},
						"top_k": map[string]any{"type": "integer"},
					},
					"required": []string{"query"},
				},
			},
			dispatch: r.knowledgeSearch,
		},
		{
			def: contractx.ToolDefinition{
				Name:        ToolLeadProfile,
				Description: "Busca dados cadastrais e perfil do lead.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
				},
			},
			dispatch: r.leadProfile,
		},
		{
			def: contractx.ToolDefinition{
				Name:        ToolSaveLearning,
				Description: "Registra uma correção ou preferência do cliente para não repetir o mesmo erro.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"interaction_type": map[string]any{"type": "string", "description": "Tipo da interação (correção, preferência, etc.)"},
						"original_input":   map[string]any{"type": "string", "description": "O que o cliente disse"},
						"corrected_output": map[string]any{"type": "string", "description": "A interpretação correta"},
					},
					"required": []string{"interaction_type", "original_input"},
				},
			},
			dispatch: r.saveLearning,
		},
		{
			def: contractx.ToolDefinition{
				Name:        ToolConsultLearnings,
				Description: "Consulta correções e preferências já registradas para este cliente.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"limit": map[string]any{"type": "integer"},
					},
				},
			},
			dispatch: r.consultLearnings,
		},
	}
}

func (r *Registry) conversationHistory(ctx context.Context, args map[string]any) (string, error) {
	lead, err := r.deps.Gateway.GetOrCreateLead(ctx, r.deps.LeadPhone, "")
	if err != nil {
		return "", err
	}

	history, err := r.deps.Gateway.History(ctx, lead.ID, argInt(args, "limit", 10))
	if err != nil {
		return "", err
	}
	if len(history) == 0 {
		return "Nenhum histórico encontrado.", nil
	}

	lines := make([]string, 0, len(history))
	for _, msg := range history {
		lines = append(lines, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}
	return strings.Join(lines, "\n"), nil
}

func (r *Registry) knowledgeSearch(ctx context.Context, args map[string]any) (string, error) {
	query := argString(args, "query")
	if query == "" {
		return "Erro: query é obrigatória.", nil
	}

	snippets, err := r.deps.Knowledge.Search(ctx, query, argInt(args, "top_k", 3))
	if err != nil {
		return "", err
	}
	if len(snippets) == 0 {
		return "Nenhuma informação relevante encontrada na base de conhecimento.", nil
	}
	return strings.Join(snippets, "\n\n"), nil
}

func (r *Registry) leadProfile(ctx context.Context, _ map[string]any) (string, error) {
	lead, err := r.deps.Gateway.GetOrCreateLead(ctx, r.deps.LeadPhone, "")
	if err != nil {
		return "", err
	}

	profile, err := json.MarshalIndent(map[string]any{
		"phone":    lead.Phone,
		"name":     lead.Name,
		"status":   lead.Status,
		"metadata": lead.Metadata,
		"since":    lead.CreatedAt,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode lead profile: %w", err)
	}
	return string(profile), nil
}

func (r *Registry) saveLearning(ctx context.Context, args map[string]any) (string, error) {
	original := argString(args, "original_input")
	if original == "" {
		return "Erro: original_input é obrigatório.", nil
	}

	err := r.deps.Learnings.Save(ctx, learning.Learning{
		TenantKey:       r.deps.TenantKey,
		LeadPhone:       r.deps.LeadPhone,
		InteractionType: argString(args, "interaction_type"),
		OriginalInput:   original,
		CorrectedOutput: argString(args, "corrected_output"),
	})
	if err != nil {
		return "", err
	}
	return "Aprendizado registrado.", nil
}

func (r *Registry) consultLearnings(ctx context.Context, args map[string]any) (string, error) {
	recs, err := r.deps.Learnings.Recent(ctx, r.deps.TenantKey, r.deps.LeadPhone, argInt(args, "limit", 5))
	if err != nil {
		return "", err
	}
	if len(recs) == 0 {
		return "Nenhum aprendizado registrado para este cliente.", nil
	}

	lines := make([]string, 0, len(recs))
	for _, rec := range recs {
		lines = append(lines, fmt.Sprintf("- O usuário disse '%s' e o correto é '%s' (Tipo: %s)",
			rec.OriginalInput, rec.CorrectedOutput, rec.InteractionType))
	}
	return strings.Join(lines, "\n"), nil
}

func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func argInt(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	case json.Number:
		if n, err := v.Int64(); err == nil && n > 0 {
			return int(n)
		}
	}
	return fallback
}
