// Package engine drives one completion round-trip cycle: build the message
// sequence, call the completion service with the capability manifest, then
// either answer, run a native capability and answer, or package the turn for
// suspension when an external capability is selected.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/zapflow/zapflow/agent/contract"
	toolx "github.com/zapflow/zapflow/agent/tool"
)

type Engine struct {
	registry  *toolx.Registry
	completer contractx.Completer
	now       func() time.Time
}

// New builds an engine for one request. The registry is already bound to the
// request's tenant and lead.
func New(registry *toolx.Registry, completer contractx.Completer, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{registry: registry, completer: completer, now: now}
}

// RunInput is one turn's worth of context.
type RunInput struct {
	SystemPrompt  string
	UserMessage   string
	MemorySummary string

	// RecentMessages carries structured recent history; HistoryBlock is the
	// flattened fallback used when only plain text history is available.
	RecentMessages []contractx.ChatMessage
	HistoryBlock   string

	EnabledStatic []string

	Model       string
	Temperature float64
	MaxTokens   int
}

// Run performs one cycle. A selected native capability is dispatched and
// followed by exactly one more completion call; a dynamic capability
// suspends the turn via an OutcomeToolCall. Completion-service failures come
// back as errors wrapping contract.ErrCompletionService so the caller's
// retry policy treats them like any other attempt failure.
func (e *Engine) Run(ctx context.Context, in RunInput) (contractx.Outcome, error) {
	instructions := in.SystemPrompt

	if shouldSearchKnowledge(in.UserMessage) {
		snippets, err := e.registry.Dispatch(ctx, toolx.ToolKnowledgeSearch, map[string]any{
			"query": in.UserMessage,
		})
		if err != nil {
			log.Warn().Err(err).Msg("eager knowledge lookup failed")
		} else if snippets != "" {
			instructions += "\n\nINFORMAÇÕES RELEVANTES (RAG):\n" + snippets + "\n"
		}
	}

	msgs := []contractx.ChatMessage{{Role: contractx.RoleSystem, Content: instructions}}
	if in.MemorySummary != "" {
		msgs = append(msgs, contractx.ChatMessage{
			Role:    contractx.RoleSystem,
			Content: "RESUMO DA CONVERSA ANTERIOR:\n" + in.MemorySummary,
		})
	}
	switch {
	case len(in.RecentMessages) > 0:
		msgs = append(msgs, in.RecentMessages...)
	case in.HistoryBlock != "":
		msgs = append(msgs, contractx.ChatMessage{
			Role:    contractx.RoleSystem,
			Content: "Contexto da conversa:\n" + in.HistoryBlock,
		})
	}
	msgs = append(msgs, contractx.ChatMessage{Role: contractx.RoleUser, Content: in.UserMessage})

	manifest := e.registry.Manifest(in.EnabledStatic)

	first, err := e.completer.Complete(ctx, contractx.CompletionRequest{
		Model:       in.Model,
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
		Messages:    msgs,
		Tools:       manifest,
	})
	if err != nil {
		return contractx.Outcome{}, err
	}

	if len(first.ToolCalls) == 0 {
		return contractx.Outcome{
			Type:             contractx.OutcomeMessage,
			Response:         first.Content,
			TokensUsed:       first.TotalTokens,
			PromptTokens:     first.PromptTokens,
			CompletionTokens: first.CompletionTokens,
		}, nil
	}

	// Only the primary tool call is honored.
	call := first.ToolCalls[0]
	args := decodeArgs(call.Arguments)
	normalizeDateArgs(args, e.now())
	call.Arguments = encodeArgs(args)

	msgs = append(msgs, contractx.ChatMessage{
		Role:      contractx.RoleAssistant,
		Content:   first.Content,
		ToolCalls: []contractx.ToolCall{call},
	})

	if !e.registry.IsNative(call.Name) {
		log.Debug().Str("tool", call.Name).Msg("suspending turn for external capability")
		return contractx.Outcome{
			Type:             contractx.OutcomeToolCall,
			ToolName:         call.Name,
			ToolParams:       args,
			ToolCallID:       call.ID,
			ContextID:        uuid.NewString(),
			Messages:         msgs,
			TokensUsed:       first.TotalTokens,
			PromptTokens:     first.PromptTokens,
			CompletionTokens: first.CompletionTokens,
		}, nil
	}

	output, err := e.registry.Dispatch(ctx, call.Name, args)
	if err != nil {
		return contractx.Outcome{}, err
	}
	msgs = append(msgs, contractx.ChatMessage{
		Role:       contractx.RoleTool,
		Name:       call.Name,
		ToolCallID: call.ID,
		Content:    output,
	})

	second, err := e.completer.Complete(ctx, contractx.CompletionRequest{
		Model:       in.Model,
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
		Messages:    msgs,
		Tools:       manifest,
	})
	if err != nil {
		return contractx.Outcome{}, err
	}

	return contractx.Outcome{
		Type:             contractx.OutcomeMessage,
		Response:         second.Content,
		TokensUsed:       first.TotalTokens + second.TotalTokens,
		PromptTokens:     first.PromptTokens + second.PromptTokens,
		CompletionTokens: first.CompletionTokens + second.CompletionTokens,
	}, nil
}

// ResumeInput feeds an external capability result back into a suspended
// transcript.
type ResumeInput struct {
	Messages   []contractx.ChatMessage
	ToolCallID string
	ToolName   string
	ToolResult map[string]any

	Model       string
	Temperature float64
	MaxTokens   int
}

// Resume appends the capability result and performs exactly one completion
// call with no manifest offered: this call must terminate in a reply.
func (e *Engine) Resume(ctx context.Context, in ResumeInput) (contractx.Outcome, error) {
	result, err := json.Marshal(in.ToolResult)
	if err != nil {
		return contractx.Outcome{}, fmt.Errorf("encode capability result: %w", err)
	}

	msgs := append(append([]contractx.ChatMessage{}, in.Messages...), contractx.ChatMessage{
		Role:       contractx.RoleTool,
		Name:       in.ToolName,
		ToolCallID: in.ToolCallID,
		Content:    string(result),
	})

	final, err := e.completer.Complete(ctx, contractx.CompletionRequest{
		Model:       in.Model,
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
		Messages:    msgs,
	})
	if err != nil {
		return contractx.Outcome{}, err
	}

	return contractx.Outcome{
		Type:             contractx.OutcomeMessage,
		Response:         final.Content,
		TokensUsed:       final.TotalTokens,
		PromptTokens:     final.PromptTokens,
		CompletionTokens: final.CompletionTokens,
	}, nil
}

func decodeArgs(raw string) map[string]any {
	args := map[string]any{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		log.Warn().Err(err).Msg("tool call arguments are not a JSON object")
		return map[string]any{}
	}
	return args
}

func encodeArgs(args map[string]any) string {
	encoded, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}
