// Package server exposes the turn protocol over HTTP: one endpoint that runs
// a turn and one that feeds an external capability result back into a
// suspended turn.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/zapflow/zapflow/agent/contract"
	"github.com/zapflow/zapflow/agent/orchestrator"
	"github.com/zapflow/zapflow/agent/store"
	"github.com/zapflow/zapflow/agent/suspend"
)

type Config struct {
	Addr            string        `envconfig:"ADDR" default:":8000"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

type Server struct {
	orch        *orchestrator.Orchestrator
	suspensions suspend.Store
	mux         *http.ServeMux
}

func New(orch *orchestrator.Orchestrator, suspensions suspend.Store) *Server {
	s := &Server{orch: orch, suspensions: suspensions, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /webhook/execute", s.handleExecute)
	s.mux.HandleFunc("POST /webhook/tool-result", s.handleToolResult)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

type executeRequest struct {
	ClientID  string `json:"client_id"`
	LeadPhone string `json:"lead_phone"`
	Message   string `json:"message"`
	LeadName  string `json:"lead_name"`
	OpenAIKey string `json:"openai_key"`
}

type toolResultRequest struct {
	ContextID  string         `json:"context_id"`
	ClientID   string         `json:"client_id"`
	LeadPhone  string         `json:"lead_phone"`
	ToolName   string         `json:"tool_name"`
	ToolResult map[string]any `json:"tool_result"`
}

type errorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}
	if req.ClientID == "" || req.LeadPhone == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "client_id, lead_phone and message are required", "bad_request")
		return
	}

	out, err := s.orch.Execute(r.Context(), orchestrator.Request{
		TenantKey:          req.ClientID,
		LeadPhone:          req.LeadPhone,
		Message:            req.Message,
		LeadName:           req.LeadName,
		CredentialOverride: req.OpenAIKey,
	})
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}

	if out.Type == contractx.OutcomeToolCall {
		rec := suspend.Record{
			TenantKey:  req.ClientID,
			LeadPhone:  store.NormalizePhone(req.LeadPhone),
			Messages:   out.Messages,
			ToolCallID: out.ToolCallID,
			ToolName:   out.ToolName,
		}
		if err := s.suspensions.Put(r.Context(), out.ContextID, rec); err != nil {
			log.Error().Err(err).Str("tenant", req.ClientID).Msg("suspension not stored")
			writeTaxonomyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"type":        "tool_call",
			"tool_name":   out.ToolName,
			"tool_params": out.ToolParams,
			"context_id":  out.ContextID,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"type":        "message",
		"response":    out.Response,
		"tokens_used": out.TokensUsed,
		"fallback":    out.Fallback,
	})
}

func (s *Server) handleToolResult(w http.ResponseWriter, r *http.Request) {
	var req toolResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}
	if req.ContextID == "" || req.ClientID == "" || req.LeadPhone == "" {
		writeError(w, http.StatusBadRequest, "context_id, client_id and lead_phone are required", "bad_request")
		return
	}

	rec, err := s.suspensions.Get(r.Context(), req.ContextID)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	if !rec.Owner(req.ClientID, store.NormalizePhone(req.LeadPhone)) {
		writeTaxonomyError(w, contractx.ErrOwnershipMismatch)
		return
	}

	out, err := s.orch.Resume(r.Context(), orchestrator.ResumeRequest{
		TenantKey:  req.ClientID,
		LeadPhone:  req.LeadPhone,
		Messages:   rec.Messages,
		ToolCallID: rec.ToolCallID,
		ToolName:   rec.ToolName,
		ToolResult: req.ToolResult,
	})
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}

	// The record is consumed only after a successful resume so the caller can
	// retry a failed submission with the same token.
	if err := s.suspensions.Delete(r.Context(), req.ContextID); err != nil {
		log.Warn().Err(err).Str("context_id", req.ContextID).Msg("suspension not deleted")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"type":        "message",
		"response":    out.Response,
		"tokens_used": out.TokensUsed,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// writeTaxonomyError maps the error taxonomy onto HTTP statuses and stable
// error_type strings.
func writeTaxonomyError(w http.ResponseWriter, err error) {
	status, kind := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, contractx.ErrConfigNotFound):
		status, kind = http.StatusNotFound, "config_not_found"
	case errors.Is(err, contractx.ErrTenantInactive):
		status, kind = http.StatusForbidden, "tenant_inactive"
	case errors.Is(err, contractx.ErrStoreBinding):
		status, kind = http.StatusBadGateway, "store_binding_error"
	case errors.Is(err, contractx.ErrMissingCredential):
		status, kind = http.StatusUnprocessableEntity, "missing_credential"
	case errors.Is(err, contractx.ErrStoreIO):
		status, kind = http.StatusBadGateway, "store_io_error"
	case errors.Is(err, contractx.ErrCompletionService):
		status, kind = http.StatusBadGateway, "completion_service_error"
	case errors.Is(err, contractx.ErrContextNotFound):
		status, kind = http.StatusNotFound, "context_not_found"
	case errors.Is(err, contractx.ErrOwnershipMismatch):
		status, kind = http.StatusForbidden, "ownership_mismatch"
	}
	writeError(w, status, err.Error(), kind)
}

func writeError(w http.ResponseWriter, status int, msg, kind string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg, ErrorType: kind})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("response encoding failed")
	}
}
