package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/traqcheck/bgv-agent/internal/api/shared"
	"github.com/traqcheck/bgv-agent/internal/audit"
)

// AuditHandler serves the agent activity log of a BGV request.
type AuditHandler struct {
	store  audit.Store
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(store audit.Store, logger *slog.Logger) (*AuditHandler, error) {
	if store == nil {
		return nil, errors.New("audit store cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &AuditHandler{store: store, logger: logger.With("component", "audit_handler")}, nil
}

// AgentLogs handles GET /api/bgv-requests/{id}/agent-logs.
func (h *AuditHandler) AgentLogs(w http.ResponseWriter, r *http.Request) {
	id, err := getPathID(r, "id")
	if err != nil {
		respondWithMappedError(w, r, err)
		return
	}
	limit, err := getLimit(r)
	if err != nil {
		respondWithMappedError(w, r, err)
		return
	}

	entries, err := h.store.Query(r.Context(), audit.Filter{
		BGVRequestID: id,
		Action:       audit.Action(r.URL.Query().Get("action")),
		Limit:        limit,
	})
	if err != nil {
		respondWithMappedError(w, r, err)
		return
	}

	logs := make([]AgentLogResponse, 0, len(entries))
	for _, e := range entries {
		logs = append(logs, toAgentLogResponse(e))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, AgentLogsResponse{BGVRequestID: id, Logs: logs})
}
