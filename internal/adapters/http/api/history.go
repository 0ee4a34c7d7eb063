// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/macrolens/evhist/internal/domain/model"
	"github.com/macrolens/evhist/pkg/metrics"
)

// HistoryDependencies defines the interface for history lookups.
type HistoryDependencies interface {
	Lookup(ctx context.Context, currency, eventName string) (model.Result, error)
}

// HistoryHandler handles history lookup requests.
type HistoryHandler struct {
	deps HistoryDependencies
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(deps HistoryDependencies) *HistoryHandler {
	return &HistoryHandler{deps: deps}
}

// HandleGetHistory handles GET /history?cur=USD&event=CPI+m%2Fm requests.
//
// A miss answers 200 with ok=false; only blank parameters are a client
// error.
func (h *HistoryHandler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_history"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	currency := strings.TrimSpace(r.URL.Query().Get("cur"))
	eventName := strings.TrimSpace(r.URL.Query().Get("event"))
	if currency == "" || eventName == "" {
		metrics.RecordLookupRejected()
		writeError(w, http.StatusBadRequest, "bad_request",
			WrapKind(op, ErrBadRequest, errors.New("cur and event must not be blank")))
		return
	}

	result, err := h.deps.Lookup(r.Context(), currency, eventName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
