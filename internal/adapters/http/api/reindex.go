// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
)

// ReindexDependencies defines the interface for admin reindex requests.
type ReindexDependencies interface {
	RequestReindex(ctx context.Context) bool
}

// ReindexHandler handles admin reindex requests.
type ReindexHandler struct {
	deps ReindexDependencies
}

// NewReindexHandler creates a new reindex handler.
func NewReindexHandler(deps ReindexDependencies) *ReindexHandler {
	return &ReindexHandler{deps: deps}
}

// HandlePostReindex handles POST /reindex requests. The rebuild runs
// asynchronously; a saturated refresh queue answers 429.
func (h *ReindexHandler) HandlePostReindex(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_reindex"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	if ok := h.deps.RequestReindex(r.Context()); !ok {
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
