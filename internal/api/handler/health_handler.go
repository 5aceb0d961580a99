package handler

import "net/http"

// HealthHandler serves the liveness probe endpoint.
type HealthHandler struct {
	pending func() int
}

// NewHealthHandler builds the probe. pending reports the dispatcher backlog;
// nil leaves it out of the response.
func NewHealthHandler(pending func() int) *HealthHandler {
	return &HealthHandler{pending: pending}
}

type livenessResponse struct {
	Status  string `json:"status"`
	Pending *int   `json:"pending,omitempty"`
}

// Health handles GET /health
//
// @Summary  Liveness probe
// @Tags     system
// @Produce  json
// @Success  200  {object}  livenessResponse
// @Router   /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	resp := livenessResponse{Status: "ok"}
	if h.pending != nil {
		n := h.pending()
		resp.Pending = &n
	}
	respondJSON(w, http.StatusOK, resp)
}
