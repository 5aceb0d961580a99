package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/notifyhub/scribe-dispatch/internal/api/middleware"
	"github.com/notifyhub/scribe-dispatch/internal/domain"
	"github.com/notifyhub/scribe-dispatch/internal/service"
)

// NotificationHandler exposes raw enqueue and queue inspection.
type NotificationHandler struct {
	svc    *service.NotificationService
	logger *zap.Logger
}

func NewNotificationHandler(svc *service.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, logger: logger}
}

// Create handles POST /api/v1/notifications
//
// 202 means accepted into the buffer (or dropped because delivery is not
// configured); it never means delivered.
//
// @Summary     Enqueue a raw notification
// @Tags        notifications
// @Accept      json
// @Produce     json
// @Param       body  body      domain.EnqueueRequest  true  "Notification payload"
// @Success     202   {object}  map[string]any
// @Failure     422   {object}  map[string]string
// @Router      /api/v1/notifications [post]
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.svc.Enqueue(req); err != nil {
		h.logger.Warn("enqueue notification failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]any{
		"status":         "accepted",
		"correlation_id": apimw.GetCorrelationID(r.Context()),
	})
}

// CreateBatch handles POST /api/v1/notifications/batch
//
// @Summary  Enqueue up to 1000 raw notifications; all or nothing on validation
// @Tags     notifications
// @Accept   json
// @Produce  json
// @Param    body  body      domain.EnqueueBatchRequest  true  "Batch payload"
// @Success  202   {object}  map[string]any
// @Failure  422   {object}  map[string]string
// @Router   /api/v1/notifications/batch [post]
func (h *NotificationHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req domain.EnqueueBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		mapError(w, err)
		return
	}

	for _, n := range req.Notifications {
		if err := h.svc.Enqueue(n); err != nil {
			h.logger.Error("enqueue batch entry failed", zap.Error(err))
			mapError(w, err)
			return
		}
	}

	respondJSON(w, http.StatusAccepted, map[string]any{"accepted": len(req.Notifications)})
}

// TestSet handles POST /api/v1/notifications/test
//
// Admin only. Sends one notification of every templated kind to the given
// address; replaying a run_id sends only the kinds that run has not sent.
//
// @Summary  Send one notification of each kind
// @Tags     notifications
// @Accept   json
// @Produce  json
// @Param    body  body      domain.TestNotificationsRequest  true  "Recipient and optional run id"
// @Success  202   {object}  service.TestSetResult
// @Failure  422   {object}  map[string]string
// @Router   /api/v1/notifications/test [post]
func (h *NotificationHandler) TestSet(w http.ResponseWriter, r *http.Request) {
	var req domain.TestNotificationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := h.svc.SendTestSet(r.Context(), req)
	if err != nil {
		h.logger.Error("test notifications failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Strings("sent", kindNames(res.Sent)),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, res)
}

func kindNames(kinds []domain.Kind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

// Queue handles GET /api/v1/queue
//
// @Summary  Pending notification count
// @Tags     notifications
// @Produce  json
// @Success  200  {object}  map[string]int
// @Router   /api/v1/queue [get]
func (h *NotificationHandler) Queue(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]int{"pending": h.svc.Pending()})
}
