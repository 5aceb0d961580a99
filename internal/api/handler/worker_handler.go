package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/scribe-dispatch/internal/health"
)

// Pinger is satisfied by ledger backends with a remote store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WorkerHandler serves the worker reporting channel and the status views
// derived from it.
type WorkerHandler struct {
	agg    *health.Aggregator
	db     Pinger
	window time.Duration
	now    func() time.Time
	logger *zap.Logger

	onReport func()
	onStatus func(known, online int)
}

// WorkerHandlerOptions configures NewWorkerHandler. DB may be nil, in which
// case the database is always reported ok.
type WorkerHandlerOptions struct {
	Aggregator   *health.Aggregator
	DB           Pinger
	OnlineWindow time.Duration
	Now          func() time.Time
	OnReport     func()
	OnStatus     func(known, online int)
}

func NewWorkerHandler(opts WorkerHandlerOptions, logger *zap.Logger) *WorkerHandler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OnReport == nil {
		opts.OnReport = func() {}
	}
	if opts.OnStatus == nil {
		opts.OnStatus = func(int, int) {}
	}
	return &WorkerHandler{
		agg:      opts.Aggregator,
		db:       opts.DB,
		window:   opts.OnlineWindow,
		now:      opts.Now,
		logger:   logger,
		onReport: opts.OnReport,
		onStatus: opts.OnStatus,
	}
}

// Report handles POST /healthcheck
//
// The body is an arbitrary JSON object describing the worker's resources.
// It must carry "worker_id" or "hostname".
//
// @Summary  Ingest a worker liveness report
// @Tags     workers
// @Accept   json
// @Produce  json
// @Success  200  {object}  map[string]string
// @Failure  400  {object}  map[string]string
// @Router   /healthcheck [post]
func (h *WorkerHandler) Report(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload == nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	workerID, err := health.WorkerID(payload)
	if err == nil {
		err = h.agg.Record(workerID, payload)
	}
	if err != nil {
		h.logger.Warn("rejected worker report", zap.Error(err))
		mapError(w, err)
		return
	}

	h.onReport()
	respondJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

// Snapshot handles GET /healthcheck (admin only)
//
// @Summary  Full retained report history per worker
// @Tags     workers
// @Produce  json
// @Security BearerAuth
// @Success  200  {object}  map[string]any
// @Failure  401  {object}  map[string]string
// @Failure  403  {object}  map[string]string
// @Router   /healthcheck [get]
func (h *WorkerHandler) Snapshot(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"result": h.agg.Snapshot()})
}

type statusResponse struct {
	Backend       string `json:"backend"`
	Database      string `json:"database"`
	Workers       string `json:"workers"`
	WorkersOnline int    `json:"workers_online"`
}

// Status handles GET /status
//
// Workers are not critical: the response is 503 only when the database
// check fails.
//
// @Summary  Public backend, database and worker status
// @Tags     system
// @Produce  json
// @Success  200  {object}  statusResponse
// @Failure  503  {object}  statusResponse
// @Router   /status [get]
func (h *WorkerHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Backend: health.StatusOK, Database: health.StatusOK}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := h.db.Ping(ctx)
		cancel()
		if err != nil {
			h.logger.Warn("status: database check failed", zap.Error(err))
			resp.Database = health.StatusError
		}
	}

	fleet := h.agg.Status(h.now(), h.window)
	resp.Workers = fleet.Status
	resp.WorkersOnline = fleet.Online
	h.onStatus(len(fleet.Workers), fleet.Online)

	code := http.StatusOK
	if resp.Database != health.StatusOK {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, resp)
}
