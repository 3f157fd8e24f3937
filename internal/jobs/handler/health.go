package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	httputil "classguard/pkg/http"
	"classguard/pkg/logger"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
	Jobs     int    `json:"jobs,omitempty"`
}

// Pinger is satisfied by *mongo.Client.
type Pinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

type HealthHandler struct {
	db   Pinger
	jobs JobTable
	log  *logger.Logger
}

func NewHealthHandler(db Pinger, jobs JobTable, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		db:   db,
		jobs: jobs,
		log:  log,
	}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := httputil.WriteJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
	}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Health", "operation", "WriteJSON", "error", err)
	}
}

// Ready reports ready once MongoDB answers a ping and at least one job is
// armed.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx, nil); err != nil {
		h.log.Error("Database health check failed",
			"error", err,
			"path", r.URL.Path,
		)
		h.write(w, "Ready", http.StatusServiceUnavailable, HealthResponse{
			Status:   "unavailable",
			Database: "error",
		})
		return
	}

	armed := len(h.jobs.Status())
	if armed == 0 {
		h.write(w, "Ready", http.StatusServiceUnavailable, HealthResponse{
			Status:   "unavailable",
			Database: "ok",
		})
		return
	}

	h.write(w, "Ready", http.StatusOK, HealthResponse{
		Status:   "ready",
		Database: "ok",
		Jobs:     armed,
	})
}

func (h *HealthHandler) write(w http.ResponseWriter, handler string, status int, body HealthResponse) {
	if err := httputil.WriteJSON(w, status, body); err != nil {
		h.log.Error("failed to write JSON response", "handler", handler, "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}
