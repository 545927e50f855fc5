package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"announcement_dispatcher/internal/app"
	"announcement_dispatcher/internal/domain/delivery"
	"announcement_dispatcher/internal/domain/notification"
	idb "announcement_dispatcher/internal/infra/database"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Announcements is the read side the ops endpoints expose.
type Announcements interface {
	ListRecentActive(ctx context.Context) ([]*notification.Notification, error)
	ActivationState(ctx context.Context, id int64) (*app.ActivationState, error)
}

type handler struct {
	db            Pinger
	announcements Announcements
	logger        *logrus.Entry
}

// NewRouter builds the ops router: health checks, prometheus metrics and the
// read-only activation endpoints polled by the portal.
func NewRouter(db Pinger, announcements Announcements, logger *logrus.Entry) *chi.Mux {
	h := &handler{db: db, announcements: announcements, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.healthCheck)
		r.Get("/db", h.healthCheckDB)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/notifications", func(r chi.Router) {
		r.Get("/active", h.listActive)
		r.Get("/{id}/state", h.activationState)
	})
	return r
}

// NewServer wraps the router in an http.Server with conservative timeouts.
func NewServer(addr string, router http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
}

func (h *handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handler) healthCheckDB(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		h.logger.WithError(err).Warn("Database health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "database": "connected"})
}

type notificationResponse struct {
	ID      int64     `json:"id"`
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	Message string    `json:"message"`
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
	Enabled bool      `json:"enabled"`
}

type channelStateResponse struct {
	Channel delivery.Channel `json:"channel"`
	State   delivery.State   `json:"state"`
}

type activationStateResponse struct {
	Notification notificationResponse   `json:"notification"`
	Active       bool                   `json:"active"`
	Channels     []channelStateResponse `json:"channels"`
}

func toNotificationResponse(n *notification.Notification) notificationResponse {
	return notificationResponse{
		ID:      n.ID,
		Title:   n.Title,
		Body:    n.Body,
		Message: n.Message(),
		StartAt: n.StartAt.UTC(),
		EndAt:   n.EndAt.UTC(),
		Enabled: n.Enabled,
	}
}

func (h *handler) listActive(w http.ResponseWriter, r *http.Request) {
	list, err := h.announcements.ListRecentActive(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list active notifications")
		writeError(w, http.StatusInternalServerError, "unable to list active notifications")
		return
	}
	out := make([]notificationResponse, 0, len(list))
	for _, n := range list {
		out = append(out, toNotificationResponse(n))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": out, "count": len(out)})
}

func (h *handler) activationState(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	state, err := h.announcements.ActivationState(r.Context(), id)
	if err != nil {
		if errors.Is(err, idb.ErrNotificationNotFound) {
			writeError(w, http.StatusNotFound, "notification not found")
			return
		}
		h.logger.WithError(err).WithField("notification_id", id).Error("Failed to compute activation state")
		writeError(w, http.StatusInternalServerError, "unable to compute activation state")
		return
	}

	resp := activationStateResponse{
		Notification: toNotificationResponse(state.Notification),
		Active:       state.Active,
		Channels:     make([]channelStateResponse, 0, len(state.Channels)),
	}
	for _, c := range state.Channels {
		resp.Channels = append(resp.Channels, channelStateResponse{Channel: c.Channel, State: c.State})
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
