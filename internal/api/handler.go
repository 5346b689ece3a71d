// Package api exposes the trip cache over HTTP.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"tripstore/internal/domain"
	"tripstore/internal/metrics"
	"tripstore/internal/service"
)

// Handler serves the trip cache API.
type Handler struct {
	coordinator *service.Coordinator
	reloader    *service.Reloader
	trips       domain.TripStore
	metrics     *metrics.Collector
	logger      *slog.Logger
}

func NewHandler(coordinator *service.Coordinator, reloader *service.Reloader, trips domain.TripStore, collector *metrics.Collector, logger *slog.Logger) *Handler {
	return &Handler{
		coordinator: coordinator,
		reloader:    reloader,
		trips:       trips,
		metrics:     collector,
		logger:      logger.With("component", "api"),
	}
}

// Router builds the chi router with middleware and all routes mounted.
func (h *Handler) Router(allowedOrigins []string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", h.health)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/searches", h.startSearch)
		r.Post("/searches/more", h.searchMore)
		r.Post("/searches/favorite", h.toggleFavorite)
		r.Get("/trips", h.listTrips)
		r.Get("/trips/{id}", h.getTrip)
		r.Post("/trips/{id}/reload", h.reloadTrip)
		r.Delete("/trips/{id}", h.deleteTrip)
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// startSearch kicks off a new trip search. The search runs asynchronously;
// clients poll GET /v1/trips for results.
func (h *Handler) startSearch(w http.ResponseWriter, r *http.Request) {
	var q domain.TripQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, h.logger, domain.ErrValidation("decode query: %v", err))
		return
	}
	if err := validateQuery(q); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.coordinator.Search(q)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "searching"})
}

func validateQuery(q domain.TripQuery) error {
	if q.From.Name == "" && !q.From.HasID() && !q.From.HasCoords() {
		return domain.ErrValidation("from location is empty")
	}
	if q.To.Name == "" && !q.To.HasID() && !q.To.HasCoords() {
		return domain.ErrValidation("to location is empty")
	}
	if q.Time.IsZero() {
		return domain.ErrValidation("query time is required")
	}
	return nil
}

type searchMoreRequest struct {
	Later bool `json:"later"`
}

func (h *Handler) searchMore(w http.ResponseWriter, r *http.Request) {
	var req searchMoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, domain.ErrValidation("decode request: %v", err))
		return
	}
	if err := h.coordinator.SearchMore(req.Later); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "searching"})
}

type tripsResponse struct {
	Trips     []*domain.Trip        `json:"trips"`
	MoreState domain.QueryMoreState `json:"moreState"`
	Favorite  bool                  `json:"favorite"`
}

func (h *Handler) listTrips(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, tripsResponse{
		Trips:     h.coordinator.Trips(),
		MoreState: h.coordinator.MoreState(),
		Favorite:  h.coordinator.IsFavorite(),
	})
}

func (h *Handler) getTrip(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trip, err := h.coordinator.FindTripByID(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// reloadTrip re-fetches a trip from the provider for fresh realtime data
// and writes the result back to the cache.
func (h *Handler) reloadTrip(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	q, ok := h.coordinator.LastQuery()
	if !ok {
		writeError(w, h.logger, domain.ErrState("no query to reload from: search first"))
		return
	}
	old, err := h.coordinator.FindTripByID(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	fresh, err := h.reloader.Reload(r.Context(), q, old)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if _, err := h.trips.WriteTrip(r.Context(), fresh, h.coordinator.Network()); err != nil {
		h.logger.Warn("cache write after reload failed", "trip", fresh.ID, "error", err)
	}
	writeJSON(w, http.StatusOK, fresh)
}

func (h *Handler) deleteTrip(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.trips.DeleteTrip(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	favorite, err := h.coordinator.ToggleFavorite(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"favorite": favorite})
}
