package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Metrics(),
		Logging(h.logger),
	)

	// Analytics
	mux.Handle("POST /analytics/restaurants/{restaurant_id}/recompute", chain(http.HandlerFunc(h.RecomputeRestaurantStats)))
	mux.Handle("GET /analytics/tasks/{task_id}", chain(http.HandlerFunc(h.GetTaskStatus)))
}
