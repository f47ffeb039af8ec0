package api

import (
	"net/http"
	"strconv"

	"github.com/shaiso/menustats/internal/analytics"
	"github.com/shaiso/menustats/internal/dispatch"
)

// RecomputeRestaurantStats ставит пересчёт статистики ресторана в очередь.
// POST /analytics/restaurants/{restaurant_id}/recompute
func (h *Handler) RecomputeRestaurantStats(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := strconv.ParseInt(r.PathValue("restaurant_id"), 10, 64)
	if err != nil || restaurantID < 1 {
		BadRequest(w, "restaurant_id must be a positive integer")
		return
	}

	taskID, err := h.dispatcher.Enqueue(r.Context(), analytics.TaskRecomputeRestaurantStats, restaurantID)
	if err != nil {
		h.logger.Error("failed to enqueue recompute",
			"restaurant_id", restaurantID,
			"error", err,
		)
		ServiceUnavailable(w, "task queue unavailable")
		return
	}

	Accepted(w, TaskAcceptedResponse{
		TaskID: taskID,
		State:  StateQueued,
	})
}

// GetTaskStatus возвращает состояние task.
// GET /analytics/tasks/{task_id}
//
// Неизвестный task_id — PENDING, а не 404.
func (h *Handler) GetTaskStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := h.dispatcher.Status(r.Context(), r.PathValue("task_id"))
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, dispatch.Render(rec))
}
