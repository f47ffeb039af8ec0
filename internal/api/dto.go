package api

// StateQueued — состояние в ответе на постановку task.
const StateQueued = "QUEUED"

// TaskAcceptedResponse — ответ на постановку task в очередь.
type TaskAcceptedResponse struct {
	TaskID string `json:"task_id"`
	State  string `json:"state"`
}
