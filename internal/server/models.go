package server

import "github.com/mohammad-safakhou/researcher/internal/research"

// HTTPError is the error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// StartResearchRequest is the payload of POST /api/research.
type StartResearchRequest struct {
	Query string `json:"query"`
}

// StartResearchResponse carries the id of the accepted task.
type StartResearchResponse struct {
	TaskID string `json:"task_id"`
}

// TaskListResponse wraps task snapshots.
type TaskListResponse struct {
	Tasks []*research.ResearchTask `json:"tasks"`
}

// DoneFrame is the payload of the terminal SSE frame.
type DoneFrame struct {
	TaskID   string          `json:"task_id"`
	Status   research.Status `json:"status"`
	Error    string          `json:"error,omitempty"`
	Degraded bool            `json:"degraded"`
}
