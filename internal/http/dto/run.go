package dto

import (
	"encoding/json"
	"strconv"
	"time"

	"basegraph.app/harmony/internal/model"
)

type CreateRunRequest struct {
	Goal     string `json:"goal" binding:"required,max=20000"`
	PlanOnly bool   `json:"plan_only"`
}

// Run ids are snowflakes and travel as strings.
type CreateRunResponse struct {
	RunID     string          `json:"run_id"`
	Status    model.RunStatus `json:"status"`
	EventsURL string          `json:"events_url"`
	StreamURL string          `json:"stream_url"`
}

type RunResponse struct {
	RunID      string          `json:"run_id"`
	Goal       string          `json:"goal"`
	Status     model.RunStatus `json:"status"`
	Attempt    int32           `json:"attempt"`
	Error      *string         `json:"error,omitempty"`
	Report     json.RawMessage `json:"report,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

type RunEventResponse struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Fields    json.RawMessage `json:"fields,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type ListRunEventsResponse struct {
	Events      []RunEventResponse `json:"events"`
	NextAfterID int64              `json:"next_after_id"`
}

func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func NewRunResponse(r *model.Run) RunResponse {
	return RunResponse{
		RunID:      FormatID(r.ID),
		Goal:       r.Goal,
		Status:     r.Status,
		Attempt:    r.Attempt,
		Error:      r.Error,
		Report:     r.Report,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		FinishedAt: r.FinishedAt,
	}
}

// NewListRunEventsResponse pages events. NextAfterID stays at afterID when
// the page is empty so clients can keep polling with it.
func NewListRunEventsResponse(events []model.RunEvent, afterID int64) ListRunEventsResponse {
	resp := ListRunEventsResponse{
		Events:      make([]RunEventResponse, 0, len(events)),
		NextAfterID: afterID,
	}
	for _, e := range events {
		resp.Events = append(resp.Events, RunEventResponse{
			ID:        e.ID,
			Type:      e.Type,
			Fields:    e.Fields,
			CreatedAt: e.CreatedAt,
		})
		resp.NextAfterID = e.ID
	}
	return resp
}
