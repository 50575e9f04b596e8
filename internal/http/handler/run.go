package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"basegraph.app/harmony/common/id"
	"basegraph.app/harmony/common/logger"
	"basegraph.app/harmony/internal/http/dto"
	"basegraph.app/harmony/internal/model"
	"basegraph.app/harmony/internal/queue"
	"basegraph.app/harmony/internal/store"
)

const maxEventPage = 1000

type RunHandler struct {
	runs        store.RunStore
	events      store.RunEventStore
	producer    queue.Producer
	traceHeader string
}

func NewRunHandler(runs store.RunStore, events store.RunEventStore, producer queue.Producer, traceHeader string) *RunHandler {
	return &RunHandler{
		runs:        runs,
		events:      events,
		producer:    producer,
		traceHeader: traceHeader,
	}
}

// Create records a queued run and hands it to the workers.
func (h *RunHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid run request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	goal := strings.TrimSpace(req.Goal)
	if goal == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "goal must not be blank"})
		return
	}

	run, err := h.runs.Create(ctx, &model.Run{
		ID:      id.New(),
		Goal:    goal,
		Status:  model.RunStatusQueued,
		Attempt: 1,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create run", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create run"})
		return
	}

	job := queue.PlanJob{
		TaskType: queue.TaskTypeRun,
		RunID:    run.ID,
		Goal:     goal,
		Attempt:  1,
	}
	if req.PlanOnly {
		job.TaskType = queue.TaskTypePlan
	}
	if traceID := h.traceID(c); traceID != "" {
		job.TraceID = &traceID
	}

	if err := h.producer.Enqueue(ctx, job); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue run", "error", err, "run_id", run.ID)
		msg := "failed to enqueue run"
		if finishErr := h.runs.Finish(ctx, run.ID, model.RunStatusFailed, &msg, nil); finishErr != nil {
			slog.WarnContext(ctx, "failed to mark unqueued run failed", "error", finishErr, "run_id", run.ID)
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": msg})
		return
	}

	runID := dto.FormatID(run.ID)
	slog.InfoContext(ctx, "run queued", "run_id", run.ID, "plan_only", req.PlanOnly)
	c.JSON(http.StatusAccepted, dto.CreateRunResponse{
		RunID:     runID,
		Status:    run.Status,
		EventsURL: fmt.Sprintf("/api/v1/runs/%s/events", runID),
		StreamURL: fmt.Sprintf("/api/v1/runs/%s/stream", runID),
	})
}

func (h *RunHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	runID, ok := runIDParam(c)
	if !ok {
		return
	}

	run, err := h.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to get run", "error", err, "run_id", runID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get run"})
		return
	}

	c.JSON(http.StatusOK, dto.NewRunResponse(run))
}

// ListEvents pages through the persisted events of a run, oldest first.
// Query: after_id (exclusive cursor), limit.
func (h *RunHandler) ListEvents(c *gin.Context) {
	ctx := c.Request.Context()

	runID, ok := runIDParam(c)
	if !ok {
		return
	}

	afterID, err := strconv.ParseInt(c.DefaultQuery("after_id", "0"), 10, 64)
	if err != nil || afterID < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after_id"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	limit = min(limit, maxEventPage)

	events, err := h.events.ListByRun(ctx, runID, afterID, int32(limit))
	if err != nil {
		slog.ErrorContext(ctx, "failed to list run events", "error", err, "run_id", runID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list run events"})
		return
	}

	c.JSON(http.StatusOK, dto.NewListRunEventsResponse(events, afterID))
}

func (h *RunHandler) traceID(c *gin.Context) string {
	if h.traceHeader != "" {
		if v := c.GetHeader(h.traceHeader); v != "" {
			return v
		}
	}
	return logger.TraceID(c.Request.Context())
}

func runIDParam(c *gin.Context) (int64, bool) {
	runID, err := id.Parse(c.Param("run_id"))
	if err != nil || runID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run_id"})
		return 0, false
	}
	return runID, true
}
