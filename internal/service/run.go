package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/harmony/common/id"
	"basegraph.app/harmony/common/logger"
	"basegraph.app/harmony/internal/artifact"
	"basegraph.app/harmony/internal/discovery"
	"basegraph.app/harmony/internal/engine"
	"basegraph.app/harmony/internal/events"
	"basegraph.app/harmony/internal/model"
	"basegraph.app/harmony/internal/planner"
	"basegraph.app/harmony/internal/store"
)

// Planner produces the graph a run executes.
type Planner interface {
	Plan(ctx context.Context, goal string, pctx discovery.PlanContext, em *events.Emitter) (*planner.Plan, error)
}

// Executor runs a planned graph.
type Executor interface {
	Run(ctx context.Context, goal string, g *artifact.Graph, em *events.Emitter) (*engine.Result, error)
}

type RunRequest struct {
	RunID    int64 // zero allocates a new id
	Goal     string
	Context  discovery.PlanContext
	PlanOnly bool
	Attempt  int32
}

// RunService plans a goal and executes the winning graph.
type RunService interface {
	Run(ctx context.Context, req RunRequest) (*RunReport, error)
}

type RunServiceDeps struct {
	Planner  Planner
	Executor Executor
	Sink     events.Sink        // optional
	Runs     store.RunStore     // optional
	Contents store.ContentStore // optional
}

type runService struct {
	planner  Planner
	executor Executor
	sink     events.Sink
	runs     store.RunStore
	contents store.ContentStore
}

func NewRunService(deps RunServiceDeps) RunService {
	return &runService{
		planner:  deps.Planner,
		executor: deps.Executor,
		sink:     deps.Sink,
		runs:     deps.Runs,
		contents: deps.Contents,
	}
}

func (s *runService) Run(ctx context.Context, req RunRequest) (*RunReport, error) {
	if req.Goal == "" {
		return nil, NewFatalError(errors.New("goal is required"))
	}
	runID := req.RunID
	if runID == 0 {
		runID = id.New()
	}
	attempt := max(req.Attempt, 1)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RunID:     &runID,
		Component: "harmony.service.run",
	})
	span := logger.StartSpan(ctx, "service.run")
	defer span.End()
	ctx = span.Context()

	start := time.Now()
	em := events.NewEmitter(s.sink, runID)
	report := &RunReport{RunID: runID, Goal: req.Goal, Attempt: attempt}

	if err := s.track(ctx, runID, req.Goal, attempt); err != nil {
		return nil, NewRetryableError(fmt.Errorf("recording run: %w", err))
	}

	slog.InfoContext(ctx, "run started",
		"goal", logger.Truncate(req.Goal, 200),
		"plan_only", req.PlanOnly,
		"attempt", attempt)

	plan, err := s.planner.Plan(ctx, req.Goal, req.Context, em)
	if err != nil {
		span.RecordError(err)
		return s.fail(ctx, em, report, start, fmt.Errorf("planning: %w", err))
	}
	report.Plan = newPlanReport(plan)

	if req.PlanOnly {
		report.Status = model.RunStatusSucceeded
		return s.finish(ctx, em, report, start, nil)
	}

	s.setStatus(ctx, runID, model.RunStatusExecuting, attempt)
	result, err := s.executor.Run(ctx, req.Goal, plan.Graph, em)
	if result != nil {
		report.Execution = newExecutionReport(result)
		report.Contents = s.saveContents(ctx, runID, result)
	}
	if err != nil {
		span.RecordError(err)
		return s.fail(ctx, em, report, start, fmt.Errorf("executing: %w", err))
	}

	report.Status = model.RunStatusSucceeded
	if len(result.Failed()) > 0 || len(result.Blocked()) > 0 || len(result.Pending()) > 0 {
		report.Status = model.RunStatusPartial
	}
	return s.finish(ctx, em, report, start, nil)
}

func (s *runService) track(ctx context.Context, runID int64, goal string, attempt int32) error {
	if s.runs == nil {
		return nil
	}
	if _, err := s.runs.Create(ctx, &model.Run{ID: runID, Goal: goal, Status: model.RunStatusQueued, Attempt: attempt}); err != nil {
		return err
	}
	s.setStatus(ctx, runID, model.RunStatusPlanning, attempt)
	return nil
}

func (s *runService) setStatus(ctx context.Context, runID int64, status model.RunStatus, attempt int32) {
	if s.runs == nil {
		return
	}
	if err := s.runs.SetStatus(ctx, runID, status, attempt); err != nil {
		slog.WarnContext(ctx, "failed to update run status", "status", status, "error", err)
	}
}

func (s *runService) saveContents(ctx context.Context, runID int64, result *engine.Result) []model.ContentRef {
	if s.contents == nil {
		return nil
	}
	var refs []model.ContentRef
	for _, artifactID := range result.Succeeded() {
		content, _ := result.Content(artifactID)
		if content == "" {
			continue
		}
		ref, err := s.contents.Write(ctx, runID, artifactID, content)
		if err != nil {
			slog.WarnContext(ctx, "failed to store artifact content",
				"artifact_id", artifactID,
				"error", err)
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

func (s *runService) fail(ctx context.Context, em *events.Emitter, report *RunReport, start time.Time, err error) (*RunReport, error) {
	runErr := Classify(err)
	report.Status = model.RunStatusFailed
	report.Error = err.Error()
	report.Retryable = runErr.Retryable
	return s.finish(ctx, em, report, start, runErr)
}

func (s *runService) finish(ctx context.Context, em *events.Emitter, report *RunReport, start time.Time, runErr *RunError) (*RunReport, error) {
	report.DurationMS = time.Since(start).Milliseconds()

	if s.runs != nil {
		body, err := json.Marshal(report)
		if err != nil {
			slog.WarnContext(ctx, "failed to encode run report", "error", err)
		}
		var errMsg *string
		if report.Error != "" {
			errMsg = logger.Ptr(report.Error)
		}
		if err := s.runs.Finish(ctx, report.RunID, report.Status, errMsg, body); err != nil {
			slog.WarnContext(ctx, "failed to record run result", "error", err)
		}
	}

	fields := events.Fields{
		"status":      string(report.Status),
		"attempt":     report.Attempt,
		"duration_ms": report.DurationMS,
	}
	if runErr != nil {
		fields["error"] = report.Error
		fields["retryable"] = runErr.Retryable
	}
	em.Emit(ctx, events.RunFinished, fields)

	if runErr != nil {
		slog.ErrorContext(ctx, "run failed",
			"error", runErr.Err,
			"retryable", runErr.Retryable,
			"duration_ms", report.DurationMS)
		return report, runErr
	}

	slog.InfoContext(ctx, "run completed",
		"status", report.Status,
		"duration_ms", report.DurationMS)
	return report, nil
}
