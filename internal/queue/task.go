package queue

type TaskType string

const (
	// TaskTypeRun plans a goal and executes the winning graph.
	TaskTypeRun TaskType = "run"
	// TaskTypePlan only plans; the graph is reported but not executed.
	TaskTypePlan TaskType = "plan"
)

// PlanJob asks a worker to handle one run.
type PlanJob struct {
	TaskType TaskType
	RunID    int64
	Goal     string
	TraceID  *string
	Attempt  int
}
