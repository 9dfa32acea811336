package domain

import "time"

// ExecutionMetricsSnapshot is a flattened, storable form of ExecutionMetrics
// written to the artifact store alongside a completed step's build/test
// logs, for later inspection. It is derived state, never read back into a
// running StepExecutor.
type ExecutionMetricsSnapshot struct {
	JobID         string
	StepID        string
	RecordedAt    time.Time
	LLMCalls      int
	FilesCreated  int
	FilesModified int
	FilesDeleted  int
	BuildAttempts int
	TestAttempts  int
	AnalysisMS    int64
	CodegenMS     int64
	BuildMS       int64
	TestMS        int64
}
