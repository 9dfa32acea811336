package domain

import "time"

// FileChangeType enumerates the kinds of file-level action a step can apply.
type FileChangeType string

const (
	FileCreated  FileChangeType = "created"
	FileModified FileChangeType = "modified"
	FileDeleted  FileChangeType = "deleted"
)

// FileChange records one file-level mutation applied during a step, in
// enough detail to roll it back. Modified without OldContent, or Deleted
// without OldContent, are rollback-skippable: the Rollback call will not
// attempt to write anything for them.
type FileChange struct {
	Type       FileChangeType
	Path       string
	OldContent *string
	NewContent *string
}

// ActionType enumerates the file-level operations a StepActionPlan action
// can request.
type ActionType string

const (
	ActionCreateFile ActionType = "create_file"
	ActionModifyFile ActionType = "modify_file"
	ActionDeleteFile ActionType = "delete_file"
)

// CodeGenerationRequest describes the content an action needs. Content may
// be supplied literally, or left empty to mean "the generator should
// synthesize it".
type CodeGenerationRequest struct {
	Instructions string
	Content      string
}

// StepAction is one file-level operation inside a StepActionPlan.
type StepAction struct {
	Type     ActionType
	FilePath string
	Request  CodeGenerationRequest
}

// StepActionPlan is the analyzer's output: the ordered file actions needed
// to implement a PlanStep, plus whether tests should be generated.
type StepActionPlan struct {
	Actions       []StepAction
	RequiresTests bool
	MainFile      string
	TestFile      string
}

// BuildResult is the outcome of BuildVerifier.VerifyBuild.
type BuildResult struct {
	Success      bool
	Attempts     int
	Errors       []string
	FixesApplied int
	Duration     time.Duration
	ToolAvailable bool
	MissingTool  string
}

// TestValidationResult is the outcome of TestValidator.RunAndValidate.
type TestValidationResult struct {
	AllPassed    bool
	Total        int
	Passed       int
	Failed       int
	Skipped      int
	Attempts     int
	FixesApplied int
	Duration     time.Duration
}

// ExecutionMetrics accumulates the counters and durations produced by one
// step execution attempt. All counters are monotonically non-decreasing
// within a single attempt.
type ExecutionMetrics struct {
	LLMCalls       int
	FilesCreated   int
	FilesModified  int
	FilesDeleted   int
	BuildAttempts  int
	TestAttempts   int
	AnalysisTime   time.Duration
	CodegenTime    time.Duration
	BuildTime      time.Duration
	TestTime       time.Duration
}

// StepExecutionResult is the output of one StepExecutor attempt.
type StepExecutionResult struct {
	Success     bool
	Error       string
	Changes     []FileChange
	BuildResult *BuildResult
	TestResult  *TestValidationResult
	ActionPlan  StepActionPlan
	Duration    time.Duration
	Metrics     ExecutionMetrics
}
