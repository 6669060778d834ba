package migration

import "time"

// EntityKind categorizes a migrated object.
type EntityKind string

// Migrated entity kinds, listed in dependency order.
const (
	EntityKindUser       EntityKind = "user"
	EntityKindGroup      EntityKind = "group"
	EntityKindProject    EntityKind = "project"
	EntityKindRepository EntityKind = "repository"
)

// ResultStatus is the terminal or transitional state of one entity attempt.
type ResultStatus string

// Result statuses. Succeeded, failed, and skipped are terminal.
const (
	ResultStatusPending    ResultStatus = "pending"
	ResultStatusInProgress ResultStatus = "in_progress"
	ResultStatusSucceeded  ResultStatus = "succeeded"
	ResultStatusFailed     ResultStatus = "failed"
	ResultStatusSkipped    ResultStatus = "skipped"
)

// Result records the outcome of one entity's migration attempt. The status is
// write-once: the first terminal transition wins and later transitions are
// ignored.
type Result struct {
	EntityKind            EntityKind
	SourceIdentifier      int64
	SourcePath            string
	DestinationIdentifier int64
	Status                ResultStatus
	Reason                string
	Warnings              []string
	StartedAt             time.Time
	FinishedAt            time.Time
}

// NewResult creates a pending result for the entity at dispatch time.
func NewResult(entityKind EntityKind, sourceIdentifier int64, sourcePath string) Result {
	return Result{
		EntityKind:       entityKind,
		SourceIdentifier: sourceIdentifier,
		SourcePath:       sourcePath,
		Status:           ResultStatusPending,
		StartedAt:        time.Now(),
	}
}

// Begin marks the result as actively executing.
func (result *Result) Begin() {
	if result.Status == ResultStatusPending {
		result.Status = ResultStatusInProgress
	}
}

// Finalized reports whether the result reached a terminal status.
func (result *Result) Finalized() bool {
	switch result.Status {
	case ResultStatusSucceeded, ResultStatusFailed, ResultStatusSkipped:
		return true
	default:
		return false
	}
}

// MarkSucceeded finalizes the result with the destination identifier assigned
// by the remote.
func (result *Result) MarkSucceeded(destinationIdentifier int64) {
	if result.Finalized() {
		return
	}
	result.DestinationIdentifier = destinationIdentifier
	result.Status = ResultStatusSucceeded
	result.FinishedAt = time.Now()
}

// MarkFailed finalizes the result with a failure reason.
func (result *Result) MarkFailed(failureReason string) {
	if result.Finalized() {
		return
	}
	result.Status = ResultStatusFailed
	result.Reason = failureReason
	result.FinishedAt = time.Now()
}

// MarkSkipped finalizes the result as deliberately not migrated. A skipped
// entity may still carry a destination identifier when the destination already
// held an equivalent entity.
func (result *Result) MarkSkipped(skipReason string, destinationIdentifier int64) {
	if result.Finalized() {
		return
	}
	result.Status = ResultStatusSkipped
	result.Reason = skipReason
	result.DestinationIdentifier = destinationIdentifier
	result.FinishedAt = time.Now()
}

// AddWarning attaches a non-fatal observation to the result.
func (result *Result) AddWarning(warningText string) {
	result.Warnings = append(result.Warnings, warningText)
}
