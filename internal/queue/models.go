package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a transcription job.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAcquiring    Status = "acquiring"
	StatusAcquired     Status = "acquired"
	StatusExtracting   Status = "extracting"
	StatusExtracted    Status = "extracted"
	StatusSegmenting   Status = "segmenting"
	StatusSegmented    Status = "segmented"
	StatusTranscribing Status = "transcribing"
	StatusTranscribed  Status = "transcribed"
	StatusFormatting   Status = "formatting"
	StatusFormatted    Status = "formatted"
	StatusDelivering   Status = "delivering"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// Strategy identifies how source media is pulled from the gateway.
type Strategy string

const (
	StrategyDirect  Strategy = "direct"
	StrategyChunked Strategy = "chunked"
)

var allStatuses = []Status{
	StatusPending,
	StatusAcquiring,
	StatusAcquired,
	StatusExtracting,
	StatusExtracted,
	StatusSegmenting,
	StatusSegmented,
	StatusTranscribing,
	StatusTranscribed,
	StatusFormatting,
	StatusFormatted,
	StatusDelivering,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusAcquiring:    {},
	StatusExtracting:   {},
	StatusSegmenting:   {},
	StatusTranscribing: {},
	StatusFormatting:   {},
	StatusDelivering:   {},
}

// processingRollbacks maps each in-flight status back to the start of its stage,
// used when stale or interrupted jobs are reclaimed.
var processingRollbacks = map[Status]Status{
	StatusAcquiring:    StatusPending,
	StatusExtracting:   StatusAcquired,
	StatusSegmenting:   StatusExtracted,
	StatusTranscribing: StatusSegmented,
	StatusFormatting:   StatusTranscribed,
	StatusDelivering:   StatusFormatted,
}

var terminalStatuses = map[Status]struct{}{
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Completed  int
	Cancelled  int
}

// Job represents a transcription request persisted in SQLite.
type Job struct {
	ID              int64
	OwnerID         string
	SourceRef       string
	DeclaredSize    int64
	Strategy        Strategy
	Status          Status
	WorkspaceDir    string
	MediaFile       string
	AudioFile       string
	DurationSeconds float64
	SegmentPlanJSON string
	TranscriptFile  string
	FormattedFile   string
	DeliveryChannel string
	DeliveryRef     string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	LastHeartbeat   *time.Time
	CancelRequested bool
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing returns true when the status reflects an in-flight operation.
func (j Job) IsProcessing() bool {
	_, ok := processingStatuses[j.Status]
	return ok
}

// IsProcessingStatus reports whether a status reflects an in-flight operation.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminal reports whether a status ends the job lifecycle.
func IsTerminal(status Status) bool {
	_, ok := terminalStatuses[status]
	return ok
}

// IsTerminal reports whether the job has reached a terminal status.
func (j Job) IsTerminal() bool {
	return IsTerminal(j.Status)
}

// RollbackStatus returns the stage-start status a processing status falls back to.
func RollbackStatus(status Status) (Status, bool) {
	start, ok := processingRollbacks[status]
	return start, ok
}

// InitProgress resets progress fields for a new stage.
// ProgressMessage is set to message, ProgressPercent is reset to 0,
// and ErrorMessage is cleared.
func (j *Job) InitProgress(stage, message string) {
	j.ProgressStage = stage
	j.ProgressMessage = message
	j.ProgressPercent = 0
	j.ErrorMessage = ""
}

// SetProgress updates all three progress fields atomically.
func (j *Job) SetProgress(stage, message string, percent float64) {
	j.ProgressStage = stage
	j.ProgressMessage = message
	j.ProgressPercent = percent
}

// SetProgressComplete sets progress to 100% with the given stage and message.
func (j *Job) SetProgressComplete(stage, message string) {
	j.SetProgress(stage, message, 100)
}

// SetFailed marks the job as failed with the given error message.
// Clears heartbeat and sets progress fields appropriately.
func (j *Job) SetFailed(message string) {
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.ProgressPercent = 0
	j.ProgressMessage = message
	j.LastHeartbeat = nil
	j.ProgressStage = "Failed"
}

// SetCancelled marks the job as cancelled.
func (j *Job) SetCancelled() {
	j.Status = StatusCancelled
	j.ProgressPercent = 0
	j.ProgressMessage = "Cancelled by user"
	j.ProgressStage = "Cancelled"
	j.LastHeartbeat = nil
}
