package api

import (
	"sort"

	"quill/internal/queue"
	"quill/internal/stage"
	"quill/internal/workflow"
)

// FromJob converts a queue record to its API representation.
func FromJob(job *queue.Job) JobItem {
	if job == nil {
		return JobItem{}
	}

	dto := JobItem{
		ID:              job.ID,
		OwnerID:         job.OwnerID,
		SourceRef:       job.SourceRef,
		Status:          string(job.Status),
		Strategy:        string(job.Strategy),
		DeclaredSize:    job.DeclaredSize,
		DurationSeconds: job.DurationSeconds,
		Progress: JobProgress{
			Stage:   job.ProgressStage,
			Percent: job.ProgressPercent,
			Message: job.ProgressMessage,
		},
		ErrorMessage:    job.ErrorMessage,
		DeliveryChannel: job.DeliveryChannel,
		DeliveryRef:     job.DeliveryRef,
		CancelRequested: job.CancelRequested,
	}
	if !job.CreatedAt.IsZero() {
		dto.CreatedAt = job.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !job.UpdatedAt.IsZero() {
		dto.UpdatedAt = job.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromJobs converts a slice of queue records into API DTOs.
func FromJobs(jobs []*queue.Job) []JobItem {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]JobItem, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromWorkflowStatus converts a worker pool summary into its API form.
// Stage health entries come back sorted by name for stable output.
func FromWorkflowStatus(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:    summary.Running,
		Workers:    summary.Workers,
		QueueStats: make(map[string]int, len(summary.QueueStats)),
		LastError:  summary.LastError,
	}
	for key, value := range summary.QueueStats {
		status.QueueStats[string(key)] = value
	}
	if summary.LastJob != nil {
		item := FromJob(summary.LastJob)
		status.LastJob = &item
	}
	status.StageHealth = FromStageHealth(summary.StageHealth)
	return status
}

// FromStageHealth flattens the health map into a sorted slice.
func FromStageHealth(health map[string]stage.Health) []StageHealth {
	if len(health) == 0 {
		return nil
	}
	names := make([]string, 0, len(health))
	for name := range health {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]StageHealth, 0, len(names))
	for _, name := range names {
		entry := health[name]
		out = append(out, StageHealth{Name: name, Ready: entry.Ready, Detail: entry.Detail})
	}
	return out
}
