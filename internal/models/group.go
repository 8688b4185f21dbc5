package models

import "time"

// GroupItem identifies a Greengrass group known to this service.
// It is looked up, never created, by the association flow; the task
// outcome fields are written when a task finishes.
type GroupItem struct {
	ID                string
	Name              string
	TemplateName      string
	TemplateVersionNo int
	TaskStatus        TaskStatus
	StatusMessage     string
	VersionID         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

/// FailTask records a task failure on the group. The first failure wins:
// a later attempt to fail an already-failed group keeps the original
// message so the root cause is not masked.
func (g *GroupItem) FailTask(message string) {
	if g.TaskStatus == StatusFailure {
		return
	}
	g.TaskStatus = StatusFailure
	g.StatusMessage = message
}
