package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in-progress"
	StatusInReview   TaskStatus = "in-review"
	StatusBlocked    TaskStatus = "blocked"
	StatusCompleted  TaskStatus = "completed"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

type RecurrenceType string

const (
	RecurrenceNone    RecurrenceType = "none"
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
)

const (
	TitleMaxLen       = 500
	DescriptionMaxLen = 5000
)

// Recurrence describes how a root task spawns follow-up occurrences.
type Recurrence struct {
	Type     RecurrenceType `json:"type"`
	Interval int            `json:"interval"`
	EndDate  *time.Time     `json:"endDate,omitempty"`
}

type Subtask struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    Priority   `json:"priority"`
	Status      TaskStatus `json:"status"`
	// Completed is the legacy flag, kept in sync with Status == StatusCompleted.
	Completed bool `json:"completed"`
	// PreviousStatus records the last non-terminal status so that
	// un-completing restores where the task left off.
	PreviousStatus        TaskStatus  `json:"previousStatus,omitempty"`
	DueDate               time.Time   `json:"dueDate"`
	Tags                  []string    `json:"tags"`
	Subtasks              []Subtask   `json:"subtasks"`
	OwnerID               string      `json:"ownerId"`
	AssignedTo            []string    `json:"assignedTo"`
	DependsOn             []string    `json:"dependsOn"`
	Blocks                []string    `json:"blocks"`
	ParentRecurringTaskID *string     `json:"parentRecurringTaskId,omitempty"`
	Recurrence            *Recurrence `json:"recurrence,omitempty"`
	CreatedAt             time.Time   `json:"createdAt"`
	UpdatedAt             time.Time   `json:"updatedAt"`
}

func NewTask(ownerID, title, description string) *Task {
	now := time.Now()
	return &Task{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
		Priority:    PriorityMedium,
		Status:      StatusTodo,
		DueDate:     now,
		Tags:        make([]string, 0),
		Subtasks:    make([]Subtask, 0),
		OwnerID:     ownerID,
		AssignedTo:  make([]string, 0),
		DependsOn:   make([]string, 0),
		Blocks:      make([]string, 0),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func NewSubtask(title string) Subtask {
	return Subtask{
		ID:    uuid.New().String(),
		Title: title,
	}
}

// Terminal reports whether a status ends the task's active life.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted
}

func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

func ValidStatus(s TaskStatus) bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusInReview, StatusBlocked, StatusCompleted:
		return true
	}
	return false
}

// Validate checks the field constraints that hold for every persisted task.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("task title is required")
	}
	if len(t.Title) > TitleMaxLen {
		return fmt.Errorf("task title exceeds %d characters", TitleMaxLen)
	}
	if len(t.Description) > DescriptionMaxLen {
		return fmt.Errorf("task description exceeds %d characters", DescriptionMaxLen)
	}
	if !ValidPriority(t.Priority) {
		return fmt.Errorf("invalid priority %q", t.Priority)
	}
	if !ValidStatus(t.Status) {
		return fmt.Errorf("invalid status %q", t.Status)
	}
	if t.Recurrence != nil && t.Recurrence.Type != RecurrenceNone && t.Recurrence.Interval < 1 {
		return fmt.Errorf("recurrence interval must be at least 1")
	}
	return nil
}

// Clone returns a deep copy so callers can hand tasks out without
// exposing the engine's canonical instance to mutation.
func (t *Task) Clone() *Task {
	c := *t
	c.Tags = append([]string(nil), t.Tags...)
	c.Subtasks = append([]Subtask(nil), t.Subtasks...)
	c.AssignedTo = append([]string(nil), t.AssignedTo...)
	c.DependsOn = append([]string(nil), t.DependsOn...)
	c.Blocks = append([]string(nil), t.Blocks...)
	if t.ParentRecurringTaskID != nil {
		parent := *t.ParentRecurringTaskID
		c.ParentRecurringTaskID = &parent
	}
	if t.Recurrence != nil {
		r := *t.Recurrence
		if t.Recurrence.EndDate != nil {
			end := *t.Recurrence.EndDate
			r.EndDate = &end
		}
		c.Recurrence = &r
	}
	return &c
}

// CompletedSubtasks counts subtasks currently marked complete.
func (t *Task) CompletedSubtasks() int {
	n := 0
	for _, st := range t.Subtasks {
		if st.Completed {
			n++
		}
	}
	return n
}

// StatusBucket is the coarse completion filter exposed to views.
type StatusBucket string

const (
	BucketAll       StatusBucket = "all"
	BucketActive    StatusBucket = "active"
	BucketCompleted StatusBucket = "completed"
)

// InBucket guards against the legacy flag and the status value disagreeing:
// a task counts as completed when either says so, and "active" excludes both.
func (t *Task) InBucket(bucket StatusBucket) bool {
	done := t.Completed || t.Status == StatusCompleted
	switch bucket {
	case BucketActive:
		return !done
	case BucketCompleted:
		return done
	default:
		return true
	}
}

type TaskFilter struct {
	OwnerID  *string
	Bucket   *StatusBucket
	Priority *Priority
	Search   string
}

// ApplyTaskUpdates merges a partial-field update into a copy of the task
// and returns it. Unknown keys are ignored. Every storage backend shares
// this merge so partial updates behave identically in both modes.
func ApplyTaskUpdates(task *Task, updates map[string]interface{}) *Task {
	updated := task.Clone()

	if title, ok := updates["title"].(string); ok {
		updated.Title = title
	}
	if description, ok := updates["description"].(string); ok {
		updated.Description = description
	}
	if priority, ok := updates["priority"].(Priority); ok {
		updated.Priority = priority
	}
	if status, ok := updates["status"].(TaskStatus); ok {
		updated.Status = status
	}
	if completed, ok := updates["completed"].(bool); ok {
		updated.Completed = completed
	}
	if prev, ok := updates["previousStatus"].(TaskStatus); ok {
		updated.PreviousStatus = prev
	}
	if due, ok := updates["dueDate"].(time.Time); ok {
		updated.DueDate = due
	}
	if tags, ok := updates["tags"].([]string); ok {
		updated.Tags = append([]string(nil), tags...)
	}
	if subtasks, ok := updates["subtasks"].([]Subtask); ok {
		updated.Subtasks = append([]Subtask(nil), subtasks...)
	}
	if assigned, ok := updates["assignedTo"].([]string); ok {
		updated.AssignedTo = append([]string(nil), assigned...)
	}
	if deps, ok := updates["dependsOn"].([]string); ok {
		updated.DependsOn = append([]string(nil), deps...)
	}
	if blocks, ok := updates["blocks"].([]string); ok {
		updated.Blocks = append([]string(nil), blocks...)
	}
	if rec, ok := updates["recurrence"].(*Recurrence); ok {
		updated.Recurrence = rec
	}

	updated.UpdatedAt = time.Now()
	return updated
}
