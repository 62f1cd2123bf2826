package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Template is a saved, reusable task shape. UseCount increments each
// time the template instantiates a new task.
type Template struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags"`

	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Priority    Priority    `json:"priority"`
	TaskTags    []string    `json:"taskTags"`
	Subtasks    []Subtask   `json:"subtasks"`
	Recurrence  *Recurrence `json:"recurrence,omitempty"`

	UseCount  int       `json:"useCount"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func NewTemplate(name, title string) *Template {
	now := time.Now()
	return &Template{
		ID:        uuid.New().String(),
		Name:      name,
		Tags:      make([]string, 0),
		Title:     title,
		Priority:  PriorityMedium,
		TaskTags:  make([]string, 0),
		Subtasks:  make([]Subtask, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (tpl *Template) Validate() error {
	if strings.TrimSpace(tpl.Name) == "" {
		return fmt.Errorf("template name is required")
	}
	if strings.TrimSpace(tpl.Title) == "" {
		return fmt.Errorf("template task title is required")
	}
	return nil
}

// Instantiate builds a fresh task from the template shape. Subtasks get
// new ids and start incomplete.
func (tpl *Template) Instantiate(ownerID string) *Task {
	task := NewTask(ownerID, tpl.Title, tpl.Description)
	task.Priority = tpl.Priority
	task.Tags = append([]string(nil), tpl.TaskTags...)
	for _, st := range tpl.Subtasks {
		task.Subtasks = append(task.Subtasks, NewSubtask(st.Title))
	}
	if tpl.Recurrence != nil {
		r := *tpl.Recurrence
		task.Recurrence = &r
	}
	return task
}
