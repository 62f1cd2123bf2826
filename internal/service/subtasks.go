package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcliao/momentum/internal/domain"
	"github.com/rcliao/momentum/internal/gamify"
)

// Subtasks have no persistence identity of their own: every edit reads
// the parent, recomputes the whole list and routes it as one updateTask
// call.

func (e *Engine) AddSubtask(ctx context.Context, taskID, title string) (*domain.Task, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("%w: subtask title is required", ErrValidation)
	}

	task, err := e.taskOrFetch(ctx, taskID)
	if err != nil {
		return nil, err
	}

	subtasks := append(append([]domain.Subtask(nil), task.Subtasks...), domain.NewSubtask(title))
	return e.UpdateTask(ctx, taskID, map[string]interface{}{"subtasks": subtasks})
}

func (e *Engine) UpdateSubtask(ctx context.Context, taskID, subtaskID string, title *string, completed *bool) (*domain.Task, error) {
	if title != nil && strings.TrimSpace(*title) == "" {
		return nil, fmt.Errorf("%w: subtask title is required", ErrValidation)
	}

	task, err := e.taskOrFetch(ctx, taskID)
	if err != nil {
		return nil, err
	}

	subtasks := append([]domain.Subtask(nil), task.Subtasks...)
	found := false
	for i := range subtasks {
		if subtasks[i].ID == subtaskID {
			if title != nil {
				subtasks[i].Title = *title
			}
			if completed != nil {
				subtasks[i].Completed = *completed
			}
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("subtask with ID %s not found", subtaskID)
	}

	return e.UpdateTask(ctx, taskID, map[string]interface{}{"subtasks": subtasks})
}

// DeleteSubtask removes one subtask, reversing its XP award when it
// was completed.
func (e *Engine) DeleteSubtask(ctx context.Context, taskID, subtaskID string) (*domain.Task, error) {
	task, err := e.taskOrFetch(ctx, taskID)
	if err != nil {
		return nil, err
	}

	subtasks := make([]domain.Subtask, 0, len(task.Subtasks))
	found := false
	wasCompleted := false
	for _, st := range task.Subtasks {
		if st.ID == subtaskID {
			found = true
			wasCompleted = st.Completed
			continue
		}
		subtasks = append(subtasks, st)
	}
	if !found {
		return nil, fmt.Errorf("subtask with ID %s not found", subtaskID)
	}

	updated, err := e.UpdateTask(ctx, taskID, map[string]interface{}{"subtasks": subtasks})
	if err != nil {
		return nil, err
	}

	if wasCompleted {
		owner := task.OwnerID
		e.enqueue(func() { e.adjustXP(owner, -gamify.XPPerSubtask) })
	}
	return updated, nil
}

// ToggleSubtaskComplete flips one subtask's flag and applies the
// per-subtask XP delta to the parent task's owner.
func (e *Engine) ToggleSubtaskComplete(ctx context.Context, taskID, subtaskID string) (*domain.Task, error) {
	task, err := e.taskOrFetch(ctx, taskID)
	if err != nil {
		return nil, err
	}

	var current *bool
	for _, st := range task.Subtasks {
		if st.ID == subtaskID {
			c := st.Completed
			current = &c
			break
		}
	}
	if current == nil {
		return nil, fmt.Errorf("subtask with ID %s not found", subtaskID)
	}

	next := !*current
	updated, err := e.UpdateSubtask(ctx, taskID, subtaskID, nil, &next)
	if err != nil {
		return nil, err
	}

	delta := gamify.XPPerSubtask
	if !next {
		delta = -delta
	}
	owner := task.OwnerID
	e.enqueue(func() { e.adjustXP(owner, delta) })

	return updated, nil
}

func (e *Engine) taskOrFetch(ctx context.Context, id string) (*domain.Task, error) {
	if task, ok := e.Task(id); ok {
		return task, nil
	}
	return e.activeStore().GetTask(ctx, id)
}
