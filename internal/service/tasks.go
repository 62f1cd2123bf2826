package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rcliao/momentum/internal/domain"
	"github.com/rcliao/momentum/internal/gamify"
	"github.com/rcliao/momentum/internal/graph"
	"github.com/rcliao/momentum/internal/recurrence"
	"github.com/rcliao/momentum/internal/search"
)

// AddTask validates and submits a new task through the active adapter.
// Under an active session the created record is re-read so that
// server-assigned fields (id, timestamps) replace the client's guess;
// remote failures propagate with no local fallback.
func (e *Engine) AddTask(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	if task.DueDate.IsZero() {
		task.DueDate = time.Now()
	}
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	task.AssignedTo = e.resolveAssignees(task.AssignedTo)

	st := e.activeStore()
	id, err := st.CreateTask(ctx, task)
	if err != nil {
		return nil, err
	}

	created := task
	if e.remoteActive() {
		created, err = st.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	e.mu.Lock()
	e.tasks[created.ID] = created.Clone()
	e.mu.Unlock()

	e.enqueue(e.evaluateAchievements)
	return created.Clone(), nil
}

// UpdateTask merges a partial-field update through the active adapter.
// Remote failures propagate: accepting a local-only edit while a
// session is active would diverge from what other sessions observe.
func (e *Engine) UpdateTask(ctx context.Context, id string, updates map[string]interface{}) (*domain.Task, error) {
	if err := validateTaskUpdates(updates); err != nil {
		return nil, err
	}
	if assigned, ok := updates["assignedTo"].([]string); ok {
		updates["assignedTo"] = e.resolveAssignees(assigned)
	}

	updated, err := e.activeStore().UpdateTask(ctx, id, updates)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.tasks[updated.ID] = updated.Clone()
	e.mu.Unlock()

	e.enqueue(e.evaluateAchievements)
	return updated.Clone(), nil
}

// DeleteTask removes the task, reversing its XP contribution when it
// was completed. Deletion is the one operation that degrades
// gracefully: a remote failure falls back to removing the task from
// in-memory state only, so a user is never trapped with an undeletable
// item.
func (e *Engine) DeleteTask(ctx context.Context, id string) error {
	task, ok := e.Task(id)
	if !ok {
		var err error
		task, err = e.activeStore().GetTask(ctx, id)
		if err != nil {
			return err
		}
	}

	if err := e.activeStore().DeleteTask(ctx, id); err != nil {
		if !e.remoteActive() {
			return err
		}
		e.logger.Warn("remote delete failed, removing locally only",
			slog.String("task", id), slog.String("error", err.Error()))
	}

	// The refund waits for the delete outcome: a rejected local delete
	// must not debit the owner while the task survives.
	if task.Completed {
		refund := gamify.XPPerTask + gamify.XPPerSubtask*task.CompletedSubtasks()
		owner := task.OwnerID
		e.enqueue(func() { e.adjustXP(owner, -refund) })
	}

	e.mu.Lock()
	delete(e.tasks, id)
	changed := graph.Detach(e.tasks, id)
	edgeUpdates := make(map[string]map[string]interface{}, len(changed))
	for _, cid := range changed {
		t := e.tasks[cid]
		edgeUpdates[cid] = map[string]interface{}{
			"dependsOn": append([]string(nil), t.DependsOn...),
			"blocks":    append([]string(nil), t.Blocks...),
		}
	}
	e.mu.Unlock()

	// Edge cleanup on surviving tasks is best effort.
	for cid, upd := range edgeUpdates {
		if _, err := e.activeStore().UpdateTask(ctx, cid, upd); err != nil {
			e.logger.Warn("edge cleanup failed", slog.String("task", cid), slog.String("error", err.Error()))
		}
	}

	e.enqueue(e.evaluateAchievements)
	return nil
}

// ToggleComplete flips the task's completion state, keeping the legacy
// flag and the status field in step, and drives the XP and recurrence
// side effects. The XP change is not transactionally coupled to the
// status change: a failed award is logged, never surfaced as a failed
// toggle.
func (e *Engine) ToggleComplete(ctx context.Context, id string) (*domain.Task, error) {
	task, ok := e.Task(id)
	if !ok {
		var err error
		task, err = e.activeStore().GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	completing := !task.Completed
	updates := map[string]interface{}{"completed": completing}
	if completing {
		updates["status"] = domain.StatusCompleted
		if !task.Status.Terminal() {
			updates["previousStatus"] = task.Status
		}
	} else {
		status := task.PreviousStatus
		if status == "" || status.Terminal() {
			status = domain.StatusTodo
		}
		updates["status"] = status
	}

	updated, err := e.UpdateTask(ctx, id, updates)
	if err != nil {
		return nil, err
	}

	delta := gamify.XPPerTask + gamify.XPPerSubtask*task.CompletedSubtasks()
	if !completing {
		delta = -delta
	}
	owner := task.OwnerID
	e.enqueue(func() { e.adjustXP(owner, delta) })

	if completing {
		if next := recurrence.Next(updated); next != nil {
			e.enqueue(func() {
				if _, err := e.AddTask(context.Background(), next); err != nil {
					e.logger.Error("recurrence occurrence not created",
						slog.String("source", id), slog.String("error", err.Error()))
				}
			})
		}
	}

	return updated, nil
}

// AddDependency records taskID -> dependsOnID after the cycle check.
// Graph-integrity rejections block the edit entirely, before any
// persistence call. Note: this path intentionally does not write the
// partner task's blocks set; only the blocks editing path is
// two-directional.
func (e *Engine) AddDependency(ctx context.Context, taskID, dependsOnID string) error {
	e.mu.Lock()
	err := graph.AddDependency(e.tasks, taskID, dependsOnID)
	var deps []string
	if err == nil {
		deps = append([]string(nil), e.tasks[taskID].DependsOn...)
	}
	e.mu.Unlock()
	if err != nil {
		return err
	}

	if _, perr := e.activeStore().UpdateTask(ctx, taskID, map[string]interface{}{"dependsOn": deps}); perr != nil {
		e.mu.Lock()
		_ = graph.RemoveDependency(e.tasks, taskID, dependsOnID)
		e.mu.Unlock()
		return perr
	}
	return nil
}

func (e *Engine) RemoveDependency(ctx context.Context, taskID, dependsOnID string) error {
	e.mu.Lock()
	err := graph.RemoveDependency(e.tasks, taskID, dependsOnID)
	var deps []string
	if err == nil {
		deps = append([]string(nil), e.tasks[taskID].DependsOn...)
	}
	e.mu.Unlock()
	if err != nil {
		return err
	}

	_, perr := e.activeStore().UpdateTask(ctx, taskID, map[string]interface{}{"dependsOn": deps})
	return perr
}

// AddBlocking records that taskID blocks blockedID, writing both the
// blocks edge and the inverse dependsOn edge on the other task.
func (e *Engine) AddBlocking(ctx context.Context, taskID, blockedID string) error {
	e.mu.Lock()
	err := graph.AddBlocking(e.tasks, taskID, blockedID)
	var blocks, deps []string
	if err == nil {
		blocks = append([]string(nil), e.tasks[taskID].Blocks...)
		deps = append([]string(nil), e.tasks[blockedID].DependsOn...)
	}
	e.mu.Unlock()
	if err != nil {
		return err
	}

	if perr := e.persistEdgePair(ctx, taskID, blocks, blockedID, deps); perr != nil {
		e.mu.Lock()
		_ = graph.RemoveBlocking(e.tasks, taskID, blockedID)
		e.mu.Unlock()
		return perr
	}
	return nil
}

// RemoveBlocking drops the blocks edge and its paired dependsOn edge.
func (e *Engine) RemoveBlocking(ctx context.Context, taskID, blockedID string) error {
	e.mu.Lock()
	err := graph.RemoveBlocking(e.tasks, taskID, blockedID)
	var blocks, deps []string
	if err == nil {
		blocks = append([]string(nil), e.tasks[taskID].Blocks...)
		if blocked, ok := e.tasks[blockedID]; ok {
			deps = append([]string(nil), blocked.DependsOn...)
		}
	}
	e.mu.Unlock()
	if err != nil {
		return err
	}

	return e.persistEdgePair(ctx, taskID, blocks, blockedID, deps)
}

func (e *Engine) persistEdgePair(ctx context.Context, taskID string, blocks []string, blockedID string, deps []string) error {
	st := e.activeStore()
	if _, err := st.UpdateTask(ctx, taskID, map[string]interface{}{"blocks": blocks}); err != nil {
		return err
	}
	if deps == nil {
		return nil
	}
	if _, err := st.UpdateTask(ctx, blockedID, map[string]interface{}{"dependsOn": deps}); err != nil {
		return err
	}
	return nil
}

// Filter is the derived view over the task collection: owner, status
// bucket, priority and free-text search compose as intersection. With
// no restrictions it returns the full list in creation order.
func (e *Engine) Filter(f domain.TaskFilter) []*domain.Task {
	e.mu.RLock()
	tasks := e.tasksLocked()
	e.mu.RUnlock()

	result := make([]*domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if f.OwnerID != nil && t.OwnerID != *f.OwnerID {
			continue
		}
		if f.Bucket != nil && !t.InBucket(*f.Bucket) {
			continue
		}
		if f.Priority != nil && t.Priority != *f.Priority {
			continue
		}
		if !search.Matches(t, f.Search) {
			continue
		}
		result = append(result, t)
	}
	return result
}

// resolveAssignees translates the assignment list to the identity space
// of the active adapter: member ids stay as-is in local mode; in remote
// mode they map to account ids, falling back to the current account
// when a member has no linked identity.
func (e *Engine) resolveAssignees(ids []string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.session == nil || e.remote == nil {
		return ids
	}

	resolved := make([]string, 0, len(ids))
	for _, id := range ids {
		if m, ok := e.members[id]; ok && m.UserID != "" {
			resolved = append(resolved, m.UserID)
			continue
		}
		resolved = append(resolved, e.session.UserID)
	}
	return resolved
}

func validateTaskUpdates(updates map[string]interface{}) error {
	if title, ok := updates["title"].(string); ok {
		if strings.TrimSpace(title) == "" {
			return fmt.Errorf("%w: task title is required", ErrValidation)
		}
		if len(title) > domain.TitleMaxLen {
			return fmt.Errorf("%w: task title exceeds %d characters", ErrValidation, domain.TitleMaxLen)
		}
	}
	if description, ok := updates["description"].(string); ok {
		if len(description) > domain.DescriptionMaxLen {
			return fmt.Errorf("%w: task description exceeds %d characters", ErrValidation, domain.DescriptionMaxLen)
		}
	}
	if priority, ok := updates["priority"].(domain.Priority); ok && !domain.ValidPriority(priority) {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, priority)
	}
	if status, ok := updates["status"].(domain.TaskStatus); ok && !domain.ValidStatus(status) {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, status)
	}
	return nil
}
