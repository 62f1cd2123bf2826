// Package graph maintains the dependsOn/blocks relation over the task
// collection and keeps it acyclic.
package graph

import (
	"errors"
	"fmt"

	"github.com/rcliao/momentum/internal/domain"
)

var (
	ErrSelfDependency = errors.New("task cannot depend on itself")
	ErrCycle          = errors.New("dependency would create a cycle")
	ErrTaskNotFound   = errors.New("task not found")
)

// Reachable reports whether target can be reached from start by
// following dependsOn edges. The walk is iterative with an explicit
// stack and visited set, so it terminates on any graph regardless of
// size or shape.
func Reachable(tasks map[string]*domain.Task, start, target string) bool {
	visited := make(map[string]bool)
	stack := []string{start}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if id == target {
			return true
		}
		if visited[id] {
			continue
		}
		visited[id] = true

		task, ok := tasks[id]
		if !ok {
			continue
		}
		stack = append(stack, task.DependsOn...)
	}

	return false
}

// WouldCycle reports whether adding taskID -> dependsOnID would close a
// cycle in the existing dependsOn graph.
func WouldCycle(tasks map[string]*domain.Task, taskID, dependsOnID string) bool {
	return Reachable(tasks, dependsOnID, taskID)
}

// AddDependency records that taskID depends on dependsOnID. Rejected
// edits leave the graph untouched. Note the asymmetry with AddBlocking:
// this path does not write the partner's blocks set.
func AddDependency(tasks map[string]*domain.Task, taskID, dependsOnID string) error {
	if taskID == dependsOnID {
		return ErrSelfDependency
	}
	task, ok := tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if contains(task.DependsOn, dependsOnID) {
		return nil
	}
	if WouldCycle(tasks, taskID, dependsOnID) {
		return ErrCycle
	}
	task.DependsOn = append(task.DependsOn, dependsOnID)
	return nil
}

// RemoveDependency drops taskID's dependsOn edge only; any paired
// blocks entry on the other task is left alone.
func RemoveDependency(tasks map[string]*domain.Task, taskID, dependsOnID string) error {
	task, ok := tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	task.DependsOn = remove(task.DependsOn, dependsOnID)
	return nil
}

// AddBlocking records that taskID blocks blockedID, writing both the
// blocks edge and the inverse dependsOn edge on the blocked task.
func AddBlocking(tasks map[string]*domain.Task, taskID, blockedID string) error {
	if taskID == blockedID {
		return ErrSelfDependency
	}
	task, ok := tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	blocked, ok := tasks[blockedID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, blockedID)
	}
	if WouldCycle(tasks, blockedID, taskID) {
		return ErrCycle
	}
	if !contains(task.Blocks, blockedID) {
		task.Blocks = append(task.Blocks, blockedID)
	}
	if !contains(blocked.DependsOn, taskID) {
		blocked.DependsOn = append(blocked.DependsOn, taskID)
	}
	return nil
}

// RemoveBlocking drops the blocks edge and its paired dependsOn edge.
func RemoveBlocking(tasks map[string]*domain.Task, taskID, blockedID string) error {
	task, ok := tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	task.Blocks = remove(task.Blocks, blockedID)
	if blocked, ok := tasks[blockedID]; ok {
		blocked.DependsOn = remove(blocked.DependsOn, taskID)
	}
	return nil
}

// CanComplete reports whether every dependency of the task is
// completed. A dependency id that no longer resolves to a task counts
// as satisfied: a deleted dependency cannot be waited on.
func CanComplete(task *domain.Task, tasks map[string]*domain.Task) bool {
	for _, depID := range task.DependsOn {
		dep, ok := tasks[depID]
		if !ok {
			continue
		}
		if !dep.Completed {
			return false
		}
	}
	return true
}

// Detach removes deletedID from every task's edge sets and returns the
// ids of tasks that changed, so the caller can persist them.
func Detach(tasks map[string]*domain.Task, deletedID string) []string {
	var changed []string
	for id, task := range tasks {
		if id == deletedID {
			continue
		}
		before := len(task.DependsOn) + len(task.Blocks)
		task.DependsOn = remove(task.DependsOn, deletedID)
		task.Blocks = remove(task.Blocks, deletedID)
		if len(task.DependsOn)+len(task.Blocks) != before {
			changed = append(changed, id)
		}
	}
	return changed
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
