// Package search provides the case-insensitive text match used by the
// task filter view.
package search

import (
	"strings"

	"github.com/rcliao/momentum/internal/domain"
)

// Matches reports whether the query occurs, case-insensitively, in the
// task's title, description, or any tag. An empty query matches
// everything.
func Matches(task *domain.Task, query string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}

	if strings.Contains(strings.ToLower(task.Title), query) {
		return true
	}
	if strings.Contains(strings.ToLower(task.Description), query) {
		return true
	}
	for _, tag := range task.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}

// Filter returns the tasks matching the query, preserving input order.
func Filter(tasks []*domain.Task, query string) []*domain.Task {
	if strings.TrimSpace(query) == "" {
		return tasks
	}
	var matched []*domain.Task
	for _, task := range tasks {
		if Matches(task, query) {
			matched = append(matched, task)
		}
	}
	return matched
}
