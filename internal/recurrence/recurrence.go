// Package recurrence computes the next occurrence of a recurring task.
package recurrence

import (
	"github.com/rcliao/momentum/internal/domain"
)

// Eligible reports whether completing this task should spawn a next
// occurrence. Only root recurring tasks qualify; generated occurrences
// carry ParentRecurringTaskID and are never re-expanded.
func Eligible(t *domain.Task) bool {
	if t.Recurrence == nil || t.Recurrence.Type == domain.RecurrenceNone {
		return false
	}
	return t.ParentRecurringTaskID == nil
}

// Next returns the follow-up occurrence for a just-completed recurring
// task, or nil when the series ends. The series ends silently when the
// computed due date passes the rule's end date or when the source has
// no usable due date.
func Next(source *domain.Task) *domain.Task {
	if !Eligible(source) {
		return nil
	}
	if source.DueDate.IsZero() {
		return nil
	}

	interval := source.Recurrence.Interval
	if interval < 1 {
		interval = 1
	}

	var nextDue = source.DueDate
	switch source.Recurrence.Type {
	case domain.RecurrenceDaily:
		nextDue = nextDue.AddDate(0, 0, interval)
	case domain.RecurrenceWeekly:
		nextDue = nextDue.AddDate(0, 0, 7*interval)
	case domain.RecurrenceMonthly:
		nextDue = nextDue.AddDate(0, interval, 0)
	default:
		return nil
	}

	if source.Recurrence.EndDate != nil && nextDue.After(*source.Recurrence.EndDate) {
		return nil
	}

	next := domain.NewTask(source.OwnerID, source.Title, source.Description)
	next.Priority = source.Priority
	next.DueDate = nextDue
	next.Tags = append([]string(nil), source.Tags...)
	next.AssignedTo = append([]string(nil), source.AssignedTo...)
	for _, st := range source.Subtasks {
		next.Subtasks = append(next.Subtasks, domain.Subtask{
			ID:    st.ID,
			Title: st.Title,
		})
	}
	rule := *source.Recurrence
	if source.Recurrence.EndDate != nil {
		end := *source.Recurrence.EndDate
		rule.EndDate = &end
	}
	next.Recurrence = &rule
	parent := source.ID
	next.ParentRecurringTaskID = &parent

	return next
}
