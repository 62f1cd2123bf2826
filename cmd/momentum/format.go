package main

import (
	"fmt"
	"strings"

	"github.com/rcliao/momentum/internal/domain"
	"github.com/rcliao/momentum/internal/gamify"
)

func statusIcon(status domain.TaskStatus) string {
	switch status {
	case domain.StatusCompleted:
		return "✅"
	case domain.StatusInProgress:
		return "🔨"
	case domain.StatusInReview:
		return "👀"
	case domain.StatusBlocked:
		return "🚫"
	default:
		return "📋"
	}
}

func formatTask(task *domain.Task) string {
	line := fmt.Sprintf("%s %s  %s [%s]", statusIcon(task.Status), task.ID, task.Title, task.Priority)
	if len(task.Tags) > 0 {
		line += "  #" + strings.Join(task.Tags, " #")
	}
	return line
}

func formatTaskList(tasks []*domain.Task) string {
	if len(tasks) == 0 {
		return "no tasks found"
	}

	groups := make(map[domain.TaskStatus][]*domain.Task)
	for _, task := range tasks {
		groups[task.Status] = append(groups[task.Status], task)
	}

	displayOrder := []domain.TaskStatus{
		domain.StatusInProgress,
		domain.StatusInReview,
		domain.StatusTodo,
		domain.StatusBlocked,
		domain.StatusCompleted,
	}

	var sb strings.Builder
	for _, status := range displayOrder {
		group := groups[status]
		if len(group) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("%s (%d)\n", status, len(group)))
		for _, task := range group {
			sb.WriteString("  " + formatTask(task) + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatTaskDetail(task *domain.Task, completable bool) string {
	var sb strings.Builder
	sb.WriteString(formatTask(task) + "\n")
	if task.Description != "" {
		sb.WriteString("  " + task.Description + "\n")
	}
	sb.WriteString(fmt.Sprintf("  due %s, owner %s\n", task.DueDate.Format("2006-01-02"), task.OwnerID))

	if len(task.DependsOn) > 0 {
		sb.WriteString(fmt.Sprintf("  depends on: %s", strings.Join(task.DependsOn, ", ")))
		if !completable {
			sb.WriteString("  (waiting)")
		}
		sb.WriteString("\n")
	}
	if len(task.Blocks) > 0 {
		sb.WriteString(fmt.Sprintf("  blocks: %s\n", strings.Join(task.Blocks, ", ")))
	}
	if task.Recurrence != nil && task.Recurrence.Type != domain.RecurrenceNone {
		sb.WriteString(fmt.Sprintf("  repeats %s every %d\n", task.Recurrence.Type, task.Recurrence.Interval))
	}
	for _, st := range task.Subtasks {
		mark := " "
		if st.Completed {
			mark = "x"
		}
		sb.WriteString(fmt.Sprintf("  [%s] %s  %s\n", mark, st.ID, st.Title))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatMember(m *domain.Member) string {
	return fmt.Sprintf("%s  %s (level %d, %d XP)", m.ID, m.Name, m.Level, m.XP)
}

func formatUnlocks(unlocks []domain.Unlock) string {
	if len(unlocks) == 0 {
		return "no achievements unlocked yet"
	}

	byID := make(map[string]gamify.Achievement)
	for _, a := range gamify.Registry() {
		byID[a.ID] = a
	}

	var sb strings.Builder
	for _, u := range unlocks {
		a, ok := byID[u.AchievementID]
		if !ok {
			sb.WriteString(fmt.Sprintf("🏆 %s (%s)\n", u.AchievementID, u.UnlockedAt.Format("2006-01-02")))
			continue
		}
		sb.WriteString(fmt.Sprintf("🏆 %s: %s (%s)\n", a.Name, a.Description, u.UnlockedAt.Format("2006-01-02")))
	}
	return strings.TrimRight(sb.String(), "\n")
}
