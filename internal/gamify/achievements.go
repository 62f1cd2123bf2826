package gamify

import (
	"github.com/rcliao/momentum/internal/domain"
)

// Achievement pairs a badge with the predicate that unlocks it. Checks
// see the member and the member's tasks; they must be side-effect free.
type Achievement struct {
	ID          string
	Name        string
	Description string
	Category    domain.AchievementCategory
	Check       func(m *domain.Member, tasks []*domain.Task) bool
}

// Registry is the fixed achievement set. Order is stable so unlock
// notifications arrive deterministically.
func Registry() []Achievement {
	return []Achievement{
		{
			ID:          "first-steps",
			Name:        "First Steps",
			Description: "Complete your first task",
			Category:    domain.CategoryTasks,
			Check:       completedAtLeast(1),
		},
		{
			ID:          "task-machine",
			Name:        "Task Machine",
			Description: "Complete 10 tasks",
			Category:    domain.CategoryTasks,
			Check:       completedAtLeast(10),
		},
		{
			ID:          "half-century",
			Name:        "Half Century",
			Description: "Complete 50 tasks",
			Category:    domain.CategoryTasks,
			Check:       completedAtLeast(50),
		},
		{
			ID:          "levelled-up",
			Name:        "Levelled Up",
			Description: "Reach level 2",
			Category:    domain.CategoryLevel,
			Check:       levelAtLeast(2),
		},
		{
			ID:          "high-five",
			Name:        "High Five",
			Description: "Reach level 5",
			Category:    domain.CategoryLevel,
			Check:       levelAtLeast(5),
		},
		{
			ID:          "double-digits",
			Name:        "Double Digits",
			Description: "Reach level 10",
			Category:    domain.CategoryLevel,
			Check:       levelAtLeast(10),
		},
		{
			ID:          "xp-hoarder",
			Name:        "XP Hoarder",
			Description: "Accumulate 500 XP",
			Category:    domain.CategoryXP,
			Check:       xpAtLeast(500),
		},
		{
			ID:          "xp-legend",
			Name:        "XP Legend",
			Description: "Accumulate 1000 XP",
			Category:    domain.CategoryXP,
			Check:       xpAtLeast(1000),
		},
		{
			ID:          "early-bird",
			Name:        "Early Bird",
			Description: "Complete 5 tasks before their due date",
			Category:    domain.CategoryPunctuality,
			Check:       beforeDueAtLeast(5),
		},
		{
			ID:          "ahead-of-schedule",
			Name:        "Ahead of Schedule",
			Description: "Complete 20 tasks before their due date",
			Category:    domain.CategoryPunctuality,
			Check:       beforeDueAtLeast(20),
		},
		{
			ID:          "organizer",
			Name:        "Organizer",
			Description: "Use 5 distinct tags across your tasks",
			Category:    domain.CategoryTags,
			Check:       distinctTagsAtLeast(5),
		},
		{
			ID:          "detail-oriented",
			Name:        "Detail Oriented",
			Description: "Complete 10 subtasks",
			Category:    domain.CategorySubtasks,
			Check:       subtasksDoneAtLeast(10),
		},
		{
			ID:          "checklist-champion",
			Name:        "Checklist Champion",
			Description: "Complete 50 subtasks",
			Category:    domain.CategorySubtasks,
			Check:       subtasksDoneAtLeast(50),
		},
	}
}

// Evaluate returns the achievements newly unlocked for the member.
// Already-unlocked ids are skipped unconditionally, which keeps unlocks
// one-way even when the underlying counts later drop.
func Evaluate(m *domain.Member, tasks []*domain.Task, unlocked map[string]bool) []Achievement {
	owned := memberTasks(m, tasks)

	var newly []Achievement
	for _, a := range Registry() {
		if unlocked[a.ID] {
			continue
		}
		if a.Check(m, owned) {
			newly = append(newly, a)
		}
	}
	return newly
}

func memberTasks(m *domain.Member, tasks []*domain.Task) []*domain.Task {
	var owned []*domain.Task
	for _, t := range tasks {
		if t.OwnerID == m.ID {
			owned = append(owned, t)
			continue
		}
		for _, id := range t.AssignedTo {
			if id == m.ID {
				owned = append(owned, t)
				break
			}
		}
	}
	return owned
}

func completedAtLeast(n int) func(*domain.Member, []*domain.Task) bool {
	return func(_ *domain.Member, tasks []*domain.Task) bool {
		count := 0
		for _, t := range tasks {
			if t.Completed {
				count++
			}
		}
		return count >= n
	}
}

func levelAtLeast(n int) func(*domain.Member, []*domain.Task) bool {
	return func(m *domain.Member, _ []*domain.Task) bool {
		return m.Level >= n
	}
}

func xpAtLeast(n int) func(*domain.Member, []*domain.Task) bool {
	return func(m *domain.Member, _ []*domain.Task) bool {
		return m.XP >= n
	}
}

func beforeDueAtLeast(n int) func(*domain.Member, []*domain.Task) bool {
	return func(_ *domain.Member, tasks []*domain.Task) bool {
		count := 0
		for _, t := range tasks {
			if t.Completed && !t.DueDate.IsZero() && t.UpdatedAt.Before(t.DueDate) {
				count++
			}
		}
		return count >= n
	}
}

func distinctTagsAtLeast(n int) func(*domain.Member, []*domain.Task) bool {
	return func(_ *domain.Member, tasks []*domain.Task) bool {
		seen := make(map[string]bool)
		for _, t := range tasks {
			for _, tag := range t.Tags {
				seen[tag] = true
			}
		}
		return len(seen) >= n
	}
}

func subtasksDoneAtLeast(n int) func(*domain.Member, []*domain.Task) bool {
	return func(_ *domain.Member, tasks []*domain.Task) bool {
		count := 0
		for _, t := range tasks {
			count += t.CompletedSubtasks()
		}
		return count >= n
	}
}
