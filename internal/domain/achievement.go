package domain

import "time"

type AchievementCategory string

const (
	CategoryTasks       AchievementCategory = "tasks"
	CategoryLevel       AchievementCategory = "level"
	CategoryXP          AchievementCategory = "xp"
	CategoryPunctuality AchievementCategory = "punctuality"
	CategoryTags        AchievementCategory = "tags"
	CategorySubtasks    AchievementCategory = "subtasks"
)

// Unlock records the first time an achievement predicate held for a
// member. Unlocks are append-only and never revoked, even if the
// underlying condition later becomes false.
type Unlock struct {
	AchievementID string    `json:"achievementId"`
	MemberID      string    `json:"memberId"`
	UnlockedAt    time.Time `json:"unlockedAt"`
}
