package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Member is a gamification profile. Level is always derived from XP;
// callers never set it directly.
type Member struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	XP        int       `json:"xp"`
	Level     int       `json:"level"`
	Avatar    string    `json:"avatar,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func NewMember(name string) *Member {
	now := time.Now()
	return &Member{
		ID:        uuid.New().String(),
		Name:      name,
		XP:        0,
		Level:     1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (m *Member) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("member name is required")
	}
	return nil
}

func (m *Member) Clone() *Member {
	c := *m
	return &c
}

// ApplyMemberUpdates merges a partial-field update into a copy of the member.
func ApplyMemberUpdates(member *Member, updates map[string]interface{}) *Member {
	updated := member.Clone()

	if name, ok := updates["name"].(string); ok {
		updated.Name = name
	}
	if xp, ok := updates["xp"].(int); ok {
		updated.XP = xp
	}
	if level, ok := updates["level"].(int); ok {
		updated.Level = level
	}
	if avatar, ok := updates["avatar"].(string); ok {
		updated.Avatar = avatar
	}
	if userID, ok := updates["userId"].(string); ok {
		updated.UserID = userID
	}
	if email, ok := updates["email"].(string); ok {
		updated.Email = email
	}

	updated.UpdatedAt = time.Now()
	return updated
}
