package service

import (
	"context"

	"github.com/rcliao/momentum/internal/domain"
	"github.com/rcliao/momentum/internal/gamify"
)

// Store is the persistence boundary the engine talks to. Two
// implementations exist: the local-only JSON store and the sqlite-backed
// remote store of record. The engine holds a reference to whichever is
// active and never branches on mode beyond that selection point.
type Store interface {
	CreateTask(ctx context.Context, task *domain.Task) (string, error)
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	UpdateTask(ctx context.Context, id string, updates map[string]interface{}) (*domain.Task, error)
	ListTasks(ctx context.Context, owner string) ([]*domain.Task, error)
	DeleteTask(ctx context.Context, id string) error

	CreateMember(ctx context.Context, member *domain.Member) (string, error)
	GetMember(ctx context.Context, id string) (*domain.Member, error)
	UpdateMember(ctx context.Context, id string, updates map[string]interface{}) (*domain.Member, error)
	ListMembers(ctx context.Context) ([]*domain.Member, error)
	DeleteMember(ctx context.Context, id string) error

	CreateTemplate(ctx context.Context, tpl *domain.Template) (string, error)
	GetTemplate(ctx context.Context, id string) (*domain.Template, error)
	ListTemplates(ctx context.Context) ([]*domain.Template, error)
	UpdateTemplate(ctx context.Context, id string, updates map[string]interface{}) (*domain.Template, error)
	DeleteTemplate(ctx context.Context, id string) error

	RecordUnlock(ctx context.Context, unlock domain.Unlock) error
	ListUnlocks(ctx context.Context, memberID string) ([]domain.Unlock, error)
}

// MemberSelector is the optional local-store capability for remembering
// which member profile is active between runs.
type MemberSelector interface {
	SetSelectedMember(id string) error
	SelectedMember() (string, error)
}

// Notifier receives achievement and reminder events. Calls are
// fire-and-forget; the engine never consumes a return value.
type Notifier interface {
	AchievementUnlocked(member *domain.Member, achievement gamify.Achievement)
	TaskOverdue(task *domain.Task)
}

type NopNotifier struct{}

func (NopNotifier) AchievementUnlocked(*domain.Member, gamify.Achievement) {}
func (NopNotifier) TaskOverdue(*domain.Task)                              {}
