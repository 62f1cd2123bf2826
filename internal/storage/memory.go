package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rcliao/momentum/internal/domain"
)

// MemoryStore is an in-process store used by tests and as a scratch
// backend. It honors the same contract as the local and sqlite stores.
type MemoryStore struct {
	mu        sync.RWMutex
	tasks     map[string]*domain.Task
	members   map[string]*domain.Member
	templates map[string]*domain.Template
	unlocks   []domain.Unlock
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:     make(map[string]*domain.Task),
		members:   make(map[string]*domain.Member),
		templates: make(map[string]*domain.Template),
	}
}

func (ms *MemoryStore) CreateTask(_ context.Context, task *domain.Task) (string, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.tasks[task.ID]; exists {
		return "", fmt.Errorf("task with ID %s already exists", task.ID)
	}

	ms.tasks[task.ID] = task.Clone()
	return task.ID, nil
}

func (ms *MemoryStore) GetTask(_ context.Context, id string) (*domain.Task, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	task, exists := ms.tasks[id]
	if !exists {
		return nil, fmt.Errorf("task with ID %s not found", id)
	}

	return task.Clone(), nil
}

func (ms *MemoryStore) UpdateTask(_ context.Context, id string, updates map[string]interface{}) (*domain.Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, exists := ms.tasks[id]
	if !exists {
		return nil, fmt.Errorf("task with ID %s not found", id)
	}

	updated := domain.ApplyTaskUpdates(task, updates)
	ms.tasks[id] = updated
	return updated.Clone(), nil
}

func (ms *MemoryStore) ListTasks(_ context.Context, owner string) ([]*domain.Task, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var result []*domain.Task
	for _, task := range ms.tasks {
		if owner != "" && !ownedOrAssigned(task, owner) {
			continue
		}
		result = append(result, task.Clone())
	}

	sortTasks(result)
	return result, nil
}

func (ms *MemoryStore) DeleteTask(_ context.Context, id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.tasks[id]; !exists {
		return fmt.Errorf("task with ID %s not found", id)
	}

	delete(ms.tasks, id)
	return nil
}

func (ms *MemoryStore) CreateMember(_ context.Context, member *domain.Member) (string, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.members[member.ID]; exists {
		return "", fmt.Errorf("member with ID %s already exists", member.ID)
	}

	ms.members[member.ID] = member.Clone()
	return member.ID, nil
}

func (ms *MemoryStore) GetMember(_ context.Context, id string) (*domain.Member, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	member, exists := ms.members[id]
	if !exists {
		return nil, fmt.Errorf("member with ID %s not found", id)
	}

	return member.Clone(), nil
}

func (ms *MemoryStore) UpdateMember(_ context.Context, id string, updates map[string]interface{}) (*domain.Member, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	member, exists := ms.members[id]
	if !exists {
		return nil, fmt.Errorf("member with ID %s not found", id)
	}

	updated := domain.ApplyMemberUpdates(member, updates)
	ms.members[id] = updated
	return updated.Clone(), nil
}

func (ms *MemoryStore) ListMembers(_ context.Context) ([]*domain.Member, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var result []*domain.Member
	for _, member := range ms.members {
		result = append(result, member.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (ms *MemoryStore) DeleteMember(_ context.Context, id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.members[id]; !exists {
		return fmt.Errorf("member with ID %s not found", id)
	}

	delete(ms.members, id)
	return nil
}

func (ms *MemoryStore) CreateTemplate(_ context.Context, tpl *domain.Template) (string, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.templates[tpl.ID]; exists {
		return "", fmt.Errorf("template with ID %s already exists", tpl.ID)
	}

	clone := *tpl
	ms.templates[tpl.ID] = &clone
	return tpl.ID, nil
}

func (ms *MemoryStore) GetTemplate(_ context.Context, id string) (*domain.Template, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	tpl, exists := ms.templates[id]
	if !exists {
		return nil, fmt.Errorf("template with ID %s not found", id)
	}

	clone := *tpl
	return &clone, nil
}

func (ms *MemoryStore) ListTemplates(_ context.Context) ([]*domain.Template, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var result []*domain.Template
	for _, tpl := range ms.templates {
		clone := *tpl
		result = append(result, &clone)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (ms *MemoryStore) UpdateTemplate(_ context.Context, id string, updates map[string]interface{}) (*domain.Template, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	tpl, exists := ms.templates[id]
	if !exists {
		return nil, fmt.Errorf("template with ID %s not found", id)
	}

	updated := *tpl
	if name, ok := updates["name"].(string); ok {
		updated.Name = name
	}
	if category, ok := updates["category"].(string); ok {
		updated.Category = category
	}
	if useCount, ok := updates["useCount"].(int); ok {
		updated.UseCount = useCount
	}

	ms.templates[id] = &updated
	clone := updated
	return &clone, nil
}

func (ms *MemoryStore) DeleteTemplate(_ context.Context, id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.templates[id]; !exists {
		return fmt.Errorf("template with ID %s not found", id)
	}

	delete(ms.templates, id)
	return nil
}

// RecordUnlock appends the unlock if it is not already recorded.
// Recording is idempotent and one-way.
func (ms *MemoryStore) RecordUnlock(_ context.Context, unlock domain.Unlock) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for _, u := range ms.unlocks {
		if u.AchievementID == unlock.AchievementID && u.MemberID == unlock.MemberID {
			return nil
		}
	}

	ms.unlocks = append(ms.unlocks, unlock)
	return nil
}

func (ms *MemoryStore) ListUnlocks(_ context.Context, memberID string) ([]domain.Unlock, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var result []domain.Unlock
	for _, u := range ms.unlocks {
		if memberID != "" && u.MemberID != memberID {
			continue
		}
		result = append(result, u)
	}

	return result, nil
}

func ownedOrAssigned(task *domain.Task, memberID string) bool {
	if task.OwnerID == memberID {
		return true
	}
	for _, id := range task.AssignedTo {
		if id == memberID {
			return true
		}
	}
	return false
}

func sortTasks(tasks []*domain.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}
