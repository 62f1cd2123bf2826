package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/momentum/internal/domain"
)

func TestMemoryStoreTaskCRUD(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	task := domain.NewTask("owner", "Test Task", "desc")
	id, err := ms.CreateTask(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, task.ID, id)

	_, err = ms.CreateTask(ctx, task)
	assert.Error(t, err)

	got, err := ms.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Test Task", got.Title)

	updated, err := ms.UpdateTask(ctx, id, map[string]interface{}{"title": "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)

	require.NoError(t, ms.DeleteTask(ctx, id))
	_, err = ms.GetTask(ctx, id)
	assert.Error(t, err)
}

func TestMemoryStoreListTasksOwnerFilter(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	mine := domain.NewTask("me", "mine", "")
	theirs := domain.NewTask("them", "theirs", "")
	assigned := domain.NewTask("them", "shared", "")
	assigned.AssignedTo = []string{"me"}

	for _, task := range []*domain.Task{mine, theirs, assigned} {
		_, err := ms.CreateTask(ctx, task)
		require.NoError(t, err)
	}

	tasks, err := ms.ListTasks(ctx, "me")
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestMemoryStoreClonesOnRead(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	task := domain.NewTask("owner", "original", "")
	_, err := ms.CreateTask(ctx, task)
	require.NoError(t, err)

	got, err := ms.GetTask(ctx, task.ID)
	require.NoError(t, err)
	got.Title = "mutated"

	again, err := ms.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", again.Title)
}

func TestMemoryStoreMemberCRUD(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	member := domain.NewMember("Ada")
	_, err := ms.CreateMember(ctx, member)
	require.NoError(t, err)

	updated, err := ms.UpdateMember(ctx, member.ID, map[string]interface{}{"xp": 150, "level": 2})
	require.NoError(t, err)
	assert.Equal(t, 150, updated.XP)
	assert.Equal(t, 2, updated.Level)

	members, err := ms.ListMembers(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 1)

	require.NoError(t, ms.DeleteMember(ctx, member.ID))
	_, err = ms.GetMember(ctx, member.ID)
	assert.Error(t, err)
}

func TestMemoryStoreUnlockIdempotent(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	unlock := domain.Unlock{AchievementID: "first-steps", MemberID: "m1", UnlockedAt: time.Now()}
	require.NoError(t, ms.RecordUnlock(ctx, unlock))
	require.NoError(t, ms.RecordUnlock(ctx, unlock))

	unlocks, err := ms.ListUnlocks(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, unlocks, 1)
}

func TestMemoryStoreTemplates(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	tpl := domain.NewTemplate("standup", "Daily standup")
	_, err := ms.CreateTemplate(ctx, tpl)
	require.NoError(t, err)

	updated, err := ms.UpdateTemplate(ctx, tpl.ID, map[string]interface{}{"useCount": 3})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.UseCount)

	require.NoError(t, ms.DeleteTemplate(ctx, tpl.ID))
	_, err = ms.GetTemplate(ctx, tpl.ID)
	assert.Error(t, err)
}
