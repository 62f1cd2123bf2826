package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/momentum/internal/domain"
)

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "momentum.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteTaskCRUD(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	task := domain.NewTask("owner", "wire the garage", "breaker panel first")
	task.Priority = domain.PriorityHigh
	task.Tags = []string{"house", "electrical"}
	task.Subtasks = []domain.Subtask{domain.NewSubtask("buy cable")}
	task.DueDate = time.Now().Add(48 * time.Hour)

	id, err := s.CreateTask(ctx, task)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "wire the garage", got.Title)
	assert.Equal(t, domain.PriorityHigh, got.Priority)
	assert.Equal(t, []string{"house", "electrical"}, got.Tags)
	require.Len(t, got.Subtasks, 1)
	assert.WithinDuration(t, task.DueDate, got.DueDate, time.Second)

	updated, err := s.UpdateTask(ctx, id, map[string]interface{}{
		"status":    domain.StatusCompleted,
		"completed": true,
	})
	require.NoError(t, err)
	assert.True(t, updated.Completed)
	assert.Equal(t, domain.StatusCompleted, updated.Status)

	require.NoError(t, s.DeleteTask(ctx, id))
	_, err = s.GetTask(ctx, id)
	assert.Error(t, err)
}

func TestSQLiteIssuesServerID(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	task := domain.NewTask("owner", "submitted", "")
	clientID := task.ID

	serverID, err := s.CreateTask(ctx, task)
	require.NoError(t, err)
	assert.NotEqual(t, clientID, serverID)

	_, err = s.GetTask(ctx, clientID)
	assert.Error(t, err, "client id should not be addressable")
}

func TestSQLiteListTasksOwnerFilter(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	mine := domain.NewTask("alice", "mine", "")
	theirs := domain.NewTask("bob", "theirs", "")
	assigned := domain.NewTask("bob", "assigned to alice", "")
	assigned.AssignedTo = []string{"alice"}

	for _, task := range []*domain.Task{mine, theirs, assigned} {
		_, err := s.CreateTask(ctx, task)
		require.NoError(t, err)
	}

	tasks, err := s.ListTasks(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	all, err := s.ListTasks(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSQLiteOwnerFilterExactAssigneeMatch(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	assigned := domain.NewTask("bob", "for user-1", "")
	assigned.AssignedTo = []string{"user-1"}
	lookalike := domain.NewTask("bob", "for user-12", "")
	lookalike.AssignedTo = []string{"user-12"}
	for _, task := range []*domain.Task{assigned, lookalike} {
		_, err := s.CreateTask(ctx, task)
		require.NoError(t, err)
	}

	tasks, err := s.ListTasks(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "for user-1", tasks[0].Title)
}

func TestSQLiteMemberXPRoundtrip(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	member := domain.NewMember("Grace")
	id, err := s.CreateMember(ctx, member)
	require.NoError(t, err)

	updated, err := s.UpdateMember(ctx, id, map[string]interface{}{"xp": 150, "level": 2})
	require.NoError(t, err)
	assert.Equal(t, 150, updated.XP)
	assert.Equal(t, 2, updated.Level)

	got, err := s.GetMember(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 150, got.XP)
}

func TestSQLiteUnlockIdempotent(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	member := domain.NewMember("Grace")
	id, err := s.CreateMember(ctx, member)
	require.NoError(t, err)

	unlock := domain.Unlock{AchievementID: "first-steps", MemberID: id, UnlockedAt: time.Now()}
	require.NoError(t, s.RecordUnlock(ctx, unlock))
	require.NoError(t, s.RecordUnlock(ctx, unlock))

	unlocks, err := s.ListUnlocks(ctx, id)
	require.NoError(t, err)
	assert.Len(t, unlocks, 1)
}

func TestSQLiteTemplateRoundtrip(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	tpl := domain.NewTemplate("weekly review", "inbox zero, plan next week")
	tpl.Category = "rituals"
	tpl.Tags = []string{"weekly"}

	id, err := s.CreateTemplate(ctx, tpl)
	require.NoError(t, err)

	got, err := s.GetTemplate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "weekly review", got.Name)
	assert.Equal(t, []string{"weekly"}, got.Tags)

	bumped, err := s.UpdateTemplate(ctx, id, map[string]interface{}{"useCount": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, bumped.UseCount)

	require.NoError(t, s.DeleteTemplate(ctx, id))
	_, err = s.GetTemplate(ctx, id)
	assert.Error(t, err)
}

func TestSQLiteSnapshot(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	_, err := s.CreateTask(ctx, domain.NewTask("owner", "one", ""))
	require.NoError(t, err)
	_, err = s.CreateMember(ctx, domain.NewMember("Grace"))
	require.NoError(t, err)

	tasks, members, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
	assert.Len(t, members, 1)
}
