package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/momentum/internal/domain"
	"github.com/rcliao/momentum/internal/gamify"
	"github.com/rcliao/momentum/internal/graph"
	"github.com/rcliao/momentum/internal/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLocalEngine(t *testing.T) (*Engine, *storage.MemoryStore) {
	t.Helper()
	local := storage.NewMemoryStore()
	e := NewEngine(local, nil, NopNotifier{}, quietLogger())
	t.Cleanup(e.Close)
	return e, local
}

func addMember(t *testing.T, e *Engine, name string) *domain.Member {
	t.Helper()
	m, err := e.AddMember(context.Background(), domain.NewMember(name))
	require.NoError(t, err)
	return m
}

func addTask(t *testing.T, e *Engine, ownerID, title string) *domain.Task {
	t.Helper()
	task, err := e.AddTask(context.Background(), domain.NewTask(ownerID, title, ""))
	require.NoError(t, err)
	return task
}

func TestCompleteTaskAwardsXP(t *testing.T) {
	e, _ := newLocalEngine(t)
	ctx := context.Background()

	member := addMember(t, e, "Ada")
	assert.Equal(t, 0, member.XP)
	assert.Equal(t, 1, member.Level)

	task := addTask(t, e, member.ID, "ship it")

	toggled, err := e.ToggleComplete(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, toggled.Completed)
	assert.Equal(t, domain.StatusCompleted, toggled.Status)
	e.Settle()

	got, ok := e.Member(member.ID)
	require.True(t, ok)
	assert.Equal(t, gamify.XPPerTask, got.XP)
	assert.Equal(t, 1, got.Level)

	_, err = e.ToggleComplete(ctx, task.ID)
	require.NoError(t, err)
	e.Settle()

	got, _ = e.Member(member.ID)
	assert.Equal(t, 0, got.XP)
	assert.Equal(t, 1, got.Level)
}

func TestToggleSymmetryWithSubtasks(t *testing.T) {
	e, _ := newLocalEngine(t)
	ctx := context.Background()

	member := addMember(t, e, "Ada")
	require.NoError(t, e.AddXP(ctx, member.ID, 37))

	task := domain.NewTask(member.ID, "layered work", "")
	done := domain.NewSubtask("already finished")
	done.Completed = true
	task.Subtasks = []domain.Subtask{done, domain.NewSubtask("still open")}
	created, err := e.AddTask(ctx, task)
	require.NoError(t, err)
	e.Settle()

	_, err = e.ToggleComplete(ctx, created.ID)
	require.NoError(t, err)
	e.Settle()

	got, _ := e.Member(member.ID)
	assert.Equal(t, 37+gamify.XPPerTask+gamify.XPPerSubtask, got.XP)

	_, err = e.ToggleComplete(ctx, created.ID)
	require.NoError(t, err)
	e.Settle()

	got, _ = e.Member(member.ID)
	assert.Equal(t, 37, got.XP, "uncompleting must return xp to its exact prior value")
}

func TestSubtaskToggleXP(t *testing.T) {
	e, _ := newLocalEngine(t)
	ctx := context.Background()

	member := addMember(t, e, "Ada")
	task := addTask(t, e, member.ID, "with steps")

	withSub, err := e.AddSubtask(ctx, task.ID, "step one")
	require.NoError(t, err)
	require.Len(t, withSub.Subtasks, 1)

	_, err = e.ToggleSubtaskComplete(ctx, task.ID, withSub.Subtasks[0].ID)
	require.NoError(t, err)
	e.Settle()
	got, _ := e.Member(member.ID)
	assert.Equal(t, gamify.XPPerSubtask, got.XP)

	_, err = e.ToggleSubtaskComplete(ctx, task.ID, withSub.Subtasks[0].ID)
	require.NoError(t, err)
	e.Settle()
	got, _ = e.Member(member.ID)
	assert.Equal(t, 0, got.XP)
}

func TestDeleteCompletedSubtaskRefundsXP(t *testing.T) {
	e, _ := newLocalEngine(t)
	ctx := context.Background()

	member := addMember(t, e, "Ada")
	task := addTask(t, e, member.ID, "with steps")

	withSub, err := e.AddSubtask(ctx, task.ID, "step one")
	require.NoError(t, err)
	subID := withSub.Subtasks[0].ID

	_, err = e.ToggleSubtaskComplete(ctx, task.ID, subID)
	require.NoError(t, err)
	e.Settle()

	_, err = e.DeleteSubtask(ctx, task.ID, subID)
	require.NoError(t, err)
	e.Settle()

	got, _ := e.Member(member.ID)
	assert.Equal(t, 0, got.XP)
}

func TestFilterComposition(t *testing.T) {
	e, _ := newLocalEngine(t)
	ctx := context.Background()

	high := domain.NewTask("alice", "urgent report", "")
	high.Priority = domain.PriorityHigh
	_, err := e.AddTask(ctx, high)
	require.NoError(t, err)

	low := domain.NewTask("alice", "tidy desk", "")
	low.Priority = domain.PriorityLow
	_, err = e.AddTask(ctx, low)
	require.NoError(t, err)

	other := domain.NewTask("bob", "urgent call", "")
	other.Priority = domain.PriorityHigh
	_, err = e.AddTask(ctx, other)
	require.NoError(t, err)

	owner := "alice"
	byOwner := e.Filter(domain.TaskFilter{OwnerID: &owner})
	assert.Len(t, byOwner, 2)

	priority := domain.PriorityHigh
	combined := e.Filter(domain.TaskFilter{OwnerID: &owner, Priority: &priority})
	require.Len(t, combined, 1)
	assert.Equal(t, "urgent report", combined[0].Title)

	// Adding a restriction never grows the result.
	assert.LessOrEqual(t, len(combined), len(byOwner))

	searched := e.Filter(domain.TaskFilter{Search: "urgent"})
	assert.Len(t, searched, 2)

	everything := e.Filter(domain.TaskFilter{})
	all := e.Tasks()
	require.Len(t, everything, len(all))
	for i := range all {
		assert.Equal(t, all[i].ID, everything[i].ID)
	}
}

func TestDependencyLifecycle(t *testing.T) {
	e, _ := newLocalEngine(t)
	ctx := context.Background()

	a := addTask(t, e, "owner", "foundation")
	b := addTask(t, e, "owner", "walls")

	require.NoError(t, e.AddDependency(ctx, b.ID, a.ID))

	err := e.AddDependency(ctx, a.ID, b.ID)
	require.ErrorIs(t, err, graph.ErrCycle)

	// The rejected edit left no trace.
	gotA, _ := e.Task(a.ID)
	assert.Empty(t, gotA.DependsOn)

	assert.False(t, e.CanComplete(b.ID))
	assert.True(t, e.CanComplete(a.ID))

	_, err = e.ToggleComplete(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, e.CanComplete(b.ID))
}

func TestBlockingEditsBothSides(t *testing.T) {
	e, local := newLocalEngine(t)
	ctx := context.Background()

	a := addTask(t, e, "owner", "upstream")
	b := addTask(t, e, "owner", "downstream")

	require.NoError(t, e.AddBlocking(ctx, a.ID, b.ID))

	storedA, err := local.GetTask(ctx, a.ID)
	require.NoError(t, err)
	storedB, err := local.GetTask(ctx, b.ID)
	require.NoError(t, err)
	assert.Contains(t, storedA.Blocks, b.ID)
	assert.Contains(t, storedB.DependsOn, a.ID)

	require.NoError(t, e.RemoveBlocking(ctx, a.ID, b.ID))
	storedA, _ = local.GetTask(ctx, a.ID)
	storedB, _ = local.GetTask(ctx, b.ID)
	assert.Empty(t, storedA.Blocks)
	assert.Empty(t, storedB.DependsOn)
}

func TestDeleteTaskDetachesEdges(t *testing.T) {
	e, local := newLocalEngine(t)
	ctx := context.Background()

	a := addTask(t, e, "owner", "to be removed")
	b := addTask(t, e, "owner", "depends on it")
	require.NoError(t, e.AddDependency(ctx, b.ID, a.ID))

	require.NoError(t, e.DeleteTask(ctx, a.ID))

	gotB, _ := e.Task(b.ID)
	assert.Empty(t, gotB.DependsOn)
	storedB, err := local.GetTask(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, storedB.DependsOn)
	assert.True(t, e.CanComplete(b.ID))
}

func TestDeleteCompletedTaskReversesXP(t *testing.T) {
	e, _ := newLocalEngine(t)
	ctx := context.Background()

	member := addMember(t, e, "Ada")
	task := addTask(t, e, member.ID, "transient win")

	_, err := e.ToggleComplete(ctx, task.ID)
	require.NoError(t, err)
	e.Settle()

	require.NoError(t, e.DeleteTask(ctx, task.ID))
	e.Settle()

	got, _ := e.Member(member.ID)
	assert.Equal(t, 0, got.XP)
}

func TestAchievementsSurviveTaskDeletion(t *testing.T) {
	e, _ := newLocalEngine(t)
	ctx := context.Background()

	member := addMember(t, e, "Ada")
	task := addTask(t, e, member.ID, "first ever")

	_, err := e.ToggleComplete(ctx, task.ID)
	require.NoError(t, err)
	e.Settle()

	unlocks, err := e.Unlocks(ctx, member.ID)
	require.NoError(t, err)
	ids := make([]string, 0, len(unlocks))
	for _, u := range unlocks {
		ids = append(ids, u.AchievementID)
	}
	assert.Contains(t, ids, "first-steps")

	require.NoError(t, e.DeleteTask(ctx, task.ID))
	e.Settle()

	after, err := e.Unlocks(ctx, member.ID)
	require.NoError(t, err)
	assert.Len(t, after, len(unlocks), "unlocks are one-way and never revoked")
}

func TestPreviousStatusRestored(t *testing.T) {
	e, _ := newLocalEngine(t)
	ctx := context.Background()

	task := addTask(t, e, "owner", "interrupted work")
	_, err := e.UpdateTask(ctx, task.ID, map[string]interface{}{"status": domain.StatusInProgress})
	require.NoError(t, err)

	_, err = e.ToggleComplete(ctx, task.ID)
	require.NoError(t, err)

	restored, err := e.ToggleComplete(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, restored.Completed)
	assert.Equal(t, domain.StatusInProgress, restored.Status)
}

func TestRecurrenceSpawnsNextOccurrence(t *testing.T) {
	e, _ := newLocalEngine(t)
	ctx := context.Background()

	due := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	task := domain.NewTask("owner", "water the plants", "")
	task.DueDate = due
	task.Recurrence = &domain.Recurrence{Type: domain.RecurrenceDaily, Interval: 1}
	created, err := e.AddTask(ctx, task)
	require.NoError(t, err)

	_, err = e.ToggleComplete(ctx, created.ID)
	require.NoError(t, err)
	e.Settle()

	all := e.Tasks()
	require.Len(t, all, 2)

	var next *domain.Task
	for _, t2 := range all {
		if t2.ID != created.ID {
			next = t2
		}
	}
	require.NotNil(t, next)
	require.NotNil(t, next.ParentRecurringTaskID)
	assert.Equal(t, created.ID, *next.ParentRecurringTaskID)
	assert.Equal(t, due.AddDate(0, 0, 1), next.DueDate)
	assert.False(t, next.Completed)
}

func TestScanOverdueNotifies(t *testing.T) {
	n := &recordingNotifier{}
	local := storage.NewMemoryStore()
	e := NewEngine(local, nil, n, quietLogger())
	t.Cleanup(e.Close)
	ctx := context.Background()

	stale := domain.NewTask("owner", "forgotten", "")
	stale.DueDate = time.Now().Add(-time.Hour)
	_, err := e.AddTask(ctx, stale)
	require.NoError(t, err)

	finished := domain.NewTask("owner", "wrapped up", "")
	finished.DueDate = time.Now().Add(-time.Hour)
	created, err := e.AddTask(ctx, finished)
	require.NoError(t, err)
	_, err = e.ToggleComplete(ctx, created.ID)
	require.NoError(t, err)

	count := e.ScanOverdue(time.Now())
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"forgotten"}, n.overdueTitles())
}

func TestAddTaskValidation(t *testing.T) {
	e, _ := newLocalEngine(t)
	ctx := context.Background()

	_, err := e.AddTask(ctx, domain.NewTask("owner", "", ""))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.UpdateTask(ctx, "whatever", map[string]interface{}{"title": "   "})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateMemberStripsScoreFields(t *testing.T) {
	e, _ := newLocalEngine(t)
	ctx := context.Background()

	member := addMember(t, e, "Ada")
	updated, err := e.UpdateMember(ctx, member.ID, map[string]interface{}{
		"name": "Ada L.",
		"xp":   9000,
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", updated.Name)
	assert.Equal(t, 0, updated.XP)
}

func TestDeleteMemberCascadesOwnedTasks(t *testing.T) {
	e, _ := newLocalEngine(t)
	ctx := context.Background()

	member := addMember(t, e, "Ada")
	owned := addTask(t, e, member.ID, "hers")
	other := addTask(t, e, "someone-else", "not hers")

	require.NoError(t, e.DeleteMember(ctx, member.ID))

	_, ok := e.Task(owned.ID)
	assert.False(t, ok)
	_, ok = e.Task(other.ID)
	assert.True(t, ok)
	_, ok = e.Member(member.ID)
	assert.False(t, ok)
}

// failingStore wraps a working store and forces chosen operations to
// fail, standing in for an unreachable server.
type failingStore struct {
	Store
	failCreate bool
	failUpdate bool
	failDelete bool
}

var errStoreDown = errors.New("connection refused")

func (f *failingStore) CreateTask(ctx context.Context, task *domain.Task) (string, error) {
	if f.failCreate {
		return "", errStoreDown
	}
	return f.Store.CreateTask(ctx, task)
}

func (f *failingStore) UpdateTask(ctx context.Context, id string, updates map[string]interface{}) (*domain.Task, error) {
	if f.failUpdate {
		return nil, errStoreDown
	}
	return f.Store.UpdateTask(ctx, id, updates)
}

func (f *failingStore) DeleteTask(ctx context.Context, id string) error {
	if f.failDelete {
		return errStoreDown
	}
	return f.Store.DeleteTask(ctx, id)
}

func newRemoteEngine(t *testing.T, remote Store) *Engine {
	t.Helper()
	e := NewEngine(storage.NewMemoryStore(), remote, NopNotifier{}, quietLogger())
	t.Cleanup(e.Close)
	require.NoError(t, e.Rebind(context.Background(), &domain.Session{UserID: "user-1"}))
	return e
}

func TestEffectQueueAcceptsReentrantEnqueueWhenFull(t *testing.T) {
	e, _ := newLocalEngine(t)

	// Park the consumer, then fill the buffer behind it.
	gate := make(chan struct{})
	nested := make(chan struct{})
	e.enqueue(func() {
		<-gate
		// Mirrors the recurrence path: an effect submits a task, which
		// enqueues a follow-up from inside the consumer goroutine.
		e.enqueue(func() { close(nested) })
	})
	for i := 0; i < cap(e.effects); i++ {
		e.enqueue(func() {})
	}

	close(gate)
	select {
	case <-nested:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher wedged enqueueing into its own full queue")
	}
	e.Settle()
}

func TestFailedLocalDeleteKeepsXP(t *testing.T) {
	local := &failingStore{Store: storage.NewMemoryStore()}
	e := NewEngine(local, nil, NopNotifier{}, quietLogger())
	t.Cleanup(e.Close)
	ctx := context.Background()

	member := addMember(t, e, "Ada")
	task := addTask(t, e, member.ID, "sticky")
	_, err := e.ToggleComplete(ctx, task.ID)
	require.NoError(t, err)
	e.Settle()

	local.failDelete = true
	err = e.DeleteTask(ctx, task.ID)
	require.ErrorIs(t, err, errStoreDown)
	e.Settle()

	got, _ := e.Member(member.ID)
	assert.Equal(t, gamify.XPPerTask, got.XP, "a rejected delete must not debit the owner")
	_, ok := e.Task(task.ID)
	assert.True(t, ok)
}

func TestFailedSubtaskDeleteKeepsXP(t *testing.T) {
	local := &failingStore{Store: storage.NewMemoryStore()}
	e := NewEngine(local, nil, NopNotifier{}, quietLogger())
	t.Cleanup(e.Close)
	ctx := context.Background()

	member := addMember(t, e, "Ada")
	task := addTask(t, e, member.ID, "with steps")
	withSub, err := e.AddSubtask(ctx, task.ID, "step one")
	require.NoError(t, err)
	subID := withSub.Subtasks[0].ID

	_, err = e.ToggleSubtaskComplete(ctx, task.ID, subID)
	require.NoError(t, err)
	e.Settle()

	local.failUpdate = true
	_, err = e.DeleteSubtask(ctx, task.ID, subID)
	require.ErrorIs(t, err, errStoreDown)
	e.Settle()

	got, _ := e.Member(member.ID)
	assert.Equal(t, gamify.XPPerSubtask, got.XP)
}

func TestRemoteCreateFailurePropagates(t *testing.T) {
	remote := &failingStore{Store: storage.NewMemoryStore(), failCreate: true}
	e := newRemoteEngine(t, remote)
	ctx := context.Background()

	_, err := e.AddTask(ctx, domain.NewTask("owner", "never lands", ""))
	require.ErrorIs(t, err, errStoreDown)

	// No local fallback: nothing was cached.
	assert.Empty(t, e.Tasks())
}

func TestRemoteDeleteDegradesGracefully(t *testing.T) {
	remote := &failingStore{Store: storage.NewMemoryStore()}
	e := newRemoteEngine(t, remote)
	ctx := context.Background()

	task := addTask(t, e, "owner", "stuck on the server")
	remote.failDelete = true

	require.NoError(t, e.DeleteTask(ctx, task.ID))
	_, ok := e.Task(task.ID)
	assert.False(t, ok, "task leaves the working set even when the server refuses")
}

func TestAddMemberRejectedInRemoteMode(t *testing.T) {
	e := newRemoteEngine(t, storage.NewMemoryStore())

	_, err := e.AddMember(context.Background(), domain.NewMember("Ada"))
	assert.ErrorIs(t, err, ErrRemoteMemberCreate)
}

func TestReconcileSkipsRemoteDuplicates(t *testing.T) {
	local := storage.NewMemoryStore()
	remote := storage.NewMemoryStore()
	ctx := context.Background()

	_, err := local.CreateTask(ctx, domain.NewTask("owner", "groceries", ""))
	require.NoError(t, err)
	_, err = local.CreateTask(ctx, domain.NewTask("owner", "laundry", ""))
	require.NoError(t, err)
	_, err = remote.CreateTask(ctx, domain.NewTask("owner", "groceries", ""))
	require.NoError(t, err)

	e := NewEngine(local, remote, NopNotifier{}, quietLogger())
	t.Cleanup(e.Close)
	require.NoError(t, e.Rebind(ctx, &domain.Session{UserID: "user-1"}))

	migrated, skipped, err := e.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, migrated)
	assert.Equal(t, 1, skipped)

	remoteTasks, err := remote.ListTasks(ctx, "")
	require.NoError(t, err)
	assert.Len(t, remoteTasks, 2)

	// Re-running reconcile is a no-op.
	migrated, skipped, err = e.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, migrated)
	assert.Equal(t, 2, skipped)
}

func TestReconcileRequiresSession(t *testing.T) {
	e, _ := newLocalEngine(t)

	_, _, err := e.Reconcile(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestInstantiateTemplateBumpsUseCount(t *testing.T) {
	e, _ := newLocalEngine(t)
	ctx := context.Background()

	tpl := domain.NewTemplate("weekly review", "plan the week")
	tpl.Subtasks = []domain.Subtask{domain.NewSubtask("clear inbox")}
	saved, err := e.SaveTemplate(ctx, tpl)
	require.NoError(t, err)

	created, err := e.InstantiateTemplate(ctx, saved.ID, "owner")
	require.NoError(t, err)
	assert.Equal(t, "plan the week", created.Title)
	assert.Equal(t, "owner", created.OwnerID)
	require.Len(t, created.Subtasks, 1)
	assert.False(t, created.Subtasks[0].Completed)
	assert.NotEqual(t, saved.Subtasks[0].ID, created.Subtasks[0].ID)

	templates, err := e.Templates(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, 1, templates[0].UseCount)
}

func TestApplySnapshotReplacesWorkingSet(t *testing.T) {
	e, _ := newLocalEngine(t)

	addTask(t, e, "owner", "stale local view")

	pushed := domain.NewTask("owner", "authoritative", "")
	member := domain.NewMember("Ada")
	e.ApplySnapshot([]*domain.Task{pushed}, []*domain.Member{member})

	all := e.Tasks()
	require.Len(t, all, 1)
	assert.Equal(t, "authoritative", all[0].Title)
	_, ok := e.Member(member.ID)
	assert.True(t, ok)
}

func TestRebindDoesNotMigrate(t *testing.T) {
	local := storage.NewMemoryStore()
	remote := storage.NewMemoryStore()
	ctx := context.Background()

	_, err := local.CreateTask(ctx, domain.NewTask("owner", "local only", ""))
	require.NoError(t, err)

	e := NewEngine(local, remote, NopNotifier{}, quietLogger())
	t.Cleanup(e.Close)
	require.NoError(t, e.Rebind(ctx, &domain.Session{UserID: "user-1"}))

	assert.Empty(t, e.Tasks(), "login swaps the working set, it never copies local data")

	remoteTasks, err := remote.ListTasks(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, remoteTasks)
}

type recordingNotifier struct {
	mu      sync.Mutex
	overdue []string
	unlocks []string
}

func (n *recordingNotifier) AchievementUnlocked(_ *domain.Member, a gamify.Achievement) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unlocks = append(n.unlocks, a.ID)
}

func (n *recordingNotifier) TaskOverdue(task *domain.Task) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.overdue = append(n.overdue, task.Title)
}

func (n *recordingNotifier) overdueTitles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.overdue...)
}

func TestAchievementNotification(t *testing.T) {
	n := &recordingNotifier{}
	e := NewEngine(storage.NewMemoryStore(), nil, n, quietLogger())
	t.Cleanup(e.Close)
	ctx := context.Background()

	member := addMember(t, e, "Ada")
	task := addTask(t, e, member.ID, "first ever")
	_, err := e.ToggleComplete(ctx, task.ID)
	require.NoError(t, err)
	e.Settle()

	n.mu.Lock()
	defer n.mu.Unlock()
	assert.Contains(t, n.unlocks, "first-steps")
}
