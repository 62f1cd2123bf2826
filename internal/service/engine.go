package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rcliao/momentum/internal/domain"
	"github.com/rcliao/momentum/internal/graph"
)

// Engine is the task lifecycle core. It owns the canonical in-memory
// task and member collections for the active session and routes every
// mutation through the active persistence adapter. External code must
// go through the engine's operations; the collections are never handed
// out by reference.
type Engine struct {
	mu sync.RWMutex

	local   Store
	remote  Store
	store   Store
	session *domain.Session

	tasks    map[string]*domain.Task
	members  map[string]*domain.Member
	unlocked map[string]map[string]bool
	selected string

	notifier Notifier
	logger   *slog.Logger

	// Side effects (XP, achievements, recurrence submission) run on a
	// single consumer goroutine, so they never block or fail the
	// primary operation that emitted them.
	effects   chan func()
	done      chan struct{}
	closeOnce sync.Once
}

func NewEngine(local, remote Store, notifier Notifier, logger *slog.Logger) *Engine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		local:    local,
		remote:   remote,
		store:    SelectStore(nil, remote, local),
		tasks:    make(map[string]*domain.Task),
		members:  make(map[string]*domain.Member),
		unlocked: make(map[string]map[string]bool),
		notifier: notifier,
		logger:   logger,
		effects:  make(chan func(), 64),
		done:     make(chan struct{}),
	}
	go e.runEffects()
	return e
}

// SelectStore is the pure adapter-selection decision: a session routes
// everything to the remote store, otherwise the local store serves.
func SelectStore(session *domain.Session, remote, local Store) Store {
	if session != nil && remote != nil {
		return remote
	}
	return local
}

func (e *Engine) runEffects() {
	defer close(e.done)
	for fn := range e.effects {
		fn()
	}
}

func (e *Engine) enqueue(fn func()) {
	defer func() {
		// The dispatcher may already be closed during shutdown; losing
		// a best-effort side effect then is acceptable.
		if recover() != nil {
			e.logger.Warn("side effect dropped, engine closed")
		}
	}()
	select {
	case e.effects <- fn:
	default:
		// Full buffer: run inline rather than block. An effect that
		// submits a task (recurrence) re-enqueues from the consumer
		// goroutine; a blocking send there would wedge the dispatcher.
		fn()
	}
}

// Settle blocks until every side effect enqueued so far has run.
func (e *Engine) Settle() {
	ch := make(chan struct{})
	e.enqueue(func() { close(ch) })
	<-ch
}

// Close drains the effect queue and stops the dispatcher.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.effects)
		<-e.done
	})
}

// Rebind installs the new session identity, re-selects the active
// adapter and reloads the collections from it. Local data is NOT
// migrated on login; Reconcile is the explicit path for that.
func (e *Engine) Rebind(ctx context.Context, session *domain.Session) error {
	e.mu.Lock()
	e.session = session
	e.store = SelectStore(session, e.remote, e.local)
	e.mu.Unlock()

	return e.Refresh(ctx)
}

// Session returns the current identity, or nil in local-only mode.
func (e *Engine) Session() *domain.Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.session == nil {
		return nil
	}
	s := *e.session
	return &s
}

func (e *Engine) activeStore() Store {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store
}

func (e *Engine) remoteActive() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session != nil && e.remote != nil
}

// Refresh replaces the in-memory collections with the active store's
// current contents.
func (e *Engine) Refresh(ctx context.Context) error {
	st := e.activeStore()

	tasks, err := st.ListTasks(ctx, "")
	if err != nil {
		return err
	}
	members, err := st.ListMembers(ctx)
	if err != nil {
		return err
	}
	unlocks, err := st.ListUnlocks(ctx, "")
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.replaceLocked(tasks, members)
	e.unlocked = make(map[string]map[string]bool)
	for _, u := range unlocks {
		e.markUnlockedLocked(u.MemberID, u.AchievementID)
	}
	return nil
}

// ApplySnapshot serves the push/poll subscription contract: the
// delivered lists are the source of truth and replace local state.
func (e *Engine) ApplySnapshot(tasks []*domain.Task, members []*domain.Member) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replaceLocked(tasks, members)
}

func (e *Engine) replaceLocked(tasks []*domain.Task, members []*domain.Member) {
	e.tasks = make(map[string]*domain.Task, len(tasks))
	for _, t := range tasks {
		e.tasks[t.ID] = t.Clone()
	}
	e.members = make(map[string]*domain.Member, len(members))
	for _, m := range members {
		e.members[m.ID] = m.Clone()
	}
}

func (e *Engine) markUnlockedLocked(memberID, achievementID string) {
	set, ok := e.unlocked[memberID]
	if !ok {
		set = make(map[string]bool)
		e.unlocked[memberID] = set
	}
	set[achievementID] = true
}

// Task returns a copy of one cached task.
func (e *Engine) Task(id string) (*domain.Task, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Tasks returns copies of the cached tasks in creation order.
func (e *Engine) Tasks() []*domain.Task {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tasksLocked()
}

func (e *Engine) tasksLocked() []*domain.Task {
	result := make([]*domain.Task, 0, len(e.tasks))
	for _, t := range e.tasks {
		result = append(result, t.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

func (e *Engine) Member(id string) (*domain.Member, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.members[id]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

func (e *Engine) Members() []*domain.Member {
	e.mu.RLock()
	defer e.mu.RUnlock()
	result := make([]*domain.Member, 0, len(e.members))
	for _, m := range e.members {
		result = append(result, m.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// CanComplete is the completion-gating query. It is advisory: the
// engine does not enforce it inside ToggleComplete, the interactive
// layer is expected to check it first.
func (e *Engine) CanComplete(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tasks[id]
	if !ok {
		return false
	}
	return graph.CanComplete(t, e.tasks)
}

// ScanOverdue emits a reminder event for every active task whose due
// date has passed, and returns how many were found.
func (e *Engine) ScanOverdue(now time.Time) int {
	e.mu.RLock()
	var overdue []*domain.Task
	for _, t := range e.tasks {
		if t.InBucket(domain.BucketActive) && !t.DueDate.IsZero() && t.DueDate.Before(now) {
			overdue = append(overdue, t.Clone())
		}
	}
	e.mu.RUnlock()

	for _, t := range overdue {
		e.notifier.TaskOverdue(t)
	}
	return len(overdue)
}
