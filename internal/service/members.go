package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rcliao/momentum/internal/domain"
	"github.com/rcliao/momentum/internal/gamify"
)

// AddMember creates a gamification profile. Rejected outright in remote
// mode, where members are authenticated accounts rather than freely
// creatable records.
func (e *Engine) AddMember(ctx context.Context, member *domain.Member) (*domain.Member, error) {
	if e.remoteActive() {
		return nil, ErrRemoteMemberCreate
	}
	if err := member.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if _, err := e.activeStore().CreateMember(ctx, member); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.members[member.ID] = member.Clone()
	e.mu.Unlock()

	e.enqueue(e.evaluateAchievements)
	return member.Clone(), nil
}

// UpdateMember merges profile fields. XP and level are stripped: they
// move only through the XP operations, and level only ever derives
// from XP.
func (e *Engine) UpdateMember(ctx context.Context, id string, updates map[string]interface{}) (*domain.Member, error) {
	delete(updates, "xp")
	delete(updates, "level")
	if name, ok := updates["name"].(string); ok && name == "" {
		return nil, fmt.Errorf("%w: member name is required", ErrValidation)
	}

	updated, err := e.activeStore().UpdateMember(ctx, id, updates)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.members[updated.ID] = updated.Clone()
	e.mu.Unlock()

	return updated.Clone(), nil
}

// DeleteMember removes the profile and cascades deletion of every task
// it exclusively owns, not merely unassigning them.
func (e *Engine) DeleteMember(ctx context.Context, id string) error {
	e.mu.RLock()
	var owned []string
	for _, t := range e.tasks {
		if t.OwnerID == id {
			owned = append(owned, t.ID)
		}
	}
	e.mu.RUnlock()

	for _, taskID := range owned {
		if err := e.DeleteTask(ctx, taskID); err != nil {
			e.logger.Warn("cascade delete failed",
				slog.String("task", taskID), slog.String("error", err.Error()))
		}
	}

	if err := e.activeStore().DeleteMember(ctx, id); err != nil {
		return err
	}

	e.mu.Lock()
	delete(e.members, id)
	delete(e.unlocked, id)
	e.mu.Unlock()
	return nil
}

// AddXP is the one sanctioned way to raise a member's score.
func (e *Engine) AddXP(ctx context.Context, memberID string, amount int) error {
	if amount < 0 {
		return fmt.Errorf("%w: xp amount must be non-negative", ErrValidation)
	}
	return e.applyXP(ctx, memberID, amount)
}

// RemoveXP reverses awards with the same magnitudes AddXP grants.
func (e *Engine) RemoveXP(ctx context.Context, memberID string, amount int) error {
	if amount < 0 {
		return fmt.Errorf("%w: xp amount must be non-negative", ErrValidation)
	}
	return e.applyXP(ctx, memberID, -amount)
}

// applyXP clamps at zero before the leveling function sees the value,
// then persists xp and the derived level together.
func (e *Engine) applyXP(ctx context.Context, memberID string, delta int) error {
	member, ok := e.Member(memberID)
	if !ok {
		var err error
		member, err = e.activeStore().GetMember(ctx, memberID)
		if err != nil {
			return err
		}
	}

	xp := member.XP + delta
	if xp < 0 {
		xp = 0
	}

	updated, err := e.activeStore().UpdateMember(ctx, memberID, map[string]interface{}{
		"xp":    xp,
		"level": gamify.Level(xp),
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.members[updated.ID] = updated.Clone()
	e.mu.Unlock()
	return nil
}

// adjustXP is the fire-and-forget wrapper the effect queue runs:
// failures are logged, never propagated, and achievements re-evaluate
// once the score settles.
func (e *Engine) adjustXP(memberID string, delta int) {
	if err := e.applyXP(context.Background(), memberID, delta); err != nil {
		e.logger.Error("xp adjustment failed",
			slog.String("member", memberID), slog.Int("delta", delta),
			slog.String("error", err.Error()))
		return
	}
	e.evaluateAchievements()
}

// evaluateAchievements runs the fixed predicate registry for every
// member and records first-time unlocks. Unlocks are one-way: once
// recorded they are never revisited, even if the condition later turns
// false.
func (e *Engine) evaluateAchievements() {
	e.mu.RLock()
	members := make([]*domain.Member, 0, len(e.members))
	for _, m := range e.members {
		members = append(members, m.Clone())
	}
	tasks := e.tasksLocked()
	unlockedByMember := make(map[string]map[string]bool, len(e.unlocked))
	for memberID, set := range e.unlocked {
		copied := make(map[string]bool, len(set))
		for id := range set {
			copied[id] = true
		}
		unlockedByMember[memberID] = copied
	}
	e.mu.RUnlock()

	for _, member := range members {
		newly := gamify.Evaluate(member, tasks, unlockedByMember[member.ID])
		for _, a := range newly {
			unlock := domain.Unlock{
				AchievementID: a.ID,
				MemberID:      member.ID,
				UnlockedAt:    time.Now(),
			}
			if err := e.activeStore().RecordUnlock(context.Background(), unlock); err != nil {
				e.logger.Error("achievement unlock not recorded",
					slog.String("achievement", a.ID), slog.String("member", member.ID),
					slog.String("error", err.Error()))
				continue
			}
			e.mu.Lock()
			e.markUnlockedLocked(member.ID, a.ID)
			e.mu.Unlock()
			e.notifier.AchievementUnlocked(member, a)
		}
	}
}

// Unlocks returns the recorded achievement unlocks for one member.
func (e *Engine) Unlocks(ctx context.Context, memberID string) ([]domain.Unlock, error) {
	return e.activeStore().ListUnlocks(ctx, memberID)
}

// SelectMember remembers which local profile is active. It is a
// local-mode concern; stores without the capability ignore it.
func (e *Engine) SelectMember(id string) error {
	e.mu.Lock()
	e.selected = id
	e.mu.Unlock()

	if sel, ok := e.local.(MemberSelector); ok {
		return sel.SetSelectedMember(id)
	}
	return nil
}

func (e *Engine) SelectedMember() string {
	e.mu.RLock()
	if e.selected != "" {
		defer e.mu.RUnlock()
		return e.selected
	}
	e.mu.RUnlock()

	if sel, ok := e.local.(MemberSelector); ok {
		if id, err := sel.SelectedMember(); err == nil {
			return id
		}
	}
	return ""
}
