package service

import (
	"context"
)

// Reconcile replays the local-only snapshot into the remote store.
// Logging in never triggers this implicitly; it is a separate,
// user-invoked operation. Each local task is re-submitted through the
// normal remote creation path, skipping tasks that already exist
// remotely under the duplicate rule: same title and same owner.
func (e *Engine) Reconcile(ctx context.Context) (migrated, skipped int, err error) {
	if !e.remoteActive() {
		return 0, 0, ErrNoSession
	}

	localTasks, err := e.local.ListTasks(ctx, "")
	if err != nil {
		return 0, 0, err
	}
	remoteTasks, err := e.remote.ListTasks(ctx, "")
	if err != nil {
		return 0, 0, err
	}

	type key struct{ title, owner string }
	existing := make(map[key]bool, len(remoteTasks))
	for _, t := range remoteTasks {
		existing[key{t.Title, t.OwnerID}] = true
	}

	for _, t := range localTasks {
		k := key{t.Title, t.OwnerID}
		if existing[k] {
			skipped++
			continue
		}
		if _, err := e.AddTask(ctx, t.Clone()); err != nil {
			return migrated, skipped, err
		}
		existing[k] = true
		migrated++
	}

	return migrated, skipped, nil
}
