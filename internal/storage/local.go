package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/rcliao/momentum/internal/domain"
)

// DefaultMaxRecordBytes is the write ceiling per record file. Writes
// above the ceiling are skipped silently, mirroring a browser-style
// quota: the store must tolerate the overflow, not crash on it.
const DefaultMaxRecordBytes = 5 << 20

const storeDir = ".momentum"

// LocalStore is the local-only persistence adapter: a synchronous JSON
// key-value store over independent record files (tasks, members,
// templates, unlocks, config). It never suspends; the context arguments
// exist only to satisfy the shared store contract.
type LocalStore struct {
	basePath       string
	maxRecordBytes int
	logger         *slog.Logger
	mu             sync.RWMutex
}

type localConfig struct {
	SelectedMemberID string `json:"selectedMemberId,omitempty"`
}

func NewLocalStore(basePath string, logger *slog.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ls := &LocalStore{
		basePath:       basePath,
		maxRecordBytes: DefaultMaxRecordBytes,
		logger:         logger,
	}
	if err := os.MkdirAll(filepath.Join(basePath, storeDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to initialize local store: %w", err)
	}
	return ls, nil
}

// SetMaxRecordBytes overrides the write ceiling.
func (ls *LocalStore) SetMaxRecordBytes(n int) {
	ls.maxRecordBytes = n
}

func (ls *LocalStore) recordPath(name string) string {
	return filepath.Join(ls.basePath, storeDir, name)
}

// saveJSON writes atomically via a temp file. Payloads over the ceiling
// are dropped with a warning rather than failing the caller.
func (ls *LocalStore) saveJSON(path string, data interface{}) error {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	if len(encoded) > ls.maxRecordBytes {
		ls.logger.Warn("record exceeds size ceiling, write skipped",
			slog.String("path", path), slog.Int("bytes", len(encoded)))
		return nil
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, encoded, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, path)
}

// loadSlice decodes a JSON array element by element so a single corrupt
// record does not prevent the rest of the collection from loading.
func loadSlice[T any](ls *LocalStore, path string) ([]*T, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return make([]*T, 0), nil
	}
	if err != nil {
		return nil, err
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		ls.logger.Warn("record file is corrupt, starting empty", slog.String("path", path))
		return make([]*T, 0), nil
	}

	result := make([]*T, 0, len(elements))
	for _, element := range elements {
		var item T
		if err := json.Unmarshal(element, &item); err != nil {
			ls.logger.Warn("skipping corrupt record", slog.String("path", path))
			continue
		}
		result = append(result, &item)
	}
	return result, nil
}

func (ls *LocalStore) loadTasks() ([]*domain.Task, error) {
	return loadSlice[domain.Task](ls, ls.recordPath("tasks.json"))
}

func (ls *LocalStore) saveTasks(tasks []*domain.Task) error {
	return ls.saveJSON(ls.recordPath("tasks.json"), tasks)
}

func (ls *LocalStore) loadMembers() ([]*domain.Member, error) {
	return loadSlice[domain.Member](ls, ls.recordPath("members.json"))
}

func (ls *LocalStore) saveMembers(members []*domain.Member) error {
	return ls.saveJSON(ls.recordPath("members.json"), members)
}

func (ls *LocalStore) loadTemplates() ([]*domain.Template, error) {
	return loadSlice[domain.Template](ls, ls.recordPath("templates.json"))
}

func (ls *LocalStore) saveTemplates(templates []*domain.Template) error {
	return ls.saveJSON(ls.recordPath("templates.json"), templates)
}

func (ls *LocalStore) loadUnlocks() ([]*domain.Unlock, error) {
	return loadSlice[domain.Unlock](ls, ls.recordPath("unlocks.json"))
}

func (ls *LocalStore) saveUnlocks(unlocks []*domain.Unlock) error {
	return ls.saveJSON(ls.recordPath("unlocks.json"), unlocks)
}

func (ls *LocalStore) CreateTask(_ context.Context, task *domain.Task) (string, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	tasks, err := ls.loadTasks()
	if err != nil {
		return "", err
	}
	for _, t := range tasks {
		if t.ID == task.ID {
			return "", fmt.Errorf("task with ID %s already exists", task.ID)
		}
	}

	tasks = append(tasks, task.Clone())
	if err := ls.saveTasks(tasks); err != nil {
		return "", err
	}
	return task.ID, nil
}

func (ls *LocalStore) GetTask(_ context.Context, id string) (*domain.Task, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	tasks, err := ls.loadTasks()
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("task with ID %s not found", id)
}

func (ls *LocalStore) UpdateTask(_ context.Context, id string, updates map[string]interface{}) (*domain.Task, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	tasks, err := ls.loadTasks()
	if err != nil {
		return nil, err
	}
	for i, t := range tasks {
		if t.ID == id {
			updated := domain.ApplyTaskUpdates(t, updates)
			tasks[i] = updated
			if err := ls.saveTasks(tasks); err != nil {
				return nil, err
			}
			return updated.Clone(), nil
		}
	}
	return nil, fmt.Errorf("task with ID %s not found", id)
}

func (ls *LocalStore) ListTasks(_ context.Context, owner string) ([]*domain.Task, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	tasks, err := ls.loadTasks()
	if err != nil {
		return nil, err
	}

	var result []*domain.Task
	for _, t := range tasks {
		if owner != "" && !ownedOrAssigned(t, owner) {
			continue
		}
		result = append(result, t)
	}
	sortTasks(result)
	return result, nil
}

func (ls *LocalStore) DeleteTask(_ context.Context, id string) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	tasks, err := ls.loadTasks()
	if err != nil {
		return err
	}
	for i, t := range tasks {
		if t.ID == id {
			tasks = append(tasks[:i], tasks[i+1:]...)
			return ls.saveTasks(tasks)
		}
	}
	return fmt.Errorf("task with ID %s not found", id)
}

func (ls *LocalStore) CreateMember(_ context.Context, member *domain.Member) (string, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	members, err := ls.loadMembers()
	if err != nil {
		return "", err
	}
	for _, m := range members {
		if m.ID == member.ID {
			return "", fmt.Errorf("member with ID %s already exists", member.ID)
		}
	}

	members = append(members, member.Clone())
	if err := ls.saveMembers(members); err != nil {
		return "", err
	}
	return member.ID, nil
}

func (ls *LocalStore) GetMember(_ context.Context, id string) (*domain.Member, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	members, err := ls.loadMembers()
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, fmt.Errorf("member with ID %s not found", id)
}

func (ls *LocalStore) UpdateMember(_ context.Context, id string, updates map[string]interface{}) (*domain.Member, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	members, err := ls.loadMembers()
	if err != nil {
		return nil, err
	}
	for i, m := range members {
		if m.ID == id {
			updated := domain.ApplyMemberUpdates(m, updates)
			members[i] = updated
			if err := ls.saveMembers(members); err != nil {
				return nil, err
			}
			return updated.Clone(), nil
		}
	}
	return nil, fmt.Errorf("member with ID %s not found", id)
}

func (ls *LocalStore) ListMembers(_ context.Context) ([]*domain.Member, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	return ls.loadMembers()
}

func (ls *LocalStore) DeleteMember(_ context.Context, id string) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	members, err := ls.loadMembers()
	if err != nil {
		return err
	}
	for i, m := range members {
		if m.ID == id {
			members = append(members[:i], members[i+1:]...)
			return ls.saveMembers(members)
		}
	}
	return fmt.Errorf("member with ID %s not found", id)
}

func (ls *LocalStore) CreateTemplate(_ context.Context, tpl *domain.Template) (string, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	templates, err := ls.loadTemplates()
	if err != nil {
		return "", err
	}
	for _, existing := range templates {
		if existing.ID == tpl.ID {
			return "", fmt.Errorf("template with ID %s already exists", tpl.ID)
		}
	}

	clone := *tpl
	templates = append(templates, &clone)
	if err := ls.saveTemplates(templates); err != nil {
		return "", err
	}
	return tpl.ID, nil
}

func (ls *LocalStore) GetTemplate(_ context.Context, id string) (*domain.Template, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	templates, err := ls.loadTemplates()
	if err != nil {
		return nil, err
	}
	for _, tpl := range templates {
		if tpl.ID == id {
			return tpl, nil
		}
	}
	return nil, fmt.Errorf("template with ID %s not found", id)
}

func (ls *LocalStore) ListTemplates(_ context.Context) ([]*domain.Template, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	return ls.loadTemplates()
}

func (ls *LocalStore) UpdateTemplate(_ context.Context, id string, updates map[string]interface{}) (*domain.Template, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	templates, err := ls.loadTemplates()
	if err != nil {
		return nil, err
	}
	for i, tpl := range templates {
		if tpl.ID == id {
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
			templates[i] = &updated
			if err := ls.saveTemplates(templates); err != nil {
				return nil, err
			}
			return &updated, nil
		}
	}
	return nil, fmt.Errorf("template with ID %s not found", id)
}

func (ls *LocalStore) DeleteTemplate(_ context.Context, id string) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	templates, err := ls.loadTemplates()
	if err != nil {
		return err
	}
	for i, tpl := range templates {
		if tpl.ID == id {
			templates = append(templates[:i], templates[i+1:]...)
			return ls.saveTemplates(templates)
		}
	}
	return fmt.Errorf("template with ID %s not found", id)
}

func (ls *LocalStore) RecordUnlock(_ context.Context, unlock domain.Unlock) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	unlocks, err := ls.loadUnlocks()
	if err != nil {
		return err
	}
	for _, u := range unlocks {
		if u.AchievementID == unlock.AchievementID && u.MemberID == unlock.MemberID {
			return nil
		}
	}

	unlocks = append(unlocks, &unlock)
	return ls.saveUnlocks(unlocks)
}

func (ls *LocalStore) ListUnlocks(_ context.Context, memberID string) ([]domain.Unlock, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	unlocks, err := ls.loadUnlocks()
	if err != nil {
		return nil, err
	}

	var result []domain.Unlock
	for _, u := range unlocks {
		if memberID != "" && u.MemberID != memberID {
			continue
		}
		result = append(result, *u)
	}
	return result, nil
}

// SetSelectedMember persists the locally selected member id, the third
// independent record alongside tasks and members.
func (ls *LocalStore) SetSelectedMember(id string) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	return ls.saveJSON(ls.recordPath("config.json"), localConfig{SelectedMemberID: id})
}

func (ls *LocalStore) SelectedMember() (string, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	raw, err := os.ReadFile(ls.recordPath("config.json"))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	var cfg localConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		ls.logger.Warn("config record is corrupt, ignoring", slog.String("path", ls.recordPath("config.json")))
		return "", nil
	}
	return cfg.SelectedMemberID, nil
}
