package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/rcliao/momentum/internal/domain"
)

// SQLiteStore is the remote-backed persistence adapter: the server-side
// store of record. Ids are issued here, not by the client, and every
// call takes a context because callers may be suspended on it.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite initializes the store and runs the required migrations.
func OpenSQLite(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("empty database path")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=ON", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)

	s := &SQLiteStore{db: conn, logger: logger}
	if err := s.migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database resources.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
            id TEXT PRIMARY KEY,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            priority TEXT NOT NULL DEFAULT 'medium',
            status TEXT NOT NULL DEFAULT 'todo',
            completed INTEGER NOT NULL DEFAULT 0,
            previous_status TEXT NOT NULL DEFAULT '',
            due_date TEXT NOT NULL DEFAULT '',
            tags TEXT NOT NULL DEFAULT '[]',
            subtasks TEXT NOT NULL DEFAULT '[]',
            owner_id TEXT NOT NULL DEFAULT '',
            assigned_to TEXT NOT NULL DEFAULT '[]',
            depends_on TEXT NOT NULL DEFAULT '[]',
            blocks TEXT NOT NULL DEFAULT '[]',
            parent_recurring_task_id TEXT,
            recurrence TEXT,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner_id);`,
		`CREATE TABLE IF NOT EXISTS members (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            xp INTEGER NOT NULL DEFAULT 0,
            level INTEGER NOT NULL DEFAULT 1,
            avatar TEXT NOT NULL DEFAULT '',
            user_id TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS templates (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            category TEXT NOT NULL DEFAULT '',
            tags TEXT NOT NULL DEFAULT '[]',
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            priority TEXT NOT NULL DEFAULT 'medium',
            task_tags TEXT NOT NULL DEFAULT '[]',
            subtasks TEXT NOT NULL DEFAULT '[]',
            recurrence TEXT,
            use_count INTEGER NOT NULL DEFAULT 0,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS achievement_unlocks (
            achievement_id TEXT NOT NULL,
            member_id TEXT NOT NULL,
            unlocked_at TEXT NOT NULL,
            PRIMARY KEY (achievement_id, member_id)
        );`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// jsonText encodes a value for a JSON text column.
func jsonText(v interface{}) string {
	encoded, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

// decodeJSON fills target from a JSON text column, degrading to the
// zero value on corrupt data so one bad blob cannot sink a whole read.
func (s *SQLiteStore) decodeJSON(column, raw string, target interface{}) {
	if raw == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		s.logger.Warn("corrupt json column, using default",
			slog.String("column", column), slog.String("error", err.Error()))
	}
}

// parseTime is the lenient counterpart for date columns.
func (s *SQLiteStore) parseTime(column, raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		s.logger.Warn("unparseable date column, using zero",
			slog.String("column", column), slog.String("value", raw))
		return time.Time{}
	}
	return ts
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

const taskColumns = `id, title, description, priority, status, completed, previous_status,
    due_date, tags, subtasks, owner_id, assigned_to, depends_on, blocks,
    parent_recurring_task_id, recurrence, created_at, updated_at`

func (s *SQLiteStore) scanTask(row interface{ Scan(...interface{}) error }) (*domain.Task, error) {
	var (
		t                                        domain.Task
		completed                                int
		dueDate, createdAt, updatedAt            string
		tags, subtasks, assignedTo, deps, blocks string
		parentID, recurrenceRaw                  sql.NullString
	)

	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Priority, &t.Status, &completed,
		&t.PreviousStatus, &dueDate, &tags, &subtasks, &t.OwnerID, &assignedTo,
		&deps, &blocks, &parentID, &recurrenceRaw, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	t.Completed = completed != 0
	t.DueDate = s.parseTime("due_date", dueDate)
	t.CreatedAt = s.parseTime("created_at", createdAt)
	t.UpdatedAt = s.parseTime("updated_at", updatedAt)
	t.Tags = make([]string, 0)
	t.Subtasks = make([]domain.Subtask, 0)
	t.AssignedTo = make([]string, 0)
	t.DependsOn = make([]string, 0)
	t.Blocks = make([]string, 0)
	s.decodeJSON("tags", tags, &t.Tags)
	s.decodeJSON("subtasks", subtasks, &t.Subtasks)
	s.decodeJSON("assigned_to", assignedTo, &t.AssignedTo)
	s.decodeJSON("depends_on", deps, &t.DependsOn)
	s.decodeJSON("blocks", blocks, &t.Blocks)
	if parentID.Valid && parentID.String != "" {
		parent := parentID.String
		t.ParentRecurringTaskID = &parent
	}
	if recurrenceRaw.Valid && recurrenceRaw.String != "" {
		var rule domain.Recurrence
		s.decodeJSON("recurrence", recurrenceRaw.String, &rule)
		if rule.Type != "" && rule.Type != domain.RecurrenceNone {
			t.Recurrence = &rule
		}
	}

	return &t, nil
}

func (s *SQLiteStore) writeTask(ctx context.Context, t *domain.Task, insert bool) error {
	var parentID, recurrenceRaw sql.NullString
	if t.ParentRecurringTaskID != nil {
		parentID = sql.NullString{String: *t.ParentRecurringTaskID, Valid: true}
	}
	if t.Recurrence != nil {
		recurrenceRaw = sql.NullString{String: jsonText(t.Recurrence), Valid: true}
	}
	completed := 0
	if t.Completed {
		completed = 1
	}

	if insert {
		_, err := s.db.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Title, t.Description, t.Priority, t.Status, completed, t.PreviousStatus,
			formatTime(t.DueDate), jsonText(t.Tags), jsonText(t.Subtasks), t.OwnerID,
			jsonText(t.AssignedTo), jsonText(t.DependsOn), jsonText(t.Blocks),
			parentID, recurrenceRaw, formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET title = ?, description = ?, priority = ?,
        status = ?, completed = ?, previous_status = ?, due_date = ?, tags = ?, subtasks = ?,
        owner_id = ?, assigned_to = ?, depends_on = ?, blocks = ?, parent_recurring_task_id = ?,
        recurrence = ?, updated_at = ? WHERE id = ?`,
		t.Title, t.Description, t.Priority, t.Status, completed, t.PreviousStatus,
		formatTime(t.DueDate), jsonText(t.Tags), jsonText(t.Subtasks), t.OwnerID,
		jsonText(t.AssignedTo), jsonText(t.DependsOn), jsonText(t.Blocks),
		parentID, recurrenceRaw, formatTime(t.UpdatedAt), t.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// CreateTask stores the task under a server-issued id and returns it.
// Whatever id the client guessed is discarded.
func (s *SQLiteStore) CreateTask(ctx context.Context, task *domain.Task) (string, error) {
	stored := task.Clone()
	stored.ID = uuid.New().String()
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	if err := s.writeTask(ctx, stored, true); err != nil {
		return "", err
	}
	return stored.ID, nil
}

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := s.scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task with ID %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

func (s *SQLiteStore) UpdateTask(ctx context.Context, id string, updates map[string]interface{}) (*domain.Task, error) {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := domain.ApplyTaskUpdates(task, updates)
	if err := s.writeTask(ctx, updated, false); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *SQLiteStore) ListTasks(ctx context.Context, owner string) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at ASC, id ASC`
	args := []interface{}{}
	if owner != "" {
		query = `SELECT ` + taskColumns + ` FROM tasks
            WHERE owner_id = ?
               OR EXISTS (SELECT 1 FROM json_each(tasks.assigned_to) WHERE json_each.value = ?)
            ORDER BY created_at ASC, id ASC`
		args = append(args, owner, owner)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := s.scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task with ID %s not found", id)
	}
	return nil
}

func (s *SQLiteStore) CreateMember(ctx context.Context, member *domain.Member) (string, error) {
	stored := member.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `INSERT INTO members
        (id, name, xp, level, avatar, user_id, email, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.Name, stored.XP, stored.Level, stored.Avatar,
		stored.UserID, stored.Email, formatTime(stored.CreatedAt), formatTime(stored.UpdatedAt))
	if err != nil {
		return "", fmt.Errorf("insert member: %w", err)
	}
	return stored.ID, nil
}

func (s *SQLiteStore) scanMember(row interface{ Scan(...interface{}) error }) (*domain.Member, error) {
	var (
		m                    domain.Member
		createdAt, updatedAt string
	)
	err := row.Scan(&m.ID, &m.Name, &m.XP, &m.Level, &m.Avatar, &m.UserID, &m.Email, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	m.CreatedAt = s.parseTime("created_at", createdAt)
	m.UpdatedAt = s.parseTime("updated_at", updatedAt)
	return &m, nil
}

func (s *SQLiteStore) GetMember(ctx context.Context, id string) (*domain.Member, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, xp, level, avatar, user_id, email,
        created_at, updated_at FROM members WHERE id = ?`, id)
	member, err := s.scanMember(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("member with ID %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return member, nil
}

func (s *SQLiteStore) UpdateMember(ctx context.Context, id string, updates map[string]interface{}) (*domain.Member, error) {
	member, err := s.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := domain.ApplyMemberUpdates(member, updates)
	_, err = s.db.ExecContext(ctx, `UPDATE members SET name = ?, xp = ?, level = ?, avatar = ?,
        user_id = ?, email = ?, updated_at = ? WHERE id = ?`,
		updated.Name, updated.XP, updated.Level, updated.Avatar,
		updated.UserID, updated.Email, formatTime(updated.UpdatedAt), id)
	if err != nil {
		return nil, fmt.Errorf("update member: %w", err)
	}
	return updated, nil
}

func (s *SQLiteStore) ListMembers(ctx context.Context) ([]*domain.Member, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, xp, level, avatar, user_id, email,
        created_at, updated_at FROM members ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []*domain.Member
	for rows.Next() {
		member, err := s.scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("list members: %w", err)
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

func (s *SQLiteStore) DeleteMember(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("member with ID %s not found", id)
	}
	return nil
}

func (s *SQLiteStore) CreateTemplate(ctx context.Context, tpl *domain.Template) (string, error) {
	stored := *tpl
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	var recurrenceRaw sql.NullString
	if stored.Recurrence != nil {
		recurrenceRaw = sql.NullString{String: jsonText(stored.Recurrence), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO templates
        (id, name, category, tags, title, description, priority, task_tags, subtasks,
         recurrence, use_count, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.Name, stored.Category, jsonText(stored.Tags), stored.Title,
		stored.Description, stored.Priority, jsonText(stored.TaskTags), jsonText(stored.Subtasks),
		recurrenceRaw, stored.UseCount, formatTime(stored.CreatedAt), formatTime(stored.UpdatedAt))
	if err != nil {
		return "", fmt.Errorf("insert template: %w", err)
	}
	return stored.ID, nil
}

func (s *SQLiteStore) scanTemplate(row interface{ Scan(...interface{}) error }) (*domain.Template, error) {
	var (
		tpl                      domain.Template
		tags, taskTags, subtasks string
		recurrenceRaw            sql.NullString
		createdAt, updatedAt     string
	)
	err := row.Scan(&tpl.ID, &tpl.Name, &tpl.Category, &tags, &tpl.Title, &tpl.Description,
		&tpl.Priority, &taskTags, &subtasks, &recurrenceRaw, &tpl.UseCount, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	tpl.Tags = make([]string, 0)
	tpl.TaskTags = make([]string, 0)
	tpl.Subtasks = make([]domain.Subtask, 0)
	s.decodeJSON("tags", tags, &tpl.Tags)
	s.decodeJSON("task_tags", taskTags, &tpl.TaskTags)
	s.decodeJSON("subtasks", subtasks, &tpl.Subtasks)
	if recurrenceRaw.Valid && recurrenceRaw.String != "" {
		var rule domain.Recurrence
		s.decodeJSON("recurrence", recurrenceRaw.String, &rule)
		if rule.Type != "" && rule.Type != domain.RecurrenceNone {
			tpl.Recurrence = &rule
		}
	}
	tpl.CreatedAt = s.parseTime("created_at", createdAt)
	tpl.UpdatedAt = s.parseTime("updated_at", updatedAt)
	return &tpl, nil
}

const templateColumns = `id, name, category, tags, title, description, priority, task_tags,
    subtasks, recurrence, use_count, created_at, updated_at`

func (s *SQLiteStore) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)
	tpl, err := s.scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("template with ID %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return tpl, nil
}

func (s *SQLiteStore) ListTemplates(ctx context.Context) ([]*domain.Template, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM templates
        ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []*domain.Template
	for rows.Next() {
		tpl, err := s.scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("list templates: %w", err)
		}
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

func (s *SQLiteStore) UpdateTemplate(ctx context.Context, id string, updates map[string]interface{}) (*domain.Template, error) {
	tpl, err := s.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}

	if name, ok := updates["name"].(string); ok {
		tpl.Name = name
	}
	if category, ok := updates["category"].(string); ok {
		tpl.Category = category
	}
	if useCount, ok := updates["useCount"].(int); ok {
		tpl.UseCount = useCount
	}
	tpl.UpdatedAt = time.Now()

	_, err = s.db.ExecContext(ctx, `UPDATE templates SET name = ?, category = ?, use_count = ?,
        updated_at = ? WHERE id = ?`,
		tpl.Name, tpl.Category, tpl.UseCount, formatTime(tpl.UpdatedAt), id)
	if err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	return tpl, nil
}

func (s *SQLiteStore) DeleteTemplate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("template with ID %s not found", id)
	}
	return nil
}

func (s *SQLiteStore) RecordUnlock(ctx context.Context, unlock domain.Unlock) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO achievement_unlocks
        (achievement_id, member_id, unlocked_at) VALUES (?, ?, ?)`,
		unlock.AchievementID, unlock.MemberID, formatTime(unlock.UnlockedAt))
	if err != nil {
		return fmt.Errorf("record unlock: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListUnlocks(ctx context.Context, memberID string) ([]domain.Unlock, error) {
	query := `SELECT achievement_id, member_id, unlocked_at FROM achievement_unlocks`
	args := []interface{}{}
	if memberID != "" {
		query += ` WHERE member_id = ?`
		args = append(args, memberID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list unlocks: %w", err)
	}
	defer rows.Close()

	var unlocks []domain.Unlock
	for rows.Next() {
		var (
			u          domain.Unlock
			unlockedAt string
		)
		if err := rows.Scan(&u.AchievementID, &u.MemberID, &unlockedAt); err != nil {
			return nil, fmt.Errorf("list unlocks: %w", err)
		}
		u.UnlockedAt = s.parseTime("unlocked_at", unlockedAt)
		unlocks = append(unlocks, u)
	}
	return unlocks, rows.Err()
}

// Snapshot reads the full current task and member lists in one shot.
// The engine treats the result as the source of truth and replaces its
// in-memory collections with it.
func (s *SQLiteStore) Snapshot(ctx context.Context) ([]*domain.Task, []*domain.Member, error) {
	tasks, err := s.ListTasks(ctx, "")
	if err != nil {
		return nil, nil, err
	}
	members, err := s.ListMembers(ctx)
	if err != nil {
		return nil, nil, err
	}
	return tasks, members, nil
}
