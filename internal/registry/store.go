package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"subgen/internal/config"
	"subgen/internal/subtitle"
	"subgen/internal/task"
)

// Store persists tasks in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore initializes or connects to the task database and applies
// migrations.
func OpenStore(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "tasks.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) applyMigrations(ctx context.Context) error {
	const schema = `CREATE TABLE IF NOT EXISTS tasks (
        id TEXT PRIMARY KEY,
        source_path TEXT NOT NULL,
        file_name TEXT NOT NULL,
        file_size INTEGER NOT NULL DEFAULT 0,
        status TEXT NOT NULL,
        stage TEXT NOT NULL,
        progress REAL NOT NULL DEFAULT 0,
        progress_message TEXT,
        subtitles_json TEXT,
        error_message TEXT,
        options_json TEXT,
        audio_path TEXT,
        segments_json TEXT,
        output_path TEXT,
        created_at TEXT NOT NULL,
        updated_at TEXT NOT NULL,
        completed_at TEXT
    );
    CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
    CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Insert persists a new task row.
func (s *Store) Insert(ctx context.Context, t *task.Task) error {
	subtitlesJSON, optionsJSON, segmentsJSON, err := encodeTask(t)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO tasks (
            id, source_path, file_name, file_size, status, stage, progress,
            progress_message, subtitles_json, error_message, options_json,
            audio_path, segments_json, output_path, created_at, updated_at, completed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.SourcePath,
		t.FileName,
		t.FileSizeBytes,
		string(t.Status),
		string(t.Stage),
		t.Progress,
		nullableString(t.ProgressMessage),
		nullableString(subtitlesJSON),
		nullableString(t.Error),
		nullableString(optionsJSON),
		nullableString(t.AudioPath),
		nullableString(segmentsJSON),
		nullableString(t.OutputPath),
		t.CreatedAt.UTC().Format(time.RFC3339Nano),
		t.UpdatedAt.UTC().Format(time.RFC3339Nano),
		nullableTime(t.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Update persists changes to an existing task row.
func (s *Store) Update(ctx context.Context, t *task.Task) error {
	if t == nil {
		return errors.New("task is nil")
	}
	subtitlesJSON, optionsJSON, segmentsJSON, err := encodeTask(t)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE tasks
         SET source_path = ?, file_name = ?, file_size = ?, status = ?, stage = ?,
             progress = ?, progress_message = ?, subtitles_json = ?, error_message = ?,
             options_json = ?, audio_path = ?, segments_json = ?, output_path = ?,
             updated_at = ?, completed_at = ?
         WHERE id = ?`,
		t.SourcePath,
		t.FileName,
		t.FileSizeBytes,
		string(t.Status),
		string(t.Stage),
		t.Progress,
		nullableString(t.ProgressMessage),
		nullableString(subtitlesJSON),
		nullableString(t.Error),
		nullableString(optionsJSON),
		nullableString(t.AudioPath),
		nullableString(segmentsJSON),
		nullableString(t.OutputPath),
		t.UpdatedAt.UTC().Format(time.RFC3339Nano),
		nullableTime(t.CompletedAt),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// Delete removes a task row.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// LoadAll returns every persisted task ordered by creation time.
func (s *Store) LoadAll(ctx context.Context) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// DeleteCompletedBefore removes completed tasks whose completion timestamp is
// older than cutoff. Used by the retention sweep.
func (s *Store) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM tasks WHERE status = ? AND completed_at IS NOT NULL AND completed_at < ?`,
		string(task.StatusCompleted),
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("delete completed tasks: %w", err)
	}
	return res.RowsAffected()
}

const taskColumns = "id, source_path, file_name, file_size, status, stage, progress, progress_message, subtitles_json, error_message, options_json, audio_path, segments_json, output_path, created_at, updated_at, completed_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*task.Task, error) {
	var (
		id              string
		sourcePath      string
		fileName        string
		fileSize        int64
		statusStr       string
		stageStr        string
		progress        float64
		progressMessage sql.NullString
		subtitlesJSON   sql.NullString
		errorMessage    sql.NullString
		optionsJSON     sql.NullString
		audioPath       sql.NullString
		segmentsJSON    sql.NullString
		outputPath      sql.NullString
		createdRaw      string
		updatedRaw      string
		completedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourcePath,
		&fileName,
		&fileSize,
		&statusStr,
		&stageStr,
		&progress,
		&progressMessage,
		&subtitlesJSON,
		&errorMessage,
		&optionsJSON,
		&audioPath,
		&segmentsJSON,
		&outputPath,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	t := &task.Task{
		ID:              id,
		SourcePath:      sourcePath,
		FileName:        fileName,
		FileSizeBytes:   fileSize,
		Status:          task.Status(statusStr),
		Stage:           task.Stage(stageStr),
		Progress:        progress,
		ProgressMessage: progressMessage.String,
		Error:           errorMessage.String,
		AudioPath:       audioPath.String,
		OutputPath:      outputPath.String,
	}

	if subtitlesJSON.Valid && subtitlesJSON.String != "" {
		var entries []subtitle.Entry
		if err := json.Unmarshal([]byte(subtitlesJSON.String), &entries); err != nil {
			return nil, fmt.Errorf("decode subtitles for task %s: %w", id, err)
		}
		t.Subtitles = entries
	}
	if optionsJSON.Valid && optionsJSON.String != "" {
		if err := json.Unmarshal([]byte(optionsJSON.String), &t.Options); err != nil {
			return nil, fmt.Errorf("decode options for task %s: %w", id, err)
		}
	}
	if segmentsJSON.Valid && segmentsJSON.String != "" {
		var segments []task.Segment
		if err := json.Unmarshal([]byte(segmentsJSON.String), &segments); err != nil {
			return nil, fmt.Errorf("decode segments for task %s: %w", id, err)
		}
		t.Segments = segments
	}

	if created, err := parseTimeString(createdRaw); err == nil {
		t.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		t.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			t.CompletedAt = &completed
		}
	}
	return t, nil
}

func encodeTask(t *task.Task) (subtitlesJSON, optionsJSON, segmentsJSON string, err error) {
	if len(t.Subtitles) > 0 {
		raw, marshalErr := json.Marshal(t.Subtitles)
		if marshalErr != nil {
			return "", "", "", fmt.Errorf("marshal subtitles: %w", marshalErr)
		}
		subtitlesJSON = string(raw)
	}
	raw, marshalErr := json.Marshal(t.Options)
	if marshalErr != nil {
		return "", "", "", fmt.Errorf("marshal options: %w", marshalErr)
	}
	optionsJSON = string(raw)
	if len(t.Segments) > 0 {
		raw, marshalErr := json.Marshal(t.Segments)
		if marshalErr != nil {
			return "", "", "", fmt.Errorf("marshal segments: %w", marshalErr)
		}
		segmentsJSON = string(raw)
	}
	return subtitlesJSON, optionsJSON, segmentsJSON, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
