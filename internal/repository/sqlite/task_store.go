package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"ytgrab/internal/domain"
	"ytgrab/internal/repository"
)

const createTasksTable = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	format TEXT NOT NULL,
	output_dir TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	progress REAL NOT NULL DEFAULT 0,
	speed TEXT NOT NULL DEFAULT '',
	eta TEXT NOT NULL DEFAULT '',
	total_size TEXT NOT NULL DEFAULT '',
	downloaded_size TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	output_file TEXT NOT NULL DEFAULT '',
	archive_location TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// TaskStore is the embedded-engine alternative to the jsonfile store: each
// record is updated atomically in its own row instead of rewriting the whole
// collection.
type TaskStore struct {
	db  *sql.DB
	log *logrus.Logger
}

func NewTaskStore(db *sql.DB, log *logrus.Logger) *TaskStore {
	if log == nil {
		log = logrus.New()
	}
	return &TaskStore{db: db, log: log}
}

func (r *TaskStore) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createTasksTable); err != nil {
		return fmt.Errorf("create tasks table: %w", err)
	}
	return nil
}

func (r *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO tasks (id, url, title, format, output_dir, status, progress, speed, eta, total_size, downloaded_size, error_message, output_file, archive_location, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID,
		task.URL,
		task.Title,
		string(task.Format),
		task.OutputDir,
		string(task.Status),
		task.Progress,
		task.Speed,
		task.ETA,
		task.TotalSize,
		task.DownloadedSize,
		task.ErrorMessage,
		task.OutputFile,
		task.ArchiveLocation,
		task.CreatedAt.UTC(),
		task.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Update reads the row, merges the partial update and writes it back inside
// one transaction so concurrent writers cannot interleave field-by-field.
func (r *TaskStore) Update(ctx context.Context, id string, update domain.TaskUpdate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, selectTask+` WHERE id=?`, id)
	task, err := scanTask(row)
	if err != nil {
		if err == repository.ErrNotFound {
			r.log.Warnf("task %s not found for update", id)
			return nil
		}
		return err
	}

	update.Apply(task)

	_, err = tx.ExecContext(ctx, `
UPDATE tasks
SET title=?, status=?, progress=?, speed=?, eta=?, total_size=?, downloaded_size=?, error_message=?, output_file=?, archive_location=?, updated_at=?
WHERE id=?`,
		task.Title,
		string(task.Status),
		task.Progress,
		task.Speed,
		task.ETA,
		task.TotalSize,
		task.DownloadedSize,
		task.ErrorMessage,
		task.OutputFile,
		task.ArchiveLocation,
		task.UpdatedAt.UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit task update: %w", err)
	}
	return nil
}

func (r *TaskStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	row := r.db.QueryRowContext(ctx, selectTask+` WHERE id=?`, id)
	return scanTask(row)
}

func (r *TaskStore) List(ctx context.Context) ([]domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, selectTask+` ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func (r *TaskStore) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return fmt.Errorf("clear tasks: %w", err)
	}
	return nil
}

const selectTask = `
SELECT id, url, title, format, output_dir, status, progress, speed, eta, total_size, downloaded_size, error_message, output_file, archive_location, created_at, updated_at
FROM tasks`

func scanTask(scanner interface {
	Scan(dest ...any) error
}) (*domain.Task, error) {
	var (
		task      domain.Task
		format    string
		status    string
		createdAt time.Time
		updatedAt time.Time
	)

	if err := scanner.Scan(
		&task.ID,
		&task.URL,
		&task.Title,
		&format,
		&task.OutputDir,
		&status,
		&task.Progress,
		&task.Speed,
		&task.ETA,
		&task.TotalSize,
		&task.DownloadedSize,
		&task.ErrorMessage,
		&task.OutputFile,
		&task.ArchiveLocation,
		&createdAt,
		&updatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}

	task.Format = domain.TaskFormat(format)
	task.Status = domain.TaskStatus(status)
	task.CreatedAt = createdAt.Local()
	task.UpdatedAt = updatedAt.Local()
	return &task, nil
}

var _ repository.TaskStore = (*TaskStore)(nil)
