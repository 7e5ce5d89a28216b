package storage

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql (needed by goose)
	"github.com/pressly/goose/v3"

	"github.com/valter-silva-au/opsboard/internal/core"
	"github.com/valter-silva-au/opsboard/pkg/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

// NewPool creates a pgxpool connection pool for dsn and checks connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return pool, nil
}

// RunMigrations applies all pending goose migrations from the embedded SQL files.
func RunMigrations(ctx context.Context, dsn string) error {
	goose.SetBaseFS(migrations)

	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db for migrations: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

const taskColumns = `id, title, business_id, business_name, locality, classification, step, priority,
	assignee, assignees, start_date, due_date, report_date, description, notes, version, created_at, updated_at`

// PostgresTaskStore is a core.RecordStore backed by the tasks table.
// Updates are compare-and-set on the version column.
type PostgresTaskStore struct {
	pool *pgxpool.Pool
}

var _ core.RecordStore = (*PostgresTaskStore)(nil)

// NewPostgresTaskStore creates a store backed by the given connection pool.
func NewPostgresTaskStore(pool *pgxpool.Pool) *PostgresTaskStore {
	return &PostgresTaskStore{pool: pool}
}

func (s *PostgresTaskStore) ListTasks(ctx context.Context) ([]models.TaskRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.TaskRecord{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *PostgresTaskStore) GetTask(ctx context.Context, id string) (*models.TaskRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get task %s: %w", id, core.ErrNotFound)
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return &t, nil
}

func (s *PostgresTaskStore) CreateTask(ctx context.Context, task models.TaskRecord) (*models.TaskRecord, error) {
	assigneesJSON, err := marshalAssignees(task.Assignees)
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO tasks (id, title, business_id, business_name, locality, classification, step, priority,
		                    assignee, assignees, start_date, due_date, report_date, description, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING `+taskColumns,
		uuid.NewString(), task.Title, task.Business.BusinessID, task.Business.BusinessName, task.Business.LocalityName,
		string(task.Classification), task.Step, string(task.Priority),
		task.Assignee, assigneesJSON, task.StartDate, task.DueDate, task.ReportDate, task.Description, task.Notes)

	t, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return &t, nil
}

func (s *PostgresTaskStore) UpdateTask(ctx context.Context, task models.TaskRecord, expectedVersion int64) (*models.TaskRecord, error) {
	assigneesJSON, err := marshalAssignees(task.Assignees)
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE tasks SET title = $2, business_id = $3, business_name = $4, locality = $5, classification = $6,
		                  step = $7, priority = $8, assignee = $9, assignees = $10, start_date = $11, due_date = $12,
		                  report_date = $13, description = $14, notes = $15,
		                  version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $16
		 RETURNING `+taskColumns,
		task.ID, task.Title, task.Business.BusinessID, task.Business.BusinessName, task.Business.LocalityName,
		string(task.Classification), task.Step, string(task.Priority),
		task.Assignee, assigneesJSON, task.StartDate, task.DueDate, task.ReportDate, task.Description, task.Notes,
		expectedVersion)

	t, err := scanTask(row)
	if err == nil {
		return &t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update task %s: %w", task.ID, err)
	}

	// No row matched: either the task is gone or someone else won the race.
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, task.ID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("update task %s: %w", task.ID, err)
	}
	if !exists {
		return nil, fmt.Errorf("update task %s: %w", task.ID, core.ErrNotFound)
	}
	slog.Debug("task version conflict", "task_id", task.ID, "expected_version", expectedVersion)
	return nil, fmt.Errorf("update task %s: %w", task.ID, core.ErrVersionConflict)
}

func (s *PostgresTaskStore) DeleteTask(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete task %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func marshalAssignees(assignees []models.Assignee) ([]byte, error) {
	if assignees == nil {
		assignees = []models.Assignee{}
	}
	data, err := json.Marshal(assignees)
	if err != nil {
		return nil, fmt.Errorf("marshal assignees: %w", err)
	}
	return data, nil
}

func scanTask(row scannable) (models.TaskRecord, error) {
	var t models.TaskRecord
	var class, priority string
	var assigneesJSON []byte
	err := row.Scan(
		&t.ID, &t.Title, &t.Business.BusinessID, &t.Business.BusinessName, &t.Business.LocalityName,
		&class, &t.Step, &priority,
		&t.Assignee, &assigneesJSON, &t.StartDate, &t.DueDate, &t.ReportDate, &t.Description, &t.Notes,
		&t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return t, err
	}
	t.Classification = models.Classification(class)
	t.Priority = models.Priority(priority)
	if len(assigneesJSON) > 0 {
		if err := json.Unmarshal(assigneesJSON, &t.Assignees); err != nil {
			return t, fmt.Errorf("unmarshal assignees: %w", err)
		}
		if len(t.Assignees) == 0 {
			t.Assignees = nil
		}
	}
	return t, nil
}
