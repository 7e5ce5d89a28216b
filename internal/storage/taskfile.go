package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/valter-silva-au/opsboard/internal/core"
	"github.com/valter-silva-au/opsboard/pkg/models"
)

// TaskFile represents the top-level structure of tasks.yaml.
type TaskFile struct {
	Version string              `yaml:"version"`
	Tasks   []models.TaskRecord `yaml:"tasks"`
}

// FileTaskStore is a core.RecordStore backed by a tasks.yaml file in the
// base directory. Every call re-reads the file so concurrent processes see
// each other's writes; versions make stale writes fail instead of
// overwriting.
type FileTaskStore struct {
	basePath string
	mu       sync.Mutex
	now      func() time.Time
}

var _ core.RecordStore = (*FileTaskStore)(nil)

// NewFileTaskStore creates a FileTaskStore rooted at basePath.
func NewFileTaskStore(basePath string) *FileTaskStore {
	return &FileTaskStore{
		basePath: basePath,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *FileTaskStore) filePath() string {
	return filepath.Join(s.basePath, "tasks.yaml")
}

func (s *FileTaskStore) ListTasks(ctx context.Context) ([]models.TaskRecord, error) {
	var out []models.TaskRecord
	err := s.withFile(ctx, false, func(tf *TaskFile) error {
		out = make([]models.TaskRecord, 0, len(tf.Tasks))
		for _, t := range tf.Tasks {
			out = append(out, t.Clone())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *FileTaskStore) GetTask(ctx context.Context, id string) (*models.TaskRecord, error) {
	var found *models.TaskRecord
	err := s.withFile(ctx, false, func(tf *TaskFile) error {
		i := findTask(tf.Tasks, id)
		if i < 0 {
			return core.ErrNotFound
		}
		rec := tf.Tasks[i].Clone()
		found = &rec
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return found, nil
}

func (s *FileTaskStore) CreateTask(ctx context.Context, task models.TaskRecord) (*models.TaskRecord, error) {
	rec := task.Clone()
	now := s.now()
	rec.ID = uuid.NewString()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.Version = 1

	err := s.withFile(ctx, true, func(tf *TaskFile) error {
		tf.Tasks = append(tf.Tasks, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	out := rec.Clone()
	return &out, nil
}

func (s *FileTaskStore) UpdateTask(ctx context.Context, task models.TaskRecord, expectedVersion int64) (*models.TaskRecord, error) {
	var out models.TaskRecord
	err := s.withFile(ctx, true, func(tf *TaskFile) error {
		i := findTask(tf.Tasks, task.ID)
		if i < 0 {
			return core.ErrNotFound
		}
		if tf.Tasks[i].Version != expectedVersion {
			return core.ErrVersionConflict
		}
		rec := task.Clone()
		rec.CreatedAt = tf.Tasks[i].CreatedAt
		rec.UpdatedAt = s.now()
		rec.Version = expectedVersion + 1
		tf.Tasks[i] = rec
		out = rec.Clone()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update task %s: %w", task.ID, err)
	}
	return &out, nil
}

func (s *FileTaskStore) DeleteTask(ctx context.Context, id string) error {
	err := s.withFile(ctx, true, func(tf *TaskFile) error {
		i := findTask(tf.Tasks, id)
		if i < 0 {
			return core.ErrNotFound
		}
		tf.Tasks = append(tf.Tasks[:i], tf.Tasks[i+1:]...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

// withFile loads tasks.yaml under the process and file locks, runs fn, and
// saves the result when write is true and fn succeeded.
func (s *FileTaskStore) withFile(ctx context.Context, write bool, fn func(*TaskFile) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.basePath, 0o750); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	unlock, err := lockFile(s.filePath() + ".lock")
	if err != nil {
		return err
	}
	defer func() { _ = unlock() }()

	tf, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(tf); err != nil {
		return err
	}
	if !write {
		return nil
	}
	return s.save(tf)
}

func (s *FileTaskStore) load() (*TaskFile, error) {
	data, err := os.ReadFile(s.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return &TaskFile{Version: "1.0"}, nil
		}
		return nil, fmt.Errorf("loading tasks: %w", err)
	}

	var tf TaskFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("loading tasks: parsing YAML: %w", err)
	}
	if tf.Version == "" {
		tf.Version = "1.0"
	}
	return &tf, nil
}

// save writes to a temp file and renames it so readers never see a
// half-written tasks.yaml.
func (s *FileTaskStore) save(tf *TaskFile) error {
	data, err := yaml.Marshal(tf)
	if err != nil {
		return fmt.Errorf("saving tasks: marshaling YAML: %w", err)
	}
	tmp := s.filePath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("saving tasks: writing file: %w", err)
	}
	if err := os.Rename(tmp, s.filePath()); err != nil {
		return fmt.Errorf("saving tasks: replacing file: %w", err)
	}
	return nil
}

func findTask(tasks []models.TaskRecord, id string) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}
