package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/valter-silva-au/opsboard/pkg/models"
)

// RecordStore is the persistence collaborator behind the task store. Store
// implementations return ErrNotFound and ErrVersionConflict (optionally
// wrapped) so the facade can classify failures.
type RecordStore interface {
	ListTasks(ctx context.Context) ([]models.TaskRecord, error)
	GetTask(ctx context.Context, id string) (*models.TaskRecord, error)
	// CreateTask assigns ID, CreatedAt, UpdatedAt and Version 1.
	CreateTask(ctx context.Context, task models.TaskRecord) (*models.TaskRecord, error)
	// UpdateTask writes task only if the stored version equals
	// expectedVersion, returning the record with its version incremented.
	UpdateTask(ctx context.Context, task models.TaskRecord, expectedVersion int64) (*models.TaskRecord, error)
	DeleteTask(ctx context.Context, id string) error
}

// pendingIDPrefix marks optimistic records the store has not confirmed yet.
const pendingIDPrefix = "pending-"

// IsPendingID reports whether id is an optimistic placeholder.
func IsPendingID(id string) bool {
	return strings.HasPrefix(id, pendingIDPrefix)
}

// CreateCommand creates a task. OverrideConfirmed acknowledges a duplicate
// workflow instance warning.
type CreateCommand struct {
	Task              models.TaskRecord
	OverrideConfirmed bool
}

// UpdateCommand replaces a task. Task.Version is the version the caller last
// read; zero means "whatever is in the local snapshot".
type UpdateCommand struct {
	Task              models.TaskRecord
	OverrideConfirmed bool
}

// AdvanceCommand moves a task to its next step. ExpectedVersion is the
// version the caller last read; zero means the local snapshot's version.
type AdvanceCommand struct {
	TaskID            string
	ExpectedVersion   int64
	OverrideConfirmed bool
}

// TaskStore is the only component that mutates tasks. It keeps the
// last-known task list in memory, applies each command optimistically, then
// either reconciles with the store's response or restores the pre-command
// snapshot in a single state replacement. Reads never wait on store calls.
type TaskStore struct {
	remote    RecordStore
	registry  *StepRegistry
	guard     *DuplicateGuard
	engine    *TransitionEngine
	validator *TaskValidator
	views     *ViewBuilder
	boards    *BoardBuilder
	events    EventLogger
	now       func() time.Time

	mu    sync.RWMutex
	state []models.TaskRecord

	// writeSem serialises apply -> store call -> commit/rollback so a
	// rollback never discards another command's effect.
	writeSem chan struct{}
}

// NewTaskStore wires the facade. events may be nil.
func NewTaskStore(remote RecordStore, registry *StepRegistry, classifier *DelayClassifier, events EventLogger) *TaskStore {
	return &TaskStore{
		remote:    remote,
		registry:  registry,
		guard:     NewDuplicateGuard(registry),
		engine:    NewTransitionEngine(registry),
		validator: NewTaskValidator(registry),
		views:     NewViewBuilder(registry, classifier),
		boards:    NewBoardBuilder(registry),
		events:    events,
		now:       func() time.Time { return time.Now() },
		writeSem:  make(chan struct{}, 1),
	}
}

// Registry returns the step registry the store validates against.
func (s *TaskStore) Registry() *StepRegistry {
	return s.registry
}

// --- Read path ---

// Refresh replaces the in-memory list with the store's current contents. On
// failure it returns an empty list and a read error, leaving the previous
// snapshot in place. It waits for any in-flight command so the reload never
// lands between a command's optimistic apply and its commit or rollback.
func (s *TaskStore) Refresh(ctx context.Context) ([]models.TaskRecord, error) {
	if err := s.acquire(ctx); err != nil {
		return []models.TaskRecord{}, newTaskError(KindRead, "refresh", "", "", err)
	}
	defer s.release()

	records, err := s.remote.ListTasks(ctx)
	if err != nil {
		return []models.TaskRecord{}, newTaskError(KindRead, "refresh", "", "", err)
	}
	records = cloneRecords(records)
	if records == nil {
		records = []models.TaskRecord{}
	}
	s.mu.Lock()
	s.state = records
	s.mu.Unlock()
	return cloneRecords(records), nil
}

// Snapshot returns a copy of the current (possibly optimistic) task list.
func (s *TaskStore) Snapshot() []models.TaskRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRecords(s.state)
}

// Get returns the task with id from the current snapshot.
func (s *TaskStore) Get(id string) (models.TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.state, id); i >= 0 {
		return s.state[i].Clone(), nil
	}
	return models.TaskRecord{}, newTaskError(KindNotFound, "get", id, "", nil)
}

// Views decorates the snapshot with progress and delay as of now.
func (s *TaskStore) Views() []TaskView {
	return s.views.Views(s.Snapshot(), s.now())
}

// View decorates a single task from the snapshot.
func (s *TaskStore) View(id string) (TaskView, error) {
	t, err := s.Get(id)
	if err != nil {
		return TaskView{}, err
	}
	return s.views.View(t, s.now()), nil
}

// Query filters and paginates the snapshot.
func (s *TaskStore) Query(f TaskFilter, p Page) PageResult {
	return Paginate(FilterTasks(s.Views(), f), p)
}

// Board groups the filtered snapshot into kanban columns for c.
func (s *TaskStore) Board(f TaskFilter, c models.Classification) Board {
	return s.boards.Build(FilterTasks(s.Views(), f), c)
}

// --- Commands ---

// Create validates, checks for a duplicate workflow instance and persists a
// new task. The task appears in the snapshot under a placeholder id until
// the store confirms it.
func (s *TaskStore) Create(ctx context.Context, cmd CreateCommand) (*models.TaskRecord, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	task := cmd.Task.Clone()
	task.ID = ""
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}
	if task.Title == "" {
		task.Title = s.registry.LabelFor(task.Classification, task.Step)
	}
	if err := s.validator.Validate("create", task); err != nil {
		return nil, err
	}
	if err := s.checkDuplicate("create", task, cmd.OverrideConfirmed); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	optimistic := task.Clone()
	optimistic.ID = pendingIDPrefix + uuid.NewString()
	optimistic.CreatedAt = now
	optimistic.UpdatedAt = now

	confirmed, err := s.run(ctx, "create", optimistic.ID, &createMutation{record: optimistic},
		func(ctx context.Context) (*models.TaskRecord, error) {
			return s.remote.CreateTask(ctx, task)
		})
	if err != nil {
		return nil, err
	}

	s.logEvent("task.created", map[string]any{
		"task_id":        confirmed.ID,
		"classification": string(confirmed.Classification),
		"step":           confirmed.Step,
		"override":       cmd.OverrideConfirmed,
	})
	return confirmed, nil
}

// Update replaces an existing task after validation and the duplicate check.
// CreatedAt is preserved from the stored record.
func (s *TaskStore) Update(ctx context.Context, cmd UpdateCommand) (*models.TaskRecord, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	task := cmd.Task.Clone()
	current, err := s.Get(task.ID)
	if err != nil {
		return nil, withOp(err, "update")
	}
	expected := task.Version
	if expected == 0 {
		expected = current.Version
	}
	if expected != current.Version {
		return nil, newTaskError(KindVersionConflict, "update", task.ID, "", nil)
	}
	task.CreatedAt = current.CreatedAt
	task.Version = current.Version
	if task.Priority == "" {
		task.Priority = current.Priority
	}

	if err := s.validator.Validate("update", task); err != nil {
		return nil, err
	}
	if err := s.checkDuplicate("update", task, cmd.OverrideConfirmed); err != nil {
		return nil, err
	}

	confirmed, err := s.commitUpdate(ctx, "update", task, expected)
	if err != nil {
		return nil, err
	}

	s.logEvent("task.updated", map[string]any{
		"task_id": confirmed.ID,
		"step":    confirmed.Step,
	})
	return confirmed, nil
}

// Advance moves a task to the next step of its sequence using
// compare-and-set on the version the caller last read.
func (s *TaskStore) Advance(ctx context.Context, cmd AdvanceCommand) (AdvanceResult, *models.TaskRecord, error) {
	if err := s.acquire(ctx); err != nil {
		return AdvanceResult{}, nil, err
	}
	defer s.release()

	current, err := s.Get(cmd.TaskID)
	if err != nil {
		return AdvanceResult{}, nil, withOp(err, "advance")
	}
	expected := cmd.ExpectedVersion
	if expected == 0 {
		expected = current.Version
	}
	if expected != current.Version {
		s.logEvent("task.conflict", map[string]any{"task_id": cmd.TaskID, "op": "advance"})
		return AdvanceResult{}, nil, newTaskError(KindVersionConflict, "advance", cmd.TaskID,
			"task changed since it was last read; reload and retry", nil)
	}

	next, res, err := s.engine.Advance(current)
	if err != nil {
		return AdvanceResult{}, nil, err
	}
	if err := s.checkDuplicate("advance", next, cmd.OverrideConfirmed); err != nil {
		return AdvanceResult{}, nil, err
	}

	confirmed, err := s.commitUpdate(ctx, "advance", next, expected)
	if err != nil {
		if kind, _ := KindOf(err); kind == KindVersionConflict {
			s.logEvent("task.conflict", map[string]any{"task_id": cmd.TaskID, "op": "advance"})
		}
		return AdvanceResult{}, nil, err
	}

	s.logEvent("task.advanced", map[string]any{
		"task_id":        confirmed.ID,
		"classification": string(confirmed.Classification),
		"from_step":      res.PreviousStepID,
		"to_step":        res.NewStepID,
		"progress":       res.NewProgress,
	})
	if s.registry.IsTerminal(confirmed.Classification, confirmed.Step) {
		s.logEvent("task.completed", map[string]any{
			"task_id":        confirmed.ID,
			"classification": string(confirmed.Classification),
		})
	}
	return res, confirmed, nil
}

// Delete removes a task. If the store call fails the task reappears at its
// previous position.
func (s *TaskStore) Delete(ctx context.Context, id string) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	if _, err := s.Get(id); err != nil {
		return withOp(err, "delete")
	}
	_, err := s.run(ctx, "delete", id, &deleteMutation{id: id},
		func(ctx context.Context) (*models.TaskRecord, error) {
			return nil, s.remote.DeleteTask(ctx, id)
		})
	if err != nil {
		return err
	}
	s.logEvent("task.deleted", map[string]any{"task_id": id})
	return nil
}

// --- Internals ---

func (s *TaskStore) acquire(ctx context.Context) error {
	select {
	case s.writeSem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *TaskStore) release() {
	<-s.writeSem
}

func (s *TaskStore) checkDuplicate(op string, task models.TaskRecord, override bool) error {
	conflict, found := s.guard.WouldDuplicate(task, s.Snapshot())
	if !found {
		return nil
	}
	if override {
		s.logEvent("task.duplicate_overridden", map[string]any{
			"task_id":     task.ID,
			"conflict_id": conflict.ID,
		})
		return nil
	}
	return &TaskError{
		Kind:              KindDuplicateWorkflowInstance,
		Op:                op,
		TaskID:            task.ID,
		ConflictingTaskID: conflict.ID,
		Message:           "an active task already exists for this business at step " + task.Step,
	}
}

func (s *TaskStore) commitUpdate(ctx context.Context, op string, task models.TaskRecord, expected int64) (*models.TaskRecord, error) {
	optimistic := task.Clone()
	optimistic.UpdatedAt = s.now().UTC()
	return s.run(ctx, op, task.ID, &updateMutation{record: optimistic},
		func(ctx context.Context) (*models.TaskRecord, error) {
			return s.remote.UpdateTask(ctx, task, expected)
		})
}

// run sequences a mutation: publish the optimistic state, call the store,
// then commit or roll back. The caller must hold the write semaphore. Once
// the store call has started it is not cancelled by ctx.
func (s *TaskStore) run(ctx context.Context, op, taskID string, m Mutation, call func(context.Context) (*models.TaskRecord, error)) (*models.TaskRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	previous := s.state
	next, err := m.Apply(cloneRecords(previous))
	if err != nil {
		s.mu.Unlock()
		return nil, withOp(err, op)
	}
	s.state = next
	s.mu.Unlock()

	confirmed, callErr := call(context.WithoutCancel(ctx))

	s.mu.Lock()
	if callErr != nil {
		s.state = m.Rollback(previous)
		s.mu.Unlock()
		s.logEvent("task.rolled_back", map[string]any{
			"task_id": taskID,
			"op":      op,
			"error":   callErr.Error(),
		})
		return nil, classifyStoreError(op, taskID, callErr)
	}
	s.state = m.Commit(cloneRecords(s.state), confirmed)
	s.mu.Unlock()

	if confirmed == nil {
		return nil, nil
	}
	out := confirmed.Clone()
	return &out, nil
}

// classifyStoreError tags a store failure with a stable kind while keeping
// the original error as the cause.
func classifyStoreError(op, taskID string, err error) error {
	switch {
	case errors.Is(err, ErrVersionConflict):
		return newTaskError(KindVersionConflict, op, taskID, "", err)
	case errors.Is(err, ErrNotFound):
		return newTaskError(KindNotFound, op, taskID, "", err)
	case errors.Is(err, ErrDuplicateWorkflowInstance):
		return newTaskError(KindDuplicateWorkflowInstance, op, taskID, "", err)
	default:
		return newTaskError(KindRemote, op, taskID, "", err)
	}
}

// withOp relabels a task error produced by a helper with the command name.
func withOp(err error, op string) error {
	var te *TaskError
	if errors.As(err, &te) {
		copied := *te
		copied.Op = op
		return &copied
	}
	return err
}

func (s *TaskStore) logEvent(eventType string, data map[string]any) {
	if s.events == nil {
		return
	}
	_ = s.events.LogEvent(eventType, data)
}
