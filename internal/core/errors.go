package core

import (
	"errors"
	"fmt"
)

// ErrorKind is a stable tag that lets callers pick an affordance
// ("confirm override", "retry", "nothing to do") without parsing messages.
type ErrorKind string

const (
	KindValidation                ErrorKind = "validation"
	KindDuplicateWorkflowInstance ErrorKind = "duplicate_workflow_instance"
	KindVersionConflict           ErrorKind = "version_conflict"
	KindAlreadyTerminal           ErrorKind = "already_terminal"
	KindNotFound                  ErrorKind = "not_found"
	KindRemote                    ErrorKind = "remote"
	KindRead                      ErrorKind = "read"
)

// Sentinel errors, one per kind. TaskError.Is matches them by kind so
// errors.Is(err, ErrVersionConflict) works on wrapped task errors.
var (
	ErrValidation                = errors.New("validation failed")
	ErrDuplicateWorkflowInstance = errors.New("duplicate workflow instance")
	ErrVersionConflict           = errors.New("task was modified since it was last read")
	ErrAlreadyTerminal           = errors.New("task is already at its terminal step")
	ErrNotFound                  = errors.New("task not found")
	ErrRemote                    = errors.New("store call failed")
	ErrRead                      = errors.New("store read failed")
)

var kindSentinels = map[ErrorKind]error{
	KindValidation:                ErrValidation,
	KindDuplicateWorkflowInstance: ErrDuplicateWorkflowInstance,
	KindVersionConflict:           ErrVersionConflict,
	KindAlreadyTerminal:           ErrAlreadyTerminal,
	KindNotFound:                  ErrNotFound,
	KindRemote:                    ErrRemote,
	KindRead:                      ErrRead,
}

// TaskError wraps a task engine failure with its kind and context.
type TaskError struct {
	Kind   ErrorKind
	Op     string // e.g. "create", "advance"
	TaskID string

	// ConflictingTaskID is set for duplicate workflow instance errors.
	ConflictingTaskID string

	Message string
	Err     error
}

func (e *TaskError) Error() string {
	target := ""
	if e.TaskID != "" {
		target = " task " + e.TaskID
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = kindSentinels[e.Kind].Error()
	}
	if e.ConflictingTaskID != "" {
		return fmt.Sprintf("%s%s: %s (conflicts with %s)", e.Op, target, msg, e.ConflictingTaskID)
	}
	return fmt.Sprintf("%s%s: %s", e.Op, target, msg)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *TaskError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func newTaskError(kind ErrorKind, op, taskID, message string, err error) *TaskError {
	return &TaskError{Kind: kind, Op: op, TaskID: taskID, Message: message, Err: err}
}

// KindOf returns the kind of a task engine error, falling back to matching
// bare sentinels (as returned by store implementations).
func KindOf(err error) (ErrorKind, bool) {
	if err == nil {
		return "", false
	}
	var te *TaskError
	if errors.As(err, &te) {
		return te.Kind, true
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind, true
		}
	}
	return "", false
}

// IsRetryable reports whether re-fetching and retrying may succeed.
func IsRetryable(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return false
	}
	return kind == KindVersionConflict || kind == KindRemote || kind == KindRead
}

// ConflictingTaskID extracts the id of the task a duplicate error refers to.
func ConflictingTaskID(err error) string {
	var te *TaskError
	if errors.As(err, &te) {
		return te.ConflictingTaskID
	}
	return ""
}
