package core

import "github.com/valter-silva-au/opsboard/pkg/models"

// Mutation is a command applied optimistically to the in-memory task list.
// Apply and Commit receive a private copy of the state and return the
// replacement; Rollback returns the state to restore after a failed remote
// call, given the snapshot taken before Apply.
type Mutation interface {
	Apply(state []models.TaskRecord) ([]models.TaskRecord, error)
	Commit(state []models.TaskRecord, confirmed *models.TaskRecord) []models.TaskRecord
	Rollback(previous []models.TaskRecord) []models.TaskRecord
}

// createMutation appends a record under a placeholder id until the store
// assigns the real one.
type createMutation struct {
	record models.TaskRecord
}

func (m *createMutation) Apply(state []models.TaskRecord) ([]models.TaskRecord, error) {
	return append(state, m.record.Clone()), nil
}

// Commit swaps the placeholder for the confirmed record. Any record already
// carrying the confirmed id is dropped first so the task appears once.
func (m *createMutation) Commit(state []models.TaskRecord, confirmed *models.TaskRecord) []models.TaskRecord {
	if confirmed != nil && confirmed.ID != m.record.ID {
		state = removeByID(state, confirmed.ID)
	}
	return replaceByID(state, m.record.ID, confirmed)
}

func (m *createMutation) Rollback(previous []models.TaskRecord) []models.TaskRecord {
	return cloneRecords(previous)
}

// updateMutation replaces a record in place; advances are updates too.
type updateMutation struct {
	record models.TaskRecord
}

func (m *updateMutation) Apply(state []models.TaskRecord) ([]models.TaskRecord, error) {
	if indexOf(state, m.record.ID) < 0 {
		return nil, newTaskError(KindNotFound, "update", m.record.ID, "", nil)
	}
	return replaceByID(state, m.record.ID, &m.record), nil
}

func (m *updateMutation) Commit(state []models.TaskRecord, confirmed *models.TaskRecord) []models.TaskRecord {
	return replaceByID(state, m.record.ID, confirmed)
}

func (m *updateMutation) Rollback(previous []models.TaskRecord) []models.TaskRecord {
	return cloneRecords(previous)
}

// deleteMutation removes a record; on rollback it reappears at the position
// it was removed from.
type deleteMutation struct {
	id      string
	index   int
	removed models.TaskRecord
}

func (m *deleteMutation) Apply(state []models.TaskRecord) ([]models.TaskRecord, error) {
	i := indexOf(state, m.id)
	if i < 0 {
		return nil, newTaskError(KindNotFound, "delete", m.id, "", nil)
	}
	m.index = i
	m.removed = state[i].Clone()
	return append(state[:i], state[i+1:]...), nil
}

func (m *deleteMutation) Commit(state []models.TaskRecord, _ *models.TaskRecord) []models.TaskRecord {
	return state
}

func (m *deleteMutation) Rollback(previous []models.TaskRecord) []models.TaskRecord {
	out := cloneRecords(previous)
	if indexOf(out, m.id) >= 0 {
		return out
	}
	out = append(out, models.TaskRecord{})
	copy(out[m.index+1:], out[m.index:])
	out[m.index] = m.removed
	return out
}

func indexOf(state []models.TaskRecord, id string) int {
	for i := range state {
		if state[i].ID == id {
			return i
		}
	}
	return -1
}

func replaceByID(state []models.TaskRecord, id string, rec *models.TaskRecord) []models.TaskRecord {
	if rec == nil {
		return state
	}
	if i := indexOf(state, id); i >= 0 {
		state[i] = rec.Clone()
		return state
	}
	return append(state, rec.Clone())
}

func removeByID(state []models.TaskRecord, id string) []models.TaskRecord {
	out := state[:0]
	for _, r := range state {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}

func cloneRecords(records []models.TaskRecord) []models.TaskRecord {
	if records == nil {
		return nil
	}
	out := make([]models.TaskRecord, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
