package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/valter-silva-au/opsboard/internal/core"
	"github.com/valter-silva-au/opsboard/pkg/models"
)

// listParams are the query parameters accepted by the list and board routes.
type listParams struct {
	Search            string `validate:"max=200"`
	Classification    string `validate:"omitempty,oneof=all self subsidy dealer outsourcing etc as"`
	Priority          string `validate:"omitempty,oneof=all high medium low"`
	Assignee          string
	Step              string
	Locality          string
	MissingReportDate bool
	ShowCompleted     bool
	Page              int `validate:"gte=0"`
	PageSize          int `validate:"gte=0,lte=500"`
}

func (p listParams) filter() core.TaskFilter {
	return core.TaskFilter{
		Search:            p.Search,
		Classification:    models.Classification(p.Classification),
		Priority:          models.Priority(p.Priority),
		Assignee:          p.Assignee,
		Step:              p.Step,
		Locality:          p.Locality,
		MissingReportDate: p.MissingReportDate,
		ShowCompleted:     p.ShowCompleted,
	}
}

// CreateTaskRequest creates a task either from an explicit record or, when
// FromBusiness is set, from the business's category.
type CreateTaskRequest struct {
	Task              models.TaskRecord `json:"task"`
	FromBusiness      string            `json:"from_business,omitempty"`
	OverrideConfirmed bool              `json:"override_confirmed,omitempty"`
}

// UpdateTaskRequest replaces a task. Task.Version is the version the client
// last read.
type UpdateTaskRequest struct {
	Task              models.TaskRecord `json:"task"`
	OverrideConfirmed bool              `json:"override_confirmed,omitempty"`
}

// AdvanceTaskRequest moves a task to its next step.
type AdvanceTaskRequest struct {
	ExpectedVersion   int64 `json:"expected_version,omitempty" validate:"gte=0"`
	OverrideConfirmed bool  `json:"override_confirmed,omitempty"`
}

// AdvanceTaskResponse reports the transition and the confirmed task.
type AdvanceTaskResponse struct {
	Transition core.AdvanceResult `json:"transition"`
	Task       core.TaskView      `json:"task"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.Refresh(r.Context())
	if err != nil {
		handleTaskError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"tasks": len(records)})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	params, ok := s.parseListParams(w, r)
	if !ok {
		return
	}
	if params.PageSize == 0 {
		params.PageSize = s.pageSize
	}
	writeJSON(w, http.StatusOK, s.store.Query(params.filter(), core.Page{Size: params.PageSize, Number: params.Page}))
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	params, ok := s.parseListParams(w, r)
	if !ok {
		return
	}
	// The board's classification selects columns, not a row filter.
	class := models.Classification(params.Classification)
	f := params.filter()
	f.Classification = ""
	if class != "" && class != models.ClassAll {
		f.Classification = class
	}
	writeJSON(w, http.StatusOK, s.store.Board(f, class))
}

func (s *Server) handleSteps(w http.ResponseWriter, r *http.Request) {
	class := models.Classification(chi.URLParam(r, "classification"))
	steps := s.store.Registry().StepsFor(class)
	if steps == nil {
		notFound(w, r, fmt.Sprintf("unknown classification %q", class))
		return
	}
	writeJSON(w, http.StatusOK, steps)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	view, err := s.store.View(chi.URLParam(r, "id"))
	if err != nil {
		handleTaskError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[CreateTaskRequest](w, r, false)
	if !ok {
		return
	}

	task := req.Task
	if req.FromBusiness != "" {
		built, err := s.taskFromBusiness(r, req.FromBusiness, req.Task.Priority)
		if err != nil {
			handleTaskError(w, r, err)
			return
		}
		task = built
	}

	created, err := s.store.Create(r.Context(), core.CreateCommand{Task: task, OverrideConfirmed: req.OverrideConfirmed})
	if err != nil {
		handleTaskError(w, r, err)
		return
	}
	s.writeTaskView(w, r, http.StatusCreated, created.ID)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[UpdateTaskRequest](w, r, false)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if req.Task.ID != "" && req.Task.ID != id {
		badRequest(w, r, "task id in body does not match path")
		return
	}
	req.Task.ID = id

	updated, err := s.store.Update(r.Context(), core.UpdateCommand{Task: req.Task, OverrideConfirmed: req.OverrideConfirmed})
	if err != nil {
		handleTaskError(w, r, err)
		return
	}
	s.writeTaskView(w, r, http.StatusOK, updated.ID)
}

func (s *Server) handleAdvanceTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[AdvanceTaskRequest](w, r, true)
	if !ok {
		return
	}
	if err := s.validate.Struct(req); err != nil {
		badRequest(w, r, describeValidation(err))
		return
	}

	res, advanced, err := s.store.Advance(r.Context(), core.AdvanceCommand{
		TaskID:            chi.URLParam(r, "id"),
		ExpectedVersion:   req.ExpectedVersion,
		OverrideConfirmed: req.OverrideConfirmed,
	})
	if err != nil {
		handleTaskError(w, r, err)
		return
	}
	view, err := s.store.View(advanced.ID)
	if err != nil {
		handleTaskError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AdvanceTaskResponse{Transition: res, Task: view})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleTaskError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeTaskView(w http.ResponseWriter, r *http.Request, status int, id string) {
	view, err := s.store.View(id)
	if err != nil {
		handleTaskError(w, r, err)
		return
	}
	writeJSON(w, status, view)
}

func (s *Server) taskFromBusiness(r *http.Request, businessID string, priority models.Priority) (models.TaskRecord, error) {
	if s.businesses == nil {
		return models.TaskRecord{}, &core.TaskError{Kind: core.KindValidation, Op: "create", Message: "business directory is not configured"}
	}
	b, err := s.businesses.GetBusiness(r.Context(), businessID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return models.TaskRecord{}, &core.TaskError{Kind: core.KindValidation, Op: "create",
				Message: fmt.Sprintf("business %q not found", businessID), Err: err}
		}
		return models.TaskRecord{}, &core.TaskError{Kind: core.KindRead, Op: "create", Err: err}
	}
	return core.NewTaskFromBusiness(s.store.Registry(), *b, priority)
}

func (s *Server) parseListParams(w http.ResponseWriter, r *http.Request) (listParams, bool) {
	q := r.URL.Query()
	p := listParams{
		Search:         q.Get("search"),
		Classification: strings.ToLower(q.Get("classification")),
		Priority:       strings.ToLower(q.Get("priority")),
		Assignee:       q.Get("assignee"),
		Step:           q.Get("step"),
		Locality:       q.Get("locality"),
	}

	var err error
	if p.MissingReportDate, err = boolParam(q.Get("missing_report_date")); err != nil {
		badRequest(w, r, "missing_report_date: "+err.Error())
		return p, false
	}
	if p.ShowCompleted, err = boolParam(q.Get("show_completed")); err != nil {
		badRequest(w, r, "show_completed: "+err.Error())
		return p, false
	}
	if p.Page, err = intParam(q.Get("page")); err != nil {
		badRequest(w, r, "page: "+err.Error())
		return p, false
	}
	if p.PageSize, err = intParam(q.Get("page_size")); err != nil {
		badRequest(w, r, "page_size: "+err.Error())
		return p, false
	}

	if err := s.validate.Struct(p); err != nil {
		badRequest(w, r, describeValidation(err))
		return p, false
	}
	return p, true
}

func boolParam(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
