package core

import (
	"strings"

	"github.com/valter-silva-au/opsboard/pkg/models"
)

// filterAll is the query value meaning "do not filter on this field".
const filterAll = "all"

// TaskFilter specifies criteria for narrowing the task list.
// All specified fields use AND logic: a task must match every criterion.
type TaskFilter struct {
	// Search holds comma-separated terms; every term must appear
	// (case-insensitively) in at least one searchable field.
	Search string `json:"search,omitempty"`

	Classification models.Classification `json:"classification,omitempty"`
	Priority       models.Priority       `json:"priority,omitempty"`
	Assignee       string                `json:"assignee,omitempty"`
	Step           string                `json:"step,omitempty"`
	Locality       string                `json:"locality,omitempty"`

	// MissingReportDate keeps only tasks without a recorded report date.
	MissingReportDate bool `json:"missing_report_date,omitempty"`

	// ShowCompleted switches between the completed view (progress == 100)
	// and the active view (progress < 100).
	ShowCompleted bool `json:"show_completed,omitempty"`
}

// FilterTasks returns the views matching f, preserving input order.
func FilterTasks(views []TaskView, f TaskFilter) []TaskView {
	terms := SearchTerms(f.Search)
	result := make([]TaskView, 0, len(views))
	for _, v := range views {
		if matchesTaskFilter(v, f, terms) {
			result = append(result, v)
		}
	}
	return result
}

// SearchTerms splits a comma-separated search string into lower-cased,
// trimmed, non-empty terms.
func SearchTerms(search string) []string {
	var terms []string
	for _, raw := range strings.Split(search, ",") {
		term := strings.ToLower(strings.TrimSpace(raw))
		if term != "" {
			terms = append(terms, term)
		}
	}
	return terms
}

func matchesTaskFilter(v TaskView, f TaskFilter, terms []string) bool {
	if f.ShowCompleted != v.Completed() {
		return false
	}
	if !isAll(string(f.Classification)) && v.Classification != f.Classification {
		return false
	}
	if !isAll(string(f.Priority)) && v.Priority != f.Priority {
		return false
	}
	if !isAll(f.Step) && v.Step != f.Step {
		return false
	}
	if !isAll(f.Locality) && v.Business.LocalityName != f.Locality {
		return false
	}
	if f.MissingReportDate && strings.TrimSpace(v.ReportDate) != "" {
		return false
	}
	if !isAll(f.Assignee) && !hasAssignee(v.TaskRecord, f.Assignee) {
		return false
	}
	for _, term := range terms {
		if !matchesSearchTerm(v.TaskRecord, term) {
			return false
		}
	}
	return true
}

func isAll(value string) bool {
	return value == "" || value == filterAll
}

// hasAssignee matches the legacy single-assignee field or any assignee entry.
func hasAssignee(t models.TaskRecord, name string) bool {
	name = strings.TrimSpace(name)
	if strings.EqualFold(strings.TrimSpace(t.Assignee), name) {
		return true
	}
	for _, a := range t.Assignees {
		if strings.EqualFold(strings.TrimSpace(a.DisplayName), name) {
			return true
		}
	}
	return false
}

func matchesSearchTerm(t models.TaskRecord, term string) bool {
	fields := []string{t.Description, t.Business.BusinessName, t.Business.LocalityName, t.Assignee}
	for _, a := range t.Assignees {
		fields = append(fields, a.DisplayName)
	}
	for _, field := range fields {
		if field != "" && strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

// Page selects a window of a result list. Number is 1-based.
type Page struct {
	Size   int `json:"page_size"`
	Number int `json:"page"`
}

// PageResult is one page of filtered views.
type PageResult struct {
	Items     []TaskView `json:"items"`
	Total     int        `json:"total"`
	Page      int        `json:"page"`
	PageSize  int        `json:"page_size"`
	PageCount int        `json:"page_count"`
}

// Paginate slices views into the requested page. A non-positive size returns
// everything as a single page; page numbers below 1 are treated as 1.
func Paginate(views []TaskView, p Page) PageResult {
	total := len(views)
	number := p.Number
	if number < 1 {
		number = 1
	}
	if p.Size <= 0 {
		return PageResult{Items: views, Total: total, Page: 1, PageSize: total, PageCount: 1}
	}

	pageCount := (total + p.Size - 1) / p.Size
	res := PageResult{
		Items:     []TaskView{},
		Total:     total,
		Page:      number,
		PageSize:  p.Size,
		PageCount: pageCount,
	}
	start := (number - 1) * p.Size
	if start >= total {
		return res
	}
	end := start + p.Size
	if end > total {
		end = total
	}
	res.Items = views[start:end]
	return res
}

// Query holds the interactive filter and page state of a task list. Changing
// any predicate sends the user back to the first page.
type Query struct {
	filter TaskFilter
	page   Page
}

// NewQuery creates a query on page 1 with the given page size.
func NewQuery(pageSize int) *Query {
	return &Query{page: Page{Size: pageSize, Number: 1}}
}

// Filter returns the current predicates.
func (q *Query) Filter() TaskFilter {
	return q.filter
}

// Page returns the current page selection.
func (q *Query) Page() Page {
	return q.page
}

// SetFilter replaces the predicates, resetting to page 1 if they changed.
func (q *Query) SetFilter(f TaskFilter) {
	if f != q.filter {
		q.page.Number = 1
	}
	q.filter = f
}

// SetPage moves to page n.
func (q *Query) SetPage(n int) {
	if n < 1 {
		n = 1
	}
	q.page.Number = n
}

// Run filters then paginates views.
func (q *Query) Run(views []TaskView) PageResult {
	return Paginate(FilterTasks(views, q.filter), q.page)
}
