package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/opsboard/internal/core"
	"github.com/valter-silva-au/opsboard/internal/observability"
	"github.com/valter-silva-au/opsboard/pkg/models"
)

// Dashboard panel indices.
const (
	panelSLA = iota
	panelMetrics
	panelAlerts
	panelCount
)

// lateListSize is how many of the latest-running tasks the SLA panel lists.
const lateListSize = 5

// delayColumns orders the SLA grid from healthy to overdue.
var delayColumns = []core.DelaySeverity{core.SeverityOnTime, core.SeverityAtRisk, core.SeverityDelayed, core.SeverityOverdue}

// slaGrid counts active tasks per classification and delay severity.
type slaGrid map[models.Classification]map[core.DelaySeverity]int

func (g slaGrid) add(c models.Classification, s core.DelaySeverity) {
	row, ok := g[c]
	if !ok {
		row = make(map[core.DelaySeverity]int)
		g[c] = row
	}
	row[s]++
}

func (g slaGrid) total() int {
	n := 0
	for _, row := range g {
		for _, count := range row {
			n += count
		}
	}
	return n
}

// dashboardData is everything one load produces.
type dashboardData struct {
	grid      slaGrid
	completed int
	late      []core.TaskView
	metrics   *observability.Metrics
	alerts    []observability.Alert
	loadedAt  time.Time
}

type dashboardLoadedMsg struct {
	data dashboardData
	err  error
}

type dashboardModel struct {
	activePanel int
	width       int
	height      int

	data dashboardData

	// alertOffset scrolls the alerts panel.
	alertOffset int

	loading bool
	err     error
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	activePanelStyle = panelStyle.
				BorderForeground(lipgloss.Color("62"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

var delayStyles = map[core.DelaySeverity]lipgloss.Style{
	core.SeverityOnTime:  lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
	core.SeverityAtRisk:  lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
	core.SeverityDelayed: lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
	core.SeverityOverdue: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
}

var alertStyles = map[observability.AlertSeverity]lipgloss.Style{
	observability.SeverityHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	observability.SeverityMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
	observability.SeverityLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("69")),
}

func styleForDelay(s core.DelaySeverity) lipgloss.Style {
	if st, ok := delayStyles[s]; ok {
		return st
	}
	return lipgloss.NewStyle()
}

func newDashboardModel() dashboardModel {
	return dashboardModel{activePanel: panelSLA, loading: true}
}

func (m dashboardModel) Init() tea.Cmd {
	return loadData
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activePanel = (m.activePanel + 1) % panelCount
		case "shift+tab":
			m.activePanel = (m.activePanel - 1 + panelCount) % panelCount
		case "down", "j":
			if m.activePanel == panelAlerts && m.alertOffset < len(m.data.alerts)-1 {
				m.alertOffset++
			}
		case "up", "k":
			if m.activePanel == panelAlerts && m.alertOffset > 0 {
				m.alertOffset--
			}
		case "r":
			m.loading = true
			return m, refreshAndLoadData
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case dashboardLoadedMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.data = msg.data
			m.alertOffset = min(m.alertOffset, max(0, len(m.data.alerts)-1))
		}
		return m, nil
	}

	return m, nil
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" opsb Dashboard ")
	help := helpStyle.Render("tab: switch panel | ↑/↓: scroll alerts | r: refresh | q: quit")

	switch {
	case m.loading:
		return fmt.Sprintf("%s\n\n  Loading data...\n\n%s", title, help)
	case m.err != nil:
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, help)
	}

	panels := []string{m.renderSLAPanel(), m.renderMetricsPanel(), m.renderAlertsPanel()}

	// Three columns when the terminal is wide enough, stacked otherwise.
	avail := m.width - 2
	join := lipgloss.JoinVertical
	pos := lipgloss.Left
	width := max(20, avail-4)
	if avail > 120 {
		join, pos = lipgloss.JoinHorizontal, lipgloss.Top
		width = avail/panelCount - 4
	}
	for i, p := range panels {
		style := panelStyle
		if i == m.activePanel {
			style = activePanelStyle
		}
		panels[i] = style.Width(width).Render(p)
	}

	stamp := ""
	if !m.data.loadedAt.IsZero() {
		stamp = helpStyle.Render("  as of " + m.data.loadedAt.Local().Format("15:04:05"))
	}
	return fmt.Sprintf("%s%s\n\n%s\n\n%s", title, stamp, join(pos, panels...), help)
}

func (m dashboardModel) renderSLAPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Active tasks by SLA"))
	b.WriteString("\n")

	active := m.data.grid.total()
	if active == 0 {
		b.WriteString("  No active tasks.")
		if m.data.completed > 0 {
			fmt.Fprintf(&b, "\n  Completed: %d", m.data.completed)
		}
		return b.String()
	}

	fmt.Fprintf(&b, "  %-12s", "")
	for _, sev := range delayColumns {
		fmt.Fprintf(&b, " %8s", sev)
	}
	b.WriteString("\n")
	for _, c := range models.AllClassifications {
		row := m.data.grid[c]
		if len(row) == 0 {
			continue
		}
		fmt.Fprintf(&b, "  %-12s", c)
		for _, sev := range delayColumns {
			cell := fmt.Sprintf(" %8d", row[sev])
			if row[sev] > 0 {
				cell = styleForDelay(sev).Render(cell)
			}
			b.WriteString(cell)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n  Active: %d  Completed: %d\n", active, m.data.completed)

	if len(m.data.late) > 0 {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render("Furthest behind"))
		b.WriteString("\n")
		for _, v := range m.data.late {
			line := fmt.Sprintf("  %-22s %-18s +%dd", truncate(cardTitle(v), 22), truncate(v.StepLabel, 18), v.Delay.OverdueDays)
			b.WriteString(styleForDelay(v.Delay.Severity).Render(line))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m dashboardModel) renderMetricsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Metrics (7d)"))
	b.WriteString("\n")

	md := m.data.metrics
	if md == nil {
		b.WriteString("  No metrics available.")
		return b.String()
	}

	for _, l := range []struct {
		label string
		value int
	}{
		{"Events", md.EventCount},
		{"Created", md.TasksCreated},
		{"Advanced", md.TasksAdvanced},
		{"Completed", md.TasksCompleted},
		{"Deleted", md.TasksDeleted},
		{"Rollbacks", md.Rollbacks},
		{"Conflicts", md.Conflicts},
		{"Overrides", md.DuplicateOverrides},
	} {
		fmt.Fprintf(&b, "  %-14s %d\n", l.label, l.value)
	}

	if len(md.CreatedByClass) > 0 {
		classes := make([]string, 0, len(md.CreatedByClass))
		for c := range md.CreatedByClass {
			classes = append(classes, c)
		}
		sort.Strings(classes)
		b.WriteString("\n  New by classification\n")
		for _, c := range classes {
			fmt.Fprintf(&b, "    %-12s %d\n", c, md.CreatedByClass[c])
		}
	}
	return b.String()
}

func (m dashboardModel) renderAlertsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Alerts"))
	b.WriteString("\n")

	if len(m.data.alerts) == 0 {
		b.WriteString("  No active alerts.")
		return b.String()
	}

	rows := len(m.data.alerts)
	if m.height > 0 {
		rows = max(3, m.height/3)
	}
	end := min(len(m.data.alerts), m.alertOffset+rows)
	for _, a := range m.data.alerts[m.alertOffset:end] {
		tag := fmt.Sprintf("[%s]", strings.ToUpper(string(a.Severity)))
		if st, ok := alertStyles[a.Severity]; ok {
			tag = st.Render(tag)
		}
		fmt.Fprintf(&b, "  %s %s\n", tag, a.Message)
	}

	fmt.Fprintf(&b, "\n  %d-%d of %d alert(s)", m.alertOffset+1, end, len(m.data.alerts))
	return b.String()
}

// refreshAndLoadData reloads the task snapshot from the store before
// rebuilding the panels. A failed refresh keeps the previous snapshot.
func refreshAndLoadData() tea.Msg {
	if TaskStore != nil {
		if _, err := TaskStore.Refresh(rootContext()); err != nil {
			return dashboardLoadedMsg{err: fmt.Errorf("refreshing tasks: %w", err)}
		}
	}
	return loadData()
}

func loadData() tea.Msg {
	now := time.Now()
	data := dashboardData{grid: make(slaGrid), loadedAt: now}

	var views []core.TaskView
	if TaskStore != nil {
		views = TaskStore.Views()
	}
	for _, v := range views {
		if v.Completed() {
			data.completed++
			continue
		}
		data.grid.add(v.Classification, v.Delay.Severity)
		if v.Delay.Severity.Rank() >= core.SeverityDelayed.Rank() {
			data.late = append(data.late, v)
		}
	}
	sort.SliceStable(data.late, func(i, j int) bool {
		a, b := data.late[i].Delay, data.late[j].Delay
		if a.Severity != b.Severity {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		return a.OverdueDays > b.OverdueDays
	})
	if len(data.late) > lateListSize {
		data.late = data.late[:lateListSize]
	}

	if MetricsCalc != nil {
		metrics, err := MetricsCalc.Calculate(now.UTC().AddDate(0, 0, -7))
		if err != nil {
			return dashboardLoadedMsg{err: fmt.Errorf("loading metrics: %w", err)}
		}
		data.metrics = metrics
	}

	if AlertEngine != nil {
		alerts, err := AlertEngine.Evaluate(views, now)
		if err != nil {
			return dashboardLoadedMsg{err: fmt.Errorf("loading alerts: %w", err)}
		}
		data.alerts = alerts
	}

	return dashboardLoadedMsg{data: data}
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive TUI dashboard for SLA status, metrics and alerts",
	Long: `Launch an interactive terminal dashboard showing active tasks as a
classification by delay grid, the tasks furthest behind schedule, event
metrics for the last 7 days, and SLA alerts.

Navigate between panels with Tab, scroll alerts with the arrow keys,
refresh with r, quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskStore == nil {
			return fmt.Errorf("task store not initialized")
		}
		p := tea.NewProgram(newDashboardModel(), tea.WithAltScreen(), tea.WithContext(rootContext()))
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
