package cli

import (
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/opsboard/internal/core"
	"github.com/valter-silva-au/opsboard/pkg/models"
)

const boardColumnWidth = 26

var (
	boardPlain bool
	boardClass string
)

var (
	columnStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Width(boardColumnWidth).
			Padding(0, 1)

	activeColumnStyle = columnStyle.
				BorderForeground(lipgloss.Color("62"))

	cardStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	selectedCardStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62"))
	statusLineStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	errorLineStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// boardModel is the kanban TUI. It reads boards from the task store's
// snapshot and sends advances through the store, so an advance shows up
// immediately and disappears again if the store rejects it.
type boardModel struct {
	store   *core.TaskStore
	classes []models.Classification
	class   int

	board core.Board
	col   int
	row   int

	width  int
	height int

	// confirmID is set while a duplicate warning awaits confirmation.
	confirmID string
	status    string
	err       error
}

type boardAdvancedMsg struct {
	taskID string
	result core.AdvanceResult
	err    error
}

type boardRefreshedMsg struct {
	err error
}

func newBoardModel(store *core.TaskStore, class models.Classification) boardModel {
	classes := append([]models.Classification{models.ClassAll}, store.Registry().Classifications()...)
	m := boardModel{store: store, classes: classes}
	for i, c := range classes {
		if c == class {
			m.class = i
		}
	}
	m.reload()
	return m
}

func (m boardModel) classification() models.Classification {
	return m.classes[m.class]
}

// reload rebuilds the board from the snapshot and keeps the cursor in range.
func (m *boardModel) reload() {
	m.board = m.store.Board(core.TaskFilter{}, m.classification())
	if m.col >= len(m.board.Columns) {
		m.col = len(m.board.Columns) - 1
	}
	if m.col < 0 {
		m.col = 0
	}
	m.clampRow()
}

func (m *boardModel) clampRow() {
	n := len(m.cards())
	if m.row >= n {
		m.row = n - 1
	}
	if m.row < 0 {
		m.row = 0
	}
}

func (m boardModel) cards() []core.TaskView {
	if m.col < 0 || m.col >= len(m.board.Columns) {
		return nil
	}
	return m.board.Columns[m.col].Cards
}

func (m boardModel) selected() (core.TaskView, bool) {
	cards := m.cards()
	if m.row < 0 || m.row >= len(cards) {
		return core.TaskView{}, false
	}
	return cards[m.row], true
}

func (m boardModel) Init() tea.Cmd {
	return nil
}

func (m boardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.confirmID != "" {
			return m.updateConfirm(msg)
		}
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "left", "h":
			if m.col > 0 {
				m.col--
				m.clampRow()
			}
		case "right", "l":
			if m.col < len(m.board.Columns)-1 {
				m.col++
				m.clampRow()
			}
		case "up", "k":
			if m.row > 0 {
				m.row--
			}
		case "down", "j":
			if m.row < len(m.cards())-1 {
				m.row++
			}
		case "tab", "c":
			m.class = (m.class + 1) % len(m.classes)
			m.col, m.row = 0, 0
			m.reload()
			m.status = fmt.Sprintf("showing %s", m.classification())
		case "enter", "a":
			card, ok := m.selected()
			if !ok {
				return m, nil
			}
			m.status = fmt.Sprintf("advancing %s...", card.ID)
			return m, m.advance(card, false)
		case "r":
			m.status = "refreshing..."
			return m, m.refresh()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case boardAdvancedMsg:
		m.reload()
		if msg.err != nil {
			if kind, _ := core.KindOf(msg.err); kind == core.KindDuplicateWorkflowInstance {
				m.confirmID = msg.taskID
				m.err = nil
				m.status = fmt.Sprintf("%v. Advance anyway? (y/n)", msg.err)
				return m, nil
			}
			m.err = msg.err
			m.status = ""
			return m, nil
		}
		m.err = nil
		m.status = fmt.Sprintf("%s moved to %s (%d%%)", msg.taskID, msg.result.NewLabel, msg.result.NewProgress)
		return m, nil

	case boardRefreshedMsg:
		m.reload()
		if msg.err != nil {
			m.err = msg.err
			m.status = ""
			return m, nil
		}
		m.err = nil
		m.status = fmt.Sprintf("refreshed: %d cards", m.board.CardCount())
		return m, nil
	}

	return m, nil
}

func (m boardModel) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	id := m.confirmID
	m.confirmID = ""
	switch msg.String() {
	case "y", "Y":
		view, err := m.store.View(id)
		if err != nil {
			m.err = err
			return m, nil
		}
		m.status = fmt.Sprintf("advancing %s...", id)
		return m, m.advance(view, true)
	default:
		m.status = "advance cancelled"
		return m, nil
	}
}

func (m boardModel) advance(card core.TaskView, override bool) tea.Cmd {
	store := m.store
	return func() tea.Msg {
		res, _, err := store.Advance(rootContext(), core.AdvanceCommand{
			TaskID:            card.ID,
			ExpectedVersion:   card.Version,
			OverrideConfirmed: override,
		})
		return boardAdvancedMsg{taskID: card.ID, result: res, err: err}
	}
}

func (m boardModel) refresh() tea.Cmd {
	store := m.store
	return func() tea.Msg {
		_, err := store.Refresh(rootContext())
		return boardRefreshedMsg{err: err}
	}
}

func (m boardModel) View() string {
	title := titleStyle.Render(fmt.Sprintf(" opsb Board: %s ", m.classification()))
	help := helpStyle.Render("←/→ column | ↑/↓ card | a: advance | c: classification | r: refresh | q: quit")

	if len(m.board.Columns) == 0 {
		return fmt.Sprintf("%s\n\n  No columns.\n\n%s", title, help)
	}

	// Show as many columns as fit, keeping the selected one in view.
	visible := len(m.board.Columns)
	if m.width > 0 {
		visible = max(1, (m.width-2)/(boardColumnWidth+4))
	}
	start := 0
	if m.col >= visible {
		start = m.col - visible + 1
	}
	end := min(len(m.board.Columns), start+visible)

	cols := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		cols = append(cols, m.renderColumn(i))
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top, cols...)

	var footer string
	switch {
	case m.err != nil:
		footer = errorLineStyle.Render("Error: " + m.err.Error())
	case m.status != "":
		footer = statusLineStyle.Render(m.status)
	}
	if n := len(m.board.Unplaced); n > 0 {
		footer += helpStyle.Render(fmt.Sprintf("  (%d task(s) with unknown steps not shown)", n))
	}

	return fmt.Sprintf("%s  %s\n\n%s\n%s\n%s", title,
		helpStyle.Render(fmt.Sprintf("column %d/%d", m.col+1, len(m.board.Columns))),
		body, footer, help)
}

func (m boardModel) renderColumn(i int) string {
	col := m.board.Columns[i]
	var b strings.Builder
	b.WriteString(headerStyle.Render(truncate(fmt.Sprintf("%s (%d)", col.Label, len(col.Cards)), boardColumnWidth-2)))
	b.WriteString("\n")

	if len(col.Cards) == 0 {
		b.WriteString(helpStyle.Render("empty"))
	}
	for j, card := range col.Cards {
		style := cardStyle
		if i == m.col && j == m.row {
			style = selectedCardStyle
		}
		b.WriteString(style.Render(truncate(cardTitle(card), boardColumnWidth-2)))
		b.WriteString("\n")
		b.WriteString(styleForDelay(card.Delay.Severity).Render(fmt.Sprintf("  %3d%% %s", card.Progress, card.Delay.Severity)))
		b.WriteString("\n")
	}

	if i == m.col {
		return activeColumnStyle.Render(b.String())
	}
	return columnStyle.Render(b.String())
}

func cardTitle(v core.TaskView) string {
	if v.Business.BusinessName != "" {
		return v.Business.BusinessName
	}
	if v.Title != "" {
		return v.Title
	}
	return v.ID
}

// printBoard writes the board as plain text, one column per block.
func printBoard(w io.Writer, b core.Board) {
	fmt.Fprintf(w, "Board: %s (%d cards)\n", b.Classification, b.CardCount())
	for _, col := range b.Columns {
		fmt.Fprintf(w, "\n[%s] %d\n", col.Label, len(col.Cards))
		for _, card := range col.Cards {
			fmt.Fprintf(w, "  %-36s %-30s %3d%%  %s\n", card.ID, truncate(cardTitle(card), 30), card.Progress, card.Delay.Severity)
		}
	}
	if len(b.Unplaced) > 0 {
		fmt.Fprintf(w, "\n[unplaced] %d\n", len(b.Unplaced))
		for _, card := range b.Unplaced {
			fmt.Fprintf(w, "  %-36s %-30s step %q\n", card.ID, truncate(cardTitle(card), 30), card.Step)
		}
	}
}

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Kanban board of tasks by step",
	Long: `Show tasks as a kanban board with one column per step.

With --class all, columns from every classification are merged by label.
The interactive board lets you move between columns and cards, advance the
selected card, switch classification and refresh from the store. Use --plain
for non-interactive output.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskStore == nil {
			return fmt.Errorf("task store not initialized")
		}
		class := models.Classification(boardClass)
		if class != models.ClassAll && !class.Valid() {
			return fmt.Errorf("unknown classification %q", boardClass)
		}

		if boardPlain {
			printBoard(cmd.OutOrStdout(), TaskStore.Board(core.TaskFilter{}, class))
			return nil
		}

		p := tea.NewProgram(newBoardModel(TaskStore, class), tea.WithAltScreen(), tea.WithContext(rootContext()))
		_, err := p.Run()
		return err
	},
}

func init() {
	boardCmd.Flags().BoolVar(&boardPlain, "plain", false, "Print the board as plain text")
	boardCmd.Flags().StringVar(&boardClass, "class", string(models.ClassAll), "Classification to show (or all)")
	_ = boardCmd.RegisterFlagCompletionFunc("class", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		out, dir := completeClassifications(cmd, args, toComplete)
		return append([]string{string(models.ClassAll)}, out...), dir
	})
	rootCmd.AddCommand(boardCmd)
}
