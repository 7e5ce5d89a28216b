package core

import (
	"sort"

	"github.com/valter-silva-au/opsboard/pkg/models"
)

// BoardColumn is one kanban column. In single-classification boards Key is
// the step id; in the cross-classification board it is the display label.
type BoardColumn struct {
	Key      string     `json:"key"`
	Label    string     `json:"label"`
	Color    string     `json:"color"`
	Position int        `json:"position"`
	Cards    []TaskView `json:"cards"`
}

// Board is the kanban model for one classification or for all of them.
type Board struct {
	Classification models.Classification `json:"classification"`
	Columns        []BoardColumn         `json:"columns"`

	// Unplaced holds tasks whose step is not part of their own
	// classification's sequence (stale or corrupted data).
	Unplaced []TaskView `json:"unplaced,omitempty"`
}

// CardCount returns the number of cards across all columns.
func (b Board) CardCount() int {
	n := 0
	for _, col := range b.Columns {
		n += len(col.Cards)
	}
	return n
}

// BoardBuilder groups task views into kanban columns.
type BoardBuilder struct {
	registry *StepRegistry
}

// NewBoardBuilder creates a BoardBuilder over registry.
func NewBoardBuilder(registry *StepRegistry) *BoardBuilder {
	return &BoardBuilder{registry: registry}
}

// Build groups views for classification c, or across every classification
// when c is models.ClassAll or empty.
func (bb *BoardBuilder) Build(views []TaskView, c models.Classification) Board {
	if c == "" || c == models.ClassAll {
		return bb.buildMerged(views)
	}
	return bb.buildSingle(views, c)
}

func (bb *BoardBuilder) buildSingle(views []TaskView, c models.Classification) Board {
	steps := bb.registry.StepsFor(c)
	board := Board{Classification: c, Columns: make([]BoardColumn, len(steps))}
	byStep := make(map[string]int, len(steps))
	for i, s := range steps {
		board.Columns[i] = BoardColumn{Key: s.StepID, Label: s.DisplayLabel, Color: s.ColorTag, Position: i, Cards: []TaskView{}}
		byStep[s.StepID] = i
	}

	for _, v := range views {
		if v.Classification != c {
			continue
		}
		i, ok := byStep[v.Step]
		if !ok {
			board.Unplaced = append(board.Unplaced, v)
			continue
		}
		board.Columns[i].Cards = append(board.Columns[i].Cards, v)
	}

	for i := range board.Columns {
		sortCards(board.Columns[i].Cards)
	}
	return board
}

// buildMerged unions every sequence, merging columns whose display labels
// are equal. Each card keeps the step metadata of its own classification.
func (bb *BoardBuilder) buildMerged(views []TaskView) Board {
	board := Board{Classification: models.ClassAll}
	byLabel := make(map[string]int)
	for _, c := range bb.registry.Classifications() {
		for _, s := range bb.registry.StepsFor(c) {
			if _, seen := byLabel[s.DisplayLabel]; seen {
				continue
			}
			byLabel[s.DisplayLabel] = len(board.Columns)
			board.Columns = append(board.Columns, BoardColumn{
				Key:      s.DisplayLabel,
				Label:    s.DisplayLabel,
				Color:    s.ColorTag,
				Position: len(board.Columns),
				Cards:    []TaskView{},
			})
		}
	}

	seen := make([]map[string]bool, len(board.Columns))
	for _, v := range views {
		own, ok := bb.registry.Step(v.Classification, v.Step)
		if !ok {
			board.Unplaced = append(board.Unplaced, v)
			continue
		}
		i, ok := byLabel[own.DisplayLabel]
		if !ok {
			board.Unplaced = append(board.Unplaced, v)
			continue
		}
		if seen[i] == nil {
			seen[i] = make(map[string]bool)
		}
		if v.ID != "" && seen[i][v.ID] {
			continue
		}
		seen[i][v.ID] = true

		v.StepLabel = own.DisplayLabel
		v.StepColor = own.ColorTag
		v.StepOrdinal = own.Ordinal
		board.Columns[i].Cards = append(board.Columns[i].Cards, v)
	}

	for i := range board.Columns {
		sortCards(board.Columns[i].Cards)
	}
	return board
}

// sortCards orders a column FIFO by creation time.
func sortCards(cards []TaskView) {
	sort.SliceStable(cards, func(i, j int) bool {
		return cards[i].CreatedAt.Before(cards[j].CreatedAt)
	})
}
