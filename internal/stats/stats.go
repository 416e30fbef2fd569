// Package stats defines the move outcome aggregate and its derived metrics.
package stats

import (
	"fmt"
	"sort"
	"time"
)

// Result is the terminal result of a game as recorded in the archive,
// relative to the whole game ("1-0" means White won).
type Result string

const (
	WhiteWin Result = "1-0"
	BlackWin Result = "0-1"
	Draw     Result = "1/2-1/2"
)

// ParseResult validates a result tag. Unterminated games ("*", empty)
// are not valid results.
func ParseResult(s string) (Result, bool) {
	switch Result(s) {
	case WhiteWin, BlackWin, Draw:
		return Result(s), true
	}
	return "", false
}

// SourceSample is the reserved tag for synthetic estimates. Synthetic and
// archive-derived aggregates must never share a tag.
const SourceSample = "sample"

// Confidence tiers by total sample size.
const (
	ConfidenceVeryLow = "very_low"
	ConfidenceLow     = "low"
	ConfidenceMedium  = "medium"
	ConfidenceHigh    = "high"
)

// MoveAggregate is the accumulated tally for one (position, move, source)
// key. Wins and losses are counted from the perspective of the side to move
// at the canonicalized position.
type MoveAggregate struct {
	FEN         string
	Move        string // UCI notation
	Wins        int
	Losses      int
	Draws       int
	Source      string
	SourceFiles []string
	LastUpdated time.Time
	EvalScore   int // centipawn-like, recomputed from W/L/D
}

// TotalGames returns the sample size behind this aggregate.
func (m *MoveAggregate) TotalGames() int {
	return m.Wins + m.Losses + m.Draws
}

// PerformanceScore is (wins + draws/2) / total, 0.5 when total is 0.
func (m *MoveAggregate) PerformanceScore() float64 {
	total := m.TotalGames()
	if total == 0 {
		return 0.5
	}
	return (float64(m.Wins) + 0.5*float64(m.Draws)) / float64(total)
}

// DecisivenessScore is (wins + losses) / total, 0 when total is 0.
func (m *MoveAggregate) DecisivenessScore() float64 {
	total := m.TotalGames()
	if total == 0 {
		return 0
	}
	return float64(m.Wins+m.Losses) / float64(total)
}

// ConfidenceLevel buckets the sample size into a coarse label.
func (m *MoveAggregate) ConfidenceLevel() string {
	switch total := m.TotalGames(); {
	case total >= 100:
		return ConfidenceHigh
	case total >= 50:
		return ConfidenceMedium
	case total >= 10:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}

// Evaluation maps the performance score onto a centipawn-like scale.
func (m *MoveAggregate) Evaluation() int {
	return int((m.PerformanceScore() - 0.5) * 200)
}

// HasSourceFile reports whether the given archive already contributed.
func (m *MoveAggregate) HasSourceFile(name string) bool {
	for _, f := range m.SourceFiles {
		if f == name {
			return true
		}
	}
	return false
}

// AddSourceFile unions one archive identifier into the provenance set.
func (m *MoveAggregate) AddSourceFile(name string) {
	if name == "" || m.HasSourceFile(name) {
		return
	}
	m.SourceFiles = append(m.SourceFiles, name)
	sort.Strings(m.SourceFiles)
}

func (m *MoveAggregate) String() string {
	return fmt.Sprintf("%s +%d -%d =%d (%s)", m.Move, m.Wins, m.Losses, m.Draws, m.Source)
}

// SortByPerformance orders aggregates by descending performance score,
// breaking ties by move notation so the order is deterministic.
func SortByPerformance(aggs []MoveAggregate) {
	sort.Slice(aggs, func(i, j int) bool {
		pi, pj := aggs[i].PerformanceScore(), aggs[j].PerformanceScore()
		if pi != pj {
			return pi > pj
		}
		return aggs[i].Move < aggs[j].Move
	})
}
