package stats

import "testing"

func TestPerformanceScoreBounds(t *testing.T) {
	cases := []MoveAggregate{
		{},
		{Wins: 10},
		{Losses: 10},
		{Draws: 10},
		{Wins: 1, Losses: 99},
		{Wins: 50, Losses: 30, Draws: 20},
	}
	for _, agg := range cases {
		p := agg.PerformanceScore()
		if p < 0 || p > 1 {
			t.Errorf("PerformanceScore(%+v) = %f, out of [0,1]", agg, p)
		}
	}
}

func TestPerformanceScoreConventions(t *testing.T) {
	var empty MoveAggregate
	if got := empty.PerformanceScore(); got != 0.5 {
		t.Errorf("empty performance = %f, want 0.5", got)
	}
	if got := empty.DecisivenessScore(); got != 0 {
		t.Errorf("empty decisiveness = %f, want 0", got)
	}

	agg := MoveAggregate{Wins: 10, Losses: 5}
	if got, want := agg.PerformanceScore(), 10.0/15.0; got != want {
		t.Errorf("performance = %f, want %f", got, want)
	}
	if got := agg.DecisivenessScore(); got != 1 {
		t.Errorf("decisiveness = %f, want 1", got)
	}
}

func TestConfidenceMonotonic(t *testing.T) {
	rank := map[string]int{
		ConfidenceVeryLow: 0,
		ConfidenceLow:     1,
		ConfidenceMedium:  2,
		ConfidenceHigh:    3,
	}
	prev := -1
	for total := 0; total <= 200; total++ {
		agg := MoveAggregate{Wins: total}
		level, ok := rank[agg.ConfidenceLevel()]
		if !ok {
			t.Fatalf("unknown confidence %q at total %d", agg.ConfidenceLevel(), total)
		}
		if level < prev {
			t.Fatalf("confidence decreased at total %d", total)
		}
		prev = level
	}
	thresholds := map[int]string{
		9:   ConfidenceVeryLow,
		10:  ConfidenceLow,
		50:  ConfidenceMedium,
		100: ConfidenceHigh,
	}
	for total, want := range thresholds {
		agg := MoveAggregate{Draws: total}
		if got := agg.ConfidenceLevel(); got != want {
			t.Errorf("confidence(%d) = %q, want %q", total, got, want)
		}
	}
}

func TestEvaluation(t *testing.T) {
	even := MoveAggregate{Wins: 50, Losses: 50}
	if got := even.Evaluation(); got != 0 {
		t.Errorf("even evaluation = %d, want 0", got)
	}
	winning := MoveAggregate{Wins: 100}
	if got := winning.Evaluation(); got != 100 {
		t.Errorf("all-wins evaluation = %d, want 100", got)
	}
}

func TestSortByPerformance(t *testing.T) {
	aggs := []MoveAggregate{
		{Move: "g1f3", Wins: 5, Losses: 5},
		{Move: "e2e4", Wins: 9, Losses: 1},
		{Move: "d2d4", Wins: 9, Losses: 1},
		{Move: "a2a3", Wins: 1, Losses: 9},
	}
	SortByPerformance(aggs)
	want := []string{"d2d4", "e2e4", "g1f3", "a2a3"}
	for i, move := range want {
		if aggs[i].Move != move {
			t.Fatalf("order[%d] = %s, want %s (full: %v)", i, aggs[i].Move, move, aggs)
		}
	}
}

func TestParseResult(t *testing.T) {
	for _, valid := range []string{"1-0", "0-1", "1/2-1/2"} {
		if _, ok := ParseResult(valid); !ok {
			t.Errorf("ParseResult(%q) not ok", valid)
		}
	}
	for _, invalid := range []string{"", "*", "1-1", "unknown"} {
		if _, ok := ParseResult(invalid); ok {
			t.Errorf("ParseResult(%q) ok, want rejection", invalid)
		}
	}
}

func TestSourceFiles(t *testing.T) {
	var agg MoveAggregate
	agg.AddSourceFile("b.pgn")
	agg.AddSourceFile("a.pgn")
	agg.AddSourceFile("b.pgn")
	agg.AddSourceFile("")
	if len(agg.SourceFiles) != 2 {
		t.Fatalf("SourceFiles = %v, want two entries", agg.SourceFiles)
	}
	if agg.SourceFiles[0] != "a.pgn" || agg.SourceFiles[1] != "b.pgn" {
		t.Errorf("SourceFiles = %v, want sorted [a.pgn b.pgn]", agg.SourceFiles)
	}
}
