package sample

import (
	"testing"

	"movebook/internal/stats"
)

const startPos = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func TestPositionStatsStartingPosition(t *testing.T) {
	est := NewEstimator()
	aggs, err := est.PositionStats(startPos)
	if err != nil {
		t.Fatal(err)
	}
	if len(aggs) != 20 {
		t.Fatalf("got %d moves, want the 20 legal opening moves", len(aggs))
	}
	for _, agg := range aggs {
		if agg.Source != stats.SourceSample {
			t.Errorf("%s: Source = %q, want %q", agg.Move, agg.Source, stats.SourceSample)
		}
		if len(agg.SourceFiles) != 1 || agg.SourceFiles[0] != SourceFile {
			t.Errorf("%s: SourceFiles = %v", agg.Move, agg.SourceFiles)
		}
		if agg.TotalGames() == 0 {
			t.Errorf("%s: no games", agg.Move)
		}
		if agg.Wins < 0 || agg.Losses < 0 || agg.Draws < 0 {
			t.Errorf("%s: negative tally %d/%d/%d", agg.Move, agg.Wins, agg.Losses, agg.Draws)
		}
	}
	for i := 1; i < len(aggs); i++ {
		if aggs[i].PerformanceScore() > aggs[i-1].PerformanceScore() {
			t.Errorf("not sorted: %s above %s", aggs[i-1].Move, aggs[i].Move)
		}
	}
}

func TestPositionStatsDeterministic(t *testing.T) {
	est := NewEstimator()
	first, err := est.PositionStats(startPos)
	if err != nil {
		t.Fatal(err)
	}
	second, err := est.PositionStats(startPos)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		a, b := first[i], second[i]
		if a.Move != b.Move || a.Wins != b.Wins || a.Losses != b.Losses || a.Draws != b.Draws {
			t.Errorf("run mismatch at %d: %+v vs %+v", i, a, b)
		}
	}
}

func TestPositionStatsCaptureBonus(t *testing.T) {
	// White queen takes the d5 pawn; the capture variant must outscore the
	// plain queen move baseline before jitter, which is bounded at +/-5 each.
	pos := "rnb1kbnr/ppp1pppp/8/3p4/8/3Q4/PPPPPPPP/RNB1KBNR w KQkq - 0 1"
	est := NewEstimator()
	aggs, err := est.PositionStats(pos)
	if err != nil {
		t.Fatal(err)
	}
	var capture *stats.MoveAggregate
	for i := range aggs {
		if aggs[i].Move == "d3d5" {
			capture = &aggs[i]
		}
	}
	if capture == nil {
		t.Fatal("capture move d3d5 not generated")
	}
	// Queen base 38/42, capture bonus +5/+5, jitter within [-5,+5].
	if capture.Wins < 38 || capture.Wins > 48 || capture.Losses < 42 || capture.Losses > 52 {
		t.Errorf("capture tallies %d/%d outside expected band", capture.Wins, capture.Losses)
	}
}

func TestPositionStatsInvalidPosition(t *testing.T) {
	if _, err := NewEstimator().PositionStats("garbage"); err == nil {
		t.Error("invalid position accepted")
	}
}

func TestTag(t *testing.T) {
	if got := NewEstimator().Tag(); got != stats.SourceSample {
		t.Errorf("Tag = %q, want %q", got, stats.SourceSample)
	}
}
