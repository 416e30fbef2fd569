package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testSources() []Source {
	return []Source{
		{ID: "alpha", URL: "http://x/alpha", Relevance: 0.9, Phases: []string{PhaseOpening, PhaseMiddlegame, PhaseEndgame}},
		{ID: "beta", URL: "http://x/beta", Relevance: 0.8, Phases: []string{PhaseOpening, PhaseMiddlegame, PhaseEndgame}},
		{ID: "gamma", URL: "http://x/gamma", Relevance: 0.7, Phases: []string{PhaseMiddlegame, PhaseEndgame}},
		{ID: "delta", URL: "http://x/delta", Relevance: 0.6, Phases: []string{PhaseEndgame}},
	}
}

func TestPhase(t *testing.T) {
	cases := []struct {
		ply  int
		want string
	}{
		{0, PhaseOpening},
		{9, PhaseOpening},
		{10, PhaseMiddlegame},
		{29, PhaseMiddlegame},
		{30, PhaseEndgame},
		{120, PhaseEndgame},
	}
	for _, tc := range cases {
		if got := Phase(tc.ply); got != tc.want {
			t.Errorf("Phase(%d) = %s, want %s", tc.ply, got, tc.want)
		}
	}
}

func TestSourcesForPhaseDownloadCandidate(t *testing.T) {
	r, err := New(testSources())
	if err != nil {
		t.Fatal(err)
	}
	// Nothing available locally: only the best covering entry is suggested.
	got := r.SourcesForPhase(PhaseEndgame)
	if len(got) != 1 || got[0] != "alpha" {
		t.Errorf("SourcesForPhase(endgame) = %v, want [alpha]", got)
	}
}

func TestSourcesForPhaseAvailability(t *testing.T) {
	r, err := New(testSources())
	if err != nil {
		t.Fatal(err)
	}
	r.Available = func(id string) bool { return id == "gamma" || id == "delta" }

	got := r.SourcesForPhase(PhaseEndgame)
	if len(got) != 2 || got[0] != "gamma" || got[1] != "delta" {
		t.Errorf("SourcesForPhase(endgame) = %v, want [gamma delta]", got)
	}
	// gamma does not cover the opening, so the download candidate wins.
	got = r.SourcesForPhase(PhaseOpening)
	if len(got) != 1 || got[0] != "alpha" {
		t.Errorf("SourcesForPhase(opening) = %v, want [alpha]", got)
	}
}

func TestRelevantSources(t *testing.T) {
	r, err := New(testSources())
	if err != nil {
		t.Fatal(err)
	}
	r.Available = func(string) bool { return true }

	start := "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	got, err := r.RelevantSources(start)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "alpha" || got[1] != "beta" {
		t.Errorf("RelevantSources(start) = %v, want [alpha beta]", got)
	}

	endgame := "8/8/8/4k3/8/8/4K3/4R3 w - - 12 61"
	got, err = r.RelevantSources(endgame)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 || got[0] != "alpha" {
		t.Errorf("RelevantSources(endgame) = %v, want all four most relevant first", got)
	}

	if _, err := r.RelevantSources("garbage"); err == nil {
		t.Error("RelevantSources on invalid position succeeded, want error")
	}
}

func TestLookupUnknown(t *testing.T) {
	r, err := New(testSources())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Lookup("nope"); !errors.Is(err, ErrUnknownDataset) {
		t.Errorf("Lookup(nope) err = %v, want ErrUnknownDataset", err)
	}
	if _, err := r.Lookup("alpha"); err != nil {
		t.Errorf("Lookup(alpha) err = %v", err)
	}
}

func TestNewRejectsDuplicatesAndIncomplete(t *testing.T) {
	if _, err := New([]Source{
		{ID: "a", URL: "http://x/a"},
		{ID: "a", URL: "http://x/b"},
	}); err == nil {
		t.Error("duplicate source accepted")
	}
	if _, err := New([]Source{{ID: "a"}}); err == nil {
		t.Error("source without URL accepted")
	}
	if _, err := New(nil); err == nil {
		t.Error("empty catalog accepted")
	}
}

func TestLoadExtensionFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	body := `
[[sources]]
id = "club_games"
description = "local club archive"
url = "https://example.com/club.pgn.zst"
size_mb = 2
relevance = 0.95
phases = ["opening"]
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	r, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	src, err := r.Lookup("club_games")
	if err != nil {
		t.Fatal(err)
	}
	if src.Relevance != 0.95 || src.Filename() != "club_games.pgn.zst" {
		t.Errorf("loaded source = %+v", src)
	}
	// Extension outranks every default.
	if ids := r.IDs(); ids[0] != "club_games" {
		t.Errorf("IDs() = %v, want club_games first", ids)
	}
}
