package fen

import (
	"errors"
	"testing"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func TestCanonicalizeStripsMoveCounters(t *testing.T) {
	variants := []string{
		startFEN,
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 5 20",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 99 50",
	}
	want, err := Canonicalize(variants[0])
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	for _, v := range variants[1:] {
		got, err := Canonicalize(v)
		if err != nil {
			t.Fatalf("Canonicalize(%q): %v", v, err)
		}
		if got != want {
			t.Errorf("Canonicalize(%q) = %q, want %q", v, got, want)
		}
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	fens := []string{
		startFEN,
		"rnbqkbnr/pp1ppppp/8/2p5/4P3/8/PPPP1PPP/RNBQKBNR w KQkq c6 0 2",
		"8/8/8/4k3/8/8/4K3/4R3 w - - 12 61",
	}
	for _, raw := range fens {
		once, err := Canonicalize(raw)
		if err != nil {
			t.Fatalf("Canonicalize(%q): %v", raw, err)
		}
		twice, err := Canonicalize(once)
		if err != nil {
			t.Fatalf("Canonicalize(canonical): %v", err)
		}
		if once != twice {
			t.Errorf("not idempotent: %q -> %q -> %q", raw, once, twice)
		}
	}
}

func TestCanonicalizeInvalid(t *testing.T) {
	bad := []string{
		"",
		"not a fen at all",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP w KQkq - 0 1",  // missing rank
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR x KQkq - 0 1", // bad side
	}
	for _, raw := range bad {
		if _, err := Canonicalize(raw); !errors.Is(err, ErrInvalidPosition) {
			t.Errorf("Canonicalize(%q) err = %v, want ErrInvalidPosition", raw, err)
		}
	}
}

func TestPly(t *testing.T) {
	cases := []struct {
		fen  string
		want int
	}{
		{startFEN, 0},
		{"rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1", 1},
		{"rnbqkbnr/pp1ppppp/8/2p5/4P3/8/PPPP1PPP/RNBQKBNR w KQkq c6 0 2", 2},
		{"8/8/8/4k3/8/8/4K3/4R3 w - - 12 61", 120},
	}
	for _, tc := range cases {
		got, err := Ply(tc.fen)
		if err != nil {
			t.Fatalf("Ply(%q): %v", tc.fen, err)
		}
		if got != tc.want {
			t.Errorf("Ply(%q) = %d, want %d", tc.fen, got, tc.want)
		}
	}
	if _, err := Ply("too short"); !errors.Is(err, ErrInvalidPosition) {
		t.Errorf("Ply on short input err = %v, want ErrInvalidPosition", err)
	}
}
