// Package fen canonicalizes board position descriptions into the
// deduplication key used throughout the statistics store.
package fen

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/notnil/chess"
)

// ErrInvalidPosition is returned for structurally invalid position
// descriptions (bad piece placement, impossible side to move, etc).
var ErrInvalidPosition = errors.New("invalid position")

// Canonicalize parses a FEN, validates it, and re-serializes it with the
// halfmove clock and fullmove number zeroed out, so positions reached by
// different move orders collapse to a single key. Pure function, idempotent.
func Canonicalize(raw string) (string, error) {
	opt, err := chess.FEN(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	game := chess.NewGame(opt)
	fields := strings.Fields(game.Position().String())
	if len(fields) < 4 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPosition, raw)
	}
	return strings.Join(append(fields[:4], "0", "1"), " "), nil
}

// Ply returns the number of plies played so far, derived from the fullmove
// number and side to move. It must be read from the raw description before
// Canonicalize strips the counters.
func Ply(raw string) (int, error) {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) < 6 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPosition, raw)
	}
	fullmove, err := strconv.Atoi(fields[5])
	if err != nil || fullmove < 1 {
		return 0, fmt.Errorf("%w: bad fullmove %q", ErrInvalidPosition, fields[5])
	}
	ply := (fullmove - 1) * 2
	switch fields[1] {
	case "w":
	case "b":
		ply++
	default:
		return 0, fmt.Errorf("%w: bad side to move %q", ErrInvalidPosition, fields[1])
	}
	return ply, nil
}

// Position parses a raw FEN into an engine position for legal move
// enumeration and replay.
func Position(raw string) (*chess.Position, error) {
	opt, err := chess.FEN(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	return chess.NewGame(opt).Position(), nil
}
