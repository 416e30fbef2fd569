package fen

import (
	"strings"

	"github.com/notnil/chess"
)

// FromPosition derives the canonical key for an already-validated engine
// position, stripping the move counters the same way Canonicalize does.
func FromPosition(pos *chess.Position) string {
	fields := strings.Fields(pos.String())
	if len(fields) < 4 {
		return pos.String()
	}
	return strings.Join(append(fields[:4], "0", "1"), " ")
}
