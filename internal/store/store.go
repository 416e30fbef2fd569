// Package store is the durable aggregate of (position, move, source) ->
// win/loss/draw tallies. All mutation goes through MergeUpdate; the store
// serializes read-modify-write cycles so concurrent merges never lose
// updates.
package store

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"movebook/internal/stats"
)

// ErrNotFound is returned when a key is not found in the store.
var ErrNotFound = errors.New("not found")

// DatasetRun tracks how much of an archive has been ingested.
type DatasetRun struct {
	Name           string
	TotalGames     int
	ProcessedGames int
	LastUpdated    time.Time
}

// Backend persists aggregates. Implementations do not need to be
// merge-aware; the Store serializes merges above them.
type Backend interface {
	Get(fen, move, source string) (*stats.MoveAggregate, error)
	Put(agg *stats.MoveAggregate) error
	ForKey(fen, move string) ([]stats.MoveAggregate, error)
	ForPosition(fen, source string) ([]stats.MoveAggregate, error)
	PutDatasetRun(run DatasetRun) error
	DatasetRun(name string) (DatasetRun, error)
	Housekeep() error
	Close() error
}

// Store owns MoveAggregate rows.
type Store struct {
	mu      sync.Mutex
	backend Backend
	log     zerolog.Logger
}

// Open initializes the SQLite backend at path, falling back to the
// in-memory degraded backend when SQLite cannot be initialized. Only the
// failure of every backend is fatal.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	backend, err := OpenSQLite(path)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("sqlite backend failed, degrading to in-memory store")
		return &Store{backend: NewMemory(), log: logger}, nil
	}
	logger.Info().Str("path", path).Msg("opened statistics store")
	return &Store{backend: backend, log: logger}, nil
}

// NewWithBackend wraps an explicit backend (tests, degraded mode).
func NewWithBackend(b Backend, logger zerolog.Logger) *Store {
	return &Store{backend: b, log: logger}
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// increments maps a whole-game result onto the mover's perspective at the
// canonicalized position: wins count games the side to move went on to win.
func increments(canonicalFEN string, result stats.Result) (wins, losses, draws int) {
	fields := strings.Fields(canonicalFEN)
	whiteToMove := len(fields) > 1 && fields[1] == "w"
	switch result {
	case stats.Draw:
		draws = 1
	case stats.WhiteWin:
		if whiteToMove {
			wins = 1
		} else {
			losses = 1
		}
	case stats.BlackWin:
		if whiteToMove {
			losses = 1
		} else {
			wins = 1
		}
	}
	return
}

// MergeUpdate folds one game's outcome into the aggregate for (pos, move,
// sourceTag). Calls for the same key are serialized; N concurrent calls
// always sum to N increments.
func (s *Store) MergeUpdate(pos, move string, result stats.Result, sourceTag, sourceFile string) error {
	wins, losses, draws := increments(pos, result)
	return s.merge(&stats.MoveAggregate{
		FEN:         pos,
		Move:        move,
		Wins:        wins,
		Losses:      losses,
		Draws:       draws,
		Source:      sourceTag,
		SourceFiles: []string{sourceFile},
		LastUpdated: time.Now(),
	})
}

// MergeAggregate folds a whole aggregate into the store: additive on
// tallies, union on provenance, max on timestamp.
func (s *Store) MergeAggregate(agg stats.MoveAggregate) error {
	return s.merge(&agg)
}

func (s *Store) merge(delta *stats.MoveAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.backend.Get(delta.FEN, delta.Move, delta.Source)
	if errors.Is(err, ErrNotFound) {
		current = &stats.MoveAggregate{
			FEN:    delta.FEN,
			Move:   delta.Move,
			Source: delta.Source,
		}
	} else if err != nil {
		return err
	}

	current.Wins += delta.Wins
	current.Losses += delta.Losses
	current.Draws += delta.Draws
	for _, f := range delta.SourceFiles {
		current.AddSourceFile(f)
	}
	if delta.LastUpdated.After(current.LastUpdated) {
		current.LastUpdated = delta.LastUpdated
	}
	if current.LastUpdated.IsZero() {
		current.LastUpdated = time.Now()
	}
	current.EvalScore = current.Evaluation()
	return s.backend.Put(current)
}

// Get returns the aggregate for one (position, move) pair. With an empty
// sourceTag the view is merged across all tags, consistent with how
// MergeUpdate partitions keys per tag.
func (s *Store) Get(pos, move, sourceTag string) (*stats.MoveAggregate, error) {
	if sourceTag != "" {
		return s.backend.Get(pos, move, sourceTag)
	}
	rows, err := s.backend.ForKey(pos, move)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	merged := mergeRows(rows)
	return &merged[0], nil
}

// GetAllForPosition returns every recorded move at the position, ordered by
// descending performance score with deterministic ties.
func (s *Store) GetAllForPosition(pos, sourceTag string) ([]stats.MoveAggregate, error) {
	rows, err := s.backend.ForPosition(pos, sourceTag)
	if err != nil {
		return nil, err
	}
	if sourceTag == "" {
		rows = mergeRows(rows)
	}
	stats.SortByPerformance(rows)
	return rows, nil
}

// mergeRows collapses per-tag rows into one aggregate per move. A move fed
// by a single tag keeps that tag; mixed provenance gets an empty tag so
// synthetic data is never silently relabeled as archive-derived.
func mergeRows(rows []stats.MoveAggregate) []stats.MoveAggregate {
	byMove := make(map[string]*stats.MoveAggregate)
	var order []string
	for _, row := range rows {
		agg, ok := byMove[row.Move]
		if !ok {
			copied := row
			byMove[row.Move] = &copied
			order = append(order, row.Move)
			continue
		}
		agg.Wins += row.Wins
		agg.Losses += row.Losses
		agg.Draws += row.Draws
		for _, f := range row.SourceFiles {
			agg.AddSourceFile(f)
		}
		if row.LastUpdated.After(agg.LastUpdated) {
			agg.LastUpdated = row.LastUpdated
		}
		if row.Source != agg.Source {
			agg.Source = ""
		}
	}
	out := make([]stats.MoveAggregate, 0, len(order))
	for _, move := range order {
		agg := byMove[move]
		agg.EvalScore = agg.Evaluation()
		out = append(out, *agg)
	}
	return out
}

// RecordDatasetRun persists ingestion progress metadata for an archive.
func (s *Store) RecordDatasetRun(name string, totalGames, processedGames int) error {
	return s.backend.PutDatasetRun(DatasetRun{
		Name:           name,
		TotalGames:     totalGames,
		ProcessedGames: processedGames,
		LastUpdated:    time.Now(),
	})
}

// DatasetRun reports ingestion progress for an archive.
func (s *Store) DatasetRun(name string) (DatasetRun, error) {
	return s.backend.DatasetRun(name)
}

// Housekeep runs backend-level maintenance. Safe to call with nothing to do.
func (s *Store) Housekeep() error {
	return s.backend.Housekeep()
}
