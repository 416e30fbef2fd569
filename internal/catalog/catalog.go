// Package catalog describes the known remote archive sources and resolves
// which of them are relevant for a position's game phase.
package catalog

import (
	"errors"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"

	"movebook/internal/fen"
)

// ErrUnknownDataset is returned for identifiers not present in the catalog.
var ErrUnknownDataset = errors.New("unknown dataset")

// Game phases used for relevance tagging.
const (
	PhaseOpening    = "opening"
	PhaseMiddlegame = "middlegame"
	PhaseEndgame    = "endgame"
)

// Source is a static catalog entry for one remote archive. Immutable once
// the catalog is loaded.
type Source struct {
	ID             string   `toml:"id"`
	Description    string   `toml:"description"`
	URL            string   `toml:"url"`
	FallbackURLs   []string `toml:"fallback_urls"`
	ExpectedSizeMB int64    `toml:"size_mb"`
	Relevance      float64  `toml:"relevance"`
	Phases         []string `toml:"phases"`
}

// Filename is the deterministic on-disk name for this source's archive.
func (s Source) Filename() string {
	return s.ID + ".pgn.zst"
}

func (s Source) coversPhase(phase string) bool {
	for _, p := range s.Phases {
		if p == phase {
			return true
		}
	}
	return false
}

// Registry holds the loaded catalog. The catalog itself is process-wide
// configuration; only availability checks consult runtime state.
type Registry struct {
	sources []Source
	byID    map[string]Source

	// Available reports whether a source's archive is present and verified
	// locally. Nil means nothing is available.
	Available func(id string) bool
}

// DefaultSources is the built-in catalog of lichess monthly dumps.
func DefaultSources() []Source {
	all := []string{PhaseOpening, PhaseMiddlegame, PhaseEndgame}
	return []Source{
		{
			ID:          "lichess_2023_01",
			Description: "Lichess rated games 2023-01",
			URL:         "https://database.lichess.org/standard/lichess_db_standard_rated_2023-01.pgn.zst",
			FallbackURLs: []string{
				"https://archive.org/download/lichess_db_standard_rated_2023-01/lichess_db_standard_rated_2023-01.pgn.zst",
			},
			ExpectedSizeMB: 1800,
			Relevance:      0.9,
			Phases:         all,
		},
		{
			ID:             "lichess_2022_12",
			Description:    "Lichess rated games 2022-12",
			URL:            "https://database.lichess.org/standard/lichess_db_standard_rated_2022-12.pgn.zst",
			ExpectedSizeMB: 1700,
			Relevance:      0.8,
			Phases:         all,
		},
		{
			ID:             "lichess_2022_11",
			Description:    "Lichess rated games 2022-11",
			URL:            "https://database.lichess.org/standard/lichess_db_standard_rated_2022-11.pgn.zst",
			ExpectedSizeMB: 1600,
			Relevance:      0.7,
			Phases:         []string{PhaseMiddlegame, PhaseEndgame},
		},
		{
			ID:             "lichess_2022_10",
			Description:    "Lichess rated games 2022-10",
			URL:            "https://database.lichess.org/standard/lichess_db_standard_rated_2022-10.pgn.zst",
			ExpectedSizeMB: 1500,
			Relevance:      0.6,
			Phases:         []string{PhaseEndgame},
		},
	}
}

// New builds a registry from the given sources, most relevant first.
func New(sources []Source) (*Registry, error) {
	if len(sources) == 0 {
		return nil, errors.New("catalog: no sources")
	}
	sorted := make([]Source, len(sources))
	copy(sorted, sources)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Relevance > sorted[j].Relevance
	})
	byID := make(map[string]Source, len(sorted))
	for _, s := range sorted {
		if s.ID == "" || s.URL == "" {
			return nil, fmt.Errorf("catalog: source %+v missing id or url", s)
		}
		if _, dup := byID[s.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate source %q", s.ID)
		}
		byID[s.ID] = s
	}
	return &Registry{sources: sorted, byID: byID}, nil
}

// fileCatalog is the TOML shape for catalog extension files.
type fileCatalog struct {
	Sources []Source `toml:"sources"`
}

// Load builds a registry from the built-in catalog plus optional extra
// sources from a TOML file. An empty path loads the defaults only.
func Load(path string) (*Registry, error) {
	sources := DefaultSources()
	if path != "" {
		var fc fileCatalog
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, fmt.Errorf("catalog: decode %s: %w", path, err)
		}
		sources = append(sources, fc.Sources...)
	}
	return New(sources)
}

// Lookup returns the source for an identifier.
func (r *Registry) Lookup(id string) (Source, error) {
	s, ok := r.byID[id]
	if !ok {
		return Source{}, fmt.Errorf("%w: %q", ErrUnknownDataset, id)
	}
	return s, nil
}

// IDs lists all catalog identifiers, most relevant first.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.sources))
	for _, s := range r.sources {
		ids = append(ids, s.ID)
	}
	return ids
}

// Phase classifies a position by the number of plies played.
func Phase(ply int) string {
	switch {
	case ply < 10:
		return PhaseOpening
	case ply < 30:
		return PhaseMiddlegame
	default:
		return PhaseEndgame
	}
}

// RelevantSources classifies the raw position by game phase and returns the
// identifiers of locally available archives covering that phase, most
// relevant first. When none are available it returns the most relevant
// covering entry as a download candidate.
func (r *Registry) RelevantSources(rawFEN string) ([]string, error) {
	ply, err := fen.Ply(rawFEN)
	if err != nil {
		return nil, err
	}
	return r.SourcesForPhase(Phase(ply)), nil
}

// SourcesForPhase resolves relevant sources for an explicit phase.
func (r *Registry) SourcesForPhase(phase string) []string {
	var covering, available []string
	for _, s := range r.sources {
		if !s.coversPhase(phase) {
			continue
		}
		covering = append(covering, s.ID)
		if r.Available != nil && r.Available(s.ID) {
			available = append(available, s.ID)
		}
	}
	if len(available) > 0 {
		return available
	}
	if len(covering) > 0 {
		// Nothing local yet: surface the best candidate for download.
		return covering[:1]
	}
	return nil
}
