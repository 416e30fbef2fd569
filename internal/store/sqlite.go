package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver.

	"movebook/internal/stats"
)

// SQLite is the primary persistence backend.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the statistics database and applies
// migrations. Schema evolution is additive: new columns are added
// default-filled, never rewriting existing rows.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	b := &SQLite{db: db}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS move_stats (
			fen TEXT NOT NULL,
			move TEXT NOT NULL,
			source TEXT NOT NULL,
			wins INTEGER NOT NULL DEFAULT 0,
			losses INTEGER NOT NULL DEFAULT 0,
			draws INTEGER NOT NULL DEFAULT 0,
			source_files TEXT NOT NULL DEFAULT '[]',
			last_updated INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (fen, move, source)
		);`,
		`CREATE TABLE IF NOT EXISTS dataset_meta (
			name TEXT PRIMARY KEY,
			total_games INTEGER NOT NULL DEFAULT 0,
			processed_games INTEGER NOT NULL DEFAULT 0,
			last_updated INTEGER NOT NULL DEFAULT 0
		);`,
	}
	for _, stmt := range stmts {
		if _, err := b.db.Exec(stmt); err != nil {
			return err
		}
	}
	return b.ensureColumn("move_stats", "eval_score", "INTEGER NOT NULL DEFAULT 0")
}

// ensureColumn adds a column when a pre-existing database lacks it.
func (b *SQLite) ensureColumn(table, column, decl string) error {
	rows, err := b.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	defer rows.Close()
	found := false
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		if name == column {
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if found {
		return nil
	}
	_, err = b.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}

// Close closes the database.
func (b *SQLite) Close() error {
	return b.db.Close()
}

const aggColumns = "fen, move, source, wins, losses, draws, source_files, last_updated, eval_score"

func scanAggregate(scan func(dest ...any) error) (stats.MoveAggregate, error) {
	var (
		agg     stats.MoveAggregate
		files   string
		updated int64
	)
	err := scan(&agg.FEN, &agg.Move, &agg.Source, &agg.Wins, &agg.Losses, &agg.Draws, &files, &updated, &agg.EvalScore)
	if err != nil {
		return agg, err
	}
	if files != "" {
		if err := json.Unmarshal([]byte(files), &agg.SourceFiles); err != nil {
			agg.SourceFiles = nil
		}
	}
	if updated > 0 {
		agg.LastUpdated = time.Unix(updated, 0)
	}
	return agg, nil
}

// Get returns the aggregate for an exact (fen, move, source) key.
func (b *SQLite) Get(fen, move, source string) (*stats.MoveAggregate, error) {
	row := b.db.QueryRow(
		"SELECT "+aggColumns+" FROM move_stats WHERE fen = ? AND move = ? AND source = ?",
		fen, move, source)
	agg, err := scanAggregate(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

// Put upserts a full aggregate row.
func (b *SQLite) Put(agg *stats.MoveAggregate) error {
	files, err := json.Marshal(agg.SourceFiles)
	if err != nil {
		return err
	}
	_, err = b.db.Exec(`INSERT INTO move_stats
		(fen, move, source, wins, losses, draws, source_files, last_updated, eval_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fen, move, source) DO UPDATE SET
			wins = excluded.wins,
			losses = excluded.losses,
			draws = excluded.draws,
			source_files = excluded.source_files,
			last_updated = excluded.last_updated,
			eval_score = excluded.eval_score`,
		agg.FEN, agg.Move, agg.Source, agg.Wins, agg.Losses, agg.Draws,
		string(files), agg.LastUpdated.Unix(), agg.EvalScore)
	return err
}

func (b *SQLite) queryAggregates(query string, args ...any) ([]stats.MoveAggregate, error) {
	rows, err := b.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []stats.MoveAggregate
	for rows.Next() {
		agg, err := scanAggregate(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, rows.Err()
}

// ForKey returns every per-source row for one (fen, move) pair.
func (b *SQLite) ForKey(fen, move string) ([]stats.MoveAggregate, error) {
	return b.queryAggregates(
		"SELECT "+aggColumns+" FROM move_stats WHERE fen = ? AND move = ? ORDER BY source",
		fen, move)
}

// ForPosition returns all rows at a position, optionally filtered by source.
func (b *SQLite) ForPosition(fen, source string) ([]stats.MoveAggregate, error) {
	if source != "" {
		return b.queryAggregates(
			"SELECT "+aggColumns+" FROM move_stats WHERE fen = ? AND source = ? ORDER BY move, source",
			fen, source)
	}
	return b.queryAggregates(
		"SELECT "+aggColumns+" FROM move_stats WHERE fen = ? ORDER BY move, source",
		fen)
}

// PutDatasetRun upserts ingestion metadata for one archive.
func (b *SQLite) PutDatasetRun(run DatasetRun) error {
	_, err := b.db.Exec(`INSERT INTO dataset_meta (name, total_games, processed_games, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			total_games = excluded.total_games,
			processed_games = excluded.processed_games,
			last_updated = excluded.last_updated`,
		run.Name, run.TotalGames, run.ProcessedGames, run.LastUpdated.Unix())
	return err
}

// DatasetRun fetches ingestion metadata for one archive.
func (b *SQLite) DatasetRun(name string) (DatasetRun, error) {
	var (
		run     DatasetRun
		updated int64
	)
	row := b.db.QueryRow(
		"SELECT name, total_games, processed_games, last_updated FROM dataset_meta WHERE name = ?", name)
	err := row.Scan(&run.Name, &run.TotalGames, &run.ProcessedGames, &updated)
	if err == sql.ErrNoRows {
		return DatasetRun{}, ErrNotFound
	}
	if err != nil {
		return DatasetRun{}, err
	}
	run.LastUpdated = time.Unix(updated, 0)
	return run, nil
}

// Housekeep checkpoints the WAL and lets SQLite re-plan statistics.
func (b *SQLite) Housekeep() error {
	if _, err := b.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return err
	}
	_, err := b.db.Exec("PRAGMA optimize")
	return err
}
