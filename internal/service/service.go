// Package service is the position statistics front door: canonicalized
// lookups over the store, synthetic fallback for unknown positions, a
// result cache, and a background ingestion queue.
package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"movebook/internal/archive"
	"movebook/internal/catalog"
	"movebook/internal/fen"
	"movebook/internal/fetch"
	"movebook/internal/sample"
	"movebook/internal/stats"
	"movebook/internal/store"
)

// Source produces per-move statistics for a position. The synthetic
// estimator is one variant; the store-backed path is the other. Tests can
// substitute a deterministic source.
type Source interface {
	PositionStats(canonical string) ([]stats.MoveAggregate, error)
	Tag() string
}

// Config wires the service's collaborators. All dependencies are explicit;
// nothing is ambient.
type Config struct {
	Store     *store.Store
	Registry  *catalog.Registry
	Fetcher   *fetch.Fetcher
	Estimator Source
	CacheSize int // cached positions, default 512
	Logger    zerolog.Logger
}

// Service owns the result cache and the ingestion queue.
type Service struct {
	store     *store.Store
	registry  *catalog.Registry
	fetcher   *fetch.Fetcher
	estimator Source
	proc      *archive.Processor
	log       zerolog.Logger

	cacheMu sync.Mutex
	cache   *lru.Cache[string, map[string][]stats.MoveAggregate]

	seedGroup singleflight.Group

	queue *ingestQueue

	lifecycleMu  sync.Mutex
	running      atomic.Bool
	workerCancel context.CancelFunc
	wg           sync.WaitGroup
}

// New builds a Service and points the registry's availability probe at the
// fetcher.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil || cfg.Registry == nil || cfg.Fetcher == nil {
		return nil, fmt.Errorf("service: store, registry and fetcher are required")
	}
	if cfg.Estimator == nil {
		cfg.Estimator = sample.NewEstimator()
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = 512
	}
	cache, err := lru.New[string, map[string][]stats.MoveAggregate](cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	s := &Service{
		store:     cfg.Store,
		registry:  cfg.Registry,
		fetcher:   cfg.Fetcher,
		estimator: cfg.Estimator,
		log:       cfg.Logger,
		cache:     cache,
		queue:     newIngestQueue(),
	}
	cfg.Registry.Available = cfg.Fetcher.Available
	s.proc = archive.New(archive.Config{
		Resolver: cfg.Fetcher,
		Logger:   cfg.Logger.With().Str("component", "archive").Logger(),
	}, mergeSink{s})
	return s, nil
}

// mergeSink feeds archive tallies into the store and keeps the result
// cache coherent with every merge.
type mergeSink struct{ s *Service }

func (k mergeSink) Record(pos, move string, result stats.Result, sourceTag, sourceFile string) error {
	if err := k.s.store.MergeUpdate(pos, move, result, sourceTag, sourceFile); err != nil {
		return err
	}
	k.s.invalidate(pos)
	return nil
}

// MergeUpdate folds one game outcome into the store and invalidates the
// cached results for the position.
func (s *Service) MergeUpdate(pos, move string, result stats.Result, sourceTag, sourceFile string) error {
	if err := s.store.MergeUpdate(pos, move, result, sourceTag, sourceFile); err != nil {
		return err
	}
	s.invalidate(pos)
	return nil
}

func (s *Service) invalidate(canonical string) {
	s.cacheMu.Lock()
	s.cache.Remove(canonical)
	s.cacheMu.Unlock()
}

func filterKey(sourceTag string, minGames int) string {
	return fmt.Sprintf("%s|%d", sourceTag, minGames)
}

// GetPositionStats returns ranked move statistics for a position. Invalid
// positions yield an empty result, never an error. When the store has no
// data at all for the position, synthetic estimates are merged in under the
// reserved "sample" tag and served.
func (s *Service) GetPositionStats(raw, sourceTag string, minGames int) []stats.MoveAggregate {
	canonical, err := fen.Canonicalize(raw)
	if err != nil {
		s.log.Warn().Err(err).Str("fen", raw).Msg("invalid position")
		return nil
	}

	key := filterKey(sourceTag, minGames)
	s.cacheMu.Lock()
	if filters, ok := s.cache.Get(canonical); ok {
		if cached, ok := filters[key]; ok {
			s.cacheMu.Unlock()
			return cached
		}
	}
	s.cacheMu.Unlock()

	rows, err := s.store.GetAllForPosition(canonical, sourceTag)
	if err != nil {
		s.log.Error().Err(err).Str("fen", canonical).Msg("store query failed")
		return nil
	}
	if len(rows) == 0 && s.seedSynthetic(canonical) {
		rows, err = s.store.GetAllForPosition(canonical, sourceTag)
		if err != nil {
			s.log.Error().Err(err).Str("fen", canonical).Msg("store query failed")
			return nil
		}
	}

	if minGames > 0 {
		filtered := rows[:0]
		for _, row := range rows {
			if row.TotalGames() >= minGames {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	s.cacheMu.Lock()
	filters, ok := s.cache.Get(canonical)
	if !ok {
		filters = make(map[string][]stats.MoveAggregate)
		s.cache.Add(canonical, filters)
	}
	filters[key] = rows
	s.cacheMu.Unlock()
	return rows
}

// seedSynthetic fills the store with estimates for a position that has no
// aggregates under any tag. Returns true when a seeding pass ran. A
// foreground miss and the drainer's fallback can race here; collapsing
// callers onto one flight per position keeps the emptiness check and the
// merge loop atomic, so the estimate set is merged at most once.
func (s *Service) seedSynthetic(canonical string) bool {
	v, _, _ := s.seedGroup.Do(canonical, func() (any, error) {
		return s.seedPosition(canonical), nil
	})
	seeded, _ := v.(bool)
	return seeded
}

func (s *Service) seedPosition(canonical string) bool {
	// The tag-filtered view may be empty while another tag has data; only
	// synthesize when the position is truly unknown.
	all, err := s.store.GetAllForPosition(canonical, "")
	if err != nil || len(all) > 0 {
		return false
	}
	ests, err := s.estimator.PositionStats(canonical)
	if err != nil {
		s.log.Warn().Err(err).Str("fen", canonical).Msg("synthetic estimation failed")
		return false
	}
	for _, est := range ests {
		if err := s.store.MergeAggregate(est); err != nil {
			s.log.Warn().Err(err).Msg("merge synthetic aggregate")
			return false
		}
	}
	s.invalidate(canonical)
	s.log.Info().Str("fen", canonical).Int("moves", len(ests)).Msg("seeded synthetic statistics")
	return len(ests) > 0
}

// RequestIngestion enqueues a position for background archive-driven
// ingestion. Non-blocking; duplicate pending positions are dropped; the
// drainer is started on demand, never twice.
func (s *Service) RequestIngestion(raw string) {
	canonical, err := fen.Canonicalize(raw)
	if err != nil {
		s.log.Warn().Err(err).Str("fen", raw).Msg("invalid position, ingestion not queued")
		return
	}
	if s.queue.Enqueue(raw, canonical) {
		s.log.Debug().Str("fen", canonical).Int("queued", s.queue.Len()).Msg("position queued for ingestion")
	}
	s.Start(context.Background())
}

// Start launches the single background drainer. Starting while one runs is
// a no-op.
func (s *Service) Start(ctx context.Context) {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	workerCtx, cancel := context.WithCancel(ctx)
	s.workerCancel = cancel
	s.wg.Add(1)
	go s.drain(workerCtx)
}

// Close stops the drainer and waits for the in-flight unit to finish.
func (s *Service) Close() {
	s.lifecycleMu.Lock()
	cancel := s.workerCancel
	s.workerCancel = nil
	s.lifecycleMu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Service) drain(ctx context.Context) {
	defer s.wg.Done()
	defer s.running.Store(false)
	for {
		item, err := s.queue.Dequeue(ctx)
		if err != nil {
			return
		}
		s.ingestPosition(ctx, item)
	}
}

// ingestPosition runs the drain path for one queued position: process the
// relevant verified archives, downloading the best candidate when nothing
// is local, and fall back to synthetic seeding.
func (s *Service) ingestPosition(ctx context.Context, item queuedPosition) {
	ids, err := s.registry.RelevantSources(item.raw)
	if err != nil {
		s.log.Warn().Err(err).Str("fen", item.canonical).Msg("no relevant sources")
		return
	}
	processedAny := false
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if !s.fetcher.Available(id) && !s.fetcher.Download(ctx, id) {
			continue
		}
		processed, err := s.ProcessDataset(ctx, id)
		if err != nil {
			continue
		}
		if processed > 0 {
			processedAny = true
		}
	}
	if !processedAny {
		s.seedSynthetic(item.canonical)
	}
	s.invalidate(item.canonical)
}

// DownloadDataset fetches one archive by identifier. Unknown identifiers
// and exhausted URLs both report false.
func (s *Service) DownloadDataset(ctx context.Context, id string) bool {
	return s.fetcher.Download(ctx, id)
}

// ProcessDataset replays one archive into the store and records run
// metadata.
func (s *Service) ProcessDataset(ctx context.Context, id string) (int, error) {
	processed, err := s.proc.Process(ctx, id)
	if err != nil {
		s.log.Warn().Err(err).Str("dataset", id).Msg("archive processing failed")
		return processed, err
	}
	if processed > 0 {
		if rerr := s.store.RecordDatasetRun(id, processed, processed); rerr != nil {
			s.log.Warn().Err(rerr).Str("dataset", id).Msg("record dataset run")
		}
	}
	return processed, nil
}

// DatasetStatus reports the local state of one catalog entry. Unknown
// identifiers return catalog.ErrUnknownDataset.
func (s *Service) DatasetStatus(id string) (fetch.DatasetStatus, error) {
	return s.fetcher.Status(id)
}

// Cleanup clears the result cache and runs store and archive housekeeping.
// Safe to call when there is nothing to clean.
func (s *Service) Cleanup() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
	if err := s.store.Housekeep(); err != nil {
		s.log.Warn().Err(err).Msg("store housekeeping")
	}
	s.fetcher.CleanupCorrupted()
	s.log.Info().Msg("cleanup complete")
}

// QueueLen reports how many positions await background ingestion.
func (s *Service) QueueLen() int {
	return s.queue.Len()
}
