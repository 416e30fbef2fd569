// Package fetch downloads remote archives into local storage with retry,
// fallback mirrors, and integrity verification. Partial files are never
// promoted to the final path.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"movebook/internal/catalog"
)

// ErrIntegrity marks a downloaded file that failed verification.
var ErrIntegrity = errors.New("integrity check failed")

// ErrRetryLimit is returned when a dataset has exhausted its retry budget.
var ErrRetryLimit = errors.New("retry limit exceeded")

// magic bytes per compression extension.
var magicTable = map[string][]byte{
	".zst": {0x28, 0xb5, 0x2f, 0xfd},
	".gz":  {0x1f, 0x8b},
	".bz2": {'B', 'Z', 'h'},
	".xz":  {0xfd, '7', 'z', 'X', 'Z', 0x00},
}

// Config configures a Fetcher.
type Config struct {
	Dir            string        // directory archives are stored under
	Timeout        time.Duration // per HTTP attempt, default 60s
	MaxAttempts    int           // attempts per URL, default 3
	RetryCap       int           // failed Download calls per dataset before refusing, default 3
	MinSizeBytes   int64         // files smaller than this are rejected, default 1MB
	LargeFileBytes int64         // above this, magic-byte mismatch is tolerated, default 100MB
	BackoffUnit    time.Duration // unit for 2^attempt backoff, default 1s
	UserAgent      string
	Client         *http.Client
	Logger         zerolog.Logger
}

// DatasetStatus describes the local state of one catalog entry.
type DatasetStatus struct {
	Name           string
	Description    string
	ExpectedSizeMB int64
	Downloaded     bool
	Verified       bool
	RetryCount     int
	LocalSize      int64
	LastModified   time.Time
}

// Fetcher downloads catalog archives. Concurrent downloads of the same
// dataset coalesce onto a single in-flight attempt.
type Fetcher struct {
	cfg      Config
	registry *catalog.Registry
	client   *http.Client
	group    singleflight.Group
	log      zerolog.Logger

	mu            sync.Mutex
	retries       map[string]int
	missingLogged map[string]bool
}

// New creates a Fetcher and ensures the archive directory exists.
func New(cfg Config, registry *catalog.Registry) (*Fetcher, error) {
	if cfg.Dir == "" {
		return nil, errors.New("fetch: no archive directory")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryCap == 0 {
		cfg.RetryCap = 3
	}
	if cfg.MinSizeBytes == 0 {
		cfg.MinSizeBytes = 1 << 20
	}
	if cfg.LargeFileBytes == 0 {
		cfg.LargeFileBytes = 100 << 20
	}
	if cfg.BackoffUnit == 0 {
		cfg.BackoffUnit = time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "movebook-dataset-fetcher/1.0"
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, err
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{
		cfg:           cfg,
		registry:      registry,
		client:        client,
		log:           cfg.Logger,
		retries:       make(map[string]int),
		missingLogged: make(map[string]bool),
	}, nil
}

// Path returns the final on-disk path for a dataset.
func (f *Fetcher) Path(id string) (string, error) {
	src, err := f.registry.Lookup(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.cfg.Dir, src.Filename()), nil
}

// Available reports whether a dataset's archive is present and verified.
// It satisfies the registry's availability probe.
func (f *Fetcher) Available(id string) bool {
	return f.Verify(id) == nil
}

// Verify runs the integrity checks against a dataset's local file.
func (f *Fetcher) Verify(id string) error {
	src, err := f.registry.Lookup(id)
	if err != nil {
		return err
	}
	path := filepath.Join(f.cfg.Dir, src.Filename())
	return f.verifyFile(path, src.ExpectedSizeMB)
}

func (f *Fetcher) verifyFile(path string, expectedMB int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	size := info.Size()
	if size < f.cfg.MinSizeBytes {
		return fmt.Errorf("%w: %s is suspiciously small (%d bytes)", ErrIntegrity, filepath.Base(path), size)
	}
	if expectedMB > 0 {
		expected := expectedMB << 20
		if size < expected*9/10 || size > expected*11/10 {
			return fmt.Errorf("%w: %s size %d outside 10%% of expected %d",
				ErrIntegrity, filepath.Base(path), size, expected)
		}
	}
	ext := filepath.Ext(path)
	magic, known := magicTable[ext]
	if !known {
		return nil
	}
	header := make([]byte, 8)
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	n, _ := io.ReadFull(file, header)
	file.Close()
	if n >= len(magic) && bytes.HasPrefix(header[:n], magic) {
		return nil
	}
	// Large files get the benefit of the doubt: a header mismatch on a
	// multi-hundred-MB archive is more likely an unusual frame than
	// corruption. Accepted risk, do not tighten without sign-off.
	if size > f.cfg.LargeFileBytes {
		f.log.Debug().Str("file", filepath.Base(path)).Int64("size", size).
			Msg("magic bytes mismatch on large file, assuming valid")
		return nil
	}
	return fmt.Errorf("%w: %s has no %s magic bytes", ErrIntegrity, filepath.Base(path), ext)
}

// RetryCount returns how many failed Download calls the dataset has had.
func (f *Fetcher) RetryCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retries[id]
}

// ResetRetries clears a dataset's retry budget (explicit operator override).
func (f *Fetcher) ResetRetries(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.retries, id)
}

func (f *Fetcher) bumpRetries(id string) {
	f.mu.Lock()
	f.retries[id]++
	f.mu.Unlock()
}

// Download fetches a dataset archive. It returns true when a verified file
// is in place, false otherwise; network and integrity failures are logged,
// never raised. Concurrent calls for the same dataset share one attempt.
func (f *Fetcher) Download(ctx context.Context, id string) bool {
	src, err := f.registry.Lookup(id)
	if err != nil {
		f.log.Error().Str("dataset", id).Msg("unknown dataset")
		return false
	}
	path := filepath.Join(f.cfg.Dir, src.Filename())
	if f.verifyFile(path, src.ExpectedSizeMB) == nil {
		f.log.Info().Str("dataset", id).Msg("dataset already downloaded and verified")
		return true
	}
	f.mu.Lock()
	exceeded := f.retries[id] >= f.cfg.RetryCap
	f.mu.Unlock()
	if exceeded {
		f.log.Error().Err(ErrRetryLimit).Str("dataset", id).Int("cap", f.cfg.RetryCap).
			Msg("dataset refused until retries are reset")
		return false
	}

	v, _, _ := f.group.Do(id, func() (any, error) {
		return f.download(ctx, src, path), nil
	})
	ok, _ := v.(bool)
	return ok
}

func (f *Fetcher) download(ctx context.Context, src catalog.Source, path string) bool {
	urls := append([]string{src.URL}, src.FallbackURLs...)
	for i, url := range urls {
		f.log.Info().Str("dataset", src.ID).Int("url", i+1).Int("of", len(urls)).Str("target", url).
			Msg("trying download URL")
		if f.downloadURL(ctx, url, path, src.ExpectedSizeMB) {
			f.log.Info().Str("dataset", src.ID).Msg("dataset downloaded and verified")
			return true
		}
		if ctx.Err() != nil {
			f.log.Warn().Str("dataset", src.ID).Msg("download cancelled")
			return false
		}
	}
	f.bumpRetries(src.ID)
	f.log.Error().Str("dataset", src.ID).Msg("all download URLs failed")
	return false
}

// downloadURL tries one URL with retry/backoff: stream to a temporary file,
// verify, then atomically replace the final file.
func (f *Fetcher) downloadURL(ctx context.Context, url, path string, expectedMB int64) bool {
	tmp := path + ".tmp"
	for attempt := 0; attempt < f.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := f.cfg.BackoffUnit << attempt
			f.log.Info().Dur("backoff", backoff).Int("attempt", attempt+1).Msg("retrying after backoff")
			select {
			case <-ctx.Done():
				return false
			case <-time.After(backoff):
			}
		}
		err := f.stream(ctx, url, tmp)
		if err != nil {
			os.Remove(tmp)
			if ctx.Err() != nil {
				return false
			}
			f.log.Warn().Err(err).Str("url", url).Int("attempt", attempt+1).Msg("download attempt failed")
			continue
		}
		if err := f.verifyFile(tmp, expectedMB); err != nil {
			f.log.Warn().Err(err).Str("url", url).Msg("downloaded file failed integrity check")
			os.Remove(tmp)
			// Integrity failure on a complete stream is unlikely to heal on
			// the same mirror; move on to the next URL.
			return false
		}
		if err := os.Rename(tmp, path); err != nil {
			f.log.Error().Err(err).Str("path", path).Msg("promote downloaded file failed")
			os.Remove(tmp)
			return false
		}
		return true
	}
	return false
}

// stream performs a single HTTP attempt, writing the body to tmp.
func (f *Fetcher) stream(ctx context.Context, url, tmp string) error {
	attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	start := time.Now()
	lastLog := start
	var received int64
	buf := make([]byte, 64<<10)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				return werr
			}
			received += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			out.Close()
			return rerr
		}
		if time.Since(lastLog) > 10*time.Second {
			elapsed := time.Since(start).Seconds()
			f.log.Info().
				Int64("received", received).
				Int64("total", resp.ContentLength).
				Float64("mb_per_sec", float64(received)/(1<<20)/elapsed).
				Msg("download progress")
			lastLog = time.Now()
		}
	}
	if err := out.Close(); err != nil {
		return err
	}
	if resp.ContentLength > 0 && received != resp.ContentLength {
		return fmt.Errorf("short body: %d of %d bytes", received, resp.ContentLength)
	}
	f.log.Info().Int64("bytes", received).Dur("elapsed", time.Since(start)).Msg("stream complete")
	return nil
}

// Status reports the local state of a dataset.
func (f *Fetcher) Status(id string) (DatasetStatus, error) {
	src, err := f.registry.Lookup(id)
	if err != nil {
		return DatasetStatus{}, err
	}
	status := DatasetStatus{
		Name:           src.ID,
		Description:    src.Description,
		ExpectedSizeMB: src.ExpectedSizeMB,
		RetryCount:     f.RetryCount(id),
	}
	path := filepath.Join(f.cfg.Dir, src.Filename())
	if info, err := os.Stat(path); err == nil {
		status.Downloaded = true
		status.LocalSize = info.Size()
		status.LastModified = info.ModTime()
		status.Verified = f.verifyFile(path, src.ExpectedSizeMB) == nil
	}
	return status, nil
}

// LogMissing records that an archive was found missing, logging only the
// first occurrence per process. Best-effort diagnostics.
func (f *Fetcher) LogMissing(id string) {
	f.mu.Lock()
	logged := f.missingLogged[id]
	f.missingLogged[id] = true
	f.mu.Unlock()
	if !logged {
		f.log.Warn().Str("dataset", id).Msg("archive file not found (will not log again this session)")
	}
}

// CleanupCorrupted removes local archives that fail verification. Files
// that are merely absent are left alone.
func (f *Fetcher) CleanupCorrupted() {
	for _, id := range f.registry.IDs() {
		src, err := f.registry.Lookup(id)
		if err != nil {
			continue
		}
		path := filepath.Join(f.cfg.Dir, src.Filename())
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := f.verifyFile(path, src.ExpectedSizeMB); err != nil {
			f.log.Warn().Str("dataset", id).Err(err).Msg("removing corrupted dataset")
			os.Remove(path)
		}
	}
}
