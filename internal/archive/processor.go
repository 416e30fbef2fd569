// Package archive streams compressed game archives, splits them into
// individual game records, and replays each game to emit per-move outcome
// tallies.
package archive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/notnil/chess"
	"github.com/rs/zerolog"
	"github.com/ulikunitz/xz"

	"movebook/internal/fen"
	"movebook/internal/stats"
)

// ErrUnsupportedFormat is returned for archive extensions with no known
// decompressor.
var ErrUnsupportedFormat = errors.New("unsupported archive format")

// Sink receives one outcome tally per (position, move) pair encountered
// during replay. Each call is its own atomic unit; the processor can be
// interrupted between records without corrupting the store.
type Sink interface {
	Record(pos, move string, result stats.Result, sourceTag, sourceFile string) error
}

// PathResolver maps a dataset identifier to its local archive path.
type PathResolver interface {
	Path(id string) (string, error)
	LogMissing(id string)
}

// Config configures a Processor.
type Config struct {
	Resolver PathResolver
	Logger   zerolog.Logger
}

// Processor replays archives into a Sink.
type Processor struct {
	cfg  Config
	sink Sink
	log  zerolog.Logger
}

// New creates a Processor emitting into sink.
func New(cfg Config, sink Sink) *Processor {
	return &Processor{cfg: cfg, sink: sink, log: cfg.Logger}
}

// openReader wraps a file in the decompressor implied by its extension.
func openReader(path string) (io.Reader, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	closeFile := f.Close
	switch filepath.Ext(path) {
	case ".zst":
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return zr, func() error { zr.Close(); return closeFile() }, nil
	case ".gz":
		gr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return gr, func() error { gr.Close(); return closeFile() }, nil
	case ".bz2":
		br, err := bzip2.NewReader(f, nil)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return br, func() error { br.Close(); return closeFile() }, nil
	case ".xz":
		xr, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return xr, closeFile, nil
	case ".pgn", ".txt":
		return f, closeFile, nil
	default:
		f.Close()
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Process streams one archive and returns the number of games that produced
// at least one tally. Corrupt records are skipped; an archive that cannot be
// opened at all yields 0 with the cause logged (and returned for unknown
// formats so callers can distinguish them).
func (p *Processor) Process(ctx context.Context, id string) (int, error) {
	path, err := p.cfg.Resolver.Path(id)
	if err != nil {
		p.log.Error().Err(err).Str("dataset", id).Msg("resolve archive path")
		return 0, err
	}
	if _, err := os.Stat(path); err != nil {
		p.cfg.Resolver.LogMissing(id)
		return 0, nil
	}
	r, closeAll, err := openReader(path)
	if err != nil {
		p.log.Error().Err(err).Str("dataset", id).Msg("open archive")
		if errors.Is(err, ErrUnsupportedFormat) {
			return 0, err
		}
		return 0, nil
	}
	defer closeAll()

	return p.processStream(ctx, r, id, filepath.Base(path))
}

// processStream splits the decompressed stream into game records at
// "[Event" markers and replays each one.
func (p *Processor) processStream(ctx context.Context, r io.Reader, sourceTag, sourceFile string) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), 4<<20)

	var (
		current   []string
		seen      int
		processed int
		start     = time.Now()
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		seen++
		if p.processGame(current, sourceTag, sourceFile) {
			processed++
		}
		current = current[:0]
		if seen%10000 == 0 {
			p.log.Info().Int("games", seen).Int("processed", processed).
				Dur("elapsed", time.Since(start)).Str("file", sourceFile).Msg("archive progress")
		}
	}

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			p.log.Warn().Str("file", sourceFile).Int("processed", processed).Msg("archive processing interrupted")
			return processed, ctx.Err()
		default:
		}
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "[Event ") {
			flush()
			current = append(current, line)
		} else if line != "" && len(current) > 0 {
			current = append(current, line)
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		// A truncated tail loses at most the current record; everything
		// already emitted stands.
		p.log.Warn().Err(err).Str("file", sourceFile).Msg("archive stream ended with error")
	}
	p.log.Info().Int("games", seen).Int("processed", processed).Str("file", sourceFile).Msg("archive complete")
	return processed, nil
}

// processGame replays one record and reports whether it produced tallies.
// A move that fails to parse aborts replay from that point, keeping the
// plies already emitted.
func (p *Processor) processGame(lines []string, sourceTag, sourceFile string) bool {
	tags, movetext := splitRecord(lines)
	result, ok := stats.ParseResult(tags["Result"])
	if !ok {
		// Ongoing or unterminated game; nothing to tally.
		return false
	}

	pos := chess.StartingPosition()
	if tags["SetUp"] == "1" && tags["FEN"] != "" {
		custom, err := fen.Position(tags["FEN"])
		if err != nil {
			p.log.Debug().Err(err).Msg("bad FEN header, skipping game")
			return false
		}
		pos = custom
	}

	notation := chess.AlgebraicNotation{}
	uci := chess.UCINotation{}
	plies := 0
	for _, san := range tokenize(movetext) {
		move, err := notation.Decode(pos, san)
		if err != nil {
			p.log.Debug().Str("san", san).Err(err).Msg("unparseable move, aborting replay of game")
			break
		}
		key := fen.FromPosition(pos)
		if err := p.sink.Record(key, uci.Encode(pos, move), result, sourceTag, sourceFile); err != nil {
			p.log.Warn().Err(err).Msg("record tally")
			break
		}
		plies++
		pos = pos.Update(move)
	}
	return plies > 0
}

// splitRecord separates header tags from movetext lines.
func splitRecord(lines []string) (map[string]string, string) {
	tags := make(map[string]string)
	var movetext []string
	for _, line := range lines {
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			if name, value, ok := parseTag(line); ok {
				tags[name] = value
				continue
			}
		}
		movetext = append(movetext, line)
	}
	return tags, strings.Join(movetext, " ")
}

// parseTag parses a `[Name "value"]` header line.
func parseTag(line string) (string, string, bool) {
	inner := strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
	idx := strings.IndexByte(inner, '"')
	if idx < 0 || !strings.HasSuffix(inner, `"`) {
		return "", "", false
	}
	name := strings.TrimSpace(inner[:idx])
	value := inner[idx+1 : len(inner)-1]
	if name == "" {
		return "", "", false
	}
	return name, value, true
}

// tokenize strips comments, variations, NAGs, move numbers, and result
// markers from movetext, returning bare SAN tokens in order.
func tokenize(movetext string) []string {
	var (
		b     strings.Builder
		brace bool
		paren int
	)
	for _, r := range movetext {
		switch {
		case brace:
			if r == '}' {
				brace = false
			}
		case r == '{':
			brace = true
		case r == '(':
			paren++
		case r == ')':
			if paren > 0 {
				paren--
			}
		case paren > 0:
		case r == ';':
			// Rest-of-line comments never survive record joining with
			// spaces, so treat the rest of the text as commentary.
			return finishTokens(b.String())
		default:
			b.WriteRune(r)
		}
	}
	return finishTokens(b.String())
}

func finishTokens(text string) []string {
	var out []string
	for _, tok := range strings.Fields(text) {
		tok = cleanToken(tok)
		if tok == "" {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// cleanToken drops move numbers, NAGs and result tokens, and strips
// annotation suffixes like "!?" from SAN.
func cleanToken(tok string) string {
	switch tok {
	case "1-0", "0-1", "1/2-1/2", "*":
		return ""
	}
	if strings.HasPrefix(tok, "$") {
		return ""
	}
	// "12." / "12..." / "12.e4"
	if i := strings.LastIndexByte(tok, '.'); i >= 0 {
		digits := strings.TrimRight(tok[:i], ".")
		if isDigits(digits) {
			tok = tok[i+1:]
		}
	}
	tok = strings.TrimRight(tok, "!?")
	if tok == "" || isDigits(tok) {
		return ""
	}
	return tok
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
