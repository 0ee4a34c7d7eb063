// Package repository provides file-backed access to the append-only history
// log and its persisted byte-offset index.
package repository

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/macrolens/evhist/internal/domain/keycodec"
	"github.com/macrolens/evhist/internal/domain/model"
	"github.com/macrolens/evhist/pkg/logger"
	"github.com/macrolens/evhist/pkg/metrics"
)

// readBufferSize is the buffer used when streaming the NDJSON log.
const readBufferSize = 1 << 20

// Snapshot is one generation of the offset index.
//
// Raw holds the ids exactly as they appear in the log; it is what gets
// persisted. Lookup additionally contains the lowercase and normalized
// variants of every raw id, all pointing at the same byte offset, and is
// what lookups probe.
type Snapshot struct {
	Raw    map[string]int64
	Lookup map[string]int64
}

// Store provides access to the history log and its offset index.
type Store interface {
	// Load reads the persisted index file. A missing or corrupt file
	// returns ErrNoIndex; the caller is expected to Rebuild.
	Load(ctx context.Context) (*Snapshot, error)

	// Rebuild scans the whole log and derives a fresh index from it.
	Rebuild(ctx context.Context) (*Snapshot, error)

	// Persist writes the snapshot's raw index back to disk.
	Persist(ctx context.Context, snap *Snapshot) error

	// ReadRecordAt reads and parses the log line starting at offset, then
	// verifies its id against the candidate keys. A record whose id
	// matches none of them returns ErrNoRecord.
	ReadRecordAt(ctx context.Context, offset int64, candidates []string) (model.LogRecord, error)
}

// FileStore implements Store over the NDJSON log and JSON index files.
type FileStore struct {
	logPath   string
	indexPath string
	log       logger.Logger
	now       func() time.Time
}

// NewFileStore creates a file-backed store for the given log and index paths.
func NewFileStore(logPath, indexPath string, opts ...Option) *FileStore {
	s := &FileStore{
		logPath:   logPath,
		indexPath: indexPath,
		log:       logger.Named("repository"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads and validates the persisted index file.
func (s *FileStore) Load(ctx context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(s.indexPath)
	if err != nil {
		metrics.RecordIndexLoadError()
		return nil, fmt.Errorf("read index file: %w: %w", ErrNoIndex, err)
	}

	var idx model.IndexFile
	if err := json.Unmarshal(data, &idx); err != nil {
		metrics.RecordIndexLoadError()
		return nil, fmt.Errorf("parse index file: %w: %w", ErrNoIndex, err)
	}
	if idx.Index == nil {
		metrics.RecordIndexLoadError()
		return nil, fmt.Errorf("index file has no index map: %w", ErrNoIndex)
	}
	for id, offset := range idx.Index {
		if offset < 0 {
			metrics.RecordIndexLoadError()
			return nil, fmt.Errorf("negative offset for %q: %w", id, ErrNoIndex)
		}
	}
	if idx.Version != model.IndexVersion {
		s.log.Warn(ctx, "index file version differs from writer version",
			logger.Int("file_version", idx.Version),
			logger.Int("writer_version", model.IndexVersion))
	}

	snap := &Snapshot{Raw: idx.Index, Lookup: expandVariants(idx.Index)}
	metrics.UpdateIndexEntries(len(snap.Lookup))
	return snap, nil
}

// Rebuild scans the NDJSON log line by line, tracking the byte offset of
// each record. Malformed lines are skipped; their bytes still advance the
// cursor so later offsets stay correct.
func (s *FileStore) Rebuild(ctx context.Context) (*Snapshot, error) {
	start := s.now()

	f, err := os.Open(s.logPath)
	if err != nil {
		return nil, fmt.Errorf("open history log: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReaderSize(f, readBufferSize)
	raw := make(map[string]int64)
	var offset int64
	var skipped int

	for {
		line, readErr := r.ReadBytes('\n')
		if len(line) > 0 {
			trimmed := bytes.TrimSpace(line)
			if len(trimmed) > 0 {
				var rec model.LogRecord
				if err := json.Unmarshal(trimmed, &rec); err != nil || rec.EventID == "" {
					skipped++
					metrics.RecordRecordParseError()
					s.log.Warn(ctx, "skipping malformed log line",
						logger.Int64("offset", offset))
				} else {
					// Later records for the same id supersede earlier ones.
					raw[rec.EventID] = offset
				}
			}
			offset += int64(len(line))
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read history log: %w", readErr)
		}
	}

	snap := &Snapshot{Raw: raw, Lookup: expandVariants(raw)}

	elapsed := s.now().Sub(start)
	metrics.RecordIndexRebuild()
	metrics.RecordIndexRebuildDuration(float64(elapsed.Milliseconds()))
	metrics.UpdateIndexEntries(len(snap.Lookup))
	metrics.UpdateLastRebuildUnix(s.now().Unix())
	s.log.Info(ctx, "rebuilt offset index",
		logger.Int("records", len(raw)),
		logger.Int("lookup_keys", len(snap.Lookup)),
		logger.Int("skipped_lines", skipped),
		logger.Duration("elapsed", elapsed))

	return snap, nil
}

// Persist writes the raw index as pretty-printed JSON next to the log.
// The write goes through a temp file so a crash never leaves a torn index.
func (s *FileStore) Persist(ctx context.Context, snap *Snapshot) error {
	out := model.IndexFile{
		GeneratedAt: s.now().Format(model.GeneratedAtLayout),
		Version:     model.IndexVersion,
		Index:       snap.Raw,
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	dir := filepath.Dir(s.indexPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".index-*.json")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp index: %w", err)
	}
	if err := os.Rename(tmpName, s.indexPath); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace index file: %w", err)
	}

	s.log.Debug(ctx, "persisted offset index",
		logger.String("path", s.indexPath),
		logger.Int("entries", len(snap.Raw)))
	return nil
}

// ReadRecordAt seeks to the given byte offset, reads one line and verifies
// that the record there still belongs to one of the candidate ids. Offsets
// go stale when the log is rewritten underneath a persisted index.
func (s *FileStore) ReadRecordAt(ctx context.Context, offset int64, candidates []string) (model.LogRecord, error) {
	f, err := os.Open(s.logPath)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("open history log: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return model.LogRecord{}, fmt.Errorf("seek history log: %w", err)
	}

	line, err := bufio.NewReaderSize(f, readBufferSize).ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return model.LogRecord{}, fmt.Errorf("read history log: %w", err)
	}

	var rec model.LogRecord
	if err := json.Unmarshal(bytes.TrimSpace(line), &rec); err != nil || rec.EventID == "" {
		metrics.RecordStaleOffset()
		return model.LogRecord{}, fmt.Errorf("offset %d does not hold a record: %w", offset, ErrNoRecord)
	}
	if !matchesCandidate(rec.EventID, candidates) {
		metrics.RecordStaleOffset()
		s.log.Warn(ctx, "stale index offset",
			logger.Int64("offset", offset),
			logger.String("found_id", rec.EventID))
		return model.LogRecord{}, fmt.Errorf("record %q matches no candidate: %w", rec.EventID, ErrNoRecord)
	}
	return rec, nil
}

// expandVariants builds the lookup map: every raw id keeps its own offset,
// then lowercase and normalized variants are layered on top. Variant
// collisions resolve deterministically, first writer wins in sorted raw-id
// order.
func expandVariants(raw map[string]int64) map[string]int64 {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]int64, len(raw)*2)
	for _, k := range keys {
		out[k] = raw[k]
	}
	for _, k := range keys {
		for _, v := range keycodec.Variants(k) {
			if _, ok := out[v]; !ok {
				out[v] = raw[k]
			}
		}
	}
	return out
}

// matchesCandidate reports whether a record id equals one of the candidates
// exactly, case-insensitively, or after normalization.
func matchesCandidate(id string, candidates []string) bool {
	norm := keycodec.Normalize(id)
	for _, c := range candidates {
		if id == c || strings.EqualFold(id, c) || norm == keycodec.Normalize(c) {
			return true
		}
	}
	return false
}

// SourceSignature fingerprints the on-disk sources as path, mtime and size
// triples. Lookups compare signatures to decide whether caches are stale.
func SourceSignature(paths ...string) string {
	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			parts = append(parts, p+"|absent")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s|%d|%d", p, info.ModTime().UnixNano(), info.Size()))
	}
	return strings.Join(parts, ";")
}
