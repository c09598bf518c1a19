// Package storage checkpoints corpus rounds to rotating JSONL files
// (hot → warm → cold) and reads them back.
package storage

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"meta-analyzer/internal/battle"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// A segment is closed before the next round once it holds this many
// matches or has been open this long. Rounds never span two segments.
const (
	MaxMatchesPerFile = 1000
	MaxFileAge        = time.Hour
)

// FileRotator checkpoints the rounds of one run. Segments are written in
// hot/, moved to warm/ when closed, and gzipped to cold/ on request.
type FileRotator struct {
	mu     sync.Mutex
	runID  string
	logger *zap.Logger

	hotDir, warmDir, coldDir string

	seg      *segment
	segments int
}

// segment is the open hot file
type segment struct {
	path    string
	file    *os.File
	buf     *bufio.Writer
	enc     *json.Encoder
	matches int
	opened  time.Time
}

func NewFileRotator(baseDir, runID string, logger *zap.Logger) (*FileRotator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &FileRotator{
		runID:   runID,
		logger:  logger.Named("rotator").With(zap.String("run", runID)),
		hotDir:  filepath.Join(baseDir, "hot"),
		warmDir: filepath.Join(baseDir, "warm"),
		coldDir: filepath.Join(baseDir, "cold"),
	}
	for _, dir := range []string{r.hotDir, r.warmDir, r.coldDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return r, nil
}

// SetColdDir moves cold storage elsewhere (e.g. a larger disk)
func (r *FileRotator) SetColdDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create cold directory: %w", err)
	}
	r.mu.Lock()
	r.coldDir = path
	r.mu.Unlock()
	return nil
}

// AppendRound writes one committed round and flushes it to disk.
func (r *FileRotator) AppendRound(round int, matches []battle.Match) error {
	if len(matches) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.seg != nil && r.seg.full() {
		if err := r.retire(); err != nil {
			return err
		}
	}
	if r.seg == nil {
		if err := r.open(); err != nil {
			return err
		}
	}

	for _, m := range matches {
		if err := r.seg.enc.Encode(Record{RunID: r.runID, Round: round, Match: m}); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	r.seg.matches += len(matches)
	if err := r.seg.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush round %d: %w", round, err)
	}
	r.logger.Debug("checkpointed round", zap.Int("round", round), zap.Int("matches", len(matches)))
	return nil
}

func (s *segment) full() bool {
	return s.matches >= MaxMatchesPerFile || time.Since(s.opened) >= MaxFileAge
}

func (r *FileRotator) open() error {
	r.segments++
	name := fmt.Sprintf("corpus_%s_%s_%04d.jsonl", time.Now().Format("2006-01-02_15-04-05"), r.runID, r.segments)
	path := filepath.Join(r.hotDir, name)

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create segment: %w", err)
	}
	buf := bufio.NewWriterSize(file, 64*1024)
	r.seg = &segment{path: path, file: file, buf: buf, enc: json.NewEncoder(buf), opened: time.Now()}
	return nil
}

// retire closes the open segment and moves it to warm/
func (r *FileRotator) retire() error {
	seg := r.seg
	r.seg = nil

	if err := seg.buf.Flush(); err != nil {
		seg.file.Close()
		return fmt.Errorf("failed to flush segment: %w", err)
	}
	if err := seg.file.Close(); err != nil {
		return fmt.Errorf("failed to close segment: %w", err)
	}
	name := filepath.Base(seg.path)
	if err := os.Rename(seg.path, filepath.Join(r.warmDir, name)); err != nil {
		return fmt.Errorf("failed to move %s to warm: %w", name, err)
	}
	r.logger.Info("segment closed", zap.String("file", name), zap.Int("matches", seg.matches))
	return nil
}

// Close retires the open segment, if any. It is safe to call twice.
func (r *FileRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seg == nil {
		return nil
	}
	return r.retire()
}

// Stats reports the open segment's match count and file name
func (r *FileRotator) Stats() (matches int, file string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seg == nil {
		return 0, ""
	}
	return r.seg.matches, filepath.Base(r.seg.path)
}

// CompressWarm gzips every warm segment of this run into cold storage and
// returns how many were moved.
func (r *FileRotator) CompressWarm() (int, error) {
	r.mu.Lock()
	warmDir, coldDir := r.warmDir, r.coldDir
	r.mu.Unlock()

	paths, err := filepath.Glob(filepath.Join(warmDir, "*_"+r.runID+"_*.jsonl"))
	if err != nil {
		return 0, err
	}
	for i, p := range paths {
		if err := CompressToCold(p, coldDir); err != nil {
			return i, fmt.Errorf("failed to compress %s: %w", filepath.Base(p), err)
		}
	}
	r.logger.Info("compressed warm segments", zap.Int("files", len(paths)), zap.String("cold", coldDir))
	return len(paths), nil
}

// CompressToCold writes warmPath to coldDir as .gz, then removes warmPath.
// A failed copy leaves the warm file in place.
func CompressToCold(warmPath, coldDir string) error {
	src, err := os.Open(warmPath)
	if err != nil {
		return err
	}
	defer src.Close()

	coldPath := filepath.Join(coldDir, filepath.Base(warmPath)+".gz")
	dst, err := os.Create(coldPath)
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(dst)
	_, err = io.Copy(gz, src)
	if cerr := gz.Close(); err == nil {
		err = cerr
	}
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(coldPath)
		return err
	}
	return os.Remove(warmPath)
}
