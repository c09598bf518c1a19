package storage

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
)

// ReadCorpus loads checkpoint records from the hot, warm and cold tiers
// under baseDir. An empty runID returns every run. Records come back
// ordered by file name (open time), then line.
func ReadCorpus(baseDir, runID string) ([]Record, error) {
	var files []string
	for _, pattern := range []string{
		filepath.Join(baseDir, "cold", "*.jsonl.gz"),
		filepath.Join(baseDir, "warm", "*.jsonl"),
		filepath.Join(baseDir, "hot", "*.jsonl"),
	} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}

	sort.Slice(files, func(i, j int) bool {
		return filepath.Base(files[i]) < filepath.Base(files[j])
	})

	var records []Record
	for _, path := range files {
		if runID != "" && !strings.Contains(filepath.Base(path), "_"+runID+"_") {
			continue
		}
		got, err := readFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
		}
		records = append(records, got...)
	}
	return records, nil
}

// LatestRun returns the run ID of the most recently opened checkpoint file
func LatestRun(baseDir string) (string, error) {
	records, err := ReadCorpus(baseDir, "")
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", fmt.Errorf("no checkpoints under %s", baseDir)
	}
	return records[len(records)-1].RunID, nil
}

func readFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}

	var out []Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	return out, scanner.Err()
}
