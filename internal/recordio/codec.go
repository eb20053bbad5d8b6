package recordio

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// maxLineBytes bounds a single JSON-lines record. History records carry
// sizeable givens/variant payloads but are not expected to exceed a few
// megabytes; this guards against unbounded memory growth on a corrupt
// stream that never terminates a line.
const maxLineBytes = 8 * 1024 * 1024

// RawLine is one successfully decoded JSON object from a history file,
// with its timestamp still in string form (the validator parses it).
type RawLine map[string]any

// ReadGzipJSONLines decompresses and parses a gzipped newline-delimited
// JSON file.
//
// A line that fails to parse as JSON is skipped; the file is still
// considered readable up to that point. A corrupt gzip envelope — the
// stream fails to decompress at all, whether at open or partway through
// — fails the whole file: the caller should treat that as unrecoverable
// and quarantine the original file, discarding any lines already parsed.
func ReadGzipJSONLines(path string) ([]RawLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("recordio: opening %s: %w", path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("recordio: corrupt gzip envelope in %s: %w", path, err)
	}
	defer gz.Close()

	var lines []RawLine
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var obj RawLine
		if err := json.Unmarshal(raw, &obj); err != nil {
			// Per-line JSON error: skip the line, keep reading the file.
			continue
		}
		lines = append(lines, obj)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("recordio: corrupt gzip envelope in %s: %w", path, err)
	}

	return lines, nil
}

// WriteGzipJSONLines writes rewarded decisions as gzipped newline-delimited
// JSON to path, creating any missing parent directory. An existing file at
// path is overwritten in place; callers must tolerate a crash mid-write
// since outputs are regenerable from the (untouched) input.
func WriteGzipJSONLines(path string, decisions []RewardedDecision) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("recordio: creating output dir for %s: %w", path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("recordio: creating %s: %w", path, err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)

	enc := json.NewEncoder(gz)
	for _, d := range decisions {
		if err := enc.Encode(d); err != nil {
			return fmt.Errorf("recordio: encoding record into %s: %w", path, err)
		}
	}

	if err := gz.Close(); err != nil {
		return fmt.Errorf("recordio: flushing gzip stream for %s: %w", path, err)
	}
	return nil
}
