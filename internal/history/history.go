// Package history loads one identity's file group into a deduplicated,
// validated, chronologically sorted list of records, quarantining any
// file that fails at the codec level.
package history

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/tsukumogami/reward-worker/internal/recordio"
	"github.com/tsukumogami/reward-worker/internal/stats"
	"github.com/tsukumogami/reward-worker/internal/validate"
)

// FileGroup is an ordered set of input files that share one
// hashed_history_id and must be loaded together.
type FileGroup struct {
	HashedHistoryID string
	Files           []string
}

// Result is the outcome of loading and validating one FileGroup.
type Result struct {
	Records   []recordio.Record
	HistoryID string // empty if no record in the group ever validated
}

// Load reads every file in group, deduplicates by message_id, validates
// the survivors, and returns them sorted by timestamp. A file that fails
// at the gzip/codec level is copied to quarantineDir and skipped; the
// group continues with its remaining files.
func Load(group FileGroup, quarantineDir string, counters *stats.Counters) (Result, error) {
	seen := make(map[string]bool)
	type taggedLine struct {
		line recordio.RawLine
		file string
	}
	var lines []taggedLine

	for _, file := range group.Files {
		fileLines, err := recordio.ReadGzipJSONLines(file)
		if err != nil {
			counters.Inc(stats.UnrecoverableRecordParseErrors)
			if qErr := copyToQuarantine(file, quarantineDir); qErr != nil {
				return Result{}, fmt.Errorf("history: quarantining %s: %w", file, qErr)
			}
			continue
		}

		for _, line := range fileLines {
			id, ok := line["message_id"].(string)
			if ok && id != "" {
				if seen[id] {
					counters.Add(stats.DuplicateRecords, 1)
					continue
				}
				seen[id] = true
			}
			lines = append(lines, taggedLine{line: line, file: file})
		}
	}

	counters.Add(stats.UniqueRecords, int64(len(lines)))

	groupState := &validate.GroupState{HashedHistoryID: group.HashedHistoryID}
	records := make([]recordio.Record, 0, len(lines))
	for _, tl := range lines {
		rec, reason := validate.Validate(tl.line, groupState)
		if reason != validate.ReasonNone {
			counters.Inc(counterFor(reason))
			continue
		}
		rec.SourceFile = tl.file
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	return Result{Records: records, HistoryID: groupState.HistoryID}, nil
}

// counterFor maps a validation failure to the stats bucket it is
// reported under; identity mismatches get their own counter, every other
// schema or timestamp failure is an invalid record.
func counterFor(reason validate.Reason) string {
	if reason == validate.ReasonIdentityMismatch {
		return stats.IdentityHashMismatches
	}
	return stats.InvalidRecords
}

// copyToQuarantine copies file (unmodified, original remains in place so
// upstream may retry) to a flat entry under quarantineDir, named after
// the original file's base name.
func copyToQuarantine(file, quarantineDir string) error {
	if err := os.MkdirAll(quarantineDir, 0o755); err != nil {
		return err
	}

	src, err := os.Open(file)
	if err != nil {
		return err
	}
	defer src.Close()

	dest := filepath.Join(quarantineDir, filepath.Base(file))
	dst, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	return dst.Close()
}
