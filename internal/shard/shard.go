// Package shard implements deterministic work partitioning across worker
// nodes: which two-character input directories this node owns, which of
// their file groups are stale relative to their outputs, and pruning of
// outputs orphaned by deleted or reprocessed inputs.
package shard

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/twmb/murmur3"
)

// Hash returns the unsigned 32-bit MurmurHash3_x86_32 of prefix with
// seed 0, matching the reference implementation byte-for-byte so that
// ownership decisions agree across languages.
func Hash(prefix string) uint32 {
	return murmur3.SeedSum32(0, []byte(prefix))
}

// Owns reports whether nodeID owns the directory named prefix out of
// nodeCount total nodes.
func Owns(prefix string, nodeID, nodeCount int) bool {
	return int(Hash(prefix)%uint32(nodeCount)) == nodeID
}

// Unit is one file group: every input file sharing a hashed_history_id
// under one shard directory, paired with their mirrored output paths.
// The reward engine runs once over the union of InputFiles and the
// resulting rewarded decisions are written back split by origin file.
type Unit struct {
	Prefix          string
	HashedHistoryID string
	InputFiles      []string
	OutputFiles     []string
}

// OwnedDirs lists the immediate subdirectories of inputRoot whose name
// hashes to this node, sorted for deterministic iteration order.
func OwnedDirs(inputRoot string, nodeID, nodeCount int) ([]string, error) {
	entries, err := os.ReadDir(inputRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var owned []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if Owns(e.Name(), nodeID, nodeCount) {
			owned = append(owned, e.Name())
		}
	}
	sort.Strings(owned)
	return owned, nil
}

// PruneStaleOutputs removes output belonging to owned shard directories
// that no longer corresponds to a current input. In reprocessAll mode
// every owned output directory is removed outright; otherwise only files
// whose stem has no matching input file are removed, and an output
// directory whose input directory has disappeared entirely is removed
// too.
func PruneStaleOutputs(inputRoot, outputRoot string, owned []string, reprocessAll bool) error {
	for _, prefix := range owned {
		outDir := filepath.Join(outputRoot, prefix)

		if reprocessAll {
			if err := os.RemoveAll(outDir); err != nil && !os.IsNotExist(err) {
				return err
			}
			continue
		}

		inDir := filepath.Join(inputRoot, prefix)
		if _, err := os.Stat(inDir); os.IsNotExist(err) {
			if err := os.RemoveAll(outDir); err != nil && !os.IsNotExist(err) {
				return err
			}
			continue
		}

		inputStems, err := stemSet(inDir)
		if err != nil {
			return err
		}

		outEntries, err := os.ReadDir(outDir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		for _, e := range outEntries {
			if e.IsDir() {
				continue
			}
			if !inputStems[stem(e.Name())] {
				if err := os.Remove(filepath.Join(outDir, e.Name())); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// StaleUnits enumerates, for each owned directory, the file groups with
// at least one input file that is missing its output or newer than it.
// A group is all-or-nothing: if any of its files is stale, the whole
// group is re-processed together so the reward engine sees the full
// history for that identity.
func StaleUnits(inputRoot, outputRoot string, owned []string) ([]Unit, error) {
	var units []Unit

	for _, prefix := range owned {
		inDir := filepath.Join(inputRoot, prefix)
		outDir := filepath.Join(outputRoot, prefix)

		entries, err := os.ReadDir(inDir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		groups := make(map[string][]string)
		var order []string
		for _, e := range entries {
			if e.IsDir() || !isHistoryFile(e.Name()) {
				continue
			}
			id := historyIDOf(stem(e.Name()))
			if _, ok := groups[id]; !ok {
				order = append(order, id)
			}
			groups[id] = append(groups[id], e.Name())
		}
		sort.Strings(order)

		for _, id := range order {
			names := groups[id]
			sort.Strings(names)

			stale := false
			inputFiles := make([]string, len(names))
			outputFiles := make([]string, len(names))
			for i, name := range names {
				inPath := filepath.Join(inDir, name)
				outPath := filepath.Join(outDir, stem(name)+".jsonl.gz")
				inputFiles[i] = inPath
				outputFiles[i] = outPath

				if fileIsStale(inPath, outPath) {
					stale = true
				}
			}

			if stale {
				units = append(units, Unit{
					Prefix:          prefix,
					HashedHistoryID: id,
					InputFiles:      inputFiles,
					OutputFiles:     outputFiles,
				})
			}
		}
	}

	return units, nil
}

// fileIsStale reports whether inPath needs (re)processing: its output is
// missing, or the input's modification time strictly exceeds it.
func fileIsStale(inPath, outPath string) bool {
	inInfo, err := os.Stat(inPath)
	if err != nil {
		return false
	}
	outInfo, err := os.Stat(outPath)
	if err != nil {
		return true
	}
	return inInfo.ModTime().After(outInfo.ModTime())
}

func stemSet(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		set[stem(e.Name())] = true
	}
	return set, nil
}

// stem strips the .jsonl.gz or .jsonl suffix so input and output names
// can be compared regardless of compression.
func stem(name string) string {
	switch {
	case strings.HasSuffix(name, ".jsonl.gz"):
		return strings.TrimSuffix(name, ".jsonl.gz")
	case strings.HasSuffix(name, ".jsonl"):
		return strings.TrimSuffix(name, ".jsonl")
	default:
		return name
	}
}

func isHistoryFile(name string) bool {
	return strings.HasSuffix(name, ".jsonl") || strings.HasSuffix(name, ".jsonl.gz")
}

// historyIDOf extracts the hashed_history_id from a file stem of the
// form "<hashed_history_id>-<seq>".
func historyIDOf(stem string) string {
	idx := strings.LastIndex(stem, "-")
	if idx < 0 {
		return stem
	}
	return stem[:idx]
}
