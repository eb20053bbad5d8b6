package functional

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cucumber/godog"
	"github.com/klauspost/compress/gzip"
)

func registerSteps(ctx *godog.ScenarioContext) {
	ctx.Step(`^a reward-worker environment with a reward window of (\d+) seconds and default event value (\S+)$`, aRewardWorkerEnvironment)
	ctx.Step(`^a history file for identity "([^"]*)" sequence (\d+) containing:$`, aHistoryFile)
	ctx.Step(`^a corrupt input file for identity "([^"]*)" sequence (\d+)$`, aCorruptInputFile)
	ctx.Step(`^I run "([^"]*)"$`, iRun)
	ctx.Step(`^I run "([^"]*)" again$`, iRun)
	ctx.Step(`^the exit code is (\d+)$`, theExitCodeIs)
	ctx.Step(`^the output for identity "([^"]*)" sequence (\d+) contains a record with message_id "([^"]*)" and reward (\S+)$`, theOutputContainsRecord)
	ctx.Step(`^the corrupt file for identity "([^"]*)" sequence (\d+) is quarantined$`, theCorruptFileIsQuarantined)
	ctx.Step(`^I note the output modification time for identity "([^"]*)" sequence (\d+)$`, iNoteTheOutputModTime)
	ctx.Step(`^the output modification time for identity "([^"]*)" sequence (\d+) is unchanged$`, theOutputModTimeIsUnchanged)
}

func hashedID(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])
}

func inputPath(state *testState, identity string, seq int) string {
	h := hashedID(identity)
	return filepath.Join(state.inputRoot, h[:2], fmt.Sprintf("%s-%d.jsonl.gz", h, seq))
}

func outputPath(state *testState, identity string, seq int) string {
	h := hashedID(identity)
	return filepath.Join(state.outputRoot, h[:2], fmt.Sprintf("%s-%d.jsonl.gz", h, seq))
}

func aRewardWorkerEnvironment(ctx context.Context, windowSeconds string, defaultEventValue string) error {
	state := getState(ctx)
	state.rewardWindowSeconds = windowSeconds
	state.defaultEventValue = defaultEventValue
	return nil
}

func aHistoryFile(ctx context.Context, identity string, seq int, body *godog.DocString) error {
	state := getState(ctx)
	path := inputPath(state, identity, seq)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	for _, line := range strings.Split(strings.TrimSpace(body.Content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var probe map[string]any
		if err := json.Unmarshal([]byte(line), &probe); err != nil {
			return fmt.Errorf("invalid JSON line in feature file: %w", err)
		}
		if _, err := gz.Write([]byte(line + "\n")); err != nil {
			return err
		}
	}
	return gz.Close()
}

func aCorruptInputFile(ctx context.Context, identity string, seq int) error {
	state := getState(ctx)
	path := inputPath(state, identity, seq)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("this is not a gzip stream"), 0o644)
}

func iRun(ctx context.Context, command string) (context.Context, error) {
	state := getState(ctx)

	args := strings.Fields(command)
	if len(args) == 0 || args[0] != "reward-worker" {
		return ctx, fmt.Errorf("unsupported command %q", command)
	}
	args[0] = state.binPath

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = append(os.Environ(),
		"REWARD_WINDOW="+state.rewardWindowSeconds,
		"DEFAULT_EVENT_VALUE="+state.defaultEventValue,
		"NODE_ID=0",
		"NODE_COUNT=1",
		"REPROCESS_ALL=false",
		"REWARD_WORKER_INPUT_ROOT="+state.inputRoot,
		"REWARD_WORKER_OUTPUT_ROOT="+state.outputRoot,
		"REWARD_WORKER_UNRECOVERABLE_ROOT="+state.unrecRoot,
	)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	state.stdout = stdout.String()
	state.stderr = stderr.String()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			state.exitCode = exitErr.ExitCode()
		} else {
			return ctx, fmt.Errorf("running reward-worker: %w", err)
		}
	} else {
		state.exitCode = 0
	}
	return ctx, nil
}

func theExitCodeIs(ctx context.Context, expected int) error {
	state := getState(ctx)
	if state.exitCode != expected {
		return fmt.Errorf("expected exit code %d, got %d\nstdout: %s\nstderr: %s", expected, state.exitCode, state.stdout, state.stderr)
	}
	return nil
}

func readRewardedDecisions(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	var out []map[string]any
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		var obj map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &obj); err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, scanner.Err()
}

func theOutputContainsRecord(ctx context.Context, identity string, seq int, messageID string, reward string) error {
	state := getState(ctx)
	path := outputPath(state, identity, seq)

	records, err := readRewardedDecisions(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	for _, r := range records {
		if r["message_id"] != messageID {
			continue
		}
		got := fmt.Sprintf("%v", r["reward"])
		if !strings.HasPrefix(got, reward) {
			return fmt.Errorf("record %s has reward %v, want %s", messageID, r["reward"], reward)
		}
		return nil
	}
	return fmt.Errorf("no record with message_id %q found in %s", messageID, path)
}

func theCorruptFileIsQuarantined(ctx context.Context, identity string, seq int) error {
	state := getState(ctx)
	original := inputPath(state, identity, seq)
	quarantined := filepath.Join(state.unrecRoot, filepath.Base(original))

	if _, err := os.Stat(quarantined); err != nil {
		return fmt.Errorf("expected quarantined copy at %s: %w", quarantined, err)
	}
	if _, err := os.Stat(original); err != nil {
		return fmt.Errorf("original input file should remain in place: %w", err)
	}
	return nil
}

func iNoteTheOutputModTime(ctx context.Context, identity string, seq int) error {
	state := getState(ctx)
	path := outputPath(state, identity, seq)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	state.notedModTime[path] = info.ModTime()
	return nil
}

func theOutputModTimeIsUnchanged(ctx context.Context, identity string, seq int) error {
	state := getState(ctx)
	path := outputPath(state, identity, seq)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	noted, ok := state.notedModTime[path]
	if !ok {
		return fmt.Errorf("no noted modification time for %s", path)
	}
	if !info.ModTime().Equal(noted) {
		return fmt.Errorf("expected %s to be untouched on the second run, mtime changed from %s to %s", path, noted, info.ModTime())
	}
	return nil
}
