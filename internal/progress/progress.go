// Package progress reports worker throughput to an interactive terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// IsTerminalFunc is the function used to check if a file descriptor is a terminal.
// It can be overridden for testing.
var IsTerminalFunc = term.IsTerminal

// Reporter prints "processed N/M file groups" lines to an output stream as
// the worker driver advances through its owned units. Updates are rate
// limited so a fast-processing node does not flood a redirected log.
type Reporter struct {
	output    io.Writer
	total     int64
	done      int64
	startTime time.Time
	lastPrint time.Time
	mu        sync.Mutex
}

// NewReporter creates a Reporter that writes to output, which tracks
// progress against a known total unit count. If total is <= 0, only a
// running count is shown (no percentage or ETA).
func NewReporter(output io.Writer, total int) *Reporter {
	if output == nil {
		output = os.Stderr
	}
	return &Reporter{
		output:    output,
		total:     int64(total),
		startTime: time.Now(),
	}
}

// Advance records that one more unit has been processed and prints a
// refreshed progress line. With a known total, lines within 100ms of the
// previous one are skipped, except the line for the final unit; with an
// unknown total every call prints.
func (r *Reporter) Advance() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done++
	r.print()
}

// Finish clears the progress line and prints a final summary.
func (r *Reporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.output, "\r%s\r", strings.Repeat(" ", 80))
	fmt.Fprintf(r.output, "processed %d file group(s)\n", r.done)
}

func (r *Reporter) print() {
	now := time.Now()
	if now.Sub(r.lastPrint) < 100*time.Millisecond && r.total > 0 && r.done != r.total {
		return
	}
	r.lastPrint = now

	var line string
	if r.total > 0 {
		percent := float64(r.done) / float64(r.total) * 100
		if percent > 100 {
			percent = 100
		}
		line = fmt.Sprintf("\rprocessed %d/%d file groups (%3.0f%%)", r.done, r.total, percent)
	} else {
		line = fmt.Sprintf("\rprocessed %d file groups", r.done)
	}

	if len(line) < 80 {
		line += strings.Repeat(" ", 80-len(line))
	}
	_, _ = fmt.Fprint(r.output, line)
}

// ShouldShowProgress returns true if progress should be displayed.
// Progress is shown when stderr is a terminal; under a job-array scheduler
// stderr is typically redirected to a log file and this is false.
func ShouldShowProgress() bool {
	return IsTerminalFunc(int(os.Stderr.Fd()))
}
