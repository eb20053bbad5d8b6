package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tsukumogami/reward-worker/internal/config"
	"github.com/tsukumogami/reward-worker/internal/log"
	"github.com/tsukumogami/reward-worker/internal/progress"
	"github.com/tsukumogami/reward-worker/internal/worker"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process every stale file group this node owns",
	Long: `run loads the environment contract (REWARD_WINDOW, NODE_ID, NODE_COUNT,
and friends), prunes outputs orphaned by deleted or reprocessed inputs, and
joins rewards onto every stale decision stream this node owns.`,
	Run: runRun,
}

func runRun(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitWithCode(ExitGeneral)
	}

	d := worker.New(cfg, log.Default())
	// A nil reporter lets Run create one on stderr sized to its stale-unit
	// count, so a terminal sees "processed N/M file groups".
	var reporter *progress.Reporter
	if !progress.ShouldShowProgress() {
		reporter = progress.NewReporter(io.Discard, 0)
	}

	if err := d.Run(globalCtx, reporter); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitWithCode(ExitGeneral)
	}
}
