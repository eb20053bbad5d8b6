package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tsukumogami/reward-worker/internal/config"
	"github.com/tsukumogami/reward-worker/internal/log"
	"github.com/tsukumogami/reward-worker/internal/worker"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the stale file groups this node would process, without touching anything",
	Long: `plan reports which file groups are stale for this node's shard assignment,
the same enumeration run would act on, but performs no pruning and no writes.`,
	Run: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitWithCode(ExitGeneral)
	}

	d := worker.New(cfg, log.Default())
	units, err := d.Plan()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitWithCode(ExitGeneral)
	}

	if len(units) == 0 {
		fmt.Println("no stale file groups owned by this node")
		return
	}
	for _, u := range units {
		fmt.Printf("%s/%s  (%d file(s))\n", u.Prefix, u.HashedHistoryID, len(u.InputFiles))
		for _, f := range u.InputFiles {
			fmt.Printf("    %s\n", f)
		}
	}
}
