package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tsukumogami/reward-worker/internal/config"
)

var quarantineLsCmd = &cobra.Command{
	Use:   "quarantine-ls",
	Short: "List files quarantined under the unrecoverable root",
	Long: `quarantine-ls lists every file copied to REWARD_WORKER_UNRECOVERABLE_ROOT
because its gzip envelope could not be decompressed. Originals are never
moved, so this listing is purely diagnostic.`,
	Run: runQuarantineLs,
}

func runQuarantineLs(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitWithCode(ExitGeneral)
	}

	entries, err := os.ReadDir(cfg.UnrecoverableRoot)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("quarantine directory does not exist yet")
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitWithCode(ExitGeneral)
	}

	if len(entries) == 0 {
		fmt.Println("quarantine directory is empty")
		return
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			fmt.Println(e.Name())
			continue
		}
		fmt.Printf("%s\t%d bytes\t%s\n", e.Name(), info.Size(), info.ModTime().Format("2006-01-02T15:04:05Z07:00"))
	}
}
