package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tsukumogami/reward-worker/internal/buildinfo"
	"github.com/tsukumogami/reward-worker/internal/log"
)

var (
	quietFlag   bool
	verboseFlag bool
	debugFlag   bool
)

// globalCtx is canceled on SIGINT/SIGTERM. The run command polls it at
// unit-dispatch boundaries rather than tearing down in-flight work.
var globalCtx context.Context
var globalCancel context.CancelFunc

var rootCmd = &cobra.Command{
	Use:   "reward-worker",
	Short: "Joins reward and event signals onto decision records within a sliding window",
	Long: `reward-worker is a distributed batch worker that assigns rewards to prior
decisions by joining reward and event signals within a bounded time window,
producing a rewarded-decision corpus for downstream bandit training.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Show errors only")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Show verbose output (INFO level)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Show debug output (includes source locations)")

	rootCmd.PersistentPreRun = initLogger
	rootCmd.Version = buildinfo.Version()

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(quarantineLsCmd)
}

func main() {
	globalCtx, globalCancel = context.WithCancel(context.Background())
	defer globalCancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "\nreceived %s, finishing in-flight units...\n", sig)
		globalCancel()

		<-sigChan
		fmt.Fprintln(os.Stderr, "forced exit")
		exitWithCode(ExitGeneral)
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		exitWithCode(ExitGeneral)
	}
	exitWithCode(ExitSuccess)
}

func initLogger(cmd *cobra.Command, args []string) {
	level := determineLogLevel()
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug})
	log.SetDefault(log.New(handler))
}

// determineLogLevel priorizes flags over the REWARD_WORKER_* verbosity
// environment variables, defaulting to WARN.
func determineLogLevel() slog.Level {
	if debugFlag {
		return slog.LevelDebug
	}
	if verboseFlag {
		return slog.LevelInfo
	}
	if quietFlag {
		return slog.LevelError
	}

	if isTruthy(os.Getenv("REWARD_WORKER_DEBUG")) {
		return slog.LevelDebug
	}
	if isTruthy(os.Getenv("REWARD_WORKER_VERBOSE")) {
		return slog.LevelInfo
	}
	if isTruthy(os.Getenv("REWARD_WORKER_QUIET")) {
		return slog.LevelError
	}
	return slog.LevelWarn
}

func isTruthy(s string) bool {
	s = strings.ToLower(s)
	return s == "1" || s == "true" || s == "yes" || s == "on"
}
