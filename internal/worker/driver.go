// Package worker implements the worker driver: it plans owned work via
// internal/shard, prunes stale outputs, and dispatches each stale file
// group through a bounded pool, loading with internal/history, rewarding
// with internal/reward, and writing with internal/recordio.
package worker

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tsukumogami/reward-worker/internal/config"
	"github.com/tsukumogami/reward-worker/internal/history"
	"github.com/tsukumogami/reward-worker/internal/log"
	"github.com/tsukumogami/reward-worker/internal/progress"
	"github.com/tsukumogami/reward-worker/internal/recordio"
	"github.com/tsukumogami/reward-worker/internal/reward"
	"github.com/tsukumogami/reward-worker/internal/shard"
	"github.com/tsukumogami/reward-worker/internal/stats"
)

// Driver owns one worker process's run: its resolved configuration, its
// stats sink, and the logger used to report per-unit failures.
type Driver struct {
	Config   config.Config
	Counters *stats.Counters
	Logger   log.Logger
}

// New returns a Driver ready to Plan or Run. A noop logger is used if
// logger is nil.
func New(cfg config.Config, logger log.Logger) *Driver {
	if logger == nil {
		logger = log.NewNoop()
	}
	return &Driver{Config: cfg, Counters: stats.New(), Logger: logger}
}

// Plan enumerates the stale file groups this node owns without mutating
// anything — no pruning, no writes. It backs the `plan` subcommand.
func (d *Driver) Plan() ([]shard.Unit, error) {
	owned, err := shard.OwnedDirs(d.Config.InputRoot, d.Config.NodeID, d.Config.NodeCount)
	if err != nil {
		return nil, fmt.Errorf("worker: listing owned directories: %w", err)
	}
	units, err := shard.StaleUnits(d.Config.InputRoot, d.Config.OutputRoot, owned)
	if err != nil {
		return nil, fmt.Errorf("worker: enumerating stale units: %w", err)
	}
	return units, nil
}

// Run executes the full driver lifecycle: plan, prune, dispatch every
// stale unit across a bounded pool, and report final stats. ctx is
// polled at unit-dispatch boundaries; once canceled, no new unit is
// started but units already dispatched run to completion — this is a
// cooperative SIGTERM/SIGINT contract, not abrupt cancellation.
func (d *Driver) Run(ctx context.Context, reporter *progress.Reporter) error {
	owned, err := shard.OwnedDirs(d.Config.InputRoot, d.Config.NodeID, d.Config.NodeCount)
	if err != nil {
		return fmt.Errorf("worker: listing owned directories: %w", err)
	}

	if err := shard.PruneStaleOutputs(d.Config.InputRoot, d.Config.OutputRoot, owned, d.Config.ReprocessAll); err != nil {
		return fmt.Errorf("worker: pruning stale outputs: %w", err)
	}

	units, err := shard.StaleUnits(d.Config.InputRoot, d.Config.OutputRoot, owned)
	if err != nil {
		return fmt.Errorf("worker: enumerating stale units: %w", err)
	}

	if reporter == nil {
		reporter = progress.NewReporter(nil, len(units))
	}

	group := &errgroup.Group{}
	group.SetLimit(d.Config.PoolWidth)

	for _, unit := range units {
		if ctx.Err() != nil {
			d.Logger.Info("termination requested, not dispatching further units")
			break
		}

		unit := unit
		group.Go(func() error {
			defer reporter.Advance()
			if err := d.processUnit(unit); err != nil {
				d.Counters.Inc(stats.UnitsFailed)
				d.Logger.Error("unit failed", "hashed_history_id", unit.HashedHistoryID, "prefix", unit.Prefix, "error", err)
				return nil
			}
			d.Counters.Inc(stats.UnitsProcessed)
			return nil
		})
	}

	_ = group.Wait()
	reporter.Finish()
	d.Logger.Info("run complete", "stats", d.Counters.Snapshot())
	return nil
}

// processUnit loads one file group, rewards it, and writes every input
// file's share of the rewarded decisions back to its mirrored output.
func (d *Driver) processUnit(unit shard.Unit) error {
	result, err := history.Load(
		history.FileGroup{HashedHistoryID: unit.HashedHistoryID, Files: unit.InputFiles},
		d.Config.UnrecoverableRoot,
		d.Counters,
	)
	if err != nil {
		return fmt.Errorf("loading %s: %w", unit.HashedHistoryID, err)
	}

	rewarded, err := reward.Assign(result.Records, d.Config.RewardWindow, d.Config.DefaultEventValue)
	if err != nil {
		return fmt.Errorf("rewarding %s: %w", unit.HashedHistoryID, err)
	}

	byFile := make(map[string][]recordio.RewardedDecision)
	for _, rd := range rewarded {
		byFile[rd.Record.SourceFile] = append(byFile[rd.Record.SourceFile], rd)
	}

	// Every input file gets a mirrored output, even one with zero rewarded
	// decisions (a file containing only rewards/event records, or a
	// decision whose bucket never matched). Skipping it would leave that
	// file without an output, so its staleness check would never pass and
	// the whole group would be reprocessed on every subsequent run.
	for i, inFile := range unit.InputFiles {
		outPath := unit.OutputFiles[i]
		if err := recordio.WriteGzipJSONLines(outPath, byFile[inFile]); err != nil {
			return fmt.Errorf("writing %s: %w", outPath, err)
		}
	}

	return nil
}
