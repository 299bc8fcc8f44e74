package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"kiln/internal/observ"
	"kiln/internal/snapshot"
	"kiln/internal/stubs"
)

var generateCmd = &cobra.Command{
	Use:   "generate [flags]",
	Short: "Generate the runtime stub table",
	Long:  "Generate every runtime stub into a fresh code cache, optionally verify the table and snapshot it.",
	Args:  cobra.NoArgs,
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().Bool("verify", false, "re-resolve every stub by name and address after generation")
	generateCmd.Flags().String("snapshot", "", "write a snapshot of the stub table (overrides config)")
	generateCmd.Flags().Int("prewarm", 0, "goroutines for signature prewarm (0 = GOMAXPROCS)")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cleanupTrace, err := setupTracing(cmd, cfg)
	if err != nil {
		return err
	}
	defer cleanupTrace()
	cleanupProf, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer cleanupProf()

	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}
	timings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}
	verify, err := cmd.Flags().GetBool("verify")
	if err != nil {
		return err
	}
	snapPath, err := cmd.Flags().GetString("snapshot")
	if err != nil {
		return err
	}
	prewarm, err := cmd.Flags().GetInt("prewarm")
	if err != nil {
		return err
	}

	timer := observ.NewTimer()

	rt, err := newRuntime(cmd, cfg, prewarm)
	if err != nil {
		return err
	}

	end := timer.Begin("generate")
	if err := rt.Generate(); err != nil {
		var ie *stubs.InitError
		if errors.As(err, &ie) {
			dumpTraceRing(cmd)
			return fmt.Errorf("startup aborted, stub table unusable: %w", err)
		}
		return err
	}
	entries := rt.Stubs.Entries()
	end(fmt.Sprintf("%d stubs", len(entries)))

	if verify {
		endVerify := timer.Begin("verify")
		var g errgroup.Group
		for _, e := range entries {
			e := e
			g.Go(func() error {
				if got := stubs.Resolve(e.Name); got != e.ID {
					return fmt.Errorf("verify: %q resolves to id %d, generated as %d", e.Name, got, e.ID)
				}
				found, ok := rt.Stubs.FindByAddress(e.Entry)
				if !ok || found.ID != e.ID {
					return fmt.Errorf("verify: entry %#x does not map back to %q", uint64(e.Entry), e.Name)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		endVerify(fmt.Sprintf("%d stubs", len(entries)))
	}

	if snapPath == "" {
		snapPath = cfg.Counters.SnapshotPath
	}
	if snapPath != "" {
		endSnap := timer.Begin("snapshot")
		p := snapshot.Capture(rt.Stubs, rt.Counters)
		if err := snapshot.Write(snapPath, p); err != nil {
			return err
		}
		endSnap(p.ID)
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "snapshot %s -> %s\n", p.ID, snapPath)
		}
	}

	if !quiet {
		ok := color.New(color.FgGreen).Sprint("ok")
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d stubs, %d instructions in cache\n",
			ok, len(entries), rt.Cache.UsedInstrs())
	}
	if timings {
		fmt.Fprint(cmd.OutOrStdout(), timer.Summary())
	}
	return nil
}
