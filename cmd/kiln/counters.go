package main

import (
	"fmt"
	"os"
	"sort"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"kiln/internal/bridge"
	"kiln/internal/code"
	"kiln/internal/dispatch"
	"kiln/internal/exec"
	"kiln/internal/heap"
	"kiln/internal/meta"
	"kiln/internal/snapshot"
	"kiln/internal/stubs"
	"kiln/internal/ui"
)

var countersCmd = &cobra.Command{
	Use:   "counters [flags]",
	Short: "Exercise the runtime and dump its counters",
	Long: `Generate the stub table, drive a workload through it, and print the
counter registry: allocations, monitor round-trips, handled and uncaught
exceptions, and one return-barrier deoptimization.`,
	Args: cobra.NoArgs,
	RunE: runCounters,
}

func init() {
	countersCmd.Flags().Int("iterations", 1000, "workload iterations")
	countersCmd.Flags().Bool("watch", false, "render counters live while the workload runs")
	countersCmd.Flags().String("snapshot", "", "write a snapshot after the workload")
}

func runCounters(cmd *cobra.Command, args []string) error {
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
	iterations, err := cmd.Flags().GetInt("iterations")
	if err != nil {
		return err
	}
	watch, err := cmd.Flags().GetBool("watch")
	if err != nil {
		return err
	}
	snapPath, err := cmd.Flags().GetString("snapshot")
	if err != nil {
		return err
	}

	rt, err := generatedRuntime(cmd, cfg)
	if err != nil {
		return err
	}
	w, err := newWorkload(rt)
	if err != nil {
		return err
	}

	if watch && isTerminal(os.Stdout) {
		err = runWatched(rt, w, iterations)
	} else {
		err = w.run(iterations, nil)
	}
	if err != nil {
		return err
	}

	// Localized dump, rows sorted by name like the watch view.
	p := message.NewPrinter(language.English)
	rows := rt.Counters.Snapshot()
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	out := cmd.OutOrStdout()
	for _, row := range rows {
		if _, err := p.Fprintf(out, "%12d  %-16s %s\n", row.Value, row.Tag, row.Name); err != nil {
			return err
		}
	}

	if snapPath != "" {
		pay := snapshot.Capture(rt.Stubs, rt.Counters)
		if err := snapshot.Write(snapPath, pay); err != nil {
			return err
		}
		if !quiet {
			fmt.Fprintf(out, "snapshot %s -> %s\n", pay.ID, snapPath)
		}
	}
	return nil
}

// runWatched drives the workload behind the live TUI.
func runWatched(rt *bridge.Runtime, w *workload, iterations int) error {
	events := make(chan ui.Event, 64)
	outcome := make(chan error, 1)
	go func() {
		outcome <- w.run(iterations, events)
		close(events)
	}()

	model := ui.NewWatchModel("kiln counters", rt.Counters, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	// Drain so the workload can finish after an early quit.
	for range events {
	}
	err := <-outcome
	if uiErr != nil {
		return uiErr
	}
	return err
}

const workloadMethodSize = 100

// workload exercises the stub table so the counters move: slow-path
// allocations, monitor round-trips, a handled throw per iteration, plus one
// uncaught throw and one return-barrier deoptimization per run.
type workload struct {
	rt    *bridge.Runtime
	probe heap.KlassID
	mat   heap.KlassID
	base  code.Addr
}

func newWorkload(rt *bridge.Runtime) (*workload, error) {
	probe, err := rt.Classes.Define("kiln.Probe", rt.Classes.Builtins.Object, 2)
	if err != nil {
		return nil, err
	}
	a1, err := rt.Classes.ArrayOf(rt.Classes.Builtins.ValueArray)
	if err != nil {
		return nil, err
	}
	mat, err := rt.Classes.ArrayOf(a1)
	if err != nil {
		return nil, err
	}

	// One synthetic compiled method: a handler covering the whole range and
	// a call site for the deopt walk.
	base := code.Addr(0x4000)
	_, err = rt.Meta.Register(base, &meta.MethodMeta{
		Name: "kiln.workload",
		Size: workloadMethodSize,
		Handlers: []meta.HandlerEntry{
			{Start: 0, End: workloadMethodSize, Handler: 60, CatchType: uint32(rt.Classes.Builtins.Throwable)},
		},
		CallSites: []meta.CallSite{{RetOff: 10, BCI: 7, Reexecute: true}},
	})
	if err != nil {
		return nil, err
	}
	return &workload{rt: rt, probe: probe, mat: mat, base: base}, nil
}

// run drives n iterations, reporting progress on events when non-nil.
func (w *workload) run(n int, events chan<- ui.Event) error {
	if err := w.uncaughtOnce(); err != nil {
		return err
	}
	if err := w.deoptOnce(); err != nil {
		return err
	}
	stride := n / 100
	if stride < 1 {
		stride = 1
	}
	for i := 0; i < n; i++ {
		if err := w.step(); err != nil {
			return err
		}
		if events != nil && ((i+1)%stride == 0 || i+1 == n) {
			events <- ui.Event{Done: i + 1, Total: n}
		}
	}
	return nil
}

func (w *workload) step() error {
	rt := w.rt
	ctx := rt.NewContext()

	if _, err := rt.CallStub(ctx, stubs.NewInstanceID, uint64(w.probe)); err != nil {
		return err
	}
	if _, err := rt.CallStub(ctx, stubs.NewArrayID, uint64(rt.Classes.Builtins.ValueArray), 8); err != nil {
		return err
	}
	if _, err := rt.CallStub(ctx, stubs.MultiNewArray3ID, uint64(w.mat), 2, 2, 2); err != nil {
		return err
	}

	res, err := rt.CallStub(ctx, stubs.NewInstanceID, uint64(w.probe))
	if err != nil {
		return err
	}
	obj := res.R0
	if _, err := rt.CallStub(ctx, stubs.CompleteMonitorEnterID, obj, 0); err != nil {
		return err
	}
	if _, err := rt.CallStub(ctx, stubs.MonitorNotifyAllID, obj); err != nil {
		return err
	}
	if _, err := rt.CallStub(ctx, stubs.CompleteMonitorExitID, obj, 0); err != nil {
		return err
	}

	// A throw that lands in the workload frame's handler.
	tctx := rt.NewContext()
	if err := tctx.PushCompiled("kiln.workload", w.base+10); err != nil {
		return err
	}
	res, err = rt.CallStub(tctx, stubs.AThrowID, uint64(rt.Helpers.Pre.NullPointer))
	if err != nil {
		return err
	}
	if res.Status != exec.StatusHandled {
		return fmt.Errorf("athrow did not reach the handler: %v", res.Status)
	}
	return nil
}

// uncaughtOnce drives one exception past every frame: negative array length
// with no compiled frame to catch it.
func (w *workload) uncaughtOnce() error {
	rt := w.rt
	ctx := rt.NewContext()
	neg := ^uint64(0)
	res, err := rt.CallStub(ctx, stubs.NewArrayID, uint64(rt.Classes.Builtins.ValueArray), neg)
	if err != nil {
		return err
	}
	if res.Status != exec.StatusUnwound {
		return fmt.Errorf("negative length did not unwind: %v", res.Status)
	}
	return nil
}

// deoptOnce arms the return barrier under a live call and lets the trap
// blob collect it.
func (w *workload) deoptOnce() error {
	rt := w.rt
	ctx := rt.NewContext()
	if err := ctx.PushCompiled("kiln.workload", w.base+10); err != nil {
		return err
	}
	dispatch.DeoptimizeCallerFrame(ctx, true)
	res, err := rt.CallStub(ctx, stubs.NewInstanceID, uint64(w.probe))
	if err != nil {
		return err
	}
	if res.Status != exec.StatusDeopted {
		return fmt.Errorf("armed barrier did not deopt: %v", res.Status)
	}
	return nil
}
