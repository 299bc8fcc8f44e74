package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"kiln/internal/code"
	"kiln/internal/stubs"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <name|id|0xaddr>...",
	Short: "Resolve stub names, ids, and addresses",
	Long: `Resolve each argument against the generated stub table.
Arguments are tried as a hex address (0x prefix), a decimal id, then a stub name.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cleanupTrace, err := setupTracing(cmd, cfg)
	if err != nil {
		return err
	}
	defer cleanupTrace()

	rt, err := generatedRuntime(cmd, cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var failed []string
	for _, arg := range args {
		e, err := resolveRef(rt.Stubs, arg)
		if err != nil {
			fmt.Fprintf(out, "%-20s %v\n", arg, err)
			failed = append(failed, arg)
			continue
		}
		fmt.Fprintf(out, "%-20s id=%-3d name=%-22s kind=%-9s entry=%#x size=%d\n",
			arg, int(e.ID), e.Name, e.Kind, uint64(e.Entry), e.Blob.Size())
	}
	if len(failed) > 0 {
		return fmt.Errorf("unresolved: %s", strings.Join(failed, ", "))
	}
	return nil
}

// resolveRef maps one argument to a stub entry, trying the address form,
// then the id form, then the name.
func resolveRef(reg *stubs.Registry, arg string) (stubs.Entry, error) {
	addr, isAddr, err := parseAddr(arg)
	if err != nil {
		return stubs.Entry{}, err
	}
	if isAddr {
		e, ok := reg.FindByAddress(code.Addr(addr))
		if !ok {
			return stubs.Entry{}, fmt.Errorf("no stub contains address %#x", addr)
		}
		return e, nil
	}
	if id, err := strconv.Atoi(arg); err == nil {
		e, ok := reg.EntryOf(stubs.ID(id))
		if !ok {
			return stubs.Entry{}, fmt.Errorf("no stub with id %d", id)
		}
		return e, nil
	}
	id := stubs.Resolve(arg)
	if id == stubs.NoID {
		return stubs.Entry{}, fmt.Errorf("no stub named %q", arg)
	}
	e, ok := reg.EntryOf(id)
	if !ok {
		return stubs.Entry{}, errors.New("stub table not generated")
	}
	return e, nil
}

// parseAddr reads a hex address in the 0x form. isAddr reports whether the
// argument looked like an address at all.
func parseAddr(arg string) (addr uint64, isAddr bool, err error) {
	if !strings.HasPrefix(arg, "0x") && !strings.HasPrefix(arg, "0X") {
		return 0, false, nil
	}
	v, err := strconv.ParseUint(arg[2:], 16, 64)
	if err != nil {
		return 0, false, fmt.Errorf("bad address %q: %w", arg, err)
	}
	return v, true, nil
}
