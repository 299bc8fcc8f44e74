package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var stubsCmd = &cobra.Command{
	Use:   "stubs",
	Short: "List the generated stub table",
	Long:  "Generate the stub table and print every entry with its id, kind, entry point, and call signature.",
	Args:  cobra.NoArgs,
	RunE:  runStubs,
}

func runStubs(cmd *cobra.Command, args []string) error {
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
	header := color.New(color.Bold).Sprintf("%3s  %-22s %-9s %10s  %6s  %s",
		"ID", "NAME", "KIND", "ENTRY", "INSTRS", "SIGNATURE")
	fmt.Fprintln(out, header)
	for _, e := range rt.Stubs.Entries() {
		sigText := "-"
		if e.Sig != nil {
			sigText = e.Sig.Describe(rt.Interner)
		}
		fmt.Fprintf(out, "%3d  %-22s %-9s %#10x  %6d  %s\n",
			int(e.ID), e.Name, e.Kind, uint64(e.Entry), e.Blob.Size(), sigText)
	}
	return nil
}
