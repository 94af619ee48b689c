package main

import (
	"bufio"
	"fmt"
	"os"

	"coherency/trace"

	"github.com/spf13/cobra"
)

type synthFlags struct {
	Pattern    string
	CPUs       int
	Ops        int
	Base       uint64
	Seed       int64
	WriteRatio float64
	Out        string
}

func newSynthCmd() *cobra.Command {
	var f synthFlags
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Write a synthetic access trace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSynth(cmd, f)
		},
	}
	cmd.Flags().StringVarP(&f.Pattern, "pattern", "p", "false", "sharing pattern: false|true|none")
	cmd.Flags().IntVar(&f.CPUs, "cpus", 4, "simulated CPUs")
	cmd.Flags().IntVar(&f.Ops, "ops", 10000, "total accesses")
	cmd.Flags().Uint64Var(&f.Base, "base", 0x10000, "first line address")
	cmd.Flags().Int64Var(&f.Seed, "seed", 1, "random seed for the read/write mix")
	cmd.Flags().Float64Var(&f.WriteRatio, "write-ratio", 0.5, "share of writes in [0,1]")
	cmd.Flags().StringVarP(&f.Out, "out", "o", "-", "output file, - for stdout")
	return cmd
}

func runSynth(cmd *cobra.Command, f synthFlags) error {
	pattern, err := trace.ParsePattern(f.Pattern)
	if err != nil {
		return err
	}
	accesses, err := trace.Synthesize(trace.SynthConfig{
		Pattern:    pattern,
		CPUs:       f.CPUs,
		Ops:        f.Ops,
		Base:       f.Base,
		Seed:       f.Seed,
		WriteRatio: f.WriteRatio,
	})
	if err != nil {
		return err
	}

	if f.Out == "-" {
		return trace.Write(cmd.OutOrStdout(), accesses)
	}

	file, err := os.Create(f.Out)
	if err != nil {
		return fmt.Errorf("synth: %w", err)
	}
	w := bufio.NewWriter(file)
	if err := trace.Write(w, accesses); err != nil {
		file.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("synth: flush %s: %w", f.Out, err)
	}
	return file.Close()
}
