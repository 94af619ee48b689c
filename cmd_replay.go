package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	rtdebug "runtime/debug"
	"text/tabwriter"
	"time"

	"coherency/config"
	"coherency/debug"
	"coherency/detector"
	"coherency/metrics"
	"coherency/monitor"
	"coherency/proxy"
	"coherency/report"
	"coherency/trace"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type replayFlags struct {
	Trace       string
	Protocol    string
	DB          string
	MetricsAddr string
	NoPin       bool
	Hold        bool
}

func newReplayCmd() *cobra.Command {
	var f replayFlags
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a JSON-lines trace through the coherency monitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.Config)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("protocol") {
				cfg.Protocol = f.Protocol
			}
			if cmd.Flags().Changed("db") {
				cfg.DB = f.DB
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddr = f.MetricsAddr
			}
			if f.NoPin {
				cfg.Pin = false
			}
			if flags.LogLevel != "" {
				cfg.Log.Level = flags.LogLevel
			}
			if flags.LogFile != "" {
				cfg.Log.File = flags.LogFile
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log, err := debug.New(cfg.Log)
			if err != nil {
				return err
			}
			defer debug.Install(log)()
			defer log.Sync() //nolint:errcheck

			_, err = replay(cmd.Context(), cmd.OutOrStdout(), cfg, f.Trace, f.Hold, log)
			return err
		},
	}
	cmd.Flags().StringVarP(&f.Trace, "trace", "t", "", "JSON-lines trace file (required)")
	cmd.Flags().StringVarP(&f.Protocol, "protocol", "p", "", "override protocol: MESI|MOESI|MESIF|Dragon|Firefly")
	cmd.Flags().StringVar(&f.DB, "db", "", "report database, :memory: to discard")
	cmd.Flags().StringVar(&f.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&f.NoPin, "no-pin", false, "do not bind proxies to cores")
	cmd.Flags().BoolVar(&f.Hold, "hold", false, "keep serving metrics after the replay until interrupted")
	_ = cmd.MarkFlagRequired("trace")
	return cmd
}

// replay runs one trace end to end and returns the stored run.
//
// Phases:
//   - Load: read and digest the trace, build the monitor
//   - Replay: fan requests out to the proxies and wait for quiescence
//   - Report: drain events, collect corrections, print and store the run
func replay(ctx context.Context, out io.Writer, cfg config.Config, path string, hold bool, log *zap.Logger) (*report.Run, error) {
	// PHASE 0: load
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	digest := report.Digest(raw)
	accesses, err := trace.ReadAll(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	debug.DropMessage("LOADED", fmt.Sprintf("%d accesses from %s", len(accesses), path))

	p := cfg.ProtocolValue()
	if !p.Implemented() {
		log.Warn("reserved protocol selected, lines never change state", zap.Stringer("protocol", p))
	}
	m, err := monitor.New(p, cfg.CacheSize, cfg.Monitor(log)...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	served := make(chan error, 1)
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		if _, err := metrics.Register(reg, m); err != nil {
			return nil, err
		}
		go func() { served <- metrics.Serve(ctx, cfg.MetricsAddr, reg, log) }()
	} else {
		served <- nil
	}

	// Settle the heap before the timed phase.
	runtime.GC()
	rtdebug.FreeOSMemory()

	// PHASE 1: replay
	group := proxy.NewGroup(m, cfg.ProxyOptions(log))
	if err := group.Start(trace.CPUs(accesses)); err != nil {
		return nil, err
	}
	started := time.Now()
	for _, a := range accesses {
		if err := group.Submit(a.CPU, a.Seq, a.Addr, a.Req); err != nil {
			group.Close()
			return nil, err
		}
	}
	err = group.Wait(ctx)
	elapsed := time.Since(started)
	group.Close()
	if err != nil {
		return nil, err
	}

	// PHASE 2: report
	var invalidations, writebacks int
	m.DrainEvents(func(ev monitor.Event) {
		if ev.Kind == monitor.EventWriteback {
			writebacks++
		} else {
			invalidations++
		}
	})

	recs := m.ApplyFalseSharingCorrections()
	run := &report.Run{
		Protocol:        p.String(),
		TraceDigest:     digest,
		Requests:        uint64(len(accesses)),
		StartedAt:       started,
		Duration:        elapsed,
		Stats:           m.ProtocolStats(),
		Counters:        m.Counters(),
		Barriers:        m.Barriers().Stats(),
		Detections:      m.Detections(),
		Recommendations: recs,
	}

	store, err := report.Open(cfg.DB)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	if err := store.Save(ctx, run); err != nil {
		return nil, err
	}

	printRun(out, run, group.Stats(), m.Patterns(), invalidations, writebacks)
	log.Info("replay stored", zap.String("run", run.ID), zap.String("db", cfg.DB), zap.Duration("elapsed", elapsed))

	if hold && cfg.MetricsAddr != "" {
		log.Info("holding metrics endpoint until interrupted", zap.String("addr", cfg.MetricsAddr))
		<-ctx.Done()
	}
	cancel()
	if err := <-served; err != nil && !errors.Is(err, context.Canceled) {
		debug.DropError("metrics endpoint", err)
	}
	return run, nil
}

func printRun(out io.Writer, run *report.Run, proxies []proxy.Stats, patterns []detector.SharingPattern, invalidations, writebacks int) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	s, c := run.Stats, run.Counters
	fmt.Fprintf(tw, "run\t%s\n", run.ID)
	fmt.Fprintf(tw, "protocol\t%s\n", run.Protocol)
	fmt.Fprintf(tw, "requests\t%d in %v\n", run.Requests, run.Duration)
	fmt.Fprintf(tw, "hits / misses\t%d / %d\n", s.CacheHits, s.CacheMisses)
	fmt.Fprintf(tw, "coherency events\t%d (invalidations %d, writebacks %d)\n", s.CoherencyEvents, s.Invalidations, s.Writebacks)
	fmt.Fprintf(tw, "drained events\t%d invalidations, %d writebacks, %d dropped\n", invalidations, writebacks, c.DroppedEvents)
	fmt.Fprintf(tw, "overhead\t%dns (avg %dns)\n", s.ProtocolOverheadNs, c.AvgLatencyNs)
	fmt.Fprintf(tw, "migrations\t%d\n", c.Migrations)
	fmt.Fprintf(tw, "barriers\t%d\n", run.Barriers.TotalBarriers)

	for _, p := range proxies {
		core := "-"
		if p.Pinned {
			core = fmt.Sprint(p.Core)
		}
		fmt.Fprintf(tw, "cpu %d\tcore %s, %d handled\n", p.CPU, core, p.Handled)
	}
	for _, p := range patterns {
		fmt.Fprintf(tw, "line %#x\t%v, %d threads, score %.2f\n",
			p.LineAddress, p.PatternType, len(p.AccessingThreads), p.FalseSharingScore)
	}
	for _, r := range run.Recommendations {
		fmt.Fprintf(tw, "recommend %#x\t%v (%v), expected improvement %.0f%%\n",
			r.Address, r.Type, r.Priority, r.ExpectedImprovement*100)
	}
}
