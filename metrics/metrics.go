// Package metrics exports monitor state to Prometheus. The collector reads
// snapshots at scrape time, so the hot path carries no extra cost.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"coherency/barrier"
	"coherency/detector"
	"coherency/monitor"
	"coherency/protocol"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "coherency"

// Source is the read side of a monitor. *monitor.Monitor satisfies it.
type Source interface {
	Protocol() protocol.Protocol
	ProtocolStats() monitor.ProtocolStats
	Counters() monitor.Counters
	DetectorStats() detector.Stats
	Barriers() *barrier.Tracker
	PendingEvents() int
}

// Collector is a prometheus.Collector over one Source.
type Collector struct {
	src Source

	transitions   *prometheus.Desc
	hits          *prometheus.Desc
	misses        *prometheus.Desc
	events        *prometheus.Desc
	invalidations *prometheus.Desc
	writebacks    *prometheus.Desc
	overhead      *prometheus.Desc

	avgLatency *prometheus.Desc
	efficiency *prometheus.Desc
	migrations *prometheus.Desc
	contention *prometheus.Desc
	dropped    *prometheus.Desc
	pending    *prometheus.Desc

	suspicious *prometheus.Desc
	flagged    *prometheus.Desc
	evicted    *prometheus.Desc

	barriers *prometheus.Desc
}

// NewCollector describes every metric under the coherency namespace,
// labelled with the source's protocol.
func NewCollector(src Source) *Collector {
	constLabels := prometheus.Labels{"protocol": src.Protocol().String()}
	desc := func(sub, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, sub, name), help, labels, constLabels)
	}

	return &Collector{
		src: src,

		transitions:   desc("protocol", "state_transitions_total", "Transitions into each line state.", "state"),
		hits:          desc("protocol", "cache_hits_total", "Requests that found their line valid in its slot."),
		misses:        desc("protocol", "cache_misses_total", "Requests that did not."),
		events:        desc("protocol", "coherency_events_total", "Requests handled."),
		invalidations: desc("protocol", "invalidations_total", "Responses requiring invalidation."),
		writebacks:    desc("protocol", "writebacks_total", "Responses requiring writeback."),
		overhead:      desc("protocol", "overhead_seconds_total", "Sum of protocol latency estimates."),

		avgLatency: desc("monitor", "avg_latency_seconds", "Mean latency estimate per request."),
		efficiency: desc("monitor", "efficiency_per_10k", "Hits per 10,000 requests."),
		migrations: desc("monitor", "migrations_total", "Writes by a CPU other than the line's last writer."),
		contention: desc("monitor", "slot_contention_total", "Failed slot lock attempts."),
		dropped:    desc("monitor", "dropped_events_total", "Coherency events dropped on a full queue."),
		pending:    desc("monitor", "pending_events", "Coherency events waiting to be drained."),

		suspicious: desc("detector", "suspicious_lines", "Lines currently listed as suspicious."),
		flagged:    desc("detector", "flagged_total", "Lines added to the suspicious list."),
		evicted:    desc("detector", "evicted_total", "Lines evicted from the suspicious list."),

		barriers: desc("barrier", "issued_total", "Fences issued by kind.", "kind"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.transitions, c.hits, c.misses, c.events, c.invalidations, c.writebacks, c.overhead,
		c.avgLatency, c.efficiency, c.migrations, c.contention, c.dropped, c.pending,
		c.suspicious, c.flagged, c.evicted, c.barriers,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	s := c.src.ProtocolStats()
	for i, n := range s.StateTransitions {
		counter(c.transitions, n, protocol.State(i).String())
	}
	counter(c.hits, s.CacheHits)
	counter(c.misses, s.CacheMisses)
	counter(c.events, s.CoherencyEvents)
	counter(c.invalidations, s.Invalidations)
	counter(c.writebacks, s.Writebacks)
	ch <- prometheus.MustNewConstMetric(c.overhead, prometheus.CounterValue, float64(s.ProtocolOverheadNs)/1e9)

	pc := c.src.Counters()
	gauge(c.avgLatency, float64(pc.AvgLatencyNs)/1e9)
	gauge(c.efficiency, float64(pc.Efficiency))
	counter(c.migrations, pc.Migrations)
	counter(c.contention, pc.ContentionEvents)
	counter(c.dropped, pc.DroppedEvents)
	gauge(c.pending, float64(c.src.PendingEvents()))

	ds := c.src.DetectorStats()
	gauge(c.suspicious, float64(ds.Suspicious))
	counter(c.flagged, ds.Flagged)
	counter(c.evicted, ds.Evicted)

	bs := c.src.Barriers().Stats()
	counter(c.barriers, bs.Acquires, barrier.Acquire.String())
	counter(c.barriers, bs.Releases, barrier.Release.String())
	counter(c.barriers, bs.FullBarriers, barrier.Full.String())
	counter(c.barriers, bs.StoreStores, barrier.StoreStore.String())
	counter(c.barriers, bs.LoadLoads, barrier.LoadLoad.String())
}

// Register adds a collector for src to reg.
func Register(reg prometheus.Registerer, src Source) (*Collector, error) {
	c := NewCollector(src)
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Serve exposes reg on addr at /metrics until ctx ends.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info("metrics endpoint listening", zap.String("addr", addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shut, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shut); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
