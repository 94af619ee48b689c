// ════════════════════════════════════════════════════════════════════════════════════════════════
// ⚡ CPU PROXIES
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Per-CPU Request Replay
//
// Description:
//   One proxy per simulated CPU id. Each proxy owns an SPSC request ring and a
//   pinned consumer goroutine that drains it into the coherency handler, so
//   simulated CPUs really do hit the monitor from different OS threads and,
//   where affinity is available, from different cores.
//
// Threading Model:
//   - Producer: the single goroutine calling Submit
//   - Consumers: one pinned goroutine per proxy
//   - Quiescence: per-proxy submitted/handled counters
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package proxy

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"coherency/localidx"
	"coherency/protocol"
	"coherency/ring"

	"go.uber.org/zap"
)

var (
	// ErrStarted is returned by a second Start.
	ErrStarted = errors.New("proxy: group already started")

	// ErrUnknownCPU is returned by Submit for a CPU without a proxy.
	ErrUnknownCPU = errors.New("proxy: no proxy for cpu")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("proxy: group closed")
)

// Handler consumes coherency requests. *monitor.Monitor satisfies it.
type Handler interface {
	HandleCacheRequest(cpu int, addr uint64, req protocol.Request) protocol.Response
}

// Options configures a Group.
type Options struct {
	RingSize int           // per-proxy ring slots, power of two; default 4096
	Pin      bool          // bind each proxy to core cpu mod NumCPU
	Cooldown time.Duration // idle time before consumers leave the hot spin
	Logger   *zap.Logger
}

const (
	defaultRingSize = 4096
	signalEvery     = 256
)

// Proxy replays one CPU's requests.
type Proxy struct {
	cpu       int
	core      int
	pinned    bool
	ring      *ring.Ring
	submitted atomic.Uint64
	handled   atomic.Uint64
	latencyNs atomic.Uint64
	done      chan struct{}
}

// Stats describes one proxy.
type Stats struct {
	CPU       int
	Core      int // -1 when not pinned
	Pinned    bool
	Submitted uint64
	Handled   uint64
	LatencyNs uint64 // sum of response latency estimates
}

// Group owns the proxies for a replay.
type Group struct {
	h       Handler
	opts    Options
	ctl     *ring.Control
	log     *zap.Logger
	proxies []*Proxy
	index   *localidx.Index
	sends   uint64
	closed  bool
}

// NewGroup prepares an idle group feeding h.
func NewGroup(h Handler, opts Options) *Group {
	if opts.RingSize <= 0 {
		opts.RingSize = defaultRingSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Group{
		h:    h,
		opts: opts,
		ctl:  ring.NewControl(opts.Cooldown),
		log:  opts.Logger.Named("proxy"),
	}
}

// Start launches one proxy per distinct id in cpus. On error every proxy it
// already launched is stopped and the group is closed.
func (g *Group) Start(cpus []int) error {
	if g.proxies != nil {
		return ErrStarted
	}
	if g.opts.RingSize&(g.opts.RingSize-1) != 0 {
		return fmt.Errorf("proxy: ring size %d is not a power of two", g.opts.RingSize)
	}

	g.index = localidx.New(len(cpus))
	g.proxies = make([]*Proxy, 0, len(cpus))
	ncpu := runtime.NumCPU()
	first := true
	for _, cpu := range cpus {
		key, ok := cpuKey(cpu)
		if !ok {
			g.Close()
			return fmt.Errorf("%w %d: id out of range", ErrUnknownCPU, cpu)
		}
		if _, dup := g.index.Get(key); dup {
			continue
		}
		p := &Proxy{cpu: cpu, core: -1, ring: ring.New(g.opts.RingSize), done: make(chan struct{})}
		if g.opts.Pin {
			p.core = ((cpu % ncpu) + ncpu) % ncpu
		}

		pinned := make(chan bool, 1)
		ring.PinnedConsumer(p.ring, g.ctl, ring.ConsumerOptions{Core: p.core, Poll: first}, p.consume(g.h), pinned, p.done)
		p.pinned = <-pinned
		first = false

		if g.opts.Pin && !p.pinned {
			g.log.Warn("affinity unavailable, proxy runs unpinned", zap.Int("cpu", cpu), zap.Int("core", p.core))
		}
		g.index.Put(key, uint32(len(g.proxies)))
		g.proxies = append(g.proxies, p)
	}

	g.log.Debug("proxies started", zap.Int("count", len(g.proxies)), zap.Bool("pin", g.opts.Pin))
	return nil
}

// cpuKey zigzag-encodes cpu so negative ids index too.
func cpuKey(cpu int) (uint32, bool) {
	z := uint64(cpu<<1) ^ uint64(cpu>>63)
	if z > localidx.MaxID {
		return 0, false
	}
	return uint32(z), true
}

func (p *Proxy) consume(h Handler) func(ring.Entry) {
	return func(e ring.Entry) {
		r := h.HandleCacheRequest(p.cpu, e.Addr, e.Req)
		p.latencyNs.Add(r.LatencyNs)
		p.handled.Add(1)
	}
}

// Submit queues one request for cpu's proxy, spinning while its ring is full.
// Submit must be called from a single goroutine.
func (g *Group) Submit(cpu int, seq, addr uint64, req protocol.Request) error {
	if g.closed {
		return ErrClosed
	}
	var p *Proxy
	key, ok := cpuKey(cpu)
	if ok && g.index != nil {
		var pos uint32
		if pos, ok = g.index.Get(key); ok {
			p = g.proxies[pos]
		}
	}
	if p == nil {
		return fmt.Errorf("%w %d", ErrUnknownCPU, cpu)
	}

	if g.sends%signalEvery == 0 {
		g.ctl.SignalActivity()
	}
	g.sends++

	p.submitted.Add(1)
	p.ring.PushWait(&ring.Entry{Addr: addr, Seq: seq, Req: req})
	return nil
}

// Wait blocks until every submitted request was handled or ctx ends.
func (g *Group) Wait(ctx context.Context) error {
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	for {
		if g.quiescent() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("proxy: waiting for quiescence: %w", ctx.Err())
		case <-tick.C:
		}
	}
}

func (g *Group) quiescent() bool {
	for _, p := range g.proxies {
		if p.handled.Load() != p.submitted.Load() {
			return false
		}
	}
	return true
}

// Close drains and stops every proxy. It is idempotent.
func (g *Group) Close() {
	if g.closed {
		return
	}
	g.closed = true
	g.ctl.Shutdown()
	for _, p := range g.proxies {
		<-p.done
	}
	g.log.Debug("proxies stopped", zap.Int("count", len(g.proxies)))
}

// Stats returns one entry per proxy ordered by CPU id.
func (g *Group) Stats() []Stats {
	out := make([]Stats, 0, len(g.proxies))
	for _, p := range g.proxies {
		out = append(out, Stats{
			CPU:       p.cpu,
			Core:      p.core,
			Pinned:    p.pinned,
			Submitted: p.submitted.Load(),
			Handled:   p.handled.Load(),
			LatencyNs: p.latencyNs.Load(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CPU < out[j].CPU })
	return out
}
