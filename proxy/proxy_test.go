// ============================================================================
// CPU PROXY VALIDATION SUITE
// ============================================================================

package proxy

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"coherency/localidx"
	"coherency/monitor"
	"coherency/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a Handler that remembers which CPU sent each address.
type recorder struct {
	mu   sync.Mutex
	seen map[int][]uint64
}

func (r *recorder) HandleCacheRequest(cpu int, addr uint64, _ protocol.Request) protocol.Response {
	r.mu.Lock()
	if r.seen == nil {
		r.seen = make(map[int][]uint64)
	}
	r.seen[cpu] = append(r.seen[cpu], addr)
	r.mu.Unlock()
	return protocol.Response{LatencyNs: 10}
}

func TestGroupRoutesPerCPUInOrder(t *testing.T) {
	rec := &recorder{}
	g := NewGroup(rec, Options{RingSize: 8})
	require.NoError(t, g.Start([]int{0, 1, 2, 1}))
	defer g.Close()

	const per = 500
	for i := 0; i < per; i++ {
		for cpu := 0; cpu < 3; cpu++ {
			require.NoError(t, g.Submit(cpu, uint64(i), uint64(cpu*1_000_000+i), protocol.Read))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, g.Wait(ctx))

	for cpu := 0; cpu < 3; cpu++ {
		got := rec.seen[cpu]
		require.Len(t, got, per)
		for i, a := range got {
			require.Equal(t, uint64(cpu*1_000_000+i), a, "cpu %d entry %d", cpu, i)
		}
	}

	stats := g.Stats()
	require.Len(t, stats, 3)
	for i, s := range stats {
		assert.Equal(t, i, s.CPU)
		assert.Equal(t, uint64(per), s.Submitted)
		assert.Equal(t, uint64(per), s.Handled)
		assert.Equal(t, uint64(per*10), s.LatencyNs)
		assert.Equal(t, -1, s.Core)
	}
}

func TestGroupErrors(t *testing.T) {
	g := NewGroup(&recorder{}, Options{})
	require.NoError(t, g.Start([]int{4}))
	assert.ErrorIs(t, g.Start([]int{5}), ErrStarted)
	assert.ErrorIs(t, g.Submit(5, 0, 0, protocol.Read), ErrUnknownCPU)

	g.Close()
	g.Close()
	assert.ErrorIs(t, g.Submit(4, 0, 0, protocol.Read), ErrClosed)

	bad := NewGroup(&recorder{}, Options{RingSize: 6})
	assert.Error(t, bad.Start([]int{0}))
}

func TestGroupNegativeAndSparseIDs(t *testing.T) {
	rec := &recorder{}
	g := NewGroup(rec, Options{RingSize: 8})
	assert.ErrorIs(t, g.Submit(0, 0, 0, protocol.Read), ErrUnknownCPU, "submit before start")

	ids := []int{-3, 0, 1 << 20, -1}
	require.NoError(t, g.Start(ids))
	defer g.Close()
	for _, cpu := range ids {
		require.NoError(t, g.Submit(cpu, 0, uint64(cpu+10), protocol.Read))
	}
	assert.ErrorIs(t, g.Submit(2, 0, 0, protocol.Read), ErrUnknownCPU)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, g.Wait(ctx))

	stats := g.Stats()
	require.Len(t, stats, len(ids))
	assert.Equal(t, -3, stats[0].CPU)
	for _, cpu := range ids {
		assert.Equal(t, []uint64{uint64(cpu + 10)}, rec.seen[cpu])
	}
}

func TestGroupWaitTimesOut(t *testing.T) {
	block := make(chan struct{})
	h := handlerFunc(func(int, uint64, protocol.Request) protocol.Response {
		<-block
		return protocol.Response{}
	})
	g := NewGroup(h, Options{RingSize: 4})
	require.NoError(t, g.Start([]int{0}))
	require.NoError(t, g.Submit(0, 0, 0, protocol.Write))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Wait(ctx), context.DeadlineExceeded)

	close(block)
	g.Close()
}

type handlerFunc func(int, uint64, protocol.Request) protocol.Response

func (f handlerFunc) HandleCacheRequest(cpu int, addr uint64, req protocol.Request) protocol.Response {
	return f(cpu, addr, req)
}

func TestGroupDrivesMonitor(t *testing.T) {
	m, err := monitor.New(protocol.MESI, 8192, monitor.WithThreshold(100))
	require.NoError(t, err)

	g := NewGroup(m, Options{Pin: true, RingSize: 64})
	require.NoError(t, g.Start([]int{0, 1}))

	for i := 0; i < 1000; i++ {
		cpu := i & 1
		require.NoError(t, g.Submit(cpu, uint64(i), 0x1000+uint64(cpu*8), protocol.Write))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, g.Wait(ctx))
	g.Close()

	s := m.ProtocolStats()
	assert.Equal(t, uint64(1000), s.CoherencyEvents)
	assert.Equal(t, uint64(1000), m.Line(0x1000).AccessCount)

	det := m.Detections()
	require.Len(t, det, 1)
	assert.Equal(t, 2, det[0].ThreadCount)
}

func TestGroupSingleProcessorThroughput(t *testing.T) {
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(1))

	const n = 20_000
	rec := &recorder{}
	g := NewGroup(rec, Options{RingSize: 64})
	require.NoError(t, g.Start([]int{0, 1}))
	defer g.Close()

	start := time.Now()
	for i := 0; i < n; i++ {
		require.NoError(t, g.Submit(i&1, uint64(i), uint64(i), protocol.Read))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, g.Wait(ctx))

	assert.Less(t, time.Since(start), 3*time.Second, "%d submits on one processor", n)
	assert.Len(t, rec.seen[0], n/2)
	assert.Len(t, rec.seen[1], n/2)
}

func TestGroupStartFailureStopsLaunchedProxies(t *testing.T) {
	g := NewGroup(&recorder{}, Options{RingSize: 8})
	var huge int64 = localidx.MaxID/2 + 1 // zigzag key just past MaxID
	err := g.Start([]int{0, 1, int(huge)})
	require.ErrorIs(t, err, ErrUnknownCPU)

	require.Len(t, g.proxies, 2)
	for _, p := range g.proxies {
		select {
		case <-p.done:
		case <-time.After(5 * time.Second):
			t.Fatalf("proxy for cpu %d still running after failed start", p.cpu)
		}
	}
	assert.ErrorIs(t, g.Submit(0, 0, 0, protocol.Read), ErrClosed)
	g.Close()
}
