package metrics

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"coherency/monitor"
	"coherency/protocol"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func driven(t *testing.T) *monitor.Monitor {
	t.Helper()
	m, err := monitor.New(protocol.MESI, 8192, monitor.WithThreshold(10))
	require.NoError(t, err)
	m.HandleCacheRequest(0, 0x1000, protocol.Read)       // I→S
	m.HandleCacheRequest(1, 0x1000, protocol.Write)      // S→M
	m.HandleCacheRequest(1, 0x1000, protocol.Invalidate) // M→I
	for i := 0; i < 20; i++ {
		m.HandleCacheRequest(i%2, 0x2000+uint64(i%2)*8, protocol.Read)
	}
	return m
}

func TestCollectorValues(t *testing.T) {
	m := driven(t)
	c := NewCollector(m)

	expected := `
# HELP coherency_protocol_coherency_events_total Requests handled.
# TYPE coherency_protocol_coherency_events_total counter
coherency_protocol_coherency_events_total{protocol="MESI"} 23
# HELP coherency_protocol_invalidations_total Responses requiring invalidation.
# TYPE coherency_protocol_invalidations_total counter
coherency_protocol_invalidations_total{protocol="MESI"} 1
# HELP coherency_detector_suspicious_lines Lines currently listed as suspicious.
# TYPE coherency_detector_suspicious_lines gauge
coherency_detector_suspicious_lines{protocol="MESI"} 1
# HELP coherency_monitor_pending_events Coherency events waiting to be drained.
# TYPE coherency_monitor_pending_events gauge
coherency_monitor_pending_events{protocol="MESI"} 1
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"coherency_protocol_coherency_events_total",
		"coherency_protocol_invalidations_total",
		"coherency_detector_suspicious_lines",
		"coherency_monitor_pending_events")
	require.NoError(t, err)
}

func TestCollectorStateLabels(t *testing.T) {
	m := driven(t)
	reg := prometheus.NewPedanticRegistry()
	_, err := Register(reg, m)
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "coherency_protocol_state_transitions_total")
	require.NoError(t, err)
	assert.Equal(t, protocol.NumStates, n)

	n, err = testutil.GatherAndCount(reg, "coherency_barrier_issued_total")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// Registering the same source twice collides.
	_, err = Register(reg, m)
	assert.Error(t, err)
}

func TestCollectorLint(t *testing.T) {
	problems, err := testutil.CollectAndLint(NewCollector(driven(t)))
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestServe(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	reg := prometheus.NewRegistry()
	_, err = Register(reg, driven(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, reg, zap.NewNop()) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/metrics", addr))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, body, `coherency_protocol_cache_hits_total{protocol="MESI"}`)

	cancel()
	require.NoError(t, <-done)
}
