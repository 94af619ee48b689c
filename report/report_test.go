package report

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"coherency/barrier"
	"coherency/detector"
	"coherency/monitor"
	"coherency/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRun(t *testing.T) *Run {
	t.Helper()
	m, err := monitor.New(protocol.MESI, 8192, monitor.WithThreshold(10), monitor.WithMaxCPUs(4))
	require.NoError(t, err)
	for i := 0; i < 2000; i++ {
		m.HandleCacheRequest(i%2, 0x1000+uint64(i%2)*8, protocol.Write)
	}
	m.HandleCacheRequest(0, 0x1000, protocol.Invalidate)

	return &Run{
		Protocol:        m.Protocol().String(),
		TraceDigest:     Digest([]byte("trace")),
		Requests:        2001,
		StartedAt:       time.Unix(1_700_000_000, 123),
		Duration:        42 * time.Millisecond,
		Stats:           m.ProtocolStats(),
		Counters:        m.Counters(),
		Barriers:        m.Barriers().Stats(),
		Detections:      m.Detections(),
		Recommendations: m.ApplyFalseSharingCorrections(),
	}
}

func TestSaveLoadRun(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	run := sampleRun(t)
	require.NotEmpty(t, run.Detections)
	require.NotEmpty(t, run.Recommendations)
	require.NoError(t, s.Save(ctx, run))
	require.Len(t, run.ID, 16)

	got, err := s.Load(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Protocol, got.Protocol)
	assert.Equal(t, run.TraceDigest, got.TraceDigest)
	assert.Equal(t, run.Requests, got.Requests)
	assert.True(t, run.StartedAt.Equal(got.StartedAt))
	assert.Equal(t, run.Duration, got.Duration)
	assert.Equal(t, run.Stats, got.Stats)
	assert.Equal(t, run.Counters, got.Counters)
	assert.Equal(t, run.Barriers, got.Barriers)
	assert.Equal(t, run.Recommendations, got.Recommendations)

	require.Len(t, got.Detections, len(run.Detections))
	for i := range run.Detections {
		want, have := run.Detections[i], got.Detections[i]
		assert.Equal(t, want.Address, have.Address)
		assert.Equal(t, want.AccessCount, have.AccessCount)
		assert.Equal(t, want.ThreadCount, have.ThreadCount)
		assert.Equal(t, want.LastDetection.UnixNano(), have.LastDetection.UnixNano())
		assert.InDelta(t, want.Severity, have.Severity, 1e-6)
	}
}

func TestLoadUnknownAndDelete(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	_, err = s.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "missing"), ErrNotFound)

	run := sampleRun(t)
	require.NoError(t, s.Save(ctx, run))
	require.NoError(t, s.Delete(ctx, run.ID))
	_, err = s.Load(ctx, run.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	var orphans int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM detections`).Scan(&orphans))
	assert.Zero(t, orphans, "child rows cascade with the run")
}

func TestDuplicateIDRejected(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	run := &Run{ID: "fixed", Protocol: "MESI", Barriers: barrier.Stats{}}
	require.NoError(t, s.Save(context.Background(), run))
	assert.Error(t, s.Save(context.Background(), run))
}

func TestListNewestFirst(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Save(ctx, &Run{
			Protocol:    "MOESI",
			TraceDigest: Digest([]byte{byte(i)}),
			Requests:    uint64(i),
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
			Detections:  []detector.SuspiciousLine{},
		}))
	}

	sums, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, sums, 3)
	assert.Equal(t, uint64(2), sums[0].Requests)
	assert.Equal(t, uint64(0), sums[2].Requests)
}

func TestDigestAndRunID(t *testing.T) {
	// SHA3-256 of the empty string.
	assert.Equal(t, "a7ffc6f8bf1ed76651c14756a061d662f580ff4de43b49fa82d80a4b80f8434a", Digest(nil))

	at := time.Unix(1_700_000_000, 0)
	a := RunID("d", "MESI", at)
	assert.Len(t, a, 16)
	assert.Equal(t, a, RunID("d", "MESI", at))
	assert.NotEqual(t, a, RunID("d", "MOESI", at))
	assert.NotEqual(t, a, RunID("d", "MESI", at.Add(time.Nanosecond)))
}
