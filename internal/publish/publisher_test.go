package publish

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/banshee-data/pf3d/internal/tracker"
)

func startBufconn(t *testing.T, cfg Config) (*Publisher, *grpc.ClientConn) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	p := NewPublisher(cfg)
	require.NoError(t, p.Serve(lis))
	t.Cleanup(p.Stop)

	conn, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return p, conn
}

func waitClients(t *testing.T, p *Publisher, n int32) {
	t.Helper()
	require.Eventually(t, func() bool { return p.Stats().Clients == n }, 2*time.Second, 5*time.Millisecond)
}

func sampleEstimate(seq uint64, seeing bool) tracker.Estimate {
	return tracker.Estimate{
		Seq:        seq,
		Timestamp:  time.Date(2026, 3, 1, 12, 0, 0, 250_000_000, time.UTC),
		X:          0.12,
		Y:          -0.05,
		Z:          0.98,
		Likelihood: 0.42,
		MeanU:      191,
		MeanV:      107,
		Seeing:     seeing,
		State:      tracker.StateTracking,
		Attention:  [5]float64{0.13, -0.07, 0, 0, 257},
		Injected:   2,
		CycleTime:  12 * time.Millisecond,
	}
}

func TestEstimateStructRoundTrip(t *testing.T) {
	want := sampleEstimate(17, true)
	s, err := EstimateToStruct(want)
	require.NoError(t, err)
	assert.Equal(t, "tracking", s.GetFields()["state"].GetStringValue())

	got, err := EstimateFromStruct(s)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPublisher_StreamsEstimates(t *testing.T) {
	p, conn := startBufconn(t, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := Subscribe(ctx, conn, false)
	require.NoError(t, err)
	waitClients(t, p, 1)

	p.Publish(sampleEstimate(1, false))
	require.NoError(t, p.Emit(ctx, sampleEstimate(2, true), nil))

	first, err := sub.Recv()
	require.NoError(t, err)
	assert.Equal(t, sampleEstimate(1, false), first)

	second, err := sub.Recv()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Seq)
	assert.True(t, second.Seeing)

	stats := p.Stats()
	assert.Equal(t, uint64(2), stats.Published)
	assert.True(t, stats.Running)
}

func TestPublisher_OnlySeeingFilter(t *testing.T) {
	p, conn := startBufconn(t, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := Subscribe(ctx, conn, true)
	require.NoError(t, err)
	waitClients(t, p, 1)

	p.Publish(sampleEstimate(1, false))
	p.Publish(sampleEstimate(2, true))

	got, err := sub.Recv()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Seq)
}

func TestPublisher_MaxClients(t *testing.T) {
	p, conn := startBufconn(t, Config{MaxClients: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Subscribe(ctx, conn, false)
	require.NoError(t, err)
	waitClients(t, p, 1)

	second, err := Subscribe(ctx, conn, false)
	require.NoError(t, err)
	_, err = second.Recv()
	require.Error(t, err)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestPublisher_StopEndsStreams(t *testing.T) {
	p, conn := startBufconn(t, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := Subscribe(ctx, conn, false)
	require.NoError(t, err)
	waitClients(t, p, 1)

	p.Stop()
	_, err = sub.Recv()
	assert.Error(t, err)
	assert.False(t, p.Stats().Running)

	// Publishing after stop is a no-op.
	p.Publish(sampleEstimate(9, true))
	assert.Equal(t, uint64(0), p.Stats().Published)
}

func TestPublisher_DropsWhenQueueFull(t *testing.T) {
	p := NewPublisher(Config{QueueSize: 1})
	// Running without a broadcast loop so the queue never drains.
	p.running.Store(true)
	p.Publish(sampleEstimate(1, true))
	p.Publish(sampleEstimate(2, true))
	assert.Equal(t, uint64(1), p.Stats().Published)
	assert.Equal(t, uint64(1), p.Stats().Dropped)
}
