package proposals

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pf3d/internal/timeutil"
)

func TestParseDatagram(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    [][3]float64
		wantErr bool
	}{
		{name: "two positions", in: "2 0.1 0.2 1.0 -0.5 0 2", want: [][3]float64{{0.1, 0.2, 1}, {-0.5, 0, 2}}},
		{name: "extra whitespace", in: "  1\t0 0\n0.75 \n", want: [][3]float64{{0, 0, 0.75}}},
		{name: "zero count", in: "0", want: [][3]float64{}},
		{name: "empty", in: "", wantErr: true},
		{name: "count not a number", in: "two 1 2 3", wantErr: true},
		{name: "negative count", in: "-1", wantErr: true},
		{name: "short", in: "2 1 2 3 4 5", wantErr: true},
		{name: "long", in: "1 1 2 3 4", wantErr: true},
		{name: "bad coordinate", in: "1 1 x 3", wantErr: true},
		{name: "nan coordinate", in: "1 1 NaN 3", wantErr: true},
		{name: "huge count", in: "5000", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDatagram([]byte(tt.in))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatDatagram(t *testing.T) {
	in := [][3]float64{{0.1, -0.25, 1.5}}
	assert.Equal(t, "1 0.1 -0.25 1.5", string(FormatDatagram(in)))
	got, err := ParseDatagram(FormatDatagram(in))
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestListener_KeepsLatestBatch(t *testing.T) {
	l := NewListener(ListenerConfig{})

	_, ok := l.Poll()
	assert.False(t, ok)

	require.NoError(t, l.Handle([]byte("1 0 0 1")))
	require.NoError(t, l.Handle([]byte("2 0 0 2 0 0 3")))
	assert.Error(t, l.Handle([]byte("3 0 0")))

	batch, ok := l.Poll()
	require.True(t, ok)
	assert.Equal(t, [][3]float64{{0, 0, 2}, {0, 0, 3}}, batch)

	_, ok = l.Poll()
	assert.False(t, ok, "poll clears the pending batch")

	assert.Equal(t, Stats{Datagrams: 3, Accepted: 2, Malformed: 1, Polled: 1}, l.Stats())
}

func TestListener_StartWithMockSocket(t *testing.T) {
	sock := NewMockUDPSocket([]MockUDPPacket{
		{Data: []byte("1 0.1 0.2 0.9")},
		{Data: []byte("garbage")},
		{Data: []byte("1 0.3 0.2 1.1")},
	})
	sock.ReadError = errors.New("transient")
	factory := &MockUDPSocketFactory{Socket: sock}
	l := NewListener(ListenerConfig{Address: "127.0.0.1:10100", RcvBuf: 1 << 16, SocketFactory: factory})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Start(ctx) }()

	require.Eventually(t, func() bool { return l.Stats().Datagrams == 3 }, 2*time.Second, 5*time.Millisecond)
	batch, ok := l.Poll()
	require.True(t, ok)
	assert.Equal(t, [][3]float64{{0.3, 0.2, 1.1}}, batch)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
	assert.Equal(t, []string{"127.0.0.1:10100"}, factory.ListenCalls)
	assert.Equal(t, 1<<16, sock.ReadBufferSize)
	assert.True(t, sock.Closed)
	assert.Equal(t, uint64(1), l.Stats().Malformed)
}

func TestListener_StartErrors(t *testing.T) {
	l := NewListener(ListenerConfig{Address: "not an address"})
	assert.Error(t, l.Start(context.Background()))

	factory := &MockUDPSocketFactory{Error: errors.New("port in use")}
	l = NewListener(ListenerConfig{Address: "127.0.0.1:10100", SocketFactory: factory})
	err := l.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port in use")
}

func TestListener_RealSocket(t *testing.T) {
	l := NewListener(ListenerConfig{Address: "127.0.0.1:0", ReadTimeout: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Start(ctx) }()

	require.Eventually(t, func() bool { return l.LocalAddr() != nil }, 2*time.Second, 5*time.Millisecond)
	conn, err := net.Dial("udp", l.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		_, _ = conn.Write(FormatDatagram([][3]float64{{0, 0.1, 1.2}}))
		return l.Stats().Accepted > 0
	}, 2*time.Second, 20*time.Millisecond)

	batch, ok := l.Poll()
	require.True(t, ok)
	assert.Equal(t, [][3]float64{{0, 0.1, 1.2}}, batch)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func writePCAP(t *testing.T, path string, packets []struct {
	port    uint16
	payload string
	at      time.Duration
}) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))

	base := time.Unix(1700000000, 0)
	for _, p := range packets {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
			DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.IPv4(192, 168, 1, 10),
			DstIP:    net.IPv4(192, 168, 1, 20),
		}
		udp := &layers.UDP{SrcPort: 40000, DstPort: layers.UDPPort(p.port)}
		require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(p.payload)))
		data := buf.Bytes()
		ci := gopacket.CaptureInfo{Timestamp: base.Add(p.at), CaptureLength: len(data), Length: len(data)}
		require.NoError(t, w.WritePacket(ci, data))
	}
}

func TestReadPCAPFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proposals.pcap")
	writePCAP(t, path, []struct {
		port    uint16
		payload string
		at      time.Duration
	}{
		{10100, "1 0 0 1", 0},
		{9999, "1 5 5 5", 100 * time.Millisecond},
		{10100, "not a datagram", 250 * time.Millisecond},
		{10100, "2 0.1 0 1 0.2 0 1", 400 * time.Millisecond},
	})

	l := NewListener(ListenerConfig{})
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	n, err := ReadPCAPFile(context.Background(), path, l, ReplayOptions{Port: 10100, Realtime: true, Clock: clock})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, uint64(1), l.Stats().Malformed)
	ms := time.Millisecond
	assert.Equal(t, []time.Duration{100 * ms, 100 * ms, 50 * ms, 100 * ms, 50 * ms}, clock.Sleeps())

	batch, ok := l.Poll()
	require.True(t, ok)
	assert.Equal(t, [][3]float64{{0.1, 0, 1}, {0.2, 0, 1}}, batch)

	all := NewListener(ListenerConfig{})
	n, err = ReadPCAPFile(context.Background(), path, all, ReplayOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestReadPCAPFile_Errors(t *testing.T) {
	l := NewListener(ListenerConfig{})
	_, err := ReadPCAPFile(context.Background(), filepath.Join(t.TempDir(), "missing.pcap"), l, ReplayOptions{})
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.pcap")
	require.NoError(t, os.WriteFile(bad, []byte("not a pcap"), 0644))
	_, err = ReadPCAPFile(context.Background(), bad, l, ReplayOptions{})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	good := filepath.Join(t.TempDir(), "good.pcap")
	writePCAP(t, good, []struct {
		port    uint16
		payload string
		at      time.Duration
	}{{10100, "1 0 0 1", 0}})
	_, err = ReadPCAPFile(ctx, good, l, ReplayOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

// cancelClock cancels its context on the first Sleep.
type cancelClock struct {
	*timeutil.MockClock
	cancel context.CancelFunc
}

func (c *cancelClock) Sleep(d time.Duration) {
	c.MockClock.Sleep(d)
	c.cancel()
}

func TestReadPCAPFile_CancelDuringLongGap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gap.pcap")
	writePCAP(t, path, []struct {
		port    uint16
		payload string
		at      time.Duration
	}{
		{10100, "1 0 0 1", 0},
		{10100, "1 0 0 2", 10 * time.Minute},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := &cancelClock{MockClock: timeutil.NewMockClock(time.Unix(0, 0)), cancel: cancel}

	l := NewListener(ListenerConfig{})
	n, err := ReadPCAPFile(ctx, path, l, ReplayOptions{Realtime: true, Clock: clock})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, n)
	assert.Equal(t, []time.Duration{replayStep}, clock.Sleeps())

	batch, ok := l.Poll()
	require.True(t, ok)
	assert.Equal(t, [][3]float64{{0, 0, 1}}, batch)
}
