package proposals

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/pf3d/internal/monitoring"
)

// Stats counts received datagrams.
type Stats struct {
	Datagrams uint64
	Accepted  uint64
	Malformed uint64
	Polled    uint64
}

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	Address       string
	RcvBuf        int
	ReadTimeout   time.Duration // deadline per read so cancellation is observed
	SocketFactory UDPSocketFactory
}

// Listener receives proposal datagrams over UDP and keeps the latest valid
// batch. It implements the tracker's proposal source.
type Listener struct {
	address     string
	rcvBuf      int
	readTimeout time.Duration
	factory     UDPSocketFactory

	mu     sync.Mutex
	conn   UDPSocket
	latest [][3]float64
	fresh  bool
	stats  Stats
}

// NewListener creates a listener; call Start to begin receiving.
func NewListener(cfg ListenerConfig) *Listener {
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	factory := cfg.SocketFactory
	if factory == nil {
		factory = RealUDPSocketFactory{}
	}
	return &Listener{
		address:     cfg.Address,
		rcvBuf:      cfg.RcvBuf,
		readTimeout: timeout,
		factory:     factory,
	}
}

// Start receives datagrams until ctx is cancelled or the socket fails.
func (l *Listener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := l.factory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Opsf("Warning: failed to set proposal receive buffer to %d: %v", l.rcvBuf, err)
		}
	}
	monitoring.Opsf("proposal listener started on %s", conn.LocalAddr())

	buf := make([]byte, 65536)
	for {
		if err := ctx.Err(); err != nil {
			monitoring.Opsf("proposal listener stopping: %v", err)
			return err
		}
		conn.SetReadDeadline(time.Now().Add(l.readTimeout))

		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			monitoring.Opsf("proposal read error: %v", err)
			continue
		}
		if err := l.Handle(buf[:n]); err != nil {
			monitoring.Diagf("dropping datagram from %v: %v", from, err)
		}
	}
}

// Handle parses one datagram and, if valid, replaces the pending batch.
func (l *Listener) Handle(payload []byte) error {
	batch, err := ParseDatagram(payload)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Datagrams++
	if err != nil {
		l.stats.Malformed++
		return err
	}
	l.stats.Accepted++
	l.latest = batch
	l.fresh = true
	return nil
}

// Poll returns the pending batch and clears it. It never blocks on the
// network.
func (l *Listener) Poll() ([][3]float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.fresh {
		return nil, false
	}
	batch := l.latest
	l.latest, l.fresh = nil, false
	l.stats.Polled++
	return batch, true
}

// Stats returns a snapshot of the counters.
func (l *Listener) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// LocalAddr is the bound address, or nil before Start.
func (l *Listener) LocalAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Close closes the socket, ending Start.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
