package proposals

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/pf3d/internal/monitoring"
	"github.com/banshee-data/pf3d/internal/timeutil"
)

// replayStep bounds each pacing sleep so cancellation is seen during long
// capture gaps.
const replayStep = 100 * time.Millisecond

// ReplayOptions controls ReadPCAPFile.
type ReplayOptions struct {
	// Port selects UDP datagrams by destination port; 0 accepts any.
	Port int
	// Realtime paces delivery by the capture timestamps using Clock.
	Realtime bool
	Clock    timeutil.Clock
}

// ReadPCAPFile replays recorded proposal datagrams from a classic pcap file
// into l. It returns the number of UDP payloads delivered.
func ReadPCAPFile(ctx context.Context, path string, l *Listener, opts ReplayOptions) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("failed to read PCAP header %s: %w", path, err)
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	src := gopacket.NewPacketSource(r, r.LinkType())
	delivered, malformed := 0, 0
	var last time.Time
	for {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		packet, err := src.NextPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			return delivered, fmt.Errorf("pcap %s: packet %d: %w", path, delivered+1, err)
		}

		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if opts.Port != 0 && int(udp.DstPort) != opts.Port {
			continue
		}

		ts := packet.Metadata().Timestamp
		if opts.Realtime && !last.IsZero() && ts.After(last) {
			if err := sleepContext(ctx, clock, ts.Sub(last)); err != nil {
				return delivered, err
			}
		}
		last = ts

		if err := l.Handle(udp.Payload); err != nil {
			malformed++
		}
		delivered++
	}
	monitoring.Opsf("pcap %s: replayed %d proposal datagrams (%d malformed)", path, delivered, malformed)
	return delivered, nil
}

// sleepContext sleeps for d in steps of at most replayStep, returning early
// with ctx.Err() once ctx is done.
func sleepContext(ctx context.Context, clock timeutil.Clock, d time.Duration) error {
	for d > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		step := min(d, replayStep)
		clock.Sleep(step)
		d -= step
	}
	return ctx.Err()
}
