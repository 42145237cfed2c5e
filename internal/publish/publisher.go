// Package publish streams tracker estimates to gRPC subscribers.
package publish

import (
	"context"
	"fmt"
	"image"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/pf3d/internal/monitoring"
	"github.com/banshee-data/pf3d/internal/tracker"
)

// Config holds configuration for the estimate publisher.
type Config struct {
	// ListenAddr is the gRPC address, e.g. "localhost:50061".
	ListenAddr string
	// MaxClients caps concurrent subscribers; 0 means unlimited.
	MaxClients int
	// QueueSize is the depth of the broadcast queue.
	QueueSize int
	// ClientQueueSize is the depth of each subscriber's queue.
	ClientQueueSize int
}

// DefaultConfig returns the default publisher configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      "localhost:50061",
		MaxClients:      8,
		QueueSize:       64,
		ClientQueueSize: 16,
	}
}

// Publisher fans estimates out to every connected subscriber. Slow
// subscribers lose estimates rather than stalling the tracker.
type Publisher struct {
	config   Config
	server   *grpc.Server
	listener net.Listener

	estCh     chan tracker.Estimate
	clients   map[string]*clientStream
	clientsMu sync.RWMutex

	published   atomic.Uint64
	dropped     atomic.Uint64
	clientCount atomic.Int32

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type clientStream struct {
	id         string
	onlySeeing bool
	ch         chan tracker.Estimate
}

// NewPublisher creates a Publisher; call Start or Serve to accept clients.
func NewPublisher(cfg Config) *Publisher {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.ClientQueueSize <= 0 {
		cfg.ClientQueueSize = def.ClientQueueSize
	}
	return &Publisher{
		config:  cfg,
		estCh:   make(chan tracker.Estimate, cfg.QueueSize),
		clients: make(map[string]*clientStream),
		stopCh:  make(chan struct{}),
	}
}

// Start listens on Config.ListenAddr and serves in the background.
func (p *Publisher) Start() error {
	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return p.Serve(lis)
}

// Serve serves on an existing listener in the background.
func (p *Publisher) Serve(lis net.Listener) error {
	if p.running.Load() {
		return fmt.Errorf("publisher already running")
	}
	p.listener = lis
	p.server = grpc.NewServer()
	p.server.RegisterService(&serviceDesc, p)
	p.running.Store(true)

	p.wg.Add(2)
	go p.broadcastLoop()
	go func() {
		defer p.wg.Done()
		monitoring.Opsf("estimate stream listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			monitoring.Opsf("gRPC server error: %v", err)
		}
	}()
	return nil
}

// Stop ends every stream and shuts the server down.
func (p *Publisher) Stop() {
	if !p.running.Swap(false) {
		return
	}
	close(p.stopCh)
	if p.server != nil {
		p.server.GracefulStop()
	}
	p.wg.Wait()
	monitoring.Opsf("estimate stream stopped: %d published, %d dropped", p.published.Load(), p.dropped.Load())
}

// Addr is the listening address, or nil before Serve.
func (p *Publisher) Addr() net.Addr {
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// Publish queues est for broadcast without blocking.
func (p *Publisher) Publish(est tracker.Estimate) {
	if !p.running.Load() {
		return
	}
	select {
	case p.estCh <- est:
		p.published.Add(1)
	default:
		n := p.dropped.Add(1)
		monitoring.Diagf("estimate %d dropped: broadcast queue full (total dropped %d)", est.Seq, n)
	}
}

// Emit publishes est; it implements tracker.Sink.
func (p *Publisher) Emit(_ context.Context, est tracker.Estimate, _ *image.RGBA) error {
	p.Publish(est)
	return nil
}

func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case est := <-p.estCh:
			p.clientsMu.RLock()
			for _, c := range p.clients {
				if c.onlySeeing && !est.Seeing {
					continue
				}
				select {
				case c.ch <- est:
				default:
					p.dropped.Add(1)
				}
			}
			p.clientsMu.RUnlock()
		}
	}
}

func (p *Publisher) addClient(onlySeeing bool) (*clientStream, error) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if p.config.MaxClients > 0 && len(p.clients) >= p.config.MaxClients {
		return nil, status.Errorf(codes.ResourceExhausted, "subscriber limit %d reached", p.config.MaxClients)
	}
	c := &clientStream{
		id:         uuid.NewString(),
		onlySeeing: onlySeeing,
		ch:         make(chan tracker.Estimate, p.config.ClientQueueSize),
	}
	p.clients[c.id] = c
	n := p.clientCount.Add(1)
	monitoring.Opsf("subscriber connected: %s (total: %d)", c.id, n)
	return c, nil
}

func (p *Publisher) removeClient(id string) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if _, ok := p.clients[id]; ok {
		delete(p.clients, id)
		n := p.clientCount.Add(-1)
		monitoring.Opsf("subscriber disconnected: %s (remaining: %d)", id, n)
	}
}

// StreamEstimates serves one subscriber until it disconnects or the
// publisher stops. The request may set "only_seeing".
func (p *Publisher) StreamEstimates(req *structpb.Struct, stream grpc.ServerStream) error {
	onlySeeing := false
	if v, ok := req.GetFields()["only_seeing"]; ok {
		onlySeeing = v.GetBoolValue()
	}
	c, err := p.addClient(onlySeeing)
	if err != nil {
		return err
	}
	defer p.removeClient(c.id)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case est := <-c.ch:
			msg, err := EstimateToStruct(est)
			if err != nil {
				return status.Errorf(codes.Internal, "encode estimate %d: %v", est.Seq, err)
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() Stats {
	return Stats{
		Published: p.published.Load(),
		Dropped:   p.dropped.Load(),
		Clients:   p.clientCount.Load(),
		Running:   p.running.Load(),
	}
}

// Stats contains publisher statistics.
type Stats struct {
	Published uint64
	Dropped   uint64
	Clients   int32
	Running   bool
}

// EstimateToStruct encodes an estimate as a protobuf Struct. Positions are
// metres.
func EstimateToStruct(est tracker.Estimate) (*structpb.Struct, error) {
	att := make([]interface{}, len(est.Attention))
	for i, v := range est.Attention {
		att[i] = v
	}
	return structpb.NewStruct(map[string]interface{}{
		"seq":           float64(est.Seq),
		"timestamp":     est.Timestamp.UTC().Format(time.RFC3339Nano),
		"x":             est.X,
		"y":             est.Y,
		"z":             est.Z,
		"likelihood":    est.Likelihood,
		"u":             est.MeanU,
		"v":             est.MeanV,
		"seeing":        est.Seeing,
		"reinitialized": est.Reinitialized,
		"state":         string(est.State),
		"attention":     att,
		"injected":      float64(est.Injected),
		"cycle_time_ms": float64(est.CycleTime) / float64(time.Millisecond),
	})
}

// EstimateFromStruct decodes the EstimateToStruct encoding.
func EstimateFromStruct(s *structpb.Struct) (tracker.Estimate, error) {
	f := s.GetFields()
	num := func(k string) float64 { return f[k].GetNumberValue() }

	est := tracker.Estimate{
		Seq:           uint64(num("seq")),
		X:             num("x"),
		Y:             num("y"),
		Z:             num("z"),
		Likelihood:    num("likelihood"),
		MeanU:         num("u"),
		MeanV:         num("v"),
		Seeing:        f["seeing"].GetBoolValue(),
		Reinitialized: f["reinitialized"].GetBoolValue(),
		State:         tracker.State(f["state"].GetStringValue()),
		Injected:      int(num("injected")),
		CycleTime:     time.Duration(num("cycle_time_ms") * float64(time.Millisecond)),
	}
	if ts := f["timestamp"].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return tracker.Estimate{}, fmt.Errorf("estimate timestamp: %w", err)
		}
		est.Timestamp = t
	}
	for i, v := range f["attention"].GetListValue().GetValues() {
		if i < len(est.Attention) {
			est.Attention[i] = v.GetNumberValue()
		}
	}
	return est, nil
}
