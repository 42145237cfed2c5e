// Command pf3dtracker tracks a coloured ball in 3D from a camera, an image
// directory or a synthetic scene, and publishes the estimates.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/pf3d/internal/attention"
	"github.com/banshee-data/pf3d/internal/config"
	"github.com/banshee-data/pf3d/internal/db"
	"github.com/banshee-data/pf3d/internal/framesource"
	"github.com/banshee-data/pf3d/internal/monitor"
	"github.com/banshee-data/pf3d/internal/monitoring"
	"github.com/banshee-data/pf3d/internal/proposals"
	"github.com/banshee-data/pf3d/internal/publish"
	"github.com/banshee-data/pf3d/internal/timeutil"
	"github.com/banshee-data/pf3d/internal/tracker"
	"github.com/banshee-data/pf3d/internal/tracker/appearance"
	"github.com/banshee-data/pf3d/internal/tracker/geometry"
	"github.com/banshee-data/pf3d/internal/version"
)

var (
	configPath  = flag.String("config", "", "Tracker config JSON (default: "+config.DefaultConfigPath+")")
	sourceKind  = flag.String("source", "synthetic", "Frame source: dir, synthetic or capture")
	framesDir   = flag.String("frames", "", "Image directory for -source dir")
	loopFrames  = flag.Bool("loop", false, "Restart the image directory when exhausted")
	frameCount  = flag.Int("count", 0, "Number of synthetic frames (0 runs until interrupted)")
	interval    = flag.Duration("interval", 40*time.Millisecond, "Pacing between dir or synthetic frames")
	device      = flag.String("device", "0", "Capture device index or video file for -source capture")
	propsListen = flag.String("proposals-listen", "", "UDP address for proposal datagrams (e.g. :5005)")
	propsPCAP   = flag.String("proposals-pcap", "", "Replay proposal datagrams from a pcap file")
	propsPort   = flag.Int("proposals-port", 5005, "Destination UDP port of proposals in -proposals-pcap")
	grpcListen  = flag.String("grpc-listen", "", "gRPC estimate stream address (e.g. localhost:50061)")
	httpListen  = flag.String("http-listen", "", "HTTP monitor address (e.g. :8080)")
	dbPath      = flag.String("db", "", "SQLite database recording runs and estimates")
	plotsDir    = flag.String("plots", "", "Write trajectory plots to this directory on exit")
	saveImages  = flag.String("save-images", "", "Write annotated frames to this directory (overrides save_images_dir)")
	serialPort  = flag.String("serial", "", "Serial device for attention output")
	serialBaud  = flag.Int("serial-baud", 115200, "Attention output baud rate")
	seed        = flag.Uint64("seed", 0, "Random seed (overrides config; 0 keeps the config value)")
	diag        = flag.Bool("diag", false, "Log per-frame estimates")
	trace       = flag.Bool("trace", false, "Log high-frequency tracker detail")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	writers := monitoring.LogWriters{Ops: os.Stderr}
	if *diag {
		writers.Diag = os.Stderr
	}
	if *trace {
		writers.Trace = os.Stderr
	}
	monitoring.SetLogWriters(writers)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *seed != 0 {
		cfg.Seed = seed
	}
	if *saveImages != "" {
		cfg.SaveImagesDir = saveImages
	}

	if *sourceKind == "synthetic" && cfg.GetColorTemplateHistogram() == "" && cfg.GetColorTemplateImage() == "" {
		path, err := writeSyntheticHistogram(cfg, os.TempDir())
		if err != nil {
			log.Fatalf("failed to build synthetic colour model: %v", err)
		}
		cfg.ColorTemplateHistogram = &path
	}

	models, err := tracker.LoadModels(cfg)
	if err != nil {
		log.Fatalf("failed to load models: %v", err)
	}
	t, err := tracker.New(tracker.ConfigFromTracker(cfg), models)
	if err != nil {
		log.Fatalf("failed to create tracker: %v", err)
	}

	src, sourceName, err := openSource(*sourceKind, models.Camera, timeutil.RealClock{})
	if err != nil {
		log.Fatalf("failed to open frame source: %v", err)
	}
	defer src.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	var wg sync.WaitGroup

	var sinks []tracker.Sink
	var props tracker.ProposalSource

	var listener *proposals.Listener
	if *propsListen != "" || *propsPCAP != "" {
		listener = proposals.NewListener(proposals.ListenerConfig{Address: *propsListen})
		props = listener
	}
	if *propsListen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Start(ctx); err != nil && err != context.Canceled {
				log.Printf("proposal listener error: %v", err)
			}
		}()
	}
	if *propsPCAP != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := proposals.ReadPCAPFile(ctx, *propsPCAP, listener, proposals.ReplayOptions{Port: *propsPort, Realtime: true})
			if err != nil && err != context.Canceled {
				log.Printf("proposal replay error: %v", err)
			}
			monitoring.Opsf("replayed %d proposal datagrams from %s", n, *propsPCAP)
		}()
	}

	counts := &runCounts{}
	sinks = append(sinks, counts)
	mon := newMonitor(*httpListen)
	if mon != nil {
		sinks = append(sinks, mon)
	}

	var store *db.DB
	if *dbPath != "" {
		store, err = db.Open(*dbPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer store.Close()
		rec, err := store.NewRecorder(sourceName, version.Version, cfg)
		if err != nil {
			log.Fatalf("failed to start run: %v", err)
		}
		defer func() {
			if err := rec.Close(); err != nil {
				log.Printf("failed to close run: %v", err)
			}
		}()
		monitoring.Opsf("recording run %s to %s", rec.Run().ID, *dbPath)
		sinks = append(sinks, rec)
	}

	var pub *publish.Publisher
	if *grpcListen != "" {
		pcfg := publish.DefaultConfig()
		pcfg.ListenAddr = *grpcListen
		pub = publish.NewPublisher(pcfg)
		if err := pub.Start(); err != nil {
			log.Fatalf("failed to start estimate stream: %v", err)
		}
		defer pub.Stop()
		sinks = append(sinks, pub)
	}

	if *serialPort != "" {
		sink, err := attention.Open(*serialPort, attention.PortOptions{BaudRate: *serialBaud})
		if err != nil {
			log.Fatalf("failed to open attention output: %v", err)
		}
		defer sink.Close()
		sinks = append(sinks, sink)
	}

	if dir := cfg.GetSaveImagesDir(); dir != "" {
		saver, err := monitor.NewFrameSaver(dir)
		if err != nil {
			log.Fatalf("failed to create image directory: %v", err)
		}
		sinks = append(sinks, saver)
	}

	var plotter *monitor.TrajectoryPlotter
	if *plotsDir != "" {
		plotter = monitor.NewTrajectoryPlotter()
		sinks = append(sinks, plotter)
	}

	if mon != nil {
		ws, err := monitor.NewWebServer(monitor.WebServerConfig{
			Address: *httpListen,
			Monitor: mon,
			DB:      store,
			Extra:   extraStats(listener, pub),
		})
		if err != nil {
			log.Fatalf("failed to create web server: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Start(ctx); err != nil {
				log.Printf("HTTP server error: %v", err)
			}
		}()
	}

	monitoring.Opsf("%s: tracking from %s", version.String(), sourceName)
	if err := t.Run(ctx, src, props, sinks...); err != nil && err != context.Canceled {
		log.Printf("tracker stopped: %v", err)
	}
	stop()
	wg.Wait()

	if plotter != nil && plotter.Len() > 0 {
		if err := plotter.Save(*plotsDir); err != nil {
			log.Printf("failed to write plots: %v", err)
		} else {
			monitoring.Opsf("wrote plots to %s", *plotsDir)
		}
	}
	monitoring.Opsf("processed %d frames: %d seeing, %d reinitialisations", counts.frames, counts.seeing, counts.reinits)
}

// newMonitor returns the sink behind the web server, or nil when addr is
// empty so frames are not JPEG-encoded for nobody.
func newMonitor(addr string) *monitor.Monitor {
	if addr == "" {
		return nil
	}
	return monitor.NewMonitor(0)
}

// runCounts tallies estimates for the exit summary.
type runCounts struct {
	frames, seeing, reinits uint64
}

func (c *runCounts) Emit(_ context.Context, est tracker.Estimate, _ *image.RGBA) error {
	c.frames++
	if est.Seeing {
		c.seeing++
	}
	if est.Reinitialized {
		c.reinits++
	}
	return nil
}

func loadConfig(path string) (*config.TrackerConfig, error) {
	if path == "" {
		path = config.DefaultConfigPath
	}
	return config.LoadTrackerConfig(path)
}

// openSource opens the frame source named kind and returns a label for it.
func openSource(kind string, cam geometry.Camera, clock timeutil.Clock) (framesource.Source, string, error) {
	switch kind {
	case "dir":
		if *framesDir == "" {
			return nil, "", fmt.Errorf("-frames is required for -source dir")
		}
		src, err := framesource.NewDirSource(*framesDir,
			framesource.WithLoop(*loopFrames),
			framesource.WithFrameInterval(*interval),
			framesource.WithClock(clock))
		if err != nil {
			return nil, "", err
		}
		return src, "dir:" + *framesDir, nil
	case "synthetic":
		sc := framesource.DefaultSyntheticConfig(cam)
		sc.Frames = *frameCount
		sc.Interval = *interval
		return framesource.NewSyntheticSource(sc, clock), "synthetic", nil
	case "capture":
		src, err := framesource.OpenCapture(*device, clock)
		if err != nil {
			return nil, "", err
		}
		return src, "capture:" + *device, nil
	default:
		return nil, "", fmt.Errorf("unknown source %q: expected dir, synthetic or capture", kind)
	}
}

// writeSyntheticHistogram stores the colour model of the synthetic ball so a
// demo run needs no training image.
func writeSyntheticHistogram(cfg *config.TrackerConfig, dir string) (string, error) {
	y, u, v := cfg.GetBins()
	ball := framesource.DefaultSyntheticConfig(geometry.Camera{}).Ball
	patch := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for i := 0; i < 16*16; i++ {
		patch.SetRGBA(i%16, i/16, ball)
	}
	h, err := appearance.ComputeTemplateHistogram(patch, appearance.Bins{Y: y, U: u, V: v})
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("pf3d-synthetic-%dx%dx%d.hist", y, u, v))
	if err := appearance.SaveHistogramFile(path, h); err != nil {
		return "", err
	}
	return path, nil
}

func extraStats(l *proposals.Listener, p *publish.Publisher) func() map[string]interface{} {
	return func() map[string]interface{} {
		out := map[string]interface{}{}
		if l != nil {
			out["proposals"] = l.Stats()
		}
		if p != nil {
			out["publisher"] = p.Stats()
		}
		return out
	}
}
