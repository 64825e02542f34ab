// Command tracker fuses detection streams from several sensors into one set
// of tracked objects. Detections arrive as JSON batches over UDP, a serial
// port or standard input; snapshots are stored in SQLite and exposed on the
// /debug/ HTTP routes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/banshee-data/objectfusion/internal/config"
	"github.com/banshee-data/objectfusion/internal/engine"
	"github.com/banshee-data/objectfusion/internal/input"
	"github.com/banshee-data/objectfusion/internal/monitoring"
	"github.com/banshee-data/objectfusion/internal/source"
	"github.com/banshee-data/objectfusion/internal/tf"
	"github.com/banshee-data/objectfusion/internal/timeutil"
	"github.com/banshee-data/objectfusion/internal/tracker"
	"github.com/banshee-data/objectfusion/internal/trackstore"
	"github.com/banshee-data/objectfusion/internal/version"
)

var (
	configFile    = flag.String("config", "", "Path to the tracker tuning JSON (default: built-in defaults)")
	dbFile        = flag.String("db", "tracks.db", "Path to the SQLite track store (empty disables persistence)")
	serialPort    = flag.String("serial", "", "Serial port delivering JSON detection lines")
	serialChannel = flag.String("serial-channel", "radar", "Channel for serial batches that name none")
	baudRate      = flag.Int("baud", 115200, "Serial baud rate")
	udpAddr       = flag.String("udp", "", "UDP address receiving JSON detection datagrams, e.g. :2370")
	udpChannel    = flag.String("udp-channel", "lidar", "Channel for UDP batches that name none")
	readStdin     = flag.Bool("stdin", false, "Read JSON detection lines from standard input")
	stdinChannel  = flag.String("stdin-channel", "lidar", "Channel for stdin batches that name none")
	listen        = flag.String("listen", ":8082", "HTTP listen address for the debug routes")
	grpcListen    = flag.String("grpc-listen", "", "gRPC health service address (empty disables)")
	retention     = flag.Duration("retention", 24*time.Hour, "Delete stored snapshots older than this (0 keeps everything)")
	tfHistory     = flag.Duration("tf-history", 10*time.Second, "Ego pose history kept for transform lookups")
	verbose       = flag.Bool("v", false, "Enable diagnostic logging")
	traceLog      = flag.Bool("trace", false, "Enable per-cycle trace logging")
	showVersion   = flag.Bool("version", false, "Print the build version and exit")
)

// healthService is the gRPC health service name reported by the tracker.
const healthService = "objectfusion.Tracker"

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if *serialPort == "" && *udpAddr == "" && !*readStdin {
		log.Fatal("no detection source: set -serial, -udp or -stdin")
	}
	setupLogging(*verbose, *traceLog)
	log.Printf("tracker %s", version.String())

	tuning := config.EmptyTuningConfig()
	if *configFile != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(*configFile); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	cfg, err := engine.ConfigFromTuning(tuning)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	transforms := tf.NewBuffer(*tfHistory)
	if err := transforms.LoadStatic(tuning.StaticTransforms); err != nil {
		log.Fatalf("invalid static transform: %v", err)
	}

	var (
		store *trackstore.Store
		sink  engine.Sink
	)
	if *dbFile != "" {
		store, err = trackstore.Open(*dbFile)
		if err != nil {
			log.Fatalf("failed to open track store: %v", err)
		}
		defer store.Close()
		sink = store
	}

	eng, err := engine.New(cfg, transforms, sink)
	if err != nil {
		log.Fatalf("failed to create engine: %v", err)
	}
	runner := engine.NewRunner(eng, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	goRun := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("%s stopped: %v", name, err)
				stop()
				return
			}
			log.Printf("%s routine terminated", name)
		}()
	}

	goRun("engine", runner.Run)

	dispatch := func(channel string) source.Handler {
		return source.Dispatcher{
			Submitter:      runner,
			Ego:            transforms,
			EgoFrameID:     cfg.EgoFrameID,
			WorldFrameID:   cfg.WorldFrameID,
			DefaultChannel: channel,
		}.Handle
	}

	if *udpAddr != "" {
		goRun("udp source", func(ctx context.Context) error {
			st, err := source.ListenUDP(ctx, *udpAddr, dispatch(*udpChannel))
			log.Printf("udp source: %+v", st)
			return err
		})
	}
	if *serialPort != "" {
		port, err := source.OpenSerial(*serialPort, source.PortOptions{BaudRate: *baudRate})
		if err != nil {
			log.Fatalf("failed to open serial port: %v", err)
		}
		goRun("serial source", func(ctx context.Context) error {
			return readUntilDone(ctx, port, "serial "+*serialPort, dispatch(*serialChannel))
		})
	}
	if *readStdin {
		goRun("stdin source", func(ctx context.Context) error {
			st, err := source.ReadLines(ctx, os.Stdin, "stdin", dispatch(*stdinChannel))
			log.Printf("stdin source: %+v", st)
			return err
		})
	}

	if store != nil && *retention > 0 {
		goRun("retention", func(ctx context.Context) error {
			return enforceRetention(ctx, store, timeutil.RealClock{}, *retention, time.Minute)
		})
	}

	if *grpcListen != "" {
		goRun("grpc", func(ctx context.Context) error {
			return serveHealth(ctx, *grpcListen, runner, 10*cfg.PublishPeriod())
		})
	}

	goRun("http", func(ctx context.Context) error {
		mux := http.NewServeMux()
		runner.AttachAdminRoutes(mux)
		if store != nil {
			if err := store.AttachAdminRoutes(mux); err != nil {
				return err
			}
		}
		return serveHTTP(ctx, *listen, mux)
	})

	wg.Wait()
	if st, err := runner.Stats(context.Background()); err == nil {
		log.Printf("final: cycles=%d publications=%d tracks_created=%d", st.Cycles, st.Publications, st.Tracker.Created)
	}
}

// setupLogging routes the per-package ops streams to stderr and enables the
// diag and trace streams on request.
func setupLogging(verbose, trace bool) {
	var diag, tr io.Writer
	if verbose {
		diag = os.Stderr
	}
	if trace {
		tr = os.Stderr
	}
	engine.SetLogWriters(os.Stderr, diag, tr)
	tracker.SetLogWriters(os.Stderr, diag, tr)
	trackstore.SetLogWriters(os.Stderr, diag, tr)
	input.SetLogWriters(input.LogWriters{Ops: os.Stderr, Diag: diag, Trace: tr})
	monitoring.SetLogger(log.New(os.Stderr, "[source] ", log.LstdFlags|log.Lmicroseconds).Printf)
}

// readUntilDone reads lines from rc until it fails or ctx ends, closing rc
// on cancellation to unblock the read.
func readUntilDone(ctx context.Context, rc io.ReadCloser, origin string, h source.Handler) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		rc.Close()
	}()
	st, err := source.ReadLines(ctx, rc, origin, h)
	log.Printf("%s: %+v", origin, st)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// enforceRetention deletes snapshots older than keep, now and then every
// interval, until ctx ends.
func enforceRetention(ctx context.Context, store *trackstore.Store, clock timeutil.Clock, keep, every time.Duration) error {
	ticker := clock.NewTicker(every)
	defer ticker.Stop()
	for {
		if _, err := store.DeleteBefore(ctx, clock.Now().Add(-keep)); err != nil && ctx.Err() == nil {
			log.Printf("retention: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
		}
	}
}

func serveHTTP(ctx context.Context, addr string, h http.Handler) error {
	server := &http.Server{Addr: addr, Handler: h}
	errc := make(chan error, 1)
	go func() {
		log.Printf("HTTP debug server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	return ctx.Err()
}

func serveHealth(ctx context.Context, addr string, runner *engine.Runner, maxAge time.Duration) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	hs := health.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	w := &healthWatcher{srv: hs, service: healthService, maxAge: maxAge, stats: runner.Stats, clock: timeutil.RealClock{}}
	go w.run(ctx, time.Second)

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		gs.GracefulStop()
	}()
	log.Printf("gRPC health service listening on %s", lis.Addr())
	if err := gs.Serve(lis); err != nil {
		return err
	}
	return ctx.Err()
}
