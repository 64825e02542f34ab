// Command replay-pcap runs recorded detection traffic through the tracking
// engine offline. Input is a PCAP of UDP detection datagrams or a file of
// JSON lines; snapshots are written to a track store.
//
// Time is taken from the batch stamps, so a replay produces the same tracks
// however fast it runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/objectfusion/internal/config"
	"github.com/banshee-data/objectfusion/internal/engine"
	"github.com/banshee-data/objectfusion/internal/source"
	"github.com/banshee-data/objectfusion/internal/tf"
	"github.com/banshee-data/objectfusion/internal/trackstore"
	"github.com/banshee-data/objectfusion/internal/types"
)

// Config holds the replay settings.
type Config struct {
	PCAPFile   string
	LinesFile  string
	UDPPort    int
	ConfigFile string
	DBPath     string
	Channel    string // used for batches that name none
	Verbose    bool
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.PCAPFile, "pcap", "", "PCAP file of UDP detection datagrams")
	flag.StringVar(&cfg.LinesFile, "lines", "", "File of JSON detection lines (alternative to -pcap)")
	flag.IntVar(&cfg.UDPPort, "port", 2370, "UDP destination port to extract from the PCAP (0 for any)")
	flag.StringVar(&cfg.ConfigFile, "config", "", "Path to the tracker tuning JSON")
	flag.StringVar(&cfg.DBPath, "db", "replay.db", "Track store to write snapshots to")
	flag.StringVar(&cfg.Channel, "channel", "lidar", "Channel for batches that name none")
	flag.BoolVar(&cfg.Verbose, "v", false, "Enable diagnostic logging")
	flag.Parse()

	if (cfg.PCAPFile == "") == (cfg.LinesFile == "") {
		log.Fatal("exactly one of -pcap or -lines is required")
	}
	if cfg.Verbose {
		engine.SetLogWriters(os.Stderr, os.Stderr, nil)
	}

	res, err := run(context.Background(), cfg)
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}
	fmt.Printf("records=%d decoded=%d malformed=%d rejected=%d\n",
		res.Source.Records, res.Source.Decoded, res.Source.Malformed, res.Source.Rejected)
	fmt.Printf("cycles=%d skipped=%d publications=%d tracks_created=%d confirmed=%d\n",
		res.Engine.Cycles, res.Engine.Skipped, res.Engine.Publications,
		res.Engine.Tracker.Created, res.Engine.Tracker.Confirmed)
}

// Result summarises a replay.
type Result struct {
	Source source.Stats
	Engine engine.Stats
}

func run(ctx context.Context, cfg Config) (Result, error) {
	var res Result
	tuning := config.EmptyTuningConfig()
	if cfg.ConfigFile != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(cfg.ConfigFile); err != nil {
			return res, err
		}
	}
	ecfg, err := engine.ConfigFromTuning(tuning)
	if err != nil {
		return res, err
	}
	transforms := tf.NewBuffer(0)
	if err := transforms.LoadStatic(tuning.StaticTransforms); err != nil {
		return res, err
	}

	store, err := trackstore.Open(cfg.DBPath)
	if err != nil {
		return res, err
	}
	defer store.Close()

	eng, err := engine.New(ecfg, transforms, store)
	if err != nil {
		return res, err
	}
	h := source.Dispatcher{
		Submitter:      &offline{eng: eng},
		Ego:            transforms,
		EgoFrameID:     ecfg.EgoFrameID,
		WorldFrameID:   ecfg.WorldFrameID,
		DefaultChannel: cfg.Channel,
	}.Handle

	path := cfg.PCAPFile
	if path == "" {
		path = cfg.LinesFile
	}
	f, err := os.Open(path)
	if err != nil {
		return res, err
	}
	defer f.Close()

	if cfg.PCAPFile != "" {
		res.Source, err = source.ReadPCAP(ctx, f, cfg.UDPPort, h)
	} else {
		res.Source, err = source.ReadLines(ctx, f, path, h)
	}
	res.Engine = eng.Stats()
	return res, err
}

// offline drives the engine directly, using each batch stamp as the current
// time.
type offline struct {
	eng *engine.Engine
}

func (o *offline) Submit(ctx context.Context, channel string, b types.DetectionBatch) error {
	if err := o.eng.OnDetectionBatch(channel, b); err != nil {
		return err
	}
	if _, err := o.eng.OnTriggerCycle(ctx, b.Stamp); err != nil {
		return err
	}
	if o.eng.Config().EnableDelayCompensation {
		if _, err := o.eng.OnPublishTick(ctx, b.Stamp); err != nil {
			return err
		}
	}
	return nil
}
