package input

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/objectfusion/internal/config"
)

var (
	ErrNoChannels       = errors.New("no input channels configured")
	ErrDuplicateChannel = errors.New("duplicate input channel")
	ErrInvalidChannel   = errors.New("invalid input channel")
	ErrInvalidConfig    = errors.New("invalid input config")
)

// ChannelConfig describes one detection source.
type ChannelConfig struct {
	ID          string
	Topic       string // identity of the upstream source
	DisplayName string
	ShortName   string // used in compact diagnostics

	// CanSpawn allows unmatched detections from this channel to create tracks.
	CanSpawn bool
	// Blocking channels hold back readiness until their data has caught up.
	Blocking bool
	// Timeout after which a silent blocking channel stops holding back
	// readiness. Zero waits forever.
	Timeout time.Duration
}

// Config is the immutable channel set of a Manager.
type Config struct {
	Channels     []ChannelConfig
	MaxQueueSize int // per channel; the oldest batch is dropped beyond it
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	chs := cfg.GetInputChannels()
	out := Config{
		Channels:     make([]ChannelConfig, 0, len(chs)),
		MaxQueueSize: cfg.GetMaxQueueSize(),
	}
	for _, ch := range chs {
		out.Channels = append(out.Channels, ChannelConfig{
			ID:          ch.Name,
			Topic:       ch.Topic,
			DisplayName: ch.GetDisplayName(),
			ShortName:   ch.GetShortName(),
			CanSpawn:    ch.GetCanSpawnNewTracker(),
			Blocking:    ch.GetBlocking(),
			Timeout:     ch.GetTimeout(),
		})
	}
	return out
}

// Validate reports the first configuration error.
func (c Config) Validate() error {
	if len(c.Channels) == 0 {
		return ErrNoChannels
	}
	if c.MaxQueueSize < 1 {
		return fmt.Errorf("%w: max queue size %d", ErrInvalidConfig, c.MaxQueueSize)
	}
	seen := make(map[string]bool, len(c.Channels))
	for i, ch := range c.Channels {
		switch {
		case ch.ID == "":
			return fmt.Errorf("%w: channel %d has no id", ErrInvalidChannel, i)
		case ch.Topic == "":
			return fmt.Errorf("%w: channel %q has no topic", ErrInvalidChannel, ch.ID)
		case ch.Timeout < 0:
			return fmt.Errorf("%w: channel %q has negative timeout", ErrInvalidChannel, ch.ID)
		case seen[ch.ID]:
			return fmt.Errorf("%w: %q", ErrDuplicateChannel, ch.ID)
		}
		seen[ch.ID] = true
	}
	return nil
}
