package tracker

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/objectfusion/internal/association"
	"github.com/banshee-data/objectfusion/internal/config"
	"github.com/banshee-data/objectfusion/internal/tracker/model"
	"github.com/banshee-data/objectfusion/internal/types"
)

// ErrInvalidConfig is returned by NewProcessor and ConfigFromTuning when the
// configuration cannot drive a processor.
var ErrInvalidConfig = errors.New("invalid tracker config")

// Config holds the lifecycle and per-class settings of a Processor.
type Config struct {
	FrameID string // frame of published snapshots

	Models         [types.NumClasses]model.Kind    // estimator variant selected at spawn
	Lifetime       [types.NumClasses]time.Duration // removal age since last update
	ConfidentCount [types.NumClasses]int           // updates required before confirmation

	ConfirmExistenceProbability float64
	MinExistenceProbability     float64

	MinKnownObjectRemovalIoU   float64
	MinUnknownObjectRemovalIoU float64
	DistanceThreshold          float64 // metres; overlap checks are skipped beyond this

	ChannelHistorySize int

	Estimator model.Params
	Matrices  association.Matrices
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) (Config, error) {
	m, err := association.MatricesFromTuning(cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	c := Config{
		FrameID:                     cfg.GetWorldFrameID(),
		ConfirmExistenceProbability: cfg.GetConfirmExistenceProbability(),
		MinExistenceProbability:     cfg.GetMinExistenceProbability(),
		MinKnownObjectRemovalIoU:    cfg.GetMinKnownObjectRemovalIoU(),
		MinUnknownObjectRemovalIoU:  cfg.GetMinUnknownObjectRemovalIoU(),
		DistanceThreshold:           cfg.GetDistanceThreshold(),
		ChannelHistorySize:          cfg.GetChannelHistorySize(),
		Estimator:                   model.ParamsFromTuning(cfg),
		Matrices:                    m,
	}
	for _, class := range types.AllClasses() {
		kind, err := model.ParseKind(cfg.GetTrackerModel(class))
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, class, err)
		}
		c.Models[class] = kind
		c.Lifetime[class] = cfg.GetTrackerLifetimeFor(class)
		c.ConfidentCount[class] = cfg.GetConfidentCountThreshold(class)
	}
	return c, c.Validate()
}

// DefaultConfig returns the built-in processor configuration.
func DefaultConfig() Config {
	c, err := ConfigFromTuning(config.EmptyTuningConfig())
	if err != nil {
		panic(fmt.Sprintf("tracker: default config invalid: %v", err))
	}
	return c
}

// Validate checks ranges that would otherwise break the lifecycle rules.
func (c Config) Validate() error {
	for _, class := range types.AllClasses() {
		if c.Models[class] == "" {
			return fmt.Errorf("%w: no tracker model for %s", ErrInvalidConfig, class)
		}
		if c.Lifetime[class] <= 0 {
			return fmt.Errorf("%w: tracker lifetime for %s must be positive", ErrInvalidConfig, class)
		}
		if c.ConfidentCount[class] < 0 {
			return fmt.Errorf("%w: confident count for %s must be non-negative", ErrInvalidConfig, class)
		}
	}
	if c.DistanceThreshold <= 0 {
		return fmt.Errorf("%w: distance threshold must be positive", ErrInvalidConfig)
	}
	if c.ChannelHistorySize < 1 {
		return fmt.Errorf("%w: channel history size must be at least 1", ErrInvalidConfig)
	}
	for name, p := range map[string]float64{
		"confirm existence probability":  c.ConfirmExistenceProbability,
		"min existence probability":      c.MinExistenceProbability,
		"min known object removal iou":   c.MinKnownObjectRemovalIoU,
		"min unknown object removal iou": c.MinUnknownObjectRemovalIoU,
	} {
		if p < 0 || p > 1 {
			return fmt.Errorf("%w: %s %v outside [0, 1]", ErrInvalidConfig, name, p)
		}
	}
	if c.ConfirmExistenceProbability > config.MaxExistenceProbability {
		return fmt.Errorf("%w: confirm existence probability %v above the existence ceiling %v",
			ErrInvalidConfig, c.ConfirmExistenceProbability, config.MaxExistenceProbability)
	}
	if err := c.Estimator.Existence.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Matrices.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
