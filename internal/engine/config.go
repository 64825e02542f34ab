package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/objectfusion/internal/config"
	"github.com/banshee-data/objectfusion/internal/input"
	"github.com/banshee-data/objectfusion/internal/tracker"
	"github.com/banshee-data/objectfusion/internal/uncertainty"
)

// ErrInvalidConfig is returned when the engine settings are unusable.
var ErrInvalidConfig = errors.New("invalid engine config")

// Config collects the settings of every engine component.
type Config struct {
	WorldFrameID string // tracking and publication frame
	EgoFrameID   string // vehicle body frame

	PublishRate             float64 // Hz
	EnableDelayCompensation bool
	MinPublishIntervalRatio float64
	MaxPublishIntervalRatio float64
	PublishTentativeObjects bool

	ConsiderOdometryUncertainty bool
	Odometry                    uncertainty.OdometryModel
	Limits                      uncertainty.Limits

	Input   input.Config
	Tracker tracker.Config
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) (Config, error) {
	tc, err := tracker.ConfigFromTuning(cfg)
	if err != nil {
		return Config{}, err
	}
	c := Config{
		WorldFrameID:                cfg.GetWorldFrameID(),
		EgoFrameID:                  cfg.GetEgoFrameID(),
		PublishRate:                 cfg.GetPublishRate(),
		EnableDelayCompensation:     cfg.GetEnableDelayCompensation(),
		MinPublishIntervalRatio:     cfg.GetMinPublishIntervalRatio(),
		MaxPublishIntervalRatio:     cfg.GetMaxPublishIntervalRatio(),
		PublishTentativeObjects:     cfg.GetPublishTentativeObjects(),
		ConsiderOdometryUncertainty: cfg.GetConsiderOdometryUncertainty(),
		Odometry:                    uncertainty.OdometryModelFromTuning(cfg),
		Limits:                      uncertainty.LimitsFromTuning(cfg),
		Input:                       input.ConfigFromTuning(cfg),
		Tracker:                     tc,
	}
	return c, c.Validate()
}

// DefaultConfig returns the built-in engine configuration.
func DefaultConfig() Config {
	c, err := ConfigFromTuning(config.EmptyTuningConfig())
	if err != nil {
		panic(fmt.Sprintf("engine: default config invalid: %v", err))
	}
	return c
}

// Validate checks the engine-level settings and delegates to the components.
func (c Config) Validate() error {
	if c.WorldFrameID == "" || c.EgoFrameID == "" {
		return fmt.Errorf("%w: world and ego frame ids are required", ErrInvalidConfig)
	}
	if c.PublishRate <= 0 {
		return fmt.Errorf("%w: publish rate must be positive", ErrInvalidConfig)
	}
	if c.MinPublishIntervalRatio < 0 || c.MinPublishIntervalRatio > c.MaxPublishIntervalRatio {
		return fmt.Errorf("%w: publish interval ratios [%v, %v]", ErrInvalidConfig,
			c.MinPublishIntervalRatio, c.MaxPublishIntervalRatio)
	}
	if err := c.Input.Validate(); err != nil {
		return err
	}
	return c.Tracker.Validate()
}

// PublishPeriod is the nominal interval between snapshots.
func (c Config) PublishPeriod() time.Duration {
	return time.Duration(float64(time.Second) / c.PublishRate)
}

// TickInterval is how often a delay-compensated publisher re-checks the
// publication rule: ten times per period.
func (c Config) TickInterval() time.Duration {
	return c.PublishPeriod() / 10
}
