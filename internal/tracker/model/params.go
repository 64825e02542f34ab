package model

import (
	"fmt"
	"time"

	"github.com/banshee-data/objectfusion/internal/config"
)

// Kind tags an estimator variant.
type Kind string

const (
	KindVehicle     Kind = "vehicle"
	KindPedestrian  Kind = "pedestrian"
	KindUnknown     Kind = "unknown"
	KindPassThrough Kind = "pass_through"
)

// ParseKind maps a configured tracker model name to a Kind. The longer
// "<kind>_tracker" spelling is accepted as well.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "vehicle", "vehicle_tracker", "multi_vehicle_tracker", "car_tracker":
		return KindVehicle, nil
	case "pedestrian", "pedestrian_tracker", "pedestrian_and_bicycle_tracker":
		return KindPedestrian, nil
	case "unknown", "unknown_tracker", "polygon_tracker":
		return KindUnknown, nil
	case "pass_through", "pass_through_tracker":
		return KindPassThrough, nil
	}
	return "", fmt.Errorf("unknown tracker model %q", name)
}

// ExistenceParams configures the existence probability recursion.
type ExistenceParams struct {
	DetectionProbability  float64       // pd
	FalseAlarmProbability float64       // pfa
	Initial               float64       // used when a detection carries no confidence
	HalfLife              time.Duration // decay half-life while unobserved
}

// Validate checks that a matched update raises existence: pd must be
// positive and exceed pfa.
func (e ExistenceParams) Validate() error {
	if e.DetectionProbability <= 0 || e.DetectionProbability > 1 {
		return fmt.Errorf("detection probability %v outside (0, 1]", e.DetectionProbability)
	}
	if e.FalseAlarmProbability < 0 || e.FalseAlarmProbability >= e.DetectionProbability {
		return fmt.Errorf("false alarm probability %v must be in [0, %v)",
			e.FalseAlarmProbability, e.DetectionProbability)
	}
	return nil
}

// Params holds the numerical settings shared by all estimators.
type Params struct {
	MaxPredictDt           float64 // seconds per predict sub-step
	MinCovarianceDiag      float64
	MaxCovarianceDiag      float64
	ProcessNoiseAccel      float64 // (m/s²)², point-mass models
	ProcessNoiseVehicleAcc float64 // (m/s²)², vehicle longitudinal
	ProcessNoiseYawAccel   float64 // (rad/s²)²
	MaxSpeedMps            float64
	MaxYawRate             float64 // rad/s
	ShapeSmoothingAlpha    float64 // weight of the newest extent measurement
	ClassSmoothingAlpha    float64 // weight of the newest class measurement
	Existence              ExistenceParams
}

// ParamsFromTuning builds Params from a loaded TuningConfig.
func ParamsFromTuning(cfg *config.TuningConfig) Params {
	return Params{
		MaxPredictDt:           cfg.GetMaxPredictDt(),
		MinCovarianceDiag:      cfg.GetMinCovarianceDiag(),
		MaxCovarianceDiag:      cfg.GetMaxCovarianceDiag(),
		ProcessNoiseAccel:      cfg.GetProcessNoiseAccel(),
		ProcessNoiseVehicleAcc: cfg.GetProcessNoiseVehicleAcc(),
		ProcessNoiseYawAccel:   cfg.GetProcessNoiseYawAccel(),
		MaxSpeedMps:            cfg.GetMaxSpeedMps(),
		MaxYawRate:             cfg.GetMaxYawRate(),
		ShapeSmoothingAlpha:    cfg.GetShapeSmoothingAlpha(),
		ClassSmoothingAlpha:    cfg.GetClassSmoothingAlpha(),
		Existence: ExistenceParams{
			DetectionProbability:  cfg.GetDetectionProbability(),
			FalseAlarmProbability: cfg.GetFalseAlarmProbability(),
			Initial:               cfg.GetInitialExistenceProbability(),
			HalfLife:              cfg.GetExistenceHalfLife(),
		},
	}
}

// DefaultParams returns the built-in estimator parameters.
func DefaultParams() Params {
	return ParamsFromTuning(config.EmptyTuningConfig())
}
