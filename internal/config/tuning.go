// Package config loads the tracker tuning file. Every field is optional:
// the Get* accessors fall back to built-in defaults, so partial files are
// safe and the same schema serves startup and test configuration.
package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/banshee-data/objectfusion/internal/types"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tracker.defaults.json"

// MaxExistenceProbability is the ceiling the estimators clamp existence to.
// A confirmation threshold above it could never be met.
const MaxExistenceProbability = 0.999

// maxConfigFileSize bounds the tuning file read at startup.
const maxConfigFileSize = 1 * 1024 * 1024

// ChannelTuning declares one detection input channel.
type ChannelTuning struct {
	Name               string  `json:"name"`
	Topic              string  `json:"topic"`
	CanSpawnNewTracker *bool   `json:"can_spawn_new_tracker,omitempty"`
	DisplayName        string  `json:"display_name,omitempty"`
	ShortName          string  `json:"short_name,omitempty"`
	Blocking           *bool   `json:"blocking,omitempty"`
	Timeout            *string `json:"timeout,omitempty"` // duration string like "300ms"
}

// GetCanSpawnNewTracker reports whether unmatched detections on the channel
// may start tracks.
func (ch ChannelTuning) GetCanSpawnNewTracker() bool {
	if ch.CanSpawnNewTracker == nil {
		return true // default
	}
	return *ch.CanSpawnNewTracker
}

// GetBlocking reports whether the channel holds back readiness until it has
// produced data up to the requested horizon.
func (ch ChannelTuning) GetBlocking() bool {
	if ch.Blocking == nil {
		return true // default
	}
	return *ch.Blocking
}

// GetTimeout returns how long a blocking channel may lag before it stops
// holding back readiness. Zero means it never times out.
func (ch ChannelTuning) GetTimeout() time.Duration {
	return parseDurationOr(ch.Timeout, 0)
}

// GetDisplayName falls back to the channel name.
func (ch ChannelTuning) GetDisplayName() string {
	if ch.DisplayName == "" {
		return ch.Name
	}
	return ch.DisplayName
}

// GetShortName falls back to the first three characters of the display name.
func (ch ChannelTuning) GetShortName() string {
	if ch.ShortName != "" {
		return ch.ShortName
	}
	name := ch.GetDisplayName()
	if len(name) > 3 {
		return name[:3]
	}
	return name
}

// StaticTransformTuning is a fixed mount of a sensor frame in its parent.
type StaticTransformTuning struct {
	Child  string  `json:"child"`
	Parent string  `json:"parent"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
	Yaw    float64 `json:"yaw"`
}

// TuningConfig represents the root tracker configuration.
type TuningConfig struct {
	// Frames and publication
	WorldFrameID                *string  `json:"world_frame_id,omitempty"`
	EgoFrameID                  *string  `json:"ego_frame_id,omitempty"`
	PublishRate                 *float64 `json:"publish_rate,omitempty"` // Hz
	EnableDelayCompensation     *bool    `json:"enable_delay_compensation,omitempty"`
	MinPublishIntervalRatio     *float64 `json:"min_publish_interval_ratio,omitempty"`
	MaxPublishIntervalRatio     *float64 `json:"max_publish_interval_ratio,omitempty"`
	PublishTentativeObjects     *bool    `json:"publish_tentative_objects,omitempty"`
	ConsiderOdometryUncertainty *bool    `json:"consider_odometry_uncertainty,omitempty"`

	// Input channels
	InputChannels    []ChannelTuning         `json:"input_channels,omitempty"`
	MaxQueueSize     *int                    `json:"max_queue_size,omitempty"`
	StaticTransforms []StaticTransformTuning `json:"static_transforms,omitempty"`

	// Tracker processor
	TrackerModels               map[string]string `json:"tracker_models,omitempty"` // class name → model
	TrackerLifetime             *string           `json:"tracker_lifetime,omitempty"`
	TrackerLifetimeByClass      map[string]string `json:"tracker_lifetime_by_class,omitempty"`
	MinKnownObjectRemovalIoU    *float64          `json:"min_known_object_removal_iou,omitempty"`
	MinUnknownObjectRemovalIoU  *float64          `json:"min_unknown_object_removal_iou,omitempty"`
	DistanceThreshold           *float64          `json:"distance_threshold,omitempty"`
	ConfidentCountThreshold     map[string]int    `json:"confident_count_threshold,omitempty"`
	ConfirmExistenceProbability *float64          `json:"confirm_existence_probability,omitempty"`
	MinExistenceProbability     *float64          `json:"min_existence_probability,omitempty"`
	ChannelHistorySize          *int              `json:"channel_history_size,omitempty"`

	// Existence probability model
	DetectionProbability        *float64 `json:"detection_probability,omitempty"`
	FalseAlarmProbability       *float64 `json:"false_alarm_probability,omitempty"`
	InitialExistenceProbability *float64 `json:"initial_existence_probability,omitempty"`
	ExistenceHalfLife           *string  `json:"existence_half_life,omitempty"`

	// Estimator numerics
	MaxPredictDt           *float64 `json:"max_predict_dt,omitempty"` // seconds
	MinCovarianceDiag      *float64 `json:"min_covariance_diag,omitempty"`
	MaxCovarianceDiag      *float64 `json:"max_covariance_diag,omitempty"`
	ProcessNoiseAccel      *float64 `json:"process_noise_accel,omitempty"`       // (m/s²)² for point-mass models
	ProcessNoiseVehicleAcc *float64 `json:"process_noise_vehicle_acc,omitempty"` // (m/s²)²
	ProcessNoiseYawAccel   *float64 `json:"process_noise_yaw_accel,omitempty"`   // (rad/s²)²
	MaxSpeedMps            *float64 `json:"max_speed_mps,omitempty"`
	MaxYawRate             *float64 `json:"max_yaw_rate,omitempty"`
	ShapeSmoothingAlpha    *float64 `json:"shape_smoothing_alpha,omitempty"`
	ClassSmoothingAlpha    *float64 `json:"class_smoothing_alpha,omitempty"`

	// Data association matrices, 8x8 row-major (row: track class, col: detection class)
	CanAssignMatrix []int     `json:"can_assign_matrix,omitempty"`
	MaxDistMatrix   []float64 `json:"max_dist_matrix,omitempty"`
	MaxAreaMatrix   []float64 `json:"max_area_matrix,omitempty"`
	MinAreaMatrix   []float64 `json:"min_area_matrix,omitempty"`
	MaxRadMatrix    []float64 `json:"max_rad_matrix,omitempty"`
	MinIoUMatrix    []float64 `json:"min_iou_matrix,omitempty"`

	// Uncertainty normalisation
	MinPositionVariance    *float64 `json:"min_position_variance,omitempty"`
	MaxPositionVariance    *float64 `json:"max_position_variance,omitempty"`
	MinYawVariance         *float64 `json:"min_yaw_variance,omitempty"`
	UnavailableYawVariance *float64 `json:"unavailable_yaw_variance,omitempty"`
	MinTwistVariance       *float64 `json:"min_twist_variance,omitempty"`

	// Modeled ego odometry used when consider_odometry_uncertainty is set
	OdometryTimeOffset *string   `json:"odometry_time_offset,omitempty"`
	OdometryTwist      []float64 `json:"odometry_twist,omitempty"`           // vx, vy, wz
	OdometryPoseCov    []float64 `json:"odometry_pose_covariance,omitempty"` // xx, yy, yawyaw
	OdometryTwistCov   []float64 `json:"odometry_twist_covariance,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields unset. The Get*
// methods then yield built-in defaults.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseTuningConfig(data)
}

// ParseTuningConfig decodes and validates a JSON tuning document.
func ParseTuningConfig(data []byte) (*TuningConfig, error) {
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/tracker/model/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	for name, v := range map[string]*float64{
		"min_known_object_removal_iou":   c.MinKnownObjectRemovalIoU,
		"min_unknown_object_removal_iou": c.MinUnknownObjectRemovalIoU,
		"confirm_existence_probability":  c.ConfirmExistenceProbability,
		"min_existence_probability":      c.MinExistenceProbability,
		"detection_probability":          c.DetectionProbability,
		"false_alarm_probability":        c.FalseAlarmProbability,
		"initial_existence_probability":  c.InitialExistenceProbability,
		"shape_smoothing_alpha":          c.ShapeSmoothingAlpha,
		"class_smoothing_alpha":          c.ClassSmoothingAlpha,
	} {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
		}
	}
	for name, v := range map[string]*float64{
		"publish_rate":       c.PublishRate,
		"max_predict_dt":     c.MaxPredictDt,
		"distance_threshold": c.DistanceThreshold,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}
	if pd, pfa := c.GetDetectionProbability(), c.GetFalseAlarmProbability(); pd <= pfa {
		return fmt.Errorf("detection_probability %f must exceed false_alarm_probability %f", pd, pfa)
	}
	if p := c.GetConfirmExistenceProbability(); p > MaxExistenceProbability {
		return fmt.Errorf("confirm_existence_probability %f exceeds the existence ceiling %v", p, MaxExistenceProbability)
	}
	if c.GetMinPublishIntervalRatio() > c.GetMaxPublishIntervalRatio() {
		return fmt.Errorf("min_publish_interval_ratio %f exceeds max_publish_interval_ratio %f",
			c.GetMinPublishIntervalRatio(), c.GetMaxPublishIntervalRatio())
	}
	if c.MaxQueueSize != nil && *c.MaxQueueSize < 1 {
		return fmt.Errorf("max_queue_size must be at least 1, got %d", *c.MaxQueueSize)
	}
	if c.ChannelHistorySize != nil && *c.ChannelHistorySize < 0 {
		return fmt.Errorf("channel_history_size must be non-negative, got %d", *c.ChannelHistorySize)
	}

	for name, d := range map[string]*string{
		"tracker_lifetime":     c.TrackerLifetime,
		"existence_half_life":  c.ExistenceHalfLife,
		"odometry_time_offset": c.OdometryTimeOffset,
	} {
		if d != nil && *d != "" {
			if _, err := time.ParseDuration(*d); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *d, err)
			}
		}
	}
	for i, ch := range c.InputChannels {
		if ch.Timeout != nil && *ch.Timeout != "" {
			if _, err := time.ParseDuration(*ch.Timeout); err != nil {
				return fmt.Errorf("invalid input_channels[%d].timeout '%s': %w", i, *ch.Timeout, err)
			}
		}
	}

	for i, st := range c.StaticTransforms {
		if st.Child == "" || st.Parent == "" || st.Child == st.Parent {
			return fmt.Errorf("static_transforms[%d]: child and parent must be distinct, non-empty frames", i)
		}
	}

	if err := checkClassKeys("tracker_lifetime_by_class", c.TrackerLifetimeByClass); err != nil {
		return err
	}
	if err := checkClassKeys("confident_count_threshold", c.ConfidentCountThreshold); err != nil {
		return err
	}
	if err := checkClassKeys("tracker_models", c.TrackerModels); err != nil {
		return err
	}
	for class, d := range c.TrackerLifetimeByClass {
		if _, err := types.ParseObjectClass(class); err != nil {
			return fmt.Errorf("tracker_lifetime_by_class: %w", err)
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid tracker_lifetime_by_class[%s] '%s': %w", class, d, err)
		}
	}
	for class, n := range c.ConfidentCountThreshold {
		if _, err := types.ParseObjectClass(class); err != nil {
			return fmt.Errorf("confident_count_threshold: %w", err)
		}
		if n < 0 {
			return fmt.Errorf("confident_count_threshold[%s] must be non-negative, got %d", class, n)
		}
	}
	for class := range c.TrackerModels {
		if _, err := types.ParseObjectClass(class); err != nil {
			return fmt.Errorf("tracker_models: %w", err)
		}
	}

	const cells = types.NumClasses * types.NumClasses
	if c.CanAssignMatrix != nil && len(c.CanAssignMatrix) != cells {
		return fmt.Errorf("can_assign_matrix must have %d entries, got %d", cells, len(c.CanAssignMatrix))
	}
	for name, m := range map[string][]float64{
		"max_dist_matrix": c.MaxDistMatrix,
		"max_area_matrix": c.MaxAreaMatrix,
		"min_area_matrix": c.MinAreaMatrix,
		"max_rad_matrix":  c.MaxRadMatrix,
		"min_iou_matrix":  c.MinIoUMatrix,
	} {
		if m != nil && len(m) != cells {
			return fmt.Errorf("%s must have %d entries, got %d", name, cells, len(m))
		}
	}
	for name, v := range map[string][]float64{
		"odometry_twist":            c.OdometryTwist,
		"odometry_pose_covariance":  c.OdometryPoseCov,
		"odometry_twist_covariance": c.OdometryTwistCov,
	} {
		if v != nil && len(v) != 3 {
			return fmt.Errorf("%s must have 3 entries, got %d", name, len(v))
		}
	}
	return nil
}

// parseDurationOr parses d or returns def when unset or invalid.
func parseDurationOr(d *string, def time.Duration) time.Duration {
	if d == nil || *d == "" {
		return def
	}
	v, err := time.ParseDuration(*d)
	if err != nil {
		return def
	}
	return v
}

// Default association matrices, 8x8 row-major in class order UNKNOWN, CAR,
// TRUCK, BUS, TRAILER, MOTORCYCLE, BICYCLE, PEDESTRIAN. Rows are the track
// class, columns the detection class.
var (
	defaultCanAssignMatrix = []int{
		1, 0, 0, 0, 0, 0, 0, 0, // UNKNOWN
		0, 1, 1, 1, 1, 0, 0, 0, // CAR
		0, 1, 1, 1, 1, 0, 0, 0, // TRUCK
		0, 1, 1, 1, 1, 0, 0, 0, // BUS
		0, 1, 1, 1, 1, 0, 0, 0, // TRAILER
		0, 0, 0, 0, 0, 1, 1, 1, // MOTORCYCLE
		0, 0, 0, 0, 0, 1, 1, 1, // BICYCLE
		0, 0, 0, 0, 0, 1, 1, 1, // PEDESTRIAN
	}
	defaultMaxDistMatrix = []float64{
		4.0, 4.0, 5.0, 5.0, 5.0, 2.0, 2.0, 2.0,
		4.0, 2.0, 5.0, 5.0, 5.0, 2.0, 2.0, 2.0,
		5.0, 5.0, 5.0, 5.0, 5.0, 2.0, 2.0, 2.0,
		5.0, 5.0, 5.0, 5.0, 5.0, 2.0, 2.0, 2.0,
		5.0, 5.0, 5.0, 5.0, 5.0, 2.0, 2.0, 2.0,
		2.0, 2.0, 2.0, 2.0, 2.0, 3.0, 3.0, 3.0,
		2.0, 2.0, 2.0, 2.0, 2.0, 3.0, 3.0, 3.0,
		2.0, 2.0, 2.0, 2.0, 2.0, 2.0, 2.0, 2.0,
	}
	defaultMaxAreaMatrix = []float64{
		10000, 10000, 10000, 10000, 10000, 10000, 10000, 10000,
		12.10, 12.10, 36.00, 60.00, 60.00, 10000, 10000, 10000,
		36.00, 12.10, 36.00, 60.00, 60.00, 10000, 10000, 10000,
		60.00, 12.10, 36.00, 60.00, 60.00, 10000, 10000, 10000,
		60.00, 12.10, 36.00, 60.00, 60.00, 10000, 10000, 10000,
		2.50, 10000, 10000, 10000, 10000, 2.50, 2.50, 1.00,
		2.50, 10000, 10000, 10000, 10000, 2.50, 2.50, 1.00,
		2.00, 10000, 10000, 10000, 10000, 1.50, 1.50, 1.00,
	}
	defaultMinAreaMatrix = []float64{
		0.000, 0.000, 0.000, 0.000, 0.000, 0.000, 0.000, 0.000,
		3.600, 3.600, 6.000, 10.00, 10.00, 0.000, 0.000, 0.000,
		6.000, 3.600, 6.000, 10.00, 10.00, 0.000, 0.000, 0.000,
		10.00, 3.600, 6.000, 10.00, 10.00, 0.000, 0.000, 0.000,
		10.00, 3.600, 6.000, 10.00, 10.00, 0.000, 0.000, 0.000,
		0.001, 0.000, 0.000, 0.000, 0.000, 0.100, 0.100, 0.100,
		0.001, 0.000, 0.000, 0.000, 0.000, 0.100, 0.100, 0.100,
		0.001, 0.000, 0.000, 0.000, 0.000, 0.100, 0.100, 0.100,
	}
	defaultMaxRadMatrix = []float64{
		3.150, 3.150, 3.150, 3.150, 3.150, 3.150, 3.150, 3.150,
		3.150, 1.047, 1.047, 1.047, 1.047, 3.150, 3.150, 3.150,
		3.150, 1.047, 1.047, 1.047, 1.047, 3.150, 3.150, 3.150,
		3.150, 1.047, 1.047, 1.047, 1.047, 3.150, 3.150, 3.150,
		3.150, 1.047, 1.047, 1.047, 1.047, 3.150, 3.150, 3.150,
		3.150, 3.150, 3.150, 3.150, 3.150, 1.047, 1.047, 3.150,
		3.150, 3.150, 3.150, 3.150, 3.150, 1.047, 1.047, 3.150,
		3.150, 3.150, 3.150, 3.150, 3.150, 3.150, 3.150, 3.150,
	}
	defaultMinIoUMatrix = []float64{
		0.0001, 0.1000, 0.1000, 0.1000, 0.1000, 0.1000, 0.1000, 0.1000,
		0.1000, 0.1000, 0.2000, 0.2000, 0.2000, 0.1000, 0.1000, 0.1000,
		0.1000, 0.2000, 0.3000, 0.3000, 0.3000, 0.1000, 0.1000, 0.1000,
		0.1000, 0.2000, 0.3000, 0.3000, 0.3000, 0.1000, 0.1000, 0.1000,
		0.1000, 0.2000, 0.3000, 0.3000, 0.3000, 0.1000, 0.1000, 0.1000,
		0.1000, 0.1000, 0.1000, 0.1000, 0.1000, 0.1000, 0.1000, 0.1000,
		0.1000, 0.1000, 0.1000, 0.1000, 0.1000, 0.1000, 0.1000, 0.1000,
		0.0001, 0.1000, 0.1000, 0.1000, 0.1000, 0.1000, 0.1000, 0.1000,
	}
)

// GetWorldFrameID returns the working reference frame for tracks.
func (c *TuningConfig) GetWorldFrameID() string {
	if c.WorldFrameID == nil || *c.WorldFrameID == "" {
		return "map" // default
	}
	return *c.WorldFrameID
}

// GetEgoFrameID returns the vehicle body frame.
func (c *TuningConfig) GetEgoFrameID() string {
	if c.EgoFrameID == nil || *c.EgoFrameID == "" {
		return "base_link" // default
	}
	return *c.EgoFrameID
}

func (c *TuningConfig) GetPublishRate() float64 {
	if c.PublishRate == nil {
		return 10.0 // default
	}
	return *c.PublishRate
}

func (c *TuningConfig) GetEnableDelayCompensation() bool {
	if c.EnableDelayCompensation == nil {
		return false // default
	}
	return *c.EnableDelayCompensation
}

func (c *TuningConfig) GetMinPublishIntervalRatio() float64 {
	if c.MinPublishIntervalRatio == nil {
		return 0.85 // default
	}
	return *c.MinPublishIntervalRatio
}

func (c *TuningConfig) GetMaxPublishIntervalRatio() float64 {
	if c.MaxPublishIntervalRatio == nil {
		return 1.05 // default
	}
	return *c.MaxPublishIntervalRatio
}

func (c *TuningConfig) GetPublishTentativeObjects() bool {
	if c.PublishTentativeObjects == nil {
		return false // default
	}
	return *c.PublishTentativeObjects
}

func (c *TuningConfig) GetConsiderOdometryUncertainty() bool {
	if c.ConsiderOdometryUncertainty == nil {
		return false // default
	}
	return *c.ConsiderOdometryUncertainty
}

// GetInputChannels returns the configured channels. An unset list yields a
// single spawn-enabled lidar channel so a bare config still runs.
func (c *TuningConfig) GetInputChannels() []ChannelTuning {
	if len(c.InputChannels) == 0 {
		return []ChannelTuning{{Name: "lidar", Topic: "/perception/lidar/objects"}}
	}
	return c.InputChannels
}

func (c *TuningConfig) GetMaxQueueSize() int {
	if c.MaxQueueSize == nil {
		return 20 // default
	}
	return *c.MaxQueueSize
}

// GetTrackerModel returns the estimator model name configured for class.
func (c *TuningConfig) GetTrackerModel(class types.ObjectClass) string {
	if model, ok := classEntry(c.TrackerModels, class); ok {
		return model
	}
	switch class {
	case types.ClassCar, types.ClassTruck, types.ClassBus, types.ClassTrailer:
		return "vehicle"
	case types.ClassMotorcycle, types.ClassBicycle, types.ClassPedestrian:
		return "pedestrian"
	default:
		return "unknown"
	}
}

func (c *TuningConfig) GetTrackerLifetime() time.Duration {
	return parseDurationOr(c.TrackerLifetime, 1*time.Second)
}

// GetTrackerLifetimeFor returns the per-class lifetime override, falling back
// to GetTrackerLifetime.
func (c *TuningConfig) GetTrackerLifetimeFor(class types.ObjectClass) time.Duration {
	if d, ok := classEntry(c.TrackerLifetimeByClass, class); ok {
		return parseDurationOr(&d, c.GetTrackerLifetime())
	}
	return c.GetTrackerLifetime()
}

func (c *TuningConfig) GetMinKnownObjectRemovalIoU() float64 {
	if c.MinKnownObjectRemovalIoU == nil {
		return 0.1 // default
	}
	return *c.MinKnownObjectRemovalIoU
}

func (c *TuningConfig) GetMinUnknownObjectRemovalIoU() float64 {
	if c.MinUnknownObjectRemovalIoU == nil {
		return 0.001 // default
	}
	return *c.MinUnknownObjectRemovalIoU
}

func (c *TuningConfig) GetDistanceThreshold() float64 {
	if c.DistanceThreshold == nil {
		return 5.0 // default
	}
	return *c.DistanceThreshold
}

// GetConfidentCountThreshold returns the number of updates a track of class
// must exceed before it is confirmed.
func (c *TuningConfig) GetConfidentCountThreshold(class types.ObjectClass) int {
	if n, ok := classEntry(c.ConfidentCountThreshold, class); ok {
		return n
	}
	return 3 // default
}

func (c *TuningConfig) GetConfirmExistenceProbability() float64 {
	if c.ConfirmExistenceProbability == nil {
		return 0.6 // default
	}
	return *c.ConfirmExistenceProbability
}

func (c *TuningConfig) GetMinExistenceProbability() float64 {
	if c.MinExistenceProbability == nil {
		return 0.05 // default
	}
	return *c.MinExistenceProbability
}

func (c *TuningConfig) GetChannelHistorySize() int {
	if c.ChannelHistorySize == nil {
		return 8 // default
	}
	return *c.ChannelHistorySize
}

func (c *TuningConfig) GetDetectionProbability() float64 {
	if c.DetectionProbability == nil {
		return 0.9 // default
	}
	return *c.DetectionProbability
}

func (c *TuningConfig) GetFalseAlarmProbability() float64 {
	if c.FalseAlarmProbability == nil {
		return 0.1 // default
	}
	return *c.FalseAlarmProbability
}

func (c *TuningConfig) GetInitialExistenceProbability() float64 {
	if c.InitialExistenceProbability == nil {
		return 0.5 // default
	}
	return *c.InitialExistenceProbability
}

func (c *TuningConfig) GetExistenceHalfLife() time.Duration {
	return parseDurationOr(c.ExistenceHalfLife, 2*time.Second)
}

func (c *TuningConfig) GetMaxPredictDt() float64 {
	if c.MaxPredictDt == nil {
		return 0.1 // default
	}
	return *c.MaxPredictDt
}

func (c *TuningConfig) GetMinCovarianceDiag() float64 {
	if c.MinCovarianceDiag == nil {
		return 1e-4 // default
	}
	return *c.MinCovarianceDiag
}

func (c *TuningConfig) GetMaxCovarianceDiag() float64 {
	if c.MaxCovarianceDiag == nil {
		return 1e3 // default
	}
	return *c.MaxCovarianceDiag
}

func (c *TuningConfig) GetProcessNoiseAccel() float64 {
	if c.ProcessNoiseAccel == nil {
		return 1.0 // default
	}
	return *c.ProcessNoiseAccel
}

func (c *TuningConfig) GetProcessNoiseVehicleAcc() float64 {
	if c.ProcessNoiseVehicleAcc == nil {
		return 2.0 // default
	}
	return *c.ProcessNoiseVehicleAcc
}

func (c *TuningConfig) GetProcessNoiseYawAccel() float64 {
	if c.ProcessNoiseYawAccel == nil {
		return 0.2 // default
	}
	return *c.ProcessNoiseYawAccel
}

func (c *TuningConfig) GetMaxSpeedMps() float64 {
	if c.MaxSpeedMps == nil {
		return 50.0 // default
	}
	return *c.MaxSpeedMps
}

func (c *TuningConfig) GetMaxYawRate() float64 {
	if c.MaxYawRate == nil {
		return 1.5 // default
	}
	return *c.MaxYawRate
}

func (c *TuningConfig) GetShapeSmoothingAlpha() float64 {
	if c.ShapeSmoothingAlpha == nil {
		return 0.3 // default
	}
	return *c.ShapeSmoothingAlpha
}

func (c *TuningConfig) GetClassSmoothingAlpha() float64 {
	if c.ClassSmoothingAlpha == nil {
		return 0.3 // default
	}
	return *c.ClassSmoothingAlpha
}

func (c *TuningConfig) GetCanAssignMatrix() []int {
	if c.CanAssignMatrix == nil {
		return append([]int(nil), defaultCanAssignMatrix...)
	}
	return c.CanAssignMatrix
}

func (c *TuningConfig) GetMaxDistMatrix() []float64 {
	return matrixOr(c.MaxDistMatrix, defaultMaxDistMatrix)
}

func (c *TuningConfig) GetMaxAreaMatrix() []float64 {
	return matrixOr(c.MaxAreaMatrix, defaultMaxAreaMatrix)
}

func (c *TuningConfig) GetMinAreaMatrix() []float64 {
	return matrixOr(c.MinAreaMatrix, defaultMinAreaMatrix)
}

func (c *TuningConfig) GetMaxRadMatrix() []float64 {
	return matrixOr(c.MaxRadMatrix, defaultMaxRadMatrix)
}

func (c *TuningConfig) GetMinIoUMatrix() []float64 {
	return matrixOr(c.MinIoUMatrix, defaultMinIoUMatrix)
}

func matrixOr(m, def []float64) []float64 {
	if m == nil {
		return append([]float64(nil), def...)
	}
	return m
}

func (c *TuningConfig) GetMinPositionVariance() float64 {
	if c.MinPositionVariance == nil {
		return 1e-4 // default
	}
	return *c.MinPositionVariance
}

func (c *TuningConfig) GetMaxPositionVariance() float64 {
	if c.MaxPositionVariance == nil {
		return 1e4 // default
	}
	return *c.MaxPositionVariance
}

func (c *TuningConfig) GetMinYawVariance() float64 {
	if c.MinYawVariance == nil {
		return 1e-4 // default
	}
	return *c.MinYawVariance
}

// GetUnavailableYawVariance is the yaw variance floor applied when a
// detection carries no usable heading.
func (c *TuningConfig) GetUnavailableYawVariance() float64 {
	if c.UnavailableYawVariance == nil {
		return 10.0 // default
	}
	return *c.UnavailableYawVariance
}

func (c *TuningConfig) GetMinTwistVariance() float64 {
	if c.MinTwistVariance == nil {
		return 1e-4 // default
	}
	return *c.MinTwistVariance
}

func (c *TuningConfig) GetOdometryTimeOffset() time.Duration {
	return parseDurationOr(c.OdometryTimeOffset, 1*time.Millisecond)
}

// GetOdometryTwist returns the modeled ego twist (vx, vy, wz).
func (c *TuningConfig) GetOdometryTwist() [3]float64 {
	return triple(c.OdometryTwist, [3]float64{10.0, 0.1, 0.1})
}

// GetOdometryPoseCovariance returns the modeled ego pose variances (xx, yy, yawyaw).
func (c *TuningConfig) GetOdometryPoseCovariance() [3]float64 {
	return triple(c.OdometryPoseCov, [3]float64{0.1, 0.1, 0.0001})
}

// GetOdometryTwistCovariance returns the modeled ego twist variances (vx, vy, wz).
func (c *TuningConfig) GetOdometryTwistCovariance() [3]float64 {
	return triple(c.OdometryTwistCov, [3]float64{2.0, 0.2, 0.001})
}

func triple(v []float64, def [3]float64) [3]float64 {
	if len(v) != 3 {
		return def
	}
	return [3]float64{v[0], v[1], v[2]}
}

// classEntry looks up the value configured for class in a map keyed by class
// name. The canonical name wins over aliases and other spellings, which are
// tried in sorted order.
func classEntry[V any](m map[string]V, class types.ObjectClass) (V, bool) {
	if v, ok := m[class.String()]; ok {
		return v, true
	}
	for _, name := range slices.Sorted(maps.Keys(m)) {
		if cl, err := types.ParseObjectClass(name); err == nil && cl == class {
			return m[name], true
		}
	}
	var zero V
	return zero, false
}

// checkClassKeys rejects a per-class map in which two keys name the same
// class, such as "MOTORBIKE" and "MOTORCYCLE".
func checkClassKeys[V any](field string, m map[string]V) error {
	seen := make(map[types.ObjectClass]string, len(m))
	for _, name := range slices.Sorted(maps.Keys(m)) {
		cl, err := types.ParseObjectClass(name)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		if prev, ok := seen[cl]; ok {
			return fmt.Errorf("%s: %q and %q both configure %s", field, prev, name, cl)
		}
		seen[cl] = name
	}
	return nil
}
