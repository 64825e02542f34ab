package types

import (
	"time"

	"github.com/banshee-data/objectfusion/internal/geom"
)

// TrackStatus represents the lifecycle state of a track.
type TrackStatus string

const (
	TrackTentative TrackStatus = "tentative" // Spawned, not yet reported externally
	TrackConfirmed TrackStatus = "confirmed" // Passed the class confidence thresholds
)

// ChannelContribution records one measurement that updated a track.
type ChannelContribution struct {
	Channel string    `json:"channel"`
	Stamp   time.Time `json:"stamp"`
	RangeM  float64   `json:"range_m"`
}

// TrackedObject is the published view of one track at a query time.
type TrackedObject struct {
	ID                   uint64             `json:"id"`
	UUID                 string             `json:"uuid"`
	Label                ObjectClass        `json:"label"`
	Classification       ClassProbabilities `json:"classification"`
	ExistenceProbability float64            `json:"existence_probability"`
	Status               TrackStatus        `json:"status"`
	Model                string             `json:"model"`

	Pose geom.Pose `json:"pose"`
	// PositionCovariance is the row-major 2x2 (x, y) covariance.
	PositionCovariance [4]float64 `json:"position_covariance"`
	YawVariance        float64    `json:"yaw_variance"`
	VelocityX          float64    `json:"velocity_x"`
	VelocityY          float64    `json:"velocity_y"`
	SpeedMps           float64    `json:"speed_mps"`
	YawRate            float64    `json:"yaw_rate"`
	Shape              Shape      `json:"shape"`

	LastUpdate  time.Time             `json:"last_update"`
	UpdateCount int                   `json:"update_count"`
	MissCount   int                   `json:"miss_count"`
	Channels    []ChannelContribution `json:"channels,omitempty"`
}

// Snapshot is the set of tracks published for one query time.
type Snapshot struct {
	Stamp   time.Time       `json:"stamp"`
	FrameID string          `json:"frame_id"`
	Objects []TrackedObject `json:"objects"`
}
