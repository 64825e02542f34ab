package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/objectfusion/internal/geom"
	"github.com/banshee-data/objectfusion/internal/types"
)

// ErrNoChannel is returned for a batch that names no channel when the
// dispatcher has no default.
var ErrNoChannel = errors.New("batch has no channel")

// Submitter accepts converted detection batches.
type Submitter interface {
	Submit(ctx context.Context, channel string, batch types.DetectionBatch) error
}

// EgoRecorder stores timestamped ego poses.
type EgoRecorder interface {
	Add(child, parent string, at time.Time, t geom.Transform) error
}

// Dispatcher is the Handler that connects a reader to the tracking engine:
// ego poses carried by a batch go to Ego, the detections to Submitter.
type Dispatcher struct {
	Submitter      Submitter
	Ego            EgoRecorder // optional
	EgoFrameID     string
	WorldFrameID   string
	DefaultChannel string // used when a batch names no channel
}

// Handle implements Handler.
func (d Dispatcher) Handle(ctx context.Context, w WireBatch) error {
	if w.Channel == "" {
		w.Channel = d.DefaultChannel
	}
	if w.Channel == "" {
		return ErrNoChannel
	}
	if tf, ok := w.EgoTransform(); ok && d.Ego != nil {
		if err := d.Ego.Add(d.EgoFrameID, d.WorldFrameID, w.Stamp, tf); err != nil {
			return fmt.Errorf("record ego pose: %w", err)
		}
	}
	b, err := w.Batch()
	if err != nil {
		return err
	}
	return d.Submitter.Submit(ctx, w.Channel, b)
}
