package input

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/banshee-data/objectfusion/internal/types"
)

var (
	ErrUnknownChannel = errors.New("unknown input channel")
	ErrOutOfOrder     = errors.New("batch older than channel watermark")
)

// ChannelStats counts batches per channel since the manager was created.
type ChannelStats struct {
	ID        string
	Received  uint64
	Delivered uint64
	Dropped   uint64 // evicted from a full queue
	Rejected  uint64 // refused as out of order
	Queued    int
	Watermark time.Time // newest stamp received; zero before the first batch
}

type channel struct {
	cfg       ChannelConfig
	order     int
	queue     []types.DetectionBatch // ascending by stamp
	watermark time.Time
	hasData   bool
	stats     ChannelStats
}

// Manager buffers detection batches per channel and releases them in time
// order once every blocking channel has caught up. Ingest may be called from
// any goroutine; the remaining methods are typically called by the single
// engine owner but are safe for concurrent use as well.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	channels []*channel
	byID     map[string]*channel

	started bool
	start   time.Time // first readiness query; silent channels time out from here
}

// NewManager validates cfg and returns a Manager with empty queues.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:      cfg,
		channels: make([]*channel, len(cfg.Channels)),
		byID:     make(map[string]*channel, len(cfg.Channels)),
	}
	for i, cc := range cfg.Channels {
		ch := &channel{cfg: cc, order: i, stats: ChannelStats{ID: cc.ID}}
		m.channels[i] = ch
		m.byID[cc.ID] = ch
	}
	return m, nil
}

// Channels returns the configured channels in declaration order.
func (m *Manager) Channels() []ChannelConfig {
	return slices.Clone(m.cfg.Channels)
}

// Channel returns the configuration of one channel.
func (m *Manager) Channel(id string) (ChannelConfig, bool) {
	ch, ok := m.byID[id]
	if !ok {
		return ChannelConfig{}, false
	}
	return ch.cfg, true
}

// IsSpawnEnabled reports whether unmatched detections from the channel may
// create tracks. Unknown channels never spawn.
func (m *Manager) IsSpawnEnabled(id string) bool {
	ch, ok := m.byID[id]
	return ok && ch.cfg.CanSpawn
}

// Ingest queues a copy of batch on the named channel. The batch's Channel
// field is overwritten with id. A batch older than the newest one already
// received on the channel is rejected with ErrOutOfOrder. When the queue is
// full the oldest undelivered batch is dropped.
func (m *Manager) Ingest(id string, batch types.DetectionBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, id)
	}
	if ch.hasData && batch.Stamp.Before(ch.watermark) {
		ch.stats.Rejected++
		opsf("channel %s: rejected batch at %s, watermark %s", id,
			batch.Stamp.Format(time.RFC3339Nano), ch.watermark.Format(time.RFC3339Nano))
		return fmt.Errorf("%w: channel %q stamp %s before %s", ErrOutOfOrder, id,
			batch.Stamp.Format(time.RFC3339Nano), ch.watermark.Format(time.RFC3339Nano))
	}

	b := batch.Clone()
	b.Channel = id
	ch.queue = append(ch.queue, b)
	ch.watermark = b.Stamp
	ch.hasData = true
	ch.stats.Received++

	if over := len(ch.queue) - m.cfg.MaxQueueSize; over > 0 {
		clear(ch.queue[:over])
		ch.queue = append(ch.queue[:0], ch.queue[over:]...)
		ch.stats.Dropped += uint64(over)
		opsf("channel %s: queue full, dropped %d oldest batch(es)", id, over)
	}
	tracef("channel %s: queued %d objects at %s (depth %d)", id, len(b.Objects),
		b.Stamp.Format(time.RFC3339Nano), len(ch.queue))
	return nil
}

// TryGetReadyBatches releases every queued batch whose stamp is at or
// before the readiness horizon, ordered by stamp and then by channel
// declaration order. The horizon is at, lowered to the watermark of each
// blocking channel that has not timed out. A blocking channel that has never
// delivered holds back everything until its timeout elapses from the first
// call. ok is false when nothing is ready.
func (m *Manager) TryGetReadyBatches(at time.Time) ([]types.DetectionBatch, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		m.started = true
		m.start = at
	}

	horizon, ok := m.horizon(at)
	if !ok {
		return nil, false
	}

	var out []types.DetectionBatch
	for _, ch := range m.channels {
		n := 0
		for n < len(ch.queue) && !ch.queue[n].Stamp.After(horizon) {
			n++
		}
		if n == 0 {
			continue
		}
		out = append(out, ch.queue[:n]...)
		clear(ch.queue[:n])
		ch.queue = append(ch.queue[:0], ch.queue[n:]...)
		ch.stats.Delivered += uint64(n)
	}
	if len(out) == 0 {
		return nil, false
	}
	slices.SortStableFunc(out, func(a, b types.DetectionBatch) int {
		if c := a.Stamp.Compare(b.Stamp); c != 0 {
			return c
		}
		return cmp.Compare(m.byID[a.Channel].order, m.byID[b.Channel].order)
	})
	tracef("ready: %d batch(es) up to %s", len(out), horizon.Format(time.RFC3339Nano))
	return out, true
}

func (m *Manager) horizon(at time.Time) (time.Time, bool) {
	horizon := at
	for _, ch := range m.channels {
		if !ch.cfg.Blocking {
			continue
		}
		timeout := ch.cfg.Timeout
		if !ch.hasData {
			if timeout > 0 && at.Sub(m.start) > timeout {
				continue
			}
			diagf("waiting for first batch on blocking channel %s", ch.cfg.ID)
			return time.Time{}, false
		}
		if timeout > 0 && at.Sub(ch.watermark) > timeout {
			continue
		}
		if ch.watermark.Before(horizon) {
			horizon = ch.watermark
		}
	}
	return horizon, true
}

// Stats returns per-channel counters in declaration order.
func (m *Manager) Stats() []ChannelStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ChannelStats, len(m.channels))
	for i, ch := range m.channels {
		s := ch.stats
		s.Queued = len(ch.queue)
		s.Watermark = ch.watermark
		out[i] = s
	}
	return out
}
