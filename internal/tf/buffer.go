// Package tf keeps the frame transforms the engine needs to place detections
// and the ego vehicle in the world frame.
package tf

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/objectfusion/internal/config"
	"github.com/banshee-data/objectfusion/internal/geom"
)

var (
	ErrInvalidTransform = errors.New("invalid transform")
	ErrInvalidFrame     = errors.New("invalid frame id")
)

// maxChain bounds how many edges a lookup may compose.
const maxChain = 4

type edge struct{ child, parent string }

type stamped struct {
	at time.Time
	tf geom.Transform
}

// Buffer stores static transforms and a bounded, time-ordered history of
// dynamic transforms. Each transform maps child coordinates into the parent
// frame. Buffer is safe for concurrent use.
type Buffer struct {
	mu      sync.RWMutex
	static  map[edge]geom.Transform
	dynamic map[edge][]stamped
	maxAge  time.Duration
}

// NewBuffer returns an empty Buffer keeping maxAge of history per frame pair.
func NewBuffer(maxAge time.Duration) *Buffer {
	if maxAge <= 0 {
		maxAge = 10 * time.Second
	}
	return &Buffer{
		static:  make(map[edge]geom.Transform),
		dynamic: make(map[edge][]stamped),
		maxAge:  maxAge,
	}
}

func check(child, parent string, t geom.Transform) error {
	if child == "" || parent == "" || child == parent {
		return fmt.Errorf("%w: %q → %q", ErrInvalidFrame, child, parent)
	}
	if !t.Valid() {
		return fmt.Errorf("%w: %q → %q", ErrInvalidTransform, child, parent)
	}
	return nil
}

// SetStatic records a time-invariant transform, such as a sensor mount.
func (b *Buffer) SetStatic(child, parent string, t geom.Transform) error {
	if err := check(child, parent, t); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.static[edge{child, parent}] = t
	return nil
}

// LoadStatic records every configured sensor mount.
func (b *Buffer) LoadStatic(mounts []config.StaticTransformTuning) error {
	for _, m := range mounts {
		pose := geom.PoseXYYaw(m.X, m.Y, m.Yaw)
		pose.Position.Z = m.Z
		if err := b.SetStatic(m.Child, m.Parent, geom.TransformFromPose(pose)); err != nil {
			return err
		}
	}
	return nil
}

// Add records a dynamic transform observed at the given time. Entries older
// than maxAge behind the newest one are discarded.
func (b *Buffer) Add(child, parent string, at time.Time, t geom.Transform) error {
	if err := check(child, parent, t); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	k := edge{child, parent}
	h := b.dynamic[k]
	i := sort.Search(len(h), func(i int) bool { return !h[i].at.Before(at) })
	switch {
	case i < len(h) && h[i].at.Equal(at):
		h[i].tf = t
	default:
		h = append(h, stamped{})
		copy(h[i+1:], h[i:])
		h[i] = stamped{at: at, tf: t}
	}

	cutoff := h[len(h)-1].at.Add(-b.maxAge)
	drop := sort.Search(len(h), func(i int) bool { return !h[i].at.Before(cutoff) })
	if drop > 0 {
		h = append(h[:0], h[drop:]...)
	}
	b.dynamic[k] = h
	return nil
}

// LookupTransform returns the transform mapping source coordinates into
// target at the given time. Dynamic transforms are interpolated between the
// two surrounding samples; times outside the stored history are
// unavailable. Chains of up to four edges are composed, in either direction.
func (b *Buffer) LookupTransform(source, target string, at time.Time) (geom.Transform, bool) {
	if source == target {
		return geom.IdentityTransform, true
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.resolve(source, target, at, map[string]bool{source: true}, 0)
}

func (b *Buffer) resolve(source, target string, at time.Time, visited map[string]bool, depth int) (geom.Transform, bool) {
	if depth >= maxChain {
		return geom.Transform{}, false
	}
	for _, next := range b.neighbours(source) {
		if visited[next] {
			continue
		}
		step, ok := b.direct(source, next, at)
		if !ok {
			continue
		}
		if next == target {
			return step, true
		}
		visited[next] = true
		rest, ok := b.resolve(next, target, at, visited, depth+1)
		delete(visited, next)
		if ok {
			return rest.Compose(step), true
		}
	}
	return geom.Transform{}, false
}

// neighbours lists the frames directly linked to frame, sorted for
// deterministic lookups.
func (b *Buffer) neighbours(frame string) []string {
	seen := map[string]bool{}
	add := func(e edge) {
		switch frame {
		case e.child:
			seen[e.parent] = true
		case e.parent:
			seen[e.child] = true
		}
	}
	for e := range b.static {
		add(e)
	}
	for e := range b.dynamic {
		add(e)
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// direct resolves a single edge in either direction.
func (b *Buffer) direct(from, to string, at time.Time) (geom.Transform, bool) {
	if t, ok := b.edgeAt(edge{from, to}, at); ok {
		return t, true
	}
	if t, ok := b.edgeAt(edge{to, from}, at); ok {
		return t.Inverse(), true
	}
	return geom.Transform{}, false
}

func (b *Buffer) edgeAt(e edge, at time.Time) (geom.Transform, bool) {
	if t, ok := b.static[e]; ok {
		return t, true
	}
	h := b.dynamic[e]
	if len(h) == 0 {
		return geom.Transform{}, false
	}
	i := sort.Search(len(h), func(i int) bool { return !h[i].at.Before(at) })
	if i == len(h) {
		return geom.Transform{}, false
	}
	if h[i].at.Equal(at) {
		return h[i].tf, true
	}
	if i == 0 {
		return geom.Transform{}, false
	}
	lo, hi := h[i-1], h[i]
	s := float64(at.Sub(lo.at)) / float64(hi.at.Sub(lo.at))
	return interpolate(lo.tf, hi.tf, s), true
}

// interpolate blends translation linearly and rotation by normalised linear
// quaternion interpolation along the shorter arc.
func interpolate(a, b geom.Transform, s float64) geom.Transform {
	qa, qb := a.Rotation, b.Rotation
	if qa.W*qb.W+qa.X*qb.X+qa.Y*qb.Y+qa.Z*qb.Z < 0 {
		qb = geom.Quaternion{W: -qb.W, X: -qb.X, Y: -qb.Y, Z: -qb.Z}
	}
	return geom.Transform{
		Translation: a.Translation.Add(b.Translation.Sub(a.Translation).Scale(s)),
		Rotation: geom.Quaternion{
			W: qa.W + s*(qb.W-qa.W),
			X: qa.X + s*(qb.X-qa.X),
			Y: qa.Y + s*(qb.Y-qa.Y),
			Z: qa.Z + s*(qb.Z-qa.Z),
		}.Normalized(),
	}
}

// Len reports the number of stored dynamic samples for child → parent.
func (b *Buffer) Len(child, parent string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.dynamic[edge{child, parent}])
}
