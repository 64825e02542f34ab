// Package engine wires the input manager, uncertainty model and tracker
// processor into one cycle and decides when snapshots are published.
//
// An Engine has a single owner. Runner provides that owner as a goroutine
// that serialises detection-driven cycles, periodic publish ticks and
// snapshot queries, so that no snapshot is ever taken mid-cycle.
package engine
