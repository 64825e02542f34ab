// Package tracker owns the track population and drives its lifecycle.
//
// One cycle is the ordered sequence Predict → Associate → Update → Prune →
// Spawn, run by a single owner. Processor is not safe for concurrent use;
// callers serialise cycles and snapshot queries.
//
// Lifecycle: a track is spawned TENTATIVE from an unmatched detection on a
// spawn-enabled channel and becomes CONFIRMED once its update count exceeds
// the per-class confident count and its existence probability reaches the
// confirmation threshold. Confirmation is never revoked. A track is removed
// when it has not been updated for longer than its class lifetime, when its
// existence probability decays below the minimum, or when it overlaps a
// stronger track of a compatible class. Identities are never reused.
//
// Dependency rule: tracker may depend on association, model, geom and types,
// never on input or engine.
package tracker
