// Package uncertainty re-expresses detection batches in the tracking frame
// and conditions their covariances before they reach the estimators.
//
// The three operations run in a fixed order each cycle:
//
//	TransformToWorld → AddOdometryUncertainty (optional) → Normalize
//
// Transform lookups are consumed through TransformProvider. An unavailable
// transform is an expected outcome and is reported as ok=false, never as an
// error, so the caller can skip the batch without touching track state.
package uncertainty
