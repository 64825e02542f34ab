// Package model holds the per-track state estimators.
//
// The estimator set is closed: Vehicle (constant turn rate and velocity
// EKF), Pedestrian and Unknown (constant velocity point mass), and
// PassThrough (last measurement, extrapolated by its measured twist). The
// variant is chosen once when a track is spawned, from the per-class
// tracker model configuration, and never changes.
//
// Every variant shares the same numerical hygiene after each predict and
// update step: the covariance is symmetrised, its diagonal floored and
// capped, and a non-finite result rolls the step back with a reset
// covariance. Existence probability follows a bounded Bayesian rule and is
// never outside [0, 1].
package model
