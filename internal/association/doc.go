// Package association scores track/detection pairs and matches them one to
// one.
//
// Matching is greedy global nearest neighbour: the cheapest remaining pair
// is committed first, ties broken by (track index, detection index). It is
// not the globally optimal assignment. Gating thresholds downstream are tuned
// against greedy behaviour, and the greedy pass has a predictable cost per
// cycle. Optimal is kept for comparison and diagnostics only.
package association
