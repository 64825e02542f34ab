//go:build !debug

package tracker

// invariantViolated logs a logic error and lets the caller skip the
// offending operation.
func invariantViolated(format string, args ...interface{}) {
	opsf("invariant violated: "+format, args...)
}
