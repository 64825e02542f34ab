//go:build debug

package tracker

import "fmt"

func invariantViolated(format string, args ...interface{}) {
	panic(fmt.Sprintf("tracker invariant violated: "+format, args...))
}
