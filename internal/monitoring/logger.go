// Package monitoring holds the log hook shared by the detection source
// readers. Commands point it at their own logger and tests silence it.
package monitoring

import "log"

// Logf receives source-level diagnostics: malformed records, rejected
// batches and listener errors.
var Logf func(format string, v ...any) = log.Printf

// SetLogger replaces Logf. nil installs Discard.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		f = Discard
	}
	Logf = f
}

// Discard drops its arguments.
func Discard(string, ...any) {}
