package trackstore

import (
	"io"
	"log"
)

var opsLogger, diagLogger, traceLogger *log.Logger

// SetLogWriters configures the ops, diag and trace streams. A nil writer
// disables its stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	opsLogger = newLogger(ops)
	diagLogger = newLogger(diag)
	traceLogger = newLogger(trace)
}

func newLogger(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, "[trackstore] ", log.LstdFlags|log.Lmicroseconds)
}

func opsf(format string, args ...any) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}

func diagf(format string, args ...any) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}

func tracef(format string, args ...any) {
	if traceLogger != nil {
		traceLogger.Printf(format, args...)
	}
}
