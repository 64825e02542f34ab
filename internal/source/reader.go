package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/objectfusion/internal/monitoring"
)

// maxLineBytes bounds a single JSON line.
const maxLineBytes = 1 << 20

// Handler receives every decoded batch. A returned error is counted and
// logged; reading continues.
type Handler func(ctx context.Context, w WireBatch) error

// Stats counts what a reader saw.
type Stats struct {
	Records   int // lines, datagrams or packets inspected
	Decoded   int
	Malformed int
	Rejected  int // decoded but refused by the handler
}

func (s *Stats) handle(ctx context.Context, data []byte, h Handler, origin string) {
	s.Records++
	w, err := Decode(data)
	if err != nil {
		s.Malformed++
		monitoring.Logf("source %s: %v", origin, err)
		return
	}
	s.Decoded++
	if err := h(ctx, w); err != nil {
		s.Rejected++
		monitoring.Logf("source %s: batch at %s rejected: %v", origin, w.Stamp, err)
	}
}

// ReadLines decodes one wire batch per line from r until EOF or ctx is
// cancelled. Blank lines and lines starting with '#' are ignored.
func ReadLines(ctx context.Context, r io.Reader, origin string, h Handler) (Stats, error) {
	var st Stats
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		st.handle(ctx, line, h, origin)
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) {
		return st, fmt.Errorf("read %s: %w", origin, err)
	}
	return st, nil
}
