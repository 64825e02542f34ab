package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/objectfusion/internal/monitoring"
)

// maxDatagram is the largest UDP payload accepted.
const maxDatagram = 64 * 1024

// ListenUDP decodes one wire batch per datagram received on addr until ctx
// is cancelled.
func ListenUDP(ctx context.Context, addr string, h Handler) (Stats, error) {
	var st Stats
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return st, fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return st, fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	defer conn.Close()
	monitoring.Logf("UDP detection listener started on %s", conn.LocalAddr())

	buf := make([]byte, maxDatagram)
	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		// Short deadlines let the loop notice cancellation.
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return st, ctx.Err()
			}
			monitoring.Logf("UDP read error: %v", err)
			continue
		}
		st.handle(ctx, buf[:n], h, "udp "+from.String())
	}
}
