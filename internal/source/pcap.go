package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// ReadPCAP replays the UDP payloads addressed to port from a classic pcap
// capture, decoding one wire batch per datagram. A port of zero accepts
// every UDP packet.
func ReadPCAP(ctx context.Context, r io.Reader, port int, h Handler) (Stats, error) {
	var st Stats
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return st, fmt.Errorf("open pcap: %w", err)
	}
	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		data, _, err := pr.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return st, nil
		}
		if err != nil {
			return st, fmt.Errorf("read pcap: %w", err)
		}
		packet := gopacket.NewPacket(data, pr.LinkType(), gopacket.NoCopy)
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp := udpLayer.(*layers.UDP)
		if port != 0 && int(udp.DstPort) != port {
			continue
		}
		st.handle(ctx, udp.Payload, h, "pcap")
	}
}
