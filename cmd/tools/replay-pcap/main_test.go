package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/objectfusion/internal/trackstore"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// batches returns n JSON batches 100ms apart with one stationary car.
func batches(n int) []string {
	out := make([]string, n)
	for i := range out {
		stamp := start.Add(time.Duration(i) * 100 * time.Millisecond)
		out[i] = fmt.Sprintf(`{"stamp":%q,"frame_id":"base_link","ego":{"x":0,"y":0},`+
			`"objects":[{"class":"car","pose":{"x":10,"y":2},"position_cov":[0.1,0,0,0.1],"yaw_var":0.01,`+
			`"shape":{"length":4.5,"width":1.8,"height":1.5}}]}`, stamp.Format(time.RFC3339Nano))
	}
	return out
}

func checkStore(t *testing.T, path string) {
	t.Helper()
	store, err := trackstore.Open(path)
	require.NoError(t, err)
	defer store.Close()
	snaps, err := store.RecentSnapshots(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, snaps, 4)
	assert.Equal(t, 1, snaps[0].ObjectCount, "confirmed by the last cycle")
	assert.Equal(t, start.Add(300*time.Millisecond), snaps[0].Stamp)
}

func TestReplayLines(t *testing.T) {
	dir := t.TempDir()
	lines := filepath.Join(dir, "detections.jsonl")
	require.NoError(t, os.WriteFile(lines, []byte(strings.Join(batches(4), "\n")+"\n"), 0644))

	cfg := Config{LinesFile: lines, DBPath: filepath.Join(dir, "replay.db"), Channel: "lidar"}
	res, err := run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Source.Decoded)
	assert.Equal(t, uint64(4), res.Engine.Cycles)
	assert.Equal(t, uint64(1), res.Engine.Tracker.Created)
	assert.Equal(t, uint64(1), res.Engine.Tracker.Confirmed)
	checkStore(t, cfg.DBPath)
}

func frame(t *testing.T, payload string) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 0, 2),
		DstIP:    net.IPv4(10, 0, 0, 1),
	}
	udp := &layers.UDP{SrcPort: 50000, DstPort: 2370}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func TestReplayPCAP(t *testing.T) {
	dir := t.TempDir()
	capture := filepath.Join(dir, "detections.pcap")
	f, err := os.Create(capture)
	require.NoError(t, err)
	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	for i, b := range batches(4) {
		data := frame(t, b)
		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * 100 * time.Millisecond),
			CaptureLength: len(data),
			Length:        len(data),
		}
		require.NoError(t, w.WritePacket(ci, data))
	}
	require.NoError(t, f.Close())

	cfg := Config{PCAPFile: capture, UDPPort: 2370, DBPath: filepath.Join(dir, "replay.db"), Channel: "lidar"}
	res, err := run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Source.Records)
	assert.Equal(t, uint64(4), res.Engine.Cycles)
	checkStore(t, cfg.DBPath)
}
