// Package pcap turns captured generator traffic into RECV events, so a capture
// can be replayed through the same sinks as a live session's log.
package pcap

import (
	"Go2Mgen/internal/event"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
)

// Stats counts what ReadEvents did with each packet.
type Stats struct {
	Packets int
	Events  int
	Skipped int
	Foreign int
}

// Reader reads packets from a pcap file.
type Reader struct {
	file   *os.File
	source *gopacket.PacketSource
}

// NewReader creates a new pcap reader for the given file path.
func NewReader(filePath string) (*Reader, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read pcap header: %w", err)
	}
	return &Reader{file: f, source: gopacket.NewPacketSource(r, r.LinkType())}, nil
}

// Close closes the capture file.
func (r *Reader) Close() {
	r.file.Close()
}

// ReadEvents decodes every packet and sends the resulting events to out.
// Non-UDP packets are skipped. UDP datagrams without a generator header are
// forwarded only when foreign is set. out is not closed.
func (r *Reader) ReadEvents(out chan<- *event.Event, foreign bool) Stats {
	var st Stats
	for packet := range r.source.Packets() {
		st.Packets++
		ev, err := ParsePacket(packet)
		if errors.Is(err, ErrNotUDP) {
			st.Skipped++
			continue
		}
		if err != nil {
			st.Foreign++
			if !foreign {
				log.Printf("Skipping packet %d: %v", st.Packets, err)
				continue
			}
		}
		st.Events++
		out <- ev
	}
	return st
}
