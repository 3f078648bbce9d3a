package pcap

import (
	"Go2Mgen/internal/event"
	"Go2Mgen/internal/mgenerr"
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Version is the only generator message version DecodeMessage accepts.
const Version = 2

// HeaderMinSize covers the fixed fields up to and including the destination
// address type and length.
const HeaderMinSize = 24

const (
	addrIPv4 = 1
	addrIPv6 = 2
)

// ErrNotUDP is returned for packets without an IPv4 UDP datagram.
var ErrNotUDP = errors.New("not an IPv4 UDP packet")

// Message is the fixed header every generated datagram starts with.
type Message struct {
	Size     uint16
	Version  uint8
	Flags    uint8
	FlowID   uint32
	Sequence uint32
	TxTime   time.Time
	DstAddr  netip.Addr
	DstPort  uint16
}

// DecodeMessage reads the header from the start of a UDP payload.
func DecodeMessage(b []byte) (*Message, error) {
	if len(b) < HeaderMinSize {
		return nil, fmt.Errorf("%w: header needs %d bytes, have %d", mgenerr.ErrPayloadDecode, HeaderMinSize, len(b))
	}
	m := &Message{
		Size:     binary.BigEndian.Uint16(b[0:2]),
		Version:  b[2],
		Flags:    b[3],
		FlowID:   binary.BigEndian.Uint32(b[4:8]),
		Sequence: binary.BigEndian.Uint32(b[8:12]),
		DstPort:  binary.BigEndian.Uint16(b[20:22]),
	}
	if m.Version != Version {
		return nil, fmt.Errorf("%w: unsupported message version %d", mgenerr.ErrPayloadDecode, m.Version)
	}
	sec := binary.BigEndian.Uint32(b[12:16])
	usec := binary.BigEndian.Uint32(b[16:20])
	m.TxTime = time.Unix(int64(sec), int64(usec)*1000).UTC()

	addrType, addrLen := b[22], int(b[23])
	if len(b) < HeaderMinSize+addrLen {
		return nil, fmt.Errorf("%w: truncated destination address", mgenerr.ErrPayloadDecode)
	}
	raw := b[HeaderMinSize : HeaderMinSize+addrLen]
	switch {
	case addrType == addrIPv4 && addrLen == 4:
		m.DstAddr = netip.AddrFrom4([4]byte(raw))
	case addrType == addrIPv6 && addrLen == 16:
		m.DstAddr = netip.AddrFrom16([16]byte(raw))
	default:
		return nil, fmt.Errorf("%w: destination address type %d length %d", mgenerr.ErrPayloadDecode, addrType, addrLen)
	}
	return m, nil
}

// Encode writes the header in wire order, zero-padded to Size bytes.
func (m *Message) Encode() []byte {
	raw := m.DstAddr.AsSlice()
	n := HeaderMinSize + len(raw)
	if int(m.Size) > n {
		n = int(m.Size)
	}
	b := make([]byte, n)
	binary.BigEndian.PutUint16(b[0:2], m.Size)
	b[2] = m.Version
	b[3] = m.Flags
	binary.BigEndian.PutUint32(b[4:8], m.FlowID)
	binary.BigEndian.PutUint32(b[8:12], m.Sequence)
	binary.BigEndian.PutUint32(b[12:16], uint32(m.TxTime.Unix()))
	binary.BigEndian.PutUint32(b[16:20], uint32(m.TxTime.Nanosecond()/1000))
	binary.BigEndian.PutUint16(b[20:22], m.DstPort)
	if m.DstAddr.Is4() {
		b[22] = addrIPv4
	} else {
		b[22] = addrIPv6
	}
	b[23] = byte(len(raw))
	copy(b[HeaderMinSize:], raw)
	return b
}

// ParsePacket decodes a captured frame into a RECV event. The source comes
// from the IP and UDP headers; flow, sequence, sent time and destination come
// from the generator header. A UDP payload that is not a generator message
// still yields an event, together with an error wrapping ErrPayloadDecode.
func ParsePacket(packet gopacket.Packet) (*event.Event, error) {
	ipLayer, ok := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok {
		return nil, ErrNotUDP
	}
	udpLayer, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
	if !ok {
		return nil, ErrNotUDP
	}

	ev := &event.Event{
		Type:     event.RECV,
		Protocol: "UDP",
		SrcAddr:  ipLayer.SrcIP.String(),
		SrcPort:  int(udpLayer.SrcPort),
		DstAddr:  ipLayer.DstIP.String(),
		DstPort:  int(udpLayer.DstPort),
		Size:     len(udpLayer.Payload),
	}
	if meta := packet.Metadata(); meta != nil {
		ev.RxTime = meta.Timestamp
	}

	msg, err := DecodeMessage(udpLayer.Payload)
	if err != nil {
		return ev, err
	}
	ev.FlowID = int(msg.FlowID)
	ev.Sequence = int64(msg.Sequence)
	ev.TxTime = msg.TxTime
	ev.DstAddr = msg.DstAddr.String()
	ev.DstPort = int(msg.DstPort)
	if msg.Size != 0 {
		ev.Size = int(msg.Size)
	}
	return ev, nil
}
