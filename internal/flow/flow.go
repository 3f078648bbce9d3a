// Package flow models generator traffic flows and translates their mutations
// into generator script commands.
//
// A Flow starts detached. Adding it to a Registry attaches it to the
// registry's Controller; from then on Start emits a full "on" command, setters
// on an active flow emit targeted "mod" commands and Stop emits "off".
package flow

import (
	"Go2Mgen/internal/mgenerr"
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MaxPayloadLen is the largest payload, in bytes, a flow may carry.
const MaxPayloadLen = 255

// Protocol is the transport a flow runs over.
type Protocol string

const (
	UDP  Protocol = "udp"
	TCP  Protocol = "tcp"
	SINK Protocol = "sink"
)

// ParseProtocol matches s case-insensitively against the supported protocols.
func ParseProtocol(s string) (Protocol, error) {
	switch p := Protocol(strings.ToLower(s)); p {
	case UDP, TCP, SINK:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", mgenerr.ErrInvalidProtocol, s)
}

// Controller receives the script events a flow emits.
type Controller interface {
	SendEvent(text string) error
}

// Flow is one logical generator traffic flow.
type Flow struct {
	mu sync.Mutex

	id       int
	protocol Protocol
	dstAddr  string
	dstPort  int
	pattern  string
	srcPort  *int
	iface    string
	count    *int
	sequence *int
	tos      *int
	ttl      *int
	data     string
	hasData  bool
	active   bool
	registry *Registry
}

// New creates a detached flow with the given id.
func New(id int) *Flow {
	return &Flow{id: id}
}

// Info is a point-in-time copy of a flow's parameters.
type Info struct {
	ID          int
	Protocol    Protocol
	Destination string
	Pattern     string
	Active      bool
	Attached    bool
	Payload     string
}

// Info returns a snapshot of the flow for reporting.
func (f *Flow) Info() Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	info := Info{
		ID:       f.id,
		Protocol: f.protocol,
		Pattern:  f.pattern,
		Active:   f.active,
		Attached: f.registry != nil,
		Payload:  f.data,
	}
	if f.dstAddr != "" {
		info.Destination = f.dstAddr + "/" + strconv.Itoa(f.dstPort)
	}
	return info
}

// ID returns the flow id.
func (f *Flow) ID() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

// Active reports whether the flow has been started and not stopped.
func (f *Flow) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// Attached reports whether the flow belongs to a registry.
func (f *Flow) Attached() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registry != nil
}

// Protocol returns the transport protocol, empty until set.
func (f *Flow) Protocol() Protocol {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.protocol
}

// Destination returns the destination address and port.
func (f *Flow) Destination() (string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dstAddr, f.dstPort
}

// Pattern returns the traffic pattern text.
func (f *Flow) Pattern() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pattern
}

// Valid reports whether id, protocol, destination and pattern are all set.
func (f *Flow) Valid() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validLocked()
}

func (f *Flow) validLocked() bool {
	return f.id > 0 && f.protocol != "" && f.dstAddr != "" && f.pattern != ""
}

func (f *Flow) controllerLocked() Controller {
	if f.registry == nil {
		return nil
	}
	return f.registry.ctrl
}

// Start issues the full "on" command, optionally delayed, and marks the flow
// active. It does nothing when the flow is detached or not valid.
func (f *Flow) Start(delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startLocked(delay)
}

func (f *Flow) startLocked(delay time.Duration) error {
	ctrl := f.controllerLocked()
	if ctrl == nil || !f.validLocked() {
		return nil
	}
	if err := ctrl.SendEvent(f.onCommandLocked(delay)); err != nil {
		return fmt.Errorf("flow %d: start: %w", f.id, err)
	}
	f.active = true
	return nil
}

func (f *Flow) onCommandLocked(delay time.Duration) string {
	var b strings.Builder
	if delay > 0 {
		b.WriteString(strconv.FormatFloat(delay.Seconds(), 'f', -1, 64))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "on %d %s dst %s/%d %s", f.id, f.protocol, f.dstAddr, f.dstPort, f.pattern)
	if f.srcPort != nil {
		fmt.Fprintf(&b, " src %d", *f.srcPort)
	}
	if f.iface != "" {
		fmt.Fprintf(&b, " interface %s", f.iface)
	}
	if f.count != nil {
		fmt.Fprintf(&b, " count %d", *f.count)
	}
	if f.sequence != nil {
		fmt.Fprintf(&b, " sequence %d", *f.sequence)
	}
	if f.tos != nil {
		fmt.Fprintf(&b, " tos %d", *f.tos)
	}
	if f.ttl != nil {
		fmt.Fprintf(&b, " ttl %d", *f.ttl)
	}
	if f.hasData {
		fmt.Fprintf(&b, " data [%s]", f.data)
	}
	return b.String()
}

// Stop issues "off" for an active, attached flow. Stopping an inactive flow is a no-op.
func (f *Flow) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopLocked()
}

func (f *Flow) stopLocked() error {
	ctrl := f.controllerLocked()
	if ctrl == nil || !f.active {
		return nil
	}
	// The generator turns the flow off even if the caller never sees a reply,
	// so the flow is marked inactive before the send result is known.
	f.active = false
	if err := ctrl.SendEvent(fmt.Sprintf("off %d", f.id)); err != nil {
		return fmt.Errorf("flow %d: stop: %w", f.id, err)
	}
	return nil
}

// modLocked emits "mod <id> <change>" when the flow is running.
func (f *Flow) modLocked(change string) error {
	if !f.active {
		return nil
	}
	ctrl := f.controllerLocked()
	if ctrl == nil {
		return nil
	}
	if err := ctrl.SendEvent(fmt.Sprintf("mod %d %s", f.id, change)); err != nil {
		return fmt.Errorf("flow %d: mod: %w", f.id, err)
	}
	return nil
}

// SetID changes the flow id. A running flow is stopped, re-keyed in its
// registry and restarted under the new id.
func (f *Flow) SetID(id int) error {
	f.mu.Lock()
	if f.id == id {
		f.mu.Unlock()
		return nil
	}
	restart := f.active
	if restart {
		if err := f.stopLocked(); err != nil {
			f.mu.Unlock()
			return err
		}
	}
	reg := f.registry
	f.mu.Unlock()

	if reg != nil {
		reg.Remove(f)
	}
	f.mu.Lock()
	f.id = id
	f.mu.Unlock()
	if reg != nil {
		if err := reg.Add(f); err != nil {
			return err
		}
	}
	if restart {
		return f.Start(0)
	}
	return nil
}

// SetProtocol changes the transport. The generator cannot modify a running
// flow's protocol, so an active flow is stopped and started again.
func (f *Flow) SetProtocol(p Protocol) error {
	proto, err := ParseProtocol(string(p))
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.protocol = proto
	if !f.active {
		return nil
	}
	if err := f.stopLocked(); err != nil {
		return err
	}
	return f.startLocked(0)
}

// SetDestination sets the destination address and port.
func (f *Flow) SetDestination(addr string, port int) error {
	if strings.TrimSpace(addr) == "" {
		return fmt.Errorf("flow destination: %w: address must not be empty", mgenerr.ErrInvalidAddress)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dstAddr = addr
	f.dstPort = port
	return f.modLocked(fmt.Sprintf("dst %s/%d", addr, port))
}

func (f *Flow) SetInterface(iface string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.iface = iface
	return f.modLocked("interface " + iface)
}

// SetSource sets the source port.
func (f *Flow) SetSource(port int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.srcPort = &port
	return f.modLocked(fmt.Sprintf("src %d", port))
}

// SetPattern sets the opaque traffic pattern, e.g. "periodic [1 1024]".
func (f *Flow) SetPattern(pattern string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pattern = pattern
	return f.modLocked(pattern)
}

func (f *Flow) SetCount(count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count = &count
	return f.modLocked(fmt.Sprintf("count %d", count))
}

func (f *Flow) SetSequence(seq int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sequence = &seq
	return f.modLocked(fmt.Sprintf("sequence %d", seq))
}

func (f *Flow) SetTOS(tos int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tos = &tos
	return f.modLocked(fmt.Sprintf("tos %d", tos))
}

func (f *Flow) SetTTL(ttl int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttl = &ttl
	return f.modLocked(fmt.Sprintf("ttl %d", ttl))
}

// SetTextPayload stores text as the flow payload. Text longer than
// MaxPayloadLen bytes is rejected; callers truncate before calling if needed.
func (f *Flow) SetTextPayload(text string) error {
	return f.SetBinaryPayload([]byte(text))
}

// SetBinaryPayload stores raw bytes as the flow payload.
func (f *Flow) SetBinaryPayload(buf []byte) error {
	if len(buf) > MaxPayloadLen {
		return fmt.Errorf("flow payload: %w: %d bytes exceeds %d", mgenerr.ErrPayloadTooLarge, len(buf), MaxPayloadLen)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = hex.EncodeToString(buf)
	f.hasData = true
	return f.modLocked(fmt.Sprintf("data [%s]", f.data))
}

// SetStructPayload encodes a fixed-layout value in network byte order and
// stores it as the flow payload. v must be accepted by encoding/binary.
func (f *Flow) SetStructPayload(v any) error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
		return fmt.Errorf("flow payload: encode %T: %w", v, err)
	}
	return f.SetBinaryPayload(buf.Bytes())
}

// ClearPayload removes the payload from future "on" commands. It sends
// nothing: an active flow keeps sending its old data until it is restarted.
func (f *Flow) ClearPayload() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = ""
	f.hasData = false
}

// PayloadHex returns the payload in its wire (hex) form.
func (f *Flow) PayloadHex() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data, f.hasData
}

// Payload returns the decoded payload bytes, or nil when none is set.
func (f *Flow) Payload() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.hasData {
		return nil
	}
	buf, _ := hex.DecodeString(f.data)
	return buf
}

// TextPayload returns the payload as text.
func (f *Flow) TextPayload() (string, bool) {
	buf := f.Payload()
	if buf == nil {
		return "", false
	}
	return string(buf), true
}
