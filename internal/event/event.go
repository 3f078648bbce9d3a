package event

import (
	"fmt"
	"strings"
	"time"
)

// Type is the event keyword of a generator log line.
type Type int

const (
	RECV Type = iota
	RERR
	SEND
	JOIN
	LEAVE
	LISTEN
	IGNORE
	ON
	CONNECT
	ACCEPT
	SHUTDOWN
	DISCONNECT
	OFF
	START
	STOP
)

var typeNames = [...]string{
	"RECV", "RERR", "SEND", "JOIN", "LEAVE", "LISTEN", "IGNORE", "ON", "CONNECT",
	"ACCEPT", "SHUTDOWN", "DISCONNECT", "OFF", "START", "STOP",
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t]
}

// ParseType matches a keyword case-insensitively against the known event types.
func ParseType(s string) (Type, bool) {
	for i, name := range typeNames {
		if strings.EqualFold(s, name) {
			return Type(i), true
		}
	}
	return 0, false
}

// GPS is a position fix attached to a received message.
type GPS struct {
	Status string
	Lat    float64
	Lon    float64
	Alt    float64
}

// Event is one parsed generator log record. Zero values mean the key was absent.
type Event struct {
	RxTime   time.Time
	Type     Type
	Protocol string
	FlowID   int
	Sequence int64
	SrcAddr  string
	SrcPort  int
	DstAddr  string
	DstPort  int
	TxTime   time.Time
	Size     int
	// GPS is nil when the line had no fix or reported INVALID.
	GPS *GPS
	// Data is the decoded payload; nil when the line carried none or it failed to decode.
	Data []byte
	// DataLength is the declared payload length exactly as logged.
	DataLength string
}

// HasPayload reports whether the event carries a decoded payload.
func (e *Event) HasPayload() bool {
	return e.Data != nil
}

// LengthMismatch reports whether the declared payload length differs from the
// decoded one. The generator does not guarantee they agree.
func (e *Event) LengthMismatch() bool {
	if e.DataLength == "" || e.Data == nil {
		return false
	}
	return e.DataLength != fmt.Sprint(len(e.Data))
}
