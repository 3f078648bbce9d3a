package event

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const timestampLayout = "15:04:05.000000"

// FormatTimestamp renders t in the legacy log time-of-day form.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// String renders the event in the generator log grammar. Only keys that carry a
// value are written, so Parse(e.String()) reproduces e.
func (e *Event) String() string {
	var b strings.Builder
	b.WriteString(FormatTimestamp(e.RxTime))
	b.WriteByte(' ')
	b.WriteString(e.Type.String())
	if e.Protocol != "" {
		fmt.Fprintf(&b, " proto>%s", e.Protocol)
	}
	if e.FlowID != 0 {
		fmt.Fprintf(&b, " flow>%d", e.FlowID)
	}
	if e.Sequence != 0 {
		fmt.Fprintf(&b, " seq>%d", e.Sequence)
	}
	if e.SrcAddr != "" {
		fmt.Fprintf(&b, " src>%s/%d", e.SrcAddr, e.SrcPort)
	}
	if e.DstAddr != "" {
		fmt.Fprintf(&b, " dst>%s/%d", e.DstAddr, e.DstPort)
	}
	if !e.TxTime.IsZero() {
		fmt.Fprintf(&b, " sent>%s", FormatTimestamp(e.TxTime))
	}
	if e.Size != 0 {
		fmt.Fprintf(&b, " size>%d", e.Size)
	}
	if e.GPS != nil {
		fmt.Fprintf(&b, " gps>%s,%f,%f,%f", e.GPS.Status, e.GPS.Lat, e.GPS.Lon, e.GPS.Alt)
	}
	if e.Data != nil {
		length := e.DataLength
		if length == "" {
			length = fmt.Sprint(len(e.Data))
		}
		fmt.Fprintf(&b, " data>%s:%s", length, hex.EncodeToString(e.Data))
	}
	return b.String()
}
