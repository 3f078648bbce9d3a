// Package bus carries parsed generator events over NATS so that observers on
// other hosts can follow a session.
package bus

import (
	"Go2Mgen/internal/event"
	"encoding/hex"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// Message is an event together with the instance that logged it.
type Message struct {
	Instance string
	Event    *event.Event
}

// EncodeEvent converts an event into a protobuf Struct. Absent fields are
// omitted.
func EncodeEvent(instance string, ev *event.Event) (*structpb.Struct, error) {
	m := map[string]any{
		"instance": instance,
		"type":     ev.Type.String(),
		"rx_time":  ev.RxTime.UTC().Format(time.RFC3339Nano),
	}
	if ev.Protocol != "" {
		m["proto"] = ev.Protocol
	}
	if ev.FlowID != 0 {
		m["flow"] = ev.FlowID
	}
	if ev.Sequence != 0 {
		m["seq"] = ev.Sequence
	}
	if ev.SrcAddr != "" {
		m["src_addr"] = ev.SrcAddr
		m["src_port"] = ev.SrcPort
	}
	if ev.DstAddr != "" {
		m["dst_addr"] = ev.DstAddr
		m["dst_port"] = ev.DstPort
	}
	if !ev.TxTime.IsZero() {
		m["tx_time"] = ev.TxTime.UTC().Format(time.RFC3339Nano)
	}
	if ev.Size != 0 {
		m["size"] = ev.Size
	}
	if ev.GPS != nil {
		m["gps"] = map[string]any{
			"status": ev.GPS.Status,
			"lat":    ev.GPS.Lat,
			"lon":    ev.GPS.Lon,
			"alt":    ev.GPS.Alt,
		}
	}
	if ev.Data != nil {
		m["data"] = hex.EncodeToString(ev.Data)
	}
	if ev.DataLength != "" {
		m["data_length"] = ev.DataLength
	}
	return structpb.NewStruct(m)
}

// DecodeEvent is the inverse of EncodeEvent.
func DecodeEvent(s *structpb.Struct) (Message, error) {
	f := s.GetFields()
	str := func(k string) string { return f[k].GetStringValue() }
	num := func(k string) float64 { return f[k].GetNumberValue() }

	etype, ok := event.ParseType(str("type"))
	if !ok {
		return Message{}, fmt.Errorf("unknown event type %q", str("type"))
	}
	ev := &event.Event{
		Type:       etype,
		Protocol:   str("proto"),
		FlowID:     int(num("flow")),
		Sequence:   int64(num("seq")),
		SrcAddr:    str("src_addr"),
		SrcPort:    int(num("src_port")),
		DstAddr:    str("dst_addr"),
		DstPort:    int(num("dst_port")),
		Size:       int(num("size")),
		DataLength: str("data_length"),
	}
	var err error
	if ev.RxTime, err = parseTime(str("rx_time")); err != nil {
		return Message{}, err
	}
	if ev.TxTime, err = parseTime(str("tx_time")); err != nil {
		return Message{}, err
	}
	if g := f["gps"].GetStructValue(); g != nil {
		gf := g.GetFields()
		ev.GPS = &event.GPS{
			Status: gf["status"].GetStringValue(),
			Lat:    gf["lat"].GetNumberValue(),
			Lon:    gf["lon"].GetNumberValue(),
			Alt:    gf["alt"].GetNumberValue(),
		}
	}
	if v, ok := f["data"]; ok {
		if ev.Data, err = hex.DecodeString(v.GetStringValue()); err != nil {
			return Message{}, fmt.Errorf("decode data: %w", err)
		}
	}
	return Message{Instance: str("instance"), Event: ev}, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode time %q: %w", s, err)
	}
	return t, nil
}
