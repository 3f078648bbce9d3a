package event

import (
	"Go2Mgen/internal/mgenerr"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parse converts one generator log line of the form
// "<HH:MM:SS.ffffff> <TYPE> key>value key>value ..." into an Event.
//
// A line that cannot be parsed returns a nil Event and an error wrapping
// mgenerr.ErrMalformedEvent. A payload that fails to hex-decode returns the
// Event (with nil Data) together with an error wrapping mgenerr.ErrPayloadDecode.
// Tokens that are not key>value pairs and unknown keys are ignored.
func Parse(line string) (*Event, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: expected timestamp and event type in %q", mgenerr.ErrMalformedEvent, line)
	}

	rxTime, err := ParseTimestamp(fields[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mgenerr.ErrMalformedEvent, err)
	}
	etype, ok := ParseType(fields[1])
	if !ok {
		return nil, fmt.Errorf("%w: unknown event type %q", mgenerr.ErrMalformedEvent, fields[1])
	}

	ev := &Event{RxTime: rxTime, Type: etype}
	var payloadErr error
	for _, item := range fields[2:] {
		key, value, found := strings.Cut(item, ">")
		if !found {
			continue
		}
		switch key {
		case "proto":
			ev.Protocol = value
		case "flow":
			if ev.FlowID, err = strconv.Atoi(value); err != nil {
				return nil, fmt.Errorf("%w: bad flow id %q", mgenerr.ErrMalformedEvent, value)
			}
		case "seq":
			if ev.Sequence, err = strconv.ParseInt(value, 10, 64); err != nil {
				return nil, fmt.Errorf("%w: bad sequence %q", mgenerr.ErrMalformedEvent, value)
			}
		case "src":
			if ev.SrcAddr, ev.SrcPort, err = splitAddr(value); err != nil {
				return nil, err
			}
		case "dst":
			if ev.DstAddr, ev.DstPort, err = splitAddr(value); err != nil {
				return nil, err
			}
		case "sent":
			if ev.TxTime, err = ParseTimestamp(value); err != nil {
				return nil, fmt.Errorf("%w: bad sent time: %v", mgenerr.ErrMalformedEvent, err)
			}
		case "size":
			if ev.Size, err = strconv.Atoi(value); err != nil {
				return nil, fmt.Errorf("%w: bad size %q", mgenerr.ErrMalformedEvent, value)
			}
		case "gps":
			if ev.GPS, err = parseGPS(value); err != nil {
				return nil, err
			}
		case "data":
			length, payload, found := strings.Cut(value, ":")
			if !found {
				payloadErr = fmt.Errorf("%w: data field %q has no length prefix", mgenerr.ErrPayloadDecode, value)
				continue
			}
			ev.DataLength = length
			data, err := hex.DecodeString(payload)
			if err != nil {
				payloadErr = fmt.Errorf("%w: %v", mgenerr.ErrPayloadDecode, err)
				continue
			}
			ev.Data = data
		}
	}
	return ev, payloadErr
}

// ParseTimestamp accepts the legacy "HH:MM:SS.ffffff" time-of-day form and the
// epoch "sec.usec" form.
func ParseTimestamp(s string) (time.Time, error) {
	if strings.Contains(s, ":") {
		t, err := time.Parse("15:04:05", s)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
		}
		return t, nil
	}
	secText, fracText, _ := strings.Cut(s, ".")
	sec, err := strconv.ParseInt(secText, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	var nsec int64
	if fracText != "" {
		if len(fracText) > 9 {
			fracText = fracText[:9]
		}
		fracText += strings.Repeat("0", 9-len(fracText))
		if nsec, err = strconv.ParseInt(fracText, 10, 64); err != nil {
			return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
		}
	}
	return time.Unix(sec, nsec).UTC(), nil
}

func splitAddr(value string) (string, int, error) {
	addr, portText, found := strings.Cut(value, "/")
	if !found {
		return value, 0, nil
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		return "", 0, fmt.Errorf("%w: bad port in %q", mgenerr.ErrMalformedEvent, value)
	}
	return addr, port, nil
}

func parseGPS(value string) (*GPS, error) {
	parts := strings.Split(value, ",")
	if parts[0] == "INVALID" {
		return nil, nil
	}
	if len(parts) < 4 {
		return nil, fmt.Errorf("%w: gps field %q", mgenerr.ErrMalformedEvent, value)
	}
	fix := &GPS{Status: parts[0]}
	var err error
	for i, dst := range []*float64{&fix.Lat, &fix.Lon, &fix.Alt} {
		if *dst, err = strconv.ParseFloat(parts[i+1], 64); err != nil {
			return nil, fmt.Errorf("%w: gps field %q", mgenerr.ErrMalformedEvent, value)
		}
	}
	return fix, nil
}
