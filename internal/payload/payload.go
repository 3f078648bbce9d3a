// Package payload decodes the application payloads carried in generator
// messages into a closed set of variants and encodes the fixed-layout records
// used by conversations and remote commands.
package payload

import (
	"Go2Mgen/internal/mgenerr"
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// Payload is one of AckRequest, FunctionCall, StructCommand or RawText.
type Payload interface {
	isPayload()
}

// AckRequest is an empty payload asking the receiver to acknowledge.
type AckRequest struct{}

// FunctionCall names a behaviour the receiver should run.
type FunctionCall struct {
	Name string
}

// StructCommand is a script event packed as a binary record.
type StructCommand struct {
	FlowID uint16
	Verb   string
	Value  string
	Offset float32
}

// RawText is any payload not recognised as one of the other variants.
type RawText struct {
	Text string
}

func (AckRequest) isPayload()    {}
func (FunctionCall) isPayload()  {}
func (StructCommand) isPayload() {}
func (RawText) isPayload()       {}

// Well-known payload prefixes.
const (
	tagVoIP     = "01"
	tagStream   = "02"
	tagFunction = "03"
	tagStruct   = 0xff
)

// Behaviour names carried by the well-known tags.
const (
	VoIP   = "voip"
	Stream = "stream"
)

// Decode classifies a received payload.
func Decode(data []byte) (Payload, error) {
	if len(data) == 0 {
		return AckRequest{}, nil
	}
	if data[0] == tagStruct {
		return decodeStructCommand(data[1:])
	}
	text := string(data)
	switch {
	case strings.HasPrefix(text, tagVoIP):
		return FunctionCall{Name: VoIP}, nil
	case strings.HasPrefix(text, tagStream):
		return FunctionCall{Name: Stream}, nil
	case strings.HasPrefix(text, tagFunction) && len(text) > len(tagFunction):
		return FunctionCall{Name: text[len(tagFunction):]}, nil
	}
	return RawText{Text: text}, nil
}

// EncodeFunctionCall returns the payload that invokes the named behaviour.
func EncodeFunctionCall(name string) []byte {
	switch name {
	case VoIP:
		return []byte(tagVoIP)
	case Stream:
		return []byte(tagStream)
	}
	return []byte(tagFunction + name)
}

// structWire is the big-endian layout of a StructCommand after its tag byte.
type structWire struct {
	FlowID uint16
	Verb   [3]byte
	Value  [18]byte
	Offset float32
}

// StructCommandSize is the encoded size of a StructCommand including its tag.
var StructCommandSize = 1 + binary.Size(structWire{})

func decodeStructCommand(b []byte) (Payload, error) {
	var w structWire
	if err := binary.Read(bytes.NewReader(b), binary.BigEndian, &w); err != nil {
		return nil, fmt.Errorf("%w: struct command: %v", mgenerr.ErrPayloadDecode, err)
	}
	return StructCommand{
		FlowID: w.FlowID,
		Verb:   cString(w.Verb[:]),
		Value:  cString(w.Value[:]),
		Offset: w.Offset,
	}, nil
}

// Encode packs c behind its tag byte. Verb and value are truncated to their
// field widths.
func (c StructCommand) Encode() []byte {
	w := structWire{FlowID: c.FlowID, Offset: c.Offset}
	copy(w.Verb[:], c.Verb)
	copy(w.Value[:], c.Value)
	var buf bytes.Buffer
	buf.WriteByte(tagStruct)
	if err := binary.Write(&buf, binary.BigEndian, &w); err != nil {
		// structWire has a fixed layout.
		panic(fmt.Sprintf("payload: encode struct command: %v", err))
	}
	return buf.Bytes()
}

// EventLine renders the command as a script event, for example
// "3.134500 mod 1 periodic [1 2048]".
func (c StructCommand) EventLine() string {
	line := fmt.Sprintf("%f %s %d", c.Offset, c.Verb, c.FlowID)
	if c.Value != "" {
		line += " " + c.Value
	}
	return line
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
