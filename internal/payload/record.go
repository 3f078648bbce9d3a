package payload

import (
	"Go2Mgen/internal/mgenerr"
	"bytes"
	"encoding/binary"
	"fmt"
)

// SenderLen is the width of the sender field of a Record.
const SenderLen = 48

// Record is a conversation message: thread, message number and the id of
// the node that sent it, big-endian.
type Record struct {
	ThreadID uint32
	MsgID    uint32
	Sender   [SenderLen]byte
}

// RecordSize is the encoded size of a Record.
const RecordSize = 4 + 4 + SenderLen

// NewRecord builds a Record. sender is truncated to SenderLen bytes.
func NewRecord(threadID, msgID uint32, sender string) Record {
	r := Record{ThreadID: threadID, MsgID: msgID}
	copy(r.Sender[:], sender)
	return r
}

// SenderID returns the sender without its NUL padding.
func (r Record) SenderID() string {
	return cString(r.Sender[:])
}

// UnmarshalRecord decodes the leading RecordSize bytes of b.
func UnmarshalRecord(b []byte) (Record, error) {
	var r Record
	if len(b) < RecordSize {
		return r, fmt.Errorf("%w: record needs %d bytes, got %d", mgenerr.ErrPayloadDecode, RecordSize, len(b))
	}
	if err := binary.Read(bytes.NewReader(b), binary.BigEndian, &r); err != nil {
		return r, fmt.Errorf("%w: record: %v", mgenerr.ErrPayloadDecode, err)
	}
	return r, nil
}
