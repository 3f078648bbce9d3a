package flow

import (
	"Go2Mgen/internal/event"
	"Go2Mgen/internal/mgenerr"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects the events a flow emits.
type recorder struct {
	sent []string
	fail error
}

func (r *recorder) SendEvent(text string) error {
	if r.fail != nil {
		return r.fail
	}
	r.sent = append(r.sent, text)
	return nil
}

func (r *recorder) last() string {
	if len(r.sent) == 0 {
		return ""
	}
	return r.sent[len(r.sent)-1]
}

func newValidFlow(t *testing.T, id int) *Flow {
	t.Helper()
	f := New(id)
	require.NoError(t, f.SetProtocol(UDP))
	require.NoError(t, f.SetDestination("127.0.0.1", 5000))
	require.NoError(t, f.SetPattern("periodic [1 1024]"))
	return f
}

func TestFlow_StartStop(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry(rec)
	f := newValidFlow(t, 1)
	require.NoError(t, reg.Add(f))
	assert.Empty(t, rec.sent, "attaching must not emit")

	require.NoError(t, f.Start(0))
	assert.True(t, f.Active())
	assert.Equal(t, "on 1 udp dst 127.0.0.1/5000 periodic [1 1024]", rec.last())

	require.NoError(t, f.Stop())
	assert.False(t, f.Active())
	assert.True(t, f.Attached())
	assert.Equal(t, "off 1", rec.last())

	// A second stop is a no-op.
	require.NoError(t, f.Stop())
	assert.Len(t, rec.sent, 2)
}

func TestFlow_StartCarriesOptionalParameters(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry(rec)
	f := newValidFlow(t, 4)
	require.NoError(t, f.SetSource(6000))
	require.NoError(t, f.SetInterface("eth0"))
	require.NoError(t, f.SetCount(10))
	require.NoError(t, f.SetSequence(3))
	require.NoError(t, f.SetTOS(16))
	require.NoError(t, f.SetTTL(8))
	require.NoError(t, f.SetTextPayload("hi"))
	require.NoError(t, reg.Add(f))
	assert.Empty(t, rec.sent, "setters on an inactive flow must not emit")

	require.NoError(t, f.Start(1500*time.Millisecond))
	assert.Equal(t,
		"1.5 on 4 udp dst 127.0.0.1/5000 periodic [1 1024] src 6000 interface eth0 count 10 sequence 3 tos 16 ttl 8 data [6869]",
		rec.last())
}

func TestFlow_StartIsNoOpWhenDetachedOrInvalid(t *testing.T) {
	detached := newValidFlow(t, 1)
	require.NoError(t, detached.Start(0))
	assert.False(t, detached.Active())

	rec := &recorder{}
	reg := NewRegistry(rec)
	invalid := New(2)
	require.NoError(t, invalid.SetProtocol(TCP))
	require.NoError(t, reg.Add(invalid))
	require.NoError(t, invalid.Start(0))
	assert.False(t, invalid.Active())
	assert.Empty(t, rec.sent)
}

func TestFlow_SettersOnActiveFlowEmitMod(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry(rec)
	f := newValidFlow(t, 7)
	require.NoError(t, reg.Add(f))
	require.NoError(t, f.Start(0))

	steps := []struct {
		apply func() error
		want  string
	}{
		{func() error { return f.SetDestination("10.0.0.9", 6001) }, "mod 7 dst 10.0.0.9/6001"},
		{func() error { return f.SetInterface("wlan0") }, "mod 7 interface wlan0"},
		{func() error { return f.SetSource(7000) }, "mod 7 src 7000"},
		{func() error { return f.SetPattern("poisson [5 256]") }, "mod 7 poisson [5 256]"},
		{func() error { return f.SetCount(2) }, "mod 7 count 2"},
		{func() error { return f.SetSequence(40) }, "mod 7 sequence 40"},
		{func() error { return f.SetTOS(4) }, "mod 7 tos 4"},
		{func() error { return f.SetTTL(2) }, "mod 7 ttl 2"},
		{func() error { return f.SetBinaryPayload([]byte{0xde, 0xad}) }, "mod 7 data [dead]"},
	}
	for _, step := range steps {
		before := len(rec.sent)
		require.NoError(t, step.apply())
		require.Len(t, rec.sent, before+1)
		assert.Equal(t, step.want, rec.last())
	}
}

func TestFlow_ProtocolChangeRestarts(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry(rec)
	f := newValidFlow(t, 3)
	require.NoError(t, reg.Add(f))
	require.NoError(t, f.Start(0))
	rec.sent = nil

	require.NoError(t, f.SetProtocol("TCP"))
	assert.Equal(t, []string{
		"off 3",
		"on 3 tcp dst 127.0.0.1/5000 periodic [1 1024]",
	}, rec.sent)
	assert.True(t, f.Active())

	err := f.SetProtocol("sctp")
	assert.True(t, errors.Is(err, mgenerr.ErrInvalidProtocol))
	assert.Equal(t, TCP, f.Protocol())
}

func TestFlow_SetIDRekeysAndRestarts(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry(rec)
	f := newValidFlow(t, 1)
	require.NoError(t, reg.Add(f))
	require.NoError(t, f.Start(0))
	rec.sent = nil

	require.NoError(t, f.SetID(9))
	assert.Equal(t, []string{
		"off 1",
		"on 9 udp dst 127.0.0.1/5000 periodic [1 1024]",
	}, rec.sent)

	_, ok := reg.Get(1)
	assert.False(t, ok)
	got, ok := reg.Get(9)
	require.True(t, ok)
	assert.Same(t, f, got)
	assert.True(t, f.Active())
}

func TestFlow_SetDestinationRejectsEmptyAddress(t *testing.T) {
	f := New(1)
	err := f.SetDestination("", 5000)
	assert.True(t, errors.Is(err, mgenerr.ErrInvalidAddress))
	assert.False(t, f.Valid())
}

func TestFlow_PayloadTooLarge(t *testing.T) {
	f := New(1)
	err := f.SetTextPayload(strings.Repeat("x", MaxPayloadLen+1))
	assert.True(t, errors.Is(err, mgenerr.ErrPayloadTooLarge))
	_, ok := f.PayloadHex()
	assert.False(t, ok)

	require.NoError(t, f.SetTextPayload(strings.Repeat("x", MaxPayloadLen)))
	text, ok := f.TextPayload()
	require.True(t, ok)
	assert.Len(t, text, MaxPayloadLen)
}

func TestFlow_StructPayload(t *testing.T) {
	f := New(1)
	record := struct {
		ThreadID uint32
		MsgID    uint32
		Sender   [4]byte
	}{ThreadID: 1, MsgID: 2, Sender: [4]byte{'n', '1'}}
	require.NoError(t, f.SetStructPayload(record))

	hexText, ok := f.PayloadHex()
	require.True(t, ok)
	assert.Equal(t, "00000001000000026e310000", hexText)

	assert.Error(t, f.SetStructPayload(map[string]int{"a": 1}))
}

func TestFlow_SendFailureKeepsFlowInactive(t *testing.T) {
	rec := &recorder{fail: mgenerr.ErrChannelClosed}
	reg := NewRegistry(rec)
	f := newValidFlow(t, 1)
	require.NoError(t, reg.Add(f))
	err := f.Start(0)
	assert.True(t, errors.Is(err, mgenerr.ErrChannelClosed))
	assert.False(t, f.Active())
}

func TestFlow_PayloadRoundTripThroughEvent(t *testing.T) {
	for n := 0; n <= MaxPayloadLen; n++ {
		buf := make([]byte, n)
		for i := range buf {
			buf[i] = byte(i * 7)
		}
		f := New(1)
		require.NoError(t, f.SetBinaryPayload(buf))
		hexText, _ := f.PayloadHex()

		line := fmt.Sprintf("00:00:01.000000 RECV proto>UDP flow>1 data>%d:%s", n, hexText)
		ev, err := event.Parse(line)
		require.NoError(t, err, "length %d", n)
		require.True(t, ev.HasPayload())
		assert.Equal(t, buf, ev.Data, "length %d", n)
	}
}

func TestFlow_ClearPayloadTakesEffectOnRestart(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry(rec)
	f := newValidFlow(t, 2)
	require.NoError(t, f.SetTextPayload("hi"))
	require.NoError(t, reg.Add(f))
	require.NoError(t, f.Start(0))
	assert.Equal(t, "on 2 udp dst 127.0.0.1/5000 periodic [1 1024] data [6869]", rec.last())

	f.ClearPayload()
	assert.Len(t, rec.sent, 1, "clearing must not emit")
	_, ok := f.PayloadHex()
	assert.False(t, ok)
	assert.Empty(t, f.Info().Payload)

	require.NoError(t, f.Stop())
	require.NoError(t, f.Start(0))
	assert.Equal(t, "on 2 udp dst 127.0.0.1/5000 periodic [1 1024]", rec.last())
}
