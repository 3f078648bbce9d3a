package behavior

import (
	"Go2Mgen/internal/event"
	"Go2Mgen/internal/mgenerr"
	"Go2Mgen/internal/payload"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	sent []string
}

func (r *recorder) SendEvent(text string) error {
	r.sent = append(r.sent, text)
	return nil
}

func recv(data []byte) *event.Event {
	return &event.Event{Type: event.RECV, SrcAddr: "10.0.0.5", SrcPort: 4000, Data: data, DataLength: "x"}
}

func TestHandle_AckRequest(t *testing.T) {
	rec := &recorder{}
	d := New(rec, 0)
	require.NoError(t, d.Handle(recv([]byte{})))
	assert.Equal(t, []string{"on 5 udp dst 10.0.0.5/5000 periodic [1 512] count 1"}, rec.sent)
}

func TestHandle_BuiltInFunctions(t *testing.T) {
	rec := &recorder{}
	d := New(rec, 6000)

	require.NoError(t, d.Handle(recv(payload.EncodeFunctionCall(payload.Stream))))
	assert.Equal(t, []string{"on 7 tcp dst 10.0.0.5/6000 periodic [1 387283]"}, rec.sent)

	rec.sent = nil
	require.NoError(t, d.Handle(recv([]byte("01"))))
	require.Len(t, rec.sent, 2)
	assert.Equal(t, "on 6 udp dst 10.0.0.5/6000 BURST [RANDOM 10.0 PERIODIC [10.0 2048] EXP 5.0] count 3", rec.sent[0])
	assert.Contains(t, []string{"1 off 4", "2 off 4"}, rec.sent[1])
}

func TestHandle_RegisteredAndUnknownFunctions(t *testing.T) {
	rec := &recorder{}
	d := New(rec, 0)
	d.Register("ping", func(d *Dispatcher, ev *event.Event) error {
		return d.Send("on 9 udp dst %s/%d periodic [1 64] count 1", ev.SrcAddr, ev.SrcPort)
	})

	require.NoError(t, d.Handle(recv([]byte("03ping"))))
	assert.Equal(t, []string{"on 9 udp dst 10.0.0.5/4000 periodic [1 64] count 1"}, rec.sent)

	err := d.Handle(recv([]byte("03missing")))
	assert.True(t, errors.Is(err, mgenerr.ErrNotFound))
	assert.True(t, mgenerr.IsRecoverable(err))
}

func TestHandle_StructCommand(t *testing.T) {
	rec := &recorder{}
	d := New(rec, 0)
	cmd := payload.StructCommand{FlowID: 1, Verb: "mod", Value: "periodic [1 2048]", Offset: 3.1345}
	require.NoError(t, d.Handle(recv(cmd.Encode())))
	assert.Equal(t, []string{"3.134500 mod 1 periodic [1 2048]"}, rec.sent)

	err := d.Handle(recv([]byte{0xff, 0x01}))
	assert.True(t, errors.Is(err, mgenerr.ErrPayloadDecode))
}

func TestHandle_AcksPlainRecv(t *testing.T) {
	ev, err := event.Parse("00:00:01.000000 RECV proto>UDP flow>1 seq>1 src>10.0.0.9/5001 dst>10.0.0.2/5000 size>512")
	require.NoError(t, err)
	require.False(t, ev.HasPayload())

	rec := &recorder{}
	require.NoError(t, New(rec, 0).Handle(ev))
	assert.Equal(t, []string{"on 5 udp dst 10.0.0.9/5000 periodic [1 512] count 1"}, rec.sent)
}

func TestHandle_IgnoresTextAndOtherEvents(t *testing.T) {
	rec := &recorder{}
	d := New(rec, 0)
	require.NoError(t, d.Handle(recv([]byte("hello"))))
	require.NoError(t, d.Handle(&event.Event{Type: event.SEND, SrcAddr: "10.0.0.5"}))
	assert.Empty(t, rec.sent)
}
