package conversation

import (
	"Go2Mgen/internal/behavior"
	"Go2Mgen/internal/event"
	"Go2Mgen/internal/flow"
	"Go2Mgen/internal/metrics"
	"Go2Mgen/internal/payload"
	"Go2Mgen/internal/responder"
	"context"
	"encoding/hex"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenerator records what a node sends and replays scripted log events.
type fakeGenerator struct {
	mu       sync.Mutex
	sent     []string
	registry *flow.Registry

	in     chan *event.Event
	closed chan struct{}
	once   sync.Once
}

func newFakeGenerator() *fakeGenerator {
	g := &fakeGenerator{in: make(chan *event.Event), closed: make(chan struct{})}
	g.registry = flow.NewRegistry(g)
	return g
}

func (g *fakeGenerator) SendCommand(text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, text)
	return nil
}

func (g *fakeGenerator) SendEvent(text string) error {
	return g.SendCommand("event " + text)
}

func (g *fakeGenerator) AddFlow(f *flow.Flow) error {
	return g.registry.Add(f)
}

func (g *fakeGenerator) ReadEvent() (*event.Event, error) {
	select {
	case ev, ok := <-g.in:
		if !ok {
			return nil, io.EOF
		}
		return ev, nil
	case <-g.closed:
		return nil, io.EOF
	}
}

func (g *fakeGenerator) Close() error {
	g.once.Do(func() { close(g.closed) })
	return nil
}

func (g *fakeGenerator) messages() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.sent...)
}

func recordEvent(thread, msg uint32, sender string) *event.Event {
	rec := payload.NewRecord(thread, msg, sender)
	f := flow.New(1)
	if err := f.SetStructPayload(rec); err != nil {
		panic(err)
	}
	data, _ := hex.DecodeString(must(f.PayloadHex()))
	return &event.Event{Type: event.RECV, SrcAddr: "10.0.0.9", Data: data, DataLength: "56"}
}

func must(s string, ok bool) string {
	if !ok {
		panic("no payload")
	}
	return s
}

func recordHex(thread, msg uint32, sender string) string {
	f := flow.New(1)
	if err := f.SetStructPayload(payload.NewRecord(thread, msg, sender)); err != nil {
		panic(err)
	}
	return must(f.PayloadHex())
}

func twoNodes() *responder.Responder {
	r := responder.New(5522)
	r.Add("a", "10.0.0.1", 1)
	r.Add("b", "10.0.0.2", 1)
	return r
}

func run(t *testing.T, gen *fakeGenerator, cfg Config) chan error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- Run(context.Background(), gen, cfg) }()
	return errc
}

func wait(t *testing.T, errc chan error) {
	t.Helper()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("conversation did not finish")
	}
}

func TestRun_MulticastInitiatorAndReply(t *testing.T) {
	gen := newFakeGenerator()
	cfg := Config{NodeID: "a", ThreadID: 1, MsgSize: 512, MsgRate: 1, Group: "224.1.2.1", Port: 5001, Responder: twoNodes()}
	errc := run(t, gen, cfg)

	// Message 1 is "a"'s. Message 2 follows a, so it is "b"'s.
	gen.in <- recordEvent(1, 1, "a")
	// Message 3 follows b, so it is "a"'s again.
	gen.in <- recordEvent(1, 2, "b")
	close(gen.in)
	wait(t, errc)

	assert.Equal(t, []string{
		"ipv4",
		"event listen udp 5001",
		"event join 224.1.2.1",
		"event on 1 udp dst 224.1.2.1/5001 periodic [1 512] count 1 sequence 1 data [" + recordHex(1, 1, "a") + "]",
		"event off 1",
		"event 1 on 1 udp dst 224.1.2.1/5001 periodic [1 512] count 1 sequence 3 data [" + recordHex(1, 3, "a") + "]",
	}, gen.messages())
}

func TestRun_UnicastFollowsNextSender(t *testing.T) {
	gen := newFakeGenerator()
	cfg := Config{NodeID: "b", ThreadID: 1, MsgSize: 64, MsgRate: 2, Port: 6000, Responder: twoNodes()}
	errc := run(t, gen, cfg)

	// "b" does not start message 1; message 2 after "a" is its.
	gen.in <- recordEvent(1, 1, "a")
	// Other threads are ignored.
	gen.in <- recordEvent(2, 5, "a")
	close(gen.in)
	wait(t, errc)

	assert.Equal(t, []string{
		"ipv4",
		"event listen udp 6000",
		"event 0.5 on 1 udp dst 10.0.0.1/6000 periodic [1 64] count 1 sequence 2 data [" + recordHex(1, 2, "b") + "]",
	}, gen.messages())
}

func TestRun_NonRecordPayloadsGoToDispatcher(t *testing.T) {
	gen := newFakeGenerator()
	var observed []event.Type
	cfg := Config{
		NodeID: "b", ThreadID: 1, MsgSize: 64, Group: "224.1.2.1", Port: 5001,
		Responder:  twoNodes(),
		Dispatcher: behavior.New(gen, 5000),
		Observe:    func(ev *event.Event) { observed = append(observed, ev.Type) },
	}
	errc := run(t, gen, cfg)

	gen.in <- &event.Event{Type: event.LISTEN}
	gen.in <- &event.Event{Type: event.RECV, SrcAddr: "10.0.0.7", Data: payload.EncodeFunctionCall(payload.Stream)}
	gen.in <- &event.Event{Type: event.RECV, SrcAddr: "10.0.0.7", Data: []byte("short")}
	close(gen.in)
	wait(t, errc)

	msgs := gen.messages()
	assert.Equal(t, "event on 7 tcp dst 10.0.0.7/5000 periodic [1 387283]", msgs[len(msgs)-1])
	assert.Equal(t, []event.Type{event.LISTEN, event.RECV, event.RECV}, observed)
}

func TestRun_CancelClosesGenerator(t *testing.T) {
	gen := newFakeGenerator()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- Run(ctx, gen, Config{NodeID: "b", ThreadID: 1, Group: "224.1.2.1", Port: 5001, MsgSize: 64, Responder: twoNodes()})
	}()
	cancel()
	wait(t, errc)

	select {
	case <-gen.closed:
	default:
		t.Fatal("generator was not closed")
	}
}

func TestRun_RequiresNodeAndResponder(t *testing.T) {
	assert.Error(t, Run(context.Background(), newFakeGenerator(), Config{Responder: twoNodes()}))
	assert.Error(t, Run(context.Background(), newFakeGenerator(), Config{NodeID: "a"}))
}

func TestRun_CountsSelections(t *testing.T) {
	m, err := metrics.New()
	require.NoError(t, err)
	gen := newFakeGenerator()
	errc := run(t, gen, Config{NodeID: "b", ThreadID: 1, MsgSize: 64, Group: "224.1.2.1", Port: 5001, Responder: twoNodes(), Metrics: m})

	gen.in <- recordEvent(1, 1, "a")
	close(gen.in)
	wait(t, errc)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	got := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "mgen_responder_selections_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			got[metric.GetLabel()[0].GetValue()] = metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{"a": 1, "b": 1}, got)
}
