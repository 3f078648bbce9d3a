// Package behavior reacts to received payloads by sending script events back
// through a generator.
package behavior

import (
	"Go2Mgen/internal/event"
	"Go2Mgen/internal/mgenerr"
	"Go2Mgen/internal/payload"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
)

// Sender sends script events to a generator. *session.Session satisfies it.
type Sender interface {
	SendEvent(text string) error
}

// Func is a named behaviour run for a FunctionCall payload.
type Func func(d *Dispatcher, ev *event.Event) error

// DefaultReplyPort is the destination port of reply flows.
const DefaultReplyPort = 5000

// Dispatcher maps received payloads to reactions.
type Dispatcher struct {
	sender    Sender
	replyPort int

	mu    sync.RWMutex
	funcs map[string]Func
	rng   *rand.Rand
}

// New returns a Dispatcher with the voip and stream behaviours registered.
func New(sender Sender, replyPort int) *Dispatcher {
	if replyPort <= 0 {
		replyPort = DefaultReplyPort
	}
	d := &Dispatcher{
		sender:    sender,
		replyPort: replyPort,
		funcs:     make(map[string]Func),
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	d.Register(payload.VoIP, voip)
	d.Register(payload.Stream, stream)
	return d
}

// Register binds name to fn, replacing any previous binding.
func (d *Dispatcher) Register(name string, fn Func) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.funcs[name] = fn
}

// Send forwards a script event through the dispatcher's sender.
func (d *Dispatcher) Send(format string, args ...any) error {
	return d.sender.SendEvent(fmt.Sprintf(format, args...))
}

// Handle decodes the payload of a RECV event and reacts to it. A RECV
// without a payload is an AckRequest; other event types are ignored.
// Unknown functions wrap mgenerr.ErrNotFound.
func (d *Dispatcher) Handle(ev *event.Event) error {
	if ev.Type != event.RECV {
		return nil
	}
	p, err := payload.Decode(ev.Data)
	if err != nil {
		return err
	}

	switch v := p.(type) {
	case payload.AckRequest:
		return d.Send("on 5 udp dst %s/%d periodic [1 512] count 1", ev.SrcAddr, d.replyPort)
	case payload.FunctionCall:
		d.mu.RLock()
		fn, ok := d.funcs[v.Name]
		d.mu.RUnlock()
		if !ok {
			return fmt.Errorf("function %q: %w", v.Name, mgenerr.ErrNotFound)
		}
		return fn(d, ev)
	case payload.StructCommand:
		log.Printf("Behavior: struct command from %s: %s", ev.SrcAddr, v.EventLine())
		return d.sender.SendEvent(v.EventLine())
	case payload.RawText:
		log.Printf("Behavior: unhandled payload from %s: %q", ev.SrcAddr, v.Text)
		return nil
	default:
		return fmt.Errorf("unexpected payload %T", p)
	}
}

func voip(d *Dispatcher, ev *event.Event) error {
	log.Printf("Behavior: voip burst to %s", ev.SrcAddr)
	if err := d.Send("on 6 udp dst %s/%d BURST [RANDOM 10.0 PERIODIC [10.0 2048] EXP 5.0] count 3", ev.SrcAddr, d.replyPort); err != nil {
		return err
	}
	return d.Send("%d off 4", 1+d.rng.IntN(2))
}

func stream(d *Dispatcher, ev *event.Event) error {
	log.Printf("Behavior: stream to %s", ev.SrcAddr)
	return d.Send("on 7 tcp dst %s/%d periodic [1 387283]", ev.SrcAddr, d.replyPort)
}
