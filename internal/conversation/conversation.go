// Package conversation runs one node of a multi-node scripted conversation.
// Each message carries (thread, message number, sender); on receipt every
// node asks its Responder who sends the next message, and only that node
// does.
package conversation

import (
	"Go2Mgen/internal/behavior"
	"Go2Mgen/internal/event"
	"Go2Mgen/internal/flow"
	"Go2Mgen/internal/metrics"
	"Go2Mgen/internal/mgenerr"
	"Go2Mgen/internal/payload"
	"Go2Mgen/internal/responder"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
)

// Generator is the part of a session a conversation drives.
type Generator interface {
	SendCommand(text string) error
	SendEvent(text string) error
	AddFlow(f *flow.Flow) error
	ReadEvent() (*event.Event, error)
	Close() error
}

// FlowID is the id of the flow carrying conversation messages.
const FlowID = 1

// Config is one node's view of the conversation.
type Config struct {
	NodeID   string
	ThreadID uint32
	MsgSize  int
	// MsgRate is messages per second; the reply delay is 1/MsgRate.
	MsgRate float64
	// Group is the multicast group. Empty means unicast to the next sender.
	Group string
	Port  int

	Responder *responder.Responder
	// Dispatcher, if set, handles received payloads that are not
	// conversation records.
	Dispatcher *behavior.Dispatcher
	// Observe, if set, sees every event read from the generator.
	Observe func(*event.Event)
	Metrics *metrics.Metrics
}

type node struct {
	cfg   Config
	gen   Generator
	flow  *flow.Flow
	delay time.Duration
}

// Run sets up the listener and the message flow, sends the first message if
// this node is chosen for it, and answers received messages until the
// generator output ends or ctx is cancelled. Cancelling closes gen.
func Run(ctx context.Context, gen Generator, cfg Config) error {
	if cfg.NodeID == "" {
		return errors.New("conversation: node id is required")
	}
	if cfg.Responder == nil {
		return errors.New("conversation: responder is required")
	}
	n := &node{cfg: cfg, gen: gen}
	if cfg.MsgRate > 0 {
		n.delay = time.Duration(float64(time.Second) / cfg.MsgRate)
	}
	if err := n.setup(); err != nil {
		return err
	}
	if err := n.initiate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	events := make(chan *event.Event)
	done := make(chan struct{})

	g.Go(func() error {
		defer close(events)
		for {
			ev, err := gen.ReadEvent()
			if ev == nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
			if err != nil {
				log.Printf("Conversation: %v", err)
			}
			select {
			case events <- ev:
			case <-done:
				return nil
			}
		}
	})
	g.Go(func() error {
		defer close(done)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				if err := n.handle(ev); err != nil {
					if !mgenerr.IsRecoverable(err) {
						return err
					}
					log.Printf("Conversation: node %s: %v", cfg.NodeID, err)
				}
			}
		}
	})
	// Closing the generator is the only way to unblock the reader.
	g.Go(func() error {
		<-ctx.Done()
		gen.Close()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (n *node) setup() error {
	cfg := n.cfg
	if err := n.gen.SendCommand("ipv4"); err != nil {
		return err
	}
	if err := n.gen.SendEvent(fmt.Sprintf("listen udp %d", cfg.Port)); err != nil {
		return err
	}
	if cfg.Group != "" {
		if err := n.gen.SendEvent("join " + cfg.Group); err != nil {
			return err
		}
	}

	f := flow.New(FlowID)
	if err := f.SetProtocol(flow.UDP); err != nil {
		return err
	}
	if cfg.Group != "" {
		if err := f.SetDestination(cfg.Group, cfg.Port); err != nil {
			return err
		}
	}
	if err := f.SetPattern(fmt.Sprintf("periodic [1 %d]", cfg.MsgSize)); err != nil {
		return err
	}
	if err := f.SetCount(1); err != nil {
		return err
	}
	if err := f.SetSequence(1); err != nil {
		return err
	}
	n.flow = f
	return n.gen.AddFlow(f)
}

// isNext reports whether this node sends message msgID after prev.
func (n *node) isNext(msgID uint32, prev string) (bool, error) {
	id, err := n.cfg.Responder.SelectID(n.cfg.ThreadID, msgID, prev)
	if errors.Is(err, mgenerr.ErrNoRespondent) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	n.cfg.Metrics.Selected(id)
	return id == n.cfg.NodeID, nil
}

func (n *node) initiate() error {
	mine, err := n.isNext(1, "")
	if err != nil || !mine {
		return err
	}
	log.Printf("Conversation: node %s initiating thread %d", n.cfg.NodeID, n.cfg.ThreadID)
	return n.send(1, 0)
}

// send emits message msgID after delay.
func (n *node) send(msgID uint32, delay time.Duration) error {
	cfg := n.cfg
	if cfg.Group == "" {
		dest, err := cfg.Responder.SelectAddr(cfg.ThreadID, msgID+1, cfg.NodeID)
		if err != nil {
			return err
		}
		if err := n.flow.SetDestination(dest, cfg.Port); err != nil {
			return err
		}
	}
	if err := n.flow.SetSequence(int(msgID)); err != nil {
		return err
	}
	if err := n.flow.SetStructPayload(payload.NewRecord(cfg.ThreadID, msgID, cfg.NodeID)); err != nil {
		return err
	}
	return n.flow.Start(delay)
}

func (n *node) handle(ev *event.Event) error {
	if n.cfg.Observe != nil {
		n.cfg.Observe(ev)
	}
	if ev.Type != event.RECV || !ev.HasPayload() {
		return nil
	}
	rec, err := payload.UnmarshalRecord(ev.Data)
	if err != nil {
		if n.cfg.Dispatcher != nil {
			return n.cfg.Dispatcher.Handle(ev)
		}
		return err
	}
	log.Printf("Conversation: recv thread %d msg %d from %q", rec.ThreadID, rec.MsgID, rec.SenderID())
	if rec.ThreadID != n.cfg.ThreadID {
		return nil
	}

	next := rec.MsgID + 1
	mine, err := n.isNext(next, rec.SenderID())
	if err != nil || !mine {
		return err
	}
	if err := n.flow.Stop(); err != nil {
		return err
	}
	return n.send(next, n.delay)
}
