// Package factory builds the event sinks a session's events are fanned out to.
// Sink implementations register themselves by name from their own packages.
package factory

import (
	"Go2Mgen/internal/config"
	"Go2Mgen/internal/event"
	"fmt"
	"log"
)

// Sink consumes events. Handle must not block for long; Close flushes.
type Sink interface {
	Handle(ev *event.Event)
	Close()
}

// SinkFactory creates a sink for one instance's events.
type SinkFactory func(cfg *config.Config, instance string) (Sink, error)

// registry holds the mapping of sink names to their factory functions.
var registry = make(map[string]SinkFactory)

// RegisterSink registers a new sink type with its factory function.
func RegisterSink(name string, factory SinkFactory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("sink type '%s' already registered", name))
	}
	registry[name] = factory
}

// Create builds every sink enabled in cfg. Sinks already built are closed
// when a later one fails.
func Create(cfg *config.Config, instance string) (*Fanout, error) {
	fan := &Fanout{}
	for _, name := range cfg.EnabledSinks() {
		log.Printf("Creating sink '%s' for instance %s", name, instance)

		factory, ok := registry[name]
		if !ok {
			fan.Close()
			return nil, fmt.Errorf("unknown sink type: '%s'", name)
		}

		sink, err := factory(cfg, instance)
		if err != nil {
			fan.Close()
			return nil, fmt.Errorf("error creating sink '%s': %w", name, err)
		}
		fan.sinks = append(fan.sinks, sink)
	}
	return fan, nil
}

// Fanout hands each event to every sink in registration order.
type Fanout struct {
	sinks []Sink
}

// NewFanout wraps an explicit list of sinks.
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Add appends a sink.
func (f *Fanout) Add(s Sink) {
	f.sinks = append(f.sinks, s)
}

// Len reports the number of sinks.
func (f *Fanout) Len() int {
	return len(f.sinks)
}

func (f *Fanout) Handle(ev *event.Event) {
	for _, s := range f.sinks {
		s.Handle(ev)
	}
}

// Close closes the sinks in reverse order.
func (f *Fanout) Close() {
	for i := len(f.sinks) - 1; i >= 0; i-- {
		f.sinks[i].Close()
	}
	f.sinks = nil
}
