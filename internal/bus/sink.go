package bus

import (
	"Go2Mgen/internal/config"
	"Go2Mgen/internal/event"
	"Go2Mgen/internal/factory"
	"log"
)

func init() {
	factory.RegisterSink("nats", func(cfg *config.Config, instance string) (factory.Sink, error) {
		s, err := NewPublisher(cfg.NATS, instance)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// Handle publishes ev, logging failures.
func (p *Publisher) Handle(ev *event.Event) {
	if err := p.Publish(ev); err != nil {
		log.Printf("Bus: failed to publish %s event: %v", ev.Type, err)
	}
}
