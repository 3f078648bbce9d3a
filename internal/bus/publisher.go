package bus

import (
	"Go2Mgen/internal/config"
	"Go2Mgen/internal/event"
	"log"

	"github.com/nats-io/nats.go"
	"google.golang.org/protobuf/proto"
)

// Subject returns the subject an event of type t is published on.
func Subject(prefix string, t event.Type) string {
	return prefix + "." + t.String()
}

// Publisher publishes generator events to NATS.
type Publisher struct {
	nc       *nats.Conn
	subject  string
	instance string
}

// NewPublisher creates a new NATS publisher for the events of one instance.
func NewPublisher(cfg config.NATSConfig, instance string) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("mgen-"+instance))
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	return &Publisher{nc: nc, subject: cfg.Subject, instance: instance}, nil
}

// Publish serializes ev to Protobuf and publishes it on <subject>.<TYPE>.
func (p *Publisher) Publish(ev *event.Event) error {
	msg, err := EncodeEvent(p.instance, ev)
	if err != nil {
		return err
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		return err
	}
	return p.nc.Publish(Subject(p.subject, ev.Type), data)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}
