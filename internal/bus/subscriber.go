package bus

import (
	"Go2Mgen/internal/config"
	"log"

	"github.com/nats-io/nats.go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Handler processes one received event.
type Handler func(msg Message)

// Subscriber follows the events published under a subject prefix.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

// NewSubscriber creates a new NATS subscriber.
func NewSubscriber(cfg config.NATSConfig) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	return &Subscriber{nc: nc, subject: cfg.Subject}, nil
}

// Start subscribes to every event type under the prefix and passes decoded
// events to handler. Undecodable messages are logged and dropped.
func (s *Subscriber) Start(handler Handler) error {
	sub, err := s.nc.Subscribe(s.subject+".>", func(msg *nats.Msg) {
		var st structpb.Struct
		if err := proto.Unmarshal(msg.Data, &st); err != nil {
			log.Printf("Error unmarshalling protobuf: %v", err)
			return
		}
		m, err := DecodeEvent(&st)
		if err != nil {
			log.Printf("Error decoding event on %s: %v", msg.Subject, err)
			return
		}
		handler(m)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	log.Printf("Subscribed to '%s.>'. Waiting for messages...", s.subject)
	return nil
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		log.Println("NATS connection closed.")
	}
}
