package archive

import (
	"Go2Mgen/internal/config"
	"Go2Mgen/internal/event"
	"Go2Mgen/internal/factory"
)

func init() {
	factory.RegisterSink("archive", func(cfg *config.Config, instance string) (factory.Sink, error) {
		s, err := NewWorker(cfg.Archive, instance)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// Handle queues ev for writing.
func (w *Worker) Handle(ev *event.Event) { w.Enqueue(ev) }

// Close drains the queue and closes the file.
func (w *Worker) Close() { w.Stop() }
