package recorder

import (
	"Go2Mgen/internal/config"
	"Go2Mgen/internal/factory"
	"log"
)

func init() {
	factory.RegisterSink("clickhouse", func(cfg *config.Config, instance string) (factory.Sink, error) {
		w, err := NewClickHouseWriter(cfg.ClickHouse)
		if err != nil {
			return nil, err
		}
		r := New(w, instance, cfg.ClickHouse.BatchSize, cfg.ClickHouse.FlushInterval)
		return &clickHouseSink{Recorder: r, w: w}, nil
	})
}

type clickHouseSink struct {
	*Recorder
	w *ClickHouseWriter
}

func (s *clickHouseSink) Close() {
	s.Recorder.Close()
	if err := s.w.Close(); err != nil {
		log.Printf("Recorder: failed to close ClickHouse connection: %v", err)
	}
}
