// Package recorder stores generator events in batches.
package recorder

import (
	"Go2Mgen/internal/event"
	"context"
	"encoding/hex"
	"log"
	"sync"
	"time"
)

// Row is the stored form of one event.
type Row struct {
	RecordedAt time.Time
	Instance   string
	LogTime    string
	Type       string
	Protocol   string
	FlowID     int32
	Sequence   int64
	SrcAddr    string
	SrcPort    uint16
	DstAddr    string
	DstPort    uint16
	SentTime   string
	Size       uint32
	GPSStatus  string
	Lat        float64
	Lon        float64
	Alt        float64
	Data       string
	DataLength string
}

// NewRow converts ev, stamping it with the time it was recorded. The log's
// own timestamps are kept verbatim since they carry no date.
func NewRow(instance string, ev *event.Event, now time.Time) Row {
	row := Row{
		RecordedAt: now.UTC(),
		Instance:   instance,
		LogTime:    event.FormatTimestamp(ev.RxTime),
		Type:       ev.Type.String(),
		Protocol:   ev.Protocol,
		FlowID:     int32(ev.FlowID),
		Sequence:   ev.Sequence,
		SrcAddr:    ev.SrcAddr,
		SrcPort:    uint16(ev.SrcPort),
		DstAddr:    ev.DstAddr,
		DstPort:    uint16(ev.DstPort),
		Size:       uint32(ev.Size),
		DataLength: ev.DataLength,
	}
	if !ev.TxTime.IsZero() {
		row.SentTime = event.FormatTimestamp(ev.TxTime)
	}
	if ev.GPS != nil {
		row.GPSStatus = ev.GPS.Status
		row.Lat, row.Lon, row.Alt = ev.GPS.Lat, ev.GPS.Lon, ev.GPS.Alt
	}
	if ev.Data != nil {
		row.Data = hex.EncodeToString(ev.Data)
	}
	return row
}

// BatchWriter persists a batch of rows.
type BatchWriter interface {
	WriteBatch(ctx context.Context, rows []Row) error
}

// Recorder buffers events and hands them to a BatchWriter when the batch is
// full or the flush interval elapses.
type Recorder struct {
	w         BatchWriter
	instance  string
	batchSize int
	interval  time.Duration
	now       func() time.Time

	rows chan Row
	wg   sync.WaitGroup
	once sync.Once
}

// New starts a Recorder for one instance's events.
func New(w BatchWriter, instance string, batchSize int, interval time.Duration) *Recorder {
	if batchSize <= 0 {
		batchSize = 1000
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	r := &Recorder{
		w:         w,
		instance:  instance,
		batchSize: batchSize,
		interval:  interval,
		now:       time.Now,
		rows:      make(chan Row, batchSize*4),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Handle queues ev. When the queue is full the event is dropped.
func (r *Recorder) Handle(ev *event.Event) {
	select {
	case r.rows <- NewRow(r.instance, ev, r.now()):
	default:
		log.Println("Recorder: Channel is full, dropping event.")
	}
}

// Close flushes what is buffered and stops the recorder.
func (r *Recorder) Close() {
	r.once.Do(func() {
		close(r.rows)
		r.wg.Wait()
	})
}

func (r *Recorder) run() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	batch := make([]Row, 0, r.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.w.WriteBatch(context.Background(), batch); err != nil {
			log.Printf("Recorder: failed to write %d events: %v", len(batch), err)
		}
		batch = make([]Row, 0, r.batchSize)
	}

	for {
		select {
		case row, ok := <-r.rows:
			if !ok {
				flush()
				return
			}
			batch = append(batch, row)
			if len(batch) >= r.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
