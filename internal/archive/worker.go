// Package archive appends a session's events to a file, either as replayable
// log lines or as a gob stream.
package archive

import (
	"Go2Mgen/internal/config"
	"Go2Mgen/internal/event"
	"bufio"
	"encoding/gob"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Worker writes queued events to the archive file from a single goroutine.
type Worker struct {
	eventChan chan *event.Event
	file      *os.File
	wg        sync.WaitGroup
	once      sync.Once
}

// NewWorker creates the archive file and starts the writer.
func NewWorker(cfg config.ArchiveConfig, instance string) (*Worker, error) {
	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	var write func(w io.Writer, events <-chan *event.Event)
	switch cfg.Encoding {
	case "", "text":
		write = writeText
	case "gob":
		write = writeGob
	default:
		return nil, fmt.Errorf("unknown archive encoding %q", cfg.Encoding)
	}

	file, err := createOutputFile(cfg, instance)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive file: %w", err)
	}

	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	w := &Worker{eventChan: make(chan *event.Event, bufferSize), file: file}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		write(file, w.eventChan)
	}()

	log.Printf("Archive worker started, encoding: %s, writing to: %s", cfg.Encoding, file.Name())
	return w, nil
}

func createOutputFile(cfg config.ArchiveConfig, instance string) (*os.File, error) {
	ext := ".log"
	if cfg.Encoding == "gob" {
		ext = ".gob"
	}
	fileName := fmt.Sprintf("%s_%s%s", instance, time.Now().Format("2006-01-02_15-04-05"), ext)
	return os.OpenFile(filepath.Join(cfg.Path, fileName), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
}

// Path returns the archive file name.
func (w *Worker) Path() string {
	return w.file.Name()
}

func writeGob(out io.Writer, events <-chan *event.Event) {
	bw := bufio.NewWriter(out)
	encoder := gob.NewEncoder(bw)
	for ev := range events {
		if err := encoder.Encode(ev); err != nil {
			log.Printf("Archive (gob): Error encoding event: %v", err)
		}
	}
	bw.Flush()
}

func writeText(out io.Writer, events <-chan *event.Event) {
	bw := bufio.NewWriter(out)
	for ev := range events {
		if _, err := bw.WriteString(ev.String() + "\n"); err != nil {
			log.Printf("Archive (text): Error writing event: %v", err)
		}
	}
	bw.Flush()
}

// ReadGob decodes every event of a gob archive.
func ReadGob(r io.Reader) ([]*event.Event, error) {
	dec := gob.NewDecoder(bufio.NewReader(r))
	var out []*event.Event
	for {
		var ev event.Event
		if err := dec.Decode(&ev); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, err
		}
		out = append(out, &ev)
	}
}

// Stop drains the queue and closes the file.
func (w *Worker) Stop() {
	w.once.Do(func() {
		close(w.eventChan)
		w.wg.Wait()
		if err := w.file.Close(); err != nil {
			log.Printf("Archive: Error closing file: %v", err)
		}
		log.Println("Archive worker stopped and file closed.")
	})
}

// Enqueue queues ev for writing. When the queue is full the event is dropped.
func (w *Worker) Enqueue(ev *event.Event) {
	select {
	case w.eventChan <- ev:
	default:
		log.Println("Archive: Channel is full, dropping event.")
	}
}
