// Package snapshot saves the flow table of a session to disk.
package snapshot

import (
	"Go2Mgen/internal/flow"
	"Go2Mgen/internal/session"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SummaryData holds the metadata for a snapshot.
type SummaryData struct {
	Instance    string `json:"instance"`
	State       string `json:"state"`
	TotalFlows  int    `json:"total_flows"`
	ActiveFlows int    `json:"active_flows"`
	Timestamp   string `json:"timestamp"`
}

// Source is the session being saved.
type Source interface {
	Name() string
	State() session.State
	Flows() []*flow.Flow
}

// Writer handles writing snapshot data to disk.
type Writer struct{}

// NewWriter creates a new snapshot writer.
func NewWriter() *Writer {
	return &Writer{}
}

// WriteSnapshot writes src under a directory named after the current time.
func (w *Writer) WriteSnapshot(src Source, rootPath string) (string, error) {
	return w.Write(src, rootPath, time.Now().UTC().Format("2006-01-02_15-04-05"))
}

// Write stores the flows of src as a gob file and a JSON summary in
// rootPath/timestamp/<instance>, returning that directory. A session
// without flows gets only the summary.
func (w *Writer) Write(src Source, rootPath string, timestamp string) (string, error) {
	dir := filepath.Join(rootPath, timestamp, src.Name())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	flows := src.Flows()
	infos := make([]flow.Info, 0, len(flows))
	active := 0
	for _, f := range flows {
		info := f.Info()
		if info.Active {
			active++
		}
		infos = append(infos, info)
	}

	if len(infos) > 0 {
		if err := writeGob(filepath.Join(dir, "flows.dat"), infos); err != nil {
			return "", err
		}
	}

	summary := SummaryData{
		Instance:    src.Name(),
		State:       src.State().String(),
		TotalFlows:  len(infos),
		ActiveFlows: active,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	summaryFile, err := os.Create(filepath.Join(dir, "summary.json"))
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer summaryFile.Close()

	jsonEncoder := json.NewEncoder(summaryFile)
	jsonEncoder.SetIndent("", "  ")
	if err := jsonEncoder.Encode(summary); err != nil {
		return "", fmt.Errorf("failed to encode summary to json: %w", err)
	}
	return dir, nil
}

func writeGob(path string, infos []flow.Info) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file '%s': %w", path, err)
	}
	defer file.Close()
	if err := gob.NewEncoder(file).Encode(infos); err != nil {
		return fmt.Errorf("failed to encode flows to gob for file '%s': %w", path, err)
	}
	return nil
}

// ReadFlows decodes a flows.dat file.
func ReadFlows(path string) ([]flow.Info, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	var infos []flow.Info
	if err := gob.NewDecoder(file).Decode(&infos); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return infos, nil
}
