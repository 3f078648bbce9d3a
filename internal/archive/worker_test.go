package archive

import (
	"Go2Mgen/internal/config"
	"Go2Mgen/internal/event"
	"Go2Mgen/internal/factory"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lines = []string{
	"00:00:01.000000 LISTEN proto>UDP",
	"00:00:05.100000 RECV proto>UDP flow>2 seq>3 src>10.0.0.1/5000 dst>10.0.0.2/5000 size>128 data>5:48656c6c6f",
}

func events(t *testing.T) []*event.Event {
	t.Helper()
	var out []*event.Event
	for _, l := range lines {
		ev, err := event.Parse(l)
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func TestWorker_TextIsReplayable(t *testing.T) {
	w, err := NewWorker(config.ArchiveConfig{Path: t.TempDir(), Encoding: "text"}, "lab")
	require.NoError(t, err)
	for _, ev := range events(t) {
		w.Enqueue(ev)
	}
	w.Stop()
	w.Stop()

	assert.True(t, strings.HasSuffix(w.Path(), ".log"))
	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	got := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, got, 2)
	for i, l := range got {
		ev, err := event.Parse(l)
		require.NoError(t, err)
		assert.Equal(t, events(t)[i].String(), ev.String())
	}
}

func TestWorker_Gob(t *testing.T) {
	w, err := NewWorker(config.ArchiveConfig{Path: t.TempDir(), Encoding: "gob"}, "lab")
	require.NoError(t, err)
	want := events(t)
	for _, ev := range want {
		w.Enqueue(ev)
	}
	w.Stop()

	f, err := os.Open(w.Path())
	require.NoError(t, err)
	defer f.Close()
	got, err := ReadGob(f)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, want[1].String(), got[1].String())
	assert.Equal(t, []byte("Hello"), got[1].Data)
}

func TestNewWorker_UnknownEncoding(t *testing.T) {
	_, err := NewWorker(config.ArchiveConfig{Path: t.TempDir(), Encoding: "pcap"}, "lab")
	assert.Error(t, err)
}

func TestRegisteredSink(t *testing.T) {
	cfg := config.Default()
	cfg.Archive.Enabled = true
	cfg.Archive.Path = t.TempDir()

	fan, err := factory.Create(cfg, "lab")
	require.NoError(t, err)
	require.Equal(t, 1, fan.Len())
	for _, ev := range events(t) {
		fan.Handle(ev)
	}
	fan.Close()

	entries, err := os.ReadDir(cfg.Archive.Path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(filepath.Join(cfg.Archive.Path, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}
