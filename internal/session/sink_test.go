package session

import (
	"Go2Mgen/internal/mgenerr"
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attached(t *testing.T, name string) (*Session, func() string) {
	t.Helper()
	dir, err := os.MkdirTemp("", "sink")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	server := listen(t, dir, name)

	s, err := Open(context.Background(), Options{Name: name, SocketDir: dir, PipeDir: dir})
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)
	return s, func() string { return receive(t, server) }
}

func isFIFO(t *testing.T, path string) bool {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeNamedPipe != 0
}

func TestSetSink_RelaysThroughProgram(t *testing.T) {
	s, next := attached(t, "wired")
	tx, rx := s.SinkPaths()
	assert.Equal(t, "wired-txPipe", filepath.Base(tx))
	assert.Equal(t, "wired-rxPipe", filepath.Base(rx))

	require.NoError(t, s.SetSink("cat"))
	assert.Equal(t, "sink "+tx, next())
	assert.Equal(t, "source "+rx, next())
	assert.True(t, isFIFO(t, tx))
	assert.True(t, isFIFO(t, rx))

	// Play the generator: write into the sink pipe, read from the source pipe.
	out, err := os.OpenFile(rx, os.O_RDONLY, 0)
	require.NoError(t, err)
	defer out.Close()
	in, err := os.OpenFile(tx, os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = in.WriteString("through the relay\n")
	require.NoError(t, err)
	in.Close()

	got := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(out).ReadString('\n')
		got <- line
	}()
	select {
	case line := <-got:
		assert.Equal(t, "through the relay\n", line)
	case <-time.After(5 * time.Second):
		t.Fatal("relay produced no output")
	}

	require.NoError(t, s.SetSink(""))
	assert.NoFileExists(t, tx)
	assert.NoFileExists(t, rx)
}

func TestSetSink_ReplacesExistingWiring(t *testing.T) {
	s, next := attached(t, "rewire")
	require.NoError(t, s.SetSink("cat"))
	next()
	next()
	require.NoError(t, s.SetSink("tr a-z A-Z"))
	tx, _ := s.SinkPaths()
	assert.Equal(t, "sink "+tx, next())
	next()

	s.Shutdown()
	assert.NoFileExists(t, tx)
}

func TestSetSink_FailureRemovesPipes(t *testing.T) {
	s, _ := attached(t, "broken")
	tx, rx := s.SinkPaths()

	err := s.SetSink("/nonexistent/program --flag")
	assert.True(t, errors.Is(err, mgenerr.ErrSinkSetup))
	assert.NoFileExists(t, tx)
	assert.NoFileExists(t, rx)

	err = s.SetSink(`"unterminated`)
	assert.True(t, errors.Is(err, mgenerr.ErrSinkSetup))
}

func TestSetSink_AfterShutdown(t *testing.T) {
	s, _ := attached(t, "late")
	s.Shutdown()

	err := s.SetSink("cat")
	assert.True(t, errors.Is(err, mgenerr.ErrSinkSetup))
	assert.True(t, errors.Is(err, mgenerr.ErrChannelClosed))
	tx, rx := s.SinkPaths()
	assert.NoFileExists(t, tx)
	assert.NoFileExists(t, rx)
}

func TestShutdown_KillsSinkIgnoringTerm(t *testing.T) {
	grace := terminateGrace
	terminateGrace = 200 * time.Millisecond
	t.Cleanup(func() { terminateGrace = grace })

	s, next := attached(t, "stubborn")
	require.NoError(t, s.SetSink(`sh -c 'trap "" TERM; while :; do sleep 1; done'`))
	next()
	next()
	time.Sleep(300 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown blocked on a sink that ignores SIGTERM")
	}
	assert.Equal(t, Closed, s.State())
	tx, rx := s.SinkPaths()
	assert.NoFileExists(t, tx)
	assert.NoFileExists(t, rx)
}
