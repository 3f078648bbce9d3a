package session

import (
	"Go2Mgen/internal/mgenerr"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/mattn/go-shellwords"
	"golang.org/x/sys/unix"
)

// sinkWire is the "cat txPipe | program > rxPipe" relay attached to the
// generator's sink and source.
type sinkWire struct {
	name   string
	txPath string
	rxPath string
	relay  *exec.Cmd
	prog   *exec.Cmd
}

// SinkPaths returns the named pipes the generator sinks into and sources from.
func (s *Session) SinkPaths() (tx, rx string) {
	return sinkPaths(s.res.pipeDir, s.name)
}

func sinkPaths(dir, name string) (string, string) {
	return filepath.Join(dir, name+"-txPipe"), filepath.Join(dir, name+"-rxPipe")
}

// SetSink wires the generator's sink output into cmdline's standard input and
// cmdline's standard output back into the generator's source. An existing
// wiring is torn down first; an empty cmdline only tears down.
func (s *Session) SetSink(cmdline string) error {
	r := s.res
	r.sinkMu.Lock()
	defer r.sinkMu.Unlock()

	if r.sink != nil {
		r.sink.teardown()
		r.sink = nil
	}
	tx, rx := sinkPaths(r.pipeDir, r.name)
	removePipes(tx, rx)
	if cmdline == "" {
		return nil
	}

	args, err := shellwords.Parse(cmdline)
	if err != nil {
		return fmt.Errorf("%w: parse %q: %v", mgenerr.ErrSinkSetup, cmdline, err)
	}
	if len(args) == 0 {
		return fmt.Errorf("%w: empty sink command", mgenerr.ErrSinkSetup)
	}

	w, err := r.wire(tx, rx, args)
	if err != nil {
		removePipes(tx, rx)
		return err
	}
	r.sink = w
	log.Printf("Session %s: sink wired to %q", r.name, cmdline)
	return nil
}

func (r *resources) wire(tx, rx string, args []string) (*sinkWire, error) {
	for _, p := range []string{tx, rx} {
		if err := unix.Mkfifo(p, 0o600); err != nil {
			return nil, fmt.Errorf("%w: mkfifo %s: %v", mgenerr.ErrSinkSetup, p, err)
		}
	}
	if err := r.send("sink " + tx); err != nil {
		return nil, fmt.Errorf("%w: %w", mgenerr.ErrSinkSetup, err)
	}
	if err := r.send("source " + rx); err != nil {
		return nil, fmt.Errorf("%w: %w", mgenerr.ErrSinkSetup, err)
	}

	// cat blocks in open() until the generator attaches to the sink pipe,
	// so the program runs even when the generator only receives.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mgenerr.ErrSinkSetup, err)
	}
	defer pr.Close()
	defer pw.Close()

	relay := exec.Command("cat", tx)
	relay.Stdout = pw
	if err := relay.Start(); err != nil {
		return nil, fmt.Errorf("%w: start relay: %v", mgenerr.ErrSinkSetup, err)
	}

	// Read-write so the open does not wait for the generator's reader.
	out, err := os.OpenFile(rx, os.O_RDWR, 0)
	if err != nil {
		stop(r.name, relay)
		return nil, fmt.Errorf("%w: open %s: %v", mgenerr.ErrSinkSetup, rx, err)
	}
	defer out.Close()

	prog := exec.Command(args[0], args[1:]...)
	prog.Stdin = pr
	prog.Stdout = out
	if err := prog.Start(); err != nil {
		stop(r.name, relay)
		return nil, fmt.Errorf("%w: start %s: %v", mgenerr.ErrSinkSetup, args[0], err)
	}
	return &sinkWire{name: r.name, txPath: tx, rxPath: rx, relay: relay, prog: prog}, nil
}

func (w *sinkWire) teardown() {
	stop(w.name, w.prog)
	stop(w.name, w.relay)
	removePipes(w.txPath, w.rxPath)
	log.Printf("Session %s: sink removed", w.name)
}

func stop(name string, cmd *exec.Cmd) {
	terminate(fmt.Sprintf("Session %s: sink %s", name, filepath.Base(cmd.Path)), cmd)
}

func removePipes(paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("remove %s: %v", p, err)
		}
	}
}
