// Package session supervises one generator instance: it attaches to a
// running instance or launches a new one, forwards commands over the
// instance's control socket, and exposes the generator's log output to the
// single reader of an owning session.
package session

import (
	"Go2Mgen/internal/event"
	"Go2Mgen/internal/flow"
	"Go2Mgen/internal/ipc"
	"Go2Mgen/internal/metrics"
	"Go2Mgen/internal/mgenerr"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// DefaultBinary is the generator executable looked up in PATH.
const DefaultBinary = "mgen"

// terminateGrace is how long Shutdown waits after SIGTERM before killing.
var terminateGrace = 5 * time.Second

// State is the lifecycle stage of a Session.
type State int32

const (
	Starting State = iota
	Ready
	ShuttingDown
	Closed
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case ShuttingDown:
		return "shutting-down"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options configures Open. The zero value launches or attaches to a randomly
// named instance of DefaultBinary.
type Options struct {
	// Name is the instance name. When empty, NameGen (or RandomName) supplies one.
	Name    string
	NameGen func() string
	// GPSKey is passed to a launched generator for location tagging.
	GPSKey string
	Binary string
	// SocketDir holds the instances' control sockets.
	SocketDir string
	// PipeDir holds the sink wiring pipes. Defaults to os.TempDir().
	PipeDir string
	Metrics *metrics.Metrics
}

// RandomName returns a fresh instance name.
func RandomName() string {
	return "mgen-" + uuid.NewString()[:13]
}

// Session controls one generator instance. Commands may be sent from several
// goroutines; the log is read by exactly one.
type Session struct {
	name       string
	res        *resources
	reader     *ipc.LogReader // nil unless the session launched the process
	startEvent *event.Event
	flows      *flow.Registry
	metrics    *metrics.Metrics
}

// resources are released by Shutdown or, if the caller never shuts the
// session down, by the cleanup attached to the Session.
type resources struct {
	name    string
	pipeDir string
	channel *ipc.Channel
	cmd     *exec.Cmd
	stdout  *os.File
	metrics *metrics.Metrics

	state atomic.Int32
	once  sync.Once

	sinkMu sync.Mutex
	sink   *sinkWire
}

// Open attaches to the named instance if it is already running, otherwise it
// launches a generator and blocks until the generator reports START. ctx
// bounds the wait for readiness only.
func Open(ctx context.Context, opts Options) (*Session, error) {
	name := opts.Name
	if name == "" {
		gen := opts.NameGen
		if gen == nil {
			gen = RandomName
		}
		name = gen()
	}
	pipeDir := opts.PipeDir
	if pipeDir == "" {
		pipeDir = os.TempDir()
	}
	res := &resources{name: name, pipeDir: pipeDir, metrics: opts.Metrics}
	res.state.Store(int32(Starting))

	s := &Session{name: name, res: res, metrics: opts.Metrics}
	if ch, err := ipc.Dial(opts.SocketDir, name); err == nil {
		log.Printf("Session %s: attached to running instance", name)
		res.channel = ch
	} else if err := s.launch(ctx, opts); err != nil {
		return nil, err
	}

	s.flows = flow.NewRegistry(s)
	res.state.Store(int32(Ready))
	opts.Metrics.SessionOpened()
	runtime.AddCleanup(s, func(r *resources) { r.shutdown() }, res)
	return s, nil
}

func (s *Session) launch(ctx context.Context, opts Options) error {
	binary := opts.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	args := []string{"flush"}
	if opts.GPSKey != "" {
		args = append(args, "gpskey", opts.GPSKey)
	}
	args = append(args, "instance", s.name)

	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("%w: %v", mgenerr.ErrLaunch, err)
	}
	cmd := exec.Command(binary, args...)
	cmd.Stdout = pw
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return fmt.Errorf("%w: start %s: %v", mgenerr.ErrLaunch, binary, err)
	}
	pw.Close()
	log.Printf("Session %s: launched %s (pid %d)", s.name, binary, cmd.Process.Pid)

	s.reader = ipc.NewLogReader(pr)
	fail := func(err error) error {
		cmd.Process.Kill()
		cmd.Wait()
		pr.Close()
		return err
	}

	start, err := s.awaitStart(ctx, pr)
	if err != nil {
		return fail(err)
	}
	s.startEvent = start

	ch, err := ipc.Dial(opts.SocketDir, s.name)
	if err != nil {
		return fail(err)
	}
	s.res.channel = ch
	s.res.cmd = cmd
	s.res.stdout = pr
	return nil
}

// awaitStart reads the new process's log until its START line.
func (s *Session) awaitStart(ctx context.Context, stdout *os.File) (*event.Event, error) {
	type result struct {
		ev  *event.Event
		err error
	}
	done := make(chan result, 1)
	go func() {
		for {
			line, err := s.reader.ReadLine()
			if err != nil {
				done <- result{err: fmt.Errorf("%w: generator exited before START: %v", mgenerr.ErrLaunch, err)}
				return
			}
			ev, err := event.Parse(line)
			if err != nil && ev == nil {
				continue
			}
			if ev.Type == event.START {
				done <- result{ev: ev}
				return
			}
		}
	}()

	select {
	case r := <-done:
		return r.ev, r.err
	case <-ctx.Done():
		// Unblock the reader goroutine.
		stdout.Close()
		return nil, fmt.Errorf("%w: waiting for START: %v", mgenerr.ErrLaunch, ctx.Err())
	}
}

// Name returns the instance name.
func (s *Session) Name() string {
	return s.name
}

// Owning reports whether the session launched the generator process.
func (s *Session) Owning() bool {
	return s.reader != nil
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	return State(s.res.state.Load())
}

// StartEvent returns the START event read during launch, or nil for an
// attached session.
func (s *Session) StartEvent() *event.Event {
	return s.startEvent
}

// SendCommand sends a raw generator command verbatim.
func (s *Session) SendCommand(text string) error {
	if err := s.res.send(text); err != nil {
		return err
	}
	s.metrics.CommandSent("command")
	return nil
}

// SendEvent sends a script event line. Session satisfies flow.Controller.
func (s *Session) SendEvent(text string) error {
	if err := s.res.send("event " + text); err != nil {
		return err
	}
	s.metrics.CommandSent("event")
	return nil
}

func (r *resources) send(msg string) error {
	if State(r.state.Load()) >= ShuttingDown {
		return fmt.Errorf("session %s: %w", r.name, mgenerr.ErrChannelClosed)
	}
	return r.channel.Send(msg)
}

// ReadLine blocks until the generator writes a line and returns it. It
// returns io.EOF when the generator closes its output.
func (s *Session) ReadLine() (string, error) {
	if s.reader == nil {
		return "", fmt.Errorf("session %s: read from attached instance: %w", s.name, mgenerr.ErrUnsupportedOperation)
	}
	line, err := s.reader.ReadLine()
	if errors.Is(err, os.ErrClosed) {
		return "", io.EOF
	}
	return line, err
}

// ReadEvent blocks until the next parseable event. Malformed lines are
// logged and skipped. An event whose payload could not be decoded is
// returned together with an error wrapping mgenerr.ErrPayloadDecode.
func (s *Session) ReadEvent() (*event.Event, error) {
	for {
		line, err := s.ReadLine()
		if err != nil {
			return nil, err
		}
		ev, err := event.Parse(line)
		if ev == nil {
			log.Printf("Session %s: skipping log line: %v", s.name, err)
			s.metrics.MalformedLine()
			continue
		}
		s.metrics.EventParsed(ev.Type.String())
		if err != nil {
			s.metrics.PayloadError()
		}
		return ev, err
	}
}

// Lines yields raw log lines until the generator output ends.
func (s *Session) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			line, err := s.ReadLine()
			if err != nil {
				if err != io.EOF {
					log.Printf("Session %s: read: %v", s.name, err)
				}
				return
			}
			if !yield(line) {
				return
			}
		}
	}
}

// Events yields parsed events until the generator output ends. Payload
// decode failures are logged and the event is yielded without data.
func (s *Session) Events() iter.Seq[*event.Event] {
	return func(yield func(*event.Event) bool) {
		for {
			ev, err := s.ReadEvent()
			if ev == nil {
				if err != io.EOF {
					log.Printf("Session %s: read: %v", s.name, err)
				}
				return
			}
			if err != nil {
				log.Printf("Session %s: %v", s.name, err)
			}
			if !yield(ev) {
				return
			}
		}
	}
}

// AddFlow attaches f, replacing any flow with the same id.
func (s *Session) AddFlow(f *flow.Flow) error {
	return s.flows.Add(f)
}

// RemoveFlow stops and detaches f. Removing an absent flow is not an error.
func (s *Session) RemoveFlow(f *flow.Flow) error {
	return s.flows.Remove(f)
}

// GetFlow returns the attached flow with the given id.
func (s *Session) GetFlow(id int) (*flow.Flow, error) {
	f, ok := s.flows.Get(id)
	if !ok {
		return nil, fmt.Errorf("flow %d: %w", id, mgenerr.ErrNotFound)
	}
	return f, nil
}

// Flows returns the attached flows ordered by id.
func (s *Session) Flows() []*flow.Flow {
	return s.flows.Flows()
}

// Shutdown closes the command channel, terminates an owned generator and
// removes any sink wiring. It is safe to call more than once and never fails;
// secondary errors are logged.
func (s *Session) Shutdown() {
	s.res.shutdown()
}

// Close is Shutdown for use with defer and io.Closer.
func (s *Session) Close() error {
	s.res.shutdown()
	return nil
}

func (r *resources) shutdown() {
	r.once.Do(func() {
		r.state.Store(int32(ShuttingDown))
		if err := r.channel.Close(); err != nil {
			log.Printf("Session %s: close channel: %v", r.name, err)
		}
		if r.cmd != nil {
			terminate(fmt.Sprintf("Session %s: generator", r.name), r.cmd)
			r.stdout.Close()
		}
		r.sinkMu.Lock()
		if r.sink != nil {
			r.sink.teardown()
			r.sink = nil
		}
		r.sinkMu.Unlock()
		r.state.Store(int32(Closed))
		r.metrics.SessionClosed()
		log.Printf("Session %s: closed", r.name)
	})
}

// terminate sends SIGTERM and waits, killing the process if it lingers.
// what names the process in log lines.
func terminate(what string, cmd *exec.Cmd) {
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		log.Printf("%s: terminate: %v", what, err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(terminateGrace):
		log.Printf("%s ignored SIGTERM, killing", what)
		cmd.Process.Kill()
		<-done
	}
}
