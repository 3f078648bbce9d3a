// Package ipc implements the two channels between a controller and a
// generator instance: the command channel (a local datagram socket named after
// the instance) and the log reader (the generator's standard output).
package ipc

import (
	"Go2Mgen/internal/mgenerr"
	"fmt"
	"log"
	"net"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultSocketDir is where generator instances create their control sockets.
const DefaultSocketDir = "/tmp"

// SocketPath returns the control socket path of the named instance.
func SocketPath(dir, name string) string {
	if dir == "" {
		dir = DefaultSocketDir
	}
	return filepath.Join(dir, name)
}

// Channel sends commands to a running generator instance. Each Send is one
// datagram, so concurrent senders never interleave messages.
type Channel struct {
	name string
	path string

	mu     sync.RWMutex
	conn   *net.UnixConn
	closed bool
}

// Dial connects to the control socket of the named instance in dir.
func Dial(dir, name string) (*Channel, error) {
	path := SocketPath(dir, name)
	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		return nil, fmt.Errorf("%w: connect to instance %q: %v", mgenerr.ErrChannel, name, err)
	}
	log.Printf("Connected to generator instance %q at %s", name, path)
	return &Channel{name: name, path: path, conn: conn}, nil
}

// Name returns the instance name the channel is connected to.
func (c *Channel) Name() string {
	return c.name
}

// Send transmits msg verbatim as one message. Messages may not contain newlines.
func (c *Channel) Send(msg string) error {
	if strings.ContainsAny(msg, "\r\n") {
		return fmt.Errorf("%w: message to %q contains a newline", mgenerr.ErrChannel, c.name)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return fmt.Errorf("send to %q: %w", c.name, mgenerr.ErrChannelClosed)
	}
	if _, err := c.conn.Write([]byte(msg)); err != nil {
		return fmt.Errorf("%w: send to %q: %v", mgenerr.ErrChannel, c.name, err)
	}
	return nil
}

// SendEvent transmits a script event line, prefixed with the "event" directive.
func (c *Channel) SendEvent(text string) error {
	return c.Send("event " + text)
}

// Close releases the socket. Closing twice is harmless.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
