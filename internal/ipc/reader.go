package ipc

import (
	"bufio"
	"io"
	"strings"
)

// LogReader yields the generator's output one line at a time. ReadLine blocks
// until a line is available and returns io.EOF once the output is closed.
// A LogReader has a single consumer.
type LogReader struct {
	r *bufio.Reader
}

// NewLogReader wraps the generator's output stream.
func NewLogReader(r io.Reader) *LogReader {
	return &LogReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// ReadLine returns the next line without its line terminator.
func (l *LogReader) ReadLine() (string, error) {
	line, err := l.r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
