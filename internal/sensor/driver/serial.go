package driver

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultReadTimeout keeps blocking reads short enough for the stop check to stay responsive
	DefaultReadTimeout = time.Second

	maxLineLength = 4096
)

// SerialConfig describes a serial port
type SerialConfig struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
}

// Validate checks the serial configuration
func (c *SerialConfig) Validate() error {
	if c.Port == "" {
		return NewConfigError("serial port is required")
	}
	if c.BaudRate <= 0 {
		return NewConfigError(fmt.Sprintf("invalid baud rate: %d", c.BaudRate))
	}
	if c.ReadTimeout < 0 {
		return NewConfigError(fmt.Sprintf("invalid read timeout: %s", c.ReadTimeout))
	}
	return nil
}

// OpenSerial opens the port described by c. Reads on the returned port return
// (0, nil) once the read timeout expires without data.
func OpenSerial(c *SerialConfig) (serial.Port, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	port, err := serial.Open(c.Port, &serial.Mode{BaudRate: c.BaudRate})
	if err != nil {
		return nil, NewRuntimeError(fmt.Sprintf("opening serial port %s", c.Port), err)
	}

	timeout := c.ReadTimeout
	if timeout == 0 {
		timeout = DefaultReadTimeout
	}
	if err = port.SetReadTimeout(timeout); err != nil {
		_ = port.Close()
		return nil, NewRuntimeError(fmt.Sprintf("setting read timeout on %s", c.Port), err)
	}

	return port, nil
}

// LineReader splits a byte stream into lines. The underlying reader may return
// (0, nil) when its own timeout expires; ReadLine then gives up after timeout.
type LineReader struct {
	src   io.Reader
	buf   []byte
	chunk []byte
}

// NewLineReader creates a LineReader over src
func NewLineReader(src io.Reader) *LineReader {
	return &LineReader{
		src:   src,
		chunk: make([]byte, 256),
	}
}

// ReadLine returns the next line without its line terminator. It returns
// ErrReadTimeout when no complete line arrived within timeout.
func (r *LineReader) ReadLine(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)

	for {
		if i := bytes.IndexByte(r.buf, '\n'); i >= 0 {
			line := string(r.buf[:i])
			r.buf = append(r.buf[:0], r.buf[i+1:]...)
			return strings.TrimRight(line, "\r"), nil
		}

		if len(r.buf) > maxLineLength {
			r.buf = r.buf[:0]
			return "", fmt.Errorf("line exceeds %d bytes", maxLineLength)
		}

		if !time.Now().Before(deadline) {
			return "", ErrReadTimeout
		}

		n, err := r.src.Read(r.chunk)
		r.buf = append(r.buf, r.chunk[:n]...)
		if err != nil {
			if n > 0 && err == io.EOF {
				continue
			}
			return "", err
		}
	}
}

// Reset drops any partially read line
func (r *LineReader) Reset() {
	r.buf = r.buf[:0]
}
