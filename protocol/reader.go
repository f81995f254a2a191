package protocol

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const readChunkSize = 1024

// LineReader frames an ordered byte stream into CRLF-terminated lines and,
// on demand, exact counts of raw payload bytes. Bytes that arrive fragmented
// are accumulated in an internal buffer; nothing is ever lost between reads.
type LineReader struct {
	src io.Reader

	buf []byte

	// search is the offset into buf that has already been scanned for a
	// line terminator, so repeated scans over a slow-arriving line are not
	// quadratic.
	search int

	eof bool
}

func NewLineReader(src io.Reader) *LineReader {
	return &LineReader{src: src}
}

// ReadLine blocks until a full CRLF-terminated line is buffered and returns
// it without the terminator. A lone '\r' not followed by '\n' is not a
// terminator. End of stream surfaces as io.EOF, never as a final line.
func (r *LineReader) ReadLine() (string, error) {
	for {
		if i := r.findTerminator(); i >= 0 {
			line := string(r.buf[:i])
			r.consume(i + 2)

			return line, nil
		}

		if err := r.fill(); err != nil {
			return "", err
		}
	}
}

// ReadFull blocks until n raw bytes are buffered and returns them. Used for
// commands that follow their header with a binary payload.
func (r *LineReader) ReadFull(n int) ([]byte, error) {
	for len(r.buf) < n {
		if err := r.fill(); err != nil {
			return nil, err
		}
	}

	payload := make([]byte, n)
	copy(payload, r.buf[:n])
	r.consume(n)

	return payload, nil
}

// findTerminator returns the offset of the next "\r\n" pair, or -1 when the
// buffered data holds no complete line yet.
func (r *LineReader) findTerminator() int {
	for {
		cr := bytes.IndexByte(r.buf[r.search:], '\r')

		if cr == -1 {
			r.search = len(r.buf)
			return -1
		}

		cr += r.search

		if cr+1 >= len(r.buf) {
			// The '\r' is the last buffered byte; it may yet pair with
			// a '\n' from the next read.
			r.search = cr
			return -1
		}

		if r.buf[cr+1] == '\n' {
			return cr
		}

		r.search = cr + 1
	}
}

func (r *LineReader) consume(n int) {
	remaining := make([]byte, len(r.buf)-n)
	copy(remaining, r.buf[n:])

	r.buf = remaining
	r.search = 0
}

func (r *LineReader) fill() error {
	if r.eof {
		return io.EOF
	}

	chunk := make([]byte, readChunkSize)

	n, err := r.src.Read(chunk)

	if n > 0 {
		r.buf = append(r.buf, chunk[:n]...)

		if err == io.EOF {
			r.eof = true
			err = nil
		}

		return err
	}

	if err == nil || err == io.EOF {
		return io.EOF
	}

	return err
}

// CommandReader turns framed lines into typed commands, one at a time, using
// a per-connection registry of command constructors.
type CommandReader struct {
	inner    *LineReader
	registry Registry

	log *zap.Logger
}

func NewCommandReader(src io.Reader, registry Registry, log *zap.Logger) *CommandReader {
	return &CommandReader{
		inner:    NewLineReader(src),
		registry: registry,
		log:      log,
	}
}

// ReadCommand reads the next command off the wire. Identifiers missing from
// the registry are skipped, except bare integers, which resolve to a
// *ServerError carrying that code.
func (r *CommandReader) ReadCommand() (Command, error) {
	for {
		header, err := r.inner.ReadLine()
		if err != nil {
			return nil, err
		}

		identifier := header
		if i := strings.IndexByte(header, ' '); i >= 0 {
			identifier = header[:i]
		}

		make, ok := r.registry[identifier]

		if !ok {
			if _, convErr := strconv.Atoi(identifier); convErr == nil {
				make = func() Parsable { return &ServerError{} }
			} else {
				r.log.Debug("Skipping command of unknown type",
					zap.String("header", header))
				continue
			}
		}

		cmd := make()

		if err := cmd.Parse(header, r.inner); err != nil {
			return nil, err
		}

		return cmd, nil
	}
}
