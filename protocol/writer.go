package protocol

import (
	"fmt"
	"io"
	"sync"
)

// LineWriter writes CRLF-terminated lines and raw payload bytes to an
// ordered byte stream.
type LineWriter struct {
	dst io.Writer
}

func NewLineWriter(dst io.Writer) *LineWriter {
	return &LineWriter{dst: dst}
}

// WriteLine formats a single command line and appends the terminator.
func (w *LineWriter) WriteLine(format string, args ...interface{}) error {
	_, err := fmt.Fprintf(w.dst, format+"\r\n", args...)

	return err
}

// WriteRaw writes payload bytes verbatim, with no terminator.
func (w *LineWriter) WriteRaw(payload []byte) error {
	_, err := w.dst.Write(payload)

	return err
}

// CommandWriter serializes whole commands. The internal lock spans the full
// serialization of one command, so a header and its payload are never
// interleaved with another writer's bytes.
type CommandWriter struct {
	mu    sync.Mutex
	inner *LineWriter
}

func NewCommandWriter(dst io.Writer) *CommandWriter {
	return &CommandWriter{inner: NewLineWriter(dst)}
}

func (w *CommandWriter) WriteCommand(cmd Writable) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return cmd.WriteTo(w.inner)
}
