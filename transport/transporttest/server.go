// Package transporttest runs scripted servers for exercising clients
// against realistic wire exchanges without a live service.
package transporttest

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	reuseport "github.com/kavu/go_reuseport"

	"github.com/luma/courier/protocol"
)

// Script drives one accepted connection. Expectation failures inside the
// script abort the connection; the recorded failure surfaces from
// Server.Close.
type Script func(s *Session)

// Server accepts connections on a loopback port and runs the script against
// each one.
type Server struct {
	listener net.Listener
	script   Script

	wg sync.WaitGroup

	mu       sync.Mutex
	failures []error
}

// NewServer starts listening on an ephemeral loopback port.
func NewServer(script Script) (*Server, error) {
	listener, err := reuseport.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	srv := &Server{listener: listener, script: script}

	srv.wg.Add(1)

	go srv.acceptLoop()

	return srv, nil
}

// Addr is the host:port clients should dial.
func (srv *Server) Addr() string {
	return srv.listener.Addr().String()
}

func (srv *Server) acceptLoop() {
	defer srv.wg.Done()

	for {
		conn, err := srv.listener.Accept()
		if err != nil {
			return
		}

		srv.wg.Add(1)

		go func() {
			defer srv.wg.Done()
			srv.serve(conn)
		}()
	}
}

func (srv *Server) serve(conn net.Conn) {
	defer conn.Close()

	session := &Session{
		conn:   conn,
		reader: protocol.NewLineReader(conn),
		writer: protocol.NewLineWriter(conn),
	}

	defer func() {
		if r := recover(); r != nil {
			srv.mu.Lock()
			srv.failures = append(srv.failures, fmt.Errorf("transporttest: %v", r))
			srv.mu.Unlock()
		}
	}()

	srv.script(session)
}

// Close stops accepting, waits for running scripts, and returns the first
// script failure, if any.
func (srv *Server) Close() error {
	srv.listener.Close()
	srv.wg.Wait()

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if len(srv.failures) > 0 {
		return srv.failures[0]
	}

	return nil
}

// Session is the server's side of one scripted connection.
type Session struct {
	conn   net.Conn
	reader *protocol.LineReader
	writer *protocol.LineWriter
}

// ReadLine returns the next client line, panicking if the client hung up.
func (s *Session) ReadLine() string {
	line, err := s.reader.ReadLine()
	if err != nil {
		panic(fmt.Sprintf("reading line: %v", err))
	}

	return line
}

// Expect reads a line and asserts its identifier, returning the space-split
// fields.
func (s *Session) Expect(identifier string) []string {
	line := s.ReadLine()
	fields := strings.Split(line, " ")

	if fields[0] != identifier {
		panic(fmt.Sprintf("expected %s, got %q", identifier, line))
	}

	return fields
}

// ExpectTrID reads a line, asserts its identifier, and returns the
// transaction id along with the fields.
func (s *Session) ExpectTrID(identifier string) (int, []string) {
	fields := s.Expect(identifier)

	if len(fields) < 2 {
		panic(fmt.Sprintf("%s line carries no transaction id", identifier))
	}

	id, err := strconv.Atoi(fields[1])
	if err != nil {
		panic(fmt.Sprintf("%s transaction id %q is not a number", identifier, fields[1]))
	}

	return id, fields
}

// ReadPayload consumes n raw bytes following a header the script already
// read.
func (s *Session) ReadPayload(n int) []byte {
	payload, err := s.reader.ReadFull(n)
	if err != nil {
		panic(fmt.Sprintf("reading %d payload bytes: %v", n, err))
	}

	return payload
}

// Send writes one CRLF-terminated line to the client.
func (s *Session) Send(format string, args ...interface{}) {
	if err := s.writer.WriteLine(format, args...); err != nil {
		panic(fmt.Sprintf("writing line: %v", err))
	}
}

// SendPayload writes a header line followed by its raw payload.
func (s *Session) SendPayload(header string, payload []byte) {
	if err := s.writer.WriteLine("%s %d", header, len(payload)); err != nil {
		panic(fmt.Sprintf("writing payload header: %v", err))
	}

	if err := s.writer.WriteRaw(payload); err != nil {
		panic(fmt.Sprintf("writing payload: %v", err))
	}
}

// Hangup closes the connection mid-script, simulating a server failure.
func (s *Session) Hangup() {
	s.conn.Close()
}
