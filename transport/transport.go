// Package transport dials the service's servers and pumps their command
// streams. A Link owns one connection: its read loop publishes every
// incoming command to a broadcast channel, and its tracker correlates sent
// commands with their replies over the same channel.
package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luma/courier/protocol"
)

// Dialer opens the raw connection a Link runs over. Tests substitute one
// that points at a scripted server.
type Dialer func(ctx context.Context, addr string) (net.Conn, error)

// NetDialer dials over TCP with the given per-attempt timeout.
func NetDialer(timeout time.Duration) Dialer {
	return func(ctx context.Context, addr string) (net.Conn, error) {
		d := net.Dialer{Timeout: timeout}

		return d.DialContext(ctx, "tcp", addr)
	}
}

// Options configures a Link.
type Options struct {
	// Addr is the host:port to connect to.
	Addr string

	// Registry chooses how incoming commands are decoded; notification and
	// conversation servers speak different command sets.
	Registry protocol.Registry

	Dialer Dialer

	Log *zap.Logger
}

// Link is one live connection. Events carries every command the server
// sends, Tracker drives request/response exchanges over the same wire.
type Link struct {
	Events  *protocol.Channel
	Tracker *protocol.Tracker

	conn net.Conn
	addr string

	closeOnce sync.Once
	done      chan struct{}

	mu         sync.Mutex
	err        error
	deliberate bool

	log *zap.Logger
}

// Open dials the server and starts the read loop. The returned Link is live
// until the peer hangs up or Close is called.
func Open(ctx context.Context, options Options) (*Link, error) {
	dial := options.Dialer
	if dial == nil {
		dial = NetDialer(30 * time.Second)
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	conn, err := dial(ctx, options.Addr)
	if err != nil {
		return nil, err
	}

	l := &Link{
		Events: protocol.NewChannel(),
		conn:   conn,
		addr:   options.Addr,
		done:   make(chan struct{}),
		log:    log,
	}
	l.Tracker = protocol.NewTracker(protocol.NewCommandWriter(conn), l.Events)

	go l.readLoop(options.Registry)

	return l, nil
}

func (l *Link) readLoop(registry protocol.Registry) {
	log := l.log.Named("readLoop")
	reader := protocol.NewCommandReader(l.conn, registry, log)

	for {
		cmd, err := reader.ReadCommand()
		if err != nil {
			l.mu.Lock()

			if l.deliberate {
				err = protocol.ErrClosed
			}

			l.err = err
			l.mu.Unlock()

			if err != protocol.ErrClosed {
				log.Debug("Read loop exiting", zap.Error(err))
			}

			l.Events.Close(err)
			close(l.done)

			return
		}

		l.Events.Publish(cmd)
	}
}

// RemoteAddr returns the address the Link was opened against.
func (l *Link) RemoteAddr() string {
	return l.addr
}

// Done is closed once the read loop has exited, for any reason.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

// Err reports why the Link died. It is meaningful only after Done.
func (l *Link) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.err
}

// Close hangs up. Pending response waits resolve with ErrClosed. Safe to
// call more than once.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.deliberate = true
		l.mu.Unlock()

		l.conn.Close()
	})

	<-l.done

	return nil
}
