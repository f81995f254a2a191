package protocol

import (
	"context"
	"reflect"
	"sync/atomic"
	"time"
)

// Tracker assigns transaction ids to outgoing commands and correlates each
// with the single server reply addressed to the same id. Ids increase
// monotonically for the life of a connection and are never reused.
type Tracker struct {
	lastID int64

	writer *CommandWriter
	events *Channel
}

func NewTracker(writer *CommandWriter, events *Channel) *Tracker {
	return &Tracker{writer: writer, events: events}
}

// NextTrID reserves a fresh transaction id.
func (t *Tracker) NextTrID() int {
	return int(atomic.AddInt64(&t.lastID, 1))
}

// Post assigns a transaction id and writes the command without waiting for
// any reply.
func (t *Tracker) Post(cmd Writable) error {
	cmd.SetTrID(t.NextTrID())

	return t.writer.WriteCommand(cmd)
}

// Send writes the command and blocks until the server answers its
// transaction id with one of the accepted reply kinds, an error reply
// arrives, the timeout lapses, ctx is done, or the stream ends.
//
// With no accept arguments, the reply must be the same kind as the command
// sent (the echo convention most commands follow). An error reply surfaces
// as a *ServerErrorResponse.
//
// The reply subscription is armed before the first byte is written, so a
// reply can never race past its waiter.
func (t *Tracker) Send(
	ctx context.Context,
	cmd Writable,
	timeout time.Duration,
	accept ...Command,
) (Command, error) {
	id := t.NextTrID()
	cmd.SetTrID(id)

	acceptable := map[reflect.Type]struct{}{}

	if len(accept) == 0 {
		acceptable[reflect.TypeOf(cmd)] = struct{}{}
	}

	for _, kind := range accept {
		acceptable[reflect.TypeOf(kind)] = struct{}{}
	}

	sub := t.events.Subscribe(func(incoming Command) bool {
		replyID, ok := incoming.TrID()
		if !ok || replyID != id {
			return false
		}

		if _, isError := incoming.(*ServerError); isError {
			return true
		}

		_, ok = acceptable[reflect.TypeOf(incoming)]

		return ok
	})
	defer sub.Cancel()

	if err := t.writer.WriteCommand(cmd); err != nil {
		return nil, err
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case reply := <-sub.C:
		if reply == nil {
			return nil, ErrClosed
		}

		if failure, ok := reply.(*ServerError); ok {
			return nil, failure.Response()
		}

		return reply, nil

	case <-sub.Err():
		return nil, ErrClosed

	case <-deadline.C:
		return nil, ErrTimeout

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
