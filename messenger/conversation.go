package messenger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/luma/courier/internal/syncx"
	"github.com/luma/courier/protocol"
	"github.com/luma/courier/transport"
)

// DeliveryMode chooses how hard the conversation server works to confirm a
// message, and what this client waits for.
type DeliveryMode string

const (
	// DeliveryUnacknowledged fires and forgets.
	DeliveryUnacknowledged DeliveryMode = "U"

	// DeliveryAcknowledged waits for the server to confirm or deny.
	DeliveryAcknowledged DeliveryMode = "A"

	// DeliveryNegativeOnly asks for a report only on failure. The send
	// resolves as delivered when the failure window passes in silence.
	DeliveryNegativeOnly DeliveryMode = "N"

	// DeliveryData is the acknowledged mode for non-text payloads.
	DeliveryData DeliveryMode = "D"
)

// maxMessageBytes is the largest payload a conversation server relays.
const maxMessageBytes = 1664

// negativeWindow is how long a failure report can trail a message sent with
// DeliveryNegativeOnly. A variable so the tests can shorten the wait.
var negativeWindow = 2 * time.Minute

var (
	errMessageTooLong     = fmt.Errorf("messenger: message exceeds %d bytes", maxMessageBytes)
	errAlreadyParticipant = errors.New("messenger: user is already in the conversation")
	errNotConnected       = errors.New("messenger: conversation is not connected")
)

// Invitation is another user ringing the local user into a conversation.
// Pass it to Client.AcceptInvitation to join; at most one accept wins.
type Invitation struct {
	accepted int32

	inviter    *User
	endpoint   string
	sessionID  string
	authString string
}

// Inviter is the user who started the conversation.
func (i *Invitation) Inviter() *User {
	return i.inviter
}

// Conversation is one instant-messaging session on a conversation server,
// with its own connection and its own event stream. It starts detached; the
// first Invite dials out, and accepting an Invitation joins one already
// ringing.
type Conversation struct {
	client *Client
	log    *zap.Logger

	lock   *syncx.SessionLock
	events chan ConversationEvent

	mu        sync.Mutex
	link      *transport.Link
	connected bool
	closed    bool

	members memberSet
}

func newConversation(client *Client) *Conversation {
	return &Conversation{
		client: client,
		log:    client.log.Named("conversation"),
		lock:   syncx.NewSessionLock(),
		events: make(chan ConversationEvent, eventBacklog),
	}
}

// NewConversation prepares an empty conversation. No connection is opened
// until the first Invite.
func (c *Client) NewConversation(ctx context.Context) (*Conversation, error) {
	if err := c.lock.RLock(ctx); err != nil {
		return nil, err
	}
	defer c.lock.RUnlock()

	if err := c.requireSession(); err != nil {
		return nil, err
	}

	conv := newConversation(c)
	c.conversations.add(conv)

	c.emit(ConversationStarted{Conversation: conv})

	return conv, nil
}

// AcceptInvitation joins the conversation an invitation rings for. Each
// invitation can be accepted once; later calls return ErrAlreadyAccepted.
func (c *Client) AcceptInvitation(ctx context.Context, invitation *Invitation) (*Conversation, error) {
	if err := c.lock.RLock(ctx); err != nil {
		return nil, err
	}
	defer c.lock.RUnlock()

	if err := c.requireSession(); err != nil {
		return nil, err
	}

	if !atomic.CompareAndSwapInt32(&invitation.accepted, 0, 1) {
		return nil, ErrAlreadyAccepted
	}

	conv := newConversation(c)

	if err := conv.join(ctx, invitation); err != nil {
		return nil, err
	}

	c.conversations.add(conv)

	c.emit(ConversationStarted{Conversation: conv, Invitation: invitation})

	return conv, nil
}

// join answers the ring at the invitation's endpoint and collects the
// roster of participants already present. The caller holds the client's
// read lock.
func (c *Conversation) join(ctx context.Context, invitation *Invitation) error {
	if err := c.lock.Lock(ctx); err != nil {
		return err
	}
	defer c.lock.Unlock()

	link, err := transport.Open(ctx, transport.Options{
		Addr:     invitation.endpoint,
		Registry: protocol.ConversationRegistry(),
		Dialer:   c.client.dialer,
		Log:      c.log,
	})
	if err != nil {
		return err
	}

	// The roster is announced under the answer's transaction, so the
	// subscription must be armed before the answer goes out.
	roster := link.Events.Subscribe(func(cmd protocol.Command) bool {
		_, ok := cmd.(*protocol.UserRoster)
		return ok
	})
	defer roster.Cancel()

	_, err = link.Tracker.Send(ctx, &protocol.Answer{
		LoginName: c.client.loginName,
		AuthToken: invitation.authString,
		SessionID: invitation.sessionID,
	}, c.client.timeout)
	if err != nil {
		link.Close()
		return err
	}

	deadline := time.NewTimer(c.client.timeout)
	defer deadline.Stop()

	for {
		select {
		case cmd := <-roster.C:
			entry, ok := cmd.(*protocol.UserRoster)
			if !ok {
				link.Close()
				return protocol.ErrClosed
			}

			user := c.client.User(entry.LoginName)
			user.updateNicknameFromConversation(entry.Nickname)
			c.members.add(user)

			if entry.CurrentIndex >= entry.TotalCount {
				c.attach(link)
				return nil
			}

		case <-deadline.C:
			link.Close()
			return protocol.ErrTimeout

		case <-ctx.Done():
			link.Close()
			return ctx.Err()
		}
	}
}

// Invite rings another user into the conversation, dialling a fresh
// conversation server first when the conversation is detached. A user who
// is not online answers with ErrUserNotOnline.
func (c *Conversation) Invite(ctx context.Context, user *User) error {
	if err := c.client.lock.RLock(ctx); err != nil {
		return err
	}
	defer c.client.lock.RUnlock()

	if err := c.lock.Lock(ctx); err != nil {
		return err
	}
	defer c.lock.Unlock()

	c.mu.Lock()
	closed, connected := c.closed, c.connected
	c.mu.Unlock()

	if closed {
		return ErrClosed
	}

	if !connected {
		if err := c.dial(ctx); err != nil {
			return err
		}
	}

	if c.members.contains(user) {
		return errAlreadyParticipant
	}

	c.mu.Lock()
	link := c.link
	c.mu.Unlock()

	_, err := link.Tracker.Send(ctx, &protocol.CallUser{LoginName: user.LoginName()}, c.client.timeout)
	if err != nil {
		if code, ok := serverCode(err); ok && code == protocol.CodePrincipalNotOnline {
			return ErrUserNotOnline
		}

		return err
	}

	return nil
}

// dial asks the notification server for a conversation server and
// authenticates to it. The caller holds the client's read lock and the
// conversation's write lock.
func (c *Conversation) dial(ctx context.Context) error {
	transfer, err := c.client.switchboard(ctx)
	if err != nil {
		return err
	}

	link, err := transport.Open(ctx, transport.Options{
		Addr:     transfer.Host,
		Registry: protocol.ConversationRegistry(),
		Dialer:   c.client.dialer,
		Log:      c.log,
	})
	if err != nil {
		return err
	}

	_, err = link.Tracker.Send(ctx, &protocol.AuthenticateIM{
		LoginName: c.client.loginName,
		SessionID: transfer.SessionID,
	}, c.client.timeout)
	if err != nil {
		link.Close()
		return err
	}

	c.attach(link)

	return nil
}

func (c *Conversation) attach(link *transport.Link) {
	c.mu.Lock()
	c.link = link
	c.connected = true
	c.mu.Unlock()

	go c.dispatch(link)
}

// Send relays a message to every participant. The delivery mode decides
// what counts as done: unacknowledged sends resolve as soon as the bytes
// are out, acknowledged sends wait for the server's verdict, and
// negative-only sends resolve after the failure window passes in silence.
func (c *Conversation) Send(ctx context.Context, message *Message, mode DeliveryMode) error {
	payload := message.Bytes()

	if len(payload) > maxMessageBytes {
		return errMessageTooLong
	}

	if err := c.lock.RLock(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	closed, connected, link := c.closed, c.connected, c.link
	c.mu.Unlock()

	switch {
	case closed:
		c.lock.RUnlock()
		return ErrClosed
	case !connected:
		c.lock.RUnlock()
		return errNotConnected
	case c.members.len() == 0:
		c.lock.RUnlock()
		return ErrNoParticipants
	}

	cmd := &protocol.SendMessage{DeliveryMethod: string(mode), Payload: payload}

	switch mode {
	case DeliveryUnacknowledged:
		err := link.Tracker.Post(cmd)
		c.lock.RUnlock()

		return err

	case DeliveryNegativeOnly:
		// The failure window is far longer than any reasonable hold on
		// the conversation, so the wait happens off the lock.
		outcome := make(chan error, 1)

		go func() {
			_, err := link.Tracker.Send(ctx, cmd, negativeWindow, &protocol.NegativeAcknowledgement{})
			outcome <- err
		}()

		c.lock.RUnlock()

		err := <-outcome

		switch {
		case err == nil:
			return ErrDeliveryFailed
		case errors.Is(err, protocol.ErrTimeout):
			return nil
		case errors.Is(err, protocol.ErrClosed):
			return ErrDeliveryFailed
		}

		return err

	default:
		reply, err := link.Tracker.Send(ctx, cmd, c.client.timeout,
			&protocol.Acknowledgement{}, &protocol.NegativeAcknowledgement{})
		c.lock.RUnlock()

		if err != nil {
			return err
		}

		if _, refused := reply.(*protocol.NegativeAcknowledgement); refused {
			return ErrDeliveryFailed
		}

		return nil
	}
}

// Disconnect hangs up the conversation connection. Every remaining
// participant leaves, and a later Invite dials a fresh conversation server.
func (c *Conversation) Disconnect(ctx context.Context) error {
	if err := c.lock.Lock(ctx); err != nil {
		return err
	}
	defer c.lock.Unlock()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return ErrClosed
	}

	c.disconnectInner()

	return nil
}

// Close hangs up and finishes the conversation for good, ending its event
// stream.
func (c *Conversation) Close(ctx context.Context) error {
	return c.close(ctx)
}

func (c *Conversation) close(ctx context.Context) error {
	if err := c.lock.Lock(ctx); err != nil {
		return err
	}
	defer c.lock.Unlock()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return nil
	}

	c.disconnectInner()

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.client.conversations.remove(c)

	c.emit(ConversationClosed{})
	close(c.events)

	return nil
}

// disconnectInner drops the connection and empties the roster. Callers hold
// the conversation's write lock.
func (c *Conversation) disconnectInner() {
	c.mu.Lock()
	link, connected := c.link, c.connected
	c.link = nil
	c.connected = false
	c.mu.Unlock()

	if !connected {
		return
	}

	if link != nil {
		link.Close()
	}

	for _, user := range c.members.snapshot() {
		c.members.remove(user)
		c.emit(ParticipantLeft{User: user})
	}
}

// Events is the conversation's notification stream. Consume it promptly:
// once the backlog fills, handlers block rather than drop.
func (c *Conversation) Events() <-chan ConversationEvent {
	return c.events
}

// Users are the current participants, the local user excluded.
func (c *Conversation) Users() []*User {
	return c.members.snapshot()
}

// Connected reports whether the conversation currently holds a connection.
func (c *Conversation) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connected
}

// dispatch consumes the conversation stream until the connection dies, then
// empties the roster unless a deliberate teardown already has.
func (c *Conversation) dispatch(link *transport.Link) {
	sub := link.Events.Subscribe(nil)
	defer sub.Cancel()

	for cmd := range sub.C {
		c.handle(link, cmd)
	}

	if err := c.lock.Lock(context.Background()); err != nil {
		return
	}
	defer c.lock.Unlock()

	c.mu.Lock()
	closed, current := c.closed, c.link
	c.mu.Unlock()

	if closed || current != link {
		return
	}

	c.disconnectInner()
}

func (c *Conversation) handle(link *transport.Link, cmd protocol.Command) {
	if err := c.lock.RLock(context.Background()); err != nil {
		return
	}
	defer c.lock.RUnlock()

	c.mu.Lock()
	closed, current := c.closed, c.link
	c.mu.Unlock()

	if closed || current != link {
		return
	}

	switch cmd := cmd.(type) {
	case *protocol.Message:
		c.handleMessage(cmd)
	case *protocol.UserJoined:
		c.handleJoined(cmd)
	case *protocol.UserParted:
		c.handleParted(cmd)
	}
}

func (c *Conversation) handleMessage(cmd *protocol.Message) {
	sender := c.client.User(cmd.Sender)
	sender.updateNicknameFromConversation(cmd.SenderNickname)

	message, err := ParseMessage(cmd.Payload)
	if err != nil {
		c.log.Debug("Dropping malformed message", zap.String("sender", cmd.Sender), zap.Error(err))
		return
	}

	c.emit(MessageReceived{Sender: sender, Message: message})
}

func (c *Conversation) handleJoined(cmd *protocol.UserJoined) {
	user := c.client.User(cmd.LoginName)
	user.updateNicknameFromConversation(cmd.Nickname)

	// The server sometimes announces a participant both in the joining
	// roster and with a join; only the first one counts.
	if c.members.contains(user) {
		return
	}

	c.members.add(user)

	c.emit(ParticipantJoined{User: user})
}

func (c *Conversation) handleParted(cmd *protocol.UserParted) {
	user := c.client.User(cmd.LoginName)

	if !c.members.contains(user) {
		return
	}

	c.members.remove(user)

	c.emit(ParticipantLeft{User: user})
}

func (c *Conversation) emit(e ConversationEvent) {
	c.events <- e
}
