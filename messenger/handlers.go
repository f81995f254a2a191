package messenger

import (
	"context"

	"go.uber.org/zap"

	"github.com/luma/courier/auth"
	"github.com/luma/courier/protocol"
	"github.com/luma/courier/transport"
)

// dispatch pumps one session's notifications. The subscription is armed by
// Login before the session is announced; dispatch runs for the life of the
// link and hands the teardown over when the stream dies.
func (c *Client) dispatch(link *transport.Link, sub *protocol.Subscription) {
	log := c.log.Named("dispatch")

	for cmd := range sub.C {
		c.handle(link, cmd, log)
	}

	var cause error

	select {
	case cause = <-sub.Err():
	default:
	}

	if err := c.lock.Lock(context.Background()); err != nil {
		return
	}
	defer c.lock.Unlock()

	if c.currentLink() != link {
		return
	}

	if cause == protocol.ErrClosed {
		// Deliberate teardown already ran under the lock that closed us.
		return
	}

	c.logout(LogoutConnectionError, cause)
}

func (c *Client) currentLink() *transport.Link {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.link
}

func (c *Client) sessionClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

func (c *Client) handle(link *transport.Link, cmd protocol.Command, log *zap.Logger) {
	switch cmd := cmd.(type) {
	case *protocol.Message:
		c.handleServiceMessage(cmd, log)
	case *protocol.Ring:
		c.handleRing(link, cmd)
	case *protocol.Broadcast:
		c.handleBroadcast(link, cmd)
	case *protocol.Notification:
		c.emit(ServerNotification{Message: cmd.Message})
	case *protocol.AddContact:
		c.handleServerAdd(link, cmd)
	case *protocol.Out:
		c.handleOut(link, cmd)
	case *protocol.Challenge:
		c.handleChallenge(link, cmd, log)
	case *protocol.UserOnline:
		c.handlePresence(link, &cmd.Presence, false)
	case *protocol.InitialUserOnline:
		c.handlePresence(link, &cmd.Presence, true)
	case *protocol.UserOffline:
		c.handleOffline(link, cmd)
	}
}

func (c *Client) handleServiceMessage(cmd *protocol.Message, log *zap.Logger) {
	message, err := ParseMessage(cmd.Payload)
	if err != nil {
		log.Debug("Dropping malformed service message", zap.Error(err))
		return
	}

	c.emit(ServiceMessage{
		SenderLoginName: cmd.Sender,
		SenderNickname:  cmd.SenderNickname,
		Message:         message,
	})
}

func (c *Client) handleRing(link *transport.Link, cmd *protocol.Ring) {
	if err := c.lock.RLock(context.Background()); err != nil {
		return
	}
	defer c.lock.RUnlock()

	if c.sessionClosed() || c.currentLink() != link {
		return
	}

	caller := c.User(cmd.Caller)
	caller.updateNicknameFromConversation(cmd.CallerNickname)

	invitation := &Invitation{
		inviter:    caller,
		endpoint:   cmd.Endpoint,
		sessionID:  cmd.SessionID,
		authString: cmd.AuthString,
	}

	c.emit(InvitationReceived{Invitation: invitation})
}

func (c *Client) handleBroadcast(link *transport.Link, cmd *protocol.Broadcast) {
	if err := c.lock.RLock(context.Background()); err != nil {
		return
	}
	defer c.lock.RUnlock()

	if c.sessionClosed() || c.currentLink() != link {
		return
	}

	c.emit(UserBroadcast{User: c.User(cmd.LoginName), Message: cmd.Message})
}

// handleServerAdd: an ADC the server sends on its own initiative carries
// transaction id zero, an id no client transaction ever uses. One for the
// reverse list means someone put the local user on their roster; they land
// on our pending list.
func (c *Client) handleServerAdd(link *transport.Link, cmd *protocol.AddContact) {
	if err := c.lock.RLock(context.Background()); err != nil {
		return
	}
	defer c.lock.RUnlock()

	if c.currentLink() != link {
		return
	}

	if id, _ := cmd.TrID(); id != 0 || cmd.List != ReverseList.Code() {
		return
	}

	user := c.User(cmd.LoginName)
	pending := c.List(PendingList)

	pending.members.add(user)
	c.emit(UserAddedToList{User: user, List: pending})
}

func (c *Client) handleOut(link *transport.Link, cmd *protocol.Out) {
	if err := c.lock.Lock(context.Background()); err != nil {
		return
	}
	defer c.lock.Unlock()

	if c.currentLink() != link {
		return
	}

	reason := LogoutConnectionError

	switch cmd.OutCode {
	case "OTH":
		reason = LogoutLoggedInElsewhere
	case "SSD":
		reason = LogoutServerShuttingDown
	}

	c.logout(reason, nil)
}

// handleChallenge answers the server's liveness probe. The answer is best
// effort: a failed or timed-out exchange is logged and swallowed, the
// server's disconnect is the real verdict.
func (c *Client) handleChallenge(link *transport.Link, cmd *protocol.Challenge, log *zap.Logger) {
	if err := c.lock.RLock(context.Background()); err != nil {
		return
	}
	defer c.lock.RUnlock()

	if c.currentLink() != link {
		return
	}

	answer := &protocol.AcceptChallenge{
		ClientID: auth.ProductID,
		Data:     auth.ChallengeResponse(cmd.ChallengeString),
	}

	if _, err := link.Tracker.Send(context.Background(), answer, c.timeout); err != nil {
		log.Debug("Challenge answer failed", zap.Error(err))
		return
	}

	log.Debug("Challenge answered")
}

func (c *Client) handlePresence(link *transport.Link, p *protocol.Presence, initial bool) {
	if err := c.lock.RLock(context.Background()); err != nil {
		return
	}
	defer c.lock.RUnlock()

	if c.currentLink() != link {
		return
	}

	user := c.User(p.LoginName)

	status, _ := parseStatus(p.Status)
	capabilities := Capabilities(p.Capabilities)

	picture := p.DisplayPicture
	if picture == "0" {
		picture = ""
	}

	if status != user.Status() {
		previous := user.Status()
		user.setStatus(status)

		c.emit(UserStatusChanged{
			User:           user,
			Status:         status,
			PreviousStatus: previous,
			DuringLogin:    initial,
		})
	}

	if p.Nickname != user.Nickname() {
		previous := user.Nickname()
		user.setNickname(p.Nickname)

		c.emit(UserNicknameChanged{
			User:             user,
			Nickname:         p.Nickname,
			PreviousNickname: previous,
			DuringLogin:      initial,
		})

		// The server keeps our copy of a roster member's name; push the
		// change back so the two stay aligned.
		if guid := user.GUID(); guid != "" {
			update := &protocol.ChangeUserProperty{GUID: guid, Key: "MFN", Value: p.Nickname}

			if _, err := link.Tracker.Send(context.Background(), update, c.timeout); err != nil {
				return
			}
		}
	}

	if capabilities != user.Capabilities() {
		user.setCapabilities(capabilities)

		c.emit(UserCapabilitiesChanged{
			User:         user,
			Capabilities: capabilities,
			DuringLogin:  initial,
		})
	}

	if picture != user.DisplayPicture() {
		user.setDisplayPicture(picture)

		c.emit(UserDisplayPictureChanged{
			User:           user,
			DisplayPicture: picture,
			DuringLogin:    initial,
		})
	}
}

func (c *Client) handleOffline(link *transport.Link, cmd *protocol.UserOffline) {
	if err := c.lock.RLock(context.Background()); err != nil {
		return
	}
	defer c.lock.RUnlock()

	if c.currentLink() != link {
		return
	}

	user := c.User(cmd.LoginName)

	previous := user.Status()
	user.setStatus(StatusOffline)

	c.emit(UserStatusChanged{User: user, Status: StatusOffline, PreviousStatus: previous})
}
