package messenger

import (
	"errors"
	"fmt"

	"github.com/luma/courier/protocol"
)

var (
	// ErrClosed reports an operation on a Client or Conversation that has
	// been closed for good.
	ErrClosed = errors.New("messenger: closed")

	// ErrNotLoggedIn reports an operation that needs a live session.
	ErrNotLoggedIn = errors.New("messenger: not logged in")

	// ErrTooManyRedirects reports a login bounced between notification
	// servers more times than the protocol allows.
	ErrTooManyRedirects = errors.New("messenger: too many login redirects")

	// ErrDialectRejected reports that the server accepted none of the
	// protocol dialects offered at login.
	ErrDialectRejected = errors.New("messenger: protocol dialect rejected")

	// ErrChangingTooRapidly reports the server refusing a state change
	// because the previous one was too recent. The server is the only
	// throttle; the client never rejects a change pre-emptively.
	ErrChangingTooRapidly = errors.New("messenger: changing state too rapidly")

	// ErrUserNotOnline reports a conversation invite addressed to a user
	// who is not online.
	ErrUserNotOnline = errors.New("messenger: user not online")

	// ErrDeliveryFailed reports a message the conversation server could not
	// deliver.
	ErrDeliveryFailed = errors.New("messenger: message delivery failed")

	// ErrNoParticipants reports a send into a conversation nobody else is
	// in.
	ErrNoParticipants = errors.New("messenger: conversation has no participants")

	// ErrAlreadyAccepted reports a conversation invitation accepted twice.
	ErrAlreadyAccepted = errors.New("messenger: invitation already accepted")

	// ErrPendingListImmutable reports a direct mutation of the pending
	// list, whose membership only the server controls.
	ErrPendingListImmutable = errors.New("messenger: pending list cannot be modified directly")
)

// errStillGrouped guards forward-list removal: the server rejects it anyway,
// but locally we know better than to try.
var errStillGrouped = errors.New("messenger: remove the user from every group first")

func errAlreadyOnList(k ListKind) error {
	return fmt.Errorf("messenger: user is already on the %s", k)
}

func errNotOnList(k ListKind) error {
	return fmt.Errorf("messenger: user is not on the %s", k)
}

// serverCode extracts the protocol error code when err is a server error
// reply.
func serverCode(err error) (protocol.Code, bool) {
	var resp *protocol.ServerErrorResponse

	if errors.As(err, &resp) {
		return resp.Code, true
	}

	return 0, false
}

// translateRapidity swaps the server's rate rejection for its sentinel and
// passes every other failure through.
func translateRapidity(err error) error {
	if code, ok := serverCode(err); ok && code == protocol.CodeChangingTooRapidly {
		return ErrChangingTooRapidly
	}

	return err
}
