package messenger

import (
	"context"

	"github.com/luma/courier/protocol"
)

// ListKind names one of the five fixed per-account lists.
type ListKind int

const (
	AllowList ListKind = iota
	BlockList
	ForwardList
	ReverseList
	PendingList
)

// Code returns the wire token for the list.
func (k ListKind) Code() string {
	switch k {
	case AllowList:
		return "AL"
	case BlockList:
		return "BL"
	case ForwardList:
		return "FL"
	case ReverseList:
		return "RL"
	case PendingList:
		return "PL"
	}

	return ""
}

func (k ListKind) String() string {
	switch k {
	case AllowList:
		return "allow list"
	case BlockList:
		return "block list"
	case ForwardList:
		return "forward list"
	case ReverseList:
		return "reverse list"
	case PendingList:
		return "pending list"
	}

	return "unknown list"
}

// listKinds is the fixed set in its canonical iteration order.
var listKinds = []ListKind{AllowList, BlockList, ForwardList, ReverseList, PendingList}

// UserList is one of the five membership lists. Membership changes round-trip
// through the server before they are visible locally.
type UserList struct {
	client  *Client
	kind    ListKind
	members memberSet
}

// Kind returns which of the five lists this is.
func (l *UserList) Kind() ListKind {
	return l.kind
}

// Users returns a snapshot of the current members.
func (l *UserList) Users() []*User {
	return l.members.snapshot()
}

// Contains reports whether the user is currently on the list.
func (l *UserList) Contains(u *User) bool {
	return l.members.contains(u)
}

func (l *UserList) String() string {
	return l.kind.String()
}

// Add puts a user on the list. Adding to the forward list also registers the
// user's display name and yields the roster GUID the server assigned. The
// pending list cannot be added to.
func (l *UserList) Add(ctx context.Context, user *User) error {
	if l.kind == PendingList {
		return ErrPendingListImmutable
	}

	if err := l.client.lock.RLock(ctx); err != nil {
		return err
	}
	defer l.client.lock.RUnlock()

	if err := l.client.requireSession(); err != nil {
		return err
	}

	if l.members.contains(user) {
		return errAlreadyOnList(l.kind)
	}

	cmd := &protocol.AddContact{List: l.kind.Code(), LoginName: user.LoginName()}

	if l.kind == ForwardList {
		cmd.Nickname = user.Nickname()
	}

	reply, err := l.client.send(ctx, cmd)
	if err != nil {
		return err
	}

	if l.kind == ForwardList {
		user.setGUID(reply.(*protocol.AddContact).GUID)
	}

	l.members.add(user)
	l.client.emit(UserAddedToList{User: user, List: l})

	return nil
}

// Remove takes a user off the list. A forward-list member must leave every
// group first; removal there is addressed by GUID, elsewhere by login name.
func (l *UserList) Remove(ctx context.Context, user *User) error {
	if l.kind == PendingList {
		return ErrPendingListImmutable
	}

	if err := l.client.lock.RLock(ctx); err != nil {
		return err
	}
	defer l.client.lock.RUnlock()

	if err := l.client.requireSession(); err != nil {
		return err
	}

	if !l.members.contains(user) {
		return errNotOnList(l.kind)
	}

	target := user.LoginName()

	if l.kind == ForwardList {
		for _, g := range l.client.Groups() {
			if g.Contains(user) {
				return errStillGrouped
			}
		}

		target = user.GUID()
	}

	cmd := &protocol.RemoveContact{List: l.kind.Code(), Target: target}

	if _, err := l.client.send(ctx, cmd); err != nil {
		return err
	}

	if l.kind == ForwardList {
		user.setGUID("")
	}

	l.members.remove(user)
	l.client.emit(UserRemovedFromList{User: user, List: l})

	return nil
}
