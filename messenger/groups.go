package messenger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/luma/courier/protocol"
)

const (
	maxGroupNameBytes = 61
	maxGroups         = 30
)

var (
	errGroupGone     = errors.New("messenger: this group is no longer in use")
	errGroupNotEmpty = errors.New("messenger: remove all users from the group first")
	errNotOnForward  = errors.New("messenger: user must be on the forward list first")
)

func checkGroupName(name string) error {
	if name == "" {
		return errors.New("messenger: a group name must be specified")
	}

	if len(name) > maxGroupNameBytes {
		return fmt.Errorf("messenger: group name longer than %d bytes", maxGroupNameBytes)
	}

	return nil
}

// Group is one roster group: a GUID, a name and a subset of the forward
// list.
type Group struct {
	client *Client

	mu   sync.Mutex
	guid string
	name string

	members memberSet
}

func newGroup(client *Client, guid, name string) *Group {
	return &Group{client: client, guid: guid, name: name}
}

// GUID returns the server-assigned group identifier.
func (g *Group) GUID() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.guid
}

// Name returns the group's current name.
func (g *Group) Name() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.name
}

// Users returns a snapshot of the group's members.
func (g *Group) Users() []*User {
	return g.members.snapshot()
}

// Contains reports whether the user is in the group.
func (g *Group) Contains(u *User) bool {
	return g.members.contains(u)
}

func (g *Group) String() string {
	return g.Name()
}

func (g *Group) setName(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.name = name
}

// Rename gives the group a new name, unique among the account's groups.
func (g *Group) Rename(ctx context.Context, name string) error {
	if err := checkGroupName(name); err != nil {
		return err
	}

	if err := g.client.lock.RLock(ctx); err != nil {
		return err
	}
	defer g.client.lock.RUnlock()

	if err := g.client.requireSession(); err != nil {
		return err
	}

	if !g.client.hasGroup(g) {
		return errGroupGone
	}

	if name == g.Name() {
		return fmt.Errorf("messenger: group is already named %q", name)
	}

	for _, other := range g.client.Groups() {
		if other != g && other.Name() == name {
			return fmt.Errorf("messenger: a group named %q already exists", name)
		}
	}

	cmd := &protocol.RenameGroup{GUID: g.GUID(), Name: name}

	if _, err := g.client.send(ctx, cmd); err != nil {
		return err
	}

	previous := g.Name()
	g.setName(name)

	g.client.emit(GroupNameChanged{Group: g, Name: name, PreviousName: previous})

	return nil
}

// AddUser puts a forward-list member into the group.
func (g *Group) AddUser(ctx context.Context, user *User) error {
	if err := g.client.lock.RLock(ctx); err != nil {
		return err
	}
	defer g.client.lock.RUnlock()

	if err := g.client.requireSession(); err != nil {
		return err
	}

	if !g.client.hasGroup(g) {
		return errGroupGone
	}

	if !g.client.List(ForwardList).Contains(user) {
		return errNotOnForward
	}

	if g.members.contains(user) {
		return errors.New("messenger: user is already in the group")
	}

	// Group membership is addressed by the forward-list GUID.
	cmd := &protocol.AddContact{
		List:      ForwardList.Code(),
		GUID:      user.GUID(),
		GroupGUID: g.GUID(),
	}

	if _, err := g.client.send(ctx, cmd); err != nil {
		return err
	}

	g.members.add(user)
	g.client.emit(UserAddedToGroup{User: user, Group: g})

	return nil
}

// RemoveUser takes a user out of the group.
func (g *Group) RemoveUser(ctx context.Context, user *User) error {
	if err := g.client.lock.RLock(ctx); err != nil {
		return err
	}
	defer g.client.lock.RUnlock()

	if err := g.client.requireSession(); err != nil {
		return err
	}

	if !g.client.hasGroup(g) {
		return errGroupGone
	}

	if !g.members.contains(user) {
		return errors.New("messenger: user is not in the group")
	}

	cmd := &protocol.RemoveContact{
		List:      ForwardList.Code(),
		Target:    user.GUID(),
		GroupGUID: g.GUID(),
	}

	if _, err := g.client.send(ctx, cmd); err != nil {
		return err
	}

	g.members.remove(user)
	g.client.emit(UserRemovedFromGroup{User: user, Group: g})

	return nil
}
