package messenger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/courier/auth"
	"github.com/luma/courier/internal/syncx"
	"github.com/luma/courier/protocol"
	"github.com/luma/courier/transport"
)

// The dialect this client speaks and the build identity it reports.
const (
	dialect = "MSNP12"

	cvrLocaleID     = "0x0409"
	cvrOsType       = "winnt"
	cvrOsVersion    = "5.0"
	cvrArchitecture = "1386"
	cvrLibraryName  = "MSMSGS"
	cvrVersion      = "5.0.0482"
	cvrClientName   = "WindowsMessenger"
)

const (
	// maxRedirects bounds how many times a login follows a notification
	// server transfer before giving up.
	maxRedirects = 3

	defaultTimeout = 30 * time.Second

	eventBacklog = 255

	cachePurgeInterval = 5 * time.Minute
)

// PrivacySetting identifies one of the two account privacy knobs.
type PrivacySetting string

const (
	// PrivacyAcceptInvitations says who may ring the local user into
	// conversations.
	PrivacyAcceptInvitations PrivacySetting = "BLP"

	// PrivacyAddUsers says whether users who add us join our lists
	// automatically or wait for a prompt.
	PrivacyAddUsers PrivacySetting = "GTC"
)

// Values for the privacy settings.
const (
	AcceptInvitationsFromAllUsers         = "AL"
	AcceptInvitationsFromAllowedUsersOnly = "BL"

	AddUsersAutomatically = "A"
	AddUsersWithPrompt    = "N"
)

// Options configures a Client.
type Options struct {
	// Addr is the notification server to log in against.
	Addr string

	LoginName string
	Password  string

	// Tokens exchanges the server's login ticket for a passport token.
	// Defaults to the public passport flow.
	Tokens auth.TokenExchanger

	// Dialer opens raw connections; tests point it at a scripted server.
	Dialer transport.Dialer

	// Timeout bounds each command round-trip.
	Timeout time.Duration

	Log *zap.Logger
}

// Client is one messenger session: the login state machine, the roster, and
// the conversations hanging off it. All wire operations hold the session
// lock; notifications stream out of Events.
type Client struct {
	addr      string
	loginName string
	password  string
	tokens    auth.TokenExchanger
	dialer    transport.Dialer
	timeout   time.Duration
	log       *zap.Logger

	lock   *syncx.SessionLock
	events chan Event

	// mu guards the session fields so they can be read off the lock.
	mu         sync.Mutex
	link       *transport.Link
	loggedIn   bool
	closed     bool
	syncStamp1 string
	syncStamp2 string

	localUser *LocalUser
	lists     map[ListKind]*UserList

	groupsMu sync.Mutex
	groups   []*Group

	privacyMu sync.Mutex
	privacy   map[PrivacySetting]string

	cacheMu   sync.Mutex
	cache     map[string]*User
	lastPurge time.Time

	conversations conversationList
}

type conversationList struct {
	mu    sync.Mutex
	conns []*Conversation
}

// NewClient builds a Client. It opens no connection until Login.
func NewClient(options Options) *Client {
	tokens := options.Tokens
	if tokens == nil {
		tokens = &auth.Passport{}
	}

	timeout := options.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	c := &Client{
		addr:      options.Addr,
		loginName: strings.ToLower(options.LoginName),
		password:  options.Password,
		tokens:    tokens,
		dialer:    options.Dialer,
		timeout:   timeout,
		log:       log,
		lock:      syncx.NewSessionLock(),
		events:    make(chan Event, eventBacklog),
		lists:     map[ListKind]*UserList{},
		privacy:   map[PrivacySetting]string{},
		cache:     map[string]*User{},
	}

	for _, kind := range listKinds {
		c.lists[kind] = &UserList{client: c, kind: kind}
	}

	return c
}

// Events is the client's notification stream. Consume it promptly: once the
// backlog fills, handlers block rather than drop.
func (c *Client) Events() <-chan Event {
	return c.events
}

// LocalUser returns the logged-in identity, nil before the first login.
func (c *Client) LocalUser() *LocalUser {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.localUser
}

// List returns one of the five fixed lists.
func (c *Client) List(kind ListKind) *UserList {
	return c.lists[kind]
}

// Lists returns the five fixed lists in canonical order.
func (c *Client) Lists() []*UserList {
	out := make([]*UserList, 0, len(listKinds))

	for _, kind := range listKinds {
		out = append(out, c.lists[kind])
	}

	return out
}

// Groups returns a snapshot of the roster groups.
func (c *Client) Groups() []*Group {
	c.groupsMu.Lock()
	defer c.groupsMu.Unlock()

	out := make([]*Group, len(c.groups))
	copy(out, c.groups)

	return out
}

// LoggedIn reports whether a session is currently live.
func (c *Client) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.loggedIn
}

// PrivacySetting returns the current value of a privacy knob, "" when the
// server has not announced one.
func (c *Client) PrivacySetting(setting PrivacySetting) string {
	c.privacyMu.Lock()
	defer c.privacyMu.Unlock()

	return c.privacy[setting]
}

// User returns the session's identity for a login name, creating it on
// first sight. The same name always yields the same *User for the life of
// the client.
func (c *Client) User(loginName string) *User {
	user, _ := c.lookupUser(loginName)

	return user
}

func (c *Client) lookupUser(loginName string) (*User, bool) {
	loginName = strings.ToLower(loginName)

	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	defer c.purgeCacheLocked()

	if user, ok := c.cache[loginName]; ok {
		return user, false
	}

	user := newUser(c, loginName)
	c.cache[loginName] = user

	return user, true
}

// purgeCacheLocked drops cache entries nothing references any more. It runs
// opportunistically on lookup, at most once per purge interval.
func (c *Client) purgeCacheLocked() {
	if time.Since(c.lastPurge) < cachePurgeInterval {
		return
	}

	c.lastPurge = time.Now()

	for name, user := range c.cache {
		// The local user stays for the life of the client.
		if name == c.loginName {
			continue
		}

		if c.userReferenced(user) {
			continue
		}

		delete(c.cache, name)
	}
}

func (c *Client) userReferenced(user *User) bool {
	for _, kind := range listKinds {
		if c.lists[kind].Contains(user) {
			return true
		}
	}

	for _, g := range c.Groups() {
		if g.Contains(user) {
			return true
		}
	}

	for _, conv := range c.conversations.snapshot() {
		if conv.members.contains(user) {
			return true
		}
	}

	return false
}

// requireSession rejects operations on a closed client or outside a live
// session. Callers hold at least the read half of the session lock.
func (c *Client) requireSession() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if !c.loggedIn {
		return ErrNotLoggedIn
	}

	return nil
}

// send runs one tracked exchange over the current link.
func (c *Client) send(ctx context.Context, cmd protocol.Writable, accept ...protocol.Command) (protocol.Command, error) {
	c.mu.Lock()
	link := c.link
	c.mu.Unlock()

	if link == nil {
		return nil, ErrNotLoggedIn
	}

	return link.Tracker.Send(ctx, cmd, c.timeout, accept...)
}

func (c *Client) emit(e Event) {
	c.events <- e
}

// Login connects, authenticates and synchronises the roster. It follows up
// to maxRedirects notification server transfers, exchanges the login ticket
// for a passport token, then announces the session before releasing any
// buffered roster events.
func (c *Client) Login(ctx context.Context) error {
	if err := c.lock.Lock(ctx); err != nil {
		return err
	}
	defer c.lock.Unlock()

	c.mu.Lock()
	closed, loggedIn := c.closed, c.loggedIn
	c.mu.Unlock()

	if closed {
		return ErrClosed
	}

	if loggedIn {
		return nil
	}

	link, ticket, err := c.connect(ctx)
	if err != nil {
		return err
	}

	token, err := c.tokens.ExchangeToken(ctx, c.loginName, c.password, ticket)
	if err != nil {
		link.Close()
		return fmt.Errorf("messenger: token exchange: %w", err)
	}

	prove := &protocol.Authenticate{AuthType: "TWN", Status: "S", Argument: token}

	if _, err := link.Tracker.Send(ctx, prove, c.timeout); err != nil {
		link.Close()
		return err
	}

	collected, stamp1, stamp2, err := c.synchronize(ctx, link)
	if err != nil {
		link.Close()
		return err
	}

	c.mu.Lock()
	c.link = link

	if c.localUser == nil {
		c.localUser = &LocalUser{User: *newUser(c, c.loginName)}
	}

	local := c.localUser

	if collected != nil {
		c.syncStamp1 = stamp1
		c.syncStamp2 = stamp2
	}

	c.mu.Unlock()

	c.cacheMu.Lock()
	c.cache[c.loginName] = &local.User
	c.cacheMu.Unlock()

	var result *syncResult

	if collected != nil {
		result = c.processSyncCommands(collected)
	}

	local.setStatus(StatusOnline)

	session := link.Events.Subscribe(nil)

	go c.dispatch(link, session)

	c.mu.Lock()
	c.loggedIn = true
	c.mu.Unlock()

	c.emit(LoggedIn{})
	c.emit(UserStatusChanged{
		User:           &local.User,
		Status:         StatusOnline,
		PreviousStatus: StatusOffline,
		DuringLogin:    true,
	})

	if result != nil {
		c.releaseSyncEvents(result)
	}

	c.log.Info("Logged in",
		zap.String("loginName", c.loginName),
		zap.String("server", link.RemoteAddr()))

	return nil
}

// connect dials the notification service, following transfers, and runs the
// handshake up to the point where the server hands out a login ticket.
func (c *Client) connect(ctx context.Context) (*transport.Link, string, error) {
	addr := c.addr
	redirects := 0

	for {
		link, err := transport.Open(ctx, transport.Options{
			Addr:     addr,
			Registry: protocol.NotificationRegistry(),
			Dialer:   c.dialer,
			Log:      c.log,
		})
		if err != nil {
			return nil, "", err
		}

		ticket, next, err := c.handshake(ctx, link)
		if err != nil {
			link.Close()
			return nil, "", err
		}

		if next != "" {
			link.Close()

			if redirects >= maxRedirects {
				return nil, "", ErrTooManyRedirects
			}

			redirects++
			addr = next

			c.log.Debug("Following login redirect", zap.String("server", addr))

			continue
		}

		return link, ticket, nil
	}
}

// handshake negotiates the dialect and opens authentication on one link.
// It returns either the login ticket or the address of the server the login
// was transferred to.
func (c *Client) handshake(ctx context.Context, link *transport.Link) (ticket, next string, err error) {
	ver := &protocol.Version{Dialects: []string{dialect}}

	reply, err := link.Tracker.Send(ctx, ver, c.timeout)
	if err != nil {
		return "", "", err
	}

	if len(reply.(*protocol.Version).Dialects) == 0 {
		return "", "", ErrDialectRejected
	}

	cvr := &protocol.ClientVersion{
		LocaleID:     cvrLocaleID,
		OsType:       cvrOsType,
		OsVersion:    cvrOsVersion,
		Architecture: cvrArchitecture,
		LibraryName:  cvrLibraryName,
		Version:      cvrVersion,
		ClientName:   cvrClientName,
		LoginName:    c.loginName,
	}

	if _, err := link.Tracker.Send(ctx, cvr, c.timeout); err != nil {
		return "", "", err
	}

	open := &protocol.Authenticate{AuthType: "TWN", Status: "I", Argument: c.loginName}

	reply, err = link.Tracker.Send(ctx, open, c.timeout,
		&protocol.Authenticate{}, &protocol.Transfer{})
	if err != nil {
		return "", "", err
	}

	switch r := reply.(type) {
	case *protocol.Authenticate:
		return r.Argument, "", nil
	case *protocol.Transfer:
		return "", r.Host, nil
	}

	return "", "", fmt.Errorf("messenger: unexpected login reply %T", reply)
}

// synchronize opens a roster sync with the cached stamps and, when the
// server reports changes, collects the dump that follows. The collection
// subscription is armed before the request goes out so no entry can race
// past it. The initial announce is part of the same exchange: trailing
// per-user properties are ordered before its echo, so everything delivered
// ahead of the echo belongs to the dump.
func (c *Client) synchronize(ctx context.Context, link *transport.Link) ([]protocol.Command, string, string, error) {
	collect := link.Events.Subscribe(func(cmd protocol.Command) bool {
		switch cmd.(type) {
		case *protocol.Message, *protocol.UserEntry, *protocol.GroupEntry,
			*protocol.UserProperty, *protocol.LocalProperty, *protocol.PrivacySetting:
			return true
		}

		return false
	})
	defer collect.Cancel()

	c.mu.Lock()
	stamp1, stamp2 := c.syncStamp1, c.syncStamp2
	c.mu.Unlock()

	syn := &protocol.Synchronize{TimeStamp1: orZero(stamp1), TimeStamp2: orZero(stamp2)}

	reply, err := link.Tracker.Send(ctx, syn, c.timeout)
	if err != nil {
		return nil, "", "", err
	}

	response := reply.(*protocol.Synchronize)
	changed := response.TimeStamp1 != stamp1 || response.TimeStamp2 != stamp2

	var collected []protocol.Command

	if changed {
		deadline := time.NewTimer(c.timeout)
		defer deadline.Stop()

		remaining := response.UserCount + response.GroupCount

		for remaining > 0 {
			select {
			case cmd := <-collect.C:
				if cmd == nil {
					return nil, "", "", protocol.ErrClosed
				}

				collected = append(collected, cmd)

				switch cmd.(type) {
				case *protocol.UserEntry, *protocol.GroupEntry:
					remaining--
				}

			case <-deadline.C:
				return nil, "", "", protocol.ErrTimeout

			case <-ctx.Done():
				return nil, "", "", ctx.Err()
			}
		}
	}

	capabilities := Capabilities(0)
	picture := ""

	if local := c.LocalUser(); local != nil {
		capabilities = local.Capabilities()
		picture = local.DisplayPicture()
	}

	announce := &protocol.ChangeStatus{
		Status:         statusCodes[StatusOnline],
		Capabilities:   uint32(capabilities),
		DisplayPicture: orZero(picture),
	}

	if _, err := link.Tracker.Send(ctx, announce, c.timeout); err != nil {
		return nil, "", "", err
	}

	if changed {
		for {
			select {
			case cmd := <-collect.C:
				if cmd != nil {
					collected = append(collected, cmd)
					continue
				}
			default:
			}

			break
		}

		return collected, response.TimeStamp1, response.TimeStamp2, nil
	}

	return nil, "", "", nil
}

func orZero(stamp string) string {
	if stamp == "" {
		return "0"
	}

	return stamp
}

// Logout ends the session deliberately.
func (c *Client) Logout(ctx context.Context) error {
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

	c.logout(LogoutInitiated, nil)

	return nil
}

// logout tears the session down. Callers hold the write lock. The single
// logged-out event precedes the per-user offline events, and a second
// teardown for the same session is a no-op.
func (c *Client) logout(reason LogoutReason, cause error) {
	c.mu.Lock()

	if !c.loggedIn {
		c.mu.Unlock()
		return
	}

	link := c.link
	c.link = nil
	c.loggedIn = false
	c.mu.Unlock()

	if link != nil {
		link.Close()
	}

	type statusChange struct {
		user     *User
		previous Status
	}

	var changes []statusChange

	for _, user := range c.List(ForwardList).Users() {
		if user.Status() == StatusOffline {
			continue
		}

		changes = append(changes, statusChange{user: user, previous: user.Status()})
		user.setStatus(StatusOffline)
	}

	c.emit(LoggedOut{Reason: reason, Err: cause})

	for _, change := range changes {
		c.emit(UserStatusChanged{
			User:           change.user,
			Status:         StatusOffline,
			PreviousStatus: change.previous,
		})
	}

	c.log.Info("Logged out", zap.Stringer("reason", reason))
}

// Close ends the session and the event stream for good. The client cannot
// be used afterwards.
func (c *Client) Close(ctx context.Context) error {
	if err := c.lock.Lock(ctx); err != nil {
		return err
	}
	defer c.lock.Unlock()

	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return nil
	}

	c.mu.Unlock()

	var errs error

	for _, conv := range c.conversations.snapshot() {
		errs = multierr.Append(errs, conv.close(ctx))
	}

	c.logout(LogoutInitiated, nil)

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	close(c.events)

	return errs
}

// Ping checks the link is alive. Replies are not correlated to a
// transaction; any pong inside the window counts.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.lock.RLock(ctx); err != nil {
		return err
	}
	defer c.lock.RUnlock()

	if err := c.requireSession(); err != nil {
		return err
	}

	c.mu.Lock()
	link := c.link
	c.mu.Unlock()

	pong := link.Events.Subscribe(func(cmd protocol.Command) bool {
		_, ok := cmd.(*protocol.Ping)
		return ok
	})
	defer pong.Cancel()

	if err := link.Tracker.Post(&protocol.Ping{}); err != nil {
		return err
	}

	deadline := time.NewTimer(2 * time.Minute)
	defer deadline.Stop()

	select {
	case cmd := <-pong.C:
		if cmd == nil {
			return protocol.ErrClosed
		}

		return nil

	case <-pong.Err():
		return protocol.ErrClosed

	case <-deadline.C:
		return protocol.ErrTimeout

	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetPrivacy changes one of the two privacy knobs.
func (c *Client) SetPrivacy(ctx context.Context, setting PrivacySetting, value string) error {
	switch setting {
	case PrivacyAcceptInvitations:
		if value != AcceptInvitationsFromAllUsers && value != AcceptInvitationsFromAllowedUsersOnly {
			return fmt.Errorf("messenger: invalid value %q for the invitation setting", value)
		}

	case PrivacyAddUsers:
		if value != AddUsersAutomatically && value != AddUsersWithPrompt {
			return fmt.Errorf("messenger: invalid value %q for the add-users setting", value)
		}

	default:
		return fmt.Errorf("messenger: unknown privacy setting %q", string(setting))
	}

	if err := c.lock.RLock(ctx); err != nil {
		return err
	}
	defer c.lock.RUnlock()

	if err := c.requireSession(); err != nil {
		return err
	}

	if c.PrivacySetting(setting) == value {
		return fmt.Errorf("messenger: value %q is already set", value)
	}

	cmd := &protocol.PrivacySetting{Key: string(setting), Value: value}

	if _, err := c.send(ctx, cmd); err != nil {
		return err
	}

	c.setPrivacy(setting, value)
	c.emit(PrivacyChanged{Setting: setting, Value: value})

	return nil
}

func (c *Client) setPrivacy(setting PrivacySetting, value string) {
	c.privacyMu.Lock()
	defer c.privacyMu.Unlock()

	if value == "" {
		delete(c.privacy, setting)
		return
	}

	c.privacy[setting] = value
}

// SetInstantMessaging toggles whether the server routes instant messages to
// this session.
func (c *Client) SetInstantMessaging(ctx context.Context, enabled bool) error {
	if err := c.lock.RLock(ctx); err != nil {
		return err
	}
	defer c.lock.RUnlock()

	if err := c.requireSession(); err != nil {
		return err
	}

	_, err := c.send(ctx, &protocol.EnableIM{Enabled: enabled})

	return err
}

// CreateGroup makes a new roster group.
func (c *Client) CreateGroup(ctx context.Context, name string) (*Group, error) {
	if err := checkGroupName(name); err != nil {
		return nil, err
	}

	if err := c.lock.RLock(ctx); err != nil {
		return nil, err
	}
	defer c.lock.RUnlock()

	if err := c.requireSession(); err != nil {
		return nil, err
	}

	groups := c.Groups()

	if len(groups) >= maxGroups {
		return nil, fmt.Errorf("messenger: the account already has %d groups", maxGroups)
	}

	for _, g := range groups {
		if g.Name() == name {
			return nil, fmt.Errorf("messenger: a group named %q already exists", name)
		}
	}

	reply, err := c.send(ctx, &protocol.AddGroup{Name: name})
	if err != nil {
		return nil, err
	}

	group := newGroup(c, reply.(*protocol.AddGroup).GUID, name)
	c.addGroup(group)

	c.emit(GroupAdded{Group: group})

	return group, nil
}

// RemoveGroup deletes an empty roster group.
func (c *Client) RemoveGroup(ctx context.Context, group *Group) error {
	if err := c.lock.RLock(ctx); err != nil {
		return err
	}
	defer c.lock.RUnlock()

	if err := c.requireSession(); err != nil {
		return err
	}

	if !c.hasGroup(group) {
		return errGroupGone
	}

	if group.members.len() > 0 {
		return errGroupNotEmpty
	}

	if _, err := c.send(ctx, &protocol.RemoveGroup{GUID: group.GUID()}); err != nil {
		return err
	}

	c.removeGroup(group)
	c.emit(GroupRemoved{Group: group})

	return nil
}

func (c *Client) addGroup(group *Group) {
	c.groupsMu.Lock()
	defer c.groupsMu.Unlock()

	c.groups = append(c.groups, group)
}

func (c *Client) removeGroup(group *Group) {
	c.groupsMu.Lock()
	defer c.groupsMu.Unlock()

	for i, g := range c.groups {
		if g == group {
			c.groups = append(c.groups[:i], c.groups[i+1:]...)
			return
		}
	}
}

func (c *Client) hasGroup(group *Group) bool {
	c.groupsMu.Lock()
	defer c.groupsMu.Unlock()

	for _, g := range c.groups {
		if g == group {
			return true
		}
	}

	return false
}

func (c *Client) groupByGUID(guid string) *Group {
	c.groupsMu.Lock()
	defer c.groupsMu.Unlock()

	for _, g := range c.groups {
		if g.GUID() == guid {
			return g
		}
	}

	return nil
}

// switchboard asks the notification server for a conversation server.
func (c *Client) switchboard(ctx context.Context) (*protocol.Transfer, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}

	reply, err := c.send(ctx, &protocol.Transfer{ServerType: "SB"})
	if err != nil {
		return nil, err
	}

	return reply.(*protocol.Transfer), nil
}

func (l *conversationList) add(conv *Conversation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.conns = append(l.conns, conv)
}

func (l *conversationList) remove(conv *Conversation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, existing := range l.conns {
		if existing == conv {
			l.conns = append(l.conns[:i], l.conns[i+1:]...)
			return
		}
	}
}

func (l *conversationList) snapshot() []*Conversation {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*Conversation, len(l.conns))
	copy(out, l.conns)

	return out
}
