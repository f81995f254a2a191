package messenger

// Event is a notification delivered on a Client's event stream. During
// login the roster synchroniser buffers its findings and releases them only
// after the session is announced; those carry DuringLogin.
type Event interface {
	event()
}

// LoggedIn reports a completed login. It is delivered exactly once per
// session, before any of that session's sync events.
type LoggedIn struct{}

// LogoutReason says why a session ended.
type LogoutReason int

const (
	LogoutInitiated LogoutReason = iota
	LogoutLoggedInElsewhere
	LogoutServerShuttingDown
	LogoutConnectionError
)

func (r LogoutReason) String() string {
	switch r {
	case LogoutInitiated:
		return "initiated by user"
	case LogoutLoggedInElsewhere:
		return "logged in elsewhere"
	case LogoutServerShuttingDown:
		return "server shutting down"
	case LogoutConnectionError:
		return "connection error"
	}

	return "unknown"
}

// LoggedOut reports the end of a session. Err carries the transport failure
// when Reason is LogoutConnectionError.
type LoggedOut struct {
	Reason LogoutReason
	Err    error
}

// UserStatusChanged reports a presence change.
type UserStatusChanged struct {
	User           *User
	Status         Status
	PreviousStatus Status
	DuringLogin    bool
}

// UserNicknameChanged reports a display-name change.
type UserNicknameChanged struct {
	User             *User
	Nickname         string
	PreviousNickname string
	DuringLogin      bool
}

// UserCapabilitiesChanged reports a feature-bitmask change.
type UserCapabilitiesChanged struct {
	User         *User
	Capabilities Capabilities
	DuringLogin  bool
}

// UserDisplayPictureChanged reports a display-picture change.
type UserDisplayPictureChanged struct {
	User           *User
	DisplayPicture string
	DuringLogin    bool
}

// UserPropertyChanged reports a stored-attribute change.
type UserPropertyChanged struct {
	User        *User
	Property    Property
	Value       string
	DuringLogin bool
}

// UserAddedToList and UserRemovedFromList report membership changes on the
// fixed lists.
type UserAddedToList struct {
	User        *User
	List        *UserList
	DuringLogin bool
}

type UserRemovedFromList struct {
	User        *User
	List        *UserList
	DuringLogin bool
}

// GroupAdded and GroupRemoved report roster group changes.
type GroupAdded struct {
	Group       *Group
	DuringLogin bool
}

type GroupRemoved struct {
	Group       *Group
	DuringLogin bool
}

// GroupNameChanged reports a group rename.
type GroupNameChanged struct {
	Group        *Group
	Name         string
	PreviousName string
	DuringLogin  bool
}

// UserAddedToGroup and UserRemovedFromGroup report group membership changes.
type UserAddedToGroup struct {
	User        *User
	Group       *Group
	DuringLogin bool
}

type UserRemovedFromGroup struct {
	User        *User
	Group       *Group
	DuringLogin bool
}

// PrivacyChanged reports a privacy setting taking a new value.
type PrivacyChanged struct {
	Setting     PrivacySetting
	Value       string
	DuringLogin bool
}

// UserBroadcast carries another user's extended presence payload.
type UserBroadcast struct {
	User    *User
	Message string
}

// ServerNotification carries a service notice.
type ServerNotification struct {
	Message string
}

// ServiceMessage carries a message delivered on the notification stream,
// such as initial-profile and offline-message envelopes.
type ServiceMessage struct {
	SenderLoginName string
	SenderNickname  string
	Message         *Message
	DuringLogin     bool
}

// InvitationReceived reports another user ringing the local user into a
// conversation.
type InvitationReceived struct {
	Invitation *Invitation
}

// ConversationStarted reports a conversation attached to the client, either
// created locally or by accepting an invitation (Invitation is nil for the
// former).
type ConversationStarted struct {
	Conversation *Conversation
	Invitation   *Invitation
}

func (LoggedIn) event()                  {}
func (LoggedOut) event()                 {}
func (UserStatusChanged) event()         {}
func (UserNicknameChanged) event()       {}
func (UserCapabilitiesChanged) event()   {}
func (UserDisplayPictureChanged) event() {}
func (UserPropertyChanged) event()       {}
func (UserAddedToList) event()           {}
func (UserRemovedFromList) event()       {}
func (GroupAdded) event()                {}
func (GroupRemoved) event()              {}
func (GroupNameChanged) event()          {}
func (UserAddedToGroup) event()          {}
func (UserRemovedFromGroup) event()      {}
func (PrivacyChanged) event()            {}
func (UserBroadcast) event()             {}
func (ServerNotification) event()        {}
func (ServiceMessage) event()            {}
func (InvitationReceived) event()        {}
func (ConversationStarted) event()       {}

// ConversationEvent is a notification delivered on a Conversation's event
// stream.
type ConversationEvent interface {
	conversationEvent()
}

// MessageReceived carries an instant message from a participant.
type MessageReceived struct {
	Sender  *User
	Message *Message
}

// ParticipantJoined reports a user joining the conversation.
type ParticipantJoined struct {
	User *User
}

// ParticipantLeft reports a user leaving the conversation, including
// everyone remaining when the conversation disconnects.
type ParticipantLeft struct {
	User *User
}

// ConversationClosed reports the conversation is finished for good.
type ConversationClosed struct{}

func (MessageReceived) conversationEvent()    {}
func (ParticipantJoined) conversationEvent()  {}
func (ParticipantLeft) conversationEvent()    {}
func (ConversationClosed) conversationEvent() {}
