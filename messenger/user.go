package messenger

import (
	"sync"
)

// Status is a user's presence state.
type Status int

const (
	StatusOffline Status = iota
	StatusOnline
	StatusAway
	StatusBusy
	StatusBeRightBack
	StatusLunch
	StatusPhone
	StatusInvisible
	StatusIdle
)

var statusCodes = map[Status]string{
	StatusOnline:      "NLN",
	StatusAway:        "AWY",
	StatusBusy:        "BSY",
	StatusBeRightBack: "BRB",
	StatusInvisible:   "HDN",
	StatusLunch:       "LUN",
	StatusPhone:       "PHN",
	StatusIdle:        "IDL",
}

var statusNames = map[Status]string{
	StatusOffline:     "offline",
	StatusOnline:      "online",
	StatusAway:        "away",
	StatusBusy:        "busy",
	StatusBeRightBack: "be right back",
	StatusInvisible:   "invisible",
	StatusLunch:       "out to lunch",
	StatusPhone:       "on the phone",
	StatusIdle:        "idle",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}

	return "unknown"
}

// statusCode maps a status onto its wire token. Offline has no token; it is
// announced by a dedicated command, never requested.
func statusCode(s Status) (string, bool) {
	code, ok := statusCodes[s]

	return code, ok
}

func parseStatus(code string) (Status, bool) {
	// FLN appears in presence pushes but is never requested.
	if code == "FLN" {
		return StatusOffline, true
	}

	for status, c := range statusCodes {
		if c == code {
			return status, true
		}
	}

	return StatusOffline, false
}

// Property identifies one of the per-user attributes the service stores.
type Property string

const (
	PropertyHomePhone        Property = "PHH"
	PropertyWorkPhone        Property = "PHW"
	PropertyMobilePhone      Property = "PHM"
	PropertyAuthorizedMobile Property = "MOB"
	PropertyMobileDevice     Property = "MBE"
	PropertyDirectDevice     Property = "WWE"
	PropertyHasBlog          Property = "HSB"
)

// Fixed value domains for the toggle-like properties.
const (
	MobileDeviceEnabled  = "Y"
	MobileDeviceDisabled = "N"

	AuthorizedMobileEnabled  = "Y"
	AuthorizedMobileDisabled = "N"

	DirectDeviceEnabled  = "2"
	DirectDeviceDisabled = "0"
)

// Capabilities is the client-feature bitmask users announce with their
// presence.
type Capabilities uint32

const (
	CapMobileOnline       Capabilities = 0x00000001
	CapMSN8User           Capabilities = 0x00000002
	CapRendersGif         Capabilities = 0x00000004
	CapRendersIsf         Capabilities = 0x00000008
	CapWebcamDetected     Capabilities = 0x00000010
	CapSupportsChunking   Capabilities = 0x00000020
	CapMobileEnabled      Capabilities = 0x00000040
	CapDirectDevice       Capabilities = 0x00000080
	CapSupportsActivities Capabilities = 0x00000100
	CapWebIMClient        Capabilities = 0x00000200
	CapMobileDevice       Capabilities = 0x00000400
	CapConnectedViaTGW    Capabilities = 0x00000800
	CapHasSpace           Capabilities = 0x00001000
	CapMCEUser            Capabilities = 0x00002000
	CapSupportsDirectIM   Capabilities = 0x00004000
	CapSupportsWinks      Capabilities = 0x00008000
	CapSupportsSearch     Capabilities = 0x00010000
	CapIsBot              Capabilities = 0x00020000
	CapSupportsVoiceIM    Capabilities = 0x00040000
	CapSupportsSChannel   Capabilities = 0x00080000
	CapSupportsSipInvite  Capabilities = 0x00100000
	CapSupportsSDrive     Capabilities = 0x00400000
	CapHasOnecare         Capabilities = 0x01000000
	CapP2PSupportsTurn    Capabilities = 0x02000000
	CapP2PBootstrapViaUUN Capabilities = 0x04000000
	CapUsingAlias         Capabilities = 0x08000000
)

// User is one identity known to the session: a roster member, a conversation
// participant, or just someone who messaged us. At most one User exists per
// login name per session.
type User struct {
	client    *Client
	loginName string

	mu             sync.Mutex
	guid           string
	nickname       string
	status         Status
	capabilities   Capabilities
	displayPicture string
	properties     map[Property]string
}

func newUser(client *Client, loginName string) *User {
	return &User{
		client:     client,
		loginName:  loginName,
		nickname:   loginName,
		properties: map[Property]string{},
	}
}

// LoginName returns the account name the user is addressed by.
func (u *User) LoginName() string {
	return u.loginName
}

// Nickname returns the user's display name.
func (u *User) Nickname() string {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.nickname
}

// Status returns the user's last announced presence.
func (u *User) Status() Status {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.status
}

// Capabilities returns the user's last announced feature bitmask.
func (u *User) Capabilities() Capabilities {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.capabilities
}

// DisplayPicture returns the user's display picture reference, or "" when
// none is set. The reference is an opaque token the file-transfer layer
// resolves; this layer only carries it.
func (u *User) DisplayPicture() string {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.displayPicture
}

// Property returns the user's value for a stored attribute, "" when unset.
func (u *User) Property(p Property) string {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.properties[p]
}

// GUID returns the roster identifier assigned while the user is on the
// forward list.
func (u *User) GUID() string {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.guid
}

func (u *User) String() string {
	return u.loginName
}

func (u *User) setGUID(guid string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.guid = guid
}

func (u *User) setNickname(nickname string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.nickname = nickname
}

func (u *User) setStatus(status Status) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.status = status
}

func (u *User) setCapabilities(capabilities Capabilities) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.capabilities = capabilities
}

func (u *User) setDisplayPicture(picture string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.displayPicture = picture
}

func (u *User) setProperty(p Property, value string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if value == "" {
		delete(u.properties, p)
		return
	}

	u.properties[p] = value
}

// updateNicknameFromConversation refreshes the display name from a
// conversation announcement. Names on the forward list are authoritative on
// the roster side and are left alone.
func (u *User) updateNicknameFromConversation(nickname string) {
	if u.client.List(ForwardList).Contains(u) {
		return
	}

	u.setNickname(nickname)
}
