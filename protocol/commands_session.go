package protocol

import (
	"strconv"
	"strings"
)

// Version negotiates the protocol dialect.
//
//	-> VER 1 MSNP12
//	<- VER 1 MSNP12
type Version struct {
	txn

	Dialects []string
}

func (c *Version) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 3 {
		return badHeader(header)
	}

	if err := c.parseTrID(fields[1]); err != nil {
		return err
	}

	c.Dialects = fields[2:]

	return nil
}

func (c *Version) WriteTo(w *LineWriter) error {
	return w.WriteLine("VER %d %s", c.id, strings.Join(c.Dialects, " "))
}

// ClientVersion reports client build details. The reply carries upgrade
// URLs the client has no use for, so parsing keeps only the transaction id.
//
//	-> CVR 2 0x0409 winnt 5.0 i386 MSMSGS 5.0.0482 WindowsMessenger bob@example.com
type ClientVersion struct {
	txn

	LocaleID     string
	OsType       string
	OsVersion    string
	Architecture string
	LibraryName  string
	Version      string
	ClientName   string
	LoginName    string
}

func (c *ClientVersion) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 2 {
		return badHeader(header)
	}

	return c.parseTrID(fields[1])
}

func (c *ClientVersion) WriteTo(w *LineWriter) error {
	return w.WriteLine("CVR %d %s %s %s %s %s %s %s %s",
		c.id, c.LocaleID, c.OsType, c.OsVersion, c.Architecture,
		c.LibraryName, c.Version, c.ClientName, c.LoginName)
}

// Authenticate carries one round of the login handshake.
//
//	-> USR 3 TWN I bob@example.com
//	<- USR 3 TWN S ct=1364480777,rver=...,tpf=b0735e...
//	-> USR 4 TWN S t=EwDwAfsB...
//	<- USR 4 OK bob@example.com 1 0
type Authenticate struct {
	txn

	AuthType string
	Status   string
	Argument string
}

func (c *Authenticate) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 5 {
		return badHeader(header)
	}

	if err := c.parseTrID(fields[1]); err != nil {
		return err
	}

	c.AuthType = fields[2]
	c.Status = fields[3]
	c.Argument = fields[4]

	return nil
}

func (c *Authenticate) WriteTo(w *LineWriter) error {
	return w.WriteLine("USR %d %s %s %s", c.id, c.AuthType, c.Status, c.Argument)
}

// Transfer redirects the client to another server.
//
//	<- XFR 3 NS 64.4.61.38:1863 0 64.4.45.62:1863
//	-> XFR 15 SB
//	<- XFR 15 SB 207.46.108.37:1863 CKI 17262740.1050826919.32308
type Transfer struct {
	txn

	ServerType string
	Host       string
	AuthType   string

	// SessionID holds a conversation auth string on SB transfers and a
	// fallback host on NS redirects.
	SessionID string
}

func (c *Transfer) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 6 {
		return badHeader(header)
	}

	if err := c.parseTrID(fields[1]); err != nil {
		return err
	}

	c.ServerType = fields[2]
	c.Host = fields[3]
	c.AuthType = fields[4]
	c.SessionID = fields[5]

	return nil
}

func (c *Transfer) WriteTo(w *LineWriter) error {
	return w.WriteLine("XFR %d %s", c.id, c.ServerType)
}

// Synchronize opens a roster sync. The reply announces how many user and
// group entries will follow.
//
//	-> SYN 5 0 0
//	<- SYN 5 2013-01-13T05:15:19.637-08:00 2012-09-23T06:51:31.243-07:00 14 3
type Synchronize struct {
	txn

	TimeStamp1 string
	TimeStamp2 string
	UserCount  int
	GroupCount int
}

func (c *Synchronize) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 4 {
		return badHeader(header)
	}

	if err := c.parseTrID(fields[1]); err != nil {
		return err
	}

	c.TimeStamp1 = fields[2]
	c.TimeStamp2 = fields[3]

	if len(fields) > 5 {
		var err error

		if c.UserCount, err = strconv.Atoi(fields[4]); err != nil {
			return badHeader(header)
		}

		if c.GroupCount, err = strconv.Atoi(fields[5]); err != nil {
			return badHeader(header)
		}
	}

	return nil
}

func (c *Synchronize) WriteTo(w *LineWriter) error {
	return w.WriteLine("SYN %d %s %s", c.id, c.TimeStamp1, c.TimeStamp2)
}

// LocalProperty carries a property of the local user. During sync the server
// pushes these without a transaction id.
//
//	<- PRP MFN Test
//	-> PRP 6 MFN Hello%20Joe
type LocalProperty struct {
	txn

	Key   string
	Value string
}

func (c *LocalProperty) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 3 {
		return badHeader(header)
	}

	offset := 0

	if len(fields) > 3 {
		offset = 1

		if err := c.parseTrID(fields[1]); err != nil {
			return err
		}
	}

	c.Key = fields[1+offset]
	c.Value = unescapeText(fields[2+offset])

	return nil
}

func (c *LocalProperty) WriteTo(w *LineWriter) error {
	return w.WriteLine("PRP %d %s %s", c.id, c.Key, escapeText(c.Value))
}

// UserProperty carries a property of the most recently announced roster
// user.
//
//	<- BPR PHH 555%20555-0123
type UserProperty struct {
	txn

	Key   string
	Value string
}

func (c *UserProperty) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 3 {
		return badHeader(header)
	}

	c.Key = fields[1]
	c.Value = unescapeText(fields[2])

	return nil
}

// ChangeStatus announces the local user's status, capabilities and display
// picture. The server echoes it back as confirmation.
//
//	-> CHG 6 NLN 0
//	<- CHG 6 NLN 0
type ChangeStatus struct {
	txn

	Status         string
	Capabilities   uint32
	DisplayPicture string
}

func (c *ChangeStatus) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 4 {
		return badHeader(header)
	}

	if err := c.parseTrID(fields[1]); err != nil {
		return err
	}

	c.Status = fields[2]

	caps, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return badHeader(header)
	}

	c.Capabilities = uint32(caps)

	if len(fields) > 4 {
		c.DisplayPicture = fields[4]
	}

	return nil
}

func (c *ChangeStatus) WriteTo(w *LineWriter) error {
	return w.WriteLine("CHG %d %s %d %s", c.id, c.Status, c.Capabilities, c.DisplayPicture)
}

// ChangeUserProperty sets a property on a roster user.
//
//	-> SBP 8 af54c348-455a-479a-9964-cbb48232c3c9 MFN newnickname
type ChangeUserProperty struct {
	txn

	GUID  string
	Key   string
	Value string
}

func (c *ChangeUserProperty) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 5 {
		return badHeader(header)
	}

	if err := c.parseTrID(fields[1]); err != nil {
		return err
	}

	c.GUID = fields[2]
	c.Key = fields[3]
	c.Value = unescapeText(fields[4])

	return nil
}

func (c *ChangeUserProperty) WriteTo(w *LineWriter) error {
	return w.WriteLine("SBP %d %s %s %s", c.id, c.GUID, c.Key, escapeText(c.Value))
}

// PrivacySetting carries the BLP (default list treatment) and GTC (reverse
// list prompting) settings, which share a shape. During sync they arrive
// without a transaction id.
//
//	<- BLP BL
//	-> GTC 9 A
type PrivacySetting struct {
	txn

	Key   string
	Value string
}

func (c *PrivacySetting) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 2 {
		return badHeader(header)
	}

	c.Key = fields[0]

	if len(fields) == 2 {
		c.Value = fields[1]
		return nil
	}

	if err := c.parseTrID(fields[1]); err != nil {
		return err
	}

	c.Value = fields[2]

	return nil
}

func (c *PrivacySetting) WriteTo(w *LineWriter) error {
	return w.WriteLine("%s %d %s", c.Key, c.id, c.Value)
}

// EnableIM toggles whether the server will route instant messages to this
// session.
//
//	-> IMS 2 OFF
//	<- IMS 3 0 OFF
type EnableIM struct {
	txn

	Enabled bool
}

func (c *EnableIM) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 4 {
		return badHeader(header)
	}

	if err := c.parseTrID(fields[1]); err != nil {
		return err
	}

	c.Enabled = fields[3] == "ON"

	return nil
}

func (c *EnableIM) WriteTo(w *LineWriter) error {
	state := "OFF"

	if c.Enabled {
		state = "ON"
	}

	return w.WriteLine("IMS %d %s", c.id, state)
}

// SendBroadcast publishes the local user's extended presence payload.
//
//	-> UUX 7 58
//	-> (58 bytes)
//	<- UUX 7 0
type SendBroadcast struct {
	txn

	Message string
}

func (c *SendBroadcast) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 3 {
		return badHeader(header)
	}

	return c.parseTrID(fields[1])
}

func (c *SendBroadcast) WriteTo(w *LineWriter) error {
	payload := []byte(c.Message)

	if err := w.WriteLine("UUX %d %d", c.id, len(payload)); err != nil {
		return err
	}

	return w.WriteRaw(payload)
}

// Broadcast carries another user's extended presence payload.
//
//	<- UBX alice@example.com 471
//	<- (471 bytes)
type Broadcast struct {
	txn

	LoginName string
	Message   string
}

func (c *Broadcast) Parse(header string, r *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 3 {
		return badHeader(header)
	}

	c.LoginName = fields[1]

	length, err := strconv.Atoi(fields[2])
	if err != nil {
		return badHeader(header)
	}

	payload, err := r.ReadFull(length)
	if err != nil {
		return err
	}

	c.Message = string(payload)

	return nil
}

// Notification is a server-initiated broadcast, typically service notices.
//
//	<- NOT 300
//	<- (300 bytes)
type Notification struct {
	txn

	Message string
}

func (c *Notification) Parse(header string, r *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 2 {
		return badHeader(header)
	}

	length, err := strconv.Atoi(fields[1])
	if err != nil {
		return badHeader(header)
	}

	payload, err := r.ReadFull(length)
	if err != nil {
		return err
	}

	c.Message = string(payload)

	return nil
}

// Sbs arrives after login. Its meaning is undocumented; it is parsed so it
// can be skipped cleanly.
//
//	<- SBS 0 null
type Sbs struct {
	txn

	Arg1 string
	Arg2 string
}

func (c *Sbs) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 3 {
		return badHeader(header)
	}

	c.Arg1 = fields[1]
	c.Arg2 = fields[2]

	return nil
}

// Out announces that the server is dropping the session.
//
//	<- OUT OTH
type Out struct {
	txn

	OutCode string
}

func (c *Out) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) > 1 {
		c.OutCode = fields[1]
	}

	return nil
}

// Ping is the client keep-alive; the reply names the seconds until the next
// one is expected.
//
//	-> PNG
//	<- QNG 30
type Ping struct {
	txn

	UntilNext int
}

func (c *Ping) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 2 {
		return badHeader(header)
	}

	var err error

	if c.UntilNext, err = strconv.Atoi(fields[1]); err != nil {
		return badHeader(header)
	}

	return nil
}

func (c *Ping) WriteTo(w *LineWriter) error {
	return w.WriteLine("PNG")
}

// Challenge is the server's liveness probe; failing to answer it drops the
// session.
//
//	<- CHL 0 15570131571988941333
type Challenge struct {
	txn

	ChallengeString string
}

func (c *Challenge) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 3 {
		return badHeader(header)
	}

	c.ChallengeString = fields[2]

	return nil
}

// AcceptChallenge answers a Challenge.
//
//	-> QRY 1049 msmsgs@msnmsgr.com 32
//	-> (32 bytes)
//	<- QRY 1049
type AcceptChallenge struct {
	txn

	ClientID string
	Data     string
}

func (c *AcceptChallenge) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 2 {
		return badHeader(header)
	}

	return c.parseTrID(fields[1])
}

func (c *AcceptChallenge) WriteTo(w *LineWriter) error {
	payload := []byte(c.Data)

	if err := w.WriteLine("QRY %d %s %d", c.id, c.ClientID, len(payload)); err != nil {
		return err
	}

	return w.WriteRaw(payload)
}

// Presence is the detail shared by the two online announcements.
type Presence struct {
	LoginName      string
	Status         string
	Nickname       string
	Capabilities   uint32
	DisplayPicture string
}

func (p *Presence) parse(fields []string) error {
	p.Status = fields[0]
	p.LoginName = fields[1]
	p.Nickname = unescapeText(fields[2])

	caps, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return badHeader(strings.Join(fields, " "))
	}

	p.Capabilities = uint32(caps)

	if len(fields) > 4 {
		p.DisplayPicture = fields[4]
	}

	return nil
}

// UserOnline announces that a user came online or changed status.
//
//	<- NLN AWY alice@example.com Alice 1879474220
type UserOnline struct {
	txn
	Presence
}

func (c *UserOnline) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 5 {
		return badHeader(header)
	}

	return c.Presence.parse(fields[1:])
}

// InitialUserOnline announces a user already online when the local user's
// own status first left offline.
//
//	<- ILN 6 NLN zool@example.com jo 1345323044
type InitialUserOnline struct {
	txn
	Presence
}

func (c *InitialUserOnline) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 6 {
		return badHeader(header)
	}

	return c.Presence.parse(fields[2:])
}

// UserOffline announces that a user went offline.
//
//	<- FLN zool@example.com
type UserOffline struct {
	txn

	LoginName string
}

func (c *UserOffline) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 2 {
		return badHeader(header)
	}

	c.LoginName = fields[1]

	return nil
}

// ServerError is a numeric error reply addressed to a transaction.
//
//	<- 224 7
type ServerError struct {
	txn

	RawCode int
}

func (c *ServerError) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 2 {
		return badHeader(header)
	}

	var err error

	if c.RawCode, err = strconv.Atoi(fields[0]); err != nil {
		return badHeader(header)
	}

	return c.parseTrID(fields[1])
}

// Response converts the wire reply into the error a response wait resolves
// with.
func (c *ServerError) Response() *ServerErrorResponse {
	return &ServerErrorResponse{RawCode: c.RawCode, Code: knownCode(c.RawCode)}
}

// NotificationRegistry covers every command the notification server sends.
func NotificationRegistry() Registry {
	return Registry{
		"VER": func() Parsable { return &Version{} },
		"CVR": func() Parsable { return &ClientVersion{} },
		"USR": func() Parsable { return &Authenticate{} },
		"XFR": func() Parsable { return &Transfer{} },
		"SYN": func() Parsable { return &Synchronize{} },
		"SBS": func() Parsable { return &Sbs{} },
		"MSG": func() Parsable { return &Message{} },
		"LST": func() Parsable { return &UserEntry{} },
		"LSG": func() Parsable { return &GroupEntry{} },
		"BPR": func() Parsable { return &UserProperty{} },
		"BLP": func() Parsable { return &PrivacySetting{} },
		"GTC": func() Parsable { return &PrivacySetting{} },
		"CHG": func() Parsable { return &ChangeStatus{} },
		"UBX": func() Parsable { return &Broadcast{} },
		"PRP": func() Parsable { return &LocalProperty{} },
		"NLN": func() Parsable { return &UserOnline{} },
		"ILN": func() Parsable { return &InitialUserOnline{} },
		"FLN": func() Parsable { return &UserOffline{} },
		"UUX": func() Parsable { return &SendBroadcast{} },
		"NOT": func() Parsable { return &Notification{} },
		"QNG": func() Parsable { return &Ping{} },
		"CHL": func() Parsable { return &Challenge{} },
		"ADC": func() Parsable { return &AddContact{} },
		"REM": func() Parsable { return &RemoveContact{} },
		"ADG": func() Parsable { return &AddGroup{} },
		"RMG": func() Parsable { return &RemoveGroup{} },
		"REG": func() Parsable { return &RenameGroup{} },
		"QRY": func() Parsable { return &AcceptChallenge{} },
		"RNG": func() Parsable { return &Ring{} },
		"SBP": func() Parsable { return &ChangeUserProperty{} },
		"IMS": func() Parsable { return &EnableIM{} },
	}
}
