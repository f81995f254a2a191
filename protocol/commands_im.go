package protocol

import (
	"strconv"
	"strings"
)

// SendMessage carries an outgoing instant message. The delivery method
// chooses which of ACK and NAK the server may answer with.
//
//	-> MSG 3 A 170
//	-> (170 bytes)
type SendMessage struct {
	txn

	DeliveryMethod string
	Payload        []byte
}

func (c *SendMessage) WriteTo(w *LineWriter) error {
	if err := w.WriteLine("MSG %d %s %d", c.id, c.DeliveryMethod, len(c.Payload)); err != nil {
		return err
	}

	return w.WriteRaw(c.Payload)
}

// Message carries an incoming message, instant or service.
//
//	<- MSG zues@example.com nickname 135
//	<- (135 bytes)
type Message struct {
	txn

	Sender         string
	SenderNickname string
	Payload        []byte
}

func (c *Message) Parse(header string, r *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 4 {
		return badHeader(header)
	}

	c.Sender = fields[1]
	c.SenderNickname = fields[2]

	length, err := strconv.Atoi(fields[3])
	if err != nil {
		return badHeader(header)
	}

	if c.Payload, err = r.ReadFull(length); err != nil {
		return err
	}

	return nil
}

// Acknowledgement confirms delivery of a message sent with a delivery
// method that requested one.
//
//	<- ACK 1
type Acknowledgement struct {
	txn
}

func (c *Acknowledgement) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 2 {
		return badHeader(header)
	}

	return c.parseTrID(fields[1])
}

// NegativeAcknowledgement reports that a message could not be delivered.
//
//	<- NAK 1
type NegativeAcknowledgement struct {
	txn
}

func (c *NegativeAcknowledgement) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 2 {
		return badHeader(header)
	}

	return c.parseTrID(fields[1])
}

// Ring invites the local user into a conversation on another server.
//
//	<- RNG 11752013 207.46.108.38:1863 CKI 849102291.520491113 example@example.com Example%20Name
type Ring struct {
	txn

	SessionID      string
	Endpoint       string
	AuthType       string
	AuthString     string
	Caller         string
	CallerNickname string
}

func (c *Ring) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 7 {
		return badHeader(header)
	}

	c.SessionID = fields[1]
	c.Endpoint = fields[2]
	c.AuthType = fields[3]
	c.AuthString = fields[4]
	c.Caller = fields[5]
	c.CallerNickname = unescapeText(fields[6])

	return nil
}

// Answer joins a conversation the local user was invited into.
//
//	-> ANS 1 name_123@example.com 849102291.520491113 11752013
//	<- ANS 1 OK
type Answer struct {
	txn

	LoginName string
	AuthToken string
	SessionID string
	Status    string
}

func (c *Answer) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 3 {
		return badHeader(header)
	}

	if err := c.parseTrID(fields[1]); err != nil {
		return err
	}

	c.Status = fields[2]

	return nil
}

func (c *Answer) WriteTo(w *LineWriter) error {
	return w.WriteLine("ANS %d %s %s %s", c.id, c.LoginName, c.AuthToken, c.SessionID)
}

// AuthenticateIM authenticates to a conversation server the local user
// initiated the transfer to.
//
//	-> USR 1 example@example.com 17262740.1050826919.32308
//	<- USR 1 OK example@example.com Example%20Name
type AuthenticateIM struct {
	txn

	LoginName string
	Nickname  string
	SessionID string
	Status    string
}

func (c *AuthenticateIM) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 5 {
		return badHeader(header)
	}

	if err := c.parseTrID(fields[1]); err != nil {
		return err
	}

	c.Status = fields[2]
	c.LoginName = fields[3]
	c.Nickname = unescapeText(fields[4])

	return nil
}

func (c *AuthenticateIM) WriteTo(w *LineWriter) error {
	return w.WriteLine("USR %d %s %s", c.id, c.LoginName, c.SessionID)
}

// CallUser invites another user into the conversation.
//
//	-> CAL 2 name_123@example.com
//	<- CAL 2 RINGING 11752013
type CallUser struct {
	txn

	LoginName string
	Response  string
	SessionID string
}

func (c *CallUser) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 4 {
		return badHeader(header)
	}

	if err := c.parseTrID(fields[1]); err != nil {
		return err
	}

	c.Response = fields[2]
	c.SessionID = fields[3]

	return nil
}

func (c *CallUser) WriteTo(w *LineWriter) error {
	return w.WriteLine("CAL %d %s", c.id, c.LoginName)
}

// UserRoster announces one existing participant while joining a
// conversation that is already under way.
//
//	<- IRO 1 1 2 myname@example.com My%20Name
type UserRoster struct {
	txn

	CurrentIndex int
	TotalCount   int
	LoginName    string
	Nickname     string
}

func (c *UserRoster) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 6 {
		return badHeader(header)
	}

	if err := c.parseTrID(fields[1]); err != nil {
		return err
	}

	var err error

	if c.CurrentIndex, err = strconv.Atoi(fields[2]); err != nil {
		return badHeader(header)
	}

	if c.TotalCount, err = strconv.Atoi(fields[3]); err != nil {
		return badHeader(header)
	}

	c.LoginName = fields[4]
	c.Nickname = unescapeText(fields[5])

	return nil
}

// UserJoined announces a participant joining the conversation.
//
//	<- JOI dave@example.com Dave
type UserJoined struct {
	txn

	LoginName string
	Nickname  string
}

func (c *UserJoined) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 3 {
		return badHeader(header)
	}

	c.LoginName = fields[1]
	c.Nickname = unescapeText(fields[2])

	return nil
}

// UserParted announces a participant leaving the conversation.
//
//	<- BYE dave@example.com
//	<- BYE dave@example.com 1
type UserParted struct {
	txn

	LoginName       string
	DueToInactivity bool
}

func (c *UserParted) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 2 {
		return badHeader(header)
	}

	c.LoginName = fields[1]

	if len(fields) > 2 {
		c.DueToInactivity = fields[2] == "1"
	}

	return nil
}

// ConversationRegistry covers every command a conversation server sends.
func ConversationRegistry() Registry {
	return Registry{
		"MSG": func() Parsable { return &Message{} },
		"ANS": func() Parsable { return &Answer{} },
		"CAL": func() Parsable { return &CallUser{} },
		"USR": func() Parsable { return &AuthenticateIM{} },
		"IRO": func() Parsable { return &UserRoster{} },
		"JOI": func() Parsable { return &UserJoined{} },
		"BYE": func() Parsable { return &UserParted{} },
		"ACK": func() Parsable { return &Acknowledgement{} },
		"NAK": func() Parsable { return &NegativeAcknowledgement{} },
	}
}
