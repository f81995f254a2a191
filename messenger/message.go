package messenger

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/luma/courier/protocol"
)

// Message is the MIME-like envelope instant messages travel in: `key: value`
// header lines, a blank line, then an opaque body.
type Message struct {
	headers []messageHeader

	Body []byte
}

type messageHeader struct {
	key   string
	value string
}

const textContentType = "text/plain; charset=UTF-8"

// NewMessage returns an empty envelope with the baseline headers set.
func NewMessage() *Message {
	return &Message{
		headers: []messageHeader{
			{"MIME-Version", "1.0"},
			{"Content-Type", textContentType},
		},
		Body: []byte{},
	}
}

// NewTextMessage returns a plain-text message carrying text as its body.
func NewTextMessage(text string) *Message {
	m := NewMessage()
	m.Body = []byte(text)

	return m
}

// ParseMessage decodes an envelope received off the wire.
func ParseMessage(payload []byte) (*Message, error) {
	parts := bytes.SplitN(payload, []byte("\r\n\r\n"), 2)

	if len(parts) < 2 {
		return nil, fmt.Errorf("messenger: message payload has no header separator")
	}

	m := &Message{Body: parts[1]}

	for _, line := range strings.Split(string(parts[0]), "\r\n") {
		i := strings.Index(line, ": ")
		if i < 0 {
			return nil, fmt.Errorf("messenger: malformed message header %q", line)
		}

		m.headers = append(m.headers, messageHeader{line[:i], line[i+2:]})
	}

	return m, nil
}

// Header returns the value of the named header, or "" when absent.
func (m *Message) Header(key string) string {
	for _, h := range m.headers {
		if h.key == key {
			return h.value
		}
	}

	return ""
}

// SetHeader sets the named header, preserving the position of an existing
// one so the envelope serialises stably.
func (m *Message) SetHeader(key, value string) {
	for i, h := range m.headers {
		if h.key == key {
			m.headers[i].value = value
			return
		}
	}

	m.headers = append(m.headers, messageHeader{key, value})
}

// ContentType returns the Content-Type header.
func (m *Message) ContentType() string {
	return m.Header("Content-Type")
}

// Text returns the body as a string.
func (m *Message) Text() string {
	return string(m.Body)
}

// Bytes serialises the envelope for the wire.
func (m *Message) Bytes() []byte {
	var b bytes.Buffer

	for _, h := range m.headers {
		b.WriteString(h.key)
		b.WriteString(": ")
		b.WriteString(h.value)
		b.WriteString("\r\n")
	}

	b.WriteString("\r\n")
	b.Write(m.Body)

	return b.Bytes()
}

// Color is a 24-bit text colour.
type Color struct {
	R, G, B uint8
}

// TextStyle describes the X-MMS-IM-Format presentation header of plain-text
// messages.
type TextStyle struct {
	Font          string
	Bold          bool
	Italic        bool
	Underline     bool
	Strikethrough bool
	Color         Color
}

// NewTextStyle returns the default style.
func NewTextStyle() *TextStyle {
	return &TextStyle{Font: "Microsoft Sans Serif"}
}

// Apply writes the style onto a plain-text message.
func (s *TextStyle) Apply(m *Message) error {
	if m.ContentType() != textContentType {
		return fmt.Errorf("messenger: cannot style a %q message", m.ContentType())
	}

	var effects strings.Builder

	if s.Bold {
		effects.WriteByte('B')
	}

	if s.Italic {
		effects.WriteByte('I')
	}

	if s.Underline {
		effects.WriteByte('U')
	}

	if s.Strikethrough {
		effects.WriteByte('S')
	}

	// The colour channel order on the wire is BGR.
	format := fmt.Sprintf("FN=%s; EF=%s; CO=%02X%02X%02X; CS=0; PF=22",
		protocol.EscapeText(s.Font), effects.String(),
		s.Color.B, s.Color.G, s.Color.R)

	m.SetHeader("X-MMS-IM-Format", format)

	return nil
}

// Read extracts the style of a plain-text message. A message without a
// format header leaves the style untouched.
func (s *TextStyle) Read(m *Message) error {
	if m.ContentType() != textContentType {
		return fmt.Errorf("messenger: cannot read the style of a %q message", m.ContentType())
	}

	header := m.Header("X-MMS-IM-Format")
	if header == "" {
		return nil
	}

	args := map[string]string{}

	for _, part := range strings.Split(header, "; ") {
		if i := strings.IndexByte(part, '='); i >= 0 {
			args[part[:i]] = part[i+1:]
		}
	}

	if font, ok := args["FN"]; ok {
		s.Font = protocol.UnescapeText(font)
	}

	if effects, ok := args["EF"]; ok {
		s.Bold = strings.Contains(effects, "B")
		s.Italic = strings.Contains(effects, "I")
		s.Underline = strings.Contains(effects, "U")
		s.Strikethrough = strings.Contains(effects, "S")
	}

	if co, ok := args["CO"]; ok && co != "0" {
		if raw, err := strconv.ParseUint(co, 16, 32); err == nil {
			s.Color = Color{B: uint8(raw >> 16), G: uint8(raw >> 8), R: uint8(raw)}
		}
	}

	return nil
}

// CopyStyle carries the format header of one plain-text message over to
// another.
func CopyStyle(source, dest *Message) error {
	if source.ContentType() != textContentType || dest.ContentType() != textContentType {
		return fmt.Errorf("messenger: style copy requires plain-text messages")
	}

	if header := source.Header("X-MMS-IM-Format"); header != "" {
		dest.SetHeader("X-MMS-IM-Format", header)
	}

	return nil
}
