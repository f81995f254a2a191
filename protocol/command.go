package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Command is a single protocol command, either parsed off the wire or
// constructed locally for sending. A command optionally carries a transaction
// id; commands pushed by the server on its own initiative have none.
type Command interface {
	// TrID returns the transaction id and whether one is set.
	TrID() (int, bool)

	// SetTrID stamps the transaction id. The response tracker calls this
	// just before a command is written.
	SetTrID(id int)
}

// Parsable is a Command that can populate itself from a wire header line,
// pulling any binary payload through the reader.
type Parsable interface {
	Command
	Parse(header string, r *LineReader) error
}

// Writable is a Command that can serialise itself back to the wire.
type Writable interface {
	Command
	WriteTo(w *LineWriter) error
}

// txn is the embedded transaction id slot shared by every command kind.
type txn struct {
	id    int
	idSet bool
}

func (t *txn) TrID() (int, bool) { return t.id, t.idSet }

func (t *txn) SetTrID(id int) {
	t.id = id
	t.idSet = true
}

// parseTrID stamps the transaction id from its wire token.
func (t *txn) parseTrID(token string) error {
	id, err := strconv.Atoi(token)
	if err != nil {
		return fmt.Errorf("protocol: bad transaction id %q", token)
	}

	t.SetTrID(id)

	return nil
}

func badHeader(header string) error {
	return fmt.Errorf("protocol: malformed header %q", header)
}

// Registry maps wire identifiers to constructors for their command kind.
// Each connection flavour (notification vs conversation) reads with its own
// registry because a few identifiers mean different things on each.
type Registry map[string]func() Parsable

// splitTokens splits a header into positional tokens and key=value tokens.
// The identifier itself is not included in either.
func splitTokens(header string) (args []string, kv map[string]string) {
	kv = map[string]string{}

	for _, tok := range strings.Split(header, " ")[1:] {
		if i := strings.IndexByte(tok, '='); i >= 0 {
			kv[tok[:i]] = tok[i+1:]
			continue
		}

		args = append(args, tok)
	}

	return args, kv
}

const upperhex = "0123456789ABCDEF"

// EscapeText percent-encodes a value the way the wire expects display names,
// group names and property values encoded. The messenger layer shares it for
// values embedded inside message payload headers.
func EscapeText(s string) string {
	return escapeText(s)
}

// UnescapeText reverses EscapeText.
func UnescapeText(s string) string {
	return unescapeText(s)
}

// escapeText percent-encodes everything outside the RFC 3986 unreserved set.
// This matches what the protocol expects for display names and property
// values; the stdlib url escapers leave sub-delims like '=' bare, which would
// corrupt the key=value tokenisation.
func escapeText(s string) string {
	var b strings.Builder

	for i := 0; i < len(s); i++ {
		c := s[i]

		if c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			b.WriteByte(c)
			continue
		}

		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0xf])
	}

	return b.String()
}

// unescapeText reverses escapeText. Malformed escapes are kept literal rather
// than failing the whole command; a mangled nickname is not worth a dead link.
func unescapeText(s string) string {
	if !strings.ContainsRune(s, '%') {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			hi, okHi := unhex(s[i+1])
			lo, okLo := unhex(s[i+2])

			if okHi && okLo {
				b.WriteByte(hi<<4 | lo)
				i += 2
				continue
			}
		}

		b.WriteByte(s[i])
	}

	return b.String()
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}

	return 0, false
}
