package protocol

// This package implements parsing and serialising of the text commands that
// Courier exchanges with a messenger service (MSNP-family).
//
// === General syntax
//
// - lines are `\r\n` delimited
// - a line starts with a three-letter command identifier (e.g. 'VER', 'MSG')
// - tokens are space separated; a token containing '=' is a key=value token,
//   everything else is positional
// - display names, group names and property values are percent-encoded
//
// Most client commands carry a transaction id as their first token so that a
// later reply can be matched back to the request that caused it:
//
//   ```
//     -> VER 1 MSNP12
//     <- VER 1 MSNP12
//   ```
//
// Commands pushed by the server on its own initiative (presence changes,
// incoming invitations, challenges...) carry no transaction id.
//
// Requests and their replies interleave freely with pushed commands, but a
// single command is atomic on the wire: you will never receive half a command,
// then another command, then the rest of the first.
//
// === Payload commands
//
// Some commands follow their header line with exactly N raw bytes, N given by
// the last header token, with no extra delimiter:
//
//   ```
//     -> MSG 3 A 170
//     -> (170 bytes)
//   ```
//
// The payload of message commands is itself a MIME-like envelope: `key: value`
// header lines, a blank line, then an opaque body. See the messenger package.
//
// === Error replies
//
// A reply whose identifier is a bare integer is a server error for the
// transaction named by its second token:
//
//   ```
//     -> ADG 7 toolongname...
//     <- 224 7
//   ```
//
// Unknown identifiers that are not integers are skipped; the command set is a
// closed, versioned catalogue and new server chatter must not kill the link.
