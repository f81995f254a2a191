package messenger

// This package is the client proper: one Client per account, logged into a
// notification server, plus any number of Conversations, each on its own
// conversation server.
//
// The Client owns the roster state the notification server synchronises at
// login: the local user, five fixed membership lists, the roster groups and
// every User object ever seen. User objects are canonical per login name, so
// the same *User shows up in lists, groups and conversations and can be
// compared by identity.
//
// Everything the server pushes arrives on event streams: Client.Events for
// session-level notifications, Conversation.Events for per-conversation
// traffic. The streams are buffered but never drop; a consumer that stops
// reading eventually stalls the handlers.
//
// Operations that touch a connection take a context and follow the usual
// session-lock discipline: reads of a live session share, login/logout/close
// exclude.
