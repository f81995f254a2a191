package messenger_test

import (
	"context"
	"time"

	. "github.com/onsi/gomega"

	"github.com/luma/courier/messenger"
	"github.com/luma/courier/transport/transporttest"
)

const (
	testLogin    = "bob@example.com"
	testPassword = "hunter2"
	testTicket   = "ct=1364480777,rver=6.0.5286.0"
	testToken    = "t=EwDwAfsBAAAU"
)

// staticTokens stands in for the passport service.
type staticTokens struct{}

func (staticTokens) ExchangeToken(_ context.Context, _, _, _ string) (string, error) {
	return testToken, nil
}

func newTestClient(addr string) *messenger.Client {
	return messenger.NewClient(messenger.Options{
		Addr:      addr,
		LoginName: testLogin,
		Password:  testPassword,
		Tokens:    staticTokens{},
		Timeout:   5 * time.Second,
	})
}

// expectHandshake scripts the server half of the login handshake up to the
// point where the client proves its token.
func expectHandshake(s *transporttest.Session) {
	id, fields := s.ExpectTrID("VER")
	s.Send("VER %d %s", id, fields[2])

	id, _ = s.ExpectTrID("CVR")
	s.Send("CVR %d 1.0.0000 1.0.0000 1.0.0000 http://example.com http://example.com", id)

	id, _ = s.ExpectTrID("USR")
	s.Send("USR %d TWN S %s", id, testTicket)

	id, _ = s.ExpectTrID("USR")
	s.Send("USR %d OK %s 1 0", id, testLogin)
}

// expectSync answers the roster sync with the given dump lines and echoes
// the announce that follows. It returns the announce's transaction id so
// scripts can address later untracked-looking pushes.
func expectSync(s *transporttest.Session, userCount, groupCount int, dump func()) int {
	id, _ := s.ExpectTrID("SYN")
	s.Send("SYN %d 2013-01-13T05:15:19.637-08:00 2012-09-23T06:51:31.243-07:00 %d %d",
		id, userCount, groupCount)

	if dump != nil {
		dump()
	}

	id, fields := s.ExpectTrID("CHG")
	s.Send("CHG %d %s %s %s", id, fields[2], fields[3], fields[4])

	return id
}

// expectLogin scripts a complete login with an empty roster.
func expectLogin(s *transporttest.Session) int {
	expectHandshake(s)
	return expectSync(s, 0, 0, nil)
}

func nextEvent(events <-chan messenger.Event) messenger.Event {
	var e messenger.Event
	EventuallyWithOffset(1, events, "5s").Should(Receive(&e))

	return e
}
