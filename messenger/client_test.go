package messenger_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/tidwall/gjson"

	"github.com/luma/courier/auth"
	"github.com/luma/courier/messenger"
	"github.com/luma/courier/transport/transporttest"
)

var _ = Describe("Client login", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("logs in, applies the roster dump and releases sync events in order", func() {
		srv, err := transporttest.NewServer(func(s *transporttest.Session) {
			expectHandshake(s)
			expectSync(s, 1, 1, func() {
				s.Send("LSG Friends g1-guid")
				s.Send("LST N=alice@example.com F=Alice C=a-guid 3 1 g1-guid")
				s.Send("BPR PHH 555%%205550123")
				s.Send("PRP MFN Bobby")
				s.Send("BLP AL")
			})
			s.ReadLine()
		})
		Expect(err).To(Succeed())
		defer srv.Close()

		client := newTestClient(srv.Addr())
		defer client.Close(ctx)

		Expect(client.Login(ctx)).To(Succeed())
		Expect(client.LoggedIn()).To(BeTrue())

		events := client.Events()

		Expect(nextEvent(events)).To(Equal(messenger.LoggedIn{}))

		local := client.LocalUser()
		Expect(local).NotTo(BeNil())
		Expect(local.Nickname()).To(Equal("Bobby"))
		Expect(local.Status()).To(Equal(messenger.StatusOnline))

		Expect(nextEvent(events)).To(Equal(messenger.UserStatusChanged{
			User:           &local.User,
			Status:         messenger.StatusOnline,
			PreviousStatus: messenger.StatusOffline,
			DuringLogin:    true,
		}))

		alice := client.User("alice@example.com")
		Expect(alice.Nickname()).To(Equal("Alice"))
		Expect(alice.GUID()).To(Equal("a-guid"))
		Expect(alice.Property(messenger.PropertyHomePhone)).To(Equal("555 5550123"))

		groups := client.Groups()
		Expect(groups).To(HaveLen(1))
		Expect(groups[0].Name()).To(Equal("Friends"))
		Expect(groups[0].Contains(alice)).To(BeTrue())

		Expect(client.List(messenger.ForwardList).Contains(alice)).To(BeTrue())
		Expect(client.List(messenger.AllowList).Contains(alice)).To(BeTrue())
		Expect(client.List(messenger.BlockList).Contains(alice)).To(BeFalse())
		Expect(client.PrivacySetting(messenger.PrivacyAcceptInvitations)).To(Equal("AL"))

		Expect(nextEvent(events)).To(Equal(messenger.GroupAdded{Group: groups[0], DuringLogin: true}))
		Expect(nextEvent(events)).To(Equal(messenger.UserAddedToList{
			User: alice, List: client.List(messenger.AllowList), DuringLogin: true,
		}))
		Expect(nextEvent(events)).To(Equal(messenger.UserAddedToList{
			User: alice, List: client.List(messenger.ForwardList), DuringLogin: true,
		}))
		Expect(nextEvent(events)).To(Equal(messenger.UserAddedToGroup{
			User: alice, Group: groups[0], DuringLogin: true,
		}))
		Expect(nextEvent(events)).To(Equal(messenger.UserNicknameChanged{
			User:             &local.User,
			Nickname:         "Bobby",
			PreviousNickname: testLogin,
			DuringLogin:      true,
		}))
		Expect(nextEvent(events)).To(Equal(messenger.UserPropertyChanged{
			User:        alice,
			Property:    messenger.PropertyHomePhone,
			Value:       "555 5550123",
			DuringLogin: true,
		}))
		Expect(nextEvent(events)).To(Equal(messenger.PrivacyChanged{
			Setting:     messenger.PrivacyAcceptInvitations,
			Value:       "AL",
			DuringLogin: true,
		}))

		snapshot := client.Snapshot()
		Expect(gjson.Get(snapshot, "loggedIn").Bool()).To(BeTrue())
		Expect(gjson.Get(snapshot, "localUser.nickname").String()).To(Equal("Bobby"))
		Expect(gjson.Get(snapshot, "lists.FL.0").String()).To(Equal("alice@example.com"))
		Expect(gjson.Get(snapshot, "groups.0.name").String()).To(Equal("Friends"))
	})

	It("follows a transfer to another notification server", func() {
		target, err := transporttest.NewServer(func(s *transporttest.Session) {
			expectLogin(s)
			s.ReadLine()
		})
		Expect(err).To(Succeed())
		defer target.Close()

		first, err := transporttest.NewServer(func(s *transporttest.Session) {
			id, fields := s.ExpectTrID("VER")
			s.Send("VER %d %s", id, fields[2])

			id, _ = s.ExpectTrID("CVR")
			s.Send("CVR %d 1.0.0000 1.0.0000 1.0.0000 http://example.com http://example.com", id)

			id, _ = s.ExpectTrID("USR")
			s.Send("XFR %d NS %s 0 %s", id, target.Addr(), target.Addr())
		})
		Expect(err).To(Succeed())
		defer first.Close()

		client := newTestClient(first.Addr())
		defer client.Close(ctx)

		Expect(client.Login(ctx)).To(Succeed())
		Expect(client.LoggedIn()).To(BeTrue())
	})

	It("gives up after too many transfers", func() {
		var srv *transporttest.Server

		srv, err := transporttest.NewServer(func(s *transporttest.Session) {
			id, fields := s.ExpectTrID("VER")
			s.Send("VER %d %s", id, fields[2])

			id, _ = s.ExpectTrID("CVR")
			s.Send("CVR %d 1.0.0000 1.0.0000 1.0.0000 http://example.com http://example.com", id)

			id, _ = s.ExpectTrID("USR")
			s.Send("XFR %d NS %s 0 %s", id, srv.Addr(), srv.Addr())
		})
		Expect(err).To(Succeed())
		defer srv.Close()

		client := newTestClient(srv.Addr())
		defer client.Close(ctx)

		Expect(client.Login(ctx)).To(MatchError(messenger.ErrTooManyRedirects))
		Expect(client.LoggedIn()).To(BeFalse())
	})

	It("rejects a login when the server accepts no dialect", func() {
		srv, err := transporttest.NewServer(func(s *transporttest.Session) {
			id, _ := s.ExpectTrID("VER")
			s.Send("VER %d", id)
		})
		Expect(err).To(Succeed())
		defer srv.Close()

		client := newTestClient(srv.Addr())
		defer client.Close(ctx)

		Expect(client.Login(ctx)).To(MatchError(messenger.ErrDialectRejected))
	})
})

var _ = Describe("Client session", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	// login runs a scripted login and hands the session's remaining life to
	// rest. The client triggers rest with a ping, so pushes scripted before
	// the QNG cannot race the login.
	login := func(rest func(s *transporttest.Session)) (*messenger.Client, *transporttest.Server) {
		srv, err := transporttest.NewServer(func(s *transporttest.Session) {
			expectHandshake(s)
			expectSync(s, 1, 0, func() {
				s.Send("LST N=alice@example.com F=Alice C=a-guid 3 1")
			})

			if rest != nil {
				rest(s)
			}
		})
		Expect(err).To(Succeed())

		client := newTestClient(srv.Addr())
		Expect(client.Login(ctx)).To(Succeed())

		return client, srv
	}

	// The scripted login buffers four events: logged-in, the local user
	// coming online, and alice joining the allow and forward lists.
	drainLogin := func(client *messenger.Client) {
		for i := 0; i < 4; i++ {
			nextEvent(client.Events())
		}
	}

	It("answers pings for session liveness", func() {
		client, srv := login(func(s *transporttest.Session) {
			s.Expect("PNG")
			s.Send("QNG 30")
			s.ReadLine()
		})
		defer srv.Close()
		defer client.Close(ctx)

		Expect(client.Ping(ctx)).To(Succeed())
	})

	It("answers the server's challenge probe", func() {
		challenge := "15570131571988941333"

		client, srv := login(func(s *transporttest.Session) {
			s.Expect("PNG")
			s.Send("CHL 0 %s", challenge)

			id, fields := s.ExpectTrID("QRY")
			if fields[2] != auth.ProductID {
				panic("challenge answered with the wrong client id")
			}

			if string(s.ReadPayload(32)) != auth.ChallengeResponse(challenge) {
				panic("challenge answered with the wrong digest")
			}

			s.Send("QRY %d", id)
			s.Send("QNG 30")
			s.ReadLine()
		})
		defer srv.Close()
		defer client.Close(ctx)

		Expect(client.Ping(ctx)).To(Succeed())
	})

	It("applies presence changes and pushes nickname updates back", func() {
		client, srv := login(func(s *transporttest.Session) {
			s.Expect("PNG")
			s.Send("NLN AWY alice@example.com Alicia 1073741824")

			id, fields := s.ExpectTrID("SBP")
			if fields[2] != "a-guid" || fields[3] != "MFN" {
				panic("nickname pushed back for the wrong user or key")
			}

			s.Send("SBP %d %s %s %s", id, fields[2], fields[3], fields[4])
			s.Send("FLN alice@example.com")
			s.Send("QNG 30")
			s.ReadLine()
		})
		defer srv.Close()
		defer client.Close(ctx)

		drainLogin(client)

		Expect(client.Ping(ctx)).To(Succeed())

		alice := client.User("alice@example.com")

		Expect(nextEvent(client.Events())).To(Equal(messenger.UserStatusChanged{
			User:           alice,
			Status:         messenger.StatusAway,
			PreviousStatus: messenger.StatusOffline,
		}))
		Expect(nextEvent(client.Events())).To(Equal(messenger.UserNicknameChanged{
			User:             alice,
			Nickname:         "Alicia",
			PreviousNickname: "Alice",
		}))
		Expect(nextEvent(client.Events())).To(Equal(messenger.UserCapabilitiesChanged{
			User:         alice,
			Capabilities: messenger.Capabilities(1073741824),
		}))
		Expect(nextEvent(client.Events())).To(Equal(messenger.UserStatusChanged{
			User:           alice,
			Status:         messenger.StatusOffline,
			PreviousStatus: messenger.StatusAway,
		}))
	})

	It("routes service pushes onto the event stream", func() {
		client, srv := login(func(s *transporttest.Session) {
			s.Expect("PNG")
			s.SendPayload("MSG Hotmail Hotmail", []byte("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\nwelcome"))
			s.SendPayload("UBX alice@example.com", []byte("<Data></Data>"))
			s.SendPayload("NOT", []byte("<NOTIFICATION></NOTIFICATION>"))
			s.Send("ADC 0 RL N=carol@example.com")
			s.Send("QNG 30")
			s.ReadLine()
		})
		defer srv.Close()
		defer client.Close(ctx)

		drainLogin(client)

		Expect(client.Ping(ctx)).To(Succeed())

		event := nextEvent(client.Events())
		service, ok := event.(messenger.ServiceMessage)
		Expect(ok).To(BeTrue())
		Expect(service.SenderLoginName).To(Equal("Hotmail"))
		Expect(service.Message.Text()).To(Equal("welcome"))
		Expect(service.DuringLogin).To(BeFalse())

		Expect(nextEvent(client.Events())).To(Equal(messenger.UserBroadcast{
			User:    client.User("alice@example.com"),
			Message: "<Data></Data>",
		}))
		Expect(nextEvent(client.Events())).To(Equal(messenger.ServerNotification{
			Message: "<NOTIFICATION></NOTIFICATION>",
		}))

		carol := client.User("carol@example.com")
		Expect(nextEvent(client.Events())).To(Equal(messenger.UserAddedToList{
			User: carol,
			List: client.List(messenger.PendingList),
		}))
		Expect(client.List(messenger.PendingList).Contains(carol)).To(BeTrue())
	})

	It("logs out deliberately, taking online users offline", func() {
		client, srv := login(func(s *transporttest.Session) {
			s.Expect("PNG")
			s.Send("ILN 0 NLN alice@example.com Alice 0")
			s.Send("QNG 30")
			s.ReadLine()
		})
		defer srv.Close()
		defer client.Close(ctx)

		drainLogin(client)

		Expect(client.Ping(ctx)).To(Succeed())

		alice := client.User("alice@example.com")

		Expect(nextEvent(client.Events())).To(Equal(messenger.UserStatusChanged{
			User:           alice,
			Status:         messenger.StatusOnline,
			PreviousStatus: messenger.StatusOffline,
			DuringLogin:    true,
		}))

		Expect(client.Logout(ctx)).To(Succeed())
		Expect(client.LoggedIn()).To(BeFalse())

		Expect(nextEvent(client.Events())).To(Equal(messenger.LoggedOut{
			Reason: messenger.LogoutInitiated,
		}))
		Expect(nextEvent(client.Events())).To(Equal(messenger.UserStatusChanged{
			User:           alice,
			Status:         messenger.StatusOffline,
			PreviousStatus: messenger.StatusOnline,
		}))
		Expect(alice.Status()).To(Equal(messenger.StatusOffline))
	})

	It("treats OUT as the server ending the session", func() {
		client, srv := login(func(s *transporttest.Session) {
			s.Expect("PNG")
			s.Send("OUT OTH")
		})
		defer srv.Close()
		defer client.Close(ctx)

		drainLogin(client)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		_ = client.Ping(pingCtx)

		var event messenger.Event
		Eventually(client.Events(), "5s").Should(Receive(&event))

		out, ok := event.(messenger.LoggedOut)
		Expect(ok).To(BeTrue())
		Expect(out.Reason).To(Equal(messenger.LogoutLoggedInElsewhere))

		Eventually(client.LoggedIn, "5s").Should(BeFalse())
	})

	It("reports a dropped connection as a connection-error logout", func() {
		client, srv := login(func(s *transporttest.Session) {
			s.Expect("PNG")
			s.Hangup()
		})
		defer srv.Close()
		defer client.Close(ctx)

		drainLogin(client)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		_ = client.Ping(pingCtx)

		var event messenger.Event
		Eventually(client.Events(), "5s").Should(Receive(&event))

		out, ok := event.(messenger.LoggedOut)
		Expect(ok).To(BeTrue())
		Expect(out.Reason).To(Equal(messenger.LogoutConnectionError))
	})
})
