package protocol_test

import (
	"bytes"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/courier/protocol"
)

// serialize runs a command through a LineWriter and returns the wire bytes.
func serialize(cmd protocol.Writable) string {
	var buf bytes.Buffer

	Expect(cmd.WriteTo(protocol.NewLineWriter(&buf))).To(Succeed())

	return buf.String()
}

// parse feeds a single wire line (plus whatever payload follows it) into a
// fresh command of the given kind.
func parse(cmd protocol.Parsable, wire string) {
	r := protocol.NewLineReader(bytes.NewReader([]byte(wire)))

	header, err := r.ReadLine()
	Expect(err).To(Succeed())
	Expect(cmd.Parse(header, r)).To(Succeed())
}

var _ = Describe("Commands", func() {
	Describe("Version", func() {
		It("round-trips", func() {
			out := &protocol.Version{Dialects: []string{"MSNP12", "MSNP11"}}
			out.SetTrID(1)
			Expect(serialize(out)).To(Equal("VER 1 MSNP12 MSNP11\r\n"))

			in := &protocol.Version{}
			parse(in, "VER 1 MSNP12\r\n")

			id, set := in.TrID()
			Expect(set).To(BeTrue())
			Expect(id).To(Equal(1))
			Expect(in.Dialects).To(Equal([]string{"MSNP12"}))
		})
	})

	Describe("Authenticate", func() {
		It("parses a continuation reply", func() {
			in := &protocol.Authenticate{}
			parse(in, "USR 3 TWN S ct=1364480777,tpf=b0735e\r\n")

			Expect(in.AuthType).To(Equal("TWN"))
			Expect(in.Status).To(Equal("S"))
			Expect(in.Argument).To(Equal("ct=1364480777,tpf=b0735e"))
		})
	})

	Describe("Transfer", func() {
		It("parses a conversation transfer", func() {
			in := &protocol.Transfer{}
			parse(in, "XFR 15 SB 207.46.108.37:1863 CKI 17262740.1050826919.32308\r\n")

			Expect(in.ServerType).To(Equal("SB"))
			Expect(in.Host).To(Equal("207.46.108.37:1863"))
			Expect(in.AuthType).To(Equal("CKI"))
			Expect(in.SessionID).To(Equal("17262740.1050826919.32308"))
		})

		It("serializes only the server type", func() {
			out := &protocol.Transfer{ServerType: "SB"}
			out.SetTrID(15)
			Expect(serialize(out)).To(Equal("XFR 15 SB\r\n"))
		})
	})

	Describe("Synchronize", func() {
		It("parses the reply with entry counts", func() {
			in := &protocol.Synchronize{}
			parse(in, "SYN 5 2013-01-13T05:15:19.637-08:00 2012-09-23T06:51:31.243-07:00 14 3\r\n")

			Expect(in.TimeStamp1).To(Equal("2013-01-13T05:15:19.637-08:00"))
			Expect(in.UserCount).To(Equal(14))
			Expect(in.GroupCount).To(Equal(3))
		})
	})

	Describe("LocalProperty", func() {
		It("parses the sync form without a transaction id", func() {
			in := &protocol.LocalProperty{}
			parse(in, "PRP MFN My%20Name\r\n")

			_, set := in.TrID()
			Expect(set).To(BeFalse())
			Expect(in.Key).To(Equal("MFN"))
			Expect(in.Value).To(Equal("My Name"))
		})

		It("parses the confirmed form with a transaction id", func() {
			in := &protocol.LocalProperty{}
			parse(in, "PRP 6 MFN Hello%20Joe\r\n")

			id, set := in.TrID()
			Expect(set).To(BeTrue())
			Expect(id).To(Equal(6))
			Expect(in.Value).To(Equal("Hello Joe"))
		})

		It("escapes the value when serializing", func() {
			out := &protocol.LocalProperty{Key: "MFN", Value: "Hello Joe"}
			out.SetTrID(6)
			Expect(serialize(out)).To(Equal("PRP 6 MFN Hello%20Joe\r\n"))
		})

		It("escapes characters the stdlib url escapers leave bare", func() {
			out := &protocol.LocalProperty{Key: "MFN", Value: "a=b c"}
			out.SetTrID(7)
			Expect(serialize(out)).To(Equal("PRP 7 MFN a%3Db%20c\r\n"))
		})
	})

	Describe("PrivacySetting", func() {
		It("parses the sync form", func() {
			in := &protocol.PrivacySetting{}
			parse(in, "BLP BL\r\n")

			Expect(in.Key).To(Equal("BLP"))
			Expect(in.Value).To(Equal("BL"))
		})

		It("parses the confirmed form", func() {
			in := &protocol.PrivacySetting{}
			parse(in, "GTC 9 A\r\n")

			id, set := in.TrID()
			Expect(set).To(BeTrue())
			Expect(id).To(Equal(9))
			Expect(in.Key).To(Equal("GTC"))
			Expect(in.Value).To(Equal("A"))
		})

		It("serializes with its own key as identifier", func() {
			out := &protocol.PrivacySetting{Key: "BLP", Value: "AL"}
			out.SetTrID(9)
			Expect(serialize(out)).To(Equal("BLP 9 AL\r\n"))
		})
	})

	Describe("ChangeStatus", func() {
		It("parses the echo with a display picture", func() {
			in := &protocol.ChangeStatus{}
			parse(in, "CHG 8 NLN 268435456 %3cmsnobj%2f%3e\r\n")

			Expect(in.Status).To(Equal("NLN"))
			Expect(in.Capabilities).To(Equal(uint32(268435456)))
			Expect(in.DisplayPicture).To(Equal("%3cmsnobj%2f%3e"))
		})
	})

	Describe("UserEntry", func() {
		It("unpacks combined list flags in order", func() {
			in := &protocol.UserEntry{}
			parse(in, "LST N=jig@example.com F=JigWig C=8b2d1a22-0000-0000-0000-000000000000 3 1\r\n")

			Expect(in.LoginName).To(Equal("jig@example.com"))
			Expect(in.Nickname).To(Equal("JigWig"))
			Expect(in.GUID).To(Equal("8b2d1a22-0000-0000-0000-000000000000"))
			Expect(in.Lists).To(Equal([]string{"FL", "AL"}))
			Expect(in.Groups).To(BeEmpty())
		})

		It("splits group memberships", func() {
			in := &protocol.UserEntry{}
			parse(in, "LST N=big@example.com F=big%40example.com C=7f4fe7f7-8801-4bf5-8609-48f30ef7d6a9 5 1 d673f5f8-59ca-40fb-868c-51d34cf0d7dc,22222222-59ca-40fb-868c-51d34cf0d7dc\r\n")

			Expect(in.Lists).To(Equal([]string{"FL", "BL"}))
			Expect(in.Groups).To(HaveLen(2))
			Expect(in.Groups[0]).To(Equal("d673f5f8-59ca-40fb-868c-51d34cf0d7dc"))
		})

		It("tolerates entries without nickname or guid", func() {
			in := &protocol.UserEntry{}
			parse(in, "LST N=goggle@example.com 2 1\r\n")

			Expect(in.LoginName).To(Equal("goggle@example.com"))
			Expect(in.Nickname).To(BeEmpty())
			Expect(in.Lists).To(Equal([]string{"AL"}))
		})
	})

	Describe("AddContact", func() {
		It("serializes a list add", func() {
			out := &protocol.AddContact{List: "FL", LoginName: "blimp@example.com", Nickname: "blimp@example.com"}
			out.SetTrID(7)
			Expect(serialize(out)).To(Equal("ADC 7 FL N=blimp@example.com F=blimp%40example.com\r\n"))
		})

		It("serializes a group add", func() {
			out := &protocol.AddContact{
				List:      "FL",
				GUID:      "2a497286-0000-0000-0000-000000000000",
				GroupGUID: "9f55493b-b548-44ae-b125-44801ab4bc67",
			}
			out.SetTrID(8)
			Expect(serialize(out)).To(Equal(
				"ADC 8 FL C=2a497286-0000-0000-0000-000000000000 9f55493b-b548-44ae-b125-44801ab4bc67\r\n"))
		})

		It("parses the confirmation with the assigned guid", func() {
			in := &protocol.AddContact{}
			parse(in, "ADC 7 FL N=blimp@example.com F=blimp@example.com C=2a497286-0000-0000-0000-000000000000\r\n")

			Expect(in.List).To(Equal("FL"))
			Expect(in.LoginName).To(Equal("blimp@example.com"))
			Expect(in.GUID).To(Equal("2a497286-0000-0000-0000-000000000000"))
		})
	})

	Describe("RemoveContact", func() {
		It("serializes with and without a group", func() {
			out := &protocol.RemoveContact{List: "BL", Target: "blimp@example.com"}
			out.SetTrID(12)
			Expect(serialize(out)).To(Equal("REM 12 BL blimp@example.com\r\n"))

			grouped := &protocol.RemoveContact{
				List:      "FL",
				Target:    "2a497286-0000-0000-0000-000000000000",
				GroupGUID: "9f55493b-b548-44ae-b125-44801ab4bc67",
			}
			grouped.SetTrID(11)
			Expect(serialize(grouped)).To(Equal(
				"REM 11 FL 2a497286-0000-0000-0000-000000000000 9f55493b-b548-44ae-b125-44801ab4bc67\r\n"))
		})
	})

	Describe("Ring", func() {
		It("parses an invitation", func() {
			in := &protocol.Ring{}
			parse(in, "RNG 11752013 207.46.108.38:1863 CKI 849102291.520491113 example@example.com Example%20Name\r\n")

			Expect(in.SessionID).To(Equal("11752013"))
			Expect(in.Endpoint).To(Equal("207.46.108.38:1863"))
			Expect(in.AuthType).To(Equal("CKI"))
			Expect(in.AuthString).To(Equal("849102291.520491113"))
			Expect(in.Caller).To(Equal("example@example.com"))
			Expect(in.CallerNickname).To(Equal("Example Name"))
		})
	})

	Describe("SendMessage", func() {
		It("writes the payload after the header", func() {
			out := &protocol.SendMessage{DeliveryMethod: "A", Payload: []byte("hello")}
			out.SetTrID(3)
			Expect(serialize(out)).To(Equal("MSG 3 A 5\r\nhello"))
		})
	})

	Describe("Message", func() {
		It("parses the sender and payload", func() {
			in := &protocol.Message{}
			parse(in, "MSG zues@example.com nickname 5\r\nhello")

			Expect(in.Sender).To(Equal("zues@example.com"))
			Expect(in.SenderNickname).To(Equal("nickname"))
			Expect(in.Payload).To(Equal([]byte("hello")))
		})
	})

	Describe("AcceptChallenge", func() {
		It("writes the digest as a payload", func() {
			out := &protocol.AcceptChallenge{
				ClientID: "msmsgs@msnmsgr.com",
				Data:     "9cb1df88322e338f23c67780a2ff14e1",
			}
			out.SetTrID(1049)
			Expect(serialize(out)).To(Equal(
				"QRY 1049 msmsgs@msnmsgr.com 32\r\n9cb1df88322e338f23c67780a2ff14e1"))
		})
	})

	Describe("Presence announcements", func() {
		It("parses NLN", func() {
			in := &protocol.UserOnline{}
			parse(in, "NLN AWY alice@example.com Alice%20B 1879474220\r\n")

			Expect(in.Status).To(Equal("AWY"))
			Expect(in.LoginName).To(Equal("alice@example.com"))
			Expect(in.Nickname).To(Equal("Alice B"))
			Expect(in.Capabilities).To(Equal(uint32(1879474220)))
		})

		It("parses ILN with a display picture", func() {
			in := &protocol.InitialUserOnline{}
			parse(in, "ILN 6 NLN zool@example.com jo 1345323044 %3cmsnobj%2f%3e\r\n")

			Expect(in.Status).To(Equal("NLN"))
			Expect(in.LoginName).To(Equal("zool@example.com"))
			Expect(in.DisplayPicture).To(Equal("%3cmsnobj%2f%3e"))
		})

		It("parses FLN", func() {
			in := &protocol.UserOffline{}
			parse(in, "FLN zool@example.com\r\n")

			Expect(in.LoginName).To(Equal("zool@example.com"))
		})
	})

	Describe("Conversation membership", func() {
		It("parses IRO with position", func() {
			in := &protocol.UserRoster{}
			parse(in, "IRO 1 1 2 myname@example.com My%20Name\r\n")

			Expect(in.CurrentIndex).To(Equal(1))
			Expect(in.TotalCount).To(Equal(2))
			Expect(in.LoginName).To(Equal("myname@example.com"))
			Expect(in.Nickname).To(Equal("My Name"))
		})

		It("parses BYE with the inactivity marker", func() {
			in := &protocol.UserParted{}
			parse(in, "BYE dave@example.com 1\r\n")

			Expect(in.LoginName).To(Equal("dave@example.com"))
			Expect(in.DueToInactivity).To(BeTrue())
		})
	})

	Describe("ServerError", func() {
		It("maps a known code", func() {
			in := &protocol.ServerError{}
			parse(in, "224 7\r\n")

			resp := in.Response()
			Expect(resp.RawCode).To(Equal(224))
			Expect(resp.Code).To(Equal(protocol.CodeInvalidGroup))
			Expect(resp.Error()).To(ContainSubstring("invalid group"))
		})

		It("maps an unknown code to CodeUnknown", func() {
			in := &protocol.ServerError{}
			parse(in, "999 3\r\n")

			resp := in.Response()
			Expect(resp.RawCode).To(Equal(999))
			Expect(resp.Code).To(Equal(protocol.CodeUnknown))
		})
	})
})
