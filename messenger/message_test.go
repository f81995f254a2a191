package messenger_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/courier/messenger"
)

var _ = Describe("Message", func() {
	It("renders headers before a blank line and the body after it", func() {
		msg := messenger.NewTextMessage("hello there")

		raw := string(msg.Bytes())
		Expect(raw).To(ContainSubstring("MIME-Version: 1.0\r\n"))
		Expect(raw).To(ContainSubstring("Content-Type: text/plain; charset=UTF-8\r\n"))
		Expect(raw).To(HaveSuffix("\r\n\r\nhello there"))
	})

	It("round-trips through ParseMessage", func() {
		msg := messenger.NewTextMessage("two\r\nlines")
		msg.SetHeader("X-Custom", "yes")

		parsed, err := messenger.ParseMessage(msg.Bytes())
		Expect(err).To(Succeed())

		Expect(parsed.Header("MIME-Version")).To(Equal("1.0"))
		Expect(parsed.Header("X-Custom")).To(Equal("yes"))
		Expect(parsed.Text()).To(Equal("two\r\nlines"))
	})

	It("rejects a payload with no header separator", func() {
		_, err := messenger.ParseMessage([]byte("MIME-Version: 1.0\r\nno separator"))
		Expect(err).To(HaveOccurred())
	})

	It("preserves header position when a value is replaced", func() {
		msg := messenger.NewTextMessage("x")
		msg.SetHeader("MIME-Version", "2.0")

		parsed, err := messenger.ParseMessage(msg.Bytes())
		Expect(err).To(Succeed())
		Expect(parsed.Header("MIME-Version")).To(Equal("2.0"))
	})
})

var _ = Describe("TextStyle", func() {
	It("writes the colour channels reversed", func() {
		style := messenger.NewTextStyle()
		style.Color = messenger.Color{R: 0x11, G: 0x22, B: 0x33}

		msg := messenger.NewTextMessage("x")
		Expect(style.Apply(msg)).To(Succeed())

		Expect(msg.Header("X-MMS-IM-Format")).To(ContainSubstring("CO=332211"))
	})

	It("round-trips font, effects and colour", func() {
		style := messenger.NewTextStyle()
		style.Font = "Comic Sans MS"
		style.Bold = true
		style.Strikethrough = true
		style.Color = messenger.Color{R: 0xAA, G: 0xBB, B: 0xCC}

		msg := messenger.NewTextMessage("x")
		Expect(style.Apply(msg)).To(Succeed())

		read := messenger.NewTextStyle()
		Expect(read.Read(msg)).To(Succeed())
		Expect(read.Font).To(Equal("Comic Sans MS"))
		Expect(read.Bold).To(BeTrue())
		Expect(read.Italic).To(BeFalse())
		Expect(read.Strikethrough).To(BeTrue())
		Expect(read.Color).To(Equal(messenger.Color{R: 0xAA, G: 0xBB, B: 0xCC}))
	})

	It("keeps the default font when none is carried", func() {
		msg := messenger.NewTextMessage("x")
		msg.SetHeader("X-MMS-IM-Format", "EF=; CO=0; CS=0; PF=22")

		read := messenger.NewTextStyle()
		Expect(read.Read(msg)).To(Succeed())
		Expect(read.Font).To(Equal("Microsoft Sans Serif"))
		Expect(read.Color).To(Equal(messenger.Color{}))
	})

	It("refuses to style a non-text message", func() {
		msg := messenger.NewMessage()
		msg.SetHeader("Content-Type", "application/octet-stream")

		Expect(messenger.NewTextStyle().Apply(msg)).NotTo(Succeed())
	})

	It("copies a style between messages", func() {
		style := messenger.NewTextStyle()
		style.Italic = true

		source := messenger.NewTextMessage("a")
		Expect(style.Apply(source)).To(Succeed())

		dest := messenger.NewTextMessage("b")
		Expect(messenger.CopyStyle(source, dest)).To(Succeed())
		Expect(dest.Header("X-MMS-IM-Format")).To(Equal(source.Header("X-MMS-IM-Format")))
	})
})
