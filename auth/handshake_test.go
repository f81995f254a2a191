package auth_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/courier/auth"
)

var _ = Describe("ChallengeResponse", func() {
	// Reference answers computed with the reference implementation of the
	// handshake for the current product identity.
	It("answers known challenge tokens", func() {
		Expect(auth.ChallengeResponse("15570131571988941333")).
			To(Equal("9cb1df88322e338f23c67780a2ff14e1"))
		Expect(auth.ChallengeResponse("22210219642164014968")).
			To(Equal("6e92a312bf6b70ee58e75a1e3315695c"))
		Expect(auth.ChallengeResponse("1338460728223657880")).
			To(Equal("e5ad8bdf618790d9ce55e0d05f022ef3"))
		Expect(auth.ChallengeResponse("8989871939856023232")).
			To(Equal("2f7c33b225cfe155429418f16e8c4317"))
	})

	It("always yields 32 lowercase hex digits", func() {
		for _, token := range []string{"0", "123", "99999999999999999999"} {
			answer := auth.ChallengeResponse(token)

			Expect(answer).To(HaveLen(32))
			Expect(answer).To(MatchRegexp("^[0-9a-f]{32}$"))
		}
	})
})
