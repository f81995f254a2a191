// Package auth implements the two proofs the service demands of a client:
// the passport token exchange performed over HTTPS during login, and the
// periodic challenge handshake that keeps an established session alive.
package auth

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"math/bits"
)

// Product identity presented in challenge handshakes. The pair must match
// what the server expects for the negotiated dialect.
const (
	ProductID  = "PROD0120PW!CCV9@"
	ProductKey = "C1BX{V4W}Q3*10SM"

	// ChallengeClientID is the address the challenge answer is attributed to.
	ChallengeClientID = "msmsgs@msnmsgr.com"
)

const (
	hashMagic = 0x0E79A9C1
	hashMod   = 0x7FFFFFFF
)

// ChallengeResponse computes the 32-hex-digit answer to a server challenge
// token. The scheme mixes an MD5 digest of the token with the product key
// through a fixed-point recurrence and XORs the result back over the digest.
func ChallengeResponse(token string) string {
	sum := md5.Sum([]byte(token + ProductKey))

	var seeds [4]uint64

	for i := range seeds {
		seeds[i] = uint64(binary.LittleEndian.Uint32(sum[i*4:])) & hashMod
	}

	material := token + ProductID
	if pad := 8 - len(material)%8; pad > 0 {
		for i := 0; i < pad; i++ {
			material += "0"
		}
	}

	chunks := make([]uint64, len(material)/4)

	for i := range chunks {
		chunks[i] = uint64(binary.LittleEndian.Uint32([]byte(material[i*4:])))
	}

	var temp, high, low uint64

	for i := 0; i < len(chunks); i += 2 {
		temp = (chunks[i]*hashMagic)%hashMod + high
		temp = (temp*seeds[0] + seeds[1]) % hashMod

		high = (chunks[i+1] + temp) % hashMod
		high = (high*seeds[2] + seeds[3]) % hashMod

		low += high + temp
	}

	high = uint64(bits.ReverseBytes32(uint32((high + seeds[1]) % hashMod)))
	low = uint64(bits.ReverseBytes32(uint32((low + seeds[3]) % hashMod)))

	key := high<<32 + low

	return fmt.Sprintf("%016x%016x",
		binary.BigEndian.Uint64(sum[0:8])^key,
		binary.BigEndian.Uint64(sum[8:16])^key)
}
