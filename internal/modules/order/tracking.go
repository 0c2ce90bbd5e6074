// README: Human-readable tracking code generation.
package order

import "crypto/rand"

const (
	trackingLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	trackingDigits  = "0123456789"
)

// NewTrackingCode returns a code of two uppercase letters followed by five
// digits, e.g. "QT40917". The generator does not guarantee uniqueness; the
// orders table enforces it with a unique constraint, and creation retries
// on collision.
func NewTrackingCode() string {
	var b [7]byte
	_, _ = rand.Read(b[:])
	out := make([]byte, 7)
	out[0] = trackingLetters[int(b[0])%len(trackingLetters)]
	out[1] = trackingLetters[int(b[1])%len(trackingLetters)]
	for i := 2; i < 7; i++ {
		out[i] = trackingDigits[int(b[i])%len(trackingDigits)]
	}
	return string(out)
}
