package messenger

import "time"

// SetNegativeWindow shortens the negative-ack failure window so tests do not
// sit out the real one. It returns a func restoring the previous value.
func SetNegativeWindow(d time.Duration) (restore func()) {
	previous := negativeWindow
	negativeWindow = d

	return func() { negativeWindow = previous }
}
