package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock stamps ProcessedAt. Tests freeze it with SetClock so serialized
// records are byte-for-byte reproducible.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used by Parameterize. Pass nil to reset to
// real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Now returns the current time of the active clock.
func Now() time.Time {
	return clock.Now()
}
