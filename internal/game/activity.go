package game

import (
	"fmt"
	"time"
)

// ActivityEntry is one line of the room's human-readable event feed.
type ActivityEntry struct {
	Seq     int       `json:"seq"`
	Period  int       `json:"period"`
	Round   int       `json:"round"`
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

func (r *Room) logf(format string, args ...any) {
	r.Activity = append(r.Activity, ActivityEntry{
		Seq:     len(r.Activity) + 1,
		Period:  r.Period,
		Round:   r.RoundInPeriod,
		At:      r.clock.Now(),
		Message: fmt.Sprintf(format, args...),
	})
}

// ActivitySince returns a copy of every entry with Seq greater than seq.
func (r *Room) ActivitySince(seq int) []ActivityEntry {
	if seq < 0 {
		seq = 0
	}
	if seq >= len(r.Activity) {
		return nil
	}
	out := make([]ActivityEntry, len(r.Activity)-seq)
	copy(out, r.Activity[seq:])
	return out
}
