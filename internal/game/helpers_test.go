package game

import (
	"fmt"
	"strings"
	"testing"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"
)

func newTestRoom(t *testing.T, names ...string) (*Room, *quartz.Mock) {
	t.Helper()
	clock := quartz.NewMock(t)
	seq := 0
	r := NewRoom("TEST01", DefaultRules(),
		WithSeed(42),
		WithClock(clock),
		WithIDGenerator(func() PlayerID {
			seq++
			return PlayerID(fmt.Sprintf("p%d", seq))
		}),
	)
	for _, name := range names {
		_, _, err := r.AddPlayer(name, "conn-"+name)
		require.NoError(t, err)
	}
	return r, clock
}

func startedRoom(t *testing.T, names ...string) *Room {
	t.Helper()
	r, _ := newTestRoom(t, names...)
	require.NoError(t, r.Start(r.AdminID))
	return r
}

func playerNamed(t *testing.T, r *Room, name string) *Player {
	t.Helper()
	p, ok := r.PlayerByName(name)
	require.True(t, ok, "player %s", name)
	return p
}

// passToCheckpoint passes turns until the room waits for the admin.
func passToCheckpoint(t *testing.T, r *Room) {
	t.Helper()
	for i := 0; !r.AwaitingAdminDecision; i++ {
		require.Less(t, i, 1000, "checkpoint never reached")
		require.NoError(t, r.Pass(r.CurrentPlayer().ID))
	}
}

func priceCard(id int, code string, change int) Card {
	return Card{ID: id, Kind: PriceCard, Instrument: code, Change: change}
}

func windfallCard(id int, kind Windfall) Card {
	return Card{ID: id, Kind: WindfallCard, Windfall: kind}
}

func countActivity(r *Room, substr string) int {
	n := 0
	for _, e := range r.Activity {
		if strings.Contains(e.Message, substr) {
			n++
		}
	}
	return n
}
