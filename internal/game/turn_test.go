package game

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinRules(t *testing.T) {
	r, _ := newTestRoom(t, "alice")
	alice := playerNamed(t, r, "alice")
	assert.Equal(t, alice.ID, r.AdminID)
	assert.Equal(t, "conn-alice", r.AdminConn)

	_, first, err := r.AddPlayer("bob", "conn-bob")
	require.NoError(t, err)
	assert.False(t, first)

	_, _, err = r.AddPlayer("  ALICE ", "conn-x")
	assert.ErrorIs(t, err, ErrNameTaken)
	_, _, err = r.AddPlayer("   ", "conn-x")
	assert.ErrorIs(t, err, ErrInvalidName)

	for i := len(r.Players); i < r.Rules.MaxPlayers; i++ {
		_, _, err := r.AddPlayer(fmt.Sprintf("player%d", i), "")
		require.NoError(t, err)
	}
	_, _, err = r.AddPlayer("latecomer", "")
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestStartGame(t *testing.T) {
	r, _ := newTestRoom(t, "alice")
	admin := r.AdminID
	assert.ErrorIs(t, r.Start(admin), ErrNotEnoughPlayers)

	bob, _, err := r.AddPlayer("bob", "conn-bob")
	require.NoError(t, err)
	assert.ErrorIs(t, r.Start(bob.ID), ErrNotAdmin)
	assert.ErrorIs(t, r.Buy(admin, "ATLS", 1000), ErrGameNotStarted)

	require.NoError(t, r.Start(admin))
	assert.Equal(t, PhaseActive, r.Phase())
	assert.Equal(t, 1, r.Period)
	assert.Equal(t, 1, r.RoundInPeriod)
	assert.Equal(t, admin, r.CurrentPlayer().ID)
	for _, p := range r.Players {
		assert.Len(t, p.Hand, r.Rules.HandSize)
		assert.Equal(t, r.Rules.TransactionsPerRound, p.TransactionsRemaining)
	}

	assert.ErrorIs(t, r.Start(admin), ErrGameAlreadyStarted)
	_, _, err = r.AddPlayer("carol", "conn-carol")
	assert.ErrorIs(t, err, ErrGameAlreadyStarted)
}

func TestTurnCycle(t *testing.T) {
	r := startedRoom(t, "alice", "bob", "carol")
	alice := playerNamed(t, r, "alice")
	bob := playerNamed(t, r, "bob")

	assert.ErrorIs(t, r.Pass(bob.ID), ErrNotYourTurn)

	seen := map[int]bool{}
	for range r.Players {
		seen[r.CurrentTurn] = true
		require.NoError(t, r.EndTurn(r.CurrentPlayer().ID))
	}
	assert.Len(t, seen, 3)
	assert.Equal(t, 2, r.RoundInPeriod)
	assert.Equal(t, 0, r.CurrentTurn)
	for _, p := range r.Players {
		assert.Equal(t, r.Rules.TransactionsPerRound, p.TransactionsRemaining, p.Name)
	}

	require.NoError(t, r.Pass(alice.ID))
	assert.Equal(t, r.Rules.TransactionsPerRound-1, alice.TransactionsRemaining)
	bob.TransactionsRemaining = 0
	require.NoError(t, r.Pass(bob.ID))
	assert.Equal(t, 0, bob.TransactionsRemaining)

	passToCheckpoint(t, r)
	assert.Equal(t, PhaseAwaitingAdmin, r.Phase())
	assert.Equal(t, r.Rules.MaxRoundsPerPeriod, r.RoundInPeriod)
	assert.ErrorIs(t, r.Pass(r.CurrentPlayer().ID), ErrAwaitingAdminDecision)
	assert.ErrorIs(t, r.Buy(r.CurrentPlayer().ID, "ATLS", 1000), ErrAwaitingAdminDecision)
}

func TestAdminDecisionOrdering(t *testing.T) {
	r := startedRoom(t, "alice", "bob", "carol")
	admin := r.AdminID
	bob := playerNamed(t, r, "bob")

	_, err := r.ResolvePrices(admin)
	assert.ErrorIs(t, err, ErrNotAwaitingDecision)

	passToCheckpoint(t, r)
	_, err = r.ResolvePrices(bob.ID)
	assert.ErrorIs(t, err, ErrNotAdmin)
	assert.ErrorIs(t, r.AdvancePeriod(admin), ErrPricesNotResolved)

	_, err = r.ResolvePrices(admin)
	require.NoError(t, err)
	assert.True(t, r.AwaitingAdminDecision)
	assert.True(t, r.PricesResolvedThisCycle)
	_, err = r.ResolvePrices(admin)
	assert.ErrorIs(t, err, ErrPricesAlreadyResolved)

	require.NoError(t, r.AdvancePeriod(admin))
	assert.Equal(t, 2, r.Period)
	assert.Equal(t, 1, r.RoundInPeriod)
	assert.False(t, r.AwaitingAdminDecision)
	assert.False(t, r.PricesResolvedThisCycle)
	assert.Equal(t, bob.ID, r.CurrentPlayer().ID, "period 2 opens with the second seat")
	for _, p := range r.Players {
		require.Len(t, p.Hand, r.Rules.HandSize)
		for _, c := range p.Hand {
			assert.False(t, c.Played)
		}
	}

	for range r.Players {
		require.NoError(t, r.Pass(r.CurrentPlayer().ID))
	}
	assert.Equal(t, 2, r.RoundInPeriod)
	assert.Equal(t, bob.ID, r.CurrentPlayer().ID)
}

func TestResolveAndAdvance(t *testing.T) {
	r := startedRoom(t, "alice", "bob")
	passToCheckpoint(t, r)

	res, err := r.ResolveAndAdvance(r.AdminID)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 2, r.Period)
	assert.Len(t, r.PriceLog, 1)

	passToCheckpoint(t, r)
	_, err = r.ResolvePrices(r.AdminID)
	require.NoError(t, err)
	res, err = r.ResolveAndAdvance(r.AdminID)
	require.NoError(t, err)
	assert.Nil(t, res, "already resolved prices are not resolved again")
	assert.Equal(t, 3, r.Period)
	assert.Len(t, r.PriceLog, 2)
}

func TestKickPlayer(t *testing.T) {
	r := startedRoom(t, "alice", "bob", "carol", "dave")
	admin := r.AdminID
	bob := playerNamed(t, r, "bob")
	carol := playerNamed(t, r, "carol")

	require.NoError(t, r.Pass(admin))
	require.NoError(t, r.Pass(bob.ID))
	require.Equal(t, carol.ID, r.CurrentPlayer().ID)

	_, err := r.KickPlayer(bob.ID, "dave")
	assert.ErrorIs(t, err, ErrNotAdmin)
	_, err = r.KickPlayer(admin, "alice")
	assert.ErrorIs(t, err, ErrCannotKickSelf)
	_, err = r.KickPlayer(admin, "nobody")
	assert.ErrorIs(t, err, ErrPlayerNotFound)

	kicked, err := r.KickPlayer(admin, "bob")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, kicked.ID)
	assert.Equal(t, carol.ID, r.CurrentPlayer().ID, "seat before the turn holder leaves")

	_, err = r.KickPlayer(admin, "carol")
	require.NoError(t, err)
	assert.Equal(t, "dave", r.CurrentPlayer().Name, "turn passes to the next seat")
	assert.Len(t, r.Players, 2)
}

func TestKickingLastSeatOfRoundCompletesIt(t *testing.T) {
	r := startedRoom(t, "alice", "bob", "carol")
	alice := playerNamed(t, r, "alice")
	bob := playerNamed(t, r, "bob")

	require.NoError(t, r.Pass(alice.ID))
	require.NoError(t, r.Pass(bob.ID))
	r.RightsOffers["ATLS"] = &RightsOffer{Instrument: "ATLS", Originator: alice.ID, ExercisedBy: map[PlayerID]int{}}

	_, err := r.KickPlayer(r.AdminID, "carol")
	require.NoError(t, err)
	assert.Equal(t, 2, r.RoundInPeriod)
	assert.Equal(t, alice.ID, r.CurrentPlayer().ID)
	assert.Equal(t, r.Rules.TransactionsPerRound, alice.TransactionsRemaining)
	assert.Empty(t, r.RightsOffers)
}

func TestKickKeepsRoundOpener(t *testing.T) {
	r := startedRoom(t, "alice", "bob", "carol", "dave")
	admin := r.AdminID
	for range 2 {
		passToCheckpoint(t, r)
		_, err := r.ResolvePrices(admin)
		require.NoError(t, err)
		require.NoError(t, r.AdvancePeriod(admin))
	}
	require.Equal(t, 3, r.Period)
	require.Equal(t, "carol", r.CurrentPlayer().Name)

	require.NoError(t, r.Pass(r.CurrentPlayer().ID))
	_, err := r.KickPlayer(admin, "bob")
	require.NoError(t, err)
	assert.Equal(t, "carol", r.Players[r.Opener].Name)

	require.NoError(t, r.Pass(playerNamed(t, r, "dave").ID))
	require.NoError(t, r.Pass(admin))
	assert.Equal(t, 2, r.RoundInPeriod, "carol opens round 2 instead of playing twice")
	assert.Equal(t, "carol", r.CurrentPlayer().Name)
}

func TestKickingOpenerOnTurnContinuesRound(t *testing.T) {
	r := startedRoom(t, "alice", "bob", "carol")
	admin := r.AdminID
	passToCheckpoint(t, r)
	_, err := r.ResolvePrices(admin)
	require.NoError(t, err)
	require.NoError(t, r.AdvancePeriod(admin))
	require.Equal(t, "bob", r.CurrentPlayer().Name)

	_, err = r.KickPlayer(admin, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, r.RoundInPeriod)
	assert.Equal(t, "carol", r.CurrentPlayer().Name)

	require.NoError(t, r.Pass(playerNamed(t, r, "carol").ID))
	assert.Equal(t, 1, r.RoundInPeriod)
	require.NoError(t, r.Pass(admin))
	assert.Equal(t, 2, r.RoundInPeriod)
	assert.Equal(t, "carol", r.CurrentPlayer().Name)
}

func TestKickDropsStatuses(t *testing.T) {
	r := startedRoom(t, "alice", "bob")
	bob := playerNamed(t, r, "bob")
	bob.Portfolio["ATLS"] = 120_000
	r.refreshStatus(bob, "ATLS")
	require.True(t, r.hasChairman("ATLS"))

	_, err := r.KickPlayer(r.AdminID, "bob")
	require.NoError(t, err)
	assert.False(t, r.hasChairman("ATLS"))
	assert.Empty(t, r.Presidents["ATLS"])
}

func TestTransferAdminAndRebind(t *testing.T) {
	r := startedRoom(t, "alice", "bob")
	alice := playerNamed(t, r, "alice")
	bob := playerNamed(t, r, "bob")

	_, err := r.Rebind("alice", "conn-alice-2", true)
	require.NoError(t, err)
	assert.Equal(t, "conn-alice-2", r.AdminConn)

	assert.ErrorIs(t, r.TransferAdmin(bob.ID, "alice"), ErrNotAdmin)
	require.NoError(t, r.TransferAdmin(alice.ID, "bob"))
	assert.Equal(t, bob.ID, r.AdminID)
	assert.Equal(t, "conn-bob", r.AdminConn)

	_, err = r.Rebind("alice", "conn-alice-3", true)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, r.AdminID)
	assert.Equal(t, "conn-bob", r.AdminConn)
	assert.Equal(t, "conn-alice-3", alice.ConnID)

	_, err = r.Rebind("bob", "conn-bob-2", false)
	require.NoError(t, err)
	assert.Equal(t, "conn-bob", r.AdminConn, "only the original admin's handle follows a rejoin")
}

func TestDetachKeepsState(t *testing.T) {
	r := startedRoom(t, "alice", "bob")
	alice := playerNamed(t, r, "alice")
	cash := alice.Cash

	p, ok := r.Detach("conn-alice")
	require.True(t, ok)
	assert.Equal(t, alice, p)
	assert.False(t, alice.Connected())
	assert.Equal(t, cash, alice.Cash)
	assert.Equal(t, alice.ID, r.CurrentPlayer().ID)

	_, ok = r.Detach("conn-alice")
	assert.False(t, ok)
}

func TestEndGame(t *testing.T) {
	r := startedRoom(t, "alice", "bob", "carol")
	admin := r.AdminID
	bob := playerNamed(t, r, "bob")

	require.NoError(t, r.Buy(admin, "CRWN", 1000))
	require.NoError(t, r.Pass(admin))
	require.NoError(t, r.ShortInitiate(bob.ID, "CRWN", 1000))
	r.Prices["CRWN"] = 50

	_, err := r.EndGame(bob.ID)
	assert.ErrorIs(t, err, ErrNotAdmin)

	s, err := r.EndGame(admin)
	require.NoError(t, err)
	assert.True(t, r.Ended)
	assert.Equal(t, PhaseEnded, r.Phase())
	assert.Empty(t, bob.Shorts)
	assert.Equal(t, 590_000, bob.Cash)

	require.Len(t, s.Standings, 3)
	assert.Equal(t, "alice", s.Standings[0].Name)
	assert.Equal(t, 610_000, s.Standings[0].Worth)
	assert.Equal(t, 1, s.Standings[0].Rank)
	assert.Equal(t, "carol", s.Standings[1].Name)
	assert.Equal(t, 2, s.Standings[1].Rank)
	assert.Equal(t, 3, s.Standings[2].Rank)
	assert.Equal(t, 50, s.FinalPrices["CRWN"])

	_, err = r.EndGame(admin)
	assert.ErrorIs(t, err, ErrGameAlreadyEnded)
	assert.ErrorIs(t, r.Pass(admin), ErrGameAlreadyEnded)
	_, err = r.Rebind("bob", "conn-bob-2", false)
	assert.NoError(t, err)
}

func TestEndGameTiesShareRank(t *testing.T) {
	r, _ := newTestRoom(t, "alice", "bob")
	s, err := r.EndGame(r.AdminID)
	require.NoError(t, err)
	require.Len(t, s.Standings, 2)
	assert.Equal(t, 1, s.Standings[0].Rank)
	assert.Equal(t, 1, s.Standings[1].Rank)
}
