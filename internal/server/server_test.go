package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/example/stock-exchange/internal/game"
)

func TestJoinAnnouncesToRoom(t *testing.T) {
	gs, _, _ := newTestServer(t)
	alice := connect(gs, "conn-alice")
	send(t, gs, alice, MsgCreateRoom, "", nil)
	var created roomCreatedPayload
	lastOf(t, alice.drain(t), EventRoomCreated, &created)
	require.Len(t, created.RoomCode, codeLength)

	send(t, gs, alice, MsgJoinRoom, created.RoomCode, joinPayload{DisplayName: "alice"})
	frames := alice.drain(t)
	var joined joinedPayload
	lastOf(t, frames, EventJoinedRoom, &joined)
	assert.Equal(t, created.RoomCode, joined.RoomCode)
	assert.True(t, joined.IsFirstPlayer)
	assert.True(t, joined.IsAdmin)
	assert.NotEmpty(t, joined.Token)
	assert.Subset(t, typesOf(frames), []string{EventPlayerList, EventGameState, EventActivityLog})

	bob := connect(gs, "conn-bob")
	send(t, gs, bob, MsgJoinRoom, strings.ToLower(created.RoomCode), joinPayload{DisplayName: "bob"})
	lastOf(t, bob.drain(t), EventJoinedRoom, &joined)
	assert.False(t, joined.IsFirstPlayer)
	assert.False(t, joined.IsAdmin)

	frames = alice.drain(t)
	var list playerListPayload
	lastOf(t, frames, EventPlayerList, &list)
	require.Len(t, list.Players, 2)
	assert.Equal(t, "bob", list.Players[1].Name)
	var activity activityPayload
	lastOf(t, frames, EventActivityLog, &activity)
	require.Len(t, activity.Entries, 1)
	assert.Equal(t, "bob joined the room", activity.Entries[0].Message)

	carol := connect(gs, "conn-carol")
	send(t, gs, carol, MsgJoinRoom, created.RoomCode, joinPayload{DisplayName: "ALICE"})
	expectError(t, carol, "name_taken")
	send(t, gs, carol, MsgJoinRoom, "NOPE99", joinPayload{DisplayName: "carol"})
	expectError(t, carol, "room_not_found")
	assert.Empty(t, alice.drain(t))
}

func TestRejectionOnlyReachesSender(t *testing.T) {
	gs, _, _ := newTestServer(t)
	code, conns, _ := seatRoom(t, gs, "alice", "bob")
	alice, bob := conns[0], conns[1]

	send(t, gs, alice, MsgStartGame, code, nil)
	frames := alice.drain(t)
	var deal dealCardsPayload
	lastOf(t, frames, EventDealCards, &deal)
	assert.Equal(t, 1, deal.Period)
	assert.Len(t, deal.Hand, game.DefaultRules().HandSize)
	var st game.GameState
	lastOf(t, frames, EventGameState, &st)
	assert.True(t, st.IsYourTurn)
	assert.True(t, st.IsAdmin)
	assert.Equal(t, game.PhaseActive, st.Room.Phase)
	lastOf(t, bob.drain(t), EventDealCards, &deal)

	send(t, gs, bob, MsgBuy, code, game.Buy{Instrument: "ATLS", Quantity: 1000})
	expectError(t, bob, "not_your_turn")
	assert.Empty(t, alice.drain(t))

	send(t, gs, alice, MsgBuy, code, game.Buy{Instrument: "ATLS", Quantity: 1000})
	lastOf(t, bob.drain(t), EventGameState, &st)
	assert.Equal(t, 1000, st.Room.Players[0].Portfolio["ATLS"])
	assert.Equal(t, "bob", st.You.Name)
	assert.False(t, st.IsYourTurn)
}

func TestMalformedMessages(t *testing.T) {
	gs, _, _ := newTestServer(t)
	c := connect(gs, "conn-x")

	gs.HandleMessage(c, []byte("{"))
	expectError(t, c, "bad_request")
	send(t, gs, c, "teleport", "", nil)
	expectError(t, c, "unknown_command")
	send(t, gs, c, MsgBuy, "", "not an object")
	expectError(t, c, "bad_request")
	send(t, gs, c, MsgPass, "", nil)
	expectError(t, c, "not_in_room")
}

func TestCommandForAnotherRoom(t *testing.T) {
	gs, _, _ := newTestServer(t)
	_, conns, _ := seatRoom(t, gs, "alice", "bob")
	other := gs.CreateRoom()

	send(t, gs, conns[0], MsgStartGame, other, nil)
	expectError(t, conns[0], "not_in_room")
	assert.False(t, gs.getRoom(other).game.Started)
}

func TestRejoinRestoresSeat(t *testing.T) {
	gs, _, _ := newTestServer(t)
	code, conns, tokens := seatRoom(t, gs, "alice", "bob")
	alice, bob := conns[0], conns[1]
	send(t, gs, alice, MsgStartGame, code, nil)
	alice.drain(t)
	bob.drain(t)

	gs.Disconnect(alice)
	var list playerListPayload
	lastOf(t, bob.drain(t), EventPlayerList, &list)
	assert.False(t, list.Players[0].Connected)
	assert.True(t, list.Players[1].Connected)

	alice2 := connect(gs, "conn-alice-2")
	send(t, gs, alice2, MsgRejoinWithToken, "", rejoinPayload{Token: tokens[0]})
	frames := alice2.drain(t)
	var rejoined rejoinedPayload
	lastOf(t, frames, EventRejoinedRoom, &rejoined)
	assert.Equal(t, code, rejoined.RoomCode)
	assert.Equal(t, "alice", rejoined.DisplayName)
	assert.True(t, rejoined.IsAdmin)

	var full activityPayload
	lastOf(t, frames, EventActivityLog, &full)
	assert.True(t, full.Full)
	assert.Equal(t, "alice joined the room", full.Entries[0].Message)
	assert.Contains(t, full.Entries[len(full.Entries)-1].Message, "alice reconnected")

	var st game.GameState
	lastOf(t, frames, EventGameState, &st)
	assert.Equal(t, "alice", st.You.Name)
	assert.Len(t, st.You.Hand, game.DefaultRules().HandSize)
	assert.True(t, st.IsYourTurn)
	assert.Equal(t, "conn-alice-2", gs.getRoom(code).game.AdminConn)

	send(t, gs, alice2, MsgPass, code, nil)
	lastOf(t, bob.drain(t), EventGameState, &st)
	assert.True(t, st.IsYourTurn)

	send(t, gs, alice2, MsgRejoinWithToken, "", rejoinPayload{Token: "garbage"})
	expectError(t, alice2, "invalid_session_token")
}

func TestRejoinAfterAdminTransfer(t *testing.T) {
	gs, _, _ := newTestServer(t)
	code, conns, tokens := seatRoom(t, gs, "alice", "bob")
	alice := conns[0]

	send(t, gs, alice, MsgTransferAdmin, code, game.TransferAdmin{DisplayName: "bob"})
	var st game.GameState
	lastOf(t, conns[1].drain(t), EventGameState, &st)
	assert.True(t, st.IsAdmin)

	gs.Disconnect(alice)
	alice2 := connect(gs, "conn-alice-2")
	send(t, gs, alice2, MsgRejoinWithToken, "", rejoinPayload{Token: tokens[0]})
	var rejoined rejoinedPayload
	lastOf(t, alice2.drain(t), EventRejoinedRoom, &rejoined)
	assert.False(t, rejoined.IsAdmin)

	room := gs.getRoom(code).game
	bob, _ := room.PlayerByName("bob")
	assert.Equal(t, bob.ID, room.AdminID)
	assert.Equal(t, "conn-bob", room.AdminConn)
}

func TestRejoinSupersedesLiveConnection(t *testing.T) {
	gs, _, _ := newTestServer(t)
	code, conns, tokens := seatRoom(t, gs, "alice", "bob")
	alice := conns[0]

	alice2 := connect(gs, "conn-alice-2")
	send(t, gs, alice2, MsgRejoinWithToken, "", rejoinPayload{Token: tokens[0]})
	var info infoPayload
	lastOf(t, alice.drain(t), EventInfo, &info)
	assert.Contains(t, info.Message, "another connection")

	send(t, gs, alice, MsgStartGame, code, nil)
	expectError(t, alice, "not_in_room")
	send(t, gs, alice2, MsgStartGame, code, nil)
	assert.Contains(t, typesOf(alice2.drain(t)), EventDealCards)
}

func TestKickRevokesSession(t *testing.T) {
	gs, _, _ := newTestServer(t)
	code, conns, tokens := seatRoom(t, gs, "alice", "bob", "carol")
	alice, bob, carol := conns[0], conns[1], conns[2]

	send(t, gs, bob, MsgKickPlayer, code, game.KickPlayer{DisplayName: "carol"})
	expectError(t, bob, "not_admin")

	send(t, gs, alice, MsgKickPlayer, code, game.KickPlayer{DisplayName: "bob"})
	var kicked kickedPayload
	lastOf(t, bob.drain(t), EventKicked, &kicked)
	assert.Equal(t, code, kicked.RoomCode)

	var list playerListPayload
	lastOf(t, carol.drain(t), EventPlayerList, &list)
	assert.Len(t, list.Players, 2)

	send(t, gs, bob, MsgStartGame, code, nil)
	expectError(t, bob, "not_in_room")

	bob2 := connect(gs, "conn-bob-2")
	send(t, gs, bob2, MsgRejoinWithToken, "", rejoinPayload{Token: tokens[1]})
	expectError(t, bob2, "invalid_session_token")
}

func TestEndGameRecordsSummary(t *testing.T) {
	gs, _, sink := newTestServer(t)
	code, conns, _ := seatRoom(t, gs, "alice", "bob")
	alice, bob := conns[0], conns[1]
	send(t, gs, alice, MsgStartGame, code, nil)
	send(t, gs, alice, MsgBuy, code, game.Buy{Instrument: "EMRL", Quantity: 2000})
	alice.drain(t)
	bob.drain(t)

	send(t, gs, alice, MsgEndGame, code, nil)
	for _, c := range conns {
		var s summaryPayload
		lastOf(t, c.drain(t), EventGameSummary, &s)
		require.NotNil(t, s.Summary)
		require.Len(t, s.Summary.Standings, 2)
		assert.Equal(t, code, s.Summary.RoomCode)
	}

	games := sink.Games()
	require.Len(t, games, 1)
	assert.Equal(t, code, games[0].RoomCode)

	send(t, gs, bob, MsgPass, code, nil)
	expectError(t, bob, "game_already_ended")
}

func TestAdminResolveThenAdvance(t *testing.T) {
	gs, _, _ := newTestServer(t)
	code, conns, _ := seatRoom(t, gs, "alice", "bob")
	alice, bob := conns[0], conns[1]
	send(t, gs, alice, MsgStartGame, code, nil)

	send(t, gs, alice, MsgAdvancePeriod, code, nil)
	expectError(t, alice, "prices_not_resolved")
	send(t, gs, alice, MsgResolvePrices, code, nil)
	expectError(t, alice, "not_awaiting_decision")

	room := gs.getRoom(code).game
	for i := 0; !room.AwaitingAdminDecision; i++ {
		require.Less(t, i, 100)
		if room.CurrentPlayer().Name == "alice" {
			send(t, gs, alice, MsgPass, code, nil)
		} else {
			send(t, gs, bob, MsgPass, code, nil)
		}
	}
	alice.drain(t)
	bob.drain(t)

	send(t, gs, bob, MsgResolvePrices, code, nil)
	expectError(t, bob, "not_admin")

	send(t, gs, alice, MsgResolvePrices, code, nil)
	var st game.GameState
	lastOf(t, bob.drain(t), EventGameState, &st)
	assert.True(t, st.Room.PricesResolvedThisCycle)
	assert.Len(t, st.Room.PriceLog, 1)

	send(t, gs, alice, MsgAdvancePeriod, code, nil)
	frames := bob.drain(t)
	var deal dealCardsPayload
	lastOf(t, frames, EventDealCards, &deal)
	assert.Equal(t, 2, deal.Period)
	lastOf(t, frames, EventGameState, &st)
	assert.True(t, st.IsYourTurn, "period 2 opens with the second seat")
}

func TestExpireIdleRooms(t *testing.T) {
	gs, clock, _ := newTestServer(t)
	ctx := context.Background()
	code, conns, tokens := seatRoom(t, gs, "alice", "bob")
	clock.Advance(50 * time.Minute).MustWait(ctx)
	fresh := gs.CreateRoom()
	clock.Advance(20 * time.Minute).MustWait(ctx)

	assert.Empty(t, gs.ExpireIdleRooms(0))

	expired := gs.ExpireIdleRooms(time.Hour)
	assert.Equal(t, []string{code}, expired)
	assert.Nil(t, gs.getRoom(code))
	assert.NotNil(t, gs.getRoom(fresh))

	var info infoPayload
	lastOf(t, conns[0].drain(t), EventInfo, &info)
	assert.Contains(t, info.Message, code)

	send(t, gs, conns[0], MsgPass, code, nil)
	expectError(t, conns[0], "not_in_room")
	send(t, gs, conns[1], MsgRejoinWithToken, "", rejoinPayload{Token: tokens[1]})
	expectError(t, conns[1], "invalid_session_token")
}

func TestCommandsKeepSessionsAlive(t *testing.T) {
	gs, clock, _ := newTestServer(t)
	ctx := context.Background()
	code, conns, tokens := seatRoom(t, gs, "alice", "bob")
	send(t, gs, conns[0], MsgStartGame, code, nil)

	for i := range 4 {
		clock.Advance(40 * time.Minute).MustWait(ctx)
		send(t, gs, conns[i%2], MsgPass, code, nil)
	}
	assert.Zero(t, gs.sessions.ExpireIdle(time.Hour))

	alice2 := connect(gs, "conn-alice-2")
	send(t, gs, alice2, MsgRejoinWithToken, "", rejoinPayload{Token: tokens[0]})
	var rejoined rejoinedPayload
	lastOf(t, alice2.drain(t), EventRejoinedRoom, &rejoined)
	assert.Equal(t, code, rejoined.RoomCode)
}

func TestDefaultSessionRegistry(t *testing.T) {
	gs, err := NewGameServer(Options{Rules: game.DefaultRules(), Logger: discardLogger()})
	require.NoError(t, err)
	code, _, tokens := seatRoom(t, gs, "alice")
	require.NotEmpty(t, tokens[0])

	again := connect(gs, "conn-alice-2")
	send(t, gs, again, MsgRejoinWithToken, "", rejoinPayload{Token: tokens[0]})
	var rejoined rejoinedPayload
	lastOf(t, again.drain(t), EventRejoinedRoom, &rejoined)
	assert.Equal(t, code, rejoined.RoomCode)
}

func TestConcurrentCommandsAreSerialized(t *testing.T) {
	gs, _ := newServerWithClock(t, quartz.NewReal())
	code, conns, tokens := seatRoom(t, gs, "alice", "bob", "carol")
	send(t, gs, conns[0], MsgStartGame, code, nil)

	var stops []func()
	for _, c := range conns {
		stops = append(stops, c.drainInBackground())
	}

	encode := func(typ string, payload interface{}) []byte {
		msg := map[string]interface{}{"type": typ, "roomCode": code}
		if payload != nil {
			msg["payload"] = payload
		}
		data, err := json.Marshal(msg)
		require.NoError(t, err)
		return data
	}
	buy := encode(MsgBuy, game.Buy{Instrument: "CRWN", Quantity: 1000})
	sell := encode(MsgSell, game.Sell{Instrument: "CRWN", Quantity: 1000})
	pass := encode(MsgPass, nil)
	rejoin := encode(MsgRejoinWithToken, rejoinPayload{Token: tokens[1]})

	var grp errgroup.Group
	for _, c := range conns {
		grp.Go(func() error {
			for range 40 {
				gs.HandleMessage(c, buy)
				gs.HandleMessage(c, sell)
				gs.HandleMessage(c, pass)
			}
			return nil
		})
	}
	grp.Go(func() error {
		for i := range 20 {
			c := &discardConn{id: fmt.Sprintf("conn-bob-%d", i)}
			gs.Connect(c)
			gs.HandleMessage(c, rejoin)
		}
		return nil
	})
	require.NoError(t, grp.Wait())
	for _, stop := range stops {
		stop()
	}

	entry := gs.getRoom(code)
	require.NotNil(t, entry)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	room := entry.game
	require.Len(t, room.Players, 3)
	require.NotNil(t, room.CurrentPlayer())
	assert.Less(t, room.CurrentTurn, len(room.Players))
	for _, p := range room.Players {
		assert.GreaterOrEqual(t, p.Cash, 0, p.Name)
		assert.GreaterOrEqual(t, p.TransactionsRemaining, 0, p.Name)
		assert.LessOrEqual(t, p.TransactionsRemaining, room.Rules.TransactionsPerRound, p.Name)
		assert.Equal(t, room.Rules.StartingCash, p.Worth(room.Prices), "%s traded at a constant price", p.Name)
	}

	bob, ok := room.PlayerByName("bob")
	require.True(t, ok)
	assert.Equal(t, "conn-bob-19", bob.ConnID)
	assert.Equal(t, code, gs.roomOf(bob.ConnID))
	assert.Empty(t, gs.roomOf("conn-bob"))
}
