package server

import (
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"

	"github.com/example/stock-exchange/internal/auth"
	"github.com/example/stock-exchange/internal/game"
	"github.com/example/stock-exchange/internal/session"
	"github.com/example/stock-exchange/internal/stats"
)

func discardLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func newServerWithClock(t *testing.T, clock quartz.Clock) (*GameServer, *stats.MemorySink) {
	t.Helper()
	signer, err := auth.NewSigner("server-test-secret-0123456789")
	require.NoError(t, err)
	sink := &stats.MemorySink{}
	gs, err := NewGameServer(Options{
		Rules:       game.DefaultRules(),
		Sessions:    session.NewRegistry(signer, clock, discardLogger()),
		Stats:       sink,
		Clock:       clock,
		Logger:      discardLogger(),
		RoomOptions: []game.Option{game.WithSeed(7)},
	})
	require.NoError(t, err)
	return gs, sink
}

func newTestServer(t *testing.T) (*GameServer, *quartz.Mock, *stats.MemorySink) {
	t.Helper()
	clock := quartz.NewMock(t)
	gs, sink := newServerWithClock(t, clock)
	return gs, clock, sink
}

// fakeConn records every frame sent to it.
type fakeConn struct {
	id     string
	frames chan []byte
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(data []byte) error {
	f.frames <- data
	return nil
}

func (f *fakeConn) Close() error { return nil }

// discardConn drops everything sent to it.
type discardConn struct{ id string }

func (d *discardConn) ID() string { return d.id }

func (d *discardConn) Send([]byte) error { return nil }

func (d *discardConn) Close() error { return nil }

// drainInBackground empties c until the returned stop func is called.
func (f *fakeConn) drainInBackground() (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-f.frames:
			case <-done:
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func connect(gs *GameServer, id string) *fakeConn {
	c := &fakeConn{id: id, frames: make(chan []byte, 1024)}
	gs.Connect(c)
	return c
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// drain returns every frame queued so far.
func (f *fakeConn) drain(t *testing.T) []frame {
	t.Helper()
	var out []frame
	for {
		select {
		case data := <-f.frames:
			var fr frame
			require.NoError(t, json.Unmarshal(data, &fr))
			out = append(out, fr)
		default:
			return out
		}
	}
}

func typesOf(frames []frame) []string {
	out := make([]string, 0, len(frames))
	for _, fr := range frames {
		out = append(out, fr.Type)
	}
	return out
}

// lastOf decodes the last frame of type typ into v.
func lastOf(t *testing.T, frames []frame, typ string, v interface{}) {
	t.Helper()
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].Type == typ {
			require.NoError(t, json.Unmarshal(frames[i].Payload, v))
			return
		}
	}
	require.Failf(t, "missing frame", "no %s frame in %v", typ, typesOf(frames))
}

func expectError(t *testing.T, c *fakeConn, code string) {
	t.Helper()
	var e errorPayload
	lastOf(t, c.drain(t), EventError, &e)
	require.Equal(t, code, e.Code, e.Message)
}

func send(t *testing.T, gs *GameServer, c *fakeConn, typ, room string, payload interface{}) {
	t.Helper()
	msg := map[string]interface{}{"type": typ}
	if room != "" {
		msg["roomCode"] = room
	}
	if payload != nil {
		msg["payload"] = payload
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	gs.HandleMessage(c, data)
}

// seatRoom creates a room and joins one connection per name, returning the
// room code, the connections and their session tokens in seat order.
func seatRoom(t *testing.T, gs *GameServer, names ...string) (string, []*fakeConn, []string) {
	t.Helper()
	var conns []*fakeConn
	var tokens []string
	for _, name := range names {
		conns = append(conns, connect(gs, "conn-"+name))
	}
	send(t, gs, conns[0], MsgCreateRoom, "", nil)
	var created roomCreatedPayload
	lastOf(t, conns[0].drain(t), EventRoomCreated, &created)

	for i, name := range names {
		send(t, gs, conns[i], MsgJoinRoom, created.RoomCode, joinPayload{DisplayName: name})
		var joined joinedPayload
		lastOf(t, conns[i].drain(t), EventJoinedRoom, &joined)
		tokens = append(tokens, joined.Token)
	}
	for _, c := range conns {
		c.drain(t)
	}
	return created.RoomCode, conns, tokens
}
