package server

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"

	"github.com/example/stock-exchange/internal/game"
	"github.com/example/stock-exchange/internal/session"
	"github.com/example/stock-exchange/internal/stats"
)

const (
	codeChars     = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength    = 6
	recordTimeout = 5 * time.Second
)

// Conn is a participant's transport handle.
type Conn interface {
	ID() string
	Send(data []byte) error
	Close() error
}

type participant struct {
	conn     Conn
	roomCode string
}

type roomEntry struct {
	mu     sync.Mutex
	game   *game.Room
	closed bool
}

type Options struct {
	Rules    game.Rules
	Sessions *session.Registry
	Stats    stats.Sink
	Clock    quartz.Clock
	Logger   *log.Logger
	// AllowedOrigin restricts websocket upgrades; empty or "*" allows any.
	AllowedOrigin string
	// RoomOptions are applied to every room the server creates.
	RoomOptions []game.Option
}

// GameServer owns the room directory and routes participant events to rooms.
// Lock order: roomsMu, then a room's mu, then connsMu or the session registry.
type GameServer struct {
	rooms   map[string]*roomEntry
	roomsMu sync.RWMutex

	conns   map[string]*participant
	connsMu sync.RWMutex

	rules    game.Rules
	roomOpts []game.Option
	sessions *session.Registry
	stats    stats.Sink
	clock    quartz.Clock
	logger   *log.Logger
	upgrader websocket.Upgrader
	newCode  func() string
}

func NewGameServer(opts Options) (*GameServer, error) {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default().WithPrefix("server")
	}
	if opts.Stats == nil {
		opts.Stats = stats.LogSink{Logger: opts.Logger}
	}
	if opts.Sessions == nil {
		reg, err := session.NewEphemeralRegistry(opts.Clock, opts.Logger.WithPrefix("sessions"))
		if err != nil {
			return nil, fmt.Errorf("failed to create session registry: %w", err)
		}
		opts.Sessions = reg
	}
	gs := &GameServer{
		rooms:    make(map[string]*roomEntry),
		conns:    make(map[string]*participant),
		rules:    opts.Rules,
		roomOpts: append([]game.Option{game.WithClock(opts.Clock)}, opts.RoomOptions...),
		sessions: opts.Sessions,
		stats:    opts.Stats,
		clock:    opts.Clock,
		logger:   opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(opts.AllowedOrigin),
		},
		newCode: func() string { return generateCode(codeLength) },
	}
	return gs, nil
}

func checkOrigin(allowed string) func(*http.Request) bool {
	if allowed == "" || allowed == "*" {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == allowed
	}
}

func generateCode(n int) string {
	limit := big.NewInt(int64(len(codeChars)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			panic(fmt.Sprintf("room code: %v", err))
		}
		b[i] = codeChars[idx.Int64()]
	}
	return string(b)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CreateRoom opens an empty lobby and returns its code.
func (gs *GameServer) CreateRoom() string {
	gs.roomsMu.Lock()
	defer gs.roomsMu.Unlock()
	code := gs.newCode()
	for gs.rooms[code] != nil {
		code = gs.newCode()
	}
	gs.rooms[code] = &roomEntry{game: game.NewRoom(code, gs.rules, gs.roomOpts...)}
	gs.logger.Info("Room created", "room", code)
	return code
}

func (gs *GameServer) getRoom(code string) *roomEntry {
	code = normalizeCode(code)
	if code == "" {
		return nil
	}
	gs.roomsMu.RLock()
	defer gs.roomsMu.RUnlock()
	return gs.rooms[code]
}

// Connect registers a transport handle. It is not in any room until it joins.
func (gs *GameServer) Connect(c Conn) {
	gs.connsMu.Lock()
	gs.conns[c.ID()] = &participant{conn: c}
	gs.connsMu.Unlock()
	gs.logger.Debug("Connected", "conn", c.ID())
}

// Disconnect forgets a transport handle. The player it was bound to keeps
// their seat and state until they rejoin with their token.
func (gs *GameServer) Disconnect(c Conn) {
	gs.connsMu.Lock()
	var code string
	if p, ok := gs.conns[c.ID()]; ok {
		code = p.roomCode
		delete(gs.conns, c.ID())
	}
	gs.connsMu.Unlock()
	gs.logger.Debug("Disconnected", "conn", c.ID(), "room", code)
	if code != "" {
		gs.detach(c.ID(), code)
	}
}

func (gs *GameServer) bind(connID, code string) {
	gs.connsMu.Lock()
	defer gs.connsMu.Unlock()
	if p, ok := gs.conns[connID]; ok {
		p.roomCode = code
	}
}

// unbind clears the room a handle is bound to and returns it.
func (gs *GameServer) unbind(connID string) string {
	gs.connsMu.Lock()
	defer gs.connsMu.Unlock()
	p, ok := gs.conns[connID]
	if !ok {
		return ""
	}
	code := p.roomCode
	p.roomCode = ""
	return code
}

func (gs *GameServer) roomOf(connID string) string {
	gs.connsMu.RLock()
	defer gs.connsMu.RUnlock()
	if p, ok := gs.conns[connID]; ok {
		return p.roomCode
	}
	return ""
}

func (gs *GameServer) connFor(connID string) Conn {
	if connID == "" {
		return nil
	}
	gs.connsMu.RLock()
	defer gs.connsMu.RUnlock()
	if p, ok := gs.conns[connID]; ok {
		return p.conn
	}
	return nil
}

// HandleMessage decodes one inbound event from c and applies it.
func (gs *GameServer) HandleMessage(c Conn, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		gs.sendError(c, "bad_request", "malformed message")
		return
	}
	switch msg.Type {
	case MsgCreateRoom:
		code := gs.CreateRoom()
		gs.send(c, EventRoomCreated, roomCreatedPayload{RoomCode: code})
	case MsgJoinRoom:
		var p joinPayload
		if err := json.Unmarshal(orEmpty(msg.Payload), &p); err != nil {
			gs.sendError(c, "bad_request", err.Error())
			return
		}
		gs.join(c, msg.RoomCode, p.DisplayName)
	case MsgRejoinWithToken:
		var p rejoinPayload
		if err := json.Unmarshal(orEmpty(msg.Payload), &p); err != nil {
			gs.sendError(c, "bad_request", err.Error())
			return
		}
		gs.rejoin(c, p.Token)
	default:
		decode, ok := commandDecoders[msg.Type]
		if !ok {
			gs.reject(c, fmt.Errorf("%w: %q", game.ErrUnknownCommand, msg.Type))
			return
		}
		cmd, err := decode(msg.Payload)
		if err != nil {
			gs.sendError(c, "bad_request", err.Error())
			return
		}
		gs.execute(c, msg.RoomCode, cmd)
	}
}

func orEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	return raw
}

func (gs *GameServer) join(c Conn, code, name string) {
	entry := gs.getRoom(code)
	if entry == nil {
		gs.reject(c, fmt.Errorf("%w: %q", game.ErrRoomNotFound, code))
		return
	}
	if prev := gs.unbind(c.ID()); prev != "" {
		gs.detach(c.ID(), prev)
	}

	out := gs.newOutbox()
	entry.mu.Lock()
	if entry.closed {
		entry.mu.Unlock()
		gs.reject(c, fmt.Errorf("%w: %q", game.ErrRoomNotFound, code))
		return
	}
	room := entry.game
	seq := len(room.Activity)
	p, first, err := room.AddPlayer(name, c.ID())
	if err != nil {
		entry.mu.Unlock()
		gs.reject(c, err, "room", room.Code)
		return
	}
	token, err := gs.sessions.Issue(room.Code, p.Name, p.ID, first)
	if err != nil {
		room.RemovePlayer(p.ID)
		entry.mu.Unlock()
		gs.logger.Error("Issue session", "room", room.Code, "player", p.Name, "err", err)
		gs.sendError(c, "internal", "could not issue a session token")
		return
	}
	gs.bind(c.ID(), room.Code)
	out.add(c, EventJoinedRoom, joinedPayload{
		RoomCode:      room.Code,
		DisplayName:   p.Name,
		Token:         token,
		IsFirstPlayer: first,
		IsAdmin:       room.IsAdmin(p.ID),
	})
	gs.broadcastRoom(out, room, room.ActivitySince(seq))
	entry.mu.Unlock()

	gs.logger.Info("Player joined", "room", room.Code, "player", p.Name, "admin", first)
	out.flush()
}

func (gs *GameServer) rejoin(c Conn, token string) {
	sess, err := gs.sessions.Resolve(token)
	if err != nil {
		gs.reject(c, err)
		return
	}
	entry := gs.getRoom(sess.RoomCode)
	if entry == nil {
		gs.sessions.RevokeRoom(sess.RoomCode)
		gs.reject(c, fmt.Errorf("%w: %q", game.ErrRoomNotFound, sess.RoomCode))
		return
	}
	if prev := gs.unbind(c.ID()); prev != "" {
		gs.detach(c.ID(), prev)
	}

	out := gs.newOutbox()
	entry.mu.Lock()
	room := entry.game
	p, ok := room.Player(sess.PlayerID)
	if entry.closed || !ok {
		entry.mu.Unlock()
		gs.sessions.RevokePlayer(sess.RoomCode, sess.PlayerID)
		gs.reject(c, fmt.Errorf("%w: %q", game.ErrPlayerNotFound, sess.DisplayName), "room", sess.RoomCode)
		return
	}
	seq := len(room.Activity)
	previous := gs.connFor(p.ConnID)
	if _, err := room.Rebind(p.Name, c.ID(), sess.InitialAdmin); err != nil {
		entry.mu.Unlock()
		gs.reject(c, err, "room", room.Code)
		return
	}
	if previous != nil && previous.ID() != c.ID() {
		gs.unbind(previous.ID())
		out.add(previous, EventInfo, infoPayload{Message: "Your session was resumed on another connection"})
	}
	gs.bind(c.ID(), room.Code)
	gs.sessions.Touch(sess.ID)

	out.add(c, EventRejoinedRoom, rejoinedPayload{
		RoomCode:    room.Code,
		DisplayName: p.Name,
		IsAdmin:     room.IsAdmin(p.ID),
	})
	gs.broadcastRoom(out, room, room.ActivitySince(seq))
	out.add(c, EventActivityLog, activityPayload{Entries: room.ActivitySince(0), Full: true})
	entry.mu.Unlock()

	gs.logger.Info("Player rejoined", "room", room.Code, "player", p.Name)
	out.flush()
}

// detach releases whichever player in room code is bound to connID.
func (gs *GameServer) detach(connID, code string) {
	entry := gs.getRoom(code)
	if entry == nil {
		return
	}
	out := gs.newOutbox()
	entry.mu.Lock()
	room := entry.game
	seq := len(room.Activity)
	if _, ok := room.Detach(connID); ok && !entry.closed {
		gs.broadcastRoom(out, room, room.ActivitySince(seq))
	}
	entry.mu.Unlock()
	out.flush()
}

func (gs *GameServer) execute(c Conn, code string, cmd game.Command) {
	bound := gs.roomOf(c.ID())
	if bound == "" || (code != "" && normalizeCode(code) != bound) {
		gs.reject(c, game.ErrNotInRoom)
		return
	}
	entry := gs.getRoom(bound)
	if entry == nil {
		gs.logger.Error("Bound room is missing", "room", bound, "conn", c.ID())
		gs.unbind(c.ID())
		gs.reject(c, fmt.Errorf("%w: %q", game.ErrRoomNotFound, bound))
		return
	}

	out := gs.newOutbox()
	entry.mu.Lock()
	room := entry.game
	actor, ok := room.PlayerByConn(c.ID())
	if entry.closed || !ok {
		entry.mu.Unlock()
		gs.reject(c, game.ErrNotInRoom, "room", bound)
		return
	}
	res, err := room.Execute(actor.ID, cmd)
	if err != nil {
		entry.mu.Unlock()
		gs.reject(c, err, "room", room.Code, "player", actor.Name, "command", fmt.Sprintf("%T", cmd))
		return
	}
	gs.deliver(out, room, res)
	entry.mu.Unlock()

	out.flush()
	gs.sessions.TouchPlayer(room.Code, actor.ID)
	if res.Summary != nil {
		gs.recordGame(*res.Summary)
	}
}

// deliver queues everything a successful command produces. It must be
// called with the room locked.
func (gs *GameServer) deliver(out *outbox, room *game.Room, res game.Result) {
	if k := res.Kicked; k != nil {
		revoked := gs.sessions.RevokePlayer(room.Code, k.ID)
		if c := gs.connFor(k.ConnID); c != nil {
			gs.unbind(c.ID())
			out.add(c, EventKicked, kickedPayload{
				RoomCode: room.Code,
				Message:  "You were removed from the room by the admin",
			})
		}
		gs.logger.Info("Player kicked", "room", room.Code, "player", k.Name, "tokens", revoked)
	}
	for _, p := range room.Players {
		c := gs.connFor(p.ConnID)
		if c == nil {
			continue
		}
		if res.Dealt {
			out.add(c, EventDealCards, dealCardsPayload{Period: room.Period, Hand: append([]game.Card{}, p.Hand...)})
		}
		if res.Summary != nil {
			out.add(c, EventGameSummary, summaryPayload{Summary: res.Summary})
		}
	}
	gs.broadcastRoom(out, room, res.Activity)
}

// broadcastRoom queues the player list, a per-player game state and the
// activity delta for every connected player. The room must be locked.
func (gs *GameServer) broadcastRoom(out *outbox, room *game.Room, activity []game.ActivityEntry) {
	list := playerListPayload{RoomCode: room.Code, Players: room.View().Players}
	for _, p := range room.Players {
		c := gs.connFor(p.ConnID)
		if c == nil {
			continue
		}
		out.add(c, EventPlayerList, list)
		if st, ok := room.StateFor(p.ID); ok {
			out.add(c, EventGameState, st)
		}
		if len(activity) > 0 {
			out.add(c, EventActivityLog, activityPayload{Entries: activity})
		}
	}
}

func (gs *GameServer) recordGame(s game.Summary) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := gs.stats.RecordGame(ctx, s); err != nil {
		gs.logger.Error("Record game", "room", s.RoomCode, "err", err)
	}
}

// ExpireIdleRooms tears down every room idle for longer than ttl, revoking
// its sessions. A non-positive ttl disables expiry.
func (gs *GameServer) ExpireIdleRooms(ttl time.Duration) []string {
	if ttl <= 0 {
		return nil
	}
	cutoff := gs.clock.Now().Add(-ttl)
	out := gs.newOutbox()
	var expired []string

	gs.roomsMu.Lock()
	for code, entry := range gs.rooms {
		entry.mu.Lock()
		if entry.game.LastActive.Before(cutoff) {
			entry.closed = true
			delete(gs.rooms, code)
			for _, p := range entry.game.Players {
				if c := gs.connFor(p.ConnID); c != nil {
					gs.unbind(c.ID())
					out.add(c, EventInfo, infoPayload{Message: "Room " + code + " was closed after a period of inactivity"})
				}
			}
			gs.sessions.RevokeRoom(code)
			expired = append(expired, code)
		}
		entry.mu.Unlock()
	}
	gs.roomsMu.Unlock()

	out.flush()
	return expired
}

func (gs *GameServer) reject(c Conn, err error, keyvals ...interface{}) {
	code := game.ErrorCode(err)
	gs.logger.Debug("Rejected", append([]interface{}{"conn", c.ID(), "code", code, "err", err}, keyvals...)...)
	gs.sendError(c, code, err.Error())
}

func (gs *GameServer) sendError(c Conn, code, message string) {
	gs.send(c, EventError, errorPayload{Code: code, Message: message})
}

func (gs *GameServer) send(c Conn, typ string, payload interface{}) {
	out := gs.newOutbox()
	out.add(c, typ, payload)
	out.flush()
}

type delivery struct {
	conn Conn
	data []byte
}

// outbox collects frames encoded under a room lock so they can be written
// after the lock is released.
type outbox struct {
	logger *log.Logger
	items  []delivery
}

func (gs *GameServer) newOutbox() *outbox { return &outbox{logger: gs.logger} }

func (o *outbox) add(c Conn, typ string, payload interface{}) {
	data, err := json.Marshal(WSOut{Type: typ, Payload: payload})
	if err != nil {
		o.logger.Error("Encode event", "type", typ, "err", err)
		return
	}
	o.items = append(o.items, delivery{conn: c, data: data})
}

func (o *outbox) flush() {
	for _, d := range o.items {
		if err := d.conn.Send(d.data); err != nil {
			o.logger.Debug("Send failed", "conn", d.conn.ID(), "err", err)
		}
	}
	o.items = nil
}
