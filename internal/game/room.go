package game

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
)

type Phase string

const (
	PhaseLobby         Phase = "lobby"
	PhaseActive        Phase = "active"
	PhaseAwaitingAdmin Phase = "awaiting_admin"
	PhaseEnded         Phase = "ended"
)

// RightsOffer is a room-wide offer published by a RIGHTS card. It only lives
// for the round it was announced in.
type RightsOffer struct {
	Instrument    string           `json:"instrument"`
	InitialPrice  int              `json:"initialPrice"`
	PricePerShare int              `json:"pricePerShare"`
	Period        int              `json:"period"`
	Round         int              `json:"round"`
	Originator    PlayerID         `json:"originator"`
	ExercisedBy   map[PlayerID]int `json:"exercisedBy"`
}

type PriceLogEntry struct {
	Period int            `json:"period"`
	Round  int            `json:"round"`
	Prices map[string]int `json:"prices"`
}

type WorthEntry struct {
	Period int      `json:"period"`
	Player PlayerID `json:"playerId"`
	Name   string   `json:"name"`
	Worth  int      `json:"worth"`
}

// Room is the complete state of one game. It is not safe for concurrent use;
// callers hold a per-room lock around every call.
type Room struct {
	Code    string
	Rules   Rules
	Players []*Player

	Deck    []Card
	Discard []Card

	// AdminID is the admin's identity; AdminConn is the transport handle the
	// admin was last bound to.
	AdminID   PlayerID
	AdminConn string

	Period        int
	RoundInPeriod int
	CurrentTurn   int
	// Opener is the seat that opens every round of the current period.
	Opener int

	Prices        map[string]int
	InitialPrices map[string]int
	Chairmen      map[string]map[PlayerID]struct{}
	Presidents    map[string]map[PlayerID]struct{}
	RightsOffers  map[string]*RightsOffer

	AwaitingAdminDecision   bool
	PricesResolvedThisCycle bool

	PriceLog        []PriceLogEntry
	HistoricalWorth []WorthEntry
	Activity        []ActivityEntry

	Started bool
	Ended   bool

	CreatedAt  time.Time
	LastActive time.Time

	rng     *rand.Rand
	clock   quartz.Clock
	cardSeq int
	newID   func() PlayerID
}

type Option func(*Room)

// WithSeed makes deck shuffles reproducible.
func WithSeed(seed uint64) Option {
	return func(r *Room) { r.rng = NewRand(seed) }
}

func WithClock(clock quartz.Clock) Option {
	return func(r *Room) { r.clock = clock }
}

// WithIDGenerator overrides how player identities are minted.
func WithIDGenerator(gen func() PlayerID) Option {
	return func(r *Room) { r.newID = gen }
}

func NewRoom(code string, rules Rules, opts ...Option) *Room {
	r := &Room{
		Code:          code,
		Rules:         rules,
		Prices:        map[string]int{},
		InitialPrices: map[string]int{},
		Chairmen:      map[string]map[PlayerID]struct{}{},
		Presidents:    map[string]map[PlayerID]struct{}{},
		RightsOffers:  map[string]*RightsOffer{},
		Period:        1,
		RoundInPeriod: 1,
		clock:         quartz.NewReal(),
		newID:         func() PlayerID { return PlayerID(uuid.NewString()) },
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	for _, in := range rules.Instruments {
		r.Prices[in.Code] = in.InitialPrice
		r.InitialPrices[in.Code] = in.InitialPrice
		r.Chairmen[in.Code] = map[PlayerID]struct{}{}
		r.Presidents[in.Code] = map[PlayerID]struct{}{}
	}
	r.CreatedAt = r.clock.Now()
	r.LastActive = r.CreatedAt
	return r
}

func (r *Room) Phase() Phase {
	switch {
	case r.Ended:
		return PhaseEnded
	case !r.Started:
		return PhaseLobby
	case r.AwaitingAdminDecision:
		return PhaseAwaitingAdmin
	default:
		return PhaseActive
	}
}

func (r *Room) Player(id PlayerID) (*Player, bool) {
	for _, p := range r.Players {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

func (r *Room) PlayerByName(name string) (*Player, bool) {
	for _, p := range r.Players {
		if strings.EqualFold(p.Name, strings.TrimSpace(name)) {
			return p, true
		}
	}
	return nil, false
}

// PlayerByConn resolves a transport handle to the player bound to it.
func (r *Room) PlayerByConn(connID string) (*Player, bool) {
	if connID == "" {
		return nil, false
	}
	for _, p := range r.Players {
		if p.ConnID == connID {
			return p, true
		}
	}
	return nil, false
}

func (r *Room) seat(id PlayerID) int {
	for i, p := range r.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// CurrentPlayer returns the player whose turn it is, or nil outside of play.
func (r *Room) CurrentPlayer() *Player {
	if !r.Started || len(r.Players) == 0 {
		return nil
	}
	return r.Players[r.CurrentTurn%len(r.Players)]
}

func (r *Room) IsAdmin(id PlayerID) bool { return id != "" && r.AdminID == id }

// Touch records activity for idle sweeping.
func (r *Room) Touch() { r.LastActive = r.clock.Now() }

// AddPlayer seats a new player in the lobby. The first player becomes admin.
func (r *Room) AddPlayer(name, connID string) (*Player, bool, error) {
	name = strings.TrimSpace(name)
	switch {
	case r.Ended:
		return nil, false, ErrGameAlreadyEnded
	case r.Started:
		return nil, false, ErrGameAlreadyStarted
	case name == "":
		return nil, false, ErrInvalidName
	case len(r.Players) >= r.Rules.MaxPlayers:
		return nil, false, fmt.Errorf("%w: %d of %d seats taken", ErrRoomFull, len(r.Players), r.Rules.MaxPlayers)
	}
	if _, taken := r.PlayerByName(name); taken {
		return nil, false, fmt.Errorf("%w: %q", ErrNameTaken, name)
	}
	p := newPlayer(r.newID(), name, connID, r.Rules.StartingCash)
	r.Players = append(r.Players, p)
	first := len(r.Players) == 1
	if first {
		r.AdminID = p.ID
		r.AdminConn = connID
	}
	r.logf("%s joined the room", name)
	r.Touch()
	return p, first, nil
}

// RemovePlayer drops a lobby player without any checks. It exists to roll
// back a join whose session could not be issued.
func (r *Room) RemovePlayer(id PlayerID) {
	idx := r.seat(id)
	if idx < 0 {
		return
	}
	r.removeSeat(idx)
}

func (r *Room) removeSeat(idx int) {
	p := r.Players[idx]
	r.Players = append(r.Players[:idx], r.Players[idx+1:]...)
	for code := range r.Chairmen {
		delete(r.Chairmen[code], p.ID)
		delete(r.Presidents[code], p.ID)
	}
	if len(r.Players) == 0 {
		r.CurrentTurn, r.Opener = 0, 0
		r.AdminID, r.AdminConn = "", ""
		return
	}
	if idx < r.CurrentTurn {
		r.CurrentTurn--
	}
	if r.CurrentTurn >= len(r.Players) {
		r.CurrentTurn = 0
	}
	if idx < r.Opener {
		r.Opener--
	}
	if r.Opener >= len(r.Players) {
		r.Opener = 0
	}
	if r.AdminID == p.ID {
		r.AdminID = r.Players[0].ID
		r.AdminConn = r.Players[0].ConnID
	}
}

// Rebind attaches a player to a new transport handle after a reconnect. The
// admin handle follows only when the player was the room's original admin and
// still holds the role.
func (r *Room) Rebind(name, connID string, wasInitialAdmin bool) (*Player, error) {
	p, ok := r.PlayerByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPlayerNotFound, name)
	}
	p.ConnID = connID
	if wasInitialAdmin && r.AdminID == p.ID {
		r.AdminConn = connID
	}
	r.logf("%s reconnected", p.Name)
	r.Touch()
	return p, nil
}

// Detach clears the transport handle bound to connID. Game state is untouched.
func (r *Room) Detach(connID string) (*Player, bool) {
	p, ok := r.PlayerByConn(connID)
	if !ok {
		return nil, false
	}
	p.ConnID = ""
	r.logf("%s disconnected", p.Name)
	return p, true
}

func (r *Room) instrument(code string) (Instrument, error) {
	in, ok := r.Rules.Instrument(code)
	if !ok {
		return Instrument{}, fmt.Errorf("%w: %q", ErrInvalidInstrument, code)
	}
	return in, nil
}

// refreshStatus brings the chairman and president sets for code in line
// with p's holding.
func (r *Room) refreshStatus(p *Player, code string) {
	held := p.Portfolio[code]
	if setMembership(r.Chairmen, code, p.ID, held >= r.Rules.ChairmanThreshold) {
		if held >= r.Rules.ChairmanThreshold {
			r.logf("%s is now chairman of %s", p.Name, code)
		} else {
			r.logf("%s is no longer chairman of %s", p.Name, code)
		}
	}
	if setMembership(r.Presidents, code, p.ID, held >= r.Rules.PresidentThreshold) {
		if held >= r.Rules.PresidentThreshold {
			r.logf("%s is now president of %s", p.Name, code)
		} else {
			r.logf("%s is no longer president of %s", p.Name, code)
		}
	}
}

// setMembership adds or removes id and reports whether anything changed.
func setMembership(sets map[string]map[PlayerID]struct{}, code string, id PlayerID, member bool) bool {
	set, ok := sets[code]
	if !ok {
		set = map[PlayerID]struct{}{}
		sets[code] = set
	}
	_, present := set[id]
	switch {
	case member && !present:
		set[id] = struct{}{}
		return true
	case !member && present:
		delete(set, id)
		return true
	}
	return false
}

func (r *Room) hasChairman(code string) bool { return len(r.Chairmen[code]) > 0 }

func (r *Room) isPresident(code string, id PlayerID) bool {
	_, ok := r.Presidents[code][id]
	return ok
}
