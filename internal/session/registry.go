// Package session keeps the durable tokens that let a player take their seat
// back after the transport connection is replaced.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/example/stock-exchange/internal/auth"
	"github.com/example/stock-exchange/internal/game"
)

// Entry is what a token resolves to.
type Entry struct {
	ID           string
	RoomCode     string
	DisplayName  string
	PlayerID     game.PlayerID
	InitialAdmin bool
	IssuedAt     time.Time
	LastActive   time.Time
}

type claims struct {
	Room  string `json:"room"`
	Name  string `json:"name"`
	Admin bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// Registry maps session tokens to room seats. A token is a signed JWT whose
// id must also be present in the registry, so revocation is immediate.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	signer *auth.Signer
	clock  quartz.Clock
	logger *log.Logger
}

func NewRegistry(signer *auth.Signer, clock quartz.Clock, logger *log.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		signer:  signer,
		clock:   clock,
		logger:  logger,
	}
}

// NewEphemeralRegistry signs with a random key, so its tokens do not
// outlive the process.
func NewEphemeralRegistry(clock quartz.Clock, logger *log.Logger) (*Registry, error) {
	secret, err := auth.RandomSecret()
	if err != nil {
		return nil, err
	}
	signer, err := auth.NewSigner(secret)
	if err != nil {
		return nil, err
	}
	return NewRegistry(signer, clock, logger), nil
}

// Issue mints a token for a freshly seated player.
func (r *Registry) Issue(roomCode, name string, playerID game.PlayerID, initialAdmin bool) (string, error) {
	now := r.clock.Now()
	e := &Entry{
		ID:           uuid.NewString(),
		RoomCode:     roomCode,
		DisplayName:  name,
		PlayerID:     playerID,
		InitialAdmin: initialAdmin,
		IssuedAt:     now,
		LastActive:   now,
	}
	token, err := r.signer.Sign(claims{
		Room:  roomCode,
		Name:  name,
		Admin: initialAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       e.ID,
			Subject:  string(playerID),
			IssuedAt: jwt.NewNumericDate(now),
		},
	})
	if err != nil {
		return "", fmt.Errorf("issue session token: %w", err)
	}

	r.mu.Lock()
	r.entries[e.ID] = e
	r.mu.Unlock()

	r.logger.Debug("Issued session", "room", roomCode, "player", name, "admin", initialAdmin)
	return token, nil
}

// Resolve returns the entry behind token. Unknown, revoked or tampered tokens
// yield game.ErrInvalidSessionToken.
func (r *Registry) Resolve(token string) (Entry, error) {
	var c claims
	if err := r.signer.Parse(token, &c); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", game.ErrInvalidSessionToken, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[c.ID]
	if !ok {
		return Entry{}, fmt.Errorf("%w: revoked or unknown", game.ErrInvalidSessionToken)
	}
	if e.RoomCode != c.Room || string(e.PlayerID) != c.Subject {
		return Entry{}, fmt.Errorf("%w: claims do not match session", game.ErrInvalidSessionToken)
	}
	return *e, nil
}

// Touch refreshes the last-active time of a session.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.LastActive = r.clock.Now()
	}
}

// TouchPlayer refreshes every session held by a seated player.
func (r *Registry) TouchPlayer(roomCode string, playerID game.PlayerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()
	for _, e := range r.entries {
		if e.RoomCode == roomCode && e.PlayerID == playerID {
			e.LastActive = now
		}
	}
}

// RevokeRoom drops every session bound to a room.
func (r *Registry) RevokeRoom(roomCode string) int {
	return r.revoke(func(e *Entry) bool { return e.RoomCode == roomCode })
}

// RevokePlayer drops every session bound to one seat.
func (r *Registry) RevokePlayer(roomCode string, playerID game.PlayerID) int {
	return r.revoke(func(e *Entry) bool { return e.RoomCode == roomCode && e.PlayerID == playerID })
}

// ExpireIdle drops sessions inactive for longer than ttl. A non-positive ttl
// disables expiry.
func (r *Registry) ExpireIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := r.clock.Now().Add(-ttl)
	return r.revoke(func(e *Entry) bool { return e.LastActive.Before(cutoff) })
}

func (r *Registry) revoke(match func(*Entry) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.entries {
		if match(e) {
			delete(r.entries, id)
			n++
		}
	}
	if n > 0 {
		r.logger.Debug("Revoked sessions", "count", n)
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
