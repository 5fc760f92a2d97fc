package server

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

type SweeperConfig struct {
	Schedule       string
	RoomIdleTTL    time.Duration
	SessionIdleTTL time.Duration
}

// Sweeper periodically tears down idle rooms and revokes idle session tokens.
type Sweeper struct {
	cron   *cron.Cron
	server *GameServer
	cfg    SweeperConfig
	logger *log.Logger
}

func NewSweeper(gs *GameServer, cfg SweeperConfig, logger *log.Logger) *Sweeper {
	return &Sweeper{
		cron:   cron.New(),
		server: gs,
		cfg:    cfg,
		logger: logger,
	}
}

// Sweep runs one pass and reports how much it removed.
func (s *Sweeper) Sweep() (rooms []string, tokens int) {
	rooms = s.server.ExpireIdleRooms(s.cfg.RoomIdleTTL)
	tokens = s.server.sessions.ExpireIdle(s.cfg.SessionIdleTTL)
	if len(rooms) > 0 || tokens > 0 {
		s.logger.Info("Swept idle state", "rooms", rooms, "tokens", tokens)
	}
	return rooms, tokens
}

// Run sweeps on the configured schedule until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.cfg.RoomIdleTTL <= 0 && s.cfg.SessionIdleTTL <= 0 {
		s.logger.Info("Idle sweeping disabled")
		<-ctx.Done()
		return nil
	}
	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() { s.Sweep() }); err != nil {
		return fmt.Errorf("sweeper schedule %q: %w", s.cfg.Schedule, err)
	}
	s.cron.Start()
	s.logger.Info("Sweeper started", "schedule", s.cfg.Schedule, "room_idle_ttl", s.cfg.RoomIdleTTL, "session_idle_ttl", s.cfg.SessionIdleTTL)

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("Sweeper stopped")
	return nil
}
