// Package stats records finished games for later analysis.
package stats

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/example/stock-exchange/internal/game"
)

// Sink receives the summary of every finished game.
type Sink interface {
	RecordGame(ctx context.Context, s game.Summary) error
}

// LogSink writes summaries to the log only.
type LogSink struct {
	Logger *log.Logger
}

func (l LogSink) RecordGame(_ context.Context, s game.Summary) error {
	for _, st := range s.Standings {
		l.Logger.Info("Game result", "room", s.RoomCode, "rank", st.Rank, "player", st.Name, "worth", st.Worth)
	}
	return nil
}

// MemorySink keeps summaries in memory.
type MemorySink struct {
	mu    sync.Mutex
	games []game.Summary
}

func (m *MemorySink) RecordGame(_ context.Context, s game.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games = append(m.games, s)
	return nil
}

// Games returns a copy of everything recorded so far.
func (m *MemorySink) Games() []game.Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]game.Summary(nil), m.games...)
}
