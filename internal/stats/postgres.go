package stats

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/stock-exchange/internal/game"
)

//go:embed schema.sql
var schemaSQL string

const insertResult = `
INSERT INTO game_results
    (game_id, room_code, player_id, player_name, rank, cash, holdings, worth, periods, ended_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// PostgresSink stores one row per player per finished game.
type PostgresSink struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

// Connect opens a pool, verifies it and applies the schema.
func Connect(ctx context.Context, databaseURL string, logger *log.Logger) (*PostgresSink, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	logger.Info("Stats database ready")
	return &PostgresSink{pool: pool, logger: logger}, nil
}

func (p *PostgresSink) RecordGame(ctx context.Context, s game.Summary) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	gameID := uuid.New()
	for _, st := range s.Standings {
		if _, err := tx.Exec(ctx, insertResult,
			gameID, s.RoomCode, string(st.PlayerID), st.Name, st.Rank,
			st.Cash, st.Holdings, st.Worth, s.Periods, s.EndedAt,
		); err != nil {
			return fmt.Errorf("insert result for %s: %w", st.Name, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	p.logger.Debug("Recorded game", "room", s.RoomCode, "game", gameID, "players", len(s.Standings))
	return nil
}

func (p *PostgresSink) Close() { p.pool.Close() }
