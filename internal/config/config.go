// Package config resolves server settings from defaults and an optional HCL file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/robfig/cron/v3"

	"github.com/example/stock-exchange/internal/game"
)

// Config is the resolved server configuration
type Config struct {
	Address       string
	LogLevel      string
	AllowedOrigin string
	TLSCert       string
	TLSKey        string

	SessionSecret  string
	SessionIdleTTL time.Duration

	SweepSchedule string
	RoomIdleTTL   time.Duration

	DatabaseURL string

	Rules game.Rules
}

// fileConfig mirrors the HCL layout; every block is optional
type fileConfig struct {
	Server   *serverBlock   `hcl:"server,block"`
	Sessions *sessionsBlock `hcl:"sessions,block"`
	Sweeper  *sweeperBlock  `hcl:"sweeper,block"`
	Stats    *statsBlock    `hcl:"stats,block"`
	Rules    *rulesBlock    `hcl:"rules,block"`
}

type serverBlock struct {
	Address       string `hcl:"address,optional"`
	LogLevel      string `hcl:"log_level,optional"`
	AllowedOrigin string `hcl:"allowed_origin,optional"`
	TLSCert       string `hcl:"tls_cert,optional"`
	TLSKey        string `hcl:"tls_key,optional"`
}

type sessionsBlock struct {
	Secret  string `hcl:"secret,optional"`
	IdleTTL string `hcl:"idle_ttl,optional"`
}

type sweeperBlock struct {
	Schedule    string `hcl:"schedule,optional"`
	RoomIdleTTL string `hcl:"room_idle_ttl,optional"`
}

type statsBlock struct {
	DatabaseURL string `hcl:"database_url,optional"`
}

type rulesBlock struct {
	StartingCash           int               `hcl:"starting_cash,optional"`
	MaxPlayers             int               `hcl:"max_players,optional"`
	MinPlayersToStart      int               `hcl:"min_players_to_start,optional"`
	HandSize               int               `hcl:"hand_size,optional"`
	MinReserve             *int              `hcl:"min_reserve,optional"`
	MaxRoundsPerPeriod     int               `hcl:"max_rounds_per_period,optional"`
	TransactionsPerRound   int               `hcl:"transactions_per_round,optional"`
	ShareLot               int               `hcl:"share_lot,optional"`
	MaxSharesPerInstrument int               `hcl:"max_shares_per_instrument,optional"`
	ChairmanThreshold      int               `hcl:"chairman_threshold,optional"`
	PresidentThreshold     int               `hcl:"president_threshold,optional"`
	LoanAmount             *int              `hcl:"loan_amount,optional"`
	PriceCardCopies        int               `hcl:"price_card_copies,optional"`
	WindfallCardCopies     int               `hcl:"windfall_card_copies,optional"`
	Instruments            []instrumentBlock `hcl:"instrument,block"`
}

type instrumentBlock struct {
	Code         string `hcl:"code,label"`
	Name         string `hcl:"name"`
	InitialPrice int    `hcl:"initial_price"`
	Moves        []int  `hcl:"moves"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Address:       ":8080",
		LogLevel:      "info",
		AllowedOrigin: "*",
		SweepSchedule: "@every 1m",
		Rules:         game.DefaultRules(),
	}
}

// Load reads filename on top of the defaults. A missing file yields the
// defaults unchanged.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename == "" {
		return cfg, nil
	}
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return cfg, nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var fc fileConfig
	diags = gohcl.DecodeBody(file.Body, nil, &fc)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}
	if err := cfg.apply(&fc); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) apply(fc *fileConfig) error {
	if s := fc.Server; s != nil {
		setString(&c.Address, s.Address)
		setString(&c.LogLevel, s.LogLevel)
		setString(&c.AllowedOrigin, s.AllowedOrigin)
		setString(&c.TLSCert, s.TLSCert)
		setString(&c.TLSKey, s.TLSKey)
	}
	if s := fc.Sessions; s != nil {
		setString(&c.SessionSecret, s.Secret)
		if err := setDuration(&c.SessionIdleTTL, "sessions.idle_ttl", s.IdleTTL); err != nil {
			return err
		}
	}
	if s := fc.Sweeper; s != nil {
		setString(&c.SweepSchedule, s.Schedule)
		if err := setDuration(&c.RoomIdleTTL, "sweeper.room_idle_ttl", s.RoomIdleTTL); err != nil {
			return err
		}
	}
	if s := fc.Stats; s != nil {
		setString(&c.DatabaseURL, s.DatabaseURL)
	}
	if r := fc.Rules; r != nil {
		r.applyTo(&c.Rules)
	}
	return nil
}

func (b *rulesBlock) applyTo(r *game.Rules) {
	setInt(&r.StartingCash, b.StartingCash)
	setInt(&r.MaxPlayers, b.MaxPlayers)
	setInt(&r.MinPlayersToStart, b.MinPlayersToStart)
	setInt(&r.HandSize, b.HandSize)
	setOptionalInt(&r.MinReserve, b.MinReserve)
	setInt(&r.MaxRoundsPerPeriod, b.MaxRoundsPerPeriod)
	setInt(&r.TransactionsPerRound, b.TransactionsPerRound)
	setInt(&r.ShareLot, b.ShareLot)
	setInt(&r.MaxSharesPerInstrument, b.MaxSharesPerInstrument)
	setInt(&r.ChairmanThreshold, b.ChairmanThreshold)
	setInt(&r.PresidentThreshold, b.PresidentThreshold)
	setOptionalInt(&r.LoanAmount, b.LoanAmount)
	setInt(&r.PriceCardCopies, b.PriceCardCopies)
	setInt(&r.WindfallCardCopies, b.WindfallCardCopies)

	// Instruments replace the defaults wholesale.
	if len(b.Instruments) > 0 {
		r.Instruments = make([]game.Instrument, 0, len(b.Instruments))
		for _, in := range b.Instruments {
			r.Instruments = append(r.Instruments, game.Instrument{
				Code:         in.Code,
				Name:         in.Name,
				InitialPrice: in.InitialPrice,
				Moves:        in.Moves,
			})
		}
	}
}

// Validate validates the resolved configuration
func (c *Config) Validate() error {
	var errs []error
	if c.Address == "" {
		errs = append(errs, errors.New("server address must not be empty"))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.LogLevel))
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		errs = append(errs, errors.New("tls_cert and tls_key must be set together"))
	}
	if _, err := cron.ParseStandard(c.SweepSchedule); err != nil {
		errs = append(errs, fmt.Errorf("invalid sweep schedule %q: %w", c.SweepSchedule, err))
	}
	if c.SessionIdleTTL < 0 || c.RoomIdleTTL < 0 {
		errs = append(errs, errors.New("idle ttls must not be negative"))
	}
	if err := c.Rules.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("rules: %w", err))
	}
	return errors.Join(errs...)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// setOptionalInt applies v when the attribute was present, zero included.
func setOptionalInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, name, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}
