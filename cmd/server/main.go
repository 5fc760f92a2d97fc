package main

import (
	"os"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/example/stock-exchange/internal/config"
)

// Globals are shared by every subcommand.
type Globals struct {
	Config   string `short:"c" env:"EXCHANGE_CONFIG" default:"exchange.hcl" help:"Path to an HCL config file; a missing file means built-in defaults"`
	LogLevel string `env:"EXCHANGE_LOG_LEVEL" help:"Log level (debug, info, warn, error); overrides the config file"`
}

type CLI struct {
	Globals

	Serve     ServeCmd     `cmd:"" default:"withargs" help:"Run the game server"`
	MintToken MintTokenCmd `cmd:"mint-token" help:"Print an operator bearer token for the /api endpoints"`
}

func main() {
	// Load environment variables from .env file if it exists
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("exchange"),
		kong.Description("Multiplayer stock exchange game server"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}

func (g *Globals) load() (*config.Config, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}
	return cfg, nil
}

func newLogger(level string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})
	if lvl, err := log.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}
