package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/example/stock-exchange/internal/auth"
	"github.com/example/stock-exchange/internal/config"
	"github.com/example/stock-exchange/internal/server"
	"github.com/example/stock-exchange/internal/session"
	"github.com/example/stock-exchange/internal/stats"
)

const shutdownTimeout = 10 * time.Second

// ServeCmd flags override the config file when set.
type ServeCmd struct {
	Addr           string        `env:"EXCHANGE_ADDR" help:"Listen address"`
	AllowedOrigin  string        `env:"EXCHANGE_ALLOWED_ORIGIN" help:"Origin allowed for websocket and CORS requests"`
	Cert           string        `env:"EXCHANGE_TLS_CERT" help:"Path to certificate file"`
	Key            string        `env:"EXCHANGE_TLS_KEY" help:"Path to private key file"`
	SessionSecret  string        `env:"EXCHANGE_SESSION_SECRET" help:"HMAC secret for session and operator tokens"`
	SessionIdleTTL time.Duration `env:"EXCHANGE_SESSION_IDLE_TTL" help:"Revoke session tokens idle for longer than this (0 disables)"`
	RoomIdleTTL    time.Duration `env:"EXCHANGE_ROOM_IDLE_TTL" help:"Close rooms idle for longer than this (0 disables)"`
	DatabaseURL    string        `env:"DATABASE_URL" help:"Postgres URL for recording finished games"`
}

func (c *ServeCmd) overlay(cfg *config.Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Address, c.Addr)
	set(&cfg.AllowedOrigin, c.AllowedOrigin)
	set(&cfg.TLSCert, c.Cert)
	set(&cfg.TLSKey, c.Key)
	set(&cfg.SessionSecret, c.SessionSecret)
	set(&cfg.DatabaseURL, c.DatabaseURL)
	if c.SessionIdleTTL > 0 {
		cfg.SessionIdleTTL = c.SessionIdleTTL
	}
	if c.RoomIdleTTL > 0 {
		cfg.RoomIdleTTL = c.RoomIdleTTL
	}
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	c.overlay(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := newLogger(cfg.LogLevel)

	secret := cfg.SessionSecret
	if secret == "" {
		if secret, err = auth.RandomSecret(); err != nil {
			return err
		}
		logger.Warn("No session secret configured; tokens will not survive a restart")
	}
	signer, err := auth.NewSigner(secret)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sink stats.Sink = stats.LogSink{Logger: logger.WithPrefix("stats")}
	if cfg.DatabaseURL != "" {
		pg, err := stats.Connect(ctx, cfg.DatabaseURL, logger.WithPrefix("stats"))
		if err != nil {
			return err
		}
		defer pg.Close()
		sink = pg
	}

	clock := quartz.NewReal()
	gs, err := server.NewGameServer(server.Options{
		Rules:         cfg.Rules,
		Sessions:      session.NewRegistry(signer, clock, logger.WithPrefix("sessions")),
		Stats:         sink,
		Clock:         clock,
		Logger:        logger.WithPrefix("server"),
		AllowedOrigin: cfg.AllowedOrigin,
	})
	if err != nil {
		return err
	}
	sweeper := server.NewSweeper(gs, server.SweeperConfig{
		Schedule:       cfg.SweepSchedule,
		RoomIdleTTL:    cfg.RoomIdleTTL,
		SessionIdleTTL: cfg.SessionIdleTTL,
	}, logger.WithPrefix("sweeper"))

	httpServer := &http.Server{
		Addr:              cfg.Address,
		Handler:           newRouter(gs, signer, cfg.AllowedOrigin, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	useTLS := tlsAvailable(cfg, logger)
	if useTLS {
		httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			},
		}
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		logger.Info("Stock exchange listening", "addr", cfg.Address, "tls", useTLS)
		var err error
		if useTLS {
			err = httpServer.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			err = httpServer.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	grp.Go(func() error {
		return sweeper.Run(gctx)
	})
	grp.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return grp.Wait()
}

// tlsAvailable reports whether the configured certificate pair exists. A
// missing pair falls back to plain HTTP.
func tlsAvailable(cfg *config.Config, logger *log.Logger) bool {
	if cfg.TLSCert == "" {
		return false
	}
	for _, path := range []string{cfg.TLSCert, cfg.TLSKey} {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			logger.Warn("TLS file not found, falling back to HTTP", "path", path)
			return false
		}
	}
	return true
}

func newRouter(gs *server.GameServer, signer *auth.Signer, allowedOrigin string, logger *log.Logger) *mux.Router {
	r := mux.NewRouter()

	// Add CORS headers first (but allow health checks to bypass any issues)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if allowedOrigin != "*" {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("Health check", "remote", r.RemoteAddr)
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/ws", gs.HandleWS)

	// Operator routes
	protected := r.PathPrefix("/api").Subrouter()
	protected.Use(signer.Middleware)
	gs.RegisterAPI(protected)

	return r
}
