// Package api parses battle API command flags and runs the HTTP server.
package api

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	httpapi "github.com/pefman/battle-sim/internal/api"
	"github.com/pefman/battle-sim/internal/battle"
	"github.com/pefman/battle-sim/internal/engine"
	"github.com/pefman/battle-sim/internal/game"
	"github.com/pefman/battle-sim/internal/platform/config"
	"github.com/pefman/battle-sim/internal/platform/otel"
	"github.com/pefman/battle-sim/internal/stats"
	"github.com/pefman/battle-sim/internal/storage"
)

const (
	serviceName     = "battle-api"
	shutdownTimeout = 5 * time.Second
)

// Config holds battle API command configuration.
type Config struct {
	Port           int           `env:"BATTLE_API_PORT" envDefault:"8080"`
	Addr           string        `env:"BATTLE_API_ADDR"`
	Seed           int64         `env:"BATTLE_SEED"`
	WSWriteTimeout time.Duration `env:"BATTLE_WS_WRITE_TIMEOUT" envDefault:"5s"`
}

// ParseConfig parses environment and flags into a Config. PORT, when set,
// takes precedence over BATTLE_API_PORT.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if p := os.Getenv("PORT"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Config{}, fmt.Errorf("parse PORT: %w", err)
		}
		cfg.Port = n
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The battle API port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The battle API listen address (overrides -port)")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Seed for enemy attack selection (0 = random)")
	if args == nil {
		args = []string{}
	}
	fs.DurationVar(&cfg.WSWriteTimeout, "ws-write-timeout", cfg.WSWriteTimeout, "Deadline for each websocket write")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("websocket write timeout must be positive, got %v", cfg.WSWriteTimeout)
	}
	return cfg, nil
}

// ListenAddr resolves the address to bind.
func (c Config) ListenAddr() string {
	if c.Addr != "" {
		return c.Addr
	}
	return ":" + strconv.Itoa(c.Port)
}

// NewHandler builds the store, service, observers and routes.
func NewHandler(cfg Config) (http.Handler, error) {
	picker := engine.NewPicker(cfg.Seed)
	if cfg.Seed == 0 {
		var err error
		if picker, err = engine.NewRandomPicker(); err != nil {
			return nil, err
		}
	}
	attacks := game.DefaultRegistry()
	hub := httpapi.NewHub(attacks, cfg.WSWriteTimeout)
	rec := stats.NewRecorder()
	svc := battle.NewService(storage.NewMemory(), attacks, picker, battle.WithObservers(rec, hub))
	return httpapi.NewServer(svc, rec, hub).Handler(), nil
}

// Run serves the battle API until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	otelCfg, err := otel.LoadConfig()
	if err != nil {
		return err
	}
	shutdownTelemetry, err := otel.Setup(ctx, serviceName, otelCfg)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	handler, err := NewHandler(cfg)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("battle API listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Printf("shutdown signal received")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
