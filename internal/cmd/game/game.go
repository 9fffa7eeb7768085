// Package game parses autoplay command flags and drives a battle against a
// running battle API.
package game

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/pefman/battle-sim/internal/api"
	"github.com/pefman/battle-sim/internal/engine"
	"github.com/pefman/battle-sim/internal/platform/config"
)

// Config holds autoplay command configuration.
type Config struct {
	APIBase    string        `env:"BATTLE_API_BASE" envDefault:"http://localhost:8080"`
	PlayerName string        `env:"BATTLE_PLAYER_NAME"`
	EnemyName  string        `env:"BATTLE_ENEMY_NAME"`
	MaxTurns   int           `env:"BATTLE_MAX_TURNS" envDefault:"200"`
	Seed       int64         `env:"BATTLE_SEED"`
	Delay      time.Duration `env:"BATTLE_TURN_DELAY"`
	Keep       bool          `env:"BATTLE_KEEP"`
}

// ErrTurnLimit is returned when a battle outlives Config.MaxTurns.
var ErrTurnLimit = errors.New("turn limit reached")

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.APIBase, "api", cfg.APIBase, "Battle API base URL")
	fs.StringVar(&cfg.PlayerName, "player", cfg.PlayerName, "Player name (empty = server default)")
	fs.StringVar(&cfg.EnemyName, "enemy", cfg.EnemyName, "Enemy name (empty = server default)")
	fs.IntVar(&cfg.MaxTurns, "max-turns", cfg.MaxTurns, "Give up after this many turns")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Seed for player attack selection (0 = random)")
	fs.DurationVar(&cfg.Delay, "delay", cfg.Delay, "Pause between turns")
	fs.BoolVar(&cfg.Keep, "keep", cfg.Keep, "Keep the battle on the server when done")
	if args == nil {
		args = []string{}
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.MaxTurns <= 0 {
		return Config{}, fmt.Errorf("max turns must be positive, got %d", cfg.MaxTurns)
	}
	return cfg, nil
}

// Run plays one battle to completion, printing each new log line to out.
// The player side picks a random attack from its roster each turn; the
// enemy side is played by the server.
func Run(ctx context.Context, cfg Config, client *api.Client, out io.Writer) error {
	if client == nil {
		client = api.NewClient(cfg.APIBase)
	}
	picker := engine.NewPicker(cfg.Seed)
	if cfg.Seed == 0 {
		var err error
		if picker, err = engine.NewRandomPicker(); err != nil {
			return err
		}
	}

	v, err := client.StartBattle(ctx, cfg.PlayerName, cfg.EnemyName)
	if err != nil {
		return fmt.Errorf("start battle: %w", err)
	}
	fmt.Fprintf(out, "battle %s\n", v.BattleID)
	printed := printLog(out, v.BattleLog, 0)

	for turn := 1; !v.Finished; turn++ {
		if turn > cfg.MaxTurns {
			return fmt.Errorf("battle %s: %w after %d turns", v.BattleID, ErrTurnLimit, cfg.MaxTurns)
		}
		if cfg.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.Delay):
			}
		}
		if v.CurrentTurn == "player" {
			v, err = client.Attack(ctx, v.BattleID, picker.Pick(v.PlayerAttacks))
		} else {
			v, err = client.EnemyTurn(ctx, v.BattleID)
		}
		if err != nil {
			return fmt.Errorf("turn %d: %w", turn, err)
		}
		printed = printLog(out, v.BattleLog, printed)
	}

	fmt.Fprintf(out, "%s %d/%d hp, %s %d/%d hp\n",
		v.Player.Name, v.Player.CurrentHealth, v.Player.MaxHealth,
		v.Enemy.Name, v.Enemy.CurrentHealth, v.Enemy.MaxHealth)
	if cfg.Keep {
		return nil
	}
	if err := client.DeleteBattle(ctx, v.BattleID); err != nil {
		return fmt.Errorf("delete battle: %w", err)
	}
	return nil
}

func printLog(out io.Writer, lines []string, from int) int {
	for _, l := range lines[min(from, len(lines)):] {
		fmt.Fprintln(out, l)
	}
	return len(lines)
}
