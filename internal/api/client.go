package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pefman/battle-sim/internal/battle"
)

var httpClient = &http.Client{Timeout: 8 * time.Second}

// Config holds API configuration
type Config struct {
	BaseURL string
}

// Client calls the battle HTTP API.
type Client struct {
	config Config
	http   *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		config: Config{BaseURL: baseURL},
		http:   httpClient,
	}
}

// WithHTTPClient swaps the underlying HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// apiDo sends body as JSON (when non-nil) and decodes the reply into out
// (when non-nil). 404 maps to battle.ErrBattleNotFound.
func (c *Client) apiDo(ctx context.Context, method, path string, body, out any) error {
	base := strings.TrimRight(c.config.BaseURL, "/")
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, base+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, battle.ErrBattleNotFound)
	case resp.StatusCode >= 300:
		return fmt.Errorf("%s %s: api status %d", method, path, resp.StatusCode)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StartBattle starts a battle between the default fighters. Empty names
// keep the server defaults.
func (c *Client) StartBattle(ctx context.Context, playerName, enemyName string) (BattleView, error) {
	req := map[string]string{}
	if playerName != "" {
		req["playerName"] = playerName
	}
	if enemyName != "" {
		req["enemyName"] = enemyName
	}
	var v BattleView
	err := c.apiDo(ctx, http.MethodPost, "/battle/start", req, &v)
	return v, err
}

// StartBattleFromExternal sends both fighters in the external field format.
// Defense and speed are ignored by the server.
func (c *Client) StartBattleFromExternal(ctx context.Context, f1, f2 battle.Fighter) (BattleView, error) {
	req := map[string]any{
		"fighter1_name": f1.Name,
		"fighter1_hp":   f1.HP,
		"fighter1_atk":  f1.Attack,
		"fighter2_name": f2.Name,
		"fighter2_hp":   f2.HP,
		"fighter2_atk":  f2.Attack,
	}
	var v BattleView
	err := c.apiDo(ctx, http.MethodPost, "/battle/start/external", req, &v)
	return v, err
}

func (c *Client) GetBattle(ctx context.Context, id string) (BattleView, error) {
	var v BattleView
	err := c.apiDo(ctx, http.MethodGet, "/battle/"+id, nil, &v)
	return v, err
}

// Attack acts for whichever side holds the turn. An empty attack omits the
// field, so the server plays TACKLE.
func (c *Client) Attack(ctx context.Context, id, attack string) (BattleView, error) {
	var req attackRequest
	if attack != "" {
		req.Attack = &attack
	}
	var v BattleView
	err := c.apiDo(ctx, http.MethodPost, "/battle/"+id+"/attack", req, &v)
	return v, err
}

// EnemyTurn asks the server to play a random enemy attack.
func (c *Client) EnemyTurn(ctx context.Context, id string) (BattleView, error) {
	var v BattleView
	err := c.apiDo(ctx, http.MethodPost, "/battle/"+id+"/enemy-turn", nil, &v)
	return v, err
}

func (c *Client) DeleteBattle(ctx context.Context, id string) error {
	return c.apiDo(ctx, http.MethodDelete, "/battle/"+id, nil, nil)
}

func (c *Client) Stats(ctx context.Context) (StatsView, error) {
	var s StatsView
	err := c.apiDo(ctx, http.MethodGet, "/stats", nil, &s)
	return s, err
}

// ResetStats clears the server's recorded activity.
func (c *Client) ResetStats(ctx context.Context) error {
	return c.apiDo(ctx, http.MethodDelete, "/stats", nil, nil)
}
