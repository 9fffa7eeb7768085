// Package api exposes battles over HTTP and websocket, and provides a Go
// client for the same endpoints.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pefman/battle-sim/internal/battle"
	"github.com/pefman/battle-sim/internal/models"
	"github.com/pefman/battle-sim/internal/stats"
)

// Server routes battle endpoints to the service.
type Server struct {
	svc    *battle.Service
	stats  *stats.Recorder
	hub    *Hub
	router *mux.Router
}

// NewServer wires the routes. hub and rec must be the same instances
// registered as observers on svc.
func NewServer(svc *battle.Service, rec *stats.Recorder, hub *Hub) *Server {
	s := &Server{svc: svc, stats: rec, hub: hub, router: mux.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStatsReset).Methods(http.MethodDelete)

	b := r.PathPrefix("/battle").Subrouter()
	b.HandleFunc("/start", s.handleStart).Methods(http.MethodPost)
	b.HandleFunc("/start/external", s.handleStartExternal).Methods(http.MethodPost)
	b.HandleFunc("/{id}", s.handleGet).Methods(http.MethodGet)
	b.HandleFunc("/{id}", s.handleDelete).Methods(http.MethodDelete)
	b.HandleFunc("/{id}/attack", s.handleAttack).Methods(http.MethodPost)
	b.HandleFunc("/{id}/enemy-turn", s.handleEnemyTurn).Methods(http.MethodPost)
	b.HandleFunc("/{id}/ws", s.handleWatch).Methods(http.MethodGet)
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler { return withCORS(s.router) }

// ========================= Views =========================

// CharacterView is the JSON shape of a character.
type CharacterView struct {
	Name             string  `json:"name"`
	CurrentHealth    int     `json:"currentHealth"`
	MaxHealth        int     `json:"maxHealth"`
	HealthPercentage float64 `json:"healthPercentage"`
	Attack           int     `json:"attack"`
	Defense          int     `json:"defense"`
	Speed            int     `json:"speed"`
	Alive            bool    `json:"alive"`
}

// BattleView is the JSON shape of a battle. EnemyAttacks is only filled
// by POST /battle/start.
type BattleView struct {
	BattleID         string        `json:"battleId"`
	Player           CharacterView `json:"player"`
	Enemy            CharacterView `json:"enemy"`
	CurrentTurn      string        `json:"currentTurn"`
	BattleLog        []string      `json:"battleLog"`
	Finished         bool          `json:"finished"`
	PlayerAttacks    []string      `json:"playerAttacks"`
	EnemyAttacks     []string      `json:"enemyAttacks,omitempty"`
	LastDamage       int           `json:"lastDamage"`
	LastDamageTarget string        `json:"lastDamageTarget"`
}

func newCharacterView(c models.Character) CharacterView {
	return CharacterView{
		Name:             c.Name,
		CurrentHealth:    c.CurrentHealth,
		MaxHealth:        c.MaxHealth,
		HealthPercentage: c.HealthPercentage(),
		Attack:           c.Attack,
		Defense:          c.Defense,
		Speed:            c.Speed,
		Alive:            c.Alive(),
	}
}

func newBattleView(id string, snap models.BattleSnapshot, playerAttacks []string) BattleView {
	logLines := snap.Log
	if logLines == nil {
		logLines = []string{}
	}
	return BattleView{
		BattleID:         id,
		Player:           newCharacterView(snap.Player),
		Enemy:            newCharacterView(snap.Enemy),
		CurrentTurn:      string(snap.CurrentTurn),
		BattleLog:        logLines,
		Finished:         snap.Finished,
		PlayerAttacks:    playerAttacks,
		LastDamage:       snap.LastDamage,
		LastDamageTarget: string(snap.LastDamageTarget),
	}
}

func (s *Server) view(id string, snap models.BattleSnapshot) BattleView {
	return newBattleView(id, snap, s.svc.Attacks().PlayerAttacks())
}

// ========================= Handlers =========================

type startRequest struct {
	PlayerName *string `json:"playerName"`
	EnemyName  *string `json:"enemyName"`
}

// POST /battle/start {playerName?, enemyName?}
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	id, snap := s.svc.StartBattle(r.Context(), deref(req.PlayerName), deref(req.EnemyName))
	v := s.view(id, snap)
	v.EnemyAttacks = s.svc.Attacks().EnemyAttacks()
	writeJSON(w, v)
}

type externalRequest struct {
	Fighter1Name *string  `json:"fighter1_name"`
	Fighter1HP   *float64 `json:"fighter1_hp"`
	Fighter1Atk  *float64 `json:"fighter1_atk"`
	Fighter2Name *string  `json:"fighter2_name"`
	Fighter2HP   *float64 `json:"fighter2_hp"`
	Fighter2Atk  *float64 `json:"fighter2_atk"`
}

// POST /battle/start/external. Field names follow the external format;
// missing fields take the default fighters' values.
func (s *Server) handleStartExternal(w http.ResponseWriter, r *http.Request) {
	var req externalRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	f1 := battle.Fighter{
		Name:   orString(req.Fighter1Name, battle.DefaultPlayer.Name),
		HP:     orInt(req.Fighter1HP, battle.DefaultPlayer.HP),
		Attack: orInt(req.Fighter1Atk, battle.DefaultPlayer.Attack),
	}
	f2 := battle.Fighter{
		Name:   orString(req.Fighter2Name, battle.DefaultEnemy.Name),
		HP:     orInt(req.Fighter2HP, battle.DefaultEnemy.HP),
		Attack: orInt(req.Fighter2Atk, battle.DefaultEnemy.Attack),
	}
	id, snap := s.svc.StartBattleFromExternal(r.Context(), f1, f2)
	writeJSON(w, s.view(id, snap))
}

// GET /battle/{id}
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, err := s.svc.GetBattle(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, s.view(id, snap))
}

// DELETE /battle/{id}
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteBattle(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type attackRequest struct {
	Attack *string `json:"attack"`
}

// POST /battle/{id}/attack {attack?}. Acts for whichever side holds the turn.
// A missing or null attack means TACKLE; any other unknown name, "" included,
// resolves to the fallback. A finished battle is returned unchanged.
func (s *Server) handleAttack(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req attackRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	out, err := s.svc.Attack(r.Context(), id, orString(req.Attack, battle.DefaultEnemyAttack))
	s.writeOutcome(w, id, out, err)
}

// POST /battle/{id}/enemy-turn. Random enemy attack when it is the enemy's
// turn; otherwise the battle is returned unchanged.
func (s *Server) handleEnemyTurn(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	out, err := s.svc.EnemyTurn(r.Context(), id)
	s.writeOutcome(w, id, out, err)
}

// GET /battle/{id}/ws
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.svc.GetBattle(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	s.hub.Serve(w, r, id, func() (BattleView, error) {
		snap, err := s.svc.GetBattle(r.Context(), id)
		return s.view(id, snap), err
	})
}

// StatsView is the /stats payload: recorded activity plus live battles.
type StatsView struct {
	stats.Summary
	ActiveBattles int `json:"activeBattles"`
}

// GET /stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, StatsView{Summary: s.stats.Summary(), ActiveBattles: s.svc.ActiveBattles()})
}

// DELETE /stats clears recorded activity. Live battles are kept.
func (s *Server) handleStatsReset(w http.ResponseWriter, r *http.Request) {
	s.stats.Reset()
	log.Printf("api: stats reset")
	w.WriteHeader(http.StatusNoContent)
}

// writeOutcome renders the post-call battle state. Finished and wrong-turn
// rejections are not errors at the HTTP boundary.
func (s *Server) writeOutcome(w http.ResponseWriter, id string, out battle.Outcome, err error) {
	switch {
	case err == nil, errors.Is(err, battle.ErrBattleFinished), errors.Is(err, battle.ErrWrongTurn):
		writeJSON(w, s.view(id, out.Battle))
	default:
		writeServiceError(w, err)
	}
}

// ========================= Helpers =========================

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   http.StatusText(code),
		"message": msg,
		"status":  code,
	})
}

func writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, battle.ErrBattleNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	log.Printf("api: unexpected error: %v", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// decodeOptional decodes a JSON body; an empty body leaves v untouched.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orString(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

func orInt(f *float64, def int) int {
	if f == nil {
		return def
	}
	return int(*f)
}

// simple CORS for browser clients
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
