package battle

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/pefman/battle-sim/internal/engine"
	"github.com/pefman/battle-sim/internal/game"
	"github.com/pefman/battle-sim/internal/models"
	"github.com/pefman/battle-sim/internal/storage"
)

type recordingObserver struct {
	mu      sync.Mutex
	started []string
	hits    []models.Hit
	deleted []string
}

func (r *recordingObserver) BattleStarted(id string, _ models.BattleSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, id)
}

func (r *recordingObserver) HitApplied(hit models.Hit, _ models.BattleSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits = append(r.hits, hit)
}

func (r *recordingObserver) BattleDeleted(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, id)
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	n := 0
	opts = append([]Option{WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("battle-%d", n)
	})}, opts...)
	return NewService(storage.NewMemory(), game.DefaultRegistry(), engine.NewPicker(7), opts...)
}

func TestStartBattleDefaults(t *testing.T) {
	svc := newTestService(t)
	id, snap := svc.StartBattle(context.Background(), "", "")
	if id != "battle-1" {
		t.Fatalf("unexpected id %q", id)
	}
	if snap.Player.Name != "Hero" || snap.Enemy.Name != "Dragon" {
		t.Fatalf("unexpected names %q vs %q", snap.Player.Name, snap.Enemy.Name)
	}
	p := snap.Player
	if p.MaxHealth != 150 || p.CurrentHealth != 150 || p.Attack != 25 || p.Defense != 15 || p.Speed != 20 {
		t.Fatalf("unexpected player stats %+v", p)
	}
	e := snap.Enemy
	if e.MaxHealth != 120 || e.Attack != 30 || e.Defense != 10 || e.Speed != 15 {
		t.Fatalf("unexpected enemy stats %+v", e)
	}
	if snap.CurrentTurn != models.SidePlayer {
		t.Fatalf("expected player to open, got %s", snap.CurrentTurn)
	}
	if snap.Finished || snap.LastDamage != 0 || snap.LastDamageTarget != "" {
		t.Fatalf("unexpected initial state %+v", snap)
	}
}

func TestStartBattleCustomNames(t *testing.T) {
	svc := newTestService(t)
	_, snap := svc.StartBattle(context.Background(), "Ash", "Onix")
	if snap.Player.Name != "Ash" || snap.Enemy.Name != "Onix" {
		t.Fatalf("unexpected names %q vs %q", snap.Player.Name, snap.Enemy.Name)
	}
}

func TestStartBattleFromExternalFixesDefenseAndSpeed(t *testing.T) {
	svc := newTestService(t)
	_, snap := svc.StartBattleFromExternal(context.Background(),
		Fighter{Name: "A", HP: 80, Attack: 40, Defense: 99, Speed: 99},
		Fighter{Name: "B", HP: 90, Attack: 20},
	)
	for _, c := range []models.Character{snap.Player, snap.Enemy} {
		if c.Defense != 10 || c.Speed != 10 {
			t.Fatalf("expected defense/speed 10/10, got %d/%d", c.Defense, c.Speed)
		}
	}
	if snap.Player.MaxHealth != 80 || snap.Player.Attack != 40 || snap.Enemy.MaxHealth != 90 || snap.Enemy.Attack != 20 {
		t.Fatalf("caller stats not applied: %+v", snap)
	}
	if snap.CurrentTurn != models.SidePlayer {
		t.Fatalf("speed tie should favour player, got %s", snap.CurrentTurn)
	}
}

func TestPlayerTackleScenario(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	id, _ := svc.StartBattle(ctx, "", "")

	out, err := svc.ExecutePlayerAttack(ctx, id, "Tackle")
	if err != nil {
		t.Fatalf("player attack: %v", err)
	}
	if !out.Applied || out.Damage != 1 {
		t.Fatalf("expected 1 damage applied, got %+v", out)
	}
	if out.Battle.Enemy.CurrentHealth != 119 {
		t.Fatalf("expected enemy health 119, got %d", out.Battle.Enemy.CurrentHealth)
	}
	if out.Battle.CurrentTurn != models.SideEnemy || out.Battle.Finished {
		t.Fatalf("unexpected state after attack: turn=%s finished=%v", out.Battle.CurrentTurn, out.Battle.Finished)
	}
	if out.Battle.LastDamage != 1 || out.Battle.LastDamageTarget != models.SideEnemy {
		t.Fatalf("unexpected last damage %d/%s", out.Battle.LastDamage, out.Battle.LastDamageTarget)
	}
	want := "Hero uses Tackle and deals 1 damage to Dragon"
	if last := out.Battle.Log[len(out.Battle.Log)-1]; last != want {
		t.Fatalf("expected log %q, got %q", want, last)
	}
}

func TestRejectedActionsLeaveStateUnchanged(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	id, before := svc.StartBattle(ctx, "", "")

	// Player holds the opening turn.
	if _, err := svc.ExecuteEnemyAttack(ctx, id, "SLASH"); !errors.Is(err, ErrWrongTurn) {
		t.Fatalf("expected wrong turn, got %v", err)
	}
	if _, err := svc.EnemyTurn(ctx, id); !errors.Is(err, ErrWrongTurn) {
		t.Fatalf("expected wrong turn, got %v", err)
	}
	after, err := svc.GetBattle(ctx, id)
	if err != nil {
		t.Fatalf("get battle: %v", err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("rejected action mutated battle:\nbefore %+v\nafter  %+v", before, after)
	}

	if _, err := svc.ExecutePlayerAttack(ctx, id, "TACKLE"); err != nil {
		t.Fatalf("player attack: %v", err)
	}
	out, err := svc.ExecutePlayerAttack(ctx, id, "TACKLE")
	if !errors.Is(err, ErrWrongTurn) || CodeOf(err) != CodeWrongTurn {
		t.Fatalf("expected wrong turn on second player attack, got %v", err)
	}
	if out.Applied || out.Battle.CurrentTurn != models.SideEnemy {
		t.Fatalf("rejected outcome should carry unchanged state, got %+v", out)
	}
}

func TestUnknownBattle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.GetBattle(ctx, "nope"); !errors.Is(err, ErrBattleNotFound) {
		t.Fatalf("get: expected not found, got %v", err)
	}
	if _, err := svc.ExecutePlayerAttack(ctx, "nope", "TACKLE"); !errors.Is(err, ErrBattleNotFound) {
		t.Fatalf("player attack: expected not found, got %v", err)
	}
	if _, err := svc.ExecuteEnemyAttack(ctx, "nope", ""); !errors.Is(err, ErrBattleNotFound) {
		t.Fatalf("enemy attack: expected not found, got %v", err)
	}
	if err := svc.DeleteBattle(ctx, "nope"); !errors.Is(err, ErrBattleNotFound) {
		t.Fatalf("delete: expected not found, got %v", err)
	}
	if err := svc.DeleteBattle(ctx, "nope"); !strings.Contains(err.Error(), `"nope"`) {
		t.Fatalf("expected id in message, got %v", err)
	}
}

func TestFinishingBlow(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	id, _ := svc.StartBattleFromExternal(ctx,
		Fighter{Name: "Hero", HP: 150, Attack: 100},
		Fighter{Name: "Slime", HP: 5, Attack: 1},
	)

	out, err := svc.ExecutePlayerAttack(ctx, id, "TACKLE")
	if err != nil {
		t.Fatalf("player attack: %v", err)
	}
	if out.Damage != 30 {
		t.Fatalf("expected 30 damage, got %d", out.Damage)
	}
	b := out.Battle
	if b.Enemy.CurrentHealth != 0 || b.Enemy.HealthPercentage() != 0 {
		t.Fatalf("expected enemy clamped to 0, got %d", b.Enemy.CurrentHealth)
	}
	if !out.Finished || !b.Finished {
		t.Fatal("expected battle finished")
	}
	if b.CurrentTurn != models.SideEnemy {
		t.Fatalf("turn should still flip on the finishing blow, got %s", b.CurrentTurn)
	}
	if last := b.Log[len(b.Log)-1]; last != "Hero wins the battle!" {
		t.Fatalf("expected victory line, got %q", last)
	}

	for name, call := range map[string]func() (Outcome, error){
		"player": func() (Outcome, error) { return svc.ExecutePlayerAttack(ctx, id, "THUNDER") },
		"enemy":  func() (Outcome, error) { return svc.ExecuteEnemyAttack(ctx, id, "SLASH") },
		"attack": func() (Outcome, error) { return svc.Attack(ctx, id, "") },
		"ai":     func() (Outcome, error) { return svc.EnemyTurn(ctx, id) },
	} {
		after, err := call()
		if !errors.Is(err, ErrBattleFinished) {
			t.Fatalf("%s: expected finished rejection, got %v", name, err)
		}
		if !reflect.DeepEqual(after.Battle, b) {
			t.Fatalf("%s: finished battle mutated", name)
		}
	}
}

func TestEnemyAttackDefaultsToTackle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	id, _ := svc.StartBattle(ctx, "", "")
	if _, err := svc.ExecutePlayerAttack(ctx, id, "TACKLE"); err != nil {
		t.Fatalf("player attack: %v", err)
	}
	out, err := svc.ExecuteEnemyAttack(ctx, id, "")
	if err != nil {
		t.Fatalf("enemy attack: %v", err)
	}
	if out.Attack.ID != "TACKLE" || out.Target != models.SidePlayer {
		t.Fatalf("expected enemy tackle on player, got %+v", out)
	}
	if out.Battle.LastDamageTarget != models.SidePlayer {
		t.Fatalf("expected player hit, got %s", out.Battle.LastDamageTarget)
	}
}

func TestAttackRoutesByTurn(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	id, _ := svc.StartBattle(ctx, "", "")

	first, err := svc.Attack(ctx, id, "FIREBALL")
	if err != nil || first.Actor != models.SidePlayer {
		t.Fatalf("expected player fireball, got %+v / %v", first, err)
	}
	// 25*80/100 = 20, enemy defense 10 halved.
	if first.Damage != 15 {
		t.Fatalf("expected 15 damage, got %d", first.Damage)
	}
	second, err := svc.Attack(ctx, id, "SLASH")
	if err != nil || second.Actor != models.SideEnemy {
		t.Fatalf("expected enemy slash, got %+v / %v", second, err)
	}
}

func TestEnemyTurnPicksFromEnemyRoster(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	allowed := map[string]bool{"TACKLE": true, "SLASH": true, "FIREBALL": true}
	for i := 0; i < 20; i++ {
		id, _ := svc.StartBattle(ctx, "", "")
		if _, err := svc.ExecutePlayerAttack(ctx, id, "TACKLE"); err != nil {
			t.Fatalf("player attack: %v", err)
		}
		out, err := svc.EnemyTurn(ctx, id)
		if err != nil {
			t.Fatalf("enemy turn: %v", err)
		}
		if !allowed[out.Attack.ID] {
			t.Fatalf("enemy used %q outside its roster", out.Attack.ID)
		}
	}
}

func TestTurnsStrictlyAlternateUntilFinished(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	id, snap := svc.StartBattle(ctx, "", "")

	turn := snap.CurrentTurn
	for i := 0; i < 1000; i++ {
		out, err := svc.Attack(ctx, id, "THUNDER")
		if errors.Is(err, ErrBattleFinished) {
			return
		}
		if err != nil {
			t.Fatalf("attack %d: %v", i, err)
		}
		if out.Actor != turn {
			t.Fatalf("attack %d: expected %s to act, got %s", i, turn, out.Actor)
		}
		turn = turn.Other()
		if out.Battle.CurrentTurn != turn {
			t.Fatalf("attack %d: turn did not flip", i)
		}
	}
	t.Fatal("battle never finished")
}

func TestConcurrentAttacksDoNotDoubleApply(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	id, _ := svc.StartBattle(ctx, "", "")

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Attack(ctx, id, "TACKLE"); err != nil {
				t.Errorf("attack: %v", err)
			}
		}()
	}
	wg.Wait()

	snap, err := svc.GetBattle(ctx, id)
	if err != nil {
		t.Fatalf("get battle: %v", err)
	}
	// Every tackle in this matchup deals exactly 1 damage.
	if lost := (150 - snap.Player.CurrentHealth) + (120 - snap.Enemy.CurrentHealth); lost != n {
		t.Fatalf("expected %d total damage, got %d", n, lost)
	}
	if snap.Player.CurrentHealth != 150-n/2 || snap.Enemy.CurrentHealth != 120-n/2 {
		t.Fatalf("turns did not alternate: player %d enemy %d", snap.Player.CurrentHealth, snap.Enemy.CurrentHealth)
	}
	if len(snap.Log) != n+1 {
		t.Fatalf("expected %d log lines, got %d", n+1, len(snap.Log))
	}
}

func TestObserversAndDelete(t *testing.T) {
	obs := &recordingObserver{}
	svc := newTestService(t, WithObservers(obs))
	ctx := context.Background()

	id, _ := svc.StartBattle(ctx, "", "")
	if _, err := svc.ExecutePlayerAttack(ctx, id, "SLASH"); err != nil {
		t.Fatalf("player attack: %v", err)
	}
	// rejected: not the player's turn any more
	_, _ = svc.ExecutePlayerAttack(ctx, id, "SLASH")

	if err := svc.DeleteBattle(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetBattle(ctx, id); !errors.Is(err, ErrBattleNotFound) {
		t.Fatalf("expected deleted battle to be gone, got %v", err)
	}

	if len(obs.started) != 1 || obs.started[0] != id {
		t.Fatalf("unexpected started events %v", obs.started)
	}
	if len(obs.hits) != 1 {
		t.Fatalf("expected exactly one hit event, got %d", len(obs.hits))
	}
	h := obs.hits[0]
	if h.BattleID != id || h.Attack != "Slash" || h.AttackerName != "Hero" || h.DefenderName != "Dragon" || h.Target != models.SideEnemy {
		t.Fatalf("unexpected hit %+v", h)
	}
	if len(obs.deleted) != 1 || obs.deleted[0] != id {
		t.Fatalf("unexpected deleted events %v", obs.deleted)
	}
}

func TestErrorIsByCode(t *testing.T) {
	err := notFound("abc")
	if !errors.Is(err, ErrBattleNotFound) {
		t.Fatal("expected code match")
	}
	if errors.Is(err, ErrWrongTurn) {
		t.Fatal("unexpected match across codes")
	}
	if CodeOf(fmt.Errorf("wrapped: %w", ErrBattleFinished)) != CodeBattleFinished {
		t.Fatal("expected code through wrapping")
	}
	if CodeOf(errors.New("other")) != "" {
		t.Fatal("expected empty code for foreign errors")
	}
}

func TestNegativeAttackStatDoesNotHeal(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	id, _ := svc.StartBattleFromExternal(ctx,
		Fighter{Name: "Hero", HP: 150, Attack: -50},
		Fighter{Name: "Dragon", HP: 120, Attack: 30},
	)

	out, err := svc.ExecutePlayerAttack(ctx, id, "POISON_STING")
	if err != nil {
		t.Fatalf("player attack: %v", err)
	}
	e := out.Battle.Enemy
	if e.CurrentHealth != 120 || e.CurrentHealth > e.MaxHealth {
		t.Fatalf("expected enemy health unchanged at 120, got %d/%d", e.CurrentHealth, e.MaxHealth)
	}
	if out.Damage != 0 || out.Battle.LastDamage != 0 {
		t.Fatalf("expected 0 damage, got outcome %d last %d", out.Damage, out.Battle.LastDamage)
	}
	want := "Hero uses Poison Sting and deals 0 damage to Dragon"
	if last := out.Battle.Log[len(out.Battle.Log)-1]; last != want {
		t.Fatalf("expected log %q, got %q", want, last)
	}
	if out.Battle.CurrentTurn != models.SideEnemy {
		t.Fatalf("expected turn to pass, got %s", out.Battle.CurrentTurn)
	}
}

func TestUnknownAttackUsesFallback(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	id, _ := svc.StartBattle(ctx, "", "")

	out, err := svc.Attack(ctx, id, "")
	if err != nil {
		t.Fatalf("attack: %v", err)
	}
	if !out.Fallback || out.Attack.Name != "Strike" {
		t.Fatalf("expected fallback Strike, got %+v", out.Attack)
	}
	out, err = svc.Attack(ctx, id, "slash")
	if err != nil {
		t.Fatalf("attack: %v", err)
	}
	if out.Fallback || out.Attack.Name != "Slash" {
		t.Fatalf("expected known Slash, got %+v fallback=%v", out.Attack, out.Fallback)
	}
}

func TestActiveBattles(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	id, _ := svc.StartBattle(ctx, "", "")
	svc.StartBattle(ctx, "", "")
	if n := svc.ActiveBattles(); n != 2 {
		t.Fatalf("expected 2 active battles, got %d", n)
	}
	if err := svc.DeleteBattle(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n := svc.ActiveBattles(); n != 1 {
		t.Fatalf("expected 1 active battle, got %d", n)
	}
}
