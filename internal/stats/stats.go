package stats

import (
	"sync"
	"time"

	"github.com/pefman/battle-sim/internal/models"
)

// TopHit is the largest single hit recorded on a given day.
type TopHit struct {
	BattleID string `json:"battleId"`
	Attacker string `json:"attacker"`
	Defender string `json:"defender"`
	Attack   string `json:"attack"`
	Damage   int    `json:"damage"`
	Time     int64  `json:"time"`
}

// Summary is the public view of the recorder.
type Summary struct {
	Date            string         `json:"date"`
	TopHit          *TopHit        `json:"topHit,omitempty"`
	HitsToday       int            `json:"hitsToday"`
	BattlesStarted  int            `json:"battlesStarted"`
	BattlesFinished int            `json:"battlesFinished"`
	AttackUsage     map[string]int `json:"attackUsage"`
}

// Recorder aggregates battle activity in memory. It implements battle.Observer.
type Recorder struct {
	mu       sync.Mutex
	now      func() time.Time
	daily    map[string]*day // by date string YYYY-MM-DD UTC
	usage    map[string]int
	started  int
	finished int
}

func NewRecorder() *Recorder {
	return &Recorder{
		now:   time.Now,
		daily: map[string]*day{},
		usage: map[string]int{},
	}
}

func (r *Recorder) BattleStarted(string, models.BattleSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

// HitApplied keeps the day's top hit; ties keep the earlier one.
func (r *Recorder) HitApplied(hit models.Hit, _ models.BattleSnapshot) {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage[hit.Attack]++
	if hit.Finished {
		r.finished++
	}
	d := r.today(now)
	d.hits++
	if d.top == nil || hit.Damage > d.top.Damage {
		d.top = &TopHit{
			BattleID: hit.BattleID,
			Attacker: hit.AttackerName,
			Defender: hit.DefenderName,
			Attack:   hit.Attack,
			Damage:   hit.Damage,
			Time:     now.Unix(),
		}
	}
}

func (r *Recorder) BattleDeleted(string) {}

func (r *Recorder) Summary() Summary {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := Summary{
		Date:            dateKey(now),
		BattlesStarted:  r.started,
		BattlesFinished: r.finished,
		AttackUsage:     make(map[string]int, len(r.usage)),
	}
	for k, v := range r.usage {
		out.AttackUsage[k] = v
	}
	if d, ok := r.daily[out.Date]; ok {
		out.HitsToday = d.hits
		if d.top != nil {
			top := *d.top
			out.TopHit = &top
		}
	}
	return out
}
