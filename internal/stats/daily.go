package stats

import "time"

// This file contains helpers around daily stats. It complements stats.go.

type day struct {
	top  *TopHit
	hits int
}

func dateKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

// today returns the bucket for now, creating it if needed. Caller holds mu.
func (r *Recorder) today(now time.Time) *day {
	key := dateKey(now)
	d, ok := r.daily[key]
	if !ok {
		d = &day{}
		r.daily[key] = d
	}
	return d
}

// Reset clears all recorded stats. Backs DELETE /stats.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.daily {
		delete(r.daily, k)
	}
	for k := range r.usage {
		delete(r.usage, k)
	}
	r.started, r.finished = 0, 0
}
