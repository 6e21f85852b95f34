package game

import "sync/atomic"

// Metrics counts what the session did since start (read by /metrics)
type Metrics struct {
	TickCount    int64 // ticks run
	TotalTickNs  int64 // time spent inside Tick
	Joins        int64
	Rejected     int64 // joins refused by validation
	Leaves       int64
	Deaths       int64
	FoodEaten    int64
	MovesIgnored int64 // reverse, invalid or unknown-player moves
	Resumed      int64
}

func (m *Metrics) incJoins()        { atomic.AddInt64(&m.Joins, 1) }
func (m *Metrics) incRejected()     { atomic.AddInt64(&m.Rejected, 1) }
func (m *Metrics) incLeaves()       { atomic.AddInt64(&m.Leaves, 1) }
func (m *Metrics) incDeaths()       { atomic.AddInt64(&m.Deaths, 1) }
func (m *Metrics) incFoodEaten()    { atomic.AddInt64(&m.FoodEaten, 1) }
func (m *Metrics) incMovesIgnored() { atomic.AddInt64(&m.MovesIgnored, 1) }
func (m *Metrics) incResumed()      { atomic.AddInt64(&m.Resumed, 1) }

func (m *Metrics) addTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot returns a read-only copy for HTTP output
func (m *Metrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":    tick,
		"avg_tick_ms":   avgMs,
		"joins":         atomic.LoadInt64(&m.Joins),
		"joins_refused": atomic.LoadInt64(&m.Rejected),
		"leaves":        atomic.LoadInt64(&m.Leaves),
		"deaths":        atomic.LoadInt64(&m.Deaths),
		"food_eaten":    atomic.LoadInt64(&m.FoodEaten),
		"moves_ignored": atomic.LoadInt64(&m.MovesIgnored),
		"resumed":       atomic.LoadInt64(&m.Resumed),
	}
}
