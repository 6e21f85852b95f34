package server

import "sync/atomic"

// Metrics counts transport-level activity (read by /metrics)
type Metrics struct {
	Connections      int64 // currently open
	ConnectionsTotal int64
	Refused          int64 // rejected by connection limits
	Superseded       int64 // closed because the same id connected again
	Malformed        int64 // inbound frames the codec rejected
	RateLimited      int64
	FramesSent       int64
	FramesDropped    int64 // send buffer full
}

func (m *Metrics) incConnections() {
	atomic.AddInt64(&m.Connections, 1)
	atomic.AddInt64(&m.ConnectionsTotal, 1)
}
func (m *Metrics) decConnections()   { atomic.AddInt64(&m.Connections, -1) }
func (m *Metrics) incRefused()       { atomic.AddInt64(&m.Refused, 1) }
func (m *Metrics) incSuperseded()    { atomic.AddInt64(&m.Superseded, 1) }
func (m *Metrics) incMalformed()     { atomic.AddInt64(&m.Malformed, 1) }
func (m *Metrics) incRateLimited()   { atomic.AddInt64(&m.RateLimited, 1) }
func (m *Metrics) incFramesSent()    { atomic.AddInt64(&m.FramesSent, 1) }
func (m *Metrics) incFramesDropped() { atomic.AddInt64(&m.FramesDropped, 1) }

// Snapshot returns a read-only copy for HTTP output
func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"connections":       atomic.LoadInt64(&m.Connections),
		"connections_total": atomic.LoadInt64(&m.ConnectionsTotal),
		"refused":           atomic.LoadInt64(&m.Refused),
		"superseded":        atomic.LoadInt64(&m.Superseded),
		"malformed_frames":  atomic.LoadInt64(&m.Malformed),
		"rate_limited":      atomic.LoadInt64(&m.RateLimited),
		"frames_sent":       atomic.LoadInt64(&m.FramesSent),
		"frames_dropped":    atomic.LoadInt64(&m.FramesDropped),
	}
}
