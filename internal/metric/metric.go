// Package metric keeps the engine's per-channel operational counters.
// In-process and lock-free; the HTTP layer serves a snapshot as JSON.
package metric

import (
	"sync/atomic"
	"time"

	"hrnotify/internal/entity"
)

type channelCounters struct {
	attempts   atomic.Int64
	delivered  atomic.Int64
	failed     atomic.Int64
	expired    atomic.Int64
	superseded atomic.Int64
	acks       atomic.Int64
	latencyUS  atomic.Int64
}

type Metrics struct {
	channels  map[entity.Channel]*channelCounters
	submitted atomic.Int64
	rejected  atomic.Int64
	conflicts atomic.Int64
}

func New() *Metrics {
	m := &Metrics{channels: make(map[entity.Channel]*channelCounters, len(entity.AllChannels))}
	for _, c := range entity.AllChannels {
		m.channels[c] = &channelCounters{}
	}
	return m
}

func (m *Metrics) counters(c entity.Channel) *channelCounters {
	if cc, ok := m.channels[c]; ok {
		return cc
	}
	// Unknown channel: drop on the floor rather than panic in a hot path.
	return &channelCounters{}
}

func (m *Metrics) Submitted()             { m.submitted.Add(1) }
func (m *Metrics) Rejected()              { m.rejected.Add(1) }
func (m *Metrics) StateConflict()         { m.conflicts.Add(1) }
func (m *Metrics) Ack(c entity.Channel)   { m.counters(c).acks.Add(1) }
func (m *Metrics) Expired(c entity.Channel) {
	m.counters(c).expired.Add(1)
}

func (m *Metrics) Superseded(c entity.Channel, n int64) {
	m.counters(c).superseded.Add(n)
}

// Attempt records one adapter call and its outcome.
func (m *Metrics) Attempt(c entity.Channel, latency time.Duration, success bool) {
	cc := m.counters(c)
	cc.attempts.Add(1)
	cc.latencyUS.Add(latency.Microseconds())
	if success {
		cc.delivered.Add(1)
	} else {
		cc.failed.Add(1)
	}
}

type ChannelSnapshot struct {
	Attempts     int64   `json:"attempts"`
	Delivered    int64   `json:"delivered"`
	Failed       int64   `json:"failed"`
	Expired      int64   `json:"expired"`
	Superseded   int64   `json:"superseded"`
	Acks         int64   `json:"acks"`
	SuccessRate  float64 `json:"success_rate"`
	ExpiryRate   float64 `json:"expiry_rate"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}

type Snapshot struct {
	Submitted      int64                               `json:"submitted"`
	Rejected       int64                               `json:"rejected"`
	StateConflicts int64                               `json:"state_conflicts"`
	Channels       map[entity.Channel]ChannelSnapshot `json:"channels"`
}

func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		Submitted:      m.submitted.Load(),
		Rejected:       m.rejected.Load(),
		StateConflicts: m.conflicts.Load(),
		Channels:       make(map[entity.Channel]ChannelSnapshot, len(m.channels)),
	}
	for c, cc := range m.channels {
		cs := ChannelSnapshot{
			Attempts:   cc.attempts.Load(),
			Delivered:  cc.delivered.Load(),
			Failed:     cc.failed.Load(),
			Expired:    cc.expired.Load(),
			Superseded: cc.superseded.Load(),
			Acks:       cc.acks.Load(),
		}
		if cs.Attempts > 0 {
			cs.SuccessRate = float64(cs.Delivered) / float64(cs.Attempts)
			cs.AvgLatencyMS = float64(cc.latencyUS.Load()) / float64(cs.Attempts) / 1000
		}
		if total := cs.Delivered + cs.Expired + cs.Superseded; total > 0 {
			cs.ExpiryRate = float64(cs.Expired) / float64(total)
		}
		snap.Channels[c] = cs
	}
	return snap
}
