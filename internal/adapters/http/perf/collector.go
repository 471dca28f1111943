// Package perf keeps a bounded window of request, query and report build
// timings for the preview server's debug page.
package perf

import (
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRingSize is the capacity used when NewCollector gets a non-positive size.
const DefaultRingSize = 4096

// EntryKind names what was timed.
type EntryKind string

const (
	KindRequest EntryKind = "request" // Name is "METHOD /path"
	KindQuery   EntryKind = "query"   // Name is the TimedDB op
	KindBuild   EntryKind = "build"   // Name is the report kind
)

// Entry is one timing sample.
type Entry struct {
	Kind       EntryKind
	Name       string
	Status     int // HTTP status for requests, 0 otherwise
	DurationMs float64
	Timestamp  time.Time
}

// Collector is a fixed-size ring buffer of entries. When full the oldest
// entry is overwritten; aggregation happens only in Snapshot.
type Collector struct {
	mu      sync.Mutex
	entries []Entry
	pos     int
	count   atomic.Int64
}

// NewCollector creates a collector holding at most size entries.
func NewCollector(size int) *Collector {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Collector{entries: make([]Entry, size)}
}

// Record stores e, overwriting the oldest entry when the ring is full.
func (c *Collector) Record(e Entry) {
	c.mu.Lock()
	c.entries[c.pos] = e
	c.pos = (c.pos + 1) % len(c.entries)
	c.mu.Unlock()
	c.count.Add(1)
}

// TotalRecorded returns the number of entries ever recorded.
func (c *Collector) TotalRecorded() int64 {
	return c.count.Load()
}

// Stat aggregates the samples sharing a kind and name.
type Stat struct {
	Name    string  `json:"name"`
	Count   int     `json:"count"`
	AvgMs   float64 `json:"avg_ms"`
	MaxMs   float64 `json:"max_ms"`
	TotalMs float64 `json:"total_ms"`
	Errors  int     `json:"errors,omitempty"` // requests answered with status >= 500
}

// Snapshot is the aggregated view served as JSON.
type Snapshot struct {
	TotalRecorded int64                `json:"total_recorded"`
	RequestP50Ms  float64              `json:"request_p50_ms"`
	RequestP95Ms  float64              `json:"request_p95_ms"`
	RequestP99Ms  float64              `json:"request_p99_ms"`
	Slowest       map[EntryKind][]Stat `json:"slowest"`
}

// Snapshot aggregates entries recorded at or after since, keeping the topN
// slowest names per kind by average duration.
// POST: every kind with samples has a key in Slowest
func (c *Collector) Snapshot(since time.Time, topN int) Snapshot {
	c.mu.Lock()
	buf := slices.Clone(c.entries)
	c.mu.Unlock()

	var requestDurations []float64
	byKind := make(map[EntryKind]map[string]*Stat)
	for _, e := range buf {
		if e.Timestamp.IsZero() || e.Timestamp.Before(since) {
			continue
		}
		if e.Kind == KindRequest {
			requestDurations = append(requestDurations, e.DurationMs)
		}
		stats, ok := byKind[e.Kind]
		if !ok {
			stats = make(map[string]*Stat)
			byKind[e.Kind] = stats
		}
		s, ok := stats[e.Name]
		if !ok {
			s = &Stat{Name: e.Name}
			stats[e.Name] = s
		}
		s.Count++
		s.TotalMs += e.DurationMs
		s.MaxMs = max(s.MaxMs, e.DurationMs)
		if e.Status >= 500 {
			s.Errors++
		}
	}

	snap := Snapshot{TotalRecorded: c.TotalRecorded(), Slowest: make(map[EntryKind][]Stat, len(byKind))}
	for kind, stats := range byKind {
		snap.Slowest[kind] = topByAvg(stats, topN)
	}
	if len(requestDurations) > 0 {
		slices.Sort(requestDurations)
		snap.RequestP50Ms = percentile(requestDurations, 50)
		snap.RequestP95Ms = percentile(requestDurations, 95)
		snap.RequestP99Ms = percentile(requestDurations, 99)
	}
	return snap
}

// percentile interpolates the p-th percentile of a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (p / 100) * float64(len(sorted)-1)
	lower, upper := int(math.Floor(idx)), int(math.Ceil(idx))
	if lower == upper {
		return sorted[lower]
	}
	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

func topByAvg(stats map[string]*Stat, n int) []Stat {
	list := make([]Stat, 0, len(stats))
	for _, s := range stats {
		s.AvgMs = s.TotalMs / float64(s.Count)
		list = append(list, *s)
	}
	slices.SortFunc(list, func(a, b Stat) int {
		switch {
		case a.AvgMs > b.AvgMs:
			return -1
		case a.AvgMs < b.AvgMs:
			return 1
		}
		return 0
	})
	if n > 0 && len(list) > n {
		list = list[:n]
	}
	return list
}
