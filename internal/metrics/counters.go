// Package metrics keeps in-process event counters exposed on the admin endpoint.
package metrics

import (
	"sort"
	"sync"
)

// Recorder increments named event counters.
type Recorder interface {
	Increment(event string)
}

// Counters implements Recorder with in-memory counts.
type Counters struct {
	mutex  sync.Mutex
	counts map[string]int64
}

// NewCounters constructs an empty counter set.
func NewCounters() *Counters {
	return &Counters{counts: make(map[string]int64)}
}

// Increment increases the counter for the given event.
func (counters *Counters) Increment(event string) {
	counters.mutex.Lock()
	defer counters.mutex.Unlock()
	counters.counts[event]++
}

// Count returns the current value for the given event.
func (counters *Counters) Count(event string) int64 {
	counters.mutex.Lock()
	defer counters.mutex.Unlock()
	return counters.counts[event]
}

// Snapshot returns a copy of all counters.
func (counters *Counters) Snapshot() map[string]int64 {
	counters.mutex.Lock()
	defer counters.mutex.Unlock()
	clone := make(map[string]int64, len(counters.counts))
	for event, count := range counters.counts {
		clone[event] = count
	}
	return clone
}

// Events lists the recorded event names in lexical order.
func (counters *Counters) Events() []string {
	counters.mutex.Lock()
	defer counters.mutex.Unlock()
	events := make([]string, 0, len(counters.counts))
	for event := range counters.counts {
		events = append(events, event)
	}
	sort.Strings(events)
	return events
}

// Noop discards every event.
type Noop struct{}

// Increment does nothing.
func (Noop) Increment(string) {}
