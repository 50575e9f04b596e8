package engine

import (
	"maps"
	"slices"
	"sync"

	"basegraph.app/harmony/internal/artifact"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusReady     Status = "ready"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusBlocked   Status = "blocked"
)

// Terminal reports whether no further transition out of s exists.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusBlocked
}

var transitions = map[Status][]Status{
	StatusPending: {StatusReady, StatusBlocked},
	StatusReady:   {StatusRunning, StatusBlocked},
	StatusRunning: {StatusSucceeded, StatusFailed},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// stateBook is the single mutation path for statuses, results and the
// current graph snapshot. Workers read through it concurrently; every write
// holds the lock.
type stateBook struct {
	mu        sync.Mutex
	graph     *artifact.Graph
	status    map[string]Status
	results   map[string]ArtifactResult
	blockedBy map[string]string
}

func newStateBook(g *artifact.Graph) *stateBook {
	b := &stateBook{
		graph:     g,
		status:    make(map[string]Status, g.Len()),
		results:   make(map[string]ArtifactResult, g.Len()),
		blockedBy: make(map[string]string),
	}
	for _, id := range g.IDs() {
		b.status[id] = StatusPending
	}
	return b
}

func (b *stateBook) snapshot() *artifact.Graph {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.graph
}

func (b *stateBook) move(id string, to Status) bool {
	if !CanTransition(b.status[id], to) {
		return false
	}
	b.status[id] = to
	return true
}

// next marks every pending artifact whose requirements have all succeeded
// as ready and returns them in insertion order.
func (b *stateBook) next() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var wave []string
	for _, s := range b.graph.Specs() {
		if b.status[s.ID] != StatusPending {
			continue
		}
		ready := true
		for _, req := range s.Requires {
			if b.status[req] != StatusSucceeded {
				ready = false
				break
			}
		}
		if ready && b.move(s.ID, StatusReady) {
			wave = append(wave, s.ID)
		}
	}
	return wave
}

func (b *stateBook) start(id string, tier artifact.ModelTier) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.move(id, StatusRunning) {
		return false
	}
	b.results[id] = ArtifactResult{Tier: tier}
	return true
}

func (b *stateBook) succeed(id string, res ArtifactResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.move(id, StatusSucceeded) {
		b.results[id] = res
	}
}

// fail records the failure and blocks every transitive dependent that has
// not started yet. It returns the newly blocked ids.
func (b *stateBook) fail(id string, res ArtifactResult) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.move(id, StatusFailed) {
		return nil
	}
	b.results[id] = res

	var blocked []string
	for _, dep := range b.graph.TransitiveDependents(id) {
		if b.move(dep, StatusBlocked) {
			b.blockedBy[dep] = id
			blocked = append(blocked, dep)
		}
	}
	return blocked
}

// failRunning fails every in-flight artifact with err. Dependents stay
// pending: they were never attempted.
func (b *stateBook) failRunning(err error) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var failed []string
	for _, id := range b.graph.IDs() {
		if b.status[id] != StatusRunning {
			continue
		}
		b.status[id] = StatusFailed
		res := b.results[id]
		res.Err = err
		b.results[id] = res
		failed = append(failed, id)
	}
	return failed
}

// release returns ready artifacts that never started to pending.
func (b *stateBook) release(ids []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		if b.status[id] == StatusReady {
			b.status[id] = StatusPending
		}
	}
}

// dependencies returns the materialized content of id's requirements.
func (b *stateBook) dependencies(id string) map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, _ := b.graph.Get(id)
	deps := make(map[string]string, len(s.Requires))
	for _, req := range s.Requires {
		deps[req] = b.results[req].Content
	}
	return deps
}

// grow swaps in a larger snapshot. New artifacts start pending, or blocked
// when a requirement already failed or was blocked. It returns the newly
// blocked ids with the artifact that blocked each.
func (b *stateBook) grow(g *artifact.Graph) map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()

	blocked := make(map[string]string)
	b.graph = g
	for _, wave := range g.Waves() {
		for _, id := range wave {
			if _, known := b.status[id]; known {
				continue
			}
			b.status[id] = StatusPending
			s, _ := g.Get(id)
			for _, req := range s.Requires {
				if st := b.status[req]; st == StatusFailed || st == StatusBlocked {
					b.status[id] = StatusBlocked
					by := req
					if st == StatusBlocked {
						by = b.blockedBy[req]
					}
					b.blockedBy[id] = by
					blocked[id] = by
					break
				}
			}
		}
	}
	return blocked
}

func (b *stateBook) statuses() map[string]Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.status)
}

func (b *stateBook) outcomes() (map[string]ArtifactResult, map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.results), maps.Clone(b.blockedBy)
}
