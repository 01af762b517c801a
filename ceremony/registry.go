package ceremony

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Event is a ceremony state-change notification pushed to subscribers.
type Event struct {
	CeremonyID string
	Stamp      int64
	Status     string
	Detail     string
}

// Registry owns the live ceremonies of a process and fans their
// state-change events out to subscribers. The UI layer polls snapshots
// through it and listens on a subscription channel for pushes.
type Registry struct {
	mutex sync.Mutex

	keys    map[string]*KeyCeremony
	tallies map[string]*TallyCeremony
	subs    map[chan Event]bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		keys:    make(map[string]*KeyCeremony),
		tallies: make(map[string]*TallyCeremony),
		subs:    make(map[chan Event]bool),
	}
}

// NewKeyCeremony creates a key ceremony, registers it and wires its
// events into the registry.
func (r *Registry) NewKeyCeremony(threshold int, trusteeIDs []string) (*KeyCeremony, error) {
	c, err := NewKeyCeremony(threshold, trusteeIDs)
	if err != nil {
		return nil, err
	}
	c.notify = r.dispatch

	r.mutex.Lock()
	r.keys[c.id] = c
	r.mutex.Unlock()
	return c, nil
}

// NewTallyCeremony creates a tally ceremony from a finished key
// ceremony, registers it and wires its events into the registry.
func (r *Registry) NewTallyCeremony(keys *KeyCeremony, electionIDs []string) (*TallyCeremony, error) {
	t, err := NewTallyCeremony(keys, electionIDs)
	if err != nil {
		return nil, err
	}
	t.notify = r.dispatch

	r.mutex.Lock()
	r.tallies[t.id] = t
	r.mutex.Unlock()
	return t, nil
}

// KeyCeremony looks up a registered key ceremony by id.
func (r *Registry) KeyCeremony(id string) (*KeyCeremony, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	c, ok := r.keys[id]
	if !ok {
		return nil, fmt.Errorf("registry: unknown key ceremony %s", id)
	}
	return c, nil
}

// TallyCeremony looks up a registered tally ceremony by id.
func (r *Registry) TallyCeremony(id string) (*TallyCeremony, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	t, ok := r.tallies[id]
	if !ok {
		return nil, fmt.Errorf("registry: unknown tally ceremony %s", id)
	}
	return t, nil
}

// Status is the aggregated view of one ceremony, key or tally, for
// status listings.
type Status struct {
	CeremonyID string
	Kind       string // "keys" or "tally"
	Status     ExecutionStatus
	Logs       []LogEntry
}

// Statuses returns the aggregated status and logs of every registered
// ceremony, sorted by ceremony id for stable listings.
func (r *Registry) Statuses() []Status {
	r.mutex.Lock()
	keys := make([]*KeyCeremony, 0, len(r.keys))
	for _, c := range r.keys {
		keys = append(keys, c)
	}
	tallies := make([]*TallyCeremony, 0, len(r.tallies))
	for _, t := range r.tallies {
		tallies = append(tallies, t)
	}
	r.mutex.Unlock()

	// Snapshots are taken outside the registry lock: ceremonies push
	// events into the registry while holding their own mutex.
	statuses := make([]Status, 0, len(keys)+len(tallies))
	for _, c := range keys {
		snap := c.Snapshot()
		statuses = append(statuses, Status{
			CeremonyID: snap.ID,
			Kind:       "keys",
			Status:     snap.Status,
			Logs:       snap.Logs,
		})
	}
	for _, t := range tallies {
		snap := t.Snapshot()
		statuses = append(statuses, Status{
			CeremonyID: snap.ID,
			Kind:       "tally",
			Status:     snap.Status,
			Logs:       snap.Logs,
		})
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].CeremonyID < statuses[j].CeremonyID
	})
	return statuses
}

// Subscribe returns a channel receiving every subsequent ceremony
// event. The channel is buffered; a subscriber that falls behind loses
// events rather than blocking the ceremonies.
func (r *Registry) Subscribe() chan Event {
	ch := make(chan Event, 64)
	r.mutex.Lock()
	r.subs[ch] = true
	r.mutex.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (r *Registry) Unsubscribe(ch chan Event) {
	r.mutex.Lock()
	if r.subs[ch] {
		delete(r.subs, ch)
		close(ch)
	}
	r.mutex.Unlock()
}

// dispatch stamps an event and offers it to every subscriber without
// ever blocking the emitting ceremony.
func (r *Registry) dispatch(event Event) {
	event.Stamp = time.Now().UnixNano()

	r.mutex.Lock()
	defer r.mutex.Unlock()
	for ch := range r.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
