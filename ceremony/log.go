package ceremony

import (
	"sort"
	"time"
)

// LogEntry is one timestamped line of a ceremony's audit log. Stamp is
// a unix timestamp in nanoseconds; an int64 keeps the entry trivially
// encodable.
type LogEntry struct {
	Stamp int64
	Text  string
}

// ceremonyLog is the append-only log of a single ceremony. There is no
// deduplication: the log records what happened, repeated or not.
// Callers hold the ceremony mutex.
type ceremonyLog struct {
	entries []LogEntry
}

func (l *ceremonyLog) append(text string) {
	l.entries = append(l.entries, LogEntry{
		Stamp: time.Now().UnixNano(),
		Text:  text,
	})
}

// snapshot returns a copy ordered by stamp, ties broken by insertion
// order.
func (l *ceremonyLog) snapshot() []LogEntry {
	entries := append([]LogEntry(nil), l.entries...)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Stamp < entries[j].Stamp
	})
	return entries
}
