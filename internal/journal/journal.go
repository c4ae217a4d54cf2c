package journal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Telemetry captures the metrics adapter used by the journal to report
// persistence failures.
type Telemetry interface {
	RecordJournalDrop(metric string)
}

// Store persists finished matches beyond the in-memory window.
type Store interface {
	AppendMatch(ctx context.Context, match Match) error
	RecentMatches(ctx context.Context, limit int) ([]Match, error)
	Close() error
}

// Match is the record kept for every destroyed room.
type Match struct {
	Sequence     uint64     `json:"sequence"`
	RoomID       uint64     `json:"roomId"`
	Slot         int        `json:"slot"`
	Origin       [3]float64 `json:"origin"`
	Participants []string   `json:"participants"`
	Winners      []string   `json:"winners,omitempty"`
	Losers       []string   `json:"losers,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	Finished     bool       `json:"finished"`
	CreatedAt    time.Time  `json:"createdAt"`
	DestroyedAt  time.Time  `json:"destroyedAt"`
	RecordedAt   time.Time  `json:"recordedAt"`
}

// Clone copies the slices of m.
func (m Match) Clone() Match {
	m.Participants = cloneStrings(m.Participants)
	m.Winners = cloneStrings(m.Winners)
	m.Losers = cloneStrings(m.Losers)
	return m
}

// Journal keeps a rolling window of recent matches, bounded by count and
// age, and forwards every record to an optional Store.
type Journal struct {
	mu         sync.RWMutex
	matches    []Match
	maxMatches int
	maxAge     time.Duration
	sequence   uint64
	store      Store
	telemetry  Telemetry
	now        func() time.Time
}

// New constructs a journal holding at most capacity matches no older than
// maxAge. Zero maxAge disables age eviction; zero capacity keeps nothing in
// memory.
func New(capacity int, maxAge time.Duration) *Journal {
	if capacity < 0 {
		capacity = 0
	}
	if maxAge < 0 {
		maxAge = 0
	}
	return &Journal{
		matches:    make([]Match, 0, capacity),
		maxMatches: capacity,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

const metricJournalStoreFailed = "journal_store_failed"

// Eviction describes a match that fell out of the window.
type Eviction struct {
	Sequence uint64
	RoomID   uint64
	Reason   string
}

// RecordResult summarises the window after a Record.
type RecordResult struct {
	Sequence       uint64
	Size           int
	OldestSequence uint64
	NewestSequence uint64
	Evicted        []Eviction
}

// Record assigns the next sequence to match, stores it in the window
// enforcing retention limits, and appends it to the store. A store failure
// is returned but the in-memory record is kept.
func (j *Journal) Record(ctx context.Context, match Match) (RecordResult, error) {
	j.mu.Lock()
	j.sequence++
	match = match.Clone()
	match.Sequence = j.sequence
	match.RecordedAt = j.now()
	result := j.appendLocked(match)
	store := j.store
	j.mu.Unlock()

	if store == nil {
		return result, nil
	}
	if err := store.AppendMatch(ctx, match); err != nil {
		j.recordDrop(metricJournalStoreFailed)
		return result, fmt.Errorf("append match %d: %w", match.Sequence, err)
	}
	return result, nil
}

func (j *Journal) appendLocked(match Match) RecordResult {
	result := RecordResult{Sequence: match.Sequence}
	if j.maxMatches == 0 {
		j.matches = j.matches[:0]
		return result
	}
	j.matches = append(j.matches, match)

	var evicted []Eviction
	if j.maxAge > 0 {
		cutoff := match.RecordedAt.Add(-j.maxAge)
		idx := 0
		for idx < len(j.matches) && j.matches[idx].RecordedAt.Before(cutoff) {
			evicted = append(evicted, Eviction{Sequence: j.matches[idx].Sequence, RoomID: j.matches[idx].RoomID, Reason: "expired"})
			idx++
		}
		if idx > 0 {
			j.matches = append(j.matches[:0], j.matches[idx:]...)
		}
	}
	if overflow := len(j.matches) - j.maxMatches; overflow > 0 {
		for _, old := range j.matches[:overflow] {
			evicted = append(evicted, Eviction{Sequence: old.Sequence, RoomID: old.RoomID, Reason: "count"})
		}
		j.matches = append(j.matches[:0], j.matches[overflow:]...)
	}

	result.Size = len(j.matches)
	if result.Size > 0 {
		result.OldestSequence = j.matches[0].Sequence
		result.NewestSequence = j.matches[result.Size-1].Sequence
	}
	result.Evicted = evicted
	return result
}

// Recent returns up to limit matches, newest first. A non-positive limit
// returns the whole window.
func (j *Journal) Recent(limit int) []Match {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.matches) == 0 {
		return nil
	}
	if limit <= 0 || limit > len(j.matches) {
		limit = len(j.matches)
	}
	out := make([]Match, 0, limit)
	for i := len(j.matches) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.matches[i].Clone())
	}
	return out
}

// History reads from the store when one is attached, falling back to the
// in-memory window.
func (j *Journal) History(ctx context.Context, limit int) ([]Match, error) {
	j.mu.RLock()
	store := j.store
	j.mu.RUnlock()
	if store == nil {
		return j.Recent(limit), nil
	}
	matches, err := store.RecentMatches(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("read match history: %w", err)
	}
	return matches, nil
}

// BySequence returns the match with sequence from the window.
func (j *Journal) BySequence(sequence uint64) (Match, bool) {
	if sequence == 0 {
		return Match{}, false
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, match := range j.matches {
		if match.Sequence == sequence {
			return match.Clone(), true
		}
	}
	return Match{}, false
}

// Window reports the current retention window.
func (j *Journal) Window() (size int, oldest, newest uint64) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	size = len(j.matches)
	if size == 0 {
		return size, 0, 0
	}
	return size, j.matches[0].Sequence, j.matches[size-1].Sequence
}

// AttachStore sets the persistent store.
func (j *Journal) AttachStore(store Store) {
	j.mu.Lock()
	j.store = store
	j.mu.Unlock()
}

func (j *Journal) AttachTelemetry(t Telemetry) {
	j.mu.Lock()
	j.telemetry = t
	j.mu.Unlock()
}

// Close closes the attached store.
func (j *Journal) Close() error {
	j.mu.Lock()
	store := j.store
	j.store = nil
	j.mu.Unlock()
	if store == nil {
		return nil
	}
	return store.Close()
}

func (j *Journal) recordDrop(metric string) {
	j.mu.RLock()
	t := j.telemetry
	j.mu.RUnlock()
	if t == nil {
		return
	}
	t.RecordJournalDrop(metric)
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
