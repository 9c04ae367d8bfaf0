// Package votes reconciles PK vote tallies from the messaging channel
// with the optimistic local increment applied at click time.
package votes

import (
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stagekit/stagecast/internal/app/roster"
)

// Window is how long a voting session stays active after its start
// event. The countdown re-derives "still active" from the wall clock so
// a missed end event cannot wedge the session open.
const Window = 30 * time.Second

// StartedAtLayout matches the backend's session timestamps.
const StartedAtLayout = "2006-01-02T15:04:05Z0700"

// Board holds the tallies for the two role slots plus any tally values
// waiting for their role to resolve.
type Board struct {
	mu        sync.RWMutex
	now       func() time.Time
	startedAt time.Time
	host      int
	second    int

	// pending holds the first tally snapshot seen for display names
	// whose role slot has not resolved yet; each value is applied
	// exactly once.
	pending map[string]int
}

func New() *Board {
	return &Board{now: time.Now, pending: map[string]int{}}
}

// SetNow swaps the clock; tests only.
func (b *Board) SetNow(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Start opens the session window at the given wall-clock instant.
func (b *Board) Start(at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startedAt = at
}

// StartFromTimestamp opens the window from a backend timestamp string,
// e.g. the embedded snapshot on join. Unparseable stamps fall back to
// the local clock.
func (b *Board) StartFromTimestamp(stamp string) {
	at, err := time.Parse(StartedAtLayout, stamp)
	if err != nil {
		log.Warn().Str("module", "app.votes").Str("started_at", stamp).Msg("bad session timestamp, using local clock")
		b.Start(b.clock()())
		return
	}
	b.Start(at)
}

func (b *Board) clock() func() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.now
}

// Active reports whether the window is still open. The check is
// re-derived from elapsed time on every call: the window self-expires
// without a vote-end event.
func (b *Board) Active() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.startedAt.IsZero() {
		return false
	}
	return b.now().Sub(b.startedAt) < Window
}

func (b *Board) StartedAt() (time.Time, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.startedAt, !b.startedAt.IsZero()
}

func (b *Board) Counts() (host, second int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.host, b.second
}

// CastLocal applies the optimistic increment for a role at click time.
// The server's echo of the same vote lands through the monotonic rule,
// where an equal value is a no-op.
func (b *Board) CastLocal(role roster.Role) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch role {
	case roster.RoleHost:
		b.host++
	case roster.RoleSecond:
		b.second++
	}
}

// ApplyEvent merges a vote control event's attributes. Values keyed by
// the resolved host/second display names merge monotonically; a stale
// tally can never walk a displayed count backwards.
func (b *Board) ApplyEvent(attrs map[string]string, hostName, secondName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := parseCount(attrs, hostName); ok {
		b.host = maxInt(b.host, v)
	}
	if v, ok := parseCount(attrs, secondName); ok {
		b.second = maxInt(b.second, v)
	}
}

// Hold stores a tally snapshot whose role names have not resolved yet.
// Only the first snapshot per name is kept.
func (b *Board) Hold(tally map[string]int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name, count := range tally {
		if _, ok := b.pending[name]; ok {
			continue
		}
		b.pending[name] = count
	}
}

// Resolve applies a held tally for a display name whose role just
// resolved, exactly once.
func (b *Board) Resolve(name string, role roster.Role) {
	b.mu.Lock()
	defer b.mu.Unlock()
	count, ok := b.pending[name]
	if !ok {
		return
	}
	delete(b.pending, name)
	switch role {
	case roster.RoleHost:
		b.host = maxInt(b.host, count)
	case roster.RoleSecond:
		b.second = maxInt(b.second, count)
	}
}

// Reset zeroes the tallies but keeps the session window; used when the
// stage mode changes.
func (b *Board) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.host, b.second = 0, 0
}

// Clear drops everything; used when the active stage changes.
func (b *Board) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.host, b.second = 0, 0
	b.startedAt = time.Time{}
	b.pending = map[string]int{}
}

func parseCount(attrs map[string]string, name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	raw, ok := attrs[name]
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn().Str("module", "app.votes").Str("name", name).Str("value", raw).Msg("unparseable tally value")
		return 0, false
	}
	return v, true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
