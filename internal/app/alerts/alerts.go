// Package alerts is the uniform error-surfacing shim: every
// user-visible failure lands here exactly once and ages out on its own.
package alerts

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Board deduplicates concurrently displayed messages by exact text and
// expires them after a fixed window. Expiry is lazy: entries are aged
// out whenever the board is read or written, so no timer goroutines.
type Board struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries []entry
}

type entry struct {
	text     string
	expireAt time.Time
}

func New(ttl time.Duration) *Board {
	return &Board{ttl: ttl, now: time.Now}
}

// SetNow swaps the clock; tests only.
func (b *Board) SetNow(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Publish surfaces a message. Identical text already on display is not
// duplicated; its expiry is left untouched.
func (b *Board) Publish(text string) {
	if text == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked()
	for _, e := range b.entries {
		if e.text == text {
			return
		}
	}
	b.entries = append(b.entries, entry{text: text, expireAt: b.now().Add(b.ttl)})
	log.Warn().Str("module", "app.alerts").Str("error", text).Msg("surfaced")
}

// Dismiss removes a message before its window elapses.
func (b *Board) Dismiss(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.entries {
		if e.text == text {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return
		}
	}
}

// Messages returns the currently displayed texts in publish order.
func (b *Board) Messages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked()
	out := make([]string, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.text
	}
	return out
}

func (b *Board) expireLocked() {
	now := b.now()
	kept := b.entries[:0]
	for _, e := range b.entries {
		if now.Before(e.expireAt) {
			kept = append(kept, e)
		}
	}
	b.entries = kept
}
