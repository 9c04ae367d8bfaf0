// Package feed reconciles the polled stage listing with the in-memory
// stage set and drives the scrollable carousel ordering.
package feed

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stagekit/stagecast/internal/core"
	"github.com/stagekit/stagecast/internal/domain"
)

type Direction int

const (
	Up Direction = iota
	Down
)

// ScrollThreshold is the minimum gesture magnitude that commits a
// scroll.
const ScrollThreshold = 50.0

// Feed is threadsafe; the coordinator is the only writer. The active
// stage is always the first element of the ordered list.
type Feed struct {
	mu       sync.RWMutex
	stages   []*domain.Stage
	cooldown time.Duration
	notUntil time.Time
	now      func() time.Time
}

func New(cooldown time.Duration) *Feed {
	return &Feed{cooldown: cooldown, now: time.Now}
}

// SetNow swaps the clock; tests only.
func (f *Feed) SetNow(now func() time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

// Merge folds a fresh listing into the stage set. Existing stages keep
// their identity and are mutated in place; stages absent from the
// listing are removed; a two-element result is padded with copies so
// the carousel can wrap. Returns the new active stage and whether the
// active identity changed.
func (f *Feed) Merge(details []core.StageDetails) (*domain.Stage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev := f.activeLocked()

	// Padding copies are rebuilt from scratch on every refresh.
	real := f.stages[:0]
	for _, s := range f.stages {
		if !s.IsCopy() {
			real = append(real, s)
		}
	}
	f.stages = real

	if len(details) == 0 {
		f.stages = nil
		return nil, prev != nil
	}

	sorted := make([]core.StageDetails, len(details))
	copy(sorted, details)
	sort.SliceStable(sorted, func(i, j int) bool {
		return strings.Compare(sorted[i].CreatedAt, sorted[j].CreatedAt) < 0
	})

	for _, d := range sorted {
		if existing := f.findByHostLocked(d.HostID); existing != nil {
			existing.Type = d.Type
			existing.Mode = d.Mode
			existing.Status = d.Status
			existing.AudioSeats = domain.NormalizeSeats(d.Seats)
			continue
		}
		f.stages = append(f.stages, domain.NewStage(
			d.CreatedAt, d.StageArn, d.HostID, d.Type, d.Mode, d.Status, d.CreatedAt, d.Seats,
		))
	}

	live := make(map[domain.HostID]bool, len(details))
	for _, d := range details {
		live[d.HostID] = true
	}
	kept := f.stages[:0]
	for _, s := range f.stages {
		if live[s.HostID] {
			kept = append(kept, s)
			continue
		}
		log.Info().Str("module", "app.feed").Str("host", string(s.HostID)).Msg("stage ended, removed")
	}
	f.stages = kept

	// A two-element carousel cannot wrap; pad it with marked copies.
	if len(f.stages) == 2 {
		f.stages = append(f.stages, f.stages[0].Copy(), f.stages[1].Copy())
	}

	next := f.activeLocked()
	return next, !sameStage(prev, next)
}

// DetectScroll turns a gesture translation into a scroll commit.
// Gestures below the threshold are ignored; after a commit further
// commits are suppressed for the cooldown window.
func (f *Feed) DetectScroll(height float64) (*domain.Stage, bool) {
	switch {
	case height > ScrollThreshold:
		return f.Scroll(Down)
	case height < -ScrollThreshold:
		return f.Scroll(Up)
	}
	return nil, false
}

// Scroll rotates the carousel one position. Returns the new active
// stage and whether the commit happened.
func (f *Feed) Scroll(dir Direction) (*domain.Stage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.stages) < 2 {
		return f.activeLocked(), false
	}
	if f.now().Before(f.notUntil) {
		return f.activeLocked(), false
	}
	f.notUntil = f.now().Add(f.cooldown)

	switch dir {
	case Up:
		first := f.stages[0]
		f.stages = append(f.stages[1:], first)
	case Down:
		last := f.stages[len(f.stages)-1]
		f.stages = append([]*domain.Stage{last}, f.stages[:len(f.stages)-1]...)
	}
	return f.activeLocked(), true
}

// ScrollTo moves a stage to the front by excision and reinsertion,
// keeping the rest of the order intact.
func (f *Feed) ScrollTo(id string) (*domain.Stage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.stages) < 2 {
		return f.activeLocked(), false
	}
	for i, s := range f.stages {
		if s.ID != id {
			continue
		}
		if i == 0 {
			return s, false
		}
		f.stages = append(f.stages[:i], f.stages[i+1:]...)
		f.stages = append([]*domain.Stage{s}, f.stages...)
		return s, true
	}
	return f.activeLocked(), false
}

// Mutate applies fn to a stage under the feed lock. Stage fields are
// shared with snapshot readers, so every field write outside Merge must
// come through here.
func (f *Feed) Mutate(s *domain.Stage, fn func(*domain.Stage)) {
	if s == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(s)
}

// FindByHost returns the live entry for a host, nil when absent.
func (f *Feed) FindByHost(hostID domain.HostID) *domain.Stage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.findByHostLocked(hostID)
}

func (f *Feed) Active() *domain.Stage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.activeLocked()
}

func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.stages)
}

func (f *Feed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages = nil
}

// Snapshot returns deep copies in carousel order.
func (f *Feed) Snapshot() []domain.Stage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]domain.Stage, 0, len(f.stages))
	for _, s := range f.stages {
		out = append(out, s.Clone())
	}
	return out
}

func (f *Feed) activeLocked() *domain.Stage {
	if len(f.stages) == 0 {
		return nil
	}
	return f.stages[0]
}

func (f *Feed) findByHostLocked(hostID domain.HostID) *domain.Stage {
	for _, s := range f.stages {
		if s.HostID == hostID {
			return s
		}
	}
	return nil
}

func sameStage(a, b *domain.Stage) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}
