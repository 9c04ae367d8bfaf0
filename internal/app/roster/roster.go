// Package roster maintains the set of participants joined to the
// active media session, driven exclusively by transport notifications.
package roster

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/stagekit/stagecast/internal/core"
	"github.com/stagekit/stagecast/internal/domain"
)

// Role classifies a participant for the two-party video layouts.
type Role int

const (
	RoleNone Role = iota
	RoleHost
	RoleSecond
)

// Roster is threadsafe. The coordinator is the only writer; snapshot
// accessors serve concurrent readers (strategy, debug surfaces).
type Roster struct {
	mu           sync.RWMutex
	local        *domain.Participant
	remote       []*domain.Participant
	hostUsername string
}

func New(local *domain.Participant) *Roster {
	return &Roster{local: local}
}

// SetHostUsername records the authoritative host display name from the
// token exchange. Role slots are resolved against it, never against
// join order.
func (r *Roster) SetHostUsername(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hostUsername = name
}

func (r *Roster) HostUsername() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hostUsername
}

// RoleFor classifies a display name against the recorded host username.
func (r *Roster) RoleFor(username string) Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.hostUsername == "" || username == "" {
		return RoleNone
	}
	if username == r.hostUsername {
		return RoleHost
	}
	return RoleSecond
}

// ApplyJoined folds a participant-joined notification into the roster.
// Local joins assign the local identifier once per session; duplicate
// remote joins are a no-op. Returns the affected entry.
func (r *Roster) ApplyJoined(info core.ParticipantInfo) *domain.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info.IsLocal {
		if r.local.ParticipantID == "" {
			r.local.ParticipantID = info.ParticipantID
		}
		return r.local
	}

	for _, p := range r.remote {
		if p.ParticipantID == info.ParticipantID {
			log.Debug().Str("module", "app.roster").Str("participant", string(info.ParticipantID)).Msg("duplicate join ignored")
			return p
		}
	}

	p := domain.NewRemoteParticipant(
		info.ParticipantID,
		info.Attributes[domain.AttrUsername],
		domain.AvatarFromAttributes(info.Attributes),
	)
	r.remote = append(r.remote, p)
	log.Info().Str("module", "app.roster").Str("participant", string(info.ParticipantID)).Str("username", p.Username).Msg("participant added")
	return p
}

// ApplyLeft removes a remote entry or clears the local identifier.
// Idempotent: a left notification for an absent identifier is a no-op.
func (r *Roster) ApplyLeft(id domain.ParticipantID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.local.ParticipantID == id {
		r.local.ParticipantID = ""
		return
	}
	for i, p := range r.remote {
		if p.ParticipantID == id {
			r.remote = append(r.remote[:i], r.remote[i+1:]...)
			log.Info().Str("module", "app.roster").Str("participant", string(id)).Msg("participant removed")
			return
		}
	}
}

// Lookup returns a copy of the entry for the identifier. Empty and
// unknown identifiers report found=false, never panic.
func (r *Roster) Lookup(id domain.ParticipantID) (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p := r.find(id)
	if p == nil {
		return domain.Participant{}, false
	}
	return p.Clone(), true
}

// Mutate applies fn to the entry under the lock. Missing entries are a
// consistency error: logged, absorbed.
func (r *Roster) Mutate(id domain.ParticipantID, fn func(*domain.Participant)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.find(id)
	if p == nil {
		log.Warn().Str("module", "app.roster").Str("participant", string(id)).Msg("mutate on unknown participant")
		return false
	}
	fn(p)
	return true
}

func (r *Roster) find(id domain.ParticipantID) *domain.Participant {
	if id == "" {
		return nil
	}
	if r.local.ParticipantID == id {
		return r.local
	}
	for _, p := range r.remote {
		if p.ParticipantID == id {
			return p
		}
	}
	return nil
}

func (r *Roster) SetPublishState(id domain.ParticipantID, state domain.PublishState) {
	r.Mutate(id, func(p *domain.Participant) { p.PublishState = state })
}

// AddStreams appends streams, skipping locators already present.
func (r *Roster) AddStreams(id domain.ParticipantID, streams []domain.Stream) {
	r.Mutate(id, func(p *domain.Participant) {
		for _, s := range streams {
			if hasURN(p.Streams, s.URN) {
				continue
			}
			p.Streams = append(p.Streams, s)
		}
	})
}

// RemoveStreams drops streams by device locator. The transport may
// reorder stream lists between notifications, so position is never
// trusted.
func (r *Roster) RemoveStreams(id domain.ParticipantID, streams []domain.Stream) {
	r.Mutate(id, func(p *domain.Participant) {
		kept := p.Streams[:0]
		for _, s := range p.Streams {
			if hasURN(streams, s.URN) {
				continue
			}
			kept = append(kept, s)
		}
		p.Streams = kept
	})
}

// ApplyMuted folds a muted-streams notification into the entry's
// per-kind mute flags and stream states.
func (r *Roster) ApplyMuted(id domain.ParticipantID, streams []domain.Stream) {
	r.Mutate(id, func(p *domain.Participant) {
		for _, s := range streams {
			switch s.Kind {
			case domain.StreamAudio:
				p.AudioMuted = s.Muted
			case domain.StreamVideo:
				p.VideoMuted = s.Muted
			}
			for i := range p.Streams {
				if p.Streams[i].URN == s.URN {
					p.Streams[i].Muted = s.Muted
				}
			}
		}
	})
}

// ApplyAudioStats updates the speaking flag from an RMS sample.
func (r *Roster) ApplyAudioStats(id domain.ParticipantID, rms float64) {
	r.Mutate(id, func(p *domain.Participant) {
		p.Speaking = rms > p.SpeakingThreshold
	})
}

// MutateLocal applies fn to the local entry under the lock. The
// coordinator is the only caller; concurrent readers see the change
// through snapshots.
func (r *Roster) MutateLocal(fn func(*domain.Participant)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.local)
}

// ToggleRemoteAudioMuted flips the audio mute flag on every remote
// entry and returns the new shared state.
func (r *Roster) ToggleRemoteAudioMuted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	muted := false
	for _, p := range r.remote {
		p.AudioMuted = !p.AudioMuted
		muted = p.AudioMuted
	}
	return muted
}

// SetRequiresAudioOnlyAll forces or releases the background audio-only
// cap for every entry.
func (r *Roster) SetRequiresAudioOnlyAll(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local.RequiresAudioOnly = v
	for _, p := range r.remote {
		p.RequiresAudioOnly = v
	}
}

// ResetRemote drops every remote entry, keeping the local one; used on
// session teardown.
func (r *Roster) ResetRemote() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remote = nil
}

func (r *Roster) Local() (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.local.Clone(), true
}

func (r *Roster) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return 1 + len(r.remote)
}

// Snapshot returns copies in local-first order.
func (r *Roster) Snapshot() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Participant, 0, 1+len(r.remote))
	out = append(out, r.local.Clone())
	for _, p := range r.remote {
		out = append(out, p.Clone())
	}
	return out
}

func hasURN(streams []domain.Stream, urn string) bool {
	for _, s := range streams {
		if s.URN == urn {
			return true
		}
	}
	return false
}
