package coord

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/stagekit/stagecast/internal/app/roster"
	"github.com/stagekit/stagecast/internal/domain"
)

// PublishVideo steps onto the active video stage. A non-NONE mode
// announces the layout change to the room through the backend; the
// announcement is fire-and-forget, publishing proceeds regardless.
func (c *Coordinator) PublishVideo(mode domain.StageMode) {
	c.post(func() { c.publishVideo(mode) })
}

func (c *Coordinator) publishVideo(mode domain.StageMode) {
	stage := c.active
	if stage == nil {
		log.Warn().Str("module", "app.coord").Msg("publish with no active stage")
		return
	}
	if mode != domain.ModeNone {
		hostID := stage.HostID
		userID := c.local.UserID
		c.async("update_mode", func(ctx context.Context) error {
			return c.dir.UpdateMode(ctx, hostID, userID, mode)
		}, func(error) {})
	}
	c.votes.Reset()
	c.roster.MutateLocal(func(p *domain.Participant) { p.OnStage = true })
	c.startPublishing()
	c.state = StateJoinedPublishing
	log.Info().Str("module", "app.coord").Str("mode", string(mode)).Msg("publishing video")
}

// PublishAudioSeat takes a seat on the active audio stage and starts
// publishing audio.
func (c *Coordinator) PublishAudioSeat(index int) {
	c.post(func() { c.publishAudioSeat(index) })
}

func (c *Coordinator) publishAudioSeat(index int) {
	stage := c.active
	if stage == nil || c.local.ParticipantID == "" {
		log.Warn().Str("module", "app.coord").Int("seat", index).Msg("seat publish without a session")
		return
	}
	if index < 0 || index >= domain.AudioSeatCount {
		log.Warn().Str("module", "app.coord").Int("seat", index).Msg("seat index out of range")
		return
	}

	pid := c.local.ParticipantID
	c.roster.MutateLocal(func(p *domain.Participant) {
		p.WantsAudioOnly = true
		p.OnStage = true
		idx := index
		p.SeatIndex = &idx
	})
	c.feed.Mutate(stage, func(s *domain.Stage) { s.TakeSeat(index, pid) })
	c.pushSeats(stage, nil)
	c.startPublishing()
	c.state = StateJoinedPublishing
	log.Info().Str("module", "app.coord").Int("seat", index).Msg("publishing audio")
}

// ChangeSeat moves the local user to another seat while publishing.
func (c *Coordinator) ChangeSeat(index int) {
	c.post(func() {
		stage := c.active
		if stage == nil || c.local.SeatIndex == nil {
			log.Warn().Str("module", "app.coord").Int("seat", index).Msg("seat change without a held seat")
			return
		}
		if index < 0 || index >= domain.AudioSeatCount {
			return
		}
		if stage.SeatAt(index) != "" {
			log.Info().Str("module", "app.coord").Int("seat", index).Msg("seat already taken")
			return
		}
		prev := *c.local.SeatIndex
		c.feed.Mutate(stage, func(s *domain.Stage) {
			s.ClearSeat(prev)
			s.TakeSeat(index, c.local.ParticipantID)
		})
		c.roster.MutateLocal(func(p *domain.Participant) {
			idx := index
			p.SeatIndex = &idx
		})
		c.pushSeats(stage, nil)
	})
}

// pushSeats writes the full seat array to the backend. Failures are
// logged, never escalated; the next room-wide seats event reconciles.
func (c *Coordinator) pushSeats(stage *domain.Stage, after func(err error)) {
	hostID := stage.HostID
	userID := c.local.UserID
	seats := append([]string(nil), stage.AudioSeats...)
	c.async("update_seats", func(ctx context.Context) error {
		return c.dir.UpdateSeats(ctx, hostID, userID, seats)
	}, func(err error) {
		if after != nil {
			after(err)
		}
	})
}

// Unpublish steps off the stage without leaving the session. done runs
// on the loop once the backend has been told.
func (c *Coordinator) Unpublish(done func()) {
	c.post(func() { c.unpublish(done) })
}

func (c *Coordinator) unpublish(done func()) {
	// Off-stage first so a concurrent strategy pass cannot decide to
	// keep publishing.
	c.roster.MutateLocal(func(p *domain.Participant) { p.OnStage = false })
	c.stopPublishing()

	stage := c.active
	if stage == nil {
		c.finishLeave(done)
		return
	}
	c.state = StateJoinedViewing

	switch stage.Type {
	case domain.StageAudio:
		var released bool
		var seat int
		c.roster.MutateLocal(func(p *domain.Participant) {
			p.WantsAudioOnly = false
			if p.SeatIndex != nil {
				seat = *p.SeatIndex
				p.SeatIndex = nil
				released = true
			}
		})
		if released {
			c.feed.Mutate(stage, func(s *domain.Stage) { s.ClearSeat(seat) })
		}
		c.media.RefreshStrategy()
		if released {
			c.pushSeats(stage, func(error) { c.finishLeave(done) })
			return
		}
		c.finishLeave(done)

	default:
		hostID := stage.HostID
		userID := c.local.UserID
		c.async("update_mode", func(ctx context.Context) error {
			return c.dir.UpdateMode(ctx, hostID, userID, domain.ModeNone)
		}, func(error) {
			c.finishLeave(done)
		})
	}
	log.Info().Str("module", "app.coord").Str("stage", stage.ID).Msg("unpublished")
}

func (c *Coordinator) startPublishing() {
	c.wantsPublish.Store(true)
	// While publishing the local feed is rendered from the capture
	// device, not from a subscription to itself.
	c.roster.MutateLocal(func(p *domain.Participant) { p.WantsSubscribed = false })
	c.media.RefreshStrategy()
}

func (c *Coordinator) stopPublishing() {
	c.wantsPublish.Store(false)
	c.roster.MutateLocal(func(p *domain.Participant) { p.WantsSubscribed = true })
	c.media.RefreshStrategy()
}

// CastVote applies the optimistic local increment for the named
// contender and reports the vote to the backend.
func (c *Coordinator) CastVote(username string) {
	c.post(func() {
		stage := c.active
		if stage == nil {
			return
		}
		if !c.votes.Active() {
			log.Debug().Str("module", "app.coord").Str("user", username).Msg("vote outside session window")
			return
		}
		role := c.roster.RoleFor(username)
		if role == roster.RoleNone {
			return
		}
		c.votes.CastLocal(role)
		hostID := stage.HostID
		c.async("cast_vote", func(ctx context.Context) error {
			return c.dir.CastVote(ctx, hostID, domain.UserID(username))
		}, func(error) {})
	})
}

// KickSecondParticipant is the host ending a PK or guest spot: the
// mode-change event tells the second participant to step off.
func (c *Coordinator) KickSecondParticipant() {
	c.post(func() {
		stage := c.active
		if stage == nil || !c.local.IsHost() {
			log.Warn().Str("module", "app.coord").Msg("kick requires hosting a stage")
			return
		}
		hostID := stage.HostID
		userID := c.local.UserID
		c.async("update_mode", func(ctx context.Context) error {
			return c.dir.UpdateMode(ctx, hostID, userID, domain.ModeNone)
		}, func(error) {})
	})
}

// DisconnectParticipant is the host forcing a participant out of the
// session entirely, releasing any audio seat they hold. Failures are
// logged; the participant-left event reconciles the roster.
func (c *Coordinator) DisconnectParticipant(id domain.ParticipantID) {
	c.post(func() {
		stage := c.active
		if stage == nil || !c.local.IsHost() {
			log.Warn().Str("module", "app.coord").Msg("disconnect requires hosting a stage")
			return
		}
		p, ok := c.roster.Lookup(id)
		if !ok || p.IsLocal {
			log.Debug().Str("module", "app.coord").Str("participant", string(id)).Msg("disconnect target not in roster")
			return
		}

		if stage.Type == domain.StageAudio {
			var cleared bool
			c.feed.Mutate(stage, func(s *domain.Stage) {
				for i, occupant := range s.AudioSeats {
					if occupant == string(id) {
						s.ClearSeat(i)
						cleared = true
					}
				}
			})
			if cleared {
				c.pushSeats(stage, nil)
			}
		}

		hostID := stage.HostID
		userID := p.UserID
		c.async("disconnect_participant", func(ctx context.Context) error {
			return c.dir.DisconnectParticipant(ctx, hostID, userID, id)
		}, func(err error) {
			if err != nil {
				log.Error().Str("module", "app.coord").Err(err).Str("participant", string(id)).Msg("participant disconnect failed")
			}
		})
	})
}

// SetBackgrounded caps every subscription to audio while the app is in
// the background and pauses publishing, restoring both on return.
func (c *Coordinator) SetBackgrounded(v bool) {
	c.post(func() {
		if c.backgrounded == v {
			return
		}
		c.backgrounded = v
		if v {
			c.republishAfterResume = c.wantsPublish.Load()
			c.wantsPublish.Store(false)
			c.roster.SetRequiresAudioOnlyAll(true)
			c.media.RefreshStrategy()
			log.Info().Str("module", "app.coord").Msg("backgrounded, audio only")
			return
		}
		audioStage := c.active != nil && c.active.Type == domain.StageAudio
		c.roster.SetRequiresAudioOnlyAll(audioStage)
		if c.republishAfterResume {
			c.wantsPublish.Store(true)
			c.republishAfterResume = false
		}
		c.media.RefreshStrategy()
		log.Info().Str("module", "app.coord").Msg("foregrounded")
	})
}

// ToggleLocalAudioMute flips the microphone and returns nothing; the
// transport reads the new stream state on its next strategy pass.
func (c *Coordinator) ToggleLocalAudioMute() {
	c.post(func() {
		c.roster.MutateLocal(func(p *domain.Participant) {
			p.AudioMuted = !p.AudioMuted
			for i := range p.Streams {
				if p.Streams[i].Kind == domain.StreamAudio {
					p.Streams[i].Muted = p.AudioMuted
				}
			}
		})
		c.media.RefreshStrategy()
	})
}

func (c *Coordinator) ToggleLocalVideoMute() {
	c.post(func() {
		c.roster.MutateLocal(func(p *domain.Participant) {
			p.VideoMuted = !p.VideoMuted
			for i := range p.Streams {
				if p.Streams[i].Kind == domain.StreamVideo {
					p.Streams[i].Muted = p.VideoMuted
				}
			}
		})
		c.media.RefreshStrategy()
	})
}

// ToggleRemoteAudioMute mutes or unmutes playback of every remote
// participant at once.
func (c *Coordinator) ToggleRemoteAudioMute() {
	c.post(func() {
		muted := c.roster.ToggleRemoteAudioMuted()
		log.Info().Str("module", "app.coord").Bool("muted", muted).Msg("remote audio toggled")
	})
}

// SendMessage relays a chat message through the messaging channel.
func (c *Coordinator) SendMessage(content string) error {
	return c.chat.SendMessage(content)
}

// SendReaction relays an ephemeral reaction through the messaging
// channel.
func (c *Coordinator) SendReaction(reaction string) error {
	return c.chat.SendReaction(reaction)
}
