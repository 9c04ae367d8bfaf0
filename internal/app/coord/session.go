package coord

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/stagekit/stagecast/internal/app/feed"
	"github.com/stagekit/stagecast/internal/core"
	"github.com/stagekit/stagecast/internal/domain"
)

var errStageNotListed = errors.New("created stage not in listing")

// createRelistAttempts bounds the re-list retries after creating a
// stage, while the listing catches up with the new record.
const createRelistAttempts = 5

// VerifyCode checks the configured customer code against the backend.
// done runs on the loop.
func (c *Coordinator) VerifyCode(done func(err error)) {
	c.post(func() {
		if err := c.cfg.Verify(); err != nil {
			c.alerts.Publish("Customer code and API key are not set")
			if done != nil {
				done(err)
			}
			return
		}
		c.async("verify", func(ctx context.Context) error {
			return c.dir.Verify(ctx)
		}, func(err error) {
			if err != nil {
				c.alerts.Publish("The code you entered is invalid")
			}
			if done != nil {
				done(err)
			}
		})
	})
}

// pollDirectory refreshes the stage listing. Runs on the loop; at most
// one poll is in flight, overlaps are skipped rather than queued.
func (c *Coordinator) pollDirectory() {
	if !c.autoJoin {
		return
	}
	if c.pollInFlight {
		log.Debug().Str("module", "app.coord").Msg("poll still in flight, skipping tick")
		return
	}
	if c.cfg.Verify() != nil {
		return
	}
	c.pollInFlight = true
	onlyActive := !c.local.IsHost()

	var listing []core.StageDetails
	c.async("list_stages", func(ctx context.Context) error {
		var err error
		listing, err = c.dir.ListStages(ctx, onlyActive)
		return err
	}, func(err error) {
		c.pollInFlight = false
		if err != nil {
			c.alerts.Publish("Stages could not be loaded")
			return
		}
		active, changed := c.feed.Merge(listing)
		// Hosts stay on their own stage regardless of feed order.
		if changed && !c.local.IsHost() {
			c.applyActiveStage(active)
		}
	})
}

// applyActiveStage reacts to a new stage landing at the front of the
// carousel: leave the one we were on, then join the new one.
func (c *Coordinator) applyActiveStage(next *domain.Stage) {
	if next == nil {
		if c.active != nil && c.local.IsInStage() {
			c.leave(nil)
		}
		c.active = nil
		return
	}
	if c.active != nil && c.active.ID == next.ID {
		return
	}
	if c.active != nil && c.local.IsInStage() {
		c.leave(func() { c.join(next) })
		return
	}
	c.join(next)
}

// join starts the join exchange for a stage. At most one join runs at a
// time; the guard stays set until the token exchange resolves.
func (c *Coordinator) join(stage *domain.Stage) {
	if c.joinInProgress {
		log.Info().Str("module", "app.coord").Str("stage", stage.ID).Msg("join already in progress, ignoring")
		return
	}
	c.active = stage
	c.votes.Clear()
	c.hostSlot, c.secondSlot = nil, nil
	if !c.autoJoin {
		return
	}
	if stage.IsCopy() {
		log.Debug().Str("module", "app.coord").Str("stage", stage.ID).Msg("carousel padding, not joining")
		return
	}

	c.joinInProgress = true
	c.state = StateJoining
	log.Info().Str("module", "app.coord").Str("stage", stage.ID).Str("host", string(stage.HostID)).Msg("joining stage")

	stageID := stage.ID
	hostID := stage.HostID
	req := core.JoinRequest{UserID: c.local.UserID, Attributes: c.local.Attributes()}

	var tok *domain.ParticipantToken
	c.async("join", func(ctx context.Context) error {
		var err error
		tok, err = c.dir.Join(ctx, hostID, req)
		return err
	}, func(err error) {
		c.finishJoin(stageID, tok, err)
	})
}

// finishJoin lands the join token exchange. Results for a stage that is
// no longer active are discarded.
func (c *Coordinator) finishJoin(stageID string, tok *domain.ParticipantToken, err error) {
	c.joinInProgress = false
	if c.active == nil || c.active.ID != stageID {
		log.Info().Str("module", "app.coord").Str("stage", stageID).Msg("stale join result discarded")
		return
	}
	if err != nil {
		c.alerts.Publish("The stage could not be joined")
		c.state = StateIdle
		return
	}

	info := core.ParticipantInfo{
		ParticipantID: tok.ParticipantID,
		IsLocal:       true,
		Attributes:    c.local.Attributes(),
	}
	if err := c.media.Join(tok.Token, info); err != nil {
		log.Error().Str("module", "app.coord").Err(err).Msg("media join failed")
		c.alerts.Publish("The stage could not be joined")
		c.state = StateIdle
		return
	}

	c.roster.MutateLocal(func(p *domain.Participant) {
		p.HostToken = nil
		p.ParticipantToken = tok
		p.ParticipantID = tok.ParticipantID
		p.WantsAudioOnly = false
	})
	c.hostUsername = tok.HostAttributes[domain.AttrUsername]
	c.roster.SetHostUsername(c.hostUsername)

	if vs := tok.Metadata.ActiveVotingSession; vs != nil {
		// The snapshot arrives before role slots resolve; park it.
		c.votes.Hold(vs.Tally)
		c.votes.StartFromTimestamp(vs.StartedAt)
	}

	c.feed.Mutate(c.active, func(s *domain.Stage) { s.Joined = true })
	c.state = StateJoinedViewing
	c.connectChat(c.active.HostID)
	log.Info().Str("module", "app.coord").Str("stage", stageID).Str("participant", string(tok.ParticipantID)).Msg("joined stage")
}

// connectChat obtains a messaging token for the stage and dials the
// channel. Chat failures degrade the session, they never abort it.
func (c *Coordinator) connectChat(hostID domain.HostID) {
	req := core.ChatTokenRequest{
		StageHostID: hostID,
		UserID:      c.local.UserID,
		Attributes:  c.local.Attributes(),
	}
	var tok *domain.ChatToken
	c.asyncTimeout("chat_token", c.cfg.ChatTokenTimeout, func(ctx context.Context) error {
		var err error
		tok, err = c.dir.CreateChatToken(ctx, req)
		return err
	}, func(err error) {
		if c.active == nil || c.active.HostID != hostID {
			log.Info().Str("module", "app.coord").Str("host", string(hostID)).Msg("stale chat token discarded")
			return
		}
		if err != nil {
			c.alerts.Publish("Chat is unavailable for this stage")
			return
		}
		token := *tok
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ChatTokenTimeout)
			defer cancel()
			if err := c.chat.Connect(ctx, token); err != nil {
				log.Error().Str("module", "app.coord").Err(err).Msg("chat connect failed")
				c.post(func() { c.alerts.Publish("Chat is unavailable for this stage") })
			}
		}()
	})
}

// CreateStage provisions a new stage owned by the local user, joins its
// media session and starts publishing. done runs on the loop.
func (c *Coordinator) CreateStage(typ domain.StageType, done func(err error)) {
	c.post(func() { c.createStage(typ, done) })
}

func (c *Coordinator) createStage(typ domain.StageType, done func(err error)) {
	if err := c.cfg.Verify(); err != nil {
		c.alerts.Publish("Customer code and API key are not set")
		c.finish(done, err)
		return
	}
	if c.local.IsHost() {
		log.Warn().Str("module", "app.coord").Msg("already hosting a stage")
		c.finish(done, nil)
		return
	}

	req := core.CreateStageRequest{
		HostID:     c.local.HostID,
		Attributes: c.local.Attributes(),
		Type:       typ,
	}
	var tok *domain.HostToken
	c.async("create_stage", func(ctx context.Context) error {
		var err error
		tok, err = c.dir.CreateStage(ctx, req)
		return err
	}, func(err error) {
		if err != nil {
			c.alerts.Publish("The stage could not be created")
			c.finish(done, err)
			return
		}

		info := core.ParticipantInfo{
			ParticipantID: tok.TokenData.ParticipantID,
			IsLocal:       true,
			Attributes:    c.local.Attributes(),
		}
		if err := c.media.Join(tok.TokenData.Token, info); err != nil {
			log.Error().Str("module", "app.coord").Err(err).Msg("media join failed for own stage")
			c.alerts.Publish("The stage could not be created")
			c.finish(done, err)
			return
		}

		c.roster.MutateLocal(func(p *domain.Participant) {
			p.ParticipantToken = nil
			p.HostToken = tok
			p.ParticipantID = tok.TokenData.ParticipantID
		})
		c.hostUsername = c.local.Username
		c.roster.SetHostUsername(c.hostUsername)
		c.state = StateJoinedViewing

		c.locateOwnStage(typ, createRelistAttempts, done)
	})
}

// locateOwnStage re-lists until the freshly created stage shows up,
// then fronts it and starts publishing.
func (c *Coordinator) locateOwnStage(typ domain.StageType, attempts int, done func(err error)) {
	var listing []core.StageDetails
	c.async("list_stages", func(ctx context.Context) error {
		var err error
		listing, err = c.dir.ListStages(ctx, false)
		return err
	}, func(err error) {
		if err == nil {
			c.feed.Merge(listing)
			if stage := c.feed.FindByHost(c.local.HostID); stage != nil {
				c.feed.ScrollTo(stage.ID)
				c.active = stage
				c.feed.Mutate(stage, func(s *domain.Stage) { s.Joined = true })
				c.connectChat(stage.HostID)
				switch typ {
				case domain.StageAudio:
					c.publishAudioSeat(0)
				default:
					c.publishVideo(domain.ModeNone)
				}
				log.Info().Str("module", "app.coord").Str("stage", stage.ID).Msg("own stage live")
				c.finish(done, nil)
				return
			}
			err = errStageNotListed
		}
		if attempts <= 1 {
			c.alerts.Publish("The stage could not be created")
			c.finish(done, err)
			return
		}
		log.Debug().Str("module", "app.coord").Int("attempts_left", attempts-1).Msg("own stage not listed yet, retrying")
		c.locateOwnStage(typ, attempts-1, done)
	})
}

// Leave tears the session down: messaging first, then media, then the
// backend record. done runs on the loop after the backend settles.
func (c *Coordinator) Leave(done func()) {
	c.post(func() { c.leave(done) })
}

func (c *Coordinator) leave(done func()) {
	stage := c.active
	if stage == nil {
		log.Debug().Str("module", "app.coord").Msg("leave with no active stage")
		c.finishLeave(done)
		return
	}

	c.state = StateLeaving
	c.feed.Mutate(stage, func(s *domain.Stage) { s.Joined = false })
	c.stopPublishing()

	// Ordering matters: the messaging channel drops before media so no
	// control event lands on a half-torn session, and the backend record
	// goes last.
	c.chat.Disconnect()
	c.media.Leave()
	c.roster.ResetRemote()

	switch {
	case c.local.IsHost():
		hostID := c.local.HostID
		c.clearSession(stage)
		c.async("delete_stage", func(ctx context.Context) error {
			return c.dir.DeleteStage(ctx, hostID)
		}, func(err error) {
			if err != nil {
				c.alerts.Publish("The stage could not be deleted")
			}
			c.finishLeave(done)
		})

	case stage.Type == domain.StageAudio && c.local.SeatIndex != nil:
		seat := *c.local.SeatIndex
		var seats []string
		c.feed.Mutate(stage, func(s *domain.Stage) {
			s.ClearSeat(seat)
			seats = append([]string(nil), s.AudioSeats...)
		})
		hostID := stage.HostID
		userID := c.local.UserID
		c.clearSession(stage)
		c.async("update_seats", func(ctx context.Context) error {
			return c.dir.UpdateSeats(ctx, hostID, userID, seats)
		}, func(error) {
			// Seat release is best effort; the backend reconciles
			// abandoned seats on its own.
			c.finishLeave(done)
		})

	default:
		c.clearSession(stage)
		c.finishLeave(done)
	}
}

func (c *Coordinator) finishLeave(done func()) {
	if done != nil {
		done()
	}
}

func (c *Coordinator) finish(done func(err error), err error) {
	if done != nil {
		done(err)
	}
}

// clearSession drops every piece of per-session state.
func (c *Coordinator) clearSession(stage *domain.Stage) {
	c.roster.MutateLocal(func(p *domain.Participant) {
		p.OnStage = false
		p.ParticipantID = ""
		p.HostToken = nil
		p.ParticipantToken = nil
		p.SeatIndex = nil
		p.WantsAudioOnly = false
		p.PublishState = domain.NotPublished
	})
	c.feed.Mutate(stage, func(s *domain.Stage) { s.Mode = domain.ModeNone })
	c.active = nil
	c.hostSlot, c.secondSlot = nil, nil
	c.hostUsername = ""
	c.roster.SetHostUsername("")
	c.votes.Clear()
	c.state = StateIdle
	log.Info().Str("module", "app.coord").Str("stage", stage.ID).Msg("session cleared")
}

// ScrollGesture commits a scroll when the gesture passes the threshold,
// joining whatever lands on front.
func (c *Coordinator) ScrollGesture(height float64) {
	c.post(func() {
		active, ok := c.feed.DetectScroll(height)
		if ok && !c.local.IsHost() {
			c.applyActiveStage(active)
		}
	})
}

// Scroll rotates the carousel one position.
func (c *Coordinator) Scroll(dir feed.Direction) {
	c.post(func() {
		active, ok := c.feed.Scroll(dir)
		if ok && !c.local.IsHost() {
			c.applyActiveStage(active)
		}
	})
}
