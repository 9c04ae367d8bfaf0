package coord

import (
	"github.com/rs/zerolog/log"

	"github.com/stagekit/stagecast/internal/app/roster"
	"github.com/stagekit/stagecast/internal/core"
	"github.com/stagekit/stagecast/internal/domain"
)

func (c *Coordinator) handleMediaEvent(ev core.MediaEvent) {
	id := ev.Participant.ParticipantID

	switch ev.Kind {
	case core.MediaParticipantJoined:
		c.roster.ApplyJoined(ev.Participant)
		c.maybeFillSlot(ev.Participant)

	case core.MediaParticipantLeft:
		c.roster.ApplyLeft(id)
		c.clearSlot(id)

	case core.MediaPublishChanged:
		c.roster.SetPublishState(id, ev.PublishState)
		// A participant can reach the published state before the slot
		// resolved from its join event.
		c.maybeFillSlot(ev.Participant)

	case core.MediaSubscribeChanged:
		log.Debug().Str("module", "app.coord").Str("participant", string(id)).Str("subscribe", string(ev.Subscribe)).Msg("subscription changed")

	case core.MediaStreamsAdded:
		c.roster.AddStreams(id, ev.Streams)

	case core.MediaStreamsRemoved:
		c.roster.RemoveStreams(id, ev.Streams)
		c.clearSlot(id)

	case core.MediaMutedChanged:
		c.roster.ApplyMuted(id, ev.Streams)

	case core.MediaAudioStats:
		c.roster.ApplyAudioStats(id, ev.RMS)

	case core.MediaConnectionChanged:
		c.handleConnectionChange(ev.Connection)

	default:
		log.Debug().Str("module", "app.coord").Str("kind", string(ev.Kind)).Msg("unhandled media event")
	}
}

func (c *Coordinator) handleConnectionChange(state core.ConnectionState) {
	log.Info().Str("module", "app.coord").Str("connection", string(state)).Msg("media connection changed")
	if state != core.ConnectionDisconnected {
		return
	}
	// The transport dropped us; force the local user off stage so the
	// session state matches what the room now sees.
	if c.local.OnStage {
		c.unpublish(nil)
	}
	c.hostSlot, c.secondSlot = nil, nil
}

// maybeFillSlot assigns a participant to the host or second role
// position. Roles resolve by display name against the recorded host
// username, never by join order.
func (c *Coordinator) maybeFillSlot(info core.ParticipantInfo) {
	p, ok := c.roster.Lookup(info.ParticipantID)
	if !ok {
		log.Warn().Str("module", "app.coord").Str("participant", string(info.ParticipantID)).Msg("slot check on unknown participant")
		return
	}

	if p.IsLocal {
		if !p.OnStage {
			return
		}
		if c.local.IsHost() {
			c.setSlot(&c.hostSlot, info.ParticipantID, p.Username)
		} else {
			c.setSlot(&c.secondSlot, info.ParticipantID, p.Username)
		}
		return
	}

	// Only a freshly joined remote is a slot candidate; one that already
	// carries streams was reconciled earlier.
	if len(p.Streams) != 0 {
		return
	}
	username := info.Attributes[domain.AttrUsername]
	if username == "" {
		username = p.Username
	}
	if username == "" {
		log.Warn().Str("module", "app.coord").Str("participant", string(info.ParticipantID)).Msg("slot candidate without a username")
		return
	}

	if username == c.hostUsername {
		c.setSlot(&c.hostSlot, info.ParticipantID, username)
		c.votes.Resolve(username, roster.RoleHost)
	} else {
		c.setSlot(&c.secondSlot, info.ParticipantID, username)
		c.votes.Resolve(username, roster.RoleSecond)
	}
}

func (c *Coordinator) setSlot(s **slot, id domain.ParticipantID, username string) {
	if *s != nil && (*s).id == id {
		return
	}
	*s = &slot{id: id, username: username}
	log.Info().Str("module", "app.coord").Str("participant", string(id)).Str("username", username).Msg("role slot filled")
}

func (c *Coordinator) clearSlot(id domain.ParticipantID) {
	if c.hostSlot != nil && c.hostSlot.id == id {
		c.hostSlot = nil
	}
	if c.secondSlot != nil && c.secondSlot.id == id {
		c.secondSlot = nil
	}
}

func (c *Coordinator) handleChatEvent(ev core.ChatEvent) {
	switch ev.Kind {
	case core.ChatModeChanged:
		c.applyModeChange(domain.StageMode(ev.Attributes["mode"]))

	case core.ChatSeatsChanged:
		c.feed.Mutate(c.active, func(s *domain.Stage) {
			s.AudioSeats = domain.NormalizeSeats(ev.Seats)
		})

	case core.ChatVoteStarted:
		c.votes.Reset()
		c.votes.Start(c.now())
		c.applyVoteTallies(ev.Attributes)

	case core.ChatVotesChanged, core.ChatVoteEnded:
		c.applyVoteTallies(ev.Attributes)

	case core.ChatReaction:
		log.Debug().Str("module", "app.coord").Str("sender", ev.Sender).Msg("reaction")

	case core.ChatMessage, core.ChatNotice:
		// The channel adapter keeps the message history; nothing to
		// reconcile here.

	case core.ChatConnected:
		log.Info().Str("module", "app.coord").Msg("messaging channel up")

	case core.ChatDisconnected:
		log.Info().Str("module", "app.coord").Msg("messaging channel down")

	default:
		log.Debug().Str("module", "app.coord").Str("kind", string(ev.Kind)).Msg("unhandled chat event")
	}
}

func (c *Coordinator) applyModeChange(mode domain.StageMode) {
	switch mode {
	case domain.ModeNone, domain.ModePK, domain.ModeSpot:
	default:
		log.Warn().Str("module", "app.coord").Str("mode", string(mode)).Msg("unknown stage mode ignored")
		return
	}

	// NONE while a non-host is on stage means the host ended the
	// two-party layout: step off before touching anything else.
	if mode == domain.ModeNone && c.local.OnStage && !c.local.IsHost() {
		c.unpublish(nil)
	}

	c.feed.Mutate(c.active, func(s *domain.Stage) { s.Mode = mode })
	c.votes.Reset()
	log.Info().Str("module", "app.coord").Str("mode", string(mode)).Msg("stage mode changed")
}

// applyVoteTallies merges a vote event keyed by the resolved slot
// names. Tallies for unresolved names wait in the board until the slot
// fills.
func (c *Coordinator) applyVoteTallies(attrs map[string]string) {
	var hostName, secondName string
	if c.hostSlot != nil {
		hostName = c.hostSlot.username
	}
	if c.secondSlot != nil {
		secondName = c.secondSlot.username
	}
	c.votes.ApplyEvent(attrs, hostName, secondName)
}
