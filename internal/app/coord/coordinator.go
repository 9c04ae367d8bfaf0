// Package coord owns the session lifecycle: which stage is active,
// whether the local user is joined or publishing, and how collaborator
// events fold into that state. All state lives on a single loop;
// collaborators hand their events off through the inbox.
package coord

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stagekit/stagecast/internal/app/alerts"
	"github.com/stagekit/stagecast/internal/app/feed"
	"github.com/stagekit/stagecast/internal/app/roster"
	"github.com/stagekit/stagecast/internal/app/votes"
	"github.com/stagekit/stagecast/internal/config"
	"github.com/stagekit/stagecast/internal/core"
	"github.com/stagekit/stagecast/internal/domain"
)

// State is the coarse lifecycle phase, exposed for the debug surface.
type State string

const (
	StateIdle             State = "idle"
	StateJoining          State = "joining"
	StateJoinedViewing    State = "joined_viewing"
	StateJoinedPublishing State = "joined_publishing"
	StateLeaving          State = "leaving"
)

// slot pins a role position to one participant by identifier plus the
// display name votes are keyed by.
type slot struct {
	id       domain.ParticipantID
	username string
}

// Coordinator is the single-writer owner of session state. Exported
// methods are safe from any goroutine: they post onto the loop and
// return; completions are delivered through callbacks invoked on the
// loop.
type Coordinator struct {
	cfg   *config.Config
	dir   core.Directory
	media core.MediaTransport
	chat  core.MessagingChannel

	feed   *feed.Feed
	roster *roster.Roster
	votes  *votes.Board
	alerts *alerts.Board

	// local is shared with the roster; the loop is the only writer and
	// routes every mutation through roster.MutateLocal so concurrent
	// snapshot readers stay consistent.
	local *domain.Participant

	state          State
	autoJoin       bool
	backgrounded   bool
	joinInProgress bool
	pollInFlight   bool

	active       *domain.Stage
	hostUsername string
	hostSlot     *slot
	secondSlot   *slot

	// wantsPublish is read by the strategy callback on the transport's
	// goroutine.
	wantsPublish         atomic.Bool
	republishAfterResume bool

	now   func() time.Time
	inbox chan func()
}

func New(cfg *config.Config, dir core.Directory, media core.MediaTransport, chat core.MessagingChannel,
	fd *feed.Feed, rs *roster.Roster, vb *votes.Board, ab *alerts.Board, local *domain.Participant) *Coordinator {
	c := &Coordinator{
		cfg:    cfg,
		dir:    dir,
		media:  media,
		chat:   chat,
		feed:   fd,
		roster: rs,
		votes:  vb,
		alerts: ab,
		local:  local,
		state:  StateIdle,
		now:    time.Now,
		inbox:  make(chan func(), 64),
	}
	media.SetStrategy(c.decide)
	return c
}

// Run drives the loop until the context ends. Collaborator events and
// posted operations interleave here and nowhere else.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	log.Info().Str("module", "app.coord").Dur("poll_interval", c.cfg.PollInterval).Msg("coordinator running")

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.coord").Msg("coordinator stopped")
			return
		case fn := <-c.inbox:
			fn()
		case ev := <-c.media.Events():
			c.handleMediaEvent(ev)
		case ev := <-c.chat.Events():
			c.handleChatEvent(ev)
		case <-ticker.C:
			c.pollDirectory()
		}
	}
}

// post hands fn to the loop.
func (c *Coordinator) post(fn func()) {
	c.inbox <- fn
}

// async runs a directory call off-loop with the standard request
// timeout and posts the completion back.
func (c *Coordinator) async(op string, call func(ctx context.Context) error, then func(err error)) {
	c.asyncTimeout(op, c.cfg.RequestTimeout, call, then)
}

func (c *Coordinator) asyncTimeout(op string, timeout time.Duration, call func(ctx context.Context) error, then func(err error)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := call(ctx)
		cancel()
		if err != nil {
			log.Error().Str("module", "app.coord").Str("op", op).Err(err).Msg("directory call failed")
		}
		c.post(func() { then(err) })
	}()
}

// decide is the installed transport strategy. It runs on the
// transport's goroutine and therefore only touches snapshots and the
// publish-intent atomic.
func (c *Coordinator) decide(info core.ParticipantInfo) core.Decision {
	p, ok := c.roster.Lookup(info.ParticipantID)
	return core.Decide(p, ok, c.wantsPublish.Load())
}

// SetAutoJoin enables or disables joining the active stage as the feed
// changes. Polling is suspended entirely while disabled.
func (c *Coordinator) SetAutoJoin(v bool) {
	c.post(func() {
		if c.autoJoin == v {
			return
		}
		c.autoJoin = v
		log.Info().Str("module", "app.coord").Bool("auto_join", v).Msg("auto-join changed")
		if v {
			c.pollDirectory()
		}
	})
}

// Snapshot is a read-side roundtrip through the loop for the debug
// surface.
type Snapshot struct {
	State        State    `json:"state"`
	AutoJoin     bool     `json:"autoJoin"`
	StageID      string   `json:"stageId,omitempty"`
	StageHost    string   `json:"stageHost,omitempty"`
	StageType    string   `json:"stageType,omitempty"`
	StageMode    string   `json:"stageMode,omitempty"`
	HostSlot     string   `json:"hostSlot,omitempty"`
	SecondSlot   string   `json:"secondSlot,omitempty"`
	VotingActive bool     `json:"votingActive"`
	VotesHost    int      `json:"votesHost"`
	VotesSecond  int      `json:"votesSecond"`
	Participants int      `json:"participants"`
	Alerts       []string `json:"alerts,omitempty"`
}

func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	out := make(chan Snapshot, 1)
	c.post(func() {
		s := Snapshot{
			State:        c.state,
			AutoJoin:     c.autoJoin,
			VotingActive: c.votes.Active(),
			Participants: c.roster.Count(),
			Alerts:       c.alerts.Messages(),
		}
		s.VotesHost, s.VotesSecond = c.votes.Counts()
		if c.active != nil {
			s.StageID = c.active.ID
			s.StageHost = string(c.active.HostID)
			s.StageType = string(c.active.Type)
			s.StageMode = string(c.active.Mode)
		}
		if c.hostSlot != nil {
			s.HostSlot = c.hostSlot.username
		}
		if c.secondSlot != nil {
			s.SecondSlot = c.secondSlot.username
		}
		out <- s
	})
	select {
	case s := <-out:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}
