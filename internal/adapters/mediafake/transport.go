// Package mediafake is an in-memory media transport. It honors the
// transport contract — strategy evaluation, event delivery, join and
// leave lifecycle — without any actual media plane, which keeps the
// runtime testable end to end and lets simulations drive sessions.
package mediafake

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/stagekit/stagecast/internal/core"
	"github.com/stagekit/stagecast/internal/domain"
)

var ErrAlreadyJoined = errors.New("media session already joined")

type Transport struct {
	maxBitrateKbps int

	mu         sync.Mutex
	strategy   core.StrategyFunc
	joined     bool
	local      core.ParticipantInfo
	publishing bool

	events chan core.MediaEvent
}

// New builds a transport publishing at the given bitrate cap.
func New(maxBitrateKbps int) *Transport {
	return &Transport{
		maxBitrateKbps: maxBitrateKbps,
		events:         make(chan core.MediaEvent, 64),
	}
}

var _ core.MediaTransport = (*Transport)(nil)

func (t *Transport) SetStrategy(fn core.StrategyFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.strategy = fn
}

// Join opens the session: the connection comes up and the local
// participant lands, mirroring the event order of a real transport.
func (t *Transport) Join(token string, local core.ParticipantInfo) error {
	t.mu.Lock()
	if t.joined {
		t.mu.Unlock()
		return ErrAlreadyJoined
	}
	if token == "" {
		t.mu.Unlock()
		return errors.New("empty media token")
	}
	t.joined = true
	t.local = local
	t.publishing = false
	t.mu.Unlock()

	t.emit(core.MediaEvent{Kind: core.MediaConnectionChanged, Connection: core.ConnectionConnecting})
	t.emit(core.MediaEvent{Kind: core.MediaConnectionChanged, Connection: core.ConnectionConnected})
	t.emit(core.MediaEvent{Kind: core.MediaParticipantJoined, Participant: local})
	log.Info().Str("module", "adapters.mediafake").Str("participant", string(local.ParticipantID)).Int("max_bitrate_kbps", t.maxBitrateKbps).Msg("session joined")

	t.RefreshStrategy()
	return nil
}

// Leave closes the session silently; deliberate teardown must not look
// like a dropped connection to the consumer.
func (t *Transport) Leave() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.joined {
		return
	}
	t.joined = false
	t.publishing = false
	t.local = core.ParticipantInfo{}
	log.Info().Str("module", "adapters.mediafake").Msg("session left")
}

// RefreshStrategy re-asks the strategy about the local participant and
// emits the publish transition it implies.
func (t *Transport) RefreshStrategy() {
	t.mu.Lock()
	strategy := t.strategy
	joined := t.joined
	local := t.local
	wasPublishing := t.publishing
	t.mu.Unlock()

	if !joined || strategy == nil {
		return
	}
	d := strategy(local)
	if d.Publish == wasPublishing {
		return
	}

	t.mu.Lock()
	t.publishing = d.Publish
	t.mu.Unlock()

	state := domain.NotPublished
	if d.Publish {
		state = domain.Published
	}
	t.emit(core.MediaEvent{Kind: core.MediaPublishChanged, Participant: local, PublishState: state})
	if d.Publish {
		t.emit(core.MediaEvent{Kind: core.MediaStreamsAdded, Participant: local, Streams: d.Streams})
	}
}

func (t *Transport) Events() <-chan core.MediaEvent { return t.events }

// Inject delivers an arbitrary event as if the transport produced it;
// simulations and tests drive remote participants through it.
func (t *Transport) Inject(ev core.MediaEvent) {
	t.emit(ev)
}

func (t *Transport) emit(ev core.MediaEvent) {
	select {
	case t.events <- ev:
	default:
		log.Warn().Str("module", "adapters.mediafake").Str("kind", string(ev.Kind)).Msg("event dropped, consumer behind")
	}
}
