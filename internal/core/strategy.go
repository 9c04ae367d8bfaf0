package core

import "github.com/stagekit/stagecast/internal/domain"

// SubscribeType is the fidelity the transport should subscribe to a
// participant at.
type SubscribeType string

const (
	SubscribeNone       SubscribeType = "none"
	SubscribeAudioOnly  SubscribeType = "audio_only"
	SubscribeAudioVideo SubscribeType = "audio_video"
)

// Decision answers the transport's three strategy questions for one
// participant.
type Decision struct {
	Subscribe SubscribeType
	Publish   bool
	Streams   []domain.Stream
}

// StrategyFunc resolves a Decision for a participant the transport is
// asking about. It must be safe to call from the transport's delivery
// goroutine, so implementations work on snapshots only.
type StrategyFunc func(info ParticipantInfo) Decision

// Decide is the pure strategy: it maps one roster snapshot entry plus
// the local publish intent to a Decision. found=false means the roster
// has no entry for the participant, which yields a no-subscribe,
// no-publish answer rather than an error.
func Decide(p domain.Participant, found, localWantsPublish bool) Decision {
	var d Decision
	if !found {
		d.Subscribe = SubscribeNone
		return d
	}

	switch {
	case !p.WantsSubscribed:
		d.Subscribe = SubscribeNone
	case p.AudioOnly():
		d.Subscribe = SubscribeAudioOnly
	default:
		d.Subscribe = SubscribeAudioVideo
	}

	if p.IsLocal {
		d.Publish = localWantsPublish
		d.Streams = append([]domain.Stream(nil), p.Streams...)
	}
	return d
}
