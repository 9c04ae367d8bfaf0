package core

import "github.com/stagekit/stagecast/internal/domain"

// ParticipantInfo identifies a participant in a media transport
// notification.
type ParticipantInfo struct {
	ParticipantID domain.ParticipantID
	IsLocal       bool
	Attributes    map[string]string
}

type ConnectionState string

const (
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
)

type MediaEventKind string

const (
	MediaParticipantJoined MediaEventKind = "participant_joined"
	MediaParticipantLeft   MediaEventKind = "participant_left"
	MediaPublishChanged    MediaEventKind = "publish_changed"
	MediaSubscribeChanged  MediaEventKind = "subscribe_changed"
	MediaStreamsAdded      MediaEventKind = "streams_added"
	MediaStreamsRemoved    MediaEventKind = "streams_removed"
	MediaMutedChanged      MediaEventKind = "muted_changed"
	MediaAudioStats        MediaEventKind = "audio_stats"
	MediaConnectionChanged MediaEventKind = "connection_changed"
)

// MediaEvent is one asynchronous transport notification. Only the
// fields relevant to Kind are set. Duplicate and out-of-order delivery
// is possible; consumers must stay idempotent.
type MediaEvent struct {
	Kind        MediaEventKind
	Participant ParticipantInfo

	PublishState domain.PublishState
	Subscribe    SubscribeType
	Streams      []domain.Stream
	RMS          float64
	Connection   ConnectionState
}

// Control event names on the messaging channel.
const (
	EventModeChange  = "stage:MODE"
	EventSeatsChange = "stage:SEATS"
	EventVoteStart   = "stage:VOTE_START"
	EventVote        = "stage:VOTE"
	EventVoteEnd     = "stage:VOTE_END"
)

type ChatEventKind string

const (
	ChatModeChanged  ChatEventKind = "mode_changed"
	ChatSeatsChanged ChatEventKind = "seats_changed"
	ChatVoteStarted  ChatEventKind = "vote_started"
	ChatVotesChanged ChatEventKind = "votes_changed"
	ChatVoteEnded    ChatEventKind = "vote_ended"
	ChatReaction     ChatEventKind = "reaction"
	ChatMessage      ChatEventKind = "message"
	ChatNotice       ChatEventKind = "notice"
	ChatConnected    ChatEventKind = "connected"
	ChatDisconnected ChatEventKind = "disconnected"
)

// ChatEvent is one inbound messaging-channel event. Delivery order is
// arrival order only; no causal ordering with media events.
type ChatEvent struct {
	Kind       ChatEventKind
	Attributes map[string]string
	Seats      []string
	Sender     string
	Content    string
}
