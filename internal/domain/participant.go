package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxUsernameLen = 36

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

type PublishState string

const (
	NotPublished      PublishState = "NOT_PUBLISHED"
	AttemptingPublish PublishState = "ATTEMPTING_PUBLISH"
	Published         PublishState = "PUBLISHED"
)

type StreamKind string

const (
	StreamAudio StreamKind = "audio"
	StreamVideo StreamKind = "video"
)

// Stream is one media stream a participant carries. URN is the
// device-level unique locator streams are matched by; list position is
// never an identity.
type Stream struct {
	URN   string
	Kind  StreamKind
	Muted bool
}

// DefaultSpeakingThreshold is the RMS level (dB) above which a
// participant counts as speaking.
const DefaultSpeakingThreshold = -40.0

// Participant is one user's relationship to the active stage session.
type Participant struct {
	IsLocal  bool
	UserID   UserID
	HostID   HostID
	Username string
	Avatar   Avatar

	// ParticipantID is assigned once per session, on the first local
	// or remote joined notification.
	ParticipantID ParticipantID

	// SeatIndex is set only while holding an audio seat.
	SeatIndex *int

	OnStage      bool
	PublishState PublishState

	WantsSubscribed bool
	// WantsAudioOnly is the explicit audio-only request.
	WantsAudioOnly bool
	// RequiresAudioOnly is forced while the app is backgrounded.
	RequiresAudioOnly bool

	Streams []Stream

	AudioMuted bool
	VideoMuted bool

	Speaking          bool
	SpeakingThreshold float64

	HostToken        *HostToken
	ParticipantToken *ParticipantToken
}

// NewLocalParticipant mints the local user at app start.
func NewLocalParticipant(username string, avatar Avatar) (*Participant, error) {
	if username == "" {
		return nil, ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return nil, ErrUsernameTooLong
	}
	return &Participant{
		IsLocal:           true,
		UserID:            UserID(uuid.NewString()),
		HostID:            HostID(username),
		Username:          username,
		Avatar:            avatar,
		WantsSubscribed:   true,
		PublishState:      NotPublished,
		SpeakingThreshold: DefaultSpeakingThreshold,
	}, nil
}

// NewRemoteParticipant builds an entry from a joined notification's
// attributes.
func NewRemoteParticipant(id ParticipantID, username string, avatar Avatar) *Participant {
	return &Participant{
		UserID:            UserID(username),
		HostID:            HostID(username),
		Username:          username,
		Avatar:            avatar,
		ParticipantID:     id,
		WantsSubscribed:   true,
		PublishState:      NotPublished,
		SpeakingThreshold: DefaultSpeakingThreshold,
	}
}

// AudioOnly is the effective subscription fidelity cap.
func (p *Participant) AudioOnly() bool {
	return p.WantsAudioOnly || p.RequiresAudioOnly
}

// IsHost holds only while a host authorization token is held for the
// current session.
func (p *Participant) IsHost() bool {
	return p.ParticipantID != "" && p.HostToken != nil
}

// IsInStage holds only while a participant authorization token is held.
// Mutually exclusive with IsHost for a given session.
func (p *Participant) IsInStage() bool {
	return p.ParticipantID != "" && p.ParticipantToken != nil
}

func (p *Participant) IsPublishing() bool {
	return p.PublishState == Published
}

// Clone is a deep value copy for snapshot accessors.
func (p *Participant) Clone() Participant {
	out := *p
	out.Streams = append([]Stream(nil), p.Streams...)
	if p.SeatIndex != nil {
		idx := *p.SeatIndex
		out.SeatIndex = &idx
	}
	return out
}
