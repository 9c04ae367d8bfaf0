package core

import (
	"context"

	"github.com/stagekit/stagecast/internal/domain"
)

// StageDetails is one entry of the directory listing, as served by the
// backend.
type StageDetails struct {
	CreatedAt string           `json:"createdAt"`
	HostID    domain.HostID    `json:"hostId"`
	Mode      domain.StageMode `json:"mode"`
	Type      domain.StageType `json:"type"`
	Status    string           `json:"status"`
	Seats     []string         `json:"seats"`
	StageArn  string           `json:"stageArn"`
}

// CreateStageRequest carries the host identity for a new stage record.
type CreateStageRequest struct {
	HostID     domain.HostID
	Attributes map[string]string
	Type       domain.StageType
}

// JoinRequest identifies the joining user to the directory.
type JoinRequest struct {
	UserID     domain.UserID
	Attributes map[string]string
}

// ChatTokenRequest asks for messaging-channel credentials scoped to one
// stage.
type ChatTokenRequest struct {
	StageHostID domain.HostID
	UserID      domain.UserID
	Attributes  map[string]string
}

// Directory is the REST directory/auth collaborator. Implementations
// resolve within the configured request timeout; there is no silent
// infinite wait.
type Directory interface {
	Verify(ctx context.Context) error
	ListStages(ctx context.Context, onlyActive bool) ([]StageDetails, error)
	CreateStage(ctx context.Context, req CreateStageRequest) (*domain.HostToken, error)
	Join(ctx context.Context, hostID domain.HostID, req JoinRequest) (*domain.ParticipantToken, error)
	UpdateMode(ctx context.Context, hostID domain.HostID, userID domain.UserID, mode domain.StageMode) error
	UpdateSeats(ctx context.Context, hostID domain.HostID, userID domain.UserID, seats []string) error
	CastVote(ctx context.Context, hostID domain.HostID, vote domain.UserID) error
	DeleteStage(ctx context.Context, hostID domain.HostID) error
	DisconnectParticipant(ctx context.Context, hostID domain.HostID, userID domain.UserID, participantID domain.ParticipantID) error
	CreateChatToken(ctx context.Context, req ChatTokenRequest) (*domain.ChatToken, error)
}

// MediaTransport is the real-time media collaborator. Events are
// delivered on the transport's own goroutine and must be handed off to
// the owning loop before touching shared state.
type MediaTransport interface {
	// SetStrategy installs the decision function the transport
	// re-evaluates on RefreshStrategy.
	SetStrategy(StrategyFunc)
	Join(token string, local ParticipantInfo) error
	Leave()
	RefreshStrategy()
	Events() <-chan MediaEvent
}

// MessagingChannel is the out-of-band chat/pub-sub collaborator.
type MessagingChannel interface {
	Connect(ctx context.Context, token domain.ChatToken) error
	Disconnect()
	SendMessage(content string) error
	SendReaction(reaction string) error
	Events() <-chan ChatEvent
}
