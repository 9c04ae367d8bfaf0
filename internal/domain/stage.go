// Package domain contains entities without logic, just meta-data
package domain

type (
	HostID        string
	UserID        string
	ParticipantID string
)

type StageType string

const (
	StageVideo StageType = "VIDEO"
	StageAudio StageType = "AUDIO"
)

type StageMode string

const (
	ModeNone StageMode = "NONE"
	ModePK   StageMode = "PK"
	ModeSpot StageMode = "GUEST_SPOT"
)

// AudioSeatCount is the fixed number of seat slots on an audio stage.
const AudioSeatCount = 12

// CopyIDSuffix marks the non-interactive carousel padding copies.
const CopyIDSuffix = "_copy"

// Stage is one backend-managed real-time room. ID is immutable after
// construction; Type, Mode, Status and AudioSeats track the latest
// reconciled state.
type Stage struct {
	ID        string
	Arn       string
	HostID    HostID
	CreatedAt string
	Type      StageType
	Mode      StageMode
	Status    string
	Joined    bool

	// AudioSeats holds exactly AudioSeatCount entries, "" meaning vacant.
	AudioSeats []string
}

func NewStage(id, arn string, hostID HostID, typ StageType, mode StageMode, status, createdAt string, seats []string) *Stage {
	s := &Stage{
		ID:        id,
		Arn:       arn,
		HostID:    hostID,
		CreatedAt: createdAt,
		Type:      typ,
		Mode:      mode,
		Status:    status,
	}
	s.AudioSeats = NormalizeSeats(seats)
	return s
}

// NormalizeSeats pads or truncates to exactly AudioSeatCount entries.
func NormalizeSeats(seats []string) []string {
	out := make([]string, AudioSeatCount)
	copy(out, seats)
	return out
}

func (s *Stage) SeatAt(index int) string {
	if index < 0 || index >= len(s.AudioSeats) {
		return ""
	}
	return s.AudioSeats[index]
}

func (s *Stage) TakeSeat(index int, id ParticipantID) {
	if index < 0 || index >= len(s.AudioSeats) {
		return
	}
	s.AudioSeats[index] = string(id)
}

func (s *Stage) ClearSeat(index int) {
	if index < 0 || index >= len(s.AudioSeats) {
		return
	}
	s.AudioSeats[index] = ""
}

// IsCopy reports whether this stage is carousel padding, not a real
// backend record.
func (s *Stage) IsCopy() bool {
	return len(s.ID) > len(CopyIDSuffix) && s.ID[len(s.ID)-len(CopyIDSuffix):] == CopyIDSuffix
}

// Copy produces the padding duplicate used to stretch a two-stage
// carousel. The derived ID keeps it distinguishable from the original.
func (s *Stage) Copy() *Stage {
	c := NewStage(s.CreatedAt+CopyIDSuffix, s.Arn, s.HostID, s.Type, s.Mode, s.Status, s.CreatedAt, s.AudioSeats)
	return c
}

// Clone is a deep value copy for snapshot accessors.
func (s *Stage) Clone() Stage {
	out := *s
	out.AudioSeats = append([]string(nil), s.AudioSeats...)
	return out
}
