package domain

// TokenData is the authorization material inside a host token grant.
type TokenData struct {
	Token         string        `json:"token"`
	ParticipantID ParticipantID `json:"participantId"`
	Duration      int           `json:"duration"`
}

// HostToken authorizes the stage owner. Held only for stages the local
// user created.
type HostToken struct {
	Region    string    `json:"region"`
	TokenData TokenData `json:"hostParticipantToken"`
}

// ParticipantToken authorizes joining someone else's stage. The join
// response may embed a snapshot of a voting session already running.
type ParticipantToken struct {
	Region         string              `json:"region"`
	Token          string              `json:"token"`
	ParticipantID  ParticipantID       `json:"participantId"`
	Duration       int                 `json:"duration"`
	HostAttributes map[string]string   `json:"hostAttributes"`
	Metadata       ParticipantMetadata `json:"metadata"`
}

type ParticipantMetadata struct {
	ActiveVotingSession *VotingSession `json:"activeVotingSession"`
}

// VotingSession is the ephemeral tally of a PK vote, keyed by display
// name.
type VotingSession struct {
	StartedAt string         `json:"startedAt"`
	Tally     map[string]int `json:"tally"`
}

// ChatToken authorizes the messaging channel connection.
type ChatToken struct {
	Token               string `json:"token"`
	SessionExpiration   string `json:"sessionExpirationTime"`
	TokenExpirationTime string `json:"tokenExpirationTime"`
}
