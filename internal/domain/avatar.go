package domain

import "math/rand"

// Attribute keys shared by the directory, the media transport and the
// messaging channel.
const (
	AttrUsername        = "username"
	AttrAvatarColLeft   = "avatarColLeft"
	AttrAvatarColRight  = "avatarColRight"
	AttrAvatarColBottom = "avatarColBottom"
)

// Avatar is the three-color identity badge carried in participant
// attributes.
type Avatar struct {
	ColLeft   string
	ColRight  string
	ColBottom string
}

var avatarPalette = []string{
	"#EB5757", "#F2994A", "#F2C94C", "#219653", "#27AE60",
	"#2F80ED", "#2D9CDB", "#56CCF2", "#9B51E0", "#BB6BD9",
}

func RandomAvatar() Avatar {
	pick := func() string { return avatarPalette[rand.Intn(len(avatarPalette))] }
	return Avatar{ColLeft: pick(), ColRight: pick(), ColBottom: pick()}
}

// AvatarFromAttributes reads the badge colors out of an attribute map,
// tolerating missing keys.
func AvatarFromAttributes(attrs map[string]string) Avatar {
	return Avatar{
		ColLeft:   attrs[AttrAvatarColLeft],
		ColRight:  attrs[AttrAvatarColRight],
		ColBottom: attrs[AttrAvatarColBottom],
	}
}

// Attributes renders the participant identity the way every backend
// call expects it.
func (p *Participant) Attributes() map[string]string {
	return map[string]string{
		AttrUsername:        p.Username,
		AttrAvatarColLeft:   p.Avatar.ColLeft,
		AttrAvatarColRight:  p.Avatar.ColRight,
		AttrAvatarColBottom: p.Avatar.ColBottom,
	}
}

var usernameAdjectives = []string{
	"brave", "calm", "eager", "fuzzy", "jolly", "lucky", "mellow", "nimble", "sunny", "witty",
}

var usernameNouns = []string{
	"falcon", "otter", "badger", "heron", "lynx", "marmot", "puffin", "raccoon", "tapir", "wombat",
}

// RandomUsername produces a readable default identity for first runs.
func RandomUsername() string {
	return usernameAdjectives[rand.Intn(len(usernameAdjectives))] + "-" + usernameNouns[rand.Intn(len(usernameNouns))]
}
