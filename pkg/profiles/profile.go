// Package profiles defines the Profile entity: a named persona a user can
// speak through, with optional display name, avatar and colour.
package profiles

// MaxPerUser is the number of distinct profile names a single user may hold.
const MaxPerUser = 256

// Profile is keyed by (UserID, Name). Optional attributes use the empty
// string for "unset".
type Profile struct {
	UserID      string
	Name        string
	DisplayName string
	Avatar      string
	Colour      string
}

func New(userID, name string) Profile {
	return Profile{UserID: userID, Name: name}
}

// Masquerade is the identity override attached to an outgoing message.
type Masquerade struct {
	Name   string
	Avatar string
	Colour string
}

// Masquerade falls back to the profile name when no display name is set.
func (p Profile) Masquerade() Masquerade {
	name := p.DisplayName
	if name == "" {
		name = p.Name
	}
	return Masquerade{
		Name:   name,
		Avatar: p.Avatar,
		Colour: p.Colour,
	}
}
