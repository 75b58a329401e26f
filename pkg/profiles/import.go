package profiles

import (
	"encoding/json"
	"fmt"
)

// Export is the bulk-export document produced by other proxy bots.
type Export struct {
	Members []ExportMember `json:"members"`
}

type ExportMember struct {
	Name        string  `json:"name"`
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
	Color       *string `json:"color"`
}

// ParseExport returns the decoder error unchanged so it can be shown to the
// user as-is.
func ParseExport(data []byte) (Export, error) {
	var export Export
	if err := json.Unmarshal(data, &export); err != nil {
		return Export{}, err
	}
	return export, nil
}

// Profiles converts every member and validates all of them before returning
// anything. The first invalid member fails the whole batch.
func (e Export) Profiles(userID string) ([]Profile, error) {
	out := make([]Profile, 0, len(e.Members))
	for i, m := range e.Members {
		p := Profile{
			UserID:      userID,
			Name:        m.Name,
			DisplayName: deref(m.DisplayName),
			Avatar:      deref(m.AvatarURL),
		}
		if c := deref(m.Color); c != "" {
			p.Colour = "#" + c
		}
		if err := p.Validate(); err != nil {
			verr := err.(*ValidationError)
			for j := range verr.Errors {
				verr.Errors[j].Field = fmt.Sprintf("members[%d].%s", i, verr.Errors[j].Field)
			}
			return nil, verr
		}
		out = append(out, p)
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
