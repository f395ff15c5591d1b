package server

import (
	"context"

	"github.com/animaaz/community/internal/thread"
	"github.com/animaaz/community/internal/users"
)

// profileDirectory adapts the users profile service to the author lookup the
// thread service needs.
type profileDirectory struct {
	profiles *users.Service
}

// NewProfileDirectory wraps a users service as a thread.AuthorDirectory.
func NewProfileDirectory(profiles *users.Service) thread.AuthorDirectory {
	return &profileDirectory{profiles: profiles}
}

func (d *profileDirectory) AuthorsByID(_ context.Context, userIDs []string) (map[string]thread.AuthorPayload, error) {
	resolved, err := d.profiles.ProfilesByID(userIDs)
	if err != nil {
		return nil, err
	}
	authors := make(map[string]thread.AuthorPayload, len(resolved))
	for userID, profile := range resolved {
		authors[userID] = thread.AuthorPayload{
			UserID:      profile.UserID,
			DisplayName: profile.DisplayName,
			AvatarURL:   profile.AvatarURL,
		}
	}
	return authors, nil
}
