package users

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
)

// ErrInvalidProfile indicates the submitted profile carried no usable identifier.
var ErrInvalidProfile = errors.New("users: invalid profile")

// ServiceConfig describes the dependencies required for profile resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service manages user display profiles.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:    cfg.Database,
		now:   clock,
		cache: sync.Map{},
	}, nil
}

// UpsertProfile records or refreshes a user's display profile and returns
// the stored row. Display fields are only overwritten by non-empty input.
func (s *Service) UpsertProfile(submitted Profile) (Profile, error) {
	userID := normalize(submitted.UserID)
	if userID == "" {
		return Profile{}, ErrInvalidProfile
	}

	var stored Profile
	err := s.db.
		Where("user_id = ?", userID).
		First(&stored).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		stored = Profile{
			UserID:      userID,
			DisplayName: normalize(submitted.DisplayName),
			AvatarURL:   normalize(submitted.AvatarURL),
			LastSeenAt:  s.now(),
		}
		if err := s.db.Create(&stored).Error; err != nil {
			return Profile{}, err
		}
	} else if err != nil {
		return Profile{}, err
	} else {
		updates := map[string]interface{}{}
		if display := normalize(submitted.DisplayName); display != "" && display != stored.DisplayName {
			updates["display_name"] = display
			stored.DisplayName = display
		}
		if avatar := normalize(submitted.AvatarURL); avatar != "" && avatar != stored.AvatarURL {
			updates["avatar_url"] = avatar
			stored.AvatarURL = avatar
		}
		updates["last_seen_at"] = s.now()
		if err := s.db.Model(&Profile{}).
			Where("user_id = ?", userID).
			Updates(updates).
			Error; err != nil {
			return Profile{}, err
		}
	}

	s.cache.Store(userID, stored)
	return stored, nil
}

// ProfilesByID resolves display profiles for a batch of user ids. Unknown
// ids are simply absent from the result; callers decide the fallback.
func (s *Service) ProfilesByID(userIDs []string) (map[string]Profile, error) {
	resolved := make(map[string]Profile, len(userIDs))
	missing := make([]string, 0, len(userIDs))
	for _, rawID := range userIDs {
		userID := normalize(rawID)
		if userID == "" {
			continue
		}
		if cached, ok := s.cache.Load(userID); ok {
			if profile, ok := cached.(Profile); ok {
				resolved[userID] = profile
				continue
			}
		}
		missing = append(missing, userID)
	}

	if len(missing) == 0 {
		return resolved, nil
	}

	var rows []Profile
	if err := s.db.
		Where("user_id IN ?", missing).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	for _, profile := range rows {
		resolved[profile.UserID] = profile
		s.cache.Store(profile.UserID, profile)
	}
	return resolved, nil
}
