package elonbot

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rocketcrew/elonbot/config"
	"github.com/rocketcrew/elonbot/pipeline"
	"github.com/rocketcrew/elonbot/roster"
	"github.com/rocketcrew/elonbot/slog"
	"github.com/slack-go/slack"
	"github.com/spf13/viper"
)

const userInfoCacheSizeDisabledValue = 0

// UserInfoFinder defines the interface for finding a slack user's info
type UserInfoFinder interface {
	GetUserInfo(userID string) (user *slack.User, err error)
}

// selfInfoFinder defines the interface for finding our (the bot's) user info
type selfInfoFinder interface {
	GetInfo() (user *slack.Info)
}

// cachingUserInfoFinder holds a cache and a loading UserInfoFinder to implement the UserInfoFinder loading entries from cache
type cachingUserInfoFinder struct {
	loader           UserInfoFinder
	logger           slog.SLogger
	userProfileCache *lru.ARCCache
}

// NewCachingUserInfoFinder creates a new user info service with caching if enabled via config.UserInfoCacheSizeKey. It requires an implementation
// of the interface that will do the actual loading when not in cache
func NewCachingUserInfoFinder(v *viper.Viper, loader UserInfoFinder, logger slog.SLogger) (uf UserInfoFinder, err error) {
	cuf := new(cachingUserInfoFinder)

	cs := v.GetInt(config.UserInfoCacheSizeKey)

	if cs > userInfoCacheSizeDisabledValue {
		cuf.userProfileCache, err = lru.NewARC(cs)
		if err != nil {
			return nil, err
		}
	} else if cs < userInfoCacheSizeDisabledValue {
		return nil, fmt.Errorf("Invalid user info cache size [%d]", cs)
	}

	cuf.loader = loader
	cuf.logger = logger

	return cuf, nil
}

// GetUserInfo gets the user info or returns an error and a nil user is not found or
// an error occurred during retrieval
func (c cachingUserInfoFinder) GetUserInfo(userID string) (u *slack.User, err error) {
	if c.userProfileCache == nil {
		c.logger.Debugf("Cache disabled, loading user info for [%s] from slack instead", userID)
		return c.loader.GetUserInfo(userID)
	}

	if cached, exists := c.userProfileCache.Get(userID); exists {
		c.logger.Debugf("User info in cache [%s] so using that", userID)

		userProfile, ok := cached.(slack.User)
		if !ok {
			return nil, fmt.Errorf("Error converting cached value for user id [%s]", userID)
		}

		return &userProfile, nil
	}

	c.logger.Debugf("User info for [%s] not found in cache, retrieving from slack and saving", userID)
	u, err = c.loader.GetUserInfo(userID)
	if err != nil {
		return nil, err
	}

	c.userProfileCache.Add(userID, *u)

	return u, nil
}

// NewUserNamer returns a pipeline.UserNamer resolving names from the roster first, then from
// the slack profile (real name, display name and handle in that order). The user id is used
// when nothing else is known
func NewUserNamer(r roster.Roster, finder UserInfoFinder, logger slog.SLogger) pipeline.UserNamer {
	return func(ctx context.Context, userID string) (name string) {
		if e, ok := r.Find(userID); ok {
			return e.Name
		}

		if finder == nil {
			return userID
		}

		u, err := finder.GetUserInfo(userID)
		if err != nil {
			logger.Printf("Error loading user info of [%s]: %v", userID, err)
			return userID
		}

		for _, n := range []string{u.RealName, u.Profile.DisplayName, u.Name} {
			if n = strings.TrimSpace(n); n != "" {
				return n
			}
		}

		return userID
	}
}
