// Package session holds the client's session context: the opaque bearer
// credential and the organisation profile. A Session is created once per
// process and passed explicitly to the gateway and views.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rcliao/automarket/internal/model"
)

var (
	// ErrEmptyToken is returned by Begin when no credential is given.
	ErrEmptyToken = errors.New("session: empty token")

	// ErrProfileSet is returned by SetProfile once a profile exists.
	ErrProfileSet = errors.New("session: profile already set")
)

// Persister stores the session outside the process. It is implemented by
// store.SQLiteStore.
type Persister interface {
	LoadSession(ctx context.Context) (token, profile string, err error)
	LoadToken(ctx context.Context) (string, error)
	SaveSession(ctx context.Context, token, profile string) error
	SaveProfile(ctx context.Context, profile string) error
	ClearSession(ctx context.Context) error
}

// Session is safe for concurrent use.
type Session struct {
	mu      sync.RWMutex
	token   string
	profile *model.OrganisationProfile

	persist Persister
	log     zerolog.Logger
}

// New returns an empty session. A nil persister keeps the session in memory.
func New(p Persister, logger zerolog.Logger) *Session {
	return &Session{persist: p, log: logger}
}

// Restore loads the persisted credential and profile. It is called once at
// process start.
func (s *Session) Restore(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	token, rawProfile, err := s.persist.LoadSession(ctx)
	if err != nil {
		return fmt.Errorf("session: restore: %w", err)
	}

	var profile *model.OrganisationProfile
	if rawProfile != "" {
		p, err := model.UnmarshalStoredProfile(rawProfile)
		if err != nil {
			// A corrupt profile should not lock the user out.
			s.log.Warn().Err(err).Msg("discarding unreadable stored profile")
		} else {
			profile = &p
		}
	}

	s.mu.Lock()
	s.token = token
	s.profile = profile
	s.mu.Unlock()
	return nil
}

// Begin starts a session after a successful login. profile may be nil when
// the login response carried none.
func (s *Session) Begin(ctx context.Context, token string, profile *model.OrganisationProfile) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}

	var rawProfile string
	if profile != nil {
		raw, err := profile.MarshalStored()
		if err != nil {
			return fmt.Errorf("session: encode profile: %w", err)
		}
		rawProfile = raw
	}

	if s.persist != nil {
		if err := s.persist.SaveSession(ctx, token, rawProfile); err != nil {
			return fmt.Errorf("session: persist: %w", err)
		}
	}

	s.mu.Lock()
	s.token = token
	if profile != nil {
		p := *profile
		s.profile = &p
	} else {
		s.profile = nil
	}
	s.mu.Unlock()

	s.log.Debug().Bool("profile", profile != nil).Msg("session started")
	return nil
}

// End tears the session down: memory and storage are cleared.
func (s *Session) End(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.profile = nil
	s.mu.Unlock()

	if s.persist != nil {
		if err := s.persist.ClearSession(ctx); err != nil {
			return fmt.Errorf("session: clear: %w", err)
		}
	}
	s.log.Debug().Msg("session ended")
	return nil
}

// Token returns the current credential, or "" when logged out. With a
// persister the stored value wins, so a store cleared by another process
// takes effect on the next call.
func (s *Session) Token(ctx context.Context) string {
	if s.persist != nil {
		token, err := s.persist.LoadToken(ctx)
		if err == nil {
			s.mu.Lock()
			s.token = token
			s.mu.Unlock()
			return token
		}
		s.log.Warn().Err(err).Msg("reading stored token failed, using cached value")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// LoggedIn reports whether a credential is present.
func (s *Session) LoggedIn(ctx context.Context) bool {
	return s.Token(ctx) != ""
}

// Profile returns a copy of the organisation profile.
func (s *Session) Profile() (model.OrganisationProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return model.OrganisationProfile{}, false
	}
	return *s.profile, true
}

// SetProfile records the profile when none is set yet.
func (s *Session) SetProfile(ctx context.Context, p model.OrganisationProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile != nil {
		return ErrProfileSet
	}
	if s.persist != nil {
		raw, err := p.MarshalStored()
		if err != nil {
			return fmt.Errorf("session: encode profile: %w", err)
		}
		if err := s.persist.SaveProfile(ctx, raw); err != nil {
			return fmt.Errorf("session: persist profile: %w", err)
		}
	}
	s.profile = &p
	return nil
}
