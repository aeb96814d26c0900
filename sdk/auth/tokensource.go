package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Infomaniak/infomaniak-login-go/internal/auth/infomaniak"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// TokenSource serves the access token of a stored record and refreshes it
// shortly before it expires. Concurrent callers share one refresh request.
type TokenSource struct {
	client *infomaniak.InfomaniakAuth
	store  Store
	lead   time.Duration
	now    func() time.Time

	mu     sync.RWMutex
	record *Record
	group  singleflight.Group
}

var _ oauth2.TokenSource = (*TokenSource)(nil)

// NewTokenSource wraps record. store may be nil, in which case refreshed
// tokens are only kept in memory.
func NewTokenSource(client *infomaniak.InfomaniakAuth, record *Record, store Store, lead time.Duration) (*TokenSource, error) {
	if client == nil {
		return nil, fmt.Errorf("token source: client is required")
	}
	if record == nil || record.Token == nil {
		return nil, fmt.Errorf("token source: record has no token")
	}
	if lead < 0 {
		lead = 0
	}
	return &TokenSource{
		client: client,
		store:  store,
		lead:   lead,
		now:    time.Now,
		record: record,
	}, nil
}

// Current returns the record as last seen by the source.
func (s *TokenSource) Current() *Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record
}

// Token implements oauth2.TokenSource.
func (s *TokenSource) Token() (*oauth2.Token, error) {
	token, err := s.TokenContext(context.Background())
	if err != nil {
		return nil, err
	}
	return token.OAuth2(), nil
}

// TokenContext returns a token valid for at least the refresh lead, refreshing
// it when needed. Tokens without expiration are returned as is.
func (s *TokenSource) TokenContext(ctx context.Context) (*infomaniak.ApiToken, error) {
	current := s.Current()
	if !current.Token.ExpiresWithin(s.lead, s.now()) {
		return current.Token, nil
	}
	if !current.Token.HasRefreshToken() {
		if current.Token.Expired(s.now()) {
			return nil, infomaniak.ErrNoRefreshToken
		}
		return current.Token, nil
	}
	record, err := s.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	return record.Token, nil
}

// Refresh exchanges the refresh token for a new token and persists the
// updated record.
func (s *TokenSource) Refresh(ctx context.Context) (*Record, error) {
	current := s.Current()
	if !current.Token.HasRefreshToken() {
		return nil, infomaniak.ErrNoRefreshToken
	}

	v, err, shared := s.group.Do(current.Token.RefreshToken, func() (any, error) {
		if latest := s.Current(); latest.Token.RefreshToken != current.Token.RefreshToken {
			return latest, nil
		}
		token, errRefresh := s.client.RefreshTokens(ctx, current.Token)
		if errRefresh != nil {
			return nil, errRefresh
		}
		next := current.WithToken(token)
		if s.store != nil {
			path, errSave := s.store.Save(ctx, next)
			if errSave != nil {
				log.WithField("error", errSave).Warn("token source: failed to persist refreshed token")
			} else if path != "" {
				next.Path = path
			}
		}
		s.mu.Lock()
		s.record = next
		s.mu.Unlock()
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug("token source: joined in-flight refresh")
	}
	return v.(*Record), nil
}

// HTTPClient returns a client that authorizes requests with the current token.
func (s *TokenSource) HTTPClient(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, s)
}
