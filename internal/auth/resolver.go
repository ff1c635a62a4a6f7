package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slotmarket/backend/internal/middleware"
	"github.com/slotmarket/backend/internal/models"
	"github.com/slotmarket/backend/pkg/cache"
	"github.com/slotmarket/backend/pkg/database"
)

// SessionLookup finds the principal behind a live session token.
type SessionLookup interface {
	PrincipalByToken(ctx context.Context, token string, now time.Time) (*SessionPrincipal, error)
}

// Resolver turns a presented credential into a principal, caching hits for a short TTL.
type Resolver struct {
	sessions SessionLookup
	signer   *Signer
	cache    cache.Store
	cacheTTL time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewResolver creates a resolver. store may be nil to disable principal caching.
func NewResolver(sessions SessionLookup, signer *Signer, store cache.Store, cacheTTL time.Duration, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		sessions: sessions,
		signer:   signer,
		cache:    store,
		cacheTTL: cacheTTL,
		now:      time.Now,
		logger:   logger,
	}
}

// SessionToken extracts the session token from a credential. Accepted forms are
// the signed login envelope, a cookie-style "token.signature" value and a raw token.
func (r *Resolver) SessionToken(credential string) string {
	credential = strings.TrimSpace(credential)
	if strings.Count(credential, ".") == 2 && r.signer != nil {
		if tok, err := r.signer.SessionToken(credential); err == nil {
			return tok
		}
	}
	if i := strings.IndexByte(credential, '.'); i >= 0 {
		return credential[:i]
	}
	return credential
}

// Resolve returns the principal for credential. Unknown or expired sessions yield
// middleware.ErrInvalidSession; any other error is a lookup failure.
func (r *Resolver) Resolve(ctx context.Context, credential string) (*models.Principal, error) {
	token := r.SessionToken(credential)
	if token == "" {
		return nil, middleware.ErrInvalidSession
	}
	key := principalKey(token)

	if r.cache != nil {
		raw, err := r.cache.Get(ctx, key)
		switch {
		case err == nil:
			var p models.Principal
			if jerr := json.Unmarshal(raw, &p); jerr == nil {
				return &p, nil
			}
		case !errors.Is(err, cache.ErrMiss):
			r.logger.Warn("principal cache read failed", zap.Error(err))
		}
	}

	now := r.now()
	sp, err := r.sessions.PrincipalByToken(ctx, token, now)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, middleware.ErrInvalidSession
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}

	if r.cache != nil && r.cacheTTL > 0 {
		ttl := r.cacheTTL
		if left := sp.ExpiresAt.Sub(now); left < ttl {
			ttl = left
		}
		if raw, jerr := json.Marshal(sp.Principal); jerr == nil && ttl > 0 {
			if err := r.cache.SetTagged(ctx, userTag(sp.Principal.UserID), key, raw, ttl); err != nil {
				r.logger.Warn("principal cache write failed", zap.Error(err))
			}
		}
	}
	p := sp.Principal
	return &p, nil
}

// Evict drops any cached principal for the session token inside credential.
func (r *Resolver) Evict(ctx context.Context, credential string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, principalKey(r.SessionToken(credential))); err != nil {
		r.logger.Warn("principal cache evict failed", zap.Error(err))
	}
}

// EvictUser drops the cached principal of every session held by userID. Profile
// creation calls it so the new sponsor or publisher id is visible on the next request.
func (r *Resolver) EvictUser(ctx context.Context, userID uuid.UUID) {
	if r.cache == nil {
		return
	}
	if err := r.cache.InvalidateTag(ctx, userTag(userID)); err != nil {
		r.logger.Warn("principal cache evict failed", zap.Error(err), zap.String("user_id", userID.String()))
	}
}

func userTag(userID uuid.UUID) string {
	return "principal-user:" + userID.String()
}

func principalKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "principal:" + hex.EncodeToString(sum[:])
}
