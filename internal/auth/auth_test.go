package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotmarket/backend/internal/middleware"
	"github.com/slotmarket/backend/internal/models"
	"github.com/slotmarket/backend/pkg/cache"
	"github.com/slotmarket/backend/pkg/database"
	"github.com/slotmarket/backend/pkg/utils"
)

type memStore struct {
	mu       sync.Mutex
	users    map[string]*models.User
	sessions map[string]*models.Session
	sponsors map[uuid.UUID]uuid.UUID
	lookups  int
	failWith error
}

func newMemStore() *memStore {
	return &memStore{users: map[string]*models.User{}, sessions: map[string]*models.Session{}, sponsors: map[uuid.UUID]uuid.UUID{}}
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, database.ErrNotFound
	}
	return u, nil
}

func (m *memStore) CreateUser(_ context.Context, email, hash, name string, role models.Role) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &models.User{ID: uuid.New(), Email: email, Password: hash, Name: name, Role: role, CreatedAt: time.Now()}
	m.users[email] = u
	return u, nil
}

func (m *memStore) CreateSession(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	m.sessions[s.Token] = s
	return nil
}

func (m *memStore) DeleteSession(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

func (m *memStore) PrincipalByToken(_ context.Context, token string, now time.Time) (*SessionPrincipal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.failWith != nil {
		return nil, m.failWith
	}
	s, ok := m.sessions[token]
	if !ok || s.Expired(now) {
		return nil, database.ErrNotFound
	}
	for _, u := range m.users {
		if u.ID == s.UserID {
			p := models.Principal{UserID: u.ID, Email: u.Email, Role: u.Role}
			if sid, ok := m.sponsors[u.ID]; ok {
				p.SponsorID = &sid
			}
			return &SessionPrincipal{Principal: p, ExpiresAt: s.ExpiresAt}, nil
		}
	}
	return nil, database.ErrNotFound
}

func seedSession(t *testing.T, store *memStore, token string, ttl time.Duration) *models.User {
	t.Helper()
	u, err := store.CreateUser(context.Background(), "s@x.test", "", "S", models.RoleSponsor)
	require.NoError(t, err)
	require.NoError(t, store.CreateSession(context.Background(), &models.Session{Token: token, UserID: u.ID, ExpiresAt: time.Now().Add(ttl)}))
	return u
}

func TestResolverCredentialForms(t *testing.T) {
	store := newMemStore()
	u := seedSession(t, store, "rawtoken", time.Hour)
	signer := NewSigner("secret")
	signed, err := signer.Issue("rawtoken", u.ID, "SPONSOR", time.Now().Add(time.Hour))
	require.NoError(t, err)

	r := NewResolver(store, signer, nil, 0, nil)
	for _, cred := range []string{"rawtoken", "rawtoken.signaturepart", signed} {
		p, err := r.Resolve(context.Background(), cred)
		require.NoError(t, err, cred)
		assert.Equal(t, u.ID, p.UserID)
	}
}

func TestResolverRejectsForeignSignature(t *testing.T) {
	store := newMemStore()
	u := seedSession(t, store, "rawtoken", time.Hour)
	forged, err := NewSigner("other").Issue("rawtoken", u.ID, "SPONSOR", time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = NewResolver(store, NewSigner("secret"), nil, 0, nil).Resolve(context.Background(), forged)
	assert.ErrorIs(t, err, middleware.ErrInvalidSession)
}

func TestResolverExpiredAndFailure(t *testing.T) {
	store := newMemStore()
	seedSession(t, store, "old", -time.Minute)
	r := NewResolver(store, NewSigner("secret"), nil, 0, nil)

	_, err := r.Resolve(context.Background(), "old")
	assert.ErrorIs(t, err, middleware.ErrInvalidSession)

	store.failWith = errors.New("connection refused")
	_, err = r.Resolve(context.Background(), "old")
	require.Error(t, err)
	assert.False(t, errors.Is(err, middleware.ErrInvalidSession))
}

func TestResolverCachesPrincipal(t *testing.T) {
	store := newMemStore()
	seedSession(t, store, "tok", time.Hour)
	r := NewResolver(store, NewSigner("secret"), cache.NewMemory(), time.Minute, nil)
	ctx := context.Background()

	_, err := r.Resolve(ctx, "tok")
	require.NoError(t, err)
	_, err = r.Resolve(ctx, "tok.sig")
	require.NoError(t, err)
	assert.Equal(t, 1, store.lookups)

	r.Evict(ctx, "tok")
	_, err = r.Resolve(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, 2, store.lookups)
}

func TestResolverEvictUserSeesNewProfile(t *testing.T) {
	store := newMemStore()
	u := seedSession(t, store, "tok", time.Hour)
	require.NoError(t, store.CreateSession(context.Background(), &models.Session{Token: "other", UserID: u.ID, ExpiresAt: time.Now().Add(time.Hour)}))
	r := NewResolver(store, NewSigner("secret"), cache.NewMemory(), time.Minute, nil)
	ctx := context.Background()

	for _, cred := range []string{"tok", "other"} {
		p, err := r.Resolve(ctx, cred)
		require.NoError(t, err)
		assert.Nil(t, p.SponsorID)
	}

	sponsorID := uuid.New()
	store.mu.Lock()
	store.sponsors[u.ID] = sponsorID
	store.mu.Unlock()

	r.EvictUser(ctx, u.ID)
	for _, cred := range []string{"tok", "other"} {
		p, err := r.Resolve(ctx, cred)
		require.NoError(t, err)
		assert.True(t, p.OwnsSponsor(sponsorID), cred)
	}
}

func newAuthRouter(store *memStore) (*gin.Engine, *Resolver) {
	gin.SetMode(gin.TestMode)
	signer := NewSigner("secret")
	resolver := NewResolver(store, signer, cache.NewMemory(), time.Minute, nil)
	h := NewHandler(store, signer, resolver, time.Hour, "better-auth.session_token", nil)
	r := gin.New()
	g := r.Group("/api/auth")
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	authed := g.Group("", middleware.Session(resolver, []string{"better-auth.session_token"}, nil))
	authed.POST("/logout", h.Logout)
	authed.GET("/me", h.Me)
	return r, resolver
}

func postJSON(r http.Handler, path string, body any, bearer string) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type tokenEnvelope struct {
	Success bool          `json:"success"`
	Data    TokenResponse `json:"data"`
	Error   string        `json:"error"`
}

func TestLoginMeLogout(t *testing.T) {
	store := newMemStore()
	hash, err := utils.HashPassword("hunter22")
	require.NoError(t, err)
	_, err = store.CreateUser(context.Background(), "pub@x.test", hash, "Pub", models.RolePublisher)
	require.NoError(t, err)
	r, _ := newAuthRouter(store)

	w := postJSON(r, "/api/auth/login", LoginRequest{Email: "pub@x.test", Password: "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(r, "/api/auth/login", LoginRequest{Email: "pub@x.test", Password: "hunter22"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var env tokenEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, models.RolePublisher, env.Data.User.Role)
	assert.Len(t, store.sessions, 1)
	assert.Contains(t, w.Header().Get("Set-Cookie"), "better-auth.session_token=")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+env.Data.Token)
	me := httptest.NewRecorder()
	r.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), `"role":"PUBLISHER"`)

	w = postJSON(r, "/api/auth/logout", nil, env.Data.Token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, store.sessions)

	me = httptest.NewRecorder()
	r.ServeHTTP(me, req)
	assert.Equal(t, http.StatusUnauthorized, me.Code)
}

func TestRegister(t *testing.T) {
	store := newMemStore()
	r, _ := newAuthRouter(store)

	w := postJSON(r, "/api/auth/register", RegisterRequest{Email: "new@x.test", Password: "longenough", Name: "N", Role: "sponsor"}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, models.RoleSponsor, store.users["new@x.test"].Role)

	w = postJSON(r, "/api/auth/register", RegisterRequest{Email: "new@x.test", Password: "longenough", Name: "N", Role: "SPONSOR"}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = postJSON(r, "/api/auth/register", RegisterRequest{Email: "x@x.test", Password: "longenough", Name: "N", Role: "ADMIN"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
