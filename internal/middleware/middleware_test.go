package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotmarket/backend/internal/models"
)

type fakeResolver struct {
	principals map[string]*models.Principal
	err        error
	seen       []string
}

func (f *fakeResolver) Resolve(_ context.Context, credential string) (*models.Principal, error) {
	f.seen = append(f.seen, credential)
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.principals[credential]
	if !ok {
		return nil, ErrInvalidSession
	}
	return p, nil
}

var cookieNames = []string{"better-auth.session_token", "better-auth.session-token"}

func init() { gin.SetMode(gin.TestMode) }

func newRouter(resolver PrincipalResolver, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := append([]gin.HandlerFunc{Session(resolver, cookieNames, nil)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": Principal(c).Email})
	})
	r.Any("/t", handlers...)
	r.Any("/t/:sponsorId", handlers...)
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSessionMissingCredential(t *testing.T) {
	w := do(newRouter(&fakeResolver{}), httptest.NewRequest(http.MethodGet, "/t", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
}

func TestSessionBearer(t *testing.T) {
	res := &fakeResolver{principals: map[string]*models.Principal{"tok": {Email: "a@b.c"}}}
	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	req.Header.Set("Authorization", "Bearer tok")

	w := do(newRouter(res), req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "a@b.c")
}

func TestSessionCookieFallback(t *testing.T) {
	res := &fakeResolver{principals: map[string]*models.Principal{"tok.sig": {Email: "c@d.e"}}}
	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	req.AddCookie(&http.Cookie{Name: "better-auth.session-token", Value: "tok.sig"})

	w := do(newRouter(res), req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"tok.sig"}, res.seen)
}

func TestSessionUnknownToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	req.Header.Set("Authorization", "Bearer nope")
	w := do(newRouter(&fakeResolver{}), req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionLookupFailure(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := do(newRouter(&fakeResolver{err: errors.New("db down")}), req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Empty(t, BearerToken("Basic abc"))
	assert.Empty(t, BearerToken("Bearer"))
}

func TestRequireRole(t *testing.T) {
	res := &fakeResolver{principals: map[string]*models.Principal{
		"s": {Email: "s@x", Role: models.RoleSponsor},
		"p": {Email: "p@x", Role: models.RolePublisher},
	}}
	r := newRouter(res, RequireRole(models.RoleSponsor))

	for tok, want := range map[string]int{"s": http.StatusOK, "p": http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodGet, "/t", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		assert.Equal(t, want, do(r, req).Code, tok)
	}
}

func TestRequireSponsorOwnership(t *testing.T) {
	own := uuid.New()
	res := &fakeResolver{principals: map[string]*models.Principal{
		"s":  {Email: "s@x", Role: models.RoleSponsor, SponsorID: &own},
		"p":  {Email: "p@x", Role: models.RolePublisher},
		"s2": {Email: "s2@x", Role: models.RoleSponsor},
	}}
	r := newRouter(res, RequireSponsorOwnership(), func(c *gin.Context) {
		// the body must still be readable downstream
		var body map[string]any
		if c.Request.Method == http.MethodPost {
			require.NoError(t, c.ShouldBindBodyWith(&body, binding.JSON))
		}
		c.Next()
	})

	tests := []struct {
		name   string
		tok    string
		method string
		path   string
		body   string
		want   int
	}{
		{"own id in body", "s", http.MethodPost, "/t", `{"sponsorId":"` + own.String() + `"}`, http.StatusOK},
		{"other id in body", "s", http.MethodPost, "/t", `{"sponsorId":"` + uuid.NewString() + `"}`, http.StatusForbidden},
		{"no id", "s", http.MethodGet, "/t", "", http.StatusOK},
		{"own id in path", "s", http.MethodGet, "/t/" + own.String(), "", http.StatusOK},
		{"other id in query", "s", http.MethodGet, "/t?sponsorId=" + uuid.NewString(), "", http.StatusForbidden},
		{"publisher role", "p", http.MethodGet, "/t", "", http.StatusForbidden},
		{"sponsor without profile names id", "s2", http.MethodPost, "/t", `{"sponsorId":"` + own.String() + `"}`, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			req.Header.Set("Authorization", "Bearer "+tt.tok)
			assert.Equal(t, tt.want, do(r, req).Code)
		})
	}
}

func TestRequirePublisherOwnership(t *testing.T) {
	own := uuid.New()
	res := &fakeResolver{principals: map[string]*models.Principal{
		"p": {Email: "p@x", Role: models.RolePublisher, PublisherID: &own},
	}}
	r := newRouter(res, RequirePublisherOwnership())

	body := func(id string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/t", strings.NewReader(`{"publisherId":"`+id+`"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer p")
		return req
	}
	assert.Equal(t, http.StatusOK, do(r, body(own.String())).Code)
	assert.Equal(t, http.StatusForbidden, do(r, body(uuid.NewString())).Code)
	assert.Equal(t, http.StatusForbidden, do(r, body("")).Code)
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://app.test"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://app.test")
	w := do(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://app.test", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.test")
	w = do(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(4, time.Minute, nil)
	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	rl.Sweep(time.Now().Add(2 * time.Minute))
	assert.Empty(t, rl.visitors)
	assert.Equal(t, http.StatusOK, do(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
}

func TestRateLimiterNeverExceedsQuotaWithinWindow(t *testing.T) {
	const quota = 100
	window := 15 * time.Minute
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := start

	rl := NewRateLimiter(quota, window, nil)
	rl.now = func() time.Time { return clock }
	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	// Hammer the endpoint every second for three windows.
	var admitted []time.Time
	for clock.Before(start.Add(3 * window)) {
		for {
			w := do(r, httptest.NewRequest(http.MethodGet, "/x", nil))
			if w.Code != http.StatusOK {
				assert.Equal(t, http.StatusTooManyRequests, w.Code)
				assert.NotEmpty(t, w.Header().Get("Retry-After"))
				break
			}
			assert.Equal(t, "100", w.Header().Get("X-RateLimit-Limit"))
			admitted = append(admitted, clock)
		}
		clock = clock.Add(time.Second)
	}

	require.NotEmpty(t, admitted)
	busiest := 0
	for i, from := range admitted {
		n := 0
		for _, at := range admitted[i:] {
			if at.Sub(from) >= window {
				break
			}
			n++
		}
		if n > busiest {
			busiest = n
		}
	}
	assert.LessOrEqual(t, busiest, quota)
	assert.GreaterOrEqual(t, busiest, quota-2)
}
