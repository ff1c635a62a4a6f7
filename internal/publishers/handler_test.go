package publishers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotmarket/backend/internal/auth"
	"github.com/slotmarket/backend/internal/middleware"
	"github.com/slotmarket/backend/internal/models"
	"github.com/slotmarket/backend/pkg/cache"
	"github.com/slotmarket/backend/pkg/database"
)

type memStore struct {
	publishers map[uuid.UUID]*models.Publisher
	stats      map[uuid.UUID]*Stats
}

func newMemStore() *memStore {
	return &memStore{publishers: map[uuid.UUID]*models.Publisher{}, stats: map[uuid.UUID]*Stats{}}
}

func (m *memStore) List(context.Context) ([]models.PublisherListItem, error) {
	out := []models.PublisherListItem{}
	for _, p := range m.publishers {
		out = append(out, models.PublisherListItem{Publisher: *p})
	}
	return out, nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Publisher, error) {
	p, ok := m.publishers[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) GetDetail(ctx context.Context, id uuid.UUID) (*models.PublisherDetail, error) {
	p, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.PublisherDetail{Publisher: *p, AdSlots: []models.AdSlot{}, Placements: []models.PublisherPlacement{}}, nil
}

func (m *memStore) Stats(_ context.Context, id uuid.UUID) (*Stats, error) {
	if st, ok := m.stats[id]; ok {
		return st, nil
	}
	return &Stats{}, nil
}

func (m *memStore) Create(_ context.Context, userID uuid.UUID, in CreateInput) (*models.Publisher, error) {
	p := &models.Publisher{ID: uuid.New(), UserID: &userID, Name: in.Name, Email: in.Email, Category: in.Category, IsActive: true}
	if in.MonthlyViews != nil {
		p.MonthlyViews = *in.MonthlyViews
	}
	m.publishers[p.ID] = p
	return p, nil
}

func (m *memStore) Update(_ context.Context, id uuid.UUID, in UpdateInput) (*models.Publisher, error) {
	p, ok := m.publishers[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.MonthlyViews != nil {
		p.MonthlyViews = *in.MonthlyViews
	}
	cp := *p
	return &cp, nil
}

func newRouter(store Store, p *models.Principal) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(store, nil)
	r := gin.New()
	r.GET("/publishers", h.List)
	r.GET("/publishers/:id", h.Get)
	r.GET("/publishers/:id/stats", h.Stats)
	authed := r.Group("", func(c *gin.Context) {
		if p != nil {
			c.Set(middleware.ContextPrincipal, p)
		}
	})
	authed.POST("/publishers", h.Create)
	authed.PUT("/publishers/:id", middleware.RequireRole(models.RolePublisher), h.Update)
	return r
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreatePublisher(t *testing.T) {
	store := newMemStore()
	r := newRouter(store, &models.Principal{UserID: uuid.New(), Role: models.RolePublisher})

	w := do(r, http.MethodPost, "/publishers", map[string]any{"name": "Daily Byte"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/publishers", map[string]any{"name": "Daily Byte", "email": "ed@byte.test", "monthlyViews": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/publishers", map[string]any{"name": "Daily Byte", "email": "ed@byte.test", "monthlyViews": 50000})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"monthlyViews":50000`)
}

func TestUpdatePublisherOwnership(t *testing.T) {
	store := newMemStore()
	owner := uuid.New()
	pub, _ := store.Create(context.Background(), owner, CreateInput{Name: "Daily Byte", Email: "ed@byte.test"})

	r := newRouter(store, &models.Principal{UserID: uuid.New(), Role: models.RolePublisher})
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPut, "/publishers/"+pub.ID.String(), map[string]any{"name": "X"}).Code)

	r = newRouter(store, &models.Principal{UserID: owner, Role: models.RolePublisher})
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPut, "/publishers/"+uuid.NewString(), map[string]any{"name": "X"}).Code)
	w := do(r, http.MethodPut, "/publishers/"+pub.ID.String(), map[string]any{"name": "Weekly Byte"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Weekly Byte", store.publishers[pub.ID].Name)
}

func TestStats(t *testing.T) {
	store := newMemStore()
	pub, _ := store.Create(context.Background(), uuid.New(), CreateInput{Name: "Daily Byte", Email: "ed@byte.test"})
	store.stats[pub.ID] = &Stats{TotalRevenue: decimal.RequireFromString("1250.50"), ActiveSlots: 2, AvgPrice: 300}
	r := newRouter(store, nil)

	w := do(r, http.MethodGet, "/publishers/"+pub.ID.String()+"/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"totalRevenue":"1250.5","activeSlots":2,"avgPrice":300}}`, w.Body.String())

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/publishers/"+uuid.NewString()+"/stats", nil).Code)
}

type storeSessions struct {
	store  *memStore
	userID uuid.UUID
}

func (s *storeSessions) PrincipalByToken(_ context.Context, token string, now time.Time) (*auth.SessionPrincipal, error) {
	if token != "tok" {
		return nil, database.ErrNotFound
	}
	p := models.Principal{UserID: s.userID, Role: models.RolePublisher}
	for _, pub := range s.store.publishers {
		if pub.UserID != nil && *pub.UserID == s.userID {
			id := pub.ID
			p.PublisherID = &id
		}
	}
	return &auth.SessionPrincipal{Principal: p, ExpiresAt: now.Add(time.Hour)}, nil
}

func TestCreateRefreshesCachedPrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newMemStore()
	resolver := auth.NewResolver(&storeSessions{store: store, userID: uuid.New()}, auth.NewSigner("secret"), cache.NewMemory(), time.Minute, nil)
	h := NewHandler(store, nil)
	h.SetPrincipalEvicter(resolver)

	r := gin.New()
	authed := r.Group("", middleware.Session(resolver, nil, nil))
	authed.POST("/publishers", h.Create)
	authed.GET("/ad-slots/mine", middleware.RequirePublisherOwnership(), func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(method, path string, body any) *httptest.ResponseRecorder {
		raw, _ := json.Marshal(body)
		if body == nil {
			raw = nil
		}
		req := httptest.NewRequest(method, path, bytes.NewReader(raw))
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Authorization", "Bearer tok")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	require.Equal(t, http.StatusForbidden, send(http.MethodGet, "/ad-slots/mine?publisherId="+uuid.NewString(), nil).Code)

	w := send(http.MethodPost, "/publishers", map[string]string{"name": "Daily Tech", "email": "ops@daily.test"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Data models.Publisher `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = send(http.MethodGet, "/ad-slots/mine?publisherId="+created.Data.ID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}
