package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotmarket/backend/internal/events"
	"github.com/slotmarket/backend/internal/models"
	"github.com/slotmarket/backend/pkg/apiclient"
	"github.com/slotmarket/backend/pkg/cache"
)

const cookieName = "better-auth.session_token"

type call struct {
	Method, Path, Token string
	Body                map[string]any
}

type fakeAPI struct {
	mu        sync.Mutex
	calls     []call
	err       error
	principal *models.Principal
	slots     []models.AdSlotListItem
}

func (f *fakeAPI) Do(_ context.Context, method, path, token string, body, out any) (http.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cl := call{Method: method, Path: path, Token: token}
	if body != nil {
		raw, _ := json.Marshal(body)
		_ = json.Unmarshal(raw, &cl.Body)
	}
	f.calls = append(f.calls, cl)
	if path == "/auth/me" {
		if f.principal == nil {
			return nil, &apiclient.APIError{Status: http.StatusUnauthorized, Message: "Invalid or expired session"}
		}
		*(out.(*models.Principal)) = *f.principal
		return http.Header{}, nil
	}
	if f.err != nil {
		return nil, f.err
	}
	hdr := http.Header{}
	if method == http.MethodGet && out != nil {
		hdr.Set("X-Total-Count", "42")
		raw, _ := json.Marshal(f.slots)
		_ = json.Unmarshal(raw, out)
	}
	return hdr, nil
}

func (f *fakeAPI) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newRouter(api API, store cache.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(api, store, []string{cookieName, "better-auth.session-token"}, time.Minute, nil)
	r := gin.New()
	r.POST("/actions/campaigns", h.CreateCampaign)
	r.POST("/actions/campaigns/:id", h.UpdateCampaign)
	r.POST("/actions/campaigns/:id/delete", h.DeleteCampaign)
	r.POST("/actions/ad-slots", h.CreateAdSlot)
	r.POST("/actions/ad-slots/:id/delete", h.DeleteAdSlot)
	r.GET("/pages/marketplace", h.Marketplace)
	r.GET("/pages/dashboard/sponsor", h.SponsorDashboard)
	r.GET("/pages/dashboard/publisher", h.PublisherDashboard)
	return r
}

func post(r http.Handler, path string, form url.Values, cookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: cookieName, Value: cookie})
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func get(r http.Handler, path, cookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: cookieName, Value: cookie})
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func campaignForm() url.Values {
	return url.Values{
		"name":             {"Spring Launch"},
		"description":      {"New product"},
		"budget":           {"5000"},
		"startDate":        {"2025-03-01"},
		"endDate":          {"2025-03-31T18:30"},
		"sponsorId":        {"sp-1"},
		"targetCategories": {" tech, ,gaming "},
		"targetRegions":    {""},
	}
}

func TestCreateCampaignAction(t *testing.T) {
	api := &fakeAPI{}
	store := cache.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.SetTagged(ctx, cache.PathTag(PathSponsorDashboard), "page:/dashboard/sponsor?x", []byte("{}"), 0))
	r := newRouter(api, store)

	w := post(r, "/actions/campaigns", campaignForm(), "tok.sig")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"success":true}`, w.Body.String())

	c := api.last()
	assert.Equal(t, http.MethodPost, c.Method)
	assert.Equal(t, "/campaigns", c.Path)
	assert.Equal(t, "tok.sig", c.Token)
	assert.Equal(t, "ACTIVE", c.Body["status"])
	assert.Equal(t, "2025-03-01T00:00:00Z", c.Body["startDate"])
	assert.Equal(t, "2025-03-31T18:30:00Z", c.Body["endDate"])
	assert.Equal(t, []any{"tech", "gaming"}, c.Body["targetCategories"])
	assert.Equal(t, []any{}, c.Body["targetRegions"])
	assert.Equal(t, "5000", c.Body["budget"])

	_, err := store.Get(ctx, "page:/dashboard/sponsor?x")
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestCreateCampaignActionValidation(t *testing.T) {
	api := &fakeAPI{}
	r := newRouter(api, nil)

	form := campaignForm()
	form.Set("name", "ab")
	w := post(r, "/actions/campaigns", form, "tok")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Campaign name is too short","fieldErrors":{"name":"Min 3 chars"}}`, w.Body.String())

	form = campaignForm()
	form.Set("budget", "lots")
	form.Set("startDate", "someday")
	w = post(r, "/actions/campaigns", form, "tok")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var res ActionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, map[string]string{"budget": "Must be a positive number", "startDate": "Invalid date"}, res.FieldErrors)
	assert.Zero(t, api.count())
}

func TestActionsRequireCookie(t *testing.T) {
	api := &fakeAPI{}
	r := newRouter(api, nil)
	assert.Equal(t, http.StatusUnauthorized, post(r, "/actions/campaigns", campaignForm(), "").Code)
	assert.Equal(t, http.StatusUnauthorized, post(r, "/actions/campaigns/abc/delete", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, post(r, "/actions/ad-slots", url.Values{"name": {"x"}}, "").Code)
	assert.Zero(t, api.count())
}

func TestActionAPIRejection(t *testing.T) {
	api := &fakeAPI{err: &apiclient.APIError{Status: http.StatusForbidden, Message: "nope"}}
	store := cache.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.SetTagged(ctx, cache.PathTag(PathSponsorDashboard), "k", []byte("{}"), 0))
	r := newRouter(api, store)

	w := post(r, "/actions/campaigns/abc/delete", nil, "tok")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Delete failed"}`, w.Body.String())
	_, err := store.Get(ctx, "k")
	assert.NoError(t, err)
}

func TestUpdateCampaignAction(t *testing.T) {
	api := &fakeAPI{}
	r := newRouter(api, nil)
	w := post(r, "/actions/campaigns/c-1", url.Values{"name": {"Renamed"}, "status": {"paused"}}, "tok")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	c := api.last()
	assert.Equal(t, http.MethodPut, c.Method)
	assert.Equal(t, "/campaigns/c-1", c.Path)
	assert.Equal(t, "PAUSED", c.Body["status"])
	assert.NotContains(t, c.Body, "budget")
	assert.NotContains(t, c.Body, "targetRegions")
}

func TestAdSlotActions(t *testing.T) {
	api := &fakeAPI{}
	store := cache.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.SetTagged(ctx, cache.PathTag(PathMarketplace), "m", []byte("{}"), 0))
	require.NoError(t, store.SetTagged(ctx, cache.PathTag(PathPublisherDashboard), "p", []byte("{}"), 0))
	r := newRouter(api, store)

	w := post(r, "/actions/ad-slots", url.Values{"name": {"Sidebar"}, "type": {"display"}, "basePrice": {"0"}}, "tok")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = post(r, "/actions/ad-slots", url.Values{
		"name": {"Sidebar"}, "type": {"display"}, "basePrice": {"250"}, "publisherId": {"pub-1"}, "position": {"sidebar"},
	}, "tok")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	c := api.last()
	assert.Equal(t, "/ad-slots", c.Path)
	assert.Equal(t, "DISPLAY", c.Body["type"])
	assert.Equal(t, "sidebar", c.Body["position"])

	for _, key := range []string{"m", "p"} {
		_, err := store.Get(ctx, key)
		assert.ErrorIs(t, err, cache.ErrMiss, key)
	}

	w = post(r, "/actions/ad-slots/s-1/delete", nil, "tok")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, call{Method: http.MethodDelete, Path: "/ad-slots/s-1", Token: "tok"}, api.last())
}

func TestCreateAdSlotActionRequiresPosition(t *testing.T) {
	api := &fakeAPI{}
	r := newRouter(api, nil)

	w := post(r, "/actions/ad-slots", url.Values{
		"name": {"Sidebar"}, "type": {"display"}, "basePrice": {"250"}, "publisherId": {"pub-1"}, "position": {"  "},
	}, "tok")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var res ActionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, map[string]string{"position": "Required"}, res.FieldErrors)

	w = post(r, "/actions/ad-slots", url.Values{
		"name": {"Sidebar"}, "type": {"display"}, "basePrice": {"99999999999"}, "publisherId": {"pub-1"}, "position": {"sidebar"},
	}, "tok")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var tooLarge ActionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tooLarge))
	assert.Equal(t, map[string]string{"basePrice": "Too large"}, tooLarge.FieldErrors)
	assert.Zero(t, api.count())
}

func TestMarketplaceCachesAndAddsAvailable(t *testing.T) {
	api := &fakeAPI{slots: []models.AdSlotListItem{{AdSlot: models.AdSlot{ID: uuid.New(), Name: "Header"}}}}
	store := cache.NewMemory()
	r := newRouter(api, store)

	w := get(r, "/pages/marketplace?type=VIDEO&search=pod", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Equal(t, "/ad-slots?available=true&page=1&search=pod&type=VIDEO", api.last().Path)
	var view MarketplacePage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, 42, view.Total)
	assert.Len(t, view.AdSlots, 1)

	w = get(r, "/pages/marketplace?type=VIDEO&search=pod", "")
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Equal(t, 1, api.count())

	post(r, "/actions/ad-slots/s-1/delete", nil, "tok")
	w = get(r, "/pages/marketplace?type=VIDEO&search=pod", "")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
}

func TestDashboardsCheckRole(t *testing.T) {
	sid := uuid.New()
	api := &fakeAPI{principal: &models.Principal{UserID: uuid.New(), Role: models.RoleSponsor, SponsorID: &sid}}
	r := newRouter(api, nil)

	assert.Equal(t, http.StatusUnauthorized, get(r, "/pages/dashboard/sponsor", "").Code)
	assert.Equal(t, http.StatusForbidden, get(r, "/pages/dashboard/publisher", "tok").Code)

	w := get(r, "/pages/dashboard/sponsor?sort=budget_desc", "tok")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	c := api.last()
	assert.Equal(t, "/campaigns?page=1&sort=budget_desc&sponsorId="+sid.String(), c.Path)
	assert.Equal(t, "tok", c.Token)

	api.principal = nil
	assert.Equal(t, http.StatusUnauthorized, get(r, "/pages/dashboard/sponsor", "stale").Code)
}

func TestPublisherDashboard(t *testing.T) {
	pid := uuid.New()
	api := &fakeAPI{principal: &models.Principal{UserID: uuid.New(), Role: models.RolePublisher, PublisherID: &pid}}
	r := newRouter(api, nil)

	w := get(r, "/pages/dashboard/publisher", "tok")
	require.Equal(t, http.StatusOK, w.Code)
	var view PublisherDashboardPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, pid.String(), view.PublisherID)
	assert.Equal(t, []models.AdSlotListItem{}, view.AdSlots)
	assert.Equal(t, "/ad-slots?publisherId="+pid.String(), api.last().Path)
}

// oneShotBridge delivers a single event once subscribed, then idles.
type oneShotBridge struct{ ev events.Event }

func (b oneShotBridge) PublishEvent(context.Context, events.Event) error { return nil }

func (b oneShotBridge) Subscribe(ctx context.Context, handler func(events.Event)) error {
	handler(b.ev)
	<-ctx.Done()
	return nil
}

func TestMarketplaceDroppedOnBookingEvent(t *testing.T) {
	api := &fakeAPI{slots: []models.AdSlotListItem{{AdSlot: models.AdSlot{ID: uuid.New(), Name: "Header"}}}}
	store := cache.NewMemory()
	h := NewHandler(api, store, []string{cookieName}, time.Minute, nil)
	r := newRouter(api, store)

	require.Equal(t, "MISS", get(r, "/pages/marketplace", "").Header().Get("X-Cache"))
	require.Equal(t, "HIT", get(r, "/pages/marketplace", "").Header().Get("X-Cache"))

	h.OnEvent(events.Event{Type: events.CampaignUpdated})
	assert.Equal(t, "HIT", get(r, "/pages/marketplace", "").Header().Get("X-Cache"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.FollowEvents(ctx, oneShotBridge{ev: events.Event{Type: events.SlotBooked}}) }()

	assert.Eventually(t, func() bool {
		_, err := store.Get(context.Background(), cache.PageKey(PathMarketplace, "available=true&page=1"))
		return err != nil
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "MISS", get(r, "/pages/marketplace", "").Header().Get("X-Cache"))
}

func TestPlacementEventDropsDashboards(t *testing.T) {
	store := cache.NewMemory()
	ctx := context.Background()
	for _, p := range []string{PathMarketplace, PathSponsorDashboard, PathPublisherDashboard} {
		require.NoError(t, store.SetTagged(ctx, cache.PathTag(p), "k"+p, []byte("{}"), 0))
	}
	h := NewHandler(&fakeAPI{}, store, nil, time.Minute, nil)

	h.OnEvent(events.Event{Type: events.PlacementUpdated})
	for _, p := range []string{PathMarketplace, PathSponsorDashboard, PathPublisherDashboard} {
		_, err := store.Get(ctx, "k"+p)
		assert.ErrorIs(t, err, cache.ErrMiss, p)
	}
}
