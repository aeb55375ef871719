package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/thursday-diner/internal/diner"
	"github.com/iliyamo/thursday-diner/internal/diner/dinertest"
	"github.com/iliyamo/thursday-diner/internal/middleware"
	"github.com/iliyamo/thursday-diner/internal/model"
)

// Monday before the dinner of 2024-03-07.
var monday = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

const (
	userID  = 7
	adminID = 1
)

type request struct {
	method string
	body   string
	uid    uint64
	role   string
	params map[string]string
	header map[string]string
}

// call runs h against a recorder with the identity JWTAuth would set.
func call(t *testing.T, h echo.HandlerFunc, r request) *httptest.ResponseRecorder {
	t.Helper()
	if r.method == "" {
		r.method = http.MethodGet
	}
	e := echo.New()
	req := httptest.NewRequest(r.method, "/", strings.NewReader(r.body))
	if r.body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range r.header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if r.uid != 0 {
		c.Set(middleware.ContextUserID, r.uid)
		c.Set(middleware.ContextRole, r.role)
	}
	if len(r.params) > 0 {
		names := make([]string, 0, len(r.params))
		values := make([]string, 0, len(r.params))
		for name, value := range r.params {
			names = append(names, name)
			values = append(values, value)
		}
		c.SetParamNames(names...)
		c.SetParamValues(values...)
	}
	require.NoError(t, h(c))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

type env struct {
	store *dinertest.Store
	svc   *diner.Service
	diner *DinerHandler
	admin *AdminDinerHandler
	rest  *RestaurantHandler
	cache *fakePurger
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := dinertest.NewStore()
	svc := diner.NewService(store.Registrants(), store.Restaurants(), diner.DefaultRevealSchedule(),
		diner.WithClock(func() time.Time { return monday }))
	cache := &fakePurger{}
	return &env{
		store: store,
		svc:   svc,
		diner: NewDinerHandler(svc, nil),
		admin: NewAdminDinerHandler(svc, nil),
		rest:  NewRestaurantHandler(svc, cache, nil),
		cache: cache,
	}
}

type fakePurger struct {
	mu     sync.Mutex
	routes []string
}

func (p *fakePurger) Purge(_ context.Context, route string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes = append(p.routes, route)
}

func (p *fakePurger) Routes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.routes...)
}

func TestRegisterCurrentAndDuplicate(t *testing.T) {
	env := newEnv(t)
	env.store.AddRestaurant(model.Restaurant{Name: "Casa Romana", Cuisine: "Italian", PriceRange: model.PriceModerate})

	rec := call(t, env.diner.Register, request{
		method: http.MethodPost, uid: userID, role: model.RoleUser,
		body: `{"price_preference":"€€","dietary_restrictions":["vegan"],"cuisine_preference":"Italian"}`,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created diner.Assignment
	decode(t, rec, &created)
	require.Equal(t, model.StateAssigned, created.State)
	require.Equal(t, "2024-03-07", created.Registrant.Week)
	require.Nil(t, created.Registrant.RestaurantID)
	require.Nil(t, created.Restaurant)
	require.Equal(t, []string{"vegan"}, created.Registrant.DietaryRestrictions)

	rec = call(t, env.diner.Register, request{
		method: http.MethodPost, uid: userID, role: model.RoleUser,
		body: `{"price_preference":"€"}`,
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.JSONEq(t, `{"error":"already registered this week"}`, rec.Body.String())

	rec = call(t, env.diner.Current, request{uid: userID, role: model.RoleUser})
	require.Equal(t, http.StatusOK, rec.Code)
	var current diner.Assignment
	decode(t, rec, &current)
	require.Equal(t, model.PriceModerate, current.Registrant.PricePreference)
	require.Nil(t, current.Restaurant)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	env := newEnv(t)

	rec := call(t, env.diner.Register, request{method: http.MethodPost, uid: userID, body: `{"price_preference":"cheap"}`})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, env.diner.Register, request{method: http.MethodPost, uid: userID, body: `{not json`})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, env.diner.Register, request{method: http.MethodPost, body: `{"price_preference":"€"}`})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCurrentWithoutRegistration(t *testing.T) {
	env := newEnv(t)
	rec := call(t, env.diner.Current, request{uid: userID, role: model.RoleUser})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelAndWeekCount(t *testing.T) {
	env := newEnv(t)
	rec := call(t, env.diner.Register, request{method: http.MethodPost, uid: userID, body: `{"price_preference":"€"}`})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = call(t, env.diner.WeekCount, request{params: map[string]string{"week": "current"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"week":"2024-03-07","registered":1}`, rec.Body.String())

	rec = call(t, env.diner.Cancel, request{method: http.MethodDelete, uid: userID})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = call(t, env.diner.Cancel, request{method: http.MethodDelete, uid: userID})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, env.diner.WeekCount, request{params: map[string]string{"week": "2024-03-07"}})
	require.JSONEq(t, `{"week":"2024-03-07","registered":0}`, rec.Body.String())

	rec = call(t, env.diner.WeekCount, request{params: map[string]string{"week": "2024-03-05"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryListsRegistrations(t *testing.T) {
	env := newEnv(t)
	call(t, env.diner.Register, request{method: http.MethodPost, uid: userID, body: `{"price_preference":"€"}`})

	rec := call(t, env.diner.History, request{uid: userID})
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Items []diner.Assignment `json:"items"`
		Count int                `json:"count"`
	}
	decode(t, rec, &out)
	require.Equal(t, 1, out.Count)
	require.Equal(t, model.StatePendingAssignment, out.Items[0].State)
}

func TestAdminOverrides(t *testing.T) {
	env := newEnv(t)
	rec := call(t, env.diner.Register, request{method: http.MethodPost, uid: userID, body: `{"price_preference":"€€"}`})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created diner.Assignment
	decode(t, rec, &created)
	regID := created.Registrant.ID
	idParam := map[string]string{"id": "1"}

	// pending registrant cannot be revealed
	rec = call(t, env.admin.Reveal, request{method: http.MethodPost, uid: adminID, role: model.RoleAdmin, params: idParam})
	require.Equal(t, http.StatusConflict, rec.Code)

	r := env.store.AddRestaurant(model.Restaurant{Name: "Bistro Alba", Cuisine: "French", PriceRange: model.PriceBudget})

	rec = call(t, env.admin.AssignPending, request{
		method: http.MethodPost, uid: adminID, role: model.RoleAdmin,
		params: map[string]string{"week": "current"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"week":"2024-03-07","assigned":1}`, rec.Body.String())

	// hiding needs a revealed registrant
	rec = call(t, env.admin.Hide, request{method: http.MethodPost, uid: adminID, role: model.RoleAdmin, params: idParam})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, env.admin.Reveal, request{method: http.MethodPost, uid: adminID, role: model.RoleAdmin, params: idParam})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, env.diner.Current, request{uid: userID})
	var current diner.Assignment
	decode(t, rec, &current)
	require.Equal(t, model.StateRevealed, current.State)
	require.NotNil(t, current.Restaurant)
	require.Equal(t, r.ID, current.Restaurant.ID)

	rec = call(t, env.admin.Hide, request{method: http.MethodPost, uid: adminID, role: model.RoleAdmin, params: idParam})
	require.Equal(t, http.StatusOK, rec.Code)
	stored, ok := env.store.Registrant(regID)
	require.True(t, ok)
	require.False(t, stored.Revealed)
	require.Equal(t, model.OverrideHidden, *stored.RevealOverride)

	rec = call(t, env.admin.Stats, request{params: map[string]string{"week": "2024-03-07"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"week":"2024-03-07","registered":1,"assigned":1,"revealed":0,"cancelled":0}`, rec.Body.String())

	rec = call(t, env.admin.Registrants, request{params: map[string]string{"week": "2024-03-07"}})
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []model.Registrant `json:"items"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Items, 1)
	require.Equal(t, r.ID, *list.Items[0].RestaurantID)
}

func TestAdminForceAssign(t *testing.T) {
	env := newEnv(t)
	call(t, env.diner.Register, request{method: http.MethodPost, uid: userID, body: `{"price_preference":"€"}`})
	r := env.store.AddRestaurant(model.Restaurant{Name: "Lacrimi si Sfinti", PriceRange: model.PriceUpscale})

	rec := call(t, env.admin.ForceAssign, request{
		method: http.MethodPut, uid: adminID, role: model.RoleAdmin,
		params: map[string]string{"id": "1"}, body: `{"restaurant_id":999}`,
	})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, env.admin.ForceAssign, request{
		method: http.MethodPut, uid: adminID, role: model.RoleAdmin,
		params: map[string]string{"id": "1"}, body: `{}`,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, env.admin.ForceAssign, request{
		method: http.MethodPut, uid: adminID, role: model.RoleAdmin,
		params: map[string]string{"id": "1"}, body: `{"restaurant_id":1}`,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	stored, _ := env.store.Registrant(1)
	require.Equal(t, r.ID, *stored.RestaurantID)

	rec = call(t, env.admin.Reassign, request{method: http.MethodPost, uid: adminID, params: map[string]string{"id": "x"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRestaurantCRUD(t *testing.T) {
	env := newEnv(t)
	admin := func(method, body string, params map[string]string) request {
		return request{method: method, uid: adminID, role: model.RoleAdmin, body: body, params: params}
	}

	rec := call(t, env.rest.Create, admin(http.MethodPost, `{"name":"Casa Romana","cuisine":"Italian","price_range":"€€"}`, nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created model.Restaurant
	decode(t, rec, &created)
	require.Equal(t, uint32(50), created.Capacity)
	require.NotEmpty(t, created.Emoji)

	rec = call(t, env.rest.Create, admin(http.MethodPost, `{"name":"Casa Romana","price_range":"€"}`, nil))
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, env.rest.Create, admin(http.MethodPost, `{"name":"Nowhere","price_range":"$$"}`, nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	id := map[string]string{"id": "1"}
	rec = call(t, env.rest.Patch, admin(http.MethodPatch, `{"cuisine":"Roman"}`, id))
	require.Equal(t, http.StatusOK, rec.Code)
	var patched model.Restaurant
	decode(t, rec, &patched)
	require.Equal(t, "Roman", patched.Cuisine)
	require.Equal(t, "Casa Romana", patched.Name)
	require.Equal(t, model.PriceModerate, patched.PriceRange)

	rec = call(t, env.rest.Update, admin(http.MethodPut, `{"name":"Casa Nuova","price_range":"€€€"}`, id))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, env.rest.List, request{})
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []model.Restaurant `json:"items"`
		Count int                `json:"count"`
	}
	decode(t, rec, &list)
	require.Equal(t, 1, list.Count)
	require.Equal(t, "Casa Nuova", list.Items[0].Name)
	require.Equal(t, "", list.Items[0].Cuisine)

	// an assigned restaurant cannot be deleted
	rec = call(t, env.diner.Register, request{method: http.MethodPost, uid: userID, body: `{"price_preference":"€€€"}`})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = call(t, env.rest.Delete, admin(http.MethodDelete, "", id))
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, env.rest.Delete, admin(http.MethodDelete, "", map[string]string{"id": "42"}))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, env.rest.Delete, admin(http.MethodDelete, "", map[string]string{"id": "0"}))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// create, patch and update each purged the cached listing
	require.Equal(t, []string{RestaurantsRoute, RestaurantsRoute, RestaurantsRoute}, env.cache.Routes())
}

func TestStoreFailureIsInternalError(t *testing.T) {
	env := newEnv(t)
	env.store.Err = errors.New("connection reset")

	rec := call(t, env.rest.List, request{})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	rec := call(t, Health(nil), request{})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())

	rec = call(t, Health(pinger{}), request{})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, Health(pinger{err: errors.New("down")}), request{})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetUserID(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	_, err := getUserID(c)
	require.Error(t, err)

	c.Set(middleware.ContextUserID, "12")
	id, err := getUserID(c)
	require.NoError(t, err)
	require.Equal(t, uint64(12), id)

	c.Set(middleware.ContextUserID, uint64(5))
	id, err = getUserID(c)
	require.NoError(t, err)
	require.Equal(t, uint64(5), id)

	c.Set(middleware.ContextUserID, float64(9))
	id, err = getUserID(c)
	require.NoError(t, err)
	require.Equal(t, uint64(9), id)

	for _, bad := range []any{float64(-3), 2.5, float64(0), -1, int64(-8), uint64(0), "0", "-4"} {
		c.Set(middleware.ContextUserID, bad)
		_, err = getUserID(c)
		require.Error(t, err, "%v", bad)
	}
}
