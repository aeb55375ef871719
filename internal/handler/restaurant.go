package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/thursday-diner/internal/diner"
	"github.com/iliyamo/thursday-diner/internal/model"
)

// RestaurantsRoute is the cached public listing; writes purge it.
const RestaurantsRoute = "/v1/restaurants"

// Purger drops cached responses of a route.
type Purger interface {
	Purge(ctx context.Context, route string)
}

// RestaurantHandler serves the restaurant reference set: a public listing
// and the admin CRUD endpoints.
type RestaurantHandler struct {
	Svc   *diner.Service
	Cache Purger
	Log   *zap.Logger
}

// NewRestaurantHandler constructs a RestaurantHandler.  cache may be nil.
func NewRestaurantHandler(svc *diner.Service, cache Purger, log *zap.Logger) *RestaurantHandler {
	if svc == nil {
		panic("nil service passed to NewRestaurantHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RestaurantHandler{Svc: svc, Cache: cache, Log: log.Named("http.restaurants")}
}

type restaurantReq struct {
	Name       string `json:"name"`
	Cuisine    string `json:"cuisine"`
	PriceRange string `json:"price_range"`
	Location   string `json:"location"`
	Address    string `json:"address"`
	Emoji      string `json:"emoji"`
	Capacity   uint32 `json:"capacity"`
}

func (r restaurantReq) model() model.Restaurant {
	return model.Restaurant{
		Name:       r.Name,
		Cuisine:    r.Cuisine,
		PriceRange: model.PriceTier(r.PriceRange),
		Location:   r.Location,
		Address:    r.Address,
		Emoji:      r.Emoji,
		Capacity:   r.Capacity,
	}
}

// restaurantPatch carries the fields PATCH may change; nil means untouched.
type restaurantPatch struct {
	Name       *string `json:"name"`
	Cuisine    *string `json:"cuisine"`
	PriceRange *string `json:"price_range"`
	Location   *string `json:"location"`
	Address    *string `json:"address"`
	Emoji      *string `json:"emoji"`
	Capacity   *uint32 `json:"capacity"`
}

func (p restaurantPatch) apply(r *model.Restaurant) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Cuisine != nil {
		r.Cuisine = *p.Cuisine
	}
	if p.PriceRange != nil {
		r.PriceRange = model.PriceTier(*p.PriceRange)
	}
	if p.Location != nil {
		r.Location = *p.Location
	}
	if p.Address != nil {
		r.Address = *p.Address
	}
	if p.Emoji != nil {
		r.Emoji = *p.Emoji
	}
	if p.Capacity != nil {
		r.Capacity = *p.Capacity
	}
}

// List handles GET /v1/restaurants.
func (h *RestaurantHandler) List(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	list, err := h.Svc.Restaurants(ctx)
	if err != nil {
		return dinerError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list, "count": len(list)})
}

// Create handles POST /v1/admin/restaurants.
func (h *RestaurantHandler) Create(c echo.Context) error {
	adminID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req restaurantReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	r, err := h.Svc.CreateRestaurant(ctx, adminID, req.model())
	if err != nil {
		return dinerError(c, h.Log, err)
	}
	h.purge(ctx)
	return c.JSON(http.StatusCreated, r)
}

// Update handles PUT /v1/admin/restaurants/:id, replacing every field.
func (h *RestaurantHandler) Update(c echo.Context) error {
	adminID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid restaurant id")
	}
	var req restaurantReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	r, err := h.Svc.UpdateRestaurant(ctx, adminID, id, req.model())
	if err != nil {
		return dinerError(c, h.Log, err)
	}
	h.purge(ctx)
	return c.JSON(http.StatusOK, r)
}

// Patch handles PATCH /v1/admin/restaurants/:id, changing only the fields
// present in the body.
func (h *RestaurantHandler) Patch(c echo.Context) error {
	adminID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid restaurant id")
	}
	var req restaurantPatch
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	current, err := h.Svc.Restaurant(ctx, id)
	if err != nil {
		return dinerError(c, h.Log, err)
	}
	req.apply(&current)
	r, err := h.Svc.UpdateRestaurant(ctx, adminID, id, current)
	if err != nil {
		return dinerError(c, h.Log, err)
	}
	h.purge(ctx)
	return c.JSON(http.StatusOK, r)
}

// Delete handles DELETE /v1/admin/restaurants/:id.  A restaurant that is
// still assigned to registrants yields 409.
func (h *RestaurantHandler) Delete(c echo.Context) error {
	adminID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid restaurant id")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Svc.DeleteRestaurant(ctx, adminID, id); err != nil {
		return dinerError(c, h.Log, err)
	}
	h.purge(ctx)
	return c.NoContent(http.StatusNoContent)
}

func (h *RestaurantHandler) purge(ctx context.Context) {
	if h.Cache != nil {
		h.Cache.Purge(ctx, RestaurantsRoute)
	}
}
