package diner

import (
	"context"

	"github.com/iliyamo/thursday-diner/internal/model"
	"github.com/iliyamo/thursday-diner/internal/queue"
)

// RegistrantStore is the persistence collaborator for registrants.
// Implementations return repository.ErrDuplicate when (user, week) is
// already taken and repository.ErrNotFound when a lookup or conditional
// update matches nothing.
type RegistrantStore interface {
	Create(ctx context.Context, r *model.Registrant) error
	// Reactivate overwrites the CANCELLED row of r.UserID/r.Week with r's
	// preferences and assignment.  It fails with ErrNotFound when no
	// cancelled row exists.
	Reactivate(ctx context.Context, r *model.Registrant) error
	GetByID(ctx context.Context, id uint64) (model.Registrant, error)
	GetByUserAndWeek(ctx context.Context, userID uint64, week string) (model.Registrant, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.Registrant, error)
	ListByWeek(ctx context.Context, week string) ([]model.Registrant, error)
	// Cancel flips an ACTIVE row to CANCELLED.
	Cancel(ctx context.Context, id uint64) error
	SetRestaurant(ctx context.Context, id uint64, restaurantID *uint64) error
	SetRevealed(ctx context.Context, id uint64, revealed bool, override *string) error
	// PendingRevealWeeks lists weeks that still hold active, assigned,
	// hidden registrants without an admin override.
	PendingRevealWeeks(ctx context.Context) ([]string, error)
	// RevealWeek sets revealed for those registrants of week and returns
	// how many rows changed.
	RevealWeek(ctx context.Context, week string) (int64, error)
	StatsByWeek(ctx context.Context, week string) (model.WeekStats, error)
}

// RestaurantStore is the persistence collaborator for restaurants.
// List returns restaurants in their natural order (by name).
type RestaurantStore interface {
	List(ctx context.Context) ([]model.Restaurant, error)
	GetByID(ctx context.Context, id uint64) (model.Restaurant, error)
	Create(ctx context.Context, r *model.Restaurant) error
	Update(ctx context.Context, r *model.Restaurant) error
	Delete(ctx context.Context, id uint64) error
}

// EventPublisher delivers diner events to the broker.  Failures are
// logged by the service and never fail the operation that produced them.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.DinerEvent) error
}

// Metrics receives domain counters.
type Metrics interface {
	Registered(assigned bool)
	Cancelled()
	Revealed(n int)
	Override(action string)
}

type nopMetrics struct{}

func (nopMetrics) Registered(bool) {}
func (nopMetrics) Cancelled() {}
func (nopMetrics) Revealed(int) {}
func (nopMetrics) Override(string) {}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, queue.DinerEvent) error { return nil }
