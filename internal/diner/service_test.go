package diner_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/thursday-diner/internal/diner"
	"github.com/iliyamo/thursday-diner/internal/diner/dinertest"
	"github.com/iliyamo/thursday-diner/internal/model"
	"github.com/iliyamo/thursday-diner/internal/queue"
)

// Monday before the dinner of 2024-03-07.
var monday = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

const adminID = 99

type fixture struct {
	store  *dinertest.Store
	events *dinertest.Publisher
	svc    *diner.Service
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: dinertest.NewStore(), events: &dinertest.Publisher{}, now: monday}
	f.svc = diner.NewService(f.store.Registrants(), f.store.Restaurants(), diner.DefaultRevealSchedule(),
		diner.WithClock(func() time.Time { return f.now }),
		diner.WithRand(fixedRand(0)),
		diner.WithEvents(f.events),
	)
	return f
}

func (f *fixture) seedRestaurants() (budget, moderate, upscale model.Restaurant) {
	budget = f.store.AddRestaurant(model.Restaurant{Name: "Bistro Alba", Cuisine: "French", PriceRange: model.PriceBudget})
	moderate = f.store.AddRestaurant(model.Restaurant{Name: "Casa Romana", Cuisine: "Italian", PriceRange: model.PriceModerate})
	upscale = f.store.AddRestaurant(model.Restaurant{Name: "Lacrimi si Sfinti", Cuisine: "Romanian", PriceRange: model.PriceUpscale})
	return
}

func TestRegisterAssignsMatchingTierAndHidesIt(t *testing.T) {
	f := newFixture(t)
	_, moderate, _ := f.seedRestaurants()
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, diner.RegisterInput{
		UserID:              7,
		PricePreference:     "€€",
		DietaryRestrictions: []string{" vegetarian", "Vegetarian", ""},
		CuisinePreference:   "Italian",
	})
	require.NoError(t, err)
	require.Equal(t, "2024-03-07", reg.Week)
	require.NotNil(t, reg.RestaurantID)
	require.Equal(t, moderate.ID, *reg.RestaurantID)
	require.False(t, reg.Revealed)
	require.Equal(t, []string{"vegetarian"}, reg.DietaryRestrictions)
	require.Equal(t, model.StateAssigned, reg.State())

	cur, err := f.svc.Current(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, model.StateAssigned, cur.State)
	require.Nil(t, cur.Restaurant)
	require.Nil(t, cur.Registrant.RestaurantID)
	require.Equal(t, time.Date(2024, 3, 6, 18, 0, 0, 0, time.UTC), cur.RevealAt)
	require.Equal(t, time.Date(2024, 3, 7, 20, 30, 0, 0, time.UTC), cur.DinnerAt)

	// Wednesday 18:00 passes; the poll reveals the assignment.
	f.now = time.Date(2024, 3, 6, 18, 0, 1, 0, time.UTC)
	n, err := f.svc.RevealDue(ctx, f.now)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	cur, err = f.svc.Current(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, model.StateRevealed, cur.State)
	require.NotNil(t, cur.Restaurant)
	require.Equal(t, "Casa Romana", cur.Restaurant.Name)

	evs := f.events.Events()
	require.Len(t, evs, 2)
	require.Equal(t, queue.EventRegistered, evs[0].Type)
	require.Equal(t, queue.EventRevealed, evs[1].Type)
	require.Equal(t, 1, evs[1].Count)
	require.NotEmpty(t, evs[0].ID)
}

func TestRegisterTwiceKeepsFirstRecord(t *testing.T) {
	f := newFixture(t)
	f.seedRestaurants()
	ctx := context.Background()

	first, err := f.svc.Register(ctx, diner.RegisterInput{UserID: 7, PricePreference: "€"})
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, diner.RegisterInput{UserID: 7, PricePreference: "€€€"})
	require.ErrorIs(t, err, diner.ErrAlreadyRegistered)
	require.Equal(t, "already registered this week", err.Error())

	stored, ok := f.store.Registrant(first.ID)
	require.True(t, ok)
	require.Equal(t, model.PriceBudget, stored.PricePreference)
	require.Equal(t, *first.RestaurantID, *stored.RestaurantID)

	count, err := f.svc.WeekCount(ctx, "2024-03-07")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRegisterWithoutRestaurantsIsPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, diner.RegisterInput{UserID: 1, PricePreference: "€€"})
	require.NoError(t, err)
	require.Nil(t, reg.RestaurantID)
	require.Equal(t, model.StatePendingAssignment, reg.State())

	// nothing to reveal
	n, err := f.svc.RevealDue(ctx, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Zero(t, n)

	f.seedRestaurants()
	assigned, err := f.svc.AssignPending(ctx, adminID, "2024-03-07")
	require.NoError(t, err)
	require.Equal(t, 1, assigned)

	stored, _ := f.store.Registrant(reg.ID)
	require.Equal(t, model.StateAssigned, stored.State())
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, in := range []diner.RegisterInput{
		{UserID: 1, PricePreference: ""},
		{UserID: 1, PricePreference: "$$"},
		{UserID: 0, PricePreference: "€"},
	} {
		_, err := f.svc.Register(ctx, in)
		require.ErrorIs(t, err, diner.ErrValidation)
	}
	_, err := f.svc.WeekCount(ctx, "2024-03-08")
	require.ErrorIs(t, err, diner.ErrValidation)
}

func TestRegisterOnThursdayTargetsNextWeek(t *testing.T) {
	f := newFixture(t)
	f.now = time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC)

	reg, err := f.svc.Register(context.Background(), diner.RegisterInput{UserID: 3, PricePreference: "€"})
	require.NoError(t, err)
	require.Equal(t, "2024-03-14", reg.Week)
}

func TestRevealIsMonotonic(t *testing.T) {
	f := newFixture(t)
	f.seedRestaurants()
	ctx := context.Background()

	_, err := f.svc.Register(ctx, diner.RegisterInput{UserID: 1, PricePreference: "€"})
	require.NoError(t, err)

	before := time.Date(2024, 3, 6, 17, 59, 59, 0, time.UTC)
	n, err := f.svc.RevealDue(ctx, before)
	require.NoError(t, err)
	require.Zero(t, n)

	after := before.Add(2 * time.Second)
	n, err = f.svc.RevealDue(ctx, after)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// repeated polls change nothing, even with a clock that went back
	for _, at := range []time.Time{after, after.Add(time.Hour), before} {
		n, err = f.svc.RevealDue(ctx, at)
		require.NoError(t, err)
		require.Zero(t, n)
	}
	cur, err := f.svc.Current(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, model.StateRevealed, cur.State)
}

func TestForceHideSurvivesPolling(t *testing.T) {
	f := newFixture(t)
	f.seedRestaurants()
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, diner.RegisterInput{UserID: 1, PricePreference: "€"})
	require.NoError(t, err)

	revealed, err := f.svc.ForceReveal(ctx, adminID, reg.ID)
	require.NoError(t, err)
	require.True(t, revealed.Revealed)

	hidden, err := f.svc.ForceHide(ctx, adminID, reg.ID)
	require.NoError(t, err)
	require.False(t, hidden.Revealed)

	n, err := f.svc.RevealDue(ctx, time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Zero(t, n)

	stored, _ := f.store.Registrant(reg.ID)
	require.False(t, stored.Revealed)
	require.Equal(t, model.OverrideHidden, *stored.RevealOverride)

	var actions []string
	for _, ev := range f.events.Events() {
		if ev.Type == queue.EventOverride {
			require.Equal(t, uint64(adminID), ev.ActorID)
			actions = append(actions, ev.Action)
		}
	}
	require.Equal(t, []string{queue.ActionForceReveal, queue.ActionForceHide}, actions)
}

func TestForceRevealNeedsAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, diner.RegisterInput{UserID: 1, PricePreference: "€"})
	require.NoError(t, err)

	_, err = f.svc.ForceReveal(ctx, adminID, reg.ID)
	require.ErrorIs(t, err, diner.ErrNotAssigned)

	_, err = f.svc.ForceReveal(ctx, adminID, 12345)
	require.ErrorIs(t, err, diner.ErrNotFound)
}

func TestForceAssignAndReassign(t *testing.T) {
	f := newFixture(t)
	budget, _, upscale := f.seedRestaurants()
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, diner.RegisterInput{UserID: 1, PricePreference: "€"})
	require.NoError(t, err)
	require.Equal(t, budget.ID, *reg.RestaurantID)

	forced, err := f.svc.ForceAssign(ctx, adminID, reg.ID, upscale.ID)
	require.NoError(t, err)
	require.Equal(t, upscale.ID, *forced.RestaurantID)

	_, err = f.svc.ForceAssign(ctx, adminID, reg.ID, 404)
	require.ErrorIs(t, err, diner.ErrNotFound)

	again, err := f.svc.Reassign(ctx, adminID, reg.ID)
	require.NoError(t, err)
	require.Equal(t, budget.ID, *again.RestaurantID)
}

func TestCancelAndRegisterAgain(t *testing.T) {
	f := newFixture(t)
	f.seedRestaurants()
	ctx := context.Background()

	first, err := f.svc.Register(ctx, diner.RegisterInput{UserID: 5, PricePreference: "€"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(ctx, 5))
	require.ErrorIs(t, f.svc.Cancel(ctx, 5), diner.ErrNotFound)

	stats, err := f.svc.WeekStats(ctx, "2024-03-07")
	require.NoError(t, err)
	require.Equal(t, model.WeekStats{Week: "2024-03-07", Cancelled: 1}, stats)

	_, err = f.svc.ForceReveal(ctx, adminID, first.ID)
	require.ErrorIs(t, err, diner.ErrConflict)

	second, err := f.svc.Register(ctx, diner.RegisterInput{UserID: 5, PricePreference: "€€€"})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, model.StatusActive, second.Status)
	require.Equal(t, model.PriceUpscale, second.PricePreference)

	_, err = f.svc.Register(ctx, diner.RegisterInput{UserID: 5, PricePreference: "€"})
	require.ErrorIs(t, err, diner.ErrAlreadyRegistered)
}

func TestCancelWithoutRegistration(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.svc.Cancel(context.Background(), 5), diner.ErrNotFound)

	_, err := f.svc.Current(context.Background(), 5)
	require.ErrorIs(t, err, diner.ErrNotFound)
}

func TestHistoryNewestFirst(t *testing.T) {
	f := newFixture(t)
	f.seedRestaurants()
	ctx := context.Background()

	_, err := f.svc.Register(ctx, diner.RegisterInput{UserID: 2, PricePreference: "€"})
	require.NoError(t, err)
	n, err := f.svc.RevealDue(ctx, time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	f.now = time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
	_, err = f.svc.Register(ctx, diner.RegisterInput{UserID: 2, PricePreference: "€€"})
	require.NoError(t, err)

	hist, err := f.svc.History(ctx, 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, "2024-03-14", hist[0].Registrant.Week)
	require.Nil(t, hist[0].Restaurant)
	require.Equal(t, "2024-03-07", hist[1].Registrant.Week)
	require.NotNil(t, hist[1].Restaurant)
	require.Equal(t, "Bistro Alba", hist[1].Restaurant.Name)
}

func TestPublishFailureDoesNotFailRegistration(t *testing.T) {
	f := newFixture(t)
	f.events.Err = errors.New("broker down")

	_, err := f.svc.Register(context.Background(), diner.RegisterInput{UserID: 1, PricePreference: "€"})
	require.NoError(t, err)
}

func TestStoreFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	f.store.Err = errors.New("db down")

	_, err := f.svc.Register(context.Background(), diner.RegisterInput{UserID: 1, PricePreference: "€"})
	require.Error(t, err)
	require.False(t, errors.Is(err, diner.ErrValidation))
}

func TestRestaurantAdministration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.CreateRestaurant(ctx, adminID, model.Restaurant{Name: "  Osteria  ", PriceRange: "€€"})
	require.NoError(t, err)
	require.Equal(t, "Osteria", r.Name)
	require.Equal(t, uint32(50), r.Capacity)
	require.NotEmpty(t, r.Emoji)

	_, err = f.svc.CreateRestaurant(ctx, adminID, model.Restaurant{Name: "Osteria", PriceRange: "€"})
	require.ErrorIs(t, err, diner.ErrConflict)

	_, err = f.svc.CreateRestaurant(ctx, adminID, model.Restaurant{Name: "Nowhere", PriceRange: "cheap"})
	require.ErrorIs(t, err, diner.ErrValidation)

	updated, err := f.svc.UpdateRestaurant(ctx, adminID, r.ID, model.Restaurant{Name: "Osteria Nuova", PriceRange: "€€", Capacity: 20})
	require.NoError(t, err)
	require.Equal(t, uint32(20), updated.Capacity)

	_, err = f.svc.UpdateRestaurant(ctx, adminID, 404, model.Restaurant{Name: "Ghost", PriceRange: "€"})
	require.ErrorIs(t, err, diner.ErrNotFound)

	_, err = f.svc.Register(ctx, diner.RegisterInput{UserID: 1, PricePreference: "€€"})
	require.NoError(t, err)
	require.ErrorIs(t, f.svc.DeleteRestaurant(ctx, adminID, r.ID), diner.ErrConflict)

	spare, err := f.svc.CreateRestaurant(ctx, adminID, model.Restaurant{Name: "Spare", PriceRange: "€"})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteRestaurant(ctx, adminID, spare.ID))
	require.ErrorIs(t, f.svc.DeleteRestaurant(ctx, adminID, spare.ID), diner.ErrNotFound)

	list, err := f.svc.Restaurants(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

// registerConcurrently fires n Register calls for one user at once and
// returns how many succeeded and how many were rejected as duplicates.
func registerConcurrently(t *testing.T, svc *diner.Service, userID uint64, n int) (ok, dup int) {
	t.Helper()
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Register(context.Background(), diner.RegisterInput{UserID: userID, PricePreference: "€€"})
		}(i)
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, diner.ErrAlreadyRegistered):
			dup++
		default:
			t.Fatalf("unexpected register error: %v", err)
		}
	}
	return ok, dup
}

func TestConcurrentRegistrationsKeepOnePerWeek(t *testing.T) {
	f := newFixture(t)
	f.seedRestaurants()

	ok, dup := registerConcurrently(t, f.svc, 5, 16)
	require.Equal(t, 1, ok)
	require.Equal(t, 15, dup)

	stats, err := f.svc.WeekStats(context.Background(), "2024-03-07")
	require.NoError(t, err)
	require.Equal(t, 1, stats.Registered)
}

func TestConcurrentReregistrationAfterCancel(t *testing.T) {
	f := newFixture(t)
	f.seedRestaurants()
	ctx := context.Background()

	first, err := f.svc.Register(ctx, diner.RegisterInput{UserID: 5, PricePreference: "€"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Cancel(ctx, 5))

	ok, dup := registerConcurrently(t, f.svc, 5, 16)
	require.Equal(t, 1, ok)
	require.Equal(t, 15, dup)

	stored, found := f.store.Registrant(first.ID)
	require.True(t, found)
	require.Equal(t, model.StatusActive, stored.Status)
	require.Equal(t, model.PriceModerate, stored.PricePreference)
}

func TestForceHideRefusesUnrevealedRegistrant(t *testing.T) {
	f := newFixture(t)
	f.seedRestaurants()
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, diner.RegisterInput{UserID: 1, PricePreference: "€"})
	require.NoError(t, err)

	_, err = f.svc.ForceHide(ctx, adminID, reg.ID)
	require.ErrorIs(t, err, diner.ErrConflict)

	// the scheduled reveal still reaches the registrant
	n, err := f.svc.RevealDue(ctx, time.Date(2024, 3, 6, 18, 1, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	stored, _ := f.store.Registrant(reg.ID)
	require.True(t, stored.Revealed)
	require.Nil(t, stored.RevealOverride)
}
