// Package diner implements the Thursday Random Diner workflow: weekly
// registration intake, restaurant assignment and the scheduled reveal,
// plus the administrative overrides on top of them.  Persistence, event
// delivery and metrics are collaborators passed in by the caller.
package diner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/thursday-diner/internal/model"
	"github.com/iliyamo/thursday-diner/internal/queue"
	"github.com/iliyamo/thursday-diner/internal/repository"
)

// Service is the in-process API the HTTP layer and the reveal poller call.
// It holds no per-registrant state; every operation is a short read or
// read-modify-write against the stores.
type Service struct {
	registrants RegistrantStore
	restaurants RestaurantStore
	schedule    RevealSchedule
	events      EventPublisher
	metrics     Metrics
	rnd         Rand
	now         func() time.Time
	log         *zap.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithRand replaces the random source of the fallback assignment.
func WithRand(r Rand) Option { return func(s *Service) { s.rnd = r } }

// WithEvents sets the event publisher.
func WithEvents(p EventPublisher) Option { return func(s *Service) { s.events = p } }

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

// NewService wires a Service.  Both stores are required.
func NewService(registrants RegistrantStore, restaurants RestaurantStore, schedule RevealSchedule, opts ...Option) *Service {
	if registrants == nil || restaurants == nil {
		panic("nil store passed to diner.NewService")
	}
	s := &Service{
		registrants: registrants,
		restaurants: restaurants,
		schedule:    schedule,
		events:      nopPublisher{},
		metrics:     nopMetrics{},
		rnd:         globalRand{},
		now:         time.Now,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("diner")
	return s
}

// Schedule returns the configured reveal schedule.
func (s *Service) Schedule() RevealSchedule { return s.schedule }

// UpcomingWeek returns the Thursday that a registration made now targets.
func (s *Service) UpcomingWeek() time.Time {
	return NextThursday(s.schedule.Today(s.now()))
}

// RegisterInput carries a user's weekly preference set.
type RegisterInput struct {
	UserID              uint64
	PricePreference     string
	DietaryRestrictions []string
	CuisinePreference   string
}

// Register records the user's preferences for the upcoming Thursday and
// assigns a restaurant before persisting.  A second registration for the
// same week fails with ErrAlreadyRegistered and leaves the first intact;
// a previously cancelled registration for that week is reactivated.
func (s *Service) Register(ctx context.Context, in RegisterInput) (model.Registrant, error) {
	if in.UserID == 0 {
		return model.Registrant{}, fmt.Errorf("%w: user is required", ErrValidation)
	}
	tier, ok := model.ParsePriceTier(in.PricePreference)
	if !ok {
		return model.Registrant{}, fmt.Errorf("%w: price preference must be one of %s", ErrValidation, model.PriceTierList())
	}
	week := WeekID(s.UpcomingWeek())

	restaurants, err := s.restaurants.List(ctx)
	if err != nil {
		return model.Registrant{}, fmt.Errorf("load restaurants: %w", err)
	}
	reg := model.Registrant{
		UserID:              in.UserID,
		Week:                week,
		PricePreference:     tier,
		DietaryRestrictions: normalizeTags(in.DietaryRestrictions),
		CuisinePreference:   optional(in.CuisinePreference),
		Status:              model.StatusActive,
	}
	if picked := Assign(tier, restaurants, s.rnd); picked != nil {
		id := picked.ID
		reg.RestaurantID = &id
	}

	err = s.registrants.Create(ctx, &reg)
	if errors.Is(err, repository.ErrDuplicate) {
		err = s.registrants.Reactivate(ctx, &reg)
		if errors.Is(err, repository.ErrNotFound) {
			return model.Registrant{}, ErrAlreadyRegistered
		}
	}
	if err != nil {
		return model.Registrant{}, fmt.Errorf("save registration: %w", err)
	}

	s.log.Info("registered",
		zap.Uint64("registrant_id", reg.ID),
		zap.Uint64("user_id", reg.UserID),
		zap.String("week", reg.Week),
		zap.String("state", string(reg.State())))
	s.metrics.Registered(reg.RestaurantID != nil)
	s.publish(ctx, queue.DinerEvent{
		Type:         queue.EventRegistered,
		Week:         reg.Week,
		RegistrantID: reg.ID,
		UserID:       reg.UserID,
		RestaurantID: reg.RestaurantID,
	})
	return reg, nil
}

// Assignment is a registrant as its owner sees it.  Restaurant stays nil
// until the registrant is revealed.
type Assignment struct {
	Registrant model.Registrant      `json:"registration"`
	State      model.RegistrantState `json:"state"`
	Restaurant *model.Restaurant     `json:"restaurant,omitempty"`
	RevealAt   time.Time             `json:"reveal_at"`
	DinnerAt   time.Time             `json:"dinner_at"`
}

// Current returns the user's registration for the upcoming week.
func (s *Service) Current(ctx context.Context, userID uint64) (Assignment, error) {
	reg, err := s.registrants.GetByUserAndWeek(ctx, userID, WeekID(s.UpcomingWeek()))
	if err != nil {
		return Assignment{}, s.storeErr("load registration", err)
	}
	var restaurant *model.Restaurant
	if reg.Revealed && reg.RestaurantID != nil {
		r, err := s.restaurants.GetByID(ctx, *reg.RestaurantID)
		if err != nil {
			return Assignment{}, s.storeErr("load restaurant", err)
		}
		restaurant = &r
	}
	return s.assignment(reg, restaurant), nil
}

// History returns every registration of the user, newest week first.
func (s *Service) History(ctx context.Context, userID uint64) ([]Assignment, error) {
	regs, err := s.registrants.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	byID, err := s.restaurantIndex(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Assignment, 0, len(regs))
	for _, reg := range regs {
		var restaurant *model.Restaurant
		if reg.Revealed && reg.RestaurantID != nil {
			if r, ok := byID[*reg.RestaurantID]; ok {
				restaurant = &r
			}
		}
		out = append(out, s.assignment(reg, restaurant))
	}
	return out, nil
}

// Cancel withdraws the user from the upcoming week.  The row is kept with
// status CANCELLED.
func (s *Service) Cancel(ctx context.Context, userID uint64) error {
	reg, err := s.registrants.GetByUserAndWeek(ctx, userID, WeekID(s.UpcomingWeek()))
	if err != nil {
		return s.storeErr("load registration", err)
	}
	if reg.Status == model.StatusCancelled {
		return fmt.Errorf("%w: registration already cancelled", ErrNotFound)
	}
	if err := s.registrants.Cancel(ctx, reg.ID); err != nil {
		return s.storeErr("cancel registration", err)
	}
	s.log.Info("cancelled", zap.Uint64("registrant_id", reg.ID), zap.Uint64("user_id", userID), zap.String("week", reg.Week))
	s.metrics.Cancelled()
	s.publish(ctx, queue.DinerEvent{Type: queue.EventCancelled, Week: reg.Week, RegistrantID: reg.ID, UserID: userID})
	return nil
}

// WeekCount returns the number of active registrants for week.
func (s *Service) WeekCount(ctx context.Context, week string) (int, error) {
	stats, err := s.WeekStats(ctx, week)
	if err != nil {
		return 0, err
	}
	return stats.Registered, nil
}

// WeekStats aggregates the registrants of week.
func (s *Service) WeekStats(ctx context.Context, week string) (model.WeekStats, error) {
	if _, err := ParseWeek(week, s.schedule.location()); err != nil {
		return model.WeekStats{}, err
	}
	stats, err := s.registrants.StatsByWeek(ctx, week)
	if err != nil {
		return model.WeekStats{}, fmt.Errorf("week stats: %w", err)
	}
	stats.Week = week
	return stats, nil
}

// RevealDue reveals every week whose reveal instant has passed at now and
// returns the number of registrants revealed.  It only ever sets revealed
// to true and skips rows an administrator has overridden.
func (s *Service) RevealDue(ctx context.Context, now time.Time) (int, error) {
	weeks, err := s.registrants.PendingRevealWeeks(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending weeks: %w", err)
	}
	total := 0
	for _, w := range weeks {
		week, err := ParseWeek(w, s.schedule.location())
		if err != nil {
			s.log.Warn("skipping malformed week", zap.String("week", w), zap.Error(err))
			continue
		}
		if !s.schedule.Due(week, now) {
			continue
		}
		n, err := s.registrants.RevealWeek(ctx, w)
		if err != nil {
			return total, fmt.Errorf("reveal week %s: %w", w, err)
		}
		if n == 0 {
			continue
		}
		total += int(n)
		s.log.Info("revealed week", zap.String("week", w), zap.Int64("count", n))
		s.metrics.Revealed(int(n))
		s.publish(ctx, queue.DinerEvent{Type: queue.EventRevealed, Week: w, Count: int(n)})
	}
	return total, nil
}

// Present renders a freshly written registrant the way its owner sees it.
func (s *Service) Present(reg model.Registrant) Assignment {
	return s.assignment(reg, nil)
}

func (s *Service) assignment(reg model.Registrant, restaurant *model.Restaurant) Assignment {
	a := Assignment{Registrant: reg, State: reg.State(), Restaurant: restaurant}
	if week, err := ParseWeek(reg.Week, s.schedule.location()); err == nil {
		a.RevealAt = s.schedule.RevealAt(week)
		a.DinnerAt = DinnerAt(week)
	}
	if !reg.Revealed {
		// the id alone would give the restaurant away
		a.Registrant.RestaurantID = nil
	}
	return a
}

func (s *Service) restaurantIndex(ctx context.Context) (map[uint64]model.Restaurant, error) {
	list, err := s.restaurants.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load restaurants: %w", err)
	}
	byID := make(map[uint64]model.Restaurant, len(list))
	for _, r := range list {
		byID[r.ID] = r
	}
	return byID, nil
}

func (s *Service) publish(ctx context.Context, ev queue.DinerEvent) {
	ev.ID = uuid.NewString()
	ev.OccurredAt = s.now().UTC().Format(time.RFC3339)
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("publish event failed", zap.String("type", ev.Type), zap.Error(err))
	}
}

// storeErr turns repository.ErrNotFound into ErrNotFound and wraps the rest.
func (s *Service) storeErr(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// normalizeTags trims tags, drops empty ones and duplicates, and keeps the
// original order.  The result is never nil.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
