package diner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/thursday-diner/internal/model"
	"github.com/iliyamo/thursday-diner/internal/queue"
)

// ListWeek returns every registrant of week, cancelled ones included.
func (s *Service) ListWeek(ctx context.Context, week string) ([]model.Registrant, error) {
	if _, err := ParseWeek(week, s.schedule.location()); err != nil {
		return nil, err
	}
	regs, err := s.registrants.ListByWeek(ctx, week)
	if err != nil {
		return nil, fmt.Errorf("list week %s: %w", week, err)
	}
	return regs, nil
}

// ForceAssign sets the registrant's restaurant regardless of preference.
func (s *Service) ForceAssign(ctx context.Context, adminID, registrantID, restaurantID uint64) (model.Registrant, error) {
	reg, err := s.activeRegistrant(ctx, registrantID)
	if err != nil {
		return model.Registrant{}, err
	}
	if _, err := s.restaurants.GetByID(ctx, restaurantID); err != nil {
		return model.Registrant{}, s.storeErr("load restaurant", err)
	}
	if err := s.registrants.SetRestaurant(ctx, reg.ID, &restaurantID); err != nil {
		return model.Registrant{}, s.storeErr("assign restaurant", err)
	}
	reg.RestaurantID = &restaurantID
	s.audit(ctx, adminID, queue.ActionForceAssign, reg, 0)
	return reg, nil
}

// Reassign re-runs the assignment engine with the registrant's stored
// preference.  With no restaurants available the registrant is left as it is.
func (s *Service) Reassign(ctx context.Context, adminID, registrantID uint64) (model.Registrant, error) {
	reg, err := s.activeRegistrant(ctx, registrantID)
	if err != nil {
		return model.Registrant{}, err
	}
	restaurants, err := s.restaurants.List(ctx)
	if err != nil {
		return model.Registrant{}, fmt.Errorf("load restaurants: %w", err)
	}
	picked := Assign(reg.PricePreference, restaurants, s.rnd)
	if picked == nil {
		return reg, nil
	}
	id := picked.ID
	if err := s.registrants.SetRestaurant(ctx, reg.ID, &id); err != nil {
		return model.Registrant{}, s.storeErr("assign restaurant", err)
	}
	reg.RestaurantID = &id
	s.audit(ctx, adminID, queue.ActionReassign, reg, 0)
	return reg, nil
}

// AssignPending runs the assignment engine for every active registrant of
// week that is still waiting for a restaurant.  It returns how many were
// assigned.
func (s *Service) AssignPending(ctx context.Context, adminID uint64, week string) (int, error) {
	regs, err := s.ListWeek(ctx, week)
	if err != nil {
		return 0, err
	}
	restaurants, err := s.restaurants.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("load restaurants: %w", err)
	}
	assigned := 0
	for _, reg := range regs {
		if reg.State() != model.StatePendingAssignment {
			continue
		}
		picked := Assign(reg.PricePreference, restaurants, s.rnd)
		if picked == nil {
			break
		}
		id := picked.ID
		if err := s.registrants.SetRestaurant(ctx, reg.ID, &id); err != nil {
			return assigned, s.storeErr("assign restaurant", err)
		}
		assigned++
	}
	if assigned > 0 {
		s.audit(ctx, adminID, queue.ActionAssignPending, model.Registrant{Week: week}, assigned)
	}
	return assigned, nil
}

// ForceReveal reveals the registrant before the scheduled instant.
func (s *Service) ForceReveal(ctx context.Context, adminID, registrantID uint64) (model.Registrant, error) {
	reg, err := s.activeRegistrant(ctx, registrantID)
	if err != nil {
		return model.Registrant{}, err
	}
	if reg.RestaurantID == nil {
		return model.Registrant{}, ErrNotAssigned
	}
	override := model.OverrideRevealed
	if err := s.registrants.SetRevealed(ctx, reg.ID, true, &override); err != nil {
		return model.Registrant{}, s.storeErr("reveal registrant", err)
	}
	reg.Revealed, reg.RevealOverride = true, &override
	s.audit(ctx, adminID, queue.ActionForceReveal, reg, 0)
	return reg, nil
}

// ForceHide hides a revealed registrant's restaurant again.  The override
// keeps the periodic reveal pass from flipping it back.  A registrant that
// is still hidden is refused so the scheduled reveal still reaches it.
func (s *Service) ForceHide(ctx context.Context, adminID, registrantID uint64) (model.Registrant, error) {
	reg, err := s.activeRegistrant(ctx, registrantID)
	if err != nil {
		return model.Registrant{}, err
	}
	if !reg.Revealed {
		return model.Registrant{}, fmt.Errorf("%w: registrant %d is not revealed", ErrConflict, reg.ID)
	}
	override := model.OverrideHidden
	if err := s.registrants.SetRevealed(ctx, reg.ID, false, &override); err != nil {
		return model.Registrant{}, s.storeErr("hide registrant", err)
	}
	reg.Revealed, reg.RevealOverride = false, &override
	s.audit(ctx, adminID, queue.ActionForceHide, reg, 0)
	return reg, nil
}

func (s *Service) activeRegistrant(ctx context.Context, id uint64) (model.Registrant, error) {
	reg, err := s.registrants.GetByID(ctx, id)
	if err != nil {
		return model.Registrant{}, s.storeErr("load registrant", err)
	}
	if reg.Status != model.StatusActive {
		return model.Registrant{}, fmt.Errorf("%w: registrant %d is cancelled", ErrConflict, id)
	}
	return reg, nil
}

func (s *Service) audit(ctx context.Context, adminID uint64, action string, reg model.Registrant, count int) {
	s.log.Info("admin override",
		zap.String("action", action),
		zap.Uint64("admin_id", adminID),
		zap.Uint64("registrant_id", reg.ID),
		zap.String("week", reg.Week),
		zap.Int("count", count))
	s.metrics.Override(action)
	s.publish(ctx, queue.DinerEvent{
		Type:         queue.EventOverride,
		Week:         reg.Week,
		RegistrantID: reg.ID,
		UserID:       reg.UserID,
		RestaurantID: reg.RestaurantID,
		ActorID:      adminID,
		Action:       action,
		Count:        count,
	})
}
