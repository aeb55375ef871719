package diner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/thursday-diner/internal/model"
	"github.com/iliyamo/thursday-diner/internal/repository"
)

const (
	defaultEmoji    = "🍽️"
	defaultCapacity = 50
)

// Restaurants lists the reference set in its natural order.
func (s *Service) Restaurants(ctx context.Context) ([]model.Restaurant, error) {
	list, err := s.restaurants.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list restaurants: %w", err)
	}
	return list, nil
}

// Restaurant returns restaurant id.
func (s *Service) Restaurant(ctx context.Context, id uint64) (model.Restaurant, error) {
	r, err := s.restaurants.GetByID(ctx, id)
	if err != nil {
		return model.Restaurant{}, s.storeErr("load restaurant", err)
	}
	return r, nil
}

// CreateRestaurant validates and stores a new restaurant.
func (s *Service) CreateRestaurant(ctx context.Context, adminID uint64, r model.Restaurant) (model.Restaurant, error) {
	if err := normalizeRestaurant(&r); err != nil {
		return model.Restaurant{}, err
	}
	if err := s.restaurants.Create(ctx, &r); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.Restaurant{}, fmt.Errorf("%w: restaurant %q already exists", ErrConflict, r.Name)
		}
		return model.Restaurant{}, fmt.Errorf("create restaurant: %w", err)
	}
	s.log.Info("restaurant created", zap.Uint64("admin_id", adminID), zap.Uint64("restaurant_id", r.ID), zap.String("name", r.Name))
	return r, nil
}

// UpdateRestaurant replaces every editable field of restaurant id.
func (s *Service) UpdateRestaurant(ctx context.Context, adminID, id uint64, r model.Restaurant) (model.Restaurant, error) {
	r.ID = id
	if err := normalizeRestaurant(&r); err != nil {
		return model.Restaurant{}, err
	}
	if err := s.restaurants.Update(ctx, &r); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.Restaurant{}, fmt.Errorf("%w: restaurant %q already exists", ErrConflict, r.Name)
		}
		return model.Restaurant{}, s.storeErr("update restaurant", err)
	}
	s.log.Info("restaurant updated", zap.Uint64("admin_id", adminID), zap.Uint64("restaurant_id", id))
	return r, nil
}

// DeleteRestaurant removes a restaurant no registrant references.
func (s *Service) DeleteRestaurant(ctx context.Context, adminID, id uint64) error {
	if err := s.restaurants.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("%w: restaurant %d is assigned to registrants", ErrConflict, id)
		}
		return s.storeErr("delete restaurant", err)
	}
	s.log.Info("restaurant deleted", zap.Uint64("admin_id", adminID), zap.Uint64("restaurant_id", id))
	return nil
}

func normalizeRestaurant(r *model.Restaurant) error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	tier, ok := model.ParsePriceTier(string(r.PriceRange))
	if !ok {
		return fmt.Errorf("%w: price_range must be one of %s", ErrValidation, model.PriceTierList())
	}
	r.PriceRange = tier
	r.Cuisine = strings.TrimSpace(r.Cuisine)
	r.Location = strings.TrimSpace(r.Location)
	r.Address = strings.TrimSpace(r.Address)
	if r.Emoji = strings.TrimSpace(r.Emoji); r.Emoji == "" {
		r.Emoji = defaultEmoji
	}
	if r.Capacity == 0 {
		r.Capacity = defaultCapacity
	}
	return nil
}
