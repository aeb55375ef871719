// Package seed loads the restaurant reference set from a YAML file.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/iliyamo/thursday-diner/internal/diner"
	"github.com/iliyamo/thursday-diner/internal/model"
)

// File is the on-disk layout:
//
//	restaurants:
//	  - name: Casa Romana
//	    cuisine: Italian
//	    price_range: "€€"
//	    location: Old Town
//	    address: Strada Lipscani 1
//	    emoji: "🍝"
//	    capacity: 24
type File struct {
	Restaurants []Restaurant `yaml:"restaurants"`
}

// Restaurant is one entry of File.
type Restaurant struct {
	Name       string `yaml:"name"`
	Cuisine    string `yaml:"cuisine"`
	PriceRange string `yaml:"price_range"`
	Location   string `yaml:"location"`
	Address    string `yaml:"address"`
	Emoji      string `yaml:"emoji"`
	Capacity   uint32 `yaml:"capacity"`
}

// Parse decodes a seed document.  Unknown keys are rejected so typos do
// not silently drop data.
func Parse(r io.Reader) ([]model.Restaurant, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	out := make([]model.Restaurant, 0, len(f.Restaurants))
	for _, r := range f.Restaurants {
		out = append(out, model.Restaurant{
			Name:       r.Name,
			Cuisine:    r.Cuisine,
			PriceRange: model.PriceTier(r.PriceRange),
			Location:   r.Location,
			Address:    r.Address,
			Emoji:      r.Emoji,
			Capacity:   r.Capacity,
		})
	}
	return out, nil
}

// LoadFile parses the seed file at path.
func LoadFile(path string) ([]model.Restaurant, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// RestaurantCreator is the part of *diner.Service the seeder needs.
type RestaurantCreator interface {
	CreateRestaurant(ctx context.Context, adminID uint64, r model.Restaurant) (model.Restaurant, error)
}

// Result summarises an Apply run.
type Result struct {
	Created int
	Skipped int
}

// Apply creates every restaurant through svc so the usual validation
// applies.  Restaurants whose name already exists are skipped, which makes
// re-running a seed harmless.  Validation errors abort the run.
func Apply(ctx context.Context, svc RestaurantCreator, list []model.Restaurant, log *zap.Logger) (Result, error) {
	var res Result
	for i, r := range list {
		created, err := svc.CreateRestaurant(ctx, 0, r)
		switch {
		case errors.Is(err, diner.ErrConflict):
			res.Skipped++
			log.Debug("restaurant exists", zap.String("name", r.Name))
		case err != nil:
			return res, fmt.Errorf("restaurant #%d (%q): %w", i+1, r.Name, err)
		default:
			res.Created++
			log.Info("restaurant seeded", zap.Uint64("id", created.ID), zap.String("name", created.Name))
		}
	}
	return res, nil
}
