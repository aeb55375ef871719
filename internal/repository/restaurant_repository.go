package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/thursday-diner/internal/model"
)

// RestaurantRepo encapsulates all database queries related to restaurants.
type RestaurantRepo struct {
	db *sql.DB
}

// NewRestaurantRepo constructs a RestaurantRepo with the provided DB handle.
func NewRestaurantRepo(db *sql.DB) *RestaurantRepo {
	return &RestaurantRepo{db: db}
}

const restaurantColumns = `id, name, cuisine, price_range, location, address, emoji, capacity, created_at, updated_at`

func scanRestaurant(s rowScanner) (model.Restaurant, error) {
	var (
		r    model.Restaurant
		tier string
	)
	err := s.Scan(&r.ID, &r.Name, &r.Cuisine, &tier, &r.Location, &r.Address, &r.Emoji, &r.Capacity,
		&r.CreatedAt, &r.UpdatedAt)
	r.PriceRange = model.PriceTier(tier)
	return r, err
}

// List returns every restaurant in its natural order: by name, then id.
// The assignment engine's first-match rule depends on this order.
func (r *RestaurantRepo) List(ctx context.Context) ([]model.Restaurant, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+restaurantColumns+" FROM restaurants ORDER BY name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Restaurant
	for rows.Next() {
		rest, err := scanRestaurant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rest)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetByID fetches a restaurant by its ID.
func (r *RestaurantRepo) GetByID(ctx context.Context, id uint64) (model.Restaurant, error) {
	rest, err := scanRestaurant(r.db.QueryRowContext(ctx,
		"SELECT "+restaurantColumns+" FROM restaurants WHERE id = ?", id))
	if err != nil {
		return model.Restaurant{}, notFound(err)
	}
	return rest, nil
}

// Create inserts a restaurant and populates its ID and timestamps.  Names
// are unique; a clash returns ErrDuplicate.
func (r *RestaurantRepo) Create(ctx context.Context, rest *model.Restaurant) error {
	const q = `INSERT INTO restaurants (name, cuisine, price_range, location, address, emoji, capacity)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, rest.Name, rest.Cuisine, string(rest.PriceRange), rest.Location,
		rest.Address, rest.Emoji, rest.Capacity)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rest.ID = uint64(id)
	return r.db.QueryRowContext(ctx, "SELECT created_at, updated_at FROM restaurants WHERE id = ?", rest.ID).
		Scan(&rest.CreatedAt, &rest.UpdatedAt)
}

// Update replaces the editable columns of rest.ID.
func (r *RestaurantRepo) Update(ctx context.Context, rest *model.Restaurant) error {
	const q = `UPDATE restaurants
		SET name = ?, cuisine = ?, price_range = ?, location = ?, address = ?, emoji = ?, capacity = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, rest.Name, rest.Cuisine, string(rest.PriceRange), rest.Location,
		rest.Address, rest.Emoji, rest.Capacity, rest.ID)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return r.db.QueryRowContext(ctx, "SELECT created_at, updated_at FROM restaurants WHERE id = ?", rest.ID).
		Scan(&rest.CreatedAt, &rest.UpdatedAt)
}

// Delete removes a restaurant that no registrant references.  Referenced
// restaurants are kept and ErrConflict is returned, so past assignments
// stay readable.  The check and the delete share a transaction.
func (r *RestaurantRepo) Delete(ctx context.Context, id uint64) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	var refs int
	if err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM thursday_diners WHERE restaurant_id = ?", id).Scan(&refs); err != nil {
		return err
	}
	if refs > 0 {
		return ErrConflict
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM restaurants WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
