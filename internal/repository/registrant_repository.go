package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iliyamo/thursday-diner/internal/model"
)

// RegistrantRepo encapsulates the queries on `thursday_diners`.  Every
// conditional update relies on the row count, so the MySQL DSN is opened
// with clientFoundRows=true (see database.Open).
type RegistrantRepo struct {
	db *sql.DB
}

// NewRegistrantRepo constructs a RegistrantRepo with the provided DB handle.
func NewRegistrantRepo(db *sql.DB) *RegistrantRepo {
	return &RegistrantRepo{db: db}
}

const registrantColumns = `id, user_id, week_date, price_preference, dietary_restrictions,
	cuisine_preference, restaurant_id, revealed, reveal_override, status, cancelled_at,
	created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistrant(s rowScanner) (model.Registrant, error) {
	var (
		r          model.Registrant
		tier       string
		dietary    string
		cuisine    sql.NullString
		restaurant sql.NullInt64
		override   sql.NullString
		cancelled  sql.NullTime
	)
	if err := s.Scan(&r.ID, &r.UserID, &r.Week, &tier, &dietary, &cuisine, &restaurant,
		&r.Revealed, &override, &r.Status, &cancelled, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return model.Registrant{}, err
	}
	r.PricePreference = model.PriceTier(tier)
	r.DietaryRestrictions = []string{}
	if dietary != "" {
		if err := json.Unmarshal([]byte(dietary), &r.DietaryRestrictions); err != nil {
			return model.Registrant{}, fmt.Errorf("decode dietary_restrictions of registrant %d: %w", r.ID, err)
		}
	}
	if cuisine.Valid {
		r.CuisinePreference = &cuisine.String
	}
	if restaurant.Valid {
		id := uint64(restaurant.Int64)
		r.RestaurantID = &id
	}
	if override.Valid {
		r.RevealOverride = &override.String
	}
	if cancelled.Valid {
		t := cancelled.Time
		r.CancelledAt = &t
	}
	return r, nil
}

func encodeDietary(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullableID(id *uint64) any {
	if id == nil {
		return nil
	}
	return *id
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// Create inserts a registrant.  A second row for the same (user, week)
// fails with ErrDuplicate.  ID and timestamps are populated on success.
func (r *RegistrantRepo) Create(ctx context.Context, reg *model.Registrant) error {
	dietary, err := encodeDietary(reg.DietaryRestrictions)
	if err != nil {
		return err
	}
	if reg.Status == "" {
		reg.Status = model.StatusActive
	}
	const q = `INSERT INTO thursday_diners
		(user_id, week_date, price_preference, dietary_restrictions, cuisine_preference,
		 restaurant_id, revealed, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, reg.UserID, reg.Week, string(reg.PricePreference), dietary,
		nullableString(reg.CuisinePreference), nullableID(reg.RestaurantID), reg.Revealed, reg.Status)
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
	reg.ID = uint64(id)
	return r.db.QueryRowContext(ctx,
		"SELECT created_at, updated_at FROM thursday_diners WHERE id = ?", reg.ID).
		Scan(&reg.CreatedAt, &reg.UpdatedAt)
}

// Reactivate overwrites the CANCELLED row of (reg.UserID, reg.Week) with
// the new preferences and assignment.  The WHERE clause on status makes
// concurrent attempts race on a single row update: the loser sees no
// cancelled row and gets ErrNotFound.
func (r *RegistrantRepo) Reactivate(ctx context.Context, reg *model.Registrant) error {
	dietary, err := encodeDietary(reg.DietaryRestrictions)
	if err != nil {
		return err
	}
	const q = `UPDATE thursday_diners
		SET price_preference = ?, dietary_restrictions = ?, cuisine_preference = ?,
		    restaurant_id = ?, revealed = 0, reveal_override = NULL, status = ?,
		    cancelled_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND week_date = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q, string(reg.PricePreference), dietary,
		nullableString(reg.CuisinePreference), nullableID(reg.RestaurantID), model.StatusActive,
		reg.UserID, reg.Week, model.StatusCancelled)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	stored, err := r.GetByUserAndWeek(ctx, reg.UserID, reg.Week)
	if err != nil {
		return err
	}
	*reg = stored
	return nil
}

// GetByID fetches a registrant by its ID.
func (r *RegistrantRepo) GetByID(ctx context.Context, id uint64) (model.Registrant, error) {
	reg, err := scanRegistrant(r.db.QueryRowContext(ctx,
		"SELECT "+registrantColumns+" FROM thursday_diners WHERE id = ?", id))
	return reg, notFound(err)
}

// GetByUserAndWeek fetches the registrant of user for week, cancelled or not.
func (r *RegistrantRepo) GetByUserAndWeek(ctx context.Context, userID uint64, week string) (model.Registrant, error) {
	reg, err := scanRegistrant(r.db.QueryRowContext(ctx,
		"SELECT "+registrantColumns+" FROM thursday_diners WHERE user_id = ? AND week_date = ? LIMIT 1",
		userID, week))
	return reg, notFound(err)
}

// ListByUser returns the user's registrants, newest week first.
func (r *RegistrantRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Registrant, error) {
	return r.list(ctx,
		"SELECT "+registrantColumns+" FROM thursday_diners WHERE user_id = ? ORDER BY week_date DESC", userID)
}

// ListByWeek returns every registrant of week in registration order.
func (r *RegistrantRepo) ListByWeek(ctx context.Context, week string) ([]model.Registrant, error) {
	return r.list(ctx,
		"SELECT "+registrantColumns+" FROM thursday_diners WHERE week_date = ? ORDER BY id", week)
}

func (r *RegistrantRepo) list(ctx context.Context, q string, args ...any) ([]model.Registrant, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Registrant
	for rows.Next() {
		reg, err := scanRegistrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Cancel flips an ACTIVE registrant to CANCELLED.  It returns ErrNotFound
// when the row does not exist or is already cancelled.
func (r *RegistrantRepo) Cancel(ctx context.Context, id uint64) error {
	const q = `UPDATE thursday_diners
		SET status = ?, cancelled_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?`
	return r.exec(ctx, q, model.StatusCancelled, time.Now().UTC(), id, model.StatusActive)
}

// SetRestaurant stores the assignment of a registrant; nil clears it.
func (r *RegistrantRepo) SetRestaurant(ctx context.Context, id uint64, restaurantID *uint64) error {
	const q = `UPDATE thursday_diners SET restaurant_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	return r.exec(ctx, q, nullableID(restaurantID), id)
}

// SetRevealed writes the revealed flag together with the admin override.
func (r *RegistrantRepo) SetRevealed(ctx context.Context, id uint64, revealed bool, override *string) error {
	const q = `UPDATE thursday_diners
		SET revealed = ?, reveal_override = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`
	return r.exec(ctx, q, revealed, nullableString(override), id)
}

// revealableClause selects the rows the periodic pass may reveal.
const revealableClause = `status = 'ACTIVE' AND revealed = 0 AND restaurant_id IS NOT NULL AND reveal_override IS NULL`

// PendingRevealWeeks lists the weeks that still hold revealable rows.
func (r *RegistrantRepo) PendingRevealWeeks(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT DISTINCT week_date FROM thursday_diners WHERE "+revealableClause+" ORDER BY week_date")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var weeks []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		weeks = append(weeks, w)
	}
	return weeks, rows.Err()
}

// RevealWeek reveals every revealable row of week in one statement and
// returns how many rows it touched.  It never clears the flag.
func (r *RegistrantRepo) RevealWeek(ctx context.Context, week string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE thursday_diners SET revealed = 1, updated_at = CURRENT_TIMESTAMP WHERE week_date = ? AND "+revealableClause,
		week)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// StatsByWeek aggregates the registrants of week.
func (r *RegistrantRepo) StatsByWeek(ctx context.Context, week string) (model.WeekStats, error) {
	const q = `SELECT
		COALESCE(SUM(CASE WHEN status = 'ACTIVE' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'ACTIVE' AND restaurant_id IS NOT NULL THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'ACTIVE' AND revealed = 1 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'CANCELLED' THEN 1 ELSE 0 END), 0)
		FROM thursday_diners WHERE week_date = ?`
	st := model.WeekStats{Week: week}
	err := r.db.QueryRowContext(ctx, q, week).Scan(&st.Registered, &st.Assigned, &st.Revealed, &st.Cancelled)
	return st, err
}

// exec runs a single-row update and reports ErrNotFound when no row matched.
func (r *RegistrantRepo) exec(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
