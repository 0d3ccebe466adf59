package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"

	"bloodlink-backend/internal/domain"
	"bloodlink-backend/internal/logger"
	"bloodlink-backend/internal/repository"
)

const donorColumns = `user_id, name, email, phone, blood_group, latitude, longitude, is_available,
	availability_override, last_donation_date, next_eligible_date, total_donations, reminder_sent_for,
	push_tokens, created_at, updated_at`

type donorRepository struct {
	db *sql.DB
}

func NewDonorRepository(db *sql.DB) repository.DonorRepository {
	return &donorRepository{db: db}
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func scanDonor(s rowScanner, extra ...any) (*domain.Donor, error) {
	var d domain.Donor
	var lastDonation, nextEligible, reminderSent sql.NullTime
	dest := []any{
		&d.UserID, &d.Name, &d.Email, &d.Phone, &d.BloodGroup, &d.Location.Lat, &d.Location.Lon, &d.IsAvailable,
		&d.AvailabilityOverride, &lastDonation, &nextEligible, &d.TotalDonations, &reminderSent,
		pq.Array(&d.PushTokens), &d.CreatedAt, &d.UpdatedAt,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	d.LastDonationDate = nullTimePtr(lastDonation)
	d.NextEligibleDate = nullTimePtr(nextEligible)
	d.ReminderSentFor = nullTimePtr(reminderSent)
	return &d, nil
}

// filterClause renders f as SQL conditions. Placeholders start at $next.
func filterClause(f domain.DonorFilter, next int) (string, []any) {
	var conds []string
	var args []any
	if f.BloodGroup != "" {
		conds = append(conds, "blood_group = $"+itoa(next))
		args = append(args, f.BloodGroup)
		next++
	}
	if f.OnlyAvailable {
		conds = append(conds, "is_available = TRUE")
	}
	if len(f.ExcludeUserIDs) > 0 {
		ids := make([]int64, len(f.ExcludeUserIDs))
		for i, id := range f.ExcludeUserIDs {
			ids[i] = int64(id)
		}
		conds = append(conds, "NOT (user_id = ANY($"+itoa(next)+"))")
		args = append(args, pq.Array(ids))
	}
	if len(conds) == 0 {
		return "TRUE", nil
	}
	return strings.Join(conds, " AND "), args
}

func (r *donorRepository) GetByID(ctx context.Context, userID int32) (*domain.Donor, error) {
	query := `SELECT ` + donorColumns + ` FROM donors WHERE user_id = $1`
	d, err := scanDonor(r.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("donor %d", userID)
	}
	return d, err
}

func (r *donorRepository) GetContacts(ctx context.Context, userIDs []int32) (map[int32]domain.Contact, error) {
	out := make(map[int32]domain.Contact, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	ids := make([]int64, len(userIDs))
	for i, id := range userIDs {
		ids[i] = int64(id)
	}

	query := `SELECT u.id, u.name, u.email, COALESCE(d.push_tokens, '{}')
	          FROM users u LEFT JOIN donors d ON d.user_id = u.id
	          WHERE u.id = ANY($1)`
	logger.DatabaseCall("SELECT", "users", "count", len(ids))
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		logger.DatabaseResult("SELECT", 0, err)
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.Contact
		if err := rows.Scan(&c.UserID, &c.Name, &c.Email, pq.Array(&c.PushTokens)); err != nil {
			return nil, err
		}
		out[c.UserID] = c
	}
	logger.DatabaseResult("SELECT", int64(len(out)), rows.Err())
	return out, rows.Err()
}

// earthdistanceRadiusM is the sphere radius behind earthdistance's earth().
const earthdistanceRadiusM = 6378168.0

// nativeRadiusPad widens the SQL cut slightly. Callers re-check candidates
// with haversine, which makes the final radius decision.
const nativeRadiusPad = 1.001

// earthdistanceRadius converts a haversine radius in kilometres into metres on
// the earth() sphere, so the SQL predicate covers every donor DistanceKm
// would accept.
func earthdistanceRadius(radiusKm float64) float64 {
	return radiusKm * nativeRadiusPad * earthdistanceRadiusM / domain.EarthRadiusKm
}

// FindNearby relies on the cube and earthdistance extensions. The earth_box
// test lets the planner use the GiST index on ll_to_earth(latitude, longitude).
func (r *donorRepository) FindNearby(ctx context.Context, origin domain.Coordinate, radiusKm float64, filter domain.DonorFilter, limit int32) ([]domain.DonorMatch, error) {
	logger.EnterMethod("donorRepository.FindNearby", "lat", origin.Lat, "lon", origin.Lon, "radiusKm", radiusKm)

	where, args := filterClause(filter, 4)
	query := `SELECT ` + donorColumns + `,
	          earth_distance(ll_to_earth($1, $2), ll_to_earth(latitude, longitude)) / earth() * 6371.0 AS distance_km
	          FROM donors
	          WHERE ` + where + `
	          AND NOT (latitude = 0 AND longitude = 0)
	          AND earth_box(ll_to_earth($1, $2), $3) @> ll_to_earth(latitude, longitude)
	          AND earth_distance(ll_to_earth($1, $2), ll_to_earth(latitude, longitude)) <= $3
	          ORDER BY distance_km, user_id
	          LIMIT $` + itoa(4+len(args))
	args = append([]any{origin.Lat, origin.Lon, earthdistanceRadius(radiusKm)}, args...)
	args = append(args, limit)

	logger.DatabaseCall("SELECT", "donors", "query", "earth_distance")
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.DatabaseResult("SELECT", 0, err)
		logger.ExitMethodWithError("donorRepository.FindNearby", err)
		return nil, err
	}
	defer rows.Close()

	matches := []domain.DonorMatch{}
	for rows.Next() {
		var dist float64
		d, err := scanDonor(rows, &dist)
		if err != nil {
			logger.ExitMethodWithError("donorRepository.FindNearby", err)
			return nil, err
		}
		matches = append(matches, domain.DonorMatch{Donor: *d, DistanceKm: dist})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	logger.DatabaseResult("SELECT", int64(len(matches)), nil)
	logger.ExitMethod("donorRepository.FindNearby", "count", len(matches))
	return matches, nil
}

func (r *donorRepository) ListCandidates(ctx context.Context, filter domain.DonorFilter, limit int32) ([]domain.Donor, error) {
	where, args := filterClause(filter, 1)
	query := `SELECT ` + donorColumns + ` FROM donors WHERE ` + where + ` LIMIT NULLIF($` + itoa(len(args)+1) + `, 0)`
	if limit < 0 {
		limit = 0
	}
	args = append(args, limit)

	logger.DatabaseCall("SELECT", "donors", "bloodGroup", filter.BloodGroup)
	return r.queryDonors(ctx, query, args...)
}

func (r *donorRepository) queryDonors(ctx context.Context, query string, args ...any) ([]domain.Donor, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.DatabaseResult("SELECT", 0, err)
		return nil, err
	}
	defer rows.Close()

	donors := []domain.Donor{}
	for rows.Next() {
		d, err := scanDonor(rows)
		if err != nil {
			return nil, err
		}
		donors = append(donors, *d)
	}
	logger.DatabaseResult("SELECT", int64(len(donors)), rows.Err())
	return donors, rows.Err()
}

func (r *donorRepository) UpdateEligibility(ctx context.Context, d *domain.Donor) error {
	query := `UPDATE donors SET last_donation_date = $1, next_eligible_date = $2, is_available = $3,
	          availability_override = $4, total_donations = $5, updated_at = $6 WHERE user_id = $7`
	now := time.Now().UTC()

	logger.DatabaseCall("UPDATE", "donors", "userID", d.UserID)
	result, err := r.db.ExecContext(ctx, query, d.LastDonationDate, d.NextEligibleDate, d.IsAvailable,
		d.AvailabilityOverride, d.TotalDonations, now, d.UserID)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err)
		return domain.Persistence("update donor eligibility", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return domain.Persistence("update donor eligibility", err)
	}
	logger.DatabaseResult("UPDATE", rows, nil)
	if rows == 0 {
		return domain.NotFoundf("donor %d", d.UserID)
	}
	d.UpdatedAt = now
	return nil
}

func (r *donorRepository) SetAvailability(ctx context.Context, userID int32, available, override bool) error {
	query := `UPDATE donors SET is_available = $1, availability_override = $2, updated_at = $3 WHERE user_id = $4`
	result, err := r.db.ExecContext(ctx, query, available, override, time.Now().UTC(), userID)
	if err != nil {
		return domain.Persistence("set donor availability", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return domain.Persistence("set donor availability", err)
	}
	if rows == 0 {
		return domain.NotFoundf("donor %d", userID)
	}
	return nil
}

func (r *donorRepository) ListDueForReminder(ctx context.Context, now time.Time) ([]domain.Donor, error) {
	query := `SELECT ` + donorColumns + ` FROM donors
	          WHERE next_eligible_date IS NOT NULL AND next_eligible_date <= $1
	          AND (reminder_sent_for IS NULL OR reminder_sent_for <> next_eligible_date)
	          ORDER BY user_id`
	logger.DatabaseCall("SELECT", "donors", "reason", "eligibility reminders")
	return r.queryDonors(ctx, query, now)
}

func (r *donorRepository) MarkReminderSent(ctx context.Context, userID int32, window time.Time) (bool, error) {
	query := `UPDATE donors SET reminder_sent_for = $1
	          WHERE user_id = $2 AND (reminder_sent_for IS NULL OR reminder_sent_for <> $1)`
	logger.DatabaseCall("UPDATE", "donors", "userID", userID, "window", window)
	result, err := r.db.ExecContext(ctx, query, window, userID)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err)
		return false, domain.Persistence("mark reminder sent", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, domain.Persistence("mark reminder sent", err)
	}
	logger.DatabaseResult("UPDATE", rows, nil)
	return rows == 1, nil
}

func (r *donorRepository) ReleaseReminder(ctx context.Context, userID int32, window time.Time, previous *time.Time) error {
	query := `UPDATE donors SET reminder_sent_for = $1 WHERE user_id = $2 AND reminder_sent_for = $3`
	logger.DatabaseCall("UPDATE", "donors", "userID", userID, "window", window)
	result, err := r.db.ExecContext(ctx, query, previous, userID, window)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err)
		return domain.Persistence("release reminder", err)
	}
	rows, err := result.RowsAffected()
	logger.DatabaseResult("UPDATE", rows, err)
	return err
}

func (r *donorRepository) RefreshAvailability(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE donors SET is_available = TRUE, updated_at = $1
	          WHERE is_available = FALSE AND availability_override = FALSE
	          AND next_eligible_date IS NOT NULL AND next_eligible_date <= $1`
	logger.DatabaseCall("UPDATE", "donors", "reason", "refresh availability")
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err)
		return 0, domain.Persistence("refresh donor availability", err)
	}
	rows, err := result.RowsAffected()
	logger.DatabaseResult("UPDATE", rows, err)
	return rows, err
}
