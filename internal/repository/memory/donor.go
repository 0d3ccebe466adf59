package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"bloodlink-backend/internal/domain"
	"bloodlink-backend/internal/repository"
)

type donorRepository struct {
	mu   sync.RWMutex
	rows map[int32]*domain.Donor
}

func newDonorRepository() *donorRepository {
	return &donorRepository{rows: make(map[int32]*domain.Donor)}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneDonor(d *domain.Donor) domain.Donor {
	c := *d
	c.LastDonationDate = copyTime(d.LastDonationDate)
	c.NextEligibleDate = copyTime(d.NextEligibleDate)
	c.ReminderSentFor = copyTime(d.ReminderSentFor)
	c.PushTokens = append([]string(nil), d.PushTokens...)
	return c
}

func (r *donorRepository) put(d domain.Donor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	c := cloneDonor(&d)
	r.rows[d.UserID] = &c
}

func (r *donorRepository) GetByID(ctx context.Context, userID int32) (*domain.Donor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.rows[userID]
	if !ok {
		return nil, domain.NotFoundf("donor %d", userID)
	}
	d := cloneDonor(row)
	return &d, nil
}

func (r *donorRepository) GetContacts(ctx context.Context, userIDs []int32) (map[int32]domain.Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[int32]domain.Contact, len(userIDs))
	for _, id := range userIDs {
		row, ok := r.rows[id]
		if !ok {
			continue
		}
		out[id] = domain.Contact{
			UserID:     row.UserID,
			Name:       row.Name,
			Email:      row.Email,
			PushTokens: append([]string(nil), row.PushTokens...),
		}
	}
	return out, nil
}

func (r *donorRepository) FindNearby(ctx context.Context, origin domain.Coordinate, radiusKm float64, filter domain.DonorFilter, limit int32) ([]domain.DonorMatch, error) {
	return nil, repository.ErrNativeGeoUnsupported
}

// ListCandidates returns matches ordered by user id so repeated calls are
// stable. Callers must not rely on any order.
func (r *donorRepository) ListCandidates(ctx context.Context, filter domain.DonorFilter, limit int32) ([]domain.Donor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Donor, 0)
	for _, row := range r.rows {
		if filter.Matches(row) {
			out = append(out, cloneDonor(row))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	if limit > 0 && int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *donorRepository) UpdateEligibility(ctx context.Context, d *domain.Donor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[d.UserID]
	if !ok {
		return domain.NotFoundf("donor %d", d.UserID)
	}
	row.LastDonationDate = copyTime(d.LastDonationDate)
	row.NextEligibleDate = copyTime(d.NextEligibleDate)
	row.IsAvailable = d.IsAvailable
	row.AvailabilityOverride = d.AvailabilityOverride
	row.TotalDonations = d.TotalDonations
	row.UpdatedAt = time.Now().UTC()
	d.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *donorRepository) SetAvailability(ctx context.Context, userID int32, available, override bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[userID]
	if !ok {
		return domain.NotFoundf("donor %d", userID)
	}
	row.IsAvailable = available
	row.AvailabilityOverride = override
	row.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *donorRepository) ListDueForReminder(ctx context.Context, now time.Time) ([]domain.Donor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Donor
	for _, row := range r.rows {
		if row.NextEligibleDate == nil || row.NextEligibleDate.After(now) {
			continue
		}
		if row.RemindedForCurrentWindow() {
			continue
		}
		out = append(out, cloneDonor(row))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *donorRepository) MarkReminderSent(ctx context.Context, userID int32, window time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[userID]
	if !ok {
		return false, domain.NotFoundf("donor %d", userID)
	}
	if row.ReminderSentFor != nil && row.ReminderSentFor.Equal(window) {
		return false, nil
	}
	w := window
	row.ReminderSentFor = &w
	return true, nil
}

func (r *donorRepository) ReleaseReminder(ctx context.Context, userID int32, window time.Time, previous *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[userID]
	if !ok {
		return domain.NotFoundf("donor %d", userID)
	}
	if row.ReminderSentFor == nil || !row.ReminderSentFor.Equal(window) {
		return nil
	}
	if previous == nil {
		row.ReminderSentFor = nil
		return nil
	}
	p := *previous
	row.ReminderSentFor = &p
	return nil
}

func (r *donorRepository) RefreshAvailability(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var changed int64
	for _, row := range r.rows {
		if row.AvailabilityOverride || row.IsAvailable || row.NextEligibleDate == nil {
			continue
		}
		if now.Before(*row.NextEligibleDate) {
			continue
		}
		row.IsAvailable = true
		row.UpdatedAt = now
		changed++
	}
	return changed, nil
}
