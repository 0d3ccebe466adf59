package domain

import "time"

// Donor is the donor profile, keyed by the donor's user id.
type Donor struct {
	UserID               int32      `json:"user_id"`
	Name                 string     `json:"name"`
	Email                string     `json:"email"`
	Phone                string     `json:"phone"`
	BloodGroup           BloodGroup `json:"blood_group"`
	Location             Coordinate `json:"location"`
	IsAvailable          bool       `json:"is_available"`
	AvailabilityOverride bool       `json:"availability_override"`
	LastDonationDate     *time.Time `json:"last_donation_date,omitempty"`
	NextEligibleDate     *time.Time `json:"next_eligible_date,omitempty"`
	TotalDonations       int32      `json:"total_donations"`
	// ReminderSentFor holds the NextEligibleDate the last eligibility
	// reminder was sent for. Equal to NextEligibleDate means the current
	// window is already reminded.
	ReminderSentFor *time.Time `json:"reminder_sent_for,omitempty"`
	PushTokens      []string   `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// RemindedForCurrentWindow reports whether a reminder was already sent for
// the donor's current eligibility window.
func (d *Donor) RemindedForCurrentWindow() bool {
	if d.NextEligibleDate == nil || d.ReminderSentFor == nil {
		return false
	}
	return d.ReminderSentFor.Equal(*d.NextEligibleDate)
}

// DonorFilter restricts donor candidate queries.
type DonorFilter struct {
	BloodGroup     BloodGroup
	OnlyAvailable  bool
	ExcludeUserIDs []int32
}

// Excludes reports whether userID is filtered out by ExcludeUserIDs.
func (f DonorFilter) Excludes(userID int32) bool {
	for _, id := range f.ExcludeUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Matches reports whether d satisfies the blood group and availability parts of f.
func (f DonorFilter) Matches(d *Donor) bool {
	if f.BloodGroup != "" && d.BloodGroup != f.BloodGroup {
		return false
	}
	if f.OnlyAvailable && !d.IsAvailable {
		return false
	}
	return !f.Excludes(d.UserID)
}

// DonorMatch is a candidate donor returned by the geo matcher.
type DonorMatch struct {
	Donor           Donor   `json:"donor"`
	DistanceKm      float64 `json:"distance_km"`
	LocationUnknown bool    `json:"location_unknown"`
}
