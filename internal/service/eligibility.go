package service

import (
	"math"
	"time"

	"bloodlink-backend/internal/domain"
)

// EligibilityCooldown is the minimum gap between two whole-blood donations.
const EligibilityCooldown = 90 * 24 * time.Hour

type Eligibility struct {
	NextEligibleDate time.Time `json:"next_eligible_date"`
	IsAvailable      bool      `json:"is_available"`
	// Known is false when no donation was ever recorded; the donor's
	// explicit availability then stands.
	Known         bool `json:"known"`
	DaysRemaining int  `json:"days_remaining"`
}

// ComputeEligibility is pure: the same inputs always give the same result.
// A donor becomes eligible at exactly last donation + 90 days.
func ComputeEligibility(lastDonation *time.Time, now time.Time) Eligibility {
	if lastDonation == nil {
		return Eligibility{}
	}

	next := lastDonation.Add(EligibilityCooldown)
	e := Eligibility{
		NextEligibleDate: next,
		IsAvailable:      !now.Before(next),
		Known:            true,
	}
	if !e.IsAvailable {
		e.DaysRemaining = int(math.Ceil(next.Sub(now).Hours() / 24))
	}
	return e
}

// ApplyEligibility recomputes the derived fields of d. An explicit
// availability override is left untouched.
func ApplyEligibility(d *domain.Donor, now time.Time) Eligibility {
	e := ComputeEligibility(d.LastDonationDate, now)
	if !e.Known {
		return e
	}
	next := e.NextEligibleDate
	d.NextEligibleDate = &next
	if !d.AvailabilityOverride {
		d.IsAvailable = e.IsAvailable
	}
	return e
}
