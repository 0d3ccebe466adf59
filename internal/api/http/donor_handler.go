package http

import (
	"errors"
	"net/http"

	"bloodlink-backend/internal/domain"
)

func mapDonorMatches(matches []domain.DonorMatch) []donorMatchDTO {
	out := make([]donorMatchDTO, len(matches))
	for i := range matches {
		out[i] = donorMatchDTO{
			Donor:           mapDonor(&matches[i].Donor),
			DistanceKm:      matches[i].DistanceKm,
			LocationUnknown: matches[i].LocationUnknown,
		}
	}
	return out
}

// NearbyDonors searches available donors around ?lat&lon. Without
// coordinates, or when they are the unknown sentinel, it falls back to a
// blood-group-only search.
func (h *Handler) NearbyDonors(w http.ResponseWriter, r *http.Request) {
	lat, hasLat, err := queryFloat(r, "lat")
	if err != nil {
		writeError(w, r, err)
		return
	}
	lon, hasLon, err := queryFloat(r, "lon")
	if err != nil {
		writeError(w, r, err)
		return
	}
	radius, _, err := queryFloat(r, "radius")
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter := domain.DonorFilter{OnlyAvailable: true}
	if bg := r.URL.Query().Get("bloodGroup"); bg != "" {
		filter.BloodGroup = domain.BloodGroup(bg)
		if !filter.BloodGroup.Valid() {
			writeError(w, r, domain.Validationf("invalid blood group %q", bg))
			return
		}
	}
	if p, ok := PrincipalFromContext(r.Context()); ok {
		filter.ExcludeUserIDs = []int32{p.UserID}
	}

	var matches []domain.DonorMatch
	origin := domain.Coordinate{Lat: lat, Lon: lon}
	if hasLat && hasLon {
		matches, err = h.matcher.FindNearby(r.Context(), origin, radius, filter)
	}
	if !hasLat || !hasLon || errors.Is(err, domain.ErrLocationUnknown) {
		matches, err = h.matcher.FindByBloodGroup(r.Context(), filter)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapDonorMatches(matches))
}

func (h *Handler) RecordDonation(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	var body recordDonationBody
	if err := h.decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.donors.RecordDonation(r.Context(), p.UserID, body.DonationDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapDonor(d))
}

func (h *Handler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	var body availabilityBody
	if err := h.decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.donors.SetAvailability(r.Context(), p.UserID, *body.IsAvailable)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapDonor(d))
}

type eligibilityResponse struct {
	Donor       donorDTO       `json:"donor"`
	Eligibility eligibilityDTO `json:"eligibility"`
}

func (h *Handler) GetEligibility(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	d, e, err := h.donors.GetEligibility(r.Context(), p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eligibilityResponse{Donor: mapDonor(d), Eligibility: mapEligibility(e)})
}
