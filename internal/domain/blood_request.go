package domain

import "time"

type BloodGroup string

const (
	BloodGroupAPos  BloodGroup = "A+"
	BloodGroupANeg  BloodGroup = "A-"
	BloodGroupBPos  BloodGroup = "B+"
	BloodGroupBNeg  BloodGroup = "B-"
	BloodGroupABPos BloodGroup = "AB+"
	BloodGroupABNeg BloodGroup = "AB-"
	BloodGroupOPos  BloodGroup = "O+"
	BloodGroupONeg  BloodGroup = "O-"
)

// BloodGroups lists the eight ABO/Rh combinations.
var BloodGroups = []BloodGroup{
	BloodGroupAPos, BloodGroupANeg,
	BloodGroupBPos, BloodGroupBNeg,
	BloodGroupABPos, BloodGroupABNeg,
	BloodGroupOPos, BloodGroupONeg,
}

func (g BloodGroup) Valid() bool {
	for _, bg := range BloodGroups {
		if g == bg {
			return true
		}
	}
	return false
}

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusFulfilled RequestStatus = "fulfilled"
	RequestStatusCancelled RequestStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed out of s.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusFulfilled || s == RequestStatusCancelled
}

func (s RequestStatus) Valid() bool {
	return s == RequestStatusPending || s.Terminal()
}

// CanTransition allows only pending -> fulfilled and pending -> cancelled.
func (s RequestStatus) CanTransition(to RequestStatus) bool {
	return s == RequestStatusPending && to.Terminal()
}

type ResponseStatus string

const (
	ResponseStatusPending  ResponseStatus = "pending"
	ResponseStatusAccepted ResponseStatus = "accepted"
	ResponseStatusDeclined ResponseStatus = "declined"
)

// DonorResponse is an offer by a donor, embedded in its BloodRequest.
// Contact fields are a snapshot taken when the donor responded.
type DonorResponse struct {
	DonorID      int32          `json:"donor_id"`
	DonorName    string         `json:"donor_name"`
	DonorPhone   string         `json:"donor_phone"`
	DonorEmail   string         `json:"donor_email"`
	BloodGroup   BloodGroup     `json:"blood_group"`
	UnitsOffered int32          `json:"units_offered"`
	Status       ResponseStatus `json:"status"`
	RespondedAt  time.Time      `json:"responded_at"`
}

type BloodRequest struct {
	ID            int32           `json:"id"`
	RecipientID   int32           `json:"recipient_id"`
	PatientName   string          `json:"patient_name"`
	BloodGroup    BloodGroup      `json:"blood_group"`
	UnitsNeeded   int32           `json:"units_needed"`
	HospitalName  string          `json:"hospital_name"`
	ContactPerson string          `json:"contact_person"`
	ContactNumber string          `json:"contact_number"`
	Urgency       Urgency         `json:"urgency"`
	Address       string          `json:"address"`
	Location      Coordinate      `json:"location"`
	RequiredBy    time.Time       `json:"required_by"`
	Status        RequestStatus   `json:"status"`
	FulfilledBy   *int32          `json:"fulfilled_by,omitempty"`
	FulfilledAt   *time.Time      `json:"fulfilled_at,omitempty"`
	Responses     []DonorResponse `json:"responses"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Responders returns the distinct donor ids that offered on the request.
func (r *BloodRequest) Responders() []int32 {
	seen := make(map[int32]struct{}, len(r.Responses))
	ids := make([]int32, 0, len(r.Responses))
	for _, resp := range r.Responses {
		if _, ok := seen[resp.DonorID]; ok {
			continue
		}
		seen[resp.DonorID] = struct{}{}
		ids = append(ids, resp.DonorID)
	}
	return ids
}

// StatusTransition describes a conditional status write. The write only
// applies when the stored status equals From.
type StatusTransition struct {
	RequestID   int32
	From        RequestStatus
	To          RequestStatus
	FulfilledBy *int32
	At          time.Time
}

// RequestMatch is a pending request ranked for a donor.
type RequestMatch struct {
	Request         BloodRequest `json:"request"`
	DistanceKm      float64      `json:"distance_km"`
	LocationUnknown bool         `json:"location_unknown"`
}

// OwnedBy reports whether p created the request.
func (r *BloodRequest) OwnedBy(p Principal) bool {
	return r.RecipientID == p.UserID
}

// ResponseFrom returns the donor's response, if any.
func (r *BloodRequest) ResponseFrom(donorID int32) (DonorResponse, bool) {
	for _, resp := range r.Responses {
		if resp.DonorID == donorID {
			return resp, true
		}
	}
	return DonorResponse{}, false
}
