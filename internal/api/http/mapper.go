package http

import (
	"time"

	"bloodlink-backend/internal/domain"
	"bloodlink-backend/internal/service"
)

type donorResponseDTO struct {
	DonorID      int32     `json:"donorId"`
	DonorName    string    `json:"donorName"`
	DonorPhone   string    `json:"donorPhone"`
	DonorEmail   string    `json:"donorEmail"`
	BloodGroup   string    `json:"bloodGroup"`
	UnitsOffered int32     `json:"unitsOffered"`
	Status       string    `json:"status"`
	RespondedAt  time.Time `json:"respondedAt"`
}

type bloodRequestDTO struct {
	ID            int32              `json:"id"`
	RecipientID   int32              `json:"recipientId"`
	PatientName   string             `json:"patientName"`
	BloodGroup    string             `json:"bloodGroup"`
	UnitsNeeded   int32              `json:"unitsNeeded"`
	HospitalName  string             `json:"hospitalName"`
	ContactPerson string             `json:"contactPerson"`
	ContactNumber string             `json:"contactNumber"`
	Urgency       string             `json:"urgency"`
	Address       string             `json:"address"`
	Latitude      float64            `json:"latitude"`
	Longitude     float64            `json:"longitude"`
	RequiredBy    time.Time          `json:"requiredBy"`
	Status        string             `json:"status"`
	FulfilledBy   *int32             `json:"fulfilledBy,omitempty"`
	FulfilledAt   *time.Time         `json:"fulfilledAt,omitempty"`
	Responses     []donorResponseDTO `json:"responses"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

func mapBloodRequest(r *domain.BloodRequest) bloodRequestDTO {
	dto := bloodRequestDTO{
		ID:            r.ID,
		RecipientID:   r.RecipientID,
		PatientName:   r.PatientName,
		BloodGroup:    string(r.BloodGroup),
		UnitsNeeded:   r.UnitsNeeded,
		HospitalName:  r.HospitalName,
		ContactPerson: r.ContactPerson,
		ContactNumber: r.ContactNumber,
		Urgency:       string(r.Urgency),
		Address:       r.Address,
		Latitude:      r.Location.Lat,
		Longitude:     r.Location.Lon,
		RequiredBy:    r.RequiredBy,
		Status:        string(r.Status),
		FulfilledBy:   r.FulfilledBy,
		FulfilledAt:   r.FulfilledAt,
		Responses:     make([]donorResponseDTO, 0, len(r.Responses)),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	for _, resp := range r.Responses {
		dto.Responses = append(dto.Responses, donorResponseDTO{
			DonorID:      resp.DonorID,
			DonorName:    resp.DonorName,
			DonorPhone:   resp.DonorPhone,
			DonorEmail:   resp.DonorEmail,
			BloodGroup:   string(resp.BloodGroup),
			UnitsOffered: resp.UnitsOffered,
			Status:       string(resp.Status),
			RespondedAt:  resp.RespondedAt,
		})
	}
	return dto
}

func mapBloodRequests(reqs []domain.BloodRequest) []bloodRequestDTO {
	out := make([]bloodRequestDTO, len(reqs))
	for i := range reqs {
		out[i] = mapBloodRequest(&reqs[i])
	}
	return out
}

type donorDTO struct {
	UserID           int32      `json:"userId"`
	Name             string     `json:"name"`
	Phone            string     `json:"phone"`
	BloodGroup       string     `json:"bloodGroup"`
	Latitude         float64    `json:"latitude"`
	Longitude        float64    `json:"longitude"`
	IsAvailable      bool       `json:"isAvailable"`
	LastDonationDate *time.Time `json:"lastDonationDate,omitempty"`
	NextEligibleDate *time.Time `json:"nextEligibleDate,omitempty"`
	TotalDonations   int32      `json:"totalDonations"`
}

func mapDonor(d *domain.Donor) donorDTO {
	return donorDTO{
		UserID:           d.UserID,
		Name:             d.Name,
		Phone:            d.Phone,
		BloodGroup:       string(d.BloodGroup),
		Latitude:         d.Location.Lat,
		Longitude:        d.Location.Lon,
		IsAvailable:      d.IsAvailable,
		LastDonationDate: d.LastDonationDate,
		NextEligibleDate: d.NextEligibleDate,
		TotalDonations:   d.TotalDonations,
	}
}

type donorMatchDTO struct {
	Donor           donorDTO `json:"donor"`
	DistanceKm      float64  `json:"distanceKm"`
	LocationUnknown bool     `json:"locationUnknown"`
}

type requestMatchDTO struct {
	Request         bloodRequestDTO `json:"request"`
	DistanceKm      float64         `json:"distanceKm"`
	LocationUnknown bool            `json:"locationUnknown"`
}

type eligibilityDTO struct {
	Known            bool       `json:"known"`
	IsAvailable      bool       `json:"isAvailable"`
	NextEligibleDate *time.Time `json:"nextEligibleDate,omitempty"`
	DaysRemaining    int        `json:"daysRemaining"`
}

func mapEligibility(e service.Eligibility) eligibilityDTO {
	dto := eligibilityDTO{Known: e.Known, IsAvailable: e.IsAvailable, DaysRemaining: e.DaysRemaining}
	if e.Known {
		next := e.NextEligibleDate
		dto.NextEligibleDate = &next
	}
	return dto
}

type relatedEntityDTO struct {
	Type string `json:"type"`
	ID   int32  `json:"id"`
}

type notificationDTO struct {
	ID            int32             `json:"id"`
	Type          string            `json:"type"`
	Title         string            `json:"title"`
	Message       string            `json:"message"`
	RelatedEntity *relatedEntityDTO `json:"relatedEntity,omitempty"`
	Priority      string            `json:"priority"`
	IsRead        bool              `json:"isRead"`
	CreatedAt     time.Time         `json:"createdAt"`
}

func mapNotifications(notes []domain.Notification) []notificationDTO {
	out := make([]notificationDTO, len(notes))
	for i, n := range notes {
		out[i] = notificationDTO{
			ID:        n.ID,
			Type:      string(n.Type),
			Title:     n.Title,
			Message:   n.Message,
			Priority:  string(n.Priority),
			IsRead:    n.IsRead,
			CreatedAt: n.CreatedAt,
		}
		if n.Related != nil {
			out[i].RelatedEntity = &relatedEntityDTO{Type: string(n.Related.Type), ID: n.Related.ID}
		}
	}
	return out
}
