package http

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"bloodlink-backend/internal/domain"
	"bloodlink-backend/internal/service"
)

const maxBodyBytes = 1 << 20

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("bloodgroup", func(fl validator.FieldLevel) bool {
		return domain.BloodGroup(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("urgency", func(fl validator.FieldLevel) bool {
		u := fl.Field().String()
		return u == "" || domain.Urgency(u).Valid()
	})
	return v
}

type createBloodRequestBody struct {
	PatientName   string    `json:"patientName" validate:"required,max=200"`
	BloodGroup    string    `json:"bloodGroup" validate:"required,bloodgroup"`
	UnitsNeeded   int32     `json:"unitsNeeded" validate:"required,min=1,max=50"`
	HospitalName  string    `json:"hospitalName" validate:"required,max=200"`
	ContactPerson string    `json:"contactPerson" validate:"required,max=200"`
	ContactNumber string    `json:"contactNumber" validate:"required,max=32"`
	Urgency       string    `json:"urgency" validate:"urgency"`
	Address       string    `json:"address" validate:"max=500"`
	Latitude      float64   `json:"latitude" validate:"latitude"`
	Longitude     float64   `json:"longitude" validate:"longitude"`
	RequiredBy    time.Time `json:"requiredBy" validate:"required"`
}

func (b createBloodRequestBody) input() service.CreateRequestInput {
	return service.CreateRequestInput{
		PatientName:   b.PatientName,
		BloodGroup:    domain.BloodGroup(b.BloodGroup),
		UnitsNeeded:   b.UnitsNeeded,
		HospitalName:  b.HospitalName,
		ContactPerson: b.ContactPerson,
		ContactNumber: b.ContactNumber,
		Urgency:       domain.Urgency(b.Urgency),
		Address:       b.Address,
		Location:      domain.Coordinate{Lat: b.Latitude, Lon: b.Longitude},
		RequiredBy:    b.RequiredBy,
	}
}

// respondBody carries an optional contact snapshot. Empty fields are
// filled from the donor profile.
type respondBody struct {
	DonorID      int32  `json:"donorId" validate:"omitempty,gt=0"`
	DonorName    string `json:"donorName" validate:"max=200"`
	DonorPhone   string `json:"donorPhone" validate:"max=32"`
	DonorEmail   string `json:"donorEmail" validate:"omitempty,email"`
	BloodGroup   string `json:"bloodGroup" validate:"omitempty,bloodgroup"`
	UnitsOffered int32  `json:"unitsOffered" validate:"omitempty,min=1,max=10"`
}

func (b respondBody) response(donorID int32) domain.DonorResponse {
	return domain.DonorResponse{
		DonorID:      donorID,
		DonorName:    b.DonorName,
		DonorPhone:   b.DonorPhone,
		DonorEmail:   b.DonorEmail,
		BloodGroup:   domain.BloodGroup(b.BloodGroup),
		UnitsOffered: b.UnitsOffered,
	}
}

type updateStatusBody struct {
	Status      string `json:"status" validate:"required,oneof=fulfilled cancelled"`
	FulfilledBy *int32 `json:"fulfilledBy" validate:"omitempty,gt=0"`
}

type recordDonationBody struct {
	DonationDate time.Time `json:"donationDate" validate:"required"`
}

type availabilityBody struct {
	IsAvailable *bool `json:"isAvailable" validate:"required"`
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.Validationf("invalid request body: %v", err)
	}
	return h.validate.Struct(dst)
}

func pathID(r *http.Request) (int32, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 32)
	if err != nil || id <= 0 {
		return 0, domain.Validationf("invalid id %q", mux.Vars(r)["id"])
	}
	return int32(id), nil
}

func queryInt(r *http.Request, key string, def int32) (int32, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, domain.Validationf("invalid %s %q", key, raw)
	}
	return int32(v), nil
}

func queryFloat(r *http.Request, key string) (float64, bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, domain.Validationf("invalid %s %q", key, raw)
	}
	return v, true, nil
}

func pagination(r *http.Request) (int32, int32, error) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	pageSize, err := queryInt(r, "pageSize", domain.DefaultPageSize)
	if err != nil {
		return 0, 0, err
	}
	if page < 1 {
		return 0, 0, domain.Validationf("invalid page %d", page)
	}
	if pageSize < 1 {
		return 0, 0, domain.Validationf("invalid pageSize %d", pageSize)
	}
	page, pageSize = domain.NormalizePage(page, pageSize)
	return page, pageSize, nil
}

type listResponse[T any] struct {
	Items    []T   `json:"items"`
	Total    int32 `json:"total"`
	Page     int32 `json:"page"`
	PageSize int32 `json:"pageSize"`
}
