package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bloodlink-backend/internal/domain"
	"bloodlink-backend/internal/email"
	"bloodlink-backend/internal/logger"
	"bloodlink-backend/internal/metrics"
	"bloodlink-backend/internal/repository"
)

type CreateRequestInput struct {
	PatientName   string
	BloodGroup    domain.BloodGroup
	UnitsNeeded   int32
	HospitalName  string
	ContactPerson string
	ContactNumber string
	Urgency       domain.Urgency
	Address       string
	Location      domain.Coordinate
	RequiredBy    time.Time
}

func (in CreateRequestInput) validate(now time.Time) error {
	switch {
	case strings.TrimSpace(in.PatientName) == "":
		return domain.Validationf("patient name is required")
	case !in.BloodGroup.Valid():
		return domain.Validationf("invalid blood group %q", in.BloodGroup)
	case in.UnitsNeeded <= 0:
		return domain.Validationf("units needed must be positive")
	case strings.TrimSpace(in.HospitalName) == "":
		return domain.Validationf("hospital name is required")
	case strings.TrimSpace(in.ContactPerson) == "" || strings.TrimSpace(in.ContactNumber) == "":
		return domain.Validationf("contact person and number are required")
	case !in.Urgency.Valid():
		return domain.Validationf("invalid urgency %q", in.Urgency)
	case !in.RequiredBy.After(now):
		return domain.Validationf("required by must be in the future")
	case in.Location.Lat < -90 || in.Location.Lat > 90 || in.Location.Lon < -180 || in.Location.Lon > 180:
		return domain.Validationf("location out of range")
	}
	return nil
}

type RequestOptions struct {
	FanoutTimeout     time.Duration
	EmailOnNewRequest bool
}

type bloodRequestService struct {
	requestRepo repository.BloodRequestRepository
	donorRepo   repository.DonorRepository
	matcher     GeoMatcher
	dispatcher  NotificationDispatcher
	events      EventPublisher
	opts        RequestOptions
	now         func() time.Time
}

func NewBloodRequestService(
	requestRepo repository.BloodRequestRepository,
	donorRepo repository.DonorRepository,
	matcher GeoMatcher,
	dispatcher NotificationDispatcher,
	events EventPublisher,
	opts RequestOptions,
) BloodRequestService {
	if opts.FanoutTimeout <= 0 {
		opts.FanoutTimeout = 10 * time.Second
	}
	return &bloodRequestService{
		requestRepo: requestRepo,
		donorRepo:   donorRepo,
		matcher:     matcher,
		dispatcher:  dispatcher,
		events:      events,
		opts:        opts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *bloodRequestService) Create(ctx context.Context, recipientID int32, input CreateRequestInput) (*domain.BloodRequest, int, error) {
	logger.EnterMethod("bloodRequestService.Create", "recipientID", recipientID, "bloodGroup", input.BloodGroup, "urgency", input.Urgency)

	if input.Urgency == "" {
		input.Urgency = domain.UrgencyMedium
	}
	now := s.now()
	if err := input.validate(now); err != nil {
		logger.ExitMethodWithError("bloodRequestService.Create", err)
		return nil, 0, err
	}

	req := &domain.BloodRequest{
		RecipientID:   recipientID,
		PatientName:   strings.TrimSpace(input.PatientName),
		BloodGroup:    input.BloodGroup,
		UnitsNeeded:   input.UnitsNeeded,
		HospitalName:  strings.TrimSpace(input.HospitalName),
		ContactPerson: strings.TrimSpace(input.ContactPerson),
		ContactNumber: strings.TrimSpace(input.ContactNumber),
		Urgency:       input.Urgency,
		Address:       strings.TrimSpace(input.Address),
		Location:      input.Location,
		RequiredBy:    input.RequiredBy.UTC(),
		Status:        domain.RequestStatusPending,
		Responses:     []domain.DonorResponse{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.requestRepo.Create(ctx, req); err != nil {
		if !errors.Is(err, domain.ErrPersistence) {
			err = domain.Persistence("create blood request", err)
		}
		logger.ExitMethodWithError("bloodRequestService.Create", err)
		return nil, 0, err
	}

	s.publish(ctx, domain.NewEvent(domain.EventNewBloodRequest, req))
	notified := s.fanOut(ctx, req)

	logger.ExitMethod("bloodRequestService.Create", "requestID", req.ID, "notifiedDonors", notified)
	return req, notified, nil
}

// fanOut notifies matching donors within the fan-out timeout. Failures
// degrade the fan-out and never fail the request.
func (s *bloodRequestService) fanOut(ctx context.Context, req *domain.BloodRequest) int {
	start := time.Now()
	defer func() { metrics.FanoutDuration.Observe(time.Since(start).Seconds()) }()

	fctx, cancel := context.WithTimeout(ctx, s.opts.FanoutTimeout)
	defer cancel()

	matches, err := s.matcher.MatchForRequest(fctx, req)
	if err != nil {
		metrics.FanoutDegraded.WithLabelValues(degradedReason(fctx, "geo")).Inc()
		logger.Warn("Donor matching failed, request saved without fan-out", "requestID", req.ID, "error", err)
		return 0
	}
	if len(matches) == 0 {
		logger.Info("No matching donors for request", "requestID", req.ID, "bloodGroup", req.BloodGroup)
		return 0
	}

	donorIDs := make([]int32, len(matches))
	for i, m := range matches {
		donorIDs[i] = m.Donor.UserID
	}

	payload := domain.NotificationPayload{
		Type:     domain.NotificationTypeNewRequest,
		Title:    fmt.Sprintf("Urgent: %s blood needed", req.BloodGroup),
		Message:  fmt.Sprintf("%s needs %d unit(s) of %s blood at %s.", req.PatientName, req.UnitsNeeded, req.BloodGroup, req.HospitalName),
		Related:  &domain.EntityRef{Type: domain.EntityBloodRequest, ID: req.ID},
		Priority: domain.PriorityForUrgency(req.Urgency),
	}
	if s.opts.EmailOnNewRequest {
		payload.Email = &domain.EmailContent{
			Template: email.TemplateNewRequest,
			Data:     requestEmailData(req),
		}
	}

	notified, err := s.dispatcher.NotifyBulk(fctx, donorIDs, payload)
	if err != nil {
		metrics.FanoutDegraded.WithLabelValues(degradedReason(fctx, "notify")).Inc()
		logger.Warn("Donor fan-out incomplete", "requestID", req.ID, "matched", len(donorIDs), "notified", notified, "error", err)
	}
	return notified
}

func degradedReason(ctx context.Context, fallback string) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "timeout"
	}
	return fallback
}

func requestEmailData(req *domain.BloodRequest) map[string]any {
	return map[string]any{
		"RequestID":     req.ID,
		"Urgency":       string(req.Urgency),
		"BloodGroup":    string(req.BloodGroup),
		"HospitalName":  req.HospitalName,
		"UnitsNeeded":   req.UnitsNeeded,
		"PatientName":   req.PatientName,
		"RequiredBy":    req.RequiredBy.Format("Jan 2, 2006 15:04 MST"),
		"ContactPerson": req.ContactPerson,
		"ContactNumber": req.ContactNumber,
	}
}

func (s *bloodRequestService) Get(ctx context.Context, id int32) (*domain.BloodRequest, error) {
	return s.requestRepo.GetByID(ctx, id)
}

// Accept closes the request in the donor's favour. Of any number of
// concurrent callers exactly one succeeds; the rest get ErrNotPending.
func (s *bloodRequestService) Accept(ctx context.Context, requestID, donorID int32) (*domain.BloodRequest, error) {
	logger.EnterMethod("bloodRequestService.Accept", "requestID", requestID, "donorID", donorID)

	donor, err := s.donorRepo.GetByID(ctx, donorID)
	if err != nil {
		logger.ExitMethodWithError("bloodRequestService.Accept", err)
		return nil, err
	}
	req, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		logger.ExitMethodWithError("bloodRequestService.Accept", err)
		return nil, err
	}
	if req.RecipientID == donorID {
		err := domain.Validationf("cannot accept your own request")
		logger.ExitMethodWithError("bloodRequestService.Accept", err)
		return nil, err
	}
	if req.Status != domain.RequestStatusPending {
		metrics.Transitions.WithLabelValues(string(domain.RequestStatusFulfilled), "conflict").Inc()
		logger.ExitMethodWithWarning("bloodRequestService.Accept", domain.ErrNotPending, "status", req.Status)
		return nil, domain.ErrNotPending
	}

	if _, ok := req.ResponseFrom(donorID); !ok {
		_, err := s.requestRepo.AppendResponse(ctx, requestID, s.snapshot(donor, req.UnitsNeeded))
		if err != nil {
			s.recordTransition(domain.RequestStatusFulfilled, err)
			logger.ExitMethodWithError("bloodRequestService.Accept", err)
			return nil, err
		}
	}

	updated, err := s.transition(ctx, requestID, domain.RequestStatusFulfilled, &donorID)
	if err != nil {
		logger.ExitMethodWithError("bloodRequestService.Accept", err)
		return nil, err
	}

	s.afterFulfilled(ctx, updated, donor)
	logger.ExitMethod("bloodRequestService.Accept", "requestID", requestID, "fulfilledBy", donorID)
	return updated, nil
}

func (s *bloodRequestService) snapshot(d *domain.Donor, units int32) domain.DonorResponse {
	return domain.DonorResponse{
		DonorID:      d.UserID,
		DonorName:    d.Name,
		DonorPhone:   d.Phone,
		DonorEmail:   d.Email,
		BloodGroup:   d.BloodGroup,
		UnitsOffered: units,
		Status:       domain.ResponseStatusPending,
		RespondedAt:  s.now(),
	}
}

func (s *bloodRequestService) transition(ctx context.Context, requestID int32, to domain.RequestStatus, fulfilledBy *int32) (*domain.BloodRequest, error) {
	t := domain.StatusTransition{
		RequestID:   requestID,
		From:        domain.RequestStatusPending,
		To:          to,
		FulfilledBy: fulfilledBy,
		At:          s.now(),
	}
	updated, err := s.requestRepo.TransitionStatus(ctx, t)
	s.recordTransition(to, err)
	return updated, err
}

func (s *bloodRequestService) recordTransition(to domain.RequestStatus, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrConflict):
		result = "conflict"
	case errors.Is(err, domain.ErrNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	metrics.Transitions.WithLabelValues(string(to), result).Inc()
}

// afterFulfilled runs after the transition is durable, so nothing here can
// undo it. Notification failures are only logged.
func (s *bloodRequestService) afterFulfilled(ctx context.Context, req *domain.BloodRequest, donor *domain.Donor) {
	related := &domain.EntityRef{Type: domain.EntityBloodRequest, ID: req.ID}

	_, err := s.dispatcher.Notify(ctx, []int32{req.RecipientID}, domain.NotificationPayload{
		Type:     domain.NotificationTypeRequestFulfilled,
		Title:    "Donor found for your request",
		Message:  fmt.Sprintf("%s accepted your %s blood request for %s.", donor.Name, req.BloodGroup, req.PatientName),
		Related:  related,
		Priority: domain.PriorityUrgent,
		Email: &domain.EmailContent{
			Template: email.TemplateRequestFulfilled,
			Data: map[string]any{
				"RequestID":   req.ID,
				"DonorName":   donor.Name,
				"DonorPhone":  donor.Phone,
				"PatientName": req.PatientName,
				"BloodGroup":  string(req.BloodGroup),
			},
		},
	})
	if err != nil {
		logger.Error("Failed to notify recipient of fulfilment", "requestID", req.ID, "recipientID", req.RecipientID, "error", err)
	}

	_, err = s.dispatcher.Notify(ctx, []int32{donor.UserID}, domain.NotificationPayload{
		Type:     domain.NotificationTypeSystem,
		Title:    "Thank you for accepting",
		Message:  fmt.Sprintf("Please contact %s at %s to arrange the donation at %s.", req.ContactPerson, req.ContactNumber, req.HospitalName),
		Related:  related,
		Priority: domain.PriorityHigh,
	})
	if err != nil {
		logger.Error("Failed to notify accepting donor", "requestID", req.ID, "donorID", donor.UserID, "error", err)
	}

	s.notifyOtherResponders(ctx, req, donor.UserID, "This request has been fulfilled by another donor. Thank you for offering.")

	s.publish(ctx, domain.NewTargetedEvent(domain.EventDonorAccepted, req.RecipientID, domain.DonorAcceptedData{
		RequestID: req.ID,
		DonorID:   donor.UserID,
		DonorName: donor.Name,
	}))
	s.publishStatus(ctx, req)
}

func (s *bloodRequestService) notifyOtherResponders(ctx context.Context, req *domain.BloodRequest, except int32, message string) {
	var others []int32
	for _, id := range req.Responders() {
		if id != except {
			others = append(others, id)
		}
	}
	if len(others) == 0 {
		return
	}
	_, err := s.dispatcher.Notify(ctx, others, domain.NotificationPayload{
		Type:     domain.NotificationTypeSystem,
		Title:    fmt.Sprintf("Request for %s is %s", req.PatientName, req.Status),
		Message:  message,
		Related:  &domain.EntityRef{Type: domain.EntityBloodRequest, ID: req.ID},
		Priority: domain.PriorityLow,
	})
	if err != nil {
		logger.Error("Failed to notify responders", "requestID", req.ID, "count", len(others), "error", err)
	}
}

func (s *bloodRequestService) publishStatus(ctx context.Context, req *domain.BloodRequest) {
	s.publish(ctx, domain.NewEvent(domain.EventRequestStatusChanged, domain.RequestStatusChangedData{
		RequestID:   req.ID,
		Status:      req.Status,
		FulfilledBy: req.FulfilledBy,
	}))
}

func (s *bloodRequestService) publish(ctx context.Context, ev domain.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		logger.Warn("Failed to publish realtime event", "event", ev.Name, "error", err)
	}
}

// RecordResponse stores a donor's offer on a pending request and tells the
// recipient about it.
func (s *bloodRequestService) RecordResponse(ctx context.Context, requestID int32, resp domain.DonorResponse) (*domain.BloodRequest, error) {
	logger.EnterMethod("bloodRequestService.RecordResponse", "requestID", requestID, "donorID", resp.DonorID)

	if resp.DonorID <= 0 {
		err := domain.Validationf("donor id is required")
		logger.ExitMethodWithError("bloodRequestService.RecordResponse", err)
		return nil, err
	}
	if resp.UnitsOffered <= 0 {
		resp.UnitsOffered = 1
	}
	if resp.BloodGroup != "" && !resp.BloodGroup.Valid() {
		err := domain.Validationf("invalid blood group %q", resp.BloodGroup)
		logger.ExitMethodWithError("bloodRequestService.RecordResponse", err)
		return nil, err
	}
	if resp.DonorName == "" || resp.BloodGroup == "" {
		donor, err := s.donorRepo.GetByID(ctx, resp.DonorID)
		if err != nil {
			logger.ExitMethodWithError("bloodRequestService.RecordResponse", err)
			return nil, err
		}
		snap := s.snapshot(donor, resp.UnitsOffered)
		if resp.DonorName != "" {
			snap.DonorName = resp.DonorName
		}
		if resp.DonorPhone != "" {
			snap.DonorPhone = resp.DonorPhone
		}
		if resp.DonorEmail != "" {
			snap.DonorEmail = resp.DonorEmail
		}
		resp = snap
	}
	resp.Status = domain.ResponseStatusPending
	resp.RespondedAt = s.now()

	updated, err := s.requestRepo.AppendResponse(ctx, requestID, resp)
	if err != nil {
		logger.ExitMethodWithError("bloodRequestService.RecordResponse", err)
		return nil, err
	}

	_, err = s.dispatcher.Notify(ctx, []int32{updated.RecipientID}, domain.NotificationPayload{
		Type:     domain.NotificationTypeSystem,
		Title:    "A donor responded to your request",
		Message:  fmt.Sprintf("%s offered %d unit(s) of %s blood for %s.", resp.DonorName, resp.UnitsOffered, resp.BloodGroup, updated.PatientName),
		Related:  &domain.EntityRef{Type: domain.EntityBloodRequest, ID: updated.ID},
		Priority: domain.PriorityForUrgency(updated.Urgency),
	})
	if err != nil {
		logger.Error("Failed to notify recipient of response", "requestID", requestID, "error", err)
	}

	logger.ExitMethod("bloodRequestService.RecordResponse", "responses", len(updated.Responses))
	return updated, nil
}

func (s *bloodRequestService) UpdateStatus(ctx context.Context, requestID int32, status domain.RequestStatus, fulfilledBy *int32) (*domain.BloodRequest, error) {
	logger.EnterMethod("bloodRequestService.UpdateStatus", "requestID", requestID, "status", status)

	switch status {
	case domain.RequestStatusCancelled:
		if fulfilledBy != nil {
			err := domain.Validationf("fulfilled by is only valid for fulfilled requests")
			logger.ExitMethodWithError("bloodRequestService.UpdateStatus", err)
			return nil, err
		}
		return s.Cancel(ctx, requestID)
	case domain.RequestStatusFulfilled:
	default:
		err := domain.Validationf("status must be fulfilled or cancelled, got %q", status)
		logger.ExitMethodWithError("bloodRequestService.UpdateStatus", err)
		return nil, err
	}

	if fulfilledBy != nil {
		return s.Accept(ctx, requestID, *fulfilledBy)
	}

	updated, err := s.transition(ctx, requestID, domain.RequestStatusFulfilled, nil)
	if err != nil {
		logger.ExitMethodWithError("bloodRequestService.UpdateStatus", err)
		return nil, err
	}
	s.notifyOtherResponders(ctx, updated, 0, "This request has been marked fulfilled. Thank you for offering.")
	s.publishStatus(ctx, updated)
	logger.ExitMethod("bloodRequestService.UpdateStatus", "requestID", requestID)
	return updated, nil
}

// Cancel is idempotent: cancelling a cancelled request returns it
// unchanged. A fulfilled request cannot be cancelled.
func (s *bloodRequestService) Cancel(ctx context.Context, requestID int32) (*domain.BloodRequest, error) {
	logger.EnterMethod("bloodRequestService.Cancel", "requestID", requestID)

	updated, err := s.transition(ctx, requestID, domain.RequestStatusCancelled, nil)
	if errors.Is(err, domain.ErrNotPending) {
		current, getErr := s.requestRepo.GetByID(ctx, requestID)
		if getErr != nil {
			logger.ExitMethodWithError("bloodRequestService.Cancel", getErr)
			return nil, getErr
		}
		if current.Status == domain.RequestStatusCancelled {
			logger.ExitMethod("bloodRequestService.Cancel", "requestID", requestID, "alreadyCancelled", true)
			return current, nil
		}
		logger.ExitMethodWithError("bloodRequestService.Cancel", err, "status", current.Status)
		return nil, err
	}
	if err != nil {
		logger.ExitMethodWithError("bloodRequestService.Cancel", err)
		return nil, err
	}

	s.notifyOtherResponders(ctx, updated, 0, "The recipient cancelled this request. Thank you for offering.")
	s.publishStatus(ctx, updated)
	logger.ExitMethod("bloodRequestService.Cancel", "requestID", requestID)
	return updated, nil
}

func (s *bloodRequestService) Delete(ctx context.Context, requestID int32) error {
	logger.EnterMethod("bloodRequestService.Delete", "requestID", requestID)
	if err := s.requestRepo.Delete(ctx, requestID); err != nil {
		logger.ExitMethodWithError("bloodRequestService.Delete", err)
		return err
	}
	s.publish(ctx, domain.NewEvent(domain.EventRequestDeleted, domain.RequestDeletedData{RequestID: requestID}))
	logger.ExitMethod("bloodRequestService.Delete", "requestID", requestID)
	return nil
}

func (s *bloodRequestService) List(ctx context.Context, status domain.RequestStatus, page, pageSize int32) ([]domain.BloodRequest, int32, error) {
	if status != "" && !status.Valid() {
		return nil, 0, domain.Validationf("invalid status %q", status)
	}
	page, pageSize = domain.NormalizePage(page, pageSize)
	return s.requestRepo.ListByStatus(ctx, status, page, pageSize)
}

func (s *bloodRequestService) ListByRecipient(ctx context.Context, recipientID int32, page, pageSize int32) ([]domain.BloodRequest, int32, error) {
	page, pageSize = domain.NormalizePage(page, pageSize)
	return s.requestRepo.ListByRecipient(ctx, recipientID, page, pageSize)
}

// NearbyForDonor lists pending requests of the donor's blood group, nearest
// first. Requests the donor created are skipped.
func (s *bloodRequestService) NearbyForDonor(ctx context.Context, donorID int32, radiusKm float64) ([]domain.RequestMatch, error) {
	donor, err := s.donorRepo.GetByID(ctx, donorID)
	if err != nil {
		return nil, err
	}
	reqs, err := s.requestRepo.ListPendingByBloodGroup(ctx, donor.BloodGroup, 0)
	if err != nil {
		return nil, err
	}

	candidates := reqs[:0]
	for _, r := range reqs {
		if r.RecipientID != donorID {
			candidates = append(candidates, r)
		}
	}
	return s.matcher.RankRequests(donor.Location, radiusKm, candidates), nil
}
