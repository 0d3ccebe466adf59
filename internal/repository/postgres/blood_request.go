package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"bloodlink-backend/internal/domain"
	"bloodlink-backend/internal/logger"
	"bloodlink-backend/internal/repository"
)

const bloodRequestColumns = `id, recipient_id, patient_name, blood_group, units_needed, hospital_name,
	contact_person, contact_number, urgency, address, latitude, longitude, required_by,
	status, fulfilled_by, fulfilled_at, created_at, updated_at`

type bloodRequestRepository struct {
	db *sql.DB
}

func NewBloodRequestRepository(db *sql.DB) repository.BloodRequestRepository {
	return &bloodRequestRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBloodRequest(s rowScanner) (*domain.BloodRequest, error) {
	var b domain.BloodRequest
	var fulfilledBy sql.NullInt32
	var fulfilledAt sql.NullTime
	err := s.Scan(
		&b.ID, &b.RecipientID, &b.PatientName, &b.BloodGroup, &b.UnitsNeeded, &b.HospitalName,
		&b.ContactPerson, &b.ContactNumber, &b.Urgency, &b.Address, &b.Location.Lat, &b.Location.Lon, &b.RequiredBy,
		&b.Status, &fulfilledBy, &fulfilledAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if fulfilledBy.Valid {
		v := fulfilledBy.Int32
		b.FulfilledBy = &v
	}
	if fulfilledAt.Valid {
		v := fulfilledAt.Time
		b.FulfilledAt = &v
	}
	b.Responses = []domain.DonorResponse{}
	return &b, nil
}

func (r *bloodRequestRepository) Create(ctx context.Context, b *domain.BloodRequest) error {
	logger.EnterMethod("bloodRequestRepository.Create", "recipientID", b.RecipientID, "bloodGroup", b.BloodGroup)

	query := `INSERT INTO blood_requests (recipient_id, patient_name, blood_group, units_needed, hospital_name,
	          contact_person, contact_number, urgency, address, latitude, longitude, required_by, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14) RETURNING id`
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	logger.DatabaseCall("INSERT", "blood_requests", "recipientID", b.RecipientID)
	err := r.db.QueryRowContext(ctx, query,
		b.RecipientID, b.PatientName, b.BloodGroup, b.UnitsNeeded, b.HospitalName,
		b.ContactPerson, b.ContactNumber, b.Urgency, b.Address, b.Location.Lat, b.Location.Lon, b.RequiredBy,
		b.Status, now,
	).Scan(&b.ID)
	logger.DatabaseResult("INSERT", 1, err, "requestID", b.ID)
	if err != nil {
		logger.ExitMethodWithError("bloodRequestRepository.Create", err)
		return domain.Persistence("create blood request", err)
	}

	if b.Responses == nil {
		b.Responses = []domain.DonorResponse{}
	}
	logger.ExitMethod("bloodRequestRepository.Create", "requestID", b.ID)
	return nil
}

func (r *bloodRequestRepository) GetByID(ctx context.Context, id int32) (*domain.BloodRequest, error) {
	query := `SELECT ` + bloodRequestColumns + ` FROM blood_requests WHERE id = $1`
	b, err := scanBloodRequest(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("blood request %d", id)
		}
		return nil, err
	}

	responses, err := r.responsesFor(ctx, id)
	if err != nil {
		return nil, err
	}
	b.Responses = responses
	return b, nil
}

func (r *bloodRequestRepository) responsesFor(ctx context.Context, requestID int32) ([]domain.DonorResponse, error) {
	query := `SELECT donor_id, donor_name, donor_phone, donor_email, blood_group, units_offered, status, responded_at
	          FROM donor_responses WHERE request_id = $1 ORDER BY responded_at, id`
	rows, err := r.db.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	responses := []domain.DonorResponse{}
	for rows.Next() {
		var resp domain.DonorResponse
		if err := rows.Scan(&resp.DonorID, &resp.DonorName, &resp.DonorPhone, &resp.DonorEmail,
			&resp.BloodGroup, &resp.UnitsOffered, &resp.Status, &resp.RespondedAt); err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	return responses, rows.Err()
}

// missingOrClosed tells a vanished row apart from a failed precondition
// after a conditional write matched nothing.
func (r *bloodRequestRepository) missingOrClosed(ctx context.Context, id int32) error {
	var status domain.RequestStatus
	err := r.db.QueryRowContext(ctx, `SELECT status FROM blood_requests WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFoundf("blood request %d", id)
	}
	if err != nil {
		return err
	}
	return domain.ErrNotPending
}

func (r *bloodRequestRepository) TransitionStatus(ctx context.Context, t domain.StatusTransition) (*domain.BloodRequest, error) {
	logger.EnterMethod("bloodRequestRepository.TransitionStatus", "requestID", t.RequestID, "from", t.From, "to", t.To)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		logger.ExitMethodWithError("bloodRequestRepository.TransitionStatus", err)
		return nil, domain.Persistence("begin transition", err)
	}
	defer tx.Rollback()

	var fulfilledBy sql.NullInt32
	var fulfilledAt sql.NullTime
	if t.To == domain.RequestStatusFulfilled {
		if t.FulfilledBy != nil {
			fulfilledBy = sql.NullInt32{Int32: *t.FulfilledBy, Valid: true}
		}
		fulfilledAt = sql.NullTime{Time: t.At, Valid: true}
	}

	query := `UPDATE blood_requests SET status = $1, fulfilled_by = $2, fulfilled_at = $3, updated_at = $4
	          WHERE id = $5 AND status = $6 RETURNING ` + bloodRequestColumns
	logger.DatabaseCall("UPDATE", "blood_requests", "requestID", t.RequestID)
	b, err := scanBloodRequest(tx.QueryRowContext(ctx, query, t.To, fulfilledBy, fulfilledAt, t.At, t.RequestID, t.From))
	if errors.Is(err, sql.ErrNoRows) {
		logger.DatabaseResult("UPDATE", 0, nil, "requestID", t.RequestID)
		tx.Rollback()
		cause := r.missingOrClosed(ctx, t.RequestID)
		logger.ExitMethodWithWarning("bloodRequestRepository.TransitionStatus", cause, "requestID", t.RequestID)
		return nil, cause
	}
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "requestID", t.RequestID)
		logger.ExitMethodWithError("bloodRequestRepository.TransitionStatus", err)
		return nil, domain.Persistence("transition blood request", err)
	}
	logger.DatabaseResult("UPDATE", 1, nil, "requestID", t.RequestID)

	if fulfilledBy.Valid {
		_, err = tx.ExecContext(ctx,
			`UPDATE donor_responses SET status = $1 WHERE request_id = $2 AND donor_id = $3`,
			domain.ResponseStatusAccepted, t.RequestID, fulfilledBy.Int32)
		if err != nil {
			logger.ExitMethodWithError("bloodRequestRepository.TransitionStatus", err, "step", "mark response accepted")
			return nil, domain.Persistence("mark response accepted", err)
		}
	}

	if err := tx.Commit(); err != nil {
		logger.ExitMethodWithError("bloodRequestRepository.TransitionStatus", err)
		return nil, domain.Persistence("commit transition", err)
	}

	if responses, err := r.responsesFor(ctx, t.RequestID); err == nil {
		b.Responses = responses
	} else {
		logger.Warn("Failed to load responses after transition", "requestID", t.RequestID, "error", err)
	}

	logger.ExitMethod("bloodRequestRepository.TransitionStatus", "requestID", t.RequestID, "status", b.Status)
	return b, nil
}

func (r *bloodRequestRepository) AppendResponse(ctx context.Context, requestID int32, resp domain.DonorResponse) (*domain.BloodRequest, error) {
	logger.EnterMethod("bloodRequestRepository.AppendResponse", "requestID", requestID, "donorID", resp.DonorID)

	// The insert only matches while the parent request is still pending.
	query := `INSERT INTO donor_responses (request_id, donor_id, donor_name, donor_phone, donor_email, blood_group, units_offered, status, responded_at)
	          SELECT id, $2, $3, $4, $5, $6, $7, $8, $9 FROM blood_requests WHERE id = $1 AND status = 'pending'`
	logger.DatabaseCall("INSERT", "donor_responses", "requestID", requestID)
	result, err := r.db.ExecContext(ctx, query, requestID, resp.DonorID, resp.DonorName, resp.DonorPhone,
		resp.DonorEmail, resp.BloodGroup, resp.UnitsOffered, resp.Status, resp.RespondedAt)
	if err != nil {
		logger.DatabaseResult("INSERT", 0, err)
		logger.ExitMethodWithError("bloodRequestRepository.AppendResponse", err)
		return nil, domain.Persistence("append donor response", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, domain.Persistence("append donor response", err)
	}
	logger.DatabaseResult("INSERT", rows, nil)

	if rows == 0 {
		cause := r.missingOrClosed(ctx, requestID)
		logger.ExitMethodWithWarning("bloodRequestRepository.AppendResponse", cause, "requestID", requestID)
		return nil, cause
	}

	logger.ExitMethod("bloodRequestRepository.AppendResponse", "requestID", requestID)
	return r.GetByID(ctx, requestID)
}

func (r *bloodRequestRepository) Delete(ctx context.Context, id int32) error {
	logger.DatabaseCall("DELETE", "blood_requests", "requestID", id)
	result, err := r.db.ExecContext(ctx, `DELETE FROM blood_requests WHERE id = $1`, id)
	if err != nil {
		logger.DatabaseResult("DELETE", 0, err)
		return domain.Persistence("delete blood request", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return domain.Persistence("delete blood request", err)
	}
	logger.DatabaseResult("DELETE", rows, nil)
	if rows == 0 {
		return domain.NotFoundf("blood request %d", id)
	}
	return nil
}

func (r *bloodRequestRepository) listWhere(ctx context.Context, where string, args []any, page, pageSize int32) ([]domain.BloodRequest, int32, error) {
	page, pageSize = domain.NormalizePage(page, pageSize)

	var count int32
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM blood_requests WHERE `+where, args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := `SELECT ` + bloodRequestColumns + ` FROM blood_requests WHERE ` + where +
		` ORDER BY created_at DESC, id DESC LIMIT $` + itoa(n+1) + ` OFFSET $` + itoa(n+2)
	args = append(args, pageSize, domain.PageOffset(page, pageSize))

	reqs, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return reqs, count, nil
}

func (r *bloodRequestRepository) query(ctx context.Context, query string, args ...any) ([]domain.BloodRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reqs := []domain.BloodRequest{}
	for rows.Next() {
		b, err := scanBloodRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *b)
	}
	return reqs, rows.Err()
}

func (r *bloodRequestRepository) ListByRecipient(ctx context.Context, recipientID int32, page, pageSize int32) ([]domain.BloodRequest, int32, error) {
	return r.listWhere(ctx, `recipient_id = $1`, []any{recipientID}, page, pageSize)
}

func (r *bloodRequestRepository) ListByStatus(ctx context.Context, status domain.RequestStatus, page, pageSize int32) ([]domain.BloodRequest, int32, error) {
	if status == "" {
		return r.listWhere(ctx, `TRUE`, nil, page, pageSize)
	}
	return r.listWhere(ctx, `status = $1`, []any{status}, page, pageSize)
}

func (r *bloodRequestRepository) ListPendingByBloodGroup(ctx context.Context, bloodGroup domain.BloodGroup, limit int32) ([]domain.BloodRequest, error) {
	query := `SELECT ` + bloodRequestColumns + ` FROM blood_requests
	          WHERE status = 'pending' AND blood_group = $1 ORDER BY created_at DESC LIMIT NULLIF($2, 0)`
	return r.query(ctx, query, bloodGroup, limit)
}
