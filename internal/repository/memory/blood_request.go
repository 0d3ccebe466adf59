package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"bloodlink-backend/internal/domain"
)

type bloodRequestRepository struct {
	mu     sync.Mutex
	nextID int32
	rows   map[int32]*domain.BloodRequest
}

func newBloodRequestRepository() *bloodRequestRepository {
	return &bloodRequestRepository{rows: make(map[int32]*domain.BloodRequest)}
}

func cloneRequest(r *domain.BloodRequest) *domain.BloodRequest {
	c := *r
	c.Responses = append([]domain.DonorResponse(nil), r.Responses...)
	if r.FulfilledBy != nil {
		v := *r.FulfilledBy
		c.FulfilledBy = &v
	}
	if r.FulfilledAt != nil {
		v := *r.FulfilledAt
		c.FulfilledAt = &v
	}
	return &c
}

func (r *bloodRequestRepository) Create(ctx context.Context, req *domain.BloodRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	req.ID = r.nextID
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	r.rows[req.ID] = cloneRequest(req)
	return nil
}

func (r *bloodRequestRepository) GetByID(ctx context.Context, id int32) (*domain.BloodRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok {
		return nil, domain.NotFoundf("blood request %d", id)
	}
	return cloneRequest(row), nil
}

func (r *bloodRequestRepository) TransitionStatus(ctx context.Context, t domain.StatusTransition) (*domain.BloodRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[t.RequestID]
	if !ok {
		return nil, domain.NotFoundf("blood request %d", t.RequestID)
	}
	if row.Status != t.From {
		return nil, domain.ErrNotPending
	}

	row.Status = t.To
	row.UpdatedAt = t.At
	if t.To == domain.RequestStatusFulfilled {
		row.FulfilledBy = t.FulfilledBy
		at := t.At
		row.FulfilledAt = &at
		if t.FulfilledBy != nil {
			for i := range row.Responses {
				if row.Responses[i].DonorID == *t.FulfilledBy {
					row.Responses[i].Status = domain.ResponseStatusAccepted
				}
			}
		}
	}
	return cloneRequest(row), nil
}

func (r *bloodRequestRepository) AppendResponse(ctx context.Context, requestID int32, resp domain.DonorResponse) (*domain.BloodRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[requestID]
	if !ok {
		return nil, domain.NotFoundf("blood request %d", requestID)
	}
	if row.Status != domain.RequestStatusPending {
		return nil, domain.ErrNotPending
	}
	row.Responses = append(row.Responses, resp)
	row.UpdatedAt = time.Now().UTC()
	return cloneRequest(row), nil
}

func (r *bloodRequestRepository) Delete(ctx context.Context, id int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[id]; !ok {
		return domain.NotFoundf("blood request %d", id)
	}
	delete(r.rows, id)
	return nil
}

func (r *bloodRequestRepository) list(match func(*domain.BloodRequest) bool) []domain.BloodRequest {
	var out []domain.BloodRequest
	for _, row := range r.rows {
		if match(row) {
			out = append(out, *cloneRequest(row))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *bloodRequestRepository) ListByRecipient(ctx context.Context, recipientID int32, page, pageSize int32) ([]domain.BloodRequest, int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.list(func(b *domain.BloodRequest) bool { return b.RecipientID == recipientID })
	start, end := paginate(len(all), page, pageSize)
	return all[start:end], int32(len(all)), nil
}

func (r *bloodRequestRepository) ListByStatus(ctx context.Context, status domain.RequestStatus, page, pageSize int32) ([]domain.BloodRequest, int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.list(func(b *domain.BloodRequest) bool { return status == "" || b.Status == status })
	start, end := paginate(len(all), page, pageSize)
	return all[start:end], int32(len(all)), nil
}

func (r *bloodRequestRepository) ListPendingByBloodGroup(ctx context.Context, bloodGroup domain.BloodGroup, limit int32) ([]domain.BloodRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.list(func(b *domain.BloodRequest) bool {
		return b.Status == domain.RequestStatusPending && b.BloodGroup == bloodGroup
	})
	if limit > 0 && int(limit) < len(all) {
		all = all[:limit]
	}
	return all, nil
}
