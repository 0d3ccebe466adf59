// Package memory keeps every repository in process. It backs local runs
// with database.driver=memory and the service tests.
package memory

import (
	"bloodlink-backend/internal/domain"
	"bloodlink-backend/internal/repository"
)

type Store struct {
	requests      *bloodRequestRepository
	donors        *donorRepository
	notifications *notificationRepository
}

func NewStore() *Store {
	return &Store{
		requests:      newBloodRequestRepository(),
		donors:        newDonorRepository(),
		notifications: newNotificationRepository(),
	}
}

func (s *Store) BloodRequests() repository.BloodRequestRepository { return s.requests }
func (s *Store) Donors() repository.DonorRepository               { return s.donors }
func (s *Store) Notifications() repository.NotificationRepository { return s.notifications }
func (s *Store) Close() error                                     { return nil }

// PutDonor inserts or replaces a donor profile. Profile CRUD lives outside
// this service, so local runs and tests seed donors through it.
func (s *Store) PutDonor(d domain.Donor) {
	s.donors.put(d)
}

func paginate(total int, page, pageSize int32) (int, int) {
	page, pageSize = domain.NormalizePage(page, pageSize)
	offset := domain.PageOffset(page, pageSize)
	if offset > int64(total) {
		offset = int64(total)
	}
	start := int(offset)
	end := start + int(pageSize)
	if end > total {
		end = total
	}
	return start, end
}
