package postgres

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"bloodlink-backend/internal/repository"
)

type Store struct {
	db *sql.DB
	repository.BloodRequestRepository
	repository.DonorRepository
	repository.NotificationRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                     db,
		BloodRequestRepository: NewBloodRequestRepository(db),
		DonorRepository:        NewDonorRepository(db),
		NotificationRepository: NewNotificationRepository(db),
	}
}

// Open connects to PostgreSQL and verifies the connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func (s *Store) BloodRequests() repository.BloodRequestRepository { return s.BloodRequestRepository }
func (s *Store) Donors() repository.DonorRepository               { return s.DonorRepository }
func (s *Store) Notifications() repository.NotificationRepository { return s.NotificationRepository }
func (s *Store) Close() error                                     { return s.db.Close() }

func itoa(n int) string {
	return strconv.Itoa(n)
}
