package postgres_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bloodlink-backend/internal/domain"
	"bloodlink-backend/internal/repository/postgres"
)

var requestCols = []string{
	"id", "recipient_id", "patient_name", "blood_group", "units_needed", "hospital_name",
	"contact_person", "contact_number", "urgency", "address", "latitude", "longitude", "required_by",
	"status", "fulfilled_by", "fulfilled_at", "created_at", "updated_at",
}

var donorCols = []string{
	"user_id", "name", "email", "phone", "blood_group", "latitude", "longitude", "is_available",
	"availability_override", "last_donation_date", "next_eligible_date", "total_donations", "reminder_sent_for",
	"push_tokens", "created_at", "updated_at",
}

var responseCols = []string{"donor_id", "donor_name", "donor_phone", "donor_email", "blood_group", "units_offered", "status", "responded_at"}

func newMock(t *testing.T) (*postgres.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return postgres.NewStore(db), mock
}

func TestBloodRequestRepository_Create(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()

	req := &domain.BloodRequest{
		RecipientID:   3,
		PatientName:   "Sita",
		BloodGroup:    domain.BloodGroupONeg,
		UnitsNeeded:   2,
		HospitalName:  "Bir Hospital",
		ContactPerson: "Ram",
		ContactNumber: "9800000000",
		Urgency:       domain.UrgencyCritical,
		Location:      domain.Coordinate{Lat: 27.72, Lon: 85.32},
		RequiredBy:    time.Now().Add(24 * time.Hour),
		Status:        domain.RequestStatusPending,
	}

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO blood_requests").
			WithArgs(req.RecipientID, req.PatientName, req.BloodGroup, req.UnitsNeeded, req.HospitalName,
				req.ContactPerson, req.ContactNumber, req.Urgency, req.Address, req.Location.Lat, req.Location.Lon,
				req.RequiredBy, req.Status, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

		err := store.BloodRequests().Create(ctx, req)
		assert.NoError(t, err)
		assert.Equal(t, int32(11), req.ID)
		assert.NotNil(t, req.Responses)
	})

	t.Run("PersistenceError", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO blood_requests").WillReturnError(errors.New("connection reset"))

		err := store.BloodRequests().Create(ctx, req)
		assert.ErrorIs(t, err, domain.ErrPersistence)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBloodRequestRepository_TransitionStatus(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	donorID := int32(9)

	t.Run("Fulfilled", func(t *testing.T) {
		store, mock := newMock(t)

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE blood_requests SET status").
			WithArgs(domain.RequestStatusFulfilled, donorID, now, now, int32(5), domain.RequestStatusPending).
			WillReturnRows(sqlmock.NewRows(requestCols).AddRow(
				5, 3, "Sita", "O-", 2, "Bir Hospital", "Ram", "9800000000", "critical", "", 27.72, 85.32, now,
				"fulfilled", donorID, now, now, now))
		mock.ExpectExec("UPDATE donor_responses SET status").
			WithArgs(domain.ResponseStatusAccepted, int32(5), donorID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
		mock.ExpectQuery("SELECT donor_id").WithArgs(int32(5)).
			WillReturnRows(sqlmock.NewRows(responseCols).AddRow(donorID, "Hari", "98", "h@x", "O-", 1, "accepted", now))

		got, err := store.BloodRequests().TransitionStatus(ctx, domain.StatusTransition{
			RequestID: 5, From: domain.RequestStatusPending, To: domain.RequestStatusFulfilled, FulfilledBy: &donorID, At: now,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.RequestStatusFulfilled, got.Status)
		require.NotNil(t, got.FulfilledBy)
		assert.Equal(t, donorID, *got.FulfilledBy)
		require.Len(t, got.Responses, 1)
		assert.Equal(t, domain.ResponseStatusAccepted, got.Responses[0].Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NoLongerPending", func(t *testing.T) {
		store, mock := newMock(t)

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE blood_requests SET status").WillReturnRows(sqlmock.NewRows(requestCols))
		mock.ExpectRollback()
		mock.ExpectQuery("SELECT status FROM blood_requests").WithArgs(int32(5)).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("fulfilled"))

		_, err := store.BloodRequests().TransitionStatus(ctx, domain.StatusTransition{
			RequestID: 5, From: domain.RequestStatusPending, To: domain.RequestStatusFulfilled, FulfilledBy: &donorID, At: now,
		})
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Deleted", func(t *testing.T) {
		store, mock := newMock(t)

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE blood_requests SET status").WillReturnRows(sqlmock.NewRows(requestCols))
		mock.ExpectRollback()
		mock.ExpectQuery("SELECT status FROM blood_requests").WithArgs(int32(5)).
			WillReturnRows(sqlmock.NewRows([]string{"status"}))

		_, err := store.BloodRequests().TransitionStatus(ctx, domain.StatusTransition{
			RequestID: 5, From: domain.RequestStatusPending, To: domain.RequestStatusCancelled, At: now,
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBloodRequestRepository_AppendResponse(t *testing.T) {
	ctx := context.Background()
	resp := domain.DonorResponse{DonorID: 4, DonorName: "Hari", BloodGroup: domain.BloodGroupONeg, UnitsOffered: 1,
		Status: domain.ResponseStatusPending, RespondedAt: time.Now().UTC()}

	t.Run("Closed", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectExec("INSERT INTO donor_responses").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT status FROM blood_requests").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("cancelled"))

		_, err := store.BloodRequests().AppendResponse(ctx, 2, resp)
		assert.ErrorIs(t, err, domain.ErrNotPending)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Appended", func(t *testing.T) {
		store, mock := newMock(t)
		now := time.Now().UTC()
		mock.ExpectExec("INSERT INTO donor_responses").
			WithArgs(int32(2), resp.DonorID, resp.DonorName, resp.DonorPhone, resp.DonorEmail, resp.BloodGroup,
				resp.UnitsOffered, resp.Status, resp.RespondedAt).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("SELECT (.+) FROM blood_requests WHERE id").WithArgs(int32(2)).
			WillReturnRows(sqlmock.NewRows(requestCols).AddRow(
				2, 3, "Sita", "O-", 2, "Bir Hospital", "Ram", "98", "high", "", 0.0, 0.0, now,
				"pending", nil, nil, now, now))
		mock.ExpectQuery("SELECT donor_id").
			WillReturnRows(sqlmock.NewRows(responseCols).AddRow(4, "Hari", "", "", "O-", 1, "pending", now))

		got, err := store.BloodRequests().AppendResponse(ctx, 2, resp)
		require.NoError(t, err)
		assert.Nil(t, got.FulfilledBy)
		assert.Len(t, got.Responses, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBloodRequestRepository_Delete(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectExec("DELETE FROM blood_requests").WithArgs(int32(8)).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, store.BloodRequests().Delete(ctx, 8), domain.ErrNotFound)

	mock.ExpectExec("DELETE FROM blood_requests").WithArgs(int32(8)).WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, store.BloodRequests().Delete(ctx, 8))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBloodRequestRepository_ListPagination(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT count").WithArgs(int32(7)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("SELECT (.+) FROM blood_requests WHERE recipient_id").
		WithArgs(int32(7), domain.MaxPageSize, int64(65536)*int64(domain.MaxPageSize)).
		WillReturnRows(sqlmock.NewRows(requestCols))

	reqs, total, err := store.BloodRequests().ListByRecipient(ctx, 7, 65537, 32768)
	require.NoError(t, err)
	assert.Empty(t, reqs)
	assert.Equal(t, int32(3), total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// radiusArg matches the SQL radius argument in metres on the earth() sphere.
type radiusArg struct {
	min, max float64
}

func (a radiusArg) Match(v driver.Value) bool {
	f, ok := v.(float64)
	return ok && f >= a.min && f <= a.max
}

// coversRadiusKm accepts any radius at least as wide as radiusKm on the
// haversine sphere, scaled to earth(), with under one percent of padding.
func coversRadiusKm(radiusKm float64) radiusArg {
	scaled := radiusKm * 1000 * 6378168.0 / (domain.EarthRadiusKm * 1000)
	return radiusArg{min: scaled, max: scaled * 1.01}
}

func TestDonorRepository_FindNearby(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()
	now := time.Now().UTC()
	origin := domain.Coordinate{Lat: 27.72, Lon: 85.32}

	mock.ExpectQuery("earth_distance").
		WithArgs(origin.Lat, origin.Lon, coversRadiusKm(50), domain.BloodGroupONeg, sqlmock.AnyArg(), int32(50)).
		WillReturnRows(sqlmock.NewRows(append(donorCols, "distance_km")).
			AddRow(1, "A", "a@x", "", "O-", 27.73, 85.33, true, false, nil, nil, 0, nil, "{tok1}", now, now, 1.4).
			AddRow(2, "B", "b@x", "", "O-", 27.90, 85.40, true, false, nil, nil, 2, nil, "{}", now, now, 21.5))

	matches, err := store.Donors().FindNearby(ctx, origin, 50, domain.DonorFilter{
		BloodGroup: domain.BloodGroupONeg, OnlyAvailable: true, ExcludeUserIDs: []int32{3},
	}, 50)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, int32(1), matches[0].Donor.UserID)
	assert.Equal(t, []string{"tok1"}, matches[0].Donor.PushTokens)
	assert.InDelta(t, 21.5, matches[1].DistanceKm, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDonorRepository_MarkReminderSent(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()
	window := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE donors SET reminder_sent_for").WithArgs(window, int32(6)).WillReturnResult(sqlmock.NewResult(0, 1))
	marked, err := store.Donors().MarkReminderSent(ctx, 6, window)
	require.NoError(t, err)
	assert.True(t, marked)

	mock.ExpectExec("UPDATE donors SET reminder_sent_for").WithArgs(window, int32(6)).WillReturnResult(sqlmock.NewResult(0, 0))
	marked, err = store.Donors().MarkReminderSent(ctx, 6, window)
	require.NoError(t, err)
	assert.False(t, marked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDonorRepository_ReleaseReminder(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()
	window := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	previous := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE donors SET reminder_sent_for").WithArgs(previous, int32(6), window).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.Donors().ReleaseReminder(ctx, 6, window, &previous))

	mock.ExpectExec("UPDATE donors SET reminder_sent_for").WithArgs(nil, int32(6), window).WillReturnError(errors.New("conn closed"))
	assert.ErrorIs(t, store.Donors().ReleaseReminder(ctx, 6, window, nil), domain.ErrPersistence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDonorRepository_GetContacts(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT u.id, u.name, u.email").
		WithArgs(pq.Array([]int64{1, 2})).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "push_tokens"}).
			AddRow(1, "A", "a@x", "{t1,t2}").
			AddRow(2, "B", "b@x", "{}"))

	contacts, err := store.Donors().GetContacts(ctx, []int32{1, 2})
	require.NoError(t, err)
	assert.Len(t, contacts, 2)
	assert.Equal(t, []string{"t1", "t2"}, contacts[1].PushTokens)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_CreateBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("AllOrNothing", func(t *testing.T) {
		store, mock := newMock(t)
		notes := []domain.Notification{
			{UserID: 1, Type: domain.NotificationTypeNewRequest, Title: "t", Message: "m", Priority: domain.PriorityUrgent,
				Related: &domain.EntityRef{Type: domain.EntityBloodRequest, ID: 5}},
			{UserID: 2, Type: domain.NotificationTypeNewRequest, Title: "t", Message: "m", Priority: domain.PriorityUrgent},
		}

		mock.ExpectBegin()
		prep := mock.ExpectPrepare("INSERT INTO notifications")
		prep.ExpectQuery().WithArgs(int32(1), notes[0].Type, "t", "m", "blood_request", int32(5), notes[0].Priority, false, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(100))
		prep.ExpectQuery().WithArgs(int32(2), notes[1].Type, "t", "m", nil, nil, notes[1].Priority, false, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(101))
		mock.ExpectCommit()

		require.NoError(t, store.Notifications().CreateBatch(ctx, notes))
		assert.Equal(t, int32(100), notes[0].ID)
		assert.Equal(t, int32(101), notes[1].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackOnFailure", func(t *testing.T) {
		store, mock := newMock(t)
		notes := []domain.Notification{{UserID: 1}, {UserID: 2}}

		mock.ExpectBegin()
		prep := mock.ExpectPrepare("INSERT INTO notifications")
		prep.ExpectQuery().WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		prep.ExpectQuery().WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := store.Notifications().CreateBatch(ctx, notes)
		assert.ErrorIs(t, err, domain.ErrPersistence)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestNotificationRepository_MarkAsRead(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE notifications SET is_read = TRUE").WithArgs(int32(1), int32(2)).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, store.Notifications().MarkAsRead(ctx, 1, 2), domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDonorRepository_FindNearbyRadiusBoundary(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()
	now := time.Now().UTC()
	origin := domain.Coordinate{Lat: 27.72, Lon: 85.32}
	// 49.95 km north on the haversine sphere is 50.006 km on earth().
	edge := domain.Coordinate{Lat: origin.Lat + 49.95/domain.EarthRadiusKm*180/math.Pi, Lon: origin.Lon}
	require.InDelta(t, 49.95, origin.DistanceKm(edge), 0.001)

	mock.ExpectQuery("earth_distance").
		WithArgs(origin.Lat, origin.Lon, coversRadiusKm(50), int32(10)).
		WillReturnRows(sqlmock.NewRows(append(donorCols, "distance_km")).
			AddRow(4, "Edge", "e@x", "", "AB+", edge.Lat, edge.Lon, true, false, nil, nil, 0, nil, "{}", now, now, 49.95))

	matches, err := store.Donors().FindNearby(ctx, origin, 50, domain.DonorFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	onEarthSphere := origin.DistanceKm(edge) * 6378168.0 / domain.EarthRadiusKm
	assert.Greater(t, onEarthSphere, 50*1000.0, "an unscaled 50 km cut would drop the donor")
	assert.Less(t, onEarthSphere, coversRadiusKm(50).min)
	assert.NoError(t, mock.ExpectationsWereMet())
}
