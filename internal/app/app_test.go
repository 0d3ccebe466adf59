package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bloodlink-backend/internal/config"
	"bloodlink-backend/internal/domain"
	"bloodlink-backend/internal/repository/memory"
	"bloodlink-backend/internal/service"
)

const memoryConfig = `
server:
  port: 8080
database:
  driver: memory
email:
  provider: none
jwt:
  secret: "0123456789abcdef0123456789abcdef"
`

func TestNew_MemoryEndToEnd(t *testing.T) {
	cfg, err := config.Parse([]byte(memoryConfig))
	require.NoError(t, err)

	ctx := context.Background()
	a, err := New(ctx, cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.NoError(t, a.Health(ctx))
	assert.Nil(t, a.Locker())
	assert.False(t, a.Hub.Distributed())

	store, ok := a.Store.(*memory.Store)
	require.True(t, ok)
	store.PutDonor(domain.Donor{UserID: 1, Name: "Near", BloodGroup: domain.BloodGroupBNeg, Location: domain.Coordinate{Lat: 27.70, Lon: 85.32}, IsAvailable: true})
	store.PutDonor(domain.Donor{UserID: 2, Name: "Far", BloodGroup: domain.BloodGroupBNeg, Location: domain.Coordinate{Lat: 28.70, Lon: 85.32}, IsAvailable: true})
	store.PutDonor(domain.Donor{UserID: 3, Name: "Other group", BloodGroup: domain.BloodGroupOPos, Location: domain.Coordinate{Lat: 27.70, Lon: 85.32}, IsAvailable: true})

	req, notified, err := a.Requests.Create(ctx, 50, service.CreateRequestInput{
		PatientName:   "Maya",
		BloodGroup:    domain.BloodGroupBNeg,
		UnitsNeeded:   1,
		HospitalName:  "Teaching Hospital",
		ContactPerson: "Ram",
		ContactNumber: "9800000000",
		Location:      domain.Coordinate{Lat: 27.71, Lon: 85.32},
		RequiredBy:    time.Now().Add(12 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, notified)

	count, err := a.Dispatcher.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), count)

	accepted, err := a.Requests.Accept(ctx, req.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusFulfilled, accepted.Status)

	count, err = a.Dispatcher.UnreadCount(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, int32(1), count, "recipient is told the request was fulfilled")
}
