package interceptor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"bloodlink-backend/internal/domain"
	"bloodlink-backend/internal/security"
)

func TestAuthInterceptor_Unary(t *testing.T) {
	tm := security.NewTokenManager("secret", "bloodlink", time.Hour)
	unary := NewAuthInterceptor(tm).Unary()

	var seen domain.Principal
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		seen, _ = PrincipalFromContext(ctx)
		return "ok", nil
	}

	t.Run("PublicHealth", func(t *testing.T) {
		resp, err := unary(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, handler)
		require.NoError(t, err)
		assert.Equal(t, "ok", resp)
	})

	t.Run("MissingMetadata", func(t *testing.T) {
		_, err := unary(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/bloodlink.v1.Admin/Ping"}, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("InvalidToken", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer nope"))
		_, err := unary(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/bloodlink.v1.Admin/Ping"}, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("Success", func(t *testing.T) {
		token, err := tm.GenerateAccessToken(9, "admin@example.com", domain.RoleAdmin)
		require.NoError(t, err)
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
		_, err = unary(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/bloodlink.v1.Admin/Ping"}, handler)
		require.NoError(t, err)
		assert.Equal(t, int32(9), seen.UserID)
		assert.Equal(t, domain.RoleAdmin, seen.Role)
	})
}

func TestRecovery(t *testing.T) {
	_, err := Recovery()(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x/y"},
		func(ctx context.Context, req interface{}) (interface{}, error) { panic("boom") })
	assert.Equal(t, codes.Internal, status.Code(err))
}
