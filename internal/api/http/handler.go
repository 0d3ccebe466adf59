package http

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"

	"bloodlink-backend/internal/domain"
	"bloodlink-backend/internal/security"
	"bloodlink-backend/internal/service"
)

// WebSocketServer upgrades an authenticated request into a realtime
// connection for userID.
type WebSocketServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID int32)
}

// HealthFunc reports whether the process can serve traffic.
type HealthFunc func(ctx context.Context) error

type Handler struct {
	requests      service.BloodRequestService
	donors        service.DonorService
	matcher       service.GeoMatcher
	notifications service.NotificationDispatcher
	ws            WebSocketServer
	tokenManager  security.TokenManager
	health        HealthFunc
	validate      *validator.Validate
}

func NewHandler(
	requests service.BloodRequestService,
	donors service.DonorService,
	matcher service.GeoMatcher,
	notifications service.NotificationDispatcher,
	ws WebSocketServer,
	tokenManager security.TokenManager,
	health HealthFunc,
) *Handler {
	return &Handler{
		requests:      requests,
		donors:        donors,
		matcher:       matcher,
		notifications: notifications,
		ws:            ws,
		tokenManager:  tokenManager,
		health:        health,
		validate:      newValidator(),
	}
}

// caller returns the authenticated principal or writes a 401.
func caller(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated"})
	}
	return p, ok
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// WebSocket accepts the access token from the Authorization header or,
// for browsers that cannot set headers on the handshake, from ?token=.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authorization token is not provided"})
		return
	}
	claims, err := h.tokenManager.ValidateToken(token)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token: " + err.Error()})
		return
	}
	h.ws.ServeWS(w, r, claims.UserID)
}
