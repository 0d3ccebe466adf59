package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bloodlink-backend/internal/config"
	"bloodlink-backend/internal/security"
)

// NewRouter wires every route under its config route name. Literal paths
// are registered before the {id} patterns they would otherwise shadow.
func NewRouter(h *Handler, tm security.TokenManager) *mux.Router {
	r := mux.NewRouter()
	r.Use(recoveryMiddleware, loggingMiddleware, NewAuthMiddleware(tm).Handler)

	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet).Name(config.RouteHealth)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet).Name(config.RouteMetrics)
	r.HandleFunc("/ws", h.WebSocket).Methods(http.MethodGet).Name(config.RouteWebSocket)

	api := r.PathPrefix("/api/v1").Subrouter()

	reqs := api.PathPrefix("/blood-requests").Subrouter()
	reqs.HandleFunc("", h.CreateBloodRequest).Methods(http.MethodPost).Name(config.RouteCreateBloodRequest)
	reqs.HandleFunc("", h.ListBloodRequests).Methods(http.MethodGet).Name(config.RouteListBloodRequests)
	reqs.HandleFunc("/mine", h.ListMyBloodRequests).Methods(http.MethodGet).Name(config.RouteListMyBloodRequests)
	reqs.HandleFunc("/nearby", h.NearbyBloodRequests).Methods(http.MethodGet).Name(config.RouteNearbyBloodRequests)
	reqs.HandleFunc("/{id:[0-9]+}", h.GetBloodRequest).Methods(http.MethodGet).Name(config.RouteGetBloodRequest)
	reqs.HandleFunc("/{id:[0-9]+}", h.UpdateBloodRequest).Methods(http.MethodPut).Name(config.RouteUpdateBloodRequest)
	reqs.HandleFunc("/{id:[0-9]+}", h.DeleteBloodRequest).Methods(http.MethodDelete).Name(config.RouteDeleteBloodRequest)
	reqs.HandleFunc("/{id:[0-9]+}/accept", h.AcceptBloodRequest).Methods(http.MethodPut).Name(config.RouteAcceptBloodRequest)
	reqs.HandleFunc("/{id:[0-9]+}/respond", h.RespondBloodRequest).Methods(http.MethodPost).Name(config.RouteRespondBloodRequest)
	reqs.HandleFunc("/{id:[0-9]+}/cancel", h.CancelBloodRequest).Methods(http.MethodPut).Name(config.RouteCancelBloodRequest)

	donors := api.PathPrefix("/donors").Subrouter()
	donors.HandleFunc("/nearby", h.NearbyDonors).Methods(http.MethodGet).Name(config.RouteNearbyDonors)
	donors.HandleFunc("/me/donations", h.RecordDonation).Methods(http.MethodPost).Name(config.RouteRecordDonation)
	donors.HandleFunc("/me/availability", h.SetAvailability).Methods(http.MethodPut).Name(config.RouteSetAvailability)
	donors.HandleFunc("/me/eligibility", h.GetEligibility).Methods(http.MethodGet).Name(config.RouteGetEligibility)

	notes := api.PathPrefix("/notifications").Subrouter()
	notes.HandleFunc("", h.ListNotifications).Methods(http.MethodGet).Name(config.RouteListNotifications)
	notes.HandleFunc("/unread-count", h.UnreadCount).Methods(http.MethodGet).Name(config.RouteUnreadCount)
	notes.HandleFunc("/read-all", h.MarkAllRead).Methods(http.MethodPut).Name(config.RouteMarkAllRead)
	notes.HandleFunc("/{id:[0-9]+}/read", h.MarkNotificationRead).Methods(http.MethodPut).Name(config.RouteMarkNotificationRead)
	notes.HandleFunc("/{id:[0-9]+}", h.DeleteNotification).Methods(http.MethodDelete).Name(config.RouteDeleteNotification)

	return r
}
