// config/security_config.go
package config

type SecurityLevel int

const (
	SecurityPublic SecurityLevel = iota // No authentication
	SecurityAccess                      // Access token required
)

// Route names used by the HTTP router. Each route registered in
// internal/api/http carries one of these names.
const (
	RouteHealth               = "Health"
	RouteMetrics              = "Metrics"
	RouteWebSocket            = "WebSocket"
	RouteCreateBloodRequest   = "CreateBloodRequest"
	RouteListBloodRequests    = "ListBloodRequests"
	RouteListMyBloodRequests  = "ListMyBloodRequests"
	RouteGetBloodRequest      = "GetBloodRequest"
	RouteNearbyBloodRequests  = "NearbyBloodRequests"
	RouteAcceptBloodRequest   = "AcceptBloodRequest"
	RouteRespondBloodRequest  = "RespondBloodRequest"
	RouteUpdateBloodRequest   = "UpdateBloodRequest"
	RouteCancelBloodRequest   = "CancelBloodRequest"
	RouteDeleteBloodRequest   = "DeleteBloodRequest"
	RouteNearbyDonors         = "NearbyDonors"
	RouteRecordDonation       = "RecordDonation"
	RouteSetAvailability      = "SetAvailability"
	RouteGetEligibility       = "GetEligibility"
	RouteListNotifications    = "ListNotifications"
	RouteUnreadCount          = "UnreadNotificationCount"
	RouteMarkNotificationRead = "MarkNotificationRead"
	RouteMarkAllRead          = "MarkAllNotificationsRead"
	RouteDeleteNotification   = "DeleteNotification"
)

// EndpointSecurityConfig maps route names to their required security level
var EndpointSecurityConfig = map[string]SecurityLevel{
	// Public
	RouteHealth:  SecurityPublic,
	RouteMetrics: SecurityPublic,

	// The websocket handshake authenticates itself (header or ?token=)
	RouteWebSocket: SecurityPublic,

	// Blood requests - Access Protected
	RouteCreateBloodRequest:  SecurityAccess,
	RouteListBloodRequests:   SecurityAccess,
	RouteListMyBloodRequests: SecurityAccess,
	RouteGetBloodRequest:     SecurityAccess,
	RouteNearbyBloodRequests: SecurityAccess,
	RouteAcceptBloodRequest:  SecurityAccess,
	RouteRespondBloodRequest: SecurityAccess,
	RouteUpdateBloodRequest:  SecurityAccess,
	RouteCancelBloodRequest:  SecurityAccess,
	RouteDeleteBloodRequest:  SecurityAccess,

	// Donors - Access Protected
	RouteNearbyDonors:    SecurityAccess,
	RouteRecordDonation:  SecurityAccess,
	RouteSetAvailability: SecurityAccess,
	RouteGetEligibility:  SecurityAccess,

	// Notifications - Access Protected
	RouteListNotifications:    SecurityAccess,
	RouteUnreadCount:          SecurityAccess,
	RouteMarkNotificationRead: SecurityAccess,
	RouteMarkAllRead:          SecurityAccess,
	RouteDeleteNotification:   SecurityAccess,
}

// GetSecurityLevel returns the security level for a given route name
func GetSecurityLevel(route string) SecurityLevel {
	if level, exists := EndpointSecurityConfig[route]; exists {
		return level
	}
	// Default to highest security for unknown endpoints
	return SecurityAccess
}
