package domain

type Role string

const (
	RoleDonor     Role = "donor"
	RoleRecipient Role = "recipient"
	RoleHospital  Role = "hospital"
	RoleAdmin     Role = "admin"
)

// Principal is the authenticated caller, taken from a verified token.
type Principal struct {
	UserID int32  `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   Role   `json:"role"`
}

// CanManageRequests reports whether the role may change request status on
// behalf of others.
func (p Principal) CanManageRequests() bool {
	return p.Role == RoleHospital || p.Role == RoleAdmin
}

// Contact is the minimal profile the dispatcher needs for out-of-app legs.
type Contact struct {
	UserID     int32
	Name       string
	Email      string
	PushTokens []string
}
