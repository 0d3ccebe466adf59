package domain

import "time"

type NotificationType string

const (
	NotificationTypeNewRequest          NotificationType = "new-request"
	NotificationTypeRequestFulfilled    NotificationType = "request-fulfilled"
	NotificationTypeDonationConfirmed   NotificationType = "donation-confirmed"
	NotificationTypeSystem              NotificationType = "system"
	NotificationTypeEligibilityReminder NotificationType = "eligibility-reminder"
)

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

// PriorityForUrgency maps a request urgency onto a notification priority.
func PriorityForUrgency(u Urgency) NotificationPriority {
	switch u {
	case UrgencyCritical:
		return PriorityUrgent
	case UrgencyHigh:
		return PriorityHigh
	case UrgencyMedium:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

type EntityType string

const (
	EntityBloodRequest EntityType = "blood_request"
	EntityDonor        EntityType = "donor"
)

// EntityRef is a weak reference to the entity a notification is about.
type EntityRef struct {
	Type EntityType `json:"type"`
	ID   int32      `json:"id"`
}

type Notification struct {
	ID        int32                `json:"id"`
	UserID    int32                `json:"user_id"`
	Type      NotificationType     `json:"type"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	Related   *EntityRef           `json:"related,omitempty"`
	Priority  NotificationPriority `json:"priority"`
	IsRead    bool                 `json:"is_read"`
	CreatedAt time.Time            `json:"created_at"`
}

// EmailContent is the optional email leg of a notification payload.
// Template names a template under the email template directory; Data is
// passed to it. Subject defaults to the payload title.
type EmailContent struct {
	Subject  string
	Template string
	Data     map[string]any
}

// NotificationPayload is what the dispatcher fans out to each target user.
type NotificationPayload struct {
	Type     NotificationType
	Title    string
	Message  string
	Related  *EntityRef
	Priority NotificationPriority
	Email    *EmailContent
}

// For builds the in-app record of p addressed to userID.
func (p NotificationPayload) For(userID int32, now time.Time) Notification {
	priority := p.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	return Notification{
		UserID:    userID,
		Type:      p.Type,
		Title:     p.Title,
		Message:   p.Message,
		Related:   p.Related,
		Priority:  priority,
		CreatedAt: now,
	}
}
