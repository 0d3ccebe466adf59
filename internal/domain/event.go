package domain

import "time"

type EventName string

const (
	EventNewBloodRequest      EventName = "newBloodRequest"
	EventNewNotification      EventName = "newNotification"
	EventRequestStatusChanged EventName = "requestStatusChanged"
	EventDonorAccepted        EventName = "donorAccepted"
	EventDonationConfirmed    EventName = "donationConfirmed"
	EventRequestDeleted       EventName = "requestDeleted"
	EventUserOnline           EventName = "userOnline"
	EventUserOffline          EventName = "userOffline"
)

// Event is the envelope pushed over the real-time channel. A zero
// TargetUserID means broadcast to every connection.
type Event struct {
	Name         EventName `json:"event"`
	Timestamp    time.Time `json:"timestamp"`
	TargetUserID int32     `json:"-"`
	Data         any       `json:"data"`
}

func NewEvent(name EventName, data any) Event {
	return Event{Name: name, Timestamp: time.Now().UTC(), Data: data}
}

func NewTargetedEvent(name EventName, userID int32, data any) Event {
	e := NewEvent(name, data)
	e.TargetUserID = userID
	return e
}

type RequestStatusChangedData struct {
	RequestID   int32         `json:"requestId"`
	Status      RequestStatus `json:"status"`
	FulfilledBy *int32        `json:"fulfilledBy,omitempty"`
}

type DonorAcceptedData struct {
	RequestID int32  `json:"requestId"`
	DonorID   int32  `json:"donorId"`
	DonorName string `json:"donorName"`
}

type DonationConfirmedData struct {
	DonorID          int32     `json:"donorId"`
	DonationDate     time.Time `json:"donationDate"`
	NextEligibleDate time.Time `json:"nextEligibleDate"`
	TotalDonations   int32     `json:"totalDonations"`
}

type RequestDeletedData struct {
	RequestID int32 `json:"requestId"`
}

type PresenceData struct {
	UserID int32 `json:"userId"`
}
