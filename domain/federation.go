package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReceivedActivity is the dedup record for envelope ids. A second
// delivery of the same activity uri is a no-op, never a second
// mutation.
type ReceivedActivity struct {
	Id           uuid.UUID
	ActivityURI  string
	ActivityType string
	ActorURI     string
	ObjectURI    string
	RawJSON      string
	Processed    bool
	Local        bool
	CreatedAt    time.Time
}

// DeliveryQueueItem is one pending outbound delivery to a single
// inbox. SignAsURI names the local actor whose key signs the request.
type DeliveryQueueItem struct {
	Id           uuid.UUID
	InboxURI     string
	ActivityJSON string
	SignAsURI    string
	Attempts     int
	NextRetryAt  time.Time
	CreatedAt    time.Time
}
