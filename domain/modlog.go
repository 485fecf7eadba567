package domain

import (
	"time"

	"github.com/google/uuid"
)

// Moderation log target kinds.
const (
	ModLogTargetCommunity = "community"
	ModLogTargetPost      = "post"
	ModLogTargetComment   = "comment"
)

// ModLogEntry records a moderator removal (or restore) of a community,
// post or comment. Reason is nil when the moderator gave none.
type ModLogEntry struct {
	Id          uuid.UUID
	ModPersonId uuid.UUID
	TargetType  string
	TargetId    uuid.UUID
	Reason      *string
	Removed     bool
	CreatedAt   time.Time
}
