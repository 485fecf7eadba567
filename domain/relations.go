package domain

import (
	"time"

	"github.com/google/uuid"
)

// CommunityFollower is the membership relation between a person and a
// community. Uniqueness over (community, person) is enforced by the
// store, which is what makes duplicate Follow deliveries harmless.
type CommunityFollower struct {
	Id          uuid.UUID
	CommunityId uuid.UUID
	PersonId    uuid.UUID
	Pending     bool
	CreatedAt   time.Time
}

// CommunityModerator grants a person moderator authority over a
// community, gating Add/Update/Remove activity classes.
type CommunityModerator struct {
	CommunityId uuid.UUID
	PersonId    uuid.UUID
	CreatedAt   time.Time
}

// PostVote holds one person's vote on a post, score is +1 or -1.
type PostVote struct {
	PostId    uuid.UUID
	PersonId  uuid.UUID
	Score     int
	CreatedAt time.Time
}

// CommentVote holds one person's vote on a comment.
type CommentVote struct {
	CommentId uuid.UUID
	PersonId  uuid.UUID
	Score     int
	CreatedAt time.Time
}
