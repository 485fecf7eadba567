package domain

import (
	"time"

	"github.com/google/uuid"
)

// Post is a link or text submission to a community.
type Post struct {
	Id          uuid.UUID
	ApID        string
	Name        string
	URL         string
	Body        string
	CreatorId   uuid.UUID
	CommunityId uuid.UUID
	Locked      bool
	Stickied    bool
	Removed     bool
	Deleted     bool
	Score       int
	Local       bool
	Published   time.Time
	Updated     time.Time
}

// Comment is a reply on a post.
type Comment struct {
	Id        uuid.UUID
	ApID      string
	Content   string
	CreatorId uuid.UUID
	PostId    uuid.UUID
	Removed   bool
	Deleted   bool
	Score     int
	Local     bool
	Published time.Time
	Updated   time.Time
}
