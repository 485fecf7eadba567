package domain

import (
	"time"

	"github.com/google/uuid"
)

// Person represents a user account, local or cached from a remote
// instance. Local persons carry a private key for signing deliveries.
type Person struct {
	Id             uuid.UUID
	Username       string
	Domain         string
	ActorURI       string
	DisplayName    string
	InboxURI       string
	SharedInboxURI string
	PublicKeyPem   string
	PrivateKeyPem  string
	Local          bool
	LastFetchedAt  time.Time
	CreatedAt      time.Time
}

// SharedInboxOrInbox prefers the instance-wide shared inbox for
// fan-out efficiency.
func (p *Person) SharedInboxOrInbox() string {
	if p.SharedInboxURI != "" {
		return p.SharedInboxURI
	}
	return p.InboxURI
}

// Community is a group actor that posts belong to. Remote communities
// are cached copies refreshed by the resolver.
type Community struct {
	Id             uuid.UUID
	Name           string
	Title          string
	Description    string
	ActorURI       string
	InboxURI       string
	SharedInboxURI string
	FollowersURI   string
	NSFW           bool
	Icon           string
	Banner         string
	PublicKeyPem   string
	PrivateKeyPem  string
	Local          bool
	Deleted        bool
	Removed        bool
	LastFetchedAt  time.Time
	CreatedAt      time.Time
}

func (c *Community) SharedInboxOrInbox() string {
	if c.SharedInboxURI != "" {
		return c.SharedInboxURI
	}
	return c.InboxURI
}

// ModeratorsURI is the well-known moderators collection of the
// community, derived from its canonical id.
func (c *Community) ModeratorsURI() string {
	return c.ActorURI + "/moderators"
}
