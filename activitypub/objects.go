package activitypub

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/deemkeen/agora/domain"
)

// PublicKeyDoc is the embedded signing key of an actor document.
type PublicKeyDoc struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

type Endpoints struct {
	SharedInbox string `json:"sharedInbox,omitempty"`
}

type ImageObject struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// ActorDocument is the wire form of a Person or Group actor.
type ActorDocument struct {
	Context           json.RawMessage `json:"@context,omitempty"`
	ID                string          `json:"id"`
	Type              string          `json:"type"`
	PreferredUsername string          `json:"preferredUsername"`
	Name              string          `json:"name,omitempty"`
	Summary           string          `json:"summary,omitempty"`
	Sensitive         bool            `json:"sensitive,omitempty"`
	Inbox             string          `json:"inbox"`
	Outbox            string          `json:"outbox,omitempty"`
	Followers         string          `json:"followers,omitempty"`
	Endpoints         *Endpoints      `json:"endpoints,omitempty"`
	Icon              *ImageObject    `json:"icon,omitempty"`
	Image             *ImageObject    `json:"image,omitempty"`
	PublicKey         PublicKeyDoc    `json:"publicKey"`
}

// Validate checks the fields every usable actor has to carry.
func (a *ActorDocument) Validate() error {
	if a.ID == "" || a.Inbox == "" || a.PublicKey.PublicKeyPem == "" {
		return fmt.Errorf("actor document missing id, inbox or public key")
	}
	return nil
}

func (a *ActorDocument) sharedInbox() string {
	if a.Endpoints != nil {
		return a.Endpoints.SharedInbox
	}
	return ""
}

// PersonFromActor converts a fetched Person document into a store row.
func PersonFromActor(a *ActorDocument) (*domain.Person, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	host, err := hostOf(a.ID)
	if err != nil {
		return nil, err
	}
	return &domain.Person{
		Username:       a.PreferredUsername,
		Domain:         host,
		ActorURI:       a.ID,
		DisplayName:    a.Name,
		InboxURI:       a.Inbox,
		SharedInboxURI: a.sharedInbox(),
		PublicKeyPem:   a.PublicKey.PublicKeyPem,
		Local:          false,
		LastFetchedAt:  time.Now(),
	}, nil
}

// CommunityFromActor converts a fetched Group document into a store row.
func CommunityFromActor(a *ActorDocument) (*domain.Community, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	c := &domain.Community{
		Name:           a.PreferredUsername,
		Title:          a.Name,
		Description:    a.Summary,
		ActorURI:       a.ID,
		InboxURI:       a.Inbox,
		SharedInboxURI: a.sharedInbox(),
		FollowersURI:   a.Followers,
		NSFW:           a.Sensitive,
		PublicKeyPem:   a.PublicKey.PublicKeyPem,
		Local:          false,
		LastFetchedAt:  time.Now(),
	}
	if a.Icon != nil {
		c.Icon = a.Icon.URL
	}
	if a.Image != nil {
		c.Banner = a.Image.URL
	}
	return c, nil
}

// PersonDocument renders a local person as a Person actor.
func PersonDocument(p *domain.Person, baseURL string) *ActorDocument {
	return &ActorDocument{
		Context:           DefaultContext,
		ID:                p.ActorURI,
		Type:              "Person",
		PreferredUsername: p.Username,
		Name:              p.DisplayName,
		Inbox:             p.InboxURI,
		Endpoints:         &Endpoints{SharedInbox: baseURL + "/inbox"},
		PublicKey: PublicKeyDoc{
			ID:           p.ActorURI + "#main-key",
			Owner:        p.ActorURI,
			PublicKeyPem: p.PublicKeyPem,
		},
	}
}

// CommunityDocument renders a local community as a Group actor.
func CommunityDocument(c *domain.Community, baseURL string) *ActorDocument {
	doc := &ActorDocument{
		Context:           DefaultContext,
		ID:                c.ActorURI,
		Type:              "Group",
		PreferredUsername: c.Name,
		Name:              c.Title,
		Summary:           c.Description,
		Sensitive:         c.NSFW,
		Inbox:             c.InboxURI,
		Followers:         c.FollowersURI,
		Endpoints:         &Endpoints{SharedInbox: baseURL + "/inbox"},
		PublicKey: PublicKeyDoc{
			ID:           c.ActorURI + "#main-key",
			Owner:        c.ActorURI,
			PublicKeyPem: c.PublicKeyPem,
		},
	}
	if c.Icon != "" {
		doc.Icon = &ImageObject{Type: "Image", URL: c.Icon}
	}
	if c.Banner != "" {
		doc.Image = &ImageObject{Type: "Image", URL: c.Banner}
	}
	return doc
}

// Page is the wire form of a post. CommentsEnabled and Stickied are
// the moderation extension fields, absent commentsEnabled means open.
type Page struct {
	Context         json.RawMessage `json:"@context,omitempty"`
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	AttributedTo    string          `json:"attributedTo"`
	To              []string        `json:"to,omitempty"`
	CC              []string        `json:"cc,omitempty"`
	Audience        string          `json:"audience,omitempty"`
	Name            string          `json:"name"`
	Content         string          `json:"content,omitempty"`
	URL             string          `json:"url,omitempty"`
	Sensitive       bool            `json:"sensitive,omitempty"`
	CommentsEnabled *bool           `json:"commentsEnabled,omitempty"`
	Stickied        bool            `json:"stickied,omitempty"`
	Published       *time.Time      `json:"published,omitempty"`
	Updated         *time.Time      `json:"updated,omitempty"`
}

func (p *Page) Locked() bool {
	return p.CommentsEnabled != nil && !*p.CommentsEnabled
}

// CommunityURI names the community a page belongs to, taken from the
// audience field with the addressing list as fallback.
func (p *Page) CommunityURI() string {
	if p.Audience != "" {
		return p.Audience
	}
	for _, uri := range append(append([]string{}, p.To...), p.CC...) {
		if uri != PublicURL {
			return uri
		}
	}
	return ""
}

// PageDocument renders a post as a Page, audience set to its community.
func PageDocument(post *domain.Post, creator *domain.Person, community *domain.Community) *Page {
	enabled := !post.Locked
	published := post.Published
	page := &Page{
		Context:         DefaultContext,
		ID:              post.ApID,
		Type:            "Page",
		AttributedTo:    creator.ActorURI,
		To:              []string{community.ActorURI, PublicURL},
		Audience:        community.ActorURI,
		Name:            post.Name,
		Content:         post.Body,
		URL:             post.URL,
		CommentsEnabled: &enabled,
		Stickied:        post.Stickied,
		Published:       &published,
	}
	if post.Updated.After(post.Published) {
		updated := post.Updated
		page.Updated = &updated
	}
	return page
}

// Note is the wire form of a comment.
type Note struct {
	Context      json.RawMessage `json:"@context,omitempty"`
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	AttributedTo string          `json:"attributedTo"`
	To           []string        `json:"to,omitempty"`
	CC           []string        `json:"cc,omitempty"`
	Audience     string          `json:"audience,omitempty"`
	InReplyTo    string          `json:"inReplyTo"`
	Content      string          `json:"content"`
	Published    *time.Time      `json:"published,omitempty"`
	Updated      *time.Time      `json:"updated,omitempty"`
}

// NoteDocument renders a comment as a Note replying to its post.
func NoteDocument(comment *domain.Comment, creator *domain.Person, post *domain.Post, community *domain.Community) *Note {
	published := comment.Published
	note := &Note{
		Context:      DefaultContext,
		ID:           comment.ApID,
		Type:         "Note",
		AttributedTo: creator.ActorURI,
		To:           []string{PublicURL},
		CC:           []string{community.ActorURI},
		Audience:     community.ActorURI,
		InReplyTo:    post.ApID,
		Content:      comment.Content,
		Published:    &published,
	}
	if comment.Updated.After(comment.Published) {
		updated := comment.Updated
		note.Updated = &updated
	}
	return note
}

func hostOf(uri string) (string, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid uri %q: %w", uri, err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("uri %q has no host", uri)
	}
	return parsed.Host, nil
}
