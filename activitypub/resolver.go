package activitypub

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/deemkeen/agora/domain"
	"github.com/deemkeen/agora/util"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const actorCacheTTL = 24 * time.Hour

// RequestBudget caps how many remote fetches a single incoming
// activity may trigger. Processing one activity never recurses into
// unbounded dereferencing.
type RequestBudget struct {
	remaining int
}

func NewRequestBudget(limit int) *RequestBudget {
	return &RequestBudget{remaining: limit}
}

// Spend consumes one fetch, failing once the budget is used up.
func (b *RequestBudget) Spend() error {
	if b.remaining <= 0 {
		return ErrBudgetExhausted
	}
	b.remaining--
	return nil
}

func (b *RequestBudget) Remaining() int {
	return b.remaining
}

// Resolver turns uris into store rows, hitting the network only when
// the cache is missing or stale and the budget allows it.
type Resolver struct {
	store  Store
	conf   *util.AppConfig
	client *http.Client
}

func NewResolver(store Store, conf *util.AppConfig) *Resolver {
	return &Resolver{
		store:  store,
		conf:   conf,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Person resolves a person uri. Local rows and fresh cached rows are
// served from the store without touching the budget.
func (r *Resolver) Person(uri string, budget *RequestBudget) (*domain.Person, error) {
	cached, err := r.store.PersonByURI(uri)
	if err != nil {
		return nil, err
	}
	if cached != nil && (cached.Local || time.Since(cached.LastFetchedAt) < actorCacheTTL) {
		return cached, nil
	}

	doc, err := r.fetchDocument(uri, budget)
	if err != nil {
		if cached != nil {
			// Stale cache beats a failed refresh.
			return cached, nil
		}
		return nil, err
	}

	var actor ActorDocument
	if err := json.Unmarshal(doc, &actor); err != nil {
		return nil, fmt.Errorf("failed to parse actor json: %w", err)
	}
	if err := verifySameHost(uri, actor.ID); err != nil {
		return nil, err
	}
	person, err := PersonFromActor(&actor)
	if err != nil {
		return nil, err
	}
	if err := r.store.UpsertPerson(person); err != nil {
		return nil, err
	}
	return r.store.PersonByURI(person.ActorURI)
}

// Community resolves a community uri, same caching rules as Person.
func (r *Resolver) Community(uri string, budget *RequestBudget) (*domain.Community, error) {
	cached, err := r.store.CommunityByURI(uri)
	if err != nil {
		return nil, err
	}
	if cached != nil && (cached.Local || time.Since(cached.LastFetchedAt) < actorCacheTTL) {
		return cached, nil
	}

	doc, err := r.fetchDocument(uri, budget)
	if err != nil {
		if cached != nil {
			return cached, nil
		}
		return nil, err
	}

	var actor ActorDocument
	if err := json.Unmarshal(doc, &actor); err != nil {
		return nil, fmt.Errorf("failed to parse actor json: %w", err)
	}
	if err := verifySameHost(uri, actor.ID); err != nil {
		return nil, err
	}
	community, err := CommunityFromActor(&actor)
	if err != nil {
		return nil, err
	}
	if err := r.store.UpsertCommunity(community); err != nil {
		return nil, err
	}
	return r.store.CommunityByURI(community.ActorURI)
}

// ResolvedObject is the union a content uri can resolve to.
type ResolvedObject struct {
	Post    *domain.Post
	Comment *domain.Comment
}

// PostID returns the post the object belongs to, the post itself for
// pages and the parent for comments.
func (o *ResolvedObject) PostID() uuid.UUID {
	if o.Post != nil {
		return o.Post.Id
	}
	return o.Comment.PostId
}

// URI returns the canonical id of the resolved object.
func (o *ResolvedObject) URI() string {
	if o.Post != nil {
		return o.Post.ApID
	}
	return o.Comment.ApID
}

// PostOrComment resolves a content uri, fetching and ingesting an
// unseen Page or Note along with its creator and community.
func (r *Resolver) PostOrComment(uri string, budget *RequestBudget) (*ResolvedObject, error) {
	if post, err := r.store.PostByURI(uri); err != nil {
		return nil, err
	} else if post != nil {
		return &ResolvedObject{Post: post}, nil
	}
	if comment, err := r.store.CommentByURI(uri); err != nil {
		return nil, err
	} else if comment != nil {
		return &ResolvedObject{Comment: comment}, nil
	}

	doc, err := r.fetchDocument(uri, budget)
	if err != nil {
		return nil, err
	}
	var peek struct {
		Kind string `json:"type"`
	}
	if err := json.Unmarshal(doc, &peek); err != nil {
		return nil, fmt.Errorf("failed to parse object json: %w", err)
	}

	switch peek.Kind {
	case "Page", "Article":
		var page Page
		if err := json.Unmarshal(doc, &page); err != nil {
			return nil, fmt.Errorf("failed to parse page: %w", err)
		}
		if err := verifySameHost(uri, page.ID); err != nil {
			return nil, err
		}
		post, err := r.IngestPage(&page, budget)
		if err != nil {
			return nil, err
		}
		return &ResolvedObject{Post: post}, nil
	case "Note":
		var note Note
		if err := json.Unmarshal(doc, &note); err != nil {
			return nil, fmt.Errorf("failed to parse note: %w", err)
		}
		if err := verifySameHost(uri, note.ID); err != nil {
			return nil, err
		}
		comment, err := r.IngestNote(&note, budget)
		if err != nil {
			return nil, err
		}
		return &ResolvedObject{Comment: comment}, nil
	default:
		return nil, fmt.Errorf("%w: object type %q", ErrUnsupportedActivity, peek.Kind)
	}
}

// IngestPage stores a remote Page after resolving its creator and
// community.
func (r *Resolver) IngestPage(page *Page, budget *RequestBudget) (*domain.Post, error) {
	creator, err := r.Person(page.AttributedTo, budget)
	if err != nil {
		return nil, err
	}
	communityURI := page.CommunityURI()
	if communityURI == "" {
		return nil, fmt.Errorf("page %s names no community", page.ID)
	}
	community, err := r.Community(communityURI, budget)
	if err != nil {
		return nil, err
	}

	post := &domain.Post{
		ApID:        page.ID,
		Name:        page.Name,
		URL:         page.URL,
		Body:        page.Content,
		CreatorId:   creator.Id,
		CommunityId: community.Id,
		Locked:      page.Locked(),
		Stickied:    page.Stickied,
		Local:       false,
	}
	if page.Published != nil {
		post.Published = *page.Published
	}
	if page.Updated != nil {
		post.Updated = *page.Updated
	}
	if err := r.store.UpsertPost(post); err != nil {
		return nil, err
	}
	return r.store.PostByURI(post.ApID)
}

// IngestNote stores a remote Note after resolving its creator and the
// post it replies to.
func (r *Resolver) IngestNote(note *Note, budget *RequestBudget) (*domain.Comment, error) {
	creator, err := r.Person(note.AttributedTo, budget)
	if err != nil {
		return nil, err
	}
	parent, err := r.PostOrComment(note.InReplyTo, budget)
	if err != nil {
		return nil, err
	}
	postId := parent.PostID()

	comment := &domain.Comment{
		ApID:      note.ID,
		Content:   note.Content,
		CreatorId: creator.Id,
		PostId:    postId,
		Local:     false,
	}
	if note.Published != nil {
		comment.Published = *note.Published
	}
	if note.Updated != nil {
		comment.Updated = *note.Updated
	}
	if err := r.store.UpsertComment(comment); err != nil {
		return nil, err
	}
	return r.store.CommentByURI(comment.ApID)
}

// Deletable looks up what a Delete target uri refers to. Deletes never
// fetch, an unknown target is simply not ours to delete.
type Deletable struct {
	Community *domain.Community
	Post      *domain.Post
	Comment   *domain.Comment
}

func (r *Resolver) Deletable(uri string) (*Deletable, error) {
	if community, err := r.store.CommunityByURI(uri); err != nil {
		return nil, err
	} else if community != nil {
		return &Deletable{Community: community}, nil
	}
	if post, err := r.store.PostByURI(uri); err != nil {
		return nil, err
	} else if post != nil {
		return &Deletable{Post: post}, nil
	}
	if comment, err := r.store.CommentByURI(uri); err != nil {
		return nil, err
	} else if comment != nil {
		return &Deletable{Comment: comment}, nil
	}
	return nil, ErrObjectNotFound
}

// ActorKey returns the public key of an actor uri regardless of
// whether it names a person or a community, caching the actor on the
// way.
func (r *Resolver) ActorKey(uri string, budget *RequestBudget) (string, error) {
	if person, err := r.store.PersonByURI(uri); err != nil {
		return "", err
	} else if person != nil && (person.Local || time.Since(person.LastFetchedAt) < actorCacheTTL) {
		return person.PublicKeyPem, nil
	}
	if community, err := r.store.CommunityByURI(uri); err != nil {
		return "", err
	} else if community != nil && (community.Local || time.Since(community.LastFetchedAt) < actorCacheTTL) {
		return community.PublicKeyPem, nil
	}

	doc, err := r.fetchDocument(uri, budget)
	if err != nil {
		return "", err
	}
	var actor ActorDocument
	if err := json.Unmarshal(doc, &actor); err != nil {
		return "", fmt.Errorf("failed to parse actor json: %w", err)
	}
	if err := verifySameHost(uri, actor.ID); err != nil {
		return "", err
	}

	if actor.Type == "Group" {
		community, err := CommunityFromActor(&actor)
		if err != nil {
			return "", err
		}
		if err := r.store.UpsertCommunity(community); err != nil {
			return "", err
		}
		return community.PublicKeyPem, nil
	}
	person, err := PersonFromActor(&actor)
	if err != nil {
		return "", err
	}
	if err := r.store.UpsertPerson(person); err != nil {
		return "", err
	}
	return person.PublicKeyPem, nil
}

func (r *Resolver) fetchDocument(uri string, budget *RequestBudget) ([]byte, error) {
	if err := budget.Spend(); err != nil {
		return nil, err
	}
	host, err := hostOf(uri)
	if err != nil {
		return nil, err
	}
	if !r.conf.HostAllowed(host) {
		return nil, fmt.Errorf("%w: %s", ErrInstanceBlocked, host)
	}

	req, err := http.NewRequest("GET", uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.GetNameAndVersion()+" ActivityPub")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch of %s failed with status %d", uri, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	log.Debug().Str("uri", uri).Int("remaining", budget.Remaining()).Msg("fetched remote document")
	return body, nil
}

// verifySameHost rejects documents whose canonical id lives on a
// different host than the uri they were fetched from.
func verifySameHost(requested, found string) error {
	reqHost, err := hostOf(requested)
	if err != nil {
		return err
	}
	foundHost, err := hostOf(found)
	if err != nil {
		return err
	}
	if reqHost != foundHost {
		return fmt.Errorf("%w: fetched %s but document claims %s", ErrDomainMismatch, requested, found)
	}
	return nil
}
