package activitypub

import (
	"time"

	"github.com/deemkeen/agora/domain"
	"github.com/deemkeen/agora/util"
	"github.com/google/uuid"
)

// Store is the persistence surface the engine needs. *db.DB satisfies
// it, tests may substitute a database in a temp dir.
type Store interface {
	PersonByURI(uri string) (*domain.Person, error)
	UpsertPerson(p *domain.Person) error

	CommunityByURI(uri string) (*domain.Community, error)
	CommunityByID(id uuid.UUID) (*domain.Community, error)
	UpsertCommunity(c *domain.Community) error
	UpdateCommunityProfile(id uuid.UUID, name, title, description string, nsfw bool, icon, banner string) error
	UpdateCommunityRemoved(id uuid.UUID, removed bool) error
	UpdateCommunityDeleted(id uuid.UUID, deleted bool) error

	PostByURI(uri string) (*domain.Post, error)
	PostByID(id uuid.UUID) (*domain.Post, error)
	UpsertPost(p *domain.Post) error
	UpdatePostRemoved(id uuid.UUID, removed bool) error
	UpdatePostDeleted(id uuid.UUID, deleted bool) error

	CommentByURI(uri string) (*domain.Comment, error)
	UpsertComment(c *domain.Comment) error
	UpdateCommentRemoved(id uuid.UUID, removed bool) error
	UpdateCommentDeleted(id uuid.UUID, deleted bool) error

	JoinModerator(communityId, personId uuid.UUID) error
	PersonModeratedCommunities(personId uuid.UUID) ([]uuid.UUID, error)

	CreateFollower(f *domain.CommunityFollower) error
	AcceptFollower(communityId, personId uuid.UUID) error
	DeleteFollower(communityId, personId uuid.UUID) error
	IsFollower(communityId, personId uuid.UUID) (bool, error)
	FollowerInboxes(communityId uuid.UUID) ([]string, error)

	UpsertPostVote(postId, personId uuid.UUID, score int) error
	UpsertCommentVote(commentId, personId uuid.UUID, score int) error

	CreateModLogEntry(e *domain.ModLogEntry) error

	CreateReceivedActivity(a *domain.ReceivedActivity) (bool, error)
	ReceivedActivityByURI(uri string) (*domain.ReceivedActivity, error)
	MarkActivityProcessed(uri string) error

	EnqueueDelivery(item *domain.DeliveryQueueItem) error
	PendingDeliveries(limit int) ([]domain.DeliveryQueueItem, error)
	UpdateDeliveryAttempt(id uuid.UUID, attempts int, nextRetry time.Time) error
	DeleteDelivery(id uuid.UUID) error
}

// Context bundles what every handler needs. One Context is built at
// startup and shared, all state lives in the store.
type Context struct {
	Store    Store
	Conf     *util.AppConfig
	Resolver *Resolver
	Notify   Notifier
}

// NewContext wires a Context with a resolver over the same store.
func NewContext(store Store, conf *util.AppConfig, notify Notifier) *Context {
	if notify == nil {
		notify = NopNotifier{}
	}
	return &Context{
		Store:    store,
		Conf:     conf,
		Resolver: NewResolver(store, conf),
		Notify:   notify,
	}
}

// NewBudget returns a fresh fetch budget for one incoming activity.
func (c *Context) NewBudget() *RequestBudget {
	return NewRequestBudget(c.Conf.Conf.Federation.RequestBudget)
}
