package activitypub

import (
	"encoding/json"
	"fmt"

	"github.com/deemkeen/agora/domain"
)

// VoteScore maps the activity kind to its score delta.
func VoteScore(kind string) (int, error) {
	switch kind {
	case KindLike:
		return 1, nil
	case KindDislike:
		return -1, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrInvalidVote, kind)
	}
}

// VoteKind maps a score back to its activity kind.
func VoteKind(score int) (string, error) {
	switch score {
	case 1:
		return KindLike, nil
	case -1:
		return KindDislike, nil
	default:
		return "", fmt.Errorf("%w: %d", ErrInvalidVote, score)
	}
}

// VoteHandler applies Like and Dislike to posts and comments. One row
// per person and target, so a re-vote replaces instead of stacking.
type VoteHandler struct{}

func (h *VoteHandler) Verify(ctx *Context, env *Envelope, budget *RequestBudget) error {
	if _, err := VoteScore(env.Kind); err != nil {
		return err
	}
	objectURI := env.ObjectID()
	if objectURI == "" {
		return fmt.Errorf("%w: vote without object", ErrVerificationFailed)
	}
	object, err := ctx.Resolver.PostOrComment(objectURI, budget)
	if err != nil {
		return err
	}
	community, err := h.communityOf(ctx, object)
	if err != nil {
		return err
	}
	return verifyPersonInCommunity(ctx, env.Actor, community, budget)
}

func (h *VoteHandler) Receive(ctx *Context, env *Envelope, budget *RequestBudget) error {
	score, err := VoteScore(env.Kind)
	if err != nil {
		return err
	}
	person, err := ctx.Resolver.Person(env.Actor, budget)
	if err != nil {
		return err
	}
	object, err := ctx.Resolver.PostOrComment(env.ObjectID(), budget)
	if err != nil {
		return err
	}

	if object.Post != nil {
		err = ctx.Store.UpsertPostVote(object.Post.Id, person.Id, score)
	} else {
		err = ctx.Store.UpsertCommentVote(object.Comment.Id, person.Id, score)
	}
	if err != nil {
		return err
	}

	ctx.Notify.Applied(OpVote, person.ActorURI, object.URI())
	community, err := h.communityOf(ctx, object)
	if err != nil {
		return err
	}
	return maybeAnnounce(ctx, community, env)
}

func (h *VoteHandler) communityOf(ctx *Context, object *ResolvedObject) (*domain.Community, error) {
	post := object.Post
	if post == nil {
		var err error
		post, err = ctx.Store.PostByID(object.Comment.PostId)
		if err != nil {
			return nil, err
		}
		if post == nil {
			return nil, fmt.Errorf("%w: parent post of %s", ErrObjectNotFound, object.Comment.ApID)
		}
	}
	community, err := ctx.Store.CommunityByID(post.CommunityId)
	if err != nil {
		return nil, err
	}
	if community == nil {
		return nil, fmt.Errorf("%w: community of %s", ErrObjectNotFound, post.ApID)
	}
	return community, nil
}

// SendVote publishes a local vote on a post or comment.
func SendVote(ctx *Context, person *domain.Person, objectURI string, score int, community *domain.Community) error {
	kind, err := VoteKind(score)
	if err != nil {
		return err
	}
	vote := &Envelope{
		ID:     GenerateActivityID(ctx.Conf.BaseURL(), kind),
		Kind:   kind,
		Actor:  person.ActorURI,
		Object: json.RawMessage(fmt.Sprintf("%q", objectURI)),
		CC:     []string{community.ActorURI},
	}
	return SendToCommunity(ctx, community, vote, person.ActorURI, nil)
}
