package activitypub

import (
	"encoding/json"
	"fmt"

	"github.com/deemkeen/agora/domain"
	"github.com/google/uuid"
)

// DeleteHandler covers both flavors of Delete. Without a summary it is
// a creator deleting their own object, with one it is a moderator
// removal and the summary is the removal reason. An empty summary is
// still a removal, just one without a stated reason.
type DeleteHandler struct{}

func (h *DeleteHandler) Verify(ctx *Context, env *Envelope, budget *RequestBudget) error {
	objectURI := env.ObjectID()
	if objectURI == "" {
		return fmt.Errorf("%w: delete without object", ErrVerificationFailed)
	}
	deletable, err := ctx.Resolver.Deletable(objectURI)
	if err != nil {
		return err
	}

	if env.Summary == nil {
		// Self-delete, the actor must own the object's domain.
		return verifyDomainsMatch(env.Actor, objectURI)
	}

	community, err := h.communityOf(ctx, deletable)
	if err != nil {
		return err
	}
	return verifyModAction(ctx, env.Actor, community, budget)
}

func (h *DeleteHandler) Receive(ctx *Context, env *Envelope, budget *RequestBudget) error {
	deletable, err := ctx.Resolver.Deletable(env.ObjectID())
	if err != nil {
		return err
	}
	if env.Summary != nil {
		return h.receiveRemove(ctx, env, deletable, budget)
	}
	return h.receiveDelete(ctx, env, deletable)
}

func (h *DeleteHandler) receiveDelete(ctx *Context, env *Envelope, deletable *Deletable) error {
	var err error
	switch {
	case deletable.Community != nil:
		err = ctx.Store.UpdateCommunityDeleted(deletable.Community.Id, true)
	case deletable.Post != nil:
		err = ctx.Store.UpdatePostDeleted(deletable.Post.Id, true)
	case deletable.Comment != nil:
		err = ctx.Store.UpdateCommentDeleted(deletable.Comment.Id, true)
	}
	if err != nil {
		return err
	}

	ctx.Notify.Applied(OpDelete, env.Actor, env.ObjectID())
	community, err := h.communityOf(ctx, deletable)
	if err != nil {
		return err
	}
	return maybeAnnounce(ctx, community, env)
}

func (h *DeleteHandler) receiveRemove(ctx *Context, env *Envelope, deletable *Deletable, budget *RequestBudget) error {
	// Authority over a local community stays local, a remote moderator
	// cannot remove it no matter what they moderate.
	if deletable.Community != nil && deletable.Community.Local {
		return fmt.Errorf("%w: %s", ErrLocalOnlyRemoval, deletable.Community.ActorURI)
	}

	mod, err := ctx.Resolver.Person(env.Actor, budget)
	if err != nil {
		return err
	}

	var reason *string
	if *env.Summary != "" {
		reason = env.Summary
	}

	var targetType string
	var targetId uuid.UUID
	switch {
	case deletable.Community != nil:
		if err := ctx.Store.UpdateCommunityRemoved(deletable.Community.Id, true); err != nil {
			return err
		}
		targetType, targetId = domain.ModLogTargetCommunity, deletable.Community.Id
	case deletable.Post != nil:
		if err := ctx.Store.UpdatePostRemoved(deletable.Post.Id, true); err != nil {
			return err
		}
		targetType, targetId = domain.ModLogTargetPost, deletable.Post.Id
	case deletable.Comment != nil:
		if err := ctx.Store.UpdateCommentRemoved(deletable.Comment.Id, true); err != nil {
			return err
		}
		targetType, targetId = domain.ModLogTargetComment, deletable.Comment.Id
	}

	err = ctx.Store.CreateModLogEntry(&domain.ModLogEntry{
		ModPersonId: mod.Id,
		TargetType:  targetType,
		TargetId:    targetId,
		Reason:      reason,
		Removed:     true,
	})
	if err != nil {
		return err
	}

	ctx.Notify.Applied(OpRemove, env.Actor, env.ObjectID())
	community, err := h.communityOf(ctx, deletable)
	if err != nil {
		return err
	}
	return maybeAnnounce(ctx, community, env)
}

func (h *DeleteHandler) communityOf(ctx *Context, deletable *Deletable) (*domain.Community, error) {
	if deletable.Community != nil {
		return deletable.Community, nil
	}
	post := deletable.Post
	if post == nil {
		var err error
		post, err = ctx.Store.PostByID(deletable.Comment.PostId)
		if err != nil {
			return nil, err
		}
		if post == nil {
			return nil, fmt.Errorf("%w: parent post of %s", ErrObjectNotFound, deletable.Comment.ApID)
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

// SendDelete publishes a creator deleting their own object.
func SendDelete(ctx *Context, actorURI, objectURI string, community *domain.Community, signAsURI string) error {
	del := &Envelope{
		ID:     GenerateActivityID(ctx.Conf.BaseURL(), KindDelete),
		Kind:   KindDelete,
		Actor:  actorURI,
		Object: json.RawMessage(fmt.Sprintf("%q", objectURI)),
		To:     []string{PublicURL},
		CC:     []string{community.ActorURI},
	}
	return SendToCommunity(ctx, community, del, signAsURI, nil)
}

// SendRemove publishes a moderator removal with an optional reason.
func SendRemove(ctx *Context, mod *domain.Person, objectURI string, reason string, community *domain.Community) error {
	rm := &Envelope{
		ID:      GenerateActivityID(ctx.Conf.BaseURL(), KindDelete),
		Kind:    KindDelete,
		Actor:   mod.ActorURI,
		Object:  json.RawMessage(fmt.Sprintf("%q", objectURI)),
		Summary: &reason,
		To:      []string{PublicURL},
		CC:      []string{community.ActorURI},
	}
	return SendToCommunity(ctx, community, rm, mod.ActorURI, nil)
}
