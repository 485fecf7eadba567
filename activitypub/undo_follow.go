package activitypub

import (
	"fmt"
)

// UndoFollowHandler processes an unfollow. The wrapped Follow must
// name the same actor and the same community as the Undo around it,
// otherwise one actor could revoke another's membership.
type UndoFollowHandler struct{}

func (h *UndoFollowHandler) Verify(ctx *Context, env *Envelope, budget *RequestBudget) error {
	inner, err := env.InnerEnvelope()
	if err != nil {
		return fmt.Errorf("%w: undo without embedded follow", ErrVerificationFailed)
	}
	if err := verifyURLsMatch(env.Actor, inner.Actor); err != nil {
		return err
	}
	communityURI := inner.ObjectID()
	if communityURI == "" {
		return fmt.Errorf("%w: follow without object", ErrVerificationFailed)
	}
	community, err := ctx.Store.CommunityByURI(communityURI)
	if err != nil {
		return err
	}
	if community == nil || !community.Local {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, communityURI)
	}
	return nil
}

func (h *UndoFollowHandler) Receive(ctx *Context, env *Envelope, budget *RequestBudget) error {
	inner, err := env.InnerEnvelope()
	if err != nil {
		return err
	}
	community, err := ctx.Store.CommunityByURI(inner.ObjectID())
	if err != nil {
		return err
	}
	person, err := ctx.Store.PersonByURI(env.Actor)
	if err != nil {
		return err
	}
	if person == nil {
		// Nothing to unfollow from an actor we have never seen.
		return nil
	}

	// Deleting an absent relation is a no-op, repeated or spurious
	// unfollows are swallowed.
	if err := ctx.Store.DeleteFollower(community.Id, person.Id); err != nil {
		return err
	}
	ctx.Notify.Applied(OpUnfollow, person.ActorURI, community.ActorURI)
	return nil
}
