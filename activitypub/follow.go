package activitypub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/deemkeen/agora/domain"
)

// FollowHandler processes a remote person following one of our
// communities. Membership is recorded and an Accept goes back.
type FollowHandler struct{}

func (h *FollowHandler) Verify(ctx *Context, env *Envelope, budget *RequestBudget) error {
	objectURI := env.ObjectID()
	if objectURI == "" {
		return fmt.Errorf("%w: follow without object", ErrVerificationFailed)
	}
	community, err := ctx.Store.CommunityByURI(objectURI)
	if err != nil {
		return err
	}
	if community == nil || !community.Local {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, objectURI)
	}
	if community.Removed || community.Deleted {
		return fmt.Errorf("%w: community is gone", ErrVerificationFailed)
	}
	return nil
}

func (h *FollowHandler) Receive(ctx *Context, env *Envelope, budget *RequestBudget) error {
	community, err := ctx.Store.CommunityByURI(env.ObjectID())
	if err != nil {
		return err
	}
	person, err := ctx.Resolver.Person(env.Actor, budget)
	if err != nil {
		return err
	}

	// A repeated follow converges on the existing row.
	err = ctx.Store.CreateFollower(&domain.CommunityFollower{
		CommunityId: community.Id,
		PersonId:    person.Id,
		Pending:     false,
	})
	if err != nil {
		return err
	}

	if err := SendAccept(ctx, community, person, env); err != nil {
		return err
	}
	ctx.Notify.Applied(OpFollow, person.ActorURI, community.ActorURI)
	return nil
}

// AcceptHandler finalizes an outbound follow. The remote community
// confirms, the pending flag drops.
type AcceptHandler struct{}

func (h *AcceptHandler) Verify(ctx *Context, env *Envelope, budget *RequestBudget) error {
	inner, err := env.InnerEnvelope()
	if err != nil {
		return fmt.Errorf("%w: accept without embedded follow", ErrVerificationFailed)
	}
	if inner.Kind != KindFollow {
		return fmt.Errorf("%w: accept of %s", ErrUnsupportedActivity, inner.Kind)
	}
	// The accepting actor must be the community the follow addressed.
	if err := verifyURLsMatch(env.Actor, inner.ObjectID()); err != nil {
		return err
	}
	person, err := ctx.Store.PersonByURI(inner.Actor)
	if err != nil {
		return err
	}
	if person == nil || !person.Local {
		return fmt.Errorf("%w: accept for unknown follower %s", ErrVerificationFailed, inner.Actor)
	}
	return nil
}

func (h *AcceptHandler) Receive(ctx *Context, env *Envelope, budget *RequestBudget) error {
	inner, err := env.InnerEnvelope()
	if err != nil {
		return err
	}
	community, err := ctx.Resolver.Community(env.Actor, budget)
	if err != nil {
		return err
	}
	person, err := ctx.Store.PersonByURI(inner.Actor)
	if err != nil {
		return err
	}
	if err := ctx.Store.AcceptFollower(community.Id, person.Id); err != nil {
		return err
	}
	ctx.Notify.Applied(OpFollow, person.ActorURI, community.ActorURI)
	return nil
}

// SendFollow subscribes a local person to a remote community. The
// relation stays pending until the Accept arrives.
func SendFollow(ctx *Context, person *domain.Person, communityURI string) error {
	budget := ctx.NewBudget()
	community, err := ctx.Resolver.Community(communityURI, budget)
	if err != nil {
		return err
	}

	follow := &Envelope{
		ID:     GenerateActivityID(ctx.Conf.BaseURL(), KindFollow),
		Kind:   KindFollow,
		Actor:  person.ActorURI,
		Object: json.RawMessage(fmt.Sprintf("%q", community.ActorURI)),
		To:     []string{community.ActorURI},
	}

	err = ctx.Store.CreateFollower(&domain.CommunityFollower{
		CommunityId: community.Id,
		PersonId:    person.Id,
		Pending:     true,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		return err
	}

	return SendActivity(ctx, follow, []string{community.SharedInboxOrInbox()}, person.ActorURI)
}

// SendAccept answers a Follow, echoing the follow activity back as the
// accepted object.
func SendAccept(ctx *Context, community *domain.Community, follower *domain.Person, follow *Envelope) error {
	followJSON, err := json.Marshal(follow)
	if err != nil {
		return err
	}
	accept := &Envelope{
		ID:     GenerateActivityID(ctx.Conf.BaseURL(), KindAccept),
		Kind:   KindAccept,
		Actor:  community.ActorURI,
		Object: followJSON,
		To:     []string{follower.ActorURI},
	}
	return SendActivity(ctx, accept, []string{follower.SharedInboxOrInbox()}, community.ActorURI)
}
