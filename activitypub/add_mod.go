package activitypub

import (
	"encoding/json"
	"fmt"

	"github.com/deemkeen/agora/domain"
)

// AddModHandler appoints a moderator. The Add must target the
// community's canonical moderators collection and come from an actor
// who already moderates the community.
type AddModHandler struct{}

func (h *AddModHandler) Verify(ctx *Context, env *Envelope, budget *RequestBudget) error {
	if env.Target == "" {
		return fmt.Errorf("%w: add without target", ErrVerificationFailed)
	}
	if env.ObjectID() == "" {
		return fmt.Errorf("%w: add without object", ErrVerificationFailed)
	}
	community, err := communityFromAudience(ctx, env, budget)
	if err != nil {
		return err
	}
	if err := verifyAddRemoveModeratorTarget(env.Target, community); err != nil {
		return err
	}
	if err := verifyPersonInCommunity(ctx, env.Actor, community, budget); err != nil {
		return err
	}
	return verifyModAction(ctx, env.Actor, community, budget)
}

func (h *AddModHandler) Receive(ctx *Context, env *Envelope, budget *RequestBudget) error {
	community, err := communityFromAudience(ctx, env, budget)
	if err != nil {
		return err
	}
	person, err := ctx.Resolver.Person(env.ObjectID(), budget)
	if err != nil {
		return err
	}

	// Resolving the person above may have pulled in the community's
	// moderator list already, in which case there is nothing to add.
	moderated, err := ctx.Store.PersonModeratedCommunities(person.Id)
	if err != nil {
		return err
	}
	for _, id := range moderated {
		if id == community.Id {
			return nil
		}
	}

	if err := ctx.Store.JoinModerator(community.Id, person.Id); err != nil {
		return err
	}
	ctx.Notify.Applied(OpAddModerator, env.Actor, person.ActorURI)
	return maybeAnnounce(ctx, community, env)
}

// SendAddMod publishes a moderator appointment from a local community.
func SendAddMod(ctx *Context, community *domain.Community, mod *domain.Person, added *domain.Person) error {
	add := &Envelope{
		ID:     GenerateActivityID(ctx.Conf.BaseURL(), KindAdd),
		Kind:   KindAdd,
		Actor:  mod.ActorURI,
		Object: json.RawMessage(fmt.Sprintf("%q", added.ActorURI)),
		Target: community.ModeratorsURI(),
		To:     []string{PublicURL},
		CC:     []string{community.ActorURI},
	}
	return SendToCommunity(ctx, community, add, mod.ActorURI, nil)
}

// communityFromAudience finds the community an activity addresses by
// scanning its audience fields for a known or fetchable Group.
func communityFromAudience(ctx *Context, env *Envelope, budget *RequestBudget) (*domain.Community, error) {
	candidates := append(append([]string{}, env.To...), env.CC...)
	for _, uri := range candidates {
		if uri == PublicURL {
			continue
		}
		community, err := ctx.Store.CommunityByURI(uri)
		if err != nil {
			return nil, err
		}
		if community != nil {
			return community, nil
		}
	}
	// Nothing cached, try the network.
	for _, uri := range candidates {
		if uri == PublicURL {
			continue
		}
		community, err := ctx.Resolver.Community(uri, budget)
		if err == nil {
			return community, nil
		}
	}
	return nil, fmt.Errorf("%w: no community in audience", ErrVerificationFailed)
}
