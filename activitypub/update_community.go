package activitypub

import (
	"encoding/json"
	"fmt"

	"github.com/deemkeen/agora/domain"
)

// UpdateCommunityHandler applies a community profile edit. The Update
// carries the full Group document and only moderators may send it.
type UpdateCommunityHandler struct{}

func (h *UpdateCommunityHandler) parseGroup(env *Envelope) (*ActorDocument, error) {
	var group ActorDocument
	if err := json.Unmarshal(env.Object, &group); err != nil {
		return nil, fmt.Errorf("%w: invalid group object", ErrVerificationFailed)
	}
	if group.Type != KindGroup {
		return nil, fmt.Errorf("%w: update of %s", ErrUnsupportedActivity, group.Type)
	}
	if err := group.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	return &group, nil
}

func (h *UpdateCommunityHandler) Verify(ctx *Context, env *Envelope, budget *RequestBudget) error {
	group, err := h.parseGroup(env)
	if err != nil {
		return err
	}
	community, err := ctx.Resolver.Community(group.ID, budget)
	if err != nil {
		return err
	}
	if err := verifyPersonInCommunity(ctx, env.Actor, community, budget); err != nil {
		return err
	}
	return verifyModAction(ctx, env.Actor, community, budget)
}

func (h *UpdateCommunityHandler) Receive(ctx *Context, env *Envelope, budget *RequestBudget) error {
	group, err := h.parseGroup(env)
	if err != nil {
		return err
	}
	existing, err := ctx.Store.CommunityByURI(group.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, group.ID)
	}

	// A profile edit rewrites presentation only. Keys, inbox uris and
	// the follower collection stay whatever the row already holds, no
	// matter what the Group document claims.
	var icon, banner string
	if group.Icon != nil {
		icon = group.Icon.URL
	}
	if group.Image != nil {
		banner = group.Image.URL
	}
	err = ctx.Store.UpdateCommunityProfile(existing.Id,
		group.PreferredUsername, group.Name, group.Summary,
		group.Sensitive, icon, banner)
	if err != nil {
		return err
	}

	ctx.Notify.Applied(OpUpdateCommunity, env.Actor, group.ID)
	return maybeAnnounce(ctx, existing, env)
}

// SendUpdateCommunity publishes a community profile edit by a local
// moderator.
func SendUpdateCommunity(ctx *Context, mod *domain.Person, community *domain.Community) error {
	groupJSON, err := json.Marshal(CommunityDocument(community, ctx.Conf.BaseURL()))
	if err != nil {
		return err
	}
	update := &Envelope{
		ID:     GenerateActivityID(ctx.Conf.BaseURL(), KindUpdate),
		Kind:   KindUpdate,
		Actor:  mod.ActorURI,
		Object: groupJSON,
		To:     []string{PublicURL},
		CC:     []string{community.ActorURI},
	}
	return SendToCommunity(ctx, community, update, mod.ActorURI, nil)
}
