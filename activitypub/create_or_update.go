package activitypub

import (
	"encoding/json"
	"fmt"

	"github.com/deemkeen/agora/domain"
)

// CreateOrUpdateHandler ingests posts and comments. Create and Update
// share the shape, Update additionally distinguishes a moderator
// changing the locked or stickied state from the creator editing
// content.
type CreateOrUpdateHandler struct{}

func (h *CreateOrUpdateHandler) Verify(ctx *Context, env *Envelope, budget *RequestBudget) error {
	switch env.ObjectKind() {
	case KindPage, "Article":
		return h.verifyPage(ctx, env, budget)
	case KindNote:
		return h.verifyNote(ctx, env, budget)
	default:
		return fmt.Errorf("%w: %s of %s", ErrUnsupportedActivity, env.Kind, env.ObjectKind())
	}
}

func (h *CreateOrUpdateHandler) verifyPage(ctx *Context, env *Envelope, budget *RequestBudget) error {
	var page Page
	if err := json.Unmarshal(env.Object, &page); err != nil {
		return fmt.Errorf("%w: invalid page object", ErrVerificationFailed)
	}
	if page.ID == "" || page.AttributedTo == "" {
		return fmt.Errorf("%w: page missing id or attribution", ErrVerificationFailed)
	}
	if err := verifyDomainsMatch(env.Actor, page.ID); err != nil {
		return err
	}

	communityURI := page.CommunityURI()
	if communityURI == "" {
		return fmt.Errorf("%w: page names no community", ErrVerificationFailed)
	}
	community, err := ctx.Resolver.Community(communityURI, budget)
	if err != nil {
		return err
	}
	if err := verifyPersonInCommunity(ctx, env.Actor, community, budget); err != nil {
		return err
	}

	existing, err := ctx.Store.PostByURI(page.ID)
	if err != nil {
		return err
	}

	modAction := false
	if existing != nil {
		modAction = existing.Locked != page.Locked() || existing.Stickied != page.Stickied
	}

	if env.Kind == KindCreate && community.Local && (page.Stickied || page.Locked()) {
		// New posts arrive unmoderated. Lock and sticky state on a
		// local community is set by a later moderator Update.
		return fmt.Errorf("%w: new post arrived locked or stickied", ErrVerificationFailed)
	}

	if modAction {
		return verifyModAction(ctx, env.Actor, community, budget)
	}
	return verifyURLsMatch(env.Actor, page.AttributedTo)
}

func (h *CreateOrUpdateHandler) verifyNote(ctx *Context, env *Envelope, budget *RequestBudget) error {
	var note Note
	if err := json.Unmarshal(env.Object, &note); err != nil {
		return fmt.Errorf("%w: invalid note object", ErrVerificationFailed)
	}
	if note.ID == "" || note.AttributedTo == "" || note.InReplyTo == "" {
		return fmt.Errorf("%w: note missing id, attribution or parent", ErrVerificationFailed)
	}
	if err := verifyDomainsMatch(env.Actor, note.ID); err != nil {
		return err
	}
	if err := verifyURLsMatch(env.Actor, note.AttributedTo); err != nil {
		return err
	}

	parent, err := ctx.Resolver.PostOrComment(note.InReplyTo, budget)
	if err != nil {
		return err
	}
	post, err := ctx.Store.PostByID(parent.PostID())
	if err != nil {
		return err
	}
	if post == nil {
		return fmt.Errorf("%w: parent of %s", ErrObjectNotFound, note.ID)
	}
	if post.Locked {
		return fmt.Errorf("%w: post is locked", ErrVerificationFailed)
	}
	community, err := ctx.Store.CommunityByID(post.CommunityId)
	if err != nil {
		return err
	}
	if community == nil {
		return fmt.Errorf("%w: community of %s", ErrObjectNotFound, post.ApID)
	}
	return verifyPersonInCommunity(ctx, env.Actor, community, budget)
}

func (h *CreateOrUpdateHandler) Receive(ctx *Context, env *Envelope, budget *RequestBudget) error {
	switch env.ObjectKind() {
	case KindPage, "Article":
		var page Page
		if err := json.Unmarshal(env.Object, &page); err != nil {
			return fmt.Errorf("%w: invalid page object", ErrVerificationFailed)
		}
		post, err := ctx.Resolver.IngestPage(&page, budget)
		if err != nil {
			return err
		}
		op := OpCreatePost
		if env.Kind == KindUpdate {
			op = OpUpdatePost
		}
		ctx.Notify.Applied(op, env.Actor, post.ApID)

		community, err := ctx.Store.CommunityByID(post.CommunityId)
		if err != nil {
			return err
		}
		return maybeAnnounce(ctx, community, env)
	case KindNote:
		var note Note
		if err := json.Unmarshal(env.Object, &note); err != nil {
			return fmt.Errorf("%w: invalid note object", ErrVerificationFailed)
		}
		comment, err := ctx.Resolver.IngestNote(&note, budget)
		if err != nil {
			return err
		}
		op := OpCreateComment
		if env.Kind == KindUpdate {
			op = OpUpdateComment
		}
		ctx.Notify.Applied(op, env.Actor, comment.ApID)

		post, err := ctx.Store.PostByID(comment.PostId)
		if err != nil {
			return err
		}
		community, err := ctx.Store.CommunityByID(post.CommunityId)
		if err != nil {
			return err
		}
		return maybeAnnounce(ctx, community, env)
	default:
		return fmt.Errorf("%w: %s of %s", ErrUnsupportedActivity, env.Kind, env.ObjectKind())
	}
}

// SendCreateOrUpdatePost publishes a local post as Create or Update.
func SendCreateOrUpdatePost(ctx *Context, kind string, post *domain.Post, creator *domain.Person, community *domain.Community) error {
	pageJSON, err := json.Marshal(PageDocument(post, creator, community))
	if err != nil {
		return err
	}
	activity := &Envelope{
		ID:     GenerateActivityID(ctx.Conf.BaseURL(), kind),
		Kind:   kind,
		Actor:  creator.ActorURI,
		Object: pageJSON,
		To:     []string{PublicURL},
		CC:     []string{community.ActorURI},
	}
	return SendToCommunity(ctx, community, activity, creator.ActorURI, nil)
}

// SendCreateOrUpdateComment publishes a local comment.
func SendCreateOrUpdateComment(ctx *Context, kind string, comment *domain.Comment, creator *domain.Person, post *domain.Post, community *domain.Community) error {
	noteJSON, err := json.Marshal(NoteDocument(comment, creator, post, community))
	if err != nil {
		return err
	}
	activity := &Envelope{
		ID:     GenerateActivityID(ctx.Conf.BaseURL(), kind),
		Kind:   kind,
		Actor:  creator.ActorURI,
		Object: noteJSON,
		To:     []string{PublicURL},
		CC:     []string{community.ActorURI},
	}
	return SendToCommunity(ctx, community, activity, creator.ActorURI, nil)
}
