package activitypub

import (
	"encoding/json"
	"fmt"

	"github.com/deemkeen/agora/domain"
	"github.com/rs/zerolog/log"
)

// Activity and object type names used on the wire.
const (
	KindAccept   = "Accept"
	KindAdd      = "Add"
	KindAnnounce = "Announce"
	KindCreate   = "Create"
	KindDelete   = "Delete"
	KindDislike  = "Dislike"
	KindFollow   = "Follow"
	KindLike     = "Like"
	KindUndo     = "Undo"
	KindUpdate   = "Update"

	KindGroup = "Group"
	KindNote  = "Note"
	KindPage  = "Page"
)

// ActivityHandler is the two-phase contract every activity class
// implements. Verify does all checks and rejections without writing,
// Receive applies the state change. The dispatcher records the
// activity id between the two, so Receive runs at most once per id.
type ActivityHandler interface {
	Verify(ctx *Context, env *Envelope, budget *RequestBudget) error
	Receive(ctx *Context, env *Envelope, budget *RequestBudget) error
}

// ParseAnnouncable picks the handler for an envelope. The set of
// understood activities is closed, anything else is unsupported.
func ParseAnnouncable(env *Envelope) (ActivityHandler, error) {
	switch env.Kind {
	case KindFollow:
		return &FollowHandler{}, nil
	case KindAccept:
		return &AcceptHandler{}, nil
	case KindUndo:
		inner, err := env.InnerEnvelope()
		if err != nil {
			return nil, fmt.Errorf("%w: undo without embedded activity", ErrUnsupportedActivity)
		}
		if inner.Kind != KindFollow {
			return nil, fmt.Errorf("%w: undo of %s", ErrUnsupportedActivity, inner.Kind)
		}
		return &UndoFollowHandler{}, nil
	case KindAdd:
		return &AddModHandler{}, nil
	case KindLike, KindDislike:
		return &VoteHandler{}, nil
	case KindDelete:
		return &DeleteHandler{}, nil
	case KindCreate:
		return &CreateOrUpdateHandler{}, nil
	case KindUpdate:
		// Update is overloaded, the embedded object type decides
		// between a community profile edit and a content edit.
		if env.ObjectKind() == KindGroup {
			return &UpdateCommunityHandler{}, nil
		}
		return &CreateOrUpdateHandler{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedActivity, env.Kind)
	}
}

// ReceiveEnvelope is the single entry point for activities accepted by
// an inbox. Parse, verify, record, apply, in that order. Recording the
// id before applying makes redelivery of the same activity a no-op.
func ReceiveEnvelope(ctx *Context, raw []byte) error {
	env, err := ParseEnvelope(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	if err := verifyProtocolContext(env); err != nil {
		return err
	}
	return receiveParsed(ctx, env, 0)
}

const maxAnnounceDepth = 2

func receiveParsed(ctx *Context, env *Envelope, depth int) error {
	if err := verifyActivity(ctx, env); err != nil {
		return err
	}

	// A remote community relays activities to its followers wrapped in
	// Announce. Unwrap and process the inner activity on its own id.
	if env.Kind == KindAnnounce {
		if depth >= maxAnnounceDepth {
			return fmt.Errorf("%w: announce nesting too deep", ErrUnsupportedActivity)
		}
		inner, err := env.InnerEnvelope()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
		}
		return receiveParsed(ctx, inner, depth+1)
	}

	handler, err := ParseAnnouncable(env)
	if err != nil {
		return err
	}

	budget := ctx.NewBudget()
	if err := handler.Verify(ctx, env, budget); err != nil {
		return err
	}

	rawJSON, err := json.Marshal(env)
	if err != nil {
		return err
	}
	inserted, err := ctx.Store.CreateReceivedActivity(&domain.ReceivedActivity{
		ActivityURI:  env.ID,
		ActivityType: env.Kind,
		ActorURI:     env.Actor,
		ObjectURI:    env.ObjectID(),
		RawJSON:      string(rawJSON),
	})
	if err != nil {
		return err
	}
	if !inserted {
		// Only a fully processed id is a replay. A row without the
		// processed flag means an earlier Receive failed after the
		// insert, and the sender's retry is the recovery path.
		existing, err := ctx.Store.ReceivedActivityByURI(env.ID)
		if err != nil {
			return err
		}
		if existing == nil || existing.Processed {
			log.Debug().Str("id", env.ID).Msg("duplicate activity, already received")
			return nil
		}
		log.Info().Str("id", env.ID).Msg("retrying activity that failed to apply")
	}

	if err := handler.Receive(ctx, env, budget); err != nil {
		return err
	}
	return ctx.Store.MarkActivityProcessed(env.ID)
}
