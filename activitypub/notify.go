package activitypub

import (
	"github.com/rs/zerolog/log"
)

// Operations reported to the notifier after a handler commits.
const (
	OpFollow          = "follow"
	OpUnfollow        = "unfollow"
	OpAddModerator    = "add_moderator"
	OpUpdateCommunity = "update_community"
	OpCreatePost      = "create_post"
	OpUpdatePost      = "update_post"
	OpCreateComment   = "create_comment"
	OpUpdateComment   = "update_comment"
	OpVote            = "vote"
	OpDelete          = "delete"
	OpRemove          = "remove"
	OpRestore         = "restore"
)

// Notifier receives a callback once an activity has been applied. The
// web layer is free to hook feeds or push channels in here.
type Notifier interface {
	Applied(op string, actorURI string, objectURI string)
}

// NopNotifier swallows all notifications.
type NopNotifier struct{}

func (NopNotifier) Applied(string, string, string) {}

// LogNotifier writes applied operations to the structured log.
type LogNotifier struct{}

func (LogNotifier) Applied(op string, actorURI string, objectURI string) {
	log.Info().
		Str("op", op).
		Str("actor", actorURI).
		Str("object", objectURI).
		Msg("activity applied")
}
