package activitypub

import "errors"

// Rejection errors. A handler returning one of these means the activity
// was understood but refused, which maps to a 400 at the inbox.
var (
	ErrVerificationFailed = errors.New("activity verification failed")
	ErrNotAMember         = errors.New("actor is not a member of the community")
	ErrNotAModerator      = errors.New("actor is not a moderator of the community")
	ErrDomainMismatch     = errors.New("object domain does not match actor domain")
	ErrURLMismatch        = errors.New("urls do not match")
	ErrObjectNotFound     = errors.New("referenced object not found")
	ErrInvalidVote        = errors.New("vote score must be 1 or -1")
	ErrInstanceBlocked    = errors.New("instance is not allowed to federate")
	ErrLocalOnlyRemoval   = errors.New("only a local admin can remove a local community")
)

// ErrUnsupportedActivity marks payloads outside the understood
// activity set. The inbox acknowledges and drops these instead of
// asking the sender to retry.
var ErrUnsupportedActivity = errors.New("unsupported activity type")

// ErrBudgetExhausted is returned once a single incoming activity has
// triggered more remote fetches than allowed.
var ErrBudgetExhausted = errors.New("remote fetch budget exhausted")

// IsRejection reports whether err describes a refused activity rather
// than an internal failure.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrVerificationFailed,
		ErrNotAMember,
		ErrNotAModerator,
		ErrDomainMismatch,
		ErrURLMismatch,
		ErrObjectNotFound,
		ErrInvalidVote,
		ErrInstanceBlocked,
		ErrLocalOnlyRemoval,
		ErrBudgetExhausted,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
