package activitypub

import (
	"fmt"
	"testing"
	"time"

	"github.com/deemkeen/agora/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnnouncableClosedUnion(t *testing.T) {
	cases := []struct {
		kind    string
		object  string
		handler any
	}{
		{KindFollow, `"https://local.example/c/books"`, &FollowHandler{}},
		{KindAdd, `"https://remote.example/u/alice"`, &AddModHandler{}},
		{KindLike, `"https://local.example/post/1"`, &VoteHandler{}},
		{KindDislike, `"https://local.example/post/1"`, &VoteHandler{}},
		{KindDelete, `"https://local.example/post/1"`, &DeleteHandler{}},
		{KindCreate, `{"id":"https://remote.example/post/1","type":"Page"}`, &CreateOrUpdateHandler{}},
		{KindUpdate, `{"id":"https://remote.example/post/1","type":"Page"}`, &CreateOrUpdateHandler{}},
		{KindUpdate, `{"id":"https://remote.example/c/books","type":"Group"}`, &UpdateCommunityHandler{}},
	}

	for _, tc := range cases {
		env, err := ParseEnvelope([]byte(fmt.Sprintf(`{
			"@context": "https://www.w3.org/ns/activitystreams",
			"id": "https://remote.example/activities/x/1",
			"type": %q,
			"actor": "https://remote.example/u/alice",
			"object": %s
		}`, tc.kind, tc.object)))
		require.NoError(t, err)

		handler, err := ParseAnnouncable(env)
		require.NoError(t, err, "kind %s", tc.kind)
		assert.IsType(t, tc.handler, handler, "kind %s object %s", tc.kind, tc.object)
	}
}

func TestParseAnnouncableRejectsUnknownKinds(t *testing.T) {
	for _, kind := range []string{"Block", "Move", "Flag", "Question"} {
		env, err := ParseEnvelope([]byte(fmt.Sprintf(`{
			"@context": "https://www.w3.org/ns/activitystreams",
			"id": "https://remote.example/activities/x/1",
			"type": %q,
			"actor": "https://remote.example/u/alice"
		}`, kind)))
		require.NoError(t, err)

		_, err = ParseAnnouncable(env)
		assert.ErrorIs(t, err, ErrUnsupportedActivity, "kind %s", kind)
	}
}

func TestParseAnnouncableUndoOfNonFollowRejected(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id": "https://remote.example/activities/undo/1",
		"type": "Undo",
		"actor": "https://remote.example/u/alice",
		"object": {
			"id": "https://remote.example/activities/like/1",
			"type": "Like",
			"actor": "https://remote.example/u/alice",
			"object": "https://local.example/post/1"
		}
	}`))
	require.NoError(t, err)

	_, err = ParseAnnouncable(env)
	assert.ErrorIs(t, err, ErrUnsupportedActivity)
}

func TestReceiveEnvelopeActorDomainMismatchRejected(t *testing.T) {
	ctx, _ := newTestContext(t)

	raw := []byte(`{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id": "https://elsewhere.example/activities/follow/1",
		"type": "Follow",
		"actor": "https://remote.example/u/alice",
		"object": "https://local.example/c/books"
	}`)
	err := ReceiveEnvelope(ctx, raw)
	assert.ErrorIs(t, err, ErrDomainMismatch)
}

func TestReceiveEnvelopeBlockedInstanceRejected(t *testing.T) {
	ctx, _ := newTestContext(t)
	ctx.Conf.Conf.Federation.BlockedInstances = []string{"remote.example"}
	person := seedRemotePerson(t, ctx, "alice")
	community := seedLocalCommunity(t, ctx, "books")

	raw := followJSON("https://remote.example/activities/follow/1", person.ActorURI, community.ActorURI)
	err := ReceiveEnvelope(ctx, raw)
	assert.ErrorIs(t, err, ErrInstanceBlocked)
}

func TestReceiveEnvelopeStrictAllowlist(t *testing.T) {
	ctx, _ := newTestContext(t)
	ctx.Conf.Conf.Federation.StrictAllowlist = true
	ctx.Conf.Conf.Federation.AllowedInstances = []string{"friendly.example"}
	person := seedRemotePerson(t, ctx, "alice")
	community := seedLocalCommunity(t, ctx, "books")

	raw := followJSON("https://remote.example/activities/follow/1", person.ActorURI, community.ActorURI)
	err := ReceiveEnvelope(ctx, raw)
	assert.ErrorIs(t, err, ErrInstanceBlocked)
}

func TestReceiveEnvelopeViaAnnounceWrapper(t *testing.T) {
	ctx, _ := newTestContext(t)
	voter := seedRemotePerson(t, ctx, "alice")
	creator := seedRemotePerson(t, ctx, "bob")
	remoteCommunity := seedRemoteCommunity(t, ctx, "books")
	seedMember(t, ctx, remoteCommunity, voter)
	post := seedPost(t, ctx, remoteCommunity, creator, "https://remote.example/post/1")

	// A remote community relays a member's vote to us.
	raw := []byte(fmt.Sprintf(`{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id": "https://remote.example/activities/announce/1",
		"type": "Announce",
		"actor": %q,
		"object": {
			"id": "https://remote.example/activities/like/1",
			"type": "Like",
			"actor": %q,
			"object": %q
		}
	}`, remoteCommunity.ActorURI, voter.ActorURI, post.ApID))
	require.NoError(t, ReceiveEnvelope(ctx, raw))

	got, err := ctx.Store.PostByURI(post.ApID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Score)
}

func TestBudgetExhaustionIsARejection(t *testing.T) {
	budget := NewRequestBudget(1)
	require.NoError(t, budget.Spend())
	err := budget.Spend()
	assert.ErrorIs(t, err, ErrBudgetExhausted)
	assert.True(t, IsRejection(err))
}

func TestReceiveEnvelopeWithoutContextRejected(t *testing.T) {
	ctx, _ := newTestContext(t)
	person := seedRemotePerson(t, ctx, "alice")
	community := seedLocalCommunity(t, ctx, "books")

	raw := []byte(fmt.Sprintf(`{
		"id": "https://remote.example/activities/follow/1",
		"type": "Follow",
		"actor": %q,
		"object": %q
	}`, person.ActorURI, community.ActorURI))
	err := ReceiveEnvelope(ctx, raw)
	assert.ErrorIs(t, err, ErrVerificationFailed)

	member, err := ctx.Store.IsFollower(community.Id, person.Id)
	require.NoError(t, err)
	assert.False(t, member)
}

func TestReceiveEnvelopeContextArrayAccepted(t *testing.T) {
	ctx, _ := newTestContext(t)
	person := seedRemotePerson(t, ctx, "alice")
	community := seedLocalCommunity(t, ctx, "books")

	raw := []byte(fmt.Sprintf(`{
		"@context": ["https://www.w3.org/ns/activitystreams", {"stickied": "as:stickied"}],
		"id": "https://remote.example/activities/follow/1",
		"type": "Follow",
		"actor": %q,
		"object": %q
	}`, person.ActorURI, community.ActorURI))
	require.NoError(t, ReceiveEnvelope(ctx, raw))

	member, err := ctx.Store.IsFollower(community.Id, person.Id)
	require.NoError(t, err)
	assert.True(t, member)
}

func TestFailedReceiveIsRetriedOnRedelivery(t *testing.T) {
	ctx, _ := newTestContext(t)
	community := seedLocalCommunity(t, ctx, "books")

	actorURI := "https://unreachable.invalid/u/alice"
	raw := followJSON("https://unreachable.invalid/activities/follow/1", actorURI, community.ActorURI)

	// Verify passes, the community exists, but Receive cannot resolve
	// the actor. The failure must not burn the activity id.
	require.Error(t, ReceiveEnvelope(ctx, raw))

	require.NoError(t, ctx.Store.UpsertPerson(&domain.Person{
		Username:      "alice",
		Domain:        "unreachable.invalid",
		ActorURI:      actorURI,
		InboxURI:      actorURI + "/inbox",
		LastFetchedAt: time.Now(),
	}))
	person, err := ctx.Store.PersonByURI(actorURI)
	require.NoError(t, err)

	require.NoError(t, ReceiveEnvelope(ctx, raw), "redelivery after a failed apply runs the handler again")

	member, err := ctx.Store.IsFollower(community.Id, person.Id)
	require.NoError(t, err)
	assert.True(t, member)

	// Now that it applied, a further replay is a no-op.
	require.NoError(t, ReceiveEnvelope(ctx, raw))
	pending, err := ctx.Store.PendingDeliveries(10)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "exactly one Accept for the applied follow")
}
