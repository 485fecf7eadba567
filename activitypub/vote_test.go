package activitypub

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func voteJSON(id, kind, actor, object string) []byte {
	return []byte(fmt.Sprintf(`{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id": %q,
		"type": %q,
		"actor": %q,
		"object": %q
	}`, id, kind, actor, object))
}

func TestVoteScoreMapping(t *testing.T) {
	score, err := VoteScore(KindLike)
	require.NoError(t, err)
	assert.Equal(t, 1, score)

	score, err = VoteScore(KindDislike)
	require.NoError(t, err)
	assert.Equal(t, -1, score)

	_, err = VoteScore("Follow")
	assert.ErrorIs(t, err, ErrInvalidVote)

	kind, err := VoteKind(1)
	require.NoError(t, err)
	assert.Equal(t, KindLike, kind)

	_, err = VoteKind(0)
	assert.ErrorIs(t, err, ErrInvalidVote)
}

func TestReceiveLikeOnPost(t *testing.T) {
	ctx, _ := newTestContext(t)
	voter := seedRemotePerson(t, ctx, "alice")
	creator := seedRemotePerson(t, ctx, "bob")
	community := seedLocalCommunity(t, ctx, "books")
	seedMember(t, ctx, community, voter)
	post := seedPost(t, ctx, community, creator, "https://local.example/post/1")

	raw := voteJSON("https://remote.example/activities/like/1", KindLike, voter.ActorURI, post.ApID)
	require.NoError(t, ReceiveEnvelope(ctx, raw))

	got, err := ctx.Store.PostByURI(post.ApID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Score)
}

func TestReceiveOppositeVoteFlipsScore(t *testing.T) {
	ctx, _ := newTestContext(t)
	voter := seedRemotePerson(t, ctx, "alice")
	creator := seedRemotePerson(t, ctx, "bob")
	community := seedLocalCommunity(t, ctx, "books")
	seedMember(t, ctx, community, voter)
	post := seedPost(t, ctx, community, creator, "https://local.example/post/1")

	like := voteJSON("https://remote.example/activities/like/1", KindLike, voter.ActorURI, post.ApID)
	require.NoError(t, ReceiveEnvelope(ctx, like))

	dislike := voteJSON("https://remote.example/activities/dislike/2", KindDislike, voter.ActorURI, post.ApID)
	require.NoError(t, ReceiveEnvelope(ctx, dislike))

	got, err := ctx.Store.PostByURI(post.ApID)
	require.NoError(t, err)
	assert.Equal(t, -1, got.Score, "one person holds one vote, the flip moves the aggregate by two")
}

func TestReceiveVoteReplayDoesNotStack(t *testing.T) {
	ctx, _ := newTestContext(t)
	voter := seedRemotePerson(t, ctx, "alice")
	creator := seedRemotePerson(t, ctx, "bob")
	community := seedLocalCommunity(t, ctx, "books")
	seedMember(t, ctx, community, voter)
	post := seedPost(t, ctx, community, creator, "https://local.example/post/1")

	raw := voteJSON("https://remote.example/activities/like/1", KindLike, voter.ActorURI, post.ApID)
	require.NoError(t, ReceiveEnvelope(ctx, raw))
	require.NoError(t, ReceiveEnvelope(ctx, raw))
	require.NoError(t, ReceiveEnvelope(ctx, raw))

	got, err := ctx.Store.PostByURI(post.ApID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Score)
}

func TestReceiveVoteFromNonMemberRejected(t *testing.T) {
	ctx, _ := newTestContext(t)
	voter := seedRemotePerson(t, ctx, "alice")
	creator := seedRemotePerson(t, ctx, "bob")
	community := seedLocalCommunity(t, ctx, "books")
	post := seedPost(t, ctx, community, creator, "https://local.example/post/1")

	raw := voteJSON("https://remote.example/activities/like/1", KindLike, voter.ActorURI, post.ApID)
	err := ReceiveEnvelope(ctx, raw)
	assert.ErrorIs(t, err, ErrNotAMember)

	got, err := ctx.Store.PostByURI(post.ApID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Score)
}

func TestReceiveVoteOnComment(t *testing.T) {
	ctx, _ := newTestContext(t)
	voter := seedRemotePerson(t, ctx, "alice")
	creator := seedRemotePerson(t, ctx, "bob")
	community := seedLocalCommunity(t, ctx, "books")
	seedMember(t, ctx, community, voter)
	post := seedPost(t, ctx, community, creator, "https://local.example/post/1")
	comment := seedComment(t, ctx, post, creator, "https://local.example/comment/1")

	raw := voteJSON("https://remote.example/activities/dislike/1", KindDislike, voter.ActorURI, comment.ApID)
	require.NoError(t, ReceiveEnvelope(ctx, raw))

	got, err := ctx.Store.CommentByURI(comment.ApID)
	require.NoError(t, err)
	assert.Equal(t, -1, got.Score)
}
