package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/deemkeen/agora/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.RunMigrations())
	return database
}

func seedPerson(t *testing.T, database *DB, uri string) *domain.Person {
	t.Helper()
	p := &domain.Person{
		Username:      "alice",
		Domain:        "remote.example",
		ActorURI:      uri,
		InboxURI:      uri + "/inbox",
		LastFetchedAt: time.Now(),
	}
	require.NoError(t, database.UpsertPerson(p))
	return p
}

func seedCommunity(t *testing.T, database *DB, uri string, local bool) *domain.Community {
	t.Helper()
	c := &domain.Community{
		Name:          "books",
		Title:         "Books",
		ActorURI:      uri,
		InboxURI:      uri + "/inbox",
		Local:         local,
		LastFetchedAt: time.Now(),
	}
	require.NoError(t, database.UpsertCommunity(c))
	return c
}

func TestUpsertPersonConvergesOnActorURI(t *testing.T) {
	database := openTestDB(t)

	first := seedPerson(t, database, "https://remote.example/u/alice")

	second := &domain.Person{
		Username:      "alice",
		Domain:        "remote.example",
		ActorURI:      "https://remote.example/u/alice",
		DisplayName:   "Alice",
		InboxURI:      "https://remote.example/u/alice/inbox",
		LastFetchedAt: time.Now(),
	}
	require.NoError(t, database.UpsertPerson(second))

	got, err := database.PersonByURI("https://remote.example/u/alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.Id, got.Id, "upsert must not mint a second row")
	assert.Equal(t, "Alice", got.DisplayName)
}

func TestPersonByURIAbsent(t *testing.T) {
	database := openTestDB(t)

	got, err := database.PersonByURI("https://remote.example/u/nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFollowerLifecycle(t *testing.T) {
	database := openTestDB(t)
	person := seedPerson(t, database, "https://remote.example/u/alice")
	community := seedCommunity(t, database, "https://local.example/c/books", true)

	follower := &domain.CommunityFollower{CommunityId: community.Id, PersonId: person.Id}
	require.NoError(t, database.CreateFollower(follower))

	// Repeated follow is a no-op.
	require.NoError(t, database.CreateFollower(&domain.CommunityFollower{
		CommunityId: community.Id,
		PersonId:    person.Id,
	}))

	isFollower, err := database.IsFollower(community.Id, person.Id)
	require.NoError(t, err)
	assert.True(t, isFollower)

	inboxes, err := database.FollowerInboxes(community.Id)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://remote.example/u/alice/inbox"}, inboxes)

	require.NoError(t, database.DeleteFollower(community.Id, person.Id))
	isFollower, err = database.IsFollower(community.Id, person.Id)
	require.NoError(t, err)
	assert.False(t, isFollower)

	// Unfollowing again deletes nothing and is still fine.
	require.NoError(t, database.DeleteFollower(community.Id, person.Id))
}

func TestPendingFollowerIsNotAMember(t *testing.T) {
	database := openTestDB(t)
	person := seedPerson(t, database, "https://remote.example/u/alice")
	community := seedCommunity(t, database, "https://remote.example/c/books", false)

	require.NoError(t, database.CreateFollower(&domain.CommunityFollower{
		CommunityId: community.Id,
		PersonId:    person.Id,
		Pending:     true,
	}))

	isFollower, err := database.IsFollower(community.Id, person.Id)
	require.NoError(t, err)
	assert.False(t, isFollower, "pending follow must not count as membership")

	require.NoError(t, database.AcceptFollower(community.Id, person.Id))
	isFollower, err = database.IsFollower(community.Id, person.Id)
	require.NoError(t, err)
	assert.True(t, isFollower)
}

func TestJoinModeratorIdempotent(t *testing.T) {
	database := openTestDB(t)
	person := seedPerson(t, database, "https://remote.example/u/alice")
	community := seedCommunity(t, database, "https://local.example/c/books", true)

	require.NoError(t, database.JoinModerator(community.Id, person.Id))
	require.NoError(t, database.JoinModerator(community.Id, person.Id))

	moderated, err := database.PersonModeratedCommunities(person.Id)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{community.Id}, moderated)

	mods, err := database.ModeratorsOfCommunity(community.Id)
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, person.Id, mods[0].Id)
}

func TestPostVoteUpsertRecomputesScore(t *testing.T) {
	database := openTestDB(t)
	alice := seedPerson(t, database, "https://remote.example/u/alice")
	bob := seedPerson(t, database, "https://remote.example/u/bob")
	community := seedCommunity(t, database, "https://local.example/c/books", true)

	post := &domain.Post{
		ApID:        "https://local.example/post/1",
		Name:        "a post",
		CreatorId:   alice.Id,
		CommunityId: community.Id,
	}
	require.NoError(t, database.UpsertPost(post))

	require.NoError(t, database.UpsertPostVote(post.Id, alice.Id, 1))
	require.NoError(t, database.UpsertPostVote(post.Id, bob.Id, 1))

	got, err := database.PostByID(post.Id)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Score)

	// Alice flips her vote, the aggregate moves by two.
	require.NoError(t, database.UpsertPostVote(post.Id, alice.Id, -1))
	got, err = database.PostByID(post.Id)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Score)

	// Re-sending the same vote changes nothing.
	require.NoError(t, database.UpsertPostVote(post.Id, alice.Id, -1))
	got, err = database.PostByID(post.Id)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Score)
}

func TestCommentVoteUpsertRecomputesScore(t *testing.T) {
	database := openTestDB(t)
	alice := seedPerson(t, database, "https://remote.example/u/alice")
	community := seedCommunity(t, database, "https://local.example/c/books", true)

	post := &domain.Post{
		ApID:        "https://local.example/post/1",
		CreatorId:   alice.Id,
		CommunityId: community.Id,
	}
	require.NoError(t, database.UpsertPost(post))
	comment := &domain.Comment{
		ApID:      "https://local.example/comment/1",
		Content:   "nice",
		CreatorId: alice.Id,
		PostId:    post.Id,
	}
	require.NoError(t, database.UpsertComment(comment))

	require.NoError(t, database.UpsertCommentVote(comment.Id, alice.Id, -1))
	got, err := database.CommentByID(comment.Id)
	require.NoError(t, err)
	assert.Equal(t, -1, got.Score)
}

func TestCreateReceivedActivityDeduplicates(t *testing.T) {
	database := openTestDB(t)

	activity := &domain.ReceivedActivity{
		ActivityURI:  "https://remote.example/activities/like/1",
		ActivityType: "Like",
		ActorURI:     "https://remote.example/u/alice",
	}
	inserted, err := database.CreateReceivedActivity(activity)
	require.NoError(t, err)
	assert.True(t, inserted)

	again, err := database.CreateReceivedActivity(&domain.ReceivedActivity{
		ActivityURI:  "https://remote.example/activities/like/1",
		ActivityType: "Like",
		ActorURI:     "https://remote.example/u/alice",
	})
	require.NoError(t, err)
	assert.False(t, again, "second insert of the same id must report a duplicate")

	require.NoError(t, database.MarkActivityProcessed(activity.ActivityURI))
	got, err := database.ReceivedActivityByURI(activity.ActivityURI)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Processed)
}

func TestDeliveryQueue(t *testing.T) {
	database := openTestDB(t)

	item := &domain.DeliveryQueueItem{
		InboxURI:     "https://remote.example/inbox",
		ActivityJSON: `{"type":"Like"}`,
		SignAsURI:    "https://local.example/u/alice",
		NextRetryAt:  time.Now().Add(-time.Minute),
	}
	require.NoError(t, database.EnqueueDelivery(item))

	future := &domain.DeliveryQueueItem{
		InboxURI:     "https://other.example/inbox",
		ActivityJSON: `{"type":"Like"}`,
		SignAsURI:    "https://local.example/u/alice",
		NextRetryAt:  time.Now().Add(time.Hour),
	}
	require.NoError(t, database.EnqueueDelivery(future))

	pending, err := database.PendingDeliveries(10)
	require.NoError(t, err)
	require.Len(t, pending, 1, "only due items are pending")
	assert.Equal(t, item.InboxURI, pending[0].InboxURI)

	require.NoError(t, database.UpdateDeliveryAttempt(pending[0].Id, 1, time.Now().Add(time.Minute)))
	pending, err = database.PendingDeliveries(10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, database.DeleteDelivery(item.Id))
}

func TestRecentPostsByCommunityFiltersRemoved(t *testing.T) {
	database := openTestDB(t)
	alice := seedPerson(t, database, "https://remote.example/u/alice")
	community := seedCommunity(t, database, "https://local.example/c/books", true)

	visible := &domain.Post{ApID: "https://local.example/post/1", Name: "one", CreatorId: alice.Id, CommunityId: community.Id}
	removed := &domain.Post{ApID: "https://local.example/post/2", Name: "two", CreatorId: alice.Id, CommunityId: community.Id}
	require.NoError(t, database.UpsertPost(visible))
	require.NoError(t, database.UpsertPost(removed))
	require.NoError(t, database.UpdatePostRemoved(removed.Id, true))

	posts, err := database.RecentPostsByCommunity(community.Id, 10)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "one", posts[0].Name)
}

func TestModLogReason(t *testing.T) {
	database := openTestDB(t)
	mod := seedPerson(t, database, "https://remote.example/u/mod")
	target := uuid.New()

	require.NoError(t, database.CreateModLogEntry(&domain.ModLogEntry{
		ModPersonId: mod.Id,
		TargetType:  domain.ModLogTargetPost,
		TargetId:    target,
		Reason:      nil,
		Removed:     true,
	}))
	reason := "spam"
	require.NoError(t, database.CreateModLogEntry(&domain.ModLogEntry{
		ModPersonId: mod.Id,
		TargetType:  domain.ModLogTargetPost,
		TargetId:    target,
		Reason:      &reason,
		Removed:     true,
	}))

	entries, err := database.ModLogEntriesByTarget(target)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Nil(t, entries[0].Reason)
	require.NotNil(t, entries[1].Reason)
	assert.Equal(t, "spam", *entries[1].Reason)
}
