package activitypub

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendActivityDeduplicatesAndSkipsLocal(t *testing.T) {
	ctx, _ := newTestContext(t)
	person := seedLocalPerson(t, ctx, "bob")

	activity := &Envelope{
		ID:    GenerateActivityID(ctx.Conf.BaseURL(), KindLike),
		Kind:  KindLike,
		Actor: person.ActorURI,
	}
	inboxes := []string{
		"https://remote.example/inbox",
		"https://remote.example/inbox",
		"https://local.example/inbox",
		"",
		"https://other.example/inbox",
	}
	require.NoError(t, SendActivity(ctx, activity, inboxes, person.ActorURI))

	pending, err := ctx.Store.PendingDeliveries(10)
	require.NoError(t, err)
	require.Len(t, pending, 2, "duplicates, blanks and our own domain are skipped")

	got := map[string]bool{}
	for _, item := range pending {
		got[item.InboxURI] = true
		assert.Equal(t, person.ActorURI, item.SignAsURI)
	}
	assert.True(t, got["https://remote.example/inbox"])
	assert.True(t, got["https://other.example/inbox"])
}

func TestSendToCommunityFansOutForLocal(t *testing.T) {
	ctx, _ := newTestContext(t)
	community := seedLocalCommunity(t, ctx, "books")
	alice := seedRemotePerson(t, ctx, "alice")
	bob := seedRemotePerson(t, ctx, "bob")
	seedMember(t, ctx, community, alice)
	seedMember(t, ctx, community, bob)

	activity := &Envelope{
		ID:    GenerateActivityID(ctx.Conf.BaseURL(), KindAnnounce),
		Kind:  KindAnnounce,
		Actor: community.ActorURI,
	}
	require.NoError(t, SendToCommunity(ctx, community, activity, community.ActorURI, nil))

	pending, err := ctx.Store.PendingDeliveries(10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestSendToRemoteCommunitySingleCopy(t *testing.T) {
	ctx, _ := newTestContext(t)
	community := seedRemoteCommunity(t, ctx, "books")
	person := seedLocalPerson(t, ctx, "bob")

	activity := &Envelope{
		ID:    GenerateActivityID(ctx.Conf.BaseURL(), KindLike),
		Kind:  KindLike,
		Actor: person.ActorURI,
	}
	require.NoError(t, SendToCommunity(ctx, community, activity, person.ActorURI, nil))

	pending, err := ctx.Store.PendingDeliveries(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, community.InboxURI, pending[0].InboxURI)
}

func TestDeliveryWorkerRetriesWithBackoff(t *testing.T) {
	ctx, _ := newTestContext(t)
	person := seedLocalPerson(t, ctx, "bob")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	require.NoError(t, SendActivity(ctx, &Envelope{
		ID:    GenerateActivityID(ctx.Conf.BaseURL(), KindLike),
		Kind:  KindLike,
		Actor: person.ActorURI,
	}, []string{server.URL + "/inbox"}, person.ActorURI))

	processDeliveryQueue(ctx)

	// The failed item is rescheduled a minute out, so it is no longer
	// due.
	pending, err := ctx.Store.PendingDeliveries(10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDeliveryWorkerDeliversAndSigns(t *testing.T) {
	ctx, _ := newTestContext(t)
	person := seedLocalPerson(t, ctx, "bob")

	var gotSignature atomic.Value
	var delivered atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature.Store(r.Header.Get("Signature"))
		delivered.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(server.Close)

	require.NoError(t, SendActivity(ctx, &Envelope{
		ID:    GenerateActivityID(ctx.Conf.BaseURL(), KindLike),
		Kind:  KindLike,
		Actor: person.ActorURI,
	}, []string{server.URL + "/inbox"}, person.ActorURI))

	processDeliveryQueue(ctx)

	assert.Equal(t, int32(1), delivered.Load())
	signature, _ := gotSignature.Load().(string)
	assert.Contains(t, signature, person.ActorURI+"#main-key")

	// Success removes the queue item, a second pass sends nothing.
	processDeliveryQueue(ctx)
	assert.Equal(t, int32(1), delivered.Load())
}

func TestBackoffScheduleCapsAtLastEntry(t *testing.T) {
	assert.Equal(t, 1, backoffMinutes[min(1-1, len(backoffMinutes)-1)])
	assert.Equal(t, 5, backoffMinutes[min(2-1, len(backoffMinutes)-1)])
	assert.Equal(t, 15, backoffMinutes[min(3-1, len(backoffMinutes)-1)])
	assert.Equal(t, 60, backoffMinutes[min(4-1, len(backoffMinutes)-1)])
	assert.Equal(t, 240, backoffMinutes[min(5-1, len(backoffMinutes)-1)])
	assert.Equal(t, 1440, backoffMinutes[min(6-1, len(backoffMinutes)-1)])
	assert.Equal(t, 1440, backoffMinutes[min(9-1, len(backoffMinutes)-1)])
}

func TestMaybeAnnounceOnlyForLocalCommunities(t *testing.T) {
	ctx, _ := newTestContext(t)
	remote := seedRemoteCommunity(t, ctx, "books")

	env := &Envelope{
		ID:    "https://remote.example/activities/like/1",
		Kind:  KindLike,
		Actor: "https://remote.example/u/alice",
	}
	require.NoError(t, maybeAnnounce(ctx, remote, env))

	pending, err := ctx.Store.PendingDeliveries(10)
	require.NoError(t, err)
	assert.Empty(t, pending, "remote communities announce for themselves")
}

func TestDeliveryGiveUpAfterMaxAttempts(t *testing.T) {
	ctx, _ := newTestContext(t)
	person := seedLocalPerson(t, ctx, "bob")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	require.NoError(t, SendActivity(ctx, &Envelope{
		ID:    GenerateActivityID(ctx.Conf.BaseURL(), KindLike),
		Kind:  KindLike,
		Actor: person.ActorURI,
	}, []string{server.URL + "/inbox"}, person.ActorURI))

	// Force the item to its final attempt.
	pending, err := ctx.Store.PendingDeliveries(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, ctx.Store.UpdateDeliveryAttempt(pending[0].Id, maxDeliveryAttempts-1, time.Now().Add(-time.Minute)))

	processDeliveryQueue(ctx)

	pending, err = ctx.Store.PendingDeliveries(10)
	require.NoError(t, err)
	assert.Empty(t, pending, "the item is dropped, not rescheduled")
}
