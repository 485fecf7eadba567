package activitypub

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/deemkeen/agora/db"
	"github.com/deemkeen/agora/domain"
	"github.com/deemkeen/agora/util"
	"github.com/stretchr/testify/require"
)

func newTestConf() *util.AppConfig {
	conf := &util.AppConfig{}
	conf.Conf.Host = "127.0.0.1"
	conf.Conf.HttpPort = 8080
	conf.Conf.Domain = "local.example"
	conf.Conf.Federation.Enabled = true
	conf.Conf.Federation.RequestBudget = 25
	return conf
}

func newTestContext(t *testing.T) (*Context, *db.DB) {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.RunMigrations())

	return NewContext(database, newTestConf(), NopNotifier{}), database
}

// seedRemotePerson stores a freshly fetched remote person so the
// resolver serves it from cache without spending budget.
func seedRemotePerson(t *testing.T, ctx *Context, name string) *domain.Person {
	t.Helper()
	keys := util.GeneratePemKeypair()
	p := &domain.Person{
		Username:      name,
		Domain:        "remote.example",
		ActorURI:      fmt.Sprintf("https://remote.example/u/%s", name),
		InboxURI:      fmt.Sprintf("https://remote.example/u/%s/inbox", name),
		PublicKeyPem:  keys.Public,
		Local:         false,
		LastFetchedAt: time.Now(),
	}
	require.NoError(t, ctx.Store.UpsertPerson(p))
	stored, err := ctx.Store.PersonByURI(p.ActorURI)
	require.NoError(t, err)
	return stored
}

func seedLocalPerson(t *testing.T, ctx *Context, name string) *domain.Person {
	t.Helper()
	keys := util.GeneratePemKeypair()
	p := &domain.Person{
		Username:      name,
		Domain:        "local.example",
		ActorURI:      fmt.Sprintf("https://local.example/u/%s", name),
		InboxURI:      fmt.Sprintf("https://local.example/u/%s/inbox", name),
		PublicKeyPem:  keys.Public,
		PrivateKeyPem: keys.Private,
		Local:         true,
	}
	require.NoError(t, ctx.Store.UpsertPerson(p))
	stored, err := ctx.Store.PersonByURI(p.ActorURI)
	require.NoError(t, err)
	return stored
}

func seedLocalCommunity(t *testing.T, ctx *Context, name string) *domain.Community {
	t.Helper()
	keys := util.GeneratePemKeypair()
	c := &domain.Community{
		Name:          name,
		Title:         name,
		ActorURI:      fmt.Sprintf("https://local.example/c/%s", name),
		InboxURI:      fmt.Sprintf("https://local.example/c/%s/inbox", name),
		FollowersURI:  fmt.Sprintf("https://local.example/c/%s/followers", name),
		PublicKeyPem:  keys.Public,
		PrivateKeyPem: keys.Private,
		Local:         true,
	}
	require.NoError(t, ctx.Store.UpsertCommunity(c))
	stored, err := ctx.Store.CommunityByURI(c.ActorURI)
	require.NoError(t, err)
	return stored
}

func seedRemoteCommunity(t *testing.T, ctx *Context, name string) *domain.Community {
	t.Helper()
	c := &domain.Community{
		Name:          name,
		Title:         name,
		ActorURI:      fmt.Sprintf("https://remote.example/c/%s", name),
		InboxURI:      fmt.Sprintf("https://remote.example/c/%s/inbox", name),
		Local:         false,
		LastFetchedAt: time.Now(),
	}
	require.NoError(t, ctx.Store.UpsertCommunity(c))
	stored, err := ctx.Store.CommunityByURI(c.ActorURI)
	require.NoError(t, err)
	return stored
}

func seedMember(t *testing.T, ctx *Context, community *domain.Community, person *domain.Person) {
	t.Helper()
	require.NoError(t, ctx.Store.CreateFollower(&domain.CommunityFollower{
		CommunityId: community.Id,
		PersonId:    person.Id,
	}))
}

func seedModerator(t *testing.T, ctx *Context, community *domain.Community, person *domain.Person) {
	t.Helper()
	require.NoError(t, ctx.Store.JoinModerator(community.Id, person.Id))
}

func seedPost(t *testing.T, ctx *Context, community *domain.Community, creator *domain.Person, apID string) *domain.Post {
	t.Helper()
	post := &domain.Post{
		ApID:        apID,
		Name:        "a post",
		CreatorId:   creator.Id,
		CommunityId: community.Id,
	}
	require.NoError(t, ctx.Store.UpsertPost(post))
	stored, err := ctx.Store.PostByURI(apID)
	require.NoError(t, err)
	return stored
}

func seedComment(t *testing.T, ctx *Context, post *domain.Post, creator *domain.Person, apID string) *domain.Comment {
	t.Helper()
	comment := &domain.Comment{
		ApID:      apID,
		Content:   "a comment",
		CreatorId: creator.Id,
		PostId:    post.Id,
	}
	require.NoError(t, ctx.Store.UpsertComment(comment))
	stored, err := ctx.Store.CommentByURI(apID)
	require.NoError(t, err)
	return stored
}
