package web

import (
	"encoding/json"
	"fmt"

	"github.com/deemkeen/agora/activitypub"
	"github.com/deemkeen/agora/db"
	"github.com/deemkeen/agora/util"
	"github.com/google/uuid"
)

// GetPersonActor renders a local person as actor json.
func GetPersonActor(database *db.DB, conf *util.AppConfig, username string) (string, error) {
	person, err := database.LocalPersonByName(username)
	if err != nil {
		return "", err
	}
	if person == nil {
		return "", fmt.Errorf("no local person %q", username)
	}
	doc := activitypub.PersonDocument(person, conf.BaseURL())
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// GetCommunityActor renders a local community as actor json. Deleted
// and removed communities stay resolvable so remote instances can pick
// up the tombstone state, matching how their activities federate.
func GetCommunityActor(database *db.DB, conf *util.AppConfig, name string) (string, error) {
	community, err := database.LocalCommunityByName(name)
	if err != nil {
		return "", err
	}
	if community == nil {
		return "", fmt.Errorf("no local community %q", name)
	}
	doc := activitypub.CommunityDocument(community, conf.BaseURL())
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// GetPostObject renders a local post as a Page. Removed and deleted
// posts are not served.
func GetPostObject(database *db.DB, id uuid.UUID) (string, error) {
	post, err := database.PostByID(id)
	if err != nil {
		return "", err
	}
	if post == nil || post.Removed || post.Deleted {
		return "", fmt.Errorf("no post %s", id)
	}
	creator, err := database.PersonByID(post.CreatorId)
	if err != nil || creator == nil {
		return "", fmt.Errorf("creator of post %s not found", id)
	}
	community, err := database.CommunityByID(post.CommunityId)
	if err != nil || community == nil {
		return "", fmt.Errorf("community of post %s not found", id)
	}

	raw, err := json.Marshal(activitypub.PageDocument(post, creator, community))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// collection is a minimal OrderedCollection rendering.
type collection struct {
	Context      json.RawMessage `json:"@context"`
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	TotalItems   int             `json:"totalItems"`
	OrderedItems []string        `json:"orderedItems"`
}

// GetModeratorsCollection renders the moderators of a community in
// appointment order.
func GetModeratorsCollection(database *db.DB, name string) (string, error) {
	community, err := database.LocalCommunityByName(name)
	if err != nil {
		return "", err
	}
	if community == nil {
		return "", fmt.Errorf("no local community %q", name)
	}

	mods, err := database.ModeratorsOfCommunity(community.Id)
	if err != nil {
		return "", err
	}
	items := make([]string, 0, len(mods))
	for _, mod := range mods {
		items = append(items, mod.ActorURI)
	}

	raw, err := json.Marshal(collection{
		Context:      activitypub.DefaultContext,
		ID:           community.ModeratorsURI(),
		Type:         "OrderedCollection",
		TotalItems:   len(items),
		OrderedItems: items,
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// GetFollowersCollection renders follower counts only. The member list
// itself is not published.
func GetFollowersCollection(database *db.DB, name string) (string, error) {
	community, err := database.LocalCommunityByName(name)
	if err != nil {
		return "", err
	}
	if community == nil {
		return "", fmt.Errorf("no local community %q", name)
	}
	inboxes, err := database.FollowerInboxes(community.Id)
	if err != nil {
		return "", err
	}

	raw, err := json.Marshal(collection{
		Context:      activitypub.DefaultContext,
		ID:           community.FollowersURI,
		Type:         "OrderedCollection",
		TotalItems:   len(inboxes),
		OrderedItems: []string{},
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
