package web

import (
	"errors"
	"fmt"
	"time"

	"github.com/deemkeen/agora/db"
	"github.com/deemkeen/agora/util"
	"github.com/gorilla/feeds"
	"github.com/rs/zerolog/log"
)

const feedItemLimit = 50

// GetCommunityRSS renders the newest posts of a community as RSS.
// Removed and deleted posts are already filtered by the store.
func GetCommunityRSS(database *db.DB, conf *util.AppConfig, name string) (string, error) {
	community, err := database.LocalCommunityByName(name)
	if err != nil || community == nil {
		log.Debug().Str("community", name).Msg("rss requested for unknown community")
		return "", errors.New("error retrieving community")
	}

	posts, err := database.RecentPostsByCommunity(community.Id, feedItemLimit)
	if err != nil {
		return "", err
	}

	feed := &feeds.Feed{
		Title:       fmt.Sprintf("%s - %s", util.Name, community.Title),
		Link:        &feeds.Link{Href: fmt.Sprintf("%s/c/%s", conf.BaseURL(), community.Name)},
		Description: community.Description,
		Created:     time.Now(),
	}

	var feedItems []*feeds.Item
	for _, post := range posts {
		creator, err := database.PersonByID(post.CreatorId)
		if err != nil || creator == nil {
			continue
		}
		feedItems = append(feedItems,
			&feeds.Item{
				Id:      post.ApID,
				Title:   post.Name,
				Link:    &feeds.Link{Href: post.ApID},
				Content: post.Body,
				Author:  &feeds.Author{Name: creator.Username, Email: fmt.Sprintf("%s@%s", creator.Username, creator.Domain)},
				Created: post.Published,
			})
	}

	feed.Items = feedItems
	return feed.ToRss()
}
