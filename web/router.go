package web

import (
	"net/http"

	"github.com/deemkeen/agora/activitypub"
	"github.com/deemkeen/agora/db"
	"github.com/deemkeen/agora/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const activityJSON = "application/activity+json; charset=utf-8"

// NewRouter builds the HTTP surface. Federation endpoints only exist
// when federation is enabled, the feed routes are always there.
func NewRouter(ctx *activitypub.Context, database *db.DB, conf *util.AppConfig) *gin.Engine {
	g := gin.New()
	g.Use(gin.Recovery())
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// 10 requests per second per IP across the board.
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	g.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":    util.Name,
			"version": util.GetVersion(),
		})
	})

	g.GET("/c/:name/feed", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")
		rss, err := GetCommunityRSS(database, conf, c.Param("name"))
		if err != nil {
			c.Render(http.StatusNotFound, render.String{Format: ""})
		} else {
			c.Render(http.StatusOK, render.String{Format: rss})
		}
	})

	if conf.Conf.Federation.Enabled {
		registerFederationRoutes(g, ctx, database, conf)
	}

	return g
}

func registerFederationRoutes(g *gin.Engine, ctx *activitypub.Context, database *db.DB, conf *util.AppConfig) {
	// Stricter limits on federation endpoints, activity bodies are
	// capped at 1MB.
	apLimiter := NewRateLimiter(rate.Limit(5), 10)
	maxBodySize := MaxBytesMiddleware(1 * 1024 * 1024)

	inbox := func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			log.Warn().Err(err).Msg("failed to read inbox body")
			c.Status(http.StatusBadRequest)
			return
		}
		status, err := activitypub.HandleInbox(ctx, c.Request, body)
		if err != nil {
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.Status(status)
	}

	// One shared inbox plus per-actor inboxes. All three run the same
	// path, the activity itself names its targets.
	g.POST("/inbox", RateLimitMiddleware(apLimiter), maxBodySize, inbox)
	g.POST("/u/:username/inbox", RateLimitMiddleware(apLimiter), maxBodySize, inbox)
	g.POST("/c/:name/inbox", RateLimitMiddleware(apLimiter), maxBodySize, inbox)

	g.GET("/u/:username", func(c *gin.Context) {
		c.Header("Content-Type", activityJSON)
		actor, err := GetPersonActor(database, conf, c.Param("username"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "actor not found"})
		} else {
			c.Render(http.StatusOK, render.String{Format: actor})
		}
	})

	g.GET("/c/:name", func(c *gin.Context) {
		c.Header("Content-Type", activityJSON)
		actor, err := GetCommunityActor(database, conf, c.Param("name"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "actor not found"})
		} else {
			c.Render(http.StatusOK, render.String{Format: actor})
		}
	})

	g.GET("/c/:name/moderators", func(c *gin.Context) {
		c.Header("Content-Type", activityJSON)
		coll, err := GetModeratorsCollection(database, c.Param("name"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "community not found"})
		} else {
			c.Render(http.StatusOK, render.String{Format: coll})
		}
	})

	g.GET("/c/:name/followers", func(c *gin.Context) {
		c.Header("Content-Type", activityJSON)
		coll, err := GetFollowersCollection(database, c.Param("name"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "community not found"})
		} else {
			c.Render(http.StatusOK, render.String{Format: coll})
		}
	})

	g.GET("/post/:id", func(c *gin.Context) {
		c.Header("Content-Type", activityJSON)
		postId, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "invalid post id"})
			return
		}
		page, err := GetPostObject(database, postId)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		} else {
			c.Render(http.StatusOK, render.String{Format: page})
		}
	})

	g.GET("/.well-known/webfinger", func(c *gin.Context) {
		c.Header("Content-Type", "application/json; charset=utf-8")

		resource := c.Query("resource")
		if resource == "" || !isWebfingerResource(resource) {
			c.Render(http.StatusNotFound, render.String{Format: GetWebFingerNotFound()})
			return
		}
		name := webfingerName(resource, conf.Conf.Domain)
		resp, err := GetWebfinger(database, conf, name)
		if err != nil {
			c.Render(http.StatusNotFound, render.String{Format: GetWebFingerNotFound()})
		} else {
			c.Render(http.StatusOK, render.String{Format: resp})
		}
	})
}
