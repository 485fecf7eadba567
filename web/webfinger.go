package web

import (
	"fmt"
	"strings"

	"github.com/deemkeen/agora/db"
	"github.com/deemkeen/agora/util"
)

func isWebfingerResource(resource string) bool {
	return strings.HasPrefix(resource, "acct:")
}

// webfingerName strips the acct scheme, our own domain suffix and the
// community bang prefix, leaving the bare local name.
func webfingerName(resource, domain string) string {
	name := strings.TrimPrefix(resource, "acct:")
	name = strings.TrimSuffix(name, "@"+domain)
	name = strings.TrimPrefix(name, "!")
	return name
}

// GetWebfinger resolves a bare account name to its actor uri. Person
// names are tried first, community names second, so "acct:name@host"
// works for both.
func GetWebfinger(database *db.DB, conf *util.AppConfig, name string) (string, error) {
	var actorURI string

	person, err := database.LocalPersonByName(name)
	if err != nil {
		return "", err
	}
	if person != nil {
		actorURI = person.ActorURI
	} else {
		community, err := database.LocalCommunityByName(name)
		if err != nil {
			return "", err
		}
		if community == nil {
			return "", fmt.Errorf("no local actor %q", name)
		}
		actorURI = community.ActorURI
	}

	return fmt.Sprintf(
		`{
			"subject": "acct:%s@%s",
			"links": [
				{
					"rel": "self",
					"type": "application/activity+json",
					"href": "%s"
				}
			]
		}`, name, conf.Conf.Domain, actorURI), nil
}

func GetWebFingerNotFound() string {
	return `{"detail":"Not Found"}`
}
