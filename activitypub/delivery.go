package activitypub

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/deemkeen/agora/domain"
	"github.com/deemkeen/agora/util"
	"github.com/rs/zerolog/log"
)

// Retry schedule in minutes, capped at the last entry.
var backoffMinutes = []int{1, 5, 15, 60, 240, 1440}

const maxDeliveryAttempts = 10

// SendActivity queues an activity for every given inbox. Queueing is
// the success criterion of sending, actual transmission is retried in
// the background.
func SendActivity(ctx *Context, activity any, inboxes []string, signAsURI string) error {
	activityJSON, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	localHost := ctx.Conf.Conf.Domain
	seen := map[string]bool{}
	for _, inbox := range inboxes {
		if inbox == "" || seen[inbox] {
			continue
		}
		seen[inbox] = true

		host, err := hostOf(inbox)
		if err != nil {
			log.Warn().Str("inbox", inbox).Msg("skipping invalid inbox uri")
			continue
		}
		if host == localHost {
			continue
		}
		if !ctx.Conf.HostAllowed(host) {
			continue
		}

		err = ctx.Store.EnqueueDelivery(&domain.DeliveryQueueItem{
			InboxURI:     inbox,
			ActivityJSON: string(activityJSON),
			SignAsURI:    signAsURI,
			Attempts:     0,
			NextRetryAt:  time.Now(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// SendToCommunity routes an activity through its community. A local
// community fans out to its followers, a remote one gets the single
// copy and announces it onward itself.
func SendToCommunity(ctx *Context, community *domain.Community, activity any, signAsURI string, extraInboxes []string) error {
	var inboxes []string
	if community.Local {
		followers, err := ctx.Store.FollowerInboxes(community.Id)
		if err != nil {
			return err
		}
		inboxes = followers
	} else {
		inboxes = []string{community.SharedInboxOrInbox()}
	}
	inboxes = append(inboxes, extraInboxes...)
	return SendActivity(ctx, activity, inboxes, signAsURI)
}

// maybeAnnounce relays an activity received by a local community to
// its followers, wrapped in an Announce signed by the community.
func maybeAnnounce(ctx *Context, community *domain.Community, env *Envelope) error {
	if community == nil || !community.Local {
		return nil
	}
	innerJSON, err := json.Marshal(env)
	if err != nil {
		return err
	}
	announce := &Envelope{
		ID:     GenerateActivityID(ctx.Conf.BaseURL(), KindAnnounce),
		Kind:   KindAnnounce,
		Actor:  community.ActorURI,
		Object: innerJSON,
		To:     []string{PublicURL},
		CC:     []string{community.FollowersURI},
	}
	return SendToCommunity(ctx, community, announce, community.ActorURI, nil)
}

// StartDeliveryWorker drains the delivery queue on a fixed tick until
// the quit channel closes.
func StartDeliveryWorker(ctx *Context, quit <-chan struct{}) {
	log.Info().Msg("starting delivery worker")

	ticker := time.NewTicker(10 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				processDeliveryQueue(ctx)
			case <-quit:
				return
			}
		}
	}()
}

// processDeliveryQueue attempts every due delivery once. A failure
// reschedules just that item, the rest of the batch continues.
func processDeliveryQueue(ctx *Context) {
	items, err := ctx.Store.PendingDeliveries(50)
	if err != nil {
		log.Error().Err(err).Msg("failed to read delivery queue")
		return
	}
	if len(items) == 0 {
		return
	}
	log.Debug().Int("count", len(items)).Msg("processing pending deliveries")

	for _, item := range items {
		if err := deliverItem(ctx, &item); err != nil {
			item.Attempts++
			minutes := backoffMinutes[min(item.Attempts-1, len(backoffMinutes)-1)]
			item.NextRetryAt = time.Now().Add(time.Duration(minutes) * time.Minute)

			if item.Attempts >= maxDeliveryAttempts {
				log.Warn().
					Str("inbox", item.InboxURI).
					Int("attempts", item.Attempts).
					Msg("giving up on delivery")
				if err := ctx.Store.DeleteDelivery(item.Id); err != nil {
					log.Error().Err(err).Str("inbox", item.InboxURI).Msg("failed to drop delivery item")
				}
			} else {
				log.Info().
					Err(err).
					Str("inbox", item.InboxURI).
					Int("attempts", item.Attempts).
					Int("retry_in_minutes", minutes).
					Msg("delivery failed, scheduled retry")
				if err := ctx.Store.UpdateDeliveryAttempt(item.Id, item.Attempts, item.NextRetryAt); err != nil {
					log.Error().Err(err).Str("inbox", item.InboxURI).Msg("failed to reschedule delivery item")
				}
			}
		} else {
			log.Debug().Str("inbox", item.InboxURI).Msg("delivered")
			if err := ctx.Store.DeleteDelivery(item.Id); err != nil {
				log.Error().Err(err).Str("inbox", item.InboxURI).Msg("failed to drop delivered item")
			}
		}
	}
}

// deliverItem signs and posts one queued activity. The signing key is
// looked up at delivery time so a rotated key applies to retries.
func deliverItem(ctx *Context, item *domain.DeliveryQueueItem) error {
	privateKeyPem, err := signingKeyFor(ctx, item.SignAsURI)
	if err != nil {
		return err
	}
	privateKey, err := ParsePrivateKey(privateKeyPem)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	payload := []byte(item.ActivityJSON)
	hash := sha256.Sum256(payload)
	digest := "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])

	req, err := http.NewRequest("POST", item.InboxURI, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.GetNameAndVersion()+" ActivityPub")
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("Digest", digest)

	keyID := item.SignAsURI + "#main-key"
	if err := SignRequest(req, privateKey, keyID); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote server returned status %d", resp.StatusCode)
	}
	return nil
}

// signingKeyFor finds the private key of the local actor a delivery is
// signed as, person or community.
func signingKeyFor(ctx *Context, actorURI string) (string, error) {
	person, err := ctx.Store.PersonByURI(actorURI)
	if err != nil {
		return "", err
	}
	if person != nil && person.PrivateKeyPem != "" {
		return person.PrivateKeyPem, nil
	}
	community, err := ctx.Store.CommunityByURI(actorURI)
	if err != nil {
		return "", err
	}
	if community != nil && community.PrivateKeyPem != "" {
		return community.PrivateKeyPem, nil
	}
	return "", fmt.Errorf("no signing key for %s", actorURI)
}
