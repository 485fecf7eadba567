package activitypub

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

// HandleInbox runs the full receive path for a delivery: check the
// HTTP signature against the signer's key, then hand the body to the
// dispatcher. The returned status is what the inbox answers with.
//
// 202 acknowledges both applied activities and ones we understand
// enough to drop, 400 tells the sender not to retry a rejected
// activity, 500 asks for a retry after an internal failure.
func HandleInbox(ctx *Context, req *http.Request, body []byte) (int, error) {
	budget := ctx.NewBudget()

	keyId, err := SignatureKeyId(req)
	if err != nil {
		return http.StatusUnauthorized, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	signerURI := splitKeyId(keyId)

	publicKeyPem, err := ctx.Resolver.ActorKey(signerURI, budget)
	if err != nil {
		if IsRejection(err) {
			return http.StatusBadRequest, err
		}
		return http.StatusUnauthorized, fmt.Errorf("%w: cannot resolve signer %s: %v", ErrVerificationFailed, signerURI, err)
	}

	if _, err := VerifyRequest(req, publicKeyPem); err != nil {
		return http.StatusUnauthorized, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	err = ReceiveEnvelope(ctx, body)
	switch {
	case err == nil:
		return http.StatusAccepted, nil
	case errors.Is(err, ErrUnsupportedActivity):
		// Acknowledged and dropped, redelivery would not help.
		log.Debug().Err(err).Msg("dropping unsupported activity")
		return http.StatusAccepted, nil
	case IsRejection(err):
		log.Info().Err(err).Msg("rejected activity")
		return http.StatusBadRequest, err
	default:
		log.Error().Err(err).Msg("failed to process activity")
		return http.StatusInternalServerError, err
	}
}

func splitKeyId(keyId string) string {
	for i := 0; i < len(keyId); i++ {
		if keyId[i] == '#' {
			return keyId[:i]
		}
	}
	return keyId
}
