package activitypub

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"strings"

	"code.superseriousbusiness.org/httpsig"
)

// signedHeaders is the header set covered by outgoing signatures.
var signedHeaders = []string{"(request-target)", "host", "date", "digest"}

// SignRequest signs an outgoing request with the given key.
// keyId has the form "https://example.com/u/alice#main-key".
func SignRequest(req *http.Request, privateKey *rsa.PrivateKey, keyId string) error {
	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		signedHeaders,
		httpsig.Signature,
		0,
	)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}
	return signer.SignRequest(privateKey, keyId, req, nil)
}

// VerifyRequest checks the signature of an incoming request against
// the given public key and returns the signing actor's uri, derived
// from the keyId by stripping the fragment.
func VerifyRequest(req *http.Request, publicKeyPem string) (string, error) {
	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return "", fmt.Errorf("failed to create verifier: %w", err)
	}

	publicKey, err := ParsePublicKey(publicKeyPem)
	if err != nil {
		return "", err
	}

	if err := verifier.Verify(publicKey, httpsig.RSA_SHA256); err != nil {
		return "", fmt.Errorf("signature verification failed: %w", err)
	}
	return strings.Split(verifier.KeyId(), "#")[0], nil
}

// SignatureKeyId extracts the keyId of an incoming request without
// verifying anything, so the caller can resolve the signer first.
func SignatureKeyId(req *http.Request) (string, error) {
	header := req.Header.Get("Signature")
	if header == "" {
		header = strings.TrimPrefix(req.Header.Get("Authorization"), "Signature ")
	}
	if header == "" {
		return "", fmt.Errorf("request carries no signature")
	}
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if value, found := strings.CutPrefix(part, `keyId="`); found {
			return strings.TrimSuffix(value, `"`), nil
		}
	}
	return "", fmt.Errorf("signature header carries no keyId")
}

// ParsePrivateKey decodes a PKCS1 PEM private key.
func ParsePrivateKey(pemString string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}
	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return privateKey, nil
}

// ParsePublicKey decodes a PKIX PEM public key.
func ParsePublicKey(pemString string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}
	publicKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaKey, ok := publicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return rsaKey, nil
}
