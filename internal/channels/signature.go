package channels

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
)

const signaturePrefix = "sha256="

// SignatureHeader is the header Meta uses for webhook signatures. Form and
// sheet integrations are configured to send the same header.
const SignatureHeader = "X-Hub-Signature-256"

// Sign returns the "sha256=<hex>" signature of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks header against the HMAC-SHA256 of the exact raw body.
// An unconfigured secret always fails.
func VerifySignature(secret string, body []byte, header string) bool {
	if secret == "" || header == "" {
		return false
	}
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(header))
}

// Verifier binds a shared secret for repeated checks.
type Verifier struct {
	secret string
}

// NewVerifier creates a verifier for the given secret.
func NewVerifier(secret string) Verifier {
	return Verifier{secret: secret}
}

// Verify reports whether signatureHeader matches rawBody.
func (v Verifier) Verify(rawBody []byte, signatureHeader string) bool {
	return VerifySignature(v.secret, rawBody, signatureHeader)
}

// Configured reports whether a secret is present.
func (v Verifier) Configured() bool {
	return v.secret != ""
}

const maxWebhookBody = 1 << 20

// ReadVerifiedBody reads the request body and checks its signature. It
// returns ErrInvalidSignature when the check fails.
func (v Verifier) ReadVerifiedBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		return nil, fmt.Errorf("channels: read body: %w", err)
	}
	if !v.Verify(body, r.Header.Get(SignatureHeader)) {
		return nil, ErrInvalidSignature
	}
	return body, nil
}
