package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// SignatureHeader carries the callback signature.
const SignatureHeader = "Signature"

// SignCallback returns base64(HMAC-SHA1(body)) under secret.
func SignCallback(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyCallback checks a provider callback signature over the raw body. An
// empty secret never verifies.
func VerifyCallback(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(SignCallback(secret, body)), []byte(signature))
}

// Callback is a call progress notification.
type Callback struct {
	CallID      string `json:"call_id"`
	PBXCallID   string `json:"pbx_call_id"`
	Event       string `json:"event"`
	Disposition string `json:"disposition"`
}

// ExternalID returns whichever call id the provider sent.
func (c Callback) ExternalID() string {
	if c.CallID != "" {
		return c.CallID
	}
	return c.PBXCallID
}

// ParseCallback decodes a JSON callback body.
func ParseCallback(body []byte) (Callback, error) {
	var cb Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		return Callback{}, fmt.Errorf("telephony: decode callback: %w", err)
	}
	if cb.ExternalID() == "" {
		return Callback{}, fmt.Errorf("telephony: callback without call id")
	}
	return cb, nil
}

// State maps the provider event to a lifecycle state name (RINGING,
// ANSWERED, COMPLETED, FAILED). Unknown events map to "".
func (c Callback) State() string {
	switch strings.ToUpper(strings.TrimSpace(c.Event)) {
	case "NOTIFY_START", "NOTIFY_OUT_START":
		return "RINGING"
	case "NOTIFY_ANSWER":
		return "ANSWERED"
	case "NOTIFY_END", "NOTIFY_OUT_END":
		if strings.EqualFold(strings.TrimSpace(c.Disposition), "answered") {
			return "COMPLETED"
		}
		return "FAILED"
	}
	return ""
}
