// Package channels holds the canonical inbound event shape shared by every
// channel normalizer together with webhook authenticity checks.
package channels

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// Channel identifies a messaging surface.
type Channel string

const (
	ChannelInstagram Channel = "instagram"
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelForm      Channel = "form"
)

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelInstagram, ChannelWhatsApp, ChannelForm:
		return true
	}
	return false
}

// MessagingChannels are the channels that carry two-way conversations.
var MessagingChannels = []Channel{ChannelInstagram, ChannelWhatsApp}

// InboundEvent is the normalized form of a single provider delivery item.
// It is built per webhook delivery and discarded once consumed.
type InboundEvent struct {
	Channel     Channel         `json:"channel"`
	ExternalID  string          `json:"external_id"`
	SenderID    string          `json:"sender_id"`
	SenderName  string          `json:"sender_name,omitempty"`
	RecipientID string          `json:"recipient_id"`
	Text        string          `json:"text"`
	Timestamp   time.Time       `json:"timestamp"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// Normalizer converts a provider payload into canonical events. Malformed
// payloads yield an empty slice, never an error.
type Normalizer interface {
	ExtractEvents(payload []byte) []InboundEvent
}

// FallbackID derives a stable external id from event fields for providers
// that omit a message id, so a replayed delivery maps to the same key.
func FallbackID(ch Channel, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return string(ch) + "_" + hex.EncodeToString(sum[:12])
}
