package instagram

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/estate-crm/internal/channels"
	"github.com/wolfman30/estate-crm/pkg/logging"
)

const objectInstagram = "instagram"

// Normalizer turns Instagram DM webhooks into canonical inbound events.
type Normalizer struct {
	logger *logging.Logger
	now    func() time.Time
}

// NewNormalizer creates a normalizer. A nil logger uses the default logger.
func NewNormalizer(logger *logging.Logger) *Normalizer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Normalizer{logger: logger, now: time.Now}
}

var _ channels.Normalizer = (*Normalizer)(nil)

// IsValid reports whether a messaging item carries a sender, a recipient and
// message text. Echoes of our own outbound messages are not inbound events.
func IsValid(m Messaging) bool {
	if m.Sender == nil || strings.TrimSpace(m.Sender.ID) == "" {
		return false
	}
	if m.Recipient == nil || strings.TrimSpace(m.Recipient.ID) == "" {
		return false
	}
	if m.Message == nil || m.Message.IsEcho || strings.TrimSpace(m.Message.Text) == "" {
		return false
	}
	return true
}

// ExtractEvents walks entry[].messaging[] and returns every valid item.
// Payloads for another object type or without entries produce no events.
func (n *Normalizer) ExtractEvents(payload []byte) []channels.InboundEvent {
	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		n.logger.Warn("instagram: undecodable webhook payload", "error", err)
		return nil
	}
	if event.Object != objectInstagram || len(event.Entry) == 0 {
		n.logger.Debug("instagram: ignoring payload", "object", event.Object, "entries", len(event.Entry))
		return nil
	}

	var out []channels.InboundEvent
	for _, entry := range event.Entry {
		for _, m := range entry.Messaging {
			if !IsValid(m) {
				n.logger.Info("instagram: dropping invalid messaging event",
					"entry_id", entry.ID,
					"has_message", m.Message != nil,
					"is_postback", m.Postback != nil,
				)
				continue
			}
			out = append(out, n.toEvent(entry, m))
		}
	}
	return out
}

func (n *Normalizer) toEvent(entry Entry, m Messaging) channels.InboundEvent {
	ts := m.Timestamp
	if ts == 0 {
		ts = entry.Time
	}
	timestamp := n.now().UTC()
	if ts > 0 {
		timestamp = time.UnixMilli(ts).UTC()
	}

	externalID := strings.TrimSpace(m.Message.MID)
	if externalID == "" {
		externalID = channels.FallbackID(channels.ChannelInstagram,
			m.Sender.ID, m.Recipient.ID, strconv.FormatInt(ts, 10), m.Message.Text)
	}

	raw, _ := json.Marshal(m)
	return channels.InboundEvent{
		Channel:     channels.ChannelInstagram,
		ExternalID:  externalID,
		SenderID:    m.Sender.ID,
		RecipientID: m.Recipient.ID,
		Text:        strings.TrimSpace(m.Message.Text),
		Timestamp:   timestamp,
		Raw:         raw,
	}
}
