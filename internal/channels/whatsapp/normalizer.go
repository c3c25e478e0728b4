package whatsapp

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/estate-crm/internal/channels"
	"github.com/wolfman30/estate-crm/pkg/logging"
)

const objectWhatsApp = "whatsapp_business_account"

// Normalizer turns WhatsApp Cloud API webhooks into canonical inbound events.
// The customer's wa_id is the sender and the business phone_number_id is the
// recipient.
type Normalizer struct {
	logger *logging.Logger
	now    func() time.Time
}

func NewNormalizer(logger *logging.Logger) *Normalizer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Normalizer{logger: logger, now: time.Now}
}

var _ channels.Normalizer = (*Normalizer)(nil)

// IsValid reports whether a message has a sender, a recipient phone id and a
// text body. Media, reactions and status updates are not text events.
func IsValid(m Message, phoneNumberID string) bool {
	if strings.TrimSpace(m.From) == "" || strings.TrimSpace(phoneNumberID) == "" {
		return false
	}
	if m.Text == nil || strings.TrimSpace(m.Text.Body) == "" {
		return false
	}
	return true
}

// ExtractEvents walks entry[].changes[].value.messages[].
func (n *Normalizer) ExtractEvents(payload []byte) []channels.InboundEvent {
	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		n.logger.Warn("whatsapp: undecodable webhook payload", "error", err)
		return nil
	}
	if event.Object != objectWhatsApp || len(event.Entry) == 0 {
		n.logger.Debug("whatsapp: ignoring payload", "object", event.Object, "entries", len(event.Entry))
		return nil
	}

	var out []channels.InboundEvent
	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			names := make(map[string]string, len(value.Contacts))
			for _, c := range value.Contacts {
				names[c.WaID] = strings.TrimSpace(c.Profile.Name)
			}
			for _, m := range value.Messages {
				if !IsValid(m, value.Metadata.PhoneNumberID) {
					n.logger.Info("whatsapp: dropping invalid message",
						"entry_id", entry.ID,
						"type", m.Type,
						"from", logging.MaskPhone(m.From),
					)
					continue
				}
				out = append(out, n.toEvent(value.Metadata, m, names[m.From]))
			}
		}
	}
	return out
}

func (n *Normalizer) toEvent(meta Metadata, m Message, senderName string) channels.InboundEvent {
	timestamp := n.now().UTC()
	if secs, err := strconv.ParseInt(strings.TrimSpace(m.Timestamp), 10, 64); err == nil && secs > 0 {
		timestamp = time.Unix(secs, 0).UTC()
	}

	sender := digitsOnly(m.From)
	externalID := strings.TrimSpace(m.ID)
	if externalID == "" {
		externalID = channels.FallbackID(channels.ChannelWhatsApp,
			sender, meta.PhoneNumberID, m.Timestamp, m.Text.Body)
	}

	raw, _ := json.Marshal(m)
	return channels.InboundEvent{
		Channel:     channels.ChannelWhatsApp,
		ExternalID:  externalID,
		SenderID:    sender,
		SenderName:  senderName,
		RecipientID: meta.PhoneNumberID,
		Text:        strings.TrimSpace(m.Text.Body),
		Timestamp:   timestamp,
		Raw:         raw,
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
