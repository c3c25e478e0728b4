// Package form parses flat web-form and spreadsheet webhook submissions.
package form

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/estate-crm/internal/channels"
	"github.com/wolfman30/estate-crm/pkg/logging"
)

// ErrMissingName is returned when no name alias carries a value.
var ErrMissingName = errors.New("form: name is required")

// Submission is a parsed form or sheet row.
type Submission struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	Budget      string `json:"budget,omitempty"`
	Message     string `json:"message,omitempty"`
	CampaignID  string `json:"campaign_id,omitempty"`
	PageSlug    string `json:"page_slug,omitempty"`
	Channel     string `json:"channel,omitempty"`
	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	UTMTerm     string `json:"utm_term,omitempty"`
	UTMContent  string `json:"utm_content,omitempty"`
}

// Alias tables. The first alias with a non-empty value wins.
var (
	idAliases       = []string{"submission_id", "submissionId", "id", "row_id", "rowId"}
	nameAliases     = []string{"name", "Name", "full_name", "fullName", "Full Name", "FullName"}
	phoneAliases    = []string{"phone", "Phone", "mobile", "Mobile", "phone_number", "phoneNumber", "Phone Number", "whatsapp", "WhatsApp"}
	emailAliases    = []string{"email", "Email", "e-mail", "E-mail", "email_address", "Email Address"}
	budgetAliases   = []string{"budget", "Budget", "price_range", "Price Range"}
	messageAliases  = []string{"message", "Message", "notes", "Notes", "comment", "Comment"}
	campaignAliases = []string{"campaign_id", "campaignId", "Campaign ID"}
	pageAliases     = []string{"page_slug", "pageSlug", "page", "Page", "landing_page"}
	channelAliases  = []string{"channel", "Channel", "marketing_channel", "source", "Source"}
)

// ParseSubmission decodes a flat JSON object. Numeric and boolean values are
// stringified so sheet integrations that send phones as numbers still work.
func ParseSubmission(payload []byte) (Submission, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return Submission{}, fmt.Errorf("form: decode submission: %w", err)
	}
	if fields == nil {
		return Submission{}, errors.New("form: submission must be a JSON object")
	}

	sub := Submission{
		ID:          pick(fields, idAliases),
		Name:        pick(fields, nameAliases),
		Phone:       pick(fields, phoneAliases),
		Email:       strings.ToLower(pick(fields, emailAliases)),
		Budget:      pick(fields, budgetAliases),
		Message:     pick(fields, messageAliases),
		CampaignID:  pick(fields, campaignAliases),
		PageSlug:    pick(fields, pageAliases),
		Channel:     pick(fields, channelAliases),
		UTMSource:   pick(fields, []string{"utm_source", "utmSource"}),
		UTMMedium:   pick(fields, []string{"utm_medium", "utmMedium"}),
		UTMCampaign: pick(fields, []string{"utm_campaign", "utmCampaign"}),
		UTMTerm:     pick(fields, []string{"utm_term", "utmTerm"}),
		UTMContent:  pick(fields, []string{"utm_content", "utmContent"}),
	}
	if sub.Name == "" {
		return Submission{}, ErrMissingName
	}
	return sub, nil
}

func pick(fields map[string]any, aliases []string) string {
	for _, key := range aliases {
		if v, ok := fields[key]; ok {
			if s := stringify(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// Normalizer exposes form submissions through the channel normalizer contract.
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

// ExtractEvents yields one event for a valid submission and none otherwise.
func (n *Normalizer) ExtractEvents(payload []byte) []channels.InboundEvent {
	sub, err := ParseSubmission(payload)
	if err != nil {
		n.logger.Info("form: dropping submission", "error", err)
		return nil
	}
	externalID := sub.ID
	if externalID == "" {
		externalID = channels.FallbackID(channels.ChannelForm, sub.Name, sub.Phone, sub.Email, sub.Message, sub.PageSlug)
	}
	raw, _ := json.Marshal(sub)
	return []channels.InboundEvent{{
		Channel:    channels.ChannelForm,
		ExternalID: externalID,
		SenderID:   firstNonEmpty(sub.Phone, sub.Email),
		SenderName: sub.Name,
		Text:       sub.Message,
		Timestamp:  n.now().UTC(),
		Raw:        raw,
	}}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
