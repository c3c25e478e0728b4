// Package inbox unifies Instagram and WhatsApp conversations into one
// caller-scoped, reverse-chronological view and routes outbound replies.
package inbox

import (
	"errors"
	"time"

	"github.com/wolfman30/estate-crm/internal/channels"
)

// RecentLimit caps both the per-channel fetch and the merged inbox.
const RecentLimit = 50

type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// AccountStatus is the health of a connected channel identity.
type AccountStatus string

const (
	AccountConnected    AccountStatus = "connected"
	AccountError        AccountStatus = "error"
	AccountDisconnected AccountStatus = "disconnected"
)

// Message is one persisted communication. ExternalID is unique per channel.
type Message struct {
	ID          string           `json:"id"`
	Channel     channels.Channel `json:"channel"`
	ExternalID  string           `json:"external_id"`
	AccountID   string           `json:"account_id,omitempty"`
	SenderID    string           `json:"sender_id"`
	RecipientID string           `json:"recipient_id"`
	Body        string           `json:"body"`
	Direction   Direction        `json:"direction"`
	LeadID      string           `json:"lead_id,omitempty"`
	CampaignID  string           `json:"campaign_id,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Account is a connected Instagram or WhatsApp identity. Credential is
// opaque here; a CredentialOpener turns it into a usable access token.
type Account struct {
	ID            string           `json:"id"`
	Channel       channels.Channel `json:"channel"`
	ExternalID    string           `json:"external_id"`
	DisplayName   string           `json:"display_name"`
	Credential    string           `json:"-"`
	Status        AccountStatus    `json:"status"`
	OwnerID       string           `json:"owner_id"`
	LastError     string           `json:"last_error,omitempty"`
	LastCheckedAt *time.Time       `json:"last_checked_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// identifiers are the ids a message may carry to belong to this account.
func (a Account) identifiers() []string {
	ids := []string{a.ID}
	if a.ExternalID != "" && a.ExternalID != a.ID {
		ids = append(ids, a.ExternalID)
	}
	return ids
}

var (
	ErrNoCaller           = errors.New("inbox: caller id is required")
	ErrNoConnectedAccount = errors.New("inbox: no connected account for channel")
	ErrUnsupportedChannel = errors.New("inbox: channel does not support messaging")
	ErrEmptyMessage       = errors.New("inbox: recipient and text are required")
	ErrSendFailed         = errors.New("inbox: provider rejected the message")
	ErrAccountNotFound    = errors.New("inbox: account not found")
	ErrInvalidAccount     = errors.New("inbox: channel, external id and credential are required")
)
