package inbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/estate-crm/internal/channels"
	"github.com/wolfman30/estate-crm/internal/events"
	"github.com/wolfman30/estate-crm/internal/observability/metrics"
	"github.com/wolfman30/estate-crm/pkg/logging"
)

var inboxTracer = otel.Tracer("estatecrm.internal.inbox")

// LocalIDPrefix marks outbound message ids generated locally because the
// provider did not return one.
const LocalIDPrefix = "local_"

// SendRequest is an outbound reply from a caller.
type SendRequest struct {
	Channel     channels.Channel `json:"channel"`
	RecipientID string           `json:"recipient_id"`
	Text        string           `json:"text"`
	LeadID      string           `json:"lead_id,omitempty"`
}

// ConnectRequest registers a channel account for a caller.
type ConnectRequest struct {
	Channel     channels.Channel `json:"channel"`
	ExternalID  string           `json:"external_id"`
	DisplayName string           `json:"display_name"`
	AccessToken string           `json:"access_token"`
}

// Service aggregates and sends messages across channels.
type Service struct {
	messages  MessageStore
	accounts  AccountStore
	adapters  map[channels.Channel]Adapter
	opener    CredentialOpener
	publisher events.Publisher
	metrics   *metrics.CRMMetrics
	logger    *logging.Logger
	now       func() time.Time
}

func NewService(messages MessageStore, accounts AccountStore, logger *logging.Logger) *Service {
	if messages == nil || accounts == nil {
		panic("inbox: message and account stores required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		messages: messages,
		accounts: accounts,
		adapters: make(map[channels.Channel]Adapter),
		opener:   PassthroughOpener{},
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) WithAdapter(ch channels.Channel, a Adapter) *Service {
	s.adapters[ch] = a
	return s
}

func (s *Service) WithCredentialOpener(o CredentialOpener) *Service {
	if o != nil {
		s.opener = o
	}
	return s
}

func (s *Service) WithPublisher(p events.Publisher) *Service {
	s.publisher = p
	return s
}

func (s *Service) WithMetrics(m *metrics.CRMMetrics) *Service {
	s.metrics = m
	return s
}

// List returns the caller's most recent messages across every messaging
// channel, newest first, capped at RecentLimit.
func (s *Service) List(ctx context.Context, callerID string) ([]Message, error) {
	if strings.TrimSpace(callerID) == "" {
		return nil, ErrNoCaller
	}
	accounts, err := s.accounts.ByOwner(ctx, callerID, "")
	if err != nil {
		return nil, fmt.Errorf("inbox: load accounts: %w", err)
	}

	ids := make(map[channels.Channel][]string)
	for _, a := range accounts {
		ids[a.Channel] = append(ids[a.Channel], a.identifiers()...)
	}

	merged := make([]Message, 0, RecentLimit)
	for _, ch := range channels.MessagingChannels {
		if len(ids[ch]) == 0 {
			continue
		}
		msgs, err := s.messages.Recent(ctx, ch, ids[ch], RecentLimit)
		if err != nil {
			return nil, fmt.Errorf("inbox: recent %s messages: %w", ch, err)
		}
		merged = append(merged, msgs...)
	}

	// Per-channel caps do not bound the global top-N, so trim again.
	sortNewestFirst(merged)
	if len(merged) > RecentLimit {
		merged = merged[:RecentLimit]
	}
	return merged, nil
}

// Send delivers text through the caller's connected account and records the
// outgoing message. Nothing is persisted when the provider rejects it.
func (s *Service) Send(ctx context.Context, callerID string, req SendRequest) (*Message, error) {
	if strings.TrimSpace(callerID) == "" {
		return nil, ErrNoCaller
	}
	req.RecipientID = strings.TrimSpace(req.RecipientID)
	if req.RecipientID == "" || strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyMessage
	}
	adapter, ok := s.adapters[req.Channel]
	if !ok {
		return nil, ErrUnsupportedChannel
	}

	account, err := s.connectedAccount(ctx, callerID, req.Channel)
	if err != nil {
		return nil, err
	}
	credential, err := s.opener.Open(ctx, *account)
	if err != nil {
		return nil, fmt.Errorf("inbox: open credential: %w", err)
	}

	ctx, span := inboxTracer.Start(ctx, "inbox.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("estatecrm.channel", string(req.Channel)),
		attribute.String("estatecrm.account_id", account.ID),
	)

	externalID, err := adapter.Send(ctx, *account, credential, req.RecipientID, req.Text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		s.metrics.ObserveOutbound(string(req.Channel), "error")
		s.logger.Error("outbound message failed", "error", err, "channel", req.Channel, "account_id", account.ID)
		return nil, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	if externalID == "" {
		externalID = LocalIDPrefix + uuid.NewString()
	}

	msg := &Message{
		Channel:     req.Channel,
		ExternalID:  externalID,
		AccountID:   account.ID,
		SenderID:    account.ExternalID,
		RecipientID: req.RecipientID,
		Body:        req.Text,
		Direction:   DirectionOutgoing,
		LeadID:      req.LeadID,
		Timestamp:   s.now().UTC(),
	}
	if _, err := s.messages.Upsert(ctx, msg); err != nil {
		s.logger.Error("outbound message sent but not recorded", "error", err, "external_id", externalID)
		return nil, fmt.Errorf("inbox: record outbound message: %w", err)
	}
	s.metrics.ObserveOutbound(string(req.Channel), "sent")
	s.publish(ctx, events.MessageSentV1{
		MessageID:         msg.ID,
		Channel:           string(msg.Channel),
		AccountID:         msg.AccountID,
		RecipientID:       msg.RecipientID,
		ProviderMessageID: msg.ExternalID,
		SentBy:            callerID,
		SentAt:            msg.Timestamp,
	}, msg)
	return msg, nil
}

func (s *Service) connectedAccount(ctx context.Context, callerID string, ch channels.Channel) (*Account, error) {
	accounts, err := s.accounts.ByOwner(ctx, callerID, ch)
	if err != nil {
		return nil, fmt.Errorf("inbox: load accounts: %w", err)
	}
	for i := range accounts {
		if accounts[i].Status == AccountConnected {
			return &accounts[i], nil
		}
	}
	return nil, ErrNoConnectedAccount
}

// Ingest stores an inbound event once per (channel, external id). The
// receiving account is resolved from the event recipient when known.
func (s *Service) Ingest(ctx context.Context, evt channels.InboundEvent, leadID string) (*Message, bool, error) {
	msg := &Message{
		Channel:     evt.Channel,
		ExternalID:  evt.ExternalID,
		SenderID:    evt.SenderID,
		RecipientID: evt.RecipientID,
		Body:        evt.Text,
		Direction:   DirectionIncoming,
		LeadID:      leadID,
		Timestamp:   evt.Timestamp,
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now().UTC()
	}
	account, err := s.accounts.ByExternalID(ctx, evt.Channel, evt.RecipientID)
	switch {
	case err == nil:
		msg.AccountID = account.ID
	case errors.Is(err, ErrAccountNotFound):
		s.logger.Debug("inbound message for unknown account", "channel", evt.Channel, "recipient_id", evt.RecipientID)
	default:
		return nil, false, fmt.Errorf("inbox: resolve account: %w", err)
	}

	created, err := s.messages.Upsert(ctx, msg)
	if err != nil {
		return nil, false, fmt.Errorf("inbox: store inbound message: %w", err)
	}
	if created {
		s.publish(ctx, events.MessageReceivedV1{
			MessageID:  msg.ID,
			Channel:    string(msg.Channel),
			AccountID:  msg.AccountID,
			LeadID:     msg.LeadID,
			SenderID:   msg.SenderID,
			ReceivedAt: msg.Timestamp,
		}, msg)
	}
	return msg, created, nil
}

// Connect verifies a credential with the channel and stores the account as
// connected for the caller.
func (s *Service) Connect(ctx context.Context, callerID string, req ConnectRequest) (*Account, error) {
	if strings.TrimSpace(callerID) == "" {
		return nil, ErrNoCaller
	}
	req.ExternalID = strings.TrimSpace(req.ExternalID)
	if req.ExternalID == "" || strings.TrimSpace(req.AccessToken) == "" {
		return nil, ErrInvalidAccount
	}
	adapter, ok := s.adapters[req.Channel]
	if !ok {
		return nil, ErrUnsupportedChannel
	}
	account := &Account{
		Channel:     req.Channel,
		ExternalID:  req.ExternalID,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Credential:  req.AccessToken,
		Status:      AccountConnected,
		OwnerID:     callerID,
	}
	if err := adapter.Check(ctx, *account, req.AccessToken); err != nil {
		s.logger.Warn("account credential rejected", "error", err, "channel", req.Channel)
		return nil, fmt.Errorf("%w: %w", ErrInvalidAccount, err)
	}
	if err := s.accounts.Save(ctx, account); err != nil {
		return nil, err
	}
	s.metrics.SetAccountHealth(string(account.Channel), account.ID, true)
	return account, nil
}

// CheckAccount verifies a stored account's credential with its channel.
func (s *Service) CheckAccount(ctx context.Context, account Account) error {
	adapter, ok := s.adapters[account.Channel]
	if !ok {
		return ErrUnsupportedChannel
	}
	credential, err := s.opener.Open(ctx, account)
	if err != nil {
		return fmt.Errorf("inbox: open credential: %w", err)
	}
	return adapter.Check(ctx, account, credential)
}

func (s *Service) publish(ctx context.Context, evt events.CanonicalEvent, msg *Message) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events.MessageAggregate(msg.ID), evt); err != nil {
		s.logger.Warn("message event publish failed", "error", err, "message_id", msg.ID)
	}
}
