package inbox

import (
	"context"

	"github.com/wolfman30/estate-crm/internal/channels/instagram"
	"github.com/wolfman30/estate-crm/internal/channels/whatsapp"
)

// Adapter is a channel's outbound surface: sending text and checking that a
// credential still works.
type Adapter interface {
	Send(ctx context.Context, account Account, credential, recipientID, text string) (externalID string, err error)
	Check(ctx context.Context, account Account, credential string) error
}

// CredentialOpener turns a stored account credential into an access token.
type CredentialOpener interface {
	Open(ctx context.Context, account Account) (string, error)
}

// PassthroughOpener uses the stored credential as the token.
type PassthroughOpener struct{}

func (PassthroughOpener) Open(ctx context.Context, account Account) (string, error) {
	return account.Credential, nil
}

// InstagramAdapter sends through the Graph API messaging endpoint.
type InstagramAdapter struct {
	client *instagram.Client
}

func NewInstagramAdapter(client *instagram.Client) *InstagramAdapter {
	return &InstagramAdapter{client: client}
}

func (a *InstagramAdapter) Send(ctx context.Context, account Account, credential, recipientID, text string) (string, error) {
	return a.client.SendText(ctx, credential, recipientID, text)
}

func (a *InstagramAdapter) Check(ctx context.Context, account Account, credential string) error {
	return a.client.CheckAccount(ctx, credential, account.ExternalID)
}

// WhatsAppAdapter sends from the account's phone number id.
type WhatsAppAdapter struct {
	client *whatsapp.Client
}

func NewWhatsAppAdapter(client *whatsapp.Client) *WhatsAppAdapter {
	return &WhatsAppAdapter{client: client}
}

func (a *WhatsAppAdapter) Send(ctx context.Context, account Account, credential, recipientID, text string) (string, error) {
	return a.client.SendText(ctx, credential, account.ExternalID, recipientID, text)
}

func (a *WhatsAppAdapter) Check(ctx context.Context, account Account, credential string) error {
	return a.client.CheckAccount(ctx, credential, account.ExternalID)
}
