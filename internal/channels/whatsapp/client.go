package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultAPIBase     = "https://graph.facebook.com/v18.0"
	defaultHTTPTimeout = 10 * time.Second
)

// Client sends text messages through the WhatsApp Cloud API. Credentials
// are per business account so they are passed on each call.
type Client struct {
	apiBase    string
	httpClient *http.Client
}

func NewClient(apiBase string, httpClient *http.Client) *Client {
	if strings.TrimSpace(apiBase) == "" {
		apiBase = defaultAPIBase
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Client{apiBase: strings.TrimRight(apiBase, "/"), httpClient: httpClient}
}

// SendText sends body to the customer number `to` from phoneNumberID and
// returns the provider message id.
func (c *Client) SendText(ctx context.Context, accessToken, phoneNumberID, to, body string) (string, error) {
	if strings.TrimSpace(accessToken) == "" || strings.TrimSpace(phoneNumberID) == "" {
		return "", errors.New("whatsapp: access token and phone number id required")
	}
	if strings.TrimSpace(to) == "" || strings.TrimSpace(body) == "" {
		return "", errors.New("whatsapp: recipient and body required")
	}
	payload, err := json.Marshal(SendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             SendText{Body: body},
	})
	if err != nil {
		return "", fmt.Errorf("whatsapp: marshal send request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/messages", c.apiBase, url.PathEscape(phoneNumberID))
	var resp SendResponse
	if err := c.do(ctx, http.MethodPost, endpoint, accessToken, payload, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("whatsapp: API error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Messages) == 0 {
		return "", nil
	}
	return resp.Messages[0].ID, nil
}

// CheckAccount verifies the token can still read the business phone number.
func (c *Client) CheckAccount(ctx context.Context, accessToken, phoneNumberID string) error {
	if strings.TrimSpace(accessToken) == "" {
		return errors.New("whatsapp: access token required")
	}
	endpoint := fmt.Sprintf("%s/%s?fields=%s", c.apiBase, url.PathEscape(phoneNumberID),
		url.QueryEscape("id,display_phone_number,verified_name"))
	var info PhoneNumberInfo
	if err := c.do(ctx, http.MethodGet, endpoint, accessToken, nil, &info); err != nil {
		return err
	}
	if info.Error != nil {
		return fmt.Errorf("whatsapp: API error %d: %s", info.Error.Code, info.Error.Message)
	}
	if info.ID == "" {
		return errors.New("whatsapp: phone number lookup returned no id")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint, accessToken string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("whatsapp: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("whatsapp: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("whatsapp: unmarshal response: %w", err)
	}
	return nil
}
