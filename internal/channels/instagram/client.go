package instagram

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
	defaultGraphAPIBase = "https://graph.facebook.com/v18.0"
	defaultHTTPTimeout  = 10 * time.Second
)

// Client sends messages via the Instagram/Meta Graph API. The page access
// token is supplied per call because each connected account carries its own.
type Client struct {
	graphAPIBase string
	httpClient   *http.Client
}

// NewClient creates a new Graph API client. An empty base uses the public API.
func NewClient(graphAPIBase string, httpClient *http.Client) *Client {
	if strings.TrimSpace(graphAPIBase) == "" {
		graphAPIBase = defaultGraphAPIBase
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Client{
		graphAPIBase: strings.TrimRight(graphAPIBase, "/"),
		httpClient:   httpClient,
	}
}

// SendText sends a plain text DM and returns the provider message id, which
// may be empty if the API omits it.
func (c *Client) SendText(ctx context.Context, accessToken, recipientID, text string) (string, error) {
	if strings.TrimSpace(accessToken) == "" {
		return "", errors.New("instagram: access token required")
	}
	if strings.TrimSpace(recipientID) == "" || strings.TrimSpace(text) == "" {
		return "", errors.New("instagram: recipient and text required")
	}
	body, err := json.Marshal(SendRequest{
		Recipient: Party{ID: recipientID},
		Message:   SendMessage{Text: text},
	})
	if err != nil {
		return "", fmt.Errorf("instagram: marshal send request: %w", err)
	}

	var sendResp SendResponse
	if err := c.do(ctx, http.MethodPost, c.graphAPIBase+"/me/messages", accessToken, body, &sendResp); err != nil {
		return "", err
	}
	if sendResp.Error != nil {
		return "", fmt.Errorf("instagram: API error %d: %s", sendResp.Error.Code, sendResp.Error.Message)
	}
	return sendResp.MessageID, nil
}

// CheckAccount verifies the token can still read the account node.
func (c *Client) CheckAccount(ctx context.Context, accessToken, accountID string) error {
	if strings.TrimSpace(accessToken) == "" {
		return errors.New("instagram: access token required")
	}
	endpoint := fmt.Sprintf("%s/%s?fields=%s", c.graphAPIBase, url.PathEscape(accountID), url.QueryEscape("id,username"))
	var info AccountInfo
	if err := c.do(ctx, http.MethodGet, endpoint, accessToken, nil, &info); err != nil {
		return err
	}
	if info.Error != nil {
		return fmt.Errorf("instagram: API error %d: %s", info.Error.Code, info.Error.Message)
	}
	if info.ID == "" {
		return errors.New("instagram: account lookup returned no id")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint, accessToken string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("instagram: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("instagram: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("instagram: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("instagram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("instagram: unmarshal response: %w", err)
	}
	return nil
}
