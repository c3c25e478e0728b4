// Package telephony is the client for the outbound callback API of the
// voice provider. Requests are signed with the provider's HMAC-SHA1 scheme.
package telephony

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wolfman30/estate-crm/pkg/logging"
)

const (
	callbackPath   = "/v1/request/callback/"
	defaultTimeout = 15 * time.Second
)

var (
	ErrNotConfigured     = errors.New("telephony: api key and secret are required")
	ErrRejected          = errors.New("telephony: provider rejected the request")
	ErrMalformedResponse = errors.New("telephony: malformed provider response")
)

// Client places outbound calls.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	logger     *logging.Logger
}

// Config configures the client.
type Config struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	HTTPClient *http.Client
	Logger     *logging.Logger
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.APISecret) == "" {
		return nil, ErrNotConfigured
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// CanonicalParams encodes params sorted by key, the string every signature
// is computed over.
func CanonicalParams(params url.Values) string {
	// url.Values.Encode sorts by key.
	return params.Encode()
}

// Sign computes the provider signature for a request to method (the API
// path) with params: base64(hex(HMAC-SHA1(method + params + md5(params)))).
func Sign(secret, method string, params url.Values) string {
	canonical := CanonicalParams(params)
	digest := md5.Sum([]byte(canonical))
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(method + canonical + hex.EncodeToString(digest[:])))
	return base64.StdEncoding.EncodeToString([]byte(hex.EncodeToString(mac.Sum(nil))))
}

type callbackResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	CallID    string `json:"call_id"`
	PBXCallID string `json:"pbx_call_id"`
}

// Place asks the provider to connect from and to. It returns the provider's
// call id; a non-2xx status, an error status or a missing id is a failure.
func (c *Client) Place(ctx context.Context, from, to string) (string, error) {
	if from == "" || to == "" {
		return "", fmt.Errorf("telephony: from and to numbers are required")
	}
	params := url.Values{}
	params.Set("from", from)
	params.Set("to", to)
	params.Set("format", "json")

	endpoint := c.baseURL + callbackPath + "?" + CanonicalParams(params)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("telephony: build request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey+":"+Sign(c.apiSecret, callbackPath, params))

	c.logger.Info("telephony: placing call", "from", logging.MaskPhone(from), "to", logging.MaskPhone(to))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("telephony: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("telephony: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("telephony: non-2xx response", "status", resp.StatusCode, "body", string(body))
		return "", fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	var out callbackResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if !strings.EqualFold(out.Status, "success") {
		return "", fmt.Errorf("%w: %s", ErrRejected, out.Message)
	}
	id := out.CallID
	if id == "" {
		id = out.PBXCallID
	}
	if id == "" {
		return "", fmt.Errorf("%w: missing call id", ErrMalformedResponse)
	}
	return id, nil
}
