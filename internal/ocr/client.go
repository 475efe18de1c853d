package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/labfin/invoice-archiver/internal/config"
)

// Client talks to the VAT-invoice OCR endpoint. Authentication is a
// client-credentials token exchange; the token is cached until shortly
// before expiry.
type Client struct {
	httpClient   *http.Client
	apiKey       string
	secretKey    string
	tokenURL     string
	recognizeURL string
	logger       *zap.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates an OCR client from the provider configuration.
func NewClient(cfg config.OCRConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		apiKey:       cfg.APIKey,
		secretKey:    cfg.SecretKey,
		tokenURL:     cfg.TokenURL,
		recognizeURL: cfg.RecognizeURL,
		logger:       logger,
	}
}

// Recognize submits the image to the OCR provider and returns the raw JSON
// response body. A non-2xx response surfaces as an error carrying the
// provider's body. Timeout expiry is a normal failure, not a distinct
// state.
func (c *Client) Recognize(ctx context.Context, imageBytes []byte) ([]byte, error) {
	if len(imageBytes) == 0 {
		return nil, ErrEmptyImage
	}

	token, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("image", base64.StdEncoding.EncodeToString(imageBytes))

	reqURL := fmt.Sprintf("%s?access_token=%s", c.recognizeURL, url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build OCR request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OCR request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read OCR response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("OCR recognition failed",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body))
		return nil, fmt.Errorf("OCR recognition failed (status %d): %s", resp.StatusCode, body)
	}

	c.logger.Debug("OCR recognition succeeded", zap.Int("response_bytes", len(body)))
	return body, nil
}

// getAccessToken returns a cached token or fetches a fresh one. The cached
// token is treated as expired 60 seconds early.
func (c *Client) getAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	if c.apiKey == "" || c.secretKey == "" {
		return "", ErrMissingCredentials
	}

	reqURL := fmt.Sprintf("%s?grant_type=client_credentials&client_id=%s&client_secret=%s",
		c.tokenURL, url.QueryEscape(c.apiKey), url.QueryEscape(c.secretKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("token exchange failed (status %d): %s", resp.StatusCode, body)
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &token); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("token response contained no access_token: %s", body)
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn-60) * time.Second)

	c.logger.Debug("Fetched OCR access token",
		zap.Time("expires_at", c.tokenExpiry))

	return c.accessToken, nil
}
