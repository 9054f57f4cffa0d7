package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://graph.facebook.com/v21.0"
	defaultTimeout = 15 * time.Second
)

type Config struct {
	Token         string
	PhoneNumberID string
	BaseURL       string
	Timeout       time.Duration
}

// Client sends messages through the Cloud API.
type Client struct {
	token         string
	phoneNumberID string
	baseURL       string
	httpClient    *http.Client
	logger        *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		token:         cfg.Token,
		phoneNumberID: cfg.PhoneNumberID,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		logger:        logger,
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.token != "" && c.phoneNumberID != ""
}

type textBody struct {
	Body string `json:"body"`
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

// SendText sends a plain text message to the phone number to.
func (c *Client) SendText(ctx context.Context, to, text string) error {
	if !c.Configured() {
		return fmt.Errorf("whatsapp client is not configured")
	}

	jsonData, err := json.Marshal(sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: text},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Error("WhatsApp API rejected message",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
			zap.String("to", to))
		return fmt.Errorf("whatsapp API returned status %d", resp.StatusCode)
	}

	return nil
}

// Send delivers text for the reminder dispatcher.
func (c *Client) Send(ctx context.Context, recipient, text string) error {
	return c.SendText(ctx, recipient, text)
}
