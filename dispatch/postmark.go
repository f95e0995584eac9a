package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// =============================================================================
// POSTMARK EMAIL CLIENT - EmailSender over the Postmark HTTP API
// =============================================================================

const defaultPostmarkURL = "https://api.postmarkapp.com/email"

type PostmarkClient struct {
	serverToken string
	fromEmail   string
	apiURL      string
	httpClient  *http.Client
}

type PostmarkOption func(*PostmarkClient)

func WithHTTPClient(c *http.Client) PostmarkOption {
	return func(p *PostmarkClient) { p.httpClient = c }
}

func WithAPIURL(url string) PostmarkOption {
	return func(p *PostmarkClient) { p.apiURL = url }
}

func NewPostmarkClient(serverToken, fromEmail string, opts ...PostmarkOption) *PostmarkClient {
	p := &PostmarkClient{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		apiURL:      defaultPostmarkURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ EmailSender = (*PostmarkClient)(nil)

// Configured returns true if the server token is set.
func (p *PostmarkClient) Configured() bool { return p.serverToken != "" }

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	TextBody string `json:"TextBody"`
}

func (p *PostmarkClient) Send(ctx context.Context, to, subject, body string) error {
	if !p.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	payload, err := json.Marshal(postmarkEmail{
		From:     p.fromEmail,
		To:       to,
		Subject:  subject,
		TextBody: body,
	})
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", p.serverToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}
	return nil
}
