package dispatch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// =============================================================================
// PLATFORM CLIENT - AccessControl over the community platform's REST API
// =============================================================================

// PlatformClient talks to the third-party community platform's member
// API. Suspend and restore flip the member's access; remove drops the
// membership entirely.
type PlatformClient struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

type PlatformOption func(*PlatformClient)

func WithPlatformHTTPClient(c *http.Client) PlatformOption {
	return func(p *PlatformClient) { p.httpClient = c }
}

func NewPlatformClient(baseURL, apiToken string, opts ...PlatformOption) *PlatformClient {
	p := &PlatformClient{
		baseURL:    baseURL,
		apiToken:   apiToken,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ AccessControl = (*PlatformClient)(nil)

func (p *PlatformClient) Suspend(ctx context.Context, externalID string) error {
	return p.post(ctx, externalID, "suspend")
}

func (p *PlatformClient) Restore(ctx context.Context, externalID string) error {
	return p.post(ctx, externalID, "restore")
}

func (p *PlatformClient) Remove(ctx context.Context, externalID string) error {
	return p.post(ctx, externalID, "remove")
}

func (p *PlatformClient) post(ctx context.Context, externalID, action string) error {
	endpoint := fmt.Sprintf("%s/api/members/%s/%s", p.baseURL, url.PathEscape(externalID), action)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", action, externalID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("platform API %s: status %d: %s", action, resp.StatusCode, detail)
	}
	return nil
}
