package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultEnrichTimeout = 30 * time.Second

type enrichRequest struct {
	CommunityID string `json:"communityId"`
}

// HTTPProvider calls the billable discovery/enrichment HTTP API.
type HTTPProvider struct {
	client  *resty.Client
	baseURL string
}

func NewHTTPProvider(baseURL string) (*HTTPProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultEnrichTimeout)
	client.SetRetryCount(0)

	return NewHTTPProviderWithClient(baseURL, client)
}

func NewHTTPProviderWithClient(baseURL string, client *resty.Client) (*HTTPProvider, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("enrichment base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid enrichment base url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultEnrichTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPProvider{
		client:  client,
		baseURL: trimmed,
	}, nil
}

func (p *HTTPProvider) DiscoverBusinesses(ctx context.Context, communityID string) (*Result, error) {
	return p.call(ctx, "/v1/discover", communityID)
}

func (p *HTTPProvider) EnrichCommunity(ctx context.Context, communityID string) (*Result, error) {
	return p.call(ctx, "/v1/enrich", communityID)
}

func (p *HTTPProvider) call(ctx context.Context, path string, communityID string) (*Result, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("enrichment provider is not initialized")
	}

	trimmedID := strings.TrimSpace(communityID)
	if trimmedID == "" {
		return nil, fmt.Errorf("community id is required")
	}

	var result Result
	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(enrichRequest{CommunityID: trimmedID}).
		SetResult(&result).
		Post(p.baseURL + path)
	if err != nil {
		return nil, &ProviderError{
			Message:   "enrichment request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &ProviderError{
			Message:   "enrichment api returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &result, nil
	}

	return nil, &ProviderError{
		StatusCode: statusCode,
		Message:    providerErrorMessage(statusCode, strings.TrimSpace(response.String())),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func providerErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("enrichment api returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
