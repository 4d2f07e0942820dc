package directory

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultDirectoryTimeout = 10 * time.Second

type communitiesResponse struct {
	Communities []Community `json:"communities"`
}

// HTTPDirectory resolves communities from the community directory HTTP API.
type HTTPDirectory struct {
	client  *resty.Client
	baseURL string
}

func NewHTTPDirectory(baseURL string) (*HTTPDirectory, error) {
	client := resty.New()
	client.SetTimeout(defaultDirectoryTimeout)
	client.SetRetryCount(0)

	return NewHTTPDirectoryWithClient(baseURL, client)
}

func NewHTTPDirectoryWithClient(baseURL string, client *resty.Client) (*HTTPDirectory, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("directory base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid directory base url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultDirectoryTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPDirectory{
		client:  client,
		baseURL: trimmed,
	}, nil
}

func (d *HTTPDirectory) CommunitiesByState(ctx context.Context, stateCode string) ([]Community, error) {
	if d == nil || d.client == nil {
		return nil, fmt.Errorf("directory client is not initialized")
	}

	normalized := strings.ToUpper(strings.TrimSpace(stateCode))
	if normalized == "" {
		return nil, fmt.Errorf("state code is required")
	}

	var body communitiesResponse
	response, err := d.client.R().
		SetContext(ctx).
		SetResult(&body).
		Get(fmt.Sprintf("%s/states/%s/communities", d.baseURL, normalized))
	if err != nil {
		return nil, fmt.Errorf("directory request failed: %w", err)
	}

	statusCode := response.StatusCode()
	if statusCode == http.StatusNotFound {
		return nil, nil
	}
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("directory returned status %d", statusCode)
	}

	return body.Communities, nil
}
