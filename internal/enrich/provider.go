package enrich

import "context"

// Usage is the billing metadata of one external API call, used to append a
// cost ledger row.
type Usage struct {
	APIName             string `json:"apiName"`
	SKUTier             string `json:"skuTier"`
	RequestCount        int    `json:"requestCount"`
	ActualResponseCount int    `json:"actualResponseCount"`
	EstimatedCostMicros int64  `json:"estimatedCostMicros"`
}

// Result is the outcome of one discovery or enrichment call for a community.
type Result struct {
	BusinessesFound    int   `json:"businessesFound"`
	NewsSourcesCreated int   `json:"newsSourcesCreated"`
	Usage              Usage `json:"usage"`
}

// Provider is the outbound port for the billable, rate-limited discovery and
// enrichment API.
type Provider interface {
	DiscoverBusinesses(ctx context.Context, communityID string) (*Result, error)
	EnrichCommunity(ctx context.Context, communityID string) (*Result, error)
}

// API names used for rate limit keys and ledger rows.
const (
	APIBusinessDiscovery   = "business-discovery"
	APICommunityEnrichment = "community-enrichment"
)
