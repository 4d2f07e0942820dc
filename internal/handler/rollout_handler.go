package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/townhub/rollout-engine/internal/domain"
	"github.com/townhub/rollout-engine/internal/repository"
	"github.com/townhub/rollout-engine/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type RolloutService interface {
	Initiate(ctx context.Context, params service.InitiateParams) (*domain.Rollout, error)
	Pause(ctx context.Context, rolloutID string) (*domain.Rollout, error)
	Resume(ctx context.Context, rolloutID string) (*domain.Rollout, error)
	RetryCommunity(ctx context.Context, rolloutID string, communityID string) (*domain.CommunityRollout, error)
	List(ctx context.Context, params repository.ListParams) ([]service.RolloutWithProgress, int64, error)
	StateDetail(ctx context.Context, stateCode string) (*service.RolloutDetail, error)
	CommunityStateDetail(ctx context.Context, stateCode string, communityID string) (*service.CommunityDetail, error)
	CostBreakdown(ctx context.Context) (*service.CostReport, error)
}

type RolloutHandler struct {
	service RolloutService
}

func NewRolloutHandler(service RolloutService) (*RolloutHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("rollout service is required")
	}
	return &RolloutHandler{service: service}, nil
}

func RegisterRolloutRoutes(router fiber.Router, service RolloutService) error {
	h, err := NewRolloutHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/rollouts", h.InitiateRollout)
	v1.Get("/rollouts", h.ListRollouts)
	// Registered before the :stateCode wildcard so "costs" never matches it.
	v1.Get("/rollouts/costs", h.GetCostBreakdown)
	v1.Get("/rollouts/:stateCode", h.GetStateRollout)
	v1.Get("/rollouts/:stateCode/communities/:communityId", h.GetCommunityRollout)
	v1.Post("/rollouts/:id/pause", h.PauseRollout)
	v1.Post("/rollouts/:id/resume", h.ResumeRollout)
	v1.Post("/rollouts/:id/communities/:communityId/retry", h.RetryCommunity)

	return nil
}

type initiateRolloutRequest struct {
	StateCode           string   `json:"stateCode"`
	BatchSize           *int     `json:"batchSize,omitempty"`
	ThrottleMs          *int     `json:"throttleMs,omitempty"`
	SkipEnrichment      bool     `json:"skipEnrichment,omitempty"`
	PriorityCommunities []string `json:"priorityCommunities,omitempty"`
}

type rolloutResponse struct {
	ID                  string    `json:"id"`
	StateCode           string    `json:"stateCode"`
	Status              string    `json:"status"`
	BatchSize           int       `json:"batchSize"`
	ThrottleMs          int       `json:"throttleMs"`
	SkipEnrichment      bool      `json:"skipEnrichment"`
	PriorityCommunities []string  `json:"priorityCommunities,omitempty"`
	CreatedAt           time.Time `json:"createdAt,omitempty"`
	UpdatedAt           time.Time `json:"updatedAt,omitempty"`
}

type progressResponse struct {
	Total           int            `json:"total"`
	Completed       int            `json:"completed"`
	Failed          int            `json:"failed"`
	PercentComplete float64        `json:"percentComplete"`
	ByStatus        map[string]int `json:"byStatus"`
	ByPhase         map[string]int `json:"byPhase"`
}

type communityResponse struct {
	CommunityID          string    `json:"communityId"`
	Status               string    `json:"status"`
	CurrentPhase         string    `json:"currentPhase"`
	Position             int       `json:"position"`
	BusinessesDiscovered int       `json:"businessesDiscovered"`
	NewsSourcesCreated   int       `json:"newsSourcesCreated"`
	APICostMicros        int64     `json:"apiCostMicros"`
	APICostUSD           float64   `json:"apiCostUsd"`
	ErrorLog             *string   `json:"errorLog,omitempty"`
	UpdatedAt            time.Time `json:"updatedAt,omitempty"`
}

type stateRolloutResponse struct {
	Rollout     rolloutResponse     `json:"rollout"`
	Progress    progressResponse    `json:"progress"`
	Communities []communityResponse `json:"communities"`
}

type listRolloutsResponse struct {
	Data []listRolloutItem `json:"data"`
	Meta listMeta          `json:"meta"`
}

type listRolloutItem struct {
	Rollout  rolloutResponse  `json:"rollout"`
	Progress progressResponse `json:"progress"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

type usageResponse struct {
	APIName             string    `json:"apiName"`
	SKUTier             string    `json:"skuTier"`
	RequestCount        int       `json:"requestCount"`
	ActualResponseCount int       `json:"actualResponseCount"`
	EstimatedCostMicros int64     `json:"estimatedCostMicros"`
	EstimatedCostUSD    float64   `json:"estimatedCostUsd"`
	CreatedAt           time.Time `json:"createdAt,omitempty"`
}

type communityDetailResponse struct {
	Community communityResponse `json:"community"`
	Usage     []usageResponse   `json:"usage"`
}

type costLineItem struct {
	APIName             string  `json:"apiName"`
	SKUTier             string  `json:"skuTier"`
	RequestCount        int64   `json:"requestCount"`
	ActualResponseCount int64   `json:"actualResponseCount"`
	EstimatedCostMicros int64   `json:"estimatedCostMicros"`
	EstimatedCostUSD    float64 `json:"estimatedCostUsd"`
}

type costBreakdownResponse struct {
	Lines       []costLineItem `json:"lines"`
	TotalMicros int64          `json:"totalMicros"`
	TotalUSD    float64        `json:"totalUsd"`
}

func (h *RolloutHandler) InitiateRollout(c *fiber.Ctx) error {
	var req initiateRolloutRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	rollout, err := h.service.Initiate(c.Context(), service.InitiateParams{
		StateCode:           req.StateCode,
		BatchSize:           req.BatchSize,
		ThrottleMs:          req.ThrottleMs,
		SkipEnrichment:      req.SkipEnrichment,
		PriorityCommunities: req.PriorityCommunities,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toRolloutResponse(rollout))
}

func (h *RolloutHandler) ListRollouts(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	rollouts, total, err := h.service.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]listRolloutItem, 0, len(rollouts))
	for i := range rollouts {
		items = append(items, listRolloutItem{
			Rollout:  toRolloutResponse(&rollouts[i].Rollout),
			Progress: toProgressResponse(rollouts[i].Progress),
		})
	}

	return c.Status(fiber.StatusOK).JSON(listRolloutsResponse{
		Data: items,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *RolloutHandler) GetStateRollout(c *fiber.Ctx) error {
	stateCode := strings.TrimSpace(c.Params("stateCode"))

	detail, err := h.service.StateDetail(c.Context(), stateCode)
	if err != nil {
		return toHTTPError(err)
	}

	communities := make([]communityResponse, 0, len(detail.Communities))
	for i := range detail.Communities {
		communities = append(communities, toCommunityResponse(&detail.Communities[i]))
	}

	return c.Status(fiber.StatusOK).JSON(stateRolloutResponse{
		Rollout:     toRolloutResponse(&detail.Rollout),
		Progress:    toProgressResponse(detail.Progress),
		Communities: communities,
	})
}

func (h *RolloutHandler) GetCommunityRollout(c *fiber.Ctx) error {
	stateCode := strings.TrimSpace(c.Params("stateCode"))
	communityID := strings.TrimSpace(c.Params("communityId"))

	detail, err := h.service.CommunityStateDetail(c.Context(), stateCode, communityID)
	if err != nil {
		return toHTTPError(err)
	}

	usage := make([]usageResponse, 0, len(detail.Usage))
	for i := range detail.Usage {
		row := detail.Usage[i]
		usage = append(usage, usageResponse{
			APIName:             row.APIName,
			SKUTier:             row.SKUTier,
			RequestCount:        row.RequestCount,
			ActualResponseCount: row.ActualResponseCount,
			EstimatedCostMicros: row.EstimatedCostMicros,
			EstimatedCostUSD:    row.CostUSD(),
			CreatedAt:           row.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(communityDetailResponse{
		Community: toCommunityResponse(&detail.Community),
		Usage:     usage,
	})
}

func (h *RolloutHandler) PauseRollout(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))

	rollout, err := h.service.Pause(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toRolloutResponse(rollout))
}

func (h *RolloutHandler) ResumeRollout(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))

	rollout, err := h.service.Resume(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toRolloutResponse(rollout))
}

func (h *RolloutHandler) RetryCommunity(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	communityID := strings.TrimSpace(c.Params("communityId"))

	record, err := h.service.RetryCommunity(c.Context(), id, communityID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toCommunityResponse(record))
}

func (h *RolloutHandler) GetCostBreakdown(c *fiber.Ctx) error {
	report, err := h.service.CostBreakdown(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	lines := make([]costLineItem, 0, len(report.Lines))
	for _, line := range report.Lines {
		lines = append(lines, costLineItem{
			APIName:             line.APIName,
			SKUTier:             line.SKUTier,
			RequestCount:        line.RequestCount,
			ActualResponseCount: line.ActualResponseCount,
			EstimatedCostMicros: line.EstimatedCostMicros,
			EstimatedCostUSD:    line.EstimatedCostUSD,
		})
	}

	return c.Status(fiber.StatusOK).JSON(costBreakdownResponse{
		Lines:       lines,
		TotalMicros: report.TotalMicros,
		TotalUSD:    report.TotalUSD,
	})
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseRolloutStatusFromString(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}

	return params, nil
}

func toRolloutResponse(r *domain.Rollout) rolloutResponse {
	return rolloutResponse{
		ID:                  r.ID,
		StateCode:           r.StateCode,
		Status:              r.Status.String(),
		BatchSize:           r.BatchSize,
		ThrottleMs:          r.ThrottleMs,
		SkipEnrichment:      r.SkipEnrichment,
		PriorityCommunities: r.PriorityCommunities,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

func toProgressResponse(p service.ProgressSummary) progressResponse {
	byStatus := make(map[string]int, len(p.ByStatus))
	for status, count := range p.ByStatus {
		byStatus[status.String()] = count
	}
	byPhase := make(map[string]int, len(p.ByPhase))
	for phase, count := range p.ByPhase {
		byPhase[phase.String()] = count
	}

	return progressResponse{
		Total:           p.Total,
		Completed:       p.Completed,
		Failed:          p.Failed,
		PercentComplete: p.PercentComplete,
		ByStatus:        byStatus,
		ByPhase:         byPhase,
	}
}

func toCommunityResponse(c *domain.CommunityRollout) communityResponse {
	return communityResponse{
		CommunityID:          c.CommunityID,
		Status:               c.Status.String(),
		CurrentPhase:         c.CurrentPhase.String(),
		Position:             c.Position,
		BusinessesDiscovered: c.BusinessesDiscovered,
		NewsSourcesCreated:   c.NewsSourcesCreated,
		APICostMicros:        c.APICostMicros,
		APICostUSD:           float64(c.APICostMicros) / domain.MicrosPerUSD,
		ErrorLog:             c.ErrorLog,
		UpdatedAt:            c.UpdatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrNoCommunities):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrNotPaused):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
