package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/snapdock/snapdock-api/internal/service"
)

// UsageHandler serves the usage summary endpoint.
type UsageHandler struct {
	usage *service.UsageService
}

// NewUsageHandler creates a new usage handler.
func NewUsageHandler(usage *service.UsageService) *UsageHandler {
	return &UsageHandler{usage: usage}
}

// GetUsageOutput represents the usage summary response.
type GetUsageOutput struct {
	Body struct {
		Tier             string `json:"tier"`
		MonthlyCredits   int    `json:"monthlyCredits"`
		UsedCredits      int    `json:"usedCredits"`
		RemainingCredits int    `json:"remainingCredits"`
		PeriodStart      string `json:"periodStart"`
		PeriodEnd        string `json:"periodEnd"`
		TotalEvents      int    `json:"totalEvents"`
	}
}

// GetUsage handles the current-period usage summary.
func (h *UsageHandler) GetUsage(ctx context.Context, input *struct{}) (*GetUsageOutput, error) {
	tenantID := tenantFromContext(ctx)
	if tenantID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	report, err := h.usage.Summarize(ctx, tenantID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to build usage summary")
	}

	out := &GetUsageOutput{}
	out.Body.Tier = string(report.Tier)
	out.Body.MonthlyCredits = report.MonthlyCredits
	out.Body.UsedCredits = report.UsedCredits
	out.Body.RemainingCredits = report.RemainingCredits
	out.Body.PeriodStart = report.PeriodStart.Format(time.RFC3339)
	out.Body.PeriodEnd = report.PeriodEnd.Format(time.RFC3339)
	out.Body.TotalEvents = report.TotalEvents
	return out, nil
}
