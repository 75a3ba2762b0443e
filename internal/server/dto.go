package server

import (
	"pressline/internal/domain"
	"pressline/internal/orchestrator"
)

type CreateOpportunityRequest struct {
	ID            string                       `json:"id,omitempty"`
	Title         string                       `json:"title"`
	Objective     string                       `json:"objective,omitempty"`
	KeyMessages   []string                     `json:"key_messages,omitempty"`
	Timeline      string                       `json:"timeline,omitempty"`
	ExecutionPlan []domain.StakeholderCampaign `json:"execution_plan,omitempty"`
}

type ListResponse[T any] struct {
	Items []T `json:"items"`
}

type ExecuteResponse struct {
	RunID         string  `json:"run_id"`
	OpportunityID string  `json:"opportunity_id"`
	Phase         string  `json:"phase"`
	Percent       float64 `json:"percent"`
}

type ProgressResponse struct {
	Running bool                 `json:"running"`
	Phase   string               `json:"phase"`
	Percent float64              `json:"percent"`
	Result  *orchestrator.Result `json:"result,omitempty"`
}

type EventPage struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
