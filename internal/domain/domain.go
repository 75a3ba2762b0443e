package domain

// Opportunity lifecycle statuses. Transitions only move forward:
// active -> executing -> executed.
const (
	StatusActive    = "active"
	StatusExecuting = "executing"
	StatusExecuted  = "executed"
)

// Content lanes. Every generatable content type belongs to exactly one.
const (
	LaneOwned = "owned"
	LaneMedia = "media"
)

type Opportunity struct {
	ID              string                `json:"id"`
	OrgID           string                `json:"org_id"`
	Title           string                `json:"title"`
	Status          string                `json:"status" enum:"active,executing,executed"`
	Executed        bool                  `json:"executed"`
	PresentationURL *string               `json:"presentation_url,omitempty"`
	Objective       string                `json:"objective,omitempty"`
	KeyMessages     []string              `json:"key_messages,omitempty"`
	Timeline        string                `json:"timeline,omitempty"`
	ExecutionPlan   []StakeholderCampaign `json:"execution_plan,omitempty"`
	CreatedAt       string                `json:"created_at" format:"date-time"`
	UpdatedAt       string                `json:"updated_at" format:"date-time"`
}

// TargetStakeholders returns the distinct stakeholder names in plan order.
func (o Opportunity) TargetStakeholders() []string {
	seen := map[string]bool{}
	var names []string
	for _, sc := range o.ExecutionPlan {
		if sc.StakeholderName == "" || seen[sc.StakeholderName] {
			continue
		}
		seen[sc.StakeholderName] = true
		names = append(names, sc.StakeholderName)
	}
	return names
}

// StakeholderCampaign is one stakeholder/lever pairing in an execution plan,
// with the content deliverables planned for it.
type StakeholderCampaign struct {
	StakeholderName     string               `json:"stakeholder_name"`
	StakeholderPriority int                  `json:"stakeholder_priority,omitempty"`
	LeverName           string               `json:"lever_name"`
	LeverPriority       int                  `json:"lever_priority,omitempty"`
	ContentItems        []ContentRequirement `json:"content_items"`
}

// ContentRequirement is one planned content deliverable.
type ContentRequirement struct {
	Type        string   `json:"type"`
	Stakeholder string   `json:"stakeholder"`
	Purpose     string   `json:"purpose,omitempty"`
	KeyPoints   []string `json:"key_points,omitempty"`
	Urgency     string   `json:"urgency,omitempty"`
}

// GeneratedAsset is a persisted content artifact produced by the generation
// collaborator. The orchestrator only ever reads these; Internal marks
// planning artifacts that are excluded from asset counts and listings.
type GeneratedAsset struct {
	ID            string `json:"id"`
	OrgID         string `json:"org_id"`
	OpportunityID string `json:"opportunity_id"`
	Type          string `json:"type"`
	Lane          string `json:"lane" enum:"owned,media"`
	Stakeholder   string `json:"stakeholder,omitempty"`
	Title         string `json:"title"`
	Body          string `json:"body,omitempty"`
	Internal      bool   `json:"internal,omitempty"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

// ExecutionRun is the persisted record of one orchestrator run.
type ExecutionRun struct {
	ID              string  `json:"id"`
	OpportunityID   string  `json:"opportunity_id"`
	Success         bool    `json:"success"`
	AssetCount      int     `json:"asset_count"`
	PresentationURL *string `json:"presentation_url,omitempty"`
	Error           string  `json:"error,omitempty"`
	StartedAt       string  `json:"started_at" format:"date-time"`
	FinishedAt      string  `json:"finished_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	OrgID      string `json:"org_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
