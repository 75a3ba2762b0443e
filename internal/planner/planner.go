// Package planner partitions an opportunity's execution plan into the two
// generation lanes. It is pure: no storage, no clocks, no network.
package planner

import (
	"errors"

	"go.uber.org/zap"

	"pressline/internal/config"
	"pressline/internal/domain"
)

// ErrMissingPlan is returned when an opportunity carries no execution plan
// with content items. Execution cannot start without one.
var ErrMissingPlan = errors.New("opportunity has no execution plan")

// Plan is the partitioned requirement set for one execution run.
type Plan struct {
	Owned   []domain.ContentRequirement
	Media   []domain.ContentRequirement
	Skipped []domain.ContentRequirement
}

// Total is the number of assets a run is expected to produce.
func (p Plan) Total() int {
	return len(p.Owned) + len(p.Media)
}

// Empty reports whether nothing generatable survived the partition.
func (p Plan) Empty() bool {
	return p.Total() == 0
}

// Build walks every stakeholder campaign in order and routes each content
// item by the catalog's lane. Items whose type is unknown or not generatable
// are skipped, not failed: a plan mixing generatable and human-executed work
// is normal. Missing stakeholder attribution is backfilled from the campaign
// the item belongs to.
func Build(cfg *config.Config, opp domain.Opportunity, log *zap.Logger) (Plan, error) {
	if len(opp.ExecutionPlan) == 0 {
		return Plan{}, ErrMissingPlan
	}
	var plan Plan
	for _, sc := range opp.ExecutionPlan {
		for _, item := range sc.ContentItems {
			if item.Stakeholder == "" {
				item.Stakeholder = sc.StakeholderName
			}
			lane, ok := cfg.Lane(item.Type)
			if !ok {
				plan.Skipped = append(plan.Skipped, item)
				log.Debug("skipping non-generatable content item",
					zap.String("opportunity", opp.ID),
					zap.String("type", item.Type),
					zap.String("stakeholder", item.Stakeholder))
				continue
			}
			switch lane {
			case domain.LaneOwned:
				plan.Owned = append(plan.Owned, item)
			case domain.LaneMedia:
				plan.Media = append(plan.Media, item)
			}
		}
	}
	if plan.Empty() && len(plan.Skipped) == 0 {
		return Plan{}, ErrMissingPlan
	}
	return plan, nil
}
