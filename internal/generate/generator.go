// Package generate is the content generation collaborator: it turns
// partitioned content requirements into persisted campaign assets using the
// Gemini API.
package generate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"pressline/internal/config"
	"pressline/internal/domain"
	"pressline/internal/orchestrator"
)

const maxConcurrentGenerations = 4

// AssetWriter persists generated assets.
type AssetWriter interface {
	InsertAsset(ctx context.Context, a domain.GeneratedAsset) error
}

// TextFunc produces model output for a prompt. Tests inject one; production
// wiring uses the Gemini client via NewGemini.
type TextFunc func(ctx context.Context, model, prompt string) (string, error)

type Generator struct {
	Cfg    *config.Config
	Assets AssetWriter
	Text   TextFunc
	Log    *zap.Logger
	Now    func() time.Time
}

// NewGemini builds a Generator backed by the Gemini API.
func NewGemini(ctx context.Context, apiKey string, cfg *config.Config, assets AssetWriter, log *zap.Logger) (*Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("generation API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Generator{
		Cfg:    cfg,
		Assets: assets,
		Text: func(ctx context.Context, model, prompt string) (string, error) {
			contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
			resp, err := client.Models.GenerateContent(ctx, model, contents, nil)
			if err != nil {
				return "", err
			}
			out := resp.Text()
			if out == "" {
				return "", fmt.Errorf("model returned no text")
			}
			return out, nil
		},
		Log: log,
		Now: time.Now,
	}, nil
}

// Dispatch generates every requirement in the batch and persists the results.
// Individual item failures are collected, not fatal; the call errors only
// when the whole batch produced nothing.
func (g *Generator) Dispatch(ctx context.Context, req orchestrator.DispatchRequest) (orchestrator.DispatchResult, error) {
	type job struct {
		item domain.ContentRequirement
		lane string
	}
	var jobs []job
	for _, item := range req.Owned {
		jobs = append(jobs, job{item: item, lane: domain.LaneOwned})
	}
	for _, item := range req.Media {
		jobs = append(jobs, job{item: item, lane: domain.LaneMedia})
	}
	if len(jobs) == 0 {
		return orchestrator.DispatchResult{}, nil
	}

	g.archiveOverview(ctx, req)

	var mu sync.Mutex
	var generated int
	var failed []string

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(maxConcurrentGenerations)
	for _, j := range jobs {
		j := j
		grp.Go(func() error {
			label := fmt.Sprintf("%s/%s", j.item.Type, j.item.Stakeholder)
			body, err := g.Text(gctx, g.Cfg.Generation.Model, buildPrompt(req.Opportunity, j.item, j.lane))
			if err != nil {
				g.Log.Warn("content generation failed", zap.String("item", label), zap.Error(err))
				mu.Lock()
				failed = append(failed, label)
				mu.Unlock()
				return nil
			}
			asset := domain.GeneratedAsset{
				ID:            uuid.NewString(),
				OrgID:         req.Opportunity.OrgID,
				OpportunityID: req.Opportunity.ID,
				Type:          j.item.Type,
				Lane:          j.lane,
				Stakeholder:   j.item.Stakeholder,
				Title:         assetTitle(j.item),
				Body:          body,
				CreatedAt:     g.Now().UTC().Format(time.RFC3339),
			}
			if err := g.Assets.InsertAsset(gctx, asset); err != nil {
				g.Log.Warn("asset persist failed", zap.String("item", label), zap.Error(err))
				mu.Lock()
				failed = append(failed, label)
				mu.Unlock()
				return nil
			}
			mu.Lock()
			generated++
			mu.Unlock()
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return orchestrator.DispatchResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return orchestrator.DispatchResult{}, err
	}
	if generated == 0 {
		return orchestrator.DispatchResult{}, fmt.Errorf("generation produced no assets (%d items failed)", len(failed))
	}
	return orchestrator.DispatchResult{AssetCount: generated, Failed: failed}, nil
}

// archiveOverview persists the partitioned plan as an internal planning
// artifact. It never counts toward campaign progress and failures only cost
// the archive.
func (g *Generator) archiveOverview(ctx context.Context, req orchestrator.DispatchRequest) {
	var b strings.Builder
	fmt.Fprintf(&b, "Campaign plan for %q\n\n", req.Opportunity.Title)
	writeLane := func(name string, items []domain.ContentRequirement) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s lane:\n", name)
		for _, item := range items {
			fmt.Fprintf(&b, "  - %s (%s)\n", item.Type, item.Stakeholder)
		}
	}
	writeLane("Owned", req.Owned)
	writeLane("Media", req.Media)

	overview := domain.GeneratedAsset{
		ID:            uuid.NewString(),
		OrgID:         req.Opportunity.OrgID,
		OpportunityID: req.Opportunity.ID,
		Type:          "plan_overview",
		Lane:          domain.LaneOwned,
		Title:         fmt.Sprintf("Plan overview: %s", req.Opportunity.Title),
		Body:          b.String(),
		Internal:      true,
		CreatedAt:     g.Now().UTC().Format(time.RFC3339),
	}
	if err := g.Assets.InsertAsset(ctx, overview); err != nil {
		g.Log.Warn("plan overview archive failed", zap.Error(err))
	}
}

func assetTitle(item domain.ContentRequirement) string {
	name := strings.ReplaceAll(item.Type, "_", " ")
	if item.Stakeholder == "" {
		return name
	}
	return fmt.Sprintf("%s for %s", name, item.Stakeholder)
}
