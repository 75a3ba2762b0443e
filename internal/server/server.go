// Package server exposes the pressline HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"pressline/internal/config"
	"pressline/internal/domain"
	"pressline/internal/orchestrator"
	"pressline/internal/planner"
	"pressline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Cfg         *config.Config
	Repo        repo.Repo
	Coordinator *orchestrator.Coordinator
	Log         *zap.Logger
	BasePath    string
	Now         func() time.Time
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"opportunity opp-1: not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the pressline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	hcfg := huma.DefaultConfig("Pressline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerOpportunities(group, cfg)
	registerExecution(group, cfg)
	registerAssets(group, cfg)
	registerRuns(group, cfg)
	registerEvents(group, cfg)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, orchestrator.ErrAlreadyExecuting):
		return newAPIError(http.StatusConflict, "already_executing", err.Error(), nil)
	case errors.Is(err, orchestrator.ErrNotExecutable):
		return newAPIError(http.StatusConflict, "not_executable", err.Error(), nil)
	case errors.Is(err, planner.ErrMissingPlan):
		return newAPIError(http.StatusUnprocessableEntity, "missing_plan", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "not found"):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerOpportunities(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-opportunity",
		Method:        http.MethodPost,
		Path:          "/opportunities",
		Summary:       "Create opportunity",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateOpportunityRequest `json:"body"`
	}) (*struct {
		Body domain.Opportunity `json:"body"`
	}, error) {
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		now := cfg.Now().UTC().Format(time.RFC3339)
		opp := domain.Opportunity{
			ID:            input.Body.ID,
			OrgID:         cfg.Cfg.Org.ID,
			Title:         input.Body.Title,
			Status:        domain.StatusActive,
			Objective:     input.Body.Objective,
			KeyMessages:   input.Body.KeyMessages,
			Timeline:      input.Body.Timeline,
			ExecutionPlan: input.Body.ExecutionPlan,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if opp.ID == "" {
			opp.ID = uuid.NewString()
		}
		if err := cfg.Repo.InsertOpportunity(ctx, opp); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Opportunity `json:"body"`
		}{Body: opp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-opportunities",
		Method:      http.MethodGet,
		Path:        "/opportunities",
		Summary:     "List opportunities",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" required:"false"`
		Limit  int    `query:"limit" required:"false"`
	}) (*struct {
		Body ListResponse[domain.Opportunity] `json:"body"`
	}, error) {
		items, err := cfg.Repo.ListOpportunities(ctx, repo.OpportunityFilters{
			OrgID:  cfg.Cfg.Org.ID,
			Status: input.Status,
			Limit:  input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ListResponse[domain.Opportunity] `json:"body"`
		}{Body: ListResponse[domain.Opportunity]{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-opportunity",
		Method:      http.MethodGet,
		Path:        "/opportunities/{id}",
		Summary:     "Get opportunity",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Opportunity `json:"body"`
	}, error) {
		opp, err := cfg.Repo.GetOpportunity(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Opportunity `json:"body"`
		}{Body: opp}, nil
	})
}

func registerExecution(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "execute-opportunity",
		Method:        http.MethodPost,
		Path:          "/opportunities/{id}/execute",
		Summary:       "Execute opportunity into a campaign",
		DefaultStatus: http.StatusAccepted,
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ExecuteResponse `json:"body"`
	}, error) {
		run, err := cfg.Coordinator.Execute(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		snap := run.Progress()
		return &struct {
			Body ExecuteResponse `json:"body"`
		}{Body: ExecuteResponse{RunID: run.ID, OpportunityID: input.ID, Phase: snap.Phase, Percent: snap.Percent}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "opportunity-progress",
		Method:      http.MethodGet,
		Path:        "/opportunities/{id}/progress",
		Summary:     "Execution progress",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ProgressResponse `json:"body"`
	}, error) {
		// an in-flight run is the freshest source; otherwise fall back to
		// the persisted record
		if run, ok := cfg.Coordinator.Attach(input.ID); ok {
			snap := run.Progress()
			resp := ProgressResponse{Running: true, Phase: snap.Phase, Percent: snap.Percent}
			if res, done := run.Result(); done {
				resp.Running = false
				resp.Result = &res
			}
			return &struct {
				Body ProgressResponse `json:"body"`
			}{Body: resp}, nil
		}
		opp, err := cfg.Repo.GetOpportunity(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := ProgressResponse{Running: false}
		if opp.Executed {
			resp.Phase = "done"
			resp.Percent = 100
		} else {
			resp.Phase = "idle"
		}
		return &struct {
			Body ProgressResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerAssets(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-assets",
		Method:      http.MethodGet,
		Path:        "/opportunities/{id}/assets",
		Summary:     "List generated assets",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ListResponse[domain.GeneratedAsset] `json:"body"`
	}, error) {
		if _, err := cfg.Repo.GetOpportunity(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := cfg.Repo.ListAssets(ctx, cfg.Cfg.Org.ID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ListResponse[domain.GeneratedAsset] `json:"body"`
		}{Body: ListResponse[domain.GeneratedAsset]{Items: items}}, nil
	})
}

func registerRuns(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-runs",
		Method:      http.MethodGet,
		Path:        "/opportunities/{id}/runs",
		Summary:     "List execution runs",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ListResponse[domain.ExecutionRun] `json:"body"`
	}, error) {
		if _, err := cfg.Repo.GetOpportunity(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := cfg.Repo.ListRuns(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ListResponse[domain.ExecutionRun] `json:"body"`
		}{Body: ListResponse[domain.ExecutionRun]{Items: items}}, nil
	})
}

func registerEvents(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events",
	}, func(ctx context.Context, input *struct {
		Limit  int    `query:"limit" required:"false"`
		Cursor string `query:"cursor" required:"false"`
		Type   string `query:"type" required:"false"`
		Entity string `query:"entity_id" required:"false"`
	}) (*struct {
		Body EventPage `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 || limit > 500 {
			limit = 100
		}
		var cursor int64
		if input.Cursor != "" {
			v, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", nil)
			}
			cursor = v
		}
		items, err := cfg.Repo.LatestEventsFrom(ctx, limit, cursor, cfg.Cfg.Org.ID, input.Type, "", input.Entity)
		if err != nil {
			return nil, handleError(err)
		}
		next := ""
		if len(items) == limit && limit > 0 {
			next = strconv.FormatInt(items[len(items)-1].ID, 10)
		}
		return &struct {
			Body EventPage `json:"body"`
		}{Body: EventPage{Items: items, NextCursor: next}}, nil
	})
}
