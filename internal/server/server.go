package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"hireline/internal/domain"
	"hireline/internal/engine"
	"hireline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"cannot transition from HIRED to REVIEWED"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Hireline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema validation failures are caller mistakes.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	// A zero Auth falls back to the engine's config, so embedded servers
	// authenticate the same way as the CLI's serve wiring.
	auth := cfg.Auth
	if auth == (AuthConfig{}) && cfg.Engine.Config != nil {
		auth.JWTSecret = cfg.Engine.Config.Auth.JWTSecret
		auth.AllowLegacyActorHeader = cfg.Engine.Config.Auth.AllowLegacyActorHeader
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Hireline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerEmployers(group, cfg.Engine)
	registerCandidates(group, cfg.Engine)
	registerJobs(group, cfg.Engine)
	registerApplications(group, cfg.Engine)
	registerActivity(group, cfg.Engine)
	registerConversations(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

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
	var use domain.UnknownStatusError
	if errors.As(err, &use) {
		return newAPIError(http.StatusBadRequest, "unknown_status", err.Error(), map[string]any{"status": use.Raw})
	}
	var ite engine.InvalidTransitionError
	if errors.As(err, &ite) {
		allowed := []string{}
		for _, s := range engine.AllowedTransitions(ite.From) {
			allowed = append(allowed, string(s))
		}
		return newAPIError(http.StatusUnprocessableEntity, "invalid_transition", err.Error(), map[string]any{
			"from": string(ite.From), "to": string(ite.To), "allowed": allowed,
		})
	}
	var dre engine.DanglingReferenceError
	if errors.As(err, &dre) {
		return newAPIError(http.StatusUnprocessableEntity, "dangling_reference", err.Error(), map[string]any{
			"kind": dre.Kind, "id": dre.ID,
		})
	}
	var ire engine.InvalidReferenceError
	if errors.As(err, &ire) {
		return newAPIError(http.StatusBadRequest, "invalid_reference", err.Error(), map[string]any{
			"kind": ire.Kind, "id": ire.ID,
		})
	}
	if errors.Is(err, engine.ErrConcurrentModification) {
		return newAPIError(http.StatusConflict, "concurrent_modification", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed: applications"):
		return newAPIError(http.StatusConflict, "duplicate_application", "candidate already applied to this job", nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required"):
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

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Hireline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
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

func registerEmployers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-employer",
		Method:        http.MethodPost,
		Path:          "/employers",
		Summary:       "Create employer",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateEmployerRequest `json:"body"`
	}) (*struct {
		Body domain.Employer `json:"body"`
	}, error) {
		emp, err := e.CreateEmployer(ctx, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Employer `json:"body"`
		}{Body: emp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-employers",
		Method:      http.MethodGet,
		Path:        "/employers",
		Summary:     "List employers",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Employer `json:"body"`
	}, error) {
		items, err := e.Repo.ListEmployers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Employer `json:"body"`
		}{Body: items}, nil
	})
}

func registerCandidates(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-candidate",
		Method:        http.MethodPost,
		Path:          "/candidates",
		Summary:       "Create candidate with optional profile import",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateCandidateRequest `json:"body"`
	}) (*struct {
		Body domain.Candidate `json:"body"`
	}, error) {
		c, err := e.CreateCandidate(ctx, input.Body.Name, input.Body.Headline, profileRequestToDomain(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Candidate `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-candidates",
		Method:      http.MethodGet,
		Path:        "/candidates",
		Summary:     "List candidates",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Candidate `json:"body"`
	}, error) {
		items, err := e.Repo.ListCandidates(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Candidate `json:"body"`
		}{Body: items}, nil
	})
}

func registerJobs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-job",
		Method:        http.MethodPost,
		Path:          "/jobs",
		Summary:       "Create job",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateJobRequest `json:"body"`
	}) (*struct {
		Body domain.Job `json:"body"`
	}, error) {
		j, err := e.CreateJob(ctx, input.Body.EmployerID, input.Body.Title)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Job `json:"body"`
		}{Body: j}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List jobs",
	}, func(ctx context.Context, input *struct {
		EmployerID string `query:"employer_id"`
	}) (*struct {
		Body []domain.Job `json:"body"`
	}, error) {
		items, err := e.Repo.ListJobs(ctx, input.EmployerID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Job `json:"body"`
		}{Body: items}, nil
	})
}

func registerApplications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-application",
		Method:        http.MethodPost,
		Path:          "/jobs/{job_id}/applications",
		Summary:       "Submit application",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		JobID string                   `path:"job_id"`
		Body  SubmitApplicationRequest `json:"body"`
	}) (*struct {
		Body ApplicationResponse `json:"body"`
	}, error) {
		a, err := e.SubmitApplication(ctx, engine.SubmitOptions{
			JobID:       input.JobID,
			CandidateID: input.Body.CandidateID,
			MatchScore:  input.Body.MatchScore,
			Actor:       actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApplicationResponse `json:"body"`
		}{Body: applicationResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-applications",
		Method:      http.MethodGet,
		Path:        "/applications",
		Summary:     "List applications",
	}, func(ctx context.Context, input *struct {
		JobID           string `query:"job_id"`
		CandidateID     string `query:"candidate_id"`
		Status          string `query:"status"`
		Limit           int    `query:"limit" minimum:"0" maximum:"500"`
		CursorCreatedAt string `query:"cursor_created_at"`
		CursorID        string `query:"cursor_id"`
	}) (*struct {
		Body []ApplicationResponse `json:"body"`
	}, error) {
		if input.Status != "" {
			if _, err := domain.ParseStatus(input.Status); err != nil {
				return nil, handleError(err)
			}
		}
		items, err := e.Repo.ListApplications(ctx, repo.ApplicationFilter{
			JobID:           input.JobID,
			CandidateID:     input.CandidateID,
			Status:          strings.ToUpper(strings.TrimSpace(input.Status)),
			Limit:           input.Limit,
			CursorCreatedAt: input.CursorCreatedAt,
			CursorID:        input.CursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ApplicationResponse `json:"body"`
		}{Body: mapApplications(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-application",
		Method:      http.MethodGet,
		Path:        "/applications/{application_id}",
		Summary:     "Application read model",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ApplicationID string `path:"application_id"`
	}) (*struct {
		Body ApplicationDetailResponse `json:"body"`
	}, error) {
		a, err := e.Repo.GetApplication(ctx, input.ApplicationID)
		if err != nil {
			return nil, handleError(err)
		}
		cand, err := e.Repo.GetCandidate(ctx, a.CandidateID)
		if err != nil {
			return nil, handleError(err)
		}
		profile, err := e.Repo.GetProfile(ctx, a.CandidateID)
		if err != nil {
			return nil, handleError(err)
		}
		history, err := e.Repo.ListStatusHistory(ctx, a.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApplicationDetailResponse `json:"body"`
		}{Body: ApplicationDetailResponse{
			Application: applicationResponse(a),
			Candidate:   cand,
			Profile:     profile,
			History:     mapHistory(history),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-application",
		Method:      http.MethodPatch,
		Path:        "/applications/{application_id}",
		Summary:     "Record a view, a status change, or both",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ApplicationID string                   `path:"application_id"`
		Body          UpdateApplicationRequest `json:"body"`
	}) (*struct {
		Body ApplicationResponse `json:"body"`
	}, error) {
		a, err := e.Apply(ctx, engine.ApplyOptions{
			ApplicationID: input.ApplicationID,
			Status:        input.Body.ToStatus,
			Viewed:        input.Body.MarkViewed,
			Note:          input.Body.Note,
			Actor:         actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApplicationResponse `json:"body"`
		}{Body: applicationResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "application-history",
		Method:      http.MethodGet,
		Path:        "/applications/{application_id}/history",
		Summary:     "Status history, most recent first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ApplicationID string `path:"application_id"`
	}) (*struct {
		Body []StatusHistoryResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetApplication(ctx, input.ApplicationID); err != nil {
			return nil, handleError(err)
		}
		history, err := e.Repo.ListStatusHistory(ctx, input.ApplicationID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []StatusHistoryResponse `json:"body"`
		}{Body: mapHistory(history)}, nil
	})
}

func registerActivity(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-activity",
		Method:      http.MethodGet,
		Path:        "/activity",
		Summary:     "Activity stream, newest first",
	}, func(ctx context.Context, input *struct {
		ApplicationID string `query:"application_id"`
		CandidateID   string `query:"candidate_id"`
		EmployerID    string `query:"employer_id"`
		JobID         string `query:"job_id"`
		Type          string `query:"type"`
		Limit         int    `query:"limit" minimum:"0" maximum:"500"`
		BeforeID      int64  `query:"before_id" minimum:"0"`
	}) (*struct {
		Body []ActivityResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListActivity(ctx, repo.ActivityFilter{
			ApplicationID: input.ApplicationID,
			CandidateID:   input.CandidateID,
			EmployerID:    input.EmployerID,
			JobID:         input.JobID,
			Type:          input.Type,
			Limit:         input.Limit,
			BeforeID:      input.BeforeID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ActivityResponse `json:"body"`
		}{Body: mapActivity(items)}, nil
	})
}

func registerConversations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "start-conversation",
		Method:      http.MethodPost,
		Path:        "/conversations",
		Summary:     "Find or create the conversation for a job, employer and candidate",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body StartConversationRequest `json:"body"`
	}) (*struct {
		Body ConversationResponse `json:"body"`
	}, error) {
		c, err := e.StartConversation(ctx, input.Body.JobID, input.Body.EmployerID, input.Body.CandidateID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConversationResponse `json:"body"`
		}{Body: conversationResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-conversation",
		Method:      http.MethodGet,
		Path:        "/conversations/{conversation_id}",
		Summary:     "Conversation with its messages",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ConversationID string `path:"conversation_id"`
	}) (*struct {
		Body ConversationDetailResponse `json:"body"`
	}, error) {
		c, err := e.Repo.GetConversation(ctx, input.ConversationID)
		if err != nil {
			return nil, handleError(err)
		}
		msgs, err := e.Repo.ListMessages(ctx, c.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if msgs == nil {
			msgs = []domain.Message{}
		}
		return &struct {
			Body ConversationDetailResponse `json:"body"`
		}{Body: ConversationDetailResponse{
			Conversation: conversationResponse(c),
			Messages:     msgs,
		}}, nil
	})
}
