package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"demopilot/internal/domain"
	"demopilot/internal/engine"
	"demopilot/internal/engine/auth"
	"demopilot/internal/events"
	"demopilot/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Journal  *events.Journal
	Repo     repo.Repo
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_generator"`
	Message string         `json:"message" example:"Generator not found: shop"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"generator\":\"shop\"}"`
}

type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the demopilot API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Journal == nil {
		return nil, errors.New("server: journal is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Auth.AllowAnonymous {
		cfg.Auth.logger().Printf("WARNING: anonymous access enabled; every request without credentials gets full permissions")
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Repo))
	hcfg := huma.DefaultConfig("demopilot API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerGenerators(group, cfg.Engine)
	registerGenerate(group, cfg.Engine)
	registerCleanup(group, cfg.Engine)
	registerProgress(group, cfg.Engine)
	registerStats(group, cfg.Engine)
	registerPrune(group, cfg.Engine)
	registerLogs(group, cfg.Journal)
	registerMe(group)
	if cfg.Auth.DevLogin {
		registerDevAuth(group, cfg.Auth)
	}
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

var engineStatus = map[string]int{
	engine.CodeInvalidRequest:   http.StatusBadRequest,
	engine.CodeInvalidGenerator: http.StatusNotFound,
	engine.CodeValidationFailed: http.StatusUnprocessableEntity,
	engine.CodeRunInProgress:    http.StatusConflict,
	engine.CodeGenerationFailed: http.StatusInternalServerError,
	engine.CodeCleanupFailed:    http.StatusInternalServerError,
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	var ee *engine.Error
	if errors.As(err, &ee) {
		status, ok := engineStatus[ee.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		return newAPIError(status, ee.Code, ee.Message, nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
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
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	errSchema := &huma.Schema{Ref: "#/components/schemas/ApiError"}
	if oas.Components != nil && oas.Components.Schemas != nil {
		errSchema = oas.Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError")
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: errSchema,
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>demopilot API Docs</title>
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
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
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

func registerGenerators(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-generators",
		Method:      http.MethodGet,
		Path:        "/generators",
		Summary:     "List registered generators with their tracked record stats",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Active bool `query:"active" doc:"Only generators whose target system is available"`
	}) (*struct {
		Body GeneratorsResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, auth.DemoRead); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListGenerators(ctx, input.Active)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GeneratorsResponse `json:"body"`
		}{Body: GeneratorsResponse{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-generator",
		Method:      http.MethodGet,
		Path:        "/generators/{slug}",
		Summary:     "Describe one generator",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Slug string `path:"slug"`
	}) (*struct {
		Body domain.GeneratorInfo `json:"body"`
	}, error) {
		if err := requirePermission(ctx, auth.DemoRead); err != nil {
			return nil, handleError(err)
		}
		info, err := e.GetGenerator(ctx, input.Slug)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.GeneratorInfo `json:"body"`
		}{Body: info}, nil
	})
}

func registerGenerate(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "generate",
		Method:      http.MethodPost,
		Path:        "/generate",
		Summary:     "Generate demo records in batches",
		Description: "Runs synchronously. Poll GET /progress/{generator}/{kind} from another client while it runs.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body GenerateRequest `json:"body"`
	}) (*struct {
		Body GenerateResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, auth.DemoGenerate); err != nil {
			return nil, handleError(err)
		}
		count := input.Body.Count
		if count == 0 {
			count = engine.DefaultCount
		}
		// the run continues if the client goes away
		res, err := e.Generate(context.WithoutCancel(ctx), engine.GenerateRequest{
			Generator: strings.TrimSpace(input.Body.Generator),
			Kind:      strings.TrimSpace(input.Body.Kind),
			Count:     count,
			Args:      input.Body.Args,
		})
		if err != nil {
			se := handleError(err)
			if ae, ok := se.(*apiError); ok && len(res.GeneratedIDs) > 0 {
				ae.Body.Details = map[string]any{"run_id": res.RunID, "generated_ids": res.GeneratedIDs}
			}
			return nil, se
		}
		return &struct {
			Body GenerateResponse `json:"body"`
		}{Body: GenerateResponse{Success: true, GenerateResult: res}}, nil
	})
}

func registerCleanup(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "cleanup",
		Method:      http.MethodPost,
		Path:        "/cleanup",
		Summary:     "Delete tracked demo records",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CleanupRequest `json:"body"`
	}) (*struct {
		Body CleanupResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, auth.DemoCleanup); err != nil {
			return nil, handleError(err)
		}
		res, err := e.Cleanup(context.WithoutCancel(ctx), engine.CleanupRequest{
			Generator: strings.TrimSpace(input.Body.Generator),
			Kind:      strings.TrimSpace(input.Body.Kind),
			IDs:       input.Body.IDs,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CleanupResponse `json:"body"`
		}{Body: CleanupResponse{Success: true, CleanupResult: res}}, nil
	})
}

func registerProgress(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-progress",
		Method:      http.MethodGet,
		Path:        "/progress/{generator}/{kind}",
		Summary:     "Latest progress snapshot of a run",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Generator string `path:"generator"`
		Kind      string `path:"kind"`
	}) (*struct {
		Body domain.Snapshot `json:"body"`
	}, error) {
		if err := requirePermission(ctx, auth.DemoRead); err != nil {
			return nil, handleError(err)
		}
		snap, ok := e.GetProgress(input.Generator, input.Kind)
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "no progress for "+input.Generator+"/"+input.Kind,
				map[string]any{"generator": input.Generator, "kind": input.Kind})
		}
		return &struct {
			Body domain.Snapshot `json:"body"`
		}{Body: snap}, nil
	})
}

func registerStats(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Tracked record counts",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Generator string `query:"generator"`
	}) (*struct {
		Body domain.Stats `json:"body"`
	}, error) {
		if err := requirePermission(ctx, auth.DemoRead); err != nil {
			return nil, handleError(err)
		}
		stats, err := e.Tracker.Stats(ctx, input.Generator)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Stats `json:"body"`
		}{Body: stats}, nil
	})
}

func registerPrune(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "prune",
		Method:      http.MethodPost,
		Path:        "/prune",
		Summary:     "Clean up records tracked longer than N days",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body PruneRequest `json:"body"`
	}) (*struct {
		Body engine.PruneResult `json:"body"`
	}, error) {
		if err := requirePermission(ctx, auth.DemoCleanup); err != nil {
			return nil, handleError(err)
		}
		days := input.Body.Days
		if days == 0 && e.Config != nil {
			days = e.Config.Cleanup.Days
		}
		if days < 1 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "days must be at least 1", nil)
		}
		res, err := e.Prune(context.WithoutCancel(ctx), time.Duration(days)*24*time.Hour)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.PruneResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerLogs(api huma.API, j *events.Journal) {
	huma.Register(api, huma.Operation{
		OperationID: "list-logs",
		Method:      http.MethodGet,
		Path:        "/logs",
		Summary:     "Recent activity, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Limit     int    `query:"limit" default:"50"`
		Level     string `query:"level" enum:"info,warning,error,success"`
		Generator string `query:"generator"`
	}) (*struct {
		Body LogsResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, auth.LogsRead); err != nil {
			return nil, handleError(err)
		}
		items, err := j.Logs(ctx, events.Query{Limit: input.Limit, Level: input.Level, Generator: input.Generator})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LogsResponse `json:"body"`
		}{Body: LogsResponse{Enabled: j.Enabled(), Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "clear-logs",
		Method:        http.MethodDelete,
		Path:          "/logs",
		Summary:       "Clear the activity log",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		if err := requirePermission(ctx, auth.LogsManage); err != nil {
			return nil, handleError(err)
		}
		if err := j.Clear(ctx); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-logging",
		Method:      http.MethodPut,
		Path:        "/logs/enabled",
		Summary:     "Turn activity logging on or off",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body LoggingRequest `json:"body"`
	}) (*struct {
		Body LoggingResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, auth.LogsManage); err != nil {
			return nil, handleError(err)
		}
		var err error
		if input.Body.Enabled {
			err = j.Enable(ctx)
		} else {
			err = j.Disable(ctx)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LoggingResponse `json:"body"`
		}{Body: LoggingResponse{Enabled: j.Enabled()}}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors: []int{
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			Subject:     principal.Subject,
			Permissions: nonNilSlice(principal.Permissions),
			Source:      principal.Source,
		}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		subject := strings.TrimSpace(input.Body.Subject)
		if subject == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "subject is required", nil)
		}
		if err := auth.Validate(input.Body.Permissions); err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		token, err := SignToken(authCfg.JWTSecret, subject, input.Body.Permissions, time.Hour)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	return nil
}
