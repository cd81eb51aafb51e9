// Package api assembles the HTTP surface of the forms service.
package api

import (
	"net/http"
	"path"

	"github.com/gorilla/mux"
	"github.com/rlms-portal/forms-services/api/handlers"
	"github.com/rlms-portal/forms-services/api/middleware"
	"github.com/rlms-portal/forms-services/api/respond"
	"github.com/rlms-portal/forms-services/docs"
	"github.com/rlms-portal/forms-services/internal/apierr"
	"github.com/rlms-portal/forms-services/models"

	httpSwagger "github.com/swaggo/http-swagger"
)

// RouterConfig carries the services and settings the routes are built from.
type RouterConfig struct {
	Host           string
	BasePath       string
	DocsPath       string
	AllowedOrigins []string

	Accounts    handlers.Accounts
	Submissions handlers.Submissions
	Verifier    middleware.AccessVerifier
}

var anyRole = []models.Role{models.RoleUser, models.RoleGroupHead, models.RoleAdmin}

// NewRouter registers every route under cfg.BasePath.
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		respond.WriteError(w, req, apierr.NotFound("Not Found"))
	})

	authenticate := middleware.Authenticate(cfg.Verifier)
	protect := func(h http.Handler, roles ...models.Role) http.Handler {
		return middleware.Pipeline(authenticate, middleware.Authorize(roles...))(h)
	}

	// Docs are registered first as they usually sit under the base path
	if cfg.DocsPath != "" {
		docs.SwaggerInfo.Host = cfg.Host
		docs.SwaggerInfo.BasePath = cfg.BasePath
		r.PathPrefix(cfg.DocsPath).Handler(httpSwagger.Handler(
			httpSwagger.URL(path.Join(cfg.DocsPath, "/doc.json")),
			httpSwagger.DeepLinking(true),
			httpSwagger.DocExpansion("none"),
			httpSwagger.DomID("swagger-ui"),
		)).Methods(http.MethodGet)
	}

	api := r.PathPrefix(cfg.BasePath).Subrouter()
	api.Use(middleware.WithLogger)
	api.Use(middleware.LimitBody(middleware.DefaultBodyLimit))

	api.HandleFunc("/health", handlers.Health()).Methods(http.MethodGet)

	// Auth routes
	api.HandleFunc("/auth/register", handlers.Register(cfg.Accounts)).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", handlers.Login(cfg.Accounts)).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", handlers.Refresh(cfg.Accounts)).Methods(http.MethodPost)
	api.Handle("/auth/logout", protect(handlers.Logout(cfg.Accounts), anyRole...)).Methods(http.MethodPost)

	api.Handle("/users/me", protect(handlers.GetProfile(cfg.Accounts), anyRole...)).Methods(http.MethodGet)

	// Form routes
	api.Handle("/forms/submit", protect(handlers.SubmitForm(cfg.Submissions), models.RoleUser)).Methods(http.MethodPost)
	api.Handle("/forms/my-submissions", protect(handlers.GetMySubmissions(cfg.Submissions), models.RoleUser)).Methods(http.MethodGet)

	// Review routes
	reviewers := []models.Role{models.RoleGroupHead, models.RoleAdmin}
	api.Handle("/grouphead/responses", protect(handlers.GetFormResponses(cfg.Submissions), reviewers...)).Methods(http.MethodGet)
	api.Handle("/grouphead/responses/{formType}", protect(handlers.GetFormResponses(cfg.Submissions), reviewers...)).Methods(http.MethodGet)
	api.Handle("/grouphead/responses/{responseId}", protect(handlers.UpdateResponseStatus(cfg.Submissions), reviewers...)).Methods(http.MethodPatch)

	// Admin routes
	api.Handle("/admin/register-admin", protect(handlers.RegisterAdmin(cfg.Accounts), models.RoleAdmin)).Methods(http.MethodPost)
	api.Handle("/admin/users", protect(handlers.GetUsers(cfg.Accounts), models.RoleAdmin)).Methods(http.MethodGet)

	return middleware.CORS(cfg.AllowedOrigins)(r)
}
