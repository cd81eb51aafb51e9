package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rlms-portal/forms-services/api/respond"
	"github.com/rlms-portal/forms-services/internal/apierr"
	"github.com/rlms-portal/forms-services/internal/authn"
	"github.com/rlms-portal/forms-services/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey string

const ClaimsKey contextKey = "claims"

// DefaultBodyLimit caps JSON request bodies.
const DefaultBodyLimit = 16 << 10

// Guard inspects a request and either returns it, possibly with a derived
// context, or rejects it with an error.
type Guard func(r *http.Request) (*http.Request, error)

// Pipeline runs guards in order and stops at the first rejection.
func Pipeline(guards ...Guard) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, guard := range guards {
				var err error
				if r, err = guard(r); err != nil {
					respond.WriteError(w, r, err)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AccessVerifier verifies access tokens.
type AccessVerifier interface {
	VerifyAccess(token string) (authn.AccessClaims, error)
}

// Authenticate requires a valid bearer access token and stores its claims in
// the request context.
func Authenticate(verifier AccessVerifier) Guard {
	return func(r *http.Request) (*http.Request, error) {
		logger := zerolog.Ctx(r.Context())

		// The auth scheme is case-insensitive.
		scheme, token, _ := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
		token = strings.TrimSpace(token)
		if !strings.EqualFold(scheme, "Bearer") || token == "" {
			logger.Debug().Msg("bearer token missing")
			return r, apierr.Authentication(apierr.CodeMissingToken, "No token provided")
		}

		claims, err := verifier.VerifyAccess(token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid bearer jwt token")
			return r, apierr.Authentication(apierr.CodeInvalidToken, "Invalid or expired token")
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		ctx = logger.With().Str("user_id", claims.UserID.String()).Logger().WithContext(ctx)
		return r.WithContext(ctx), nil
	}
}

// ClaimsFromContext returns the claims stored by Authenticate.
func ClaimsFromContext(ctx context.Context) (authn.AccessClaims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(authn.AccessClaims)
	return claims, ok
}

// Authorize admits admins unconditionally. A group head naming a form type
// in the path or body must name their own. Everyone else needs one of the
// allowed roles.
func Authorize(allowed ...models.Role) Guard {
	return func(r *http.Request) (*http.Request, error) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			return r, apierr.Authentication(apierr.CodeMissingToken, "No token provided")
		}

		if claims.Role == models.RoleAdmin {
			return r, nil
		}

		if claims.Role == models.RoleGroupHead {
			requested, found, err := requestedFormType(r)
			if err != nil {
				return r, err
			}
			if found {
				if err := checkFormTypeScope(requested, claims.GroupHeadFormType); err != nil {
					return r, err
				}
			}
		}

		for _, role := range allowed {
			if claims.Role == role {
				return r, nil
			}
		}
		return r, apierr.Authorization(apierr.CodeInsufficientRole, "Insufficient permissions")
	}
}

// checkFormTypeScope rejects a non-numeric form type as invalid and any
// form type other than own as out of scope.
func checkFormTypeScope(requested string, own *models.FormType) error {
	n, err := strconv.Atoi(requested)
	if err != nil {
		return apierr.Validation("formType must be an integer")
	}
	if own != nil && models.FormType(n) == *own {
		return nil
	}
	ownText := "none"
	if own != nil {
		ownText = strconv.Itoa(int(*own))
	}
	return apierr.Authorization(apierr.CodeFormTypeScope,
		fmt.Sprintf("Access restricted to form type %s", ownText))
}

// requestedFormType looks for a form type in the formType path variable,
// then the query string, then the JSON body. The body is restored for the handler.
func requestedFormType(r *http.Request) (string, bool, error) {
	if v := strings.TrimSpace(mux.Vars(r)["formType"]); v != "" {
		return v, true, nil
	}
	if v := strings.TrimSpace(r.URL.Query().Get("formType")); v != "" {
		return v, true, nil
	}

	if r.Body == nil || r.Body == http.NoBody {
		return "", false, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", false, apierr.Validation("could not read request body")
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))

	var body struct {
		FormType json.RawMessage `json:"formType"`
	}
	// Malformed bodies are left for the handler to reject.
	if err := json.Unmarshal(data, &body); err != nil || len(body.FormType) == 0 {
		return "", false, nil
	}
	raw := strings.Trim(strings.TrimSpace(string(body.FormType)), `"`)
	if raw == "" || raw == "null" {
		return "", false, nil
	}
	return raw, true, nil
}

// LimitBody caps the request body at n bytes.
func LimitBody(n int64) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORS answers preflight requests and sets the CORS headers for allowed
// origins. "*" allows any origin without credentials; credentials are only
// allowed for explicitly listed origins.
func CORS(allowedOrigins []string) mux.MiddlewareFunc {
	allowAll := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				_, listed := allowed[origin]
				switch {
				case listed && origin != "*":
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Credentials", "true")
					w.Header().Add("Vary", "Origin")
				case allowAll:
					w.Header().Set("Access-Control-Allow-Origin", "*")
				}
				if listed || allowAll {
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				}
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithLogger adds a logger to the context and logs request information.
func WithLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			logger := log.With().
				Str("host", r.Host).
				Str("method", r.Method).
				Str("url", r.URL.String()).
				Str("remote_addr", r.RemoteAddr).
				Time("timestamp", time.Now()).
				Logger()

			// Add the logger to the context
			ctx := logger.WithContext(r.Context())
			next.ServeHTTP(w, r.WithContext(ctx))
		},
	)
}
