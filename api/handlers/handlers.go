package handlers

import (
	"context"
	"net/http"

	"github.com/rlms-portal/forms-services/api/middleware"
	"github.com/rlms-portal/forms-services/api/respond"
	"github.com/rlms-portal/forms-services/internal/apierr"
	"github.com/rlms-portal/forms-services/internal/authn"
	"github.com/rlms-portal/forms-services/models"
)

// Accounts is the account service used by the auth, user and admin handlers.
type Accounts interface {
	Register(ctx context.Context, req models.RegisterRequest, allowAdmin bool) (*models.AuthResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Logout(ctx context.Context, claims authn.AccessClaims) error
	Profile(ctx context.Context, claims authn.AccessClaims) (*models.PublicUser, error)
	ListUsers(ctx context.Context) ([]models.PublicUser, error)
}

// Submissions is the form response workflow used by the forms and group head
// handlers.
type Submissions interface {
	Submit(ctx context.Context, claims authn.AccessClaims, req models.SubmitRequest) (*models.FormResponse, error)
	ListOwn(ctx context.Context, claims authn.AccessClaims) ([]models.FormResponse, error)
	ListByFormType(ctx context.Context, claims authn.AccessClaims, formType *models.FormType) ([]models.ResponseWithSubmitter, error)
	UpdateStatus(ctx context.Context, claims authn.AccessClaims, responseID string, status models.Status) (*models.FormResponse, error)
}

// claimsOrReject fetches the authenticated caller, writing a 401 when the
// route was mounted without Authenticate.
func claimsOrReject(w http.ResponseWriter, r *http.Request) (authn.AccessClaims, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		respond.WriteError(w, r, apierr.Authentication(apierr.CodeMissingToken, "No token provided"))
	}
	return claims, ok
}
