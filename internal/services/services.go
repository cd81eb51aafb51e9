package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rlms-portal/forms-services/models"
)

// UserStore is the credential store used by the account service.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error
	RotateRefreshToken(ctx context.Context, id uuid.UUID, old, next string) (bool, error)
}

// ResponseStore persists form responses.
type ResponseStore interface {
	CreateResponse(ctx context.Context, r *models.FormResponse) error
	ListResponsesByUser(ctx context.Context, userID uuid.UUID) ([]models.FormResponse, error)
	ListResponsesByFormType(ctx context.Context, formType models.FormType) ([]models.FormResponse, error)
	DecidePendingResponse(ctx context.Context, id uuid.UUID, scope models.ResponseScope, status models.Status, by uuid.UUID, at time.Time) (*models.FormResponse, error)
	GetScopedResponse(ctx context.Context, id uuid.UUID, scope models.ResponseScope) (*models.FormResponse, error)
}

// UserLookup resolves submitters for the reviewer listing.
type UserLookup interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

func utcNow() time.Time {
	return time.Now().UTC()
}
