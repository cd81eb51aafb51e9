package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rlms-portal/forms-services/internal/apierr"
	"github.com/rlms-portal/forms-services/internal/authn"
	"github.com/rlms-portal/forms-services/internal/events"
	"github.com/rlms-portal/forms-services/models"
	"github.com/rs/zerolog"
)

// SubmissionService applies the form response workflow.
type SubmissionService struct {
	DB        ResponseStore
	Users     UserLookup
	Publisher events.Notifier
	now       func() time.Time
}

func NewSubmissionService(store ResponseStore, users UserLookup, publisher events.Notifier) *SubmissionService {
	if publisher == nil {
		publisher = events.NoopNotifier{}
	}
	return &SubmissionService{DB: store, Users: users, Publisher: publisher, now: utcNow}
}

// Submit validates and stores a new response. Group heads and admins
// self-certify, so their submissions start approved.
func (s *SubmissionService) Submit(ctx context.Context, claims authn.AccessClaims, req models.SubmitRequest) (*models.FormResponse, error) {
	if !req.FormType.Valid() {
		return nil, apierr.Validation("form type must be between %d and %d", models.MinFormType, models.MaxFormType)
	}
	if err := req.Responses.Validate(); err != nil {
		return nil, apierr.Validation("%s", err.Error())
	}

	if req.Responses == nil {
		req.Responses = models.Entries{}
	}

	status := models.StatusPending
	if claims.Role.Privileged() {
		status = models.StatusApproved
	}

	now := s.now()
	response := &models.FormResponse{
		ID:        uuid.New(),
		UserID:    claims.UserID,
		FormType:  req.FormType,
		Responses: req.Responses,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.DB.CreateResponse(ctx, response); err != nil {
		return nil, apierr.Internal("failed to store form response", err)
	}

	s.publish(ctx, events.NewResponseEvent(events.ResponseSubmitted, *response, claims.UserID))
	return response, nil
}

// ListOwn returns the caller's own submissions.
func (s *SubmissionService) ListOwn(ctx context.Context, claims authn.AccessClaims) ([]models.FormResponse, error) {
	responses, err := s.DB.ListResponsesByUser(ctx, claims.UserID)
	if err != nil {
		return nil, apierr.Internal("failed to retrieve submissions", err)
	}
	if responses == nil {
		responses = []models.FormResponse{}
	}
	return responses, nil
}

// ListByFormType returns the responses of one form type joined with their
// submitters. A nil formType means the group head's own form type.
// Responses whose submitter no longer exists are left out.
func (s *SubmissionService) ListByFormType(ctx context.Context, claims authn.AccessClaims, formType *models.FormType) ([]models.ResponseWithSubmitter, error) {
	logger := zerolog.Ctx(ctx)

	ft, err := resolveFormType(claims, formType)
	if err != nil {
		return nil, err
	}

	responses, err := s.DB.ListResponsesByFormType(ctx, ft)
	if err != nil {
		return nil, apierr.Internal("failed to retrieve form responses", err)
	}

	submitters := make(map[uuid.UUID]*models.User)
	joined := make([]models.ResponseWithSubmitter, 0, len(responses))
	for _, r := range responses {
		user, seen := submitters[r.UserID]
		if !seen {
			user, err = s.Users.GetUserByID(ctx, r.UserID)
			if err != nil {
				return nil, apierr.Internal("failed to retrieve submitter", err)
			}
			submitters[r.UserID] = user
		}
		if user == nil {
			logger.Debug().Str("response_id", r.ID.String()).Msg("submitter missing, omitting response")
			continue
		}
		joined = append(joined, models.ResponseWithSubmitter{FormResponse: r, User: user.Public()})
	}
	return joined, nil
}

func resolveFormType(claims authn.AccessClaims, formType *models.FormType) (models.FormType, error) {
	switch claims.Role {
	case models.RoleAdmin:
		if formType == nil {
			return 0, apierr.Validation("form type is required")
		}
	case models.RoleGroupHead:
		if claims.GroupHeadFormType == nil {
			return 0, apierr.Authorization(apierr.CodeInsufficientRole, "Insufficient permissions")
		}
		if formType == nil {
			formType = claims.GroupHeadFormType
		}
		if *formType != *claims.GroupHeadFormType {
			return 0, formTypeScopeError(*claims.GroupHeadFormType)
		}
	default:
		return 0, apierr.Authorization(apierr.CodeInsufficientRole, "Insufficient permissions")
	}
	if !formType.Valid() {
		return 0, apierr.Validation("form type must be between %d and %d", models.MinFormType, models.MaxFormType)
	}
	return *formType, nil
}

func formTypeScopeError(own models.FormType) *apierr.Error {
	return apierr.Authorization(apierr.CodeFormTypeScope, fmt.Sprintf("Access restricted to form type %d", own))
}

// UpdateStatus approves or rejects a pending response within the caller's
// scope. Missing and out-of-scope responses both report not found.
func (s *SubmissionService) UpdateStatus(ctx context.Context, claims authn.AccessClaims, responseID string, status models.Status) (*models.FormResponse, error) {
	if !status.Decision() {
		return nil, apierr.Validation("status must be %s or %s", models.StatusApproved, models.StatusRejected)
	}

	var scope models.ResponseScope
	switch {
	case claims.Role == models.RoleAdmin:
		scope.AllFormTypes = true
	case claims.Role == models.RoleGroupHead && claims.GroupHeadFormType != nil:
		scope.FormType = *claims.GroupHeadFormType
	default:
		return nil, apierr.Authorization(apierr.CodeInsufficientRole, "Insufficient permissions")
	}

	id, err := uuid.Parse(responseID)
	if err != nil {
		return nil, apierr.NotFound("Response not found")
	}

	updated, err := s.DB.DecidePendingResponse(ctx, id, scope, status, claims.UserID, s.now())
	if err != nil {
		return nil, apierr.Internal("failed to update response status", err)
	}
	if updated == nil {
		existing, err := s.DB.GetScopedResponse(ctx, id, scope)
		if err != nil {
			return nil, apierr.Internal("failed to retrieve form response", err)
		}
		if existing != nil {
			return nil, apierr.Conflict(fmt.Sprintf("Response already %s", existing.Status))
		}
		return nil, apierr.NotFound("Response not found")
	}

	zerolog.Ctx(ctx).Info().
		Str("response_id", updated.ID.String()).
		Str("status", string(updated.Status)).
		Str("reviewer", claims.UserID.String()).
		Msg("form response decided")

	s.publish(ctx, events.NewResponseEvent(events.ResponseDecided, *updated, claims.UserID))
	return updated, nil
}

// publish never fails the request; the write has already committed.
func (s *SubmissionService) publish(ctx context.Context, event events.ResponseEvent) {
	if err := s.Publisher.Notify(ctx, event); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Str("event", event.Type).
			Str("response_id", event.ResponseID.String()).
			Msg("failed to publish response event")
	}
}
