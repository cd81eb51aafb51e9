package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rlms-portal/forms-services/models"
)

const responseColumns = `id, user_id, form_type, responses, status, created_at, updated_at, decided_at, decided_by`

func scanResponse(row rowScanner) (*models.FormResponse, error) {
	var r models.FormResponse
	var decidedAt sql.NullTime
	var decidedBy uuid.NullUUID
	if err := row.Scan(
		&r.ID,
		&r.UserID,
		&r.FormType,
		&r.Responses,
		&r.Status,
		&r.CreatedAt,
		&r.UpdatedAt,
		&decidedAt,
		&decidedBy); err != nil {
		return nil, err
	}
	if decidedAt.Valid {
		r.DecidedAt = &decidedAt.Time
	}
	if decidedBy.Valid {
		r.DecidedBy = &decidedBy.UUID
	}
	return &r, nil
}

func (p *PortalDB) queryResponses(ctx context.Context, query string, args ...interface{}) ([]models.FormResponse, error) {
	rows, err := p.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error retrieving form responses: %w", err)
	}
	defer rows.Close()

	var responses []models.FormResponse
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning form responses: %w", err)
		}
		responses = append(responses, *r)
	}
	return responses, rows.Err()
}

// CreateResponse inserts a new form response.
func (p *PortalDB) CreateResponse(ctx context.Context, r *models.FormResponse) error {
	_, err := p.DB.ExecContext(ctx, `
		INSERT INTO form_responses (id, user_id, form_type, responses, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.UserID, int(r.FormType), r.Responses, r.Status, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return wrapWriteErr("error inserting form response", err)
	}
	return nil
}

// ListResponsesByUser returns the responses submitted by userID, newest first.
func (p *PortalDB) ListResponsesByUser(ctx context.Context, userID uuid.UUID) ([]models.FormResponse, error) {
	return p.queryResponses(ctx,
		`SELECT `+responseColumns+` FROM form_responses WHERE user_id = $1 ORDER BY created_at DESC, id`, userID)
}

// ListResponsesByFormType returns every response of one form type, newest first.
func (p *PortalDB) ListResponsesByFormType(ctx context.Context, formType models.FormType) ([]models.FormResponse, error) {
	return p.queryResponses(ctx,
		`SELECT `+responseColumns+` FROM form_responses WHERE form_type = $1 ORDER BY created_at DESC, id`, int(formType))
}

// ListDecidedSince returns responses a reviewer decided at or after since.
// Self-certified submissions were never decided and are not included.
func (p *PortalDB) ListDecidedSince(ctx context.Context, since time.Time) ([]models.FormResponse, error) {
	return p.queryResponses(ctx, `
		SELECT `+responseColumns+` FROM form_responses
		WHERE decided_at IS NOT NULL AND decided_at >= $1
		ORDER BY decided_at, id`, since)
}

// DecidePendingResponse sets status on a pending response in a single
// conditional write. The predicate covers the id, the reviewer's scope and
// the pending state, so concurrent decisions cannot both win. It returns
// nil, nil when nothing matched.
func (p *PortalDB) DecidePendingResponse(ctx context.Context, id uuid.UUID, scope models.ResponseScope,
	status models.Status, by uuid.UUID, at time.Time) (*models.FormResponse, error) {

	row := p.DB.QueryRowContext(ctx, `
		UPDATE form_responses SET status = $2, updated_at = $3, decided_at = $3, decided_by = $6
		WHERE id = $1 AND status = 'pending' AND ($4 OR form_type = $5)
		RETURNING `+responseColumns,
		id, status, at, scope.AllFormTypes, int(scope.FormType), by)
	r, err := scanResponse(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error updating form response status: %w", err)
	}
	return r, nil
}

// GetScopedResponse returns the response only if it falls in scope.
func (p *PortalDB) GetScopedResponse(ctx context.Context, id uuid.UUID, scope models.ResponseScope) (*models.FormResponse, error) {
	row := p.DB.QueryRowContext(ctx, `
		SELECT `+responseColumns+` FROM form_responses
		WHERE id = $1 AND ($2 OR form_type = $3)`,
		id, scope.AllFormTypes, int(scope.FormType))
	r, err := scanResponse(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error retrieving form response: %w", err)
	}
	return r, nil
}
