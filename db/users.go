package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rlms-portal/forms-services/models"
)

const userColumns = `id, username, email, password_hash, role, group_head_form_type, COALESCE(refresh_token, ''), created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var formType sql.NullInt16
	if err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&formType,
		&u.RefreshToken,
		&u.CreatedAt,
		&u.UpdatedAt); err != nil {
		return nil, err
	}
	if formType.Valid {
		ft := models.FormType(formType.Int16)
		u.GroupHeadFormType = &ft
	}
	return &u, nil
}

func nullFormType(ft *models.FormType) sql.NullInt16 {
	if ft == nil {
		return sql.NullInt16{}
	}
	return sql.NullInt16{Int16: int16(*ft), Valid: true}
}

// CreateUser inserts a new user. Unique violations on username or email
// return ErrDuplicate.
func (p *PortalDB) CreateUser(ctx context.Context, u *models.User) error {
	_, err := p.DB.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, group_head_form_type, refresh_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.Role, nullFormType(u.GroupHeadFormType),
		u.RefreshToken, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return wrapWriteErr("error inserting user", err)
	}
	return nil
}

// GetUserByEmail returns nil, nil when no user has the email.
func (p *PortalDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := p.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error retrieving user by email: %w", err)
	}
	return u, nil
}

// GetUserByID returns nil, nil when the user does not exist.
func (p *PortalDB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error retrieving user: %w", err)
	}
	return u, nil
}

// ListUsers returns every user, oldest first.
func (p *PortalDB) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("error retrieving users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning users: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// SetRefreshToken overwrites the single refresh slot. An empty token clears it.
func (p *PortalDB) SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error {
	res, err := p.DB.ExecContext(ctx,
		`UPDATE users SET refresh_token = NULLIF($2, ''), updated_at = NOW() WHERE id = $1`, id, token)
	if err != nil {
		return fmt.Errorf("error storing refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error storing refresh token: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("error storing refresh token: user %s not found", id)
	}
	return nil
}

// RotateRefreshToken replaces the refresh slot only if it still holds old.
// It reports false when another refresh or login won the race.
func (p *PortalDB) RotateRefreshToken(ctx context.Context, id uuid.UUID, old, next string) (bool, error) {
	res, err := p.DB.ExecContext(ctx, `
		UPDATE users SET refresh_token = $3, updated_at = NOW()
		WHERE id = $1 AND refresh_token = $2`, id, old, next)
	if err != nil {
		return false, fmt.Errorf("error rotating refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error rotating refresh token: %w", err)
	}
	return n == 1, nil
}
