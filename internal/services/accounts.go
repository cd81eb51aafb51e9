package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rlms-portal/forms-services/db"
	"github.com/rlms-portal/forms-services/internal/apierr"
	"github.com/rlms-portal/forms-services/internal/authn"
	"github.com/rlms-portal/forms-services/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 6
	maxPasswordLength = 72
)

// TokenIssuer mints token pairs and verifies refresh tokens.
type TokenIssuer interface {
	Issue(user models.User) (models.TokenPair, error)
	VerifyRefresh(token string) (authn.RefreshClaims, error)
}

// AccountService handles registration, login and sessions.
type AccountService struct {
	DB        UserStore
	Tokens    TokenIssuer
	hashCost  int
	now       func() time.Time
	dummyHash []byte
}

func NewAccountService(store UserStore, tokens TokenIssuer) *AccountService {
	return newAccountService(store, tokens, bcrypt.DefaultCost)
}

func newAccountService(store UserStore, tokens TokenIssuer, cost int) *AccountService {
	// Compared against when the email is unknown so both login failures cost
	// the same.
	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	return &AccountService{
		DB:        store,
		Tokens:    tokens,
		hashCost:  cost,
		now:       utcNow,
		dummyHash: dummy,
	}
}

func invalidCredentials() *apierr.Error {
	return apierr.Authentication(apierr.CodeInvalidCredentials, "Invalid credentials")
}

func invalidRefreshToken() *apierr.Error {
	return apierr.Authentication(apierr.CodeInvalidToken, "Invalid or expired token")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateRegistration(req *models.RegisterRequest) error {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = normalizeEmail(req.Email)

	if req.Username == "" {
		return apierr.Validation("username is required")
	}
	addr, err := mail.ParseAddress(req.Email)
	if err != nil || addr.Address != req.Email {
		return apierr.Validation("Enter a valid email")
	}
	if len(req.Password) < minPasswordLength {
		return apierr.Validation("Password must be at least %d characters", minPasswordLength)
	}
	if len(req.Password) > maxPasswordLength {
		return apierr.Validation("Password must be at most %d bytes", maxPasswordLength)
	}

	if req.Role == "" {
		req.Role = models.RoleUser
	}
	if req.Role != models.RoleGroupHead {
		req.GroupHeadFormType = nil
	}
	if err := models.CheckRoleScope(req.Role, req.GroupHeadFormType); err != nil {
		return apierr.Validation("%s", err.Error())
	}
	return nil
}

// Register creates a user and opens their first session. Only callers that
// pass allowAdmin may create admins.
func (s *AccountService) Register(ctx context.Context, req models.RegisterRequest, allowAdmin bool) (*models.AuthResponse, error) {
	if err := validateRegistration(&req); err != nil {
		return nil, err
	}
	if req.Role == models.RoleAdmin && !allowAdmin {
		return nil, apierr.Authorization(apierr.CodeInsufficientRole, "Admin registration requires special privileges")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, apierr.Internal("failed to hash password", err)
	}

	now := s.now()
	user := models.User{
		ID:                uuid.New(),
		Username:          req.Username,
		Email:             req.Email,
		PasswordHash:      string(hash),
		Role:              req.Role,
		GroupHeadFormType: req.GroupHeadFormType,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	tokens, err := s.Tokens.Issue(user)
	if err != nil {
		return nil, apierr.Internal("failed to issue tokens", err)
	}
	user.RefreshToken = tokens.RefreshToken

	if err := s.DB.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, apierr.Conflict("Username or email already exists")
		}
		return nil, apierr.Internal("failed to create user", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("user_id", user.ID.String()).
		Str("role", string(user.Role)).
		Msg("user registered")

	return &models.AuthResponse{User: user.Public(), TokenPair: tokens}, nil
}

// Login verifies the credentials and replaces the user's session.
func (s *AccountService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, apierr.Validation("email and password are required")
	}

	user, err := s.DB.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, apierr.Internal("failed to retrieve user", err)
	}
	if user == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(req.Password))
		return nil, invalidCredentials()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, invalidCredentials()
	}

	tokens, err := s.Tokens.Issue(*user)
	if err != nil {
		return nil, apierr.Internal("failed to issue tokens", err)
	}
	if err := s.DB.SetRefreshToken(ctx, user.ID, tokens.RefreshToken); err != nil {
		return nil, apierr.Internal("failed to store session", err)
	}

	return &models.AuthResponse{User: user.Public(), TokenPair: tokens}, nil
}

// Refresh exchanges the current refresh token for a new pair. The presented
// token must match the stored slot, and the slot is rotated atomically so a
// token can be used once.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	logger := zerolog.Ctx(ctx)

	claims, err := s.Tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, invalidRefreshToken()
	}

	user, err := s.DB.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, apierr.Internal("failed to retrieve user", err)
	}
	if user == nil || user.RefreshToken == "" ||
		subtle.ConstantTimeCompare([]byte(user.RefreshToken), []byte(refreshToken)) != 1 {
		logger.Warn().Str("user_id", claims.UserID.String()).Msg("refresh token does not match active session")
		return nil, invalidRefreshToken()
	}

	tokens, err := s.Tokens.Issue(*user)
	if err != nil {
		return nil, apierr.Internal("failed to issue tokens", err)
	}
	rotated, err := s.DB.RotateRefreshToken(ctx, user.ID, refreshToken, tokens.RefreshToken)
	if err != nil {
		return nil, apierr.Internal("failed to store session", err)
	}
	if !rotated {
		return nil, invalidRefreshToken()
	}
	return &tokens, nil
}

// Logout clears the caller's refresh slot. Access tokens stay valid until
// they expire.
func (s *AccountService) Logout(ctx context.Context, claims authn.AccessClaims) error {
	if err := s.DB.SetRefreshToken(ctx, claims.UserID, ""); err != nil {
		return apierr.Internal("failed to clear session", err)
	}
	return nil
}

// Profile returns the caller's public profile.
func (s *AccountService) Profile(ctx context.Context, claims authn.AccessClaims) (*models.PublicUser, error) {
	user, err := s.DB.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, apierr.Internal("failed to retrieve user", err)
	}
	if user == nil {
		return nil, apierr.NotFound("User not found")
	}
	profile := user.Public()
	return &profile, nil
}

// ListUsers returns every user's public profile.
func (s *AccountService) ListUsers(ctx context.Context) ([]models.PublicUser, error) {
	users, err := s.DB.ListUsers(ctx)
	if err != nil {
		return nil, apierr.Internal("failed to retrieve users", err)
	}
	profiles := make([]models.PublicUser, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, u.Public())
	}
	return profiles, nil
}

// BootstrapAdmin creates an admin outside the HTTP surface.
func (s *AccountService) BootstrapAdmin(ctx context.Context, username, email, password string) (*models.PublicUser, error) {
	resp, err := s.Register(ctx, models.RegisterRequest{
		Username: username,
		Email:    email,
		Password: password,
		Role:     models.RoleAdmin,
	}, true)
	if err != nil {
		return nil, err
	}
	return &resp.User, nil
}
