package authn

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rlms-portal/forms-services/models"
)

const (
	DefaultAccessTokenExpiry  = 15 * time.Minute
	DefaultRefreshTokenExpiry = 7 * 24 * time.Hour
)

// ErrInvalidToken is returned for any token that fails verification. The
// reason is deliberately not distinguished.
var ErrInvalidToken = errors.New("invalid or expired token")

// AccessClaims is the identity carried by an access token.
type AccessClaims struct {
	UserID            uuid.UUID        `json:"id"`
	Email             string           `json:"email"`
	Role              models.Role      `json:"role"`
	GroupHeadFormType *models.FormType `json:"groupHeadFormType,omitempty"`
	jwt.RegisteredClaims
}

// HasFormTypeScope reports whether the caller may act on formType.
func (c AccessClaims) HasFormTypeScope(formType models.FormType) bool {
	if c.Role == models.RoleAdmin {
		return true
	}
	return c.Role == models.RoleGroupHead && c.GroupHeadFormType != nil &&
		*c.GroupHeadFormType == formType
}

// RefreshClaims is the identity carried by a refresh token.
type RefreshClaims struct {
	UserID uuid.UUID `json:"id"`
	jwt.RegisteredClaims
}

// IssuerConfig holds the signing secrets and lifetimes.
type IssuerConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// Issuer mints and verifies token pairs.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	now           func() time.Time
}

// NewIssuer validates the configuration and applies the default lifetimes.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("access and refresh token secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh token secrets must differ")
	}
	if cfg.AccessExpiry <= 0 {
		cfg.AccessExpiry = DefaultAccessTokenExpiry
	}
	if cfg.RefreshExpiry <= 0 {
		cfg.RefreshExpiry = DefaultRefreshTokenExpiry
	}
	return &Issuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessExpiry:  cfg.AccessExpiry,
		refreshExpiry: cfg.RefreshExpiry,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// Issue mints an access/refresh pair for user. Storing the refresh token is
// the caller's job.
func (i *Issuer) Issue(user models.User) (models.TokenPair, error) {
	now := i.now()

	access := AccessClaims{
		UserID:            user.ID,
		Email:             user.Email,
		Role:              user.Role,
		GroupHeadFormType: user.GroupHeadFormType,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessExpiry)),
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString(i.accessSecret)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("error signing access token: %w", err)
	}

	refresh := RefreshClaims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.refreshExpiry)),
		},
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refresh).SignedString(i.refreshSecret)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("error signing refresh token: %w", err)
	}

	return models.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// VerifyAccess checks signature and expiry of an access token.
func (i *Issuer) VerifyAccess(token string) (AccessClaims, error) {
	claims := AccessClaims{}
	if err := i.parse(token, &claims, i.accessSecret); err != nil {
		return AccessClaims{}, ErrInvalidToken
	}
	if claims.UserID == uuid.Nil || !claims.Role.Valid() {
		return AccessClaims{}, ErrInvalidToken
	}
	return claims, nil
}

// VerifyRefresh checks signature and expiry of a refresh token.
func (i *Issuer) VerifyRefresh(token string) (RefreshClaims, error) {
	claims := RefreshClaims{}
	if err := i.parse(token, &claims, i.refreshSecret); err != nil {
		return RefreshClaims{}, ErrInvalidToken
	}
	if claims.UserID == uuid.Nil {
		return RefreshClaims{}, ErrInvalidToken
	}
	return claims, nil
}

func (i *Issuer) parse(token string, claims jwt.Claims, secret []byte) error {
	t, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return secret, nil
		},
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return err
	}
	if !t.Valid {
		return ErrInvalidToken
	}
	return nil
}
