package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/jameswitika/iei.org.au/internal/models"
	"github.com/jameswitika/iei.org.au/pkg/errs"
)

const tokenPurposeAccess = "access"

// SetPassword stores a bcrypt hash of the chosen password. Used by the
// password-setup link flow and by admin resets.
func (s *Service) SetPassword(ctx context.Context, userID uint64, password string) error {
	if len(password) < 8 {
		return errs.Validationf("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"password_hash":   string(hash),
			"password_set_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("set password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NotFoundf("user %d", userID)
	}
	s.audit.System(ctx, "user_password_set", map[string]any{"user_id": userID}, &userID)
	return nil
}

// Authenticate checks credentials and returns the user on success. Failures
// are indistinguishable to the caller whether the email or password was
// wrong.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil || user.PasswordHash == "" {
		return nil, errs.Validationf("invalid email or password")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, errs.Validationf("invalid email or password")
	}
	return &user, nil
}

// IssueAccessToken mints the bearer token used on authenticated API calls.
func (s *Service) IssueAccessToken(userID uint64) (string, error) {
	claims := tokenClaims{
		Purpose: tokenPurposeAccess,
		UserID:  userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Auth.JWTSecret))
}

// VerifyAccessToken returns the authenticated user for a bearer token.
func (s *Service) VerifyAccessToken(ctx context.Context, token string) (*models.User, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(s.cfg.Auth.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid || claims.Purpose != tokenPurposeAccess || claims.UserID == 0 {
		return nil, errs.Validationf("invalid access token")
	}
	return s.Get(ctx, claims.UserID)
}
