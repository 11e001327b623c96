// Package identity manages user rows, membership roles, and the signed
// tokens handed to public forms and password-setup links.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jameswitika/iei.org.au/internal/app/service/activitylog"
	"github.com/jameswitika/iei.org.au/internal/models"
	"github.com/jameswitika/iei.org.au/pkg/config"
	"github.com/jameswitika/iei.org.au/pkg/errs"
	"github.com/jameswitika/iei.org.au/pkg/logctx"
	"github.com/jameswitika/iei.org.au/pkg/types"
)

type Service struct {
	cfg   *config.Config
	db    *gorm.DB
	log   *zap.SugaredLogger
	audit *activitylog.Service
}

func NewService(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger, audit *activitylog.Service) *Service {
	return &Service{cfg: cfg, db: db, log: log, audit: audit}
}

// EnsureUser returns the user with the given email, creating one with the
// given role if absent. An existing user keeps its row but is re-assigned
// the given role, so a lapsed member who reapplies drops back to
// pending-payment access. Staff roles (director, preapproval officer) are
// never overwritten.
func (s *Service) EnsureUser(ctx context.Context, email, firstName, lastName string, role types.MembershipRole) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errs.Validationf("email is required")
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err == nil {
		if user.Role != role && !isStaffRole(user.Role) {
			if err := s.AssignRole(ctx, user.ID, role, nil); err != nil {
				return nil, err
			}
			user.Role = role
		}
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load user: %w", err)
	}

	user = models.User{
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Role:      role,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.audit.System(ctx, "user_created", map[string]any{"user_id": user.ID, "role": role}, nil)
	return &user, nil
}

func isStaffRole(role types.MembershipRole) bool {
	return role == types.MembershipRoleDirector || role == types.MembershipRolePreapprovalOfficer
}

// AssignRole switches a user's role and emits the assignment event for the
// host system to apply capabilities.
func (s *Service) AssignRole(ctx context.Context, userID uint64, role types.MembershipRole, actorUserID *uint64) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("role", role)
	if res.Error != nil {
		return fmt.Errorf("assign role: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NotFoundf("user %d", userID)
	}
	s.audit.System(ctx, "role_assigned", map[string]any{"user_id": userID, "role": role}, actorUserID)
	logctx.FromCtx(ctx, s.log).Infow("role_assigned", "user_id", userID, "role", role)
	return nil
}

// Get loads a user by id.
func (s *Service) Get(ctx context.Context, userID uint64) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFoundf("user %d", userID)
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}

// EnabledDirectors returns directors eligible for vote seeding and
// reminders.
func (s *Service) EnabledDirectors(ctx context.Context) ([]*models.User, error) {
	var directors []*models.User
	err := s.db.WithContext(ctx).
		Where("role = ? AND director_disabled = ?", types.MembershipRoleDirector, false).
		Order("id").
		Find(&directors).Error
	if err != nil {
		return nil, fmt.Errorf("list directors: %w", err)
	}
	return directors, nil
}

// SetDirectorDisabled flips the exclusion flag without touching the role.
func (s *Service) SetDirectorDisabled(ctx context.Context, userID uint64, disabled bool, actorUserID *uint64) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND role = ?", userID, types.MembershipRoleDirector).
		Update("director_disabled", disabled)
	if res.Error != nil {
		return fmt.Errorf("set director disabled: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NotFoundf("director %d", userID)
	}
	s.audit.System(ctx, "director_disabled_changed", map[string]any{"user_id": userID, "disabled": disabled}, actorUserID)
	return nil
}

// PreapprovalOfficerEmails resolves the officer notification list, falling
// back to the configured admin address when no officer exists.
func (s *Service) PreapprovalOfficerEmails(ctx context.Context) ([]string, error) {
	var officers []*models.User
	err := s.db.WithContext(ctx).
		Where("role = ?", types.MembershipRolePreapprovalOfficer).
		Find(&officers).Error
	if err != nil {
		return nil, fmt.Errorf("list officers: %w", err)
	}

	emails := make([]string, 0, len(officers))
	for _, officer := range officers {
		emails = append(emails, officer.Email)
	}
	if len(emails) == 0 && s.cfg.Mail.AdminEmail != "" {
		emails = append(emails, s.cfg.Mail.AdminEmail)
	}
	return emails, nil
}

const (
	tokenPurposeForm     = "form_submission"
	tokenPurposePassword = "password_setup"
)

type tokenClaims struct {
	Purpose string `json:"purpose"`
	UserID  uint64 `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// IssueFormToken mints the tamper-proof submission token required on every
// mutating public action.
func (s *Service) IssueFormToken() (string, error) {
	claims := tokenClaims{
		Purpose: tokenPurposeForm,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(s.cfg.Auth.FormTokenTTLMinutes) * time.Minute)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Auth.JWTSecret))
}

// VerifyFormToken rejects absent, expired, or repurposed tokens.
func (s *Service) VerifyFormToken(token string) error {
	if token == "" {
		return errs.Validationf("invalid submission token")
	}
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(s.cfg.Auth.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid || claims.Purpose != tokenPurposeForm {
		return errs.Validationf("invalid submission token")
	}
	return nil
}

// IssuePasswordSetupToken mints the token embedded in the approval email's
// password setup link.
func (s *Service) IssuePasswordSetupToken(userID uint64) (string, error) {
	claims := tokenClaims{
		Purpose: tokenPurposePassword,
		UserID:  userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(s.cfg.Auth.PasswordLinkTTLHours) * time.Hour)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Auth.JWTSecret))
}

// VerifyPasswordSetupToken returns the user id baked into a valid token.
func (s *Service) VerifyPasswordSetupToken(token string) (uint64, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(s.cfg.Auth.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid || claims.Purpose != tokenPurposePassword || claims.UserID == 0 {
		return 0, errs.Validationf("invalid password setup token")
	}
	return claims.UserID, nil
}

// PasswordSetupLink builds the URL mailed to approved applicants.
func (s *Service) PasswordSetupLink(userID uint64) (string, error) {
	token, err := s.IssuePasswordSetupToken(userID)
	if err != nil {
		return "", fmt.Errorf("issue password token: %w", err)
	}
	return fmt.Sprintf("%s/account/set-password?token=%s", strings.TrimRight(s.cfg.Server.BaseURL, "/"), token), nil
}
