// Package member covers the member-facing account surface and the admin
// member directory.
package member

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jameswitika/iei.org.au/internal/app/service/activitylog"
	"github.com/jameswitika/iei.org.au/internal/app/service/identity"
	"github.com/jameswitika/iei.org.au/internal/models"
	"github.com/jameswitika/iei.org.au/pkg/config"
	"github.com/jameswitika/iei.org.au/pkg/errs"
	"github.com/jameswitika/iei.org.au/pkg/types"
)

type Service struct {
	cfg      *config.Config
	db       *gorm.DB
	log      *zap.SugaredLogger
	audit    *activitylog.Service
	identity *identity.Service
}

func NewService(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger, audit *activitylog.Service, ident *identity.Service) *Service {
	return &Service{cfg: cfg, db: db, log: log, audit: audit, identity: ident}
}

// Get loads a member row.
func (s *Service) Get(ctx context.Context, memberID uint64) (*models.Member, error) {
	var member models.Member
	if err := s.db.WithContext(ctx).First(&member, memberID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFoundf("member %d", memberID)
		}
		return nil, fmt.Errorf("load member: %w", err)
	}
	return &member, nil
}

// GetByUser loads the member row owned by a user.
func (s *Service) GetByUser(ctx context.Context, userID uint64) (*models.Member, error) {
	var member models.Member
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFoundf("member for user %d", userID)
		}
		return nil, fmt.Errorf("load member: %w", err)
	}
	return &member, nil
}

// PortalContext is what the member account page renders: current standing
// plus the next subscription that needs attention.
type PortalContext struct {
	Member          *models.Member       `json:"member"`
	CurrentSub      *models.Subscription `json:"current_subscription"`
	NextDue         *models.Subscription `json:"next_due"`
	Outstanding     string               `json:"outstanding"`
	Currency        string               `json:"currency"`
	PaymentsEnabled bool                 `json:"payments_enabled"`
	StripeAvailable bool                 `json:"stripe_available"`
	PayPalAvailable bool                 `json:"paypal_available"`
	RecentPayments  []*models.Payment    `json:"recent_payments"`
}

// Portal assembles the account page context for a user.
func (s *Service) Portal(ctx context.Context, userID uint64) (*PortalContext, error) {
	member, err := s.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	pc := &PortalContext{
		Member:          member,
		Currency:        s.cfg.Membership.Currency,
		StripeAvailable: s.cfg.Stripe.Enabled,
		PayPalAvailable: s.cfg.PayPal.Enabled,
	}
	pc.PaymentsEnabled = pc.StripeAvailable || pc.PayPalAvailable

	var current models.Subscription
	err = s.db.WithContext(ctx).
		Where("member_id = ? AND status = ?", member.ID, types.SubscriptionStatusActive).
		Order("membership_year DESC").
		First(&current).Error
	if err == nil {
		pc.CurrentSub = &current
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load active subscription: %w", err)
	}

	var due models.Subscription
	err = s.db.WithContext(ctx).
		Where("member_id = ? AND status IN ?", member.ID, []types.SubscriptionStatus{
			types.SubscriptionStatusPendingPayment,
			types.SubscriptionStatusOverdue,
			types.SubscriptionStatusLapsed,
		}).
		Order("due_date").
		First(&due).Error
	if err == nil {
		pc.NextDue = &due
		pc.Outstanding = due.Outstanding().StringFixed(2)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load due subscription: %w", err)
	}

	err = s.db.WithContext(ctx).
		Where("member_id = ?", member.ID).
		Order("created_at DESC").
		Limit(10).
		Find(&pc.RecentPayments).Error
	if err != nil {
		return nil, fmt.Errorf("load recent payments: %w", err)
	}
	return pc, nil
}

// Subscriptions lists a member's subscription history, newest year first.
func (s *Service) Subscriptions(ctx context.Context, memberID uint64) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	err := s.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("membership_year DESC").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

type ScanMembersRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanMembersResponse struct {
	Items []*models.Member `json:"items"`
	Total int64            `json:"total"`
}

type filtersAnd struct{ filters []*types.CommonFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w.filters))
	for _, f := range w.filters {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

// ScanMembers implements the admin member directory listing with filters.
func (s *Service) ScanMembers(ctx context.Context, req *ScanMembersRequest) (*ScanMembersResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if req.Size <= 0 {
		req.Size = 50
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.Member{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: req.Filters}}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count members: %w", err)
	}

	var rows []*models.Member
	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: sortBy}, Desc: req.SortOrder != "asc"}}})
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return &ScanMembersResponse{Items: rows, Total: total}, nil
}
