// Package renewal walks subscriptions through their renewal lifecycle once a
// day: overdue on the July 1 cycle boundary, lapsed when grace runs out.
package renewal

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jameswitika/iei.org.au/internal/app/service/activitylog"
	"github.com/jameswitika/iei.org.au/internal/app/service/identity"
	"github.com/jameswitika/iei.org.au/internal/models"
	"github.com/jameswitika/iei.org.au/pkg/config"
	"github.com/jameswitika/iei.org.au/pkg/types"
)

type Service struct {
	cfg      *config.Config
	db       *gorm.DB
	log      *zap.SugaredLogger
	audit    *activitylog.Service
	identity *identity.Service

	now func() time.Time
}

func NewService(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger, audit *activitylog.Service, ident *identity.Service) *Service {
	return &Service{cfg: cfg, db: db, log: log, audit: audit, identity: ident, now: time.Now}
}

// RunResult counts the transitions one daily run performed.
type RunResult struct {
	MarkedOverdue int
	Lapsed        int
}

// RunDaily executes both sweeps. Every transition is a conditional update on
// the expected prior status, so re-running on the same day is a no-op.
func (s *Service) RunDaily(ctx context.Context) (*RunResult, error) {
	today := s.today()
	result := &RunResult{}

	overdue, err := s.markOverdue(ctx, today)
	if err != nil {
		return result, err
	}
	result.MarkedOverdue = overdue

	lapsed, err := s.markLapsed(ctx, today)
	if err != nil {
		return result, err
	}
	result.Lapsed = lapsed

	s.log.Infow("renewal_daily_run", "date", today.Format("2006-01-02"),
		"marked_overdue", result.MarkedOverdue, "lapsed", result.Lapsed)
	return result, nil
}

// markOverdue moves underpaid pending subscriptions due on the cycle
// boundary to overdue. Only renewals due on a July 1 are swept; a pro-rated
// mid-cycle subscription keeps its own due date and is never marked here.
// Members keep full access through the grace window.
func (s *Service) markOverdue(ctx context.Context, today time.Time) (int, error) {
	if today.Month() != time.July || today.Day() != 1 {
		return 0, nil
	}

	var pending []*models.Subscription
	err := s.db.WithContext(ctx).
		Where("status = ? AND amount_paid < amount_due",
			types.SubscriptionStatusPendingPayment).
		Find(&pending).Error
	if err != nil {
		return 0, fmt.Errorf("list due subscriptions: %w", err)
	}

	due := make([]*models.Subscription, 0, len(pending))
	for _, sub := range pending {
		if sub.DueDate.Month() == time.July && sub.DueDate.Day() == 1 {
			due = append(due, sub)
		}
	}

	graceUntil := today.AddDate(0, 0, s.cfg.Membership.GracePeriodDays)
	marked := 0
	for _, sub := range due {
		res := s.db.WithContext(ctx).Model(&models.Subscription{}).
			Where("id = ? AND status = ?", sub.ID, types.SubscriptionStatusPendingPayment).
			Updates(map[string]any{
				"status":      types.SubscriptionStatusOverdue,
				"grace_until": graceUntil,
			})
		if res.Error != nil {
			return marked, fmt.Errorf("mark subscription %d overdue: %w", sub.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}
		marked++
		s.audit.Member(ctx, sub.MemberID, "subscription_marked_overdue", map[string]any{
			"subscription_id": sub.ID,
			"membership_year": sub.MembershipYear,
			"grace_until":     graceUntil.Format("2006-01-02"),
		}, nil, nil)
	}
	return marked, nil
}

// markLapsed transitions overdue subscriptions whose grace deadline has
// passed, and lapses the owning member.
func (s *Service) markLapsed(ctx context.Context, today time.Time) (int, error) {
	var overdue []*models.Subscription
	err := s.db.WithContext(ctx).
		Where("status = ?", types.SubscriptionStatusOverdue).
		Find(&overdue).Error
	if err != nil {
		return 0, fmt.Errorf("list overdue subscriptions: %w", err)
	}

	lapsed := 0
	for _, sub := range overdue {
		deadline := sub.DueDate.AddDate(0, 0, s.cfg.Membership.GracePeriodDays)
		if sub.GraceUntil != nil {
			deadline = *sub.GraceUntil
		}
		if !today.After(deadline) {
			continue
		}

		res := s.db.WithContext(ctx).Model(&models.Subscription{}).
			Where("id = ? AND status = ?", sub.ID, types.SubscriptionStatusOverdue).
			Update("status", types.SubscriptionStatusLapsed)
		if res.Error != nil {
			return lapsed, fmt.Errorf("lapse subscription %d: %w", sub.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}
		lapsed++

		if err := s.lapseMember(ctx, sub.MemberID); err != nil {
			return lapsed, err
		}
		s.audit.Member(ctx, sub.MemberID, "subscription_lapsed_after_grace", map[string]any{
			"subscription_id": sub.ID,
			"membership_year": sub.MembershipYear,
			"deadline":        deadline.Format("2006-01-02"),
		}, nil, nil)
	}
	return lapsed, nil
}

func (s *Service) lapseMember(ctx context.Context, memberID uint64) error {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.Member{}).
		Where("id = ? AND status = ?", memberID, types.MemberStatusActive).
		Updates(map[string]any{
			"status":    types.MemberStatusLapsed,
			"lapsed_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("lapse member %d: %w", memberID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}

	var member models.Member
	if err := s.db.WithContext(ctx).First(&member, memberID).Error; err != nil {
		return fmt.Errorf("load lapsed member: %w", err)
	}
	return s.identity.AssignRole(ctx, member.UserID, types.MembershipRolePendingPayment, nil)
}

func (s *Service) today() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
