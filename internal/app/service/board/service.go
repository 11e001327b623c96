// Package board records director votes and finalizes applications once the
// configured approval or rejection count is reached.
package board

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jameswitika/iei.org.au/internal/app/service/activitylog"
	"github.com/jameswitika/iei.org.au/internal/app/service/identity"
	"github.com/jameswitika/iei.org.au/internal/models"
	"github.com/jameswitika/iei.org.au/internal/platform/mail"
	"github.com/jameswitika/iei.org.au/pkg/config"
	"github.com/jameswitika/iei.org.au/pkg/errs"
	"github.com/jameswitika/iei.org.au/pkg/logctx"
	"github.com/jameswitika/iei.org.au/pkg/types"
)

type Service struct {
	cfg      *config.Config
	db       *gorm.DB
	log      *zap.SugaredLogger
	audit    *activitylog.Service
	identity *identity.Service
	mailer   mail.Mailer

	// now is swappable so decision-date dependent pricing can be pinned
	// in tests.
	now func() time.Time
}

func NewService(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger, audit *activitylog.Service, ident *identity.Service, mailer mail.Mailer) *Service {
	return &Service{cfg: cfg, db: db, log: log, audit: audit, identity: ident, mailer: mailer, now: time.Now}
}

// MarkViewed stamps the director's first and latest view of an application.
func (s *Service) MarkViewed(ctx context.Context, applicationID, directorUserID uint64) error {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.Vote{}).
		Where("application_id = ? AND director_user_id = ?", applicationID, directorUserID).
		Updates(map[string]any{
			"viewed_at":      gorm.Expr("COALESCE(viewed_at, ?)", now),
			"last_viewed_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("mark viewed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NotFoundf("vote for application %d director %d", applicationID, directorUserID)
	}
	s.audit.Application(ctx, applicationID, "director_application_viewed", map[string]any{
		"director_user_id": directorUserID,
	}, &directorUserID)
	return nil
}

// CastVote records a director's decision and then re-evaluates the board
// outcome. A director can vote once; changes go through an officer reset.
func (s *Service) CastVote(ctx context.Context, applicationID, directorUserID uint64, choice types.VoteChoice, note string) error {
	if choice != types.VoteChoiceApproved && choice != types.VoteChoiceRejected {
		return errs.Validationf("vote must be approved or rejected")
	}

	app, err := s.getApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	if app.Status != types.ApplicationStatusPendingBoardApproval {
		return errs.InvalidStatef("application %d is %s, voting is closed", applicationID, app.Status)
	}

	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.Vote{}).
		Where("application_id = ? AND director_user_id = ? AND vote = ?",
			applicationID, directorUserID, types.VoteChoiceUnanswered).
		Updates(map[string]any{
			"vote":         choice,
			"note":         note,
			"responded_at": now,
			"voted_at":     now,
		})
	if res.Error != nil {
		return fmt.Errorf("record vote: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var existing int64
		s.db.WithContext(ctx).Model(&models.Vote{}).
			Where("application_id = ? AND director_user_id = ?", applicationID, directorUserID).
			Count(&existing)
		if existing == 0 {
			return errs.NotFoundf("vote for application %d director %d", applicationID, directorUserID)
		}
		return errs.InvalidStatef("director %d has already voted on application %d", directorUserID, applicationID)
	}

	s.audit.Application(ctx, applicationID, "director_vote_submitted", map[string]any{
		"director_user_id": directorUserID,
		"vote":             choice,
	}, &directorUserID)

	return s.EvaluateAfterVote(ctx, applicationID)
}

// EvaluateAfterVote recounts the votes and finalizes the application once a
// threshold is met. The finalize transition is a conditional update, so when
// two votes land concurrently only one caller provisions the member.
func (s *Service) EvaluateAfterVote(ctx context.Context, applicationID uint64) error {
	app, err := s.getApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	if app.Status != types.ApplicationStatusPendingBoardApproval {
		return nil
	}

	approvals, rejections, err := s.countVotes(ctx, applicationID)
	if err != nil {
		return err
	}
	s.audit.Application(ctx, applicationID, "board_vote_counts_recomputed", map[string]any{
		"approvals":  approvals,
		"rejections": rejections,
	}, nil)

	switch {
	case approvals >= s.cfg.Membership.ApprovalThreshold:
		return s.finalize(ctx, app, types.ApplicationStatusApproved)
	case rejections >= s.cfg.Membership.RejectionThreshold:
		return s.finalize(ctx, app, types.ApplicationStatusRejectedBoard)
	default:
		return nil
	}
}

func (s *Service) countVotes(ctx context.Context, applicationID uint64) (approvals, rejections int, err error) {
	type countRow struct {
		Vote  types.VoteChoice
		Count int
	}
	var rows []countRow
	err = s.db.WithContext(ctx).Model(&models.Vote{}).
		Select("vote, COUNT(*) AS count").
		Where("application_id = ?", applicationID).
		Group("vote").
		Scan(&rows).Error
	if err != nil {
		return 0, 0, fmt.Errorf("count votes: %w", err)
	}
	for _, row := range rows {
		switch row.Vote {
		case types.VoteChoiceApproved:
			approvals = row.Count
		case types.VoteChoiceRejected:
			rejections = row.Count
		}
	}
	return approvals, rejections, nil
}

func (s *Service) finalize(ctx context.Context, app *models.Application, outcome types.ApplicationStatus) error {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.Application{}).
		Where("id = ? AND status = ?", app.ID, types.ApplicationStatusPendingBoardApproval).
		Updates(map[string]any{
			"status":             outcome,
			"board_finalised_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("finalize application: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// A concurrent vote finalized first.
		return nil
	}

	if outcome == types.ApplicationStatusRejectedBoard {
		return s.afterRejection(ctx, app)
	}
	return s.afterApproval(ctx, app, now)
}

func (s *Service) afterApproval(ctx context.Context, app *models.Application, now time.Time) error {
	s.audit.Application(ctx, app.ID, "board_application_approved", nil, nil)

	user, err := s.identity.EnsureUser(ctx, app.Email, app.FirstName, app.LastName, types.MembershipRolePendingPayment)
	if err != nil {
		return err
	}

	member, created, err := s.ensureMember(ctx, user.ID, app, now)
	if err != nil {
		return err
	}

	// Only a brand-new member gets a pro-rated first subscription; a
	// re-applicant keeps their existing subscription history. The approval
	// notices go out either way.
	amountDue := decimal.Zero
	if created {
		basePrice, err := s.cfg.Membership.BasePrice(app.MembershipType)
		if err != nil {
			return err
		}
		terms := prorataTerms(now, basePrice, s.cfg.Membership.ProrataCutoffDays)
		sub := &models.Subscription{
			MemberID:       member.ID,
			MembershipYear: terms.MembershipYear,
			StartDate:      terms.StartDate,
			EndDate:        terms.EndDate,
			AmountDue:      terms.Amount,
			Status:         types.SubscriptionStatusPendingPayment,
			DueDate:        terms.DueDate,
		}
		if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}
		s.audit.Member(ctx, member.ID, "subscription_pending_payment_prepared", map[string]any{
			"subscription_id": sub.ID,
			"membership_year": sub.MembershipYear,
			"amount_due":      sub.AmountDue,
		}, nil, &app.ID)
		amountDue = sub.AmountDue
	}

	s.sendApprovalNotices(ctx, app, user, amountDue)
	return nil
}

func (s *Service) ensureMember(ctx context.Context, userID uint64, app *models.Application, now time.Time) (*models.Member, bool, error) {
	var member models.Member
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		member = models.Member{
			UserID:         userID,
			ApplicationID:  &app.ID,
			MembershipType: app.MembershipType,
			Status:         types.MemberStatusPendingPayment,
			ApprovedAt:     &now,
		}
		if err := s.db.WithContext(ctx).Create(&member).Error; err != nil {
			return nil, false, fmt.Errorf("create member: %w", err)
		}
		return &member, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load member: %w", err)
	}

	// Re-approval returns the member to pending_payment regardless of their
	// previous status; approved_at keeps its first value.
	updates := map[string]any{
		"application_id":  app.ID,
		"membership_type": app.MembershipType,
		"status":          types.MemberStatusPendingPayment,
	}
	if member.ApprovedAt == nil {
		updates["approved_at"] = now
		member.ApprovedAt = &now
	}
	if err := s.db.WithContext(ctx).Model(&member).Updates(updates).Error; err != nil {
		return nil, false, fmt.Errorf("update member: %w", err)
	}
	member.Status = types.MemberStatusPendingPayment
	member.ApplicationID = &app.ID
	member.MembershipType = app.MembershipType
	return &member, false, nil
}

func (s *Service) sendApprovalNotices(ctx context.Context, app *models.Application, user *models.User, amountDue decimal.Decimal) {
	log := logctx.FromCtx(ctx, s.log)
	sent := 0

	link, err := s.identity.PasswordSetupLink(user.ID)
	if err != nil {
		log.Errorw("password_setup_link_failed", "user_id", user.ID, "err", err)
	} else {
		n := mail.NewApplicationApproved(link, amountDue, s.cfg.Membership.Currency, s.cfg.Membership.BankInstructions)
		if err := s.mailer.Send(ctx, []string{user.Email}, n.Subject, n.Body); err == nil {
			sent++
		} else {
			log.Errorw("approval_email_failed", "user_id", user.ID, "err", err)
		}
	}

	officers, err := s.identity.PreapprovalOfficerEmails(ctx)
	if err == nil && len(officers) > 0 {
		n := mail.NewApplicationApprovedOfficerNotice(app.ID, app.ApplicantName(), app.Employer)
		if err := s.mailer.Send(ctx, officers, n.Subject, n.Body); err == nil {
			sent += len(officers)
		}
	}

	s.audit.Application(ctx, app.ID, "approval_notifications_sent", map[string]any{
		"sent_count": sent,
	}, nil)
}

func (s *Service) afterRejection(ctx context.Context, app *models.Application) error {
	s.audit.Application(ctx, app.ID, "board_application_rejected", nil, nil)

	n := mail.NewApplicationRejected()
	sendErr := s.mailer.Send(ctx, []string{app.Email}, n.Subject, n.Body)
	if sendErr != nil {
		logctx.FromCtx(ctx, s.log).Errorw("rejection_email_failed", "application_id", app.ID, "err", sendErr)
	}
	s.audit.Application(ctx, app.ID, "board_rejection_email_processed", map[string]any{
		"sent": sendErr == nil,
	}, nil)
	return nil
}

func (s *Service) getApplication(ctx context.Context, applicationID uint64) (*models.Application, error) {
	var app models.Application
	if err := s.db.WithContext(ctx).First(&app, applicationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFoundf("application %d", applicationID)
		}
		return nil, fmt.Errorf("load application: %w", err)
	}
	return &app, nil
}
