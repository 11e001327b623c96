package board

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jameswitika/iei.org.au/internal/app/service/activitylog"
	"github.com/jameswitika/iei.org.au/internal/app/service/identity"
	"github.com/jameswitika/iei.org.au/internal/models"
	"github.com/jameswitika/iei.org.au/internal/platform/db/testdb"
	"github.com/jameswitika/iei.org.au/pkg/config"
	"github.com/jameswitika/iei.org.au/pkg/errs"
	"github.com/jameswitika/iei.org.au/pkg/tool"
	"github.com/jameswitika/iei.org.au/pkg/types"
)

type recordingMailer struct {
	sent []string
}

func (m *recordingMailer) Send(_ context.Context, to []string, subject, _ string) error {
	for range to {
		m.sent = append(m.sent, subject)
	}
	return nil
}

type fixture struct {
	db        *gorm.DB
	svc       *Service
	identity  *identity.Service
	mailer    *recordingMailer
	directors []*models.User
}

func newFixture(t *testing.T, approvalThreshold, rejectionThreshold, directorCount int) *fixture {
	db := testdb.New(t)
	log := zap.NewNop().Sugar()
	cfg := &config.Config{
		Server: config.ServerConfig{BaseURL: "https://iei.example.org"},
		Mail:   config.MailConfig{AdminEmail: "admin@example.org"},
		Membership: config.MembershipConfig{
			ApprovalThreshold:  approvalThreshold,
			RejectionThreshold: rejectionThreshold,
			ProrataCutoffDays:  15,
			Currency:           "AUD",
			Prices:             map[string]string{"associate": "145", "corporate": "145", "senior": "70"},
		},
		Auth: config.AuthConfig{JWTSecret: "test-secret", FormTokenTTLMinutes: 60, PasswordLinkTTLHours: 48},
	}
	audit := activitylog.NewService(db, log)
	ident := identity.NewService(cfg, db, log, audit)
	mailer := &recordingMailer{}
	svc := NewService(cfg, db, log, audit, ident, mailer)
	svc.now = func() time.Time { return time.Date(2025, time.September, 1, 10, 0, 0, 0, time.UTC) }

	f := &fixture{db: db, svc: svc, identity: ident, mailer: mailer}
	ctx := context.Background()
	for i := 0; i < directorCount; i++ {
		email := string(rune('a'+i)) + "-director@example.org"
		d, err := ident.EnsureUser(ctx, email, "Director", string(rune('A'+i)), types.MembershipRoleDirector)
		require.NoError(t, err)
		f.directors = append(f.directors, d)
	}
	return f
}

func (f *fixture) newApplication(t *testing.T) *models.Application {
	app := &models.Application{
		PublicToken:      tool.GenerateUUIDV7(),
		Status:           types.ApplicationStatusPendingBoardApproval,
		Email:            "applicant@example.org",
		FirstName:        "Ada",
		LastName:         "Lovelace",
		MembershipType:   types.MembershipTypeAssociate,
		NominationStatus: types.NominationStatusSelfNominated,
		SubmittedAt:      time.Now(),
	}
	require.NoError(t, f.db.Create(app).Error)
	for _, d := range f.directors {
		require.NoError(t, f.db.Create(&models.Vote{
			ApplicationID:  app.ID,
			DirectorUserID: d.ID,
			Vote:           types.VoteChoiceUnanswered,
		}).Error)
	}
	return app
}

func TestVotesBelowThresholdStayPending(t *testing.T) {
	f := newFixture(t, 3, 3, 5)
	ctx := context.Background()
	app := f.newApplication(t)

	require.NoError(t, f.svc.CastVote(ctx, app.ID, f.directors[0].ID, types.VoteChoiceApproved, ""))
	require.NoError(t, f.svc.CastVote(ctx, app.ID, f.directors[1].ID, types.VoteChoiceApproved, "looks good"))

	var got models.Application
	require.NoError(t, f.db.First(&got, app.ID).Error)
	require.Equal(t, types.ApplicationStatusPendingBoardApproval, got.Status)
}

func TestApprovalThresholdProvisionsMemberAndSubscription(t *testing.T) {
	f := newFixture(t, 3, 3, 5)
	ctx := context.Background()
	app := f.newApplication(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.CastVote(ctx, app.ID, f.directors[i].ID, types.VoteChoiceApproved, ""))
	}

	var got models.Application
	require.NoError(t, f.db.First(&got, app.ID).Error)
	require.Equal(t, types.ApplicationStatusApproved, got.Status)
	require.NotNil(t, got.BoardFinalisedAt)

	var member models.Member
	require.NoError(t, f.db.Where("application_id = ?", app.ID).First(&member).Error)
	require.Equal(t, types.MemberStatusPendingPayment, member.Status)
	require.Nil(t, member.MembershipNumber)

	var subs []*models.Subscription
	require.NoError(t, f.db.Where("member_id = ?", member.ID).Find(&subs).Error)
	require.Len(t, subs, 1)
	require.Equal(t, types.SubscriptionStatusPendingPayment, subs[0].Status)
	require.Equal(t, 2026, subs[0].MembershipYear)
	// September decision: 10 inclusive months of the 145 base price.
	require.Equal(t, "120.83", subs[0].AmountDue.StringFixed(2))

	// Applicant password-setup email plus officer fallback notice.
	require.Len(t, f.mailer.sent, 2)
}

func TestRejectionThresholdFinalizesWithoutMember(t *testing.T) {
	f := newFixture(t, 3, 2, 5)
	ctx := context.Background()
	app := f.newApplication(t)

	require.NoError(t, f.svc.CastVote(ctx, app.ID, f.directors[0].ID, types.VoteChoiceRejected, ""))
	require.NoError(t, f.svc.CastVote(ctx, app.ID, f.directors[1].ID, types.VoteChoiceRejected, ""))

	var got models.Application
	require.NoError(t, f.db.First(&got, app.ID).Error)
	require.Equal(t, types.ApplicationStatusRejectedBoard, got.Status)

	var memberCount int64
	require.NoError(t, f.db.Model(&models.Member{}).Count(&memberCount).Error)
	require.Zero(t, memberCount)
}

func TestVotingClosedAfterFinalize(t *testing.T) {
	f := newFixture(t, 2, 2, 5)
	ctx := context.Background()
	app := f.newApplication(t)

	require.NoError(t, f.svc.CastVote(ctx, app.ID, f.directors[0].ID, types.VoteChoiceApproved, ""))
	require.NoError(t, f.svc.CastVote(ctx, app.ID, f.directors[1].ID, types.VoteChoiceApproved, ""))

	err := f.svc.CastVote(ctx, app.ID, f.directors[2].ID, types.VoteChoiceApproved, "")
	require.Error(t, err)

	var subCount int64
	require.NoError(t, f.db.Model(&models.Subscription{}).Count(&subCount).Error)
	require.EqualValues(t, 1, subCount)
}

func TestDirectorCannotVoteTwice(t *testing.T) {
	f := newFixture(t, 3, 3, 5)
	ctx := context.Background()
	app := f.newApplication(t)

	require.NoError(t, f.svc.CastVote(ctx, app.ID, f.directors[0].ID, types.VoteChoiceApproved, ""))
	err := f.svc.CastVote(ctx, app.ID, f.directors[0].ID, types.VoteChoiceRejected, "changed my mind")
	require.Error(t, err)
	require.False(t, errs.IsNotFound(err))
}

func TestRepeatEvaluationDoesNotReprovision(t *testing.T) {
	f := newFixture(t, 2, 2, 3)
	ctx := context.Background()
	app := f.newApplication(t)

	require.NoError(t, f.svc.CastVote(ctx, app.ID, f.directors[0].ID, types.VoteChoiceApproved, ""))
	require.NoError(t, f.svc.CastVote(ctx, app.ID, f.directors[1].ID, types.VoteChoiceApproved, ""))
	require.NoError(t, f.svc.EvaluateAfterVote(ctx, app.ID))
	require.NoError(t, f.svc.EvaluateAfterVote(ctx, app.ID))

	var subCount int64
	require.NoError(t, f.db.Model(&models.Subscription{}).Count(&subCount).Error)
	require.EqualValues(t, 1, subCount)
	require.Len(t, f.mailer.sent, 2)
}

func TestReapplicationNotifiesAndResetsExistingMember(t *testing.T) {
	f := newFixture(t, 2, 2, 3)
	ctx := context.Background()

	// A lapsed member from a previous cycle applies again.
	user, err := f.identity.EnsureUser(ctx, "applicant@example.org", "Ada", "Lovelace", types.MembershipRoleMember)
	require.NoError(t, err)
	approved := time.Date(2023, time.September, 1, 0, 0, 0, 0, time.UTC)
	number := "IEI-000042"
	member := &models.Member{
		UserID:           user.ID,
		MembershipNumber: &number,
		MembershipType:   types.MembershipTypeAssociate,
		Status:           types.MemberStatusLapsed,
		ApprovedAt:       &approved,
	}
	require.NoError(t, f.db.Create(member).Error)

	app := f.newApplication(t)
	require.NoError(t, f.svc.CastVote(ctx, app.ID, f.directors[0].ID, types.VoteChoiceApproved, ""))
	require.NoError(t, f.svc.CastVote(ctx, app.ID, f.directors[1].ID, types.VoteChoiceApproved, ""))

	var got models.Application
	require.NoError(t, f.db.First(&got, app.ID).Error)
	require.Equal(t, types.ApplicationStatusApproved, got.Status)

	// The applicant still gets the password-setup email and the officer
	// fallback notice; no second subscription is provisioned.
	require.Len(t, f.mailer.sent, 2)
	var subCount int64
	require.NoError(t, f.db.Model(&models.Subscription{}).Count(&subCount).Error)
	require.Zero(t, subCount)

	var gotMember models.Member
	require.NoError(t, f.db.First(&gotMember, member.ID).Error)
	require.Equal(t, types.MemberStatusPendingPayment, gotMember.Status)
	require.Equal(t, approved.Unix(), gotMember.ApprovedAt.Unix())
	require.Equal(t, number, *gotMember.MembershipNumber)

	var gotUser models.User
	require.NoError(t, f.db.First(&gotUser, user.ID).Error)
	require.Equal(t, types.MembershipRolePendingPayment, gotUser.Role)
}

func TestApprovalReturnsActiveMemberToPendingPayment(t *testing.T) {
	f := newFixture(t, 2, 2, 3)
	ctx := context.Background()

	user, err := f.identity.EnsureUser(ctx, "applicant@example.org", "Ada", "Lovelace", types.MembershipRoleMember)
	require.NoError(t, err)
	activated := time.Date(2024, time.October, 1, 0, 0, 0, 0, time.UTC)
	member := &models.Member{
		UserID:         user.ID,
		MembershipType: types.MembershipTypeAssociate,
		Status:         types.MemberStatusActive,
		ActivatedAt:    &activated,
	}
	require.NoError(t, f.db.Create(member).Error)

	app := f.newApplication(t)
	require.NoError(t, f.svc.CastVote(ctx, app.ID, f.directors[0].ID, types.VoteChoiceApproved, ""))
	require.NoError(t, f.svc.CastVote(ctx, app.ID, f.directors[1].ID, types.VoteChoiceApproved, ""))

	var gotMember models.Member
	require.NoError(t, f.db.First(&gotMember, member.ID).Error)
	require.Equal(t, types.MemberStatusPendingPayment, gotMember.Status)
	require.Equal(t, types.MembershipTypeAssociate, gotMember.MembershipType)
}

func TestMarkViewedStampsFirstView(t *testing.T) {
	f := newFixture(t, 3, 3, 2)
	ctx := context.Background()
	app := f.newApplication(t)

	require.NoError(t, f.svc.MarkViewed(ctx, app.ID, f.directors[0].ID))

	var vote models.Vote
	require.NoError(t, f.db.Where("application_id = ? AND director_user_id = ?", app.ID, f.directors[0].ID).First(&vote).Error)
	require.NotNil(t, vote.ViewedAt)
	first := *vote.ViewedAt

	require.NoError(t, f.svc.MarkViewed(ctx, app.ID, f.directors[0].ID))
	require.NoError(t, f.db.Where("application_id = ? AND director_user_id = ?", app.ID, f.directors[0].ID).First(&vote).Error)
	require.Equal(t, first.Unix(), vote.ViewedAt.Unix())
}
