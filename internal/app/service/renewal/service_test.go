package renewal

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jameswitika/iei.org.au/internal/app/service/activitylog"
	"github.com/jameswitika/iei.org.au/internal/app/service/identity"
	"github.com/jameswitika/iei.org.au/internal/models"
	"github.com/jameswitika/iei.org.au/internal/platform/db/testdb"
	"github.com/jameswitika/iei.org.au/pkg/config"
	"github.com/jameswitika/iei.org.au/pkg/types"
)

type fixture struct {
	db  *gorm.DB
	svc *Service
}

func newFixture(t *testing.T, now time.Time) *fixture {
	db := testdb.New(t)
	log := zap.NewNop().Sugar()
	cfg := &config.Config{
		Membership: config.MembershipConfig{GracePeriodDays: 30, Currency: "AUD"},
		Auth:       config.AuthConfig{JWTSecret: "test-secret", FormTokenTTLMinutes: 60, PasswordLinkTTLHours: 48},
	}
	audit := activitylog.NewService(db, log)
	ident := identity.NewService(cfg, db, log, audit)
	svc := NewService(cfg, db, log, audit, ident)
	svc.now = func() time.Time { return now }
	return &fixture{db: db, svc: svc}
}

func (f *fixture) seedSubscription(t *testing.T, email string, status types.SubscriptionStatus, dueDate time.Time, graceUntil *time.Time) (*models.Member, *models.Subscription) {
	user := &models.User{Email: email, Role: types.MembershipRoleMember}
	require.NoError(t, f.db.Create(user).Error)
	activated := dueDate.AddDate(-1, 0, 0)
	member := &models.Member{
		UserID:         user.ID,
		MembershipType: types.MembershipTypeAssociate,
		Status:         types.MemberStatusActive,
		ActivatedAt:    &activated,
	}
	require.NoError(t, f.db.Create(member).Error)
	sub := &models.Subscription{
		MemberID:       member.ID,
		MembershipYear: dueDate.Year() + 1,
		StartDate:      dueDate,
		EndDate:        dueDate.AddDate(1, 0, -1),
		AmountDue:      decimal.NewFromInt(145),
		Status:         status,
		DueDate:        dueDate,
		GraceUntil:     graceUntil,
	}
	require.NoError(t, f.db.Create(sub).Error)
	return member, sub
}

func TestOverdueMarkingOnlyOnCycleBoundary(t *testing.T) {
	ctx := context.Background()
	boundary := time.Date(2025, time.July, 1, 3, 0, 0, 0, time.UTC)

	f := newFixture(t, boundary)
	_, sub := f.seedSubscription(t, "r1@example.org", types.SubscriptionStatusPendingPayment, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC), nil)

	result, err := f.svc.RunDaily(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.MarkedOverdue)

	var got models.Subscription
	require.NoError(t, f.db.First(&got, sub.ID).Error)
	require.Equal(t, types.SubscriptionStatusOverdue, got.Status)
	require.NotNil(t, got.GraceUntil)
	require.Equal(t, "2025-07-31", got.GraceUntil.Format("2006-01-02"))
}

func TestOverdueMarkingSkipsMidCycleDueDates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Date(2025, time.July, 1, 3, 0, 0, 0, time.UTC))
	_, sub := f.seedSubscription(t, "r7@example.org", types.SubscriptionStatusPendingPayment, time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC), nil)

	result, err := f.svc.RunDaily(ctx)
	require.NoError(t, err)
	require.Zero(t, result.MarkedOverdue)

	var got models.Subscription
	require.NoError(t, f.db.First(&got, sub.ID).Error)
	require.Equal(t, types.SubscriptionStatusPendingPayment, got.Status)
	require.Nil(t, got.GraceUntil)
}

func TestOverdueMarkingSkippedOffBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Date(2025, time.July, 2, 3, 0, 0, 0, time.UTC))
	_, sub := f.seedSubscription(t, "r2@example.org", types.SubscriptionStatusPendingPayment, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC), nil)

	result, err := f.svc.RunDaily(ctx)
	require.NoError(t, err)
	require.Zero(t, result.MarkedOverdue)

	var got models.Subscription
	require.NoError(t, f.db.First(&got, sub.ID).Error)
	require.Equal(t, types.SubscriptionStatusPendingPayment, got.Status)
}

func TestLapseAfterGraceDeadline(t *testing.T) {
	ctx := context.Background()
	grace := time.Date(2025, time.July, 31, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, time.Date(2025, time.August, 1, 3, 0, 0, 0, time.UTC))
	member, sub := f.seedSubscription(t, "r3@example.org", types.SubscriptionStatusOverdue, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC), &grace)

	result, err := f.svc.RunDaily(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Lapsed)

	var gotSub models.Subscription
	require.NoError(t, f.db.First(&gotSub, sub.ID).Error)
	require.Equal(t, types.SubscriptionStatusLapsed, gotSub.Status)

	var gotMember models.Member
	require.NoError(t, f.db.First(&gotMember, member.ID).Error)
	require.Equal(t, types.MemberStatusLapsed, gotMember.Status)
	require.NotNil(t, gotMember.LapsedAt)

	var user models.User
	require.NoError(t, f.db.First(&user, gotMember.UserID).Error)
	require.Equal(t, types.MembershipRolePendingPayment, user.Role)
}

func TestLapseFallsBackToDueDatePlusGrace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Date(2025, time.August, 1, 3, 0, 0, 0, time.UTC))
	_, sub := f.seedSubscription(t, "r4@example.org", types.SubscriptionStatusOverdue, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC), nil)

	result, err := f.svc.RunDaily(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Lapsed)

	var got models.Subscription
	require.NoError(t, f.db.First(&got, sub.ID).Error)
	require.Equal(t, types.SubscriptionStatusLapsed, got.Status)
}

func TestLapseWaitsOutGraceWindow(t *testing.T) {
	ctx := context.Background()
	grace := time.Date(2025, time.July, 31, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, time.Date(2025, time.July, 15, 3, 0, 0, 0, time.UTC))
	member, sub := f.seedSubscription(t, "r5@example.org", types.SubscriptionStatusOverdue, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC), &grace)

	result, err := f.svc.RunDaily(ctx)
	require.NoError(t, err)
	require.Zero(t, result.Lapsed)

	var gotSub models.Subscription
	require.NoError(t, f.db.First(&gotSub, sub.ID).Error)
	require.Equal(t, types.SubscriptionStatusOverdue, gotSub.Status)

	var gotMember models.Member
	require.NoError(t, f.db.First(&gotMember, member.ID).Error)
	require.Equal(t, types.MemberStatusActive, gotMember.Status)
}

func TestRunDailyTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	boundary := time.Date(2025, time.July, 1, 3, 0, 0, 0, time.UTC)
	f := newFixture(t, boundary)
	f.seedSubscription(t, "r6@example.org", types.SubscriptionStatusPendingPayment, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC), nil)

	first, err := f.svc.RunDaily(ctx)
	require.NoError(t, err)
	second, err := f.svc.RunDaily(ctx)
	require.NoError(t, err)

	require.Equal(t, 1, first.MarkedOverdue)
	require.Zero(t, second.MarkedOverdue)

	var events int64
	require.NoError(t, f.db.Model(&models.ActivityLogEntry{}).
		Where("event_type = ?", "subscription_marked_overdue").
		Count(&events).Error)
	require.EqualValues(t, 1, events)
}
