package member

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jameswitika/iei.org.au/internal/app/service/activitylog"
	"github.com/jameswitika/iei.org.au/internal/app/service/identity"
	"github.com/jameswitika/iei.org.au/internal/models"
	"github.com/jameswitika/iei.org.au/internal/platform/db/testdb"
	"github.com/jameswitika/iei.org.au/pkg/config"
	"github.com/jameswitika/iei.org.au/pkg/errs"
	"github.com/jameswitika/iei.org.au/pkg/types"
)

func newServiceForTest(t *testing.T) (*Service, *gorm.DB) {
	db := testdb.New(t)
	log := zap.NewNop().Sugar()
	cfg := &config.Config{
		Membership: config.MembershipConfig{
			Currency: "AUD",
			Prices:   map[string]string{"associate": "145", "corporate": "145", "senior": "70"},
		},
		Stripe: config.StripeConfig{Enabled: true},
		Auth:   config.AuthConfig{JWTSecret: "test-secret", FormTokenTTLMinutes: 60, PasswordLinkTTLHours: 48},
	}
	audit := activitylog.NewService(db, log)
	ident := identity.NewService(cfg, db, log, audit)
	return NewService(cfg, db, log, audit, ident), db
}

const importHeader = "email,first_name,last_name,membership_number,membership_type,membership_year\n"

func TestImportCSVCreatesMemberAndSubscription(t *testing.T) {
	svc, db := newServiceForTest(t)
	csv := importHeader +
		"one@example.org,Mary,Shelley,IEI-000101,associate,2025\n" +
		"two@example.org,John,Keats,IEI-000102,senior,2025\n"

	report, err := svc.ImportCSV(context.Background(), strings.NewReader(csv), 1)
	require.NoError(t, err)
	require.Equal(t, 2, report.Processed)
	require.Equal(t, 2, report.CreatedUsers)
	require.Equal(t, 2, report.CreatedMembers)
	require.Equal(t, 2, report.CreatedSubscriptions)
	require.Empty(t, report.Errors)
	require.Empty(t, report.Duplicates)

	var member models.Member
	require.NoError(t, db.Where("membership_number = ?", "IEI-000101").First(&member).Error)
	require.Equal(t, types.MemberStatusActive, member.Status)
	require.NotNil(t, member.ActivatedAt)

	var sub models.Subscription
	require.NoError(t, db.Where("member_id = ?", member.ID).First(&sub).Error)
	require.Equal(t, types.SubscriptionStatusActive, sub.Status)
	require.Equal(t, 2025, sub.MembershipYear)
	require.Equal(t, 2024, sub.StartDate.Year())
	require.True(t, sub.AmountPaid.Equal(sub.AmountDue))
}

func TestImportCSVIsIdempotent(t *testing.T) {
	svc, db := newServiceForTest(t)
	csv := importHeader + "one@example.org,Mary,Shelley,IEI-000101,associate,2025\n"

	_, err := svc.ImportCSV(context.Background(), strings.NewReader(csv), 1)
	require.NoError(t, err)
	report, err := svc.ImportCSV(context.Background(), strings.NewReader(csv), 1)
	require.NoError(t, err)

	require.Equal(t, 1, report.Processed)
	require.Zero(t, report.CreatedMembers)
	require.Len(t, report.Duplicates, 1)

	var count int64
	require.NoError(t, db.Model(&models.Member{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestImportCSVReportsRowErrors(t *testing.T) {
	svc, _ := newServiceForTest(t)
	csv := importHeader +
		"bad-email,Mary,Shelley,IEI-000101,associate,2025\n" +
		"three@example.org,,Shelley,IEI-000103,platinum,1999\n" +
		"four@example.org,Anne,Bronte,IEI-000104,corporate,2025\n"

	report, err := svc.ImportCSV(context.Background(), strings.NewReader(csv), 1)
	require.NoError(t, err)
	require.Equal(t, 3, report.Processed)
	require.Len(t, report.Errors, 2)
	require.Equal(t, 1, report.CreatedMembers)
}

func TestImportCSVRejectsMissingColumns(t *testing.T) {
	svc, _ := newServiceForTest(t)
	csv := "email,first_name\none@example.org,Mary\n"

	_, err := svc.ImportCSV(context.Background(), strings.NewReader(csv), 1)
	require.True(t, errs.IsValidation(err))
}

func TestImportCSVSkipsBlankRows(t *testing.T) {
	svc, _ := newServiceForTest(t)
	csv := importHeader + ",,,,,\n" + "one@example.org,Mary,Shelley,IEI-000101,associate,2025\n"

	report, err := svc.ImportCSV(context.Background(), strings.NewReader(csv), 1)
	require.NoError(t, err)
	require.Equal(t, 1, report.Processed)
}
