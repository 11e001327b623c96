package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jameswitika/iei.org.au/internal/app/service/activitylog"
	"github.com/jameswitika/iei.org.au/internal/platform/db/testdb"
	"github.com/jameswitika/iei.org.au/pkg/config"
	"github.com/jameswitika/iei.org.au/pkg/types"
)

func newServiceForTest(t *testing.T) *Service {
	db := testdb.New(t)
	log := zap.NewNop().Sugar()
	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:            "test-secret",
			FormTokenTTLMinutes:  60,
			PasswordLinkTTLHours: 48,
		},
		Mail: config.MailConfig{AdminEmail: "admin@example.org"},
	}
	return NewService(cfg, db, log, activitylog.NewService(db, log))
}

func TestEnsureUserCreatesOnceAndReuses(t *testing.T) {
	svc := newServiceForTest(t)
	ctx := context.Background()

	first, err := svc.EnsureUser(ctx, "Jane@Example.org", "Jane", "Doe", types.MembershipRolePendingPayment)
	require.NoError(t, err)
	require.Equal(t, "jane@example.org", first.Email)

	second, err := svc.EnsureUser(ctx, "jane@example.org", "Other", "Name", types.MembershipRoleMember)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "Jane", second.FirstName)
}

func TestEnsureUserReassignsRoleForReturningUser(t *testing.T) {
	svc := newServiceForTest(t)
	ctx := context.Background()

	lapsed, err := svc.EnsureUser(ctx, "back@example.org", "Back", "Again", types.MembershipRoleMember)
	require.NoError(t, err)

	again, err := svc.EnsureUser(ctx, "back@example.org", "Back", "Again", types.MembershipRolePendingPayment)
	require.NoError(t, err)
	require.Equal(t, lapsed.ID, again.ID)
	require.Equal(t, types.MembershipRolePendingPayment, again.Role)

	director, err := svc.EnsureUser(ctx, "dd@example.org", "D", "D", types.MembershipRoleDirector)
	require.NoError(t, err)
	same, err := svc.EnsureUser(ctx, "dd@example.org", "D", "D", types.MembershipRolePendingPayment)
	require.NoError(t, err)
	require.Equal(t, director.ID, same.ID)
	require.Equal(t, types.MembershipRoleDirector, same.Role)
}

func TestEnabledDirectorsExcludesDisabled(t *testing.T) {
	svc := newServiceForTest(t)
	ctx := context.Background()

	active, err := svc.EnsureUser(ctx, "d1@example.org", "A", "One", types.MembershipRoleDirector)
	require.NoError(t, err)
	disabled, err := svc.EnsureUser(ctx, "d2@example.org", "B", "Two", types.MembershipRoleDirector)
	require.NoError(t, err)
	require.NoError(t, svc.SetDirectorDisabled(ctx, disabled.ID, true, nil))

	directors, err := svc.EnabledDirectors(ctx)
	require.NoError(t, err)
	require.Len(t, directors, 1)
	require.Equal(t, active.ID, directors[0].ID)
}

func TestPreapprovalOfficerEmailsFallsBackToAdmin(t *testing.T) {
	svc := newServiceForTest(t)
	ctx := context.Background()

	emails, err := svc.PreapprovalOfficerEmails(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"admin@example.org"}, emails)

	_, err = svc.EnsureUser(ctx, "officer@example.org", "O", "Fficer", types.MembershipRolePreapprovalOfficer)
	require.NoError(t, err)

	emails, err = svc.PreapprovalOfficerEmails(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"officer@example.org"}, emails)
}

func TestFormTokenRoundTrip(t *testing.T) {
	svc := newServiceForTest(t)

	token, err := svc.IssueFormToken()
	require.NoError(t, err)
	require.NoError(t, svc.VerifyFormToken(token))

	require.Error(t, svc.VerifyFormToken(""))
	require.Error(t, svc.VerifyFormToken(token+"tampered"))
}

func TestPasswordSetupTokenCarriesUserID(t *testing.T) {
	svc := newServiceForTest(t)

	token, err := svc.IssuePasswordSetupToken(42)
	require.NoError(t, err)

	userID, err := svc.VerifyPasswordSetupToken(token)
	require.NoError(t, err)
	require.Equal(t, uint64(42), userID)

	// a form token is not accepted as a password token
	form, err := svc.IssueFormToken()
	require.NoError(t, err)
	_, err = svc.VerifyPasswordSetupToken(form)
	require.Error(t, err)
}
