package application

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jameswitika/iei.org.au/internal/app/service/activitylog"
	"github.com/jameswitika/iei.org.au/internal/app/service/identity"
	"github.com/jameswitika/iei.org.au/internal/models"
	"github.com/jameswitika/iei.org.au/internal/platform/db/testdb"
	"github.com/jameswitika/iei.org.au/internal/platform/filestore"
	"github.com/jameswitika/iei.org.au/pkg/config"
	"github.com/jameswitika/iei.org.au/pkg/errs"
	"github.com/jameswitika/iei.org.au/pkg/types"
)

type recordingMailer struct {
	sent []sentMail
}

type sentMail struct {
	To      []string
	Subject string
}

func (m *recordingMailer) Send(_ context.Context, to []string, subject, _ string) error {
	m.sent = append(m.sent, sentMail{To: to, Subject: subject})
	return nil
}

type fixture struct {
	svc      *Service
	identity *identity.Service
	mailer   *recordingMailer
}

func newFixture(t *testing.T) *fixture {
	db := testdb.New(t)
	log := zap.NewNop().Sugar()
	cfg := &config.Config{
		Server: config.ServerConfig{BaseURL: "https://iei.example.org"},
		Mail:   config.MailConfig{AdminEmail: "admin@example.org"},
		Files: config.FilesConfig{
			Dir:               t.TempDir(),
			MaxCount:          5,
			MaxSizeBytes:      5 * 1024 * 1024,
			AllowedExtensions: []string{"pdf", "jpg"},
		},
		Auth: config.AuthConfig{JWTSecret: "test-secret", FormTokenTTLMinutes: 60, PasswordLinkTTLHours: 48},
	}
	audit := activitylog.NewService(db, log)
	ident := identity.NewService(cfg, db, log, audit)
	mailer := &recordingMailer{}
	files := filestore.NewStore(cfg, db, log)
	svc := NewService(cfg, db, log, audit, ident, files, mailer)
	return &fixture{svc: svc, identity: ident, mailer: mailer}
}

func validSubmit() *SubmitRequest {
	return &SubmitRequest{
		FirstName:        "Grace",
		LastName:         "Hopper",
		AddressLine1:     "1 Harbour St",
		Suburb:           "Sydney",
		State:            "NSW",
		Postcode:         "2000",
		Mobile:           "0400000000",
		Email:            "grace@example.org",
		MembershipType:   types.MembershipTypeAssociate,
		NominationStatus: types.NominationStatusSelfNominated,
		SignatureText:    "Grace Hopper",
	}
}

func TestSubmitPersistsPendingPreapproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Submit(ctx, validSubmit())
	require.NoError(t, err)
	require.NoError(t, res.StorageWarning)
	require.Equal(t, types.ApplicationStatusPendingPreapproval, res.Application.Status)
	require.NotEmpty(t, res.Application.PublicToken)

	// With no officers configured the admin fallback address is notified.
	require.Len(t, f.mailer.sent, 1)
	require.Equal(t, []string{"admin@example.org"}, f.mailer.sent[0].To)
}

func TestSubmitRejectsHoneypot(t *testing.T) {
	f := newFixture(t)
	req := validSubmit()
	req.Honeypot = "http://spam.example"

	_, err := f.svc.Submit(context.Background(), req)
	require.True(t, errs.IsValidation(err))
}

func TestSubmitValidationFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*SubmitRequest)
	}{
		{"missing first name", func(r *SubmitRequest) { r.FirstName = "" }},
		{"invalid state", func(r *SubmitRequest) { r.State = "XX" }},
		{"no phone or mobile", func(r *SubmitRequest) { r.Phone = ""; r.Mobile = "" }},
		{"bad email", func(r *SubmitRequest) { r.Email = "not-an-email" }},
		{"bad membership type", func(r *SubmitRequest) { r.MembershipType = "platinum" }},
		{"missing signature", func(r *SubmitRequest) { r.SignatureText = "" }},
		{"nominated without number", func(r *SubmitRequest) {
			r.NominationStatus = types.NominationStatusNominatedByMember
			r.NominatingMemberName = "Alan Turing"
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validSubmit()
			tc.mutate(req)
			_, err := f.svc.Submit(ctx, req)
			require.True(t, errs.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestSubmitRejectsDisallowedFileType(t *testing.T) {
	f := newFixture(t)
	req := validSubmit()
	req.Files = []*filestore.Upload{{
		Filename: "resume.exe",
		Size:     100,
		Content:  strings.NewReader("MZ"),
	}}

	_, err := f.svc.Submit(context.Background(), req)
	require.True(t, errs.IsValidation(err))
}

func TestSubmitStoresAttachments(t *testing.T) {
	f := newFixture(t)
	req := validSubmit()
	req.Files = []*filestore.Upload{{
		Filename: "qualifications.pdf",
		MimeType: "application/pdf",
		Size:     11,
		Content:  strings.NewReader("%PDF-1.4..."),
	}}

	res, err := f.svc.Submit(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, res.StorageWarning)

	var files []*models.ApplicationFile
	require.NoError(t, f.svc.db.Where("application_id = ?", res.Application.ID).Find(&files).Error)
	require.Len(t, files, 1)
	require.Equal(t, "qualifications.pdf", files[0].OriginalFilename)
}

func TestDecidePreapproveSeedsVotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	officer, err := f.identity.EnsureUser(ctx, "officer@example.org", "Olive", "Officer", types.MembershipRolePreapprovalOfficer)
	require.NoError(t, err)
	d1, err := f.identity.EnsureUser(ctx, "d1@example.org", "Dora", "One", types.MembershipRoleDirector)
	require.NoError(t, err)
	d2, err := f.identity.EnsureUser(ctx, "d2@example.org", "Drew", "Two", types.MembershipRoleDirector)
	require.NoError(t, err)

	res, err := f.svc.Submit(ctx, validSubmit())
	require.NoError(t, err)
	appID := res.Application.ID

	require.NoError(t, f.svc.Decide(ctx, appID, DecisionPreapprove, officer.ID))

	app, err := f.svc.Get(ctx, appID)
	require.NoError(t, err)
	require.Equal(t, types.ApplicationStatusPendingBoardApproval, app.Status)
	require.NotNil(t, app.PreapprovalAt)
	require.Equal(t, officer.ID, *app.PreapprovalOfficerUserID)

	votes, err := f.svc.Votes(ctx, appID)
	require.NoError(t, err)
	require.Len(t, votes, 2)
	for _, v := range votes {
		require.Equal(t, types.VoteChoiceUnanswered, v.Vote)
	}
	require.Equal(t, d1.ID, votes[0].DirectorUserID)
	require.Equal(t, d2.ID, votes[1].DirectorUserID)
}

func TestDecideRejectIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	officer, err := f.identity.EnsureUser(ctx, "officer@example.org", "Olive", "Officer", types.MembershipRolePreapprovalOfficer)
	require.NoError(t, err)
	res, err := f.svc.Submit(ctx, validSubmit())
	require.NoError(t, err)

	require.NoError(t, f.svc.Decide(ctx, res.Application.ID, DecisionReject, officer.ID))

	err = f.svc.Decide(ctx, res.Application.ID, DecisionPreapprove, officer.ID)
	require.Error(t, err)

	app, err := f.svc.Get(ctx, res.Application.ID)
	require.NoError(t, err)
	require.Equal(t, types.ApplicationStatusRejectedPreapproval, app.Status)
}

func TestResetVoteRequiresBoardReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	officer, err := f.identity.EnsureUser(ctx, "officer@example.org", "Olive", "Officer", types.MembershipRolePreapprovalOfficer)
	require.NoError(t, err)
	res, err := f.svc.Submit(ctx, validSubmit())
	require.NoError(t, err)

	err = f.svc.ResetVote(ctx, res.Application.ID, 42, officer.ID)
	require.Error(t, err)
}

func TestSendReminderOnlyEmailsNonResponders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	officer, err := f.identity.EnsureUser(ctx, "officer@example.org", "Olive", "Officer", types.MembershipRolePreapprovalOfficer)
	require.NoError(t, err)
	_, err = f.identity.EnsureUser(ctx, "d1@example.org", "Dora", "One", types.MembershipRoleDirector)
	require.NoError(t, err)
	_, err = f.identity.EnsureUser(ctx, "d2@example.org", "Drew", "Two", types.MembershipRoleDirector)
	require.NoError(t, err)

	res, err := f.svc.Submit(ctx, validSubmit())
	require.NoError(t, err)
	require.NoError(t, f.svc.Decide(ctx, res.Application.ID, DecisionPreapprove, officer.ID))

	before := len(f.mailer.sent)
	require.NoError(t, f.svc.SendReminder(ctx, res.Application.ID, officer.ID))
	require.Equal(t, before+2, len(f.mailer.sent))
}
