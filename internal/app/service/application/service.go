// Package application owns the application status transitions from public
// submission through officer pre-approval into board review.
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jameswitika/iei.org.au/internal/app/service/activitylog"
	"github.com/jameswitika/iei.org.au/internal/app/service/identity"
	"github.com/jameswitika/iei.org.au/internal/models"
	"github.com/jameswitika/iei.org.au/internal/platform/filestore"
	"github.com/jameswitika/iei.org.au/internal/platform/mail"
	"github.com/jameswitika/iei.org.au/pkg/config"
	"github.com/jameswitika/iei.org.au/pkg/errs"
	"github.com/jameswitika/iei.org.au/pkg/logctx"
	"github.com/jameswitika/iei.org.au/pkg/tool"
	"github.com/jameswitika/iei.org.au/pkg/types"
)

type Service struct {
	cfg      *config.Config
	db       *gorm.DB
	log      *zap.SugaredLogger
	audit    *activitylog.Service
	identity *identity.Service
	files    *filestore.Store
	mailer   mail.Mailer
}

func NewService(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger, audit *activitylog.Service, ident *identity.Service, files *filestore.Store, mailer mail.Mailer) *Service {
	return &Service{cfg: cfg, db: db, log: log, audit: audit, identity: ident, files: files, mailer: mailer}
}

// SubmitRequest carries the public form fields. Honeypot holds the hidden
// website field; any non-empty value fails the spam check.
type SubmitRequest struct {
	FirstName  string `json:"first_name"`
	MiddleName string `json:"middle_name"`
	LastName   string `json:"last_name"`

	AddressLine1 string `json:"address_line_1"`
	AddressLine2 string `json:"address_line_2"`
	Suburb       string `json:"suburb"`
	State        string `json:"state"`
	Postcode     string `json:"postcode"`
	Phone        string `json:"phone"`
	Mobile       string `json:"mobile"`
	Email        string `json:"email"`

	MembershipType types.MembershipType `json:"membership_type"`
	Employer       string               `json:"employer"`
	JobPosition    string               `json:"job_position"`

	NominationStatus       types.NominationStatus `json:"nomination_status"`
	NominatingMemberNumber string                 `json:"nominating_member_number"`
	NominatingMemberName   string                 `json:"nominating_member_name"`
	SignatureText          string                 `json:"signature_text"`
	ApplicationNotes       string                 `json:"application_notes"`

	Honeypot string `json:"-"`

	Files []*filestore.Upload `json:"-"`
}

type SubmitResult struct {
	Application *models.Application
	// StorageWarning is set when the row committed but one or more
	// attachments could not be stored; staff intervention is needed.
	StorageWarning error
}

// Submit validates, persists the application in pending_preapproval, stores
// attachments, and notifies the pre-approval officers. Concurrent duplicate
// submissions are independent rows.
func (s *Service) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResult, error) {
	if req.Honeypot != "" {
		return nil, errs.Validationf("spam check failed")
	}
	if err := s.validate(req); err != nil {
		return nil, err
	}
	if err := s.validateFiles(req.Files); err != nil {
		return nil, err
	}

	app := &models.Application{
		PublicToken:            tool.GenerateUUIDV7(),
		Status:                 types.ApplicationStatusPendingPreapproval,
		Email:                  req.Email,
		FirstName:              req.FirstName,
		MiddleName:             req.MiddleName,
		LastName:               req.LastName,
		AddressLine1:           req.AddressLine1,
		AddressLine2:           req.AddressLine2,
		Suburb:                 req.Suburb,
		State:                  req.State,
		Postcode:               req.Postcode,
		Phone:                  req.Phone,
		Mobile:                 req.Mobile,
		Employer:               req.Employer,
		JobPosition:            req.JobPosition,
		MembershipType:         req.MembershipType,
		NominationStatus:       req.NominationStatus,
		NominatingMemberNumber: req.NominatingMemberNumber,
		NominatingMemberName:   req.NominatingMemberName,
		SignatureText:          req.SignatureText,
		SubmittedAt:            time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(app).Error; err != nil {
		return nil, fmt.Errorf("%w: save application: %v", errs.ErrStorageFailure, err)
	}

	s.audit.Application(ctx, app.ID, "application_submitted", map[string]any{
		"membership_type": app.MembershipType,
	}, nil)
	if req.ApplicationNotes != "" {
		s.audit.Application(ctx, app.ID, "application_notes_submitted", map[string]any{"has_notes": true}, nil)
	}

	result := &SubmitResult{Application: app}
	savedCount := 0
	for _, upload := range req.Files {
		if _, err := s.files.Save(ctx, app.ID, upload, "application_attachment", nil); err != nil {
			s.audit.Application(ctx, app.ID, "application_file_store_failed", map[string]any{"code": "storage_failed"}, nil)
			result.StorageWarning = fmt.Errorf("%w: application saved, but one or more attachments could not be stored", errs.ErrStorageFailure)
			break
		}
		savedCount++
	}
	s.audit.Application(ctx, app.ID, "application_files_saved", map[string]any{"count": savedCount}, nil)

	s.notifyPreapprovalOfficers(ctx, app)
	return result, nil
}

func (s *Service) validate(req *SubmitRequest) error {
	switch {
	case req.FirstName == "":
		return errs.Validationf("first name is required")
	case req.LastName == "":
		return errs.Validationf("last name is required")
	case req.AddressLine1 == "":
		return errs.Validationf("address line 1 is required")
	case req.Suburb == "":
		return errs.Validationf("suburb is required")
	case !types.AUStateCodes[req.State]:
		return errs.Validationf("please select a valid Australian state")
	case req.Postcode == "":
		return errs.Validationf("postcode is required")
	case req.Phone == "" && req.Mobile == "":
		return errs.Validationf("please provide at least a phone or mobile number")
	case !validEmail(req.Email):
		return errs.Validationf("a valid email address is required")
	case !req.MembershipType.Valid():
		return errs.Validationf("please select a valid membership type")
	}

	switch req.NominationStatus {
	case types.NominationStatusSelfNominated:
	case types.NominationStatusNominatedByMember:
		if req.NominatingMemberNumber == "" {
			return errs.Validationf("nominating member number is required when nominated by a member")
		}
		if req.NominatingMemberName == "" {
			return errs.Validationf("nominating member name is required when nominated by a member")
		}
	default:
		return errs.Validationf("please select a valid nomination status")
	}

	if req.SignatureText == "" {
		return errs.Validationf("signature is required")
	}
	return nil
}

func (s *Service) validateFiles(files []*filestore.Upload) error {
	if len(files) > s.cfg.Files.MaxCount {
		return errs.Validationf("you can upload up to %d files per application", s.cfg.Files.MaxCount)
	}
	for _, f := range files {
		if f.Size > s.cfg.Files.MaxSizeBytes {
			return errs.Validationf("file %q exceeds the %d MB limit", f.Filename, s.cfg.Files.MaxSizeBytes/(1024*1024))
		}
		ext := fileExt(f.Filename)
		if !s.cfg.Files.ExtensionAllowed(ext) {
			return errs.Validationf("file type %q is not allowed", ext)
		}
	}
	return nil
}

func (s *Service) notifyPreapprovalOfficers(ctx context.Context, app *models.Application) {
	emails, err := s.identity.PreapprovalOfficerEmails(ctx)
	if err != nil || len(emails) == 0 {
		if err != nil {
			logctx.FromCtx(ctx, s.log).Errorw("preapproval_officer_lookup_failed", "err", err)
		}
		return
	}

	reviewURL := fmt.Sprintf("%s/admin/applications/%d", s.cfg.Server.BaseURL, app.ID)
	n := mail.NewApplicationReceived(app.ID, app.FirstName, app.LastName, app.Email, string(app.MembershipType), reviewURL)
	sent := 0
	if err := s.mailer.Send(ctx, emails, n.Subject, n.Body); err == nil {
		sent = len(emails)
	}
	s.audit.Application(ctx, app.ID, "preapproval_notification_sent", map[string]any{
		"recipient_count": len(emails),
		"sent_count":      sent,
	}, nil)
}

type Decision string

const (
	DecisionPreapprove Decision = "preapprove"
	DecisionReject     Decision = "reject"
)

// Decide applies the officer's pre-approval decision. Only applications in
// pending_preapproval can be decided; the transition is a conditional update
// so concurrent decisions cannot both apply.
func (s *Service) Decide(ctx context.Context, applicationID uint64, decision Decision, officerUserID uint64) error {
	app, err := s.get(ctx, applicationID)
	if err != nil {
		return err
	}
	if app.Status != types.ApplicationStatusPendingPreapproval {
		return errs.InvalidStatef("application %d is %s, expected pending_preapproval", applicationID, app.Status)
	}

	now := time.Now()
	var target types.ApplicationStatus
	switch decision {
	case DecisionPreapprove:
		target = types.ApplicationStatusPendingBoardApproval
	case DecisionReject:
		target = types.ApplicationStatusRejectedPreapproval
	default:
		return errs.Validationf("unknown decision %q", decision)
	}

	res := s.db.WithContext(ctx).Model(&models.Application{}).
		Where("id = ? AND status = ?", applicationID, types.ApplicationStatusPendingPreapproval).
		Updates(map[string]any{
			"status":                      target,
			"preapproval_officer_user_id": officerUserID,
			"preapproval_at":              now,
		})
	if res.Error != nil {
		return fmt.Errorf("update application status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.InvalidStatef("application %d was decided concurrently", applicationID)
	}

	if decision == DecisionReject {
		s.audit.Application(ctx, applicationID, "application_rejected_preapproval", map[string]any{
			"officer_user_id": officerUserID,
		}, &officerUserID)
		return nil
	}

	s.audit.Application(ctx, applicationID, "application_preapproved", map[string]any{
		"officer_user_id": officerUserID,
	}, &officerUserID)

	directors, err := s.identity.EnabledDirectors(ctx)
	if err != nil {
		return err
	}
	written, err := s.seedVotes(ctx, applicationID, directors)
	if err != nil {
		return err
	}
	s.audit.Application(ctx, applicationID, "director_votes_prepared", map[string]any{
		"director_count":    len(directors),
		"vote_rows_written": written,
	}, &officerUserID)

	sent := s.notifyDirectors(ctx, app, directors)
	s.audit.Application(ctx, applicationID, "board_review_notification_sent", map[string]any{
		"director_count": len(directors),
		"sent_count":     sent,
	}, &officerUserID)
	return nil
}

// seedVotes writes one unanswered vote row per director. Existing rows are
// reset in place so a re-run of pre-approval does not duplicate them.
func (s *Service) seedVotes(ctx context.Context, applicationID uint64, directors []*models.User) (int, error) {
	written := 0
	for _, director := range directors {
		vote := &models.Vote{
			ApplicationID:  applicationID,
			DirectorUserID: director.ID,
			Vote:           types.VoteChoiceUnanswered,
		}
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "application_id"}, {Name: "director_user_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"vote":             types.VoteChoiceUnanswered,
				"responded_at":     nil,
				"voted_at":         nil,
				"note":             "",
				"reset_by_user_id": nil,
				"reset_at":         nil,
			}),
		}).Create(vote).Error
		if err != nil {
			return written, fmt.Errorf("seed vote row: %w", err)
		}
		written++
	}
	return written, nil
}

func (s *Service) notifyDirectors(ctx context.Context, app *models.Application, directors []*models.User) int {
	reviewURL := fmt.Sprintf("%s/board/applications/%d", s.cfg.Server.BaseURL, app.ID)
	n := mail.NewBoardReviewRequest(app.ID, app.FirstName, app.LastName, string(app.MembershipType), reviewURL)
	sent := 0
	for _, director := range directors {
		if err := s.mailer.Send(ctx, []string{director.Email}, n.Subject, n.Body); err == nil {
			sent++
		}
	}
	return sent
}

// ResetVote clears a director's vote back to unanswered. Allowed only while
// the application is pending board approval.
func (s *Service) ResetVote(ctx context.Context, applicationID, directorUserID, officerUserID uint64) error {
	app, err := s.get(ctx, applicationID)
	if err != nil {
		return err
	}
	if app.Status != types.ApplicationStatusPendingBoardApproval {
		return errs.InvalidStatef("application %d is %s, expected pending_board_approval", applicationID, app.Status)
	}

	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.Vote{}).
		Where("application_id = ? AND director_user_id = ?", applicationID, directorUserID).
		Updates(map[string]any{
			"vote":             types.VoteChoiceUnanswered,
			"responded_at":     nil,
			"voted_at":         nil,
			"note":             "",
			"reset_by_user_id": officerUserID,
			"reset_at":         now,
		})
	if res.Error != nil {
		return fmt.Errorf("reset vote: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NotFoundf("vote for application %d director %d", applicationID, directorUserID)
	}

	s.audit.Application(ctx, applicationID, "director_vote_reset", map[string]any{
		"director_user_id": directorUserID,
	}, &officerUserID)
	return nil
}

// SendReminder emails every enabled director whose vote is still
// unanswered.
func (s *Service) SendReminder(ctx context.Context, applicationID, officerUserID uint64) error {
	app, err := s.get(ctx, applicationID)
	if err != nil {
		return err
	}
	if app.Status != types.ApplicationStatusPendingBoardApproval {
		return errs.InvalidStatef("application %d is %s, expected pending_board_approval", applicationID, app.Status)
	}

	var outstanding []*models.Vote
	err = s.db.WithContext(ctx).
		Where("application_id = ? AND vote = ?", applicationID, types.VoteChoiceUnanswered).
		Find(&outstanding).Error
	if err != nil {
		return fmt.Errorf("list outstanding votes: %w", err)
	}

	n := mail.NewDirectorVoteReminder(applicationID)
	sent := 0
	for _, vote := range outstanding {
		director, err := s.identity.Get(ctx, vote.DirectorUserID)
		if err != nil || director.DirectorDisabled {
			continue
		}
		if err := s.mailer.Send(ctx, []string{director.Email}, n.Subject, n.Body); err == nil {
			sent++
		}
	}

	s.audit.Application(ctx, applicationID, "director_reminder_sent", map[string]any{
		"non_responder_count": len(outstanding),
		"sent_count":          sent,
	}, &officerUserID)
	return nil
}

// Get loads an application.
func (s *Service) Get(ctx context.Context, applicationID uint64) (*models.Application, error) {
	return s.get(ctx, applicationID)
}

func (s *Service) get(ctx context.Context, applicationID uint64) (*models.Application, error) {
	var app models.Application
	if err := s.db.WithContext(ctx).First(&app, applicationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFoundf("application %d", applicationID)
		}
		return nil, fmt.Errorf("load application: %w", err)
	}
	return &app, nil
}
