package member

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/jameswitika/iei.org.au/internal/models"
	"github.com/jameswitika/iei.org.au/pkg/errs"
	"github.com/jameswitika/iei.org.au/pkg/types"
)

var importColumns = []string{"email", "first_name", "last_name", "membership_number", "membership_type", "membership_year"}

// ImportReport summarizes one CSV import run.
type ImportReport struct {
	Processed            int      `json:"processed"`
	CreatedUsers         int      `json:"created_users"`
	CreatedMembers       int      `json:"created_members"`
	CreatedSubscriptions int      `json:"created_subscriptions"`
	Duplicates           []string `json:"duplicates"`
	Errors               []string `json:"errors"`
}

type importRow struct {
	Email            string
	FirstName        string
	LastName         string
	MembershipNumber string
	MembershipType   types.MembershipType
	MembershipYear   int
}

// ImportCSV onboards historical members from a CSV with columns email,
// first_name, last_name, membership_number, membership_type and
// membership_year. Existing records are reported as duplicates, so a re-run
// of the same file changes nothing.
func (s *Service) ImportCSV(ctx context.Context, r io.Reader, actorUserID uint64) (*ImportReport, error) {
	report := &ImportReport{}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errs.Validationf("CSV header row is missing")
	}
	index := map[string]int{}
	for i, col := range header {
		index[normalizeColumn(col)] = i
	}
	var missing []string
	for _, col := range importColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, errs.Validationf("missing required columns: %s", strings.Join(missing, ", "))
	}

	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("Line %d: %v", line, err))
			s.audit.System(ctx, "member_import_row_error", map[string]any{"line": line, "error_count": 1}, &actorUserID)
			continue
		}

		row, rowErrs := parseImportRow(index, record)
		if row == nil {
			continue
		}
		report.Processed++
		if len(rowErrs) > 0 {
			report.Errors = append(report.Errors, fmt.Sprintf("Line %d: %s", line, strings.Join(rowErrs, "; ")))
			s.audit.System(ctx, "member_import_row_error", map[string]any{"line": line, "error_count": len(rowErrs)}, &actorUserID)
			continue
		}

		result, err := s.importRow(ctx, row)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("Line %d: %v", line, err))
			s.audit.System(ctx, "member_import_row_exception", map[string]any{"line": line, "exception": "import_row_failed"}, &actorUserID)
			continue
		}
		if result.duplicateCode != "" {
			report.Duplicates = append(report.Duplicates, fmt.Sprintf("Line %d: %s", line, result.duplicateMessage))
			s.audit.System(ctx, "member_import_row_duplicate", map[string]any{"line": line, "duplicate_code": result.duplicateCode}, &actorUserID)
			continue
		}

		if result.userCreated {
			report.CreatedUsers++
		}
		report.CreatedMembers++
		if result.subscriptionCreated {
			report.CreatedSubscriptions++
		}
		s.audit.Member(ctx, result.memberID, "member_imported_csv", map[string]any{
			"membership_year":      row.MembershipYear,
			"user_created":         result.userCreated,
			"subscription_created": result.subscriptionCreated,
		}, &actorUserID, nil)
	}

	s.audit.System(ctx, "member_import_completed", map[string]any{
		"processed":             report.Processed,
		"created_users":         report.CreatedUsers,
		"created_members":       report.CreatedMembers,
		"created_subscriptions": report.CreatedSubscriptions,
		"duplicates":            len(report.Duplicates),
		"errors":                len(report.Errors),
	}, &actorUserID)
	return report, nil
}

type importResult struct {
	memberID            uint64
	userCreated         bool
	subscriptionCreated bool
	duplicateCode       string
	duplicateMessage    string
}

func (s *Service) importRow(ctx context.Context, row *importRow) (*importResult, error) {
	var existingCount int64
	err := s.db.WithContext(ctx).Model(&models.Member{}).
		Where("membership_number = ?", row.MembershipNumber).
		Count(&existingCount).Error
	if err != nil {
		return nil, fmt.Errorf("check membership number: %w", err)
	}
	if existingCount > 0 {
		return &importResult{
			duplicateCode:    "membership_number_exists",
			duplicateMessage: fmt.Sprintf("Membership number already exists (%s)", row.MembershipNumber),
		}, nil
	}

	var user models.User
	userCreated := false
	err = s.db.WithContext(ctx).Where("email = ?", strings.ToLower(row.Email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		created, err := s.identity.EnsureUser(ctx, row.Email, row.FirstName, row.LastName, types.MembershipRoleMember)
		if err != nil {
			return nil, err
		}
		user = *created
		userCreated = true
	} else if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}

	var memberCount int64
	err = s.db.WithContext(ctx).Model(&models.Member{}).
		Where("user_id = ?", user.ID).
		Count(&memberCount).Error
	if err != nil {
		return nil, fmt.Errorf("check member: %w", err)
	}
	if memberCount > 0 {
		return &importResult{
			duplicateCode:    "user_already_member",
			duplicateMessage: fmt.Sprintf("Member already exists for email %s", row.Email),
		}, nil
	}

	now := time.Now()
	member := &models.Member{
		UserID:           user.ID,
		MembershipNumber: lo.ToPtr(row.MembershipNumber),
		MembershipType:   row.MembershipType,
		Status:           types.MemberStatusActive,
		ApprovedAt:       &now,
		ActivatedAt:      &now,
	}
	if err := s.db.WithContext(ctx).Create(member).Error; err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}

	subCreated, err := s.createActiveSubscriptionIfMissing(ctx, member.ID, row.MembershipType, row.MembershipYear)
	if err != nil {
		return nil, err
	}
	return &importResult{
		memberID:            member.ID,
		userCreated:         userCreated,
		subscriptionCreated: subCreated,
	}, nil
}

func (s *Service) createActiveSubscriptionIfMissing(ctx context.Context, memberID uint64, membershipType types.MembershipType, membershipYear int) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("member_id = ? AND membership_year = ?", memberID, membershipYear).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check subscription: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	amountDue, err := s.cfg.Membership.BasePrice(membershipType)
	if err != nil {
		amountDue = decimal.NewFromInt(145)
	}
	if amountDue.IsNegative() {
		amountDue = decimal.Zero
	}

	sub := &models.Subscription{
		MemberID:       memberID,
		MembershipYear: membershipYear,
		StartDate:      time.Date(membershipYear-1, time.July, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(membershipYear, time.June, 30, 0, 0, 0, 0, time.UTC),
		AmountDue:      amountDue,
		AmountPaid:     amountDue,
		Status:         types.SubscriptionStatusActive,
		DueDate:        time.Date(membershipYear-1, time.July, 1, 0, 0, 0, 0, time.UTC),
		PaidAt:         lo.ToPtr(time.Now()),
	}
	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		return false, fmt.Errorf("create subscription: %w", err)
	}
	return true, nil
}

func parseImportRow(index map[string]int, record []string) (*importRow, []string) {
	field := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	row := &importRow{
		Email:            field("email"),
		FirstName:        field("first_name"),
		LastName:         field("last_name"),
		MembershipNumber: field("membership_number"),
		MembershipType:   types.MembershipType(strings.ToLower(field("membership_type"))),
	}
	row.MembershipYear, _ = strconv.Atoi(field("membership_year"))

	if row.Email == "" && row.FirstName == "" && row.LastName == "" && row.MembershipNumber == "" {
		return nil, nil
	}

	var rowErrs []string
	if _, err := mail.ParseAddress(row.Email); err != nil {
		rowErrs = append(rowErrs, "Invalid email")
	}
	if row.FirstName == "" {
		rowErrs = append(rowErrs, "First name is required")
	}
	if row.LastName == "" {
		rowErrs = append(rowErrs, "Last name is required")
	}
	if row.MembershipNumber == "" {
		rowErrs = append(rowErrs, "Membership number is required")
	}
	if !row.MembershipType.Valid() {
		rowErrs = append(rowErrs, "Membership type must be one of: associate, corporate, senior")
	}
	if row.MembershipYear < 2000 || row.MembershipYear > 2100 {
		rowErrs = append(rowErrs, "Membership year is invalid")
	}
	return row, rowErrs
}

func normalizeColumn(col string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\uFEFF")))
}
