package models

import (
	"time"

	"github.com/jameswitika/iei.org.au/pkg/types"
)

// Application is created on public submission and mutated only by the
// lifecycle and board services. Rows are never hard-deleted.
type Application struct {
	ID          uint64                  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	PublicToken string                  `gorm:"column:public_token;type:varchar(36);not null;uniqueIndex" json:"public_token"`
	Status      types.ApplicationStatus `gorm:"column:status;type:varchar(50);not null;default:pending_preapproval;index" json:"status"`

	Email      string `gorm:"column:applicant_email;type:varchar(190);not null;index" json:"applicant_email"`
	FirstName  string `gorm:"column:applicant_first_name;type:varchar(100);not null" json:"applicant_first_name"`
	MiddleName string `gorm:"column:applicant_middle_name;type:varchar(100)" json:"applicant_middle_name"`
	LastName   string `gorm:"column:applicant_last_name;type:varchar(100);not null" json:"applicant_last_name"`

	AddressLine1 string `gorm:"column:address_line_1;type:varchar(190)" json:"address_line_1"`
	AddressLine2 string `gorm:"column:address_line_2;type:varchar(190)" json:"address_line_2"`
	Suburb       string `gorm:"column:suburb;type:varchar(100)" json:"suburb"`
	State        string `gorm:"column:state;type:varchar(10)" json:"state"`
	Postcode     string `gorm:"column:postcode;type:varchar(10)" json:"postcode"`
	Phone        string `gorm:"column:phone;type:varchar(40)" json:"phone"`
	Mobile       string `gorm:"column:mobile;type:varchar(40)" json:"mobile"`

	Employer    string `gorm:"column:employer;type:varchar(190)" json:"employer"`
	JobPosition string `gorm:"column:job_position;type:varchar(190)" json:"job_position"`

	MembershipType types.MembershipType `gorm:"column:membership_type;type:varchar(50);not null" json:"membership_type"`

	NominationStatus       types.NominationStatus `gorm:"column:nomination_status;type:varchar(50)" json:"nomination_status"`
	NominatingMemberNumber string                 `gorm:"column:nominating_member_number;type:varchar(40)" json:"nominating_member_number"`
	NominatingMemberName   string                 `gorm:"column:nominating_member_name;type:varchar(190)" json:"nominating_member_name"`
	SignatureText          string                 `gorm:"column:signature_text;type:varchar(190)" json:"signature_text"`

	PreapprovalOfficerUserID *uint64    `gorm:"column:preapproval_officer_user_id" json:"preapproval_officer_user_id"`
	PreapprovalAt            *time.Time `gorm:"column:preapproval_at" json:"preapproval_at"`
	BoardFinalisedAt         *time.Time `gorm:"column:board_finalised_at" json:"board_finalised_at"`

	SubmittedAt time.Time `gorm:"column:submitted_at;not null;index" json:"submitted_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Application) TableName() string {
	return "applications"
}

func (a *Application) ApplicantName() string {
	if a.MiddleName != "" {
		return a.FirstName + " " + a.MiddleName + " " + a.LastName
	}
	return a.FirstName + " " + a.LastName
}

// ApplicationFile is the metadata row for a stored attachment. The bytes live
// on disk under a generated storage filename.
type ApplicationFile struct {
	ID               uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ApplicationID    uint64    `gorm:"column:application_id;not null;index" json:"application_id"`
	FileLabel        string    `gorm:"column:file_label;type:varchar(120);not null" json:"file_label"`
	OriginalFilename string    `gorm:"column:original_filename;type:varchar(255);not null" json:"original_filename"`
	StorageFilename  string    `gorm:"column:storage_filename;type:varchar(255);not null;uniqueIndex" json:"storage_filename"`
	MimeType         string    `gorm:"column:mime_type;type:varchar(120);not null;index" json:"mime_type"`
	FileSizeBytes    int64     `gorm:"column:file_size_bytes;not null;default:0" json:"file_size_bytes"`
	UploadedByUserID *uint64   `gorm:"column:uploaded_by_user_id" json:"uploaded_by_user_id"`
	CreatedAt        time.Time `json:"created_at"`
}

func (ApplicationFile) TableName() string {
	return "application_files"
}
