package types

type MembershipType string

const (
	MembershipTypeAssociate MembershipType = "associate"
	MembershipTypeCorporate MembershipType = "corporate"
	MembershipTypeSenior    MembershipType = "senior"
)

func (t MembershipType) Valid() bool {
	switch t {
	case MembershipTypeAssociate, MembershipTypeCorporate, MembershipTypeSenior:
		return true
	}
	return false
}

type ApplicationStatus string

const (
	ApplicationStatusPendingPreapproval   ApplicationStatus = "pending_preapproval"
	ApplicationStatusRejectedPreapproval  ApplicationStatus = "rejected_preapproval"
	ApplicationStatusPendingBoardApproval ApplicationStatus = "pending_board_approval"
	ApplicationStatusApproved             ApplicationStatus = "approved"
	ApplicationStatusRejectedBoard        ApplicationStatus = "rejected_board"
)

func (s ApplicationStatus) Terminal() bool {
	switch s {
	case ApplicationStatusApproved, ApplicationStatusRejectedPreapproval, ApplicationStatusRejectedBoard:
		return true
	}
	return false
}

type VoteChoice string

const (
	VoteChoiceUnanswered VoteChoice = "unanswered"
	VoteChoiceApproved   VoteChoice = "approved"
	VoteChoiceRejected   VoteChoice = "rejected"
)

type NominationStatus string

const (
	NominationStatusSelfNominated     NominationStatus = "self_nominated"
	NominationStatusNominatedByMember NominationStatus = "nominated_by_member"
)

type MemberStatus string

const (
	MemberStatusPendingPayment MemberStatus = "pending_payment"
	MemberStatusActive         MemberStatus = "active"
	MemberStatusLapsed         MemberStatus = "lapsed"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPendingPayment SubscriptionStatus = "pending_payment"
	SubscriptionStatusOverdue        SubscriptionStatus = "overdue"
	SubscriptionStatusLapsed         SubscriptionStatus = "lapsed"
	SubscriptionStatusActive         SubscriptionStatus = "active"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

type PaymentGateway string

const (
	PaymentGatewayStripe PaymentGateway = "stripe"
	PaymentGatewayPayPal PaymentGateway = "paypal"
	PaymentGatewayBank   PaymentGateway = "bank_transfer"
	PaymentGatewayManual PaymentGateway = "manual"
)

// MembershipRole mirrors the host user system's access levels. The core only
// stores the role and emits assignment events; capability enforcement lives
// with the host.
type MembershipRole string

const (
	MembershipRoleApplicant          MembershipRole = "applicant"
	MembershipRoleDirector           MembershipRole = "director"
	MembershipRolePreapprovalOfficer MembershipRole = "preapproval_officer"
	MembershipRoleMember             MembershipRole = "member"
	MembershipRolePendingPayment     MembershipRole = "pending_payment"
)

// AUStateCodes is the fixed set accepted on application submission.
var AUStateCodes = map[string]bool{
	"ACT": true, "NSW": true, "NT": true, "QLD": true,
	"SA": true, "TAS": true, "VIC": true, "WA": true,
}
