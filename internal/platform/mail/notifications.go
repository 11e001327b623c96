package mail

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Notification is a typed outbound event with a fixed payload schema. Each
// constructor below owns the subject and body for one event type so the
// services never concatenate presentation strings.
type Notification struct {
	Subject string
	Body    string
}

// NewApplicationReceived goes to the pre-approval officers (or the site
// admin fallback) when a public submission lands.
func NewApplicationReceived(applicationID uint64, firstName, lastName, email, membershipType, reviewURL string) Notification {
	return Notification{
		Subject: fmt.Sprintf("New membership application #%d", applicationID),
		Body: fmt.Sprintf("A new membership application requires pre-approval.\n\n"+
			"Application ID: %d\n"+
			"Applicant: %s %s\n"+
			"Email: %s\n"+
			"Membership type: %s\n"+
			"Review URL: %s\n",
			applicationID, firstName, lastName, email, membershipType, reviewURL),
	}
}

// NewBoardReviewRequest goes to every enabled director when an application
// enters board voting.
func NewBoardReviewRequest(applicationID uint64, firstName, lastName, membershipType, reviewURL string) Notification {
	return Notification{
		Subject: fmt.Sprintf("Board review required: application #%d", applicationID),
		Body: fmt.Sprintf("A membership application is now pending board approval.\n\n"+
			"Application ID: %d\n"+
			"Applicant: %s %s\n"+
			"Membership type: %s\n"+
			"Review URL: %s\n",
			applicationID, firstName, lastName, membershipType, reviewURL),
	}
}

// NewDirectorVoteReminder goes to directors whose vote is still unanswered.
func NewDirectorVoteReminder(applicationID uint64) Notification {
	return Notification{
		Subject: "Director vote reminder",
		Body: fmt.Sprintf("Reminder: Application #%d is still awaiting your board vote.\n"+
			"Please log in and submit your response.", applicationID),
	}
}

// NewApplicationApproved goes to the applicant after an approved finalize,
// with the password setup link and the pro-rated amount due.
func NewApplicationApproved(setPasswordLink string, amountDue decimal.Decimal, currency, bankInstructions string) Notification {
	body := fmt.Sprintf("Your application has been approved by the board.\n\n"+
		"Please complete your account/password setup: %s\n"+
		"Amount due: %s %s\n\n",
		setPasswordLink, currency, amountDue.StringFixed(2))
	if bankInstructions != "" {
		body += "Bank transfer instructions:\n" + bankInstructions + "\n"
	}
	return Notification{
		Subject: "Your IEI Membership Application Was Approved",
		Body:    body,
	}
}

// NewApplicationApprovedOfficerNotice goes to the pre-approval officers when
// an applicant moves to pending payment.
func NewApplicationApprovedOfficerNotice(applicationID uint64, applicantName, employer string) Notification {
	body := fmt.Sprintf("Application #%d approved. Applicant is now pending payment.\n\n", applicationID)
	if applicantName != "" {
		body += "Applicant: " + applicantName + "\n"
	}
	if employer != "" {
		body += "Company: " + employer + "\n"
	}
	return Notification{
		Subject: "Application approved and moved to payment pending",
		Body:    body,
	}
}

// NewApplicationRejected goes to the applicant after a rejected finalize.
func NewApplicationRejected() Notification {
	return Notification{
		Subject: "Update on Your Membership Application",
		Body: "Thank you for your application.\n\n" +
			"After review by the board, we are unable to progress your application to the next stage at this time.\n\n" +
			"If you believe additional information may assist your application, please contact us.\n\n" +
			"We appreciate your interest.",
	}
}

// NewMembershipActivated goes to the member once payment is reconciled.
func NewMembershipActivated(displayName, membershipNumber string, amount decimal.Decimal, currency, periodStart, periodEnd, portalURL string) Notification {
	greeting := "Welcome to IEI"
	if displayName != "" {
		greeting += ", " + displayName
	}
	return Notification{
		Subject: "IEI Membership Activated",
		Body: fmt.Sprintf("%s!\n\n"+
			"Your payment has been received and your IEI membership is now active.\n\n"+
			"Membership number: %s\n"+
			"Amount paid: %s %s\n"+
			"Subscription period: %s to %s\n\n"+
			"Visit your member area: %s\n",
			greeting, membershipNumber, currency, amount.StringFixed(2), periodStart, periodEnd, portalURL),
	}
}
