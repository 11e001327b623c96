package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/jameswitika/iei.org.au/pkg/types"
)

// Payment is an append-mostly ledger row. GatewayTransactionID is the
// de-duplication key: re-delivery of the same transaction id updates the
// existing row rather than inserting a second one.
type Payment struct {
	ID             uint64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	MemberID       uint64  `gorm:"column:member_id;not null;index" json:"member_id"`
	SubscriptionID *uint64 `gorm:"column:subscription_id;index" json:"subscription_id"`
	ApplicationID  *uint64 `gorm:"column:application_id;index" json:"application_id"`

	Amount   decimal.Decimal `gorm:"column:amount;type:decimal(10,2);not null" json:"amount"`
	Currency string          `gorm:"column:currency;type:varchar(3);not null;default:AUD" json:"currency"`

	PaymentMethod        string               `gorm:"column:payment_method;type:varchar(40);not null;default:bank_transfer" json:"payment_method"`
	Gateway              types.PaymentGateway `gorm:"column:gateway;type:varchar(40)" json:"gateway"`
	GatewayTransactionID *string              `gorm:"column:gateway_transaction_id;type:varchar(190);uniqueIndex" json:"gateway_transaction_id"`

	Status     types.PaymentStatus `gorm:"column:status;type:varchar(30);not null;default:pending;index" json:"status"`
	Reference  string              `gorm:"column:reference;type:varchar(100)" json:"reference"`
	ReceivedAt *time.Time          `gorm:"column:received_at;index" json:"received_at"`

	// Meta carries the gateway payload fragments useful for support work.
	Meta datatypes.JSON `gorm:"column:meta;type:jsonb" json:"meta"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}
