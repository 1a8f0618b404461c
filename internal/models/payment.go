package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payment statuses.
const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusCompleted  = "completed"
	PaymentStatusFailed     = "failed"
	PaymentStatusCancelled  = "cancelled"
	PaymentStatusRefunded   = "refunded"
)

// Transaction types for the payment audit trail.
const (
	TransactionTypeAuthorization = "authorization"
	TransactionTypeCapture       = "capture"
	TransactionTypeRefund        = "refund"
	TransactionTypeVoid          = "void"
	TransactionTypeWebhook       = "webhook"
)

// Payment tracks one attempt to pay for an order. Several payments may
// exist per order (retries), but only one should ever reach completed -
// that invariant is enforced by the repository, not the schema.
type Payment struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	PaymentID string `gorm:"size:100;uniqueIndex;not null" json:"payment_id"`
	OrderID   uint   `gorm:"not null;index" json:"order_id"`

	Gateway string `gorm:"size:20;not null" json:"gateway"`
	Status  string `gorm:"size:20;not null;index;default:'pending'" json:"status"`

	Amount   decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	Currency string          `gorm:"size:3;default:'UZS'" json:"currency"`

	// null until the gateway assigns one; unique so duplicate webhook
	// deliveries can never mint two rows for one gateway transaction
	GatewayTransactionID *string `gorm:"size:200;uniqueIndex" json:"gateway_transaction_id"`
	GatewayResponse      string  `gorm:"type:text" json:"gateway_response"` // raw JSON from gateway

	IPAddress string `gorm:"size:45" json:"ip_address"`
	UserAgent string `gorm:"type:text" json:"user_agent"`

	ErrorCode    string `gorm:"size:50" json:"error_code"`
	ErrorMessage string `gorm:"type:text" json:"error_message"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at"`

	Order Order `gorm:"foreignKey:OrderID" json:"-"`
}

func (Payment) TableName() string {
	return "payments"
}

// BeforeCreate assigns the payment id: PAY-<timestamp>-<random suffix>.
func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.PaymentID == "" {
		p.PaymentID = GenerateReference("PAY", 8)
	}
	return nil
}

// IsSuccessful reports whether the payment reached completed.
func (p *Payment) IsSuccessful() bool {
	return p.Status == PaymentStatusCompleted
}

// GatewayTxnID returns the gateway transaction id, or "" while the
// gateway has not assigned one.
func (p *Payment) GatewayTxnID() string {
	if p.GatewayTransactionID == nil {
		return ""
	}
	return *p.GatewayTransactionID
}

// Transaction is one immutable audit row per payment lifecycle event,
// storing request/response payloads for forensic replay.
type Transaction struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	PaymentID uint `gorm:"not null;index" json:"payment_id"`

	TransactionType string           `gorm:"size:20;not null" json:"transaction_type"`
	Amount          *decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount"`
	Status          string           `gorm:"size:50;not null" json:"status"`

	GatewayTransactionID string `gorm:"size:200" json:"gateway_transaction_id"`
	RequestData          string `gorm:"type:text" json:"request_data"`
	ResponseData         string `gorm:"type:text" json:"response_data"`

	IPAddress string    `gorm:"size:45" json:"ip_address"`
	Notes     string    `gorm:"type:text" json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}
