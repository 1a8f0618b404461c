package gateway

import (
	"fmt"

	"market/internal/models"

	"github.com/shopspring/decimal"
)

// Gateway is the capability set every payment provider adapter implements.
// Webhook handling is provider-shaped and lives on the concrete adapters.
type Gateway interface {
	Name() string
	CreatePayment(amount decimal.Decimal, currency, orderRef, description, returnURL string) (*CreateResult, error)
	VerifyPayment(transactionID string) (*VerifyResult, error)
	RefundPayment(transactionID string, amount *decimal.Decimal, reason string) (*RefundResult, error)
}

// OrderStore is the slice of order persistence the adapters need.
type OrderStore interface {
	GetByNumber(number string) (*models.Order, error)
	MarkPaid(number string) (*models.Order, error)
}

// PaymentStore is the slice of payment persistence the adapters need.
// Implementations must make Complete and the get-or-create safe under
// concurrent duplicate deliveries (row lock or equivalent).
type PaymentStore interface {
	GetByGatewayTransactionID(id string) (*models.Payment, error)
	GetOrCreateByGatewayTransactionID(id string, defaults models.Payment) (*models.Payment, bool, error)
	Complete(gatewayTxnID string) (*models.Payment, error)
	CancelByGatewayTransactionID(id string) (*models.Payment, error)
	LogTransaction(t *models.Transaction) error
}

type CreateResult struct {
	TransactionID string `json:"transaction_id"`
	PaymentURL    string `json:"payment_url"`
	Status        string `json:"status"`
	Gateway       string `json:"gateway"`
}

type VerifyResult struct {
	IsSuccessful bool                   `json:"is_successful"`
	Status       string                 `json:"status"`
	Amount       decimal.Decimal        `json:"amount"`
	Details      map[string]interface{} `json:"details"`
}

type RefundResult struct {
	Success       bool                   `json:"success"`
	TransactionID string                 `json:"transaction_id"`
	Message       string                 `json:"message,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
}

// GatewayError wraps any failure talking to or validating against a
// provider. Initiation failures surface as this type, never silently.
type GatewayError struct {
	Gateway string
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Gateway, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Gateway, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Registry maps gateway enum values to adapters. Dispatch is an explicit
// map lookup, nothing reflective.
type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry() *Registry {
	return &Registry{gateways: make(map[string]Gateway)}
}

func (r *Registry) Register(name string, g Gateway) {
	r.gateways[name] = g
}

func (r *Registry) Get(name string) (Gateway, bool) {
	g, ok := r.gateways[name]
	return g, ok
}
