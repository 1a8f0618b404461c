package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order statuses. Flow: pending -> accepted -> packed -> on_the_way -> delivered,
// with cancellation allowed from the first three.
const (
	OrderStatusPending   = "pending"
	OrderStatusAccepted  = "accepted"
	OrderStatusPacked    = "packed"
	OrderStatusOnTheWay  = "on_the_way"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// Payment methods selectable at checkout. cash and card settle on delivery,
// the rest go through a gateway adapter.
const (
	PaymentMethodCash  = "cash"
	PaymentMethodCard  = "card"
	PaymentMethodClick = "click"
	PaymentMethodPayme = "payme"
	PaymentMethodUzum  = "uzum"
)

// Order is the central record of a customer purchase. The order number is
// generated once on create and never changes.
type Order struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	OrderNumber string `gorm:"size:50;uniqueIndex;not null" json:"order_number"`
	Status      string `gorm:"size:20;not null;index;default:'pending'" json:"status"`

	CustomerName  string `gorm:"size:200;not null" json:"customer_name"`
	CustomerEmail string `gorm:"size:255;not null" json:"customer_email"`
	CustomerPhone string `gorm:"size:20;not null" json:"customer_phone"`

	DeliveryAddress string `gorm:"type:text;not null" json:"delivery_address"`
	DeliveryCity    string `gorm:"size:100;not null" json:"delivery_city"`
	DeliveryRegion  string `gorm:"size:100" json:"delivery_region"`

	Currency       string          `gorm:"size:3;default:'UZS'" json:"currency"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"subtotal"`
	DeliveryFee    decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"delivery_fee"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"tax_amount"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"discount_amount"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"total_amount"`

	PaymentMethod string     `gorm:"size:20;not null" json:"payment_method"`
	IsPaid        bool       `gorm:"not null;default:false" json:"is_paid"`
	PaidAt        *time.Time `json:"paid_at"`

	CustomerNotes string `gorm:"type:text" json:"customer_notes"`
	AdminNotes    string `gorm:"type:text" json:"admin_notes"`

	CancelledBy        string     `gorm:"size:200" json:"cancelled_by"`
	CancellationReason string     `gorm:"type:text" json:"cancellation_reason"`
	CancelledAt        *time.Time `json:"cancelled_at"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeliveredAt *time.Time `json:"delivered_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
}

func (Order) TableName() string {
	return "orders"
}

// BeforeCreate assigns the order number: ORD-<timestamp>-<random suffix>.
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.OrderNumber == "" {
		o.OrderNumber = GenerateReference("ORD", 6)
	}
	return nil
}

// BeforeSave rejects negative monetary amounts. Totals must never go
// below zero regardless of discounts.
func (o *Order) BeforeSave(tx *gorm.DB) error {
	if o.Subtotal.IsNegative() || o.TotalAmount.IsNegative() {
		return fmt.Errorf("order %s: negative amount", o.OrderNumber)
	}
	return nil
}

// CanBeCancelled reports whether the order is still in a cancellable state.
func (o *Order) CanBeCancelled() bool {
	switch o.Status {
	case OrderStatusPending, OrderStatusAccepted, OrderStatusPacked:
		return true
	}
	return false
}

// IsCompleted reports whether the order reached its terminal delivered state.
func (o *Order) IsCompleted() bool {
	return o.Status == OrderStatusDelivered
}

// ItemsCount returns the total quantity across all line items.
func (o *Order) ItemsCount() int {
	n := 0
	for _, item := range o.Items {
		n += item.Quantity
	}
	return n
}

// MarkAsPaid sets the paid flag and timestamp. Calling it on an already
// paid order is a no-op so duplicate webhook deliveries are harmless.
func (o *Order) MarkAsPaid(now time.Time) bool {
	if o.IsPaid {
		return false
	}
	o.IsPaid = true
	o.PaidAt = &now
	return true
}

// OrderItem snapshots a product at the time of order creation. Later product
// mutations never touch these rows.
type OrderItem struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	OrderID   uint `gorm:"not null;index" json:"order_id"`
	ProductID uint `gorm:"not null" json:"product_id"`

	ProductName string          `gorm:"size:255;not null" json:"product_name"`
	ProductSKU  string          `gorm:"size:100;not null" json:"product_sku"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"unit_price"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"subtotal"`

	CreatedAt time.Time `json:"created_at"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

// GetSubtotal computes unit price times quantity.
func (i *OrderItem) GetSubtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderStatusHistory is an append-only audit row, one per transition.
// Rows are never updated or deleted after insert.
type OrderStatusHistory struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	OrderID    uint      `gorm:"not null;index" json:"order_id"`
	FromStatus string    `gorm:"size:20" json:"from_status"`
	ToStatus   string    `gorm:"size:20;not null" json:"to_status"`
	ChangedBy  string    `gorm:"size:200" json:"changed_by"`
	Notes      string    `gorm:"type:text" json:"notes"`
	CreatedAt  time.Time `json:"created_at"`
}

func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}

// GenerateReference builds identifiers like ORD-20240131120500-3FA2B1.
// suffixLen hex characters of a fresh UUID keep them collision-safe.
func GenerateReference(prefix string, suffixLen int) string {
	ts := time.Now().Format("20060102150405")
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:suffixLen]
	return fmt.Sprintf("%s-%s-%s", prefix, ts, suffix)
}
