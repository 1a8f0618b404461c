package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the stock-keeping side of the catalog. Orders snapshot
// name/SKU/price at creation, so product rows stay freely mutable.
type Product struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	Name       string          `gorm:"size:255;not null" json:"name"`
	SKU        string          `gorm:"size:100;uniqueIndex;not null" json:"sku"`
	Price      decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"price"`
	Stock      int             `gorm:"not null;default:0" json:"stock"`
	SalesCount int             `gorm:"not null;default:0" json:"sales_count"`
	IsActive   bool            `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}
