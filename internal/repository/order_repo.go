package repository

import (
	"time"

	"market/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateWithItems persists the order with its line items, decrements stock
// for every item and appends the initial history row, all in one
// transaction. Stock is decremented with a guarded UPDATE so two
// concurrent checkouts cannot oversell.
func (r *OrderRepository) CreateWithItems(o *models.Order, history *models.OrderStatusHistory) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(o).Error; err != nil {
			return err
		}
		for _, item := range o.Items {
			res := tx.Model(&models.Product{}).
				Where("id = ? AND stock >= ?", item.ProductID, item.Quantity).
				Updates(map[string]interface{}{
					"stock":       gorm.Expr("stock - ?", item.Quantity),
					"sales_count": gorm.Expr("sales_count + ?", item.Quantity),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return models.ErrInsufficientStock
			}
		}
		history.OrderID = o.ID
		return tx.Create(history).Error
	})
}

func (r *OrderRepository) GetByID(id uint) (*models.Order, error) {
	var o models.Order
	if err := r.db.Preload("Items").First(&o, id).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) GetByNumber(number string) (*models.Order, error) {
	var o models.Order
	if err := r.db.Preload("Items").Where("order_number = ?", number).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) List(limit, offset int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.Preload("Items").Order("created_at DESC").Limit(limit).Offset(offset).Find(&orders).Error
	return orders, err
}

// UpdateStatus saves the order's new status and appends the history row
// atomically. History is written even when from and to are equal.
func (r *OrderRepository) UpdateStatus(o *models.Order, history *models.OrderStatusHistory) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(o).Error; err != nil {
			return err
		}
		history.OrderID = o.ID
		return tx.Create(history).Error
	})
}

// Cancel saves the cancelled order, restores each item's quantity to
// product stock and appends the history row in one transaction. The
// restock compensates the decrement done at creation, exactly once.
func (r *OrderRepository) Cancel(o *models.Order, history *models.OrderStatusHistory) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(o).Error; err != nil {
			return err
		}
		for _, item := range o.Items {
			if err := tx.Model(&models.Product{}).
				Where("id = ?", item.ProductID).
				Update("stock", gorm.Expr("stock + ?", item.Quantity)).Error; err != nil {
				return err
			}
		}
		history.OrderID = o.ID
		return tx.Create(history).Error
	})
}

// MarkPaid sets the paid flag under a row lock. Safe to call twice: the
// second call sees is_paid and leaves the original paid_at untouched.
func (r *OrderRepository) MarkPaid(orderNumber string) (*models.Order, error) {
	var o models.Order
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("order_number = ?", orderNumber).First(&o).Error; err != nil {
			return err
		}
		now := time.Now()
		if !o.MarkAsPaid(now) {
			return nil
		}
		return tx.Model(&o).Select("is_paid", "paid_at").Updates(&o).Error
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}
