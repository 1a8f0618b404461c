package repository

import (
	"errors"
	"time"

	"market/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(p *models.Payment) error {
	return r.db.Create(p).Error
}

func (r *PaymentRepository) Save(p *models.Payment) error {
	return r.db.Save(p).Error
}

func (r *PaymentRepository) GetByPaymentID(paymentID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.Where("payment_id = ?", paymentID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByGatewayTransactionID(id string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.Where("gateway_transaction_id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetOrCreateByGatewayTransactionID returns the payment keyed by the
// gateway's own transaction id, creating it from defaults when absent.
// Row locks cannot guard a row that does not exist yet, so the unique
// index on gateway_transaction_id is the real arbiter: of two concurrent
// duplicate deliveries one insert wins and the loser fetches the winner.
func (r *PaymentRepository) GetOrCreateByGatewayTransactionID(id string, defaults models.Payment) (*models.Payment, bool, error) {
	var p models.Payment
	created := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("gateway_transaction_id = ?", id).First(&p).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		p = defaults
		p.GatewayTransactionID = &id
		if err := tx.Create(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return tx.Clauses(clause.Locking{Strength: "UPDATE"}).
					Where("gateway_transaction_id = ?", id).First(&p).Error
			}
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &p, created, nil
}

// Complete marks the payment completed and cascades to marking the order
// paid, all under row locks in a single transaction. Idempotent: a payment
// already completed is returned unchanged. A second payment can never
// complete against an order that already has a completed one.
func (r *PaymentRepository) Complete(gatewayTxnID string) (*models.Payment, error) {
	return r.complete("gateway_transaction_id = ?", gatewayTxnID)
}

// CompleteByPaymentID is Complete keyed by our own payment reference,
// used when the caller holds a payment rather than a gateway callback.
func (r *PaymentRepository) CompleteByPaymentID(paymentID string) (*models.Payment, error) {
	return r.complete("payment_id = ?", paymentID)
}

func (r *PaymentRepository) complete(where string, arg any) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(where, arg).First(&p).Error; err != nil {
			return err
		}
		if p.Status == models.PaymentStatusCompleted {
			return nil
		}
		var other int64
		if err := tx.Model(&models.Payment{}).
			Where("order_id = ? AND status = ? AND id <> ?", p.OrderID, models.PaymentStatusCompleted, p.ID).
			Count(&other).Error; err != nil {
			return err
		}
		if other > 0 {
			return models.ErrAlreadyPaid
		}
		now := time.Now()
		p.Status = models.PaymentStatusCompleted
		p.CompletedAt = &now
		if err := tx.Model(&p).Select("status", "completed_at").Updates(&p).Error; err != nil {
			return err
		}

		var o models.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&o, p.OrderID).Error; err != nil {
			return err
		}
		if o.MarkAsPaid(now) {
			if err := tx.Model(&o).Select("is_paid", "paid_at").Updates(&o).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CancelByGatewayTransactionID flips the payment to cancelled under a row lock.
func (r *PaymentRepository) CancelByGatewayTransactionID(id string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("gateway_transaction_id = ?", id).First(&p).Error; err != nil {
			return err
		}
		if p.Status == models.PaymentStatusCancelled {
			return nil
		}
		p.Status = models.PaymentStatusCancelled
		return tx.Model(&p).Select("status").Updates(&p).Error
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Refund applies the refunded status and the refund audit row as one
// all-or-nothing unit of work.
func (r *PaymentRepository) Refund(p *models.Payment, txn *models.Transaction) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(p).Select("status").Updates(p).Error; err != nil {
			return err
		}
		txn.PaymentID = p.ID
		return tx.Create(txn).Error
	})
}

// LogTransaction appends one immutable audit row.
func (r *PaymentRepository) LogTransaction(t *models.Transaction) error {
	return r.db.Create(t).Error
}
