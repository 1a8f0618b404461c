package service

import (
	"market/internal/models"
	"market/pkg/logger"

	"go.uber.org/zap"
)

// Notifier receives order lifecycle events. Delivery (email, push) is an
// external concern; this boundary only fires the events.
type Notifier interface {
	OrderCreated(o *models.Order)
	OrderStatusChanged(o *models.Order, fromStatus string)
	OrderPaid(o *models.Order)
}

// LogNotifier writes notification events to the structured log. Stands in
// for a mail/push sender.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) OrderCreated(o *models.Order) {
	logger.Log.Info("notify: order created",
		zap.String("order_number", o.OrderNumber),
		zap.String("customer_email", o.CustomerEmail),
		zap.String("total", o.TotalAmount.String()),
	)
}

func (n *LogNotifier) OrderStatusChanged(o *models.Order, fromStatus string) {
	logger.Log.Info("notify: order status changed",
		zap.String("order_number", o.OrderNumber),
		zap.String("from", fromStatus),
		zap.String("to", o.Status),
		zap.String("customer_email", o.CustomerEmail),
	)
}

func (n *LogNotifier) OrderPaid(o *models.Order) {
	logger.Log.Info("notify: order paid",
		zap.String("order_number", o.OrderNumber),
		zap.String("customer_email", o.CustomerEmail),
	)
}
