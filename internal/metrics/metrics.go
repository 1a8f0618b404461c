package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "market_orders_created_total",
		Help: "Orders created via checkout",
	})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "market_orders_cancelled_total",
		Help: "Orders cancelled",
	})

	OrderStatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_order_status_transitions_total",
		Help: "Order status transitions by target status",
	}, []string{"to_status"})

	PaymentsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_payments_completed_total",
		Help: "Payments completed by gateway",
	}, []string{"gateway"})

	PaymentsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_payments_failed_total",
		Help: "Payments failed by gateway",
	}, []string{"gateway"})

	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_webhook_requests_total",
		Help: "Inbound gateway webhook requests by gateway and outcome",
	}, []string{"gateway", "outcome"})
)
