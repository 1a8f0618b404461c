package service

import (
	"testing"
	"time"

	"market/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeOrderStore struct {
	orders       map[string]*models.Order
	history      []*models.OrderStatusHistory
	restockCalls int
	nextID       uint
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[string]*models.Order), nextID: 1}
}

func (s *fakeOrderStore) CreateWithItems(o *models.Order, history *models.OrderStatusHistory) error {
	o.ID = s.nextID
	s.nextID++
	if o.OrderNumber == "" {
		o.OrderNumber = models.GenerateReference("ORD", 6)
	}
	s.orders[o.OrderNumber] = o
	history.OrderID = o.ID
	s.history = append(s.history, history)
	return nil
}

func (s *fakeOrderStore) GetByID(id uint) (*models.Order, error) {
	for _, o := range s.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeOrderStore) GetByNumber(number string) (*models.Order, error) {
	o, ok := s.orders[number]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return o, nil
}

func (s *fakeOrderStore) List(limit, offset int) ([]models.Order, error) {
	var out []models.Order
	for _, o := range s.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (s *fakeOrderStore) UpdateStatus(o *models.Order, history *models.OrderStatusHistory) error {
	history.OrderID = o.ID
	s.history = append(s.history, history)
	return nil
}

func (s *fakeOrderStore) Cancel(o *models.Order, history *models.OrderStatusHistory) error {
	s.restockCalls++
	history.OrderID = o.ID
	s.history = append(s.history, history)
	return nil
}

func (s *fakeOrderStore) MarkPaid(number string) (*models.Order, error) {
	o, ok := s.orders[number]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	o.MarkAsPaid(time.Now())
	return o, nil
}

type fakeProductStore struct {
	products []models.Product
}

func (s *fakeProductStore) GetByIDs(ids []uint) ([]models.Product, error) {
	var out []models.Product
	for _, p := range s.products {
		for _, id := range ids {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

type fakeNotifier struct {
	created       int
	statusChanged int
	paid          int
	lastFrom      string
}

func (n *fakeNotifier) OrderCreated(o *models.Order) { n.created++ }
func (n *fakeNotifier) OrderStatusChanged(o *models.Order, fromStatus string) {
	n.statusChanged++
	n.lastFrom = fromStatus
}
func (n *fakeNotifier) OrderPaid(o *models.Order) { n.paid++ }

func catalog() *fakeProductStore {
	return &fakeProductStore{products: []models.Product{
		{ID: 1, Name: "Kettle", SKU: "KET-01", Price: decimal.NewFromInt(120000), Stock: 5, IsActive: true},
		{ID: 2, Name: "Mug", SKU: "MUG-01", Price: decimal.NewFromInt(30000), Stock: 2, IsActive: true},
	}}
}

func checkoutInput(items ...CheckoutItem) CreateOrderInput {
	return CreateOrderInput{
		CustomerName:    "Aziz Karimov",
		CustomerEmail:   "aziz@example.com",
		CustomerPhone:   "+998901234567",
		DeliveryAddress: "Amir Temur 1",
		DeliveryCity:    "Tashkent",
		PaymentMethod:   models.PaymentMethodClick,
		Currency:        "UZS",
		Items:           items,
	}
}

func TestCreateOrderComputesTotals(t *testing.T) {
	store := newFakeOrderStore()
	svc := NewOrderService(store, catalog(), &fakeNotifier{}, false)

	order, err := svc.CreateOrder(checkoutInput(
		CheckoutItem{ProductID: 1, Quantity: 2},
		CheckoutItem{ProductID: 2, Quantity: 1},
	))
	require.NoError(t, err)

	// 2*120000 + 30000 = 270000, plus 20000 Tashkent delivery
	assert.True(t, order.Subtotal.Equal(decimal.NewFromInt(270000)), "subtotal %s", order.Subtotal)
	assert.True(t, order.DeliveryFee.Equal(decimal.NewFromInt(20000)))
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(290000)), "total %s", order.TotalAmount)
	assert.Equal(t, models.OrderStatusPending, order.Status)
}

func TestCreateOrderSnapshotsProducts(t *testing.T) {
	store := newFakeOrderStore()
	svc := NewOrderService(store, catalog(), &fakeNotifier{}, false)

	order, err := svc.CreateOrder(checkoutInput(CheckoutItem{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)

	require.Len(t, order.Items, 1)
	item := order.Items[0]
	assert.Equal(t, "Kettle", item.ProductName)
	assert.Equal(t, "KET-01", item.ProductSKU)
	assert.True(t, item.UnitPrice.Equal(decimal.NewFromInt(120000)))
	assert.True(t, item.Subtotal.Equal(decimal.NewFromInt(120000)))
}

func TestCreateOrderRegionalDeliveryFee(t *testing.T) {
	store := newFakeOrderStore()
	svc := NewOrderService(store, catalog(), &fakeNotifier{}, false)

	input := checkoutInput(CheckoutItem{ProductID: 2, Quantity: 1})
	input.DeliveryCity = "Samarkand"

	order, err := svc.CreateOrder(input)
	require.NoError(t, err)
	assert.True(t, order.DeliveryFee.Equal(decimal.NewFromInt(35000)))
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	store := newFakeOrderStore()
	svc := NewOrderService(store, catalog(), &fakeNotifier{}, false)

	_, err := svc.CreateOrder(checkoutInput(CheckoutItem{ProductID: 2, Quantity: 3}))
	assert.ErrorIs(t, err, models.ErrInsufficientStock)
	assert.Empty(t, store.orders, "no order may be persisted")
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	svc := NewOrderService(newFakeOrderStore(), catalog(), &fakeNotifier{}, false)

	_, err := svc.CreateOrder(checkoutInput(CheckoutItem{ProductID: 99, Quantity: 1}))
	assert.Error(t, err)
}

func TestCreateOrderEmptyCart(t *testing.T) {
	svc := NewOrderService(newFakeOrderStore(), catalog(), &fakeNotifier{}, false)

	_, err := svc.CreateOrder(checkoutInput())
	assert.Error(t, err)
}

func TestCreateOrderWritesHistoryAndNotifies(t *testing.T) {
	store := newFakeOrderStore()
	notifier := &fakeNotifier{}
	svc := NewOrderService(store, catalog(), notifier, false)

	_, err := svc.CreateOrder(checkoutInput(CheckoutItem{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)

	require.Len(t, store.history, 1)
	assert.Equal(t, models.OrderStatusPending, store.history[0].ToStatus)
	assert.Equal(t, "aziz@example.com", store.history[0].ChangedBy)
	assert.Equal(t, 1, notifier.created)
}

func TestUpdateStatusPermissiveAllowsJump(t *testing.T) {
	store := newFakeOrderStore()
	notifier := &fakeNotifier{}
	svc := NewOrderService(store, catalog(), notifier, false)

	order, err := svc.CreateOrder(checkoutInput(CheckoutItem{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)

	err = svc.UpdateStatus(order, models.OrderStatusDelivered, "admin@example.com", "")
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusDelivered, order.Status)
	assert.NotNil(t, order.DeliveredAt)
	assert.Equal(t, models.OrderStatusPending, notifier.lastFrom)
}

func TestUpdateStatusDeliveredSettlesCashOrder(t *testing.T) {
	store := newFakeOrderStore()
	notifier := &fakeNotifier{}
	svc := NewOrderService(store, catalog(), notifier, false)

	input := checkoutInput(CheckoutItem{ProductID: 1, Quantity: 1})
	input.PaymentMethod = models.PaymentMethodCash
	order, err := svc.CreateOrder(input)
	require.NoError(t, err)

	require.NoError(t, svc.UpdateStatus(order, models.OrderStatusDelivered, "courier@example.com", ""))

	assert.True(t, order.IsPaid)
	assert.NotNil(t, order.PaidAt)
	assert.Equal(t, 1, notifier.paid)
}

func TestUpdateStatusDeliveredCardOrderSettlesOnce(t *testing.T) {
	store := newFakeOrderStore()
	notifier := &fakeNotifier{}
	svc := NewOrderService(store, catalog(), notifier, false)

	input := checkoutInput(CheckoutItem{ProductID: 1, Quantity: 1})
	input.PaymentMethod = models.PaymentMethodCard
	order, err := svc.CreateOrder(input)
	require.NoError(t, err)

	require.NoError(t, svc.UpdateStatus(order, models.OrderStatusDelivered, "courier@example.com", ""))
	paidAt := order.PaidAt
	require.NoError(t, svc.UpdateStatus(order, models.OrderStatusDelivered, "courier@example.com", "repeat"))

	assert.Equal(t, paidAt, order.PaidAt, "repeat delivery must not re-settle")
	assert.Equal(t, 1, notifier.paid)
}

func TestUpdateStatusDeliveredLeavesGatewayOrderUnpaid(t *testing.T) {
	store := newFakeOrderStore()
	notifier := &fakeNotifier{}
	svc := NewOrderService(store, catalog(), notifier, false)

	order, err := svc.CreateOrder(checkoutInput(CheckoutItem{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)

	require.NoError(t, svc.UpdateStatus(order, models.OrderStatusDelivered, "courier@example.com", ""))

	assert.False(t, order.IsPaid, "click orders settle via webhook, not delivery")
	assert.Equal(t, 0, notifier.paid)
}

func TestUpdateStatusStrictRejectsJump(t *testing.T) {
	store := newFakeOrderStore()
	svc := NewOrderService(store, catalog(), &fakeNotifier{}, true)

	order, err := svc.CreateOrder(checkoutInput(CheckoutItem{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)

	err = svc.UpdateStatus(order, models.OrderStatusDelivered, "admin@example.com", "")
	var stateErr *models.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, models.OrderStatusPending, order.Status, "order must stay untouched")
}

func TestUpdateStatusStrictAllowsNextStep(t *testing.T) {
	store := newFakeOrderStore()
	svc := NewOrderService(store, catalog(), &fakeNotifier{}, true)

	order, err := svc.CreateOrder(checkoutInput(CheckoutItem{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)

	require.NoError(t, svc.UpdateStatus(order, models.OrderStatusAccepted, "admin@example.com", ""))
	require.NoError(t, svc.UpdateStatus(order, models.OrderStatusPacked, "admin@example.com", ""))
	assert.Equal(t, models.OrderStatusPacked, order.Status)
}

func TestUpdateStatusUnknownStatus(t *testing.T) {
	store := newFakeOrderStore()
	svc := NewOrderService(store, catalog(), &fakeNotifier{}, false)

	order, err := svc.CreateOrder(checkoutInput(CheckoutItem{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)

	assert.Error(t, svc.UpdateStatus(order, "teleported", "admin@example.com", ""))
}

func TestUpdateStatusAppendsHistoryEveryTime(t *testing.T) {
	store := newFakeOrderStore()
	svc := NewOrderService(store, catalog(), &fakeNotifier{}, false)

	order, err := svc.CreateOrder(checkoutInput(CheckoutItem{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)

	require.NoError(t, svc.UpdateStatus(order, models.OrderStatusAccepted, "admin@example.com", ""))
	require.NoError(t, svc.UpdateStatus(order, models.OrderStatusAccepted, "admin@example.com", "repeat"))

	// create + two updates, the no-op transition included
	assert.Len(t, store.history, 3)
}

func TestCancelRestoresStockOnce(t *testing.T) {
	store := newFakeOrderStore()
	notifier := &fakeNotifier{}
	svc := NewOrderService(store, catalog(), notifier, false)

	order, err := svc.CreateOrder(checkoutInput(CheckoutItem{ProductID: 1, Quantity: 2}))
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(order, "aziz@example.com", "changed my mind"))

	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, "aziz@example.com", order.CancelledBy)
	assert.Equal(t, "changed my mind", order.CancellationReason)
	assert.NotNil(t, order.CancelledAt)
	assert.Equal(t, 1, store.restockCalls)

	// second cancel is rejected and must not restock again
	err = svc.Cancel(order, "aziz@example.com", "again")
	var stateErr *models.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, 1, store.restockCalls)
}

func TestCancelRejectedAfterShipping(t *testing.T) {
	store := newFakeOrderStore()
	svc := NewOrderService(store, catalog(), &fakeNotifier{}, false)

	order, err := svc.CreateOrder(checkoutInput(CheckoutItem{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)
	require.NoError(t, svc.UpdateStatus(order, models.OrderStatusOnTheWay, "admin@example.com", ""))

	err = svc.Cancel(order, "aziz@example.com", "too late")
	var stateErr *models.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, 0, store.restockCalls)
}

func TestMarkAsPaidIsIdempotent(t *testing.T) {
	store := newFakeOrderStore()
	notifier := &fakeNotifier{}
	svc := NewOrderService(store, catalog(), notifier, false)

	order, err := svc.CreateOrder(checkoutInput(CheckoutItem{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)

	first, err := svc.MarkAsPaid(order.OrderNumber)
	require.NoError(t, err)
	paidAt := first.PaidAt

	second, err := svc.MarkAsPaid(order.OrderNumber)
	require.NoError(t, err)

	assert.True(t, second.IsPaid)
	assert.Equal(t, paidAt, second.PaidAt, "paid timestamp must not move")
}
