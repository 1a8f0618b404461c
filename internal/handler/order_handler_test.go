package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"market/internal/models"
	"market/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memOrderStore struct {
	orders map[string]*models.Order
	nextID uint
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{orders: make(map[string]*models.Order), nextID: 1}
}

func (s *memOrderStore) CreateWithItems(o *models.Order, history *models.OrderStatusHistory) error {
	o.ID = s.nextID
	s.nextID++
	if o.OrderNumber == "" {
		o.OrderNumber = models.GenerateReference("ORD", 6)
	}
	s.orders[o.OrderNumber] = o
	return nil
}

func (s *memOrderStore) GetByID(id uint) (*models.Order, error) {
	for _, o := range s.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *memOrderStore) GetByNumber(number string) (*models.Order, error) {
	o, ok := s.orders[number]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return o, nil
}

func (s *memOrderStore) List(limit, offset int) ([]models.Order, error) {
	var out []models.Order
	for _, o := range s.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (s *memOrderStore) UpdateStatus(o *models.Order, history *models.OrderStatusHistory) error {
	return nil
}

func (s *memOrderStore) Cancel(o *models.Order, history *models.OrderStatusHistory) error {
	return nil
}

func (s *memOrderStore) MarkPaid(number string) (*models.Order, error) {
	o, ok := s.orders[number]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	o.MarkAsPaid(time.Now())
	return o, nil
}

type memProductStore struct {
	products []models.Product
}

func (s *memProductStore) GetByIDs(ids []uint) ([]models.Product, error) {
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

type noopNotifier struct{}

func (noopNotifier) OrderCreated(o *models.Order) {}

func (noopNotifier) OrderStatusChanged(o *models.Order, from string) {}

func (noopNotifier) OrderPaid(o *models.Order) {}

func orderTestRouter() (*gin.Engine, *memOrderStore) {
	store := newMemOrderStore()
	products := &memProductStore{products: []models.Product{
		{ID: 1, Name: "Kettle", SKU: "KET-01", Price: decimal.NewFromInt(120000), Stock: 5, IsActive: true},
	}}
	svc := service.NewOrderService(store, products, noopNotifier{}, false)
	h := NewOrderHandler(svc, "UZS")

	r := gin.New()
	r.POST("/orders", h.Create)
	r.GET("/orders/:id", h.Get)
	r.PATCH("/orders/:id/status", h.UpdateStatus)
	r.POST("/orders/:id/cancel", h.Cancel)
	return r, store
}

const checkoutBody = `{
	"customer_name": "Aziz Karimov",
	"customer_email": "aziz@example.com",
	"customer_phone": "+998901234567",
	"delivery_address": "Amir Temur 1",
	"delivery_city": "Tashkent",
	"payment_method": "click",
	"items": [{"product_id": 1, "quantity": 2}]
}`

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCheckoutCreatesOrder(t *testing.T) {
	r, store := orderTestRouter()

	w := postJSON(r, "/orders", checkoutBody)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Len(t, store.orders, 1)

	var order models.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.True(t, strings.HasPrefix(order.OrderNumber, "ORD-"))
}

func TestCheckoutInsufficientStock(t *testing.T) {
	r, _ := orderTestRouter()

	body := strings.Replace(checkoutBody, `"quantity": 2`, `"quantity": 50`, 1)
	w := postJSON(r, "/orders", body)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCheckoutValidation(t *testing.T) {
	r, _ := orderTestRouter()

	w := postJSON(r, "/orders", `{"customer_name": "x"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetOrderByNumber(t *testing.T) {
	r, store := orderTestRouter()
	postJSON(r, "/orders", checkoutBody)

	var number string
	for n := range store.orders {
		number = n
	}

	req := httptest.NewRequest(http.MethodGet, "/orders/"+number, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetOrderNotFound(t *testing.T) {
	r, _ := orderTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/orders/ORD-GHOST", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelDeliveredOrderConflicts(t *testing.T) {
	r, store := orderTestRouter()
	postJSON(r, "/orders", checkoutBody)

	var order *models.Order
	for _, o := range store.orders {
		order = o
	}
	order.Status = models.OrderStatusDelivered

	w := postJSON(r, "/orders/"+order.OrderNumber+"/cancel", `{"actor":"aziz@example.com","reason":"late"}`)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUpdateStatusEndpoint(t *testing.T) {
	r, store := orderTestRouter()
	postJSON(r, "/orders", checkoutBody)

	var order *models.Order
	for _, o := range store.orders {
		order = o
	}

	req := httptest.NewRequest(http.MethodPatch, "/orders/"+order.OrderNumber+"/status",
		strings.NewReader(`{"status":"accepted","actor":"admin@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.OrderStatusAccepted, order.Status)
}

func TestUpdateStatusUnknownValue(t *testing.T) {
	r, store := orderTestRouter()
	postJSON(r, "/orders", checkoutBody)

	var order *models.Order
	for _, o := range store.orders {
		order = o
	}

	req := httptest.NewRequest(http.MethodPatch, "/orders/"+order.OrderNumber+"/status",
		strings.NewReader(`{"status":"teleported","actor":"admin@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
