package handler

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"market/config"
	"market/internal/gateway"
	"market/internal/models"
	"market/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.Log = zap.NewNop()
}

type stubOrderStore struct {
	orders map[string]*models.Order
}

func (s *stubOrderStore) GetByNumber(number string) (*models.Order, error) {
	o, ok := s.orders[number]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return o, nil
}

func (s *stubOrderStore) MarkPaid(number string) (*models.Order, error) {
	o, ok := s.orders[number]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	o.MarkAsPaid(time.Now())
	return o, nil
}

type stubPaymentStore struct {
	byTxnID map[string]*models.Payment
	nextID  uint
}

func (s *stubPaymentStore) GetByGatewayTransactionID(id string) (*models.Payment, error) {
	p, ok := s.byTxnID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (s *stubPaymentStore) GetOrCreateByGatewayTransactionID(id string, defaults models.Payment) (*models.Payment, bool, error) {
	if p, ok := s.byTxnID[id]; ok {
		return p, false, nil
	}
	p := defaults
	s.nextID++
	p.ID = s.nextID
	p.GatewayTransactionID = &id
	p.CreatedAt = time.Now()
	s.byTxnID[id] = &p
	return &p, true, nil
}

func (s *stubPaymentStore) Complete(gatewayTxnID string) (*models.Payment, error) {
	p, ok := s.byTxnID[gatewayTxnID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	now := time.Now()
	p.Status = models.PaymentStatusCompleted
	p.CompletedAt = &now
	return p, nil
}

func (s *stubPaymentStore) CancelByGatewayTransactionID(id string) (*models.Payment, error) {
	p, ok := s.byTxnID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	p.Status = models.PaymentStatusCancelled
	return p, nil
}

func (s *stubPaymentStore) LogTransaction(t *models.Transaction) error { return nil }

func webhookTestRouter() *gin.Engine {
	orders := &stubOrderStore{orders: map[string]*models.Order{
		"ORD-1": {ID: 1, OrderNumber: "ORD-1", TotalAmount: decimal.NewFromInt(150000), Currency: "UZS"},
	}}
	payments := &stubPaymentStore{byTxnID: make(map[string]*models.Payment)}

	click := gateway.NewClick(config.ClickConfig{MerchantID: "m", ServiceID: "s", SecretKey: "k"}, orders)
	payme := gateway.NewPayme(config.PaymeConfig{MerchantID: "merchant-1", SecretKey: "payme-secret"}, orders, payments)

	h := NewWebhookHandler(click, payme)
	r := gin.New()
	r.POST("/webhooks/click", h.HandleClick)
	r.POST("/webhooks/payme", h.HandlePayme)
	return r
}

func TestClickWebhookGarbageBodyStillAcks(t *testing.T) {
	r := webhookTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/click", strings.NewReader(`{"not`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, "gateway expects 200 even for garbage")

	var resp gateway.ClickResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, gateway.ClickErrBadSignature, resp.Error)
}

func TestClickWebhookUnsignedFormRejected(t *testing.T) {
	r := webhookTestRouter()

	form := url.Values{}
	form.Set("click_trans_id", "1")
	form.Set("merchant_trans_id", "ORD-1")
	form.Set("amount", "15000000")
	form.Set("action", "0")
	form.Set("sign_time", "2024-01-31 12:05:00")
	form.Set("sign_string", "forged")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/click", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp gateway.ClickResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, gateway.ClickErrBadSignature, resp.Error)
}

func TestPaymeWebhookParseError(t *testing.T) {
	r := webhookTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payme", strings.NewReader(`{"jsonrpc":`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp gateway.PaymeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, gateway.PaymeErrParse, resp.Error.Code)
}

func TestPaymeWebhookBadAuth(t *testing.T) {
	r := webhookTestRouter()

	body := `{"jsonrpc":"2.0","method":"CheckPerformTransaction","params":{"amount":15000000,"account":{"order_id":"ORD-1"}},"id":5}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payme", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic d3Jvbmc=")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp gateway.PaymeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, gateway.PaymeErrAuth, resp.Error.Code)
	assert.Equal(t, json.RawMessage(`5`), resp.ID, "request id must be echoed back")
}

func TestPaymeWebhookCheckPerform(t *testing.T) {
	r := webhookTestRouter()

	body := `{"jsonrpc":"2.0","method":"CheckPerformTransaction","params":{"amount":15000000,"account":{"order_id":"ORD-1"}},"id":5}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payme", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("merchant-1:payme-secret")))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Result map[string]interface{} `json:"result"`
		Error  *gateway.PaymeError    `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Nil(t, resp.Error)
	assert.Equal(t, true, resp.Result["allow"])
}
