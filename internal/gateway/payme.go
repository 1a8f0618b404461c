package gateway

import (
	"bytes"
	"crypto/hmac"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"market/config"
	"market/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payme JSON-RPC methods.
const (
	PaymeMethodCheckPerform = "CheckPerformTransaction"
	PaymeMethodCreate       = "CreateTransaction"
	PaymeMethodPerform      = "PerformTransaction"
	PaymeMethodCancel       = "CancelTransaction"
	PaymeMethodCheck        = "CheckTransaction"
)

// Payme transaction states.
const (
	PaymeStatePending   = 0
	PaymeStateCreated   = 1
	PaymeStatePerformed = 2
	PaymeStateCancelled = -1
	PaymeStateFailed    = -2
)

// Payme error codes.
const (
	PaymeErrAuth           = -32504
	PaymeErrMethodNotFound = -32601
	PaymeErrInternal       = -32400
	PaymeErrParse          = -32700
	PaymeErrBadAmount      = -31001
	PaymeErrAlreadyPaid    = -31099
	PaymeErrOrderNotFound  = -31050
	PaymeErrTxnNotFound    = -31003
	PaymeErrCreateFailed   = -31008
)

// PaymeRequest is the inbound JSON-RPC 2.0 envelope. The id is kept raw
// and echoed back verbatim.
type PaymeRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  PaymeParams     `json:"params"`
	ID      json.RawMessage `json:"id"`
}

type PaymeParams struct {
	ID      string       `json:"id"`
	Time    int64        `json:"time"`
	Amount  int64        `json:"amount"`
	Account PaymeAccount `json:"account"`
	Reason  int          `json:"reason"`
}

type PaymeAccount struct {
	OrderID string `json:"order_id"`
}

type PaymeResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *PaymeError     `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

type PaymeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Payme implements the Payme merchant protocol: hosted checkout links plus
// the JSON-RPC webhook where every method is a payment state transition
// keyed by the gateway's own transaction id.
type Payme struct {
	merchantID string
	secretKey  string
	endpoint   string
	client     *http.Client
	orders     OrderStore
	payments   PaymentStore
}

func NewPayme(cfg config.PaymeConfig, orders OrderStore, payments PaymentStore) *Payme {
	return &Payme{
		merchantID: cfg.MerchantID,
		secretKey:  cfg.SecretKey,
		endpoint:   cfg.Endpoint,
		client:     &http.Client{Timeout: cfg.Timeout},
		orders:     orders,
		payments:   payments,
	}
}

func (p *Payme) Name() string {
	return models.PaymentMethodPayme
}

// CreatePayment builds the hosted checkout URL from the base64-encoded
// merchant/account/amount triple. Amount goes out in tiyin.
func (p *Payme) CreatePayment(amount decimal.Decimal, currency, orderRef, description, returnURL string) (*CreateResult, error) {
	if p.merchantID == "" {
		return nil, &GatewayError{Gateway: p.Name(), Message: "merchant credentials not configured"}
	}
	amountTiyin := amount.Mul(decimal.NewFromInt(100)).IntPart()
	orderData := fmt.Sprintf("m=%s;ac.order_id=%s;a=%d", p.merchantID, orderRef, amountTiyin)
	encoded := base64.StdEncoding.EncodeToString([]byte(orderData))
	return &CreateResult{
		TransactionID: "PAYME-" + orderRef,
		PaymentURL:    "https://checkout.paycom.uz/" + encoded,
		Status:        models.PaymentStatusPending,
		Gateway:       p.Name(),
	}, nil
}

// VerifyPayment polls the provider with a CheckTransaction RPC.
func (p *Payme) VerifyPayment(transactionID string) (*VerifyResult, error) {
	result, err := p.rpcCall(PaymeMethodCheck, map[string]interface{}{"id": transactionID})
	if err != nil {
		return nil, err
	}
	state := int(toInt64(result["state"]))
	amount := decimal.NewFromInt(toInt64(result["amount"])).Div(decimal.NewFromInt(100))
	return &VerifyResult{
		IsSuccessful: state == PaymeStatePerformed,
		Status:       paymeStateToStatus(state),
		Amount:       amount,
		Details:      result,
	}, nil
}

// RefundPayment issues a CancelTransaction RPC against the provider.
func (p *Payme) RefundPayment(transactionID string, amount *decimal.Decimal, reason string) (*RefundResult, error) {
	result, err := p.rpcCall(PaymeMethodCancel, map[string]interface{}{
		"id":     transactionID,
		"reason": 3,
	})
	if err != nil {
		var ge *GatewayError
		if errors.As(err, &ge) && ge.Err == nil {
			return &RefundResult{Success: false, TransactionID: transactionID, Message: ge.Message}, nil
		}
		return nil, err
	}
	return &RefundResult{
		Success:       true,
		TransactionID: transactionID,
		Details:       result,
	}, nil
}

// HandleWebhook authenticates and dispatches one JSON-RPC call. Every
// outcome is a structured response; callers decide nothing beyond
// serialization.
func (p *Payme) HandleWebhook(req *PaymeRequest, authHeader string) *PaymeResponse {
	if !p.validateAuthHeader(authHeader) {
		return paymeErrResponse(req.ID, PaymeErrAuth, "Insufficient privileges")
	}

	var resp *PaymeResponse
	switch req.Method {
	case PaymeMethodCheckPerform:
		resp = p.checkPerformTransaction(req)
	case PaymeMethodCreate:
		resp = p.createTransaction(req)
	case PaymeMethodPerform:
		resp = p.performTransaction(req)
	case PaymeMethodCancel:
		resp = p.cancelTransaction(req)
	case PaymeMethodCheck:
		resp = p.checkTransaction(req)
	default:
		resp = paymeErrResponse(req.ID, PaymeErrMethodNotFound, "Method not found")
	}
	return resp
}

// checkPerformTransaction validates that the order exists, is unpaid and
// the amount matches. Pure read, no writes.
func (p *Payme) checkPerformTransaction(req *PaymeRequest) *PaymeResponse {
	order, err := p.orders.GetByNumber(req.Params.Account.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return paymeErrResponse(req.ID, PaymeErrOrderNotFound, "Order not found")
		}
		return paymeErrResponse(req.ID, PaymeErrInternal, "Order lookup failed")
	}

	amount := decimal.NewFromInt(req.Params.Amount).Div(decimal.NewFromInt(100))
	if !order.TotalAmount.Equal(amount) {
		return paymeErrResponse(req.ID, PaymeErrBadAmount, "Incorrect amount")
	}
	if order.IsPaid {
		return paymeErrResponse(req.ID, PaymeErrAlreadyPaid, "Order already paid")
	}

	return paymeResult(req.ID, map[string]interface{}{"allow": true})
}

// createTransaction get-or-creates the payment row keyed by the gateway
// transaction id. Duplicate deliveries land on the same row.
func (p *Payme) createTransaction(req *PaymeRequest) *PaymeResponse {
	order, err := p.orders.GetByNumber(req.Params.Account.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return paymeErrResponse(req.ID, PaymeErrCreateFailed, "Order not found")
		}
		return paymeErrResponse(req.ID, PaymeErrInternal, "Order lookup failed")
	}

	amount := decimal.NewFromInt(req.Params.Amount).Div(decimal.NewFromInt(100))
	payment, created, err := p.payments.GetOrCreateByGatewayTransactionID(req.Params.ID, models.Payment{
		OrderID:  order.ID,
		Gateway:  models.PaymentMethodPayme,
		Amount:   amount,
		Currency: order.Currency,
		Status:   models.PaymentStatusProcessing,
	})
	if err != nil {
		return paymeErrResponse(req.ID, PaymeErrCreateFailed, "Transaction create failed")
	}
	if created {
		p.logWebhookTransaction(payment, req, models.PaymentStatusProcessing)
	}

	return paymeResult(req.ID, map[string]interface{}{
		"create_time": payment.CreatedAt.UnixMilli(),
		"transaction": strconv.FormatUint(uint64(payment.ID), 10),
		"state":       PaymeStateCreated,
	})
}

// performTransaction commits: payment goes to completed and the order is
// marked paid in the same unit of work. A repeat delivery sees the
// completed payment and gets the same response back.
func (p *Payme) performTransaction(req *PaymeRequest) *PaymeResponse {
	payment, err := p.payments.Complete(req.Params.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return paymeErrResponse(req.ID, PaymeErrTxnNotFound, "Transaction not found")
		}
		if errors.Is(err, models.ErrAlreadyPaid) {
			return paymeErrResponse(req.ID, PaymeErrAlreadyPaid, "Order already paid")
		}
		return paymeErrResponse(req.ID, PaymeErrInternal, "Transaction perform failed")
	}
	p.logWebhookTransaction(payment, req, models.PaymentStatusCompleted)

	var performTime int64
	if payment.CompletedAt != nil {
		performTime = payment.CompletedAt.UnixMilli()
	}
	return paymeResult(req.ID, map[string]interface{}{
		"transaction":  strconv.FormatUint(uint64(payment.ID), 10),
		"perform_time": performTime,
		"state":        PaymeStatePerformed,
	})
}

func (p *Payme) cancelTransaction(req *PaymeRequest) *PaymeResponse {
	payment, err := p.payments.CancelByGatewayTransactionID(req.Params.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return paymeErrResponse(req.ID, PaymeErrTxnNotFound, "Transaction not found")
		}
		return paymeErrResponse(req.ID, PaymeErrInternal, "Transaction cancel failed")
	}
	p.logWebhookTransaction(payment, req, models.PaymentStatusCancelled)

	return paymeResult(req.ID, map[string]interface{}{
		"transaction": strconv.FormatUint(uint64(payment.ID), 10),
		"cancel_time": payment.UpdatedAt.UnixMilli(),
		"state":       PaymeStateCancelled,
	})
}

// checkTransaction is a pure read mapping internal status to the
// provider's state vocabulary.
func (p *Payme) checkTransaction(req *PaymeRequest) *PaymeResponse {
	payment, err := p.payments.GetByGatewayTransactionID(req.Params.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return paymeErrResponse(req.ID, PaymeErrTxnNotFound, "Transaction not found")
		}
		return paymeErrResponse(req.ID, PaymeErrInternal, "Transaction lookup failed")
	}

	var performTime int64
	if payment.CompletedAt != nil {
		performTime = payment.CompletedAt.UnixMilli()
	}
	return paymeResult(req.ID, map[string]interface{}{
		"create_time":  payment.CreatedAt.UnixMilli(),
		"perform_time": performTime,
		"transaction":  strconv.FormatUint(uint64(payment.ID), 10),
		"state":        paymeStatusToState(payment.Status),
	})
}

func (p *Payme) logWebhookTransaction(payment *models.Payment, req *PaymeRequest, status string) {
	reqData, _ := json.Marshal(req)
	_ = p.payments.LogTransaction(&models.Transaction{
		PaymentID:            payment.ID,
		TransactionType:      models.TransactionTypeWebhook,
		Status:               status,
		GatewayTransactionID: req.Params.ID,
		RequestData:          string(reqData),
		Notes:                req.Method,
	})
}

func (p *Payme) authHeaderValue() string {
	credentials := p.merchantID + ":" + p.secretKey
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(credentials))
}

// validateAuthHeader compares in constant time against the locally
// recomputed value.
func (p *Payme) validateAuthHeader(header string) bool {
	return hmac.Equal([]byte(header), []byte(p.authHeaderValue()))
}

// rpcCall sends one outbound JSON-RPC request to the provider. A provider
// error object comes back as a GatewayError with no wrapped cause.
func (p *Payme) rpcCall(method string, params map[string]interface{}) (map[string]interface{}, error) {
	payload, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      time.Now().UnixNano(),
	})
	httpReq, err := http.NewRequest(http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &GatewayError{Gateway: p.Name(), Message: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Auth", p.authHeaderValue())

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &GatewayError{Gateway: p.Name(), Message: method + " failed", Err: err}
	}
	defer resp.Body.Close()

	var body struct {
		Result map[string]interface{} `json:"result"`
		Error  *PaymeError            `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &GatewayError{Gateway: p.Name(), Message: "decode response", Err: err}
	}
	if body.Error != nil {
		return nil, &GatewayError{Gateway: p.Name(), Message: body.Error.Message}
	}
	return body.Result, nil
}

func paymeResult(id json.RawMessage, result map[string]interface{}) *PaymeResponse {
	return &PaymeResponse{JSONRPC: "2.0", Result: result, ID: id}
}

func paymeErrResponse(id json.RawMessage, code int, message string) *PaymeResponse {
	return &PaymeResponse{JSONRPC: "2.0", Error: &PaymeError{Code: code, Message: message}, ID: id}
}

func paymeStateToStatus(state int) string {
	switch state {
	case PaymeStateCreated:
		return models.PaymentStatusProcessing
	case PaymeStatePerformed:
		return models.PaymentStatusCompleted
	case PaymeStateCancelled:
		return models.PaymentStatusCancelled
	case PaymeStateFailed:
		return models.PaymentStatusFailed
	default:
		return models.PaymentStatusPending
	}
}

func paymeStatusToState(status string) int {
	switch status {
	case models.PaymentStatusProcessing:
		return PaymeStateCreated
	case models.PaymentStatusCompleted:
		return PaymeStatePerformed
	case models.PaymentStatusCancelled:
		return PaymeStateCancelled
	case models.PaymentStatusFailed:
		return PaymeStateFailed
	default:
		return PaymeStatePending
	}
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}
