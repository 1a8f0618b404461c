package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"market/internal/gateway"
	"market/internal/metrics"
	"market/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WebhookHandler terminates the gateway callback endpoints. Both gateways
// expect HTTP 200 no matter what; errors travel in the body per each
// protocol's own convention.
type WebhookHandler struct {
	click *gateway.Click
	payme *gateway.Payme
}

func NewWebhookHandler(click *gateway.Click, payme *gateway.Payme) *WebhookHandler {
	return &WebhookHandler{click: click, payme: payme}
}

// HandleClick receives the form-encoded PREPARE/COMPLETE callbacks.
// Unparseable input still gets a 200 with the protocol's signature error
// so Click does not retry garbage forever.
func (h *WebhookHandler) HandleClick(c *gin.Context) {
	var req gateway.ClickRequest
	if err := c.ShouldBind(&req); err != nil {
		logger.Log.Warn("click webhook: malformed request", zap.Error(err))
		metrics.WebhookRequestsTotal.WithLabelValues("click", "malformed").Inc()
		c.JSON(http.StatusOK, gateway.ClickResponse{
			Error:     gateway.ClickErrBadSignature,
			ErrorNote: "Invalid request",
		})
		return
	}

	resp := h.click.HandleWebhook(&req)

	outcome := "ok"
	if resp.Error != gateway.ClickSuccess {
		outcome = "rejected"
	}
	metrics.WebhookRequestsTotal.WithLabelValues("click", outcome).Inc()
	logger.Log.Info("click webhook",
		zap.String("action", req.Action),
		zap.String("merchant_trans_id", req.MerchantTransID),
		zap.Int("error", resp.Error),
	)

	c.JSON(http.StatusOK, resp)
}

// HandlePayme receives the JSON-RPC callbacks. Responses are always 200;
// a parse failure maps to -32700 and anything unexpected to -32400.
func (h *WebhookHandler) HandlePayme(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		metrics.WebhookRequestsTotal.WithLabelValues("payme", "malformed").Inc()
		c.JSON(http.StatusOK, gateway.PaymeResponse{
			JSONRPC: "2.0",
			Error:   &gateway.PaymeError{Code: gateway.PaymeErrParse, Message: "Parse error"},
		})
		return
	}

	var req gateway.PaymeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		logger.Log.Warn("payme webhook: malformed request", zap.Error(err))
		metrics.WebhookRequestsTotal.WithLabelValues("payme", "malformed").Inc()
		c.JSON(http.StatusOK, gateway.PaymeResponse{
			JSONRPC: "2.0",
			Error:   &gateway.PaymeError{Code: gateway.PaymeErrParse, Message: "Parse error"},
		})
		return
	}

	resp := h.safeHandlePayme(&req, c.GetHeader("Authorization"))

	outcome := "ok"
	if resp.Error != nil {
		outcome = "rejected"
	}
	metrics.WebhookRequestsTotal.WithLabelValues("payme", outcome).Inc()
	logger.Log.Info("payme webhook",
		zap.String("method", req.Method),
		zap.Bool("ok", resp.Error == nil),
	)

	c.JSON(http.StatusOK, resp)
}

// safeHandlePayme keeps a panic inside the dispatcher from turning into a
// 500; the provider sees a system error instead.
func (h *WebhookHandler) safeHandlePayme(req *gateway.PaymeRequest, authHeader string) (resp *gateway.PaymeResponse) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("payme webhook: panic recovered", zap.Any("panic", r))
			resp = &gateway.PaymeResponse{
				JSONRPC: "2.0",
				Error:   &gateway.PaymeError{Code: gateway.PaymeErrInternal, Message: "Internal error"},
				ID:      req.ID,
			}
		}
	}()
	return h.payme.HandleWebhook(req, authHeader)
}
