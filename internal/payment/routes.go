package payment

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/sirupsen/logrus"

	"github.com/estimapres/edgehub/internal/config"
	"github.com/estimapres/edgehub/internal/server"
)

const (
	createPaymentPath = "/api/create-payment"
	webhookPath       = "/api/webhook-mp"

	errMissingToken = "Falta MP_ACCESS_TOKEN"
	errServer       = "Server error"
)

// Relay 持有支付中继的依赖，两个接口都是对 Mercado Pago 的直通调用。
type Relay struct {
	client *Client
	cfg    config.PaymentConfig
	logger *logrus.Logger
}

// NewRelay 构造支付中继。
func NewRelay(client *Client, cfg config.PaymentConfig, logger *logrus.Logger) *Relay {
	return &Relay{client: client, cfg: cfg, logger: logger}
}

// Routes 返回挂载建单与 webhook 接口的 RouteRegistrar，两者都允许任意来源跨域调用。
func (r *Relay) Routes() server.RouteRegistrar {
	return func(app *fiber.App) {
		corsHandler := cors.New(cors.Config{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{fiber.MethodPost, fiber.MethodOptions},
			AllowHeaders: []string{fiber.HeaderContentType},
		})

		endpoints := []struct {
			path    string
			handler fiber.Handler
		}{
			{createPaymentPath, r.createPayment},
			{webhookPath, r.webhook},
		}
		for _, endpoint := range endpoints {
			app.Post(endpoint.path, corsHandler, endpoint.handler)
			app.Options(endpoint.path, corsHandler, preflight)
			app.All(endpoint.path, methodNotAllowed)
		}
	}
}

// preflight 处理不带 CORS 请求头的 OPTIONS，cors 中间件只会拦截真正的预检请求。
func preflight(c fiber.Ctx) error {
	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
	c.Set(fiber.HeaderAccessControlAllowHeaders, fiber.HeaderContentType)
	c.Set(fiber.HeaderAccessControlAllowMethods, "POST,OPTIONS")
	return c.SendStatus(fiber.StatusOK)
}

func methodNotAllowed(c fiber.Ctx) error {
	return server.WriteError(c, fiber.StatusMethodNotAllowed, "Method not allowed")
}

func (r *Relay) createPayment(c fiber.Ctx) error {
	var in createPaymentRequest
	if body := bytes.TrimSpace(c.Body()); len(body) > 0 {
		if err := json.Unmarshal(body, &in); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": errServer, "detail": err.Error()})
		}
	}

	amount, ok := parseAmount(in.Amount)
	if !ok {
		return server.WriteError(c, fiber.StatusBadRequest, "amount inválido")
	}
	if !r.client.HasToken() {
		return server.WriteError(c, fiber.StatusInternalServerError, errMissingToken)
	}

	siteURL := r.cfg.SiteURL
	if siteURL == "" {
		siteURL = "https://" + c.Hostname()
	}
	pref := buildPreference(in, amount, siteURL, r.cfg)

	fields := logrus.Fields{
		"action":     "create_payment",
		"request_id": server.RequestID(c),
		"amount":     amount,
	}
	result, err := r.client.CreatePreference(c.Context(), pref)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			r.logger.WithFields(fields).WithField("status", apiErr.Status).Warn("preference_rejected")
			return c.Status(apiErr.Status).JSON(fiber.Map{"error": "Mercado Pago error", "detail": apiErr.Detail})
		}
		r.logger.WithFields(fields).WithError(err).Error("preference_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": errServer, "detail": err.Error()})
	}

	fields["preference_id"] = result.ID
	r.logger.WithFields(fields).Info("preference_created")
	return c.JSON(fiber.Map{
		"preference_id":      result.ID,
		"init_point":         result.InitPoint,
		"sandbox_init_point": result.SandboxInitPoint,
	})
}

func (r *Relay) webhook(c fiber.Ctx) error {
	if secret := r.cfg.WebhookSecret; secret != "" && c.Query("secret") != secret {
		return c.Status(fiber.StatusUnauthorized).SendString("unauthorized")
	}
	if !r.client.HasToken() {
		return server.WriteError(c, fiber.StatusInternalServerError, errMissingToken)
	}

	kind, paymentID := parseNotification(c.Body())
	if kind == "" {
		kind = firstNonEmpty(c.Query("type"), c.Query("topic"))
	}
	if paymentID == "" {
		paymentID = firstNonEmpty(c.Query("data.id"), c.Query("id"))
	}
	// 与支付无关或缺少 id 的通知同样返回 200，避免 Mercado Pago 反复重投。
	if !strings.Contains(kind, "payment") || paymentID == "" {
		return c.SendString("ok")
	}

	fields := logrus.Fields{
		"action":     "webhook",
		"request_id": server.RequestID(c),
		"type":       kind,
		"payment_id": paymentID,
	}
	payment, err := r.client.GetPayment(c.Context(), paymentID)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			r.logger.WithFields(fields).WithField("status", apiErr.Status).Warn("payment_lookup_rejected")
			return c.JSON(fiber.Map{"ok": true})
		}
		r.logger.WithFields(fields).WithError(err).Error("payment_lookup_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": errServer, "detail": err.Error()})
	}

	fields["id"] = payment.ID.String()
	fields["status"] = payment.Status
	fields["status_detail"] = payment.StatusDetail
	fields["metadata"] = payment.Metadata
	fields["transaction_amount"] = payment.TransactionAmount
	r.logger.WithFields(fields).Info("payment_confirmed")
	return c.JSON(fiber.Map{"ok": true})
}

// parseNotification 宽松解析通知体：非法 JSON 视为空对象。
func parseNotification(body []byte) (kind, paymentID string) {
	var payload map[string]interface{}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return "", ""
	}

	for _, key := range []string{"type", "action", "topic"} {
		if value := scalarString(payload[key]); value != "" {
			kind = value
			break
		}
	}

	if data, ok := payload["data"].(map[string]interface{}); ok {
		paymentID = scalarString(data["id"])
	}
	if paymentID == "" {
		paymentID = scalarString(payload["data.id"])
	}
	if paymentID == "" {
		if resource, ok := payload["resource"].(map[string]interface{}); ok {
			paymentID = scalarString(resource["id"])
		}
	}
	return kind, paymentID
}

func scalarString(v interface{}) string {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case json.Number:
		return value.String()
	}
	return ""
}
