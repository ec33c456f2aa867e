package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/estimapres/edgehub/internal/config"
	"github.com/estimapres/edgehub/internal/metrics"
)

const (
	endpointPreferences = "preferences"
	endpointPayments    = "payments"
)

// ErrMissingToken 表示未配置 MP_ACCESS_TOKEN。
var ErrMissingToken = errors.New("mercado pago access token missing")

// APIError 是 Mercado Pago 返回的非 2xx 响应，Detail 保留原始 JSON 以便原样透传。
type APIError struct {
	Status int
	Detail json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mercado pago responded %d", e.Status)
}

// Client 是 Mercado Pago REST API 的最小客户端，只覆盖建单与查单两个调用，不做重试。
type Client struct {
	httpClient *http.Client
	base       string
	token      string
}

// NewClient 使用共享 http.Client 构造客户端。
func NewClient(httpClient *http.Client, cfg config.PaymentConfig) *Client {
	return &Client{
		httpClient: httpClient,
		base:       strings.TrimSuffix(cfg.APIBase, "/"),
		token:      strings.TrimSpace(cfg.AccessToken),
	}
}

// HasToken reports whether requests can be authorized.
func (c *Client) HasToken() bool {
	return c.token != ""
}

// CreatePreference 调用 POST /checkout/preferences。
func (c *Client) CreatePreference(ctx context.Context, pref Preference) (*PreferenceResult, error) {
	payload, err := json.Marshal(pref)
	if err != nil {
		return nil, fmt.Errorf("encode preference: %w", err)
	}
	var result PreferenceResult
	if err := c.do(ctx, http.MethodPost, "/checkout/preferences", endpointPreferences, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPayment 调用 GET /v1/payments/{id}，Mercado Pago 是支付状态的唯一可信来源。
func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("payment id required")
	}
	var result Payment
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(id), endpointPayments, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path, endpoint string, payload []byte, out interface{}) error {
	if !c.HasToken() {
		return ErrMissingToken
	}

	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.PaymentRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()
	metrics.PaymentRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := json.RawMessage(raw)
		if !json.Valid(raw) {
			detail, _ = json.Marshal(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Detail: detail}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}
