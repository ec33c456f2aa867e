package payment

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/estimapres/edgehub/internal/config"
)

// parseAmount 按下单页的宽松规则解析金额：数字 0 与空串视为缺失；
// 非空字符串按数字解析，纯空白得到 0，允许 0x/0o/0b 前缀。
// 布尔值与无穷大不接受，后者无法编码进 JSON。
func parseAmount(raw interface{}) (float64, bool) {
	var value float64
	switch v := raw.(type) {
	case float64:
		if v == 0 {
			return 0, false
		}
		value = v
	case string:
		if v == "" {
			return 0, false
		}
		parsed, ok := parseNumericString(strings.TrimSpace(v))
		if !ok {
			return 0, false
		}
		value = parsed
	default:
		return 0, false
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

func parseNumericString(s string) (float64, bool) {
	if s == "" {
		return 0, true
	}
	if strings.Contains(s, "_") {
		return 0, false
	}
	if len(s) > 2 && s[0] == '0' && strings.ContainsRune("xXoObB", rune(s[1])) {
		n, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return 0, false
		}
		return float64(n), true
	}
	parsed, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// buildPreference 组装建单请求，siteURL 同时用作回跳地址的兜底与 webhook 地址的前缀。
func buildPreference(in createPaymentRequest, amount float64, siteURL string, cfg config.PaymentConfig) Preference {
	title := strings.TrimSpace(in.Description)
	if title == "" {
		title = cfg.DefaultTitle
	}

	pref := Preference{
		Items: []PreferenceItem{{
			Title:      title,
			Quantity:   1,
			CurrencyID: cfg.Currency,
			UnitPrice:  amount,
		}},
		Metadata: map[string]interface{}{
			"loanId":      orNil(in.LoanID),
			"installment": orNil(in.Installment),
		},
		BackURLs: BackURLs{
			Success: firstNonEmpty(in.SuccessURL, siteURL),
			Failure: firstNonEmpty(in.FailureURL, siteURL),
			Pending: firstNonEmpty(in.SuccessURL, siteURL),
		},
		AutoReturn:          "approved",
		NotificationURL:     notificationURL(siteURL, cfg.WebhookSecret),
		StatementDescriptor: cfg.StatementDescriptor,
	}
	if email := strings.TrimSpace(in.PayerEmail); email != "" {
		pref.Payer = &Payer{Email: email}
	}
	return pref
}

func notificationURL(siteURL, secret string) string {
	target := strings.TrimSuffix(siteURL, "/") + webhookPath
	if secret != "" {
		target += "?secret=" + url.QueryEscape(secret)
	}
	return target
}

// orNil 把空值（空串、0、false）统一为 null。
func orNil(v interface{}) interface{} {
	switch value := v.(type) {
	case nil:
		return nil
	case string:
		if value == "" {
			return nil
		}
	case float64:
		if value == 0 {
			return nil
		}
	case bool:
		if !value {
			return nil
		}
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
