package payment

import "encoding/json"

// Preference 对应 checkout/preferences 的请求体。
type Preference struct {
	Items               []PreferenceItem       `json:"items"`
	Payer               *Payer                 `json:"payer,omitempty"`
	Metadata            map[string]interface{} `json:"metadata"`
	BackURLs            BackURLs               `json:"back_urls"`
	AutoReturn          string                 `json:"auto_return"`
	NotificationURL     string                 `json:"notification_url"`
	StatementDescriptor string                 `json:"statement_descriptor"`
}

type PreferenceItem struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	CurrencyID string  `json:"currency_id"`
	UnitPrice  float64 `json:"unit_price"`
}

type Payer struct {
	Email string `json:"email"`
}

type BackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

// PreferenceResult 只保留前端跳转所需字段。
type PreferenceResult struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// Payment 是 /v1/payments/{id} 响应中需要记录的字段。
type Payment struct {
	ID                json.Number            `json:"id"`
	Status            string                 `json:"status"`
	StatusDetail      string                 `json:"status_detail"`
	Metadata          map[string]interface{} `json:"metadata"`
	TransactionAmount float64                `json:"transaction_amount"`
}

// createPaymentRequest 是前端提交的建单参数；amount 可以是字符串或数字。
type createPaymentRequest struct {
	Amount      interface{} `json:"amount"`
	Description string      `json:"description"`
	PayerEmail  string      `json:"payer_email"`
	LoanID      interface{} `json:"loanId"`
	Installment interface{} `json:"installment"`
	SuccessURL  string      `json:"success_url"`
	FailureURL  string      `json:"failure_url"`
}
