package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"cvbuilder/internal/config"
	"cvbuilder/internal/errcode"
)

const (
	initializePath = "/transaction/initialize"
	verifyPath     = "/transaction/verify/"

	maxErrorBody = 8 * 1024
)

// Client 调用支付网关的交易接口，不做任何持久化。
type Client struct {
	baseURL     string
	secretKey   string
	callbackURL string
	currency    string
	http        *http.Client
}

// NewClient 根据配置构造网关客户端。
func NewClient(cfg config.PaymentConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		secretKey:   strings.TrimSpace(cfg.SecretKey),
		callbackURL: strings.TrimSpace(cfg.CallbackURL),
		currency:    cfg.Currency,
		http:        &http.Client{Timeout: timeout},
	}
}

// ToMinor 把主货币单位换算为最小单位（四舍五入）。
func ToMinor(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// InitializeRequest 是发起一笔交易所需的参数，Amount 为主货币单位。
type InitializeRequest struct {
	Email       string
	Amount      float64
	Currency    string
	Reference   string
	CallbackURL string
	Metadata    map[string]any
}

// InitializeResult 是网关返回的支付跳转信息。
type InitializeResult struct {
	AuthorizationURL string `json:"authorizationUrl"`
	AccessCode       string `json:"accessCode"`
	Reference        string `json:"reference"`
}

type gatewayEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Initialize 在网关创建交易。网关拒绝时返回 UpstreamRejected，网络错误时返回 UpstreamUnavailable。
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (InitializeResult, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return InitializeResult{}, errcode.Invalid("email is required")
	}
	if req.Amount <= 0 {
		return InitializeResult{}, errcode.Invalid("amount must be greater than zero")
	}

	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		reference = uuid.NewString()
	}
	currency := req.Currency
	if currency == "" {
		currency = c.currency
	}
	callback := req.CallbackURL
	if callback == "" {
		callback = c.callbackURL
	}

	body := map[string]any{
		"email":     email,
		"amount":    ToMinor(req.Amount),
		"currency":  currency,
		"reference": reference,
	}
	if callback != "" {
		body["callback_url"] = callback
	}
	if len(req.Metadata) > 0 {
		body["metadata"] = req.Metadata
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return InitializeResult{}, errcode.Failure("failed to encode payment request", err)
	}

	env, _, err := c.do(ctx, http.MethodPost, initializePath, payload)
	if err != nil {
		return InitializeResult{}, err
	}
	if !env.Status {
		return InitializeResult{}, errcode.New(errcode.UpstreamRejected, gatewayMessage(env.Message, "payment initialization failed"))
	}

	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return InitializeResult{}, errcode.Wrap(errcode.UpstreamUnavailable, "invalid payment gateway response", err)
	}
	if data.Reference == "" {
		data.Reference = reference
	}
	return InitializeResult{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}, nil
}

// Verification 是一次交易核验的结果。Success 为 false 时不是错误。
type Verification struct {
	Success   bool
	Reference string
	Amount    int64
	Currency  string
	Email     string
	Plan      string
	Type      string
	UserID    uint
	PaidAt    time.Time
	Message   string
	Raw       json.RawMessage
}

type verifyCustomer struct {
	Email string `json:"email"`
}

type verifyData struct {
	Status    string          `json:"status"`
	Reference string          `json:"reference"`
	Amount    int64           `json:"amount"`
	Currency  string          `json:"currency"`
	PaidAt    string          `json:"paid_at"`
	Customer  verifyCustomer  `json:"customer"`
	Metadata  json.RawMessage `json:"metadata"`
}

type verifyMetadata struct {
	Plan   string `json:"plan"`
	Type   string `json:"type"`
	UserID any    `json:"userId"`
}

// Verify 查询交易状态。仅当 status 为 true 且 data.status 为 success 时成功。
func (c *Client) Verify(ctx context.Context, reference string) (Verification, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return Verification{}, errcode.Invalid("reference is required")
	}

	env, raw, err := c.do(ctx, http.MethodGet, verifyPath+url.PathEscape(reference), nil)
	if err != nil {
		if errcode.Is(err, errcode.UpstreamRejected) {
			return Verification{Reference: reference, Message: errcode.Message(err), Raw: raw}, nil
		}
		return Verification{}, err
	}

	result := Verification{Reference: reference, Message: env.Message, Raw: raw}
	if !env.Status || len(env.Data) == 0 {
		return result, nil
	}

	var data verifyData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return result, nil
	}
	if data.Reference != "" {
		result.Reference = data.Reference
	}
	result.Amount = data.Amount
	result.Currency = data.Currency
	result.Email = data.Customer.Email
	if data.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, data.PaidAt); err == nil {
			result.PaidAt = t.UTC()
		}
	}

	// 网关在没有元数据时会返回空字符串。
	var meta verifyMetadata
	if len(data.Metadata) > 0 && data.Metadata[0] == '{' {
		if err := json.Unmarshal(data.Metadata, &meta); err == nil {
			result.Plan = meta.Plan
			result.Type = meta.Type
			result.UserID = parseUserID(meta.UserID)
		}
	}

	result.Success = data.Status == "success"
	if !result.Success && result.Message == "" {
		result.Message = "transaction " + data.Status
	}
	return result, nil
}

// do 发送请求并解析网关信封。非 2xx 映射为 UpstreamRejected。
func (c *Client) do(ctx context.Context, method, path string, body []byte) (gatewayEnvelope, json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return gatewayEnvelope{}, nil, errcode.Failure("failed to build payment request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return gatewayEnvelope{}, nil, errcode.Wrap(errcode.UpstreamUnavailable, "payment gateway unavailable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return gatewayEnvelope{}, nil, errcode.Wrap(errcode.UpstreamUnavailable, "failed to read payment gateway response", err)
	}

	var env gatewayEnvelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Message
		if decodeErr != nil || msg == "" {
			msg = fmt.Sprintf("payment gateway status %d: %s", resp.StatusCode, strings.TrimSpace(string(truncate(raw, maxErrorBody))))
		}
		return env, raw, errcode.New(errcode.UpstreamRejected, msg)
	}
	if decodeErr != nil {
		return gatewayEnvelope{}, raw, errcode.Wrap(errcode.UpstreamUnavailable, "invalid payment gateway response", decodeErr)
	}
	return env, raw, nil
}

func gatewayMessage(msg, fallback string) string {
	if strings.TrimSpace(msg) == "" {
		return fallback
	}
	return msg
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

// parseUserID 兼容数字与字符串两种写法。
func parseUserID(v any) uint {
	switch id := v.(type) {
	case float64:
		if id > 0 {
			return uint(id)
		}
	case string:
		if n, err := strconv.ParseUint(strings.TrimSpace(id), 10, 64); err == nil {
			return uint(n)
		}
	}
	return 0
}
