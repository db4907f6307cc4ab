package payments

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// PhonePeProductionHost is the live pay-page API host.
	PhonePeProductionHost = "https://api.phonepe.com/apis/hermes"
	// PhonePeSandboxHost is the pre-production pay-page API host.
	PhonePeSandboxHost = "https://api-preprod.phonepe.com/apis/hermes"

	phonePePayPath    = "/pg/v1/pay"
	phonePeStatusPath = "/pg/v1/status"

	defaultPhonePeTimeout = 15 * time.Second
)

// PhonePeLogger defines the logging contract for PhonePe provider operations.
type PhonePeLogger func(ctx context.Context, event string, fields map[string]any)

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// PhonePeProviderConfig configures the PhonePeProvider.
type PhonePeProviderConfig struct {
	MerchantID string
	SaltKey    string
	SaltIndex  string
	// Host defaults to the sandbox unless Production is set.
	Host       string
	Production bool
	Timeout    time.Duration
	HTTPClient httpDoer
	Logger     PhonePeLogger
}

// PhonePeProvider implements the Provider interface against the hosted
// pay-page API. Requests are authenticated with an X-VERIFY checksum over
// the payload, the API path and the merchant salt.
type PhonePeProvider struct {
	merchantID string
	saltKey    string
	saltIndex  string
	host       string
	client     httpDoer
	logger     PhonePeLogger
}

var _ Provider = (*PhonePeProvider)(nil)

// NewPhonePeProvider constructs a PhonePe Provider using the given configuration.
func NewPhonePeProvider(cfg PhonePeProviderConfig) (*PhonePeProvider, error) {
	merchantID := strings.TrimSpace(cfg.MerchantID)
	if merchantID == "" {
		return nil, errors.New("phonepe: merchant id is required")
	}
	saltKey := strings.TrimSpace(cfg.SaltKey)
	if saltKey == "" {
		return nil, errors.New("phonepe: salt key is required")
	}
	saltIndex := strings.TrimSpace(cfg.SaltIndex)
	if saltIndex == "" {
		saltIndex = "1"
	}

	host := strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	if host == "" {
		host = PhonePeSandboxHost
		if cfg.Production {
			host = PhonePeProductionHost
		}
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultPhonePeTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &PhonePeProvider{
		merchantID: merchantID,
		saltKey:    saltKey,
		saltIndex:  saltIndex,
		host:       host,
		client:     client,
		logger:     logger,
	}, nil
}

type phonePePayInstrument struct {
	Type string `json:"type"`
}

type phonePePayPayload struct {
	MerchantID            string               `json:"merchantId"`
	MerchantTransactionID string               `json:"merchantTransactionId"`
	MerchantUserID        string               `json:"merchantUserId"`
	Amount                int64                `json:"amount"`
	RedirectURL           string               `json:"redirectUrl"`
	RedirectMode          string               `json:"redirectMode"`
	CallbackURL           string               `json:"callbackUrl"`
	MobileNumber          string               `json:"mobileNumber,omitempty"`
	PaymentInstrument     phonePePayInstrument `json:"paymentInstrument"`
}

type phonePeEnvelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type phonePePayData struct {
	InstrumentResponse struct {
		RedirectInfo struct {
			URL string `json:"url"`
		} `json:"redirectInfo"`
	} `json:"instrumentResponse"`
}

type phonePeStatusData struct {
	TransactionID string `json:"transactionId"`
	Amount        int64  `json:"amount"`
	State         string `json:"state"`
	ResponseCode  string `json:"responseCode"`
}

// CreatePayPage opens a hosted pay-page session for the transaction.
func (p *PhonePeProvider) CreatePayPage(ctx context.Context, req PayPageRequest) (PayPageSession, error) {
	txnID := strings.TrimSpace(req.MerchantTransactionID)
	if txnID == "" {
		return PayPageSession{}, errors.New("phonepe: merchant transaction id is required")
	}
	if req.Amount <= 0 {
		return PayPageSession{}, errors.New("phonepe: amount must be positive paise")
	}
	redirectURL := strings.TrimSpace(req.RedirectURL)
	if redirectURL == "" {
		return PayPageSession{}, errors.New("phonepe: redirect url is required")
	}
	callbackURL := strings.TrimSpace(req.CallbackURL)
	if callbackURL == "" {
		callbackURL = redirectURL
	}

	payload := phonePePayPayload{
		MerchantID:            p.merchantID,
		MerchantTransactionID: txnID,
		MerchantUserID:        strings.TrimSpace(req.MerchantUserID),
		Amount:                req.Amount,
		RedirectURL:           redirectURL,
		RedirectMode:          "REDIRECT",
		CallbackURL:           callbackURL,
		MobileNumber:          strings.TrimSpace(req.Mobile),
		PaymentInstrument:     phonePePayInstrument{Type: "PAY_PAGE"},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return PayPageSession{}, fmt.Errorf("phonepe: encode payload: %w", err)
	}
	base64Payload := base64.StdEncoding.EncodeToString(encoded)

	body, err := json.Marshal(map[string]string{"request": base64Payload})
	if err != nil {
		return PayPageSession{}, fmt.Errorf("phonepe: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+phonePePayPath, bytes.NewReader(body))
	if err != nil {
		return PayPageSession{}, fmt.Errorf("phonepe: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-VERIFY", p.checksum(base64Payload+phonePePayPath))

	envelope, err := p.send(ctx, httpReq)
	if err != nil {
		return PayPageSession{}, err
	}
	if !envelope.Success {
		p.logger(ctx, "phonepe.pay_rejected", map[string]any{
			"transactionId": txnID,
			"code":          envelope.Code,
			"message":       envelope.Message,
		})
		return PayPageSession{}, fmt.Errorf("%w: %s", ErrGatewayRejected, envelope.Code)
	}

	var data phonePePayData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return PayPageSession{}, fmt.Errorf("phonepe: decode pay response: %w", err)
	}
	payURL := strings.TrimSpace(data.InstrumentResponse.RedirectInfo.URL)
	if payURL == "" {
		return PayPageSession{}, fmt.Errorf("%w: missing redirect url", ErrGatewayRejected)
	}

	p.logger(ctx, "phonepe.pay_created", map[string]any{
		"transactionId": txnID,
		"amount":        req.Amount,
	})
	return PayPageSession{
		TransactionID: txnID,
		RedirectURL:   payURL,
	}, nil
}

// LookupPayment queries the transaction state for reconciliation.
func (p *PhonePeProvider) LookupPayment(ctx context.Context, req StatusRequest) (PaymentDetails, error) {
	txnID := strings.TrimSpace(req.MerchantTransactionID)
	if txnID == "" {
		return PaymentDetails{}, errors.New("phonepe: merchant transaction id is required")
	}

	statusPath := fmt.Sprintf("%s/%s/%s", phonePeStatusPath, p.merchantID, txnID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.host+statusPath, nil)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("phonepe: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-VERIFY", p.checksum(statusPath))
	httpReq.Header.Set("X-MERCHANT-ID", p.merchantID)

	envelope, err := p.send(ctx, httpReq)
	if err != nil {
		return PaymentDetails{}, err
	}

	var data phonePeStatusData
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return PaymentDetails{}, fmt.Errorf("phonepe: decode status response: %w", err)
		}
	}

	details := PaymentDetails{
		Provider:      "phonepe",
		TransactionID: txnID,
		Status:        mapPhonePeCode(envelope.Code),
		Code:          envelope.Code,
		Amount:        data.Amount,
	}
	p.logger(ctx, "phonepe.status_checked", map[string]any{
		"transactionId": txnID,
		"code":          envelope.Code,
		"status":        string(details.Status),
	})
	return details, nil
}

// checksum implements the X-VERIFY scheme: sha256 over the message plus the
// salt key, hex encoded, suffixed with the salt index.
func (p *PhonePeProvider) checksum(message string) string {
	sum := sha256.Sum256([]byte(message + p.saltKey))
	return hex.EncodeToString(sum[:]) + "###" + p.saltIndex
}

func (p *PhonePeProvider) send(ctx context.Context, req *http.Request) (phonePeEnvelope, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return phonePeEnvelope{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return phonePeEnvelope{}, fmt.Errorf("%w: read response: %v", ErrGatewayUnavailable, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return phonePeEnvelope{}, fmt.Errorf("%w: http %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var envelope phonePeEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return phonePeEnvelope{}, fmt.Errorf("%w: decode response: %v", ErrGatewayUnavailable, err)
	}
	return envelope, nil
}

func mapPhonePeCode(code string) Status {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "PAYMENT_SUCCESS":
		return StatusSucceeded
	case "PAYMENT_ERROR", "PAYMENT_DECLINED", "TIMED_OUT":
		return StatusFailed
	default:
		return StatusPending
	}
}
