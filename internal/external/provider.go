package external

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	apperrors "encore/internal/errors"
	"encore/internal/models"
)

// ProviderClient talks to the external charge provider. A refusal is a typed
// business outcome (ErrPaymentRefused), never a crash; transport and 5xx
// failures map to ErrExternalService so callers can retry.
type ProviderClient struct {
	baseURL    string
	merchantID string
	secret     string
	httpClient *http.Client
}

type ProviderConfig struct {
	BaseURL    string
	MerchantID string
	Secret     string
	Timeout    time.Duration
}

type createOrderRequest struct {
	MerchantID string `json:"merchantId"`
	Token      string `json:"token"`
	Amount     int64  `json:"amount"`
	OrderID    string `json:"orderId"`
	Currency   string `json:"currency"`
}

type createOrderResponse struct {
	Success    bool   `json:"success"`
	ProviderID string `json:"providerId"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

type captureRequest struct {
	MerchantID string `json:"merchantId"`
	Token      string `json:"token"`
	ProviderID string `json:"providerId"`
}

type captureResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func NewProviderClient(cfg ProviderConfig) *ProviderClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &ProviderClient{
		baseURL:    cfg.BaseURL,
		merchantID: cfg.MerchantID,
		secret:     cfg.Secret,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// generateToken signs a request: parameters sorted alphabetically, values
// concatenated with the merchant secret, SHA-256 over the result.
func (pc *ProviderClient) generateToken(params map[string]string) string {
	params["MerchantId"] = pc.merchantID
	params["Secret"] = pc.secret

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var tokenString string
	for _, key := range keys {
		tokenString += params[key]
	}

	hash := sha256.Sum256([]byte(tokenString))
	return hex.EncodeToString(hash[:])
}

// CreatePaymentOrder registers the charge with the provider and returns its
// reference. The provider saying no is ErrPaymentRefused.
func (pc *ProviderClient) CreatePaymentOrder(payment *models.Payment) (string, error) {
	token := pc.generateToken(map[string]string{
		"Amount":  strconv.FormatInt(payment.Amount, 10),
		"OrderId": payment.OrderID,
	})

	req := createOrderRequest{
		MerchantID: pc.merchantID,
		Token:      token,
		Amount:     payment.Amount,
		OrderID:    payment.OrderID,
		Currency:   "EUR",
	}

	jsonBody, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := pc.httpClient.Post(pc.baseURL+"/api/v1/orders", "application/json", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create payment order: %v", apperrors.ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return "", fmt.Errorf("%w: unexpected status code %d", apperrors.ErrExternalService, resp.StatusCode)
	}

	var result createOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %v", apperrors.ErrExternalService, err)
	}

	if !result.Success {
		return "", fmt.Errorf("%w: %s", apperrors.ErrPaymentRefused, result.Message)
	}

	return result.ProviderID, nil
}

// CapturePayment finalizes a previously created charge.
func (pc *ProviderClient) CapturePayment(providerRef string) error {
	return pc.post("/api/v1/captures", providerRef)
}

// CancelPayment voids a charge that has not been captured.
func (pc *ProviderClient) CancelPayment(providerRef string) error {
	return pc.post("/api/v1/cancellations", providerRef)
}

// RefundPayment returns money for a captured charge.
func (pc *ProviderClient) RefundPayment(providerRef string) error {
	return pc.post("/api/v1/refunds", providerRef)
}

func (pc *ProviderClient) post(path, providerRef string) error {
	token := pc.generateToken(map[string]string{
		"ProviderId": providerRef,
	})

	req := captureRequest{
		MerchantID: pc.merchantID,
		Token:      token,
		ProviderID: providerRef,
	}

	jsonBody, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := pc.httpClient.Post(pc.baseURL+path, "application/json", bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("%w: provider call failed: %v", apperrors.ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: unexpected status code %d", apperrors.ErrExternalService, resp.StatusCode)
	}

	var result captureResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", apperrors.ErrExternalService, err)
	}

	if !result.Success {
		return fmt.Errorf("%w: %s", apperrors.ErrPaymentRefused, result.Message)
	}

	return nil
}
