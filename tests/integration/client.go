package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"encore/internal/models"
)

// TestClient provides methods for exercising the API of a running stack.
type TestClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewTestClient(baseURL string) *TestClient {
	return &TestClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *TestClient) makeRequest(t *testing.T, method, path string, body interface{}) *http.Response {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reqBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// CreateStock registers a ledger with its opening quantity.
func (c *TestClient) CreateStock(t *testing.T, req models.CreateLedgerRequest) {
	resp := c.makeRequest(t, "POST", "/api/stock", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusConflict {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected status 201 or 409, got %d. Body: %s", resp.StatusCode, string(body))
	}
}

// ListStock returns availability for an event.
func (c *TestClient) ListStock(t *testing.T, eventID string) []models.StockResponseItem {
	resp := c.makeRequest(t, "GET", "/api/stock?event_id="+eventID, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected status 200, got %d. Body: %s", resp.StatusCode, string(body))
	}

	var stock []models.StockResponseItem
	if err := json.NewDecoder(resp.Body).Decode(&stock); err != nil {
		t.Fatalf("Failed to decode stock response: %v", err)
	}

	return stock
}

// CreateOrder creates a new order; returns the response and status code so
// callers can assert rejection paths too.
func (c *TestClient) CreateOrder(t *testing.T, req models.CreateOrderRequest) (*models.CreateOrderResponse, int) {
	resp := c.makeRequest(t, "POST", "/api/orders", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, resp.StatusCode
	}

	var order models.CreateOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		t.Fatalf("Failed to decode order response: %v", err)
	}

	return &order, resp.StatusCode
}

// GetOrder fetches one order with its items.
func (c *TestClient) GetOrder(t *testing.T, orderID string) *models.Order {
	resp := c.makeRequest(t, "GET", "/api/orders/"+orderID, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected status 200, got %d. Body: %s", resp.StatusCode, string(body))
	}

	var order models.Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		t.Fatalf("Failed to decode order response: %v", err)
	}

	return &order
}

// ListOrders lists orders for a user.
func (c *TestClient) ListOrders(t *testing.T, userID string) []models.ListOrdersResponseItem {
	resp := c.makeRequest(t, "GET", "/api/orders?user_id="+userID, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected status 200, got %d. Body: %s", resp.StatusCode, string(body))
	}

	var orders []models.ListOrdersResponseItem
	if err := json.NewDecoder(resp.Body).Decode(&orders); err != nil {
		t.Fatalf("Failed to decode orders response: %v", err)
	}

	return orders
}

// CancelOrder cancels an order; returns the status code.
func (c *TestClient) CancelOrder(t *testing.T, orderID string, force bool) int {
	req := models.CancelOrderRequest{
		OrderID: orderID,
		Force:   force,
	}

	resp := c.makeRequest(t, "PATCH", "/api/orders/cancel", req)
	defer resp.Body.Close()

	return resp.StatusCode
}

// GetPayment fetches the payment for an order.
func (c *TestClient) GetPayment(t *testing.T, orderID string) (*models.Payment, int) {
	resp := c.makeRequest(t, "GET", "/api/payments/"+orderID, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode
	}

	var payment models.Payment
	if err := json.NewDecoder(resp.Body).Decode(&payment); err != nil {
		t.Fatalf("Failed to decode payment response: %v", err)
	}

	return &payment, resp.StatusCode
}

// CapturePayment simulates the provider confirming a charge.
func (c *TestClient) CapturePayment(t *testing.T, providerRef string) int {
	req := models.CapturePaymentRequest{
		ProviderRef: providerRef,
	}

	resp := c.makeRequest(t, "POST", "/api/payments/capture", req)
	defer resp.Body.Close()

	return resp.StatusCode
}

// RegisterRefund records a refund decision for a captured payment.
func (c *TestClient) RegisterRefund(t *testing.T, paymentID, reason string) int {
	req := models.RefundRequest{
		PaymentID: paymentID,
		Reason:    reason,
	}

	resp := c.makeRequest(t, "POST", "/api/refunds", req)
	defer resp.Body.Close()

	return resp.StatusCode
}

// HealthCheck checks if the API is healthy.
func (c *TestClient) HealthCheck(t *testing.T) {
	resp := c.makeRequest(t, "GET", "/health", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Health check failed with status %d", resp.StatusCode)
	}
}
