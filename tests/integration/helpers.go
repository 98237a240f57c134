package integration

import (
	"fmt"
	"os"
	"testing"
	"time"

	"encore/internal/models"
)

const defaultBaseURL = "http://localhost:8081"

// newClientOrSkip skips the test unless a running stack is available. Set
// INTEGRATION_BASE_URL to point the suite at a deployed API.
func newClientOrSkip(t *testing.T) *TestClient {
	baseURL := os.Getenv("INTEGRATION_BASE_URL")
	if baseURL == "" {
		t.Skip("INTEGRATION_BASE_URL not set, skipping integration test")
	}
	if baseURL == "default" {
		baseURL = defaultBaseURL
	}
	return NewTestClient(baseURL)
}

// uniqueID returns a test-scoped identifier so parallel runs do not collide.
func uniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// FindStockItem locates one tier's availability in a stock listing.
func FindStockItem(stock []models.StockResponseItem, sessionID, tierID string) *models.StockResponseItem {
	for i := range stock {
		if stock[i].SessionID == sessionID && stock[i].TierID == tierID {
			return &stock[i]
		}
	}
	return nil
}

// AssertOrderStatus verifies an order's status in a listing.
func AssertOrderStatus(t *testing.T, orders []models.ListOrdersResponseItem, orderID, expectedStatus string) {
	for _, order := range orders {
		if order.ID == orderID {
			if order.Status != expectedStatus {
				t.Fatalf("Order %s has status '%s', expected '%s'", orderID, order.Status, expectedStatus)
			}
			return
		}
	}
	t.Fatalf("Order with ID %s not found in orders list", orderID)
}

// waitFor polls until the condition holds or the deadline passes. The saga is
// asynchronous: state transitions land when consumers process their events,
// not when the triggering request returns.
func waitFor(t *testing.T, timeout time.Duration, check func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return true
		}
		time.Sleep(500 * time.Millisecond)
	}
	return false
}
