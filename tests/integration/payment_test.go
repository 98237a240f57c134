package integration

import (
	"net/http"
	"testing"
	"time"

	"encore/internal/models"
)

func TestPaymentCaptureConfirmsOrder(t *testing.T) {
	client := newClientOrSkip(t)

	eventID := uniqueID("event")
	sessionID := uniqueID("session")
	tierID := uniqueID("tier")
	userID := uniqueID("user")

	client.CreateStock(t, models.CreateLedgerRequest{
		EventID:         eventID,
		SessionID:       sessionID,
		TierID:          tierID,
		InitialQuantity: 4,
	})

	order, status := client.CreateOrder(t, models.CreateOrderRequest{
		UserID: userID,
		Lines: []models.OrderLine{
			{EventID: eventID, SessionID: sessionID, TierID: tierID, Quantity: 1},
		},
	})
	if status != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", status)
	}

	// The order.created consumer registers the charge asynchronously.
	var payment *models.Payment
	registered := waitFor(t, 15*time.Second, func() bool {
		p, code := client.GetPayment(t, order.ID)
		if code != http.StatusOK || p.ProviderRef == nil {
			return false
		}
		payment = p
		return true
	})
	if !registered {
		t.Fatal("Payment was never registered with the provider")
	}

	if code := client.CapturePayment(t, *payment.ProviderRef); code != http.StatusOK {
		t.Fatalf("Expected status 200 on capture, got %d", code)
	}

	// Capturing the same charge twice is a conflict.
	if code := client.CapturePayment(t, *payment.ProviderRef); code == http.StatusOK {
		t.Fatal("Second capture should not succeed")
	}

	paid := waitFor(t, 15*time.Second, func() bool {
		orders := client.ListOrders(t, userID)
		for _, o := range orders {
			if o.ID == order.ID && o.Status == "PAYMENT_SUCCESS" {
				return true
			}
		}
		return false
	})
	if !paid {
		t.Fatal("Order never reached PAYMENT_SUCCESS after capture")
	}

	// Stock stays consumed: a confirmed sale never returns quantity.
	stock := client.ListStock(t, eventID)
	item := FindStockItem(stock, sessionID, tierID)
	if item != nil && item.AvailableQty != 3 {
		t.Fatalf("Expected 3 available after confirmed sale, got %d", item.AvailableQty)
	}
}

func TestRefundRequiresCapturedPayment(t *testing.T) {
	client := newClientOrSkip(t)

	eventID := uniqueID("event")
	sessionID := uniqueID("session")
	tierID := uniqueID("tier")
	userID := uniqueID("user")

	client.CreateStock(t, models.CreateLedgerRequest{
		EventID:         eventID,
		SessionID:       sessionID,
		TierID:          tierID,
		InitialQuantity: 2,
	})

	order, status := client.CreateOrder(t, models.CreateOrderRequest{
		UserID: userID,
		Lines: []models.OrderLine{
			{EventID: eventID, SessionID: sessionID, TierID: tierID, Quantity: 1},
		},
	})
	if status != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", status)
	}

	var payment *models.Payment
	registered := waitFor(t, 15*time.Second, func() bool {
		p, code := client.GetPayment(t, order.ID)
		if code != http.StatusOK {
			return false
		}
		payment = p
		return true
	})
	if !registered {
		t.Fatal("Payment was never created")
	}

	// Refunding before capture is rejected.
	if code := client.RegisterRefund(t, payment.ID, "changed my mind"); code == http.StatusAccepted {
		t.Fatal("Refund of a pending payment should be rejected")
	}
}
