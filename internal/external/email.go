package external

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apperrors "encore/internal/errors"
)

// EmailClient posts notifications to the mail gateway. Sends are
// fire-and-forget from the saga's perspective: a failure is retryable and
// never blocks the domain transition that triggered it.
type EmailClient struct {
	baseURL    string
	httpClient *http.Client
}

type EmailConfig struct {
	BaseURL string
	Timeout time.Duration
}

type sendEmailRequest struct {
	UserID   string `json:"user_id"`
	Template string `json:"template"`
	Subject  string `json:"subject"`
	OrderID  string `json:"order_id,omitempty"`
}

func NewEmailClient(cfg EmailConfig) *EmailClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &EmailClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (ec *EmailClient) Send(userID, template, subject, orderID string) error {
	req := sendEmailRequest{
		UserID:   userID,
		Template: template,
		Subject:  subject,
		OrderID:  orderID,
	}

	jsonBody, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := ec.httpClient.Post(ec.baseURL+"/api/v1/emails", "application/json", bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("%w: failed to send email: %v", apperrors.ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: unexpected status code %d", apperrors.ErrExternalService, resp.StatusCode)
	}

	return nil
}
