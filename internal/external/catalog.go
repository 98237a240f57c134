package external

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apperrors "encore/internal/errors"
)

// CatalogClient resolves tiers and sessions from the catalog service. The
// order machine freezes prices from these lookups at creation time.
type CatalogClient struct {
	baseURL    string
	httpClient *http.Client
}

type CatalogConfig struct {
	BaseURL string
	Timeout time.Duration
}

type TierResponse struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Price     int64  `json:"price"` // cents
}

type SessionResponse struct {
	ID      string `json:"id"`
	EventID string `json:"event_id"`
}

func NewCatalogClient(cfg CatalogConfig) *CatalogClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &CatalogClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// ResolveTier returns the tier's current price and session. A 404 maps to
// ErrProductNotFound (the order is rejected outright); any other failure maps
// to ErrExternalService (the caller may retry).
func (cc *CatalogClient) ResolveTier(tierID string) (*TierResponse, error) {
	resp, err := cc.httpClient.Get(cc.baseURL + "/api/v1/tiers/" + tierID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve tier: %v", apperrors.ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: tier %s", apperrors.ErrProductNotFound, tierID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code %d", apperrors.ErrExternalService, resp.StatusCode)
	}

	var result TierResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode tier response: %v", apperrors.ErrExternalService, err)
	}

	return &result, nil
}

// ResolveSession returns the event a session belongs to.
func (cc *CatalogClient) ResolveSession(sessionID string) (*SessionResponse, error) {
	resp, err := cc.httpClient.Get(cc.baseURL + "/api/v1/sessions/" + sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve session: %v", apperrors.ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: session %s", apperrors.ErrProductNotFound, sessionID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code %d", apperrors.ErrExternalService, resp.StatusCode)
	}

	var result SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode session response: %v", apperrors.ErrExternalService, err)
	}

	return &result, nil
}
