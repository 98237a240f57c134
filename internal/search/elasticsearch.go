package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"encore/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// TicketIndex stores confirmed reservations as searchable ticket documents.
// It is fed by the reservation-confirmed consumer and read by the tickets
// endpoint; it is never part of a saga decision.
type TicketIndex struct {
	client *elasticsearch.Client
	index  string
}

type Config struct {
	URL        string
	Username   string
	Password   string
	Index      string
	MaxRetries int
}

func NewTicketIndex(cfg Config) (*TicketIndex, error) {
	if cfg.Index == "" {
		cfg.Index = "tickets"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{cfg.URL},
		Username:      cfg.Username,
		Password:      cfg.Password,
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	idx := &TicketIndex{client: es, index: cfg.Index}

	if err := idx.ensureIndex(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ensure index exists: %w", err)
	}

	return idx, nil
}

func (t *TicketIndex) ensureIndex(ctx context.Context) error {
	req := esapi.IndicesExistsRequest{
		Index: []string{t.index},
	}

	res, err := req.Do(ctx, t.client)
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		slog.Info("Elasticsearch index already exists", "index", t.index)
		return nil
	}

	mapping := map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"reservation_id": map[string]interface{}{"type": "keyword"},
				"order_id":       map[string]interface{}{"type": "keyword"},
				"user_id":        map[string]interface{}{"type": "keyword"},
				"event_id":       map[string]interface{}{"type": "keyword"},
				"session_id":     map[string]interface{}{"type": "keyword"},
				"tier_id":        map[string]interface{}{"type": "keyword"},
				"quantity":       map[string]interface{}{"type": "long"},
				"confirmed_at": map[string]interface{}{
					"type":   "date",
					"format": "strict_date_optional_time||epoch_millis",
				},
			},
		},
	}

	mappingJSON, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	createReq := esapi.IndicesCreateRequest{
		Index: t.index,
		Body:  strings.NewReader(string(mappingJSON)),
	}

	createRes, err := createReq.Do(ctx, t.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		return fmt.Errorf("failed to create index: %s", createRes.String())
	}

	slog.Info("Created Elasticsearch index", "index", t.index)
	return nil
}

// Index upserts one ticket document keyed by reservation id, so redelivered
// confirmation events overwrite instead of duplicating.
func (t *TicketIndex) Index(ctx context.Context, ticket *models.Ticket) error {
	doc, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("failed to marshal ticket: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      t.index,
		DocumentID: ticket.ReservationID,
		Body:       bytes.NewReader(doc),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, t.client)
	if err != nil {
		return fmt.Errorf("failed to index ticket: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("Elasticsearch error: %s", res.String())
	}

	return nil
}

// Search returns a user's tickets, optionally narrowed to one event.
func (t *TicketIndex) Search(ctx context.Context, userID, eventID string, page, pageSize int) ([]models.Ticket, error) {
	filters := []map[string]interface{}{
		{"term": map[string]interface{}{"user_id": userID}},
	}
	if eventID != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"event_id": eventID},
		})
	}

	searchQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": filters,
			},
		},
		"from": (page - 1) * pageSize,
		"size": pageSize,
		"sort": []map[string]interface{}{
			{"confirmed_at": map[string]interface{}{"order": "desc"}},
		},
	}

	queryJSON, err := json.Marshal(searchQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{t.index},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, t.client)
	if err != nil {
		return nil, fmt.Errorf("failed to search tickets: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("Elasticsearch error: %s", res.String())
	}

	var response struct {
		Hits struct {
			Hits []struct {
				Source models.Ticket `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	tickets := make([]models.Ticket, len(response.Hits.Hits))
	for i, hit := range response.Hits.Hits {
		tickets[i] = hit.Source
	}

	return tickets, nil
}
