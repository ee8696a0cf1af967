// Package vector provides a minimal Qdrant REST client for the
// cancellation-reason similarity index.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Index is the vector-index contract consumed by the sync worker and the
// semantic ride search.
type Index interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, dimensions int) error

	// Upsert writes points into the collection, replacing points with the
	// same ID.
	Upsert(ctx context.Context, points []Point) error

	// Search returns the payloads of the limit nearest points.
	Search(ctx context.Context, embedding []float32, limit int) ([]Hit, error)
}

// Point is one indexed vector with its payload.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Hit is one search result.
type Hit struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Client talks to a Qdrant instance over its REST API.
type Client struct {
	baseURL    string
	collection string
	http       *http.Client
}

// Compile-time interface check
var _ Index = (*Client)(nil)

// NewClient creates a client for the given Qdrant base URL and collection.
func NewClient(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		http:       &http.Client{Timeout: 30 * time.Second},
	}
}

// EnsureCollection creates the collection with cosine distance if it does
// not already exist.
func (c *Client) EnsureCollection(ctx context.Context, dimensions int) error {
	status, _, err := c.do(ctx, http.MethodGet, "/collections/"+c.collection, nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimensions,
			"distance": "Cosine",
		},
	}
	status, raw, err := c.do(ctx, http.MethodPut, "/collections/"+c.collection, body)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("qdrant create collection: http %d: %s", status, raw)
	}
	return nil
}

// Upsert writes points into the collection.
func (c *Client) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	body := map[string]any{"points": points}
	status, raw, err := c.do(ctx, http.MethodPut, "/collections/"+c.collection+"/points?wait=true", body)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("qdrant upsert: http %d: %s", status, raw)
	}
	return nil
}

// Search returns the limit nearest points with their payloads.
func (c *Client) Search(ctx context.Context, embedding []float32, limit int) ([]Hit, error) {
	body := map[string]any{
		"vector":       embedding,
		"limit":        limit,
		"with_payload": true,
	}
	status, raw, err := c.do(ctx, http.MethodPost, "/collections/"+c.collection+"/points/search", body)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("qdrant search: http %d: %s", status, raw)
	}

	var out struct {
		Result []Hit `json:"result"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("qdrant search decode: %w", err)
	}
	return out.Result, nil
}

// do issues one JSON request and returns the status code and raw body.
func (c *Client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("qdrant encode request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("qdrant request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("qdrant read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}
