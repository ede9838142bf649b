package environment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/talgya/hexatlas/internal/geodesy"
)

// RemoteProvider asks an HTTP service for attributes. Each batch is one
// POST of {"points": [{lat, lon}, ...]}; the service answers
// {"attributes": [...]} in the same order.
type RemoteProvider struct {
	URL    string
	Client *http.Client
}

// NewRemoteProvider returns a provider for url with a 15 second timeout per batch.
func NewRemoteProvider(url string) *RemoteProvider {
	return &RemoteProvider{
		URL:    url,
		Client: &http.Client{Timeout: 15 * time.Second},
	}
}

type remoteRequest struct {
	Points []geodesy.GeoPoint `json:"points"`
}

type remoteResponse struct {
	Attributes []Attributes `json:"attributes"`
}

func (p *RemoteProvider) Resolve(ctx context.Context, points []geodesy.GeoPoint) ([]Attributes, error) {
	payload, err := json.Marshal(remoteRequest{Points: points})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("attribute service request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("attribute service call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read attribute response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if len(body) > 200 {
			body = body[:200]
		}
		return nil, fmt.Errorf("attribute service error %d: %s", resp.StatusCode, string(body))
	}

	var out remoteResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse attributes: %w", err)
	}
	if len(out.Attributes) != len(points) {
		return nil, fmt.Errorf("%w: sent %d points, got %d", ErrShortResult, len(points), len(out.Attributes))
	}

	slog.Debug("attributes fetched", "points", len(points), "bytes", len(body))
	return out.Attributes, nil
}
