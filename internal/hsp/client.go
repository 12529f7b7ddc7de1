// Package hsp fetches historical service performance details and flattens
// them into Darwin-like per-location rows keyed by CRS.
package hsp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ServiceDetails is the raw HSP response shape.
type ServiceDetails struct {
	ServiceAttributesDetails struct {
		RID           string            `json:"rid"`
		DateOfService string            `json:"date_of_service"`
		TOCCode       string            `json:"toc_code"`
		Locations     []ServiceLocation `json:"locations"`
	} `json:"serviceAttributesDetails"`
}

// ServiceLocation is one raw HSP location. Times are bare "HHMM" strings.
type ServiceLocation struct {
	Location       string `json:"location"` // CRS code
	GBTTPta        string `json:"gbtt_pta"`
	GBTTPtd        string `json:"gbtt_ptd"`
	ActualTa       string `json:"actual_ta"`
	ActualTd       string `json:"actual_td"`
	LateCancReason string `json:"late_canc_reason"`
}

// Client posts service-id lookups to the HSP service-details endpoint with
// basic auth.
type Client struct {
	url      string
	username string
	password string
	http     *http.Client
	logger   zerolog.Logger
}

// NewClient builds an HSP client.
func NewClient(url, username, password string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		url:      url,
		username: username,
		password: password,
		http:     &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "hsp-client").Logger(),
	}
}

// GetServiceDetails fetches the raw details for one RID. Transport errors,
// non-200 statuses, and unparseable bodies all return an error; callers
// count the affected group as skipped and move on.
func (c *Client) GetServiceDetails(ctx context.Context, rid string) (*ServiceDetails, error) {
	body, err := json.Marshal(map[string]string{"rid": rid})
	if err != nil {
		return nil, fmt.Errorf("failed to encode hsp request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build hsp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().Str("rid", rid).Err(err).Msg("hsp request failed")
		return nil, fmt.Errorf("hsp request failed for rid %s: %w", rid, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Str("rid", rid).Int("status", resp.StatusCode).Msg("hsp non-200")
		return nil, fmt.Errorf("hsp returned status %d for rid %s", resp.StatusCode, rid)
	}

	var details ServiceDetails
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		c.logger.Warn().Str("rid", rid).Err(err).Msg("hsp invalid json")
		return nil, fmt.Errorf("hsp returned invalid json for rid %s: %w", rid, err)
	}
	return &details, nil
}
