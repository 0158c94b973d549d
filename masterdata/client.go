// Package masterdata provides lookup of master-data entities for mention
// resolution (counterparties, items, terms, billing addresses).
package masterdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/procurechat/pochat/domain"
)

// Item is one master-data entity. Entity-specific fields beyond id and name
// land in Extra.
type Item struct {
	ID    string
	Name  string
	Extra map[string]any
}

// UnmarshalJSON captures id and name and keeps the remaining object fields.
func (i *Item) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["id"]; ok {
		if err := json.Unmarshal(v, &i.ID); err != nil {
			return err
		}
		delete(raw, "id")
	}
	if v, ok := raw["name"]; ok {
		if err := json.Unmarshal(v, &i.Name); err != nil {
			return err
		}
		delete(raw, "name")
	}
	if len(raw) > 0 {
		i.Extra = make(map[string]any, len(raw))
		for k, v := range raw {
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return err
			}
			i.Extra[k] = val
		}
	}
	return nil
}

// Client queries the master-data endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a master-data client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type searchResponse struct {
	Data []Item `json:"data"`
}

// Search returns up to limit entities of the given category matching the
// free-text query.
func (c *Client) Search(ctx context.Context, entityType domain.MentionType, query string, limit int) ([]Item, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	reqURL := fmt.Sprintf("%s/api/master/%s?%s", c.baseURL, entityType, params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("master-data API error [%d]: %s", resp.StatusCode, string(respBody))
	}

	var result searchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return result.Data, nil
}
