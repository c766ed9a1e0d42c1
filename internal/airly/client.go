// Package airly talks to the Airly measurements API. The payload is treated
// as untrusted input; callers run it through the shared validation path.
package airly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Client fetches installation measurements from the provider.
type Client struct {
	httpClient *http.Client
	url        string
	apiKey     string
}

// New builds a client for the given installation endpoint.
func New(httpClient *http.Client, url, apiKey string) *Client {
	return &Client{httpClient: httpClient, url: url, apiKey: apiKey}
}

// Response models the provider payload: a current entry plus a history of
// averaged windows.
type Response struct {
	Current *Entry  `json:"current"`
	History []Entry `json:"history"`
}

// Entry is one measurement window with named values and computed indexes.
type Entry struct {
	Values  []NamedValue `json:"values"`
	Indexes []Index      `json:"indexes"`
}

// NamedValue is a single named reading (PM25, TEMPERATURE, ...).
type NamedValue struct {
	Name  string   `json:"name"`
	Value *float64 `json:"value"`
}

// Index is a computed air-quality index entry.
type Index struct {
	Name  string   `json:"name"`
	Value *float64 `json:"value"`
}

// ErrNoData indicates a syntactically valid payload with no usable entry.
var ErrNoData = errors.New("no measurement data in provider response")

// Fetch retrieves the current installation payload.
func (c *Client) Fetch(ctx context.Context) (Response, error) {
	if c.apiKey == "" {
		return Response{}, errors.New("provider API key not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("request provider feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var payload Response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Response{}, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}

// Latest picks the entry to ingest: the current window when it carries
// values, otherwise the first history window.
func (r Response) Latest() (Entry, bool) {
	if r.Current != nil && len(r.Current.Values) > 0 {
		return *r.Current, true
	}
	if len(r.History) > 0 {
		return r.History[0], true
	}
	return Entry{}, false
}

// ValueMap flattens the entry's named values. Nil provider values are
// dropped.
func (e Entry) ValueMap() map[string]float64 {
	values := make(map[string]float64, len(e.Values))
	for _, v := range e.Values {
		if v.Value != nil {
			values[v.Name] = *v.Value
		}
	}
	return values
}

// AQI returns the first index value, if any.
func (e Entry) AQI() *float64 {
	if len(e.Indexes) == 0 {
		return nil
	}
	return e.Indexes[0].Value
}
