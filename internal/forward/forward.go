// Package forward pushes normalized measurements to a secondary downstream
// API. Delivery is best-effort: errors are returned for logging only and
// never affect the primary persistence path.
package forward

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lzajac/airdata/internal/model"
)

// Client sends measurements to the downstream sink.
type Client struct {
	httpClient *http.Client
	url        string
	sensorID   int64
	altitude   float64
}

// New builds a forwarding client. verifySSL=false disables certificate
// verification for sinks behind self-signed certs.
func New(url string, sensorID int64, altitude float64, verifySSL bool, timeout time.Duration) *Client {
	transport := http.DefaultTransport
	if !verifySSL {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		url:        url,
		sensorID:   sensorID,
		altitude:   altitude,
	}
}

// payload is the downstream wire format. The sink requires numbers for every
// reading, so nil readings degrade to zero here (and only here).
type payload struct {
	ID         int64   `json:"id"`
	TS         string  `json:"ts"`
	Pos        string  `json:"pos"`
	Temp       float64 `json:"temp"`
	Hum        float64 `json:"hum"`
	Pres       float64 `json:"pres"`
	MassPM25   float64 `json:"mass_pm2_5"`
	MassPM10   float64 `json:"mass_pm10"`
	MassPM10f  float64 `json:"mass_pm1_0"`
	MassPM4    float64 `json:"mass_pm4"`
	NumberPM05 float64 `json:"number_pm0_5"`
	NumberPM10 float64 `json:"number_pm1_0"`
	NumberPM25 float64 `json:"number_pm2_5"`
	NumberPM4  float64 `json:"number_pm4"`
	NumberPM1  float64 `json:"number_pm10"`
}

// Send forwards one measurement.
func (c *Client) Send(ctx context.Context, m model.Measurement) error {
	if c.url == "" {
		return fmt.Errorf("forward URL not configured")
	}

	pm25 := orZero(m.PM25)
	pm10 := orZero(m.PM10)
	body := payload{
		ID:   c.sensorID,
		TS:   m.DatetimeUTC.Format(model.TimeLayout),
		Pos:  fmt.Sprintf("POINTZ(%g %g %g)", m.Lat, m.Lon, c.altitude),
		Temp: orZero(m.Temperature),
		Hum:  orZero(m.Humidity),
		Pres: orZero(m.Pressure),

		MassPM25: pm25,
		MassPM10: pm10,
		// The sink has no PM1 source; approximate from PM2.5.
		MassPM10f: pm25 * 0.7,
		MassPM4:   pm10,
	}

	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("forward request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("forward rejected: %s", resp.Status)
	}
	return nil
}

func orZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
