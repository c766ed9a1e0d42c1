// Package collector runs the fetch-normalize-persist cycle against the
// external air-quality provider.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lzajac/airdata/internal/airly"
	"github.com/lzajac/airdata/internal/config"
	"github.com/lzajac/airdata/internal/model"
	"github.com/lzajac/airdata/internal/validate"
)

// Fetcher retrieves the raw provider payload.
type Fetcher interface {
	Fetch(ctx context.Context) (airly.Response, error)
}

// Inserter is the primary persistence sink.
type Inserter interface {
	Insert(ctx context.Context, m model.Measurement) (int64, time.Time, error)
}

// AuditSink receives a parallel copy of each persisted measurement.
type AuditSink interface {
	Append(m model.Measurement) error
}

// Forwarder pushes measurements to the secondary downstream API.
type Forwarder interface {
	Send(ctx context.Context, m model.Measurement) error
}

// Collector owns one station's collection cycle. The CSV and forward sinks
// are optional and independent: a failure in either never fails the tick.
type Collector struct {
	cfg     config.Config
	fetcher Fetcher
	db      Inserter
	audit   AuditSink
	forward Forwarder
	log     *zap.SugaredLogger
	now     func() time.Time
}

// New wires a collector. db, audit and forward may be nil when the matching
// feature toggle is off.
func New(cfg config.Config, fetcher Fetcher, db Inserter, audit AuditSink, forward Forwarder, log *zap.SugaredLogger) *Collector {
	return &Collector{
		cfg:     cfg,
		fetcher: fetcher,
		db:      db,
		audit:   audit,
		forward: forward,
		log:     log,
		now:     time.Now,
	}
}

// RunOnce performs a single fetch-normalize-persist cycle. The returned error
// covers the fetch, normalization and primary persistence stages only.
func (c *Collector) RunOnce(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	resp, err := c.fetcher.Fetch(fetchCtx)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	entry, ok := resp.Latest()
	if !ok {
		return airly.ErrNoData
	}

	m, err := c.normalize(entry)
	if err != nil {
		return fmt.Errorf("normalize: %w", err)
	}

	if c.db != nil {
		id, _, err := c.db.Insert(ctx, m)
		if err != nil {
			return fmt.Errorf("persist: %w", err)
		}
		c.log.Infow("saved measurement",
			"id", id,
			"datetime_utc", m.DatetimeUTC.Format(time.RFC3339),
			"pm25", model.ValuePtrString(m.PM25),
			"pm10", model.ValuePtrString(m.PM10),
			"aqi", model.ValuePtrString(m.AQI),
		)
	}

	if c.audit != nil {
		if err := c.audit.Append(m); err != nil {
			c.log.Errorw("csv backup failed", "error", err)
		}
	}
	if c.forward != nil {
		if err := c.forward.Send(ctx, m); err != nil {
			c.log.Errorw("forward failed", "error", err)
		}
	}

	return nil
}

// Run executes cycles on the configured interval until the context is
// cancelled. The first cycle runs immediately; a failed cycle is logged and
// the next one stays on schedule.
func (c *Collector) Run(ctx context.Context) error {
	c.logConfig()

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := c.RunOnce(ctx); err != nil {
			c.log.Errorw("collection failed, will retry next interval", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// normalize routes the provider entry through the shared validation path so
// both ingestion sources obey the same rules.
func (c *Collector) normalize(entry airly.Entry) (model.Measurement, error) {
	values := entry.ValueMap()

	raw := make(map[string]json.RawMessage)
	setNum := func(field string, v float64) {
		b, _ := json.Marshal(v)
		raw[field] = b
	}

	for provider, field := range providerFields {
		if v, ok := values[provider]; ok {
			setNum(field, v)
		}
	}
	if aqi := entry.AQI(); aqi != nil {
		setNum("aqi", *aqi)
	}
	setNum("station_id", float64(c.cfg.InstallationID))

	defaults := validate.Defaults{
		City: c.cfg.CityName,
		Lat:  c.cfg.Latitude,
		Lon:  c.cfg.Longitude,
	}
	return validate.Normalize(raw, defaults, c.now())
}

// providerFields maps provider value names onto measurement fields.
var providerFields = map[string]string{
	"PM25":        "pm25",
	"PM10":        "pm10",
	"TEMPERATURE": "temperature",
	"HUMIDITY":    "humidity",
	"PRESSURE":    "pressure",
}

func (c *Collector) logConfig() {
	c.log.Infow("collector starting",
		"city", c.cfg.CityName,
		"lat", c.cfg.Latitude,
		"lon", c.cfg.Longitude,
		"station_id", c.cfg.InstallationID,
		"interval", c.cfg.Interval.String(),
		"database", c.db != nil,
		"csv_backup", c.audit != nil,
		"forwarding", c.forward != nil,
	)
}
