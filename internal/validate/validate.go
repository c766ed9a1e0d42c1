// Package validate converts raw inbound measurement payloads, from the API
// write path and from the collector, into canonical Measurement records.
package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/lzajac/airdata/internal/model"
)

// MaxCityLen is the city column width in the measurements table.
const MaxCityLen = 100

// FieldError reports a malformed or out-of-range payload field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

// Defaults supplies the station identity used when a payload omits its
// location fields.
type Defaults struct {
	City string
	Lat  float64
	Lon  float64
}

// Timestamp formats accepted on input. Plain timestamps are assumed UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	model.TimeLayout,
}

// ParsePayload decodes a JSON object body into a raw field map. Unknown
// fields survive here and are ignored by Normalize.
func ParsePayload(body []byte) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &FieldError{Field: "body", Reason: "must be a JSON object"}
	}
	return raw, nil
}

// Normalize produces a canonical Measurement from a raw payload.
//
// Missing city/lat/lon fall back to the configured station defaults. Missing
// reading fields stay nil; zero is a legal reading and is never confused with
// "not measured". hour_utc/minute_utc are always derived from the resolved
// timestamp, never taken from the payload.
func Normalize(raw map[string]json.RawMessage, def Defaults, now time.Time) (model.Measurement, error) {
	m := model.Measurement{
		City: def.City,
		Lat:  round(def.Lat, 6),
		Lon:  round(def.Lon, 6),
	}

	ts := now.UTC().Truncate(time.Second)
	if msg, ok := present(raw, "datetime_utc"); ok {
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return m, &FieldError{Field: "datetime_utc", Reason: "must be a timestamp string"}
		}
		parsed, err := parseTime(s)
		if err != nil {
			return m, &FieldError{Field: "datetime_utc", Reason: fmt.Sprintf("unparsable timestamp %q", s)}
		}
		ts = parsed
	}
	m.DatetimeUTC = ts
	m.HourUTC = ts.Hour()
	m.MinuteUTC = ts.Minute()

	if msg, ok := present(raw, "city"); ok {
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return m, &FieldError{Field: "city", Reason: "must be a string"}
		}
		if len(s) > MaxCityLen {
			return m, &FieldError{Field: "city", Reason: fmt.Sprintf("exceeds %d characters", MaxCityLen)}
		}
		m.City = s
	}

	if v, err := optFloat(raw, "lat"); err != nil {
		return m, err
	} else if v != nil {
		m.Lat = round(*v, 6)
	}
	if v, err := optFloat(raw, "lon"); err != nil {
		return m, err
	} else if v != nil {
		m.Lon = round(*v, 6)
	}

	var err error
	if m.PM25, err = reading(raw, "pm25"); err != nil {
		return m, err
	}
	if m.PM10, err = reading(raw, "pm10"); err != nil {
		return m, err
	}
	if m.Temperature, err = reading(raw, "temperature"); err != nil {
		return m, err
	}
	if m.Humidity, err = reading(raw, "humidity"); err != nil {
		return m, err
	}
	if m.Pressure, err = reading(raw, "pressure"); err != nil {
		return m, err
	}
	if m.AQI, err = reading(raw, "aqi"); err != nil {
		return m, err
	}

	if msg, ok := present(raw, "station_id"); ok {
		var id int64
		if err := json.Unmarshal(msg, &id); err != nil {
			return m, &FieldError{Field: "station_id", Reason: "must be an integer"}
		}
		m.StationID = &id
	}

	return m, nil
}

// present reports whether a field carries a value; explicit JSON null counts
// as absent.
func present(raw map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	msg, ok := raw[name]
	if !ok || string(msg) == "null" {
		return nil, false
	}
	return msg, true
}

func optFloat(raw map[string]json.RawMessage, name string) (*float64, error) {
	msg, ok := present(raw, name)
	if !ok {
		return nil, nil
	}
	var v float64
	if err := json.Unmarshal(msg, &v); err != nil {
		return nil, &FieldError{Field: name, Reason: "must be a number"}
	}
	return &v, nil
}

// reading extracts an optional measurement value, rounded to the stored
// 2-decimal scale.
func reading(raw map[string]json.RawMessage, name string) (*float64, error) {
	v, err := optFloat(raw, name)
	if err != nil || v == nil {
		return nil, err
	}
	r := round(*v, 2)
	return &r, nil
}

func parseTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func round(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
