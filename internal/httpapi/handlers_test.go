package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lzajac/airdata/internal/config"
	"github.com/lzajac/airdata/internal/model"
	"github.com/lzajac/airdata/internal/store"
)

type mockStore struct {
	pingErr error

	inserted  []model.Measurement
	insertErr error
	nextID    int64

	lastFilter  store.QueryFilter
	queryResult []model.Measurement
	queryErr    error

	latest *model.Measurement

	stats store.Stats

	deleteFound bool
	deleteErr   error
	deletedID   int64
}

func (m *mockStore) Ping(ctx context.Context) error { return m.pingErr }

func (m *mockStore) Insert(ctx context.Context, rec model.Measurement) (int64, time.Time, error) {
	if m.insertErr != nil {
		return 0, time.Time{}, m.insertErr
	}
	m.nextID++
	m.inserted = append(m.inserted, rec)
	return m.nextID, time.Now().UTC(), nil
}

func (m *mockStore) Query(ctx context.Context, q store.QueryFilter) ([]model.Measurement, error) {
	m.lastFilter = q
	return m.queryResult, m.queryErr
}

func (m *mockStore) Latest(ctx context.Context, q store.QueryFilter) (*model.Measurement, error) {
	m.lastFilter = q
	return m.latest, m.queryErr
}

func (m *mockStore) Stats(ctx context.Context) (store.Stats, error) { return m.stats, nil }

func (m *mockStore) Delete(ctx context.Context, id int64) (bool, error) {
	m.deletedID = id
	return m.deleteFound, m.deleteErr
}

func testConfig() config.Config {
	return config.Config{
		CityName:        "Gdansk",
		Latitude:        54.3520,
		Longitude:       18.6466,
		APIKey:          "test-secret",
		RequireReadAuth: true,
		RateLimit:       100,
		DefaultLimit:    100,
		MaxLimit:        1000,
		Port:            8080,
	}
}

func doRequest(t *testing.T, srv *Server, method, path, apiKey, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	t.Run("store reachable", func(t *testing.T) {
		srv := New(testConfig(), &mockStore{})
		rec := doRequest(t, srv, http.MethodGet, "/health", "", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want 200", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["status"] != "ok" || body["database"] != "ok" {
			t.Errorf("body = %v; want ok/ok", body)
		}
	})

	t.Run("store outage reports degraded", func(t *testing.T) {
		srv := New(testConfig(), &mockStore{pingErr: errors.New("connection refused")})
		rec := doRequest(t, srv, http.MethodGet, "/health", "", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want 200 even when db is down", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["status"] != "degraded" || body["database"] != "unreachable" {
			t.Errorf("body = %v; want degraded/unreachable", body)
		}
	})
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"missing key", ""},
		{"wrong key", "wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &mockStore{}
			srv := New(testConfig(), st)
			rec := doRequest(t, srv, http.MethodPost, "/measurements", tt.key, `{"pm25": 1}`)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d; want 401", rec.Code)
			}
			if len(st.inserted) != 0 {
				t.Errorf("inserted %d rows on rejected request; want 0", len(st.inserted))
			}
		})
	}

	t.Run("unconfigured server key", func(t *testing.T) {
		cfg := testConfig()
		cfg.APIKey = ""
		srv := New(cfg, &mockStore{})
		rec := doRequest(t, srv, http.MethodPost, "/measurements", "anything", `{}`)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d; want 500 when no key configured", rec.Code)
		}
	})

	t.Run("read auth toggle off", func(t *testing.T) {
		cfg := testConfig()
		cfg.RequireReadAuth = false
		srv := New(cfg, &mockStore{queryResult: []model.Measurement{}})
		rec := doRequest(t, srv, http.MethodGet, "/measurements", "", "")
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d; want 200 without key when read auth is off", rec.Code)
		}
	})

	t.Run("read auth toggle on", func(t *testing.T) {
		srv := New(testConfig(), &mockStore{})
		rec := doRequest(t, srv, http.MethodGet, "/measurements", "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d; want 401 without key when read auth is on", rec.Code)
		}
	})
}

func TestCreateMeasurement(t *testing.T) {
	t.Run("station defaults applied", func(t *testing.T) {
		st := &mockStore{}
		srv := New(testConfig(), st)

		before := time.Now().UTC()
		rec := doRequest(t, srv, http.MethodPost, "/measurements", "test-secret",
			`{"city": "Gdansk", "pm25": 15.5, "station_id": 3387}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s; want 200", rec.Code, rec.Body.String())
		}

		body := decodeBody(t, rec)
		if body["status"] != "ok" {
			t.Errorf("status field = %v; want ok", body["status"])
		}
		if _, ok := body["id"].(float64); !ok {
			t.Errorf("id = %v; want integer id", body["id"])
		}
		ts, err := time.Parse(time.RFC3339, body["datetime_utc"].(string))
		if err != nil {
			t.Fatalf("datetime_utc %v unparsable: %v", body["datetime_utc"], err)
		}
		if ts.Before(before.Add(-time.Second)) || ts.After(time.Now().UTC().Add(time.Second)) {
			t.Errorf("datetime_utc = %v; want close to current UTC time", ts)
		}

		if len(st.inserted) != 1 {
			t.Fatalf("inserted = %d rows; want 1", len(st.inserted))
		}
		m := st.inserted[0]
		if m.Lat != 54.3520 || m.Lon != 18.6466 {
			t.Errorf("coords = (%v, %v); want configured station defaults", m.Lat, m.Lon)
		}
		if m.PM25 == nil || *m.PM25 != 15.5 {
			t.Errorf("PM25 = %v; want 15.5", m.PM25)
		}
		if m.PM10 != nil || m.Temperature != nil || m.Humidity != nil {
			t.Error("absent readings were not stored as nil")
		}
		if m.StationID == nil || *m.StationID != 3387 {
			t.Errorf("StationID = %v; want 3387", m.StationID)
		}
	})

	t.Run("validation failure names the field", func(t *testing.T) {
		st := &mockStore{}
		srv := New(testConfig(), st)
		rec := doRequest(t, srv, http.MethodPost, "/measurements", "test-secret", `{"pm25": "high"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d; want 400", rec.Code)
		}
		body := decodeBody(t, rec)
		msg, _ := body["error"].(string)
		if !strings.Contains(msg, "pm25") {
			t.Errorf("error = %q; want mention of the offending field", msg)
		}
		if len(st.inserted) != 0 {
			t.Errorf("inserted %d rows on invalid payload; want 0", len(st.inserted))
		}
	})

	t.Run("storage failure is a generic 500", func(t *testing.T) {
		st := &mockStore{insertErr: errors.New("pq: connection reset internal detail")}
		srv := New(testConfig(), st)
		rec := doRequest(t, srv, http.MethodPost, "/measurements", "test-secret", `{"pm25": 1}`)

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d; want 500", rec.Code)
		}
		if strings.Contains(rec.Body.String(), "internal detail") {
			t.Errorf("response leaks internal error detail: %s", rec.Body.String())
		}
	})
}

func TestListMeasurements(t *testing.T) {
	t.Run("limit clamped not rejected", func(t *testing.T) {
		st := &mockStore{queryResult: []model.Measurement{}}
		srv := New(testConfig(), st)
		rec := doRequest(t, srv, http.MethodGet, "/measurements?limit=999999", "test-secret", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want 200", rec.Code)
		}
		if st.lastFilter.Limit != 1000 {
			t.Errorf("Limit = %d; want clamped to 1000", st.lastFilter.Limit)
		}
	})

	t.Run("filters forwarded", func(t *testing.T) {
		st := &mockStore{queryResult: []model.Measurement{}}
		srv := New(testConfig(), st)
		doRequest(t, srv, http.MethodGet, "/measurements?city=Gdansk&station_id=3387&limit=5", "test-secret", "")

		if st.lastFilter.City != "Gdansk" {
			t.Errorf("City = %q; want Gdansk", st.lastFilter.City)
		}
		if st.lastFilter.StationID == nil || *st.lastFilter.StationID != 3387 {
			t.Errorf("StationID = %v; want 3387", st.lastFilter.StationID)
		}
		if st.lastFilter.Limit != 5 {
			t.Errorf("Limit = %d; want 5", st.lastFilter.Limit)
		}
	})

	t.Run("invalid station_id", func(t *testing.T) {
		srv := New(testConfig(), &mockStore{})
		rec := doRequest(t, srv, http.MethodGet, "/measurements?station_id=abc", "test-secret", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d; want 400", rec.Code)
		}
	})

	t.Run("invalid limit", func(t *testing.T) {
		srv := New(testConfig(), &mockStore{})
		rec := doRequest(t, srv, http.MethodGet, "/measurements?limit=-3", "test-secret", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d; want 400", rec.Code)
		}
	})
}

func TestLatestMeasurement(t *testing.T) {
	t.Run("empty store is not an error", func(t *testing.T) {
		srv := New(testConfig(), &mockStore{})
		rec := doRequest(t, srv, http.MethodGet, "/measurements/latest", "test-secret", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want 200", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["measurement"] != nil {
			t.Errorf("measurement = %v; want null", body["measurement"])
		}
	})

	t.Run("returns the record", func(t *testing.T) {
		pm := 10.0
		st := &mockStore{latest: &model.Measurement{ID: 7, City: "Gdansk", PM25: &pm}}
		srv := New(testConfig(), st)
		rec := doRequest(t, srv, http.MethodGet, "/measurements/latest", "test-secret", "")

		body := decodeBody(t, rec)
		if body["id"] != float64(7) {
			t.Errorf("id = %v; want 7", body["id"])
		}
	})
}

func TestStats(t *testing.T) {
	avg := 15.0
	st := &mockStore{stats: store.Stats{TotalRecords: 3, Cities: 1, Stations: 1, AvgPM25: &avg}}
	srv := New(testConfig(), st)
	rec := doRequest(t, srv, http.MethodGet, "/measurements/stats", "test-secret", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["total_records"] != float64(3) {
		t.Errorf("total_records = %v; want 3", body["total_records"])
	}
	if body["avg_pm25"] != float64(15) {
		t.Errorf("avg_pm25 = %v; want 15", body["avg_pm25"])
	}
	for _, field := range []string{"cities", "stations", "first_record", "last_record", "avg_pm10", "avg_aqi"} {
		if _, ok := body[field]; !ok {
			t.Errorf("stats body missing %q", field)
		}
	}
}

func TestDeleteMeasurement(t *testing.T) {
	t.Run("existing row", func(t *testing.T) {
		st := &mockStore{deleteFound: true}
		srv := New(testConfig(), st)
		rec := doRequest(t, srv, http.MethodDelete, "/measurements/42", "test-secret", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want 200", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["deleted_id"] != float64(42) {
			t.Errorf("deleted_id = %v; want 42", body["deleted_id"])
		}
		if st.deletedID != 42 {
			t.Errorf("store received id %d; want 42", st.deletedID)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		srv := New(testConfig(), &mockStore{deleteFound: false})
		rec := doRequest(t, srv, http.MethodDelete, "/measurements/42", "test-secret", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d; want 404", rec.Code)
		}
	})

	t.Run("non-numeric id", func(t *testing.T) {
		srv := New(testConfig(), &mockStore{})
		rec := doRequest(t, srv, http.MethodDelete, "/measurements/abc", "test-secret", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d; want 400", rec.Code)
		}
	})
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 2
	srv := New(cfg, &mockStore{queryResult: []model.Measurement{}})

	for i := 0; i < 2; i++ {
		rec := doRequest(t, srv, http.MethodGet, "/measurements", "test-secret", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d; want 200", i+1, rec.Code)
		}
	}

	rec := doRequest(t, srv, http.MethodGet, "/measurements", "test-secret", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d; want 429 past the limit", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header on rate-limited response")
	}
	body := decodeBody(t, rec)
	if _, ok := body["retry_after_seconds"]; !ok {
		t.Error("missing retry_after_seconds in rate-limited body")
	}

	// Liveness stays reachable regardless of the limiter.
	health := doRequest(t, srv, http.MethodGet, "/health", "", "")
	if health.Code != http.StatusOK {
		t.Errorf("/health status = %d; want 200", health.Code)
	}
}
