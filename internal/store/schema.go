package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/lzajac/airdata/internal/model"
)

// Numeric scales mirror the declared measurement precision: pollutant
// concentrations carry 2 decimal places, coordinates 6.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS measurements (
    id BIGSERIAL PRIMARY KEY,
    datetime_utc TIMESTAMP NOT NULL,
    city VARCHAR(100) NOT NULL,
    lat NUMERIC(10, 6) NOT NULL,
    lon NUMERIC(10, 6) NOT NULL,
    hour_utc SMALLINT NOT NULL,
    minute_utc SMALLINT NOT NULL,
    pm25 NUMERIC(10, 2),
    pm10 NUMERIC(10, 2),
    temperature NUMERIC(6, 2),
    humidity NUMERIC(6, 2),
    pressure NUMERIC(8, 2),
    aqi NUMERIC(6, 2),
    station_id BIGINT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_measurements_datetime ON measurements (datetime_utc);
CREATE INDEX IF NOT EXISTS idx_measurements_city ON measurements (city);
CREATE INDEX IF NOT EXISTS idx_measurements_aqi ON measurements (aqi);
CREATE INDEX IF NOT EXISTS idx_measurements_station ON measurements (station_id);
`

// EnsureSchema creates the measurements table and its indexes if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return err
}

// TableInfo summarizes the table for the admin CLI status command.
type TableInfo struct {
	RowCount    int64
	FirstRecord *time.Time
	LastRecord  *time.Time
}

// Info returns row count and datetime range.
func (s *Store) Info(ctx context.Context) (TableInfo, error) {
	var info TableInfo
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*), MIN(datetime_utc), MAX(datetime_utc) FROM measurements",
	).Scan(&info.RowCount, &info.FirstRecord, &info.LastRecord)
	return info, err
}

// Truncate removes all rows from the measurements table.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "TRUNCATE TABLE measurements RESTART IDENTITY")
	return err
}

// MigrationResult reports the outcome of a CSV import.
type MigrationResult struct {
	Imported   int
	Duplicates int
	Skipped    int
}

// MigrateCSV imports audit-file rows into the measurements table.
// hour_utc/minute_utc columns in the file are ignored; the stored values are
// derived from the parsed timestamp. When skipDuplicates is set, rows whose
// datetime and city already exist are not re-imported.
func (s *Store) MigrateCSV(ctx context.Context, r io.Reader, defaultStationID int64, skipDuplicates bool) (MigrationResult, error) {
	var result MigrationResult

	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return result, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"datetime_utc", "city"} {
		if _, ok := col[required]; !ok {
			return result, fmt.Errorf("missing column %q", required)
		}
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Skipped++
			continue
		}

		m, err := rowToMeasurement(record, col, defaultStationID)
		if err != nil {
			result.Skipped++
			continue
		}

		if skipDuplicates {
			var existing int64
			err := s.pool.QueryRow(ctx,
				"SELECT id FROM measurements WHERE datetime_utc = $1 AND city = $2 LIMIT 1",
				m.DatetimeUTC, m.City,
			).Scan(&existing)
			if err == nil {
				result.Duplicates++
				continue
			}
		}

		if _, _, err := s.Insert(ctx, m); err != nil {
			return result, fmt.Errorf("insert row: %w", err)
		}
		result.Imported++
	}

	return result, nil
}

// MigrateCSVFile imports from a file path.
func (s *Store) MigrateCSVFile(ctx context.Context, path string, defaultStationID int64, skipDuplicates bool) (MigrationResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return MigrationResult{}, err
	}
	defer f.Close()
	return s.MigrateCSV(ctx, f, defaultStationID, skipDuplicates)
}

func rowToMeasurement(record []string, col map[string]int, defaultStationID int64) (model.Measurement, error) {
	cell := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	dt, err := time.Parse(model.TimeLayout, cell("datetime_utc"))
	if err != nil {
		return model.Measurement{}, err
	}

	m := model.Measurement{
		DatetimeUTC: dt.UTC(),
		City:        cell("city"),
		HourUTC:     dt.Hour(),
		MinuteUTC:   dt.Minute(),
	}
	if m.City == "" {
		return m, fmt.Errorf("empty city")
	}

	if m.Lat, err = strconv.ParseFloat(cell("lat"), 64); err != nil {
		return m, err
	}
	if m.Lon, err = strconv.ParseFloat(cell("lon"), 64); err != nil {
		return m, err
	}

	m.PM25 = optCell(cell("PM25"))
	m.PM10 = optCell(cell("PM10"))
	m.Temperature = optCell(cell("TEMPERATURE"))
	m.Humidity = optCell(cell("HUMIDITY"))
	m.Pressure = optCell(cell("PRESSURE"))
	m.AQI = optCell(cell("AQI"))

	stationID := defaultStationID
	if v := cell("station_id"); v != "" {
		if stationID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return m, err
		}
	}
	m.StationID = &stationID

	return m, nil
}

func optCell(v string) *float64 {
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}
