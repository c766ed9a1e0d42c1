package store

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lzajac/airdata/internal/model"
)

const (
	// DefaultLimit applies when a query does not request a row count.
	DefaultLimit = 100
	// MaxLimit caps requested row counts; larger requests are clamped.
	MaxLimit = 1000
)

// Store wraps database access helpers for the measurements table.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by a pgx pool. TLS towards the server is
// controlled by the connection URL (sslmode and friends).
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const insertSQL = `
    INSERT INTO measurements
        (datetime_utc, city, lat, lon, hour_utc, minute_utc,
         pm25, pm10, temperature, humidity, pressure, aqi, station_id)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
    RETURNING id, created_at
`

// Insert writes one measurement and returns the assigned id and creation
// timestamp. Duplicate readings are legal; id is the only unique column.
func (s *Store) Insert(ctx context.Context, m model.Measurement) (int64, time.Time, error) {
	var id int64
	var createdAt time.Time
	err := s.pool.QueryRow(ctx, insertSQL,
		m.DatetimeUTC,
		m.City,
		m.Lat,
		m.Lon,
		m.HourUTC,
		m.MinuteUTC,
		m.PM25,
		m.PM10,
		m.Temperature,
		m.Humidity,
		m.Pressure,
		m.AQI,
		m.StationID,
	).Scan(&id, &createdAt)
	if err != nil {
		return 0, time.Time{}, err
	}
	return id, createdAt, nil
}

// QueryFilter holds filters for retrieving measurements.
type QueryFilter struct {
	City      string
	StationID *int64
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

const selectColumns = `
    SELECT id, datetime_utc, city, lat, lon, hour_utc, minute_utc,
           pm25, pm10, temperature, humidity, pressure, aqi, station_id, created_at
    FROM measurements
    WHERE 1=1
`

// Query returns measurements matching the filter, newest first. The limit is
// clamped to [1, MaxLimit]; zero or negative requests fall back to
// DefaultLimit.
func (s *Store) Query(ctx context.Context, q QueryFilter) ([]model.Measurement, error) {
	sql, args := buildQuery(q)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	measurements := make([]model.Measurement, 0)
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, err
		}
		measurements = append(measurements, m)
	}
	return measurements, rows.Err()
}

// Latest returns the most recent measurement matching the filter, or nil when
// nothing matches.
func (s *Store) Latest(ctx context.Context, q QueryFilter) (*model.Measurement, error) {
	q.Limit = 1
	results, err := s.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

func buildQuery(q QueryFilter) (string, []any) {
	sql := selectColumns
	args := []any{}
	argPos := 1

	if q.City != "" {
		sql += " AND city = $" + strconv.Itoa(argPos)
		args = append(args, q.City)
		argPos++
	}
	if q.StationID != nil {
		sql += " AND station_id = $" + strconv.Itoa(argPos)
		args = append(args, *q.StationID)
		argPos++
	}
	if q.Since != nil {
		sql += " AND datetime_utc >= $" + strconv.Itoa(argPos)
		args = append(args, *q.Since)
		argPos++
	}
	if q.Until != nil {
		sql += " AND datetime_utc <= $" + strconv.Itoa(argPos)
		args = append(args, *q.Until)
		argPos++
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	sql += " ORDER BY datetime_utc DESC LIMIT $" + strconv.Itoa(argPos)
	args = append(args, limit)
	argPos++

	if q.Offset > 0 {
		sql += " OFFSET $" + strconv.Itoa(argPos)
		args = append(args, q.Offset)
	}

	return sql, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeasurement(row rowScanner) (model.Measurement, error) {
	var m model.Measurement
	err := row.Scan(
		&m.ID,
		&m.DatetimeUTC,
		&m.City,
		&m.Lat,
		&m.Lon,
		&m.HourUTC,
		&m.MinuteUTC,
		&m.PM25,
		&m.PM10,
		&m.Temperature,
		&m.Humidity,
		&m.Pressure,
		&m.AQI,
		&m.StationID,
		&m.CreatedAt,
	)
	return m, err
}

// Stats aggregates the whole table. Averages are computed over non-null
// values only (SQL AVG semantics) and are nil on an empty table.
type Stats struct {
	TotalRecords int64      `json:"total_records"`
	Cities       int64      `json:"cities"`
	Stations     int64      `json:"stations"`
	FirstRecord  *time.Time `json:"first_record"`
	LastRecord   *time.Time `json:"last_record"`
	AvgPM25      *float64   `json:"avg_pm25"`
	AvgPM10      *float64   `json:"avg_pm10"`
	AvgAQI       *float64   `json:"avg_aqi"`
}

const statsSQL = `
    SELECT
        COUNT(*) AS total_records,
        COUNT(DISTINCT city) AS cities,
        COUNT(DISTINCT station_id) AS stations,
        MIN(datetime_utc) AS first_record,
        MAX(datetime_utc) AS last_record,
        AVG(pm25) AS avg_pm25,
        AVG(pm10) AS avg_pm10,
        AVG(aqi) AS avg_aqi
    FROM measurements
`

// Stats returns table-wide aggregates.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx, statsSQL).Scan(
		&st.TotalRecords,
		&st.Cities,
		&st.Stations,
		&st.FirstRecord,
		&st.LastRecord,
		&st.AvgPM25,
		&st.AvgPM10,
		&st.AvgAQI,
	)
	return st, err
}

// Delete removes one measurement by id. It reports whether a row existed;
// deleting an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM measurements WHERE id = $1", id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
