package model

import (
	"fmt"
	"strconv"
	"time"
)

// Measurement is one normalized air-quality observation. Reading fields use
// pointers so that "not measured" survives the round trip to the database as
// NULL instead of collapsing to zero.
type Measurement struct {
	ID          int64     `json:"id,omitempty"`
	DatetimeUTC time.Time `json:"datetime_utc"`
	City        string    `json:"city"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	HourUTC     int       `json:"hour_utc"`
	MinuteUTC   int       `json:"minute_utc"`
	PM25        *float64  `json:"pm25"`
	PM10        *float64  `json:"pm10"`
	Temperature *float64  `json:"temperature"`
	Humidity    *float64  `json:"humidity"`
	Pressure    *float64  `json:"pressure"`
	AQI         *float64  `json:"aqi"`
	StationID   *int64    `json:"station_id"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// TimeLayout is the plain timestamp format used by the CSV audit file and the
// downstream forwarding API.
const TimeLayout = "2006-01-02 15:04:05"

// CSVHeaders is the audit-file header row, in column order.
var CSVHeaders = []string{
	"datetime_utc", "city", "lat", "lon", "hour_utc", "minute_utc",
	"PM25", "PM10", "TEMPERATURE", "HUMIDITY", "PRESSURE", "AQI",
}

// CSVRow renders the measurement as an audit-file row. Nil readings become
// empty strings.
func (m Measurement) CSVRow() []string {
	return []string{
		m.DatetimeUTC.Format(TimeLayout),
		m.City,
		strconv.FormatFloat(m.Lat, 'f', -1, 64),
		strconv.FormatFloat(m.Lon, 'f', -1, 64),
		strconv.Itoa(m.HourUTC),
		strconv.Itoa(m.MinuteUTC),
		floatCell(m.PM25),
		floatCell(m.PM10),
		floatCell(m.Temperature),
		floatCell(m.Humidity),
		floatCell(m.Pressure),
		floatCell(m.AQI),
	}
}

func floatCell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// ValuePtrString prints optional readings for logging.
func ValuePtrString(v *float64) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%.2f", *v)
}
