package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultInstallationID = 3387
	defaultLatitude       = 54.3520
	defaultLongitude      = 18.6466
	defaultCityName       = "Gdansk"
	defaultInterval       = 3600 * time.Second
	defaultTimeout        = 30 * time.Second
	defaultPort           = 8080
	defaultRateLimit      = 100
	defaultReadLimit      = 100
	defaultMaxReadLimit   = 1000
	defaultCSVFile        = "/data/airly_gdansk.csv"
	defaultForwardAlt     = 10.0
)

// Config holds environment-driven settings shared by the collector, the REST
// API and the database admin CLI.
type Config struct {
	// Provider (Airly) access and station identity.
	AirlyAPIKey    string
	InstallationID int64
	Latitude       float64
	Longitude      float64
	CityName       string

	// Collector behaviour.
	Interval       time.Duration
	RequestTimeout time.Duration
	EnableDatabase bool
	EnableCSV      bool
	CSVFile        string

	// Secondary downstream forwarding.
	EnableForward    bool
	ForwardURL       string
	ForwardSensorID  int64
	ForwardAltitude  float64
	ForwardVerifySSL bool

	// Database and API surface.
	DatabaseURL     string
	Port            int
	APIKey          string
	RequireReadAuth bool
	RateLimit       int
	DefaultLimit    int
	MaxLimit        int

	Debug bool
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load() // ignore missing file

	cfg := Config{
		InstallationID:   defaultInstallationID,
		Latitude:         defaultLatitude,
		Longitude:        defaultLongitude,
		CityName:         defaultCityName,
		Interval:         defaultInterval,
		RequestTimeout:   defaultTimeout,
		EnableDatabase:   true,
		CSVFile:          defaultCSVFile,
		ForwardSensorID:  1,
		ForwardAltitude:  defaultForwardAlt,
		ForwardVerifySSL: true,
		Port:             defaultPort,
		RequireReadAuth:  true,
		RateLimit:        defaultRateLimit,
		DefaultLimit:     defaultReadLimit,
		MaxLimit:         defaultMaxReadLimit,
	}

	cfg.AirlyAPIKey = strings.TrimSpace(os.Getenv("AIRLY_API_KEY"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.APIKey = os.Getenv("API_KEY")
	cfg.ForwardURL = strings.TrimSpace(os.Getenv("FORWARD_API_URL"))

	var err error
	if cfg.InstallationID, err = intVar("INSTALLATION_ID", cfg.InstallationID); err != nil {
		return cfg, err
	}
	if cfg.Latitude, err = floatVar("LATITUDE", cfg.Latitude); err != nil {
		return cfg, err
	}
	if cfg.Longitude, err = floatVar("LONGITUDE", cfg.Longitude); err != nil {
		return cfg, err
	}
	if v := os.Getenv("CITY_NAME"); v != "" {
		cfg.CityName = v
	}

	if v := os.Getenv("INTERVAL_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid INTERVAL_SECONDS: %s", v)
		}
		if secs < 1 {
			secs = 1
		}
		cfg.Interval = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("invalid REQUEST_TIMEOUT: %s", v)
		}
		cfg.RequestTimeout = d
	}

	cfg.EnableDatabase = boolVar("ENABLE_DATABASE", cfg.EnableDatabase)
	cfg.EnableCSV = boolVar("ENABLE_CSV", cfg.EnableCSV)
	if v := os.Getenv("CSV_FILE"); v != "" {
		cfg.CSVFile = v
	}

	cfg.EnableForward = boolVar("ENABLE_FORWARD", cfg.EnableForward)
	cfg.ForwardVerifySSL = boolVar("FORWARD_VERIFY_SSL", cfg.ForwardVerifySSL)
	if cfg.ForwardSensorID, err = intVar("FORWARD_SENSOR_ID", cfg.ForwardSensorID); err != nil {
		return cfg, err
	}
	if cfg.ForwardAltitude, err = floatVar("FORWARD_ALTITUDE", cfg.ForwardAltitude); err != nil {
		return cfg, err
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid PORT: %s", portStr)
		}
	} else if portStr := os.Getenv("API_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid API_PORT: %s", portStr)
		}
	}

	cfg.RequireReadAuth = boolVar("API_REQUIRE_READ_AUTH", cfg.RequireReadAuth)

	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return cfg, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %s", v)
		}
		cfg.RateLimit = n
	}
	if v := os.Getenv("API_DEFAULT_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return cfg, fmt.Errorf("invalid API_DEFAULT_LIMIT: %s", v)
		}
		cfg.DefaultLimit = n
	}
	if v := os.Getenv("API_MAX_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return cfg, fmt.Errorf("invalid API_MAX_LIMIT: %s", v)
		}
		cfg.MaxLimit = n
	}

	cfg.Debug = boolVar("DEBUG", false)

	return cfg, nil
}

// RequireDatabase returns an error when no database URL is configured.
func (c Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	return nil
}

// AirlyURL returns the provider endpoint for the configured installation.
func (c Config) AirlyURL() string {
	return fmt.Sprintf("https://airapi.airly.eu/v2/measurements/installation?installationId=%d", c.InstallationID)
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func intVar(name string, def int64) (int64, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %s", name, v)
	}
	return n, nil
}

func floatVar(name string, def float64) (float64, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %s", name, v)
	}
	return f, nil
}

func boolVar(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v == "1" || strings.EqualFold(v, "true")
}
