package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/landslide-rainfall-etl/internal/domain"
)

// Export sinks.
const (
	SinkFile  = "file"
	SinkDrive = "drive"
	SinkS3    = "s3"
	SinkKafka = "kafka"
)

// DefaultPointsTable is the Earth Engine table of Magelang 2018 landslide points.
const DefaultPointsTable = "users/bennyistanto/datasets/table/idn_nhr_ls_3308_magelang_2018_p_example"

// Config holds all job settings, populated from environment variables.
type Config struct {
	// Earth Engine session.
	EEProject         string
	EECredentialsFile string
	EEEndpoint        string
	EETimeout         time.Duration

	// Archive query.
	Collection    string
	Band          string
	ReduceScale   float64
	LookbackDays  int
	LookaheadDays int

	// Point source. PointsFile takes precedence over PointsTable.
	PointsTable string
	PointsFile  string
	PointsMaxID int64

	QueryConcurrency int
	DateFormat       string

	// Export.
	ExportSink  string
	ExportName  string
	OutputDir   string
	DriveFolder string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Secure    bool
	S3Region    string

	KafkaBrokers []string
	KafkaTopic   string
	BatchSize    int

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// LoadDotEnv loads a .env file from the working directory when one exists.
// Variables already set in the environment win.
func LoadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	return godotenv.Load()
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	eeTimeout, err := parsePositiveDuration("EE_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}

	scale, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("REDUCE_SCALE", "30"), 64)
	if err != nil || scale <= 0 {
		return nil, errors.New("invalid REDUCE_SCALE")
	}

	lookback, err := parseInt("LOOKBACK_DAYS", 10, 0, 366)
	if err != nil {
		return nil, err
	}
	lookahead, err := parseInt("LOOKAHEAD_DAYS", 1, 0, 366)
	if err != nil {
		return nil, err
	}
	if lookback+lookahead == 0 {
		return nil, errors.New("LOOKBACK_DAYS and LOOKAHEAD_DAYS describe an empty window")
	}

	concurrency, err := parseInt("QUERY_CONCURRENCY", 4, 1, 64)
	if err != nil {
		return nil, err
	}

	maxID, err := parseInt("POINTS_MAX_ID", 0, 0, 1_000_000_000)
	if err != nil {
		return nil, err
	}

	s3Secure, err := strconv.ParseBool(sharedcfg.EnvOrDefault("S3_SECURE", "false"))
	if err != nil {
		return nil, errors.New("invalid S3_SECURE")
	}

	cfg := &Config{
		EEProject:         os.Getenv("EE_PROJECT"),
		EECredentialsFile: os.Getenv("EE_CREDENTIALS_FILE"),
		EEEndpoint:        os.Getenv("EE_ENDPOINT"),
		EETimeout:         eeTimeout,

		Collection:    sharedcfg.EnvOrDefault("IMERG_COLLECTION", "NASA/GPM_L3/IMERG_V06"),
		Band:          sharedcfg.EnvOrDefault("IMERG_BAND", "precipitationCal"),
		ReduceScale:   scale,
		LookbackDays:  lookback,
		LookaheadDays: lookahead,

		PointsTable: sharedcfg.EnvOrDefault("POINTS_TABLE", DefaultPointsTable),
		PointsFile:  os.Getenv("POINTS_FILE"),
		PointsMaxID: int64(maxID),

		QueryConcurrency: concurrency,
		DateFormat:       sharedcfg.EnvOrDefault("DATE_FORMAT", "24h"),

		ExportSink:  strings.ToLower(sharedcfg.EnvOrDefault("EXPORT_SINK", SinkFile)),
		ExportName:  sharedcfg.EnvOrDefault("EXPORT_NAME", "landslide_rainfall"),
		OutputDir:   sharedcfg.EnvOrDefault("OUTPUT_DIR", "."),
		DriveFolder: sharedcfg.EnvOrDefault("DRIVE_FOLDER", "GEE"),

		S3Endpoint:  sharedcfg.EnvOrDefault("S3_ENDPOINT", "localhost:9000"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),
		S3Bucket:    sharedcfg.EnvOrDefault("S3_BUCKET", "rainfall-exports"),
		S3Secure:    s3Secure,
		S3Region:    os.Getenv("S3_REGION"),

		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "landslide-rainfall"),
		BatchSize:    batchSize,

		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.EEProject == "" {
		return errors.New("EE_PROJECT is required")
	}
	if c.PointsFile == "" && c.PointsTable == "" {
		return errors.New("POINTS_FILE or POINTS_TABLE is required")
	}
	if c.Collection == "" {
		return errors.New("IMERG_COLLECTION is required")
	}
	if c.Band == "" {
		return errors.New("IMERG_BAND is required")
	}
	if c.ExportName == "" {
		return errors.New("EXPORT_NAME is required")
	}

	layout, err := domain.ParseDateLayout(c.DateFormat)
	if err != nil {
		return fmt.Errorf("invalid DATE_FORMAT %q: want 24h or legacy", c.DateFormat)
	}
	c.DateFormat = string(layout)

	switch c.ExportSink {
	case SinkFile:
		if c.OutputDir == "" {
			return errors.New("OUTPUT_DIR is required for the file sink")
		}
	case SinkDrive:
		if c.DriveFolder == "" {
			return errors.New("DRIVE_FOLDER is required for the drive sink")
		}
	case SinkS3:
		if c.S3AccessKey == "" || c.S3SecretKey == "" {
			return errors.New("S3_ACCESS_KEY and S3_SECRET_KEY are required for the s3 sink")
		}
		if c.S3Bucket == "" {
			return errors.New("S3_BUCKET is required for the s3 sink")
		}
	case SinkKafka:
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required for the kafka sink")
		}
		if c.KafkaTopic == "" {
			return errors.New("KAFKA_TOPIC is required for the kafka sink")
		}
	default:
		return fmt.Errorf("invalid EXPORT_SINK %q: want file, drive, s3 or kafka", c.ExportSink)
	}
	return nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be an integer in [%d, %d]", key, lo, hi)
	}
	return n, nil
}
