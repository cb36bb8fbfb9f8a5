package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// Schwellwert für das Fuzzy-Matching (Partial-Ratio, 0-100). Die
	// 90 stammt aus der Kuratierungspraxis; niedriger heißt mehr
	// automatische Zusammenführungen und mehr falsche Treffer.
	MatchThreshold int `envconfig:"MATCH_THRESHOLD" default:"90"`
	// Seitengröße des Duplikat-Scans.
	DedupeChunkSize int `envconfig:"DEDUPE_CHUNK_SIZE" default:"500"`
	// "direct" oder "index"; bestimmt die Suchstrategie des Scans.
	DedupeStrategy string `envconfig:"DEDUPE_STRATEGY" default:"direct"`
	// Name, unter dem automatische Merges im Audit-Trail auftauchen.
	ScanCreator string `envconfig:"SCAN_CREATOR" default:"catalog-hand"`

	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"0 3 * * *"`

	S3Key    string `envconfig:"S3_KEY" required:"true"`
	S3Secret string `envconfig:"S3_SECRET" required:"true"`
	S3URL    string `envconfig:"S3_URL" required:"true"`
	S3Region string `envconfig:"S3_REGION" required:"true"`
	S3Bucket string `envconfig:"S3_BUCKET" required:"true"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
