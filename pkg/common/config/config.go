package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LRS target numbers. Target 0 means "no LRS" and disables delivery.
const (
	LRSNo         = 0
	LRSProduction = 1
	LRSTest       = 2
)

// Actor identification modes.
const (
	ActorsIDUsername = "username"
	ActorsIDDBID     = "dbid"
	ActorsIDUUID     = "uuid"
	ActorsIDEmail    = "email"
)

type LRSConfig struct {
	Endpoint string
	Username string
	Password string

	// OAuth2 client-credentials auth. When TokenURL is set, it replaces
	// HTTP Basic auth for this target.
	TokenURL     string
	ClientID     string
	ClientSecret string
}

func (c LRSConfig) Configured() bool {
	return c.Endpoint != ""
}

type Config struct {
	// Server
	ServerHost string
	ServerPort string

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka (host platform event bus)
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// LRS targets
	LRS        LRSConfig
	LRS2       LRSConfig
	LRSTimeout time.Duration

	// Delivery queue
	QueueBatchSize int

	// Statement modeling
	ActivitiesBase      string
	ActorsHomepage      string
	ActorsIDMode        string
	ActorsIDCustomField string
	ActorsIncludeName   bool
	CustomTemplatesDir  string

	// Per-course source configuration file
	CoursesFile string

	// Scheduler
	ScanInterval  time.Duration
	FlushInterval time.Duration
}

func Load() *Config {
	return &Config{
		ServerHost: getEnv("SERVER_HOST", "0.0.0.0"),
		ServerPort: getEnv("SERVER_PORT", "8080"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "xapiagent"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "xapiagent123"),
		PostgresDB:       getEnv("POSTGRES_DB", "xapiagent"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers: getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "platform-events"),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "xapi-agent"),

		LRS: LRSConfig{
			Endpoint:     normalizeEndpoint(getEnv("LRS_ENDPOINT", "")),
			Username:     strings.TrimSpace(getEnv("LRS_USERNAME", "")),
			Password:     strings.TrimSpace(getEnv("LRS_PASSWORD", "")),
			TokenURL:     getEnv("LRS_TOKEN_URL", ""),
			ClientID:     getEnv("LRS_CLIENT_ID", ""),
			ClientSecret: getEnv("LRS_CLIENT_SECRET", ""),
		},
		LRS2: LRSConfig{
			Endpoint:     normalizeEndpoint(getEnv("LRS2_ENDPOINT", "")),
			Username:     strings.TrimSpace(getEnv("LRS2_USERNAME", "")),
			Password:     strings.TrimSpace(getEnv("LRS2_PASSWORD", "")),
			TokenURL:     getEnv("LRS2_TOKEN_URL", ""),
			ClientID:     getEnv("LRS2_CLIENT_ID", ""),
			ClientSecret: getEnv("LRS2_CLIENT_SECRET", ""),
		},
		LRSTimeout: getDuration("LRS_TIMEOUT", 10*time.Second),

		QueueBatchSize: getIntEnv("QUEUE_BATCH_SIZE", 100),

		ActivitiesBase:      normalizeEndpoint(getEnv("ACTIVITIES_ID_BASE", "http://localhost")),
		ActorsHomepage:      normalizeEndpoint(getEnv("ACTORS_ID_HOMEPAGE", "http://localhost")),
		ActorsIDMode:        getEnv("ACTORS_ID_MODE", ActorsIDUsername),
		ActorsIDCustomField: getEnv("ACTORS_ID_CUSTOM_FIELD", ""),
		ActorsIncludeName:   getEnv("ACTORS_ID_INCLUDE_NAME", "") == "1",
		CustomTemplatesDir:  getEnv("CUSTOM_TEMPLATES_DIR", ""),

		CoursesFile: getEnv("COURSES_FILE", "courses.yaml"),

		ScanInterval:  getDuration("SCAN_INTERVAL", 1*time.Minute),
		FlushInterval: getDuration("FLUSH_INTERVAL", 1*time.Minute),
	}
}

// TargetConfig returns the config of an LRS target by number.
func (c *Config) TargetConfig(lrs int) (LRSConfig, bool) {
	switch lrs {
	case LRSProduction:
		return c.LRS, c.LRS.Configured()
	case LRSTest:
		return c.LRS2, c.LRS2.Configured()
	}
	return LRSConfig{}, false
}

// Targets lists the configured LRS target numbers.
func (c *Config) Targets() []int {
	var out []int
	if c.LRS.Configured() {
		out = append(out, LRSProduction)
	}
	if c.LRS2.Configured() {
		out = append(out, LRSTest)
	}
	return out
}

// ActorsIDHomepage builds the homePage IRI for a given identification mode.
func (c *Config) ActorsIDHomepage(mode string) string {
	return c.ActorsHomepage + "/" + mode
}

func normalizeEndpoint(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
