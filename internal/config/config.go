package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	Store     StoreConfig
	Lifecycle LifecycleConfig
	DB        DBConfig
	Kafka     KafkaConfig
}

// StoreConfig holds the remote order store settings
type StoreConfig struct {
	URL      string
	FilesURL string
	Timeout  time.Duration
	PageSize int
}

// LifecycleConfig holds the reconciler settings
type LifecycleConfig struct {
	IntentTimeout  time.Duration
	ResyncSchedule string
	JournalEnabled bool
	FeedEnabled    bool
}

// DBConfig holds the database configuration
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// KafkaConfig holds the broker settings
type KafkaConfig struct {
	Brokers        []string
	LifecycleTopic string
	OrdersTopic    string
	ConsumerGroup  string
}

// getEnv retrieves the value of an environment variable or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}

	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v, err := time.ParseDuration(getEnv(key, defaultValue.String()))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(defaultValue)))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// Load reads the configuration from environment variables and returns a Config struct.
// Values from envFiles fill in anything the process environment does not set;
// missing files are skipped.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, err
	}

	dbPort, err := getInt("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}

	storeTimeout, err := getDuration("ORDER_STORE_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	pageSize, err := getInt("ORDER_STORE_PAGE_SIZE", 50)
	if err != nil {
		return nil, err
	}

	intentTimeout, err := getDuration("INTENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	journal, err := getBool("JOURNAL_ENABLED", true)
	if err != nil {
		return nil, err
	}

	feed, err := getBool("FEED_ENABLED", true)
	if err != nil {
		return nil, err
	}

	storeURL := getEnv("ORDER_STORE_URL", "")
	if storeURL == "" {
		return nil, errors.New("ORDER_STORE_URL is required")
	}

	return &Config{
		Port:     port,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Env:      getEnv("APP_ENV", "development"),
		Store: StoreConfig{
			URL:      storeURL,
			FilesURL: getEnv("ORDER_STORE_FILES_URL", storeURL),
			Timeout:  storeTimeout,
			PageSize: pageSize,
		},
		Lifecycle: LifecycleConfig{
			IntentTimeout:  intentTimeout,
			ResyncSchedule: getEnv("RESYNC_SCHEDULE", "@every 1m"),
			JournalEnabled: journal,
			FeedEnabled:    feed,
		},
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "orderdesk"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Kafka: KafkaConfig{
			Brokers:        splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			LifecycleTopic: getEnv("KAFKA_LIFECYCLE_TOPIC", "order-lifecycle"),
			OrdersTopic:    getEnv("KAFKA_ORDERS_TOPIC", "orders"),
			ConsumerGroup:  getEnv("KAFKA_CONSUMER_GROUP", "orderdesk"),
		},
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetDBConnString returns the database connection string
func (c *Config) GetDBConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode)
}
