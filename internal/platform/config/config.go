package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIPort string
	JWTKey  []byte
	JWTExp  time.Duration

	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBSslMode     string
	DBConnStr     string
	DBApplySchema bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LogLevel     string
	LogFormat    string
	OTelExporter string

	JudgeURL          string
	JudgeAuthToken    string
	JudgeHTTPTimeout  time.Duration
	JudgePollInterval time.Duration
	JudgePollAttempts int

	LanguageCatalogPath string

	WorkerConcurrency  int
	QueueBackend       string // "redis" or "memory"
	SubmissionQueueKey string
	StaleSweepInterval time.Duration
	PendingStaleAfter  time.Duration

	LeaderboardBackend string // "redis" or "memory"
	LeaderboardTopN    int
	BroadcastRelay     string // "redis" or "local"

	RateLimitGlobalCapacity int
	RateLimitGlobalInterval time.Duration
	RateLimitUserCapacity   int
	RateLimitUserInterval   time.Duration
}

var AppConfig *Config

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = &Config{
		APIPort:       getEnv("API_PORT", "8080"),
		JWTKey:        []byte(getEnv("JWT_SECRET", "defaultsecret")),
		JWTExp:        time.Duration(getEnvAsInt("JWT_EXPIRATION_HOURS", 72)) * time.Hour,
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBUser:        getEnv("DB_USER", "user"),
		DBPassword:    getEnv("DB_PASSWORD", "password"),
		DBName:        getEnv("DB_NAME", "contest_judge"),
		DBSslMode:     getEnv("DB_SSLMODE", "disable"),
		DBApplySchema: getEnvAsBool("DB_APPLY_SCHEMA", false),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "text"),
		OTelExporter:  getEnv("OTEL_EXPORTER", "none"),

		JudgeURL:          getEnv("JUDGE_URL", "http://localhost:2358"),
		JudgeAuthToken:    getEnv("JUDGE_AUTH_TOKEN", ""),
		JudgeHTTPTimeout:  time.Duration(getEnvAsInt("JUDGE_HTTP_TIMEOUT_SECONDS", 15)) * time.Second,
		JudgePollInterval: time.Duration(getEnvAsInt("JUDGE_POLL_INTERVAL_MS", 1000)) * time.Millisecond,
		JudgePollAttempts: getEnvAsInt("JUDGE_POLL_MAX_ATTEMPTS", 30),

		LanguageCatalogPath: getEnv("LANGUAGE_CATALOG_PATH", ""),

		WorkerConcurrency:  getEnvAsInt("WORKER_CONCURRENCY", 16),
		QueueBackend:       strings.ToLower(getEnv("SUBMISSION_QUEUE_BACKEND", "redis")),
		SubmissionQueueKey: getEnv("SUBMISSION_QUEUE_NAME", "submission_judging_queue"),
		StaleSweepInterval: time.Duration(getEnvAsInt("STALE_SWEEP_INTERVAL_SECONDS", 30)) * time.Second,
		PendingStaleAfter:  time.Duration(getEnvAsInt("PENDING_STALE_AFTER_SECONDS", 0)) * time.Second,

		LeaderboardBackend: strings.ToLower(getEnv("LEADERBOARD_BACKEND", "redis")),
		LeaderboardTopN:    getEnvAsInt("LEADERBOARD_TOP_N", 10),
		BroadcastRelay:     strings.ToLower(getEnv("BROADCAST_RELAY", "local")),

		RateLimitGlobalCapacity: getEnvAsInt("RATE_LIMIT_GLOBAL_CAPACITY", 5),
		RateLimitGlobalInterval: time.Duration(getEnvAsInt("RATE_LIMIT_GLOBAL_INTERVAL_MS", 2000)) * time.Millisecond,
		RateLimitUserCapacity:   getEnvAsInt("RATE_LIMIT_USER_CAPACITY", 10),
		RateLimitUserInterval:   time.Duration(getEnvAsInt("RATE_LIMIT_USER_INTERVAL_MS", 5000)) * time.Millisecond,
	}

	if AppConfig.PendingStaleAfter <= 0 {
		AppConfig.PendingStaleAfter = AppConfig.DefaultPendingStaleAfter()
	}

	AppConfig.DBConnStr = "host=" + AppConfig.DBHost +
		" port=" + AppConfig.DBPort +
		" user=" + AppConfig.DBUser +
		" password=" + AppConfig.DBPassword +
		" dbname=" + AppConfig.DBName +
		" sslmode=" + AppConfig.DBSslMode
}

// PollWindow is the longest a dispatched submission can legitimately stay
// non-terminal.
func (c *Config) PollWindow() time.Duration {
	return c.JudgePollInterval * time.Duration(c.JudgePollAttempts)
}

// QueueWaitAllowance is how long a Pending submission may wait for a free
// worker before the sweeper treats it as lost.
const QueueWaitAllowance = time.Minute

// DefaultPendingStaleAfter bounds Pending by the poll window, one sweep
// interval and the queue wait allowance.
func (c *Config) DefaultPendingStaleAfter() time.Duration {
	return c.PollWindow() + c.StaleSweepInterval + QueueWaitAllowance
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}
