package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting the service reads from the environment. Fields
// are grouped by the component that consumes them, mirroring SPEC_FULL.md's
// component table.
type Config struct {
	ServerPort     string
	PrometheusPort string
	LogLevel       string

	// Mongo backs C1 (identity), C2 (sync versions), C4 (interactions),
	// C7 (moderation), C10 (admin/reports) plus favorites/allowlist/news.
	MongoURI      string
	MongoUser     string
	MongoPassword string
	DBName        string

	// Cassandra backs C6 (message queue).
	CassandraHosts    []string
	CassandraKeyspace string
	CassandraUser     string
	CassandraPassword string

	// Redis backs C1's token blacklist, C3's L2 cache, C5's GEO buckets and
	// iterator sessions, and per-action rate limiting.
	RedisURLs []string
	RedisPass string

	// Kafka backs C9's cross-instance event fan-out.
	KafkaBrokers  []string
	EventsTopic   string
	DeadLetterTTL time.Duration

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	RefreshCookieName string
	CookieDomain      string
	CookieSecure      bool

	RateLimitEnabled bool
	RateLimitLimit   float64
	RateLimitBurst   int

	// Media storage (MinIO) referenced by moderation payload_reference.
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageUseSSL    bool
	StoragePublicURL string

	// Profile-snapshot history archive (§6 "separate append-only history
	// store for profile snapshots"), reusing the media bucket mechanism.
	ProfileHistoryBucket string

	CORSAllowedOrigins []string

	JaegerOTLPEndpoint string
	TracingEnabled     bool

	// Discovery iterator tuning (C5).
	DiscoveryBucketRadiusKM float64
	DiscoveryIteratorTTL    time.Duration

	// Account cache ceiling (C3).
	AccountCacheCeiling int

	// Interval of the moderation lease-expiry sweep (C7). The claim lease
	// length itself is the moderation package's fixed leaseDuration.
	ModerationLeaseTTL time.Duration

	// Per-day like cap, bypassed by Profile.UnlimitedLikes (Open Question #3).
	DailyLikeCap int

	// Demo-mode login supplement, gated off by default.
	DemoModeEnabled bool
	DemoModeToken   string
}

func LoadConfig() *Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("config: no .env file found, using process environment")
	}

	accessTTL, _ := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "15"))
	refreshTTL, _ := strconv.Atoi(getEnv("REFRESH_TOKEN_TTL_DAYS", "30"))
	rateLimitEnabled, _ := strconv.ParseBool(getEnv("RATE_LIMIT_ENABLED", "true"))
	rateLimitLimit, _ := strconv.ParseFloat(getEnv("RATE_LIMIT_LIMIT", "50"), 64)
	rateLimitBurst, _ := strconv.Atoi(getEnv("RATE_LIMIT_BURST", "100"))
	storageUseSSL, _ := strconv.ParseBool(getEnv("STORAGE_USE_SSL", "false"))
	cookieSecure, _ := strconv.ParseBool(getEnv("COOKIE_SECURE", "false"))
	tracingEnabled, _ := strconv.ParseBool(getEnv("TRACING_ENABLED", "false"))
	bucketRadius, _ := strconv.ParseFloat(getEnv("DISCOVERY_BUCKET_RADIUS_KM", "25"), 64)
	iteratorTTLMins, _ := strconv.Atoi(getEnv("DISCOVERY_ITERATOR_TTL_MINUTES", "30"))
	cacheCeiling, _ := strconv.Atoi(getEnv("ACCOUNT_CACHE_CEILING", "100000"))
	leaseTTLSecs, _ := strconv.Atoi(getEnv("MODERATION_LEASE_TTL_SECONDS", "120"))
	dailyLikeCap, _ := strconv.Atoi(getEnv("DAILY_LIKE_CAP", "100"))
	demoModeEnabled, _ := strconv.ParseBool(getEnv("DEMO_MODE_ENABLED", "false"))
	dlqTTLMins, _ := strconv.Atoi(getEnv("DEAD_LETTER_TTL_MINUTES", "1440"))

	corsOrigins := strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"), ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}

	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		PrometheusPort: getEnv("PROMETHEUS_PORT", "9091"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoUser:     getEnv("MONGO_USER", ""),
		MongoPassword: getEnv("MONGO_PASSWORD", ""),
		DBName:        getEnv("DB_NAME", "dating_service"),

		CassandraHosts:    strings.Split(getEnv("CASSANDRA_HOSTS", "localhost"), ","),
		CassandraKeyspace: getEnv("CASSANDRA_KEYSPACE", "dating_messages"),
		CassandraUser:     getEnv("CASSANDRA_USER", "cassandra"),
		CassandraPassword: getEnv("CASSANDRA_PASSWORD", "cassandra"),

		RedisURLs: strings.Split(getEnv("REDIS_URL", "localhost:6379"), ","),
		RedisPass: getEnv("REDIS_PASS", ""),

		KafkaBrokers:  strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		EventsTopic:   getEnv("KAFKA_EVENTS_TOPIC", "events"),
		DeadLetterTTL: time.Duration(dlqTTLMins) * time.Minute,

		JWTSecret:       getEnv("JWT_SECRET", "change-me-in-production"),
		AccessTokenTTL:  time.Duration(accessTTL) * time.Minute,
		RefreshTokenTTL: time.Duration(refreshTTL) * 24 * time.Hour,

		RefreshCookieName: getEnv("REFRESH_COOKIE_NAME", "dating_refresh"),
		CookieDomain:      getEnv("COOKIE_DOMAIN", ""),
		CookieSecure:      cookieSecure,

		RateLimitEnabled: rateLimitEnabled,
		RateLimitLimit:   rateLimitLimit,
		RateLimitBurst:   rateLimitBurst,

		StorageEndpoint:  getEnv("STORAGE_ENDPOINT", "minio:9000"),
		StorageAccessKey: getEnv("STORAGE_ACCESS_KEY", "minioadmin"),
		StorageSecretKey: getEnv("STORAGE_SECRET_KEY", "minioadmin"),
		StorageBucket:    getEnv("STORAGE_BUCKET", "dating-media"),
		StorageUseSSL:    storageUseSSL,
		StoragePublicURL: getEnv("STORAGE_PUBLIC_URL", "http://localhost:9000"),

		ProfileHistoryBucket: getEnv("PROFILE_HISTORY_BUCKET", "dating-profile-history"),

		CORSAllowedOrigins: corsOrigins,

		JaegerOTLPEndpoint: getEnv("JAEGER_OTLP_ENDPOINT", "localhost:4317"),
		TracingEnabled:     tracingEnabled,

		DiscoveryBucketRadiusKM: bucketRadius,
		DiscoveryIteratorTTL:    time.Duration(iteratorTTLMins) * time.Minute,

		AccountCacheCeiling: cacheCeiling,

		ModerationLeaseTTL: time.Duration(leaseTTLSecs) * time.Second,

		DailyLikeCap: dailyLikeCap,

		DemoModeEnabled: demoModeEnabled,
		DemoModeToken:   getEnv("DEMO_MODE_TOKEN", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
