package config

import "time"

// Storage backends understood by the API.
const (
	StorageMongo  = "mongo"
	StorageMemory = "memory"
)

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment        string
	Addr               string
	DatabaseURL        string
	MigrationsDir      string
	StorageBackend     string
	MongoURL           string
	JWTSecret          string
	AccessTokenTTL     time.Duration
	PreviewProduct     string
	LogLevel           string
	LogFormat          string
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
	FirebaseAccountIOS string
	FirebaseAccountAnd string
	NotifyWorkers      int
	NotifyQueueSize    int
	NotifyTimeout      time.Duration
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("API_ADDR", ":3333"),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://ratekl:ratekl@db:5432/ratekl_core?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		StorageBackend:     GetString("STORAGE_BACKEND", StorageMongo),
		MongoURL:           GetString("MONGODB_URL", "mongodb://127.0.0.1:27017"),
		JWTSecret:          GetString("JWT_SECRET", "supersecuresecret"),
		AccessTokenTTL:     time.Duration(GetInt("ACCESS_TOKEN_TTL_MIN", 0)) * time.Minute,
		PreviewProduct:     GetString("PREVIEW_PRODUCT", "ratekl"),
		LogLevel:           GetString("LOG_LEVEL", "info"),
		LogFormat:          GetString("LOG_FORMAT", "json"),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
		FirebaseAccountIOS: GetString("FIREBASE_ACCOUNT_IOS", ""),
		FirebaseAccountAnd: GetString("FIREBASE_ACCOUNT_ANDROID", ""),
		NotifyWorkers:      GetInt("NOTIFY_WORKERS", 4),
		NotifyQueueSize:    GetInt("NOTIFY_QUEUE_SIZE", 256),
		NotifyTimeout:      GetSeconds("NOTIFY_TIMEOUT_SECONDS", 30),
	}
}
