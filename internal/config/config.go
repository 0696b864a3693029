package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr             string
	DatabaseURL          string
	RedisAddr            string
	RedisPassword        string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	JWTSecret string

	QueueName string

	RenderURL     string
	RenderTimeout time.Duration

	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string

	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration

	SweepStaleAfter time.Duration
	PresignTTL      time.Duration
	FileCacheTTL    time.Duration
	NotifyBuffer    int
	Workers         int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:          mustGetenv("DATABASE_URL"),
		RedisAddr:            getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        getenv("REDIS_PASSWORD", ""),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",

		JWTSecret: mustGetenv("JWT_SECRET"),

		QueueName: getenv("QUEUE_NAME", "render"),

		RenderURL:     mustGetenv("RENDER_URL"),
		RenderTimeout: getdur("RENDER_TIMEOUT", 60*time.Second),

		S3AccessKeyID:     mustGetenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: mustGetenv("S3_SECRET_ACCESS_KEY"),
		S3Region:          getenv("S3_REGION", "us-east-1"),
		S3Bucket:          mustGetenv("S3_BUCKET"),
		S3Endpoint:        getenv("S3_ENDPOINT", ""),

		MaxAttempts: getint("MAX_ATTEMPTS", 3),
		BackoffBase: getdur("BACKOFF_BASE", 30*time.Second),
		BackoffCap:  getdur("BACKOFF_CAP", 10*time.Minute),

		SweepStaleAfter: getdur("SWEEP_STALE_AFTER", 0),
		PresignTTL:      getdur("PRESIGN_TTL", 10*time.Minute),
		FileCacheTTL:    getdur("FILE_CACHE_TTL", 5*time.Minute),
		NotifyBuffer:    getint("NOTIFY_BUFFER", 64),
		Workers:         getint("WORKERS", 1),
	}

	// The sweep must not fire before a delayed retry is due.
	if cfg.SweepStaleAfter <= cfg.BackoffCap {
		cfg.SweepStaleAfter = cfg.BackoffCap + 2*time.Minute
	}

	origins := strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func mustGetenv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		panic("missing env: " + key)
	}
	return v
}

func getint(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getdur(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
