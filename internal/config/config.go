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

type Config struct {
	AppPort string

	// BasicAuthUser/BasicAuthPass 都非空时启用 Basic Auth
	BasicAuthUser string
	BasicAuthPass string

	// 为空表示不启用对应的存储
	PostgresDSN string
	RedisAddr   string

	CronSpec string

	LogLevel  string
	LogFormat string

	// SourcesFile 为空时使用内置的数据源表
	SourcesFile string

	NewsTTL     time.Duration
	TrendingTTL time.Duration

	NewsMaxItems     int
	TrendingMaxItems int

	FeedMaxEntries         int
	TrendingFeedMaxEntries int
	EnrichPerSource        int
	RecencyWindow          time.Duration

	FeedTimeout     time.Duration
	PageTimeout     time.Duration
	APITimeout      time.Duration
	RefreshDeadline time.Duration
	RequestTimeout  time.Duration

	RetryAttempts    int
	RetryDelay       time.Duration
	FetchConcurrency int

	NewsAPIKey      string
	NewsAPIURL      string
	NewsAPICountry  string
	NewsAPIPageSize int
	NewsAPIMaxPages int

	UserAgent string
}

// Load 读取环境变量；当前目录存在 .env 时先加载（不覆盖已有环境变量）
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		AppPort:       getEnv("APP_PORT", "9000"),
		BasicAuthUser: getEnv("APP_BASIC_USER", ""),
		BasicAuthPass: getEnv("APP_BASIC_PASS", ""),
		PostgresDSN:   getEnv("POSTGRES_DSN", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		CronSpec:      getEnv("WARM_CRON_SPEC", "*/5 * * * *"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		SourcesFile:   getEnv("SOURCES_FILE", ""),

		NewsTTL:     getEnvDuration("NEWS_TTL", 5*time.Minute),
		TrendingTTL: getEnvDuration("TRENDING_TTL", 2*time.Minute),

		NewsMaxItems:     getEnvInt("NEWS_MAX_ITEMS", 100),
		TrendingMaxItems: getEnvInt("TRENDING_MAX_ITEMS", 20),

		FeedMaxEntries:         getEnvInt("FEED_MAX_ENTRIES", 30),
		TrendingFeedMaxEntries: getEnvInt("TRENDING_FEED_MAX_ENTRIES", 5),
		EnrichPerSource:        getEnvInt("ENRICH_PER_SOURCE", 3),
		RecencyWindow:          getEnvDuration("RECENCY_WINDOW", 72*time.Hour),

		FeedTimeout:     getEnvDuration("FEED_TIMEOUT", 10*time.Second),
		PageTimeout:     getEnvDuration("PAGE_TIMEOUT", 6*time.Second),
		APITimeout:      getEnvDuration("API_TIMEOUT", 10*time.Second),
		RefreshDeadline: getEnvDuration("REFRESH_DEADLINE", 45*time.Second),
		RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 60*time.Second),

		RetryAttempts:    getEnvInt("RETRY_ATTEMPTS", 3),
		RetryDelay:       getEnvDuration("RETRY_DELAY", time.Second),
		FetchConcurrency: getEnvInt("FETCH_CONCURRENCY", 16),

		NewsAPIKey:      getEnv("NEWS_API_KEY", ""),
		NewsAPIURL:      getEnv("NEWS_API_URL", "https://newsapi.org/v2/top-headlines"),
		NewsAPICountry:  getEnv("NEWS_API_COUNTRY", "il"),
		NewsAPIPageSize: getEnvInt("NEWS_API_PAGE_SIZE", 100),
		NewsAPIMaxPages: getEnvInt("NEWS_API_MAX_PAGES", 3),

		UserAgent: getEnv("USER_AGENT", "Mozilla/5.0 (compatible; ToplineBot/1.0)"),
	}
}

// Validate 检查时长与数量类配置
func (c *Config) Validate() error {
	var errs []error

	durations := []struct {
		key string
		v   time.Duration
	}{
		{"NEWS_TTL", c.NewsTTL},
		{"TRENDING_TTL", c.TrendingTTL},
		{"FEED_TIMEOUT", c.FeedTimeout},
		{"PAGE_TIMEOUT", c.PageTimeout},
		{"API_TIMEOUT", c.APITimeout},
		{"REFRESH_DEADLINE", c.RefreshDeadline},
		{"REQUEST_TIMEOUT", c.RequestTimeout},
		{"RETRY_DELAY", c.RetryDelay},
	}
	for _, d := range durations {
		if d.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", d.key, d.v))
		}
	}

	ints := []struct {
		key string
		v   int
	}{
		{"NEWS_MAX_ITEMS", c.NewsMaxItems},
		{"TRENDING_MAX_ITEMS", c.TrendingMaxItems},
		{"FEED_MAX_ENTRIES", c.FeedMaxEntries},
		{"TRENDING_FEED_MAX_ENTRIES", c.TrendingFeedMaxEntries},
		{"RETRY_ATTEMPTS", c.RetryAttempts},
		{"FETCH_CONCURRENCY", c.FetchConcurrency},
		{"NEWS_API_PAGE_SIZE", c.NewsAPIPageSize},
		{"NEWS_API_MAX_PAGES", c.NewsAPIMaxPages},
	}
	for _, n := range ints {
		if n.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", n.key, n.v))
		}
	}

	if c.EnrichPerSource < 0 {
		errs = append(errs, fmt.Errorf("ENRICH_PER_SOURCE must not be negative, got %d", c.EnrichPerSource))
	}
	if c.RecencyWindow < 0 {
		errs = append(errs, fmt.Errorf("RECENCY_WINDOW must not be negative, got %s", c.RecencyWindow))
	}
	if (c.BasicAuthUser == "") != (c.BasicAuthPass == "") {
		errs = append(errs, errors.New("APP_BASIC_USER and APP_BASIC_PASS must be set together"))
	}

	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// getEnvInt 解析失败时返回默认值
func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// getEnvDuration 支持 time.ParseDuration 格式，纯数字按秒处理
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}
