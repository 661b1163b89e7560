package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/dgallion1/pageview/internal/layout"
	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Worker pool
	WorkerCount  int
	MaxQueueSize int
	PageWorkers  int

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL time.Duration

	// Default stylesheet
	PageWidth  float64
	PageHeight float64
	PageMargin float64
	FontSize   float64
	LineHeight float64

	// Browser view
	NavOffset int

	// Remote fetch
	FetchTimeout   time.Duration
	FetchMaxBytes  int64
	FetchUserAgent string
	RespectRobots  bool

	// Render cache; empty path disables it
	CacheDBPath string
	CacheTTL    time.Duration

	// PDF
	PDFFallbackPdftotext bool
}

// LoadDotEnv seeds the environment from .env files. Missing files are
// ignored and variables that are already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func Load() Config {
	def := layout.DefaultStylesheet()
	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("PAGEVIEW_API_KEY"),

		WorkerCount:  envInt("WORKER_COUNT", 2),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),
		PageWorkers:  envInt("PAGE_WORKERS", 1),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 20971520), // 20MB

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		PageWidth:  envFloat("PAGE_WIDTH", def.PageWidth),
		PageHeight: envFloat("PAGE_HEIGHT", def.PageHeight),
		PageMargin: envFloat("PAGE_MARGIN", def.Margin),
		FontSize:   envFloat("FONT_SIZE", def.FontSize),
		LineHeight: envFloat("LINE_HEIGHT", def.LineHeight),

		NavOffset: envInt("NAV_OFFSET", 60),

		FetchTimeout:   envDuration("FETCH_TIMEOUT", 20*time.Second),
		FetchMaxBytes:  envInt64("FETCH_MAX_BYTES", 10485760), // 10MB
		FetchUserAgent: envOr("FETCH_USER_AGENT", "pageview/1.0"),
		RespectRobots:  envBool("RESPECT_ROBOTS", true),

		CacheDBPath: envOrEmpty("CACHE_DB_PATH", "pageview.db"),
		CacheTTL:    envDuration("CACHE_TTL", 24*time.Hour),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.PageWorkers <= 0 {
		cfg.PageWorkers = 1
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20971520
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.PageWidth <= 0 {
		cfg.PageWidth = def.PageWidth
	}
	if cfg.PageHeight <= 0 {
		cfg.PageHeight = def.PageHeight
	}
	if cfg.PageMargin < 0 {
		cfg.PageMargin = def.Margin
	}
	if cfg.FontSize <= 0 {
		cfg.FontSize = def.FontSize
	}
	if cfg.LineHeight <= 0 {
		cfg.LineHeight = def.LineHeight
	}
	if cfg.NavOffset < 0 {
		cfg.NavOffset = 0
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 20 * time.Second
	}
	if cfg.FetchMaxBytes <= 0 {
		cfg.FetchMaxBytes = 10485760
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}

	return cfg
}

// Stylesheet returns the configured default stylesheet.
func (c Config) Stylesheet() layout.Stylesheet {
	return layout.Cascade(layout.Stylesheet{
		PageWidth:  c.PageWidth,
		PageHeight: c.PageHeight,
		Margin:     c.PageMargin,
		FontSize:   c.FontSize,
		LineHeight: c.LineHeight,
	})
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("PAGEVIEW_API_KEY is required")
	}
	if err := c.Stylesheet().Validate(); err != nil {
		return fmt.Errorf("default stylesheet: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envOrEmpty is envOr except that a variable set to "" is kept.
func envOrEmpty(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
