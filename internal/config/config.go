package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the bulk grader.
type Config struct {
	AppName         string
	AppEnv          string
	LogLevel        string
	LMSBaseURL      string
	LMSToken        string
	RequestTimeout  time.Duration
	PageSize        int
	MaxRetries      int
	Concurrency     int
	InterBatchPause time.Duration
}

// Load reads configuration values from environment variables and an optional
// .env file. The LMS base URL and access token are required; everything else
// has a default.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GRADER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "gema-bulk-grader")
	v.SetDefault("app.env", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("lms.timeout", "30s")
	v.SetDefault("lms.page_size", 100)
	v.SetDefault("lms.max_retries", 3)
	v.SetDefault("batch.concurrency", 5)
	v.SetDefault("batch.pause", "1s")

	timeout, err := time.ParseDuration(v.GetString("lms.timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid lms timeout: %w", err)
	}

	pause, err := time.ParseDuration(v.GetString("batch.pause"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid batch pause: %w", err)
	}

	cfg := Config{
		AppName:         v.GetString("app.name"),
		AppEnv:          v.GetString("app.env"),
		LogLevel:        v.GetString("log.level"),
		LMSBaseURL:      v.GetString("lms.base_url"),
		LMSToken:        v.GetString("lms.token"),
		RequestTimeout:  timeout,
		PageSize:        v.GetInt("lms.page_size"),
		MaxRetries:      v.GetInt("lms.max_retries"),
		Concurrency:     v.GetInt("batch.concurrency"),
		InterBatchPause: pause,
	}

	if cfg.LMSBaseURL == "" {
		return Config{}, fmt.Errorf("GRADER_LMS_BASE_URL is required")
	}
	if cfg.LMSToken == "" {
		return Config{}, fmt.Errorf("GRADER_LMS_TOKEN is required")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	return cfg, nil
}
