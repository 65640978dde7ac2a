package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AppConfig      *AppConfig
	AIConfig       *AIConfig
	BrowserConfig  *BrowserConfig
	WorkflowConfig *WorkflowConfig
}

type AppConfig struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	Debug     bool   `envconfig:"DEBUG" default:"false"`
	LogFile   string `envconfig:"LOG_FILE" default:""`
	TraceFile string `envconfig:"TRACE_FILE" default:""`
}

type AIConfig struct {
	Provider          string `envconfig:"AI_PROVIDER" default:"anthropic"`
	APIKey            string `envconfig:"AI_API_KEY" required:"true"`
	Model             string `envconfig:"AI_MODEL" default:"claude-sonnet-4-20250514"`
	Endpoint          string `envconfig:"AI_ENDPOINT" default:""`
	MaxTokens         int    `envconfig:"AI_MAX_TOKENS" default:"2048"`
	RequestsPerMinute int    `envconfig:"AI_REQUESTS_PER_MINUTE" default:"30"`
	RetryMaxElapsedMs int    `envconfig:"AI_RETRY_MAX_ELAPSED_MS" default:"90000"`
}

func (c *AIConfig) RetryMaxElapsed() time.Duration {
	return time.Duration(c.RetryMaxElapsedMs) * time.Millisecond
}

type BrowserConfig struct {
	Headless    bool   `envconfig:"BROWSER_HEADLESS" default:"true"`
	SlowMo      int    `envconfig:"BROWSER_SLOW_MO" default:"0"`
	Timeout     int    `envconfig:"BROWSER_TIMEOUT" default:"30000"`
	UserDataDir string `envconfig:"BROWSER_USER_DATA_DIR" default:""`
}

func (c *BrowserConfig) NavigationTimeout() float64 {
	return float64(c.Timeout)
}

type WorkflowConfig struct {
	MaxSteps       int    `envconfig:"WORKFLOW_MAX_STEPS" default:"15"`
	ArtifactRoot   string `envconfig:"WORKFLOW_ARTIFACT_ROOT" default:"./runs"`
	ActionDelayMs  int    `envconfig:"WORKFLOW_ACTION_DELAY_MS" default:"1200"`
	ViewportWidth  int    `envconfig:"WORKFLOW_VIEWPORT_WIDTH" default:"1280"`
	ViewportHeight int    `envconfig:"WORKFLOW_VIEWPORT_HEIGHT" default:"720"`
}

func (c *WorkflowConfig) ActionDelay() time.Duration {
	return time.Duration(c.ActionDelayMs) * time.Millisecond
}

func GetConfig() (*Config, error) {
	_ = godotenv.Load()

	var conf Config

	if err := envconfig.Process("", &conf); err != nil {
		return nil, fmt.Errorf("read config from env vars: %w", err)
	}

	return &conf, nil
}
