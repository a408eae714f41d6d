package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Vision   VisionConfig   `mapstructure:"vision"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type AuthConfig struct {
	Secret        string        `mapstructure:"secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	AdminUser     string        `mapstructure:"admin_user"`
	AdminPassword string        `mapstructure:"admin_password"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type VisionConfig struct {
	ModelPath   string        `mapstructure:"model_path"`
	InputSize   int           `mapstructure:"input_size"`
	OCREndpoint string        `mapstructure:"ocr_endpoint"`
	OCRTimeout  time.Duration `mapstructure:"ocr_timeout"`
}

type PipelineConfig struct {
	FrameSkip            int           `mapstructure:"frame_skip"`
	WorkerCount          int           `mapstructure:"worker_count"`
	QueueCapacity        int           `mapstructure:"queue_capacity"`
	DetectionConfidence  float64       `mapstructure:"detection_confidence"`
	OCRConfidenceFloor   float64       `mapstructure:"ocr_confidence_floor"`
	HistorySize          int           `mapstructure:"history_size"`
	ReconcileHistorySize int           `mapstructure:"reconcile_history_size"`
	ReconcileStaleAfter  time.Duration `mapstructure:"reconcile_stale_after"`
	StreamFPS            int           `mapstructure:"stream_fps"`
	ShutdownGrace        time.Duration `mapstructure:"shutdown_grace"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Load reads configuration from the given file (optional) with environment
// overrides (PLATESCANNER_ prefix, dots replaced by underscores).
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("auth.token_ttl", 30*time.Minute)
	v.SetDefault("auth.admin_user", "admin")
	v.SetDefault("vision.input_size", 640)
	v.SetDefault("vision.ocr_timeout", 5*time.Second)
	v.SetDefault("pipeline.frame_skip", 2)
	v.SetDefault("pipeline.worker_count", 1)
	v.SetDefault("pipeline.queue_capacity", 100)
	v.SetDefault("pipeline.detection_confidence", 0.6)
	v.SetDefault("pipeline.ocr_confidence_floor", 0.45)
	v.SetDefault("pipeline.history_size", 100)
	v.SetDefault("pipeline.reconcile_history_size", 500)
	v.SetDefault("pipeline.reconcile_stale_after", 5*time.Minute)
	v.SetDefault("pipeline.stream_fps", 10)
	v.SetDefault("pipeline.shutdown_grace", 5*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("PLATESCANNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Pipeline.FrameSkip < 1 {
		return fmt.Errorf("pipeline.frame_skip must be >= 1, got %d", c.Pipeline.FrameSkip)
	}
	if c.Pipeline.WorkerCount < 1 {
		return fmt.Errorf("pipeline.worker_count must be >= 1, got %d", c.Pipeline.WorkerCount)
	}
	if c.Pipeline.QueueCapacity < 1 {
		return fmt.Errorf("pipeline.queue_capacity must be >= 1, got %d", c.Pipeline.QueueCapacity)
	}
	return nil
}
