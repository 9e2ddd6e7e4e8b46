package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	DBPath        string             `json:"db_path"`
	Port          int                `json:"port"`
	JWTSecret     string             `json:"jwt_secret"`
	JWTTTLHours   int                `json:"jwt_ttl_hours"`
	LogConfig     logger.LogConfig   `json:"log_config"`
	CORSAllowlist []string           `json:"cors_allowlist"`
	RateLimit     RateLimitConfig    `json:"rate_limit"`
	FileStore     FileStoreConfig    `json:"file_store"`
	Segmentation  SegmentationConfig `json:"segmentation"`
	Assessment    AssessmentConfig   `json:"assessment"`
	Jobs          JobsConfig         `json:"jobs"`
	ClusterCache  ClusterCacheConfig `json:"cluster_cache"`
}

type RateLimitConfig struct {
	PerSecond float64 `json:"per_second"`
	Burst     int     `json:"burst"`
}

type FileStoreConfig struct {
	Type      string   `json:"type"`
	Dir       string   `json:"dir"`
	S3        S3Config `json:"s3"`
}

type S3Config struct {
	Endpoint  string `json:"endpoint"`
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Prefix    string `json:"prefix"`
}

type SegmentationConfig struct {
	Endpoint       string `json:"endpoint"`
	APIKey         string `json:"api_key"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type AssessmentConfig struct {
	// ConflictCreditThreshold is the credit difference above which two
	// feedbacks on equivalent blocks count as a conflict.
	ConflictCreditThreshold float64 `json:"conflict_credit_threshold"`
}

type JobsConfig struct {
	IngestRunRetentionDays int    `json:"ingest_run_retention_days"`
	CleanupSpec            string `json:"cleanup_spec"`
}

type ClusterCacheConfig struct {
	Size       int `json:"size"`
	TTLSeconds int `json:"ttl_seconds"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db_path is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt_secret is required")
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.JWTTTLHours == 0 {
		cfg.JWTTTLHours = 72
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.RateLimit.PerSecond == 0 {
		cfg.RateLimit.PerSecond = 20
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 40
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	switch cfg.FileStore.Type {
	case "local":
		if cfg.FileStore.Dir == "" {
			return nil, fmt.Errorf("file_store.dir is required for local store")
		}
	case "s3":
		s3 := cfg.FileStore.S3
		if s3.Bucket == "" || s3.SecretID == "" || s3.SecretKey == "" {
			return nil, fmt.Errorf("file_store.s3 bucket/secret_id/secret_key are required for s3 store")
		}
		if s3.Region == "" {
			cfg.FileStore.S3.Region = "us-east-1"
		}
	default:
		return nil, fmt.Errorf("file_store.type must be local or s3")
	}
	if cfg.Segmentation.TimeoutSeconds == 0 {
		cfg.Segmentation.TimeoutSeconds = 60
	}
	if cfg.Assessment.ConflictCreditThreshold == 0 {
		cfg.Assessment.ConflictCreditThreshold = 1.0
	}
	if cfg.Jobs.IngestRunRetentionDays == 0 {
		cfg.Jobs.IngestRunRetentionDays = 30
	}
	if cfg.Jobs.CleanupSpec == "" {
		cfg.Jobs.CleanupSpec = "0 3 * * *"
	}
	if cfg.ClusterCache.Size == 0 {
		cfg.ClusterCache.Size = 1024
	}
	if cfg.ClusterCache.TTLSeconds == 0 {
		cfg.ClusterCache.TTLSeconds = 300
	}
	return &cfg, nil
}
