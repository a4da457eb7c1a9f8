package blob

import (
	"errors"

	"github.com/ManuelReschke/InvoiceFox/internal/pkg/env"
)

// Config holds the S3 compatible bucket that stores invoice documents
type Config struct {
	AccessKeyID      string
	SecretAccessKey  string
	Region           string
	BucketName       string
	EndpointURL      string // Optional for S3-compatible services
	RetryMaxAttempts int
	Enabled          bool
}

// LoadConfig loads S3 configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:      env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey:  env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:           env.GetEnv("S3_REGION", "us-west-001"),
		BucketName:       env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:      env.GetEnv("S3_ENDPOINT_URL", ""),
		RetryMaxAttempts: env.GetInt("S3_RETRY_MAX_ATTEMPTS", 2),
		Enabled:          env.GetBool("S3_ENABLED", false),
	}

	// Validate required fields if document storage is enabled
	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when S3 is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when S3 is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when S3 is enabled")
		}
	}

	return config, nil
}
