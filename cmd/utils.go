package cmd

import (
	"flag"
	"fmt"
	"log"

	"tagger-backend/internal/storage"

	"github.com/joho/godotenv"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

// StorageConfig selects where cache segments are persisted. The zero-value
// default is a local directory; "s3" works against AWS or MinIO.
type StorageConfig struct {
	Provider          string `env:"STORAGE_PROVIDER" envDefault:"local"`
	LocalStorageRoot  string `env:"LOCAL_STORAGE_ROOT" envDefault:"./data/storage"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
}

func NewStorageProvider(cfg StorageConfig) (storage.Provider, error) {
	switch cfg.Provider {
	case "local":
		return storage.NewLocalProvider(cfg.LocalStorageRoot)
	case "s3":
		return storage.NewS3Provider(&storage.S3ProviderConfig{
			S3EndpointURL:     cfg.S3EndpointURL,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
			S3Region:          cfg.S3Region,
		})
	default:
		return nil, fmt.Errorf("unknown storage provider '%s': expected 'local' or 's3'", cfg.Provider)
	}
}
