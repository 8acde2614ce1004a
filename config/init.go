package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	cron_config "github.com/customeros/domainstack/internal/cron/config"
	"github.com/customeros/domainstack/internal/logger"
	"github.com/customeros/domainstack/internal/tracing"
)

type Config struct {
	AppConfig           *AppConfig
	Logger              *logger.Config
	Tracing             *tracing.JaegerConfig
	DatabaseConfig      *DatabaseConfig
	RedisConfig         *RedisConfig
	CloudflareConfig    *CloudflareConfig
	MailDirectoryConfig *MailDirectoryConfig
	ProvisioningConfig  *ProvisioningConfig
	PropagationConfig   *PropagationConfig
	CronConfig          *cron_config.Config
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:           &AppConfig{},
		Logger:              &logger.Config{},
		Tracing:             &tracing.JaegerConfig{},
		DatabaseConfig:      &DatabaseConfig{},
		RedisConfig:         &RedisConfig{},
		CloudflareConfig:    &CloudflareConfig{},
		MailDirectoryConfig: &MailDirectoryConfig{},
		ProvisioningConfig:  &ProvisioningConfig{},
		PropagationConfig:   &PropagationConfig{},
		CronConfig:          &cron_config.Config{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		log.Fatalf("Error loading domainstack config: %v", err)
	}

	return config, nil
}
