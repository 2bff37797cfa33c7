package config

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// EnvConfig lists the CLOUDVAULT_* variables. Unset variables keep their zero
// value and do not override earlier sources.
type EnvConfig struct {
	EndpointAddrHTTP    string        `env:"CLOUDVAULT_HTTP_ADDR"`
	EndpointAddrGRPC    string        `env:"CLOUDVAULT_GRPC_ADDR"`
	DatabaseDSN         string        `env:"CLOUDVAULT_DATABASE_DSN"`
	SecretKey           string        `env:"CLOUDVAULT_SECRET_KEY"`
	OTPValidityDuration time.Duration `env:"CLOUDVAULT_OTP_VALIDITY"`
	OTPHasher           string        `env:"CLOUDVAULT_OTP_HASHER"`
	OTPPepper           string        `env:"CLOUDVAULT_OTP_PEPPER"`
	OTPSupersedeScope   string        `env:"CLOUDVAULT_OTP_SUPERSEDE_SCOPE"`
	ExposeOTPForTesting bool          `env:"CLOUDVAULT_EXPOSE_OTP_FOR_TESTING"`
	RedisAddr           string        `env:"CLOUDVAULT_REDIS_ADDR"`
	KafkaBrokers        string        `env:"CLOUDVAULT_KAFKA_BROKERS"`
	BlobBackend         string        `env:"CLOUDVAULT_BLOB_BACKEND"`
	S3RootUser          string        `env:"CLOUDVAULT_S3_USER"`
	S3RootPassword      string        `env:"CLOUDVAULT_S3_PASSWORD"`
	S3Bucket            string        `env:"CLOUDVAULT_S3_BUCKET"`
	S3BaseEndpoint      string        `env:"CLOUDVAULT_S3_ENDPOINT"`
	LogLevel            string        `env:"CLOUDVAULT_LOG_LEVEL"`
	Environment         string        `env:"CLOUDVAULT_ENV"`
	AdminSubjects       string        `env:"CLOUDVAULT_ADMIN_SUBJECTS"`
}

// parseEnv overlays environment variables. A malformed value panics, like a
// malformed JSON file.
func parseEnv(config *Config) {
	e := &EnvConfig{}
	if err := cleanenv.ReadEnv(e); err != nil {
		panic(err)
	}
	e.apply(config)
}

func (e *EnvConfig) apply(config *Config) {
	overlay := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}

	overlay(&config.EndpointAddrHTTP, e.EndpointAddrHTTP)
	overlay(&config.EndpointAddrGRPC, e.EndpointAddrGRPC)
	overlay(&config.DatabaseDSN, e.DatabaseDSN)
	overlay(&config.SecretKey, e.SecretKey)
	if e.OTPValidityDuration > 0 {
		config.OTPValidityDuration = e.OTPValidityDuration
	}
	overlay(&config.OTPHasher, e.OTPHasher)
	overlay(&config.OTPPepper, e.OTPPepper)
	overlay(&config.OTPSupersedeScope, e.OTPSupersedeScope)
	if e.ExposeOTPForTesting {
		config.ExposeOTPForTesting = true
	}
	overlay(&config.RedisAddr, e.RedisAddr)
	overlay(&config.KafkaBrokers, e.KafkaBrokers)
	overlay(&config.BlobBackend, e.BlobBackend)
	overlay(&config.S3RootUser, e.S3RootUser)
	overlay(&config.S3RootPassword, e.S3RootPassword)
	overlay(&config.S3Bucket, e.S3Bucket)
	overlay(&config.S3BaseEndpoint, e.S3BaseEndpoint)
	overlay(&config.LogLevel, e.LogLevel)
	overlay(&config.Environment, e.Environment)
	overlay(&config.AdminSubjects, e.AdminSubjects)
}
