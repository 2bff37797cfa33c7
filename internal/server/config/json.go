package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/flagx"
)

// Duration accepts either a Go duration string ("5m") or integer nanoseconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
}

// JsonConfig mirrors Config for JSON files. Pointer fields distinguish
// "absent" from zero values so a partial file only overrides what it names.
type JsonConfig struct {
	EndpointAddrHTTP             *string   `json:"endpoint_addr_http"`
	EndpointAddrGRPC             *string   `json:"endpoint_addr_grpc"`
	DatabaseDSN                  *string   `json:"database_dsn"`
	SecretKey                    *string   `json:"secret_key"`
	SessionTokenValidityDuration *Duration `json:"session_token_validity_duration"`
	OTPValidityDuration          *Duration `json:"otp_validity_duration"`
	OTPHasher                    *string   `json:"otp_hasher"`
	OTPPepper                    *string   `json:"otp_pepper"`
	OTPSupersedeScope            *string   `json:"otp_supersede_scope"`
	ExposeOTPForTesting          *bool     `json:"expose_otp_for_testing"`
	VerifyRateLimit              *int      `json:"verify_rate_limit"`
	VerifyRateWindow             *Duration `json:"verify_rate_window"`
	RedisAddr                    *string   `json:"redis_addr"`
	KafkaBrokers                 *string   `json:"kafka_brokers"`
	KafkaTopic                   *string   `json:"kafka_topic"`
	BlobBackend                  *string   `json:"blob_backend"`
	S3RootUser                   *string   `json:"s3_root_user"`
	S3RootPassword               *string   `json:"s3_root_password"`
	S3Bucket                     *string   `json:"s3_bucket"`
	S3Region                     *string   `json:"s3_region"`
	S3BaseEndpoint               *string   `json:"s3_base_endpoint"`
	ReplicaCount                 *int      `json:"replica_count"`
	SweepInterval                *Duration `json:"sweep_interval"`
	HealthCheckInterval          *Duration `json:"health_check_interval"`
	LogLevel                     *string   `json:"log_level"`
	Environment                  *string   `json:"environment"`
	AdminSubjects                *string   `json:"admin_subjects"`
}

// parseJson loads the file named by -c/-config, if any, over config.
// An unreadable or malformed file panics: the server must not start with a
// half-applied configuration.
func parseJson(config *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.SessionTokenValidityDuration, c.SessionTokenValidityDuration)
	setDuration(&config.OTPValidityDuration, c.OTPValidityDuration)
	setString(&config.OTPHasher, c.OTPHasher)
	setString(&config.OTPPepper, c.OTPPepper)
	setString(&config.OTPSupersedeScope, c.OTPSupersedeScope)
	if c.ExposeOTPForTesting != nil {
		config.ExposeOTPForTesting = *c.ExposeOTPForTesting
	}
	if c.VerifyRateLimit != nil {
		config.VerifyRateLimit = *c.VerifyRateLimit
	}
	setDuration(&config.VerifyRateWindow, c.VerifyRateWindow)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.KafkaBrokers, c.KafkaBrokers)
	setString(&config.KafkaTopic, c.KafkaTopic)
	setString(&config.BlobBackend, c.BlobBackend)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	if c.ReplicaCount != nil {
		config.ReplicaCount = *c.ReplicaCount
	}
	setDuration(&config.SweepInterval, c.SweepInterval)
	setDuration(&config.HealthCheckInterval, c.HealthCheckInterval)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.Environment, c.Environment)
	setString(&config.AdminSubjects, c.AdminSubjects)
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *Duration) {
	if src != nil {
		*dst = src.Duration
	}
}
