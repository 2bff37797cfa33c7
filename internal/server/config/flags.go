package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/flagx"
)

var serverFlags = []string{"-a", "-o", "-d", "-s", "-t", "-l", "-r", "-k", "-b", "-e", "-x"}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   REST bind address (e.g., ":8080")
//	-o string   gRPC health bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-s string   session token HMAC secret
//	-t int      session token validity, minutes
//	-l string   log level
//	-r string   redis address for the verification rate limiter
//	-k string   comma-separated kafka brokers for audit fan-out
//	-b string   S3 bucket name
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-x string   OTP hasher ("legacy" or "hmac")
//
// Unknown flags in os.Args are ignored so other components can declare their own.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], serverFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to serve the REST API")
	fs.StringVar(&config.EndpointAddrGRPC, "o", config.EndpointAddrGRPC, "address and port to serve gRPC health")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	sessionValidity := fs.Int("t", int(config.SessionTokenValidityDuration.Minutes()), "session_token_validity_duration (in minutes)")

	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.KafkaBrokers, "k", config.KafkaBrokers, "kafka brokers")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.OTPHasher, "x", config.OTPHasher, "otp hasher")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionTokenValidityDuration = time.Duration(*sessionValidity) * time.Minute
}
