package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/lifexhealth/medvault/internal/flagx"
	"github.com/lifexhealth/medvault/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "15m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	DatabaseDSN            string         `json:"database_dsn"`
	TokenSecret            string         `json:"token_secret"`
	SessionValidity        timex.Duration `json:"session_validity"`
	LockoutThreshold       int            `json:"lockout_threshold"`
	LockoutCooldown        timex.Duration `json:"lockout_cooldown"`
	CredentialHistoryDepth int            `json:"credential_history_depth"`
	RegistryBaseURL        string         `json:"registry_base_url"`
	RegistryTimeout        timex.Duration `json:"registry_timeout"`
	AnchorRetryAttempts    uint64         `json:"anchor_retry_attempts"`
	VerifyRetryAttempts    uint64         `json:"verify_retry_attempts"`
	RegistryBackoffBase    timex.Duration `json:"registry_backoff_base"`
	AnchorSweepInterval    timex.Duration `json:"anchor_sweep_interval"`
	MaxCanonicalBytes      int64          `json:"max_canonical_bytes"`
	S3RootUser             string         `json:"s3_root_user"`
	S3RootPassword         string         `json:"s3_root_password"`
	S3Bucket               string         `json:"s3_bucket"`
	S3Region               string         `json:"s3_region"`
	S3BaseEndpoint         string         `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c/-config flags; if none is
// set, no JSON file is loaded. An unreadable or invalid file panics, since
// running with half-applied configuration is worse than not starting.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.DatabaseDSN = c.DatabaseDSN
	config.TokenSecret = c.TokenSecret
	config.SessionValidity = time.Duration(c.SessionValidity.Duration)
	config.LockoutThreshold = c.LockoutThreshold
	config.LockoutCooldown = time.Duration(c.LockoutCooldown.Duration)
	config.CredentialHistoryDepth = c.CredentialHistoryDepth
	config.RegistryBaseURL = c.RegistryBaseURL
	config.RegistryTimeout = time.Duration(c.RegistryTimeout.Duration)
	config.AnchorRetryAttempts = c.AnchorRetryAttempts
	config.VerifyRetryAttempts = c.VerifyRetryAttempts
	config.RegistryBackoffBase = time.Duration(c.RegistryBackoffBase.Duration)
	config.AnchorSweepInterval = time.Duration(c.AnchorSweepInterval.Duration)
	config.MaxCanonicalBytes = c.MaxCanonicalBytes
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
}
