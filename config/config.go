// Package config holds the per-backend-family credential and tuning
// structures consumed by the storage access layer. Loading is environment
// driven; the rest of the module treats these values as opaque.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultWriteChunkBytes is the write chunk size used for large-object
// writes on the object-storage schemes when no override is set (25 MiB).
const DefaultWriteChunkBytes = 25 * 1 << 20

// writeChunkEnv overrides the large-object write chunk size, in bytes.
const writeChunkEnv = "STASH_WRITE_CHUNK_BYTES"

// S3Config configures S3-compatible object storage access.
type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Insecure        bool
	// Retries bounds the rate-limit retry policy. Zero means the default.
	Retries int
}

// AzureConfig configures Azure blob storage access. Either an account
// name/key pair or a service-principal triple may be supplied.
type AzureConfig struct {
	AccountName  string
	AccountKey   string
	ClientID     string
	ClientSecret string
	TenantID     string
}

// GenericConfig carries settings that apply across backends.
type GenericConfig struct {
	// AttachExecutionMetadata controls whether caller-supplied execution
	// tags are attached to every upload.
	AttachExecutionMetadata bool

	// Options is a free-form bag for schemes resolved through the generic
	// configuration-to-argument mapping.
	Options map[string]string
}

// DataConfig is the opaque configuration object handed to the Provider,
// one member per backend family.
type DataConfig struct {
	S3      S3Config
	Azure   AzureConfig
	Generic GenericConfig
}

// Default returns a DataConfig with no credentials configured.
func Default() DataConfig {
	return DataConfig{}
}

// FromEnv builds a DataConfig from STASH_-prefixed environment variables,
// loading a .env file first when one is present. For example
// STASH_S3_ENDPOINT and STASH_AZURE_ACCOUNT_NAME.
func FromEnv() DataConfig {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("STASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return DataConfig{
		S3: S3Config{
			Endpoint:        v.GetString("s3.endpoint"),
			Region:          v.GetString("s3.region"),
			AccessKeyID:     v.GetString("s3.access_key_id"),
			SecretAccessKey: v.GetString("s3.secret_access_key"),
			Insecure:        v.GetBool("s3.insecure"),
			Retries:         v.GetInt("s3.retries"),
		},
		Azure: AzureConfig{
			AccountName:  v.GetString("azure.account_name"),
			AccountKey:   v.GetString("azure.account_key"),
			ClientID:     v.GetString("azure.client_id"),
			ClientSecret: v.GetString("azure.client_secret"),
			TenantID:     v.GetString("azure.tenant_id"),
		},
		Generic: GenericConfig{
			AttachExecutionMetadata: v.GetBool("attach_execution_metadata"),
		},
	}
}

// WriteChunkBytes returns the write chunk size for large-object writes,
// honoring the environment override when it parses as a positive integer.
func WriteChunkBytes() int64 {
	if raw := os.Getenv(writeChunkEnv); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return DefaultWriteChunkBytes
}
